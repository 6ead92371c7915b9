package autodiff

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Backward computes the gradient of a scalar loss with respect to every
// tensor recorded on backend's tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.SquaredDiffSum(x, target)
//	gradients := autodiff.Backward(loss, backend)
//	grad := gradients[x]
//
// Backward panics if nothing was recorded or loss is not a scalar.
func Backward[B tensor.GradBackend](loss *tensor.RawTensor, backend *AutodiffBackend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if loss.NumElements() != 1 {
		panic(fmt.Sprintf("backward: loss must be a scalar, got shape %v", loss.Shape()))
	}

	return tape.Backward(loss, tensor.Scalar(1), backend.Inner())
}
