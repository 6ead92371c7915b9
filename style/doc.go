// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package style renders the content of one image in the style of another.
//
// # Overview
//
// A run starts from a noisy copy of the content image and descends on the
// pixels, matching VGG19 activations of the content image at one layer and
// Gram matrices of the style image at several others:
//
//	L = alpha * content + beta * sum_l w_l * style_l
//
// The extractor is read-only after construction and can be shared by any
// number of concurrent runs.
//
// # Basic Usage
//
//	import "github.com/born-ml/stylize/style"
//
//	func main() {
//	    extractor, err := style.LoadExtractor("vgg19.safetensors", style.LoadOptions{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    content, _ := style.LoadImage("photo.jpg")
//	    painting, _ := style.LoadImage("starry-night.jpg")
//
//	    cfg := style.DefaultConfig()
//	    cfg.MaxIterations = 500
//
//	    res, err := style.Transfer(ctx, extractor, cfg, content, painting)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _ = style.SaveImage("out.png", res.Image)
//	}
//
// # Weights
//
// LoadExtractor reads SafeTensors files in torchvision (features.N.weight),
// Keras (block1_conv1/kernel) or native naming, detected from the tensor
// names. RandomExtractor builds a seeded extractor with narrower layers for
// tests and demos; its output is not artistically meaningful.
//
// # Errors
//
// Every error matches one of ErrConfiguration, ErrResource, ErrFormat or
// ErrNumerical with errors.Is. A canceled run returns the context's error.
package style
