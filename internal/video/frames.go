// Package video splits videos into numbered PNG frames and joins frames
// back into a video, using the ffmpeg binary through ffmpeg-go.
//
// Frames are named frame_<index>.png with the index starting at 0. Every
// listing is ordered by that index, never lexicographically, so frame_9
// precedes frame_10.
package video

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/errs"
)

const (
	framePrefix = "frame_"
	frameExt    = ".png"
)

// FramePattern is the ffmpeg output pattern for decomposed frames.
const FramePattern = framePrefix + "%d" + frameExt

// FrameName returns the file name of frame i.
func FrameName(i int) string {
	return fmt.Sprintf(FramePattern, i)
}

// FrameIndex parses the index out of a frame file name or path.
func FrameIndex(name string) (int, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, framePrefix) || !strings.HasSuffix(base, frameExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, framePrefix), frameExt)
	if digits == "" || strings.ContainsAny(digits, "+-") {
		return 0, false
	}
	i, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return i, true
}

// SortFrames orders frame paths by index in place. Paths that are not frame
// names sort after all frames, by name.
func SortFrames(paths []string) {
	slices.SortStableFunc(paths, func(a, b string) int {
		ia, oka := FrameIndex(a)
		ib, okb := FrameIndex(b)
		switch {
		case oka && okb:
			return ia - ib
		case oka:
			return -1
		case okb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}

// ListFrames returns the frame files in dir ordered by index. Other files
// are ignored.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Resource("video.ListFrames", dir, err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FrameIndex(e.Name()); ok {
			frames = append(frames, filepath.Join(dir, e.Name()))
		}
	}
	SortFrames(frames)
	return frames, nil
}
