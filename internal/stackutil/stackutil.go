package stackutil

import (
	"fmt"
	"runtime"
	"strings"
)

// Capture returns up to depth frames of the calling goroutine's stack. A skip
// of zero starts at the caller of Capture.
func Capture(depth, skip int) []runtime.Frame {
	pc := make([]uintptr, depth)

	// runtime.Callers and Capture itself
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pc[:n])

	var a []runtime.Frame
	for {
		frame, more := frames.Next()
		a = append(a, frame)
		if !more {
			break
		}
	}

	return a
}

// Without drops frames whose file or function contains any of the given
// fragments.
func Without(a []runtime.Frame, fragments ...string) []runtime.Frame {
	var out []runtime.Frame

outer:
	for _, frame := range a {
		for _, s := range fragments {
			if strings.Contains(frame.File, s) || strings.Contains(frame.Function, s) {
				continue outer
			}
		}

		out = append(out, frame)
	}

	return out
}

func Format(a []runtime.Frame) []string {
	r := make([]string, len(a))
	for i, e := range a {
		r[i] = FormatFrame(e)
	}
	return r
}

func FormatFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Function)
}
