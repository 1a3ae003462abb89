package stackutil

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureFromHelper() []runtime.Frame {
	return Capture(8, 1)
}

func TestCapture(t *testing.T) {
	a := assert.New(t)

	frames := Capture(8, 0)
	if a.NotEmpty(frames) {
		a.True(strings.HasSuffix(frames[0].Function, "stackutil.TestCapture"), frames[0].Function)
	}

	frames = captureFromHelper()
	if a.NotEmpty(frames) {
		a.True(strings.HasSuffix(frames[0].Function, "stackutil.TestCapture"), frames[0].Function)
	}

	a.Len(Capture(1, 0), 1)
}

func TestWithout(t *testing.T) {
	a := assert.New(t)

	frames := []runtime.Frame{
		{File: "/src/app/main.go", Function: "main.main", Line: 10},
		{File: "/go/pkg/mod/github.com/sirupsen/logrus/entry.go", Function: "logrus.(*Entry).Log", Line: 20},
		{File: "/src/app/worker.go", Function: "main.runWorker", Line: 30},
	}

	a.Equal([]runtime.Frame{frames[0], frames[2]}, Without(frames, "sirupsen/logrus"))
	a.Equal([]runtime.Frame{frames[1]}, Without(frames, "/src/app"))
	a.Equal(frames, Without(frames))
	a.Nil(Without(nil, "x"))
}

func TestFormat(t *testing.T) {
	a := assert.New(t)

	a.Equal([]string{
		"/src/app/main.go:10: main.main",
		"/src/app/worker.go:30: main.runWorker",
	}, Format([]runtime.Frame{
		{File: "/src/app/main.go", Function: "main.main", Line: 10},
		{File: "/src/app/worker.go", Function: "main.runWorker", Line: 30},
	}))
	a.Equal([]string{}, Format(nil))
}
