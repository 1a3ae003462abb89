// Package logrusstackhook attaches the caller's stack to log entries at the
// configured levels, one "stack.NN" field per frame.
package logrusstackhook

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/stackutil"
)

const maxDepth = 32

// DefaultSkip leaves out logrus and the hook itself. It matches the hook's
// methods only, so callers living in this package keep their frames.
var DefaultSkip = []string{"github.com/sirupsen/logrus", "logrusstackhook.(*StackHook)"}

type StackHook struct {
	levels []logrus.Level
	skip   []string
}

// New returns a hook firing at levels. Frames from files or functions matching
// any skip fragment are left out. Nil arguments take the defaults, which are
// debug and trace levels and DefaultSkip.
func New(levels []logrus.Level, skip []string) *StackHook {
	if levels == nil {
		levels = []logrus.Level{logrus.DebugLevel, logrus.TraceLevel}
	}
	if skip == nil {
		skip = DefaultSkip
	}

	return &StackHook{levels: levels, skip: skip}
}

func (h *StackHook) Levels() []logrus.Level { return h.levels }

func (h *StackHook) Fire(e *logrus.Entry) error {
	for i, frame := range stackutil.Without(stackutil.Capture(maxDepth, 0), h.skip...) {
		e.Data[fmt.Sprintf("stack.%02d", i)] = stackutil.FormatFrame(frame)
	}

	return nil
}
