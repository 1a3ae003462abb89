package logrusstackhook

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestStackHook(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(New(nil, nil))

	logger.Info("plain")
	logger.Debug("with stack")

	entries := hook.AllEntries()
	if !a.Len(entries, 2) {
		return
	}

	a.NotContains(entries[0].Data, "stack.00")

	top, ok := entries[1].Data["stack.00"].(string)
	if a.True(ok) {
		a.True(strings.HasSuffix(top, "logrusstackhook.TestStackHook"), top)
	}
	for k, v := range entries[1].Data {
		a.NotContains(v, "sirupsen/logrus", k)
		a.NotContains(v, "(*StackHook).Fire", k)
	}
}

func TestStackHookLevels(t *testing.T) {
	a := assert.New(t)

	h := New([]logrus.Level{logrus.ErrorLevel}, []string{"testing"})
	a.Equal([]logrus.Level{logrus.ErrorLevel}, h.Levels())

	e := logrus.NewEntry(logrus.New())
	a.NoError(h.Fire(e))

	for _, v := range e.Data {
		a.NotContains(v, "testing.tRunner")
	}
}
