package catchpanic

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTest = fmt.Errorf("test_error")

func TestCatchErr(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fn      func() error
		err     string
		isPanic bool
	}{
		{"ok", func() error { return nil }, "", false},
		{"returned error", func() error { return errTest }, "test_error", false},
		{"panicked error", func() error { panic(errTest) }, "panic: test_error", true},
		{"panicked string", func() error { panic("test_error") }, "panic: test_error", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			err := CatchErr(tc.fn)
			if tc.err == "" {
				a.NoError(err)
				return
			}

			a.EqualError(err, tc.err)

			var pe *PanicError
			a.Equal(tc.isPanic, errors.As(err, &pe))
		})
	}
}

func TestCatchValue(t *testing.T) {
	a := assert.New(t)

	v, err := CatchValue(func() (string, error) { return "result", nil })
	a.NoError(err)
	a.Equal("result", v)

	v, err = CatchValue(func() (string, error) { return "partial", errTest })
	a.ErrorIs(err, errTest)
	a.Equal("partial", v)

	v, err = CatchValue(func() (string, error) { panic("nope") })
	a.EqualError(err, "panic: nope")
	a.Equal("", v)
}

func panicsDeepInside() {
	var m map[string]int
	m["x"] = 1
}

func TestCatchKeepsStack(t *testing.T) {
	a := assert.New(t)

	err := Catch(panicsDeepInside)

	var pe *PanicError
	if a.ErrorAs(err, &pe) && a.NotEmpty(pe.Stack) {
		a.Contains(pe.Stack[0], "panicsDeepInside")
		a.NotContains(strings.Join(pe.Stack, "\n"), "runtime/panic.go")
	}
}

func TestCatchUnwrapsPanickedError(t *testing.T) {
	a := assert.New(t)

	a.ErrorIs(Catch(func() { panic(errTest) }), errTest)
	a.NoError(errors.Unwrap(Catch(func() { panic(42) })))
}
