// Package catchpanic turns panics in job and pipeline code into errors, so one
// bad video can't take a worker down with it.
package catchpanic

import (
	"fmt"

	"fknsrs.biz/p/vidscribe/internal/stackutil"
)

// PanicError is what a recovered panic turns into. Stack is captured while
// the panicking frames are still on it, minus the runtime's own frames.
type PanicError struct {
	Value interface{}
	Stack []string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func Catch(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{
				Value: v,
				Stack: stackutil.Format(stackutil.Without(stackutil.Capture(64, 1), "runtime/", "catchpanic.Catch")),
			}
		}
	}()

	fn()

	return nil
}

func CatchErr(fn func() error) error {
	var err error
	if perr := Catch(func() { err = fn() }); perr != nil {
		return perr
	}

	return err
}

func CatchValue[T any](fn func() (T, error)) (T, error) {
	var v T
	var err error
	if perr := Catch(func() { v, err = fn() }); perr != nil {
		return v, perr
	}

	return v, err
}
