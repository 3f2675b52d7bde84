package util

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/stakeport/stakeport/internal/logging"
)

// SafeGoWithName runs fn on a new goroutine, recovering and logging any panic
// together with the goroutine name and stack.
func SafeGoWithName(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("goroutine panic recovered",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}

// PanicError is returned by JoinAll for a task that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// JoinAll runs fn for every index in [0, n) concurrently and waits for all of
// them. It never fails fast: errs[i] holds the result of task i, and a panic
// in one task is converted to a *PanicError for that slot only.
func JoinAll(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &PanicError{Value: r}
				}
			}()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}
