// Package safego runs fire-and-forget work, such as audit writes and shipper flush loops,
// on goroutines whose panics are logged instead of taking the server down.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic in fn is recovered and logged under task
// together with the stack; the goroutine then exits.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background task",
					"task", task,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
