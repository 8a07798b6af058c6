// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import (
	"log/slog"
	"sync"
)

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged rather than crashing the process. Use it for all fire-and-forget
// goroutines (event shipping, metadata publishing, job loops).
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}

// Group is a set of goroutines launched with Go that can be waited on at
// shutdown. The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go launches fn like the package-level Go and tracks it in the group.
// A panicking fn still counts as finished.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	Go(func() {
		defer g.wg.Done()
		fn()
	})
}

// Wait blocks until every goroutine launched through the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
