// Package hammer runs a test body from many goroutines released at once,
// to shake out races on state shared between generation sessions.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer calls a body P times N: P goroutines each loop N times.
//
//	hammer.New(t, 8, 100).Run(func(p, n int) {
//		typ := reg.MustLookup(fmt.Sprintf("org.example.C%d", n))
//		...
//	})
//	if t.Failed() {
//		return
//	}
type Hammer struct {
	t    *testing.T
	P, N int
}

// New returns a Hammer, scaled down by -test.short.
func New(t *testing.T, p, n int) *Hammer {
	if testing.Short() {
		p, n = max(p/2, 2), max(n/10, 1)
	}
	return &Hammer{t: t, P: p, N: n}
}

// Run starts the goroutines, waits until all of them are parked on a
// shared gate, then opens it. Panics in body fail the test instead of
// crashing the binary.
func (h *Hammer) Run(body func(p, n int)) {
	// Fewer procs than goroutines forces them to switch cores.
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(max(h.P/2, 1)))

	gate := make(chan struct{})
	var ready, done sync.WaitGroup
	ready.Add(h.P)
	done.Add(h.P)
	for p := 0; p < h.P; p++ {
		go func(p int) {
			defer done.Done()
			defer func() {
				if r := recover(); r != nil {
					h.t.Error(r)
				}
			}()
			ready.Done()
			<-gate
			for n := 0; n < h.N; n++ {
				body(p, n)
			}
		}(p)
	}
	ready.Wait()
	close(gate)
	done.Wait()
}
