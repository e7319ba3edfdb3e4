package lifecycle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickFunc is called once per loop tick with the clock's current time.
type TickFunc func(now time.Time)

// Loop drives a TickFunc at a fixed interval on its own goroutine. Start and
// Stop may be called any number of times, in any order.
type Loop struct {
	clock    clockwork.Clock
	interval time.Duration
	tick     TickFunc

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewLoop creates a stopped Loop.
func NewLoop(clock clockwork.Clock, interval time.Duration, tick TickFunc) *Loop {
	return &Loop{clock: clock, interval: interval, tick: tick}
}

// Start begins ticking. It reports false if the loop was already running.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return false
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	ticker := l.clock.NewTicker(l.interval)
	go l.run(ticker, l.stop, l.done)
	return true
}

// Stop halts the loop and waits for an in-flight tick to return. No tick
// starts after Stop returns. Stop must not be called from inside the TickFunc.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

func (l *Loop) run(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.Chan():
			// A stop racing a tick wins.
			select {
			case <-stop:
				return
			default:
			}
			l.tick(now)
		}
	}
}
