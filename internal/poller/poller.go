package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Poller invokes a refresh callback on a fixed interval. It is the stand-in
// for push delivery from the backend: server-driven job transitions become
// visible to the client on the next tick.
//
// Refreshes run on a single goroutine, so at most one refresh is ever in
// flight; a refresh that outlasts the interval simply delays the next tick
// instead of racing it.
type Poller struct {
	interval time.Duration
	refresh  func(ctx context.Context)
	log      *logrus.Logger

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

func New(interval time.Duration, refresh func(ctx context.Context), log *logrus.Logger) *Poller {
	return &Poller{interval: interval, refresh: refresh, log: log}
}

// Start begins the polling loop. Calling Start while already polling is a
// no-op, so screens regaining focus can restart it blindly.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quit != nil {
		return
	}
	p.quit = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.quit, p.done)
	p.log.WithField("interval", p.interval.String()).Info("poller started")
}

// Stop halts the polling loop and waits for any in-flight refresh to finish.
// Stopping an idle poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	quit, done := p.quit, p.done
	p.quit, p.done = nil, nil
	p.mu.Unlock()
	if quit == nil {
		return
	}
	close(quit)
	<-done
	p.log.Info("poller stopped")
}

// Running reports whether the loop is currently active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit != nil
}

func (p *Poller) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Refresh immediately so callers don't wait a full interval for the
	// first snapshot.
	p.runRefresh(quit)
	for {
		select {
		case <-ticker.C:
			p.runRefresh(quit)
		case <-quit:
			return
		}
	}
}

func (p *Poller) runRefresh(quit <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	p.refresh(ctx)
}
