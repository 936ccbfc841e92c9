package suggest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const dispatchQueueSize = 8

// Result pairs a request with the assistant's answer or error.
type Result struct {
	Request    Request
	Suggestion Suggestion
	Err        error
	Elapsed    time.Duration
}

// Dispatcher calls a Suggester off the caller's goroutine. Requests are
// handled one at a time, in order; the core never retries.
type Dispatcher struct {
	s       Suggester
	log     *zap.Logger
	queue   chan Request
	results chan Result
}

// NewDispatcher returns a dispatcher for s. Call Run to start it.
func NewDispatcher(s Suggester, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		s:       s,
		log:     log,
		queue:   make(chan Request, dispatchQueueSize),
		results: make(chan Result, dispatchQueueSize),
	}
}

// Enqueue queues req without blocking. It returns false when the queue is
// full and the request was dropped.
func (d *Dispatcher) Enqueue(req Request) bool {
	select {
	case d.queue <- req:
		return true
	default:
		d.log.Warn("suggest queue full, dropping request", zap.String("command", req.Command))
		return false
	}
}

// Results delivers one Result per handled request. It is closed when Run
// returns.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Run handles queued requests until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.results)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			start := time.Now()
			sg, err := d.s.Suggest(ctx, req)
			res := Result{Request: req, Suggestion: sg, Err: err, Elapsed: time.Since(start)}
			if err != nil {
				d.log.Info("suggestion failed", zap.String("kind", string(req.Kind)), zap.Error(err))
			} else {
				d.log.Debug("suggestion ready", zap.String("kind", string(req.Kind)), zap.Duration("elapsed", res.Elapsed))
			}
			select {
			case d.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}
