// Package shutdown runs registered teardown functions exactly once.
//
// A termination signal only runs the closers registered with RegisterOnSignal,
// such as a browser that would otherwise outlive the process. Everything else
// waits for Close, so in-flight work can still reach its sinks after the run
// context is cancelled.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

type closer struct {
	name     string
	fn       func() error
	onSignal bool
}

// Registry collects closers and runs them in reverse registration order.
type Registry struct {
	mu      sync.Mutex
	closers []closer
	done    bool
	once    sync.Once
	err     error
	logger  *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register adds fn under name. It runs on Close only. Closers registered
// after Close has run are ignored.
func (r *Registry) Register(name string, fn func() error) {
	r.register(name, fn, false)
}

// RegisterOnSignal adds fn under name. It runs on the first termination
// signal seen by NotifyContext and again, as a no-op, on Close.
func (r *Registry) RegisterOnSignal(name string, fn func() error) {
	r.register(name, fn, true)
}

func (r *Registry) register(name string, fn func() error, onSignal bool) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		r.logger.Warn("closer registered after shutdown", zap.String("name", name))
		return
	}
	r.closers = append(r.closers, closer{name: name, fn: sync.OnceValue(fn), onSignal: onSignal})
}

// Interrupt runs the closers registered with RegisterOnSignal, last
// registered first. The rest are left for Close.
func (r *Registry) Interrupt() error {
	r.mu.Lock()
	var closers []closer
	for _, c := range r.closers {
		if c.onSignal {
			closers = append(closers, c)
		}
	}
	r.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := run(closers[i]); err != nil {
			r.logger.Error("interrupt step failed", zap.String("name", closers[i].name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close runs every closer once, last registered first. A failing or panicking
// closer does not stop the others. Later calls return the first result.
func (r *Registry) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		closers := r.closers
		r.closers = nil
		r.done = true
		r.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := run(c); err != nil {
				r.logger.Error("shutdown step failed", zap.String("name", c.name), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			r.logger.Debug("shutdown step complete", zap.String("name", c.name))
		}
		r.err = errors.Join(errs...)
	})
	return r.err
}

func run(c closer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: panic: %v", c.name, rec)
		}
	}()
	if ferr := c.fn(); ferr != nil {
		return fmt.Errorf("%s: %w", c.name, ferr)
	}
	return nil
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. The first
// signal also runs Interrupt so open browser sessions are torn down while the
// caller drains its work. The returned stop function releases the signal
// handler.
func (r *Registry) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
			if err := r.Interrupt(); err != nil {
				r.logger.Error("interrupt failed", zap.Error(err))
			}
		case <-done:
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
		})
	}
	return ctx, stop
}
