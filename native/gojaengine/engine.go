// Package gojaengine implements native.Engine on the goja JavaScript
// interpreter. There is no real browser: each control owns a goja runtime
// on a dedicated goroutine, runs the document-created scripts and page
// scripts for real, and raises events to its handlers from that goroutine.
//
// It exists for tests and headless demos: the full bridge protocol (proxy
// calls, promise settlement, script evaluation results, resource
// interception) runs end to end without a display or a browser install.
package gojaengine

import (
	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/native"
)

// Engine mints in-process goja-backed controls.
type Engine struct {
	log *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and its controls.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewNop()
	}
	return e
}

// Factory adapts New to the native bootstrap contract. The goja runtime is
// always available, so the factory never fails.
func Factory(opts ...Option) native.EngineFactory {
	return func() (native.Engine, error) {
		return New(opts...), nil
	}
}

// NewControl implements native.Engine.
func (e *Engine) NewControl() (native.Control, error) {
	return newControl(e.log.Named("goja")), nil
}

// Close implements native.Engine.
func (e *Engine) Close() error { return nil }
