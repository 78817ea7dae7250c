// Package remote implements native.Engine against a real external browser:
// each control's page is served over HTTP with a postMessage shim that
// relays bridge envelopes through a WebSocket, and host-side script
// execution is pushed back down the same socket.
//
// Open the control's PageURL in any browser (or point a kiosk window at
// it) and the full bridge protocol runs against a real JS engine and DOM.
package remote

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/id"
	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/native"
)

// Engine hosts controls over one HTTP listener.
type Engine struct {
	log *logging.Logger
	srv *http.Server
	ln  net.Listener

	mu       sync.Mutex
	controls map[string]*Control
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New starts an engine listening on addr ("127.0.0.1:0" picks a free
// port).
func New(addr string, opts ...Option) (*Engine, error) {
	e := &Engine{controls: make(map[string]*Control)}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewNop()
	}
	e.log = e.log.Named("remote")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote engine listen: %w", err)
	}
	e.ln = ln

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/c/:id", e.servePage)
	router.GET("/c/:id/ws", e.serveSocket)
	router.Any("/c/:id/app/*rest", e.serveResource)

	e.srv = &http.Server{Handler: router}
	go func() {
		if err := e.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.log.Error("server stopped", zap.Error(err))
		}
	}()
	return e, nil
}

// Addr returns the bound listener address.
func (e *Engine) Addr() string {
	return e.ln.Addr().String()
}

// Factory adapts New to the native bootstrap contract.
func Factory(addr string, opts ...Option) native.EngineFactory {
	return func() (native.Engine, error) {
		return New(addr, opts...)
	}
}

// NewControl implements native.Engine.
func (e *Engine) NewControl() (native.Control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("remote engine closed")
	}
	cid := string(id.NewWidgetID())
	ctl := newRemoteControl(e, cid, e.log.With(zap.String("control_id", cid)))
	e.controls[cid] = ctl
	return ctl, nil
}

// Close implements native.Engine: disposes every control and stops the
// listener.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	controls := make([]*Control, 0, len(e.controls))
	for _, c := range e.controls {
		controls = append(controls, c)
	}
	e.mu.Unlock()

	for _, c := range controls {
		c.Dispose()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.srv.Shutdown(ctx)
}

func (e *Engine) control(cid string) *Control {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controls[cid]
}

func (e *Engine) drop(cid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.controls, cid)
}

func (e *Engine) servePage(c *gin.Context) {
	ctl := e.control(c.Param("id"))
	if ctl == nil {
		c.String(http.StatusNotFound, "no such control")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, ctl.renderPage())
}

func (e *Engine) serveSocket(c *gin.Context) {
	ctl := e.control(c.Param("id"))
	if ctl == nil {
		c.String(http.StatusNotFound, "no such control")
		return
	}
	ctl.handleSocket(c)
}

func (e *Engine) serveResource(c *gin.Context) {
	ctl := e.control(c.Param("id"))
	if ctl == nil {
		c.String(http.StatusNotFound, "no such control")
		return
	}
	ctl.serveResource(c)
}
