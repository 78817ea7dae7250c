// Package widget owns the lifecycle of one embedded browser instance:
// deferred initialization, the pre-readiness call queue, resize throttling,
// visibility sync, the JS bridge wiring, and disposal.
//
// All widget state lives on a single goroutine (the relay loop). Public
// methods are safe to call from anywhere; they post onto that goroutine and
// return without waiting.
package widget

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/bridge"
	"github.com/qtwebview2/webwidget/internal/id"
	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/internal/monitoring"
	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/relay"
)

// resizeThrottle bounds physical resizes to roughly once per frame at 60Hz.
const resizeThrottle = 16 * time.Millisecond

// State is the widget lifecycle phase.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// queuedCall is one public operation recorded before readiness.
type queuedCall struct {
	method string
	run    func()
}

// Widget embeds one browser control in a Host.
type Widget struct {
	cfg     Config
	host    Host
	engine  native.Engine
	log     *logging.Logger
	metrics *monitoring.Metrics
	id      id.WidgetID

	loop    *relay.Loop
	ownLoop bool
	relay   *relay.Relay

	dispatcher  *bridge.Dispatcher
	correlation *bridge.Correlation

	// Mounted WSGI applications: written by ServeWSGI, read on the
	// engine's capture thread.
	appsMu sync.RWMutex
	apps   []mountedApp

	// Everything below is touched only on the loop goroutine.
	state        State
	control      native.Control
	queue        []queuedCall
	resizeTimer  *time.Timer
	pendW, pendH int
	haveResize   bool
}

// Option configures a Widget.
type Option func(*Widget)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *logging.Logger) Option {
	return func(w *Widget) { w.log = log }
}

// WithMetrics attaches metrics. Nil metrics are valid and record nothing.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(w *Widget) { w.metrics = m }
}

// WithLoop shares an existing UI loop instead of starting a dedicated one.
// The caller keeps ownership: Dispose will not close a shared loop.
func WithLoop(loop *relay.Loop) Option {
	return func(w *Widget) { w.loop = loop }
}

// New creates a widget over host and engine. Unless cfg.LazyLoad is set,
// initialization starts immediately; with LazyLoad it waits for the first
// ShowEvent.
func New(host Host, engine native.Engine, cfg Config, opts ...Option) (*Widget, error) {
	if host == nil {
		return nil, errors.New("widget: nil host")
	}
	if engine == nil {
		return nil, errors.New("widget: nil engine")
	}

	w := &Widget{
		cfg:         cfg,
		host:        host,
		engine:      engine,
		id:          id.NewWidgetID(),
		correlation: bridge.NewCorrelation(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logging.NewNop()
	}
	w.log = w.log.Named("widget").With(zap.String("widget_id", string(w.id)))

	if w.loop == nil {
		w.loop = relay.NewLoop()
		w.ownLoop = true
	}
	w.relay = relay.New(w.loop, relay.Handlers{
		InitDone:    w.onInitDone,
		WebMessage:  w.onWebMessage,
		EvalResult:  w.settleEval,
		AsyncResult: w.onAsyncResult,
		ExecScript:  w.execNow,
	}, w.metrics)

	api := cfg.api()
	if api == nil {
		api = bridge.NewRegistry(nil)
	}
	w.dispatcher = bridge.NewDispatcher(api, w.log, w.metrics)

	if !cfg.LazyLoad {
		w.loop.Post(w.initNow)
	}
	return w, nil
}

// ID returns the widget's log identifier.
func (w *Widget) ID() string { return string(w.id) }

// Loop returns the goroutine all widget state lives on.
func (w *Widget) Loop() *relay.Loop { return w.loop }

// State reports the current lifecycle phase.
func (w *Widget) State() State {
	var s State
	if err := w.loop.Call(func() { s = w.state }); err != nil {
		return Disposed
	}
	return s
}

// LoadURL navigates to url, queueing if the control is not ready yet.
func (w *Widget) LoadURL(url string) {
	w.loop.Post(func() {
		w.runOrQueue("load_url", func() {
			if err := w.control.Navigate(url); err != nil {
				w.log.Warn("navigation failed", zap.String("url", url), zap.Error(err))
			}
		})
	})
}

// LoadHTML renders the given markup directly, queueing if not ready.
func (w *Widget) LoadHTML(html string) {
	w.loop.Post(func() {
		w.runOrQueue("load_html", func() {
			if err := w.control.NavigateToString(html); err != nil {
				w.log.Warn("html load failed", zap.Error(err))
			}
		})
	})
}

// EvaluateJS runs script in the page and, when callback is non-nil,
// delivers its completion. The callback runs on the widget goroutine, at
// most once; if the page navigates away before completing, it never runs.
func (w *Widget) EvaluateJS(script string, callback bridge.EvalCallback) {
	w.loop.Post(func() {
		callID := string(id.NewCallID())
		if callback != nil {
			w.correlation.Put(callID, callback)
			w.metrics.SetPendingEvals(w.correlation.Len())
		}
		wrapped := bridge.EvalWrapper(script, callID)
		w.runOrQueue("evaluate_js", func() { w.execNow(wrapped) })
	})
}

// ShowEvent must be forwarded by the host when the widget becomes visible.
// The first show starts lazy initialization.
func (w *Widget) ShowEvent() {
	w.loop.Post(func() {
		if w.state == Uninitialized {
			w.initNow()
		}
		if w.state == Ready {
			w.control.SetVisible(true)
		}
	})
}

// HideEvent must be forwarded by the host when the widget is hidden.
func (w *Widget) HideEvent() {
	w.loop.Post(func() {
		if w.state == Ready {
			w.control.SetVisible(false)
		}
	})
}

// ResizeEvent records new logical dimensions and re-arms the throttle
// timer; only the timer's fire resizes the native surface, so a burst of
// events coalesces into one physical resize at the latest dimensions.
func (w *Widget) ResizeEvent(width, height int) {
	w.loop.Post(func() {
		w.pendW, w.pendH = width, height
		w.haveResize = true
		w.metrics.RecordResizeEvent()
		if w.resizeTimer == nil {
			w.resizeTimer = time.AfterFunc(resizeThrottle, func() {
				w.loop.Post(w.firePhysicalResize)
			})
			return
		}
		w.resizeTimer.Reset(resizeThrottle)
	})
}

// HasFocus reports whether the browser surface holds input focus.
func (w *Widget) HasFocus() bool {
	var focused bool
	w.loop.Call(func() {
		if w.state == Ready {
			focused = w.control.HasFocus()
		}
	})
	return focused
}

// Dispose tears the widget down. Idempotent; safe from any goroutine
// except the widget's own.
func (w *Widget) Dispose() {
	w.loop.Call(w.disposeNow)
	if w.ownLoop {
		w.loop.Close()
	}
}

// initNow runs on the loop goroutine and starts native initialization.
func (w *Widget) initNow() {
	if w.state != Uninitialized {
		return
	}
	w.state = Initializing
	w.log.Info("initializing webview")

	ctl, err := w.engine.NewControl()
	if err != nil {
		w.relay.EmitInitDone(false, err.Error())
		return
	}
	w.control = ctl

	props := native.CreationProperties{
		UserDataFolder:      resolveUserDataFolder(w.cfg),
		DisableLocalStorage: w.cfg.DisableLocalStorage,
		Transparent:         w.cfg.Transparent,
		BackgroundColor:     w.cfg.BackgroundColor,
	}
	handlers := native.Handlers{
		InitializationCompleted: w.relay.EmitInitDone,
		WebMessageReceived:      w.relay.EmitWebMessage,
		NewWindowRequested:      w.onNewWindow,
		DOMContentLoaded:        w.onDOMContentLoaded,
		WebResourceRequested:    w.handleResource,
	}
	if err := ctl.Initialize(props, handlers); err != nil {
		w.relay.EmitInitDone(false, err.Error())
	}
}

// onInitDone finishes (or fails) initialization on the loop goroutine.
func (w *Widget) onInitDone(ok bool, errMsg string) {
	if w.state != Initializing {
		return
	}
	if !ok {
		w.failInit(&InitError{Message: errMsg})
		return
	}

	if err := w.control.AddScriptOnDocumentCreated(bridge.ClientScript); err != nil {
		w.failInit(&InitError{Message: "installing client script", Err: err})
		return
	}
	settings := native.Settings{
		ScriptEnabled:          true,
		WebMessageEnabled:      true,
		DefaultScriptDialogs:   true,
		DevToolsEnabled:        w.cfg.Debug,
		AcceleratorKeysEnabled: w.cfg.Debug,
		ContextMenusEnabled:    w.cfg.ContextMenus,
		UserAgent:              w.cfg.UserAgent,
	}
	if err := w.control.ApplySettings(settings); err != nil {
		w.failInit(&InitError{Message: "applying settings", Err: err})
		return
	}
	if err := w.host.Reparent(w.control.WindowHandle()); err != nil {
		w.log.Warn("reparenting browser surface failed", zap.Error(err))
	}

	w.control.SetVisible(w.host.Visible())
	w.state = Ready
	width, height := w.host.Size()
	w.pendW, w.pendH = width, height
	w.haveResize = true
	w.firePhysicalResize()

	if w.cfg.URL != "" {
		if err := w.control.Navigate(w.cfg.URL); err != nil {
			w.log.Warn("initial navigation failed",
				zap.String("url", w.cfg.URL), zap.Error(err))
		}
	}

	w.log.Info("webview ready", zap.Int("queued_calls", len(w.queue)))
	queue := w.queue
	w.queue = nil
	for _, qc := range queue {
		w.log.Debug("replaying queued call", zap.String("method", qc.method))
		qc.run()
	}
}

// failInit tears down after an initialization failure. Terminal.
func (w *Widget) failInit(err *InitError) {
	w.log.Error("webview initialization failed", zap.Error(err))
	w.state = Failed
	if w.control != nil {
		w.control.Dispose()
		w.control = nil
	}
	w.queue = nil
	if w.cfg.OnInitFailure != nil {
		w.cfg.OnInitFailure(err)
	}
}

// runOrQueue executes fn now when ready, or records it for replay.
func (w *Widget) runOrQueue(method string, fn func()) {
	switch w.state {
	case Ready:
		fn()
	case Uninitialized, Initializing:
		w.queue = append(w.queue, queuedCall{method: method, run: fn})
		w.metrics.RecordQueuedCall()
		w.log.Debug("queueing call until webview is ready", zap.String("method", method))
	default:
		w.log.Warn("dropping call on dead widget",
			zap.String("method", method), zap.String("state", w.state.String()))
	}
}

// onWebMessage dispatches one raw envelope from the page.
func (w *Widget) onWebMessage(raw string) {
	w.dispatcher.HandleRaw(raw, w)
}

// onAsyncResult settles the page promise for an async API completion.
func (w *Widget) onAsyncResult(payload bridge.Payload, callID string) {
	w.relay.EmitExecScript(bridge.ResponseScript(callID, payload))
}

// settleEval pops and invokes the evaluation callback for callID. Results
// for unknown ids are dropped.
func (w *Widget) settleEval(callID, resultJSON string) {
	cb, ok := w.correlation.Pop(callID)
	w.metrics.SetPendingEvals(w.correlation.Len())
	if !ok {
		w.log.Debug("discarding evaluation result with no pending callback",
			zap.String("call_id", callID))
		return
	}
	res, err := bridge.DecodeEvalResult(resultJSON)
	if err != nil {
		w.log.Warn("undecodable evaluation result",
			zap.String("call_id", callID), zap.Error(err))
		return
	}
	cb(res)
}

// execNow runs script in the page. Loop goroutine only.
func (w *Widget) execNow(script string) {
	if w.state != Ready {
		w.log.Debug("dropping script for non-ready webview",
			zap.String("state", w.state.String()))
		return
	}
	if err := w.control.ExecuteScript(script); err != nil {
		w.log.Warn("script execution failed", zap.Error(err))
	}
}

// firePhysicalResize applies the latest recorded dimensions at the owning
// window's device pixel ratio, falling back to the widget's own.
func (w *Widget) firePhysicalResize() {
	if w.state != Ready || !w.haveResize {
		return
	}
	ratio, ok := w.host.WindowDevicePixelRatio()
	if !ok {
		ratio = w.host.DevicePixelRatio()
	}
	w.control.Resize(int(float64(w.pendW)*ratio), int(float64(w.pendH)*ratio))
	w.metrics.RecordPhysicalResize()
}

// onNewWindow runs on the engine's worker thread.
func (w *Widget) onNewWindow(uri string) bool {
	if !w.cfg.OpenNewWindowInBrowser {
		return false
	}
	if err := w.host.OpenExternal(uri); err != nil {
		w.log.Warn("opening external browser failed",
			zap.String("uri", uri), zap.Error(err))
	}
	return true
}

// onDOMContentLoaded runs on the engine's worker thread.
func (w *Widget) onDOMContentLoaded() {
	if w.cfg.OnDOMContentLoaded == nil {
		return
	}
	w.loop.Post(w.cfg.OnDOMContentLoaded)
}

// disposeNow runs on the loop goroutine. Idempotent.
func (w *Widget) disposeNow() {
	if w.state == Disposed {
		return
	}
	if w.resizeTimer != nil {
		w.resizeTimer.Stop()
		w.resizeTimer = nil
	}
	if w.control != nil {
		w.control.Dispose()
		w.control = nil
	}
	w.queue = nil
	w.state = Disposed
	w.log.Info("webview disposed")
}

// bridge.Sink implementation. The dispatcher always invokes these on the
// loop goroutine except CompleteAsync, which crosses back via the relay.

// DeliverEvalResult routes a script-evaluation completion to the
// correlation table.
func (w *Widget) DeliverEvalResult(callID, resultJSON string) {
	w.relay.EmitEvalResult(callID, resultJSON)
}

// ReturnToJS settles the page promise for a synchronous API call.
func (w *Widget) ReturnToJS(payload bridge.Payload, callID string) {
	w.relay.EmitExecScript(bridge.ResponseScript(callID, payload))
}

// CompleteAsync settles the page promise for an async API call. Safe from
// any goroutine.
func (w *Widget) CompleteAsync(payload bridge.Payload, callID string) {
	w.relay.EmitAsyncResult(payload, callID)
}
