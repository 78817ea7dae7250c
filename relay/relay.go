package relay

import (
	"github.com/qtwebview2/webwidget/bridge"
	"github.com/qtwebview2/webwidget/internal/monitoring"
)

// Handlers are the widget-side receivers. They always run on the loop
// goroutine; a nil handler drops its channel's events.
type Handlers struct {
	// InitDone fires once when the native control finishes (or fails)
	// initialization.
	InitDone func(ok bool, errMsg string)

	// WebMessage carries one raw envelope posted by page script.
	WebMessage func(raw string)

	// EvalResult carries a script-evaluation completion for the
	// correlation table.
	EvalResult func(callID, resultJSON string)

	// AsyncResult settles the page-side promise for an async API call.
	AsyncResult func(payload bridge.Payload, callID string)

	// ExecScript requests execution of script in the page.
	ExecScript func(script string)
}

// Relay forwards events raised on arbitrary goroutines to handlers running
// on the loop goroutine. Emits never block and preserve per-channel order:
// two emits on the same channel from the same goroutine are handled in
// emit order.
type Relay struct {
	loop    *Loop
	h       Handlers
	metrics *monitoring.Metrics
}

// New creates a relay delivering onto loop.
func New(loop *Loop, h Handlers, metrics *monitoring.Metrics) *Relay {
	return &Relay{loop: loop, h: h, metrics: metrics}
}

// Loop returns the loop this relay delivers onto.
func (r *Relay) Loop() *Loop {
	return r.loop
}

// EmitInitDone reports initialization completion.
func (r *Relay) EmitInitDone(ok bool, errMsg string) {
	if r.h.InitDone == nil {
		return
	}
	r.metrics.RecordSignal("init_done")
	r.loop.Post(func() { r.h.InitDone(ok, errMsg) })
}

// EmitWebMessage forwards one raw envelope from the page.
func (r *Relay) EmitWebMessage(raw string) {
	if r.h.WebMessage == nil {
		return
	}
	r.metrics.RecordSignal("web_message")
	r.loop.Post(func() { r.h.WebMessage(raw) })
}

// EmitEvalResult forwards a script-evaluation completion.
func (r *Relay) EmitEvalResult(callID, resultJSON string) {
	if r.h.EvalResult == nil {
		return
	}
	r.metrics.RecordSignal("eval_result")
	r.loop.Post(func() { r.h.EvalResult(callID, resultJSON) })
}

// EmitAsyncResult forwards an async API completion.
func (r *Relay) EmitAsyncResult(payload bridge.Payload, callID string) {
	if r.h.AsyncResult == nil {
		return
	}
	r.metrics.RecordSignal("async_result")
	r.loop.Post(func() { r.h.AsyncResult(payload, callID) })
}

// EmitExecScript requests script execution in the page.
func (r *Relay) EmitExecScript(script string) {
	if r.h.ExecScript == nil {
		return
	}
	r.metrics.RecordSignal("exec_script")
	r.loop.Post(func() { r.h.ExecScript(script) })
}
