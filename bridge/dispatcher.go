package bridge

import (
	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/internal/monitoring"
)

// Sink receives the dispatcher's outputs. The widget implements it on top
// of the signal relay so deliveries land on the right thread.
type Sink interface {
	// DeliverEvalResult routes a script-evaluation completion to the
	// correlation table. resultJSON is the envelope's params object.
	DeliverEvalResult(callID, resultJSON string)

	// ReturnToJS settles the page-side promise for callID with payload.
	// Called on the dispatching goroutine.
	ReturnToJS(payload Payload, callID string)

	// CompleteAsync settles the page-side promise for callID from an
	// arbitrary goroutine; implementations must be thread-safe.
	CompleteAsync(payload Payload, callID string)
}

// Dispatcher resolves incoming envelopes against the registered JS API.
// Invocation failures of any kind become {error} payloads; nothing escapes
// to crash the message loop.
type Dispatcher struct {
	api     Invoker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewDispatcher creates a dispatcher over the given API surface.
func NewDispatcher(api Invoker, log *logging.Logger, metrics *monitoring.Metrics) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{api: api, log: log.Named("bridge"), metrics: metrics}
}

// HandleRaw parses and dispatches one raw envelope. Malformed messages are
// logged and dropped without a response: the page-side promise for that
// call id simply never settles.
func (d *Dispatcher) HandleRaw(raw string, sink Sink) {
	msg, err := ParseMessage(raw)
	if err != nil {
		d.log.Warn("dropping invalid message from JS bridge",
			zap.String("message", raw), zap.Error(err))
		d.metrics.RecordMalformed()
		return
	}
	d.Handle(msg, sink)
}

// Handle dispatches one parsed envelope.
func (d *Dispatcher) Handle(msg Message, sink Sink) {
	switch msg.Name {
	case CallbackName:
		resultJSON, err := MarshalParams(msg.Params)
		if err != nil {
			d.log.Warn("dropping unserializable evaluation result",
				zap.String("id", msg.ID), zap.Error(err))
			d.metrics.RecordMalformed()
			return
		}
		sink.DeliverEvalResult(msg.ID, resultJSON)

	case CallName:
		args, ok := msg.ArgList()
		if !ok || len(args) == 0 {
			d.log.Warn("dropping call indirection without a target name",
				zap.String("id", msg.ID))
			d.metrics.RecordMalformed()
			return
		}
		name, ok := args[0].(string)
		if !ok {
			d.log.Warn("dropping call indirection with non-string target",
				zap.String("id", msg.ID))
			d.metrics.RecordMalformed()
			return
		}
		d.Handle(Message{Name: name, Params: args[1:], ID: msg.ID}, sink)

	default:
		d.invoke(msg, sink)
	}
}

// invoke runs a registered API target and routes its result.
func (d *Dispatcher) invoke(msg Message, sink Sink) {
	args, ok := msg.ArgList()
	if !ok {
		d.log.Warn("dropping invocation with non-array params",
			zap.String("name", msg.Name), zap.String("id", msg.ID))
		d.metrics.RecordMalformed()
		return
	}

	d.log.Debug("executing JS API function",
		zap.String("name", msg.Name), zap.String("id", msg.ID))

	outcome, err := d.api.Invoke(msg.Name, args)
	if err != nil {
		d.log.Error("JS API function failed",
			zap.String("name", msg.Name), zap.Error(err))
		d.metrics.RecordDispatch("error")
		sink.ReturnToJS(ErrorPayload(err.Error()), msg.ID)
		return
	}

	if outcome.Async != nil {
		d.metrics.RecordDispatch("async")
		callID := msg.ID
		complete := func(result any, err error) {
			if err != nil {
				sink.CompleteAsync(ErrorPayload(err.Error()), callID)
				return
			}
			sink.CompleteAsync(ResultPayload(result), callID)
		}
		outcome.Async(complete, args...)
		return
	}

	d.metrics.RecordDispatch("ok")
	sink.ReturnToJS(ResultPayload(outcome.Value), msg.ID)
}
