package wsgi

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/internal/monitoring"
	"github.com/qtwebview2/webwidget/stream"
)

// Protocol violations surfaced by the adapter. All of them collapse to the
// synthesized 500 response; they exist as sentinels so applications and
// tests can distinguish them.
var (
	ErrWriteBeforeStart  = errors.New("write() called before start_response()")
	ErrHeadersAlreadySet = errors.New("headers already set")
	ErrStartNotCalled    = errors.New("application did not call start_response()")
)

// WriteFunc buffers response bytes produced before the body iterable. It is
// the legacy imperative escape hatch of the calling contract.
type WriteFunc func(data []byte) error

// StartResponse begins the response. It may be called at most once, unless
// excInfo is non-nil and no bytes have been sent yet, in which case the
// application is reporting an error and restarting the response. When
// excInfo is non-nil and headers were already flushed, the carried error is
// returned so it propagates.
type StartResponse func(status string, headers []Header, excInfo error) (WriteFunc, error)

// App is the application side of the calling contract: it receives the
// request environ and a StartResponse, and returns the body as a lazy chunk
// sequence. Returning an error (or panicking) yields the synthesized 500.
type App func(environ Environ, startResponse StartResponse) (stream.Source, error)

// responseState tracks one response through the calling contract.
type responseState struct {
	status      string
	headers     []Header
	headersSet  bool
	headersSent bool
	prewrite    [][]byte
}

// write buffers bytes produced imperatively by the application. Calling it
// before startResponse is a protocol violation.
func (rs *responseState) write(data []byte) error {
	if !rs.headersSet {
		return ErrWriteBeforeStart
	}
	rs.prewrite = append(rs.prewrite, data)
	return nil
}

// startResponse implements the StartResponse contract for one request.
func (rs *responseState) startResponse(status string, headers []Header, excInfo error) (WriteFunc, error) {
	if excInfo != nil {
		if rs.headersSent {
			// Too late to change anything: propagate the application's
			// original error.
			return nil, excInfo
		}
		// Error before any bytes were sent: the response restarts.
	} else if rs.headersSet {
		return nil, ErrHeadersAlreadySet
	}
	rs.status = status
	rs.headers = headers
	rs.headersSet = true
	return rs.write, nil
}

// Adapter translates extracted request records into application invocations
// and back into streamable responses.
type Adapter struct {
	app     App
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(log *logging.Logger) Option {
	return func(a *Adapter) { a.log = log.Named("wsgi") }
}

// WithMetrics sets the adapter's metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter creates an adapter around the given application.
func NewAdapter(app App, opts ...Option) *Adapter {
	a := &Adapter{app: app, log: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessRequest invokes the application for one request and returns the
// response triple. Any application failure, protocol violation, or panic is
// converted into a 500 Internal Server Error; this method never fails.
//
// The returned body chains bytes buffered through write() ahead of the
// application's own iterable and closes that iterable exactly once, at end
// of iteration or on early Close.
func (a *Adapter) ProcessRequest(rec RequestRecord) (status string, headers []Header, body stream.Source) {
	environ := BuildEnviron(rec)

	rs := &responseState{}
	var appBody stream.Source

	err := a.callApp(environ, rs.startResponse, &appBody)
	if err == nil && !rs.headersSet {
		err = ErrStartNotCalled
	}

	if err != nil {
		a.log.Error("application crashed",
			zap.String("method", rec.Method),
			zap.String("uri", rec.URI),
			zap.Error(err))
		closeQuietly(appBody, a.log)
		a.metrics.RecordRequest(rec.Method, "500")
		return internalServerError()
	}

	rs.headersSent = true
	a.metrics.RecordRequest(rec.Method, statusCode(rs.status))

	combined := &chainSource{pre: rs.prewrite, body: appBody}
	return rs.status, rs.headers, newClosingSource(combined, appBody, a.log)
}

// callApp runs the application with panic containment.
func (a *Adapter) callApp(environ Environ, sr StartResponse, body *stream.Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application panic: %v", r)
		}
	}()
	*body, err = a.app(environ, sr)
	return err
}

// internalServerError is the synthesized crash response.
func internalServerError() (string, []Header, stream.Source) {
	return "500 Internal Server Error",
		[]Header{{Name: "Content-Type", Value: "text/plain"}},
		stream.Chunks([]byte("Internal Server Error"))
}

// statusCode extracts the numeric part of a "<code> <reason>" status line.
func statusCode(status string) string {
	for i := 0; i < len(status); i++ {
		if status[i] == ' ' {
			return status[:i]
		}
	}
	return status
}
