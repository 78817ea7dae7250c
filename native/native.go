// Package native defines the interfaces through which the widget host talks
// to an embedded browser runtime.
//
// Everything here is an external collaborator: the real runtime (WebView2,
// WebKit, a remote tab) lives behind Engine and Control. Event handlers are
// invoked by the runtime on whatever thread it owns; the widget layer is
// responsible for crossing back to the UI goroutine.
package native

import (
	"io"
)

// CreationProperties carries per-control construction options.
type CreationProperties struct {
	// UserDataFolder is the browser profile directory. Empty means the
	// engine's default. Ignored when DisableLocalStorage is set.
	UserDataFolder      string
	DisableLocalStorage bool

	// Transparent requests an alpha-capable surface. Mutually exclusive in
	// effect with BackgroundColor.
	Transparent     bool
	BackgroundColor string // CSS color string, empty for engine default
}

// Settings mirrors the runtime's per-instance switches, applied once the
// core is initialized.
type Settings struct {
	ScriptEnabled          bool
	WebMessageEnabled      bool
	DefaultScriptDialogs   bool
	DevToolsEnabled        bool
	AcceleratorKeysEnabled bool
	ContextMenusEnabled    bool
	UserAgent              string // empty keeps the engine default
}

// WindowHandle is an opaque native window identifier (HWND, X11 window,
// wl_surface...). Zero means "no native window".
type WindowHandle uintptr

// Handlers receives runtime events. All callbacks may run on a non-UI
// worker thread owned by the runtime; implementations must not touch widget
// state directly.
type Handlers struct {
	// InitializationCompleted reports async core initialization. On failure
	// errMsg carries the runtime's diagnostic.
	InitializationCompleted func(success bool, errMsg string)

	// WebMessageReceived delivers one postMessage envelope as raw JSON.
	WebMessageReceived func(messageJSON string)

	// NewWindowRequested fires for window.open and target=_blank
	// navigations. Returning true marks the request handled, suppressing
	// the in-browser popup.
	NewWindowRequested func(uri string) (handled bool)

	// DOMContentLoaded fires when the current document finishes parsing.
	DOMContentLoaded func()

	// WebResourceRequested fires for intercepted resource loads matching an
	// installed filter. The ResourceRequest is only valid for the duration
	// of the callback; extract everything synchronously.
	WebResourceRequested func(req ResourceRequest) *Response
}

// HeaderPair is one request header as received, case preserved.
type HeaderPair struct {
	Name  string
	Value string
}

// ResourceRequest is an intercepted browser request. Implementations may be
// backed by native objects that become invalid once the capturing callback
// returns.
type ResourceRequest interface {
	URI() string
	Method() string
	Headers() []HeaderPair
	// Body returns the request body reader, or nil when there is none.
	Body() io.Reader
}

// Response answers an intercepted request in place of a network fetch.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      []HeaderPair
	// Body is streamed by the engine with sequential reads and closed when
	// delivery finishes.
	Body io.ReadCloser
}

// Control is one live browser instance embedded in a host widget.
type Control interface {
	// Initialize starts asynchronous core initialization. Completion is
	// reported through Handlers.InitializationCompleted.
	Initialize(props CreationProperties, handlers Handlers) error

	// ApplySettings configures the initialized core. Only valid after a
	// successful InitializationCompleted.
	ApplySettings(s Settings) error

	// AddScriptOnDocumentCreated installs script run at the start of every
	// page load, surviving navigation.
	AddScriptOnDocumentCreated(script string) error

	// AddResourceRequestedFilter enables WebResourceRequested callbacks for
	// URIs matching the pattern ("*" wildcards).
	AddResourceRequestedFilter(pattern string) error

	Navigate(url string) error
	NavigateToString(html string) error

	// ExecuteScript runs script in the page context, fire-and-forget.
	ExecuteScript(script string) error

	// WindowHandle returns the native window of the browser surface, for
	// reparenting under the host widget.
	WindowHandle() WindowHandle

	SetVisible(visible bool)
	Resize(width, height int)

	// HasFocus reports whether the browser surface currently holds input
	// focus.
	HasFocus() bool

	// Dispose tears the instance down. Idempotent.
	Dispose()
}

// Engine is a process-wide browser runtime able to mint controls.
type Engine interface {
	NewControl() (Control, error)
	Close() error
}
