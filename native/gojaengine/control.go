package gojaengine

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/relay"
)

var errDisposed = errors.New("gojaengine: control disposed")

// listener is one addEventListener registration.
type listener struct {
	fn   goja.Callable
	once bool
}

// Control is one simulated browser instance. The goja runtime lives on a
// dedicated goroutine; every script runs there, and handler callbacks fire
// from that goroutine, which is a worker thread from the widget's point of
// view.
type Control struct {
	log *logging.Logger
	js  *relay.Loop

	mu         sync.Mutex
	props      native.CreationProperties
	handlers   native.Handlers
	settings   native.Settings
	docScripts []string
	filters    []string
	visible    bool
	focused    bool
	width      int
	height     int
	disposed   bool

	// Owned by the js goroutine.
	vm        *goja.Runtime
	listeners map[string][]*listener
}

func newControl(log *logging.Logger) *Control {
	return &Control{log: log, js: relay.NewLoop()}
}

// Initialize implements native.Control. The first page context is built on
// the js goroutine and completion is reported from there.
func (c *Control) Initialize(props native.CreationProperties, handlers native.Handlers) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errDisposed
	}
	c.props = props
	c.handlers = handlers
	c.mu.Unlock()

	return c.js.Post(func() {
		if err := c.newPage("about:blank", ""); err != nil {
			handlers.InitializationCompleted(false, err.Error())
			return
		}
		handlers.InitializationCompleted(true, "")
	})
}

// ApplySettings implements native.Control.
func (c *Control) ApplySettings(s native.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return errDisposed
	}
	c.settings = s
	return nil
}

// AddScriptOnDocumentCreated implements native.Control. The script runs at
// the start of every subsequent page load.
func (c *Control) AddScriptOnDocumentCreated(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return errDisposed
	}
	c.docScripts = append(c.docScripts, script)
	return nil
}

// AddResourceRequestedFilter implements native.Control.
func (c *Control) AddResourceRequestedFilter(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return errDisposed
	}
	c.filters = append(c.filters, pattern)
	return nil
}

// Navigate implements native.Control. Navigations matching an installed
// resource filter are answered by the interception handler; everything else
// loads as an empty document.
func (c *Control) Navigate(url string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errDisposed
	}
	c.mu.Unlock()

	return c.js.Post(func() {
		html := c.interceptNavigate(url)
		if err := c.newPage(url, html); err != nil {
			c.log.Warn("page load failed", zap.String("url", url), zap.Error(err))
		}
	})
}

// NavigateToString implements native.Control.
func (c *Control) NavigateToString(html string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errDisposed
	}
	c.mu.Unlock()

	return c.js.Post(func() {
		if err := c.newPage("about:blank", html); err != nil {
			c.log.Warn("page load failed", zap.Error(err))
		}
	})
}

// ExecuteScript implements native.Control. The script runs asynchronously
// on the js goroutine; runtime errors are logged, not returned.
func (c *Control) ExecuteScript(script string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errDisposed
	}
	c.mu.Unlock()

	return c.js.Post(func() {
		if _, err := c.vm.RunString(script); err != nil {
			c.log.Warn("script failed", zap.Error(err))
		}
	})
}

// WindowHandle implements native.Control. A goja control has no native
// window.
func (c *Control) WindowHandle() native.WindowHandle { return 0 }

// SetVisible implements native.Control.
func (c *Control) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
}

// Resize implements native.Control.
func (c *Control) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
}

// HasFocus implements native.Control.
func (c *Control) HasFocus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// SetFocus marks the simulated surface focused. Test support.
func (c *Control) SetFocus(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = focused
}

// Dispose implements native.Control. Idempotent.
func (c *Control) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()
	c.js.Close()
}

// Visible reports the simulated surface visibility. Test support.
func (c *Control) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Size reports the last physical resize. Test support.
func (c *Control) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// interceptNavigate runs on the js goroutine and answers url through the
// resource-interception handler when a filter matches. Returns the fetched
// document, or empty when the navigation is not intercepted.
func (c *Control) interceptNavigate(url string) string {
	c.mu.Lock()
	handler := c.handlers.WebResourceRequested
	filters := append([]string(nil), c.filters...)
	c.mu.Unlock()

	if handler == nil {
		return ""
	}
	matched := false
	for _, f := range filters {
		if native.MatchFilter(f, url) {
			matched = true
			break
		}
	}
	if !matched {
		return ""
	}

	resp := handler(navRequest{uri: url})
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("reading intercepted response failed",
			zap.String("url", url), zap.Error(err))
		return ""
	}
	return string(data)
}

// navRequest is the intercepted request for a top-level navigation.
type navRequest struct {
	uri string
}

func (r navRequest) URI() string                  { return r.uri }
func (r navRequest) Method() string               { return "GET" }
func (r navRequest) Headers() []native.HeaderPair { return nil }
func (r navRequest) Body() io.Reader              { return nil }

// newPage builds a fresh runtime for one document: the window shims, the
// document-created scripts, then the DOMContentLoaded events. Runs on the
// js goroutine.
func (c *Control) newPage(url, html string) error {
	vm := goja.New()
	c.vm = vm
	c.listeners = make(map[string][]*listener)

	if err := c.setupWindow(vm, url, html); err != nil {
		return err
	}

	c.mu.Lock()
	scripts := append([]string(nil), c.docScripts...)
	domLoaded := c.handlers.DOMContentLoaded
	c.mu.Unlock()

	for _, script := range scripts {
		if _, err := vm.RunString(script); err != nil {
			c.log.Warn("document-created script failed", zap.Error(err))
		}
	}

	c.fireEvent(vm, "DOMContentLoaded")
	if domLoaded != nil {
		domLoaded()
	}
	return nil
}

// setupWindow installs the browser surface the bridge protocol needs:
// window as the global object, the event listener registry, the CustomEvent
// constructor, location, a console wired to the log, and
// chrome.webview.postMessage raising web-message events.
func (c *Control) setupWindow(vm *goja.Runtime, url, html string) error {
	vm.Set("window", vm.GlobalObject())

	vm.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Undefined()
		}
		name := call.Arguments[0].String()
		fn, ok := goja.AssertFunction(call.Arguments[1])
		if !ok {
			return goja.Undefined()
		}
		once := false
		if len(call.Arguments) > 2 {
			if opts, ok := call.Arguments[2].(*goja.Object); ok {
				if v := opts.Get("once"); v != nil {
					once = v.ToBoolean()
				}
			}
		}
		c.listeners[name] = append(c.listeners[name], &listener{fn: fn, once: once})
		return goja.Undefined()
	})

	vm.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(false)
		}
		event, ok := call.Arguments[0].(*goja.Object)
		if !ok {
			return vm.ToValue(false)
		}
		c.dispatch(vm, event.Get("type").String(), event)
		return vm.ToValue(true)
	})

	loc := vm.NewObject()
	loc.Set("href", url)
	vm.Set("location", loc)

	document := vm.NewObject()
	document.Set("readyState", "complete")
	body := vm.NewObject()
	body.Set("innerHTML", html)
	document.Set("body", body)
	vm.Set("document", document)

	console := vm.NewObject()
	console.Set("log", c.makeConsoleFunc("log"))
	console.Set("warn", c.makeConsoleFunc("warn"))
	console.Set("error", c.makeConsoleFunc("error"))
	console.Set("info", c.makeConsoleFunc("info"))
	vm.Set("console", console)

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			return goja.Undefined()
		}
		var ms int64
		if len(call.Arguments) > 1 {
			ms = call.Arguments[1].ToInteger()
		}
		time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
			c.js.Post(func() {
				if c.vm != vm {
					return // page navigated away
				}
				if _, err := fn(goja.Undefined()); err != nil {
					c.log.Warn("timer callback failed", zap.Error(err))
				}
			})
		})
		return goja.Undefined()
	})

	webview := vm.NewObject()
	webview.Set("postMessage", func(v goja.Value) {
		raw, err := sonic.MarshalString(v.Export())
		if err != nil {
			c.log.Warn("unserializable postMessage payload", zap.Error(err))
			return
		}
		c.mu.Lock()
		handler := c.handlers.WebMessageReceived
		c.mu.Unlock()
		if handler != nil {
			handler(raw)
		}
	})
	chrome := vm.NewObject()
	chrome.Set("webview", webview)
	vm.Set("chrome", chrome)

	vm.Set("open", func(uri string) {
		c.mu.Lock()
		handler := c.handlers.NewWindowRequested
		c.mu.Unlock()
		if handler != nil {
			handler(uri)
		}
	})

	_, err := vm.RunString(`
        function CustomEvent(type, init) {
            this.type = type;
            this.detail = init ? init.detail : undefined;
        }
    `)
	return err
}

// dispatch invokes listeners for one event name, dropping once-listeners
// after their first call. Runs on the js goroutine.
func (c *Control) dispatch(vm *goja.Runtime, name string, event goja.Value) {
	current := c.listeners[name]
	if len(current) == 0 {
		return
	}
	kept := current[:0]
	run := append([]*listener(nil), current...)
	for _, l := range run {
		if !l.once {
			kept = append(kept, l)
		}
	}
	c.listeners[name] = kept

	for _, l := range run {
		if _, err := l.fn(goja.Undefined(), event); err != nil {
			c.log.Warn("event listener failed",
				zap.String("event", name), zap.Error(err))
		}
	}
}

// fireEvent dispatches a plain {type} event. Runs on the js goroutine.
func (c *Control) fireEvent(vm *goja.Runtime, name string) {
	event := vm.NewObject()
	event.Set("type", name)
	c.dispatch(vm, name, event)
}

func (c *Control) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}
		switch level {
		case "warn", "error":
			c.log.Warn("console", zap.String("level", level), zap.String("message", msg))
		default:
			c.log.Debug("console", zap.String("level", level), zap.String("message", msg))
		}
		return goja.Undefined()
	}
}
