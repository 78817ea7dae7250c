package widget

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtwebview2/webwidget/bridge"
	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/stream"
	"github.com/qtwebview2/webwidget/wsgi"
)

// fakeControl records every call the widget makes, in order. Initialization
// completes from a separate goroutine to exercise the thread crossing.
type fakeControl struct {
	mu         sync.Mutex
	props      native.CreationProperties
	handlers   native.Handlers
	settings   native.Settings
	calls      []string
	docScripts []string
	filters    []string
	resizes    [][2]int
	visible    []bool
	disposed   int
	focused    bool

	initErr error  // synchronous Initialize failure
	failMsg string // async completion failure
}

func (c *fakeControl) Initialize(props native.CreationProperties, handlers native.Handlers) error {
	c.mu.Lock()
	c.props = props
	c.handlers = handlers
	c.mu.Unlock()
	if c.initErr != nil {
		return c.initErr
	}
	go func() {
		if c.failMsg != "" {
			handlers.InitializationCompleted(false, c.failMsg)
			return
		}
		handlers.InitializationCompleted(true, "")
	}()
	return nil
}

func (c *fakeControl) ApplySettings(s native.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	return nil
}

func (c *fakeControl) AddScriptOnDocumentCreated(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docScripts = append(c.docScripts, script)
	return nil
}

func (c *fakeControl) AddResourceRequestedFilter(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, pattern)
	return nil
}

func (c *fakeControl) Navigate(url string) error {
	c.record("navigate:" + url)
	return nil
}

func (c *fakeControl) NavigateToString(html string) error {
	c.record("html:" + html)
	return nil
}

func (c *fakeControl) ExecuteScript(script string) error {
	c.record("exec:" + script)
	return nil
}

func (c *fakeControl) WindowHandle() native.WindowHandle { return 0x42 }

func (c *fakeControl) SetVisible(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = append(c.visible, v)
}

func (c *fakeControl) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resizes = append(c.resizes, [2]int{w, h})
}

func (c *fakeControl) HasFocus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

func (c *fakeControl) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed++
}

func (c *fakeControl) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeControl) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeControl) resizeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resizes)
}

type fakeEngine struct {
	ctl *fakeControl
	err error
}

func (e *fakeEngine) NewControl() (native.Control, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.ctl, nil
}

func (e *fakeEngine) Close() error { return nil }

type fakeHost struct {
	mu          sync.Mutex
	width       int
	height      int
	ratio       float64
	windowRatio float64
	attached    bool
	visible     bool
	reparented  []native.WindowHandle
	opened      []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{width: 800, height: 600, ratio: 1.0, windowRatio: 2.0, attached: true, visible: true}
}

func (h *fakeHost) Size() (int, int)          { return h.width, h.height }
func (h *fakeHost) DevicePixelRatio() float64 { return h.ratio }
func (h *fakeHost) WindowDevicePixelRatio() (float64, bool) {
	return h.windowRatio, h.attached
}
func (h *fakeHost) WindowHandle() native.WindowHandle { return 0x7 }
func (h *fakeHost) Visible() bool                     { return h.visible }

func (h *fakeHost) Reparent(child native.WindowHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reparented = append(h.reparented, child)
	return nil
}

func (h *fakeHost) OpenExternal(uri string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, uri)
	return nil
}

func waitReady(t *testing.T, w *Widget) {
	t.Helper()
	require.Eventually(t, func() bool { return w.State() == Ready },
		2*time.Second, time.Millisecond)
}

func TestEagerInitialization(t *testing.T) {
	ctl := &fakeControl{}
	host := newFakeHost()
	w, err := New(host, &fakeEngine{ctl: ctl}, Config{
		URL:          "https://example.test/",
		Debug:        true,
		ContextMenus: false,
		UserAgent:    "agent/1",
	})
	require.NoError(t, err)
	defer w.Dispose()
	waitReady(t, w)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.True(t, ctl.settings.ScriptEnabled)
	assert.True(t, ctl.settings.WebMessageEnabled)
	assert.True(t, ctl.settings.DevToolsEnabled, "debug enables dev tools")
	assert.True(t, ctl.settings.AcceleratorKeysEnabled)
	assert.False(t, ctl.settings.ContextMenusEnabled)
	assert.Equal(t, "agent/1", ctl.settings.UserAgent)

	require.Len(t, ctl.docScripts, 1)
	assert.Contains(t, ctl.docScripts[0], "window.qtwebview2")

	require.NotEmpty(t, ctl.resizes, "initialization performs the first resize")
	assert.Equal(t, [2]int{1600, 1200}, ctl.resizes[0], "window ratio applied")

	assert.Equal(t, []bool{true}, ctl.visible)
	assert.Contains(t, ctl.calls, "navigate:https://example.test/")
	assert.NotEmpty(t, ctl.props.UserDataFolder)

	host.mu.Lock()
	defer host.mu.Unlock()
	assert.Equal(t, []native.WindowHandle{0x42}, host.reparented)
}

func TestLazyQueueReplay(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{LazyLoad: true})
	require.NoError(t, err)
	defer w.Dispose()

	assert.Equal(t, Uninitialized, w.State())

	w.LoadURL("https://one.test/")
	w.EvaluateJS("count()", nil)
	w.LoadHTML("<p>hi</p>")
	assert.Equal(t, Uninitialized, w.State(), "shape of calls does not trigger init")

	w.ShowEvent()
	waitReady(t, w)
	require.NoError(t, w.Loop().Call(func() {}))

	calls := ctl.snapshot()
	require.Len(t, calls, 3, "replay runs each queued call exactly once")
	assert.Equal(t, "navigate:https://one.test/", calls[0])
	assert.True(t, strings.HasPrefix(calls[1], "exec:"))
	assert.Contains(t, calls[1], "count()")
	assert.Equal(t, "html:<p>hi</p>", calls[2])

	// Later calls run directly; the queue never replays again.
	w.LoadURL("https://two.test/")
	require.NoError(t, w.Loop().Call(func() {}))
	calls = ctl.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, "navigate:https://two.test/", calls[3])
}

func TestInitializationFailure(t *testing.T) {
	t.Run("async completion failure", func(t *testing.T) {
		ctl := &fakeControl{failMsg: "runtime exploded"}
		var got error
		w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{
			OnInitFailure: func(err error) { got = err },
		})
		require.NoError(t, err)
		defer w.Dispose()

		require.Eventually(t, func() bool { return w.State() == Failed },
			2*time.Second, time.Millisecond)
		require.NoError(t, w.Loop().Call(func() {}))

		var initErr *InitError
		require.ErrorAs(t, got, &initErr)
		assert.Contains(t, initErr.Message, "runtime exploded")

		ctl.mu.Lock()
		defer ctl.mu.Unlock()
		assert.Equal(t, 1, ctl.disposed, "failed widget tears its control down")
	})

	t.Run("engine refuses control", func(t *testing.T) {
		var got error
		w, err := New(newFakeHost(), &fakeEngine{err: errors.New("no runtime")}, Config{
			OnInitFailure: func(err error) { got = err },
		})
		require.NoError(t, err)
		defer w.Dispose()

		require.Eventually(t, func() bool { return w.State() == Failed },
			2*time.Second, time.Millisecond)
		require.NoError(t, w.Loop().Call(func() {}))
		assert.Error(t, got)
	})
}

func TestResizeCoalescing(t *testing.T) {
	ctl := &fakeControl{}
	host := newFakeHost()
	host.attached = false // fall back to the widget's own ratio
	host.ratio = 1.0
	w, err := New(host, &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	defer w.Dispose()
	waitReady(t, w)

	base := ctl.resizeCount()

	for i := 0; i < 10; i++ {
		w.ResizeEvent(100+i, 200+i)
	}
	require.Eventually(t, func() bool { return ctl.resizeCount() == base+1 },
		2*time.Second, time.Millisecond, "a burst coalesces into one resize")

	time.Sleep(5 * resizeThrottle)
	assert.Equal(t, base+1, ctl.resizeCount(), "no further resizes after the burst")

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, [2]int{109, 209}, ctl.resizes[len(ctl.resizes)-1],
		"latest dimensions win")
}

func TestVisibilitySync(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	defer w.Dispose()
	waitReady(t, w)

	w.HideEvent()
	w.ShowEvent()
	require.NoError(t, w.Loop().Call(func() {}))

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, []bool{true, false, true}, ctl.visible)
}

func TestDisposeIdempotent(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	waitReady(t, w)

	w.Dispose()
	w.Dispose()

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, 1, ctl.disposed)
}

func TestHasFocus(t *testing.T) {
	ctl := &fakeControl{focused: true}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	defer w.Dispose()

	waitReady(t, w)
	assert.True(t, w.HasFocus())

	ctl.mu.Lock()
	ctl.focused = false
	ctl.mu.Unlock()
	assert.False(t, w.HasFocus())
}

func TestNewWindowHandling(t *testing.T) {
	t.Run("external", func(t *testing.T) {
		ctl := &fakeControl{}
		host := newFakeHost()
		w, err := New(host, &fakeEngine{ctl: ctl}, Config{OpenNewWindowInBrowser: true})
		require.NoError(t, err)
		defer w.Dispose()
		waitReady(t, w)

		handled := ctl.handlers.NewWindowRequested("https://popup.test/")
		assert.True(t, handled)

		host.mu.Lock()
		defer host.mu.Unlock()
		assert.Equal(t, []string{"https://popup.test/"}, host.opened)
	})

	t.Run("in-app popups stay unhandled", func(t *testing.T) {
		ctl := &fakeControl{}
		w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
		require.NoError(t, err)
		defer w.Dispose()
		waitReady(t, w)

		assert.False(t, ctl.handlers.NewWindowRequested("https://popup.test/"))
	})
}

func TestBridgeRoundTrip(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{
		JSAPI: map[string]bridge.SyncFunc{
			"add": func(args ...any) (any, error) {
				return args[0].(float64) + args[1].(float64), nil
			},
		},
	})
	require.NoError(t, err)
	defer w.Dispose()
	waitReady(t, w)

	// The page posts an API call from the engine's worker thread.
	go ctl.handlers.WebMessageReceived(`{"name":"add","params":[1,2],"id":"c1"}`)

	require.Eventually(t, func() bool {
		for _, c := range ctl.snapshot() {
			if strings.Contains(c, "qtwebview2-response-c1") {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	var response string
	for _, c := range ctl.snapshot() {
		if strings.Contains(c, "qtwebview2-response-c1") {
			response = c
		}
	}
	assert.Contains(t, response, `{"result":3}`)
}

var callIDPattern = regexp.MustCompile(`id: '([0-9a-f]{32})'`)

func TestEvaluateJSRoundTrip(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	defer w.Dispose()
	waitReady(t, w)

	results := make(chan bridge.EvalResult, 2)
	w.EvaluateJS("return 6 * 7", func(res bridge.EvalResult) { results <- res })
	require.NoError(t, w.Loop().Call(func() {}))

	calls := ctl.snapshot()
	require.NotEmpty(t, calls)
	m := callIDPattern.FindStringSubmatch(calls[len(calls)-1])
	require.NotNil(t, m, "eval wrapper carries the call id")
	callID := m[1]

	// The page reports completion through the reserved callback name.
	envelope := fmt.Sprintf(
		`{"name":"_qtwebviewCallback","params":{"success":true,"result":42},"id":"%s"}`, callID)
	go ctl.handlers.WebMessageReceived(envelope)

	select {
	case res := <-results:
		assert.True(t, res.Success)
		assert.Equal(t, float64(42), res.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation callback never ran")
	}

	// A duplicate result is discarded: the callback ran exactly once.
	go ctl.handlers.WebMessageReceived(envelope)
	require.NoError(t, w.Loop().Call(func() {}))
	require.NoError(t, w.Loop().Call(func() {}))
	select {
	case <-results:
		t.Fatal("callback ran twice")
	default:
	}
}

type fakeRequest struct {
	uri     string
	method  string
	headers []native.HeaderPair
	body    io.Reader
}

func (r fakeRequest) URI() string                  { return r.uri }
func (r fakeRequest) Method() string               { return r.method }
func (r fakeRequest) Headers() []native.HeaderPair { return r.headers }
func (r fakeRequest) Body() io.Reader              { return r.body }

func TestServeWSGI(t *testing.T) {
	ctl := &fakeControl{}
	w, err := New(newFakeHost(), &fakeEngine{ctl: ctl}, Config{})
	require.NoError(t, err)
	defer w.Dispose()

	app := func(environ wsgi.Environ, start wsgi.StartResponse) (stream.Source, error) {
		if _, err := start("200 OK", []wsgi.Header{{Name: "Content-Type", Value: "text/plain"}}, nil); err != nil {
			return nil, err
		}
		return stream.Strings("hello from " + environ["PATH_INFO"].(string)), nil
	}
	w.ServeWSGI("https://app.test/*", app)
	waitReady(t, w)
	require.NoError(t, w.Loop().Call(func() {}))

	ctl.mu.Lock()
	filters := append([]string(nil), ctl.filters...)
	handler := ctl.handlers.WebResourceRequested
	ctl.mu.Unlock()
	assert.Equal(t, []string{"https://app.test/*"}, filters)

	t.Run("matching request is answered in-process", func(t *testing.T) {
		resp := handler(fakeRequest{uri: "https://app.test/index", method: "GET"})
		require.NotNil(t, resp)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "OK", resp.ReasonPhrase)
		assert.Equal(t, []native.HeaderPair{{Name: "Content-Type", Value: "text/plain"}}, resp.Headers)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, "hello from /index", string(body))
	})

	t.Run("non-matching request falls through", func(t *testing.T) {
		assert.Nil(t, handler(fakeRequest{uri: "https://elsewhere.test/", method: "GET"}))
	})
}

func TestUserDataFolder(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		assert.Equal(t, "/tmp/profile",
			resolveUserDataFolder(Config{UserDataFolder: "/tmp/profile"}))
	})

	t.Run("app name keys the platform dir", func(t *testing.T) {
		dir := resolveUserDataFolder(Config{AppName: "myapp"})
		assert.Contains(t, dir, "myapp")
	})

	t.Run("disabled local storage skips resolution", func(t *testing.T) {
		assert.Empty(t, resolveUserDataFolder(Config{
			UserDataFolder: "/tmp/profile", DisableLocalStorage: true,
		}))
	})
}
