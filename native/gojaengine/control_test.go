package gojaengine_test

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtwebview2/webwidget/bridge"
	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/native/gojaengine"
)

func startControl(t *testing.T, onMessage func(string)) native.Control {
	t.Helper()

	engine := gojaengine.New()
	ctl, err := engine.NewControl()
	require.NoError(t, err)
	t.Cleanup(ctl.Dispose)

	initDone := make(chan bool, 1)
	handlers := native.Handlers{
		InitializationCompleted: func(ok bool, errMsg string) { initDone <- ok },
		WebMessageReceived:      onMessage,
	}
	require.NoError(t, ctl.Initialize(native.CreationProperties{}, handlers))

	select {
	case ok := <-initDone:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("initialization never completed")
	}
	return ctl
}

func waitMessage(t *testing.T, messages <-chan string) bridge.Message {
	t.Helper()
	select {
	case raw := <-messages:
		msg, err := bridge.ParseMessage(raw)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from page")
		return bridge.Message{}
	}
}

var v4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestClientProxyPostsEnvelopes(t *testing.T) {
	messages := make(chan string, 4)
	ctl := startControl(t, func(raw string) { messages <- raw })

	require.NoError(t, ctl.AddScriptOnDocumentCreated(bridge.ClientScript))
	require.NoError(t, ctl.Navigate("https://page.test/"))
	require.NoError(t, ctl.ExecuteScript(`window.qtwebview2.api.greet('bob', 2)`))

	msg := waitMessage(t, messages)
	assert.Equal(t, "greet", msg.Name)
	args, ok := msg.ArgList()
	require.True(t, ok)
	assert.Equal(t, []any{"bob", float64(2)}, args)
	assert.Regexp(t, v4Pattern, msg.ID, "proxy generates v4-shaped ids")
}

func TestBridgeEndToEnd(t *testing.T) {
	// Page calls an API function through the proxy; the dispatcher answers
	// by injecting the response event script; the page-side promise
	// resolves and reports back.
	messages := make(chan string, 4)
	var ctl native.Control

	api := bridge.NewRegistry(map[string]bridge.SyncFunc{
		"double": func(args ...any) (any, error) {
			return args[0].(float64) * 2, nil
		},
	})
	dispatcher := bridge.NewDispatcher(api, nil, nil)

	ctl = startControl(t, func(raw string) { messages <- raw })
	require.NoError(t, ctl.AddScriptOnDocumentCreated(bridge.ClientScript))
	require.NoError(t, ctl.Navigate("https://page.test/"))
	require.NoError(t, ctl.ExecuteScript(`
        window.qtwebview2.api.double(21).then(function(result) {
            window.chrome.webview.postMessage({name: 'done', params: [result], id: 'report'});
        });
    `))

	call := waitMessage(t, messages)
	require.Equal(t, "double", call.Name)

	dispatcher.Handle(call, scriptSink{ctl: ctl})

	report := waitMessage(t, messages)
	assert.Equal(t, "done", report.Name)
	args, ok := report.ArgList()
	require.True(t, ok)
	assert.Equal(t, []any{float64(42)}, args)
}

func TestEvalWrapperEndToEnd(t *testing.T) {
	messages := make(chan string, 4)
	ctl := startControl(t, func(raw string) { messages <- raw })
	require.NoError(t, ctl.Navigate("https://page.test/"))

	require.NoError(t, ctl.ExecuteScript(bridge.EvalWrapper("return 6 * 7;", "eval-1")))

	msg := waitMessage(t, messages)
	assert.Equal(t, bridge.CallbackName, msg.Name)
	assert.Equal(t, "eval-1", msg.ID)

	res, err := bridge.DecodeEvalResult(mustMarshalParams(t, msg))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, float64(42), res.Result)
}

func TestEvalWrapperReportsScriptError(t *testing.T) {
	messages := make(chan string, 4)
	ctl := startControl(t, func(raw string) { messages <- raw })
	require.NoError(t, ctl.Navigate("https://page.test/"))

	require.NoError(t, ctl.ExecuteScript(bridge.EvalWrapper("return missing.value;", "eval-2")))

	msg := waitMessage(t, messages)
	require.Equal(t, bridge.CallbackName, msg.Name)

	res, err := bridge.DecodeEvalResult(mustMarshalParams(t, msg))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ReferenceError")
}

func TestNavigationInterception(t *testing.T) {
	messages := make(chan string, 4)

	engine := gojaengine.New()
	ctl, err := engine.NewControl()
	require.NoError(t, err)
	defer ctl.Dispose()

	initDone := make(chan bool, 1)
	handlers := native.Handlers{
		InitializationCompleted: func(ok bool, errMsg string) { initDone <- ok },
		WebMessageReceived:      func(raw string) { messages <- raw },
		WebResourceRequested: func(req native.ResourceRequest) *native.Response {
			body := fmt.Sprintf("<h1>served %s</h1>", req.URI())
			return &native.Response{
				StatusCode:   200,
				ReasonPhrase: "OK",
				Body:         io.NopCloser(strings.NewReader(body)),
			}
		},
	}
	require.NoError(t, ctl.Initialize(native.CreationProperties{}, handlers))
	require.True(t, <-initDone)

	require.NoError(t, ctl.AddResourceRequestedFilter("https://app.test/*"))
	require.NoError(t, ctl.Navigate("https://app.test/home"))
	require.NoError(t, ctl.ExecuteScript(`
        window.chrome.webview.postMessage({name: 'content', params: [document.body.innerHTML], id: 'x'});
    `))

	msg := waitMessage(t, messages)
	args, ok := msg.ArgList()
	require.True(t, ok)
	require.Len(t, args, 1)
	assert.Equal(t, "<h1>served https://app.test/home</h1>", args[0])
}

func TestDOMContentLoadedFires(t *testing.T) {
	loaded := make(chan struct{}, 4)

	engine := gojaengine.New()
	ctl, err := engine.NewControl()
	require.NoError(t, err)
	defer ctl.Dispose()

	initDone := make(chan bool, 1)
	handlers := native.Handlers{
		InitializationCompleted: func(ok bool, errMsg string) { initDone <- ok },
		DOMContentLoaded:        func() { loaded <- struct{}{} },
	}
	require.NoError(t, ctl.Initialize(native.CreationProperties{}, handlers))
	require.True(t, <-initDone)
	<-loaded // initial about:blank

	require.NoError(t, ctl.NavigateToString("<p>hi</p>"))
	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("DOMContentLoaded never fired for the new document")
	}
}

func TestClientScriptSurvivesNavigation(t *testing.T) {
	messages := make(chan string, 4)
	ctl := startControl(t, func(raw string) { messages <- raw })

	require.NoError(t, ctl.AddScriptOnDocumentCreated(bridge.ClientScript))
	require.NoError(t, ctl.Navigate("https://one.test/"))
	require.NoError(t, ctl.Navigate("https://two.test/"))
	require.NoError(t, ctl.ExecuteScript(`window.qtwebview2.api.ping()`))

	msg := waitMessage(t, messages)
	assert.Equal(t, "ping", msg.Name)
}

func TestEventListenerOptions(t *testing.T) {
	messages := make(chan string, 8)
	ctl := startControl(t, func(raw string) { messages <- raw })

	// Options object without a once key must not break registration.
	require.NoError(t, ctl.ExecuteScript(`
		var hits = 0;
		addEventListener('poke', function() { hits++; }, { capture: false });
		addEventListener('gone', function() {
			window.chrome.webview.postMessage({ name: 'gone', params: [], id: 'g' });
		}, { once: true });
	`))
	require.NoError(t, ctl.ExecuteScript(`
		dispatchEvent(new CustomEvent('poke'));
		dispatchEvent(new CustomEvent('poke'));
		dispatchEvent(new CustomEvent('gone'));
		dispatchEvent(new CustomEvent('gone'));
		window.chrome.webview.postMessage({ name: 'hits', params: [hits], id: 'h' });
	`))

	msg := waitMessage(t, messages)
	assert.Equal(t, "gone", msg.Name, "once listener fires the first time")
	msg = waitMessage(t, messages)
	require.Equal(t, "hits", msg.Name)
	args, ok := msg.ArgList()
	require.True(t, ok)
	assert.Equal(t, []any{float64(2)}, args, "plain listener fires every time")
}

// scriptSink answers dispatch outcomes by injecting the response event
// script, the way the widget does over the relay.
type scriptSink struct {
	ctl native.Control
}

func (s scriptSink) DeliverEvalResult(callID, resultJSON string) {}

func (s scriptSink) ReturnToJS(payload bridge.Payload, callID string) {
	s.ctl.ExecuteScript(bridge.ResponseScript(callID, payload))
}

func (s scriptSink) CompleteAsync(payload bridge.Payload, callID string) {
	s.ctl.ExecuteScript(bridge.ResponseScript(callID, payload))
}

func mustMarshalParams(t *testing.T, msg bridge.Message) string {
	t.Helper()
	data, err := bridge.MarshalParams(msg.Params)
	require.NoError(t, err)
	return data
}
