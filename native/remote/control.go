package remote

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/native"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // page and socket share one local listener
	},
}

// wireMessage is the socket envelope in both directions.
type wireMessage struct {
	Type   string `json:"type"`
	Script string `json:"script,omitempty"`
	URL    string `json:"url,omitempty"`
	Data   any    `json:"data,omitempty"`
	Value  bool   `json:"value,omitempty"`
}

// Control is one browser tab driven over a WebSocket.
type Control struct {
	engine *Engine
	id     string
	log    *logging.Logger

	mu         sync.Mutex
	props      native.CreationProperties
	handlers   native.Handlers
	settings   native.Settings
	docScripts []string
	filters    []string
	html       string
	conn       *websocket.Conn
	pending    []wireMessage // queued until the page connects
	focused    bool
	disposed   bool
}

func newRemoteControl(engine *Engine, cid string, log *logging.Logger) *Control {
	return &Control{engine: engine, id: cid, log: log}
}

// PageURL is the address to open in the external browser.
func (c *Control) PageURL() string {
	return fmt.Sprintf("http://%s/c/%s", c.engine.Addr(), c.id)
}

// Initialize implements native.Control. Initialization completes when the
// page connects its socket, so completion waits for the browser to load
// PageURL.
func (c *Control) Initialize(props native.CreationProperties, handlers native.Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return fmt.Errorf("remote control disposed")
	}
	c.props = props
	c.handlers = handlers
	return nil
}

// ApplySettings implements native.Control. Most switches have no remote
// equivalent; the user agent is the browser's own.
func (c *Control) ApplySettings(s native.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	return nil
}

// AddScriptOnDocumentCreated implements native.Control. The script is
// inlined into every page render, ahead of page content.
func (c *Control) AddScriptOnDocumentCreated(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docScripts = append(c.docScripts, script)
	return nil
}

// AddResourceRequestedFilter implements native.Control. Requests under the
// control's /app/ prefix are matched against these patterns.
func (c *Control) AddResourceRequestedFilter(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, pattern)
	return nil
}

// Navigate implements native.Control.
func (c *Control) Navigate(url string) error {
	return c.send(wireMessage{Type: "navigate", URL: url})
}

// NavigateToString implements native.Control: the markup becomes the page
// body on next render and connected pages reload.
func (c *Control) NavigateToString(html string) error {
	c.mu.Lock()
	c.html = html
	c.mu.Unlock()
	return c.send(wireMessage{Type: "reload"})
}

// ExecuteScript implements native.Control.
func (c *Control) ExecuteScript(script string) error {
	return c.send(wireMessage{Type: "exec", Script: script})
}

// WindowHandle implements native.Control. A remote tab has no local
// window.
func (c *Control) WindowHandle() native.WindowHandle { return 0 }

// SetVisible implements native.Control.
func (c *Control) SetVisible(visible bool) {
	c.send(wireMessage{Type: "visible", Value: visible})
}

// Resize implements native.Control. The tab owns its own geometry; resize
// is advisory.
func (c *Control) Resize(width, height int) {
	c.send(wireMessage{Type: "resize", Script: fmt.Sprintf("%dx%d", width, height)})
}

// HasFocus implements native.Control, tracking the page's reported focus.
func (c *Control) HasFocus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Dispose implements native.Control. Idempotent.
func (c *Control) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.engine.drop(c.id)
}

// send delivers one envelope to the page, queueing while disconnected.
func (c *Control) send(msg wireMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return fmt.Errorf("remote control disposed")
	}
	if c.conn == nil {
		c.pending = append(c.pending, msg)
		return nil
	}
	return c.conn.WriteJSON(msg)
}

// renderPage builds the served document: the socket shim, the
// document-created scripts, then the page body.
func (c *Control) renderPage() string {
	c.mu.Lock()
	scripts := append([]string(nil), c.docScripts...)
	html := c.html
	c.mu.Unlock()

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<script>\n")
	fmt.Fprintf(&b, shimScript, c.id)
	b.WriteString("</script>\n")
	for _, s := range scripts {
		b.WriteString("<script>\n")
		b.WriteString(s)
		b.WriteString("\n</script>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(html)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

// shimScript provides window.chrome.webview.postMessage over the socket
// and applies host-pushed envelopes. The %s is the control id.
const shimScript = `
(function() {
    var ws = new WebSocket('ws://' + location.host + '/c/%s/ws');
    var queued = [];
    ws.onopen = function() {
        queued.forEach(function(m) { ws.send(m); });
        queued = [];
    };
    ws.onmessage = function(e) {
        var m = JSON.parse(e.data);
        if (m.type === 'exec') {
            (new Function(m.script))();
        } else if (m.type === 'navigate') {
            location.href = m.url;
        } else if (m.type === 'reload') {
            location.reload();
        }
    };
    document.addEventListener('DOMContentLoaded', function() { post({type: 'domloaded'}); });
    window.addEventListener('focus', function() { post({type: 'focus', value: true}); });
    window.addEventListener('blur', function() { post({type: 'focus', value: false}); });
    function post(obj) {
        var raw = JSON.stringify(obj);
        if (ws.readyState === WebSocket.OPEN) { ws.send(raw); } else { queued.push(raw); }
    }
    window.chrome = window.chrome || {};
    window.chrome.webview = {
        postMessage: function(obj) { post({type: 'message', data: obj}); }
    };
})();
`

// handleSocket runs the read pump for one page connection. The first
// connection completes initialization.
func (c *Control) handleSocket(g *gin.Context) {
	conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		c.log.Warn("socket upgrade failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	first := c.conn == nil
	c.conn = conn
	pending := c.pending
	c.pending = nil
	handlers := c.handlers
	// Flushing under the lock keeps socket writes serialized with send.
	for _, msg := range pending {
		if err := conn.WriteJSON(msg); err != nil {
			c.log.Warn("flushing queued envelope failed", zap.Error(err))
		}
	}
	c.mu.Unlock()

	if first && handlers.InitializationCompleted != nil {
		handlers.InitializationCompleted(true, "")
	}

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.log.Debug("socket closed", zap.Error(err))
			break
		}
		switch msg.Type {
		case "message":
			raw, err := sonic.MarshalString(msg.Data)
			if err != nil {
				c.log.Warn("unserializable page message", zap.Error(err))
				continue
			}
			if handlers.WebMessageReceived != nil {
				handlers.WebMessageReceived(raw)
			}
		case "focus":
			c.mu.Lock()
			c.focused = msg.Value
			c.mu.Unlock()
		case "domloaded":
			if handlers.DOMContentLoaded != nil {
				handlers.DOMContentLoaded()
			}
		case "newwindow":
			if handlers.NewWindowRequested != nil {
				handlers.NewWindowRequested(msg.URL)
			}
		default:
			c.log.Debug("unknown envelope from page", zap.String("type", msg.Type))
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// serveResource answers requests under the control's /app/ prefix through
// the interception handler when a filter matches.
func (c *Control) serveResource(g *gin.Context) {
	c.mu.Lock()
	handler := c.handlers.WebResourceRequested
	filters := append([]string(nil), c.filters...)
	c.mu.Unlock()

	uri := "http://" + g.Request.Host + g.Request.URL.RequestURI()
	matched := false
	for _, f := range filters {
		if native.MatchFilter(f, uri) {
			matched = true
			break
		}
	}
	if handler == nil || !matched {
		g.String(http.StatusNotFound, "not intercepted")
		return
	}

	resp := handler(httpRequest{req: g.Request, uri: uri})
	if resp == nil {
		g.String(http.StatusNotFound, "not intercepted")
		return
	}
	defer resp.Body.Close()

	for _, h := range resp.Headers {
		g.Header(h.Name, h.Value)
	}
	g.Status(resp.StatusCode)
	if _, err := io.Copy(g.Writer, resp.Body); err != nil {
		c.log.Warn("streaming response failed", zap.Error(err))
	}
}

// httpRequest adapts an inbound HTTP request to the interception contract.
type httpRequest struct {
	req *http.Request
	uri string
}

func (r httpRequest) URI() string    { return r.uri }
func (r httpRequest) Method() string { return r.req.Method }

func (r httpRequest) Headers() []native.HeaderPair {
	var pairs []native.HeaderPair
	for name, values := range r.req.Header {
		for _, v := range values {
			pairs = append(pairs, native.HeaderPair{Name: name, Value: v})
		}
	}
	return pairs
}

func (r httpRequest) Body() io.Reader { return r.req.Body }
