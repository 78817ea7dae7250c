// Command demo runs the full stack headless: a gin application served to an
// embedded browser through the WSGI adapter, a JS API bridged both ways, and
// either the in-process goja engine or the remote engine hosting the page in
// an external browser tab.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/bridge"
	"github.com/qtwebview2/webwidget/internal/config"
	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/internal/monitoring"
	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/native/gojaengine"
	"github.com/qtwebview2/webwidget/native/remote"
	"github.com/qtwebview2/webwidget/widget"
	"github.com/qtwebview2/webwidget/wsgi"
)

const appOrigin = "https://app.local"

func main() {
	engineKind := flag.String("engine", "goja", "browser engine: goja or remote")
	remoteAddr := flag.String("remote-addr", "127.0.0.1:0", "listen address for the remote engine")
	assets := flag.String("assets", "", "optional directory served at /static/")
	configFile := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg := loadConfig(*configFile)

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	metrics := monitoring.New(prometheus.DefaultRegisterer)

	engine, err := native.Initialize(engineFactory(*engineKind, *remoteAddr, log))
	if err != nil {
		var missing *native.RuntimeNotFoundError
		if errors.As(err, &missing) {
			log.Error("browser runtime missing",
				zap.String("user_message", missing.UserMessage),
				zap.String("download_url", missing.DownloadURL))
		}
		log.Fatal("engine bootstrap failed", zap.Error(err))
	}
	defer engine.Close()

	// JS-visible API: one sync call, one async call completing off-thread.
	api := bridge.NewRegistry(map[string]bridge.SyncFunc{
		"platform": func(args ...any) (any, error) {
			return map[string]any{"os": "demo", "engine": *engineKind}, nil
		},
	})
	api.BindAsync("slowTime", func(complete func(result any, err error), args ...any) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			complete(time.Now().Format(time.RFC3339), nil)
		}()
	})

	w, err := widget.New(headlessHost{log: log}, engine, widget.Config{
		URL:                    appOrigin + "/",
		UserAgent:              cfg.Widget.UserAgent,
		Debug:                  cfg.Widget.Debug,
		ContextMenus:           cfg.Widget.ContextMenus,
		LazyLoad:               false,
		API:                    api,
		UserDataFolder:         cfg.Widget.UserDataFolder,
		DisableLocalStorage:    cfg.Widget.NoLocalStorage,
		AppName:                "webwidget-demo",
		OpenNewWindowInBrowser: true,
		OnInitFailure: func(err error) {
			log.Fatal("widget initialization failed", zap.Error(err))
		},
		OnDOMContentLoaded: func() {
			log.Info("document loaded")
		},
	}, widget.WithLogger(log), widget.WithMetrics(metrics))
	if err != nil {
		log.Fatal("widget construction failed", zap.Error(err))
	}
	defer w.Dispose()

	// The gin application, adapted to the calling contract and compressed.
	app := wsgi.Gzip(wsgi.FromHandler(newRouter()), 1024)
	w.ServeWSGI(appOrigin+"/*", app)
	if *assets != "" {
		w.ServeWSGI(appOrigin+"/static/*", wsgi.Static(*assets))
	}

	w.EvaluateJS("return document.location.href", func(res bridge.EvalResult) {
		if !res.Success {
			log.Warn("location probe failed", zap.String("error", res.Error))
			return
		}
		log.Info("page location", zap.Any("href", res.Result))
	})

	if re, ok := engine.(*remote.Engine); ok {
		log.Info("engine listening; open the control page in a browser",
			zap.String("addr", re.Addr()))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.LoadOrDefault()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func engineFactory(kind, addr string, log *logging.Logger) native.EngineFactory {
	switch kind {
	case "remote":
		return remote.Factory(addr, remote.WithLogger(log))
	default:
		return gojaengine.Factory(gojaengine.WithLogger(log))
	}
}

// newRouter builds the demo application: a page exercising the bridge and
// a small JSON API.
func newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, indexPage)
	})
	router.GET("/api/time", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"now": time.Now().Format(time.RFC3339)})
	})
	router.POST("/api/echo", func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, payload)
	})
	return router
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>webwidget demo</title></head>
<body>
<h1>webwidget demo</h1>
<script>
    window.qtwebview2.api.platform().then(function(info) {
        console.log('platform: ' + JSON.stringify(info));
    });
    window.qtwebview2.api.slowTime().then(function(now) {
        console.log('host time: ' + now);
    });
</script>
</body>
</html>
`

// headlessHost satisfies the toolkit contract without a GUI: fixed
// geometry, no native window.
type headlessHost struct {
	log *logging.Logger
}

func (h headlessHost) Size() (int, int)                         { return 1024, 768 }
func (h headlessHost) DevicePixelRatio() float64                { return 1.0 }
func (h headlessHost) WindowDevicePixelRatio() (float64, bool)  { return 0, false }
func (h headlessHost) WindowHandle() native.WindowHandle        { return 0 }
func (h headlessHost) Visible() bool                            { return true }
func (h headlessHost) Reparent(child native.WindowHandle) error { return nil }

func (h headlessHost) OpenExternal(uri string) error {
	h.log.Info("would open externally", zap.String("uri", uri))
	return nil
}
