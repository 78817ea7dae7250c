package widget

import (
	"os"
	"path/filepath"

	"github.com/qtwebview2/webwidget/bridge"
)

// Config carries per-widget construction parameters. The zero value is a
// plain browser: no URL, no API, eager initialization, default chrome.
type Config struct {
	// URL is loaded once the control is ready. Empty loads nothing.
	URL string

	// UserAgent overrides the engine default when non-empty.
	UserAgent string

	// Debug enables dev tools and accelerator keys. Pair with
	// ContextMenus=false to keep the production context menu off while
	// debugging.
	Debug bool

	// ContextMenus enables the browser's context menu.
	ContextMenus bool

	// Transparent requests an alpha surface; mutually exclusive in effect
	// with BackgroundColor.
	Transparent     bool
	BackgroundColor string

	// OpenNewWindowInBrowser routes window.open and target=_blank to the
	// OS default browser instead of an in-app popup.
	OpenNewWindowInBrowser bool

	// LazyLoad defers initialization until the widget is first shown.
	LazyLoad bool

	// API is the JS-visible callable surface. Any Invoker works; use
	// bridge.NewRegistry for the map-backed default. JSAPI is a shorthand
	// for a registry of synchronous functions, used when API is nil.
	API   bridge.Invoker
	JSAPI map[string]bridge.SyncFunc

	// UserDataFolder overrides the browser profile location. When empty
	// the profile lands under the platform config dir keyed by AppName,
	// falling back to the temp dir.
	UserDataFolder      string
	AppName             string
	DisableLocalStorage bool

	// OnInitFailure is called on the widget goroutine when native
	// initialization fails. The widget is already torn down.
	OnInitFailure func(err error)

	// OnDOMContentLoaded is called on the widget goroutine each time a
	// document finishes parsing.
	OnDOMContentLoaded func()
}

// api resolves the configured JS API surface, or nil for none.
func (c Config) api() bridge.Invoker {
	if c.API != nil {
		return c.API
	}
	if c.JSAPI != nil {
		return bridge.NewRegistry(c.JSAPI)
	}
	return nil
}

// resolveUserDataFolder picks the browser profile directory: explicit
// override, then app-keyed platform config dir, then temp dir. Returns
// empty when local storage is disabled.
func resolveUserDataFolder(c Config) string {
	if c.DisableLocalStorage {
		return ""
	}
	if c.UserDataFolder != "" {
		return c.UserDataFolder
	}
	app := c.AppName
	if app == "" {
		app = "webwidget"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, app)
	}
	return filepath.Join(os.TempDir(), app)
}
