package widget

import (
	"github.com/qtwebview2/webwidget/native"
)

// Host is the GUI-toolkit side of the widget: the toolkit wrapper embeds
// the browser surface and feeds geometry, visibility, and window handles.
// Implementations belong to the toolkit glue, not this module.
type Host interface {
	// Size returns the widget's logical size in toolkit units.
	Size() (width, height int)

	// DevicePixelRatio is the widget's own scale factor.
	DevicePixelRatio() float64

	// WindowDevicePixelRatio is the owning top-level window's scale
	// factor. ok is false while the widget is not attached to a window,
	// in which case the widget's own ratio is used.
	WindowDevicePixelRatio() (ratio float64, ok bool)

	// WindowHandle is the widget's native window, the reparenting target
	// for the browser surface.
	WindowHandle() native.WindowHandle

	// Visible reports the widget's current visibility.
	Visible() bool

	// Reparent adopts the browser surface under the widget's native
	// window, stripping the border and applying the child style.
	Reparent(child native.WindowHandle) error

	// OpenExternal opens a URI with the OS default handler.
	OpenExternal(uri string) error
}
