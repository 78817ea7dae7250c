// Package id provides identifier generation for the bridge and widget layers.
//
// Call ids cross the JavaScript boundary and must be version-4 UUIDs: the
// injected client script generates v4-shaped ids on its side, and both ends
// use the id purely as an opaque correlation token. Host-generated ids use
// the compact hex form (no dashes) to keep the eval wrapper small.
package id

import (
	"github.com/google/uuid"
)

// CallID identifies one bridge invocation awaiting a result.
type CallID string

// WidgetID identifies a widget instance in logs.
type WidgetID string

// NewCallID generates a new correlation id for an outbound script evaluation.
// Compact 32-char hex form of a random UUID.
func NewCallID() CallID {
	u := uuid.New()
	dst := make([]byte, 32)
	const hexdigits = "0123456789abcdef"
	for i, b := range u {
		dst[i*2] = hexdigits[b>>4]
		dst[i*2+1] = hexdigits[b&0x0f]
	}
	return CallID(dst)
}

// NewWidgetID generates a widget instance id.
func NewWidgetID() WidgetID {
	return WidgetID("wv_" + uuid.NewString())
}

// String methods for id types.
func (c CallID) String() string   { return string(c) }
func (w WidgetID) String() string { return string(w) }
