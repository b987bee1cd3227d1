// Package window accumulates tracked skeletons into fixed-size classification windows.
package window

import (
	"errors"

	"github.com/ayusman/posecue/internal/skeleton"
)

// Window sizes seen in practice. The tracker runs at 30 FPS, so a 15-frame
// window yields two classifications per second.
const (
	DefaultSize          = 15
	DefaultMinConfidence = 40
)

// ErrNotFull is returned when flushing a window that has not reached its size.
var ErrNotFull = errors.New("window not full")

// Buffer collects skeletons until a full window is available.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	size          int
	minConfidence int
	items         []skeleton.Raw
}

// New creates a Buffer holding size skeletons. Bodies below minConfidence are rejected.
func New(size, minConfidence int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		size:          size,
		minConfidence: minConfidence,
		items:         make([]skeleton.Raw, 0, size),
	}
}

// Add appends the body's skeleton if its confidence passes the threshold and
// the window still has room. It reports whether the skeleton was accepted.
func (b *Buffer) Add(body skeleton.Body) bool {
	if body.Confidence < b.minConfidence {
		return false
	}
	if len(b.items) >= b.size {
		return false
	}
	b.items = append(b.items, body.Keypoints)
	return true
}

// AddFrame adds the bodies of a frame in order until the window fills.
// Frames without new data are ignored. It returns the number of skeletons taken.
func (b *Buffer) AddFrame(f *skeleton.Frame) int {
	if f == nil || !f.IsNew {
		return 0
	}
	n := 0
	for _, body := range f.Bodies {
		if b.Full() {
			break
		}
		if b.Add(body) {
			n++
		}
	}
	return n
}

// Full reports whether the window holds exactly Size skeletons.
func (b *Buffer) Full() bool {
	return len(b.items) == b.size
}

// Len returns the number of buffered skeletons.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Size returns the window size.
func (b *Buffer) Size() int {
	return b.size
}

// Flush returns the buffered window and clears the buffer.
// Partial windows are never handed out; ErrNotFull is returned instead.
func (b *Buffer) Flush() ([]skeleton.Raw, error) {
	if !b.Full() {
		return nil, ErrNotFull
	}
	out := make([]skeleton.Raw, len(b.items))
	copy(out, b.items)
	b.items = b.items[:0]
	return out, nil
}

// Reset discards any buffered skeletons.
func (b *Buffer) Reset() {
	b.items = b.items[:0]
}
