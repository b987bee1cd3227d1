package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// CanvasCamera serves copies of a plain background frame. It stands in for
// the preview device on headless machines so the annotated stream still
// shows the pipeline state.
type CanvasCamera struct {
	mu     sync.Mutex
	width  int
	height int
	fps    int
	canvas *gocv.Mat
}

// NewCanvasCamera creates a CanvasCamera with the given frame size.
func NewCanvasCamera(width, height int) *CanvasCamera {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &CanvasCamera{width: width, height: height, fps: DefaultFPS}
}

// Open allocates the background frame.
func (c *CanvasCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.canvas != nil {
		return nil
	}
	m := gocv.NewMatWithSize(c.height, c.width, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(32, 32, 32, 0))
	c.canvas = &m
	return nil
}

// Close frees the background frame.
func (c *CanvasCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.canvas != nil {
		c.canvas.Close()
		c.canvas = nil
	}
	return nil
}

// ReadFrame returns a fresh copy of the background.
func (c *CanvasCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.canvas == nil {
		return nil, ErrCameraNotOpen
	}
	frame := c.canvas.Clone()
	return &frame, nil
}

func (c *CanvasCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	c.fps = fps
	c.mu.Unlock()
}

func (c *CanvasCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *CanvasCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas != nil
}

// OpenPreview opens the video device and falls back to a canvas when the
// device is missing or delivers no frames.
func OpenPreview(deviceID int) (Camera, error) {
	if deviceID >= 0 {
		cam := NewCamera(deviceID)
		if err := cam.Open(); err == nil {
			if f, err := cam.ReadFrame(); err == nil {
				f.Close()
				return cam, nil
			}
			cam.Close()
		}
	}

	canvas := NewCanvasCamera(DefaultWidth, DefaultHeight)
	if err := canvas.Open(); err != nil {
		return nil, err
	}
	return canvas, nil
}
