package skeleton

import "context"

// Body is one tracked person in a frame.
type Body struct {
	ID         int
	Confidence int // tracking confidence, 0-100
	Keypoints  Raw
}

// Frame is the per-tick output of the body tracker.
type Frame struct {
	IsNew  bool
	Bodies []Body
}

// Tracker defines the interface for depth-camera body tracking implementations.
type Tracker interface {
	// Retrieve blocks until the next tracker tick and returns its bodies.
	// A frame with IsNew false carries no fresh data.
	Retrieve(ctx context.Context) (*Frame, error)

	// Close releases any resources held by the tracker.
	Close() error
}

// Config holds configuration options for body tracking.
type Config struct {
	// MinConfidence is the minimum tracking confidence (0-100) a body needs to be used.
	MinConfidence int

	// MaxBodies is the maximum number of bodies taken from one frame.
	MaxBodies int
}

// DefaultConfig returns a Config with the values the pose vocabulary was trained with.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 40,
		MaxBodies:     1,
	}
}
