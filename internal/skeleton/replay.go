package skeleton

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReplayDone is returned by ReplayTracker once a non-looping recording
// has been played back completely.
var ErrReplayDone = errors.New("replay finished")

// ReplayTracker plays a recorded skeleton stream back at a fixed rate. It
// stands in for the depth camera when a tracker dump is available.
type ReplayTracker struct {
	mu         sync.Mutex
	skeletons  []Raw
	interval   time.Duration
	confidence int
	loop       bool
	index      int
	next       time.Time
}

// NewReplayTracker creates a tracker that emits one body per interval with
// the given tracking confidence.
func NewReplayTracker(skeletons []Raw, interval time.Duration, confidence int, loop bool) *ReplayTracker {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &ReplayTracker{
		skeletons:  skeletons,
		interval:   interval,
		confidence: confidence,
		loop:       loop,
	}
}

// Retrieve waits for the next playback tick and returns one frame.
func (r *ReplayTracker) Retrieve(ctx context.Context) (*Frame, error) {
	r.mu.Lock()
	if r.next.IsZero() {
		r.next = time.Now()
	}
	wait := time.Until(r.next)
	r.next = r.next.Add(r.interval)
	r.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index >= len(r.skeletons) {
		if !r.loop || len(r.skeletons) == 0 {
			return nil, ErrReplayDone
		}
		r.index = 0
	}
	raw := r.skeletons[r.index]
	r.index++

	return &Frame{
		IsNew:  true,
		Bodies: []Body{{ID: 1, Confidence: r.confidence, Keypoints: raw}},
	}, nil
}

// Close is a no-op.
func (r *ReplayTracker) Close() error { return nil }
