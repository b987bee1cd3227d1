package skeleton

import (
	"context"
	"sync"
)

// MockTracker is a test implementation of the Tracker interface.
// It replays a fixed list of frames, one per Retrieve call.
type MockTracker struct {
	mu     sync.Mutex
	frames []Frame
	index  int
	loop   bool
	err    error
	closed bool
}

// NewMockTracker creates a new MockTracker that plays back frames.
func NewMockTracker(frames []Frame, loop bool) *MockTracker {
	return &MockTracker{frames: frames, loop: loop}
}

// SetFrames replaces the frame sequence and restarts playback.
func (m *MockTracker) SetFrames(frames []Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.index = 0
}

// SetError sets the error that will be returned by Retrieve.
func (m *MockTracker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Retrieve returns the next pre-configured frame. Once playback is exhausted
// (and looping is off) it returns frames with IsNew false.
func (m *MockTracker) Retrieve(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.index >= len(m.frames) {
		if !m.loop || len(m.frames) == 0 {
			return &Frame{}, nil
		}
		m.index = 0
	}

	f := m.frames[m.index]
	m.index++
	return &f, nil
}

// Close marks the tracker closed.
func (m *MockTracker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockTracker) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// FramesOf returns n new frames each carrying one body with the given skeleton.
func FramesOf(raw Raw, confidence, n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{
			IsNew:  true,
			Bodies: []Body{{ID: 1, Confidence: confidence, Keypoints: raw}},
		}
	}
	return frames
}

// standingUpright holds joint positions of an upright person in the canonical
// frame (y up, meters). The tracker reports the same pose negated.
var standingUpright = Raw{
	Pelvis:        {0, 1.00, 0},
	NavalSpine:    {0, 1.10, 0},
	ChestSpine:    {0, 1.30, 0},
	Neck:          {0, 1.50, 0},
	LeftClavicle:  {0.05, 1.45, 0},
	LeftShoulder:  {0.18, 1.45, 0},
	LeftElbow:     {0.22, 1.20, 0},
	LeftWrist:     {0.24, 0.98, 0},
	LeftHand:      {0.24, 0.92, 0},
	LeftHandTip:   {0.24, 0.86, 0},
	LeftThumb:     {0.22, 0.90, 0.03},
	RightClavicle: {-0.05, 1.45, 0},
	RightShoulder: {-0.18, 1.45, 0},
	RightElbow:    {-0.22, 1.20, 0},
	RightWrist:    {-0.24, 0.98, 0},
	RightHand:     {-0.24, 0.92, 0},
	RightHandTip:  {-0.24, 0.86, 0},
	RightThumb:    {-0.22, 0.90, 0.03},
	LeftHip:       {0.10, 0.95, 0},
	LeftKnee:      {0.10, 0.50, 0},
	LeftAnkle:     {0.10, 0.08, 0},
	LeftFoot:      {0.10, 0, 0.12},
	RightHip:      {-0.10, 0.95, 0},
	RightKnee:     {-0.10, 0.50, 0},
	RightAnkle:    {-0.10, 0.08, 0},
	RightFoot:     {-0.10, 0, 0.12},
	Head:          {0, 1.65, 0},
	Nose:          {0, 1.62, 0.10},
	LeftEye:       {0.03, 1.66, 0.08},
	LeftEar:       {0.07, 1.64, 0},
	RightEye:      {-0.03, 1.66, 0.08},
	RightEar:      {-0.07, 1.64, 0},
	LeftHeel:      {0.10, 0.02, -0.04},
	RightHeel:     {-0.10, 0.02, -0.04},
}

var legJoints = map[int]bool{
	LeftHip: true, LeftKnee: true, LeftAnkle: true, LeftFoot: true, LeftHeel: true,
	RightHip: true, RightKnee: true, RightAnkle: true, RightFoot: true, RightHeel: true,
}

// buildPose derives the four trained poses from the upright reference and
// converts them to the tracker's inverted convention.
func buildPose(sitting, oneHand bool) Raw {
	p := standingUpright

	if oneHand {
		p[RightElbow] = Keypoint{X: -0.22, Y: 1.70, Z: 0}
		p[RightWrist] = Keypoint{X: -0.24, Y: 1.95, Z: 0}
		p[RightHand] = Keypoint{X: -0.24, Y: 2.00, Z: 0}
		p[RightHandTip] = Keypoint{X: -0.24, Y: 2.06, Z: 0}
		p[RightThumb] = Keypoint{X: -0.22, Y: 2.00, Z: 0.03}
	}

	if sitting {
		for i := range p {
			if !legJoints[i] {
				p[i].Y -= 0.5
			}
		}
		for _, side := range []float64{0.10, -0.10} {
			hip, knee, ankle, foot, heel := LeftHip, LeftKnee, LeftAnkle, LeftFoot, LeftHeel
			if side < 0 {
				hip, knee, ankle, foot, heel = RightHip, RightKnee, RightAnkle, RightFoot, RightHeel
			}
			p[hip] = Keypoint{X: side, Y: 0.48, Z: 0}
			p[knee] = Keypoint{X: side, Y: 0.50, Z: 0.45}
			p[ankle] = Keypoint{X: side, Y: 0.08, Z: 0.45}
			p[foot] = Keypoint{X: side, Y: 0, Z: 0.57}
			p[heel] = Keypoint{X: side, Y: 0.02, Z: 0.41}
		}
	}

	for i := range p {
		p[i] = p[i].Neg()
	}
	return p
}

// StandingSkeleton returns a tracker-convention skeleton of a standing person.
func StandingSkeleton() Raw { return buildPose(false, false) }

// SittingSkeleton returns a tracker-convention skeleton of a seated person.
func SittingSkeleton() Raw { return buildPose(true, false) }

// StandingOneHandSkeleton returns a standing person with the right hand raised.
func StandingOneHandSkeleton() Raw { return buildPose(false, true) }

// SittingOneHandSkeleton returns a seated person with the right hand raised.
func SittingOneHandSkeleton() Raw { return buildPose(true, true) }
