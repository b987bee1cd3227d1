package app

import (
	"sync"
	"time"

	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/skeleton"
)

// Update kinds sent to status listeners.
const (
	UpdatePose    = "pose"
	UpdateAction  = "action"
	UpdateEnabled = "enabled"
)

// Update is one change of the live pipeline state.
type Update struct {
	Kind string    `json:"kind"`
	Code int64     `json:"code"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Snapshot is the current pipeline state.
type Snapshot struct {
	Enabled    bool      `json:"enabled"`
	Pose       string    `json:"pose"`
	PoseCode   int64     `json:"pose_code"`
	Action     string    `json:"action"`
	ActionCode int64     `json:"action_code"`
	Sequence   string    `json:"sequence"`
	Phase      string    `json:"phase"`
	Windows    int64     `json:"windows"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status holds the latest pose and action for display surfaces and fans
// updates out to listeners. A nil *Status ignores every call.
type Status struct {
	mu        sync.RWMutex
	snap      Snapshot
	hasPose   bool
	body      skeleton.Raw
	hasBody   bool
	listeners map[int]func(Update)
	nextID    int
}

// NewStatus creates a Status.
func NewStatus(enabled bool) *Status {
	return &Status{
		snap:      Snapshot{Enabled: enabled, Pose: "none", Action: sequence.ActionNone.String()},
		listeners: make(map[int]func(Update)),
	}
}

// Subscribe registers fn for every future update and returns a function
// that removes it. fn runs on the updating goroutine and must not block.
func (s *Status) Subscribe(fn func(Update)) (cancel func()) {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Status) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Enabled reports whether the predictor is classifying.
func (s *Status) Enabled() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Enabled
}

// SetEnabled turns classification on or off.
func (s *Status) SetEnabled(enabled bool) {
	if s == nil {
		return
	}
	u := Update{Kind: UpdateEnabled, Name: "disabled"}
	if enabled {
		u.Code, u.Name = 1, "enabled"
	}
	s.publish(u, func(snap *Snapshot) {
		snap.Enabled = enabled
	})
}

// PoseLabel returns the last classified pose, or "" before the first window.
func (s *Status) PoseLabel() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasPose {
		return ""
	}
	return s.snap.Pose
}

// SetPose records a classified window.
func (s *Status) SetPose(label pnn.Label) {
	if s == nil {
		return
	}
	s.publish(Update{Kind: UpdatePose, Code: int64(label), Name: label.String()}, func(snap *Snapshot) {
		s.hasPose = true
		snap.Pose = label.String()
		snap.PoseCode = int64(label)
		snap.Windows++
	})
}

// SetSkeleton keeps the latest tracked body for preview overlays.
func (s *Status) SetSkeleton(raw skeleton.Raw) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.body = raw
	s.hasBody = true
	s.mu.Unlock()
}

// Skeleton returns the latest tracked body.
func (s *Status) Skeleton() (skeleton.Raw, bool) {
	if s == nil {
		return skeleton.Raw{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.body, s.hasBody
}

// SetSequence records the watcher state after a detector tick.
func (s *Status) SetSequence(seq string, phase sequence.Phase) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.snap.Sequence = seq
	s.snap.Phase = phase.String()
	s.mu.Unlock()
}

// SetAction records an emitted action.
func (s *Status) SetAction(action sequence.Action) {
	if s == nil {
		return
	}
	s.publish(Update{Kind: UpdateAction, Code: int64(action), Name: action.String()}, func(snap *Snapshot) {
		snap.Action = action.String()
		snap.ActionCode = int64(action)
	})
}

func (s *Status) publish(u Update, apply func(*Snapshot)) {
	u.At = time.Now()

	s.mu.Lock()
	apply(&s.snap)
	s.snap.UpdatedAt = u.At
	listeners := make([]func(Update), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
}
