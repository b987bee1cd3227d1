package app

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/posecue/internal/config"
	"github.com/ayusman/posecue/internal/dataset"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/skeleton"
	"github.com/ayusman/posecue/internal/store"
)

var fixturePoses = map[pnn.Label]func() skeleton.Raw{
	pnn.Sitting:         skeleton.SittingSkeleton,
	pnn.Standing:        skeleton.StandingSkeleton,
	pnn.SittingOneHand:  skeleton.SittingOneHandSkeleton,
	pnn.StandingOneHand: skeleton.StandingOneHandSkeleton,
}

// trainingSamples returns noisy preprocessed samples of every fixture pose.
func trainingSamples(t *testing.T, perClass int) []dataset.Sample {
	t.Helper()
	rng := rand.New(rand.NewSource(7))

	var samples []dataset.Sample
	for _, label := range pnn.Labels() {
		raw := fixturePoses[label]()
		batch := make([][]float64, perClass)
		for i := range batch {
			row := raw.Flatten()
			for j := range row {
				row[j] += rng.NormFloat64() * 0.005
			}
			batch[i] = row
		}
		rows, err := preprocess.Rows(batch)
		if err != nil {
			t.Fatalf("preprocess.Rows() error = %v", err)
		}
		for _, r := range rows {
			samples = append(samples, dataset.Sample{Label: label, Features: r})
		}
	}
	return samples
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStore(t *testing.T, s *store.Store) {
	t.Helper()
	var buf bytes.Buffer
	if err := dataset.WriteTraining(&buf, trainingSamples(t, 12)); err != nil {
		t.Fatalf("WriteTraining() error = %v", err)
	}
	if _, err := ImportSamples(s.Samples(), &buf, "fixtures.csv", pnn.Standing); err != nil {
		t.Fatalf("ImportSamples() error = %v", err)
	}
}

func testSettings(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.Pipeline.WindowSize = 5
	cfg.Pipeline.TrainingFile = ""
	cfg.Pipeline.PredictTick = time.Millisecond
	cfg.Pipeline.DetectTick = time.Millisecond
	cfg.Pipeline.StartEnabled = true
	cfg.Store.DataDir = t.TempDir()
	cfg.Robot.PluginDir = filepath.Join(cfg.Store.DataDir, "plugins")
	cfg.Slots.PoseKind = "file"
	cfg.Slots.PoseName = filepath.Join(cfg.Store.DataDir, "pose")
	cfg.Slots.ActionKind = "file"
	cfg.Slots.ActionName = filepath.Join(cfg.Store.DataDir, "action")
	return cfg
}

// poseFrames returns window-sized runs of frames for each pose in order.
func poseFrames(window int, poses ...pnn.Label) []skeleton.Frame {
	var frames []skeleton.Frame
	for _, p := range poses {
		frames = append(frames, skeleton.FramesOf(fixturePoses[p](), 90, window)...)
	}
	return frames
}

func TestApp_PipelineSteps(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	settings := testSettings(t)

	tracker := skeleton.NewMockTracker(poseFrames(5, pnn.Sitting, pnn.Standing, pnn.Sitting), false)
	a, err := New(Config{
		Settings: settings,
		Store:    s,
		Roles:    AllRoles,
		Tracker:  tracker,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	var updates []Update
	cancel := a.Status().Subscribe(func(u Update) { updates = append(updates, u) })
	defer cancel()

	ctx := context.Background()
	var (
		poses  []int64
		action sequence.Action
	)
	for i := 0; i < 15; i++ {
		classified, err := a.Predictor().Step(ctx)
		if err != nil {
			t.Fatalf("Predictor.Step() #%d error = %v", i, err)
		}
		if !classified {
			continue
		}
		v, err := a.poses.TryLoad()
		if err != nil {
			t.Fatalf("pose slot empty after classification: %v", err)
		}
		poses = append(poses, v)

		act, err := a.Detector().Step(ctx)
		if err != nil {
			t.Fatalf("Detector.Step() error = %v", err)
		}
		if act != sequence.ActionNone {
			action = act
		}
	}

	want := []int64{int64(pnn.Sitting), int64(pnn.Standing), int64(pnn.Sitting)}
	if len(poses) != len(want) {
		t.Fatalf("classified %d windows, want %d (%v)", len(poses), len(want), poses)
	}
	for i := range want {
		if poses[i] != want[i] {
			t.Errorf("window %d pose = %d, want %d", i, poses[i], want[i])
		}
	}

	if action != sequence.ActionStandCycleAlt {
		t.Errorf("action = %v, want %v", action, sequence.ActionStandCycleAlt)
	}
	if v, err := a.actions.TryLoad(); err != nil || v != int64(sequence.ActionStandCycleAlt) {
		t.Errorf("action slot = %d, %v", v, err)
	}
	if got := a.Detector().config.Watcher.Phase(); got != sequence.PhaseB {
		t.Errorf("phase after match = %v, want %v", got, sequence.PhaseB)
	}

	snap := a.Status().Snapshot()
	if snap.Pose != pnn.Sitting.String() || snap.Windows != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.ActionCode != int64(sequence.ActionStandCycleAlt) {
		t.Errorf("snapshot action = %d", snap.ActionCode)
	}
	if len(updates) != 4 || updates[3].Kind != UpdateAction {
		t.Errorf("updates = %+v", updates)
	}

	events, err := s.Events().Recent("", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("recorded %d events, want 4", len(events))
	}
	if events[0].Kind != store.EventAction {
		t.Errorf("newest event = %+v, want the action", events[0])
	}
}

func TestApp_DisabledSkipsClassification(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	settings := testSettings(t)
	settings.Pipeline.StartEnabled = false

	tracker := skeleton.NewMockTracker(poseFrames(5, pnn.Standing, pnn.Standing), false)
	a, err := New(Config{Settings: settings, Store: s, Roles: Roles{Predict: true}, Tracker: tracker})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if classified, err := a.Predictor().Step(ctx); err != nil || classified {
			t.Fatalf("Step() while disabled = %v, %v", classified, err)
		}
	}

	a.SetEnabled(true)
	if !a.IsEnabled() {
		t.Fatal("IsEnabled() = false after SetEnabled(true)")
	}
	classified := false
	for i := 0; i < 5; i++ {
		ok, err := a.Predictor().Step(ctx)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		classified = classified || ok
	}
	if !classified {
		t.Error("a full window after enabling was not classified")
	}
}

func TestApp_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	seedStore(t, s)
	settings := testSettings(t)

	var skeletons []skeleton.Raw
	for _, p := range []pnn.Label{pnn.Sitting, pnn.Standing, pnn.Sitting} {
		for i := 0; i < 200; i++ {
			skeletons = append(skeletons, fixturePoses[p]())
		}
	}

	a, err := New(Config{
		Settings: settings,
		Store:    s,
		Roles:    AllRoles,
		Tracker:  skeleton.NewReplayTracker(skeletons, time.Millisecond, 100, false),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if v, err := a.actions.TryLoad(); err == nil && v == int64(sequence.ActionStandCycleAlt) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if v, err := a.actions.TryLoad(); err != nil || v != int64(sequence.ActionStandCycleAlt) {
		t.Fatalf("action slot = %d, %v", v, err)
	}

	bindings, err := s.Bindings().List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(bindings) != 3 {
		t.Errorf("default bindings = %d, want 3", len(bindings))
	}
}

func TestNew_Errors(t *testing.T) {
	s := newTestStore(t)
	settings := testSettings(t)
	tracker := skeleton.NewMockTracker(nil, false)

	tests := []struct {
		name   string
		config Config
	}{
		{"no settings", Config{Store: s, Roles: AllRoles, Tracker: tracker}},
		{"no roles", Config{Settings: settings, Store: s}},
		{"predict without tracker", Config{Settings: settings, Store: s, Roles: Roles{Predict: true}}},
		{"drive without store", Config{Settings: settings, Roles: Roles{Drive: true}}},
		{"empty training set", Config{Settings: settings, Store: s, Roles: Roles{Predict: true}, Tracker: tracker}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a, err := New(tt.config); err == nil {
				a.Close()
				t.Fatal("New() succeeded, want error")
			}
		})
	}
}

func TestImportSamples_ReplacesSource(t *testing.T) {
	s := newTestStore(t)
	samples := trainingSamples(t, 3)

	for i := 0; i < 2; i++ {
		var buf bytes.Buffer
		if err := dataset.WriteTraining(&buf, samples); err != nil {
			t.Fatalf("WriteTraining() error = %v", err)
		}
		res, err := ImportSamples(s.Samples(), &buf, "session.csv", pnn.Standing)
		if err != nil {
			t.Fatalf("ImportSamples() #%d error = %v", i, err)
		}
		if res.Imported != len(samples) || res.Format != dataset.FormatTraining.String() {
			t.Errorf("ImportSamples() #%d = %+v", i, res)
		}
		if wantReplaced := int64(i * len(samples)); res.Replaced != wantReplaced {
			t.Errorf("Replaced = %d, want %d", res.Replaced, wantReplaced)
		}
		if res.Counts[pnn.SittingOneHand] != 3 {
			t.Errorf("Counts = %v", res.Counts)
		}
	}

	counts, err := s.Samples().CountByLabel()
	if err != nil {
		t.Fatalf("CountByLabel() error = %v", err)
	}
	for _, l := range pnn.Labels() {
		if counts[l] != 3 {
			t.Errorf("count[%s] = %d, want 3", l, counts[l])
		}
	}
}

func TestStatus_NilSafeAndUnsubscribe(t *testing.T) {
	var nilStatus *Status
	nilStatus.SetPose(pnn.Standing)
	nilStatus.SetAction(sequence.ActionStandCycle)
	if !nilStatus.Enabled() || nilStatus.PoseLabel() != "" {
		t.Error("nil Status should report enabled with no pose")
	}

	st := NewStatus(true)
	if st.PoseLabel() != "" {
		t.Errorf("PoseLabel() before any window = %q", st.PoseLabel())
	}

	n := 0
	cancel := st.Subscribe(func(Update) { n++ })
	st.SetPose(pnn.StandingOneHand)
	cancel()
	st.SetPose(pnn.Sitting)

	if n != 1 {
		t.Errorf("listener called %d times, want 1", n)
	}
	if st.PoseLabel() != pnn.Sitting.String() {
		t.Errorf("PoseLabel() = %q", st.PoseLabel())
	}
}
