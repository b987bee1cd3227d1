package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/posecue/internal/app"
	"github.com/ayusman/posecue/internal/config"
	"github.com/ayusman/posecue/internal/dataset"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/robot"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/server"
	"github.com/ayusman/posecue/internal/skeleton"
	"github.com/ayusman/posecue/internal/store"
)

const window = 5

var poses = map[pnn.Label]skeleton.Raw{
	pnn.Sitting:         skeleton.SittingSkeleton(),
	pnn.Standing:        skeleton.StandingSkeleton(),
	pnn.SittingOneHand:  skeleton.SittingOneHandSkeleton(),
	pnn.StandingOneHand: skeleton.StandingOneHandSkeleton(),
}

// trainingCSV renders noisy copies of every pose in the training layout.
func trainingCSV(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(11))

	var samples []dataset.Sample
	for _, label := range pnn.Labels() {
		raw := poses[label]
		rows := make([][]float64, 10)
		for i := range rows {
			rows[i] = raw.Flatten()
			for j := range rows[i] {
				rows[i][j] += rng.NormFloat64() * 0.005
			}
		}
		features, err := preprocess.Rows(rows)
		if err != nil {
			t.Fatalf("preprocess.Rows() error = %v", err)
		}
		for _, f := range features {
			samples = append(samples, dataset.Sample{Label: label, Features: f})
		}
	}

	var buf bytes.Buffer
	if err := dataset.WriteTraining(&buf, samples); err != nil {
		t.Fatalf("WriteTraining() error = %v", err)
	}
	return buf.Bytes()
}

// installRecorder installs a behavior-log stand-in that copies each request
// to requests.jsonl.
func installRecorder(t *testing.T, pluginDir string) string {
	t.Helper()
	dir := filepath.Join(pluginDir, robot.DefaultPlugin)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "requests.jsonl")

	script := "#!/bin/sh\ncat >> " + out + "\necho >> " + out + "\necho '{\"success\": true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name": "` + robot.DefaultPlugin + `", "version": "1.0.0", "executable": "run.sh"}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	return out
}

func settings(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	dir := t.TempDir()
	cfg.Pipeline.WindowSize = window
	cfg.Pipeline.TrainingFile = ""
	cfg.Pipeline.StartEnabled = true
	cfg.Store.DataDir = dir
	cfg.Robot.PluginDir = filepath.Join(dir, "plugins")
	cfg.Slots.PoseKind = "file"
	cfg.Slots.PoseName = filepath.Join(dir, "slots", "pose")
	cfg.Slots.ActionKind = "file"
	cfg.Slots.ActionName = filepath.Join(dir, "slots", "action")
	return cfg
}

func newApp(t *testing.T, cfg app.Config) *app.App {
	t.Helper()
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New(%+v) error = %v", cfg.Roles, err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// TestE2E_SplitPipeline runs the three stages as separate apps joined by
// file slots, with training data and the result checked over HTTP.
func TestE2E_SplitPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("recorder plugin is a shell script")
	}

	cfg := settings(t)
	requests := installRecorder(t, cfg.Robot.PluginDir)

	s, err := store.New(cfg.Store.DBPath(), nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	status := app.NewStatus(true)
	srv := server.New(server.Config{Store: s, Status: status})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	t.Run("ImportTrainingData", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/samples?source=e2e.csv", "text/csv", bytes.NewReader(trainingCSV(t)))
		if err != nil {
			t.Fatalf("import error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
	})

	var frames []skeleton.Frame
	for _, l := range []pnn.Label{pnn.Sitting, pnn.Standing, pnn.Sitting} {
		frames = append(frames, skeleton.FramesOf(poses[l], 90, window)...)
	}

	predictor := newApp(t, app.Config{
		Settings: cfg,
		Store:    s,
		Status:   status,
		Roles:    app.Roles{Predict: true},
		Tracker:  skeleton.NewMockTracker(frames, false),
	})
	detector := newApp(t, app.Config{Settings: cfg, Store: s, Status: status, Roles: app.Roles{Detect: true}})
	driver := newApp(t, app.Config{Settings: cfg, Store: s, Status: status, Roles: app.Roles{Drive: true}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var performed []int64
	for range frames {
		classified, err := predictor.Predictor().Step(ctx)
		if err != nil {
			t.Fatalf("predict step error = %v", err)
		}
		if !classified {
			continue
		}
		if _, err := detector.Detector().Step(ctx); err != nil {
			t.Fatalf("detect step error = %v", err)
		}
		ran, err := driver.Driver().Step(ctx)
		if err != nil {
			t.Fatalf("drive step error = %v", err)
		}
		if ran {
			performed = append(performed, int64(status.Snapshot().ActionCode))
		}
	}

	if len(performed) != 1 || performed[0] != int64(sequence.ActionStandCycleAlt) {
		t.Fatalf("performed = %v, want [%d]", performed, sequence.ActionStandCycleAlt)
	}

	t.Run("PluginReceivedBehavior", func(t *testing.T) {
		data, err := os.ReadFile(requests)
		if err != nil {
			t.Fatalf("read requests: %v", err)
		}
		var req robot.Request
		if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &req); err != nil {
			t.Fatalf("decode request %q: %v", data, err)
		}
		if req.Behavior != robot.BehaviorStand || req.Action != int64(sequence.ActionStandCycleAlt) {
			t.Errorf("request = %+v", req)
		}
	})

	t.Run("StatusReflectsPipeline", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatalf("get status error = %v", err)
		}
		defer resp.Body.Close()

		var snap app.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if snap.Pose != "sitting" || snap.Action != "stand-cycle-alt" || snap.Windows != 3 {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("EventLog", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/events?kind=action")
		if err != nil {
			t.Fatalf("get events error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Events []struct {
				Code   int64  `json:"code"`
				Detail string `json:"detail"`
			} `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode events: %v", err)
		}
		if len(listed.Events) != 1 || listed.Events[0].Detail != "stand-cycle-alt" {
			t.Errorf("action events = %+v", listed.Events)
		}
	})

	t.Run("DefaultBindingsListed", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/bindings")
		if err != nil {
			t.Fatalf("get bindings error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Bindings []json.RawMessage `json:"bindings"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode bindings: %v", err)
		}
		if len(listed.Bindings) != 3 {
			t.Errorf("len(bindings) = %d, want 3", len(listed.Bindings))
		}
	})
}
