package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandle_AppendsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "behaviors.log")
	config := `{"log_file": "` + path + `"}`
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, req := range []string{
		`{"behavior": "stand", "action": 1, "config": ` + config + `}`,
		`{"behavior": "sit", "action": 2, "config": ` + config + `, "params": {"speed": 0.5}}`,
	} {
		resp := handle(strings.NewReader(req), now)
		if !resp.Success {
			t.Fatalf("handle(%s) failed: %s", req, resp.Error)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var got []entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("log has %d entries, want 2", len(got))
	}
	if got[0].Behavior != "stand" || got[0].Action != 1 || !got[0].Time.Equal(now) {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Behavior != "sit" || string(got[1].Params) != `{"speed":0.5}` {
		t.Errorf("entry 1 = %+v params %s", got[1], got[1].Params)
	}
}

func TestHandle_Errors(t *testing.T) {
	t.Setenv("POSECUE_BEHAVIOR_LOG", filepath.Join(t.TempDir(), "b.log"))

	tests := []struct {
		name string
		req  string
	}{
		{"invalid json", `{`},
		{"unknown behavior", `{"behavior": "dance", "action": 1}`},
		{"bad config", `{"behavior": "sit", "action": 2, "config": "nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(strings.NewReader(tt.req), time.Now())
			if resp.Success || resp.Error == "" {
				t.Errorf("expected failure, got %+v", resp)
			}
		})
	}
}

func TestLogPath_EnvFallback(t *testing.T) {
	want := filepath.Join(t.TempDir(), "env.log")
	t.Setenv("POSECUE_BEHAVIOR_LOG", want)

	got, err := logPath(nil)
	if err != nil || got != want {
		t.Errorf("logPath() = %q, %v; want %q", got, err, want)
	}
}
