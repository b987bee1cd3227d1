// Package main provides a dry-run robot plugin. It validates the requested
// behavior and appends it to a JSON-lines log instead of moving a robot.
//
// The log path comes from the binding config key "log_file", then the
// POSECUE_BEHAVIOR_LOG environment variable, then the temp directory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ayusman/posecue/internal/robot"
)

type pluginConfig struct {
	LogFile string `json:"log_file"`
}

// entry is one line of the behavior log.
type entry struct {
	Time     time.Time       `json:"time"`
	Action   int64           `json:"action"`
	Behavior string          `json:"behavior"`
	Params   json.RawMessage `json:"params,omitempty"`
}

func main() {
	resp := handle(os.Stdin, time.Now())
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, now time.Time) robot.Response {
	var req robot.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return failure(fmt.Sprintf("failed to decode request: %v", err))
	}
	if !slices.Contains(robot.KnownBehaviors, req.Behavior) {
		return failure(fmt.Sprintf("unknown behavior: %s", req.Behavior))
	}

	path, err := logPath(req.Config)
	if err != nil {
		return failure(err.Error())
	}
	if err := appendEntry(path, entry{Time: now, Action: req.Action, Behavior: req.Behavior, Params: req.Params}); err != nil {
		return failure(fmt.Sprintf("write behavior log: %v", err))
	}

	data, _ := json.Marshal(map[string]string{"logged": req.Behavior, "log_file": path})
	return robot.Response{Success: true, Data: data}
}

func logPath(config json.RawMessage) (string, error) {
	if len(config) > 0 {
		var c pluginConfig
		if err := json.Unmarshal(config, &c); err != nil {
			return "", fmt.Errorf("failed to parse config: %v", err)
		}
		if c.LogFile != "" {
			return c.LogFile, nil
		}
	}
	if p := os.Getenv("POSECUE_BEHAVIOR_LOG"); p != "" {
		return p, nil
	}
	return filepath.Join(os.TempDir(), "posecue-behaviors.log"), nil
}

func appendEntry(path string, e entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func failure(msg string) robot.Response {
	return robot.Response{Success: false, Error: msg}
}
