// Package robot turns action codes into robot behaviors. Behaviors are
// provided by external plugins that read a JSON request on stdin and answer
// with a JSON response on stdout.
package robot

import "encoding/json"

// Behaviors the robot command layer understands.
const (
	BehaviorStand  = "stand"
	BehaviorSit    = "sit"
	BehaviorRotate = "rotate"
	BehaviorMove   = "move"
	BehaviorGrasp  = "grasp"
)

// KnownBehaviors lists every behavior name in a stable order.
var KnownBehaviors = []string{BehaviorStand, BehaviorSit, BehaviorRotate, BehaviorMove, BehaviorGrasp}

// Manifest describes a plugin's metadata and the behaviors it implements.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Behaviors   []string `json:"behaviors"`
}

// Supports reports whether the plugin lists behavior. An empty list means any.
func (m Manifest) Supports(behavior string) bool {
	if len(m.Behaviors) == 0 {
		return true
	}
	for _, b := range m.Behaviors {
		if b == behavior {
			return true
		}
	}
	return false
}

// Request is sent to a plugin on stdin.
type Request struct {
	Behavior string          `json:"behavior"`
	Action   int64           `json:"action"`
	Config   json.RawMessage `json:"config,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
