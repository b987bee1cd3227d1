package pnn

import (
	"fmt"
	"strings"
)

// Label is a pose class. Its integer value is the pose code written to the pose channel.
type Label int

// Pose classes in code order.
const (
	Sitting Label = iota
	Standing
	SittingOneHand
	StandingOneHand

	// NumLabels is the size of the closed label set.
	NumLabels = 4
)

// Labels returns every label in code order.
func Labels() []Label {
	return []Label{Sitting, Standing, SittingOneHand, StandingOneHand}
}

var labelNames = [NumLabels]string{"sitting", "standing", "sitting_1hand", "standing_1hand"}

// String returns the label name used in training files.
func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("label(%d)", int(l))
	}
	return labelNames[l]
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < NumLabels
}

// Symbol returns the single-character form used in pose sequences.
func (l Label) Symbol() byte {
	return byte('0' + int(l))
}

// ParseLabel parses a training-file label. The historical "sittting" spelling is accepted.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	if s == "sittting" {
		s = "sitting"
	}
	for i, name := range labelNames {
		if name == s {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", s)
}
