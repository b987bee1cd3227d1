package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ayusman/posecue/internal/dataset"
	"github.com/ayusman/posecue/internal/skeleton"
)

// replayConfidence is the tracking confidence given to replayed bodies.
// Dumps only hold bodies the tracker already accepted.
const replayConfidence = 100

// replayTracker plays back a raw tracker CSV at the predictor tick.
func replayTracker(path string, interval time.Duration, loop bool) (*skeleton.ReplayTracker, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	rows, _, err := dataset.ReadRaw(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	skeletons := make([]skeleton.Raw, 0, len(rows))
	for _, row := range rows {
		raw, ok := skeleton.RawFromRow(row)
		if !ok {
			return nil, 0, fmt.Errorf("read %s: row has %d values", path, len(row))
		}
		skeletons = append(skeletons, raw)
	}
	return skeleton.NewReplayTracker(skeletons, interval, replayConfidence, loop), len(skeletons), nil
}

// demoSkeletons holds sit, stand, sit, stand one-hand, sit one-hand and
// stand, each for three windows.
func demoSkeletons(windowSize int) []skeleton.Raw {
	poses := []skeleton.Raw{
		skeleton.SittingSkeleton(),
		skeleton.StandingSkeleton(),
		skeleton.SittingSkeleton(),
		skeleton.StandingOneHandSkeleton(),
		skeleton.SittingOneHandSkeleton(),
		skeleton.StandingSkeleton(),
	}
	per := 3 * windowSize
	out := make([]skeleton.Raw, 0, per*len(poses))
	for _, p := range poses {
		for i := 0; i < per; i++ {
			out = append(out, p)
		}
	}
	return out
}

func demoTracker(windowSize int, interval time.Duration, loop bool) *skeleton.ReplayTracker {
	return skeleton.NewReplayTracker(demoSkeletons(windowSize), interval, replayConfidence, loop)
}
