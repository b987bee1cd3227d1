// Package preprocess reduces raw 34-joint tracker skeletons to the canonical
// 19-joint, pelvis-centred, smoothed feature rows the classifier is trained on.
package preprocess

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/posecue/internal/skeleton"
)

// SmoothingWindow is the trailing moving-average length applied across rows.
const SmoothingWindow = 5

// ErrDataRead is returned when a batch is empty or cannot be interpreted.
var ErrDataRead = errors.New("data read failure")

// DroppedJoints lists the raw joints that carry no information for the pose vocabulary.
var DroppedJoints = []int{7, 9, 10, 14, 16, 17, 21, 25, 27, 28, 29, 30, 31, 32, 33}

// KeptJoints lists the raw joint index of each canonical joint, in canonical order.
var KeptJoints = keptJoints()

func keptJoints() []int {
	kept := make([]int, 0, skeleton.NumJoints)
	for i := 0; i < skeleton.NumRawJoints; i++ {
		if !slices.Contains(DroppedJoints, i) {
			kept = append(kept, i)
		}
	}
	return kept
}

// Reduce converts one raw skeleton into the canonical layout: coordinates are
// negated (the tracker frame is upside down), dropped joints removed and the
// reference joint moved to the origin. No smoothing is applied.
func Reduce(raw *skeleton.Raw) skeleton.Canonical {
	var out skeleton.Canonical
	ref := raw[skeleton.ReferenceJoint].Neg()
	for i, j := range KeptJoints {
		out[i] = raw[j].Neg().Sub(ref)
	}
	return out
}

// Window reduces a window of raw skeletons and returns smoothed feature rows.
func Window(raws []skeleton.Raw) ([][]float64, error) {
	if len(raws) == 0 {
		return nil, fmt.Errorf("empty window: %w", ErrDataRead)
	}
	rows := make([][]float64, len(raws))
	for i := range raws {
		c := Reduce(&raws[i])
		rows[i] = c.Flatten()
	}
	return Smooth(rows, SmoothingWindow), nil
}

// Rows preprocesses a batch of flattened raw rows (RawDim values each).
func Rows(rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty batch: %w", ErrDataRead)
	}
	raws := make([]skeleton.Raw, len(rows))
	for i, row := range rows {
		r, ok := skeleton.RawFromRow(row)
		if !ok {
			return nil, fmt.Errorf("row %d has %d columns, expected %d: %w", i, len(row), skeleton.RawDim, ErrDataRead)
		}
		raws[i] = r
	}
	return Window(raws)
}

// Smooth applies a trailing moving average of the given length to every
// column. Leading rows average over however many samples are available.
// The input is not modified.
func Smooth(rows [][]float64, size int) [][]float64 {
	if size < 1 {
		size = 1
	}
	out := make([][]float64, len(rows))
	if len(rows) == 0 {
		return out
	}

	width := len(rows[0])
	sums := make([]float64, width)
	for i, row := range rows {
		floats.Add(sums, row[:width])
		if i >= size {
			floats.Sub(sums, rows[i-size][:width])
		}

		smoothed := make([]float64, width)
		floats.ScaleTo(smoothed, 1/float64(min(i+1, size)), sums)
		out[i] = smoothed
	}
	return out
}

// Header returns the canonical column names x0,y0,z0,...,x18,y18,z18.
func Header() []string {
	return header(skeleton.NumJoints)
}

// RawHeader returns the tracker dump column names x0,...,z33.
func RawHeader() []string {
	return header(skeleton.NumRawJoints)
}

func header(joints int) []string {
	cols := make([]string, 0, joints*3)
	for i := 0; i < joints; i++ {
		cols = append(cols, fmt.Sprintf("x%d", i), fmt.Sprintf("y%d", i), fmt.Sprintf("z%d", i))
	}
	return cols
}
