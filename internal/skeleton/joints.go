// Package skeleton provides body-tracking types and the tracker interface used by the pose pipeline.
package skeleton

import "math"

// Joint indices of the 34-joint body format emitted by the depth-camera tracker.
const (
	Pelvis        = 0
	NavalSpine    = 1
	ChestSpine    = 2
	Neck          = 3
	LeftClavicle  = 4
	LeftShoulder  = 5
	LeftElbow     = 6
	LeftWrist     = 7
	LeftHand      = 8
	LeftHandTip   = 9
	LeftThumb     = 10
	RightClavicle = 11
	RightShoulder = 12
	RightElbow    = 13
	RightWrist    = 14
	RightHand     = 15
	RightHandTip  = 16
	RightThumb    = 17
	LeftHip       = 18
	LeftKnee      = 19
	LeftAnkle     = 20
	LeftFoot      = 21
	RightHip      = 22
	RightKnee     = 23
	RightAnkle    = 24
	RightFoot     = 25
	Head          = 26
	Nose          = 27
	LeftEye       = 28
	LeftEar       = 29
	RightEye      = 30
	RightEar      = 31
	LeftHeel      = 32
	RightHeel     = 33

	// NumRawJoints is the number of joints reported by the tracker.
	NumRawJoints = 34
	// NumJoints is the number of joints kept after preprocessing.
	NumJoints = 19
	// RawDim is the flattened width of a raw skeleton.
	RawDim = NumRawJoints * 3
	// Dim is the flattened width of a canonical skeleton (classifier feature dimension).
	Dim = NumJoints * 3
)

// ReferenceJoint is the joint that becomes the origin after preprocessing.
// Index 1 keeps the same position in both the raw and the canonical layout.
const ReferenceJoint = NavalSpine

// Keypoint is a tracked 3D joint position in meters.
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns k - o.
func (k Keypoint) Sub(o Keypoint) Keypoint {
	return Keypoint{X: k.X - o.X, Y: k.Y - o.Y, Z: k.Z - o.Z}
}

// Neg returns the keypoint with every coordinate negated.
func (k Keypoint) Neg() Keypoint {
	return Keypoint{X: -k.X, Y: -k.Y, Z: -k.Z}
}

// Distance returns the Euclidean distance between two keypoints.
func (k Keypoint) Distance(o Keypoint) float64 {
	d := k.Sub(o)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// Raw is a full 34-joint skeleton as reported by the tracker.
type Raw [NumRawJoints]Keypoint

// Canonical is the reduced 19-joint skeleton consumed by the classifier.
type Canonical [NumJoints]Keypoint

// Flatten returns the skeleton as x0,y0,z0,x1,... values.
func (r *Raw) Flatten() []float64 {
	return flatten(r[:])
}

// Flatten returns the skeleton as x0,y0,z0,x1,... values.
func (c *Canonical) Flatten() []float64 {
	return flatten(c[:])
}

// RawFromRow builds a raw skeleton from a flattened row of RawDim values.
// It returns false if the row has the wrong width.
func RawFromRow(row []float64) (Raw, bool) {
	var r Raw
	if len(row) != RawDim {
		return r, false
	}
	for i := range r {
		r[i] = Keypoint{X: row[3*i], Y: row[3*i+1], Z: row[3*i+2]}
	}
	return r, true
}

// CanonicalFromRow builds a canonical skeleton from a flattened row of Dim values.
func CanonicalFromRow(row []float64) (Canonical, bool) {
	var c Canonical
	if len(row) != Dim {
		return c, false
	}
	for i := range c {
		c[i] = Keypoint{X: row[3*i], Y: row[3*i+1], Z: row[3*i+2]}
	}
	return c, true
}

func flatten(points []Keypoint) []float64 {
	out := make([]float64, 0, len(points)*3)
	for _, p := range points {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}
