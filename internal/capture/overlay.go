package capture

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/skeleton"
)

// bones pairs raw joints to connect when drawing a skeleton. Pairs touching
// a dropped joint are skipped.
var bones = [][2]int{
	{skeleton.Pelvis, skeleton.NavalSpine},
	{skeleton.NavalSpine, skeleton.ChestSpine},
	{skeleton.ChestSpine, skeleton.Neck},
	{skeleton.Neck, skeleton.Head},
	{skeleton.Neck, skeleton.LeftClavicle},
	{skeleton.LeftClavicle, skeleton.LeftShoulder},
	{skeleton.LeftShoulder, skeleton.LeftElbow},
	{skeleton.LeftElbow, skeleton.LeftHand},
	{skeleton.Neck, skeleton.RightClavicle},
	{skeleton.RightClavicle, skeleton.RightShoulder},
	{skeleton.RightShoulder, skeleton.RightElbow},
	{skeleton.RightElbow, skeleton.RightHand},
	{skeleton.Pelvis, skeleton.LeftHip},
	{skeleton.LeftHip, skeleton.LeftKnee},
	{skeleton.LeftKnee, skeleton.LeftAnkle},
	{skeleton.Pelvis, skeleton.RightHip},
	{skeleton.RightHip, skeleton.RightKnee},
	{skeleton.RightKnee, skeleton.RightAnkle},
}

var (
	boneColor   = color.RGBA{R: 80, G: 200, B: 255, A: 0}
	jointColor  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	activeColor = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	pausedColor = color.RGBA{R: 0, G: 0, B: 220, A: 0}
)

// canonicalIndex maps a raw joint to its position in the canonical layout.
var canonicalIndex = func() map[int]int {
	m := make(map[int]int, len(preprocess.KeptJoints))
	for i, j := range preprocess.KeptJoints {
		m[j] = i
	}
	return m
}()

// Annotation is what gets drawn onto a preview frame.
type Annotation struct {
	// Lines are drawn top-left, one per row.
	Lines []string

	// Active selects the status marker colour.
	Active bool

	// Skeleton is the last tracked body. Optional.
	Skeleton *skeleton.Raw
}

// Annotate draws a onto img in place.
func Annotate(img *gocv.Mat, a Annotation) {
	if img == nil || img.Empty() {
		return
	}

	if a.Skeleton != nil {
		drawSkeleton(img, a.Skeleton)
	}

	marker := pausedColor
	if a.Active {
		marker = activeColor
	}
	gocv.Circle(img, image.Pt(img.Cols()-20, 20), 8, marker, -1)

	for i, line := range a.Lines {
		gocv.PutText(img, line, image.Pt(10, 28+i*26), gocv.FontHersheySimplex, 0.7, textColor, 2)
	}
}

// drawSkeleton projects the canonical skeleton orthographically onto the
// frame, reference joint slightly below the centre.
func drawSkeleton(img *gocv.Mat, raw *skeleton.Raw) {
	c := preprocess.Reduce(raw)
	scale := float64(img.Rows()) / 2.5
	cx, cy := float64(img.Cols())/2, float64(img.Rows())*0.55

	project := func(k skeleton.Keypoint) image.Point {
		return image.Pt(int(cx+k.X*scale), int(cy-k.Y*scale))
	}

	for _, b := range bones {
		from, ok1 := canonicalIndex[b[0]]
		to, ok2 := canonicalIndex[b[1]]
		if !ok1 || !ok2 {
			continue
		}
		gocv.Line(img, project(c[from]), project(c[to]), boneColor, 3)
	}
	for _, k := range c {
		gocv.Circle(img, project(k), 4, jointColor, -1)
	}
}
