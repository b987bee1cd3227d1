package pnn

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Kernel selects the density kernel used by the pattern layer.
// The numeric values match the historical configuration tags 1-6.
type Kernel int

const (
	// Gaussian weighs samples by exp(-||x-t||²/(2σ²)).
	Gaussian Kernel = iota + 1
	// ManhattanGaussian uses the L1 distance inside the Gaussian exponent.
	ManhattanGaussian
	// Cosine uses the folded angle between vectors inside a Gaussian-style exponent.
	Cosine
	// ExponentialLaplace weighs samples by exp(-||x-t||²/σ), Fisher-normalised.
	ExponentialLaplace
	// Laplace weighs samples by exp(-|x-t|₁/σ), Fisher-normalised.
	Laplace
	// CosineLaplace weighs samples by exp(-angle/σ), Fisher-normalised.
	CosineLaplace
)

var kernelNames = map[Kernel]string{
	Gaussian:           "gaussian",
	ManhattanGaussian:  "manhattan-gaussian",
	Cosine:             "cosine",
	ExponentialLaplace: "exponential-laplace",
	Laplace:            "laplace",
	CosineLaplace:      "cosine-laplace",
}

// String returns the kernel name.
func (k Kernel) String() string {
	if name, ok := kernelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// Valid reports whether k names one of the six kernels.
func (k Kernel) Valid() bool {
	_, ok := kernelNames[k]
	return ok
}

// ParseKernel accepts a kernel name or its numeric tag.
func ParseKernel(s string) (Kernel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		k := Kernel(n)
		if !k.Valid() {
			return 0, fmt.Errorf("unknown kernel tag %d", n)
		}
		return k, nil
	}
	for k, name := range kernelNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kernel %q", s)
}

// strategy is the per-kernel part of the summation layer: a distance between
// the test vector and a training sample, and the log-weight that distance earns.
type strategy struct {
	distance  func(a, b []float64) float64
	logWeight func(dist, sigma float64) float64
	// fisher selects the 2·σ^d·between/within normaliser instead of (2π)^(d/2)·σ^d.
	fisher bool
}

func gaussianExp(dist, sigma float64) float64 { return -dist / (2 * sigma * sigma) }
func laplaceExp(dist, sigma float64) float64  { return -dist / sigma }

func (k Kernel) strategy() strategy {
	switch k {
	case Gaussian:
		return strategy{distance: squaredEuclidean, logWeight: gaussianExp}
	case ManhattanGaussian:
		return strategy{distance: manhattan, logWeight: gaussianExp}
	case Cosine:
		return strategy{distance: foldedAngle, logWeight: gaussianExp}
	case ExponentialLaplace:
		return strategy{distance: squaredEuclidean, logWeight: laplaceExp, fisher: true}
	case Laplace:
		return strategy{distance: manhattan, logWeight: laplaceExp, fisher: true}
	case CosineLaplace:
		return strategy{distance: foldedAngle, logWeight: laplaceExp, fisher: true}
	}
	panic(fmt.Sprintf("pnn: invalid kernel %d", int(k)))
}

func squaredEuclidean(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func manhattan(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// foldedAngle returns min(θ, π-θ) for the angle θ between a and b, so a
// vector and its negation are treated as the same direction.
// The cosine is clamped to [-1, 1] so rounding never produces NaN. A zero
// vector has no direction; it gets the largest folded angle, π/2.
func foldedAngle(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return math.Pi / 2
	}
	cos := floats.Dot(a, b) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)
	return math.Min(theta, math.Pi-theta)
}
