// Package pnn implements a probabilistic neural network pose classifier.
//
// The network has no trained weights: every training vector is a pattern
// unit, the summation layer adds kernel weights per class and the output
// layer picks the class with the largest normalised density. Scores are
// kept in log space so that the tiny bandwidth does not underflow to zero.
package pnn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultSigma is the kernel bandwidth the pose vocabulary was tuned with.
const DefaultSigma = 0.01867524

var (
	// ErrDimension is returned when vectors of different lengths meet.
	ErrDimension = errors.New("vector dimension mismatch")

	// ErrEmptyTrainingSet is returned by New when there is nothing to learn from.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrNoCandidate is returned when every class scores -Inf for a vector.
	ErrNoCandidate = errors.New("no class can be selected")
)

// TrainingSet maps each label to its feature vectors.
type TrainingSet map[Label][][]float64

// Add appends a feature vector to the label's class.
func (ts TrainingSet) Add(label Label, vec []float64) {
	ts[label] = append(ts[label], vec)
}

// Len returns the total number of vectors.
func (ts TrainingSet) Len() int {
	n := 0
	for _, vecs := range ts {
		n += len(vecs)
	}
	return n
}

// Config holds classifier parameters.
type Config struct {
	// Sigma is the kernel bandwidth. Zero means DefaultSigma.
	Sigma float64

	// Kernel selects the density kernel. Zero means Gaussian.
	Kernel Kernel

	// Workers bounds parallel row classification. Zero means GOMAXPROCS.
	Workers int

	// Notifier receives label transitions found inside a window. Optional.
	Notifier *Notifier
}

// Classifier scores feature vectors against a fixed training set.
type Classifier struct {
	sigma    float64
	kernel   Kernel
	strategy strategy
	workers  int
	notifier *Notifier

	dim     int
	classes [NumLabels][][]float64
	priors  [NumLabels]float64
	within  float64
	between float64
	// logNorm is the per-class log normaliser, including log(n_c).
	logNorm [NumLabels]float64
}

// New builds a classifier from the training set. All vectors must share one
// dimension. Labels outside the known set are rejected.
func New(ts TrainingSet, cfg Config) (*Classifier, error) {
	if cfg.Sigma == 0 {
		cfg.Sigma = DefaultSigma
	}
	if cfg.Sigma < 0 || math.IsNaN(cfg.Sigma) || math.IsInf(cfg.Sigma, 0) {
		return nil, fmt.Errorf("invalid sigma %g", cfg.Sigma)
	}
	if cfg.Kernel == 0 {
		cfg.Kernel = Gaussian
	}
	if !cfg.Kernel.Valid() {
		return nil, fmt.Errorf("invalid kernel %d", int(cfg.Kernel))
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	c := &Classifier{
		sigma:    cfg.Sigma,
		kernel:   cfg.Kernel,
		strategy: cfg.Kernel.strategy(),
		workers:  cfg.Workers,
		notifier: cfg.Notifier,
		dim:      -1,
	}

	total := 0
	for label, vecs := range ts {
		if !label.Valid() {
			return nil, fmt.Errorf("training set contains unknown label %d", int(label))
		}
		for i, v := range vecs {
			if c.dim < 0 {
				c.dim = len(v)
			}
			if len(v) != c.dim {
				return nil, fmt.Errorf("%s sample %d has %d values, expected %d: %w", label, i, len(v), c.dim, ErrDimension)
			}
		}
		total += len(vecs)
	}
	if total == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if c.dim == 0 {
		return nil, fmt.Errorf("zero-length feature vectors: %w", ErrDimension)
	}

	for _, label := range Labels() {
		c.classes[label] = ts[label]
		c.priors[label] = float64(len(ts[label])) / float64(total)
	}
	c.separation()
	c.normalisers()
	return c, nil
}

// separation computes the prior-weighted within-class variance and the
// prior-weighted squared distance of class means from the global mean.
func (c *Classifier) separation() {
	global := make([]float64, c.dim)
	means := [NumLabels][]float64{}
	total := 0

	for _, label := range Labels() {
		vecs := c.classes[label]
		if len(vecs) == 0 {
			continue
		}
		mean := make([]float64, c.dim)
		flat := make([]float64, 0, len(vecs)*c.dim)
		for _, v := range vecs {
			floats.Add(mean, v)
			floats.Add(global, v)
			flat = append(flat, v...)
		}
		floats.Scale(1/float64(len(vecs)), mean)
		means[label] = mean
		total += len(vecs)

		c.within += c.priors[label] * stat.PopVariance(flat, nil)
	}
	floats.Scale(1/float64(total), global)

	for _, label := range Labels() {
		if means[label] == nil {
			continue
		}
		d := floats.Distance(means[label], global, 2)
		c.between += c.priors[label] * d * d
	}
}

// ratio returns between/within, or 1 when the ratio is degenerate (a single
// class, or no spread inside the classes).
func (c *Classifier) ratio() float64 {
	r := c.between / c.within
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return 1
	}
	return r
}

func (c *Classifier) normalisers() {
	d := float64(c.dim)
	base := d * math.Log(c.sigma)
	if c.strategy.fisher {
		base += math.Log(2) + math.Log(c.ratio())
	} else {
		base += d / 2 * math.Log(2*math.Pi)
	}
	for _, label := range Labels() {
		n := len(c.classes[label])
		if n == 0 {
			c.logNorm[label] = math.Inf(1)
			continue
		}
		c.logNorm[label] = base + math.Log(float64(n))
	}
}

// Dim returns the feature dimension the classifier was trained on.
func (c *Classifier) Dim() int { return c.dim }

// Kernel returns the configured kernel.
func (c *Classifier) Kernel() Kernel { return c.kernel }

// Priors returns the class prior probabilities in label order.
func (c *Classifier) Priors() [NumLabels]float64 { return c.priors }

// Separation returns the within-class and between-class spread.
func (c *Classifier) Separation() (within, between float64) { return c.within, c.between }

// Scores returns the log density of vec under each class, in label order.
// A class without samples scores -Inf.
func (c *Classifier) Scores(vec []float64) ([NumLabels]float64, error) {
	var scores [NumLabels]float64
	if len(vec) != c.dim {
		return scores, fmt.Errorf("vector has %d values, expected %d: %w", len(vec), c.dim, ErrDimension)
	}

	var buf []float64
	for _, label := range Labels() {
		vecs := c.classes[label]
		if len(vecs) == 0 {
			scores[label] = math.Inf(-1)
			continue
		}
		buf = buf[:0]
		for _, t := range vecs {
			buf = append(buf, c.strategy.logWeight(c.strategy.distance(vec, t), c.sigma))
		}
		s := floats.LogSumExp(buf) - c.logNorm[label]
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		scores[label] = s
	}
	return scores, nil
}

// Classify returns the highest-scoring label for vec. Ties go to the first
// label in code order.
func (c *Classifier) Classify(vec []float64) (Label, error) {
	scores, err := c.Scores(vec)
	if err != nil {
		return 0, err
	}
	best := Label(-1)
	for _, label := range Labels() {
		if math.IsInf(scores[label], -1) {
			continue
		}
		if best < 0 || scores[label] > scores[best] {
			best = label
		}
	}
	if best < 0 {
		return 0, ErrNoCandidate
	}
	return best, nil
}

// Result is the outcome of classifying one window.
type Result struct {
	// Pose is the majority label.
	Pose Label
	// Rows holds the per-row predictions in row order.
	Rows []Label
	// Votes counts rows per label.
	Votes [NumLabels]int
}

// ClassifyWindow classifies every row in parallel and returns the majority
// vote. Adjacent rows with different predictions are reported to the
// notifier without waiting for delivery.
func (c *Classifier) ClassifyWindow(ctx context.Context, rows [][]float64) (Result, error) {
	if len(rows) == 0 {
		return Result{}, errors.New("empty window")
	}

	preds := make([]Label, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			label, err := c.Classify(row)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			preds[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Rows: preds}
	for _, p := range preds {
		res.Votes[p]++
	}
	res.Pose = Majority(res.Votes)

	for i := 1; i < len(preds); i++ {
		if preds[i] != preds[i-1] {
			c.notifier.Notify(Transition{From: preds[i-1], To: preds[i], Row: i})
		}
	}
	return res, nil
}

// Majority returns the label with the most votes. Ties go to the lowest code.
func Majority(votes [NumLabels]int) Label {
	best := Label(0)
	for _, label := range Labels() {
		if votes[label] > votes[best] {
			best = label
		}
	}
	return best
}
