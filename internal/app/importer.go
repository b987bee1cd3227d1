package app

import (
	"fmt"
	"io"

	"github.com/ayusman/posecue/internal/dataset"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/store"
)

// ImportResult summarises one CSV import.
type ImportResult struct {
	Format   string            `json:"format"`
	Imported int               `json:"imported"`
	Replaced int64             `json:"replaced"`
	Counts   map[pnn.Label]int `json:"counts"`
}

// ImportSamples reads a training or raw tracker CSV and stores its samples
// under source. Samples previously imported from the same source are
// replaced. Raw rows without a label are stored as fallback.
func ImportSamples(samples *store.SampleRepository, r io.Reader, source string, fallback pnn.Label) (*ImportResult, error) {
	parsed, format, err := dataset.Import(r, fallback)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%s contains no samples", source)
	}

	batch := make([]*store.Sample, len(parsed))
	res := &ImportResult{Format: format.String(), Counts: make(map[pnn.Label]int)}
	for i, s := range parsed {
		batch[i] = &store.Sample{Label: s.Label, Features: s.Features, Source: source}
		res.Counts[s.Label]++
	}

	replaced, err := samples.DeleteBySource(source)
	if err != nil {
		return nil, fmt.Errorf("remove previous import: %w", err)
	}
	if err := samples.CreateBatch(batch); err != nil {
		return nil, fmt.Errorf("store samples: %w", err)
	}
	res.Imported = len(batch)
	res.Replaced = replaced
	return res, nil
}
