// Package dataset reads and writes the CSV files exchanged with the
// training tools: preprocessed training sets (x0..z18 plus a label column)
// and raw tracker dumps (x0..z33, optionally labelled).
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/skeleton"
)

// Format identifies a CSV layout.
type Format int

const (
	FormatUnknown Format = iota
	// FormatTraining has skeleton.Dim feature columns and a label column.
	FormatTraining
	// FormatRaw has skeleton.RawDim columns and an optional label column.
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatTraining:
		return "training"
	case FormatRaw:
		return "raw"
	}
	return "unknown"
}

// Sample is one labelled feature row.
type Sample struct {
	Label    pnn.Label
	Features []float64
}

// DetectFormat classifies a header row by its width.
func DetectFormat(header []string) Format {
	switch len(header) {
	case skeleton.Dim + 1:
		return FormatTraining
	case skeleton.RawDim, skeleton.RawDim + 1:
		return FormatRaw
	}
	return FormatUnknown
}

func readAll(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("no data rows: %w", preprocess.ErrDataRead)
	}
	return records[0], records[1:], nil
}

func parseFloats(fields []string, line int) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ReadTraining reads a preprocessed training file.
func ReadTraining(r io.Reader) ([]Sample, error) {
	header, records, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if DetectFormat(header) != FormatTraining {
		return nil, fmt.Errorf("training file has %d columns, expected %d: %w", len(header), skeleton.Dim+1, preprocess.ErrDataRead)
	}

	samples := make([]Sample, 0, len(records))
	for i, rec := range records {
		line := i + 2
		if len(rec) != skeleton.Dim+1 {
			return nil, fmt.Errorf("line %d has %d columns: %w", line, len(rec), preprocess.ErrDataRead)
		}
		features, err := parseFloats(rec[:skeleton.Dim], line)
		if err != nil {
			return nil, err
		}
		label, err := pnn.ParseLabel(rec[skeleton.Dim])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, Sample{Label: label, Features: features})
	}
	return samples, nil
}

// ReadWindow reads feature rows in the training layout, ignoring the label
// column, which may hold a placeholder.
func ReadWindow(r io.Reader) ([][]float64, error) {
	header, records, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if len(header) != skeleton.Dim && len(header) != skeleton.Dim+1 {
		return nil, fmt.Errorf("window file has %d columns: %w", len(header), preprocess.ErrDataRead)
	}

	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		if len(rec) < skeleton.Dim {
			return nil, fmt.Errorf("line %d has %d columns: %w", i+2, len(rec), preprocess.ErrDataRead)
		}
		row, err := parseFloats(rec[:skeleton.Dim], i+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadRaw reads a tracker dump. labels[i] is empty when the file has no label column.
func ReadRaw(r io.Reader) (rows [][]float64, labels []string, err error) {
	header, records, err := readAll(r)
	if err != nil {
		return nil, nil, err
	}
	if DetectFormat(header) != FormatRaw {
		return nil, nil, fmt.Errorf("raw file has %d columns, expected %d: %w", len(header), skeleton.RawDim, preprocess.ErrDataRead)
	}
	labelled := len(header) == skeleton.RawDim+1

	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, nil, fmt.Errorf("line %d has %d columns: %w", i+2, len(rec), preprocess.ErrDataRead)
		}
		row, err := parseFloats(rec[:skeleton.RawDim], i+2)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
		if labelled {
			labels = append(labels, strings.TrimSpace(rec[skeleton.RawDim]))
		} else {
			labels = append(labels, "")
		}
	}
	return rows, labels, nil
}

// ImportRaw reads a tracker dump and preprocesses it into samples. Rows
// without a label get fallback. Smoothing runs over each run of identically
// labelled rows so neighbouring poses do not bleed into each other.
func ImportRaw(r io.Reader, fallback pnn.Label) ([]Sample, error) {
	rows, names, err := ReadRaw(r)
	if err != nil {
		return nil, err
	}

	labels := make([]pnn.Label, len(rows))
	for i, name := range names {
		if name == "" {
			labels[i] = fallback
			continue
		}
		l, err := pnn.ParseLabel(name)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		labels[i] = l
	}

	var samples []Sample
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && labels[end] == labels[start] {
			end++
		}
		features, err := preprocess.Rows(rows[start:end])
		if err != nil {
			return nil, err
		}
		for _, f := range features {
			samples = append(samples, Sample{Label: labels[start], Features: f})
		}
		start = end
	}
	return samples, nil
}

// Import reads either layout, detected from the header.
func Import(r io.Reader, fallback pnn.Label) ([]Sample, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("read input: %w", err)
	}
	text := string(data)
	first, _, _ := strings.Cut(text, "\n")
	header, err := csv.NewReader(strings.NewReader(first)).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = preprocess.ErrDataRead
		}
		return nil, FormatUnknown, fmt.Errorf("read header: %w", err)
	}

	switch f := DetectFormat(header); f {
	case FormatTraining:
		samples, err := ReadTraining(strings.NewReader(text))
		return samples, f, err
	case FormatRaw:
		samples, err := ImportRaw(strings.NewReader(text), fallback)
		return samples, f, err
	}
	return nil, FormatUnknown, fmt.Errorf("unrecognised layout with %d columns: %w", len(header), preprocess.ErrDataRead)
}

// WriteTraining writes samples in the training layout.
func WriteTraining(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(preprocess.Header(), "label")); err != nil {
		return err
	}
	rec := make([]string, skeleton.Dim+1)
	for i, s := range samples {
		if len(s.Features) != skeleton.Dim {
			return fmt.Errorf("sample %d has %d features, expected %d", i, len(s.Features), skeleton.Dim)
		}
		for j, v := range s.Features {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		rec[skeleton.Dim] = s.Label.String()
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TrainingSet groups samples by label.
func TrainingSet(samples []Sample) pnn.TrainingSet {
	ts := pnn.TrainingSet{}
	for _, s := range samples {
		ts.Add(s.Label, s.Features)
	}
	return ts
}
