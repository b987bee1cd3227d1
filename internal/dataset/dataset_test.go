package dataset

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/skeleton"
)

func trainingCSV(t *testing.T, samples []Sample) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteTraining(&buf, samples); err != nil {
		t.Fatalf("WriteTraining() error = %v", err)
	}
	return buf.String()
}

func featureRow(v float64) []float64 {
	row := make([]float64, skeleton.Dim)
	for i := range row {
		row[i] = v + float64(i)/100
	}
	return row
}

func rawCSV(rows []skeleton.Raw, labels []string) string {
	var b strings.Builder
	header := preprocess.RawHeader()
	if labels != nil {
		header = append(header, "label")
	}
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for i, raw := range rows {
		vals := raw.Flatten()
		fields := make([]string, 0, len(vals)+1)
		for _, v := range vals {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if labels != nil {
			fields = append(fields, labels[i])
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestReadTraining(t *testing.T) {
	in := []Sample{
		{Label: pnn.Sitting, Features: featureRow(0.1)},
		{Label: pnn.StandingOneHand, Features: featureRow(-0.4)},
	}
	got, err := ReadTraining(strings.NewReader(trainingCSV(t, in)))
	if err != nil {
		t.Fatalf("ReadTraining() error = %v", err)
	}
	if diff := cmp.Diff(in, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("ReadTraining() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTraining_NormalisesMisspelledLabel(t *testing.T) {
	text := trainingCSV(t, []Sample{{Label: pnn.Sitting, Features: featureRow(0)}})
	text = strings.Replace(text, ",sitting\n", ",sittting\n", 1)

	got, err := ReadTraining(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadTraining() error = %v", err)
	}
	if got[0].Label != pnn.Sitting {
		t.Errorf("label = %v, want sitting", got[0].Label)
	}
}

func TestReadTraining_Failures(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"header only", strings.Join(append(preprocess.Header(), "label"), ",") + "\n"},
		{"wrong width", "a,b,c\n1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTraining(strings.NewReader(tt.in))
			if !errors.Is(err, preprocess.ErrDataRead) {
				t.Errorf("ReadTraining() error = %v, want ErrDataRead", err)
			}
		})
	}

	bad := trainingCSV(t, []Sample{{Label: pnn.Sitting, Features: featureRow(0)}})
	bad = strings.Replace(bad, ",sitting\n", ",lying\n", 1)
	if _, err := ReadTraining(strings.NewReader(bad)); err == nil {
		t.Error("ReadTraining() accepted an unknown label")
	}
}

func TestReadWindow_IgnoresLabel(t *testing.T) {
	text := trainingCSV(t, []Sample{
		{Label: pnn.Sitting, Features: featureRow(1)},
		{Label: pnn.Sitting, Features: featureRow(2)},
	})
	text = strings.ReplaceAll(text, ",sitting\n", ",?\n")

	rows, err := ReadWindow(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadWindow() error = %v", err)
	}
	if len(rows) != 2 || len(rows[1]) != skeleton.Dim {
		t.Fatalf("ReadWindow() returned %d rows", len(rows))
	}
}

func TestImportRaw_GroupsByLabel(t *testing.T) {
	raws := []skeleton.Raw{
		skeleton.StandingSkeleton(), skeleton.StandingSkeleton(),
		skeleton.SittingSkeleton(), skeleton.SittingSkeleton(), skeleton.SittingSkeleton(),
	}
	labels := []string{"standing", "standing", "sittting", "sitting", "sitting"}

	samples, err := ImportRaw(strings.NewReader(rawCSV(raws, labels)), pnn.Standing)
	if err != nil {
		t.Fatalf("ImportRaw() error = %v", err)
	}
	if len(samples) != len(raws) {
		t.Fatalf("ImportRaw() returned %d samples, want %d", len(samples), len(raws))
	}

	// Within a run of identical skeletons smoothing changes nothing, so the
	// first sitting row must equal a freshly reduced sitting skeleton.
	sitting := skeleton.SittingSkeleton()
	c := preprocess.Reduce(&sitting)
	want := c.Flatten()
	if diff := cmp.Diff(want, samples[2].Features, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("first sitting sample was smoothed across labels (-want +got):\n%s", diff)
	}
	if samples[0].Label != pnn.Standing || samples[4].Label != pnn.Sitting {
		t.Errorf("labels = %v ... %v", samples[0].Label, samples[4].Label)
	}
}

func TestImport_DetectsLayout(t *testing.T) {
	raw := rawCSV([]skeleton.Raw{skeleton.StandingOneHandSkeleton()}, nil)
	samples, format, err := Import(strings.NewReader(raw), pnn.StandingOneHand)
	if err != nil {
		t.Fatalf("Import(raw) error = %v", err)
	}
	if format != FormatRaw || len(samples) != 1 || samples[0].Label != pnn.StandingOneHand {
		t.Errorf("Import(raw) = %v %d samples", format, len(samples))
	}

	training := trainingCSV(t, []Sample{{Label: pnn.Standing, Features: featureRow(0)}})
	samples, format, err = Import(strings.NewReader(training), pnn.Sitting)
	if err != nil {
		t.Fatalf("Import(training) error = %v", err)
	}
	if format != FormatTraining || samples[0].Label != pnn.Standing {
		t.Errorf("Import(training) = %v %+v", format, samples[0].Label)
	}

	if _, _, err := Import(strings.NewReader("a,b\n1,2\n"), pnn.Sitting); !errors.Is(err, preprocess.ErrDataRead) {
		t.Errorf("Import(unknown) error = %v, want ErrDataRead", err)
	}
}

func TestTrainingSet(t *testing.T) {
	ts := TrainingSet([]Sample{
		{Label: pnn.Sitting, Features: featureRow(0)},
		{Label: pnn.Sitting, Features: featureRow(1)},
		{Label: pnn.Standing, Features: featureRow(2)},
	})
	if len(ts[pnn.Sitting]) != 2 || len(ts[pnn.Standing]) != 1 || ts.Len() != 3 {
		t.Errorf("TrainingSet() grouped %v", ts)
	}
}
