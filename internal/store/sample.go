package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/posecue/internal/pnn"
)

// Sample is one labelled feature vector of the training set.
type Sample struct {
	ID        string    `json:"id"`
	Label     pnn.Label `json:"label"`
	Features  []float64 `json:"features"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// SampleRepository stores training samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// CreateBatch inserts samples in a single transaction. Missing IDs are generated.
func (r *SampleRepository) CreateBatch(samples []*Sample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO training_samples (id, label, features, source, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i, smp := range samples {
		if !smp.Label.Valid() {
			return fmt.Errorf("sample %d: invalid label %d", i, int(smp.Label))
		}
		if smp.ID == "" {
			smp.ID = uuid.NewString()
		}
		smp.CreatedAt = now

		data, err := json.Marshal(smp.Features)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if _, err := stmt.Exec(smp.ID, int(smp.Label), string(data), smp.Source, smp.CreatedAt); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// List returns samples with the given label, or all samples when label is nil.
func (r *SampleRepository) List(label *pnn.Label) ([]*Sample, error) {
	query := `SELECT id, label, features, source, created_at FROM training_samples`
	var args []any
	if label != nil {
		query += ` WHERE label = ?`
		args = append(args, int(*label))
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		smp := &Sample{}
		var label int
		var data string
		if err := rows.Scan(&smp.ID, &label, &data, &smp.Source, &smp.CreatedAt); err != nil {
			return nil, err
		}
		smp.Label = pnn.Label(label)
		if err := json.Unmarshal([]byte(data), &smp.Features); err != nil {
			return nil, fmt.Errorf("sample %s: %w", smp.ID, err)
		}
		samples = append(samples, smp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// TrainingSet loads every sample grouped by label.
func (r *SampleRepository) TrainingSet() (pnn.TrainingSet, error) {
	samples, err := r.List(nil)
	if err != nil {
		return nil, err
	}
	ts := pnn.TrainingSet{}
	for _, smp := range samples {
		ts.Add(smp.Label, smp.Features)
	}
	return ts, nil
}

// CountByLabel returns the number of samples per label. Labels without
// samples are present with a zero count.
func (r *SampleRepository) CountByLabel() (map[pnn.Label]int, error) {
	counts := make(map[pnn.Label]int, pnn.NumLabels)
	for _, l := range pnn.Labels() {
		counts[l] = 0
	}

	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM training_samples GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var label, n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[pnn.Label(label)] = n
	}
	return counts, rows.Err()
}

// DeleteBySource removes every sample imported from source and returns how many were removed.
func (r *SampleRepository) DeleteBySource(source string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM training_samples WHERE source = ?`, source)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
