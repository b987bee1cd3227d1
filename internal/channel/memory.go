package channel

import (
	"context"
	"sync/atomic"
)

// MemorySlot is an in-process slot for running all stages in one process.
type MemorySlot struct {
	v atomic.Int64
}

// NewMemorySlot returns an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	s := &MemorySlot{}
	s.v.Store(emptyValue)
	return s
}

// Store overwrites the value.
func (s *MemorySlot) Store(_ context.Context, v int64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	s.v.Store(v)
	return nil
}

// TryLoad returns the value or ErrEmpty.
func (s *MemorySlot) TryLoad() (int64, error) {
	v := s.v.Load()
	if v == emptyValue {
		return 0, ErrEmpty
	}
	return v, nil
}

// Close is a no-op.
func (s *MemorySlot) Close() error { return nil }
