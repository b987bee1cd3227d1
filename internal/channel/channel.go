// Package channel carries single integer codes between pipeline stages.
//
// A Slot holds one value with last-write-wins semantics: there is no queue,
// a slow reader may miss intermediate values, and reads never block.
package channel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrEmpty is returned by TryLoad when nothing has been stored yet.
var ErrEmpty = errors.New("slot is empty")

// emptyValue marks an initialised but unwritten slot. It cannot be stored.
const emptyValue = math.MinInt64

// Slot is a single-value channel.
type Slot interface {
	// Store overwrites the value.
	Store(ctx context.Context, v int64) error
	// TryLoad returns the current value without blocking, or ErrEmpty.
	TryLoad() (int64, error)
	// Close releases the slot. The owning side also removes the backing resource.
	Close() error
}

func checkValue(v int64) error {
	if v == emptyValue {
		return fmt.Errorf("value %d is reserved", v)
	}
	return nil
}

// Backoff controls how Load polls an empty slot.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoff returns the polling schedule used by the pipeline loops.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: 10 * time.Millisecond,
		Max:     500 * time.Millisecond,
		Factor:  2,
	}
}

func (b Backoff) next(d time.Duration) time.Duration {
	if d <= 0 {
		d = b.Initial
	} else if b.Factor > 1 {
		d = time.Duration(float64(d) * b.Factor)
	}
	if d <= 0 {
		d = time.Millisecond
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Load polls slot until a value is available or ctx is done.
func Load(ctx context.Context, slot Slot, b Backoff) (int64, error) {
	var wait time.Duration
	var lastErr error
	for {
		v, err := slot.TryLoad()
		if err == nil {
			return v, nil
		}
		lastErr = err

		wait = b.next(wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
}

// Kind names a Slot implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindShared Kind = "shm"
	KindMQTT   Kind = "mqtt"
)

// ParseKind validates a slot kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMemory, KindFile, KindShared, KindMQTT:
		return k, nil
	}
	return "", fmt.Errorf("unknown slot kind %q", s)
}

// Options selects and configures a Slot for Open.
type Options struct {
	Kind Kind
	// Name is the file path, shared segment name or MQTT topic.
	Name string
	// Owner creates the backing resource and removes it on Close.
	Owner bool

	// MQTT settings.
	Broker   string
	Username string
	Password string
	Timeout  time.Duration

	Logger *zap.Logger
}

// Open creates the Slot described by opts.
func Open(opts Options) (Slot, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemorySlot(), nil
	case KindFile:
		return NewFileSlot(opts.Name, opts.Owner)
	case KindShared:
		return OpenShared(opts.Name, opts.Owner)
	case KindMQTT:
		return NewMQTTSlot(MQTTConfig{
			Broker:   opts.Broker,
			Topic:    opts.Name,
			Username: opts.Username,
			Password: opts.Password,
			Owner:    opts.Owner,
			Timeout:  opts.Timeout,
			Logger:   opts.Logger,
		})
	}
	return nil, fmt.Errorf("unknown slot kind %q", opts.Kind)
}
