//go:build !unix

package channel

import (
	"context"
	"errors"
)

var errNoShm = errors.New("shared memory slots need a unix system")

// SharedSlot is unavailable on this platform.
type SharedSlot struct{}

// OpenShared always fails on this platform.
func OpenShared(string, bool) (*SharedSlot, error) { return nil, errNoShm }

// OpenSharedAt always fails on this platform.
func OpenSharedAt(string, bool) (*SharedSlot, error) { return nil, errNoShm }

func (s *SharedSlot) Store(context.Context, int64) error { return errNoShm }
func (s *SharedSlot) TryLoad() (int64, error)            { return 0, errNoShm }
func (s *SharedSlot) Close() error                       { return nil }
