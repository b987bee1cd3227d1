//go:build unix

package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ShmDir is where named shared segments live.
var ShmDir = "/dev/shm"

const segmentSize = 8

// SharedSlot stores the value as an int64 in a memory-mapped shared segment.
// Exactly one process should own a segment: the owner creates and clears it,
// and unlinks it on Close. Other processes attach lazily, so a reader started
// before the owner sees ErrEmpty until the segment appears.
type SharedSlot struct {
	path  string
	owner bool

	mu     sync.Mutex
	data   []byte
	ino    uint64
	closed bool
}

// OpenShared opens the segment called name under ShmDir.
func OpenShared(name string, owner bool) (*SharedSlot, error) {
	if name == "" {
		return nil, errors.New("shared segment name is required")
	}
	return OpenSharedAt(filepath.Join(ShmDir, name), owner)
}

// OpenSharedAt opens a segment at an explicit path.
func OpenSharedAt(path string, owner bool) (*SharedSlot, error) {
	s := &SharedSlot{path: path, owner: owner}
	if owner {
		if err := s.create(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// create builds and initialises the segment under a temporary name and
// renames it into place, so readers never map a segment that is not yet
// marked empty.
func (s *SharedSlot) create() error {
	tmp := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	fd, err := unix.Open(tmp, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", s.path, err)
	}
	defer unix.Close(fd)

	fail := func(err error) error {
		if s.data != nil {
			unix.Munmap(s.data)
			s.data = nil
		}
		unix.Unlink(tmp)
		return err
	}

	if err := unix.Ftruncate(fd, segmentSize); err != nil {
		return fail(fmt.Errorf("size segment %s: %w", s.path, err))
	}
	if err := s.mmap(fd); err != nil {
		return fail(err)
	}
	atomic.StoreInt64(s.word(), emptyValue)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fail(fmt.Errorf("stat segment %s: %w", s.path, err))
	}
	if err := unix.Rename(tmp, s.path); err != nil {
		return fail(fmt.Errorf("publish segment %s: %w", s.path, err))
	}
	s.ino = uint64(st.Ino)
	return nil
}

func (s *SharedSlot) mmap(fd int) error {
	data, err := unix.Mmap(fd, 0, segmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("map segment %s: %w", s.path, err)
	}
	s.data = data
	return nil
}

// attach maps the segment at path. A reader whose mapping belongs to a
// segment that was since replaced or removed drops it and maps the current
// one. Callers hold s.mu.
func (s *SharedSlot) attach() error {
	if s.closed {
		return errors.New("shared slot is closed")
	}
	if s.data != nil {
		if s.owner {
			return nil
		}
		var st unix.Stat_t
		err := unix.Stat(s.path, &st)
		if err == nil && uint64(st.Ino) == s.ino {
			return nil
		}
		unix.Munmap(s.data)
		s.data = nil
	}

	fd, err := unix.Open(s.path, unix.O_RDWR, 0)
	if errors.Is(err, unix.ENOENT) {
		return ErrEmpty
	}
	if err != nil {
		return fmt.Errorf("open segment %s: %w", s.path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fmt.Errorf("stat segment %s: %w", s.path, err)
	}
	if st.Size < segmentSize {
		return ErrEmpty
	}
	if err := s.mmap(fd); err != nil {
		return err
	}
	s.ino = uint64(st.Ino)
	return nil
}

// word returns the mapped int64. The mapping is page aligned.
func (s *SharedSlot) word() *int64 {
	return (*int64)(unsafe.Pointer(&s.data[0]))
}

// Store overwrites the value.
func (s *SharedSlot) Store(_ context.Context, v int64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attach(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	atomic.StoreInt64(s.word(), v)
	return nil
}

// TryLoad returns the value or ErrEmpty.
func (s *SharedSlot) TryLoad() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attach(); err != nil {
		return 0, err
	}
	v := atomic.LoadInt64(s.word())
	if v == emptyValue {
		return 0, ErrEmpty
	}
	return v, nil
}

// Close unmaps the segment; the owner also unlinks it.
func (s *SharedSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			errs = append(errs, fmt.Errorf("unmap segment: %w", err))
		}
		s.data = nil
	}
	if s.owner {
		if err := unix.Unlink(s.path); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("unlink segment: %w", err))
		}
	}
	return errors.Join(errs...)
}
