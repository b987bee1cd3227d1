package window

import (
	"errors"
	"testing"

	"github.com/ayusman/posecue/internal/skeleton"
)

func body(conf int) skeleton.Body {
	return skeleton.Body{ID: 1, Confidence: conf, Keypoints: skeleton.StandingSkeleton()}
}

func TestBuffer_ConfidenceGate(t *testing.T) {
	b := New(3, DefaultMinConfidence)

	if b.Add(body(39)) {
		t.Error("Add() accepted a body below the confidence threshold")
	}
	if !b.Add(body(40)) {
		t.Error("Add() rejected a body at the confidence threshold")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBuffer_FlushOnlyWhenFull(t *testing.T) {
	b := New(2, 0)
	b.Add(body(90))

	if _, err := b.Flush(); !errors.Is(err, ErrNotFull) {
		t.Fatalf("Flush() on partial window error = %v, want ErrNotFull", err)
	}
	if b.Len() != 1 {
		t.Fatal("failed Flush() must not clear the buffer")
	}

	b.Add(body(90))
	if b.Add(body(90)) {
		t.Error("Add() accepted a skeleton into a full window")
	}

	w, err := b.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(w) != 2 {
		t.Errorf("Flush() returned %d skeletons, want 2", len(w))
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after Flush(), Len() = %d", b.Len())
	}
}

func TestBuffer_AddFrame(t *testing.T) {
	b := New(3, 40)

	stale := &skeleton.Frame{IsNew: false, Bodies: []skeleton.Body{body(90)}}
	if n := b.AddFrame(stale); n != 0 {
		t.Errorf("AddFrame(stale) = %d, want 0", n)
	}

	multi := &skeleton.Frame{IsNew: true, Bodies: []skeleton.Body{body(90), body(10), body(90), body(90), body(90)}}
	if n := b.AddFrame(multi); n != 3 {
		t.Errorf("AddFrame() = %d, want 3", n)
	}
	if !b.Full() {
		t.Error("buffer should be full")
	}

	b.Reset()
	if b.Len() != 0 {
		t.Error("Reset() did not clear the buffer")
	}
}

func TestNew_DefaultsSize(t *testing.T) {
	if got := New(0, 0).Size(); got != DefaultSize {
		t.Errorf("Size() = %d, want %d", got, DefaultSize)
	}
}
