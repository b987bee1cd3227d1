package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/store"
)

type mapBindings map[int64]*store.Binding

func (m mapBindings) GetByAction(action int64) (*store.Binding, error) {
	return m[action], nil
}

type recordingRunner struct {
	mu       sync.Mutex
	requests []*Request
	resp     *Response
	err      error
}

func (r *recordingRunner) Execute(_ context.Context, _ *Plugin, req *Request) (*Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.resp != nil {
		return r.resp, nil
	}
	return &Response{Success: true}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func newTestDriver(t *testing.T, runner Runner) (*Driver, *channel.MemorySlot) {
	t.Helper()
	bindings := mapBindings{}
	for _, b := range DefaultBindings() {
		b := b
		b.ID = fmt.Sprintf("binding-%d", b.Action)
		bindings[b.Action] = &b
	}
	bindings[4] = &store.Binding{ID: "off", Action: 4, PluginName: DefaultPlugin, Behavior: BehaviorRotate, Enabled: false}

	plugins := NewManager(t.TempDir(), nil)
	plugins.Register(&Plugin{Manifest: Manifest{Name: DefaultPlugin, Behaviors: KnownBehaviors}})

	slot := channel.NewMemorySlot()
	d := NewDriver(DriverConfig{
		Actions:  slot,
		Bindings: bindings,
		Plugins:  plugins,
		Runner:   runner,
	})
	return d, slot
}

func TestDriver_EdgeTriggered(t *testing.T) {
	runner := &recordingRunner{}
	d, slot := newTestDriver(t, runner)
	ctx := context.Background()

	ran, err := d.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "empty slot does nothing")

	require.NoError(t, slot.Store(ctx, 1))
	ran, err = d.Step(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = d.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "unchanged action must not re-trigger")

	require.NoError(t, slot.Store(ctx, 2))
	ran, err = d.Step(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	require.Len(t, runner.requests, 2)
	assert.Equal(t, BehaviorStand, runner.requests[0].Behavior)
	assert.Equal(t, BehaviorSit, runner.requests[1].Behavior)
	assert.Equal(t, int64(2), runner.requests[1].Action)
}

func TestDriver_SkipsNoneAndDisabled(t *testing.T) {
	runner := &recordingRunner{}
	d, slot := newTestDriver(t, runner)
	ctx := context.Background()

	for _, code := range []int64{0, 4, 9} {
		require.NoError(t, slot.Store(ctx, code))
		ran, err := d.Step(ctx)
		require.NoError(t, err)
		assert.False(t, ran, "code %d", code)
	}
	assert.Empty(t, runner.requests)
}

func TestDriver_Failures(t *testing.T) {
	ctx := context.Background()

	runner := &recordingRunner{err: errors.New("plugin crashed")}
	d, slot := newTestDriver(t, runner)
	require.NoError(t, slot.Store(ctx, 3))
	_, err := d.Step(ctx)
	assert.Error(t, err)

	runner = &recordingRunner{resp: &Response{Success: false, Error: "e-stop engaged"}}
	d, slot = newTestDriver(t, runner)
	require.NoError(t, slot.Store(ctx, 1))
	_, err = d.Step(ctx)
	assert.ErrorContains(t, err, "e-stop engaged")
}

func TestDriver_Run(t *testing.T) {
	runner := &recordingRunner{}
	d, slot := newTestDriver(t, runner)
	d.config.Tick = 5 * time.Millisecond

	var got []int64
	d.config.OnBehavior = func(action int64, _ *store.Binding) { got = append(got, action) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.NoError(t, slot.Store(ctx, 3))
	require.Eventually(t, func() bool { return runner.count() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{3}, got)
}
