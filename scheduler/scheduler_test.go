// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogentcore/rendercore/outputdevice"
	"github.com/cogentcore/rendercore/rcontext"
)

// fakeDevice records delivery order and terminal state for assertions;
// every hook appends or counts rather than doing anything with side
// effects the scheduler depends on.
type fakeDevice struct {
	mu        sync.Mutex
	delivered []float64
	started   int32
	stopCode  outputdevice.StopCode
	stopped   chan struct{}
	failures  []string
	deliverFn func(time float64, view int, img outputdevice.Image) error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{stopped: make(chan struct{}, 1)}
}

func (d *fakeDevice) Deliver(time float64, view int, img outputdevice.Image) error {
	d.mu.Lock()
	d.delivered = append(d.delivered, time)
	d.mu.Unlock()
	if d.deliverFn != nil {
		return d.deliverFn(time, view, img)
	}
	return nil
}

func (d *fakeDevice) TimelineStep(dir outputdevice.Direction) {}
func (d *fakeDevice) TimelineGoto(time float64)                {}
func (d *fakeDevice) TimelineGetTime() float64                  { return 0 }
func (d *fakeDevice) FrameRangeToRender() (first, last float64) { return 0, 0 }
func (d *fakeDevice) OnRenderStarted()                          { atomic.AddInt32(&d.started, 1) }
func (d *fakeDevice) OnRenderStopped(code outputdevice.StopCode) {
	d.mu.Lock()
	d.stopCode = code
	d.mu.Unlock()
	d.stopped <- struct{}{}
}
func (d *fakeDevice) ReportFPS(actual, desired float64) {}
func (d *fakeDevice) ReportFrameRendered(time float64)  {}
func (d *fakeDevice) ReportFailure(message string) {
	d.mu.Lock()
	d.failures = append(d.failures, message)
	d.mu.Unlock()
}

func (d *fakeDevice) deliveredSnapshot() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.delivered...)
}

func waitStopped(t *testing.T, d *fakeDevice) {
	select {
	case <-d.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never reached OnRenderStopped")
	}
}

func identityRender(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error) {
	return time, nil
}

func TestSchedulerDeliversFramesInAscendingOrder(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())

	err := s.Start(context.Background(), Params{
		FirstFrame: 1, LastFrame: 10, Workers: 4, BufferCapacity: 3, Mode: Once,
	}, identityRender)
	require.NoError(t, err)

	waitStopped(t, device)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, device.deliveredSnapshot())
	assert.Equal(t, outputdevice.Finished, device.stopCode)
}

func TestSchedulerBackwardDeliversDescending(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())

	err := s.Start(context.Background(), Params{
		FirstFrame: 1, LastFrame: 5, Workers: 3, BufferCapacity: 2, Mode: Once,
		Direction: outputdevice.Backward,
	}, identityRender)
	require.NoError(t, err)

	waitStopped(t, device)
	assert.Equal(t, []float64{5, 4, 3, 2, 1}, device.deliveredSnapshot())
}

func TestSchedulerStartRejectedWhenNotIdle(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())
	blocked := make(chan struct{})

	slow := func(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error) {
		<-blocked
		return time, nil
	}
	require.NoError(t, s.Start(context.Background(), Params{FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1}, slow))
	assert.Equal(t, Running, s.State())

	err := s.Start(context.Background(), Params{FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1}, slow)
	assert.Error(t, err)

	close(blocked)
	waitStopped(t, device)
}

func TestSchedulerRenderFailurePropagatesAndAborts(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())

	boom := fmt.Errorf("render exploded")
	failing := func(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error) {
		if time == 3 {
			return nil, boom
		}
		return time, nil
	}

	err := s.Start(context.Background(), Params{
		FirstFrame: 0, LastFrame: 9, Workers: 1, BufferCapacity: 1, Mode: Once,
	}, failing)
	require.NoError(t, err)

	waitStopped(t, device)
	assert.Equal(t, outputdevice.Failed, device.stopCode)
	require.NotEmpty(t, device.failures)
}

func TestSchedulerAbortStopsBeforeRangeExhausted(t *testing.T) {
	device := newFakeDevice()
	abort := rcontext.NewAbortSignal()
	s := New(device, abort)

	started := make(chan struct{})
	var once sync.Once
	slowRender := func(ctx context.Context, age rcontext.Age, frameTime float64, view int) (outputdevice.Image, error) {
		once.Do(func() { close(started) })
		for i := 0; i < 50; i++ {
			if abort.Stale(age) {
				return nil, nil
			}
			<-time.After(2 * time.Millisecond)
		}
		return frameTime, nil
	}

	require.NoError(t, s.Start(context.Background(), Params{
		FirstFrame: 0, LastFrame: 1000, Workers: 2, BufferCapacity: 4, Mode: Once,
	}, slowRender))

	<-started
	s.Abort(true)
	waitStopped(t, device)
	assert.Equal(t, outputdevice.Aborted, device.stopCode)
	assert.Less(t, len(device.deliveredSnapshot()), 1000)
}

func TestSchedulerQuitFromIdleIsNoOp(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())
	s.Quit()
	assert.Equal(t, Quitting, s.State())
}

// TestSchedulerQuitFromRunningStaysQuittingAndRejectsStart guards against
// finishRun clobbering the Quitting marker Quit sets: Quitting must be
// terminal (spec §4.5), so a Start issued after Quit returns has to keep
// failing rather than succeeding from a finishRun-reset Idle state.
func TestSchedulerQuitFromRunningStaysQuittingAndRejectsStart(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())
	blocked := make(chan struct{})

	slow := func(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error) {
		<-blocked
		return time, nil
	}
	require.NoError(t, s.Start(context.Background(), Params{FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1}, slow))
	assert.Equal(t, Running, s.State())

	close(blocked)
	s.Quit()
	assert.Equal(t, Quitting, s.State())

	err := s.Start(context.Background(), Params{FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1}, slow)
	assert.Error(t, err)
	assert.Equal(t, Quitting, s.State())
}

func TestSchedulerSetDirectionOnlyValidWhileRunning(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())
	err := s.SetDirection(outputdevice.Backward)
	assert.Error(t, err)
}

func TestPickNextFrameBouncePingPongsAcrossTheRange(t *testing.T) {
	s := New(newFakeDevice(), rcontext.NewAbortSignal())
	s.mu.Lock()
	s.state = Running
	s.params = Params{FirstFrame: 0, LastFrame: 2, Mode: Bounce}
	s.mu.Unlock()
	s.totalFrames = 3
	s.cursor.Store(0)

	got := make([]float64, 0, 8)
	for i := 0; i < 8; i++ {
		v, _, ok := s.pickNextFrame()
		require.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []float64{0, 1, 2, 1, 0, 1, 2, 1}, got)
}

func TestPickNextFrameBounceSingleFrameRangeNeverStops(t *testing.T) {
	s := New(newFakeDevice(), rcontext.NewAbortSignal())
	s.mu.Lock()
	s.state = Running
	s.params = Params{FirstFrame: 5, LastFrame: 5, Mode: Bounce}
	s.mu.Unlock()
	s.totalFrames = 1
	s.cursor.Store(0)

	for i := 0; i < 4; i++ {
		v, _, ok := s.pickNextFrame()
		require.True(t, ok)
		assert.Equal(t, float64(5), v)
	}
}

// TestSchedulerLoopModeContinuesPastOneRangePass guards against
// waitForNextFrame's stop check firing for Loop mode once the range has
// been delivered exactly once: Loop must keep producing, wrapping the
// frame index, until something explicitly aborts it.
func TestSchedulerLoopModeContinuesPastOneRangePass(t *testing.T) {
	device := newFakeDevice()
	reached := make(chan struct{})
	var closeOnce sync.Once
	var count int32
	device.deliverFn = func(time float64, view int, img outputdevice.Image) error {
		if atomic.AddInt32(&count, 1) >= 10 {
			closeOnce.Do(func() { close(reached) })
		}
		return nil
	}
	s := New(device, rcontext.NewAbortSignal())
	require.NoError(t, s.Start(context.Background(), Params{
		FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1, Mode: Loop,
	}, identityRender))

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("loop playback stopped before completing more than one pass of the range")
	}
	s.Abort(true)
	waitStopped(t, device)
	assert.Equal(t, outputdevice.Aborted, device.stopCode)
	assert.GreaterOrEqual(t, len(device.deliveredSnapshot()), 10)
}

// TestSchedulerBounceModeContinuesPastOneRangePass is the Bounce analog
// of TestSchedulerLoopModeContinuesPastOneRangePass: with a 3-frame
// range, a bug that stops after one pass would deliver exactly 3 frames
// and never reach the ping-pong back down to frame 1.
func TestSchedulerBounceModeContinuesPastOneRangePass(t *testing.T) {
	device := newFakeDevice()
	reached := make(chan struct{})
	var closeOnce sync.Once
	var count int32
	device.deliverFn = func(time float64, view int, img outputdevice.Image) error {
		if atomic.AddInt32(&count, 1) >= 10 {
			closeOnce.Do(func() { close(reached) })
		}
		return nil
	}
	s := New(device, rcontext.NewAbortSignal())
	require.NoError(t, s.Start(context.Background(), Params{
		FirstFrame: 0, LastFrame: 2, Workers: 1, BufferCapacity: 1, Mode: Bounce,
	}, identityRender))

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("bounce playback stopped before completing more than one pass of the range")
	}
	s.Abort(true)
	waitStopped(t, device)
	assert.Equal(t, outputdevice.Aborted, device.stopCode)
	delivered := device.deliveredSnapshot()
	assert.GreaterOrEqual(t, len(delivered), 10)
	assert.Equal(t, []float64{0, 1, 2, 1, 0, 1, 2, 1, 0, 1}, delivered[:10])
}

func TestSchedulerRenderFailureReportedOnceUnderConcurrentWorkers(t *testing.T) {
	device := newFakeDevice()
	s := New(device, rcontext.NewAbortSignal())

	boom := fmt.Errorf("render exploded")
	failing := func(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error) {
		return nil, boom
	}

	err := s.Start(context.Background(), Params{
		FirstFrame: 0, LastFrame: 19, Workers: 8, BufferCapacity: 4, Mode: Once,
	}, failing)
	require.NoError(t, err)

	waitStopped(t, device)
	assert.Equal(t, outputdevice.Failed, device.stopCode)
	assert.Len(t, device.failures, 1, "concurrent producer failures must report to the device exactly once")
}
