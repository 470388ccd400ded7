// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler implements OutputScheduler (spec §4.5): a bounded
// producer/consumer pipeline that renders a frame range across a worker
// pool and delivers finished frames to an outputdevice.Device in strict
// range order.
//
// Grounded on the teacher's window-driver FPS loop
// (driver/ios/window.go's time.Ticker pacing) for delivery-rate
// regulation, and on core/renderwindow.go's windowWait sync.WaitGroup
// idiom for draining a pool of goroutines on shutdown.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/logx"
	"github.com/cogentcore/rendercore/outputdevice"
	"github.com/cogentcore/rendercore/rcontext"
)

// State is a node in the scheduler's state machine (spec §4.5).
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Quitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Quitting:
		return "quitting"
	}
	return "unknown"
}

// PlaybackMode governs what pick_next_frame does once the range is
// exhausted.
type PlaybackMode int

const (
	Once PlaybackMode = iota
	Loop
	Bounce
)

// DeliveryMode chooses whether the consumer calls the device directly or
// hands off to a designated main task (spec §4.5 "Delivery mode").
type DeliveryMode int

const (
	OnSchedulerThread DeliveryMode = iota
	OnMainThread
)

// RenderFunc computes one frame; it is supplied by RenderEngine, which
// closes over the Evaluator and the output node.
type RenderFunc func(ctx context.Context, age rcontext.Age, time float64, view int) (outputdevice.Image, error)

// Params are the scheduler parameters of spec §4.5.
type Params struct {
	FirstFrame, LastFrame float64
	Direction             outputdevice.Direction
	TargetFPS             float64 // 0 disables FPS regulation
	Mode                  PlaybackMode
	BufferCapacity        int
	Workers               int
	View                  int
}

type bufEntry struct {
	time    float64
	view    int
	img     outputdevice.Image
	failed  bool
	err     error
	present bool
}

// Scheduler is one OutputScheduler instance, owned by a RenderEngine for
// the duration of one running render (spec §2 "RenderEngine owns one
// scheduler per concurrently running render").
type Scheduler struct {
	Device       outputdevice.Device
	Signal       *rcontext.AbortSignal
	Delivery     DeliveryMode
	// OnMainThread runs f on the host's main task and blocks until it
	// returns; only consulted when Delivery is OnMainThread. Left nil for
	// OnSchedulerThread delivery.
	OnMainThread func(f func())

	mu     sync.Mutex
	state  State
	params Params
	render RenderFunc
	age    rcontext.Age

	cursor      atomic.Int64 // pick_next_frame's raw counter
	totalFrames int64

	bufMu    sync.Mutex
	bufCond  *sync.Cond
	buffer   map[int64]bufEntry
	expected int64 // index of the next frame the consumer wants

	producers    sync.WaitGroup
	consumerDone chan struct{}
	runErr       error
}

// New returns a Scheduler delivering to device, sharing abort with every
// RenderContext this scheduler's producers create.
func New(device outputdevice.Device, abort *rcontext.AbortSignal) *Scheduler {
	s := &Scheduler{
		Device:   device,
		Signal:   abort,
		Delivery: OnSchedulerThread,
		state:    Idle,
	}
	s.bufCond = sync.NewCond(&s.bufMu)
	return s
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start computes the effective frame range, sets the direction, spins up
// the producer pool, and moves to running (spec §4.5 "start ...").
// Valid only from idle; start is a no-op (returns an error) from any
// other state, matching the state table.
func (s *Scheduler) Start(ctx context.Context, params Params, render RenderFunc) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return errs.New(errs.KindInvalidRequest, "start: scheduler not idle", nil)
	}
	s.state = Starting
	s.params = params
	s.render = render
	s.age = s.Signal.NextAge()
	s.mu.Unlock()

	if params.Workers < 1 {
		params.Workers = 1
	}
	if params.BufferCapacity < 1 {
		params.BufferCapacity = 1
	}
	s.totalFrames = int64(params.LastFrame-params.FirstFrame) + 1
	if s.totalFrames < 0 {
		s.totalFrames = 0
	}
	s.cursor.Store(0)

	s.bufMu.Lock()
	s.buffer = make(map[int64]bufEntry, params.BufferCapacity)
	s.expected = 0
	s.bufMu.Unlock()

	s.consumerDone = make(chan struct{})
	s.runErr = nil

	s.mu.Lock()
	s.state = Running
	s.mu.Unlock()

	s.Device.OnRenderStarted()

	for i := 0; i < params.Workers; i++ {
		s.producers.Add(1)
		go s.producerLoop(ctx)
	}
	go s.consumerLoop(ctx)
	return nil
}

// pickNextFrame implements pick_next_frame: an atomic, direction-aware
// counter that stops once the range is exhausted in Once mode. Workers
// call this in a loop; no two calls ever return the same seq (Loop and
// Bounce do return the same frame time again on later laps). seq is the raw,
// ever-increasing lap counter (never wrapped): it is the production
// order, and doubles as the ordered buffer key so Loop/Bounce laps that
// revisit the same time value don't collide in the buffer.
func (s *Scheduler) pickNextFrame() (time float64, seq int64, ok bool) {
	for {
		s.mu.Lock()
		state := s.state
		params := s.params
		s.mu.Unlock()
		if state != Running {
			return 0, 0, false
		}
		raw := s.cursor.Add(1) - 1
		idx := raw
		if idx >= s.totalFrames {
			switch {
			case params.Mode == Loop && s.totalFrames > 0:
				idx %= s.totalFrames
			case params.Mode == Bounce && s.totalFrames > 1:
				// Ping-pong over a period of 2*(totalFrames-1): the raw
				// counter keeps climbing, but once it would run past the
				// last frame it reflects back down toward 0 before
				// climbing again, instead of stopping or wrapping straight
				// back to the first frame.
				period := 2 * (s.totalFrames - 1)
				pos := idx % period
				if pos < s.totalFrames {
					idx = pos
				} else {
					idx = period - pos
				}
			case params.Mode == Bounce && s.totalFrames == 1:
				idx = 0
			default:
				return 0, 0, false
			}
		}
		if params.Direction == outputdevice.Backward {
			return params.LastFrame - float64(idx), raw, true
		}
		return params.FirstFrame + float64(idx), raw, true
	}
}

// producerLoop repeatedly picks a frame, renders it, and appends the
// result to the ordered buffer until the range is exhausted or the
// scheduler stops.
func (s *Scheduler) producerLoop(ctx context.Context) {
	defer s.producers.Done()
	for {
		t, seq, ok := s.pickNextFrame()
		if !ok {
			return
		}
		s.mu.Lock()
		age, view := s.age, s.params.View
		s.mu.Unlock()

		img, err := s.render(ctx, age, t, view)
		if s.Signal.Stale(age) {
			return
		}
		if err != nil {
			s.notifyRenderFailure(err)
			return
		}
		s.append(seq, t, view, img)
		s.notifyFrameRendered(t)
	}
}

// append inserts a rendered frame into the ordered buffer keyed by its
// production sequence number, parking the producer (put_asleep) when the
// buffer is at capacity until the consumer drains it (wake_up). The
// buffer's own mutex is held only while touching the map, never across
// the park (spec §5 "parking must not hold locks the consumer needs").
// Keying by seq rather than by derived frame index matters for Loop and
// Bounce: both revisit the same time value across laps, so a key derived
// from t alone would collide across laps while the monotonic seq never
// does. The frame the consumer is waiting for (seq == expected) is
// admitted even at capacity, since the consumer cannot drain anything
// until that frame arrives.
func (s *Scheduler) append(seq int64, t float64, view int, img outputdevice.Image) {
	s.bufMu.Lock()
	for len(s.buffer) >= s.params.BufferCapacity && seq != s.expected && s.State() == Running {
		s.bufCond.Wait()
	}
	s.buffer[seq] = bufEntry{time: t, view: view, img: img, present: true}
	s.bufMu.Unlock()
	s.bufCond.Broadcast()
}

// consumerLoop pulls the lowest-expected frame from the buffer in order,
// delivers it to the device, and advances. Runs until the range is
// exhausted, the scheduler aborts, or a producer reports failure.
func (s *Scheduler) consumerLoop(ctx context.Context) {
	defer close(s.consumerDone)
	var lastDeliver time.Time
	delivered := int64(0)
	for {
		e, stop := s.waitForNextFrame(delivered)
		if stop {
			s.finishRun()
			return
		}
		s.deliverOne(e)
		delivered++
		s.regulateFPS(&lastDeliver)
		if delivered >= s.totalFrames && s.totalFrames > 0 && s.params.Mode == Once {
			s.finishRun()
			return
		}
	}
}

// waitForNextFrame blocks until the expected frame is in the buffer,
// the range is exhausted (Once mode only — Loop and Bounce never stop on
// their own, only on abort/quit), or the scheduler has left running.
func (s *Scheduler) waitForNextFrame(delivered int64) (e bufEntry, stop bool) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	for {
		if s.State() != Running {
			return bufEntry{}, true
		}
		if found, ok := s.buffer[s.expected]; ok && found.present {
			delete(s.buffer, s.expected)
			s.expected++
			s.bufCond.Broadcast()
			return found, false
		}
		if delivered >= s.totalFrames && s.totalFrames > 0 && s.params.Mode == Once {
			return bufEntry{}, true
		}
		s.bufCond.Wait()
	}
}

func (s *Scheduler) deliverOne(e bufEntry) {
	deliver := func() {
		if err := s.Device.Deliver(e.time, e.view, e.img); err != nil {
			s.notifyRenderFailure(err)
		}
	}
	if s.Delivery == OnMainThread && s.OnMainThread != nil {
		s.OnMainThread(deliver)
		return
	}
	deliver()
}

// regulateFPS sleeps to hold the consumer to params.TargetFPS when FPS
// regulation is requested, reporting the achieved rate back to the
// device (spec §4.5 "If FPS regulation is on..."). Grounded on the
// teacher's time.Ticker frame-pacing idiom (driver/ios/window.go).
func (s *Scheduler) regulateFPS(last *time.Time) bool {
	s.mu.Lock()
	target := s.params.TargetFPS
	s.mu.Unlock()
	if target <= 0 {
		return false
	}
	now := time.Now()
	if !last.IsZero() {
		elapsed := now.Sub(*last)
		want := time.Duration(float64(time.Second) / target)
		if elapsed < want {
			time.Sleep(want - elapsed)
			now = time.Now()
			elapsed = want
		}
		actual := time.Second.Seconds() / elapsed.Seconds()
		s.Device.ReportFPS(actual, target)
	}
	*last = now
	return true
}

func (s *Scheduler) notifyFrameRendered(t float64) {
	s.Device.ReportFrameRendered(t)
}

// notifyRenderFailure is the producer→scheduler error channel: it aborts
// the rest of the run and surfaces the error to the device exactly once
// (spec §4.5, §7 "producer reports once and surfaces to the scheduler").
func (s *Scheduler) notifyRenderFailure(err error) {
	s.mu.Lock()
	first := s.runErr == nil
	if first {
		s.runErr = err
	}
	if s.state == Running {
		s.state = Stopping
	}
	s.mu.Unlock()
	// Report to the device exactly once: with Workers > 1, two
	// producers can fail concurrently, and only the first failure is
	// the one the device and logs should see.
	if first {
		errs.Log(err)
		s.Device.ReportFailure(err.Error())
	}
	s.Signal.Abort()
	s.bufCond.Broadcast()
}

// finishRun transitions running→stopping→idle once the consumer has
// observed completion (whether by exhausting the range, by abort, or by
// failure), joins the producer pool, and reports the outcome.
func (s *Scheduler) finishRun() {
	s.mu.Lock()
	wasQuitting := s.state == Quitting
	if !wasQuitting {
		s.state = Stopping
	}
	s.mu.Unlock()

	s.producers.Wait()

	s.mu.Lock()
	code := outputdevice.Finished
	switch {
	case s.runErr != nil:
		code = outputdevice.Failed
	case s.Signal.IsAborted():
		code = outputdevice.Aborted
	}
	if !wasQuitting {
		s.state = Idle
	}
	s.mu.Unlock()

	s.bufMu.Lock()
	s.buffer = map[int64]bufEntry{}
	s.bufMu.Unlock()

	s.Device.OnRenderStopped(code)
}

// Abort sets the abort flag visible to all producers and the in-flight
// evaluator frame. With blocking=true it returns only after every
// producer has observed the abort and unwound (spec §4.5); it must never
// be called from a pool worker goroutine, which would deadlock waiting
// on itself.
func (s *Scheduler) Abort(blocking bool) {
	s.mu.Lock()
	if s.state == Running {
		s.state = Stopping
	}
	s.mu.Unlock()
	s.Signal.Abort()
	s.bufCond.Broadcast()
	if blocking {
		s.producers.Wait()
		if s.consumerDone != nil {
			<-s.consumerDone
		}
	}
}

// Wait blocks until the run started by the most recent Start finishes
// (via exhaustion, Abort, or Quit) and returns the error that stopped
// it, if any. Callers that want a synchronous render (the CLI's
// RenderWriters, for one) call Start then Wait in sequence.
func (s *Scheduler) Wait() error {
	if s.consumerDone != nil {
		<-s.consumerDone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// SetDirection flips the playback direction of a running scheduler
// without a full abort/start cycle (SUPPLEMENTED FEATURE, grounded on
// original_source/Engine/OutputSchedulerThread.h's setDesiredFPS/
// renderCurrentFrame direction toggle). Valid only from running.
func (s *Scheduler) SetDirection(dir outputdevice.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return errs.New(errs.KindInvalidRequest, "set_direction: scheduler not running", nil)
	}
	s.params.Direction = dir
	return nil
}

// Quit is terminal: it aborts, joins every producer and the consumer,
// and leaves the scheduler unusable.
func (s *Scheduler) Quit() {
	s.mu.Lock()
	wasIdle := s.state == Idle
	s.state = Quitting
	s.mu.Unlock()
	if wasIdle {
		return
	}
	s.Signal.Abort()
	s.bufCond.Broadcast()
	s.producers.Wait()
	if s.consumerDone != nil {
		<-s.consumerDone
	}
	logx.Logger.Info("scheduler: quit")
}
