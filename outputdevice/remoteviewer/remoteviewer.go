// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remoteviewer is an outputdevice.Device that streams delivered
// frames to a remote viewer over a websocket connection (SPEC_FULL.md
// DOMAIN STACK: gorilla/websocket wiring), the network-delivery
// counterpart to an in-process viewer.
//
// Grounded on the teacher's base/websocket package: the server side's
// http.Upgrade-then-read-loop (base/websocket/example/server/server.go)
// and the client side's goroutine-per-connection OnMessage pattern
// (base/websocket/websocket_notjs.go), adapted so writes funnel through
// one mutex since gorilla/websocket forbids concurrent writers on a
// single connection.
package remoteviewer

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/logx"
	"github.com/cogentcore/rendercore/outputdevice"
)

// messageKind tags the JSON control envelope sent alongside binary frame
// payloads so the client can distinguish them on one connection.
type messageKind string

const (
	kindStarted        messageKind = "started"
	kindStopped        messageKind = "stopped"
	kindFPS            messageKind = "fps"
	kindFrameRendered  messageKind = "frame_rendered"
	kindFailure        messageKind = "failure"
	kindTimelineStep   messageKind = "timeline_step"
	kindTimelineGoto   messageKind = "timeline_goto"
)

type controlMessage struct {
	Kind    messageKind `json:"kind"`
	Time    float64     `json:"time,omitempty"`
	Code    string      `json:"code,omitempty"`
	Actual  float64     `json:"actual,omitempty"`
	Desired float64     `json:"desired,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Encoder converts a delivered outputdevice.Image into the bytes sent
// over the wire for a Deliver frame. The render core has no opinion on
// pixel encoding (that lives with the host's color pipeline), so the
// caller supplies one.
type Encoder func(img outputdevice.Image) (pixels []byte, width, height, bpp int, err error)

// Device streams deliveries to a single connected websocket client.
// Accept blocks until a client connects; a Device is only usable after
// Accept has returned successfully.
type Device struct {
	encode Encoder
	first, last float64

	mu   sync.Mutex // guards writes; gorilla/websocket forbids concurrent writers
	conn *websocket.Conn

	currentTime atomic.Value // float64
}

// New returns a Device that will encode delivered frames with encode.
func New(encode Encoder) *Device {
	d := &Device{encode: encode}
	d.currentTime.Store(float64(0))
	return d
}

// Upgrader is the shared websocket.Upgrader used by Accept, exposed so a
// host can tighten CheckOrigin before serving.
var Upgrader = websocket.Upgrader{}

// Accept upgrades an incoming HTTP request to a websocket connection and
// installs it as this Device's sole client.
func (d *Device) Accept(w http.ResponseWriter, r *http.Request) error {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errs.New(errs.KindInvalidRequest, "remoteviewer: upgrade", err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	return nil
}

// SetFrameRange sets the range FrameRangeToRender reports, used when the
// remote viewer (rather than the node's own pre-set range) is driving
// what gets rendered.
func (d *Device) SetFrameRange(first, last float64) {
	d.mu.Lock()
	d.first, d.last = first, last
	d.mu.Unlock()
}

func (d *Device) writeJSON(v controlMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		errs.Log(err)
		return
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logx.Logger.Warn("remoteviewer: write failed", "err", err)
	}
}

// Deliver implements outputdevice.Device: encode img and send it as one
// binary frame (a little-endian header — time, view, width, height,
// bpp — followed by raw pixels).
func (d *Device) Deliver(t float64, view int, img outputdevice.Image) error {
	pixels, w, h, bpp, err := d.encode(img)
	if err != nil {
		return errs.New(errs.KindPluginFailure, "remoteviewer: encode", err)
	}
	hdr := make([]byte, 8+4+4+4+4)
	binary.LittleEndian.PutUint64(hdr[0:], math.Float64bits(t))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(view))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(w))
	binary.LittleEndian.PutUint32(hdr[16:], uint32(h))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(bpp))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return errs.New(errs.KindInvalidRequest, "remoteviewer: no client connected", nil)
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, append(hdr, pixels...)); err != nil {
		return errs.New(errs.KindPluginFailure, "remoteviewer: write", err)
	}
	return nil
}

func (d *Device) TimelineStep(dir outputdevice.Direction) {
	t := d.TimelineGetTime()
	if dir == outputdevice.Backward {
		t--
	} else {
		t++
	}
	d.currentTime.Store(t)
	d.writeJSON(controlMessage{Kind: kindTimelineStep, Time: t})
}

func (d *Device) TimelineGoto(t float64) {
	d.currentTime.Store(t)
	d.writeJSON(controlMessage{Kind: kindTimelineGoto, Time: t})
}

func (d *Device) TimelineGetTime() float64 {
	return d.currentTime.Load().(float64)
}

func (d *Device) FrameRangeToRender() (first, last float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.first, d.last
}

func (d *Device) OnRenderStarted() {
	d.writeJSON(controlMessage{Kind: kindStarted})
}

func (d *Device) OnRenderStopped(code outputdevice.StopCode) {
	d.writeJSON(controlMessage{Kind: kindStopped, Code: code.String()})
}

func (d *Device) ReportFPS(actual, desired float64) {
	d.writeJSON(controlMessage{Kind: kindFPS, Actual: actual, Desired: desired})
}

func (d *Device) ReportFrameRendered(t float64) {
	d.writeJSON(controlMessage{Kind: kindFrameRendered, Time: t})
}

func (d *Device) ReportFailure(message string) {
	d.writeJSON(controlMessage{Kind: kindFailure, Message: message})
}
