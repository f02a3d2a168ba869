// Package scene implements the process-wide routing actor spec.md §4.5
// and §4.6 describe: the device registry, the position map, and the
// single loop that owns both and arbitrates all mutation through
// channels rather than locks — the same shape as the teacher's
// internal/websocket.Hub register/unregister/broadcast loop, adapted
// from WebSocket clients to NFC devices.
package scene

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/casimir-nfc/casimir/internal/events"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// MaxDevices bounds the device table (spec.md §4.6: "fixed capacity,
// at least 128").
const MaxDevices = 128

// inboxSize is the per-device delivery channel's buffer. A full inbox
// means a device is not draining its RF traffic; packets are dropped
// rather than blocking the scene loop.
const inboxSize = 256

type addRequest struct {
	kind  DeviceKind
	reply chan addResult
}

type addResult struct {
	ok bool
	id uint16
	in chan rf.Packet
}

type moveRequest struct {
	id       uint16
	position uint32
	reply    chan error
}

type getRequest struct {
	id    uint16
	reply chan getResult
}

type getResult struct {
	device Device
	found  bool
}

type listRequest struct {
	reply chan []Device
}

// Scene owns the device table and position map exclusively; every
// access goes through its run loop via the channels below, so no
// mutex guards the table itself (spec.md §5's single-owner rule,
// generalized from one controller's State to the whole device set).
type Scene struct {
	nextID    uint16
	devices   [MaxDevices]*Device
	positions map[uint16]uint32

	egress chan rf.Packet // process-wide RF-out aggregate every controller's rfOut feeds

	addCh        chan addRequest
	disconnectCh chan uint16
	moveCh       chan moveRequest
	getCh        chan getRequest
	listCh       chan listRequest

	sink events.Sink
	log  *zap.Logger
}

// New builds a Scene. Call Run in its own goroutine before using any
// other method.
func New(sink events.Sink, log *zap.Logger) *Scene {
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Scene{
		positions:    make(map[uint16]uint32),
		egress:       make(chan rf.Packet, 4096),
		addCh:        make(chan addRequest),
		disconnectCh: make(chan uint16),
		moveCh:       make(chan moveRequest),
		getCh:        make(chan getRequest),
		listCh:       make(chan listRequest),
		sink:         sink,
		log:          log,
	}
}

// Egress is the single process-wide RF-out channel every controller's
// or RF adapter's outbound side writes onto; the scene drains it and
// fans packets back out to the recipients' own inboxes (spec.md §5).
func (s *Scene) Egress() chan<- rf.Packet { return s.egress }

// Run is the scene's actor loop. It serializes every table mutation
// and every routing decision; it returns when ctx is cancelled.
func (s *Scene) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.addCh:
			s.handleAdd(req)
		case id := <-s.disconnectCh:
			s.handleDisconnect(id)
		case pkt := <-s.egress:
			s.route(pkt)
		case req := <-s.moveCh:
			req.reply <- s.handleMove(req.id, req.position)
		case req := <-s.getCh:
			req.reply <- s.handleGet(req.id)
		case req := <-s.listCh:
			req.reply <- s.snapshot()
		}
	}
}

func (s *Scene) indexOf(id uint16) int {
	for i, d := range s.devices {
		if d != nil && d.ID == id {
			return i
		}
	}
	return -1
}

func (s *Scene) handleAdd(req addRequest) {
	slot := -1
	for i, d := range s.devices {
		if d == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		req.reply <- addResult{ok: false}
		return
	}

	id := s.nextID
	s.nextID++

	in := make(chan rf.Packet, inboxSize)
	s.devices[slot] = &Device{ID: id, Position: uint32(id), Kind: req.kind, in: in}
	s.positions[id] = uint32(id)

	req.reply <- addResult{ok: true, id: id, in: in}
	s.sink.Publish(events.Event{DeviceID: id, Kind: events.KindConnected})
}

// handleDisconnect implements spec.md §4.5's disconnect sequence and
// invariant I6: drop the device and its position first, then notify
// every other still-connected device directly — this bypasses route's
// position filter entirely, since the departing device's position is
// already gone by the time the notification goes out.
func (s *Scene) handleDisconnect(id uint16) {
	idx := s.indexOf(id)
	if idx == -1 {
		return
	}
	delete(s.positions, id)
	s.devices[idx] = nil

	body := rf.EncodeDeactivateNotification(rf.DeactivateNotification{
		Reason:     rf.ReasonRfLinkLoss,
		Type:       rf.DeactToDiscovery,
		Technology: rf.NfcAPassivePollMode,
		Protocol:   rf.ProtocolUndetermined,
	})
	for _, d := range s.devices {
		if d == nil {
			continue
		}
		pkt := rf.Packet{Sender: id, Receiver: d.ID, Kind: rf.KindDeactivateNotif, Body: body}
		select {
		case d.in <- pkt:
		default:
			s.log.Warn("dropping link-loss notification, device inbox full", zap.Uint16("device_id", d.ID))
		}
	}

	s.sink.Publish(events.Event{DeviceID: id, Kind: events.KindDisconnected})
}

// route implements spec.md §4.5: deliver to every device other than
// the sender whose id matches the receiver (or the receiver is
// Broadcast) AND whose position matches the sender's. A sender with no
// recorded position matches nobody.
func (s *Scene) route(pkt rf.Packet) {
	senderPos, senderKnown := s.positions[pkt.Sender]
	if !senderKnown {
		return
	}
	for _, d := range s.devices {
		if d == nil || d.ID == pkt.Sender {
			continue
		}
		if pkt.Receiver != rf.Broadcast && pkt.Receiver != d.ID {
			continue
		}
		if s.positions[d.ID] != senderPos {
			continue
		}
		select {
		case d.in <- pkt:
		default:
			s.log.Warn("dropping RF packet, device inbox full", zap.Uint16("device_id", d.ID))
		}
	}
}

func (s *Scene) handleMove(id uint16, position uint32) error {
	idx := s.indexOf(id)
	if idx == -1 {
		return status.Errorf(codes.InvalidArgument, "unknown device id %d", id)
	}
	s.devices[idx].Position = position
	s.positions[id] = position
	return nil
}

func (s *Scene) handleGet(id uint16) getResult {
	idx := s.indexOf(id)
	if idx == -1 {
		return getResult{found: false}
	}
	return getResult{device: *s.devices[idx], found: true}
}

func (s *Scene) snapshot() []Device {
	out := make([]Device, 0, MaxDevices)
	for _, d := range s.devices {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// Add registers a new device and returns its assigned id plus the
// inbox the caller should read routed RF packets from. It fails when
// the table is at capacity or ctx is done.
func (s *Scene) Add(ctx context.Context, kind DeviceKind) (uint16, <-chan rf.Packet, error) {
	reply := make(chan addResult, 1)
	select {
	case s.addCh <- addRequest{kind: kind, reply: reply}:
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
	select {
	case res := <-reply:
		if !res.ok {
			return 0, nil, fmt.Errorf("scene: device table full (capacity %d)", MaxDevices)
		}
		return res.id, res.in, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Disconnect removes a device and notifies its peers (spec.md §4.5).
// It is a fire-and-forget send into the scene's own loop.
func (s *Scene) Disconnect(id uint16) {
	s.disconnectCh <- id
}

// ListDevices returns a snapshot of every connected device, for the
// management RPC surface (spec.md §6A).
func (s *Scene) ListDevices(ctx context.Context) ([]Device, error) {
	reply := make(chan []Device, 1)
	select {
	case s.listCh <- listRequest{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case devices := <-reply:
		return devices, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetDevice looks up one device by id, returning codes.InvalidArgument
// for an unknown id per spec.md §6A's RPC contract.
func (s *Scene) GetDevice(ctx context.Context, id uint16) (Device, error) {
	reply := make(chan getResult, 1)
	select {
	case s.getCh <- getRequest{id: id, reply: reply}:
	case <-ctx.Done():
		return Device{}, ctx.Err()
	}
	select {
	case res := <-reply:
		if !res.found {
			return Device{}, status.Errorf(codes.InvalidArgument, "unknown device id %d", id)
		}
		return res.device, nil
	case <-ctx.Done():
		return Device{}, ctx.Err()
	}
}

// MoveDevice updates a device's position, used by the management RPC
// that simulates physically repositioning a tag or reader.
func (s *Scene) MoveDevice(ctx context.Context, id uint16, position uint32) error {
	reply := make(chan error, 1)
	select {
	case s.moveCh <- moveRequest{id: id, position: position, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
