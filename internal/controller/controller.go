package controller

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/discovery"
	"github.com/casimir-nfc/casimir/internal/events"
	"github.com/casimir-nfc/casimir/internal/ncitransport"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// NCIVersion and ManufacturerID stamp CORE_RESET_NTF (spec.md §8
// scenario 1).
const (
	NCIVersion     = 0x20
	ManufacturerID = 0x02
)

// ManufacturerSpecific is CORE_RESET_NTF's manufacturer-specific
// payload: 26 zero bytes, since no real silicon backs this emulator.
var ManufacturerSpecific = make([]byte, 26)

// discoveryWindow is the poll-response collection window spec.md
// §4.4.3 names.
const discoveryWindow = 200 * time.Millisecond

// Controller drives one device's NCI dispatch and RF event handling.
// Its State is exclusively owned by the goroutine running Run; no
// other goroutine may read or write it (spec.md §5).
type Controller struct {
	ID    uint16
	State *State

	nciIn  *ncitransport.Reader
	nciOut io.Writer

	rfIn  <-chan rf.Packet
	rfOut chan<- rf.Packet

	ticker      *discovery.Ticker
	windowTimer *time.Timer

	sink events.Sink
	log  *zap.Logger
}

// New builds a Controller. nciConn carries the whole-packet NCI
// transport; rfIn/rfOut are the scene's per-device RF channels.
func New(id uint16, nciConn io.ReadWriter, rfIn <-chan rf.Packet, rfOut chan<- rf.Packet, sink events.Sink, log *zap.Logger) *Controller {
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Controller{
		ID:     id,
		State:  NewState(),
		nciIn:  ncitransport.NewReader(nciConn),
		nciOut: nciConn,
		rfIn:   rfIn,
		rfOut:  rfOut,
		ticker: discovery.NewTicker(),
		sink:   sink,
		log:    log,
	}
}

type nciResult struct {
	packet []byte
	err    error
}

func (c *Controller) readNCILoop(out chan<- nciResult) {
	for {
		pkt, err := c.nciIn.ReadPacket()
		out <- nciResult{packet: pkt, err: err}
		if err != nil {
			return
		}
	}
}

// Run services NCI ingress, RF ingress, and the discovery tick until
// the transport errors, the RF channel closes, or ctx is canceled. It
// returns the error that ended the connection, or nil on a clean RF
// channel close.
func (c *Controller) Run(ctx context.Context) error {
	nciCh := make(chan nciResult, 1)
	go c.readNCILoop(nciCh)
	defer c.ticker.Stop()

	for {
		c.syncDiscoveryTicker()

		select {
		case <-ctx.Done():
			c.notifyDisconnect()
			return ctx.Err()

		case res := <-nciCh:
			if res.err != nil {
				c.notifyDisconnect()
				return res.err
			}
			if err := c.handleNCIPacket(res.packet); err != nil {
				c.notifyDisconnect()
				return err
			}

		case pkt, ok := <-c.rfIn:
			if !ok {
				c.notifyDisconnect()
				return nil
			}
			c.handleRFPacket(pkt)

		case <-c.ticker.C:
			c.runDiscoveryTick()

		case <-c.windowTimerC():
			c.closeDiscoveryWindow()
		}
	}
}

// syncDiscoveryTicker keeps the ticker running exactly while rf_state
// is Discovery, regardless of which handler drove the transition
// there or away from it.
func (c *Controller) syncDiscoveryTicker() {
	if c.State.RfState.Kind == RfDiscovery {
		c.ticker.Start()
		return
	}
	c.ticker.Stop()
	if c.windowTimer != nil {
		c.windowTimer.Stop()
		c.windowTimer = nil
	}
}

func (c *Controller) windowTimerC() <-chan time.Time {
	if c.windowTimer == nil {
		return nil
	}
	return c.windowTimer.C
}

func (c *Controller) notifyDisconnect() {
	c.sink.Publish(events.Event{DeviceID: c.ID, Kind: events.KindDisconnected})
}

// sendRF queues an outbound RF packet for the scene to route.
func (c *Controller) sendRF(receiver uint16, kind rf.Kind, body []byte) {
	c.rfOut <- rf.Packet{Sender: c.ID, Receiver: receiver, Kind: kind, Body: body}
}

// writeNCI writes a whole logical NCI packet to the DH, logging (but
// not failing the connection on) a write error — the read side of Run
// will observe the same broken transport and tear the connection down.
func (c *Controller) writeNCI(packet []byte) {
	if err := ncitransport.WritePacket(c.nciOut, packet); err != nil {
		c.log.Warn("nci write failed", zap.Error(err))
	}
}
