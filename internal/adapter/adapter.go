// Package adapter wires one network connection into the scene: an NCI
// adapter drives a controller.Controller over both its NCI and RF
// sides, while an RF adapter connects a raw RF-only peer directly to
// the scene's routing, rewriting its packets' sender field to the
// locally assigned device id so a misbehaving or spoofing peer can
// never claim someone else's identity (spec.md §4.6).
package adapter

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/controller"
	"github.com/casimir-nfc/casimir/internal/events"
	"github.com/casimir-nfc/casimir/internal/rf"
	"github.com/casimir-nfc/casimir/internal/rftransport"
	"github.com/casimir-nfc/casimir/internal/scene"
)

// ServeNCI registers a new device for conn, runs its controller to
// completion, and unregisters it from s on exit. It blocks until the
// connection ends or ctx is cancelled.
func ServeNCI(ctx context.Context, s *scene.Scene, conn net.Conn, sink events.Sink, log *zap.Logger) error {
	defer conn.Close()

	id, rfIn, err := s.Add(ctx, scene.KindNci)
	if err != nil {
		log.Warn("scene rejected new NCI device", zap.Error(err))
		return err
	}
	defer s.Disconnect(id)

	deviceLog := log.With(zap.Uint16("device_id", id))
	c := controller.New(id, conn, rfIn, s.Egress(), sink, deviceLog)

	deviceLog.Info("nci device connected")
	err = c.Run(ctx)
	deviceLog.Info("nci device disconnected", zap.Error(err))
	return err
}

// ServeRF registers a raw RF peer for conn and pumps packets between
// the wire and the scene until the connection ends or ctx is
// cancelled. Every packet read off the wire has its Sender field
// overwritten with the locally assigned id before being handed to the
// scene, regardless of what the peer sent.
func ServeRF(ctx context.Context, s *scene.Scene, conn net.Conn, sink events.Sink, log *zap.Logger) error {
	defer conn.Close()

	id, rfIn, err := s.Add(ctx, scene.KindRf)
	if err != nil {
		log.Warn("scene rejected new RF device", zap.Error(err))
		return err
	}
	defer s.Disconnect(id)

	deviceLog := log.With(zap.Uint16("device_id", id))
	deviceLog.Info("rf device connected")

	readErrCh := make(chan error, 1)
	go pumpRFIngress(conn, id, s.Egress(), readErrCh)

	err = pumpRFEgress(ctx, conn, rfIn, readErrCh)
	deviceLog.Info("rf device disconnected", zap.Error(err))
	sink.Publish(events.Event{DeviceID: id, Kind: events.KindDisconnected})
	return err
}

func pumpRFIngress(conn net.Conn, id uint16, egress chan<- rf.Packet, errCh chan<- error) {
	for {
		raw, err := rftransport.ReadPacket(conn)
		if err != nil {
			errCh <- err
			return
		}
		pkt, err := rf.Unmarshal(raw)
		if err != nil {
			continue
		}
		pkt.Sender = id
		egress <- pkt
	}
}

func pumpRFEgress(ctx context.Context, conn net.Conn, rfIn <-chan rf.Packet, readErrCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case pkt, ok := <-rfIn:
			if !ok {
				return nil
			}
			if err := rftransport.WritePacket(conn, pkt.Marshal()); err != nil {
				return err
			}
		}
	}
}
