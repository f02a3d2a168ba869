package scene

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/rf"
)

func newTestScene(t *testing.T) (*Scene, context.CancelFunc) {
	t.Helper()
	s := New(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)
	return s, cancel
}

func recvPacket(t *testing.T, in <-chan rf.Packet) rf.Packet {
	t.Helper()
	select {
	case pkt := <-in:
		return pkt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed RF packet")
		return rf.Packet{}
	}
}

func assertNoPacket(t *testing.T, in <-chan rf.Packet) {
	t.Helper()
	select {
	case pkt := <-in:
		t.Fatalf("unexpected packet delivered: %+v", pkt)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestIDsNeverReused covers invariant I1: ids are monotonic and never
// reissued, even across disconnects.
func TestIDsNeverReused(t *testing.T) {
	s, _ := newTestScene(t)
	ctx := context.Background()

	id1, _, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	id2, _, err := s.Add(ctx, KindRf)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	s.Disconnect(id1)
	time.Sleep(50 * time.Millisecond)

	id3, _, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	assert.NotEqual(t, id2, id3)
	assert.Greater(t, id3, id2)
}

// TestRouteRespectsPosition covers invariant I7 for broadcast packets:
// a broadcast between devices at different positions is never
// delivered.
func TestRouteRespectsPosition(t *testing.T) {
	s, _ := newTestScene(t)
	ctx := context.Background()

	idA, inA, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	idB, inB, err := s.Add(ctx, KindNci)
	require.NoError(t, err)

	require.NoError(t, s.MoveDevice(ctx, idA, 1))
	require.NoError(t, s.MoveDevice(ctx, idB, 2))

	s.Egress() <- rf.Packet{Sender: idA, Receiver: rf.Broadcast, Kind: rf.KindPollCommand}
	assertNoPacket(t, inB)

	require.NoError(t, s.MoveDevice(ctx, idB, 1))
	s.Egress() <- rf.Packet{Sender: idA, Receiver: rf.Broadcast, Kind: rf.KindPollCommand}
	pkt := recvPacket(t, inB)
	assert.Equal(t, idA, pkt.Sender)

	assertNoPacket(t, inA) // a device never receives its own broadcast
}

// TestDisconnectBroadcastsLinkLoss covers invariant I6 and spec.md §8
// scenario 6: every surviving device receives exactly one link-loss
// notification naming the departing device as sender, regardless of
// position.
func TestDisconnectBroadcastsLinkLoss(t *testing.T) {
	s, _ := newTestScene(t)
	ctx := context.Background()

	idA, inA, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	idB, inB, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	idC, inC, err := s.Add(ctx, KindRf)
	require.NoError(t, err)

	require.NoError(t, s.MoveDevice(ctx, idB, 99)) // different position than A and C

	s.Disconnect(idA)

	ntfB := recvPacket(t, inB)
	assert.Equal(t, idA, ntfB.Sender)
	assert.Equal(t, rf.KindDeactivateNotif, ntfB.Kind)

	ntfC := recvPacket(t, inC)
	assert.Equal(t, idA, ntfC.Sender)
	assert.Equal(t, rf.KindDeactivateNotif, ntfC.Kind)

	assertNoPacket(t, inB)
	assertNoPacket(t, inC)
	assertNoPacket(t, inA)

	_, err = s.GetDevice(ctx, idA)
	assert.Error(t, err)
}

func TestMoveDeviceUnknownID(t *testing.T) {
	s, _ := newTestScene(t)
	err := s.MoveDevice(context.Background(), 999, 1)
	assert.Error(t, err)
}

func TestListDevices(t *testing.T) {
	s, _ := newTestScene(t)
	ctx := context.Background()

	_, _, err := s.Add(ctx, KindNci)
	require.NoError(t, err)
	_, _, err = s.Add(ctx, KindRf)
	require.NoError(t, err)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}
