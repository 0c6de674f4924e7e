package network

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullbyte-dev/rudt/protocol"
)

func newTestSocket(t *testing.T) *Socket {
	t.Helper()
	s, err := NewSocket(netip.MustParseAddrPort("127.0.0.1:0"), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnectionHandshakeThreePhase(t *testing.T) {
	socket := newTestSocket(t)
	peer := netip.MustParseAddrPort("127.0.0.1:9001")
	c, ok := socket.findOrCreateConnection(peer)
	require.True(t, ok)
	require.Equal(t, connFresh, c.State())

	c.ProcessControl(NewControl(protocol.ControlHandshakeRequest, nil))
	require.Equal(t, connFresh, c.State(), "a bare request does not itself establish the connection")

	peerInitial := protocol.Sequence(500)
	body := make([]byte, 4)
	be.PutUint32(body, uint32(peerInitial))
	c.ProcessControl(NewControl(protocol.ControlHandshake, body))
	require.Equal(t, connEstablished, c.State())

	ackBody := make([]byte, 4)
	be.PutUint32(ackBody, uint32(protocol.Sequence(42)))
	c.ProcessControl(NewControl(protocol.ControlHandshakeACK, ackBody))
	require.Equal(t, connEstablished, c.State())
	require.True(t, c.sendQ().hasHandshakeAck())
}

func TestConnectionResetOnRehandshake(t *testing.T) {
	socket := newTestSocket(t)
	peer := netip.MustParseAddrPort("127.0.0.1:9002")
	c, _ := socket.findOrCreateConnection(peer)

	peerInitial := protocol.Sequence(10)
	body := make([]byte, 4)
	be.PutUint32(body, uint32(peerInitial))
	c.ProcessControl(NewControl(protocol.ControlHandshake, body))
	require.Equal(t, connEstablished, c.State())

	oldSendQueue := c.sendQ()

	c.ProcessControl(NewControl(protocol.ControlHandshakeRequest, nil))
	require.NotSame(t, oldSendQueue, c.sendQ(), "reset must swap in a fresh send queue")
}

func TestConnectionProcessReceivedSequenceNumberDuplicateAndLoss(t *testing.T) {
	socket := newTestSocket(t)
	peer := netip.MustParseAddrPort("127.0.0.1:9003")
	c, _ := socket.findOrCreateConnection(peer)
	c.lastReceived = protocol.Sequence(100)

	// A gap opens: seq 101 is skipped, 102 arrives.
	require.True(t, c.ProcessReceivedSequenceNumber(protocol.Sequence(102)))
	require.True(t, c.recvLossList.Contains(protocol.Sequence(101)))

	// The late packet for 101 arrives and fills the gap.
	require.True(t, c.ProcessReceivedSequenceNumber(protocol.Sequence(101)))
	require.False(t, c.recvLossList.Contains(protocol.Sequence(101)))

	// A genuine duplicate of 102 is rejected.
	require.False(t, c.ProcessReceivedSequenceNumber(protocol.Sequence(102)))
}

func TestConnectionReassembleOrderedMessage(t *testing.T) {
	socket := newTestSocket(t)
	var delivered [][]byte
	socket.SetMessageHandler(func(from netip.AddrPort, msgNum protocol.MessageNumber, pos protocol.Position, payload []byte) {
		cp := append([]byte(nil), payload...)
		delivered = append(delivered, cp)
	})

	peer := netip.MustParseAddrPort("127.0.0.1:9004")
	c, _ := socket.findOrCreateConnection(peer)

	msgNum := protocol.MessageNumber(1)
	first := NewData(1, true, true)
	first.Payload = append(first.Payload, 'a')
	first.WriteMessage(msgNum, protocol.PositionFirst, 0)

	last := NewData(1, true, true)
	last.Payload = append(last.Payload, 'c')
	last.WriteMessage(msgNum, protocol.PositionLast, 2)

	mid := NewData(1, true, true)
	mid.Payload = append(mid.Payload, 'b')
	mid.WriteMessage(msgNum, protocol.PositionMiddle, 1)

	// Parts arrive out of order: LAST, then FIRST, then MIDDLE. Nothing
	// should deliver until the contiguous prefix from part 0 exists.
	c.HandleDataPacket(last)
	require.Empty(t, delivered)

	c.HandleDataPacket(first)
	require.Equal(t, [][]byte{{'a'}}, delivered)

	c.HandleDataPacket(mid)
	require.Equal(t, [][]byte{{'a'}, {'b'}, {'c'}}, delivered)

	require.Empty(t, c.pendingMessages, "completed message must be retired")
}

func TestConnectionFailPendingMessagesOnTeardown(t *testing.T) {
	socket := newTestSocket(t)
	var failed []protocol.MessageNumber
	socket.SetMessageFailureHandler(func(from netip.AddrPort, msgNum protocol.MessageNumber) {
		failed = append(failed, msgNum)
	})

	peer := netip.MustParseAddrPort("127.0.0.1:9005")
	c, _ := socket.findOrCreateConnection(peer)

	first := NewData(1, true, true)
	first.Payload = append(first.Payload, 'x')
	first.WriteMessage(protocol.MessageNumber(7), protocol.PositionFirst, 0)
	c.HandleDataPacket(first)
	require.Len(t, c.pendingMessages, 1)

	c.failPendingMessages()
	require.Equal(t, []protocol.MessageNumber{7}, failed)
	require.Empty(t, c.pendingMessages)
}

func TestConnectionSyncEmitsAckOnlyOnChange(t *testing.T) {
	socket := newTestSocket(t)
	peer := netip.MustParseAddrPort("127.0.0.1:9006")
	c, _ := socket.findOrCreateConnection(peer)

	peerInitial := protocol.Sequence(0)
	body := make([]byte, 4)
	be.PutUint32(body, uint32(peerInitial))
	c.ProcessControl(NewControl(protocol.ControlHandshake, body))

	c.lastReceived = protocol.Sequence(5)
	c.Sync(time.Minute)
	require.Equal(t, protocol.Sequence(6), c.lastAckSent)

	before := c.lastAckSent
	c.Sync(time.Minute)
	require.Equal(t, before, c.lastAckSent, "re-syncing with no new data must not change lastAckSent")
}
