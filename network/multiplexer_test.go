package network

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullbyte-dev/rudt/protocol"
)

func startSocket(t *testing.T, opts Options) (*Socket, netip.AddrPort) {
	t.Helper()
	s, err := NewSocket(netip.MustParseAddrPort("127.0.0.1:0"), opts)
	require.NoError(t, err)
	go s.Run()
	t.Cleanup(func() { _ = s.Close() })
	return s, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), s.LocalPort())
}

func TestSocketEndToEndReliableHandshakeAndDelivery(t *testing.T) {
	opts := DefaultOptions()
	opts.SyncPeriod = 2 * time.Millisecond

	server, serverAddr := startSocket(t, opts)
	client, _ := startSocket(t, opts)

	var mu sync.Mutex
	var got []byte
	server.SetPacketHandler(func(from netip.AddrPort, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append([]byte(nil), payload...)
	})

	require.NoError(t, client.WritePacket(serverAddr, []byte("hello"), true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "hello"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSocketEndToEndUnreliableFastPath(t *testing.T) {
	opts := DefaultOptions()
	server, serverAddr := startSocket(t, opts)
	client, _ := startSocket(t, opts)

	received := make(chan string, 1)
	server.SetPacketHandler(func(from netip.AddrPort, payload []byte) {
		received <- string(payload)
	})

	require.NoError(t, client.WritePacket(serverAddr, []byte("ping"), false))

	select {
	case msg := <-received:
		require.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("unreliable packet was never delivered")
	}

	require.Empty(t, server.Connections(), "unreliable traffic alone must not create a connection")
}

func TestSocketEndToEndOrderedMessage(t *testing.T) {
	opts := DefaultOptions()
	opts.SyncPeriod = 2 * time.Millisecond

	server, serverAddr := startSocket(t, opts)
	client, _ := startSocket(t, opts)

	var mu sync.Mutex
	var parts []string
	done := make(chan struct{})
	server.SetMessageHandler(func(from netip.AddrPort, msgNum protocol.MessageNumber, pos protocol.Position, payload []byte) {
		mu.Lock()
		parts = append(parts, string(payload))
		isLast := pos == protocol.PositionLast || pos == protocol.PositionOnly
		mu.Unlock()
		if isLast {
			close(done)
		}
	})

	require.NoError(t, client.WritePacketList(serverAddr, [][]byte{[]byte("one"), []byte("two"), []byte("three")}, true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ordered message was never fully delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"one", "two", "three"}, parts)
}

func TestConnectionCreationFilterRejectsUnknownPeers(t *testing.T) {
	opts := DefaultOptions()
	server, serverAddr := startSocket(t, opts)
	server.SetConnectionCreationFilter(func(from netip.AddrPort) bool { return false })

	client, _ := startSocket(t, opts)
	err := client.WritePacket(serverAddr, []byte("nope"), true)
	require.NoError(t, err, "the client's own creation filter is unset, only the server rejects")

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, server.Connections())
}

func TestWriteBasePacketRejectsDataPacket(t *testing.T) {
	s, _ := startSocket(t, DefaultOptions())
	p := NewData(1, false, false)
	err := s.WriteBasePacket(p, netip.MustParseAddrPort("127.0.0.1:1"))
	require.Error(t, err)
}

func TestSampleStatsUnknownPeer(t *testing.T) {
	s, _ := startSocket(t, DefaultOptions())
	_, ok := s.SampleStats(netip.MustParseAddrPort("127.0.0.1:1"))
	require.False(t, ok)
}
