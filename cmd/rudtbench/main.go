package main

import (
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/nullbyte-dev/rudt/compression"
	"github.com/nullbyte-dev/rudt/network"
	"github.com/nullbyte-dev/rudt/protocol"
)

// decompressBufferSize bounds a single message's decompressed size; the
// demo sends short text payloads, so this is generous headroom rather
// than a tuned limit.
const decompressBufferSize = 64 * 1024

func main() {
	var (
		listenAddr = flag.String("listen", "", "bind address, e.g. 127.0.0.1:9000")
		dialAddr   = flag.String("dial", "", "peer address to send a reliable ping stream to")
		message    = flag.String("message", "ping", "payload to send repeatedly in -dial mode")
		interval   = flag.Duration("interval", time.Second, "send interval in -dial mode")
		statsEvery = flag.Duration("stats", 5*time.Second, "how often to print connection stats")
	)
	flag.Parse()

	if *listenAddr == "" {
		fmt.Fprintln(os.Stderr, "rudtbench: -listen is required")
		os.Exit(1)
	}

	bind, err := netip.ParseAddrPort(*listenAddr)
	if err != nil {
		log.Fatalf("rudtbench: invalid -listen address: %v", err)
	}

	socket, err := network.NewSocket(bind, network.DefaultOptions())
	if err != nil {
		log.Fatalf("rudtbench: bind failed: %v", err)
	}

	huff, err := compression.NewHuffman(compression.DefaultFrequencyTable)
	if err != nil {
		log.Fatalf("rudtbench: building huffman table: %v", err)
	}

	socket.SetPacketHandler(func(from netip.AddrPort, payload []byte) {
		out := make([]byte, decompressBufferSize)
		n, err := huff.Decompress(payload, out)
		if err != nil {
			pterm.DefaultLogger.Warn(fmt.Sprintf("packet from %s: %d bytes, decompress failed: %v", from, len(payload), err))
			return
		}

		unpacker := compression.NewUnpacker(out[:n])
		seq, err := unpacker.NextInt()
		if err != nil {
			pterm.DefaultLogger.Warn(fmt.Sprintf("packet from %s: malformed frame: %v", from, err))
			return
		}
		text, err := unpacker.NextString()
		if err != nil {
			pterm.DefaultLogger.Warn(fmt.Sprintf("packet from %s: malformed frame: %v", from, err))
			return
		}
		pterm.DefaultLogger.Info(fmt.Sprintf("packet from %s: #%d %q", from, seq, text))
	})
	socket.SetMessageFailureHandler(func(from netip.AddrPort, msgNum protocol.MessageNumber) {
		pterm.DefaultLogger.Warn(fmt.Sprintf("message from %s failed to complete: %v", from, msgNum))
	})

	go socket.Run()
	pterm.DefaultLogger.Info(fmt.Sprintf("listening on %s", bind))

	var peer netip.AddrPort
	dialing := *dialAddr != ""
	if dialing {
		peer, err = netip.ParseAddrPort(*dialAddr)
		if err != nil {
			log.Fatalf("rudtbench: invalid -dial address: %v", err)
		}
	}

	statsTicker := time.NewTicker(*statsEvery)
	defer statsTicker.Stop()

	var sendTicker *time.Ticker
	var sendCh <-chan time.Time
	if dialing {
		sendTicker = time.NewTicker(*interval)
		defer sendTicker.Stop()
		sendCh = sendTicker.C
	}

	var seq int
	for {
		select {
		case <-sendCh:
			packer := compression.NewPacker()
			packer.AddInt(seq)
			packer.AddString(*message)
			seq++

			frame := packer.Bytes()
			buf := make([]byte, len(frame)*2+16)
			n, err := huff.Compress(frame, buf)
			if err != nil {
				pterm.DefaultLogger.Warn(fmt.Sprintf("compressing message failed: %v", err))
				continue
			}
			if err := socket.WritePacket(peer, buf[:n], true); err != nil {
				pterm.DefaultLogger.Warn(fmt.Sprintf("send to %s failed: %v", peer, err))
			}
		case <-statsTicker.C:
			for _, addr := range socket.Connections() {
				st, ok := socket.SampleStats(addr)
				if !ok {
					continue
				}
				pterm.DefaultLogger.Info(fmt.Sprintf("%s: sent=%d recv=%d retransmits=%d dup=%d rtt=%s window=%d pace=%s",
					addr, st.PacketsSent, st.PacketsReceived, st.Retransmits, st.DuplicatesDropped,
					st.RTT, st.FlowWindowSize, st.PacketSendPeriod))
			}
		}
	}
}
