package connection

import (
	"github.com/packetloom/utp/internal/congestion/bbr"
	"github.com/packetloom/utp/internal/fec"
	"github.com/packetloom/utp/internal/net/udpconn"
	"github.com/packetloom/utp/internal/wire"
)

// fecNetwork decorates a udpconn.Conn with forward error correction: every
// outbound DATA packet is fed to the encoder, tagged with a ShardDescriptor
// extension, and — once a group fills — trails the group's parity shards
// as synthetic wire packets of their own. The engine never sees any of
// this; it only ever hands fecNetwork a *wire.Packet through the ordinary
// Network.SendPacket seam (§9 design notes: engine collaborators are
// injected, never reached into).
type fecNetwork struct {
	sock *udpconn.Conn
	enc  *fec.Encoder
}

// SendPacket implements engine.Network. Only TypeData packets carry FEC
// redundancy; control packets (SYN/STATE/FIN/RESET) pass straight through.
func (f *fecNetwork) SendPacket(advertisedWindow uint32, pkt *wire.Packet) (int64, error) {
	if pkt.Header.Type != wire.TypeData || len(pkt.Payload) == 0 {
		return f.sock.SendPacket(advertisedWindow, pkt)
	}

	groupID, shardIndex, baseSeqNr, parity, err := f.enc.AddData(pkt.Header.SeqNr, pkt.Payload)
	if err != nil {
		// FEC bookkeeping failure never blocks the underlying transfer;
		// the packet still goes out, just without redundancy this round.
		return f.sock.SendPacket(advertisedWindow, pkt)
	}

	desc := fec.ShardDescriptor{GroupID: groupID, SeqNr: baseSeqNr, ShardIndex: shardIndex, IsParity: false}
	pkt.Header.Extensions = append(pkt.Header.Extensions, fec.EncodeExtension(desc))

	sendTime, err := f.sock.SendPacket(advertisedWindow, pkt)
	if err != nil {
		return sendTime, err
	}

	if parity != nil {
		f.sendParityShards(advertisedWindow, groupID, baseSeqNr, parity)
	}
	return sendTime, nil
}

// sendParityShards transmits a completed group's parity shards as
// standalone packets carrying only a FEC extension — they are redundancy,
// never part of the ordered DATA stream, so the peer's engine never
// observes them directly (internal/connection.handleInbound routes
// IsParity packets to the decoder only).
func (f *fecNetwork) sendParityShards(advertisedWindow uint32, groupID uint64, baseSeqNr uint16, parity [][]byte) {
	for i, shard := range parity {
		desc := fec.ShardDescriptor{GroupID: groupID, SeqNr: baseSeqNr, ShardIndex: i, IsParity: true}
		pkt := &wire.Packet{
			Header: wire.Header{
				Type:       wire.TypeData,
				Extensions: []wire.Extension{fec.EncodeExtension(desc)},
			},
			Payload: shard,
		}
		// Best effort: a lost parity shard just lowers the reconstruction
		// odds for this group, it never blocks the data path.
		_, _ = f.sock.SendPacket(advertisedWindow, pkt)
	}
}

func (f *fecNetwork) MaxWindowSend() uint32 {
	return f.sock.MaxWindowSend()
}

func (f *fecNetwork) HandleWindowSize(pktWindow, peerWndSize uint32) uint32 {
	return f.sock.HandleWindowSize(pktWindow, peerWndSize)
}

func (f *fecNetwork) Congestion() *bbr.BBR {
	return f.sock.Congestion()
}
