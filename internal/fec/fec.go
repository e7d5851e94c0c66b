// Package fec implements the optional forward-error-correction extension
// referenced in SPEC_FULL §11/§12: Reed-Solomon shard groups carried over
// uTP DATA packets via wire.ExtensionFEC. A receiver that doesn't enable
// FEC simply skips the extension like any other unknown one (§6); nothing
// here is required for the baseline engine's correctness.
package fec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"

	"github.com/packetloom/utp/internal/wire"
)

const (
	// DefaultDataShards is the default number of data shards per group.
	DefaultDataShards = 10

	// DefaultParityShards is the default number of parity shards per group.
	DefaultParityShards = 3

	// extensionPayloadLen is wire.Extension.Bytes' fixed length for
	// wire.ExtensionFEC: 8-byte group id, 2-byte seq_nr (the group's base
	// stream sequence number, carried by data and parity shards alike),
	// 1-byte shard index, 1-byte flags.
	extensionPayloadLen = 12
)

// Encoder accumulates outbound payloads into fixed-size groups and emits
// parity shards once a group fills.
type Encoder struct {
	mu sync.Mutex

	dataShards   int
	parityShards int
	encoder      reedsolomon.Encoder

	currentGroup *EncodingGroup
	groupID      uint64
}

// Decoder reconstructs inbound groups from whatever shards have arrived.
type Decoder struct {
	mu sync.RWMutex

	dataShards   int
	parityShards int
	encoder      reedsolomon.Encoder

	groups map[uint64]*DecodingGroup

	totalRecovered uint64
	failedRecovery uint64
}

// EncodingGroup is one in-progress outbound shard group.
type EncodingGroup struct {
	GroupID      uint64
	BaseSeqNr    uint16
	DataShards   [][]byte
	ParityShards [][]byte
	Count        int
	Complete     bool
}

// DecodingGroup is one in-progress inbound shard group.
type DecodingGroup struct {
	GroupID       uint64
	DataShards    [][]byte
	ParityShards  [][]byte
	ReceivedMask  []bool
	ReceivedCount int
	Complete      bool
}

// Config configures an Encoder/Decoder pair. Both sides of a connection
// must agree on these values out of band (SPEC_FULL §13: FEC.DataShards,
// FEC.ParityShards).
type Config struct {
	DataShards   int
	ParityShards int
}

// DefaultConfig returns the default shard-group shape.
func DefaultConfig() *Config {
	return &Config{DataShards: DefaultDataShards, ParityShards: DefaultParityShards}
}

// NewEncoder creates an Encoder for the given shard-group shape.
func NewEncoder(cfg *Config) (*Encoder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DataShards < 1 || cfg.DataShards > 256 {
		return nil, fmt.Errorf("fec: invalid data shards: %d (must be 1-256)", cfg.DataShards)
	}
	if cfg.ParityShards < 0 || cfg.ParityShards > 256 {
		return nil, fmt.Errorf("fec: invalid parity shards: %d (must be 0-256)", cfg.ParityShards)
	}
	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: new Reed-Solomon encoder: %w", err)
	}
	return &Encoder{
		dataShards:   cfg.DataShards,
		parityShards: cfg.ParityShards,
		encoder:      enc,
		groupID:      1,
	}, nil
}

// AddData adds one outbound payload (the stream's seqNr identifies it, so
// a reconstructed shard can be replayed as if it had arrived over the
// wire) to the current group. shardIndex and baseSeqNr describe where
// this shard landed — baseSeqNr is shard index 0's seqNr, so any index's
// seqNr is recoverable as bit16(baseSeqNr + index) without a side channel.
// parityShards is non-nil exactly when this call completed the group.
func (e *Encoder) AddData(seqNr uint16, data []byte) (groupID uint64, shardIndex int, baseSeqNr uint16, parityShards [][]byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentGroup == nil || e.currentGroup.Complete {
		e.currentGroup = &EncodingGroup{
			GroupID:    e.groupID,
			BaseSeqNr:  seqNr,
			DataShards: make([][]byte, e.dataShards),
		}
		e.groupID++
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	index := e.currentGroup.Count
	e.currentGroup.DataShards[index] = dataCopy
	e.currentGroup.Count++

	groupID = e.currentGroup.GroupID
	baseSeqNr = e.currentGroup.BaseSeqNr

	if e.currentGroup.Count == e.dataShards {
		if err := e.encodeGroup(); err != nil {
			return groupID, index, baseSeqNr, nil, fmt.Errorf("fec: encode group: %w", err)
		}
		e.currentGroup.Complete = true
		return groupID, index, baseSeqNr, e.currentGroup.ParityShards, nil
	}
	return groupID, index, baseSeqNr, nil, nil
}

func (e *Encoder) encodeGroup() error {
	maxLen := 0
	for _, shard := range e.currentGroup.DataShards {
		if len(shard) > maxLen {
			maxLen = len(shard)
		}
	}
	for i := range e.currentGroup.DataShards {
		if len(e.currentGroup.DataShards[i]) < maxLen {
			padded := make([]byte, maxLen)
			copy(padded, e.currentGroup.DataShards[i])
			e.currentGroup.DataShards[i] = padded
		}
	}

	e.currentGroup.ParityShards = make([][]byte, e.parityShards)
	for i := range e.currentGroup.ParityShards {
		e.currentGroup.ParityShards[i] = make([]byte, maxLen)
	}

	allShards := append(e.currentGroup.DataShards, e.currentGroup.ParityShards...)
	if err := e.encoder.Encode(allShards); err != nil {
		return fmt.Errorf("fec: Reed-Solomon encode: %w", err)
	}
	e.currentGroup.ParityShards = allShards[e.dataShards:]
	return nil
}

// Reset drops any in-progress group.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentGroup = nil
}

// NewDecoder creates a Decoder for the given shard-group shape.
func NewDecoder(cfg *Config) (*Decoder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DataShards < 1 || cfg.DataShards > 256 {
		return nil, fmt.Errorf("fec: invalid data shards: %d (must be 1-256)", cfg.DataShards)
	}
	if cfg.ParityShards < 0 || cfg.ParityShards > 256 {
		return nil, fmt.Errorf("fec: invalid parity shards: %d (must be 0-256)", cfg.ParityShards)
	}
	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: new Reed-Solomon encoder: %w", err)
	}
	return &Decoder{
		dataShards:   cfg.DataShards,
		parityShards: cfg.ParityShards,
		encoder:      enc,
		groups:       make(map[uint64]*DecodingGroup),
	}, nil
}

// AddShard adds one inbound shard (tagged by the wire.ExtensionFEC chain
// entry on its packet) to its decoding group, reconstructing the group's
// data shards once enough of either kind have arrived.
func (d *Decoder) AddShard(groupID uint64, shardIndex int, data []byte, isParity bool) (recovered [][]byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	group, exists := d.groups[groupID]
	if !exists {
		group = &DecodingGroup{
			GroupID:      groupID,
			DataShards:   make([][]byte, d.dataShards),
			ParityShards: make([][]byte, d.parityShards),
			ReceivedMask: make([]bool, d.dataShards+d.parityShards),
		}
		d.groups[groupID] = group
	}
	if group.Complete {
		return nil, nil
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	var maskIndex int
	if isParity {
		if shardIndex < 0 || shardIndex >= d.parityShards {
			return nil, fmt.Errorf("fec: invalid parity shard index: %d", shardIndex)
		}
		group.ParityShards[shardIndex] = dataCopy
		maskIndex = d.dataShards + shardIndex
	} else {
		if shardIndex < 0 || shardIndex >= d.dataShards {
			return nil, fmt.Errorf("fec: invalid data shard index: %d", shardIndex)
		}
		group.DataShards[shardIndex] = dataCopy
		maskIndex = shardIndex
	}

	if !group.ReceivedMask[maskIndex] {
		group.ReceivedMask[maskIndex] = true
		group.ReceivedCount++
	}

	if group.ReceivedCount >= d.dataShards {
		if err := d.reconstructGroup(group); err != nil {
			d.failedRecovery++
			return nil, fmt.Errorf("fec: reconstruct group: %w", err)
		}
		group.Complete = true
		d.totalRecovered += uint64(d.dataShards - group.countReceivedData())
		return group.DataShards, nil
	}
	return nil, nil
}

func (d *Decoder) reconstructGroup(group *DecodingGroup) error {
	allShards := make([][]byte, d.dataShards+d.parityShards)
	copy(allShards[:d.dataShards], group.DataShards)
	copy(allShards[d.dataShards:], group.ParityShards)

	if err := d.encoder.Reconstruct(allShards); err != nil {
		return fmt.Errorf("fec: Reed-Solomon reconstruct: %w", err)
	}
	ok, err := d.encoder.Verify(allShards)
	if err != nil {
		return fmt.Errorf("fec: verify reconstruction: %w", err)
	}
	if !ok {
		return fmt.Errorf("fec: reconstruction failed verification")
	}

	for i := 0; i < d.dataShards; i++ {
		if group.DataShards[i] == nil {
			group.DataShards[i] = allShards[i]
		}
	}
	return nil
}

func (group *DecodingGroup) countReceivedData() int {
	count := 0
	for i := 0; i < len(group.DataShards); i++ {
		if group.ReceivedMask[i] {
			count++
		}
	}
	return count
}

// CleanupOldGroups bounds decoder memory by dropping the oldest groups
// (lowest group ids, complete or not) once more than keepLatest are held.
func (d *Decoder) CleanupOldGroups(keepLatest int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.groups) <= keepLatest {
		return
	}
	ids := make([]uint64, 0, len(d.groups))
	for id := range d.groups {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids)-1; i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] > ids[j] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids[:len(ids)-keepLatest] {
		delete(d.groups, id)
	}
}

// Statistics returns recovery counters for internal/observability/metrics.
func (d *Decoder) Statistics() (totalRecovered, failedRecovery uint64, activeGroups int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalRecovered, d.failedRecovery, len(d.groups)
}

// ShardDescriptor is the information one wire.ExtensionFEC chain entry
// carries about the shard riding alongside it. SeqNr is the group's base
// stream sequence number (shard index 0's seq_nr), on data and parity
// shards alike, so a reconstructed data shard at index i can be replayed
// into the engine as seq_nr bit16(SeqNr + i).
type ShardDescriptor struct {
	GroupID    uint64
	SeqNr      uint16
	ShardIndex int
	IsParity   bool
}

// EncodeExtension packs a ShardDescriptor into a wire.ExtensionFEC chain
// entry: 8-byte group id, 2-byte seq_nr, 1-byte shard index, 1-byte flags.
func EncodeExtension(d ShardDescriptor) wire.Extension {
	buf := make([]byte, extensionPayloadLen)
	binary.BigEndian.PutUint64(buf[0:8], d.GroupID)
	binary.BigEndian.PutUint16(buf[8:10], d.SeqNr)
	buf[10] = byte(d.ShardIndex)
	if d.IsParity {
		buf[11] = 1
	}
	return wire.Extension{Type: wire.ExtensionFEC, Bytes: buf}
}

// DecodeExtension unpacks a wire.ExtensionFEC chain entry.
func DecodeExtension(ext wire.Extension) (ShardDescriptor, error) {
	if len(ext.Bytes) != extensionPayloadLen {
		return ShardDescriptor{}, fmt.Errorf("fec: extension payload length %d, want %d", len(ext.Bytes), extensionPayloadLen)
	}
	return ShardDescriptor{
		GroupID:    binary.BigEndian.Uint64(ext.Bytes[0:8]),
		SeqNr:      binary.BigEndian.Uint16(ext.Bytes[8:10]),
		ShardIndex: int(ext.Bytes[10]),
		IsParity:   ext.Bytes[11] == 1,
	}, nil
}

// CalculateOverhead reports the parity-to-data shard ratio.
func CalculateOverhead(dataShards, parityShards int) float64 {
	if dataShards == 0 {
		return 0
	}
	return float64(parityShards) / float64(dataShards)
}
