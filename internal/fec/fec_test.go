package fec

import (
	"bytes"
	"testing"

	"github.com/packetloom/utp/internal/wire"
)

func smallConfig() *Config {
	return &Config{DataShards: 4, ParityShards: 2}
}

func TestNewEncoderRejectsInvalidShardCounts(t *testing.T) {
	if _, err := NewEncoder(&Config{DataShards: 0, ParityShards: 2}); err == nil {
		t.Error("expected error for zero data shards")
	}
	if _, err := NewEncoder(&Config{DataShards: 4, ParityShards: -1}); err == nil {
		t.Error("expected error for negative parity shards")
	}
}

func TestAddDataReturnsGroupOnlyWhenFull(t *testing.T) {
	enc, err := NewEncoder(smallConfig())
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	for i := 0; i < 3; i++ {
		groupID, shardIndex, _, parity, err := enc.AddData(uint16(i), []byte("payload"))
		if err != nil {
			t.Fatalf("AddData: %v", err)
		}
		if groupID != 1 || shardIndex != i || parity != nil {
			t.Fatalf("AddData shard %d = (group %d, index %d, parity %v), want (1, %d, nil)", i, groupID, shardIndex, parity, i)
		}
	}

	groupID, shardIndex, baseSeqNr, parity, err := enc.AddData(3, []byte("payload"))
	if err != nil {
		t.Fatalf("AddData: %v", err)
	}
	if groupID != 1 || shardIndex != 3 || baseSeqNr != 0 {
		t.Errorf("AddData completion = (group %d, index %d, base %d), want (1, 3, 0)", groupID, shardIndex, baseSeqNr)
	}
	if len(parity) != 2 {
		t.Fatalf("got %d parity shards, want 2", len(parity))
	}
}

func TestEncodeDecodeRoundTripWithoutLoss(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	data := [][]byte{[]byte("aaaa"), []byte("bb"), []byte("cccccc"), []byte("d")}
	var groupID uint64
	var parity [][]byte
	for i, chunk := range data {
		groupID, _, _, parity, err = enc.AddData(uint16(100+i), chunk)
		if err != nil {
			t.Fatalf("AddData: %v", err)
		}
	}
	if parity == nil {
		t.Fatal("group never completed")
	}

	var recovered [][]byte
	for i, chunk := range data {
		recovered, err = dec.AddShard(groupID, i, padTo(chunk, len(parity[0])), false)
		if err != nil {
			t.Fatalf("AddShard data %d: %v", i, err)
		}
	}
	if recovered == nil {
		t.Fatal("expected group to complete once all data shards arrived")
	}
	for i, chunk := range data {
		if !bytes.Equal(bytes.TrimRight(recovered[i], "\x00"), chunk) {
			t.Errorf("recovered shard %d = %q, want %q", i, recovered[i], chunk)
		}
	}
}

func TestDecoderReconstructsFromParityAfterDataLoss(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	data := [][]byte{[]byte("wxyz"), []byte("1234"), []byte("abcd"), []byte("efgh")}
	var groupID uint64
	var parity [][]byte
	for i, chunk := range data {
		groupID, _, _, parity, err = enc.AddData(uint16(200+i), chunk)
		if err != nil {
			t.Fatalf("AddData: %v", err)
		}
	}

	// Lose data shard 0; deliver the remaining three data shards plus the
	// first parity shard, which is enough (4 of 6) to reconstruct.
	if _, err := dec.AddShard(groupID, 1, data[1], false); err != nil {
		t.Fatalf("AddShard data 1: %v", err)
	}
	if _, err := dec.AddShard(groupID, 2, data[2], false); err != nil {
		t.Fatalf("AddShard data 2: %v", err)
	}
	if _, err := dec.AddShard(groupID, 3, data[3], false); err != nil {
		t.Fatalf("AddShard data 3: %v", err)
	}
	recovered, err := dec.AddShard(groupID, 0, parity[0], true)
	if err != nil {
		t.Fatalf("AddShard parity 0: %v", err)
	}
	if recovered == nil {
		t.Fatal("expected reconstruction to complete the group")
	}
	if !bytes.Equal(bytes.TrimRight(recovered[0], "\x00"), data[0]) {
		t.Errorf("reconstructed shard 0 = %q, want %q", recovered[0], data[0])
	}

	totalRecovered, failed, _ := dec.Statistics()
	if totalRecovered == 0 {
		t.Error("expected Statistics to report at least one recovered shard")
	}
	if failed != 0 {
		t.Errorf("failedRecovery = %d, want 0", failed)
	}
}

func TestCleanupOldGroupsKeepsOnlyLatest(t *testing.T) {
	cfg := smallConfig()
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	for id := uint64(1); id <= 5; id++ {
		if _, err := dec.AddShard(id, 0, []byte("x"), false); err != nil {
			t.Fatalf("AddShard group %d: %v", id, err)
		}
	}
	dec.CleanupOldGroups(2)
	_, _, active := dec.Statistics()
	if active != 2 {
		t.Errorf("active groups = %d, want 2", active)
	}
}

func TestEncodeDecodeExtensionRoundTrip(t *testing.T) {
	want := ShardDescriptor{GroupID: 42, SeqNr: 7, ShardIndex: 3, IsParity: true}
	ext := EncodeExtension(want)
	if ext.Type != wire.ExtensionFEC {
		t.Fatalf("extension type = %d, want %d", ext.Type, wire.ExtensionFEC)
	}

	got, err := DecodeExtension(ext)
	if err != nil {
		t.Fatalf("DecodeExtension: %v", err)
	}
	if got != want {
		t.Errorf("DecodeExtension = %+v, want %+v", got, want)
	}
}

func TestDecodeExtensionRejectsWrongLength(t *testing.T) {
	if _, err := DecodeExtension(wire.Extension{Type: wire.ExtensionFEC, Bytes: []byte{1, 2, 3}}); err == nil {
		t.Error("expected error for malformed extension payload")
	}
}

func TestCalculateOverhead(t *testing.T) {
	if got := CalculateOverhead(10, 3); got != 0.3 {
		t.Errorf("CalculateOverhead(10, 3) = %v, want 0.3", got)
	}
	if got := CalculateOverhead(0, 3); got != 0 {
		t.Errorf("CalculateOverhead(0, 3) = %v, want 0", got)
	}
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
