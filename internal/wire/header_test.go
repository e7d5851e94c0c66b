package wire

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := &Packet{
		Header: Header{
			Type:                TypeData,
			ConnID:              0x1234,
			TimestampMicros:     1000,
			TimestampDiffMicros: 50,
			WndSize:             8192,
			SeqNr:               42,
			AckNr:               41,
		},
		Payload: []byte("hello world"),
	}

	buf, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Header.Type != p.Header.Type || got.Header.ConnID != p.Header.ConnID ||
		got.Header.SeqNr != p.Header.SeqNr || got.Header.AckNr != p.Header.AckNr ||
		got.Header.WndSize != p.Header.WndSize || string(got.Payload) != string(p.Payload) {
		t.Fatalf("round trip mismatch: got %+v payload %q", got.Header, got.Payload)
	}
}

func TestMarshalUnmarshalWithExtensions(t *testing.T) {
	p := &Packet{
		Header: Header{
			Type:   TypeState,
			ConnID: 7,
			SeqNr:  5,
			AckNr:  4,
			Extensions: []Extension{
				{Type: ExtensionSelectiveAck, Bytes: []byte{0xff, 0x00, 0x00, 0x00}},
				{Type: ExtensionFEC, Bytes: []byte{1, 2, 3}},
			},
		},
	}

	buf, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(got.Header.Extensions) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(got.Header.Extensions))
	}
	if got.Header.Extensions[0].Type != ExtensionSelectiveAck || got.Header.Extensions[1].Type != ExtensionFEC {
		t.Fatalf("extension chain order mismatch: %+v", got.Header.Extensions)
	}
	if e, ok := got.Header.FindExtension(ExtensionFEC); !ok || len(e.Bytes) != 3 {
		t.Fatalf("FindExtension(FEC) = %+v, %v", e, ok)
	}
}

func TestUnmarshalRejectsShortPacket(t *testing.T) {
	_, err := Unmarshal(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestUnmarshalSkipsUnknownExtension(t *testing.T) {
	p := &Packet{
		Header: Header{
			Type: TypeData,
			Extensions: []Extension{
				{Type: 99, Bytes: []byte{0xaa}},
			},
		},
		Payload: []byte("x"),
	}
	buf, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal of unknown extension must not fail: %v", err)
	}
	if string(got.Payload) != "x" {
		t.Fatalf("payload lost after unknown extension: %q", got.Payload)
	}
}
