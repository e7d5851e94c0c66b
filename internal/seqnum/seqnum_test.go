package seqnum

import "testing"

func TestDistComplement(t *testing.T) {
	cases := []Num{0, 1, 5, 65535, 32768, 100}
	for _, a := range cases {
		for _, b := range cases {
			d1 := Dist(a, b)
			d2 := Dist(b, a)
			if a == b {
				if d1 != 0 || d2 != 0 {
					t.Errorf("Dist(%d,%d)=%d Dist(%d,%d)=%d, want both 0", a, b, d1, b, a, d2)
				}
				continue
			}
			if uint32(d1)+uint32(d2) != 65536 {
				t.Errorf("Dist(%d,%d)=%d + Dist(%d,%d)=%d != 65536", a, b, d1, b, a, d2)
			}
		}
	}
}

func TestWraparound(t *testing.T) {
	if Dist(2, 65534) != 4 {
		t.Errorf("Dist(2,65534) = %d, want 4", Dist(2, 65534))
	}
	if Bit16(65536) != 0 {
		t.Errorf("Bit16(65536) = %d, want 0", Bit16(65536))
	}
	if Num(65535).Add(1) != 0 {
		t.Errorf("65535+1 = %d, want 0", Num(65535).Add(1))
	}
	if Num(0).Add(-1) != 65535 {
		t.Errorf("0-1 = %d, want 65535", Num(0).Add(-1))
	}
}

func TestLess(t *testing.T) {
	if !Less(10, 20) {
		t.Error("10 should be less than 20")
	}
	if Less(20, 10) {
		t.Error("20 should not be less than 10")
	}
	// wraparound: 65530 is older than 5
	if !Less(65530, 5) {
		t.Error("65530 should be less than 5 across wraparound")
	}
	if Less(5, 5) {
		t.Error("a value is never less than itself")
	}
}
