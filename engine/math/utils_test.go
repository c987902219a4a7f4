package math

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Errorf("Clamp(5,0,3) = %d", got)
	}
	if got := Clamp(-1.5, 0, 3); got != 0 {
		t.Errorf("Clamp(-1.5,0,3) = %f", got)
	}
	if got := Clamp(uint32(2), 1, 3); got != 2 {
		t.Errorf("Clamp(2,1,3) = %d", got)
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := SaturatingSub(uint32(3), 5); got != 0 {
		t.Errorf("SaturatingSub(3,5) = %d, want 0", got)
	}
	if got := SaturatingSub(uint32(5), 3); got != 2 {
		t.Errorf("SaturatingSub(5,3) = %d, want 2", got)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	for in, want := range map[uint32]uint32{0: 1, 1: 1, 2: 2, 3: 4, 17: 32, 1024: 1024} {
		if got := NextPowerOfTwo(in); got != want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestMinMax(t *testing.T) {
	if got := Min(uint32(2), 7); got != 2 {
		t.Errorf("Min(2,7) = %d", got)
	}
	if got := Max(uint32(2), 7); got != 7 {
		t.Errorf("Max(2,7) = %d", got)
	}
}
