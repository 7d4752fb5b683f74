package scanner

import "testing"

func TestValueTypeWidth(t *testing.T) {
	cases := map[ValueType]int{
		I8: 1, U8: 1,
		I16: 2, U16: 2,
		I32: 4, U32: 4, F32: 4,
		I64: 8, U64: 8, F64: 8,
		TString: 0, TByteArray: 0,
	}
	for vt, want := range cases {
		if got := vt.Width(); got != want {
			t.Errorf("Width(%d) = %d, want %d", vt, got, want)
		}
	}
}

func TestAsFloat64Signed(t *testing.T) {
	if got := asFloat64(I8, []byte{0xFF}); got != -1 {
		t.Errorf("I8 0xFF should sign-extend to -1, got %v", got)
	}
	if got := asFloat64(U8, []byte{0xFF}); got != 255 {
		t.Errorf("U8 0xFF should be 255, got %v", got)
	}
}

func TestIsFloatType(t *testing.T) {
	if !isFloatType(F32) || !isFloatType(F64) {
		t.Error("F32 and F64 should be float types")
	}
	if isFloatType(I32) {
		t.Error("I32 should not be a float type")
	}
}
