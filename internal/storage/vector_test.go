package storage

import "testing"

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1, -1, 0.5, 3.14159}
	b := EncodeVector(v)
	if len(b) != len(v)*4 {
		t.Fatalf("expected %d bytes, got %d", len(v)*4, len(b))
	}
	got := DecodeVector(b)
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %g, want %g", i, got[i], v[i])
		}
	}
	if len(DecodeVector(nil)) != 0 {
		t.Error("empty input should decode to empty vector")
	}
}
