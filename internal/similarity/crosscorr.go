package similarity

import "math"

// CrossCorrelation returns the normalized cross-correlation of two
// perceptual-hash coefficient vectors, in [0, 1]. The correlation is
// evaluated at every circular offset and the maximum is taken, so the
// measure is rotation-of-origin invariant over the coefficient sequence.
// Offered alongside Cosine for callers holding coefficient hashes rather
// than embeddings.
func CrossCorrelation(a, b []uint8) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var sumA, sumB int
	for i := 0; i < n; i++ {
		sumA += int(a[i])
		sumB += int(b[i])
	}
	meanA := float64(sumA) / float64(n)
	meanB := float64(sumB) / float64(n)

	fa := make([]float64, n)
	fb := make([]float64, n)
	for i := 0; i < n; i++ {
		fa[i] = float64(a[i]) - meanA
		fb[i] = float64(b[i]) - meanB
	}

	var max float64
	for offset := 0; offset < n; offset++ {
		if v := correlationAtOffset(fa, fb, offset); v > max {
			max = v
		}
	}
	return math.Sqrt(max)
}

// correlationAtOffset computes the squared normalized correlation of x
// against y rotated by offset. Negative correlations clamp to 0.
func correlationAtOffset(x, y []float64, offset int) float64 {
	n := len(x)
	var num, denX, denY float64
	for i := 0; i < n; i++ {
		dx := x[i]
		dy := y[(i+offset)%n]
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}
	if num < 0 || denX == 0 || denY == 0 {
		return 0
	}
	return num * num / (denX * denY)
}

// HammingDistance returns the number of differing bits between two 64-bit
// perceptual hashes.
func HammingDistance(x, y uint64) int {
	v := x ^ y
	v = v - ((v >> 1) & 0x5555555555555555)
	v = (v & 0x3333333333333333) + ((v >> 2) & 0x3333333333333333)
	return int((((v + (v >> 4)) & 0x0F0F0F0F0F0F0F0F) * 0x0101010101010101) >> 56)
}
