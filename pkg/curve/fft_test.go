package curve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFFTRoundTrip confirms IFFT(FFT(v)) recovers the original vector of
// G1 points, i.e. that the forward transform AMTParams.FromPowerTau uses to
// build its commitment tables is invertible.
func TestFFTRoundTrip(t *testing.T) {
	const n = 8
	domain := NewDomain(n)

	original := make([]*G1Point, n)
	for i := range original {
		original[i] = ScalarMulG1(G1Generator, FrFromUint64(uint64(i+1)))
	}

	transformed := FFT(original, domain)
	recovered := IFFT(transformed, domain)

	for i := range original {
		require.True(t, original[i].Equal(recovered[i]), "index %d did not round-trip", i)
	}
}

func TestFFTOfZeroVectorIsZero(t *testing.T) {
	const n = 4
	domain := NewDomain(n)

	zeros := make([]*G1Point, n)
	for i := range zeros {
		zeros[i] = ZeroG1()
	}

	out := FFT(zeros, domain)
	for i, p := range out {
		require.True(t, p.IsZero(), "index %d should remain the identity", i)
	}
}
