package ring

import (
	"crypto/rand"
	"math/big"
)

// SampleTernary draws a uniformly random permutation of the indices
// [0, n) and returns the length-n polynomial with the first dPlus
// indices set to +1, the next dMinus set to -1, and the rest 0. Uses a
// cryptographically secure random source, as required for any
// production use of ternary sampling (key material, blinding
// polynomials, circuit ids downstream).
func SampleTernary(n, dPlus, dMinus int) (Poly, error) {
	if n <= 0 {
		return nil, &DomainError{Op: "SampleTernary", Msg: "n must be positive"}
	}
	if dPlus+dMinus > n {
		return nil, &DomainError{Op: "SampleTernary", Msg: "dPlus + dMinus must be <= n"}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	// Fisher-Yates shuffle using crypto/rand.
	for i := n - 1; i > 0; i-- {
		j, err := randIntn(i + 1)
		if err != nil {
			return nil, err
		}
		indices[i], indices[j] = indices[j], indices[i]
	}

	coeffs := make(Poly, n)
	for i := 0; i < dPlus; i++ {
		coeffs[indices[i]] = 1
	}
	for i := dPlus; i < dPlus+dMinus; i++ {
		coeffs[indices[i]] = -1
	}

	return coeffs.Trim(), nil
}

func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
