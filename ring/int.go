// Package ring implements the convolution-polynomial ring arithmetic that
// the NTRU engine is built on: Z[x]/(x^N - 1), (Z/pZ)[x]/(x^N - 1), and
// (Z/qZ)[x]/(x^N - 1).
package ring

import "fmt"

// DomainError reports a precondition violation in integer or polynomial
// arithmetic (e.g. gcd(0, 0)). It is a bug in the caller, not a runtime
// condition to recover from.
type DomainError struct {
	Op  string
	Msg string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("ring: %s: %s", e.Op, e.Msg)
}

// NotInvertibleError reports that a value has no multiplicative inverse
// in the requested ring.
type NotInvertibleError struct {
	Op string
}

func (e *NotInvertibleError) Error() string {
	return fmt.Sprintf("ring: %s: not invertible", e.Op)
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

// Gcd returns the greatest common divisor of a and b (both taken by
// absolute value). Fails if both are zero.
func Gcd(a, b int64) (int64, error) {
	if a == 0 && b == 0 {
		return 0, &DomainError{Op: "Gcd", Msg: "gcd(0, 0) is undefined"}
	}
	oldR, r := abs(a), abs(b)
	for r != 0 {
		oldR, r = r, oldR%r
	}
	return oldR, nil
}

// ExtGcd returns (d, x, y) such that |a|*x + |b|*y = d = gcd(|a|, |b|).
func ExtGcd(a, b int64) (d, x, y int64, err error) {
	if a == 0 && b == 0 {
		return 0, 0, 0, &DomainError{Op: "ExtGcd", Msg: "gcd(0, 0) is undefined"}
	}
	oldR, oldX, oldY := abs(a), int64(1), int64(0)
	r, x1, y1 := abs(b), int64(0), int64(1)
	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldX, x1 = x1, oldX-q*x1
		oldY, y1 = y1, oldY-q*y1
	}
	return oldR, oldX, oldY, nil
}

// Inverse returns the multiplicative inverse of a modulo m, in [0, m).
// Fails with NotInvertibleError if a is congruent to 0 mod m or
// gcd(a, m) != 1.
func Inverse(a, m int64) (int64, error) {
	if m <= 0 {
		return 0, &DomainError{Op: "Inverse", Msg: "modulus must be positive"}
	}
	ar := a % m
	if ar < 0 {
		ar += m
	}
	if ar == 0 {
		return 0, &NotInvertibleError{Op: "Inverse"}
	}
	d, x, _, err := ExtGcd(ar, m)
	if err != nil {
		return 0, &NotInvertibleError{Op: "Inverse"}
	}
	if d != 1 {
		return 0, &NotInvertibleError{Op: "Inverse"}
	}
	x %= m
	if x < 0 {
		x += m
	}
	return x, nil
}

// CenterLift maps a residue a in [0, m) to its least-magnitude
// representative in (-m/2, m/2]. The midpoint m/2 lifts to +m/2.
func CenterLift(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	if r > m/2 {
		return r - m
	}
	return r
}
