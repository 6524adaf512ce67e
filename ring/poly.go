package ring

import "encoding/binary"

// Poly is an element of the convolution-polynomial ring Z[x]/(x^N - 1)
// (or a modular variant of it), represented by its coefficients in
// ascending degree order: Poly[i] is the coefficient of x^i.
//
// Canonical form trims trailing zeros; the zero polynomial canonicalizes
// to the single-element slice {0}. Equality and hashing must always
// operate on the trimmed form.
type Poly []int64

// NewPoly builds a Poly from raw coefficients and trims it.
func NewPoly(coeffs ...int64) Poly {
	return Poly(append([]int64(nil), coeffs...)).Trim()
}

// Zero returns the zero polynomial.
func Zero() Poly { return Poly{0} }

// One returns the constant polynomial 1.
func One() Poly { return Poly{1} }

// Trim removes trailing zero coefficients, leaving at least one
// coefficient (the canonical zero polynomial is {0}).
func (p Poly) Trim() Poly {
	last := -1
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			last = i
			break
		}
	}
	if last < 0 {
		return Poly{0}
	}
	out := make(Poly, last+1)
	copy(out, p[:last+1])
	return out
}

// Deg returns the degree (index of the last non-zero coefficient), or 0
// for the zero polynomial.
func (p Poly) Deg() int {
	t := p.Trim()
	return len(t) - 1
}

// Lc returns the leading coefficient (0 for the zero polynomial).
func (p Poly) Lc() int64 {
	t := p.Trim()
	return t[len(t)-1]
}

// IsZero reports whether every coefficient is zero.
func (p Poly) IsZero() bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

// Equal compares two polynomials by their trimmed canonical form.
func (p Poly) Equal(other Poly) bool {
	a, b := p.Trim(), other.Trim()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Modulo reduces every coefficient into [0, m) and trims the result.
func (p Poly) Modulo(m int64) Poly {
	out := make(Poly, len(p))
	for i, c := range p {
		out[i] = mod(c, m)
	}
	return out.Trim()
}

// CenterLift maps every coefficient c in [0, m) to c if c <= m/2, else
// c - m, and trims the result.
func (p Poly) CenterLift(m int64) Poly {
	out := make(Poly, len(p))
	for i, c := range p {
		out[i] = CenterLift(c, m)
	}
	return out.Trim()
}

func maxLen(a, b Poly) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}

func coeffAt(p Poly, i int) int64 {
	if i < len(p) {
		return p[i]
	}
	return 0
}

// Add returns p + other, coefficient-wise; operands may differ in
// length (missing tails are treated as zero).
func (p Poly) Add(other Poly) Poly {
	n := maxLen(p, other)
	out := make(Poly, n)
	for i := 0; i < n; i++ {
		out[i] = coeffAt(p, i) + coeffAt(other, i)
	}
	return out.Trim()
}

// Sub returns p - other, coefficient-wise.
func (p Poly) Sub(other Poly) Poly {
	n := maxLen(p, other)
	out := make(Poly, n)
	for i := 0; i < n; i++ {
		out[i] = coeffAt(p, i) - coeffAt(other, i)
	}
	return out.Trim()
}

// scalarMul multiplies every coefficient by c, reduces mod m, and trims.
func (p Poly) scalarMul(c, m int64) Poly {
	out := make(Poly, len(p))
	for i, v := range p {
		out[i] = v * c
	}
	if m > 0 {
		return out.Modulo(m)
	}
	return out.Trim()
}

// Mul computes the cyclic convolution self*other in the ring
// Z[x]/(x^ringSize - 1): for each i in [0, deg(self)], j in
// [0, deg(other)], accumulate self[i]*other[j] into result[(i+j) mod
// ringSize]. ringSize is an explicit parameter, not derived from
// operand length.
func (p Poly) Mul(other Poly, ringSize int) Poly {
	dp, dq := p.Deg(), other.Deg()
	out := make(Poly, ringSize)
	for i := 0; i <= dp; i++ {
		ci := coeffAt(p, i)
		if ci == 0 {
			continue
		}
		for j := 0; j <= dq; j++ {
			cj := coeffAt(other, j)
			if cj == 0 {
				continue
			}
			out[(i+j)%ringSize] += ci * cj
		}
	}
	return out.Trim()
}

// DivMod performs schoolbook long division of p by divisor in
// (Z/mZ)[x]/(x^ringSize - 1), returning (quotient, remainder).
// Fails with NotInvertibleError if the divisor's leading coefficient
// has no inverse mod m, and with DomainError if the divisor is zero.
func (p Poly) DivMod(divisor Poly, m int64, ringSize int) (quotient, remainder Poly, err error) {
	if divisor.IsZero() {
		return nil, nil, &DomainError{Op: "DivMod", Msg: "division by zero polynomial"}
	}

	invDivisorLc, err := Inverse(divisor.Lc(), m)
	if err != nil {
		return nil, nil, &NotInvertibleError{Op: "DivMod: divisor leading coefficient"}
	}

	// Normalize the dividend by multiplying by 1 in the ring, forcing
	// cyclic reduction to length <= ringSize.
	remainder = p.Mul(One(), ringSize).Modulo(m)
	quotient = Zero()

	for remainder.Deg() >= divisor.Deg() && !remainder.IsZero() {
		d := remainder.Deg() - divisor.Deg()
		c := mod(remainder.Lc()*invDivisorLc, m)
		term := make(Poly, d+1)
		term[d] = c
		quotient = quotient.Add(term).Modulo(m)
		remainder = remainder.Sub(term.Mul(divisor, ringSize)).Modulo(m)
	}

	return quotient, remainder, nil
}

// PolyExtGcd is the polynomial extended Euclidean algorithm: returns (d, s,
// t) such that a*s + b*t = d (mod m) within (Z/mZ)[x]/(x^ringSize - 1).
func PolyExtGcd(a, b Poly, m int64, ringSize int) (d, s, t Poly, err error) {
	if a.IsZero() && b.IsZero() {
		return nil, nil, nil, &DomainError{Op: "PolyExtGcd", Msg: "both operands zero"}
	}

	oldR, oldS, oldT := a, One(), Zero()
	r, curS, curT := b, Zero(), One()

	for !r.IsZero() {
		q, newR, divErr := oldR.DivMod(r, m, ringSize)
		if divErr != nil {
			return nil, nil, nil, divErr
		}
		oldR, r = r, newR
		oldS, curS = curS, oldS.Sub(curS.Mul(q, ringSize)).Modulo(m)
		oldT, curT = curT, oldT.Sub(curT.Mul(q, ringSize)).Modulo(m)
	}

	d, s, t = oldR, oldS, oldT

	// Normalize by lc(d)^-1 mod m, when that inverse exists.
	if !d.IsZero() {
		if invLc, invErr := Inverse(d.Lc(), m); invErr == nil {
			d = d.scalarMul(invLc, m)
			s = s.scalarMul(invLc, m)
			t = t.scalarMul(invLc, m)
		}
	}

	return d, s, t, nil
}

// Inverse computes self^-1 in (Z/mZ)[x]/(x^ringSize - 1) via
// ext_gcd(self, x^ringSize - 1, m, ringSize+1), per the off-by-one
// ring-size convention required for long division to have room to
// reduce the degree-ringSize modulus.
func (p Poly) Inverse(m int64, ringSize int) (Poly, error) {
	if p.IsZero() {
		return nil, &NotInvertibleError{Op: "Inverse: zero polynomial"}
	}

	modulus := make(Poly, ringSize+1)
	modulus[0] = -1
	modulus[ringSize] = 1

	d, s, _, err := PolyExtGcd(p, modulus, m, ringSize+1)
	if err != nil {
		return nil, err
	}

	dm := d.Modulo(m)
	if dm.Deg() != 0 || dm.Lc() != 1 {
		return nil, &NotInvertibleError{Op: "Inverse"}
	}

	return s.Modulo(m), nil
}

// ToBytes serializes each coefficient as a 4-byte big-endian signed
// integer, in ascending degree order, through deg+1 coefficients.
func (p Poly) ToBytes() []byte {
	t := p.Trim()
	out := make([]byte, 4*len(t))
	for i, c := range t {
		binary.BigEndian.PutUint32(out[4*i:], uint32(int32(c)))
	}
	return out
}

// FromBytes deserializes a coefficient sequence produced by ToBytes.
func FromBytes(b []byte) (Poly, error) {
	if len(b)%4 != 0 {
		return nil, &DomainError{Op: "FromBytes", Msg: "byte length must be a multiple of 4"}
	}
	n := len(b) / 4
	if n == 0 {
		return Zero(), nil
	}
	out := make(Poly, n)
	for i := 0; i < n; i++ {
		out[i] = int64(int32(binary.BigEndian.Uint32(b[4*i:])))
	}
	return out.Trim(), nil
}
