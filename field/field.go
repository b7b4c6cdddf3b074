package field

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// Prime is the field modulus, 2^255 - 19. Fixed for share compatibility.
var Prime = newPrime()

// primeMinusTwo is the exponent for Fermat inversion.
var primeMinusTwo = new(big.Int).Sub(newPrime(), big.NewInt(2))

func newPrime() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}

// Validate checks that e is a canonical field element in [0, Prime).
func Validate(e *big.Int) error {
	if e == nil || e.Sign() < 0 || e.Cmp(Prime) >= 0 {
		return fmt.Errorf("%w: value outside [0, prime)", interfaces.ErrInvalidFieldElement)
	}
	return nil
}

// Add returns (a + b) mod Prime.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), Prime)
}

// Sub returns (a - b) mod Prime.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Sub(a, b), Prime)
}

// Mul returns (a * b) mod Prime.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), Prime)
}

// Inv returns the multiplicative inverse of a via Fermat exponentiation
// (a^(p-2) mod p). Zero has no inverse and is rejected.
func Inv(a *big.Int) (*big.Int, error) {
	if err := Validate(a); err != nil {
		return nil, err
	}
	if a.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero has no inverse", interfaces.ErrInvalidFieldElement)
	}
	return new(big.Int).Exp(a, primeMinusTwo, Prime), nil
}

// Eval evaluates the polynomial with the given coefficients (constant term
// first) at x, using Horner's rule.
func Eval(coeffs []*big.Int, x *big.Int) *big.Int {
	acc := big.NewInt(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = Add(Mul(acc, x), coeffs[i])
	}
	return acc
}

// Point is an evaluation point of a polynomial over the field.
type Point struct {
	X *big.Int
	Y *big.Int
}

// InterpolateAtZero recovers the constant term of the unique polynomial of
// degree len(points)-1 passing through the given points, via Lagrange
// interpolation evaluated at x=0. Point x-coordinates must be distinct and
// nonzero.
func InterpolateAtZero(points []Point) (*big.Int, error) {
	for _, p := range points {
		if err := Validate(p.X); err != nil {
			return nil, err
		}
		if err := Validate(p.Y); err != nil {
			return nil, err
		}
		if p.X.Sign() == 0 {
			return nil, fmt.Errorf("%w: x-coordinate must be nonzero", interfaces.ErrInvalidFieldElement)
		}
	}

	secret := big.NewInt(0)
	for i, pi := range points {
		// Lagrange basis at x=0: prod_{j != i} x_j / (x_j - x_i).
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, pj := range points {
			if j == i {
				continue
			}
			num = Mul(num, pj.X)
			den = Mul(den, Sub(pj.X, pi.X))
		}
		denInv, err := Inv(den)
		if err != nil {
			return nil, fmt.Errorf("duplicate x-coordinate in interpolation: %w", err)
		}
		secret = Add(secret, Mul(pi.Y, Mul(num, denInv)))
	}
	return secret, nil
}

// RandomElement returns a uniformly random field element.
func RandomElement() (*big.Int, error) {
	e, err := rand.Int(rand.Reader, Prime)
	if err != nil {
		return nil, fmt.Errorf("failed to sample field element: %w", err)
	}
	return e, nil
}
