package fundraising

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// MatchScale is the fixed multiplier applied to the integer square root of a
// proposal's donation total. The resulting bonus is intentionally a
// simplified stand-in for quadratic funding (which would need per-donor
// square roots summed and squared); the scaled-sqrt form is the documented
// compatibility contract and must not be replaced with a more faithful
// formula.
var MatchScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// IntegerSqrt returns the floor integer square root of n using Babylonian
// iteration: the largest s with s*s <= n. Negative input is rejected.
func IntegerSqrt(n *big.Int) (*big.Int, error) {
	if n == nil {
		return big.NewInt(0), nil
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("fundraising: sqrt of negative value")
	}
	y := new(big.Int).Set(n)
	z := new(big.Int).Add(n, big.NewInt(1))
	z.Rsh(z, 1)
	for z.Cmp(y) < 0 {
		y.Set(z)
		q := new(big.Int).Quo(n, z)
		q.Add(q, z)
		z = q.Rsh(q, 1)
	}
	return y, nil
}

// pseudoMatch computes the unbounded bonus for a donation total:
// sqrt(total)*MatchScale - total, floored at zero. Results that do not fit
// in 256 bits are rejected rather than wrapped.
func pseudoMatch(total *big.Int) (*big.Int, error) {
	if total == nil || total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	s, err := IntegerSqrt(total)
	if err != nil {
		return nil, err
	}
	scaled := new(big.Int).Mul(s, MatchScale)
	if _, overflow := uint256.FromBig(scaled); overflow {
		return nil, fmt.Errorf("fundraising: scaled match overflows 256 bits")
	}
	if scaled.Cmp(total) <= 0 {
		return big.NewInt(0), nil
	}
	return scaled.Sub(scaled, total), nil
}
