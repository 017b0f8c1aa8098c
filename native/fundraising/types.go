package fundraising

import (
	"fmt"
	"math/big"
)

// Proposal captures a fundraising proposal tracked by the engine. The
// identifier is a positive sequential integer; 0 is never assigned and acts
// as the "does not exist" sentinel at storage boundaries only — lookups
// surface absence through an explicit (value, ok) pair instead.
//
// TotalDonations is mutated exclusively by Donate, Funded and PayoutAmount
// exclusively by PayOut. Proposals are never deleted.
type Proposal struct {
	ID             uint64
	Proposer       [20]byte
	Title          string
	Metadata       []byte
	TotalDonations *big.Int
	Funded         bool
	PayoutAmount   *big.Int
	CreatedAt      int64
}

// Clone returns a deep copy of the proposal so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Metadata = append([]byte(nil), p.Metadata...)
	if p.TotalDonations != nil {
		clone.TotalDonations = new(big.Int).Set(p.TotalDonations)
	} else {
		clone.TotalDonations = big.NewInt(0)
	}
	if p.PayoutAmount != nil {
		clone.PayoutAmount = new(big.Int).Set(p.PayoutAmount)
	} else {
		clone.PayoutAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeProposal validates the supplied proposal and returns a cloned
// instance with non-nil amount fields. The function does not mutate the
// original value.
func SanitizeProposal(p *Proposal) (*Proposal, error) {
	if p == nil {
		return nil, fmt.Errorf("nil proposal")
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("proposal id must be positive")
	}
	clone := p.Clone()
	if clone.TotalDonations.Sign() < 0 {
		return nil, fmt.Errorf("proposal total must be non-negative")
	}
	if clone.PayoutAmount.Sign() < 0 {
		return nil, fmt.Errorf("proposal payout must be non-negative")
	}
	if !clone.Funded && clone.PayoutAmount.Sign() != 0 {
		return nil, fmt.Errorf("unfunded proposal must have zero payout")
	}
	return clone, nil
}

// Donation is a single immutable contribution record. Records form an
// append-only, index-addressable sequence owned by their proposal.
type Donation struct {
	Donor     [20]byte
	Amount    *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the donation record.
func (d *Donation) Clone() *Donation {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Amount != nil {
		clone.Amount = new(big.Int).Set(d.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
