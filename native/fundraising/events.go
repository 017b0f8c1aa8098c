package fundraising

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"fundchain/core/types"
)

const (
	EventTypeProposalCreated      = "fund.proposal_created"
	EventTypeDonated              = "fund.donated"
	EventTypePoolToppedUp         = "fund.pool_topped_up"
	EventTypeMatchCalculated      = "fund.match_calculated"
	EventTypePayoutSent           = "fund.payout_sent"
	EventTypePauseChanged         = "fund.pause_changed"
	EventTypeOwnershipTransferred = "fund.ownership_transferred"
)

// NewProposalCreatedEvent returns the canonical payload emitted when a new
// proposal is registered.
func NewProposalCreatedEvent(p *Proposal) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: EventTypeProposalCreated, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(p.ID, 10)
	attrs["proposer"] = hex.EncodeToString(p.Proposer[:])
	attrs["title"] = p.Title
	attrs["createdAt"] = strconv.FormatInt(p.CreatedAt, 10)
	return &types.Event{Type: EventTypeProposalCreated, Attributes: attrs}
}

// NewDonatedEvent returns the canonical payload for an accepted donation. The
// ref attribute carries the opaque caller-supplied reference tag and is
// omitted when empty.
func NewDonatedEvent(proposalID uint64, d *Donation, newTotal *big.Int, ref string) *types.Event {
	attrs := make(map[string]string)
	attrs["id"] = strconv.FormatUint(proposalID, 10)
	if d != nil {
		attrs["donor"] = hex.EncodeToString(d.Donor[:])
		if d.Amount != nil {
			attrs["amount"] = d.Amount.String()
		}
		attrs["timestamp"] = strconv.FormatInt(d.Timestamp, 10)
	}
	if newTotal != nil {
		attrs["total"] = newTotal.String()
	}
	if ref != "" {
		attrs["ref"] = ref
	}
	return &types.Event{Type: EventTypeDonated, Attributes: attrs}
}

// NewPoolToppedUpEvent returns the payload emitted when the owner credits the
// matching pool.
func NewPoolToppedUpEvent(from [20]byte, amount, newBalance *big.Int) *types.Event {
	attrs := make(map[string]string)
	attrs["from"] = hex.EncodeToString(from[:])
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	if newBalance != nil {
		attrs["pool"] = newBalance.String()
	}
	return &types.Event{Type: EventTypePoolToppedUp, Attributes: attrs}
}

// NewMatchCalculatedEvent returns the payload describing the match computed
// during a successful payout.
func NewMatchCalculatedEvent(proposalID uint64, match *big.Int) *types.Event {
	attrs := make(map[string]string)
	attrs["id"] = strconv.FormatUint(proposalID, 10)
	if match != nil {
		attrs["match"] = match.String()
	}
	return &types.Event{Type: EventTypeMatchCalculated, Attributes: attrs}
}

// NewPayoutSentEvent returns the payload describing a completed payout.
func NewPayoutSentEvent(p *Proposal, recipient [20]byte) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["id"] = strconv.FormatUint(p.ID, 10)
		if p.PayoutAmount != nil {
			attrs["amount"] = p.PayoutAmount.String()
		}
	}
	attrs["recipient"] = hex.EncodeToString(recipient[:])
	return &types.Event{Type: EventTypePayoutSent, Attributes: attrs}
}

// NewPauseChangedEvent returns the payload emitted when the pause flag flips.
func NewPauseChangedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePauseChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}

// NewOwnershipTransferredEvent returns the payload emitted on an ownership
// change.
func NewOwnershipTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": hex.EncodeToString(previous[:]),
		"newOwner":      hex.EncodeToString(next[:]),
	}}
}
