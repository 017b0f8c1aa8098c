package fundraising

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the owner role
	// required by an administrative operation.
	ErrUnauthorized = errors.New("fundraising: unauthorized")
	// ErrPaused is returned when a donor-facing or payout operation is
	// attempted while the module pause flag is set.
	ErrPaused = errors.New("fundraising: module paused")
	// ErrInvalidAmount rejects non-positive currency amounts.
	ErrInvalidAmount = errors.New("fundraising: amount must be positive")
	// ErrNotFound is returned when a referenced proposal does not exist.
	ErrNotFound = errors.New("fundraising: proposal not found")
	// ErrOutOfRange is returned for donation indexes past the end of a
	// proposal's donation sequence.
	ErrOutOfRange = errors.New("fundraising: donation index out of range")
	// ErrAlreadyFunded rejects a second payout attempt on a proposal.
	ErrAlreadyFunded = errors.New("fundraising: proposal already funded")
	// ErrInsufficientFunds is returned when the vault balance cannot cover
	// a payout or withdrawal, or a donor balance cannot cover a donation.
	ErrInsufficientFunds = errors.New("fundraising: insufficient funds")
	// ErrInsufficientMatchingPool is returned when the pool cannot cover
	// the computed match at debit time.
	ErrInsufficientMatchingPool = errors.New("fundraising: insufficient matching pool")
	// ErrTransferFailed wraps a failure of the final value transfer; the
	// engine rolls back all bookkeeping before returning it.
	ErrTransferFailed = errors.New("fundraising: transfer failed")
	// ErrInvalidRecipient rejects the zero address as a transfer target.
	ErrInvalidRecipient = errors.New("fundraising: recipient must not be zero")

	errNilState = errors.New("fundraising: state not configured")
)
