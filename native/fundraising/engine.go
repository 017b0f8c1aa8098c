package fundraising

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/native/common"
)

// ModuleName identifies the module for pause bookkeeping.
const ModuleName = "fundraising"

type engineState interface {
	ProposalPut(*Proposal) error
	ProposalGet(id uint64) (*Proposal, bool)
	NextProposalID() (uint64, error)
	DonationAppend(proposalID uint64, d *Donation) error
	DonationCount(proposalID uint64) (uint64, error)
	DonationAt(proposalID uint64, index uint64) (*Donation, bool)
	DonorTotal(proposalID uint64, donor [20]byte) (*big.Int, error)
	DonorTotalAdd(proposalID uint64, donor [20]byte, amt *big.Int) error
	MatchingPool() (*big.Int, error)
	SetMatchingPool(*big.Int) error
	Owner() ([20]byte, error)
	SetOwner([20]byte) error
	SetPaused(bool) error
	VaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type fundraisingEvent struct {
	evt *types.Event
}

func (e fundraisingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e fundraisingEvent) Event() *types.Event { return e.evt }

// Engine wires the matching-pool accounting and payout logic with external
// state and event emitters. All mutating entry points assume the caller
// serializes access; the engine performs no locking of its own.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewEngine creates a fundraising engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the pause view gating donor-facing and payout paths.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetNowFunc overrides the time source used to stamp donations and
// proposals. Primarily intended for tests to provide deterministic
// timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(fundraisingEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guardPause() error {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		if errors.Is(err, common.ErrModulePaused) {
			return ErrPaused
		}
		return err
	}
	return nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	owner, err := e.state.Owner()
	if err != nil {
		return err
	}
	if owner == ([20]byte{}) || caller != owner {
		return ErrUnauthorized
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadProposal(id uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, ok := e.state.ProposalGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return proposal, nil
}

// transfer moves amount between two accounts, failing without side effects
// when the source balance is insufficient.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("fundraising: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	originalFrom := fromAcc.Clone()
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		if restoreErr := e.state.PutAccount(from[:], originalFrom); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("fundraising: rollback sender: %w", restoreErr))
		}
		return err
	}
	return nil
}

// CreateProposal registers a new proposal under the next sequential
// identifier. Identifiers start at 1 and are never reused.
func (e *Engine) CreateProposal(proposer [20]byte, title string, metadata []byte) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guardPause(); err != nil {
		return nil, err
	}
	id, err := e.state.NextProposalID()
	if err != nil {
		return nil, err
	}
	proposal := &Proposal{
		ID:             id,
		Proposer:       proposer,
		Title:          title,
		Metadata:       append([]byte(nil), metadata...),
		TotalDonations: big.NewInt(0),
		PayoutAmount:   big.NewInt(0),
		CreatedAt:      e.now(),
	}
	if err := e.state.ProposalPut(proposal); err != nil {
		return nil, err
	}
	e.emit(NewProposalCreatedEvent(proposal))
	return proposal.Clone(), nil
}

// GetProposal returns a copy of the stored proposal.
func (e *Engine) GetProposal(id uint64) (*Proposal, error) {
	return e.loadProposal(id)
}

// Donate moves amount from the donor into the module vault and records the
// contribution. Donations to an already-funded proposal remain accepted:
// funding does not close a proposal to further contribution.
func (e *Engine) Donate(proposalID uint64, donor [20]byte, amount *big.Int, ref string) (*Donation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guardPause(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	proposal, err := e.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	amt := cloneBigInt(amount)
	if err := e.transfer(donor, e.state.VaultAddress(), amt); err != nil {
		return nil, err
	}
	refund := func() {
		_ = e.transfer(e.state.VaultAddress(), donor, amt)
	}
	donation := &Donation{
		Donor:     donor,
		Amount:    amt,
		Timestamp: e.now(),
	}
	if err := e.state.DonationAppend(proposalID, donation); err != nil {
		refund()
		return nil, err
	}
	if err := e.state.DonorTotalAdd(proposalID, donor, amt); err != nil {
		refund()
		return nil, err
	}
	proposal.TotalDonations = new(big.Int).Add(proposal.TotalDonations, amt)
	if err := e.state.ProposalPut(proposal); err != nil {
		refund()
		return nil, err
	}
	e.emit(NewDonatedEvent(proposalID, donation, proposal.TotalDonations, ref))
	return donation.Clone(), nil
}

// DonationCount returns the number of recorded donations for the proposal.
func (e *Engine) DonationCount(proposalID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if _, err := e.loadProposal(proposalID); err != nil {
		return 0, err
	}
	return e.state.DonationCount(proposalID)
}

// DonationAt returns the donation at the given zero-based index. An index
// past the end of the sequence is an explicit error, never a silent default.
func (e *Engine) DonationAt(proposalID uint64, index uint64) (*Donation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadProposal(proposalID); err != nil {
		return nil, err
	}
	donation, ok := e.state.DonationAt(proposalID, index)
	if !ok {
		return nil, ErrOutOfRange
	}
	return donation, nil
}

// DonorTotal returns the donor's cumulative contribution to the proposal.
func (e *Engine) DonorTotal(proposalID uint64, donor [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadProposal(proposalID); err != nil {
		return nil, err
	}
	return e.state.DonorTotal(proposalID, donor)
}

// MatchingPool returns the current shared reserve balance.
func (e *Engine) MatchingPool() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.MatchingPool()
}

// TopUpMatchingPool moves amount from the caller into the module vault and
// credits the shared reserve. Owner only.
func (e *Engine) TopUpMatchingPool(caller [20]byte, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amt := cloneBigInt(amount)
	if err := e.transfer(caller, e.state.VaultAddress(), amt); err != nil {
		return nil, err
	}
	pool, err := e.state.MatchingPool()
	if err != nil {
		_ = e.transfer(e.state.VaultAddress(), caller, amt)
		return nil, err
	}
	pool = new(big.Int).Add(pool, amt)
	if err := e.state.SetMatchingPool(pool); err != nil {
		_ = e.transfer(e.state.VaultAddress(), caller, amt)
		return nil, err
	}
	e.emit(NewPoolToppedUpEvent(caller, amt, pool))
	return pool, nil
}

// Withdraw transfers amount from the vault to the recipient. The operation
// is deliberately not constrained by the matching pool or outstanding
// proposal totals: it is a trusted-administrator escape hatch, and adding
// solvency checks here would change the documented behaviour.
func (e *Engine) Withdraw(caller [20]byte, amount *big.Int, recipient [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if recipient == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	return e.transfer(e.state.VaultAddress(), recipient, amount)
}

// CalculateMatch computes the bounded match amount for the proposal without
// mutating any state: min(sqrt(total)*MatchScale - total, pool).
func (e *Engine) CalculateMatch(proposalID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, err := e.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	match, err := pseudoMatch(proposal.TotalDonations)
	if err != nil {
		return nil, err
	}
	pool, err := e.state.MatchingPool()
	if err != nil {
		return nil, err
	}
	if match.Cmp(pool) > 0 {
		return cloneBigInt(pool), nil
	}
	return match, nil
}

// PayOut computes the match for the proposal, debits the matching pool,
// marks the proposal funded and transfers donations plus match to the
// recipient. All bookkeeping commits before the transfer; a transfer failure
// rolls the pool debit and the funded flag back as one unit. The funded
// state is terminal.
func (e *Engine) PayOut(caller [20]byte, proposalID uint64, recipient [20]byte) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := e.guardPause(); err != nil {
		return nil, err
	}
	if recipient == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	proposal, err := e.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Funded {
		return nil, ErrAlreadyFunded
	}
	match, err := e.CalculateMatch(proposalID)
	if err != nil {
		return nil, err
	}
	totalPayout := new(big.Int).Add(proposal.TotalDonations, match)
	vault := e.state.VaultAddress()
	vaultAcc, err := e.state.GetAccount(vault[:])
	if err != nil {
		return nil, err
	}
	vaultAcc = ensureAccount(vaultAcc)
	if vaultAcc.Balance.Cmp(totalPayout) < 0 {
		return nil, ErrInsufficientFunds
	}

	pool, err := e.state.MatchingPool()
	if err != nil {
		return nil, err
	}
	originalPool := cloneBigInt(pool)
	if match.Sign() > 0 {
		if pool.Cmp(match) < 0 {
			return nil, ErrInsufficientMatchingPool
		}
		if err := e.state.SetMatchingPool(new(big.Int).Sub(pool, match)); err != nil {
			return nil, err
		}
	}
	restorePool := func() {
		if match.Sign() > 0 {
			_ = e.state.SetMatchingPool(originalPool)
		}
	}

	original := proposal.Clone()
	proposal.Funded = true
	proposal.PayoutAmount = totalPayout
	if err := e.state.ProposalPut(proposal); err != nil {
		restorePool()
		return nil, err
	}
	if err := e.transfer(vault, recipient, totalPayout); err != nil {
		restorePool()
		if restoreErr := e.state.ProposalPut(original); restoreErr != nil {
			return nil, errors.Join(ErrTransferFailed, restoreErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(NewMatchCalculatedEvent(proposalID, match))
	e.emit(NewPayoutSentEvent(proposal, recipient))
	return proposal.Clone(), nil
}

// SetPaused flips the module pause flag. Pause management itself is never
// blocked by the flag.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.state.SetPaused(paused); err != nil {
		return err
	}
	e.emit(NewPauseChangedEvent(paused))
	return nil
}

// TransferOwnership atomically replaces the owner. The zero address is
// rejected so the administrative role cannot be burned by accident.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	previous, err := e.state.Owner()
	if err != nil {
		return err
	}
	if err := e.state.SetOwner(newOwner); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// Owner returns the configured administrator address.
func (e *Engine) Owner() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	return e.state.Owner()
}
