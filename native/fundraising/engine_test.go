package fundraising

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"fundchain/core/events"
	"fundchain/core/types"
)

type mockState struct {
	proposals   map[uint64]*Proposal
	seq         uint64
	donations   map[uint64][]*Donation
	donorTotals map[uint64]map[[20]byte]*big.Int
	accounts    map[[20]byte]*types.Account
	pool        *big.Int
	owner       [20]byte
	paused      bool
	vault       [20]byte

	failPutAccount map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		proposals:      make(map[uint64]*Proposal),
		donations:      make(map[uint64][]*Donation),
		donorTotals:    make(map[uint64]map[[20]byte]*big.Int),
		accounts:       make(map[[20]byte]*types.Account),
		pool:           big.NewInt(0),
		vault:          newTestAddress(0xFA),
		failPutAccount: make(map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) ProposalPut(p *Proposal) error {
	if p == nil {
		return fmt.Errorf("nil proposal")
	}
	m.proposals[p.ID] = p.Clone()
	return nil
}

func (m *mockState) ProposalGet(id uint64) (*Proposal, bool) {
	p, ok := m.proposals[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *mockState) NextProposalID() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) DonationAppend(proposalID uint64, d *Donation) error {
	m.donations[proposalID] = append(m.donations[proposalID], d.Clone())
	return nil
}

func (m *mockState) DonationCount(proposalID uint64) (uint64, error) {
	return uint64(len(m.donations[proposalID])), nil
}

func (m *mockState) DonationAt(proposalID uint64, index uint64) (*Donation, bool) {
	list := m.donations[proposalID]
	if index >= uint64(len(list)) {
		return nil, false
	}
	return list[index].Clone(), true
}

func (m *mockState) DonorTotal(proposalID uint64, donor [20]byte) (*big.Int, error) {
	totals, ok := m.donorTotals[proposalID]
	if !ok {
		return big.NewInt(0), nil
	}
	total, ok := totals[donor]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(total), nil
}

func (m *mockState) DonorTotalAdd(proposalID uint64, donor [20]byte, amt *big.Int) error {
	totals, ok := m.donorTotals[proposalID]
	if !ok {
		totals = make(map[[20]byte]*big.Int)
		m.donorTotals[proposalID] = totals
	}
	current, ok := totals[donor]
	if !ok {
		current = big.NewInt(0)
	}
	totals[donor] = new(big.Int).Add(current, amt)
	return nil
}

func (m *mockState) MatchingPool() (*big.Int, error) {
	return new(big.Int).Set(m.pool), nil
}

func (m *mockState) SetMatchingPool(v *big.Int) error {
	m.pool = new(big.Int).Set(v)
	return nil
}

func (m *mockState) Owner() ([20]byte, error) { return m.owner, nil }

func (m *mockState) SetOwner(addr [20]byte) error {
	m.owner = addr
	return nil
}

func (m *mockState) SetPaused(paused bool) error {
	m.paused = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool {
	return module == ModuleName && m.paused
}

func (m *mockState) VaultAddress() [20]byte { return m.vault }

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	if m.failPutAccount[key] {
		return fmt.Errorf("account write rejected")
	}
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) setBalance(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) typesSeen() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *recordingEmitter) {
	t.Helper()
	state := newMockState()
	state.owner = newTestAddress(0x01)
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetPauses(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 42 })
	return engine, state, emitter
}

func mustCreateProposal(t *testing.T, engine *Engine) *Proposal {
	t.Helper()
	proposal, err := engine.CreateProposal(newTestAddress(0x02), "community well", []byte("ipfs://meta"))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	return proposal
}

func TestCreateProposalSequentialIDs(t *testing.T) {
	engine, _, emitter := newTestEngine(t)

	first := mustCreateProposal(t, engine)
	second := mustCreateProposal(t, engine)
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected IDs 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.TotalDonations.Sign() != 0 || first.Funded {
		t.Fatalf("new proposal must start empty and unfunded: %+v", first)
	}
	if first.CreatedAt != 42 {
		t.Fatalf("expected stamped creation time 42, got %d", first.CreatedAt)
	}
	seen := emitter.typesSeen()
	if len(seen) != 2 || seen[0] != EventTypeProposalCreated {
		t.Fatalf("unexpected events: %v", seen)
	}
}

func TestGetProposalNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.GetProposal(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := engine.GetProposal(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for id 0, got %v", err)
	}
}

func TestDonateRecordsLedgerAndAggregates(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)

	alice := newTestAddress(0x10)
	bob := newTestAddress(0x11)
	state.setBalance(alice, 1_000)
	state.setBalance(bob, 1_000)

	if _, err := engine.Donate(proposal.ID, alice, big.NewInt(100), "ref-1"); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.Donate(proposal.ID, bob, big.NewInt(300), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.Donate(proposal.ID, alice, big.NewInt(50), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}

	stored, err := engine.GetProposal(proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.TotalDonations.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("total donations = %s, want 450", stored.TotalDonations)
	}

	count, err := engine.DonationCount(proposal.ID)
	if err != nil {
		t.Fatalf("donation count: %v", err)
	}
	if count != 3 {
		t.Fatalf("donation count = %d, want 3", count)
	}

	second, err := engine.DonationAt(proposal.ID, 1)
	if err != nil {
		t.Fatalf("donation at 1: %v", err)
	}
	if second.Donor != bob || second.Amount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected donation at index 1: %+v", second)
	}
	if second.Timestamp != 42 {
		t.Fatalf("donation timestamp = %d, want 42", second.Timestamp)
	}

	aliceTotal, err := engine.DonorTotal(proposal.ID, alice)
	if err != nil {
		t.Fatalf("donor total: %v", err)
	}
	if aliceTotal.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("alice total = %s, want 150", aliceTotal)
	}

	if got := state.balance(alice); got.Cmp(big.NewInt(850)) != 0 {
		t.Fatalf("alice balance = %s, want 850", got)
	}
	if got := state.balance(state.vault); got.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("vault balance = %s, want 450", got)
	}

	seen := emitter.typesSeen()
	if len(seen) != 4 || seen[1] != EventTypeDonated {
		t.Fatalf("unexpected events: %v", seen)
	}
}

func TestDonateValidation(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	state.setBalance(donor, 10)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(0), ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(-5), ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, nil, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Donate(99, donor, big.NewInt(1), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing proposal: expected ErrNotFound, got %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(100), ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft: expected ErrInsufficientFunds, got %v", err)
	}
	if got := state.balance(donor); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed donations must not move funds, balance = %s", got)
	}
	count, err := engine.DonationCount(proposal.ID)
	if err != nil {
		t.Fatalf("donation count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected donations must not be recorded, count = %d", count)
	}
}

func TestDonationAtOutOfRange(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	state.setBalance(donor, 100)
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(100), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.DonationAt(proposal.ID, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := engine.DonationAt(99, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing proposal, got %v", err)
	}
}

func TestTopUpMatchingPool(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	state.setBalance(state.owner, 5_000)

	pool, err := engine.TopUpMatchingPool(state.owner, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if pool.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("pool = %s, want 1000", pool)
	}
	if got := state.balance(state.vault); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("vault = %s, want 1000", got)
	}

	if _, err := engine.TopUpMatchingPool(newTestAddress(0x99), big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner top up: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero top up: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(100_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft top up: expected ErrInsufficientFunds, got %v", err)
	}

	seen := emitter.typesSeen()
	if len(seen) != 1 || seen[0] != EventTypePoolToppedUp {
		t.Fatalf("unexpected events: %v", seen)
	}
}

func TestCalculateMatchBoundedByPool(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	state.setBalance(donor, 1_000)
	state.setBalance(state.owner, 1_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(100), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(300), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(1_000)); err != nil {
		t.Fatalf("top up: %v", err)
	}

	// sqrt(400)*MatchScale - 400 dwarfs the thousand-unit pool, so the
	// pool is the binding constraint.
	match, err := engine.CalculateMatch(proposal.ID)
	if err != nil {
		t.Fatalf("calculate match: %v", err)
	}
	if match.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("match = %s, want 1000", match)
	}

	// CalculateMatch is read-only: pool and proposal stay untouched.
	pool, err := engine.MatchingPool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("pool changed to %s", pool)
	}
	stored, err := engine.GetProposal(proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.Funded {
		t.Fatal("calculate must not mark the proposal funded")
	}
}

func TestCalculateMatchFullBonusWithDeepPool(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	state.setBalance(donor, 1_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	// Pool far above the bonus: the formula, not the pool, binds.
	deep := new(big.Int).Mul(big.NewInt(100), MatchScale)
	state.pool = deep

	want := new(big.Int).Mul(big.NewInt(20), MatchScale)
	want.Sub(want, big.NewInt(400))
	match, err := engine.CalculateMatch(proposal.ID)
	if err != nil {
		t.Fatalf("calculate match: %v", err)
	}
	if match.Cmp(want) != 0 {
		t.Fatalf("match = %s, want %s", match, want)
	}
}

func TestCalculateMatchHugeTotalCappedByPool(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)

	// A donation total of 10^18 produces a bonus that dwarfs a
	// thousand-unit pool; the result is exactly the pool.
	total, _ := new(big.Int).SetString("1000000000000000000", 10)
	stored, _ := state.ProposalGet(proposal.ID)
	stored.TotalDonations = total
	if err := state.ProposalPut(stored); err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	state.pool = big.NewInt(1_000)

	match, err := engine.CalculateMatch(proposal.ID)
	if err != nil {
		t.Fatalf("calculate match: %v", err)
	}
	if match.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("match = %s, want exactly 1000", match)
	}
}

func TestCalculateMatchMonotonicInTotal(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	state.pool = new(big.Int).Mul(big.NewInt(1_000_000), MatchScale)

	previous := big.NewInt(-1)
	for _, total := range []int64{0, 1, 4, 100, 400, 10_000, 1_000_000} {
		stored, _ := state.ProposalGet(proposal.ID)
		stored.TotalDonations = big.NewInt(total)
		if err := state.ProposalPut(stored); err != nil {
			t.Fatalf("seed proposal: %v", err)
		}
		match, err := engine.CalculateMatch(proposal.ID)
		if err != nil {
			t.Fatalf("calculate match at %d: %v", total, err)
		}
		if match.Cmp(previous) < 0 {
			t.Fatalf("match decreased at total %d: %s < %s", total, match, previous)
		}
		previous = match
	}
}

func TestCalculateMatchEmptyProposal(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	state.pool = big.NewInt(500)

	match, err := engine.CalculateMatch(proposal.ID)
	if err != nil {
		t.Fatalf("calculate match: %v", err)
	}
	if match.Sign() != 0 {
		t.Fatalf("match for empty proposal = %s, want 0", match)
	}
}

func TestPayOutHappyPath(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)
	state.setBalance(state.owner, 10_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(1_000)); err != nil {
		t.Fatalf("top up: %v", err)
	}

	paid, err := engine.PayOut(state.owner, proposal.ID, recipient)
	if err != nil {
		t.Fatalf("pay out: %v", err)
	}
	if !paid.Funded {
		t.Fatal("proposal must be marked funded")
	}
	// Donations (400) plus the pool-capped match (1000).
	if paid.PayoutAmount.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("payout amount = %s, want 1400", paid.PayoutAmount)
	}
	if got := state.balance(recipient); got.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("recipient balance = %s, want 1400", got)
	}
	pool, err := engine.MatchingPool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Sign() != 0 {
		t.Fatalf("pool = %s, want 0 after payout", pool)
	}
	if got := state.balance(state.vault); got.Sign() != 0 {
		t.Fatalf("vault = %s, want 0 after payout", got)
	}

	seen := emitter.typesSeen()
	if len(seen) < 2 {
		t.Fatalf("expected match and payout events, got %v", seen)
	}
	if seen[len(seen)-2] != EventTypeMatchCalculated || seen[len(seen)-1] != EventTypePayoutSent {
		t.Fatalf("unexpected event order: %v", seen)
	}
}

func TestPayOutAlreadyFunded(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.PayOut(state.owner, proposal.ID, recipient); err != nil {
		t.Fatalf("pay out: %v", err)
	}
	if _, err := engine.PayOut(state.owner, proposal.ID, recipient); !errors.Is(err, ErrAlreadyFunded) {
		t.Fatalf("second payout: expected ErrAlreadyFunded, got %v", err)
	}
	if got := state.balance(recipient); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("recipient credited twice: %s", got)
	}
}

func TestPayOutAccessAndValidation(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	recipient := newTestAddress(0x20)

	if _, err := engine.PayOut(newTestAddress(0x99), proposal.ID, recipient); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner payout: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.PayOut(state.owner, proposal.ID, [20]byte{}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("zero recipient: expected ErrInvalidRecipient, got %v", err)
	}
	if _, err := engine.PayOut(state.owner, 99, recipient); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing proposal: expected ErrNotFound, got %v", err)
	}
}

func TestPayOutInsufficientVault(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	// Drain the vault behind the module's back.
	state.setBalance(state.vault, 10)

	if _, err := engine.PayOut(state.owner, proposal.ID, recipient); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	stored, err := engine.GetProposal(proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.Funded {
		t.Fatal("failed payout must not mark the proposal funded")
	}
}

func TestPayOutRollsBackOnTransferFailure(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)
	state.setBalance(state.owner, 10_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(1_000)); err != nil {
		t.Fatalf("top up: %v", err)
	}

	state.failPutAccount[recipient] = true
	eventsBefore := len(emitter.events)

	_, err := engine.PayOut(state.owner, proposal.ID, recipient)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Pool debit, funded flag and vault balance all roll back as a unit.
	pool, poolErr := engine.MatchingPool()
	if poolErr != nil {
		t.Fatalf("pool: %v", poolErr)
	}
	if pool.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("pool = %s, want 1000 restored", pool)
	}
	stored, getErr := engine.GetProposal(proposal.ID)
	if getErr != nil {
		t.Fatalf("get proposal: %v", getErr)
	}
	if stored.Funded || stored.PayoutAmount.Sign() != 0 {
		t.Fatalf("proposal not rolled back: %+v", stored)
	}
	if got := state.balance(state.vault); got.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("vault = %s, want 1400 restored", got)
	}
	if len(emitter.events) != eventsBefore {
		t.Fatalf("failed payout must not emit events: %v", emitter.typesSeen())
	}

	// A later retry succeeds once the transfer path recovers.
	delete(state.failPutAccount, recipient)
	paid, err := engine.PayOut(state.owner, proposal.ID, recipient)
	if err != nil {
		t.Fatalf("retry payout: %v", err)
	}
	if paid.PayoutAmount.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("retry payout amount = %s, want 1400", paid.PayoutAmount)
	}
}

func TestDonationsRemainOpenAfterFunding(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(400), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := engine.PayOut(state.owner, proposal.ID, recipient); err != nil {
		t.Fatalf("pay out: %v", err)
	}

	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(50), ""); err != nil {
		t.Fatalf("donation after funding must stay open: %v", err)
	}
	stored, err := engine.GetProposal(proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.TotalDonations.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("total = %s, want 450", stored.TotalDonations)
	}
	if !stored.Funded {
		t.Fatal("funded flag must remain set")
	}
}

func TestWithdraw(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	recipient := newTestAddress(0x20)
	state.setBalance(state.owner, 10_000)
	if _, err := engine.TopUpMatchingPool(state.owner, big.NewInt(1_000)); err != nil {
		t.Fatalf("top up: %v", err)
	}

	if err := engine.Withdraw(newTestAddress(0x99), big.NewInt(10), recipient); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner withdraw: expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Withdraw(state.owner, big.NewInt(0), recipient); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero withdraw: expected ErrInvalidAmount, got %v", err)
	}
	if err := engine.Withdraw(state.owner, big.NewInt(10), [20]byte{}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("zero recipient: expected ErrInvalidRecipient, got %v", err)
	}
	if err := engine.Withdraw(state.owner, big.NewInt(5_000), recipient); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw: expected ErrInsufficientFunds, got %v", err)
	}

	// Withdraw is not bounded by the matching pool accounting, only by the
	// vault balance; the pool counter is left stale on purpose.
	if err := engine.Withdraw(state.owner, big.NewInt(800), recipient); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := state.balance(recipient); got.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("recipient = %s, want 800", got)
	}
	pool, err := engine.MatchingPool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("pool counter = %s, want untouched 1000", pool)
	}
}

func TestPauseGating(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	proposal := mustCreateProposal(t, engine)
	donor := newTestAddress(0x10)
	recipient := newTestAddress(0x20)
	state.setBalance(donor, 1_000)
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(100), ""); err != nil {
		t.Fatalf("donate: %v", err)
	}

	if err := engine.SetPaused(state.owner, true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if _, err := engine.CreateProposal(donor, "late", nil); !errors.Is(err, ErrPaused) {
		t.Fatalf("create while paused: expected ErrPaused, got %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(10), ""); !errors.Is(err, ErrPaused) {
		t.Fatalf("donate while paused: expected ErrPaused, got %v", err)
	}
	if _, err := engine.PayOut(state.owner, proposal.ID, recipient); !errors.Is(err, ErrPaused) {
		t.Fatalf("payout while paused: expected ErrPaused, got %v", err)
	}

	// Reads and pause management itself keep working while paused.
	if _, err := engine.GetProposal(proposal.ID); err != nil {
		t.Fatalf("read while paused: %v", err)
	}
	if _, err := engine.CalculateMatch(proposal.ID); err != nil {
		t.Fatalf("calculate while paused: %v", err)
	}
	if err := engine.SetPaused(state.owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.Donate(proposal.ID, donor, big.NewInt(10), ""); err != nil {
		t.Fatalf("donate after unpause: %v", err)
	}
}

func TestSetPausedRequiresOwner(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if err := engine.SetPaused(newTestAddress(0x99), true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	original := state.owner
	successor := newTestAddress(0x30)

	if err := engine.TransferOwnership(successor, successor); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner transfer: expected ErrUnauthorized, got %v", err)
	}
	if err := engine.TransferOwnership(original, [20]byte{}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("zero successor: expected ErrInvalidRecipient, got %v", err)
	}
	if err := engine.TransferOwnership(original, successor); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// The old owner loses the role atomically.
	if err := engine.SetPaused(original, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old owner retained control: %v", err)
	}
	if err := engine.SetPaused(successor, true); err != nil {
		t.Fatalf("new owner rejected: %v", err)
	}

	seen := emitter.typesSeen()
	found := false
	for _, evtType := range seen {
		if evtType == EventTypeOwnershipTransferred {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing ownership event: %v", seen)
	}
}

func TestUnsetOwnerRejectsEveryone(t *testing.T) {
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetPauses(state)

	if _, err := engine.TopUpMatchingPool(newTestAddress(0x01), big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized with unset owner, got %v", err)
	}
}
