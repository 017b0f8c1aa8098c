package core

import (
	"math/big"
	"sync"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/core/types"
	"fundchain/native/fundraising"
	"fundchain/observability/metrics"
	"fundchain/storage"
)

// Node owns the ledger state and serializes every public operation behind a
// single mutex. The engine assumes serialized execution; the mutex is the
// one concurrency control, covering the check-then-debit of the matching
// pool inside a payout so two concurrent attempts cannot double-spend it.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *state.Manager
	engine  *fundraising.Engine
	bus     *events.Bus
	metrics *metrics.FundraisingMetrics
}

// NewNode constructs a node over the database and installs owner as the
// administrator when ownership has not been initialised yet. An existing
// owner record always wins so a restart cannot hijack the role.
func NewNode(db storage.Database, owner [20]byte) (*Node, error) {
	manager := state.NewManager(db)
	current, err := manager.Owner()
	if err != nil {
		return nil, err
	}
	if current == ([20]byte{}) && owner != ([20]byte{}) {
		if err := manager.SetOwner(owner); err != nil {
			return nil, err
		}
	}

	bus := events.NewBus(0)
	engine := fundraising.NewEngine()
	engine.SetState(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(bus)

	return &Node{
		db:      db,
		state:   manager,
		engine:  engine,
		bus:     bus,
		metrics: metrics.Fundraising(),
	}, nil
}

// SetNowFunc overrides the engine time source. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetNowFunc(now)
}

// SubscribeEvents returns a live event channel and its cancel function.
func (n *Node) SubscribeEvents() (<-chan events.Event, func()) {
	return n.bus.Subscribe()
}

func (n *Node) refreshPoolGauge() {
	pool, err := n.state.MatchingPool()
	if err != nil {
		return
	}
	balance, _ := new(big.Float).SetInt(pool).Float64()
	n.metrics.SetPoolBalance(balance)
}

// Credit adds amount to the account balance. Used for genesis allocations
// when the node boots a fresh database; not exposed over RPC.
func (n *Node) Credit(addr [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return fundraising.ErrInvalidAmount
	}
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return n.state.PutAccount(addr[:], account)
}

// GetAccount returns a copy of the stored account.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr[:])
}

// CreateProposal registers a new proposal and returns it.
func (n *Node) CreateProposal(proposer [20]byte, title string, metadata []byte) (*fundraising.Proposal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	proposal, err := n.engine.CreateProposal(proposer, title, metadata)
	if err != nil {
		return nil, err
	}
	n.metrics.ProposalCreated()
	return proposal, nil
}

// GetProposal returns the proposal stored under id.
func (n *Node) GetProposal(id uint64) (*fundraising.Proposal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetProposal(id)
}

// Donate records a contribution from donor to the proposal.
func (n *Node) Donate(proposalID uint64, donor [20]byte, amount *big.Int, ref string) (*fundraising.Donation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	donation, err := n.engine.Donate(proposalID, donor, amount, ref)
	if err != nil {
		return nil, err
	}
	n.metrics.DonationAccepted()
	return donation, nil
}

// DonationCount returns the number of donations recorded for the proposal.
func (n *Node) DonationCount(proposalID uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.DonationCount(proposalID)
}

// DonationAt returns the donation at the zero-based index.
func (n *Node) DonationAt(proposalID uint64, index uint64) (*fundraising.Donation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.DonationAt(proposalID, index)
}

// DonorTotal returns the donor's cumulative contribution to the proposal.
func (n *Node) DonorTotal(proposalID uint64, donor [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.DonorTotal(proposalID, donor)
}

// MatchingPool returns the shared reserve balance.
func (n *Node) MatchingPool() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.MatchingPool()
}

// TopUpMatchingPool credits the reserve from the caller's balance.
func (n *Node) TopUpMatchingPool(caller [20]byte, amount *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pool, err := n.engine.TopUpMatchingPool(caller, amount)
	if err != nil {
		return nil, err
	}
	n.refreshPoolGauge()
	return pool, nil
}

// Withdraw transfers held funds to the recipient. Administrative escape
// hatch; see the engine documentation for the trust boundary.
func (n *Node) Withdraw(caller [20]byte, amount *big.Int, recipient [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Withdraw(caller, amount, recipient)
}

// CalculateMatch computes the bounded match for the proposal.
func (n *Node) CalculateMatch(proposalID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CalculateMatch(proposalID)
}

// PayOutProposal performs the one-time payout for the proposal.
func (n *Node) PayOutProposal(caller [20]byte, proposalID uint64, recipient [20]byte) (*fundraising.Proposal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	proposal, err := n.engine.PayOut(caller, proposalID, recipient)
	if err != nil {
		return nil, err
	}
	n.metrics.PayoutCompleted()
	n.refreshPoolGauge()
	return proposal, nil
}

// SetPaused flips the module pause flag.
func (n *Node) SetPaused(caller [20]byte, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetPaused(caller, paused)
}

// Paused reports the module pause flag.
func (n *Node) Paused() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Paused()
}

// TransferOwnership replaces the administrator address.
func (n *Node) TransferOwnership(caller, newOwner [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.TransferOwnership(caller, newOwner)
}

// Owner returns the administrator address.
func (n *Node) Owner() ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Owner()
}
