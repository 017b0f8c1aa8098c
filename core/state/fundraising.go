package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fundchain/native/fundraising"
)

func proposalKey(id uint64) []byte {
	buf := make([]byte, len(proposalPrefix)+8)
	copy(buf, proposalPrefix)
	binary.BigEndian.PutUint64(buf[len(proposalPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

func donationKey(proposalID, index uint64) []byte {
	buf := make([]byte, len(donationPrefix)+16)
	copy(buf, donationPrefix)
	binary.BigEndian.PutUint64(buf[len(donationPrefix):], proposalID)
	binary.BigEndian.PutUint64(buf[len(donationPrefix)+8:], index)
	return ethcrypto.Keccak256(buf)
}

func donationCountKey(proposalID uint64) []byte {
	buf := make([]byte, len(donationCountPrefix)+8)
	copy(buf, donationCountPrefix)
	binary.BigEndian.PutUint64(buf[len(donationCountPrefix):], proposalID)
	return ethcrypto.Keccak256(buf)
}

func donorTotalKey(proposalID uint64, donor [20]byte) []byte {
	buf := make([]byte, len(donorTotalPrefix)+8+len(donor))
	copy(buf, donorTotalPrefix)
	binary.BigEndian.PutUint64(buf[len(donorTotalPrefix):], proposalID)
	copy(buf[len(donorTotalPrefix)+8:], donor[:])
	return ethcrypto.Keccak256(buf)
}

// RLP cannot represent signed integers, so timestamps travel as big.Ints the
// same way the records' currency amounts do.
type storedProposal struct {
	ID             uint64
	Proposer       [20]byte
	Title          string
	Metadata       []byte
	TotalDonations *big.Int
	Funded         bool
	PayoutAmount   *big.Int
	CreatedAt      *big.Int
}

func newStoredProposal(p *fundraising.Proposal) *storedProposal {
	if p == nil {
		return nil
	}
	total := big.NewInt(0)
	if p.TotalDonations != nil {
		total = new(big.Int).Set(p.TotalDonations)
	}
	payout := big.NewInt(0)
	if p.PayoutAmount != nil {
		payout = new(big.Int).Set(p.PayoutAmount)
	}
	return &storedProposal{
		ID:             p.ID,
		Proposer:       p.Proposer,
		Title:          p.Title,
		Metadata:       append([]byte(nil), p.Metadata...),
		TotalDonations: total,
		Funded:         p.Funded,
		PayoutAmount:   payout,
		CreatedAt:      big.NewInt(p.CreatedAt),
	}
}

func (s *storedProposal) toProposal() (*fundraising.Proposal, error) {
	if s == nil {
		return nil, fmt.Errorf("fundraising: nil storage record")
	}
	out := &fundraising.Proposal{
		ID:             s.ID,
		Proposer:       s.Proposer,
		Title:          s.Title,
		Metadata:       append([]byte(nil), s.Metadata...),
		TotalDonations: big.NewInt(0),
		Funded:         s.Funded,
		PayoutAmount:   big.NewInt(0),
	}
	if s.TotalDonations != nil {
		out.TotalDonations = new(big.Int).Set(s.TotalDonations)
	}
	if s.PayoutAmount != nil {
		out.PayoutAmount = new(big.Int).Set(s.PayoutAmount)
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return out, nil
}

type storedDonation struct {
	Donor     [20]byte
	Amount    *big.Int
	Timestamp *big.Int
}

// ProposalPut persists the proposal record after validation.
func (m *Manager) ProposalPut(p *fundraising.Proposal) error {
	sanitized, err := fundraising.SanitizeProposal(p)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredProposal(sanitized))
	if err != nil {
		return err
	}
	return m.write(proposalKey(sanitized.ID), encoded)
}

// ProposalGet loads the proposal stored under id. Absence is reported via
// the boolean, not an error, so callers decide the failure semantics.
func (m *Manager) ProposalGet(id uint64) (*fundraising.Proposal, bool) {
	if id == 0 {
		return nil, false
	}
	data := m.read(proposalKey(id))
	if len(data) == 0 {
		return nil, false
	}
	stored := new(storedProposal)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toProposal()
	if err != nil {
		return nil, false
	}
	return record, true
}

// DonationAppend stores the donation as the next element of the proposal's
// append-only sequence and bumps the stored count.
func (m *Manager) DonationAppend(proposalID uint64, d *fundraising.Donation) error {
	if d == nil {
		return fmt.Errorf("fundraising: nil donation")
	}
	if d.Amount == nil || d.Amount.Sign() <= 0 {
		return fundraising.ErrInvalidAmount
	}
	count, err := m.DonationCount(proposalID)
	if err != nil {
		return err
	}
	stored := &storedDonation{
		Donor:     d.Donor,
		Amount:    new(big.Int).Set(d.Amount),
		Timestamp: big.NewInt(d.Timestamp),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	if err := m.write(donationKey(proposalID, count), encoded); err != nil {
		return err
	}
	return m.writeBigInt(donationCountKey(proposalID), new(big.Int).SetUint64(count+1))
}

// DonationCount returns the length of the proposal's donation sequence.
func (m *Manager) DonationCount(proposalID uint64) (uint64, error) {
	count, err := m.loadBigInt(donationCountKey(proposalID))
	if err != nil {
		return 0, err
	}
	if count.BitLen() > 63 {
		return 0, fmt.Errorf("fundraising: donation count overflow")
	}
	return count.Uint64(), nil
}

// DonationAt returns the donation stored at the zero-based index.
func (m *Manager) DonationAt(proposalID uint64, index uint64) (*fundraising.Donation, bool) {
	count, err := m.DonationCount(proposalID)
	if err != nil || index >= count {
		return nil, false
	}
	data := m.read(donationKey(proposalID, index))
	if len(data) == 0 {
		return nil, false
	}
	stored := new(storedDonation)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	out := &fundraising.Donation{
		Donor:  stored.Donor,
		Amount: big.NewInt(0),
	}
	if stored.Amount != nil {
		out.Amount = new(big.Int).Set(stored.Amount)
	}
	if stored.Timestamp != nil {
		out.Timestamp = stored.Timestamp.Int64()
	}
	return out, true
}

// DonorTotal returns the donor's cumulative contribution to the proposal.
func (m *Manager) DonorTotal(proposalID uint64, donor [20]byte) (*big.Int, error) {
	return m.loadBigInt(donorTotalKey(proposalID, donor))
}

// DonorTotalAdd increases the donor's per-proposal aggregate. The aggregate
// is maintained in lockstep with the donation sequence and is never
// corrected independently.
func (m *Manager) DonorTotalAdd(proposalID uint64, donor [20]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fundraising.ErrInvalidAmount
	}
	current, err := m.DonorTotal(proposalID, donor)
	if err != nil {
		return err
	}
	return m.writeBigInt(donorTotalKey(proposalID, donor), new(big.Int).Add(current, amt))
}
