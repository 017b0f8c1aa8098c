package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/native/fundraising"
)

func testProposal(id uint64) *fundraising.Proposal {
	var proposer [20]byte
	proposer[0] = byte(id)
	return &fundraising.Proposal{
		ID:             id,
		Proposer:       proposer,
		Title:          "clean water",
		Metadata:       []byte(`{"url":"ipfs://detail"}`),
		TotalDonations: big.NewInt(0),
		PayoutAmount:   big.NewInt(0),
		CreatedAt:      1_700_000_000,
	}
}

func TestProposalRoundTrip(t *testing.T) {
	m := newTestManager(t)

	want := testProposal(1)
	want.TotalDonations = big.NewInt(450)
	require.NoError(t, m.ProposalPut(want))

	got, ok := m.ProposalGet(1)
	require.True(t, ok)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Proposer, got.Proposer)
	require.Equal(t, want.Title, got.Title)
	require.Equal(t, want.Metadata, got.Metadata)
	require.Zero(t, got.TotalDonations.Cmp(want.TotalDonations))
	require.False(t, got.Funded)
	require.Equal(t, want.CreatedAt, got.CreatedAt)
}

func TestProposalFundedRoundTrip(t *testing.T) {
	m := newTestManager(t)

	want := testProposal(7)
	want.TotalDonations = big.NewInt(400)
	want.Funded = true
	want.PayoutAmount = big.NewInt(1_400)
	require.NoError(t, m.ProposalPut(want))

	got, ok := m.ProposalGet(7)
	require.True(t, ok)
	require.True(t, got.Funded)
	require.Zero(t, got.PayoutAmount.Cmp(big.NewInt(1_400)))
}

func TestProposalGetMisses(t *testing.T) {
	m := newTestManager(t)

	_, ok := m.ProposalGet(0)
	require.False(t, ok, "identifier zero is reserved for not-found")

	_, ok = m.ProposalGet(42)
	require.False(t, ok)
}

func TestProposalPutRejectsInvalid(t *testing.T) {
	m := newTestManager(t)

	require.Error(t, m.ProposalPut(nil))

	zeroID := testProposal(1)
	zeroID.ID = 0
	require.Error(t, m.ProposalPut(zeroID))

	negative := testProposal(2)
	negative.TotalDonations = big.NewInt(-1)
	require.Error(t, m.ProposalPut(negative))
}

func TestDonationLedger(t *testing.T) {
	m := newTestManager(t)

	var alice, bob [20]byte
	alice[0] = 0xA1
	bob[0] = 0xB2

	count, err := m.DonationCount(1)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, m.DonationAppend(1, &fundraising.Donation{Donor: alice, Amount: big.NewInt(100), Timestamp: 10}))
	require.NoError(t, m.DonationAppend(1, &fundraising.Donation{Donor: bob, Amount: big.NewInt(300), Timestamp: 20}))
	require.NoError(t, m.DonationAppend(2, &fundraising.Donation{Donor: alice, Amount: big.NewInt(7), Timestamp: 30}))

	count, err = m.DonationCount(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	first, ok := m.DonationAt(1, 0)
	require.True(t, ok)
	require.Equal(t, alice, first.Donor)
	require.Zero(t, first.Amount.Cmp(big.NewInt(100)))
	require.Equal(t, int64(10), first.Timestamp)

	second, ok := m.DonationAt(1, 1)
	require.True(t, ok)
	require.Equal(t, bob, second.Donor)

	_, ok = m.DonationAt(1, 2)
	require.False(t, ok, "index past the end must miss")

	// Ledgers are per proposal.
	other, ok := m.DonationAt(2, 0)
	require.True(t, ok)
	require.Zero(t, other.Amount.Cmp(big.NewInt(7)))
}

func TestDonorTotals(t *testing.T) {
	m := newTestManager(t)

	var alice, bob [20]byte
	alice[0] = 0xA1
	bob[0] = 0xB2

	total, err := m.DonorTotal(1, alice)
	require.NoError(t, err)
	require.Zero(t, total.Sign())

	require.NoError(t, m.DonorTotalAdd(1, alice, big.NewInt(100)))
	require.NoError(t, m.DonorTotalAdd(1, alice, big.NewInt(50)))
	require.NoError(t, m.DonorTotalAdd(1, bob, big.NewInt(300)))
	require.NoError(t, m.DonorTotalAdd(2, alice, big.NewInt(9)))

	total, err = m.DonorTotal(1, alice)
	require.NoError(t, err)
	require.Zero(t, total.Cmp(big.NewInt(150)))

	total, err = m.DonorTotal(1, bob)
	require.NoError(t, err)
	require.Zero(t, total.Cmp(big.NewInt(300)))

	total, err = m.DonorTotal(2, alice)
	require.NoError(t, err)
	require.Zero(t, total.Cmp(big.NewInt(9)))
}
