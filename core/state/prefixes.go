package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	accountPrefix       = []byte("fund-account:")
	proposalPrefix      = []byte("fund-proposal:")
	donationPrefix      = []byte("fund-donation:")
	donationCountPrefix = []byte("fund-donation-count:")
	donorTotalPrefix    = []byte("fund-donor-total:")

	proposalSeqKey  = ethcrypto.Keccak256([]byte("fund-proposal-seq"))
	matchingPoolKey = ethcrypto.Keccak256([]byte("fund-matching-pool"))
	ownerKey        = ethcrypto.Keccak256([]byte("fund-owner"))
	pausedKey       = ethcrypto.Keccak256([]byte("fund-paused"))

	vaultTag = []byte("fundraising-vault")
)
