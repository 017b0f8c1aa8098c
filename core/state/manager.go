package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fundchain/storage"
)

// Manager persists ledger records in a key-value store. Keys are the
// keccak256 hash of a human-readable prefix plus the record coordinates;
// values are RLP encoded. The manager performs no locking: the node
// serializes all access.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// read returns the stored bytes for key, or nil when the key is absent.
func (m *Manager) read(key []byte) []byte {
	value, err := m.db.Get(key)
	if err != nil || len(value) == 0 {
		return nil
	}
	return value
}

func (m *Manager) write(key, value []byte) error {
	return m.db.Put(key, value)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data := m.read(key)
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) writeBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative value not representable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(key, encoded)
}

// VaultAddress returns the fixed module address holding donated and pool
// funds. It is derived from a tag hash so it cannot collide with a key
// anyone holds.
func (m *Manager) VaultAddress() [20]byte {
	hash := ethcrypto.Keccak256(vaultTag)
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

// Owner returns the configured administrator address, or the zero address
// when ownership has not been initialised.
func (m *Manager) Owner() ([20]byte, error) {
	var owner [20]byte
	data := m.read(ownerKey)
	if len(data) == 0 {
		return owner, nil
	}
	if len(data) != 20 {
		return owner, fmt.Errorf("state: malformed owner record")
	}
	copy(owner[:], data)
	return owner, nil
}

// SetOwner persists the administrator address.
func (m *Manager) SetOwner(owner [20]byte) error {
	return m.write(ownerKey, append([]byte(nil), owner[:]...))
}

// Paused reports the stored module pause flag.
func (m *Manager) Paused() (bool, error) {
	data := m.read(pausedKey)
	return len(data) == 1 && data[0] == 1, nil
}

// SetPaused persists the module pause flag.
func (m *Manager) SetPaused(paused bool) error {
	value := []byte{0}
	if paused {
		value[0] = 1
	}
	return m.write(pausedKey, value)
}

// IsPaused implements the pause view consumed by module guards. Unknown
// modules are never paused.
func (m *Manager) IsPaused(module string) bool {
	if module != "fundraising" {
		return false
	}
	paused, err := m.Paused()
	if err != nil {
		return false
	}
	return paused
}

// MatchingPool returns the shared reserve balance.
func (m *Manager) MatchingPool() (*big.Int, error) {
	return m.loadBigInt(matchingPoolKey)
}

// SetMatchingPool persists the shared reserve balance. Negative balances are
// rejected at the encoding boundary.
func (m *Manager) SetMatchingPool(pool *big.Int) error {
	return m.writeBigInt(matchingPoolKey, pool)
}

// NextProposalID allocates the next sequential proposal identifier starting
// at 1. Identifier 0 is reserved for "not found" and is never issued.
func (m *Manager) NextProposalID() (uint64, error) {
	current, err := m.loadBigInt(proposalSeqKey)
	if err != nil {
		return 0, err
	}
	if current.BitLen() > 63 {
		return 0, fmt.Errorf("state: proposal id overflow")
	}
	next := current.Uint64() + 1
	if err := m.writeBigInt(proposalSeqKey, new(big.Int).SetUint64(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// ProposalCount returns the number of proposals created so far.
func (m *Manager) ProposalCount() (uint64, error) {
	current, err := m.loadBigInt(proposalSeqKey)
	if err != nil {
		return 0, err
	}
	return current.Uint64(), nil
}
