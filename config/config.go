package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"fundchain/crypto"

	"github.com/BurntSushi/toml"
)

// Allocation seeds an account balance when the node boots an empty data
// directory. Amounts are decimal strings so TOML files never lose precision.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress        string       `toml:"RPCAddress"`
	DataDir           string       `toml:"DataDir"`
	NetworkName       string       `toml:"NetworkName"`
	OwnerAddress      string       `toml:"OwnerAddress"`
	OwnerKeystorePath string       `toml:"OwnerKeystorePath"`
	Allocations       []Allocation `toml:"Allocations"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "fund-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./fund-data"
	}
	if cfg.Allocations == nil {
		cfg.Allocations = []Allocation{}
	}

	return cfg, nil
}

// Owner resolves the configured owner address, falling back to the keystore
// key's address when OwnerAddress is unset.
func (cfg *Config) Owner() ([20]byte, error) {
	var out [20]byte
	if trimmed := strings.TrimSpace(cfg.OwnerAddress); trimmed != "" {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return out, fmt.Errorf("config: invalid OwnerAddress: %w", err)
		}
		copy(out[:], addr.Bytes())
		return out, nil
	}
	if cfg.OwnerKeystorePath == "" {
		return out, fmt.Errorf("config: no OwnerAddress or OwnerKeystorePath configured")
	}
	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, "")
	if err != nil {
		return out, fmt.Errorf("config: load owner keystore: %w", err)
	}
	copy(out[:], key.PubKey().Address().Bytes())
	return out, nil
}

// GenesisAllocations parses the configured allocations into address/amount
// pairs. Invalid entries fail loudly rather than being skipped.
func (cfg *Config) GenesisAllocations() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(cfg.Allocations))
	for i, alloc := range cfg.Allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("config: allocation %d: invalid address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("config: allocation %d: invalid amount %q", i, alloc.Amount)
		}
		var key [20]byte
		copy(key[:], addr.Bytes())
		if existing, ok := out[key]; ok {
			existing.Add(existing, amount)
			continue
		}
		out[key] = amount
	}
	return out, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:  ":8545",
		DataDir:     "./fund-data",
		NetworkName: "fund-local",
		Allocations: []Allocation{},
	}
	cfg.OwnerKeystorePath = keystorePath
	cfg.OwnerAddress = key.PubKey().Address().String()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
