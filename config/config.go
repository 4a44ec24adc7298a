package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	gethcommon "github.com/ethereum/go-ethereum/common"
)

type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	RPCAuthToken string `toml:"RPCAuthToken"`

	// Privileged accounts, 0x-prefixed hex.
	OwnerAddress           string `toml:"OwnerAddress"`
	AdminAddress           string `toml:"AdminAddress"`
	TradingFeeAddress      string `toml:"TradingFeeAddress"`
	RewardRecipientAddress string `toml:"RewardRecipientAddress"`
}

// Accounts is the parsed form of the configured privileged addresses.
type Accounts struct {
	Owner           [20]byte
	Admin           [20]byte
	TradingFee      [20]byte
	RewardRecipient [20]byte
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Accounts parses and validates the configured hex addresses.
func (c *Config) Accounts() (*Accounts, error) {
	out := &Accounts{}
	for _, field := range []struct {
		name  string
		value string
		dst   *[20]byte
	}{
		{"OwnerAddress", c.OwnerAddress, &out.Owner},
		{"AdminAddress", c.AdminAddress, &out.Admin},
		{"TradingFeeAddress", c.TradingFeeAddress, &out.TradingFee},
		{"RewardRecipientAddress", c.RewardRecipientAddress, &out.RewardRecipient},
	} {
		parsed, err := parseAddress(field.value)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", field.name, err)
		}
		*field.dst = parsed
	}
	return out, nil
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address not set")
	}
	if !gethcommon.IsHexAddress(trimmed) {
		return out, fmt.Errorf("invalid hex address %q", value)
	}
	copy(out[:], gethcommon.HexToAddress(trimmed).Bytes())
	return out, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ideamarket-data"
	}
}

// createDefault creates and saves a default configuration file. The
// privileged addresses are deliberately left empty so that a fresh node
// refuses to start until they are filled in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress: ":8080",
		DataDir:    "./ideamarket-data",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
