package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration, loaded from a TOML file. Addresses are
// hex-encoded 20-byte values, with or without a 0x prefix.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`

	// RPCAuthToken gates the privileged RPC namespaces. Empty disables them.
	RPCAuthToken string `toml:"RPCAuthToken"`

	Admin       string `toml:"Admin"`
	Vault       string `toml:"Vault"`
	Treasury    string `toml:"Treasury"`
	Marketplace string `toml:"Marketplace"`

	// FeePercent is in per-mille: 25 means 2.5%.
	FeePercent uint32 `toml:"FeePercent"`
	// Passcode is the hex-encoded 32-byte auth commitment secret.
	Passcode string `toml:"Passcode"`

	// ReferenceCurrency is the oracle base symbol listings are priced in.
	ReferenceCurrency string `toml:"ReferenceCurrency"`
	// OracleMaxQuoteAge bounds quote staleness in seconds. Zero keeps the
	// aggregator default.
	OracleMaxQuoteAge int64 `toml:"OracleMaxQuoteAge"`

	LogFile string `toml:"LogFile"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./curio-data"
	}
	if strings.TrimSpace(cfg.ReferenceCurrency) == "" {
		cfg.ReferenceCurrency = "USD"
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:        ":8080",
		DataDir:           "./curio-data",
		FeePercent:        25,
		ReferenceCurrency: "USD",
	}
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

// Address decodes one of the hex address fields.
func Address(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("config: address is empty")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: invalid address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("config: address %q must be 20 bytes", value)
	}
	copy(addr[:], raw)
	return addr, nil
}

// Secret decodes the hex passcode field.
func Secret(value string) ([32]byte, error) {
	var secret [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return secret, fmt.Errorf("config: passcode is empty")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return secret, fmt.Errorf("config: invalid passcode: %w", err)
	}
	if len(raw) != 32 {
		return secret, fmt.Errorf("config: passcode must be 32 bytes")
	}
	copy(secret[:], raw)
	return secret, nil
}
