package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "./curio-data", cfg.DataDir)
	require.Equal(t, uint32(25), cfg.FeePercent)
	require.Equal(t, "USD", cfg.ReferenceCurrency)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file must be written")
}

func TestLoadParsesExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
RPCAddress = ":9090"
DataDir = "/tmp/curio"
RPCAuthToken = "secret"
Admin = "0x0000000000000000000000000000000000000001"
Vault = "0x0000000000000000000000000000000000000002"
FeePercent = 30
ReferenceCurrency = "EUR"
OracleMaxQuoteAge = 120
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, "/tmp/curio", cfg.DataDir)
	require.Equal(t, "secret", cfg.RPCAuthToken)
	require.Equal(t, uint32(30), cfg.FeePercent)
	require.Equal(t, "EUR", cfg.ReferenceCurrency)
	require.Equal(t, int64(120), cfg.OracleMaxQuoteAge)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("FeePercent = 10\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "USD", cfg.ReferenceCurrency)
}

func TestAddressDecoding(t *testing.T) {
	addr, err := Address("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, byte(0x01), addr[19])

	addr, err = Address("000000000000000000000000000000000000000a")
	require.NoError(t, err)
	require.Equal(t, byte(0x0a), addr[19])

	_, err = Address("")
	require.Error(t, err)
	_, err = Address("0x1234")
	require.Error(t, err)
	_, err = Address("zz")
	require.Error(t, err)
}

func TestSecretDecoding(t *testing.T) {
	secret, err := Secret("0x" + "aa" + strings.Repeat("00", 31))
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), secret[0])

	_, err = Secret("")
	require.Error(t, err)
	_, err = Secret("0xdead")
	require.Error(t, err)
}
