package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"curiochain/core/types"
	"curiochain/native/market"
	"curiochain/native/registry"
	"curiochain/storage"
)

// Manager is the state backend shared by every native engine. It serializes
// access with a single mutex, which also gives each engine call the
// whole-call atomicity the engines rely on when a substrate batches writes:
// engines validate before their first put, so a serialized call either
// commits all of its writes or performed none.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// --- registry backend ---

func (m *Manager) RegistryAssetGet(id uint64) (*registry.Asset, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset := new(registry.Asset)
	ok, err := m.getJSON(assetKey(id), asset)
	if err != nil || !ok {
		return nil, false, err
	}
	return asset, true, nil
}

func (m *Manager) RegistryAssetPut(asset *registry.Asset) error {
	if asset == nil {
		return errors.New("state: nil asset")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(assetKey(asset.ID), asset)
}

// RegistryNextAssetID allocates the next asset id, starting at 1. Ids are
// never reused.
func (m *Manager) RegistryNextAssetID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next uint64 = 1
	raw, err := m.db.Get([]byte(prefixAssetCounter))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		next = binary.BigEndian.Uint64(raw) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(prefixAssetCounter), buf); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) RegistryProductEditionGet(productID string, edition uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(productEditionKey(productID, edition))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("state: corrupt product/edition index entry")
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (m *Manager) RegistryProductEditionPut(productID string, edition uint64, assetID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, assetID)
	return m.db.Put(productEditionKey(productID, edition), buf)
}

func (m *Manager) RegistryConfigGet() (*registry.AccessConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := new(registry.AccessConfig)
	ok, err := m.getJSON([]byte(prefixConfig), cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

func (m *Manager) RegistryConfigPut(cfg *registry.AccessConfig) error {
	if cfg == nil {
		return errors.New("state: nil access config")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON([]byte(prefixConfig), cfg)
}

func (m *Manager) RegistryApprovalGet(owner, operator [20]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(approvalKey(owner, operator))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

func (m *Manager) RegistryApprovalPut(owner, operator [20]byte, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := approvalKey(owner, operator)
	if !approved {
		return m.db.Delete(key)
	}
	return m.db.Put(key, []byte{1})
}

// --- market backend ---

func (m *Manager) MarketListingGet(assetID uint64) (*market.Listing, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing := new(market.Listing)
	ok, err := m.getJSON(listingKey(assetID), listing)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing, true, nil
}

func (m *Manager) MarketListingPut(listing *market.Listing) error {
	if listing == nil {
		return errors.New("state: nil listing")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(listingKey(listing.AssetID), listing)
}

func (m *Manager) MarketListingDelete(assetID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(listingKey(assetID))
}

// --- token ledger backend ---

// GetAccount returns the account stored at addr, or a zero-value account
// when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := new(types.Account)
	ok, err := m.getJSON(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(accountKey(addr), account)
}

func (m *Manager) AllowanceGet(owner, spender [20]byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(allowanceKey(owner, spender))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (m *Manager) AllowancePut(owner, spender [20]byte, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := allowanceKey(owner, spender)
	if amount == nil || amount.Sign() <= 0 {
		return m.db.Delete(key)
	}
	return m.db.Put(key, amount.Bytes())
}
