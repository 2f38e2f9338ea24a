package registry

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type mockState struct {
	assets    map[uint64]*Asset
	editions  map[string]uint64
	approvals map[string]bool
	cfg       *AccessConfig
	nextID    uint64
}

func newMockState() *mockState {
	return &mockState{
		assets:    make(map[uint64]*Asset),
		editions:  make(map[string]uint64),
		approvals: make(map[string]bool),
	}
}

func editionKey(productID string, edition uint64) string {
	return fmt.Sprintf("%s/%d", productID, edition)
}

func approvalPair(owner, operator [20]byte) string {
	return string(append(append([]byte{}, owner[:]...), operator[:]...))
}

func (m *mockState) RegistryAssetGet(id uint64) (*Asset, bool, error) {
	asset, ok := m.assets[id]
	if !ok {
		return nil, false, nil
	}
	return asset.Clone(), true, nil
}

func (m *mockState) RegistryAssetPut(asset *Asset) error {
	if asset == nil {
		return nil
	}
	m.assets[asset.ID] = asset.Clone()
	return nil
}

func (m *mockState) RegistryNextAssetID() (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockState) RegistryProductEditionGet(productID string, edition uint64) (uint64, bool, error) {
	id, ok := m.editions[editionKey(productID, edition)]
	return id, ok, nil
}

func (m *mockState) RegistryProductEditionPut(productID string, edition uint64, assetID uint64) error {
	m.editions[editionKey(productID, edition)] = assetID
	return nil
}

func (m *mockState) RegistryConfigGet() (*AccessConfig, bool, error) {
	if m.cfg == nil {
		return nil, false, nil
	}
	return m.cfg.Clone(), true, nil
}

func (m *mockState) RegistryConfigPut(cfg *AccessConfig) error {
	if cfg == nil {
		return nil
	}
	m.cfg = cfg.Clone()
	return nil
}

func (m *mockState) RegistryApprovalGet(owner, operator [20]byte) (bool, error) {
	return m.approvals[approvalPair(owner, operator)], nil
}

func (m *mockState) RegistryApprovalPut(owner, operator [20]byte, approved bool) error {
	if !approved {
		delete(m.approvals, approvalPair(owner, operator))
		return nil
	}
	m.approvals[approvalPair(owner, operator)] = true
	return nil
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

var (
	admin       = addr(0x01)
	vault       = addr(0x02)
	treasury    = addr(0x03)
	marketplace = addr(0x04)
	passcode    = [32]byte{0xAA, 0xBB}
)

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1700000000 })
	err := engine.InitializeConfig(AccessConfig{
		Admin:       admin,
		Vault:       vault,
		Treasury:    treasury,
		Marketplace: marketplace,
		FeePercent:  25,
		Passcode:    passcode,
	})
	if err != nil {
		t.Fatalf("initialise config: %v", err)
	}
	return engine, state
}

func commitmentFor(caller [20]byte, secret [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(secret[:], caller[:])
}

func TestMintCustodialAssignsSequentialIDs(t *testing.T) {
	engine, _ := newTestEngine(t)

	first, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://one")
	if err != nil {
		t.Fatalf("first mint failed: %v", err)
	}
	second, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 2, "ipfs://two")
	if err != nil {
		t.Fatalf("second mint failed: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if !first.Owner.IsCustodial() || first.Owner.CustodialID != "user-1" {
		t.Fatalf("unexpected ownership: %+v", first.Owner)
	}
	if first.Holder != vault {
		t.Fatalf("custodial mint must hold in the vault, got %x", first.Holder)
	}
}

func TestMintRejectsDuplicateProductEdition(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://one"); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	_, err := engine.MintCustodial(vault, "creator-1", 50, "user-2", "P1", 1, "ipfs://two")
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if !strings.Contains(err.Error(), "product edition has already been created") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestMintFieldValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	cases := []struct {
		name     string
		receiver string
		minter   string
		product  string
		uri      string
		message  string
	}{
		{"empty receiver", "", "user-1", "P1", "ipfs://x", "royalty receiver id is empty"},
		{"empty minter", "creator-1", "", "P1", "ipfs://x", "minter id is empty"},
		{"empty product", "creator-1", "user-1", "", "ipfs://x", "product id is empty"},
		{"empty uri", "creator-1", "user-1", "P1", "", "token uri is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.MintCustodial(vault, tc.receiver, 50, tc.minter, tc.product, 1, tc.uri)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected %q in %v", tc.message, err)
			}
		})
	}
}

func TestMintRequiresOperator(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.MintCustodial(addr(0x42), "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "caller is not one of platform accounts") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestMintWithSettlementCommitment(t *testing.T) {
	engine, _ := newTestEngine(t)
	minter := addr(0x21)

	asset, err := engine.MintWithSettlement(minter, "creator-1", 50, "P2", 1, "ipfs://x", commitmentFor(minter, passcode))
	if err != nil {
		t.Fatalf("mint with valid commitment failed: %v", err)
	}
	if asset.Owner.IsCustodial() || asset.Owner.Address != minter {
		t.Fatalf("unexpected ownership: %+v", asset.Owner)
	}

	// A commitment bound to a different address must not authorize.
	_, err = engine.MintWithSettlement(minter, "creator-1", 50, "P2", 2, "ipfs://y", commitmentFor(addr(0x22), passcode))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for stolen commitment, got %v", err)
	}
}

func TestRotatePasscodeInvalidatesCommitments(t *testing.T) {
	engine, _ := newTestEngine(t)
	minter := addr(0x21)
	old := commitmentFor(minter, passcode)

	next := [32]byte{0x11}
	if err := engine.RotatePasscode(admin, next); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if _, err := engine.MintWithSettlement(minter, "creator-1", 50, "P2", 1, "ipfs://x", old); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old commitment to be rejected, got %v", err)
	}
	if _, err := engine.MintWithSettlement(minter, "creator-1", 50, "P2", 1, "ipfs://x", commitmentFor(minter, next)); err != nil {
		t.Fatalf("fresh commitment rejected: %v", err)
	}
}

func TestChangeOwnershipRequiresExactlyOneTarget(t *testing.T) {
	engine, _ := newTestEngine(t)
	asset, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if err := engine.ChangeOwnership(vault, asset.ID, [20]byte{}, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for no target, got %v", err)
	}
	if err := engine.ChangeOwnership(vault, asset.ID, addr(0x30), "user-2"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for both targets, got %v", err)
	}

	target := addr(0x30)
	if err := engine.ChangeOwnership(vault, asset.ID, target, ""); err != nil {
		t.Fatalf("change to self-custody failed: %v", err)
	}
	holder, err := engine.HolderOf(asset.ID)
	if err != nil {
		t.Fatalf("holder lookup failed: %v", err)
	}
	if holder != target {
		t.Fatalf("holder did not move to target, got %x", holder)
	}

	if err := engine.ChangeOwnership(vault, asset.ID, [20]byte{}, "user-2"); err != nil {
		t.Fatalf("change back to custodial failed: %v", err)
	}
	holder, _ = engine.HolderOf(asset.ID)
	if holder != vault {
		t.Fatalf("holder did not return to the vault, got %x", holder)
	}
}

func TestClaimAssetsRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	asset, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	claimer := addr(0x33)
	if err := engine.ClaimAssets(vault, []uint64{asset.ID}, claimer); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	owner, err := engine.OwnershipOf(asset.ID)
	if err != nil {
		t.Fatalf("ownership lookup failed: %v", err)
	}
	if owner.IsCustodial() || owner.Address != claimer {
		t.Fatalf("claim round-trip mismatch: %+v", owner)
	}
}

func TestClaimAssetsIsAllOrNothing(t *testing.T) {
	engine, _ := newTestEngine(t)
	custodial, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	self, err := engine.MintSelfCustodial(vault, "creator-1", 50, addr(0x40), "P1", 2, "ipfs://y")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	err = engine.ClaimAssets(vault, []uint64{custodial.ID, self.ID}, addr(0x33))
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("token %d is not custodial", self.ID)) {
		t.Fatalf("unexpected message: %v", err)
	}

	// The custodial asset must be untouched after the aborted batch.
	owner, _ := engine.OwnershipOf(custodial.ID)
	if !owner.IsCustodial() || owner.CustodialID != "user-1" {
		t.Fatalf("batch was not atomic: %+v", owner)
	}
}

func TestClaimAssetsDetectsMovedHolder(t *testing.T) {
	engine, state := newTestEngine(t)
	asset, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	// Simulate an asset transferred out from under the registry.
	moved := state.assets[asset.ID]
	moved.Holder = addr(0x50)

	err = engine.ClaimAssets(vault, []uint64{asset.ID}, addr(0x33))
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if !strings.Contains(err.Error(), "vault is not the holder") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestSetFeePercent(t *testing.T) {
	engine, _ := newTestEngine(t)

	if err := engine.SetFeePercent(vault, 30); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected admin gate, got %v", err)
	}
	if err := engine.SetFeePercent(admin, 1001); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected range check, got %v", err)
	}
	if err := engine.SetFeePercent(admin, 30); err != nil {
		t.Fatalf("set fee failed: %v", err)
	}
	fee, err := engine.FeePercent()
	if err != nil {
		t.Fatalf("fee lookup failed: %v", err)
	}
	if fee != 30 {
		t.Fatalf("expected fee 30, got %d", fee)
	}
}

func TestMarketTransferRequiresMarketplace(t *testing.T) {
	engine, _ := newTestEngine(t)
	asset, err := engine.MintCustodial(vault, "creator-1", 50, "user-1", "P1", 1, "ipfs://x")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	err = engine.MarketTransferToSelfCustody(addr(0x60), asset.ID, addr(0x61))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "caller is not the marketplace") {
		t.Fatalf("unexpected message: %v", err)
	}

	if err := engine.MarketTransferToSelfCustody(marketplace, asset.ID, addr(0x61)); err != nil {
		t.Fatalf("marketplace transfer failed: %v", err)
	}
	owner, _ := engine.OwnershipOf(asset.ID)
	if owner.IsCustodial() || owner.Address != addr(0x61) {
		t.Fatalf("transfer did not take effect: %+v", owner)
	}
}

func TestSetApprovalForAll(t *testing.T) {
	engine, _ := newTestEngine(t)
	owner := addr(0x70)

	approved, err := engine.IsApprovedForAll(owner, marketplace)
	if err != nil {
		t.Fatalf("approval lookup failed: %v", err)
	}
	if approved {
		t.Fatal("approval must default to false")
	}
	if err := engine.SetApprovalForAll(owner, marketplace, true); err != nil {
		t.Fatalf("set approval failed: %v", err)
	}
	if approved, _ = engine.IsApprovedForAll(owner, marketplace); !approved {
		t.Fatal("approval did not persist")
	}
	if err := engine.SetApprovalForAll(owner, marketplace, false); err != nil {
		t.Fatalf("clear approval failed: %v", err)
	}
	if approved, _ = engine.IsApprovedForAll(owner, marketplace); approved {
		t.Fatal("approval was not cleared")
	}
}

func TestInitializeConfigRefusesOverwrite(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.InitializeConfig(AccessConfig{Admin: addr(0x99)})
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected policy error on re-init, got %v", err)
	}
	cfg, cfgErr := engine.Config()
	if cfgErr != nil {
		t.Fatalf("config lookup failed: %v", cfgErr)
	}
	if cfg.Admin != admin {
		t.Fatalf("config was overwritten: %x", cfg.Admin)
	}
}
