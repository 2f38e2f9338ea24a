package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"curiochain/core/events"
	nativecommon "curiochain/native/common"
)

var (
	errNilState  = errors.New("registry engine: state not configured")
	errNilConfig = errors.New("registry engine: access config not initialised")
)

const (
	moduleName = "registry"

	// maxFeePerMille caps the platform fee at 100%.
	maxFeePerMille = 1000
	// maxRoyaltyPerMille caps the royalty attribution at 100%.
	maxRoyaltyPerMille = 1000
)

type engineState interface {
	RegistryAssetGet(id uint64) (*Asset, bool, error)
	RegistryAssetPut(asset *Asset) error
	RegistryNextAssetID() (uint64, error)
	RegistryProductEditionGet(productID string, edition uint64) (uint64, bool, error)
	RegistryProductEditionPut(productID string, edition uint64, assetID uint64) error
	RegistryConfigGet() (*AccessConfig, bool, error)
	RegistryConfigPut(cfg *AccessConfig) error
	RegistryApprovalGet(owner, operator [20]byte) (bool, error)
	RegistryApprovalPut(owner, operator [20]byte, approved bool) error
}

// Engine owns the per-asset records, the product/edition uniqueness index,
// the royalty registry, and the privileged-identity configuration. All
// mutations validate before the first state write so a failed call leaves
// no partial effect.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the logical time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) config() (*AccessConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.RegistryConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, errNilConfig
	}
	return cfg, nil
}

// InitializeConfig seeds the access configuration at genesis. It refuses to
// overwrite an existing configuration; later changes go through the
// admin-gated setters.
func (e *Engine) InitializeConfig(cfg AccessConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.RegistryConfigGet(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: access config already initialised", ErrPolicy)
	}
	if cfg.Admin == ([20]byte{}) {
		return fmt.Errorf("%w: admin address is empty", ErrValidation)
	}
	if cfg.FeePercent > maxFeePerMille {
		return fmt.Errorf("%w: fee percent out of range", ErrValidation)
	}
	return e.state.RegistryConfigPut(&cfg)
}

// Config returns a copy of the current access configuration.
func (e *Engine) Config() (*AccessConfig, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (e *Engine) requireAdmin(caller [20]byte) (*AccessConfig, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, fmt.Errorf("%w: caller is not admin", ErrUnauthorized)
	}
	return cfg, nil
}

func (e *Engine) requireOperator(caller [20]byte) (*AccessConfig, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin && caller != cfg.Vault {
		return nil, fmt.Errorf("%w: caller is not one of platform accounts", ErrUnauthorized)
	}
	return cfg, nil
}

// VerifyCommitment checks a presented auth commitment against the current
// passcode: keccak256(passcode ‖ caller). Rotating the passcode invalidates
// all commitments derived from the old secret without any revocation list.
func (e *Engine) VerifyCommitment(caller [20]byte, commitment [32]byte) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	expected := ethcrypto.Keccak256Hash(cfg.Passcode[:], caller[:])
	if expected != commitment {
		return fmt.Errorf("%w: invalid auth commitment", ErrUnauthorized)
	}
	return nil
}

func validateMintFields(royaltyReceiverID string, royaltyPercentage uint32, productID, uri string) error {
	if strings.TrimSpace(royaltyReceiverID) == "" {
		return fmt.Errorf("%w: royalty receiver id is empty", ErrValidation)
	}
	if royaltyPercentage > maxRoyaltyPerMille {
		return fmt.Errorf("%w: royalty percentage out of range", ErrValidation)
	}
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: product id is empty", ErrValidation)
	}
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("%w: token uri is empty", ErrValidation)
	}
	return nil
}

func (e *Engine) mint(royaltyReceiverID string, royaltyPercentage uint32, owner OwnershipRecord, holder [20]byte, productID string, edition uint64, uri string) (*Asset, error) {
	if err := validateMintFields(royaltyReceiverID, royaltyPercentage, productID, uri); err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if _, exists, err := e.state.RegistryProductEditionGet(productID, edition); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: product edition has already been created", ErrPolicy)
	}
	id, err := e.state.RegistryNextAssetID()
	if err != nil {
		return nil, err
	}
	asset := &Asset{
		ID:        id,
		URI:       uri,
		ProductID: productID,
		Edition:   edition,
		Holder:    holder,
		Owner:     owner,
		Royalty:   Royalty{ReceiverID: royaltyReceiverID, Percentage: royaltyPercentage},
		CreatedAt: e.now(),
	}
	if err := e.state.RegistryAssetPut(asset); err != nil {
		return nil, err
	}
	if err := e.state.RegistryProductEditionPut(productID, edition, id); err != nil {
		return nil, err
	}
	return asset, nil
}

// MintCustodial mints an asset on behalf of a custodial user identified by
// minterID. The vault becomes the holder-of-record. Only platform operator
// accounts may call it.
func (e *Engine) MintCustodial(caller [20]byte, royaltyReceiverID string, royaltyPercentage uint32, minterID, productID string, edition uint64, uri string) (*Asset, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.requireOperator(caller)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(minterID) == "" {
		return nil, fmt.Errorf("%w: minter id is empty", ErrValidation)
	}
	asset, err := e.mint(royaltyReceiverID, royaltyPercentage, CustodialOwner(minterID), cfg.Vault, productID, edition, uri)
	if err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(asset, EventTypeMintedCustodial))
	return asset.Clone(), nil
}

// MintSelfCustodial mints an asset directly into a self-custodial owner's
// address. Only platform operator accounts may call it; the platform uses
// it when a self-custodial buyer pays in reference currency.
func (e *Engine) MintSelfCustodial(caller [20]byte, royaltyReceiverID string, royaltyPercentage uint32, owner [20]byte, productID string, edition uint64, uri string) (*Asset, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, err := e.requireOperator(caller); err != nil {
		return nil, err
	}
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("%w: minter address is empty", ErrValidation)
	}
	asset, err := e.mint(royaltyReceiverID, royaltyPercentage, SelfCustodyOwner(owner), owner, productID, edition, uri)
	if err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(asset, EventTypeMintedSelf))
	return asset.Clone(), nil
}

// MintWithSettlement is the permissionless self-mint path: the caller mints
// into their own address after presenting a valid auth commitment.
func (e *Engine) MintWithSettlement(caller [20]byte, royaltyReceiverID string, royaltyPercentage uint32, productID string, edition uint64, uri string, commitment [32]byte) (*Asset, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: minter address is empty", ErrValidation)
	}
	if err := e.VerifyCommitment(caller, commitment); err != nil {
		return nil, err
	}
	asset, err := e.mint(royaltyReceiverID, royaltyPercentage, SelfCustodyOwner(caller), caller, productID, edition, uri)
	if err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(asset, EventTypeMintedSettlement))
	return asset.Clone(), nil
}

// ChangeOwnership is the custodial admin operation that rewrites an asset's
// ownership record. Exactly one of newAddress and newCustodialID selects the
// target custody mode; the holder-of-record moves between the vault and the
// target address accordingly.
func (e *Engine) ChangeOwnership(caller [20]byte, assetID uint64, newAddress [20]byte, newCustodialID string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.requireOperator(caller)
	if err != nil {
		return err
	}
	hasAddr := newAddress != ([20]byte{})
	hasID := strings.TrimSpace(newCustodialID) != ""
	if hasAddr == hasID {
		return fmt.Errorf("%w: exactly one ownership target required", ErrValidation)
	}
	asset, err := e.loadAsset(assetID)
	if err != nil {
		return err
	}
	if hasAddr {
		asset.Owner = SelfCustodyOwner(newAddress)
		asset.Holder = newAddress
	} else {
		asset.Owner = CustodialOwner(newCustodialID)
		asset.Holder = cfg.Vault
	}
	if err := e.state.RegistryAssetPut(asset); err != nil {
		return err
	}
	e.emit(NewOwnershipChangedEvent(asset, e.now()))
	return nil
}

// ClaimAssets batch-converts custodial assets to self-custody under
// newAddress. The call is all-or-nothing: every asset is validated before
// the first record is rewritten, so a failure on any id aborts the batch
// with no partial effect.
func (e *Engine) ClaimAssets(caller [20]byte, assetIDs []uint64, newAddress [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.requireOperator(caller)
	if err != nil {
		return err
	}
	if newAddress == ([20]byte{}) {
		return fmt.Errorf("%w: claimer address is empty", ErrValidation)
	}
	if len(assetIDs) == 0 {
		return fmt.Errorf("%w: no tokens to claim", ErrValidation)
	}
	assets := make([]*Asset, 0, len(assetIDs))
	for _, id := range assetIDs {
		asset, err := e.loadAsset(id)
		if err != nil {
			return err
		}
		if !asset.Owner.IsCustodial() {
			return fmt.Errorf("%w: token %d is not custodial", ErrPolicy, id)
		}
		if asset.Holder != cfg.Vault {
			return fmt.Errorf("%w: vault is not the holder of token %d", ErrPolicy, id)
		}
		assets = append(assets, asset)
	}
	for _, asset := range assets {
		asset.Owner = SelfCustodyOwner(newAddress)
		asset.Holder = newAddress
		if err := e.state.RegistryAssetPut(asset); err != nil {
			return err
		}
	}
	e.emit(NewClaimedEvent(assetIDs, newAddress, e.now()))
	return nil
}

// SetFeePercent replaces the platform fee (per-mille). Administrator only.
func (e *Engine) SetFeePercent(caller [20]byte, value uint32) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if value > maxFeePerMille {
		return fmt.Errorf("%w: fee percent out of range", ErrValidation)
	}
	cfg.FeePercent = value
	if err := e.state.RegistryConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewFeeUpdatedEvent(value, e.now()))
	return nil
}

// FeePercent returns the current platform fee in per-mille.
func (e *Engine) FeePercent() (uint32, error) {
	cfg, err := e.config()
	if err != nil {
		return 0, err
	}
	return cfg.FeePercent, nil
}

// RotatePasscode replaces the auth-commitment secret. Administrator only.
// All commitments computed with the old secret become invalid.
func (e *Engine) RotatePasscode(caller [20]byte, secret [32]byte) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	cfg.Passcode = secret
	if err := e.state.RegistryConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewPasscodeRotatedEvent(e.now()))
	return nil
}

// SetAdmin hands the administrator role to a new address.
func (e *Engine) SetAdmin(caller, admin [20]byte) error {
	return e.updateRole(caller, func(cfg *AccessConfig) error {
		if admin == ([20]byte{}) {
			return fmt.Errorf("%w: admin address is empty", ErrValidation)
		}
		cfg.Admin = admin
		return nil
	})
}

// SetVault replaces the custodial vault address.
func (e *Engine) SetVault(caller, vault [20]byte) error {
	return e.updateRole(caller, func(cfg *AccessConfig) error {
		if vault == ([20]byte{}) {
			return fmt.Errorf("%w: vault address is empty", ErrValidation)
		}
		cfg.Vault = vault
		return nil
	})
}

// SetTreasury replaces the fee treasury address.
func (e *Engine) SetTreasury(caller, treasury [20]byte) error {
	return e.updateRole(caller, func(cfg *AccessConfig) error {
		if treasury == ([20]byte{}) {
			return fmt.Errorf("%w: treasury address is empty", ErrValidation)
		}
		cfg.Treasury = treasury
		return nil
	})
}

// SetMarketplace registers the marketplace identity allowed to transfer
// assets during settlement.
func (e *Engine) SetMarketplace(caller, marketplace [20]byte) error {
	return e.updateRole(caller, func(cfg *AccessConfig) error {
		if marketplace == ([20]byte{}) {
			return fmt.Errorf("%w: marketplace address is empty", ErrValidation)
		}
		cfg.Marketplace = marketplace
		return nil
	})
}

func (e *Engine) updateRole(caller [20]byte, apply func(*AccessConfig) error) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if err := apply(cfg); err != nil {
		return err
	}
	return e.state.RegistryConfigPut(cfg)
}

// SetApprovalForAll records whether operator may move any of owner's assets.
// Listing an asset requires the holder to have approved the marketplace
// first; the marketplace checks this before accepting a listing.
func (e *Engine) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if operator == ([20]byte{}) {
		return fmt.Errorf("%w: operator address is empty", ErrValidation)
	}
	if err := e.state.RegistryApprovalPut(owner, operator, approved); err != nil {
		return err
	}
	e.emit(NewApprovalEvent(owner, operator, approved, e.now()))
	return nil
}

// IsApprovedForAll reports whether operator may move owner's assets.
func (e *Engine) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.RegistryApprovalGet(owner, operator)
}

// MarketTransferToCustodial moves an asset into custodial ownership under
// buyerID as part of a settlement. Only the configured marketplace identity
// may call it.
func (e *Engine) MarketTransferToCustodial(caller [20]byte, assetID uint64, buyerID string) error {
	cfg, err := e.requireMarketplace(caller)
	if err != nil {
		return err
	}
	if strings.TrimSpace(buyerID) == "" {
		return fmt.Errorf("%w: buyer id is empty", ErrValidation)
	}
	asset, err := e.loadAsset(assetID)
	if err != nil {
		return err
	}
	asset.Owner = CustodialOwner(buyerID)
	asset.Holder = cfg.Vault
	return e.state.RegistryAssetPut(asset)
}

// MarketTransferToSelfCustody moves an asset into self-custody under addr
// as part of a settlement. Only the configured marketplace identity may
// call it.
func (e *Engine) MarketTransferToSelfCustody(caller [20]byte, assetID uint64, addr [20]byte) error {
	if _, err := e.requireMarketplace(caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("%w: buyer address is empty", ErrValidation)
	}
	asset, err := e.loadAsset(assetID)
	if err != nil {
		return err
	}
	asset.Owner = SelfCustodyOwner(addr)
	asset.Holder = addr
	return e.state.RegistryAssetPut(asset)
}

func (e *Engine) requireMarketplace(caller [20]byte) (*AccessConfig, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if cfg.Marketplace == ([20]byte{}) || caller != cfg.Marketplace {
		return nil, fmt.Errorf("%w: caller is not the marketplace", ErrUnauthorized)
	}
	return cfg, nil
}

func (e *Engine) loadAsset(id uint64) (*Asset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	asset, ok, err := e.state.RegistryAssetGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || asset == nil {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// Asset returns a copy of the full asset record.
func (e *Engine) Asset(id uint64) (*Asset, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return nil, err
	}
	return asset.Clone(), nil
}

// OwnershipOf returns the asset's ownership record.
func (e *Engine) OwnershipOf(id uint64) (OwnershipRecord, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return OwnershipRecord{}, err
	}
	return asset.Owner, nil
}

// HolderOf returns the holder-of-record address for the asset.
func (e *Engine) HolderOf(id uint64) ([20]byte, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return [20]byte{}, err
	}
	return asset.Holder, nil
}

// RoyaltyOf returns the royalty attribution recorded at mint time.
func (e *Engine) RoyaltyOf(id uint64) (Royalty, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return Royalty{}, err
	}
	return asset.Royalty, nil
}

// URIOf returns the immutable content pointer recorded at mint time.
func (e *Engine) URIOf(id uint64) (string, error) {
	asset, err := e.loadAsset(id)
	if err != nil {
		return "", err
	}
	return asset.URI, nil
}

// AssetByProductEdition resolves the asset id minted for a product/edition
// pair, if any.
func (e *Engine) AssetByProductEdition(productID string, edition uint64) (uint64, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, errNilState
	}
	return e.state.RegistryProductEditionGet(productID, edition)
}
