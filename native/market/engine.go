package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"curiochain/core/events"
	nativecommon "curiochain/native/common"
	"curiochain/native/oracle"
	"curiochain/native/registry"
	"curiochain/native/token"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: registry not configured")
	errNilLedger   = errors.New("market engine: token ledger not configured")
	errNilOracle   = errors.New("market engine: price oracle not configured")
)

const moduleName = "market"

type engineState interface {
	MarketListingGet(assetID uint64) (*Listing, bool, error)
	MarketListingPut(listing *Listing) error
	MarketListingDelete(assetID uint64) error
}

// Engine brokers sales and auctions for registry assets: it owns the
// listing book and performs the conversion-dependent fee split before
// moving the asset and distributing funds. The surrounding substrate
// serializes calls and provides whole-call atomicity; the engine still
// re-validates every precondition in the same step as the mutation.
type Engine struct {
	state    engineState
	registry *registry.Engine
	ledger   *token.Ledger
	oracle   oracle.PriceOracle
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64

	// addr is the marketplace module identity: it is the registry-side
	// transfer principal and the escrow account custodying auction bids.
	addr [20]byte
	// refCurrency is the reference pricing currency quoted by the oracle.
	refCurrency string
}

// NewEngine constructs a marketplace engine bound to the supplied registry.
func NewEngine(reg *registry.Engine) *Engine {
	return &Engine{
		registry:    reg,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		refCurrency: "USD",
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the settlement-asset ledger used for escrow and payouts.
func (e *Engine) SetLedger(l *token.Ledger) { e.ledger = l }

// SetOracle wires the price oracle consulted on every purchase and bid.
func (e *Engine) SetOracle(o oracle.PriceOracle) { e.oracle = o }

// SetAddress configures the marketplace module identity. It must match the
// marketplace registered in the registry's access config.
func (e *Engine) SetAddress(addr [20]byte) { e.addr = addr }

// SetReferenceCurrency overrides the reference pricing currency (default
// USD).
func (e *Engine) SetReferenceCurrency(symbol string) {
	if symbol != "" {
		e.refCurrency = symbol
	}
}

// SetEmitter configures the event emitter used by the engine.
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

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.oracle == nil {
		return errNilOracle
	}
	return nil
}

// rate reads the live settlement-asset conversion rate. Every purchase and
// bid calls it at the time of use.
func (e *Engine) rate() (*big.Rat, error) {
	quote, err := e.oracle.GetRate(e.refCurrency, token.Symbol)
	if err != nil {
		return nil, err
	}
	if quote.Rate == nil || quote.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: oracle rate must be positive", ErrPolicy)
	}
	return quote.Rate, nil
}

// Listing returns a copy of the active listing for the asset, if any.
func (e *Engine) Listing(assetID uint64) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	listing, ok, err := e.state.MarketListingGet(assetID)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing.Clone(), true, nil
}

func (e *Engine) activeListing(assetID uint64) (*Listing, error) {
	listing, ok, err := e.state.MarketListingGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || !listing.Active() {
		return nil, fmt.Errorf("%w: seller is not selling this token", ErrPolicy)
	}
	return listing, nil
}

func validPrice(price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	return nil
}

// SetForSaleCustodial lists a custodial asset at a reference price on
// behalf of its custodial owner. Operator accounts only; the vault must
// have pre-authorized the marketplace to move the asset. Fiat-made
// listings settle with the direct fee flow.
func (e *Engine) SetForSaleCustodial(caller [20]byte, assetID uint64, price *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.registry.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Admin && caller != cfg.Vault {
		return fmt.Errorf("%w: caller is not one of platform accounts", ErrUnauthorized)
	}
	if err := validPrice(price); err != nil {
		return err
	}
	owner, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	if !owner.IsCustodial() {
		return fmt.Errorf("%w: token is not in custodial ownership", ErrPolicy)
	}
	approved, err := e.registry.IsApprovedForAll(cfg.Vault, e.addr)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: vault has not approved the marketplace", ErrUnauthorized)
	}
	if existing, ok, err := e.state.MarketListingGet(assetID); err != nil {
		return err
	} else if ok && existing.Active() {
		return fmt.Errorf("%w: token has already been set for sale", ErrPolicy)
	}
	listing := &Listing{
		AssetID:    assetID,
		Price:      new(big.Int).Set(price),
		FiatListed: true,
		ListedAt:   e.now(),
	}
	if err := e.state.MarketListingPut(listing); err != nil {
		return err
	}
	e.emit(NewListedEvent(listing))
	return nil
}

// SetForSaleSelfCustodial lists a self-custodial asset. The caller must be
// the holder-of-record, present a valid auth commitment, and have
// pre-authorized the marketplace. Settlement-asset-denominated listings
// settle with the embedded fee flow; auction arms the auction book.
func (e *Engine) SetForSaleSelfCustodial(caller [20]byte, assetID uint64, price *big.Int, auction bool, commitment [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.registry.VerifyCommitment(caller, commitment); err != nil {
		return err
	}
	if err := validPrice(price); err != nil {
		return err
	}
	holder, err := e.registry.HolderOf(assetID)
	if err != nil {
		return err
	}
	if holder != caller {
		return fmt.Errorf("%w: caller is not a token owner", ErrUnauthorized)
	}
	approved, err := e.registry.IsApprovedForAll(caller, e.addr)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: owner has not approved the marketplace", ErrUnauthorized)
	}
	if existing, ok, err := e.state.MarketListingGet(assetID); err != nil {
		return err
	} else if ok && existing.Active() {
		return fmt.Errorf("%w: token has already been set for sale", ErrPolicy)
	}
	listing := &Listing{
		AssetID:  assetID,
		Price:    new(big.Int).Set(price),
		Auction:  auction,
		ListedAt: e.now(),
	}
	if err := e.state.MarketListingPut(listing); err != nil {
		return err
	}
	e.emit(NewListedEvent(listing))
	return nil
}

// RemoveSale clears an active listing. The caller must be the asset's
// current effective owner: an operator for custodial assets, the
// holder-of-record otherwise. Any escrowed auction bid is refunded first.
func (e *Engine) RemoveSale(caller [20]byte, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if assetID == 0 {
		return fmt.Errorf("%w: token id is invalid", ErrValidation)
	}
	listing, ok, err := e.state.MarketListingGet(assetID)
	if err != nil {
		return err
	}
	if !ok || !listing.Active() {
		return fmt.Errorf("%w: token has not set for sale", ErrPolicy)
	}
	if err := e.requireEffectiveOwner(caller, assetID); err != nil {
		return err
	}
	if listing.HasBid() {
		if err := e.ledger.Transfer(e.addr, listing.HighestBidder, listing.HighestBid); err != nil {
			return err
		}
	}
	if err := e.state.MarketListingDelete(assetID); err != nil {
		return err
	}
	e.emit(NewDelistedEvent(assetID, e.now()))
	return nil
}

func (e *Engine) requireEffectiveOwner(caller [20]byte, assetID uint64) error {
	owner, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	if owner.IsCustodial() {
		cfg, err := e.registry.Config()
		if err != nil {
			return err
		}
		if caller != cfg.Admin && caller != cfg.Vault {
			return fmt.Errorf("%w: caller is not one of platform accounts", ErrUnauthorized)
		}
		return nil
	}
	holder, err := e.registry.HolderOf(assetID)
	if err != nil {
		return err
	}
	if caller != holder {
		return fmt.Errorf("%w: caller is not a token owner", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) splitForListing(listing *Listing, royalty registry.Royalty, feePercent uint32) (*Split, error) {
	rate, err := e.rate()
	if err != nil {
		return nil, err
	}
	if listing.FiatListed {
		return directSplit(listing.Price, feePercent, royalty.Percentage, rate)
	}
	buyerTotal, err := oracle.ToSettlement(listing.Price, rate)
	if err != nil {
		return nil, err
	}
	return embeddedSplit(buyerTotal, feePercent, royalty.Percentage)
}

// distribute pays the computed split out of the payer account: royalty and
// platform fee to the treasury, the seller amount to the seller address, or
// nothing when the seller is custodial and the vault is already the payer.
// The payer balance is checked against every leg before the first transfer
// so a failed call leaves no partial payout.
func (e *Engine) distribute(payer [20]byte, split *Split, seller registry.OwnershipRecord, cfg *registry.AccessConfig) error {
	platformCut := new(big.Int).Add(split.Royalty, split.PlatformFee)
	sellerLeg := !seller.IsCustodial() || payer != cfg.Vault
	required := new(big.Int).Set(platformCut)
	if sellerLeg {
		required.Add(required, split.Seller)
	}
	balance, err := e.ledger.BalanceOf(payer)
	if err != nil {
		return err
	}
	if balance.Cmp(required) < 0 {
		return token.ErrInsufficientBalance
	}
	if err := e.ledger.Transfer(payer, cfg.Treasury, platformCut); err != nil {
		return err
	}
	if !sellerLeg {
		return nil
	}
	if seller.IsCustodial() {
		return e.ledger.Transfer(payer, cfg.Vault, split.Seller)
	}
	return e.ledger.Transfer(payer, seller.Address, split.Seller)
}

// PurchaseWithFiat settles a fixed-price sale for a custodial buyer paying
// in the reference currency. Operator accounts only. The split follows the
// direct flow against a live oracle read; funds move out of the vault,
// which custodies the buyer's converted payment.
func (e *Engine) PurchaseWithFiat(caller [20]byte, assetID uint64, buyerID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.registry.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Admin && caller != cfg.Vault {
		return fmt.Errorf("%w: caller is not one of platform accounts", ErrUnauthorized)
	}
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is empty", ErrValidation)
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if listing.Auction {
		return fmt.Errorf("%w: seller is not selling this token", ErrPolicy)
	}
	seller, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	royalty, err := e.registry.RoyaltyOf(assetID)
	if err != nil {
		return err
	}
	rate, err := e.rate()
	if err != nil {
		return err
	}
	split, err := directSplit(listing.Price, cfg.FeePercent, royalty.Percentage, rate)
	if err != nil {
		return err
	}
	if err := e.distribute(cfg.Vault, split, seller, cfg); err != nil {
		return err
	}
	if err := e.registry.MarketTransferToCustodial(e.addr, assetID, buyerID); err != nil {
		return err
	}
	if err := e.state.MarketListingDelete(assetID); err != nil {
		return err
	}
	e.emit(NewPurchaseEvent(EventTypePurchaseFiat, assetID, buyerID, "", seller, split, e.now()))
	return nil
}

// PurchaseWithFiatToSelfCustody settles a fixed-price sale paid in the
// reference currency and delivers the asset to a self-custodial buyer
// address. Operator accounts only; the split and disbursement match
// PurchaseWithFiat.
func (e *Engine) PurchaseWithFiatToSelfCustody(caller [20]byte, assetID uint64, buyer [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	cfg, err := e.registry.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Admin && caller != cfg.Vault {
		return fmt.Errorf("%w: caller is not one of platform accounts", ErrUnauthorized)
	}
	if buyer == ([20]byte{}) {
		return fmt.Errorf("%w: buyer address is empty", ErrValidation)
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if listing.Auction {
		return fmt.Errorf("%w: seller is not selling this token", ErrPolicy)
	}
	seller, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	royalty, err := e.registry.RoyaltyOf(assetID)
	if err != nil {
		return err
	}
	rate, err := e.rate()
	if err != nil {
		return err
	}
	split, err := directSplit(listing.Price, cfg.FeePercent, royalty.Percentage, rate)
	if err != nil {
		return err
	}
	if err := e.distribute(cfg.Vault, split, seller, cfg); err != nil {
		return err
	}
	if err := e.registry.MarketTransferToSelfCustody(e.addr, assetID, buyer); err != nil {
		return err
	}
	if err := e.state.MarketListingDelete(assetID); err != nil {
		return err
	}
	e.emit(NewPurchaseEvent(EventTypePurchaseFiat, assetID, "", hexAddr(buyer), seller, split, e.now()))
	return nil
}

// PurchaseWithSettlement settles a fixed-price sale for a self-custodial
// buyer paying in the settlement asset. The buyer must have approved the
// marketplace to pull funds; the flow is selected by the listing path and
// paidAmount must cover the converted total.
func (e *Engine) PurchaseWithSettlement(caller [20]byte, assetID uint64, paidAmount *big.Int, commitment [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller == ([20]byte{}) {
		return fmt.Errorf("%w: buyer address is empty", ErrValidation)
	}
	if err := e.registry.VerifyCommitment(caller, commitment); err != nil {
		return err
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if listing.Auction {
		return fmt.Errorf("%w: seller is not selling this token", ErrPolicy)
	}
	cfg, err := e.registry.Config()
	if err != nil {
		return err
	}
	seller, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	royalty, err := e.registry.RoyaltyOf(assetID)
	if err != nil {
		return err
	}
	split, err := e.splitForListing(listing, royalty, cfg.FeePercent)
	if err != nil {
		return err
	}
	if paidAmount == nil || paidAmount.Cmp(split.BuyerTotal) < 0 {
		return fmt.Errorf("%w: not enough of settlement asset being sent", ErrPolicy)
	}
	// Pull exactly the converted total; any surplus allowance stays with
	// the buyer.
	if err := e.ledger.TransferFrom(e.addr, caller, e.addr, split.BuyerTotal); err != nil {
		return err
	}
	if err := e.distribute(e.addr, split, seller, cfg); err != nil {
		return err
	}
	if err := e.registry.MarketTransferToSelfCustody(e.addr, assetID, caller); err != nil {
		return err
	}
	if err := e.state.MarketListingDelete(assetID); err != nil {
		return err
	}
	e.emit(NewPurchaseEvent(EventTypePurchaseSettlement, assetID, "", hexAddr(caller), seller, split, e.now()))
	return nil
}

// PlaceBid escrows a bid on an auction listing. The previous highest
// bidder, if any, is refunded their exact escrowed amount before the new
// bid is recorded; the two phases commit inside the same atomic call.
func (e *Engine) PlaceBid(caller [20]byte, assetID uint64, bidPrice, paidAmount *big.Int, commitment [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller == ([20]byte{}) {
		return fmt.Errorf("%w: buyer address is empty", ErrValidation)
	}
	if err := e.registry.VerifyCommitment(caller, commitment); err != nil {
		return err
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if !listing.Auction {
		return fmt.Errorf("%w: this token is not on auction", ErrPolicy)
	}
	if err := validPrice(bidPrice); err != nil {
		return err
	}
	if listing.HasBid() && bidPrice.Cmp(listing.HighestBidPx) <= 0 {
		return fmt.Errorf("%w: bid must exceed current highest bid", ErrPolicy)
	}
	rate, err := e.rate()
	if err != nil {
		return err
	}
	required, err := oracle.ToSettlement(bidPrice, rate)
	if err != nil {
		return err
	}
	if paidAmount == nil || paidAmount.Cmp(required) < 0 {
		return fmt.Errorf("%w: not enough of settlement asset being sent", ErrPolicy)
	}
	if err := e.ledger.TransferFrom(e.addr, caller, e.addr, paidAmount); err != nil {
		return err
	}
	if listing.HasBid() {
		if err := e.ledger.Transfer(e.addr, listing.HighestBidder, listing.HighestBid); err != nil {
			return err
		}
	}
	listing.HighestBid = new(big.Int).Set(paidAmount)
	listing.HighestBidPx = new(big.Int).Set(bidPrice)
	listing.HighestBidder = caller
	if err := e.state.MarketListingPut(listing); err != nil {
		return err
	}
	e.emit(NewBidEvent(assetID, caller, bidPrice, paidAmount, e.now()))
	return nil
}

// AcceptBid settles an auction in favour of the highest bidder. The caller
// must be the asset's current effective owner. The embedded fee flow is
// applied to the escrowed bid, which is already denominated in the
// settlement asset; nobody is refunded.
func (e *Engine) AcceptBid(caller [20]byte, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.activeListing(assetID)
	if err != nil {
		return err
	}
	if !listing.Auction {
		return fmt.Errorf("%w: this token is not on auction", ErrPolicy)
	}
	if !listing.HasBid() {
		return fmt.Errorf("%w: no active bid for this token", ErrPolicy)
	}
	if err := e.requireEffectiveOwner(caller, assetID); err != nil {
		return err
	}
	cfg, err := e.registry.Config()
	if err != nil {
		return err
	}
	seller, err := e.registry.OwnershipOf(assetID)
	if err != nil {
		return err
	}
	royalty, err := e.registry.RoyaltyOf(assetID)
	if err != nil {
		return err
	}
	split, err := embeddedSplit(listing.HighestBid, cfg.FeePercent, royalty.Percentage)
	if err != nil {
		return err
	}
	winner := listing.HighestBidder
	if err := e.distribute(e.addr, split, seller, cfg); err != nil {
		return err
	}
	if err := e.registry.MarketTransferToSelfCustody(e.addr, assetID, winner); err != nil {
		return err
	}
	if err := e.state.MarketListingDelete(assetID); err != nil {
		return err
	}
	e.emit(NewBidAcceptedEvent(assetID, winner, seller, split, e.now()))
	return nil
}
