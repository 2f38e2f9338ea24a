package market

import "math/big"

// Listing is the per-asset sale state. Price is denominated in
// reference-currency minor units and converted to the settlement asset at
// purchase time; nothing about the conversion is cached across calls.
//
// FiatListed records which listing path created the entry: operator-made
// listings on behalf of custodial owners settle with the direct fee flow,
// settlement-asset-denominated listings made by self-custodial owners
// settle with the embedded fee flow.
type Listing struct {
	AssetID       uint64
	Price         *big.Int
	Auction       bool
	FiatListed    bool
	HighestBid    *big.Int
	HighestBidPx  *big.Int
	HighestBidder [20]byte
	ListedAt      int64
}

// Active reports whether the listing represents a live sale.
func (l *Listing) Active() bool {
	return l != nil && l.Price != nil && l.Price.Sign() > 0
}

// HasBid reports whether an auction bid is currently escrowed.
func (l *Listing) HasBid() bool {
	return l != nil && l.HighestBid != nil && l.HighestBid.Sign() > 0
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	}
	if l.HighestBid != nil {
		clone.HighestBid = new(big.Int).Set(l.HighestBid)
	}
	if l.HighestBidPx != nil {
		clone.HighestBidPx = new(big.Int).Set(l.HighestBidPx)
	}
	return &clone
}
