package market

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"curiochain/core/types"
	"curiochain/native/registry"
)

const (
	// EventTypeListed is emitted when a listing becomes active.
	EventTypeListed = "market.listed"
	// EventTypeDelisted is emitted when a listing is removed without a sale.
	EventTypeDelisted = "market.delisted"
	// EventTypePurchaseFiat is emitted on a direct-flow fiat settlement.
	EventTypePurchaseFiat = "market.purchase.fiat"
	// EventTypePurchaseSettlement is emitted on a settlement-asset purchase.
	EventTypePurchaseSettlement = "market.purchase.settlement"
	// EventTypeBid is emitted when a bid is escrowed.
	EventTypeBid = "market.bid"
	// EventTypeBidAccepted is emitted when an auction settles.
	EventTypeBidAccepted = "market.bid_accepted"
)

type marketEvent struct {
	evt *types.Event
}

func (m marketEvent) EventType() string {
	if m.evt == nil {
		return ""
	}
	return m.evt.Type
}

func (m marketEvent) Event() *types.Event { return m.evt }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewListedEvent reports a newly active listing.
func NewListedEvent(listing *Listing) marketEvent {
	attrs := map[string]string{
		"assetId":  fmt.Sprintf("%d", listing.AssetID),
		"price":    bigAttr(listing.Price),
		"auction":  fmt.Sprintf("%t", listing.Auction),
		"fiat":     fmt.Sprintf("%t", listing.FiatListed),
		"listedAt": fmt.Sprintf("%d", listing.ListedAt),
	}
	return marketEvent{evt: &types.Event{Type: EventTypeListed, Attributes: attrs}}
}

// NewDelistedEvent reports a listing removed without settlement.
func NewDelistedEvent(assetID uint64, ts int64) marketEvent {
	attrs := map[string]string{
		"assetId":   fmt.Sprintf("%d", assetID),
		"timestamp": fmt.Sprintf("%d", ts),
	}
	return marketEvent{evt: &types.Event{Type: EventTypeDelisted, Attributes: attrs}}
}

func sellerAttributes(attrs map[string]string, seller registry.OwnershipRecord) {
	if seller.IsCustodial() {
		attrs["sellerId"] = seller.CustodialID
		return
	}
	attrs["sellerAddress"] = hexAddr(seller.Address)
}

func splitAttributes(attrs map[string]string, split *Split) {
	attrs["buyerTotal"] = bigAttr(split.BuyerTotal)
	attrs["platformFee"] = bigAttr(split.PlatformFee)
	attrs["royalty"] = bigAttr(split.Royalty)
	attrs["sellerAmount"] = bigAttr(split.Seller)
}

// NewPurchaseEvent reports a settled fixed-price sale. Exactly one of
// buyerID and buyerAddr is set, matching the buyer's custody mode.
func NewPurchaseEvent(eventType string, assetID uint64, buyerID, buyerAddr string, seller registry.OwnershipRecord, split *Split, ts int64) marketEvent {
	attrs := map[string]string{
		"assetId":   fmt.Sprintf("%d", assetID),
		"timestamp": fmt.Sprintf("%d", ts),
	}
	if buyerID != "" {
		attrs["buyerId"] = buyerID
	}
	if buyerAddr != "" {
		attrs["buyerAddress"] = buyerAddr
	}
	sellerAttributes(attrs, seller)
	splitAttributes(attrs, split)
	return marketEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

// NewBidEvent reports an escrowed auction bid.
func NewBidEvent(assetID uint64, bidder [20]byte, bidPrice, escrowed *big.Int, ts int64) marketEvent {
	attrs := map[string]string{
		"assetId":   fmt.Sprintf("%d", assetID),
		"bidder":    hexAddr(bidder),
		"bidPrice":  bigAttr(bidPrice),
		"escrowed":  bigAttr(escrowed),
		"timestamp": fmt.Sprintf("%d", ts),
	}
	return marketEvent{evt: &types.Event{Type: EventTypeBid, Attributes: attrs}}
}

// NewBidAcceptedEvent reports an auction settled in favour of the highest
// bidder.
func NewBidAcceptedEvent(assetID uint64, winner [20]byte, seller registry.OwnershipRecord, split *Split, ts int64) marketEvent {
	attrs := map[string]string{
		"assetId":   fmt.Sprintf("%d", assetID),
		"winner":    hexAddr(winner),
		"timestamp": fmt.Sprintf("%d", ts),
	}
	sellerAttributes(attrs, seller)
	splitAttributes(attrs, split)
	return marketEvent{evt: &types.Event{Type: EventTypeBidAccepted, Attributes: attrs}}
}
