package registry

import (
	"encoding/hex"
	"strconv"
	"strings"

	"curiochain/core/types"
)

const (
	EventTypeMintedCustodial  = "registry.minted.custodial"
	EventTypeMintedSelf       = "registry.minted.self"
	EventTypeMintedSettlement = "registry.minted.settlement"
	EventTypeOwnershipChanged = "registry.ownership_changed"
	EventTypeClaimed          = "registry.claimed"
	EventTypeFeeUpdated       = "registry.fee_updated"
	EventTypePasscodeRotated  = "registry.passcode_rotated"
	EventTypeApproval         = "registry.approval"
)

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event returns the underlying typed payload.
func (e registryEvent) Event() *types.Event { return e.evt }

func wrap(evt *types.Event) registryEvent { return registryEvent{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func ownerAttributes(attrs map[string]string, owner OwnershipRecord) {
	attrs["isCustodial"] = strconv.FormatBool(owner.IsCustodial())
	if owner.IsCustodial() {
		attrs["custodialOwnerId"] = owner.CustodialID
	} else {
		attrs["ownerAddress"] = hexAddr(owner.Address)
	}
}

// NewMintedEvent returns the canonical payload for a mint, carrying every
// attribute recorded at mint time plus the logical timestamp.
func NewMintedEvent(asset *Asset, eventType string) registryEvent {
	attrs := make(map[string]string)
	if asset == nil {
		return wrap(&types.Event{Type: eventType, Attributes: attrs})
	}
	attrs["assetId"] = strconv.FormatUint(asset.ID, 10)
	attrs["uri"] = asset.URI
	attrs["productId"] = asset.ProductID
	attrs["edition"] = strconv.FormatUint(asset.Edition, 10)
	attrs["royaltyReceiverId"] = asset.Royalty.ReceiverID
	attrs["royaltyPercentage"] = strconv.FormatUint(uint64(asset.Royalty.Percentage), 10)
	attrs["holder"] = hexAddr(asset.Holder)
	attrs["timestamp"] = strconv.FormatInt(asset.CreatedAt, 10)
	ownerAttributes(attrs, asset.Owner)
	return wrap(&types.Event{Type: eventType, Attributes: attrs})
}

// NewOwnershipChangedEvent returns the payload for an admin ownership
// rewrite.
func NewOwnershipChangedEvent(asset *Asset, ts int64) registryEvent {
	attrs := make(map[string]string)
	if asset != nil {
		attrs["assetId"] = strconv.FormatUint(asset.ID, 10)
		attrs["holder"] = hexAddr(asset.Holder)
		ownerAttributes(attrs, asset.Owner)
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return wrap(&types.Event{Type: EventTypeOwnershipChanged, Attributes: attrs})
}

// NewClaimedEvent returns the payload for a batch custody conversion.
func NewClaimedEvent(assetIDs []uint64, newAddress [20]byte, ts int64) registryEvent {
	ids := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	attrs := map[string]string{
		"assetIds":  strings.Join(ids, ","),
		"newOwner":  hexAddr(newAddress),
		"timestamp": strconv.FormatInt(ts, 10),
	}
	return wrap(&types.Event{Type: EventTypeClaimed, Attributes: attrs})
}

// NewFeeUpdatedEvent returns the payload for a platform fee change.
func NewFeeUpdatedEvent(feePercent uint32, ts int64) registryEvent {
	attrs := map[string]string{
		"feePercent": strconv.FormatUint(uint64(feePercent), 10),
		"timestamp":  strconv.FormatInt(ts, 10),
	}
	return wrap(&types.Event{Type: EventTypeFeeUpdated, Attributes: attrs})
}

// NewPasscodeRotatedEvent returns the payload for a passcode rotation. The
// secret itself never appears in the event log.
func NewPasscodeRotatedEvent(ts int64) registryEvent {
	attrs := map[string]string{"timestamp": strconv.FormatInt(ts, 10)}
	return wrap(&types.Event{Type: EventTypePasscodeRotated, Attributes: attrs})
}

// NewApprovalEvent returns the payload for an operator approval change.
func NewApprovalEvent(owner, operator [20]byte, approved bool, ts int64) registryEvent {
	attrs := map[string]string{
		"owner":     hexAddr(owner),
		"operator":  hexAddr(operator),
		"approved":  strconv.FormatBool(approved),
		"timestamp": strconv.FormatInt(ts, 10),
	}
	return wrap(&types.Event{Type: EventTypeApproval, Attributes: attrs})
}
