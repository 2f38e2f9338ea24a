package registry

import (
	"fmt"
	"strings"
)

// CustodyMode distinguishes the two ownership models supported by the
// registry.
type CustodyMode uint8

const (
	// CustodyCustodial marks assets held by the platform vault on behalf
	// of a user identified by an opaque external id.
	CustodyCustodial CustodyMode = iota
	// CustodySelf marks assets held directly under the owner's address.
	CustodySelf
)

// Valid reports whether the custody mode is within the supported range.
func (m CustodyMode) Valid() bool {
	return m == CustodyCustodial || m == CustodySelf
}

// OwnershipRecord is a tagged variant: exactly one of CustodialID and
// Address is meaningful, selected by Mode. Use the constructors to build
// well-formed records.
type OwnershipRecord struct {
	Mode        CustodyMode
	CustodialID string
	Address     [20]byte
}

// CustodialOwner returns an ownership record for a vault-held asset.
func CustodialOwner(id string) OwnershipRecord {
	return OwnershipRecord{Mode: CustodyCustodial, CustodialID: id}
}

// SelfCustodyOwner returns an ownership record for a self-held asset.
func SelfCustodyOwner(addr [20]byte) OwnershipRecord {
	return OwnershipRecord{Mode: CustodySelf, Address: addr}
}

// IsCustodial reports whether the asset is held by the platform vault.
func (o OwnershipRecord) IsCustodial() bool { return o.Mode == CustodyCustodial }

// Validate enforces the tagged-union invariant: the selected field is set
// and the other is zero.
func (o OwnershipRecord) Validate() error {
	switch o.Mode {
	case CustodyCustodial:
		if strings.TrimSpace(o.CustodialID) == "" {
			return fmt.Errorf("%w: custodial owner id is empty", ErrValidation)
		}
		if o.Address != ([20]byte{}) {
			return fmt.Errorf("%w: custodial record carries an address", ErrValidation)
		}
	case CustodySelf:
		if o.Address == ([20]byte{}) {
			return fmt.Errorf("%w: owner address is empty", ErrValidation)
		}
		if o.CustodialID != "" {
			return fmt.Errorf("%w: self-custody record carries a custodial id", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid custody mode %d", ErrValidation, o.Mode)
	}
	return nil
}

// Royalty attributes a share of each subsequent sale to an opaque receiver
// id. Set at mint time, immutable afterward.
type Royalty struct {
	ReceiverID string
	Percentage uint32
}

// Asset is the per-token record owned by the registry. Holder is the
// holder-of-record on the ledger: the vault address for custodial assets,
// the owner address otherwise.
type Asset struct {
	ID        uint64
	URI       string
	ProductID string
	Edition   uint64
	Holder    [20]byte
	Owner     OwnershipRecord
	Royalty   Royalty
	CreatedAt int64
}

// Clone returns a copy of the asset safe for callers to mutate.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// AccessConfig holds the privileged identities and process-wide settings
// owned by the registry: administrator, custodial vault, fee treasury, the
// marketplace identity allowed to move assets during settlement, the
// platform fee in per-mille (25 = 2.5%), and the rotatable auth-commitment
// secret.
type AccessConfig struct {
	Admin       [20]byte
	Vault       [20]byte
	Treasury    [20]byte
	Marketplace [20]byte
	FeePercent  uint32
	Passcode    [32]byte
}

// Clone returns a copy of the configuration.
func (c *AccessConfig) Clone() *AccessConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
