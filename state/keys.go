package state

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes partition the flat key-value store per concern. Numeric key
// components are big-endian fixed width so lexicographic ordering matches
// numeric ordering.
const (
	prefixAsset          = "registry/asset/"
	prefixProductEdition = "registry/pe/"
	prefixConfig         = "registry/config"
	prefixApproval       = "registry/approval/"
	prefixAssetCounter   = "registry/asset-counter"
	prefixListing        = "market/listing/"
	prefixAccount        = "token/account/"
	prefixAllowance      = "token/allowance/"
)

func assetKey(id uint64) []byte {
	buf := make([]byte, len(prefixAsset)+8)
	copy(buf, prefixAsset)
	binary.BigEndian.PutUint64(buf[len(prefixAsset):], id)
	return buf
}

func productEditionKey(productID string, edition uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%d", prefixProductEdition, productID, edition))
}

func approvalKey(owner, operator [20]byte) []byte {
	buf := make([]byte, 0, len(prefixApproval)+40)
	buf = append(buf, prefixApproval...)
	buf = append(buf, owner[:]...)
	buf = append(buf, operator[:]...)
	return buf
}

func listingKey(assetID uint64) []byte {
	buf := make([]byte, len(prefixListing)+8)
	copy(buf, prefixListing)
	binary.BigEndian.PutUint64(buf[len(prefixListing):], assetID)
	return buf
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, 0, len(prefixAccount)+len(addr))
	buf = append(buf, prefixAccount...)
	buf = append(buf, addr...)
	return buf
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(prefixAllowance)+40)
	buf = append(buf, prefixAllowance...)
	buf = append(buf, owner[:]...)
	buf = append(buf, spender[:]...)
	return buf
}
