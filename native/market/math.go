package market

import (
	"fmt"
	"math/big"

	"curiochain/native/oracle"
)

// Split is the outcome of a fee-and-royalty computation. The invariant
// Seller + Royalty + PlatformFee == BuyerTotal holds for both flows;
// truncation happens only at the documented division steps.
type Split struct {
	BuyerTotal  *big.Int
	PlatformFee *big.Int
	Royalty     *big.Int
	Seller      *big.Int
}

// directSplit implements the surcharge pricing flow: the buyer pays the
// reference price plus the platform fee, converted to the settlement asset
// before the split.
//
//	buyerFee    = price * feePerMille / 1000
//	buyerTotal  = toSettlement(price + buyerFee)
//	royalty     = buyerTotal * royaltyPerMille / 1000
//	platformFee = buyerTotal * feePerMille * 2 / 1000
func directSplit(price *big.Int, feePerMille, royaltyPerMille uint32, rate *big.Rat) (*Split, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	fee := big.NewInt(int64(feePerMille))
	mille := big.NewInt(1000)
	buyerFee := new(big.Int).Mul(price, fee)
	buyerFee.Quo(buyerFee, mille)
	buyerTotal, err := oracle.ToSettlement(new(big.Int).Add(price, buyerFee), rate)
	if err != nil {
		return nil, err
	}
	royalty := new(big.Int).Mul(buyerTotal, big.NewInt(int64(royaltyPerMille)))
	royalty.Quo(royalty, mille)
	platformFee := new(big.Int).Mul(buyerTotal, fee)
	platformFee.Mul(platformFee, big.NewInt(2))
	platformFee.Quo(platformFee, mille)
	return finishSplit(buyerTotal, platformFee, royalty)
}

// embeddedSplit implements the backed-out pricing flow used for
// settlement-asset-denominated listings and escrowed auction bids: the fee
// is carved out of an already-converted total.
//
//	firstFee    = buyerTotal * feePerMille / (feePerMille + 1000)
//	platformFee = 2 * firstFee
//	royalty     = (buyerTotal - firstFee) * royaltyPercent / 100
func embeddedSplit(buyerTotal *big.Int, feePerMille, royaltyPercent uint32) (*Split, error) {
	if buyerTotal == nil || buyerTotal.Sign() <= 0 {
		return nil, fmt.Errorf("%w: buyer total must be positive", ErrValidation)
	}
	total := new(big.Int).Set(buyerTotal)
	fee := big.NewInt(int64(feePerMille))
	firstFee := new(big.Int).Mul(total, fee)
	firstFee.Quo(firstFee, new(big.Int).Add(fee, big.NewInt(1000)))
	platformFee := new(big.Int).Mul(firstFee, big.NewInt(2))
	royalty := new(big.Int).Sub(total, firstFee)
	royalty.Mul(royalty, big.NewInt(int64(royaltyPercent)))
	royalty.Quo(royalty, big.NewInt(100))
	return finishSplit(total, platformFee, royalty)
}

func finishSplit(buyerTotal, platformFee, royalty *big.Int) (*Split, error) {
	seller := new(big.Int).Sub(buyerTotal, royalty)
	seller.Sub(seller, platformFee)
	if seller.Sign() < 0 {
		return nil, fmt.Errorf("%w: fee and royalty exceed buyer total", ErrPolicy)
	}
	return &Split{
		BuyerTotal:  buyerTotal,
		PlatformFee: platformFee,
		Royalty:     royalty,
		Seller:      seller,
	}, nil
}
