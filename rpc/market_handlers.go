package rpc

import (
	"net/http"

	"curiochain/native/market"
)

type listCustodialParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Price   string `json:"price"`
}

type listSelfParams struct {
	Caller     string `json:"caller"`
	AssetID    uint64 `json:"assetId"`
	Price      string `json:"price"`
	Auction    bool   `json:"auction"`
	Commitment string `json:"commitment"`
}

type removeSaleParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type purchaseFiatParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	BuyerID string `json:"buyerId"`
}

type purchaseFiatToSelfParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Buyer   string `json:"buyer"`
}

type purchaseSettlementParams struct {
	Caller     string `json:"caller"`
	AssetID    uint64 `json:"assetId"`
	PaidAmount string `json:"paidAmount"`
	Commitment string `json:"commitment"`
}

type placeBidParams struct {
	Caller     string `json:"caller"`
	AssetID    uint64 `json:"assetId"`
	BidPrice   string `json:"bidPrice"`
	PaidAmount string `json:"paidAmount"`
	Commitment string `json:"commitment"`
}

type acceptBidParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type listingJSON struct {
	AssetID       uint64 `json:"assetId"`
	Price         string `json:"price"`
	Auction       bool   `json:"auction"`
	FiatListed    bool   `json:"fiatListed"`
	HighestBid    string `json:"highestBid,omitempty"`
	HighestBidPx  string `json:"highestBidPrice,omitempty"`
	HighestBidder string `json:"highestBidder,omitempty"`
	ListedAt      int64  `json:"listedAt"`
}

func listingToJSON(listing *market.Listing) listingJSON {
	out := listingJSON{
		AssetID:    listing.AssetID,
		Auction:    listing.Auction,
		FiatListed: listing.FiatListed,
		ListedAt:   listing.ListedAt,
	}
	if listing.Price != nil {
		out.Price = listing.Price.String()
	}
	if listing.HasBid() {
		out.HighestBid = listing.HighestBid.String()
		out.HighestBidPx = listing.HighestBidPx.String()
		addr := listing.HighestBidder
		out.HighestBidder = "0x" + hexBytes(addr[:])
	}
	return out
}

func (s *Server) handleSetForSaleCustodial(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listCustodialParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.SetForSaleCustodial(caller, params.AssetID, price); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSetForSaleSelf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listSelfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	commitment, err := parseCommitment(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.SetForSaleSelfCustodial(caller, params.AssetID, price, params.Auction, commitment); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params removeSaleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.RemoveSale(caller, params.AssetID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handlePurchaseWithFiat(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params purchaseFiatParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.PurchaseWithFiat(caller, params.AssetID, params.BuyerID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handlePurchaseFiatToSelf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params purchaseFiatToSelfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.PurchaseWithFiatToSelfCustody(caller, params.AssetID, buyer); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handlePurchaseSettlement(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params purchaseSettlementParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := parseAmount(params.PaidAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	commitment, err := parseCommitment(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.PurchaseWithSettlement(caller, params.AssetID, paid, commitment); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params placeBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	bidPrice, err := parseAmount(params.BidPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := parseAmount(params.PaidAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	commitment, err := parseCommitment(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.PlaceBid(caller, params.AssetID, bidPrice, paid, commitment); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params acceptBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.market.AcceptBid(caller, params.AssetID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	listing, ok, err := s.market.Listing(params.AssetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "no listing for asset", nil)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}
