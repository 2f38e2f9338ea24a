package rpc

import (
	"fmt"
	"net/http"

	"curiochain/native/registry"
)

type mintCustodialParams struct {
	Caller            string `json:"caller"`
	RoyaltyReceiverID string `json:"royaltyReceiverId"`
	RoyaltyPercentage uint32 `json:"royaltyPercentage"`
	MinterID          string `json:"minterId"`
	ProductID         string `json:"productId"`
	Edition           uint64 `json:"edition"`
	URI               string `json:"uri"`
}

type mintSelfCustodialParams struct {
	Caller            string `json:"caller"`
	RoyaltyReceiverID string `json:"royaltyReceiverId"`
	RoyaltyPercentage uint32 `json:"royaltyPercentage"`
	Owner             string `json:"owner"`
	ProductID         string `json:"productId"`
	Edition           uint64 `json:"edition"`
	URI               string `json:"uri"`
}

type mintWithSettlementParams struct {
	Caller            string `json:"caller"`
	RoyaltyReceiverID string `json:"royaltyReceiverId"`
	RoyaltyPercentage uint32 `json:"royaltyPercentage"`
	ProductID         string `json:"productId"`
	Edition           uint64 `json:"edition"`
	URI               string `json:"uri"`
	Commitment        string `json:"commitment"`
}

type changeOwnershipParams struct {
	Caller         string `json:"caller"`
	AssetID        uint64 `json:"assetId"`
	NewAddress     string `json:"newAddress,omitempty"`
	NewCustodialID string `json:"newCustodialId,omitempty"`
}

type claimAssetsParams struct {
	Caller     string   `json:"caller"`
	AssetIDs   []uint64 `json:"assetIds"`
	NewAddress string   `json:"newAddress"`
}

type setFeePercentParams struct {
	Caller string `json:"caller"`
	Value  uint32 `json:"value"`
}

type rotatePasscodeParams struct {
	Caller string `json:"caller"`
	Secret string `json:"secret"`
}

type setRoleParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type setApprovalParams struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type assetIDParams struct {
	AssetID uint64 `json:"assetId"`
}

type productEditionParams struct {
	ProductID string `json:"productId"`
	Edition   uint64 `json:"edition"`
}

type assetJSON struct {
	ID                uint64 `json:"id"`
	URI               string `json:"uri"`
	ProductID         string `json:"productId"`
	Edition           uint64 `json:"edition"`
	RoyaltyReceiverID string `json:"royaltyReceiverId"`
	RoyaltyPercentage uint32 `json:"royaltyPercentage"`
	Custodial         bool   `json:"custodial"`
	OwnerID           string `json:"ownerId,omitempty"`
	OwnerAddress      string `json:"ownerAddress,omitempty"`
	Holder            string `json:"holder"`
	CreatedAt         int64  `json:"createdAt"`
}

func assetToJSON(asset *registry.Asset) assetJSON {
	out := assetJSON{
		ID:                asset.ID,
		URI:               asset.URI,
		ProductID:         asset.ProductID,
		Edition:           asset.Edition,
		RoyaltyReceiverID: asset.Royalty.ReceiverID,
		RoyaltyPercentage: asset.Royalty.Percentage,
		Custodial:         asset.Owner.IsCustodial(),
		Holder:            "0x" + fmt.Sprintf("%x", asset.Holder),
		CreatedAt:         asset.CreatedAt,
	}
	if asset.Owner.IsCustodial() {
		out.OwnerID = asset.Owner.CustodialID
	} else {
		out.OwnerAddress = "0x" + fmt.Sprintf("%x", asset.Owner.Address)
	}
	return out
}

func (s *Server) handleMintCustodial(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintCustodialParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := s.registry.MintCustodial(caller, params.RoyaltyReceiverID, params.RoyaltyPercentage, params.MinterID, params.ProductID, params.Edition, params.URI)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}

func (s *Server) handleMintSelfCustodial(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintSelfCustodialParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := s.registry.MintSelfCustodial(caller, params.RoyaltyReceiverID, params.RoyaltyPercentage, owner, params.ProductID, params.Edition, params.URI)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}

func (s *Server) handleMintWithSettlement(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintWithSettlementParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	commitment, err := parseCommitment(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := s.registry.MintWithSettlement(caller, params.RoyaltyReceiverID, params.RoyaltyPercentage, params.ProductID, params.Edition, params.URI, commitment)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}

func (s *Server) handleChangeOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params changeOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var newAddress [20]byte
	if params.NewAddress != "" {
		if newAddress, err = parseAddress(params.NewAddress); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.registry.ChangeOwnership(caller, params.AssetID, newAddress, params.NewCustodialID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleClaimAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimAssetsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	newAddress, err := parseAddress(params.NewAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.registry.ClaimAssets(caller, params.AssetIDs, newAddress); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSetFeePercent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setFeePercentParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.registry.SetFeePercent(caller, params.Value); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRotatePasscode(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rotatePasscodeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	secret, err := parseCommitment(params.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.registry.RotatePasscode(caller, secret); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSetRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setRoleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	target, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	switch params.Role {
	case "admin":
		err = s.registry.SetAdmin(caller, target)
	case "vault":
		err = s.registry.SetVault(caller, target)
	case "treasury":
		err = s.registry.SetTreasury(caller, target)
	case "marketplace":
		err = s.registry.SetMarketplace(caller, target)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("unknown role %q", params.Role), nil)
		return
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSetApprovalForAll(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setApprovalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	operator, err := parseAddress(params.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.registry.SetApprovalForAll(owner, operator, params.Approved); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := s.registry.Asset(params.AssetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}

func (s *Server) handleGetOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := s.registry.OwnershipOf(params.AssetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := map[string]interface{}{"custodial": owner.IsCustodial()}
	if owner.IsCustodial() {
		result["ownerId"] = owner.CustodialID
	} else {
		result["ownerAddress"] = "0x" + fmt.Sprintf("%x", owner.Address)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetByProductEdition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params productEditionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, ok, err := s.registry.AssetByProductEdition(params.ProductID, params.Edition)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "product edition not found", nil)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"assetId": id})
}

func (s *Server) handleGetFeePercent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	fee, err := s.registry.FeePercent()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"feePercent": fee})
}
