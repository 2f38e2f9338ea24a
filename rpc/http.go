package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curiochain/core/events"
	"curiochain/native/market"
	"curiochain/native/oracle"
	"curiochain/native/registry"
	"curiochain/native/token"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32002
	codePolicy         = -32003
)

var rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "curio_rpc_requests_total",
	Help: "JSON-RPC requests served, labelled by method and outcome.",
}, []string{"method", "outcome"})

// Server exposes the native engines over JSON-RPC. Privileged methods are
// gated by a bearer token; read methods are open.
type Server struct {
	registry  *registry.Engine
	market    *market.Engine
	ledger    *token.Ledger
	oracle    *oracle.ManualOracle
	recorder  *events.Recorder
	authToken string
}

// NewServer constructs the RPC server over the supplied engines. An empty
// authToken disables every privileged method.
func NewServer(reg *registry.Engine, mkt *market.Engine, ledger *token.Ledger, manual *oracle.ManualOracle, recorder *events.Recorder, authToken string) *Server {
	return &Server{
		registry:  reg,
		market:    mkt,
		ledger:    ledger,
		oracle:    manual,
		recorder:  recorder,
		authToken: strings.TrimSpace(authToken),
	}
}

// Router builds the HTTP surface: JSON-RPC at /, liveness at /healthz and
// Prometheus metrics at /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps an engine failure onto the JSON-RPC error space.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrAssetNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, registry.ErrValidation) || errors.Is(err, market.ErrValidation):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, registry.ErrUnauthorized) || errors.Is(err, market.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, registry.ErrPolicy) || errors.Is(err, market.ErrPolicy):
		writeError(w, http.StatusConflict, id, codePolicy, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	handler, ok := s.routes()[req.Method]
	if !ok {
		rpcRequests.WithLabelValues(req.Method, "not_found").Inc()
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if handler.privileged {
		if authErr := s.requireAuth(r); authErr != nil {
			rpcRequests.WithLabelValues(req.Method, "unauthorized").Inc()
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	rpcRequests.WithLabelValues(req.Method, "ok").Inc()
	handler.fn(w, r, req)
}

type route struct {
	fn         func(http.ResponseWriter, *http.Request, *RPCRequest)
	privileged bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"registry_mintCustodial":       {s.handleMintCustodial, true},
		"registry_mintSelfCustodial":   {s.handleMintSelfCustodial, true},
		"registry_mintWithSettlement":  {s.handleMintWithSettlement, false},
		"registry_changeOwnership":     {s.handleChangeOwnership, true},
		"registry_claimAssets":         {s.handleClaimAssets, true},
		"registry_setFeePercent":       {s.handleSetFeePercent, true},
		"registry_rotatePasscode":      {s.handleRotatePasscode, true},
		"registry_setRole":             {s.handleSetRole, true},
		"registry_setApprovalForAll":   {s.handleSetApprovalForAll, false},
		"registry_getAsset":            {s.handleGetAsset, false},
		"registry_getOwnership":        {s.handleGetOwnership, false},
		"registry_getByProductEdition": {s.handleGetByProductEdition, false},
		"registry_getFeePercent":       {s.handleGetFeePercent, false},
		"market_setForSaleCustodial":   {s.handleSetForSaleCustodial, true},
		"market_setForSaleSelf":        {s.handleSetForSaleSelf, false},
		"market_removeSale":            {s.handleRemoveSale, false},
		"market_purchaseWithFiat":      {s.handlePurchaseWithFiat, true},
		"market_purchaseFiatToSelf":    {s.handlePurchaseFiatToSelf, true},
		"market_purchaseSettlement":    {s.handlePurchaseSettlement, false},
		"market_placeBid":              {s.handlePlaceBid, false},
		"market_acceptBid":             {s.handleAcceptBid, false},
		"market_getListing":            {s.handleGetListing, false},
		"token_balanceOf":              {s.handleBalanceOf, false},
		"token_transfer":               {s.handleTokenTransfer, true},
		"token_approve":                {s.handleTokenApprove, true},
		"token_mint":                   {s.handleTokenMint, true},
		"oracle_setRate":               {s.handleOracleSetRate, true},
		"events_latest":                {s.handleEventsLatest, false},
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// decodeParams unmarshals the single positional parameter object.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("parameter object required")
	}
	if len(req.Params) > 1 {
		return fmt.Errorf("too many parameters")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid parameter object: %v", err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address %q must be 20 bytes", value)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseCommitment(value string) ([32]byte, error) {
	var commitment [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return commitment, fmt.Errorf("invalid commitment %q", value)
	}
	if len(raw) != 32 {
		return commitment, fmt.Errorf("commitment must be 32 bytes")
	}
	copy(commitment[:], raw)
	return commitment, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
