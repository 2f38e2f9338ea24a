package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"curiochain/core/events"
	"curiochain/native/market"
	"curiochain/native/oracle"
	"curiochain/native/registry"
	"curiochain/native/token"
	"curiochain/state"
	"curiochain/storage"
)

const testToken = "test-token"

func testAddr(last byte) string {
	return fmt.Sprintf("0x%038x%02x", 0, last)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	recorder := events.NewRecorder(128)

	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetEmitter(recorder)

	var admin, vault, treasury, marketplace [20]byte
	admin[19] = 0x01
	vault[19] = 0x02
	treasury[19] = 0x03
	marketplace[19] = 0x04
	require.NoError(t, reg.InitializeConfig(registry.AccessConfig{
		Admin:       admin,
		Vault:       vault,
		Treasury:    treasury,
		Marketplace: marketplace,
		FeePercent:  25,
		Passcode:    [32]byte{0xAA},
	}))

	ledger := token.NewLedger()
	ledger.SetState(manager)

	manual := oracle.NewManualOracle()
	require.NoError(t, manual.SetDecimal("USD", token.Symbol, "1", time.Now()))

	mkt := market.NewEngine(reg)
	mkt.SetState(manager)
	mkt.SetLedger(ledger)
	mkt.SetOracle(manual)
	mkt.SetAddress(marketplace)
	mkt.SetEmitter(recorder)

	server := NewServer(reg, mkt, ledger, manual, recorder, testToken)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method string, params interface{}, authed bool) (*http.Response, RPCResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	resp, decoded := call(t, ts, "registry_noSuchThing", nil, false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestPrivilegedMethodRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]interface{}{
		"caller":            testAddr(0x02),
		"royaltyReceiverId": "creator-1",
		"royaltyPercentage": 50,
		"minterId":          "user-1",
		"productId":         "P1",
		"edition":           1,
		"uri":               "ipfs://x",
	}
	resp, decoded := call(t, ts, "registry_mintCustodial", params, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)
}

func TestMintAndReadAsset(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]interface{}{
		"caller":            testAddr(0x02),
		"royaltyReceiverId": "creator-1",
		"royaltyPercentage": 50,
		"minterId":          "user-1",
		"productId":         "P1",
		"edition":           1,
		"uri":               "ipfs://x",
	}
	resp, decoded := call(t, ts, "registry_mintCustodial", params, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	resp, decoded = call(t, ts, "registry_getAsset", map[string]interface{}{"assetId": 1}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	result, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var asset assetJSON
	require.NoError(t, json.Unmarshal(result, &asset))
	require.Equal(t, uint64(1), asset.ID)
	require.Equal(t, "P1", asset.ProductID)
	require.True(t, asset.Custodial)
	require.Equal(t, "user-1", asset.OwnerID)

	resp, decoded = call(t, ts, "registry_getAsset", map[string]interface{}{"assetId": 42}, false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeNotFound, decoded.Error.Code)
}

func TestEngineErrorsMapToRPCCodes(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]interface{}{
		"caller":            testAddr(0x02),
		"royaltyReceiverId": "creator-1",
		"royaltyPercentage": 50,
		"minterId":          "user-1",
		"productId":         "P1",
		"edition":           1,
		"uri":               "ipfs://x",
	}
	_, decoded := call(t, ts, "registry_mintCustodial", params, true)
	require.Nil(t, decoded.Error)

	// Same product/edition again trips the uniqueness policy.
	resp, decoded := call(t, ts, "registry_mintCustodial", params, true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codePolicy, decoded.Error.Code)
	require.Contains(t, decoded.Error.Message, "product edition has already been created")

	// A stranger caller trips the operator gate.
	params["caller"] = testAddr(0x42)
	params["edition"] = 2
	resp, decoded = call(t, ts, "registry_mintCustodial", params, true)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)
}

func TestFiatPurchaseDeliversToAddress(t *testing.T) {
	ts := newTestServer(t)
	_, decoded := call(t, ts, "registry_mintCustodial", map[string]interface{}{
		"caller":            testAddr(0x02),
		"royaltyReceiverId": "creator-1",
		"royaltyPercentage": 50,
		"minterId":          "user-1",
		"productId":         "P1",
		"edition":           1,
		"uri":               "ipfs://x",
	}, true)
	require.Nil(t, decoded.Error)

	_, decoded = call(t, ts, "registry_setApprovalForAll", map[string]interface{}{
		"owner":    testAddr(0x02),
		"operator": testAddr(0x04),
		"approved": true,
	}, false)
	require.Nil(t, decoded.Error)

	_, decoded = call(t, ts, "market_setForSaleCustodial", map[string]interface{}{
		"caller":  testAddr(0x02),
		"assetId": 1,
		"price":   "500",
	}, true)
	require.Nil(t, decoded.Error)

	_, decoded = call(t, ts, "token_mint", map[string]interface{}{
		"address": testAddr(0x02),
		"amount":  "1000",
	}, true)
	require.Nil(t, decoded.Error)

	resp, decoded := call(t, ts, "market_purchaseFiatToSelf", map[string]interface{}{
		"caller":  testAddr(0x02),
		"assetId": 1,
		"buyer":   testAddr(0x30),
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	resp, decoded = call(t, ts, "registry_getOwnership", map[string]interface{}{"assetId": 1}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	raw, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var owner struct {
		Custodial    bool   `json:"custodial"`
		OwnerAddress string `json:"ownerAddress"`
	}
	require.NoError(t, json.Unmarshal(raw, &owner))
	require.False(t, owner.Custodial)
	require.Equal(t, testAddr(0x30), owner.OwnerAddress)
}

func TestEventsLatest(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]interface{}{
		"caller":            testAddr(0x02),
		"royaltyReceiverId": "creator-1",
		"royaltyPercentage": 50,
		"minterId":          "user-1",
		"productId":         "P1",
		"edition":           1,
		"uri":               "ipfs://x",
	}
	_, decoded := call(t, ts, "registry_mintCustodial", params, true)
	require.Nil(t, decoded.Error)

	resp, decoded := call(t, ts, "events_latest", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	raw, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var evts []eventJSON
	require.NoError(t, json.Unmarshal(raw, &evts))
	require.NotEmpty(t, evts)
	require.Equal(t, "registry.minted.custodial", evts[0].Type)
}
