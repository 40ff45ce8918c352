package server

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/llmer/x402-demo"
	"github.com/llmer/x402-demo/evm"
)

func TestWellKnownDiscovery(t *testing.T) {
	s := newTestServer(t, "https://x402.org/facilitator")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/x402", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	var doc discoveryDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Contains(t, doc.Resources, "https://x402.llmer.com/api/cowsays")
	assert.Contains(t, doc.Resources, "https://x402.llmer.com/api/quote")
	assert.Contains(t, doc.Instructions, "USDC")

	// The proof must recover to the facilitator's own address.
	require.Len(t, doc.OwnershipProofs, 1)
	proof := doc.OwnershipProofs[0]
	assert.Equal(t, Network, proof.Chain)
	owner, err := evm.RecoverOwner("https://x402.llmer.com", proof.Signature)
	require.NoError(t, err)
	assert.Equal(t, proof.Address, owner)
}

func TestWellKnownWithoutKeyOmitsProofs(t *testing.T) {
	s, err := New(Config{
		ListenAddr:     ":0",
		SiteURL:        "https://x402.llmer.com",
		FacilitatorURL: "https://x402.org/facilitator",
		PayTo:          "0xABCabcABCabcABCabcABCabcABCabcABCabcABCa",
	}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/x402", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc discoveryDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Empty(t, doc.OwnershipProofs)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "https://x402.org/facilitator")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string `json:"status"`
		Listeners   int    `json:"listeners"`
		RateLimiter string `json:"rateLimiter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Listeners)
	assert.Equal(t, "disabled", body.RateLimiter)
}

func TestHealthWhileDraining(t *testing.T) {
	s := newTestServer(t, "https://x402.org/facilitator")
	s.isReady.Store(false)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "draining")
}

func TestFacilitatorSupportedProxy(t *testing.T) {
	s := newTestServer(t, fakeFacilitator(t).URL)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/facilitator/supported", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var supported x402.SupportedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &supported))
	require.Len(t, supported.Kinds, 1)
	assert.Equal(t, "exact", supported.Kinds[0].Scheme)
	assert.Equal(t, "0xFacilitator", supported.Signers[Network])
}

func TestFacilitatorSupportedUnavailable(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/facilitator/supported", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Facilitator unavailable")
}

func TestFacilitatorVerifyProxy(t *testing.T) {
	s := newTestServer(t, fakeFacilitator(t).URL)

	body, err := json.Marshal(map[string]any{
		"payload": map[string]any{
			"x402Version": x402.ProtocolVersion,
			"payload":     json.RawMessage(`{"signature":"0xsig"}`),
		},
		"requirements": map[string]any{
			"scheme":  "exact",
			"network": Network,
			"amount":  Price,
			"asset":   USDCBaseSepolia,
			"payTo":   s.payTo,
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/facilitator/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result x402.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsValid)
	assert.Equal(t, "0xPayer", result.Payer)
}

func TestFacilitatorVerifyProxyRejectsBadBody(t *testing.T) {
	s := newTestServer(t, fakeFacilitator(t).URL)

	for _, body := range []string{"not json", `{}`, `{"payload":{"x402Version":2}}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/facilitator/verify", bytes.NewReader([]byte(body)))
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestFacilitatorBalanceWithoutKey(t *testing.T) {
	s, err := New(Config{
		ListenAddr:     ":0",
		SiteURL:        "https://x402.llmer.com",
		FacilitatorURL: "https://x402.org/facilitator",
		PayTo:          "0xABCabcABCabcABCabcABCabcABCabcABCabcABCa",
	}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/facilitator/balance", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "key not configured")
}

func TestFacilitatorBalanceWithoutRPC(t *testing.T) {
	s := newTestServer(t, "https://x402.org/facilitator")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/facilitator/balance", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "RPC unavailable")
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0"},
		{"1000000000000000000", "1"},
		{"1500000000000000000", "1.5"},
		{"1000000000000000", "0.001"},
	}
	for _, tt := range tests {
		wei, ok := new(big.Int).SetString(tt.wei, 10)
		require.True(t, ok)
		assert.Equal(t, tt.want, formatEther(wei), "wei %s", tt.wei)
	}
}
