package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/llmer/x402-demo"
	"github.com/llmer/x402-demo/events"
	"github.com/llmer/x402-demo/evm"
)

// fakeFacilitator serves the facilitator wire protocol with canned answers.
func fakeFacilitator(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/x402/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.VerifyResult{IsValid: true, Payer: "0xPayer"})
	})
	mux.HandleFunc("POST /v2/x402/settle", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.SettleResult{
			Success:     true,
			Transaction: "0xdeadbeef",
			Network:     Network,
			Payer:       "0xPayer",
		})
	})
	mux.HandleFunc("GET /v2/x402/supported", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.SupportedResponse{
			Kinds:   []x402.SupportedKind{{Scheme: "exact", Network: Network}},
			Signers: map[string]string{Network: "0xFacilitator"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func newTestServer(t *testing.T, facilitatorURL string) *Server {
	t.Helper()
	s, err := New(Config{
		ListenAddr:     ":0",
		SiteURL:        "https://x402.llmer.com",
		FacilitatorURL: facilitatorURL,
		PrivateKey:     testKeyHex(t),
	}, nil)
	require.NoError(t, err)
	return s
}

func signatureHeader(t *testing.T) string {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"signature": "0xsig",
		"authorization": map[string]any{
			"from":        "0xPayer",
			"to":          "0xRecipient",
			"value":       Price,
			"validAfter":  0,
			"validBefore": 9999999999,
			"nonce":       "0xnonce",
		},
	})
	require.NoError(t, err)

	header, err := x402.EncodePaymentPayload(&x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     inner,
	})
	require.NoError(t, err)
	return header
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{
		ListenAddr:     ":0",
		SiteURL:        "https://x402.llmer.com",
		FacilitatorURL: "https://x402.org/facilitator",
		PayTo:          "0xABCabcABCabcABCabcABCabcABCabcABCabcABCa",
	}

	_, err := New(base, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listen", func(c *Config) { c.ListenAddr = "" }},
		{"missing facilitator", func(c *Config) { c.FacilitatorURL = "" }},
		{"missing payTo and key", func(c *Config) { c.PayTo = "" }},
		{"bad site url", func(c *Config) { c.SiteURL = "not a url at all ://" }},
		{"bad private key", func(c *Config) { c.PayTo = ""; c.PrivateKey = "zzz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestPayToDefaultsToFacilitatorAddress(t *testing.T) {
	keyHex := testKeyHex(t)
	s, err := New(Config{
		ListenAddr:     ":0",
		SiteURL:        "https://x402.llmer.com",
		FacilitatorURL: "https://x402.org/facilitator",
		PrivateKey:     keyHex,
	}, nil)
	require.NoError(t, err)

	key, err := evm.ParsePrivateKey(keyHex)
	require.NoError(t, err)
	assert.Equal(t, evm.Address(key), s.payTo)
}

func TestParseOrigin(t *testing.T) {
	origin, err := parseOrigin("https://x402.llmer.com/some/path")
	require.NoError(t, err)
	assert.Equal(t, "https://x402.llmer.com", origin)

	_, err = parseOrigin("")
	assert.Error(t, err)

	_, err = parseOrigin("no-scheme.example")
	assert.Error(t, err)
}

// TestPaymentFlow walks the full protocol: probe, challenge, pay, fulfil.
func TestPaymentFlow(t *testing.T) {
	s := newTestServer(t, fakeFacilitator(t).URL)

	// Probe: no proof header yields the challenge.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cowsays", nil))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	challenge, err := x402.DecodePaymentRequired(rec.Header().Get(x402.HeaderPaymentRequired))
	require.NoError(t, err)
	require.Len(t, challenge.Accepts, 1)
	accept := challenge.Accepts[0]
	assert.Equal(t, "exact", accept.Scheme)
	assert.Equal(t, Price, accept.Amount)
	assert.Equal(t, Network, accept.Network)
	assert.Equal(t, USDCBaseSepolia, accept.Asset)
	assert.Equal(t, s.payTo, accept.PayTo)
	require.NotNil(t, accept.Extra)
	assert.Equal(t, "USDC", accept.Extra.Name)

	// Retry with proof: verify, settle, fulfil.
	req := httptest.NewRequest(http.MethodGet, "/api/cowsays", nil)
	req.Header.Set(x402.HeaderPaymentSignature, signatureHeader(t))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cowsay  string `json:"cowsay"`
		Tx      string `json:"tx"`
		Network string `json:"network"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Cowsay, "(oo)")
	assert.Equal(t, "0xdeadbeef", body.Tx)
	assert.Equal(t, Network, body.Network)

	receipt, err := x402.DecodeSettlement(rec.Header().Get(x402.HeaderPaymentResponse))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xdeadbeef", receipt.Transaction)

	// Exactly one probe and one paid event were recorded.
	recent := s.Bus().Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, events.TypeProbe, recent[0].Type)
	assert.Equal(t, events.TypePaid, recent[1].Type)
	assert.Equal(t, "0xdeadbeef", recent[1].Tx)
	assert.Equal(t, "0xPayer", recent[1].From)
}
