package server

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	x402 "github.com/llmer/x402-demo"
	"github.com/llmer/x402-demo/evm"
)

// handleCowsays produces the paid cowsay resource. The gateway has already
// settled payment by the time this runs.
func (s *Server) handleCowsays(w http.ResponseWriter, r *http.Request) {
	payment, _ := x402.PaymentFromContext(r.Context())

	resp := struct {
		Cowsay  string `json:"cowsay"`
		Tx      string `json:"tx,omitempty"`
		Network string `json:"network,omitempty"`
	}{
		Cowsay: cowsay(randomQuote()),
	}
	if payment != nil {
		resp.Tx = payment.Transaction
		resp.Network = payment.Network
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleQuote produces the paid quote resource.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	payment, _ := x402.PaymentFromContext(r.Context())

	resp := struct {
		Quote   string `json:"quote"`
		Tx      string `json:"tx,omitempty"`
		Network string `json:"network,omitempty"`
	}{
		Quote: randomQuote(),
	}
	if payment != nil {
		resp.Tx = payment.Transaction
		resp.Network = payment.Network
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWellKnown serves the discovery document built at startup.
func (s *Server) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(s.discovery)
}

// handleHealth reports liveness plus the observable state of the shared
// components: listener load and whether admission control is enforced.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.isReady.Load() {
		status = "draining"
		code = http.StatusServiceUnavailable
	}

	limiterMode := "enabled"
	if !s.limiter.Enabled() {
		limiterMode = "disabled"
	}

	writeJSON(w, code, map[string]any{
		"status":      status,
		"listeners":   s.bus.ListenerCount(),
		"rateLimiter": limiterMode,
	})
}

// handleFacilitatorSupported proxies the facilitator's supported kinds.
func (s *Server) handleFacilitatorSupported(w http.ResponseWriter, r *http.Request) {
	supported, err := s.facilitator.Supported(r.Context())
	if err != nil {
		s.log.Warn("facilitator supported call failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Facilitator unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, supported)
}

// handleFacilitatorVerify forwards a {payload, requirements} pair to the
// facilitator's verify endpoint without settling anything.
func (s *Server) handleFacilitatorVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload      *x402.PaymentPayload      `json:"payload"`
		Requirements *x402.PaymentRequirements `json:"requirements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == nil || req.Requirements == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload and requirements are required"})
		return
	}

	result, err := s.facilitator.Verify(r.Context(), req.Payload, req.Requirements)
	if err != nil {
		s.log.Warn("facilitator verify call failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Facilitator unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleFacilitatorBalance reports the facilitator address and its native
// balance in ether.
func (s *Server) handleFacilitatorBalance(w http.ResponseWriter, r *http.Request) {
	if s.key == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Facilitator key not configured"})
		return
	}

	client, err := s.dialEth()
	if err != nil {
		s.log.Warn("rpc dial failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "RPC unavailable"})
		return
	}

	address := evm.Address(s.key)
	wei, err := client.BalanceAt(r.Context(), common.HexToAddress(address), nil)
	if err != nil {
		s.log.Warn("balance query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "RPC unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"address": address,
		"balance": formatEther(wei),
	})
}

func (s *Server) dialEth() (*ethclient.Client, error) {
	s.ethOnce.Do(func() {
		if s.cfg.RPCURL == "" {
			s.ethErr = fmt.Errorf("rpc url not configured")
			return
		}
		s.ethClient, s.ethErr = ethclient.Dial(s.cfg.RPCURL)
	})
	return s.ethClient, s.ethErr
}

func formatEther(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', -1)
}

// discoveryDocument is the /.well-known/x402 body.
type discoveryDocument struct {
	Version         int                  `json:"version"`
	Resources       []string             `json:"resources"`
	OwnershipProofs []evm.OwnershipProof `json:"ownershipProofs,omitempty"`
	Instructions    string               `json:"instructions"`
}

// buildDiscovery renders the discovery document once, at startup. The
// ownership proof is best-effort: the document is still valid without one.
func buildDiscovery(origin string, key *ecdsa.PrivateKey) ([]byte, error) {
	doc := discoveryDocument{
		Version: 1,
		Resources: []string{
			origin + "/api/cowsays",
			origin + "/api/quote",
		},
		Instructions: "## x402 demo · Base Sepolia\n\n" +
			"Pay 0.001 USDC per request to `/api/cowsays`.\n\n" +
			"Requirements: MetaMask on Base Sepolia + test USDC from https://faucet.circle.com",
	}

	if key != nil {
		proof, err := evm.SignOwnership(key, origin, Network)
		if err == nil {
			doc.OwnershipProofs = []evm.OwnershipProof{*proof}
		}
	}

	return json.Marshal(doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
