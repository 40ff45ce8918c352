package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/llmer/x402-demo"
)

// FacilitatorClient talks to a remote x402 facilitator service over HTTP.
// It implements x402.Facilitator.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewFacilitatorClient creates a facilitator client for the given base URL.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type facilitatorRequest struct {
	Payload      *x402.PaymentPayload      `json:"payload"`
	Requirements *x402.PaymentRequirements `json:"requirements"`
}

// Verify checks if a payment is valid via POST /v2/x402/verify.
func (c *FacilitatorClient) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.VerifyResult, error) {
	var result x402.VerifyResult
	if err := c.post(ctx, "/v2/x402/verify", &facilitatorRequest{Payload: payload, Requirements: requirements}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Settle executes the payment on-chain via POST /v2/x402/settle.
func (c *FacilitatorClient) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.SettleResult, error) {
	var result x402.SettleResult
	if err := c.post(ctx, "/v2/x402/settle", &facilitatorRequest{Payload: payload, Requirements: requirements}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Supported fetches supported kinds, extensions, and signers via GET /v2/x402/supported.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/x402/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("create supported request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call facilitator supported endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("facilitator supported returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var supported x402.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
		return nil, fmt.Errorf("decode supported response: %w", err)
	}

	return &supported, nil
}

// SignerAddress returns the facilitator's signing address for a network, as
// advertised by the supported endpoint.
func (c *FacilitatorClient) SignerAddress(ctx context.Context, network string) (string, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return "", err
	}
	addr, ok := supported.Signers[network]
	if !ok {
		return "", fmt.Errorf("facilitator has no signer for network %s", network)
	}
	return addr, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call facilitator %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("facilitator %s returned status %d: %s", path, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode facilitator %s response: %w", path, err)
	}

	return nil
}
