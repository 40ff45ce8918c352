// Package evm implements the exact EVM payment scheme: EIP-3009
// transfer-with-authorization payloads, a client for a remote x402
// facilitator service, and EIP-191 ownership-proof signing.
package evm

import (
	"encoding/json"
	"fmt"
)

// Payload is the EVM-specific payment payload, following the EIP-3009
// transferWithAuthorization specification.
type Payload struct {
	Signature     string         `json:"signature"`
	Authorization *Authorization `json:"authorization"`
}

// Authorization contains the EIP-3009 authorization parameters.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ParsePayload decodes the opaque scheme payload into its EVM form.
func ParsePayload(raw json.RawMessage) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse EVM payload: %w", err)
	}
	if p.Signature == "" {
		return nil, fmt.Errorf("EVM payload missing signature")
	}
	if p.Authorization == nil {
		return nil, fmt.Errorf("EVM payload missing authorization")
	}
	if p.Authorization.From == "" {
		return nil, fmt.Errorf("EVM authorization missing from address")
	}
	return &p, nil
}
