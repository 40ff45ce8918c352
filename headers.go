package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Protocol header names.
const (
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"
)

// The three protocol headers all use the same transport encoding:
// base64(JSON). Header values must survive transit as a single ASCII-safe
// HTTP header value, which rules out raw JSON.

// EncodePaymentRequired encodes a 402 challenge for the PAYMENT-REQUIRED header.
func EncodePaymentRequired(pr *PaymentRequired) (string, error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentRequired decodes a PAYMENT-REQUIRED header value.
func DecodePaymentRequired(header string) (*PaymentRequired, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid base64 encoding", err)
	}

	var pr PaymentRequired
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid JSON payload", err)
	}
	if len(pr.Accepts) == 0 {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "accepts is required", nil)
	}

	return &pr, nil
}

// EncodePaymentPayload encodes payment proof for the PAYMENT-SIGNATURE header.
func EncodePaymentPayload(payload *PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentPayload decodes a PAYMENT-SIGNATURE header value. Any
// transport or structural defect is reported as a MALFORMED_HEADER error.
func DecodePaymentPayload(header string) (*PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid base64 encoding", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid JSON payload", err)
	}

	if payload.X402Version < ProtocolVersion {
		return nil, NewPaymentError(ErrCodeMalformedHeader,
			fmt.Sprintf("PAYMENT-SIGNATURE requires x402Version >= %d, got %d", ProtocolVersion, payload.X402Version), nil)
	}
	if len(payload.Payload) == 0 {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "payload is required", nil)
	}

	return &payload, nil
}

// EncodeSettlement encodes a settlement receipt for the PAYMENT-RESPONSE header.
func EncodeSettlement(sr *SettleResult) (string, error) {
	data, err := json.Marshal(sr)
	if err != nil {
		return "", fmt.Errorf("marshal settle result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement decodes a PAYMENT-RESPONSE header value.
func DecodeSettlement(header string) (*SettleResult, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid base64 encoding", err)
	}

	var sr SettleResult
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedHeader, "invalid JSON payload", err)
	}

	return &sr, nil
}
