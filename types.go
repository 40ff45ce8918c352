package x402

import (
	"context"
	"encoding/json"
	"time"
)

// ProtocolVersion is the x402 protocol version this package speaks.
const ProtocolVersion = 2

// EIP712Domain carries the signing-domain parameters the exact EVM scheme
// needs to build TransferWithAuthorization typed data. Other schemes extend
// the protocol by adding their own extra variant, not by widening this one.
type EIP712Domain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentRequirements describes what payment is required for a resource.
// Uses CAIP-2 network identifiers (e.g., "eip155:84532").
type PaymentRequirements struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`           // CAIP-2
	Amount            string        `json:"amount"`            // atomic units
	Asset             string        `json:"asset"`             // token contract address
	PayTo             string        `json:"payTo"`             // recipient address
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds,omitempty"`
	Extra             *EIP712Domain `json:"extra,omitempty"`
}

// ResourceInfo describes the protected resource inside a 402 challenge.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// PaymentRequired is the 402 challenge: the resource being sold and the
// ordered list of acceptable ways to pay for it. It is built fresh per
// request and never stored server-side.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Resource    ResourceInfo          `json:"resource"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the client-submitted proof of payment. Payload is
// scheme-specific and kept opaque here; evm.ParsePayload gives the typed
// view for the exact EVM scheme.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Accepted    PaymentRequirements `json:"accepted"`
	Payload     json.RawMessage     `json:"payload"`
}

// VerifyResult is the facilitator's judgment of a payment payload.
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResult is the outcome of an on-chain settlement attempt. It is also
// the wire form of the PAYMENT-RESPONSE header.
type SettleResult struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"` // CAIP-2
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Facilitator verifies payment authorizations and submits their on-chain
// settlement. Settlement has an external side effect that cannot be rolled
// back, so callers must attempt it at most once per payload.
type Facilitator interface {
	Verify(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*VerifyResult, error)
	Settle(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*SettleResult, error)
}

// SupportedKind is a scheme+network pair a facilitator can handle.
type SupportedKind struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"` // CAIP-2
}

// SupportedResponse is returned by a facilitator's supported endpoint.
type SupportedResponse struct {
	Kinds      []SupportedKind   `json:"kinds"`
	Extensions []string          `json:"extensions,omitempty"`
	Signers    map[string]string `json:"signers,omitempty"` // CAIP-2 network -> facilitator address
}

// PaymentContext carries settled-payment details to the protected handler.
type PaymentContext struct {
	Payer       string
	Amount      string
	Network     string // CAIP-2
	Transaction string
	SettledAt   time.Time
}

type contextKey string

const paymentContextKey contextKey = "x402-payment"

// WithPayment returns a context carrying the settled payment details.
func WithPayment(ctx context.Context, p *PaymentContext) context.Context {
	return context.WithValue(ctx, paymentContextKey, p)
}

// PaymentFromContext extracts settled payment details from the request context.
func PaymentFromContext(ctx context.Context) (*PaymentContext, bool) {
	p, ok := ctx.Value(paymentContextKey).(*PaymentContext)
	return p, ok
}
