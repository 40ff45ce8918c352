package x402

import (
	"fmt"
	"time"
)

// DefaultMaxTimeout is how long payment requirements stay valid when the
// resource doesn't set its own window.
const DefaultMaxTimeout = 5 * time.Minute

// ResourceConfig describes one paid resource: what it is and what it costs.
// Exactly one scheme ("exact") is offered per resource in this system.
type ResourceConfig struct {
	// Path is the resource URL path (e.g. "/api/cowsays").
	Path string

	// Description is a human-readable summary shown in the challenge.
	Description string

	// MimeType of the resource being sold.
	MimeType string

	// Amount is the price in atomic units of Asset.
	Amount string

	// Network is the blockchain network in CAIP-2 format.
	Network string

	// Asset is the token contract address.
	Asset string

	// PayTo is the address that receives payment.
	PayTo string

	// MaxTimeout is the validity window for issued requirements.
	// Defaults to DefaultMaxTimeout.
	MaxTimeout time.Duration

	// Extra carries the EIP-712 domain for the exact EVM scheme.
	Extra *EIP712Domain
}

// Validate checks the resource configuration and fills defaults. It must
// pass before the resource is served; the gateway never derives addresses
// or requirements from an unvalidated config.
func (r *ResourceConfig) Validate() error {
	if r.Path == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "resource path is required", nil)
	}
	if r.Amount == "" {
		return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("amount is required for %s", r.Path), nil)
	}
	if r.Network == "" {
		return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("network is required for %s", r.Path), nil)
	}
	if r.Asset == "" {
		return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("asset is required for %s", r.Path), nil)
	}
	if r.PayTo == "" {
		return NewPaymentError(ErrCodeInvalidConfig, fmt.Sprintf("payTo is required for %s", r.Path), nil)
	}
	if r.MimeType == "" {
		r.MimeType = "application/json"
	}
	if r.MaxTimeout == 0 {
		r.MaxTimeout = DefaultMaxTimeout
	}
	return nil
}

// Requirements builds the payment requirements offered for this resource.
func (r *ResourceConfig) Requirements() *PaymentRequirements {
	return &PaymentRequirements{
		Scheme:            "exact",
		Network:           r.Network,
		Amount:            r.Amount,
		Asset:             r.Asset,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: int(r.MaxTimeout.Seconds()),
		Extra:             r.Extra,
	}
}

// Challenge builds the 402 challenge body for this resource.
func (r *ResourceConfig) Challenge() *PaymentRequired {
	return &PaymentRequired{
		X402Version: ProtocolVersion,
		Resource: ResourceInfo{
			URL:         r.Path,
			Description: r.Description,
			MimeType:    r.MimeType,
		},
		Accepts: []PaymentRequirements{*r.Requirements()},
	}
}
