// Package x402 implements the server side of the x402 payment protocol: a
// client probes a resource, receives machine-readable payment requirements in
// a 402 response, signs an off-chain payment authorization, and retries with
// proof of payment that a facilitator verifies and settles on-chain before
// the resource is released.
//
// The package provides the protocol data model, the header codec for the
// PAYMENT-REQUIRED, PAYMENT-SIGNATURE and PAYMENT-RESPONSE headers, and a
// Gateway that wraps plain http.Handlers with the challenge/response state
// machine. Scheme-specific code for the exact EVM scheme (EIP-3009
// transfer-with-authorization) lives in the evm subpackage.
package x402
