package x402

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmer/x402-demo/events"
)

// Gateway turns plain handlers into pay-per-request resources. Each request
// runs the challenge/response state machine exactly once: an unauthenticated
// request gets a 402 challenge; an authenticated one gets at most one verify
// and, only if valid, at most one settle. Settlement is never retried here —
// a failed settlement requires the client to submit a fresh payload.
type Gateway struct {
	facilitator Facilitator
	bus         *events.Bus
	log         *zap.Logger
}

// NewGateway creates a gateway backed by the given facilitator and event bus.
func NewGateway(facilitator Facilitator, bus *events.Bus, log *zap.Logger) *Gateway {
	if facilitator == nil {
		panic("x402: facilitator is required")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{facilitator: facilitator, bus: bus, log: log}
}

// Protect wraps next so it is only reached after a settled payment for res.
// The resource config must validate; an invalid config is a wiring bug and
// panics at composition time, before any request is served.
func (g *Gateway) Protect(res ResourceConfig, next http.Handler) http.Handler {
	if err := res.Validate(); err != nil {
		panic(fmt.Sprintf("x402: invalid resource config: %v", err))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requirements := res.Requirements()
		eventID := uuid.NewString()

		header := r.Header.Get(HeaderPaymentSignature)
		if header == "" {
			g.emit(events.Event{ID: eventID, Type: events.TypeProbe})
			g.sendChallenge(w, &res)
			return
		}

		payload, err := DecodePaymentPayload(header)
		if err != nil {
			g.emit(events.Event{ID: eventID, Type: events.TypeFailed, Err: "Invalid PAYMENT-SIGNATURE header"})
			sendError(w, http.StatusBadRequest, "Invalid PAYMENT-SIGNATURE header")
			return
		}

		verifyResult, err := g.facilitator.Verify(ctx, payload, requirements)
		if err != nil {
			g.log.Warn("facilitator verify call failed", zap.String("resource", res.Path), zap.Error(err))
			g.emit(events.Event{ID: eventID, Type: events.TypeFailed, Err: "Payment verification error"})
			sendError(w, http.StatusInternalServerError, "Payment verification error")
			return
		}

		if !verifyResult.IsValid {
			reason := verifyResult.InvalidReason
			if reason == "" {
				reason = "Payment verification failed"
			}
			g.emit(events.Event{ID: eventID, Type: events.TypeFailed, Err: reason})
			// A policy 402, not a challenge: no PAYMENT-REQUIRED header, so the
			// client fixes the payment instead of re-probing.
			sendError(w, http.StatusPaymentRequired, reason)
			return
		}

		settleResult, err := g.facilitator.Settle(ctx, payload, requirements)
		if err != nil {
			g.log.Warn("facilitator settle call failed", zap.String("resource", res.Path), zap.Error(err))
			g.emit(events.Event{ID: eventID, Type: events.TypeFailed, Err: "Payment settlement error"})
			sendError(w, http.StatusInternalServerError, "Payment settlement error")
			return
		}

		if !settleResult.Success {
			reason := settleResult.ErrorReason
			if reason == "" {
				reason = "Payment settlement failed"
			}
			g.emit(events.Event{ID: eventID, Type: events.TypeFailed, Err: reason})
			sendError(w, http.StatusPaymentRequired, reason)
			return
		}

		payer := settleResult.Payer
		if payer == "" {
			payer = payerFromPayload(payload)
		}

		g.emit(events.Event{
			ID:   eventID,
			Type: events.TypePaid,
			From: payer,
			Tx:   settleResult.Transaction,
		})

		receipt, err := EncodeSettlement(settleResult)
		if err == nil {
			w.Header().Set(HeaderPaymentResponse, receipt)
		}

		ctx = WithPayment(ctx, &PaymentContext{
			Payer:       payer,
			Amount:      requirements.Amount,
			Network:     settleResult.Network,
			Transaction: settleResult.Transaction,
			SettledAt:   time.Now(),
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gateway) emit(e events.Event) {
	if e.TS == 0 {
		e.TS = time.Now().UnixMilli()
	}
	g.bus.Emit(e)
}

func (g *Gateway) sendChallenge(w http.ResponseWriter, res *ResourceConfig) {
	challenge := res.Challenge()

	encoded, err := EncodePaymentRequired(challenge)
	if err != nil {
		g.log.Error("encode challenge failed", zap.String("resource", res.Path), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	w.Header().Set(HeaderPaymentRequired, encoded)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(challenge)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// payerFromPayload extracts the payer address from an exact-scheme
// authorization, best-effort. Returns "" when the payload has another shape.
func payerFromPayload(payload *PaymentPayload) string {
	var p struct {
		Authorization struct {
			From string `json:"from"`
		} `json:"authorization"`
	}
	if err := json.Unmarshal(payload.Payload, &p); err != nil {
		return ""
	}
	return p.Authorization.From
}
