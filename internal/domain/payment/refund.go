package payment

import (
	"context"
	"fmt"
	"time"
)

// RefundError is an external-channel failure: the provider rejected or
// could not process the refund. It is distinguishable from domain-rule
// violations so callers can retry or abandon without mistaking it for a
// validation bug.
type RefundError struct {
	Channel Channel
	Reason  string
	Err     error
}

// Error implements the error interface
func (e *RefundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s refund failed: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s refund failed: %s", e.Channel, e.Reason)
}

// Unwrap returns the underlying provider error
func (e *RefundError) Unwrap() error {
	return e.Err
}

// NewRefundError creates a new refund error
func NewRefundError(channel Channel, reason string, err error) *RefundError {
	return &RefundError{Channel: channel, Reason: reason, Err: err}
}

// Refunder reverses a payment at its provider. On success it returns a
// new negative-amount payment on the same channel, matched to no
// purchase. Failures are reported as *RefundError.
type Refunder interface {
	Refund(ctx context.Context, original *Payment) (*Payment, error)
}

// RefunderRegistry dispatches refunds to the channel-specific refunder
type RefunderRegistry struct {
	refunders map[Channel]Refunder
}

// NewRefunderRegistry creates an empty registry
func NewRefunderRegistry() *RefunderRegistry {
	return &RefunderRegistry{refunders: make(map[Channel]Refunder)}
}

// Register installs a refunder for a channel
func (r *RefunderRegistry) Register(channel Channel, refunder Refunder) {
	r.refunders[channel] = refunder
}

// For returns the refunder for a channel, or nil when the channel does
// not support refunds
func (r *RefunderRegistry) For(channel Channel) Refunder {
	return r.refunders[channel]
}

// NewRefundPayment builds the negative mirror payment a successful refund
// produces. Channel implementations attach their own provider reference
// afterwards.
func NewRefundPayment(original *Payment, reference string) (*Payment, error) {
	opts := []Option{WithBuyerDescr(original.BuyerDescr)}
	if reference != "" || original.Gateway != nil {
		details := GatewayDetails{Reference: reference, Type: "refund"}
		if original.Gateway != nil && reference == "" {
			details.Reference = original.Gateway.Reference
		}
		opts = append(opts, WithGatewayDetails(details))
	}
	return NewPayment(
		original.OrgID,
		original.Channel,
		original.ProviderID,
		original.Amount.Neg(),
		time.Now(),
		opts...,
	)
}

// SimulatorRefunder approves every refund without contacting any
// provider, for test organizations
type SimulatorRefunder struct{}

// Refund implements Refunder
func (SimulatorRefunder) Refund(ctx context.Context, original *Payment) (*Payment, error) {
	return NewRefundPayment(original, "")
}
