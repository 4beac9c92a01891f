/*
policy.go - Commercial rules applied to every booking

PURPOSE:
  A Policy fixes the numbers the lifecycle manager uses when it moves money:
  the platform commission rate, the settlement currency and its precision,
  and what happens to escrowed funds when a booking is cancelled.

CANCELLATION MODES:
  hold:
    - Cancelling only changes status and frees the nights
    - The escrow credit stays on the books; the auditor reports it as
      unreconciled escrow
    - Matches how the platform has always behaved

  refund:
    - Cancelling also posts a refund entry escrow_account → customer_wallet
      for the booking total, so escrow returns to zero for that booking

COMMISSION:
  commission = round(total × CommissionRate, Precision)
  payout     = total − commission

  Payout is derived from the rounded commission so the two always sum to the
  total exactly.

SEE ALSO:
  - factory/policy.go: Builds a Policy from JSON/YAML configuration
  - booking.go: Applies the policy on Complete and Cancel
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CancellationMode string

const (
	CancelHold   CancellationMode = "hold"
	CancelRefund CancellationMode = "refund"
)

type Policy struct {
	CommissionRate   decimal.Decimal
	Currency         Currency
	Precision        int32
	CancellationMode CancellationMode
}

// DefaultPolicy is a 10% commission in LKR with cancelled funds held in escrow.
func DefaultPolicy() Policy {
	return Policy{
		CommissionRate:   decimal.NewFromFloat(0.10),
		Currency:         CurrencyLKR,
		Precision:        2,
		CancellationMode: CancelHold,
	}
}

func (p Policy) Validate() error {
	if p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return &ValidationError{Field: "commission_rate", Message: fmt.Sprintf("must be within [0, 1], got %s", p.CommissionRate)}
	}
	if p.Currency == "" {
		return &ValidationError{Field: "currency", Message: "required"}
	}
	if p.Precision < 0 {
		return &ValidationError{Field: "precision", Message: "must not be negative"}
	}
	switch p.CancellationMode {
	case CancelHold, CancelRefund:
	default:
		return &ValidationError{Field: "cancellation_mode", Message: fmt.Sprintf("unknown mode %q", p.CancellationMode)}
	}
	return nil
}

// Split divides a booking total into the platform commission and the owner payout.
func (p Policy) Split(total decimal.Decimal) (commission, payout decimal.Decimal) {
	commission = total.Mul(p.CommissionRate).Round(p.Precision)
	payout = total.Sub(commission)
	return commission, payout
}
