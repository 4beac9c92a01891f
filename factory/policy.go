/*
Package factory builds the commercial Policy from configuration.

PURPOSE:
  Converts JSON or YAML policy definitions into engine.Policy so the
  commission rate, currency and cancellation behaviour can change without a
  code change. Missing fields fall back to engine.DefaultPolicy.

JSON SCHEMA:
  {
    "commission_rate": 0.10,
    "currency": "LKR",
    "precision": 2,
    "cancellation_mode": "hold"
  }

YAML (inside the service config file):
  policy:
    commission_rate: 0.10
    currency: LKR
    precision: 2
    cancellation_mode: refund

USAGE:
  f := factory.NewPolicyFactory()
  policy, err := f.ParsePolicy(`{"commission_rate": 0.12}`)

SEE ALSO:
  - engine/policy.go: Policy type definition
  - config/config.go: Embeds PolicyJSON in the service config
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/stay-engine/engine"
)

// =============================================================================
// SCHEMA
// =============================================================================

// PolicyJSON is the serialized form of a policy. Pointer fields distinguish
// "absent" from an explicit zero.
type PolicyJSON struct {
	CommissionRate   *float64 `json:"commission_rate,omitempty" yaml:"commission_rate,omitempty"`
	Currency         string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	Precision        *int32   `json:"precision,omitempty" yaml:"precision,omitempty"`
	CancellationMode string   `json:"cancellation_mode,omitempty" yaml:"cancellation_mode,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON document.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (engine.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return engine.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicyYAML parses a YAML document.
func (f *PolicyFactory) ParsePolicyYAML(doc []byte) (engine.Policy, error) {
	var pj PolicyJSON
	if err := yaml.Unmarshal(doc, &pj); err != nil {
		return engine.Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON applies pj over the default policy and validates the result.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (engine.Policy, error) {
	policy := engine.DefaultPolicy()

	if pj.CommissionRate != nil {
		policy.CommissionRate = decimal.NewFromFloat(*pj.CommissionRate)
	}
	if pj.Currency != "" {
		policy.Currency = engine.Currency(strings.ToUpper(strings.TrimSpace(pj.Currency)))
	}
	if pj.Precision != nil {
		policy.Precision = *pj.Precision
	}
	if pj.CancellationMode != "" {
		policy.CancellationMode = parseCancellationMode(pj.CancellationMode)
	}

	if err := policy.Validate(); err != nil {
		return engine.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return policy, nil
}

// ToJSON converts a Policy back to its serialized form.
func (f *PolicyFactory) ToJSON(policy engine.Policy) PolicyJSON {
	rate, _ := policy.CommissionRate.Float64()
	precision := policy.Precision
	return PolicyJSON{
		CommissionRate:   &rate,
		Currency:         string(policy.Currency),
		Precision:        &precision,
		CancellationMode: string(policy.CancellationMode),
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parseCancellationMode accepts a few spellings; anything unknown is passed
// through so Validate reports it.
func parseCancellationMode(s string) engine.CancellationMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hold", "keep", "none":
		return engine.CancelHold
	case "refund", "reverse":
		return engine.CancelRefund
	default:
		return engine.CancellationMode(s)
	}
}
