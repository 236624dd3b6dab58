package models

import (
	"fmt"
	"time"
)

// TeamID identifies a competing team. Assigned once, never changed.
type TeamID string

// ExchangeRatePolicy is the currency stance a team picks each round.
type ExchangeRatePolicy string

const (
	ExchangeRateUndervalue ExchangeRatePolicy = "undervalue"
	ExchangeRateMarket     ExchangeRatePolicy = "market"
	ExchangeRateOvervalue  ExchangeRatePolicy = "overvalue"
)

// Valid reports whether p is one of the known policies.
func (p ExchangeRatePolicy) Valid() bool {
	switch p {
	case ExchangeRateUndervalue, ExchangeRateMarket, ExchangeRateOvervalue:
		return true
	}
	return false
}

// ParseExchangeRatePolicy converts a wire value into a policy.
func ParseExchangeRatePolicy(s string) (ExchangeRatePolicy, error) {
	p := ExchangeRatePolicy(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown exchange rate policy %q", s)
	}
	return p, nil
}

// Decision bounds and defaults.
const (
	MinSavingsRate            = 0.01
	MaxSavingsRate            = 0.99
	DefaultSavingsRate        = 0.2
	DefaultExchangeRatePolicy = ExchangeRateMarket
)

// Well-known keys reported by the economic model.
const (
	MetricGDP          = "GDP"
	MetricCapital      = "Capital"
	MetricConsumption  = "Consumption"
	MetricLaborForce   = "Labor Force"
	MetricNetExports   = "Net Exports"
	MetricProductivity = "Productivity (TFP)"
	MetricHumanCapital = "Human Capital"
)

// EconomicState is the engine's snapshot for one team. The coordinator copies it
// without interpreting anything beyond Consumption for scoring.
type EconomicState map[string]float64

// Clone copies the snapshot.
func (s EconomicState) Clone() EconomicState {
	if s == nil {
		return nil
	}
	out := make(EconomicState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RoundRecord is a team's decision and resulting state for one completed round.
type RoundRecord struct {
	Round              int                `json:"round"`
	SavingsRate        float64            `json:"savingsRate"`
	ExchangeRatePolicy ExchangeRatePolicy `json:"exchangeRatePolicy"`
	State              EconomicState      `json:"state"`
	RecordedAt         time.Time          `json:"recordedAt"`
}

// Team is one competing group.
type Team struct {
	ID                 TeamID             `json:"id"`
	Name               string             `json:"name"`
	SavingsRate        float64            `json:"savingsRate"`
	ExchangeRatePolicy ExchangeRatePolicy `json:"exchangeRatePolicy"`
	EconomicState      EconomicState      `json:"economicState,omitempty"`
	History            []RoundRecord      `json:"history"`
	Score              float64            `json:"score"`
	Active             bool               `json:"active"`
}

// NewTeam returns a team carrying the default decision.
func NewTeam(id TeamID, name string) *Team {
	if name == "" {
		name = string(id)
	}
	return &Team{
		ID:                 id,
		Name:               name,
		SavingsRate:        DefaultSavingsRate,
		ExchangeRatePolicy: DefaultExchangeRatePolicy,
		History:            []RoundRecord{},
		Active:             true,
	}
}

// Clone returns a deep copy of t.
func (t *Team) Clone() *Team {
	out := *t
	out.EconomicState = t.EconomicState.Clone()
	out.History = make([]RoundRecord, len(t.History))
	for i, r := range t.History {
		r.State = r.State.Clone()
		out.History[i] = r
	}
	return &out
}

// TotalConsumption sums Consumption across the recorded rounds.
func (t *Team) TotalConsumption() float64 {
	var total float64
	for _, r := range t.History {
		total += r.State[MetricConsumption]
	}
	return total
}
