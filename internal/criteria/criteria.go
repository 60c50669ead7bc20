// Package criteria decides whether one ingested job record satisfies one
// task's criteria set. Evaluation is pure: the same inputs always produce the
// same result, which is what makes redelivered job records safe to re-run.
package criteria

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
)

type ruleKind int

const (
	ruleExactMatch ruleKind = iota
	ruleLowerBound
	ruleUpperBound
)

type rule struct {
	kind ruleKind
	str  func(models.JobRecord) string
	num  func(models.JobRecord) float64
}

// The closed rule set. A criteria key outside this table fails evaluation
// rather than silently passing.
var rules = map[string]rule{
	"sourceCity":         {kind: ruleExactMatch, str: func(j models.JobRecord) string { return j.SourceCity }},
	"sourceCompany":      {kind: ruleExactMatch, str: func(j models.JobRecord) string { return j.SourceCompany }},
	"destinationCity":    {kind: ruleExactMatch, str: func(j models.JobRecord) string { return j.DestinationCity }},
	"destinationCompany": {kind: ruleExactMatch, str: func(j models.JobRecord) string { return j.DestinationCompany }},
	"cargoName":          {kind: ruleExactMatch, str: func(j models.JobRecord) string { return j.CargoName }},

	"minDistance":    {kind: ruleLowerBound, num: func(j models.JobRecord) float64 { return j.DistanceKm }},
	"minRevenue":     {kind: ruleLowerBound, num: func(j models.JobRecord) float64 { return j.Revenue }},
	"minAvgSpeedKmh": {kind: ruleLowerBound, num: func(j models.JobRecord) float64 { return j.AvgSpeedKmh }},

	"maxDamagePct":            {kind: ruleUpperBound, num: worstDamage},
	"maxTopSpeedKmh":          {kind: ruleUpperBound, num: func(j models.JobRecord) float64 { return j.TopSpeedKmh }},
	"maxAvgSpeedKmh":          {kind: ruleUpperBound, num: func(j models.JobRecord) float64 { return j.AvgSpeedKmh }},
	"maxTruckDamagePercent":   {kind: ruleUpperBound, num: func(j models.JobRecord) float64 { return j.TruckDamagePercent }},
	"maxTrailerDamagePercent": {kind: ruleUpperBound, num: func(j models.JobRecord) float64 { return j.TrailerDamagePercent }},
}

func worstDamage(j models.JobRecord) float64 {
	if j.TruckDamagePercent > j.TrailerDamagePercent {
		return j.TruckDamagePercent
	}
	return j.TrailerDamagePercent
}

// Evaluate reports whether the job satisfies every criterion present in the
// map (logical AND). Absent keys are unconstrained; a nil or empty-string
// criterion value is a wildcard. Everything else fails closed: unknown keys
// and malformed bound values never pass.
func Evaluate(criteria map[string]any, job models.JobRecord) bool {
	for key, raw := range criteria {
		if raw == nil {
			continue
		}
		r, known := rules[key]
		if !known {
			return false
		}
		switch r.kind {
		case ruleExactMatch:
			want, ok := raw.(string)
			if !ok {
				return false
			}
			if strings.TrimSpace(want) == "" {
				continue
			}
			if Normalize(want) != Normalize(r.str(job)) {
				return false
			}
		case ruleLowerBound:
			bound, ok := toFloat(raw)
			if !ok {
				return false
			}
			if r.num(job) < bound {
				return false
			}
		case ruleUpperBound:
			bound, ok := toFloat(raw)
			if !ok {
				return false
			}
			if r.num(job) > bound {
				return false
			}
		}
	}
	return true
}

// Validate rejects criteria that could never evaluate to true: unknown keys,
// non-string values on match rules and non-numeric bounds. Template authoring
// runs this so mistakes surface at save time instead of match time.
func Validate(criteria map[string]any) error {
	for key, raw := range criteria {
		if raw == nil {
			continue
		}
		r, known := rules[key]
		if !known {
			return fmt.Errorf("unknown criteria key %q", key)
		}
		switch r.kind {
		case ruleExactMatch:
			if _, ok := raw.(string); !ok {
				return fmt.Errorf("criteria key %q requires a string value", key)
			}
		case ruleLowerBound, ruleUpperBound:
			if _, ok := toFloat(raw); !ok {
				return fmt.Errorf("criteria key %q requires a numeric value", key)
			}
		}
	}
	return nil
}

// Decode parses a stored criteria snapshot. A nil or empty payload means no
// constraints.
func Decode(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var criteria map[string]any
	if err := json.Unmarshal(raw, &criteria); err != nil {
		return nil, err
	}
	return criteria, nil
}

// Normalize lowercases the value and collapses every run of non-alphanumeric
// characters into a single space, so "Frozen-Fish " and "frozen fish" compare
// equal. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(value string) string {
	lowered := strings.ToLower(value)
	var b strings.Builder
	b.Grow(len(lowered))
	pendingSpace := false
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
