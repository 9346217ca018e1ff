// Package status holds the canonical order-state vocabulary and the
// per-provider normalization of raw panel status payloads into it.
package status

import (
	"strconv"
	"strings"
)

type Canonical string

const (
	Pending    Canonical = "pending"
	InProgress Canonical = "in progress"
	Processing Canonical = "processing"
	Partial    Canonical = "partial"
	Completed  Canonical = "completed"
	Canceled   Canonical = "canceled"
	Refunded   Canonical = "refunded"
)

// IsTerminal reports whether no further provider-observed transition is
// expected. Refunded additionally can never be overwritten by a provider.
func (c Canonical) IsTerminal() bool {
	return c == Completed || c == Refunded
}

// IsRefundTrigger reports whether observing this status should invoke the
// settlement engine.
func (c Canonical) IsRefundTrigger() bool {
	return c == Canceled
}

// codeTables maps provider keys to their small-integer status codes. Panels
// that speak codes are consulted here before any string matching.
var codeTables = map[string]map[int]Canonical{
	"panelzone": {
		0: Pending,
		1: Processing,
		2: Completed,
		3: Partial,
		4: Canceled,
		5: Refunded,
	},
	"primesmm": {
		0: Pending,
		1: Processing,
		2: Completed,
		3: Partial,
		4: Canceled,
		5: Refunded,
	},
}

// exactSynonyms covers the vocabulary itself plus the dialect variants the
// panels have been observed to emit.
var exactSynonyms = map[string]Canonical{
	"pending":             Pending,
	"queued":              Pending,
	"awaiting":            Pending,
	"in progress":         InProgress,
	"in-progress":         InProgress,
	"inprogress":          InProgress,
	"processing":          Processing,
	"partial":             Partial,
	"partially completed": Partial,
	"completed":           Completed,
	"complete":            Completed,
	"done":                Completed,
	"success":             Completed,
	"canceled":            Canceled,
	"cancelled":           Canceled,
	"cancel":              Canceled,
	"refunded":            Refunded,
	"refund":              Refunded,
}

// containsRules is an ordered containment fallback. Multi-word phrases come
// first so "IN PROGRESS (partial)" resolves to in progress, not partial.
var containsRules = []struct {
	token  string
	result Canonical
}{
	{"in progress", InProgress},
	{"in-progress", InProgress},
	{"inprogress", InProgress},
	{"refund", Refunded},
	{"cancel", Canceled},
	{"complet", Completed},
	{"partial", Partial},
	{"process", Processing},
	{"pending", Pending},
}

// Normalize maps a raw provider status value onto the canonical vocabulary.
// It is a total function: any input, including nil, empty strings and
// unrecognized values, yields (_, false) rather than an error, so an unknown
// provider status can never corrupt order state.
func Normalize(providerKey string, raw any) (Canonical, bool) {
	s, hasString := coerceString(raw)
	if !hasString {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}

	if table, ok := codeTables[providerKey]; ok {
		if code, err := strconv.Atoi(s); err == nil {
			if c, ok := table[code]; ok {
				return c, true
			}
		}
	}

	if c, ok := exactSynonyms[s]; ok {
		return c, true
	}

	for _, rule := range containsRules {
		if strings.Contains(s, rule.token) {
			return rule.result, true
		}
	}

	return "", false
}

func coerceString(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float64:
		// JSON numbers decode as float64; panel codes are small integers.
		return strconv.FormatInt(int64(v), 10), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return "", false
	default:
		return "", false
	}
}
