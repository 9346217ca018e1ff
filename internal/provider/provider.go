// Package provider models the upstream SMM panels: their identities, their
// order-reference encodings, and the HTTP clients used to ask them for order
// status.
package provider

import (
	"strconv"
	"strings"

	"boostpanel/internal/models"
)

type Key string

const (
	Smmstone  Key = "smmstone"
	Panelzone Key = "panelzone"
	Boostline Key = "boostline"
	Primesmm  Key = "primesmm"
)

// Priority lists the panels newest-integration-first. When an order somehow
// carries more than one active reference, the first active one in this order
// is polled and the rest are ignored for the cycle.
func Priority() []Key {
	return []Key{Primesmm, Boostline, Panelzone, Smmstone}
}

// sentinels are the per-panel "never placed here" marker values, compared
// case-insensitively.
var sentinels = map[Key][]string{
	Smmstone:  {"not_placed"},
	Panelzone: {"0", "none"},
	Boostline: {"unassigned"},
	Primesmm:  {"none"},
}

// numericRef marks panels whose order reference must parse to a positive
// integer to count as active.
var numericRef = map[Key]bool{
	Panelzone: true,
	Primesmm:  true,
}

func refColumn(o *models.Order, key Key) string {
	switch key {
	case Smmstone:
		return o.SmmstoneOrderID
	case Panelzone:
		return o.PanelzoneOrderID
	case Boostline:
		return o.BoostlineOrderID
	case Primesmm:
		return o.PrimesmmOrderID
	default:
		return ""
	}
}

// IsActiveRef applies the active-reference rule: non-empty, not the panel's
// sentinel, numeric panels must hold a positive integer, and a reference that
// merely echoes the order's own id (a default-value artifact) never counts.
func IsActiveRef(o *models.Order, key Key) bool {
	if o == nil {
		return false
	}
	ref := strings.TrimSpace(refColumn(o, key))
	if ref == "" {
		return false
	}
	for _, s := range sentinels[key] {
		if strings.EqualFold(ref, s) {
			return false
		}
	}
	if strings.EqualFold(ref, strings.TrimSpace(o.ID)) {
		return false
	}
	if numericRef[key] {
		n, err := strconv.ParseInt(ref, 10, 64)
		if err != nil || n <= 0 {
			return false
		}
	}
	return true
}

// ResolveActiveRef picks the single panel to poll for this order, by
// priority. ok is false when no reference is active.
func ResolveActiveRef(o *models.Order) (key Key, ref string, ok bool) {
	if o == nil {
		return "", "", false
	}
	for _, k := range Priority() {
		if IsActiveRef(o, k) {
			return k, strings.TrimSpace(refColumn(o, k)), true
		}
	}
	return "", "", false
}
