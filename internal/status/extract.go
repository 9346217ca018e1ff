package status

import (
	"encoding/json"
	"strings"
)

// The panels do not agree on an envelope shape: some return {"status": ...},
// some wrap it ({"data": {"status": ...}}), some return an array of order
// rows. Extraction is an explicit ordered pipeline of probes so each shape is
// testable on its own; the bounded-depth search is the last resort.

const maxSearchDepth = 3

var statusFieldNames = []string{"status", "Status", "STATUS"}

var wrapperKeys = []string{"data", "result", "order", "response", "payload"}

type extractor func(any) (any, bool)

var extractors = []extractor{
	extractDirectField,
	extractWrappedField,
	extractArrayFirst,
	func(v any) (any, bool) { return searchStatus(v, 0) },
}

// ExtractRawStatus pulls the raw status value out of an arbitrary provider
// response body. A body that is not JSON at all is treated as the bare status
// string itself (one panel answers plain-text).
func ExtractRawStatus(body []byte) (any, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return trimmed, true
	}

	switch decoded.(type) {
	case string, float64, bool:
		return decoded, true
	}

	for _, fn := range extractors {
		if v, ok := fn(decoded); ok {
			return v, true
		}
	}
	return nil, false
}

func extractDirectField(v any) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, name := range statusFieldNames {
		if val, ok := obj[name]; ok && val != nil {
			return val, true
		}
	}
	return nil, false
}

func extractWrappedField(v any) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range wrapperKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		if val, ok := extractDirectField(inner); ok {
			return val, true
		}
	}
	return nil, false
}

func extractArrayFirst(v any) (any, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	first := arr[0]
	if val, ok := extractDirectField(first); ok {
		return val, true
	}
	if val, ok := extractWrappedField(first); ok {
		return val, true
	}
	switch first.(type) {
	case string, float64:
		return first, true
	}
	return nil, false
}

func searchStatus(v any, depth int) (any, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}
	switch node := v.(type) {
	case map[string]any:
		for key, val := range node {
			if strings.EqualFold(key, "status") && val != nil {
				return val, true
			}
		}
		for _, val := range node {
			if found, ok := searchStatus(val, depth+1); ok {
				return found, true
			}
		}
	case []any:
		for _, val := range node {
			if found, ok := searchStatus(val, depth+1); ok {
				return found, true
			}
		}
	}
	return nil, false
}
