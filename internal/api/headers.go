package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rickgao/ercot-data/internal/version"
)

const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	maskedValue           = "****"
)

// sensitiveHeaderParts marks header names whose values are never logged.
var sensitiveHeaderParts = []string{
	"authorization",
	"api-key",
	"apikey",
	"subscription-key",
	"token",
}

// BuildHeaders returns a new header set for one request attempt. Extra
// headers are applied first so that auth headers cannot be overridden.
func BuildHeaders(extra map[string]string, token, subscriptionKey string) http.Header {
	h := make(http.Header, len(extra)+4)
	for k, v := range extra {
		h.Set(k, v)
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	h.Set("User-Agent", version.UserAgent())
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if subscriptionKey != "" {
		h.Set(subscriptionKeyHeader, subscriptionKey)
	}
	return h
}

// MaskHeaders returns a loggable copy of h with sensitive values replaced.
func MaskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if isSensitiveHeader(k) {
			out[k] = maskedValue
			continue
		}
		out[k] = strings.Join(vs, ",")
	}
	return out
}

// maskedPairs flattens masked headers into sorted key=value strings for
// log attributes.
func maskedPairs(h http.Header) []string {
	masked := MaskHeaders(h)
	pairs := make([]string, 0, len(masked))
	for k, v := range masked {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func isSensitiveHeader(name string) bool {
	n := strings.ToLower(name)
	for _, part := range sensitiveHeaderParts {
		if strings.Contains(n, part) {
			return true
		}
	}
	return false
}
