// Package redact strips credentials (LLM API keys, Matrix access tokens)
// from strings before they reach a log line. Upstream SDK errors sometimes
// echo request headers, so every logged collaborator error goes through here.
package redact

import "strings"

const placeholder = "[REDACTED]"

// minSecretLen guards against replacing common short substrings.
const minSecretLen = 6

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than minSecretLen are ignored.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Error is String applied to err.Error(). A nil err yields "".
func Error(err error, sensitiveValues ...string) string {
	if err == nil {
		return ""
	}
	return String(err.Error(), sensitiveValues...)
}
