package redact_test

import (
	"errors"
	"testing"

	"github.com/bdobrica/kokoro/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secrets []string
		want    string
	}{
		{
			name:    "api key in header",
			in:      "Authorization: Bearer sk-test-123456 rejected",
			secrets: []string{"sk-test-123456"},
			want:    "Authorization: Bearer [REDACTED] rejected",
		},
		{
			name:    "short values skipped",
			in:      "abc token",
			secrets: []string{"abc"},
			want:    "abc token",
		},
		{
			name:    "multiple values",
			in:      "key=sk-live-aaaa tok=syt_bbbbbb",
			secrets: []string{"sk-live-aaaa", "syt_bbbbbb"},
			want:    "key=[REDACTED] tok=[REDACTED]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.String(tt.in, tt.secrets...); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	if got := redact.Error(nil, "whatever"); got != "" {
		t.Errorf("nil error should redact to empty string, got %q", got)
	}
	err := errors.New("401 for key sk-secret-value")
	if got := redact.Error(err, "sk-secret-value"); got != "401 for key [REDACTED]" {
		t.Errorf("unexpected redaction: %q", got)
	}
}
