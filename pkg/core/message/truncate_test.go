package message_test

import (
	"strings"
	"testing"

	"github.com/easyops/contextengine-go/pkg/core/message"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"under limit", "你好", 5, "你好"},
		{"exact", "你好", 2, "你好"},
		{"over limit counts runes", "你好世界", 2, "你好" + message.TruncationMarker},
		{"no limit", strings.Repeat("a", 10), 0, strings.Repeat("a", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := message.Truncate(tt.in, tt.limit); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}
