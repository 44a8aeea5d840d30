package domain

import (
	"strings"
	"testing"
)

func TestSnapshotSummary(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 45)
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name:     "short message still marked",
			messages: []Message{{Role: RoleUser, Content: "data prabowo"}},
			want:     "data prabowo...",
		},
		{
			name:     "long message cut by runes",
			messages: []Message{{Role: RoleUser, Content: long}},
			want:     strings.Repeat("é", 40) + "...",
		},
		{
			name: "first user message wins",
			messages: []Message{
				{Role: RoleAssistant, Content: "Halo"},
				{Role: RoleUser, Content: "pertama"},
				{Role: RoleUser, Content: "kedua"},
			},
			want: "pertama...",
		},
		{
			name:     "no user message",
			messages: []Message{{Role: RoleAssistant, Content: "Halo"}},
			want:     "Chat Session",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SnapshotSummary(tt.messages); got != tt.want {
				t.Fatalf("SnapshotSummary = %q, want %q", got, tt.want)
			}
		})
	}
}
