package store

import "testing"

func TestClampRecordLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero uses default", limit: 0, want: defaultRecordLimit},
		{name: "negative uses default", limit: -3, want: defaultRecordLimit},
		{name: "within range", limit: 20, want: 20},
		{name: "capped", limit: 10000, want: maxRecordLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampRecordLimit(tt.limit); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
