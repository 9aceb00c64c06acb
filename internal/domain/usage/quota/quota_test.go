package quota

import "testing"

func TestQuota(t *testing.T) {
	tests := []struct {
		name      string
		q         Quota
		delta     int64
		allows    bool
		exhausted bool
		remaining int64
	}{
		{"unlimited", New("documents", 0, 1000), 50, true, false, -1},
		{"within", New("documents", 10, 4), 6, true, false, 6},
		{"over", New("documents", 10, 4), 7, false, false, 6},
		{"spent", New("storage", 100, 120), 1, false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Allows(tt.delta); got != tt.allows {
				t.Errorf("Allows(%d) = %v, want %v", tt.delta, got, tt.allows)
			}
			if got := tt.q.IsExhausted(); got != tt.exhausted {
				t.Errorf("IsExhausted() = %v, want %v", got, tt.exhausted)
			}
			if got := tt.q.Remaining(); got != tt.remaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.remaining)
			}
		})
	}
}
