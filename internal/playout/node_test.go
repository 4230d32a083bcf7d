package playout

import "testing"

func TestNodeDuration(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want float64
	}{
		{"full clip", Node{Seek: 0, Out: 30}, 30},
		{"mid clip slice", Node{Seek: 10, Out: 25}, 15},
		{"zero length", Node{Seek: 5, Out: 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}
