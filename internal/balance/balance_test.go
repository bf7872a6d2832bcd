package balance

import "testing"

func TestBalance(t *testing.T) {
	l := New()
	tests := []struct {
		name string
		days int
		hist map[int]int
		want int
	}{
		{"short interval untouched", 5, map[int]int{5: 100, 4: 0}, 5},
		{"empty histogram", 30, nil, 30},
		{"moves to emptier neighbour", 15, map[int]int{14: 9, 15: 10, 16: 3}, 16},
		{"tie keeps target", 15, map[int]int{14: 2, 15: 2, 16: 2}, 15},
		{"earlier wins equal distance", 15, map[int]int{14: 1, 15: 5, 16: 1}, 14},
		{"outside window ignored", 15, map[int]int{15: 5, 17: 0, 14: 6, 16: 6}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Balance(tt.days, tt.hist); got != tt.want {
				t.Errorf("Balance(%d) = %d, want %d", tt.days, got, tt.want)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	for days, want := range map[int]int{3: 0, 10: 1, 60: 3, 100: 3, 400: 7} {
		if got := Window(days); got != want {
			t.Errorf("Window(%d) = %d, want %d", days, got, want)
		}
	}
}
