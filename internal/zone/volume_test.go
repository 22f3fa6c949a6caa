package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	require.Equal(t, 5, Clamp(5, 0, 10))
	require.Equal(t, 0, Clamp(-3, 0, 10))
	require.Equal(t, 10, Clamp(11, 0, 10))
	require.Equal(t, 2, Clamp(2, 2, 2))
}

func TestRelativeGain(t *testing.T) {
	tests := []struct {
		name     string
		coord    int
		coordRef int
		selfRef  int
		bounds   Bounds
		want     int
	}{
		{name: "offset carried", coord: 20, coordRef: 16, selfRef: 10, bounds: Bounds{0, 100}, want: 14},
		{name: "negative offset", coord: 10, coordRef: 16, selfRef: 16, bounds: Bounds{0, 100}, want: 10},
		{name: "clamped high", coord: 95, coordRef: 10, selfRef: 30, bounds: Bounds{0, 100}, want: 100},
		{name: "clamped low", coord: 2, coordRef: 20, selfRef: 5, bounds: Bounds{3, 100}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RelativeGain(tt.coord, tt.coordRef, tt.selfRef, tt.bounds))
		})
	}
}

func TestPropagateDelta(t *testing.T) {
	bounds := Bounds{Min: 2, Max: 40}
	require.Equal(t, 25, PropagateDelta(10, 15, bounds))
	require.Equal(t, 28, PropagateDelta(10, 18, bounds))
	require.Equal(t, 40, PropagateDelta(22, 18, bounds))
	require.Equal(t, 2, PropagateDelta(-30, 18, bounds))
}

func TestFloorDiv(t *testing.T) {
	require.Equal(t, 2, floorDiv(5, 2))
	require.Equal(t, -3, floorDiv(-5, 2))
	require.Equal(t, -2, floorDiv(-4, 2))
	require.Equal(t, 0, floorDiv(0, 3))
}
