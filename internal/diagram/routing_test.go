package diagram

import (
	"testing"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRouteShapes(t *testing.T) {
	tests := []struct {
		name     string
		from, to models.Point
		want     []models.Point
	}{
		{
			name: "horizontal dominant",
			from: models.Point{X: 0, Y: 0},
			to:   models.Point{X: 200, Y: 100},
			want: []models.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 200, Y: 100}},
		},
		{
			name: "vertical dominant",
			from: models.Point{X: 0, Y: 0},
			to:   models.Point{X: 100, Y: 300},
			want: []models.Point{{X: 0, Y: 0}, {X: 0, Y: 150}, {X: 100, Y: 150}, {X: 100, Y: 300}},
		},
		{
			name: "straight line collapses",
			from: models.Point{X: 0, Y: 50},
			to:   models.Point{X: 300, Y: 50},
			want: []models.Point{{X: 0, Y: 50}, {X: 300, Y: 50}},
		},
		{
			name: "odd half step snaps to grid",
			from: models.Point{X: 0, Y: 0},
			to:   models.Point{X: 75, Y: 25},
			want: []models.Point{{X: 0, Y: 0}, {X: 25, Y: 0}, {X: 25, Y: 25}, {X: 75, Y: 25}},
		},
		{
			name: "same point",
			from: models.Point{X: 25, Y: 25},
			to:   models.Point{X: 25, Y: 25},
			want: []models.Point{{X: 25, Y: 25}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Route(tt.from, tt.to, 25)
			assert.Equal(t, tt.want, got)
			assert.True(t, ValidPolyline(got, 25))
		})
	}
}

func TestRouteAlwaysOrthogonal(t *testing.T) {
	for x := -200; x <= 200; x += 25 {
		for y := -200; y <= 200; y += 25 {
			from := models.Point{X: 50, Y: 75}
			to := models.Point{X: x, Y: y}
			pts := Route(from, to, 25)
			assert.True(t, ValidPolyline(pts, 25), "%v -> %v: %v", from, to, pts)
			assert.Equal(t, from, pts[0])
			assert.Equal(t, to, pts[len(pts)-1])
		}
	}
}

func TestValidPolyline(t *testing.T) {
	assert.False(t, ValidPolyline(nil, 25))
	assert.False(t, ValidPolyline([]models.Point{{X: 0, Y: 0}, {X: 25, Y: 25}}, 25))
	assert.False(t, ValidPolyline([]models.Point{{X: 0, Y: 0}, {X: 0, Y: 0}}, 25))
	assert.False(t, ValidPolyline([]models.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, 25))
	assert.True(t, ValidPolyline([]models.Point{{X: 0, Y: 0}, {X: 25, Y: 0}, {X: 25, Y: -50}}, 25))
}
