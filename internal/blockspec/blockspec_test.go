package blockspec

import (
	"strings"
	"testing"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCoversEveryType(t *testing.T) {
	c := Default()
	assert.Equal(t, 25, c.Grid)
	for _, bt := range models.BlockTypes {
		s, ok := c.Get(bt)
		require.True(t, ok, "missing spec for %s", bt)
		assert.Zero(t, s.Width%c.Grid, bt)
		assert.Zero(t, s.Height%c.Grid, bt)
		for _, off := range s.Ports {
			assert.Zero(t, off.X%c.Grid)
			assert.Zero(t, off.Y%c.Grid)
		}
	}
	assert.Len(t, c.Specs(), len(models.BlockTypes))
}

func TestBranchingPorts(t *testing.T) {
	c := Default()
	for _, bt := range []models.BlockType{models.BlockIf, models.BlockWhile} {
		assert.True(t, c.HasPort(bt, models.PortIn))
		assert.True(t, c.HasPort(bt, models.PortIn1))
		assert.True(t, c.HasPort(bt, models.PortOut1))
		assert.True(t, c.HasPort(bt, models.PortOut2))
		assert.False(t, c.HasPort(bt, models.PortOut))
	}
	assert.True(t, c.HasPort(models.BlockTimer, models.PortOut))
	assert.False(t, c.HasPort(models.BlockStart, models.PortIn))
	assert.False(t, c.HasPort(models.BlockEnd, models.PortOut))
}

func TestPortCenter(t *testing.T) {
	c := Default()
	b := models.NewBlock("If_10000", models.BlockIf, models.MainCanvasID, 100, 200)

	p, ok := c.PortCenter(b, models.PortOut2)
	require.True(t, ok)
	assert.Equal(t, models.Point{X: 250, Y: 275}, p)

	_, ok = c.PortCenter(b, models.PortOut)
	assert.False(t, ok)
}

func TestSnap(t *testing.T) {
	assert.Equal(t, 0, Snap(12, 25))
	assert.Equal(t, 25, Snap(13, 25))
	assert.Equal(t, 50, Snap(50, 25))
	assert.Equal(t, -25, Snap(-13, 25))
	assert.Equal(t, 7, Snap(7, 0))
}

func TestParseRejectsOffGrid(t *testing.T) {
	_, err := LoadReader(strings.NewReader(`
grid: 25
default:
  width: 150
  height: 50
  ports:
    in: [0, 25]
    out: [150, 25]
blocks:
  Timer:
    width: 140
`))
	assert.ErrorContains(t, err, "not a multiple of grid")

	_, err = Parse([]byte("blocks:\n  Teleport: {}\n"))
	assert.ErrorContains(t, err, "unknown block type")

	_, err = Parse([]byte(`
default:
  width: 100
  height: 50
  ports:
    out: [125, 25]
`))
	assert.ErrorContains(t, err, "outside the block")
}
