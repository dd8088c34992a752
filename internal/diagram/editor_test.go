package diagram

import (
	"testing"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	e, err := NewEditor(models.NewProject("test"), nil)
	require.NoError(t, err)
	return e
}

// assertWellFormedPaths checks endpoints, orthogonality and grid alignment
// of every path on every canvas.
func assertWellFormedPaths(t *testing.T, e *Editor) {
	t.Helper()
	grid := e.Specs().Grid
	for _, c := range e.Project().Canvases() {
		for _, p := range c.Paths.Values() {
			src, ok := c.Blocks.Get(p.From)
			require.True(t, ok, "path %s has dangling from", p.ID)
			dst, ok := c.Blocks.Get(p.To)
			require.True(t, ok, "path %s has dangling to", p.ID)

			start, _ := e.Specs().PortCenter(src, p.FromPort)
			end, _ := e.Specs().PortCenter(dst, p.ToPort)
			require.NotEmpty(t, p.Waypoints)
			assert.Equal(t, start, p.Waypoints[0], "path %s start", p.ID)
			assert.Equal(t, end, p.Waypoints[len(p.Waypoints)-1], "path %s end", p.ID)
			assert.True(t, ValidPolyline(p.Waypoints, grid), "path %s: %v", p.ID, p.Waypoints)
		}
		for _, b := range c.Blocks.Values() {
			assert.Zero(t, b.X%grid)
			assert.Zero(t, b.Y%grid)
		}
	}
}

func TestAddBlock(t *testing.T) {
	e := newTestEditor(t)

	id, err := e.AddBlock(models.MainCanvasID, models.BlockIf, 100, 50, "")
	require.NoError(t, err)
	b, c, err := e.Block(id)
	require.NoError(t, err)
	assert.Equal(t, models.MainCanvasID, c.ID)
	assert.Equal(t, 150, b.Width)
	assert.Equal(t, 100, b.Height)
	op, _ := b.Params.Get(models.KeyOperator)
	assert.Equal(t, "==", op)

	_, err = e.AddBlock(models.MainCanvasID, models.BlockTimer, 101, 50, "")
	assert.ErrorIs(t, err, ErrOffGrid)

	_, err = e.AddBlock("nope", models.BlockTimer, 0, 0, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.AddBlock(models.MainCanvasID, models.BlockType("Teleport"), 0, 0, "")
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = e.AddBlock(models.MainCanvasID, models.BlockStart, 0, 0, "")
	require.NoError(t, err)
	_, err = e.AddBlock(models.MainCanvasID, models.BlockStart, 0, 100, "")
	assert.ErrorIs(t, err, ErrStartExists)

	fid, err := e.AddBlock(models.MainCanvasID, models.BlockFunction, 0, 200, "F")
	require.NoError(t, err)
	fb, _, _ := e.Block(fid)
	name, _ := fb.Params.Get(models.KeyName)
	assert.Equal(t, "F", name)
}

func TestSetParamClamps(t *testing.T) {
	e := newTestEditor(t)
	pwm, _ := e.AddBlock(models.MainCanvasID, models.BlockPWMLED, 0, 0, "")
	timer, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 100, "")
	basic, _ := e.AddBlock(models.MainCanvasID, models.BlockBasicOperations, 0, 200, "")

	require.NoError(t, e.SetParam(pwm, models.KeyPWMValue, 900))
	b, _, _ := e.Block(pwm)
	v, _ := b.Params.Get(models.KeyPWMValue)
	assert.Equal(t, 255, v)

	require.NoError(t, e.SetParam(timer, models.KeySleepTime, "soon"))
	b, _, _ = e.Block(timer)
	v, _ = b.Params.Get(models.KeySleepTime)
	assert.Equal(t, 1000, v)

	require.NoError(t, e.SetParam(basic, models.KeyOperator, "**"))
	b, _, _ = e.Block(basic)
	v, _ = b.Params.Get(models.KeyOperator)
	assert.Equal(t, "+", v)

	err := e.SetParam(timer, models.KeyOperator, "+")
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestAddPathRules(t *testing.T) {
	e := newTestEditor(t)
	start, _ := e.AddBlock(models.MainCanvasID, models.BlockStart, 0, 0, "")
	iff, _ := e.AddBlock(models.MainCanvasID, models.BlockIf, 200, 0, "")
	end, _ := e.AddBlock(models.MainCanvasID, models.BlockEnd, 450, 100, "")

	pid, err := e.AddPath(start, models.PortOut, iff, models.PortIn, nil)
	require.NoError(t, err)
	assert.Equal(t, start+"-"+iff, pid)

	// to_port must be an input
	_, err = e.AddPath(iff, models.PortOut1, end, models.PortOut, nil)
	assert.ErrorIs(t, err, ErrPort)
	// If has no plain out
	_, err = e.AddPath(iff, models.PortOut, end, models.PortIn, nil)
	assert.ErrorIs(t, err, ErrPort)

	_, err = e.AddPath(iff, models.PortOut1, end, models.PortIn, nil)
	require.NoError(t, err)
	_, err = e.AddPath(iff, models.PortOut1, end, models.PortIn, nil)
	assert.ErrorIs(t, err, ErrPathExists)

	// Second branch to the same block gets a port-qualified id.
	pid2, err := e.AddPath(iff, models.PortOut2, end, models.PortIn, nil)
	require.NoError(t, err)
	assert.Equal(t, iff+"-"+end+"-out2", pid2)

	b, _, _ := e.Block(iff)
	assert.Len(t, b.OutConnections, 2)
	eb, _, _ := e.Block(end)
	assert.Len(t, eb.InConnections, 2)

	assertWellFormedPaths(t, e)
}

func TestAddPathOutputUsedOnce(t *testing.T) {
	e := newTestEditor(t)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	b, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 300, 0, "")
	c, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 300, 200, "")

	_, err := e.AddPath(a, models.PortOut, b, models.PortIn, nil)
	require.NoError(t, err)
	_, err = e.AddPath(a, models.PortOut, c, models.PortIn, nil)
	assert.ErrorIs(t, err, ErrPortInUse)
}

func TestAddPathWaypoints(t *testing.T) {
	e := newTestEditor(t)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	b, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 300, 100, "")

	// out of a is (150, 25); in of b is (300, 125)
	good := []models.Point{{X: 150, Y: 25}, {X: 200, Y: 25}, {X: 200, Y: 125}, {X: 300, Y: 125}}
	bad := []models.Point{{X: 150, Y: 25}, {X: 300, Y: 125}}

	_, err := e.AddPath(a, models.PortOut, b, models.PortIn, bad)
	assert.ErrorIs(t, err, ErrBadWaypoints)

	pid, err := e.AddPath(a, models.PortOut, b, models.PortIn, good)
	require.NoError(t, err)
	p, _, _ := e.Path(pid)
	assert.Equal(t, good, p.Waypoints)
}

func TestMoveBlockReroutes(t *testing.T) {
	e := newTestEditor(t)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	w, _ := e.AddBlock(models.MainCanvasID, models.BlockWhile, 300, 200, "")
	_, err := e.AddPath(a, models.PortOut, w, models.PortIn, nil)
	require.NoError(t, err)
	// self loop back into in1
	_, err = e.AddPath(w, models.PortOut1, w, models.PortIn1, nil)
	require.NoError(t, err)

	for _, pos := range [][2]int{{25, 500}, {-250, -75}, {1000, 0}, {325, 25}} {
		require.NoError(t, e.MoveBlock(w, pos[0], pos[1]))
		assertWellFormedPaths(t, e)
	}
	assert.ErrorIs(t, e.MoveBlock(w, 3, 0), ErrOffGrid)
}

func TestDeleteBlockRemovesIncidentPaths(t *testing.T) {
	e := newTestEditor(t)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	b, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 300, 0, "")
	c, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 600, 0, "")
	p1, _ := e.AddPath(a, models.PortOut, b, models.PortIn, nil)
	p2, _ := e.AddPath(b, models.PortOut, c, models.PortIn, nil)

	require.NoError(t, e.DeleteBlock(b))

	main := e.Project().Main
	assert.Equal(t, 0, main.Paths.Len())
	ab, _, _ := e.Block(a)
	cb, _, _ := e.Block(c)
	assert.Empty(t, ab.OutConnections)
	assert.Empty(t, cb.InConnections)
	assert.False(t, e.Catalog().Has(p1))
	assert.False(t, e.Catalog().Has(p2))
	assert.False(t, e.Catalog().Has(b))

	_, _, err := e.Block(b)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, e.DeletePath(p1), ErrNotFound)
}

func TestDeletePathClearsReferences(t *testing.T) {
	e := newTestEditor(t)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	b, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 300, 0, "")
	pid, _ := e.AddPath(a, models.PortOut, b, models.PortIn, nil)

	require.NoError(t, e.DeletePath(pid))
	ab, _, _ := e.Block(a)
	bb, _, _ := e.Block(b)
	assert.Empty(t, ab.OutConnections)
	assert.Empty(t, bb.InConnections)

	// The port is free again.
	_, err := e.AddPath(a, models.PortOut, b, models.PortIn, nil)
	assert.NoError(t, err)
}

func TestPathsStayOnTheirCanvas(t *testing.T) {
	e := newTestEditor(t)
	fid, err := e.AddFunctionCanvas("F")
	require.NoError(t, err)
	a, _ := e.AddBlock(models.MainCanvasID, models.BlockTimer, 0, 0, "")
	b, _ := e.AddBlock(fid, models.BlockTimer, 0, 0, "")

	_, err = e.AddPath(a, models.PortOut, b, models.PortIn, nil)
	assert.ErrorIs(t, err, ErrPort)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	e := newTestEditor(t)
	before := e.Project()

	p := models.NewProject("dup")
	p.Main.Blocks.Set("Timer_10000", models.NewBlock("Timer_10000", models.BlockTimer, models.MainCanvasID, 0, 0))
	fn := models.NewCanvas("function_10001", "F", models.RefFunction, 1)
	fn.Blocks.Set("Timer_10000", models.NewBlock("Timer_10000", models.BlockTimer, fn.ID, 0, 0))
	p.Functions.Set(fn.ID, fn)

	err := e.Load(p)
	assert.ErrorContains(t, err, "duplicate_id")
	assert.Same(t, before, e.Project())
}
