package diagram

import (
	"testing"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingsNormalize(t *testing.T) {
	e := newTestEditor(t)

	vid, err := e.AddVariable(models.MainCanvasID, VariableFields{Name: "big", Type: models.VarInt, Value: "99999999999999999999"})
	require.NoError(t, err)
	v, _ := e.Project().Main.Scope.Variables.Get(vid)
	assert.Equal(t, "9223372036854775807", v.Value)

	bid, err := e.AddVariable(models.MainCanvasID, VariableFields{Name: "flag", Type: models.VarBool, Value: "7"})
	require.NoError(t, err)
	v, _ = e.Project().Main.Scope.Variables.Get(bid)
	assert.Equal(t, "1", v.Value)

	did, err := e.AddDevice(models.MainCanvasID, DeviceFields{Name: "LED1", Type: models.DeviceOutput, PIN: 99})
	require.NoError(t, err)
	d, _ := e.Project().Main.Scope.Devices.Get(did)
	assert.Equal(t, 40, d.PIN)

	_, err = e.AddDevice(models.MainCanvasID, DeviceFields{Name: "X", Type: "Servo"})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = e.AddVariable("function_missing", VariableFields{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameMarksDuplicates(t *testing.T) {
	e := newTestEditor(t)
	x1, _ := e.AddVariable(models.MainCanvasID, VariableFields{Name: "x", Type: models.VarInt})
	y, _ := e.AddVariable(models.MainCanvasID, VariableFields{Name: "y", Type: models.VarInt})
	led, _ := e.AddDevice(models.MainCanvasID, DeviceFields{Name: "LED1", PIN: 17})

	assert.Empty(t, e.Duplicates(models.MainCanvasID))

	require.NoError(t, e.RenameBinding(models.MainCanvasID, y, "x"))
	assert.True(t, e.IsDuplicate(models.MainCanvasID, x1))
	assert.True(t, e.IsDuplicate(models.MainCanvasID, y))
	assert.False(t, e.IsDuplicate(models.MainCanvasID, led))
	assert.Equal(t, []string{"x"}, e.Duplicates(models.MainCanvasID))
	assert.ErrorIs(t, e.CheckNames(), ErrNameCollision)

	// Devices share the namespace.
	require.NoError(t, e.RenameBinding(models.MainCanvasID, y, "LED1"))
	assert.False(t, e.IsDuplicate(models.MainCanvasID, x1))
	assert.True(t, e.IsDuplicate(models.MainCanvasID, led))

	require.NoError(t, e.DeleteBinding(models.MainCanvasID, led))
	assert.Empty(t, e.Duplicates(models.MainCanvasID))
	assert.NoError(t, e.CheckNames())

	assert.ErrorIs(t, e.RenameBinding(models.MainCanvasID, "variable_00000", "z"), ErrNotFound)
}

func TestScopesAreIndependent(t *testing.T) {
	e := newTestEditor(t)
	fid, _ := e.AddFunctionCanvas("F")
	_, _ = e.AddVariable(models.MainCanvasID, VariableFields{Name: "x"})
	_, _ = e.AddVariable(fid, VariableFields{Name: "x"})

	assert.Empty(t, e.Duplicates(models.MainCanvasID))
	assert.Empty(t, e.Duplicates(fid))
	assert.NoError(t, e.CheckNames())
}

func TestUpdateBinding(t *testing.T) {
	e := newTestEditor(t)
	vid, _ := e.AddVariable(models.MainCanvasID, VariableFields{Name: "x", Type: models.VarInt, Value: "3"})
	require.NoError(t, e.UpdateVariable(models.MainCanvasID, vid, VariableFields{Name: "x", Type: models.VarFloat, Value: "2"}))
	v, _ := e.Project().Main.Scope.Variables.Get(vid)
	assert.Equal(t, models.VarFloat, v.Type)
	assert.Equal(t, "2.0", v.Value)

	did, _ := e.AddDevice(models.MainCanvasID, DeviceFields{Name: "B", Type: models.DeviceButton, PIN: 4})
	require.NoError(t, e.UpdateDevice(models.MainCanvasID, did, DeviceFields{Name: "B", Type: models.DevicePWM, PIN: -3}))
	d, _ := e.Project().Main.Scope.Devices.Get(did)
	assert.Equal(t, models.DevicePWM, d.Type)
	assert.Equal(t, 0, d.PIN)
}

func TestFunctionCanvasLifecycle(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.AddFunctionCanvas("  ")
	assert.ErrorIs(t, err, ErrEmptyName)

	fid, err := e.AddFunctionCanvas("F")
	require.NoError(t, err)
	_, err = e.AddFunctionCanvas("F")
	assert.ErrorIs(t, err, ErrNameCollision)

	_, err = e.AddVariable(fid, VariableFields{Name: "y"})
	require.NoError(t, err)
	call, _ := e.AddBlock(models.MainCanvasID, models.BlockFunction, 0, 0, "F")

	err = e.SetParam(call, models.KeyInternalVars, map[string]any{
		"main_vars": []any{"counter"},
		"ref_vars":  []any{"nope"},
	})
	assert.ErrorIs(t, err, ErrInvalidParam)

	require.NoError(t, e.SetParam(call, models.KeyInternalVars, map[string]any{
		"main_vars": []any{"counter"},
		"ref_vars":  []any{"y"},
	}))

	require.NoError(t, e.RenameFunctionCanvas(fid, "G"))
	b, _, _ := e.Block(call)
	name, _ := b.Params.Get(models.KeyName)
	assert.Equal(t, "G", name)

	inner, _ := e.AddBlock(fid, models.BlockTimer, 0, 0, "")
	require.NoError(t, e.DeleteFunctionCanvas(fid))
	assert.False(t, e.Catalog().Has(inner))
	assert.False(t, e.Catalog().Has(fid))
	assert.Equal(t, 0, e.Project().Functions.Len())
}
