package canvas

import (
	"errors"
	"testing"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		to   State
		ok   bool
	}{
		{Idle, EvBeginAddBlock, AddingBlock, true},
		{AddingBlock, EvClickCanvas, Idle, true},
		{AddingBlock, EvCancel, Idle, true},
		{Idle, EvClickOutputPort, AddingPath, true},
		{AddingPath, EvClickInputPort, Idle, true},
		{AddingPath, EvCancel, Idle, true},
		{Idle, EvPressOnBlock, MovingItem, true},
		{MovingItem, EvRelease, Idle, true},
		{Idle, EvDelete, DeletingItem, true},
		{DeletingItem, EvDeleteDone, Idle, true},

		{Idle, EvClickCanvas, Idle, false},
		{Idle, EvRelease, Idle, false},
		{AddingBlock, EvPressOnBlock, AddingBlock, false},
		{AddingPath, EvBeginAddBlock, AddingPath, false},
		{MovingItem, EvDelete, MovingItem, false},
		{DeletingItem, EvCancel, DeletingItem, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+string(tt.ev), func(t *testing.T) {
			m := &Machine{state: tt.from}
			assert.Equal(t, tt.ok, m.Fire(tt.ev))
			assert.Equal(t, tt.to, m.State())
		})
	}
}

func TestPlaceBlockFlow(t *testing.T) {
	m := NewMachine()
	assert.False(t, m.CanPlaceBlock())
	_, ok := m.ClickCanvas()
	assert.False(t, ok)

	assert.True(t, m.BeginAddBlock(models.BlockTimer))
	assert.True(t, m.CanPlaceBlock())
	assert.False(t, m.BeginAddBlock(models.BlockIf), "second begin is rejected")

	bt, ok := m.ClickCanvas()
	assert.True(t, ok)
	assert.Equal(t, models.BlockTimer, bt)
	assert.Equal(t, Idle, m.State())

	_, pending := m.PendingBlock()
	assert.False(t, pending)
}

func TestPathFlow(t *testing.T) {
	m := NewMachine()
	assert.False(t, m.ClickOutputPort(PortRef{BlockID: "a", Port: models.PortIn}), "inputs do not start paths")
	assert.Equal(t, Idle, m.State())

	assert.True(t, m.ClickOutputPort(PortRef{BlockID: "a", Port: models.PortOut}))
	_, ok := m.ClickInputPort(PortRef{BlockID: "b", Port: models.PortOut1})
	assert.False(t, ok, "incompatible port keeps the path pending")
	assert.Equal(t, AddingPath, m.State())

	from, ok := m.ClickInputPort(PortRef{BlockID: "b", Port: models.PortIn})
	assert.True(t, ok)
	assert.Equal(t, PortRef{BlockID: "a", Port: models.PortOut}, from)
	assert.Equal(t, Idle, m.State())

	assert.True(t, m.ClickOutputPort(PortRef{BlockID: "a", Port: models.PortOut}))
	assert.True(t, m.Cancel())
	_, ok = m.PathOrigin()
	assert.False(t, ok)
}

func TestMoveFlow(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.PressOnBlock("blk"))
	id, moving := m.Moving()
	assert.True(t, moving)
	assert.Equal(t, "blk", id)
	assert.False(t, m.CanDelete())

	id, ok := m.Release()
	assert.True(t, ok)
	assert.Equal(t, "blk", id)
	_, ok = m.Release()
	assert.False(t, ok)
}

func TestDeleteIsOneShot(t *testing.T) {
	m := NewMachine()
	var seen []State
	m.OnTransition = func(from, to State, ev Event) { seen = append(seen, to) }

	called := false
	ok, err := m.Delete(func() error {
		called = true
		assert.Equal(t, DeletingItem, m.State())
		return nil
	})
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, []State{DeletingItem, Idle}, seen)

	boom := errors.New("boom")
	ok, err = m.Delete(func() error { return boom })
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Idle, m.State())

	m.BeginAddBlock(models.BlockEnd)
	ok, err = m.Delete(func() error { t.Fatal("gate should be closed"); return nil })
	assert.False(t, ok)
	assert.NoError(t, err)

	m.Reset()
	assert.Equal(t, Idle, m.State())
}

func TestDialogs(t *testing.T) {
	d := NewDialogs()
	assert.Equal(t, DialogMain, d.Front())
	assert.True(t, d.IsOpen(DialogMain))

	assert.False(t, d.Open(DialogSettings))
	assert.False(t, d.Open(DialogHelp))
	assert.Equal(t, DialogHelp, d.Front())

	assert.True(t, d.Open(DialogSettings), "same kind raises to front")
	assert.Equal(t, DialogSettings, d.Front())
	assert.Equal(t, []Dialog{DialogHelp, DialogSettings}, d.List())

	assert.False(t, d.Open(Dialog("BOGUS")))
	assert.False(t, d.Compiling())
	d.Open(DialogCompiling)
	assert.True(t, d.Compiling())

	assert.True(t, d.Close(DialogCompiling))
	assert.False(t, d.Close(DialogCompiling))
	assert.True(t, d.Close(DialogSettings))
	assert.Equal(t, DialogHelp, d.Front())
}
