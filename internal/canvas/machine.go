// Package canvas holds the interaction state machines: one per canvas for
// placing, wiring, moving and deleting, and one app-wide for dialogs.
package canvas

import (
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// State is the interaction mode of a canvas.
type State int

const (
	Idle State = iota
	AddingBlock
	AddingPath
	MovingItem
	DeletingItem
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case AddingBlock:
		return "ADDING_BLOCK"
	case AddingPath:
		return "ADDING_PATH"
	case MovingItem:
		return "MOVING_ITEM"
	case DeletingItem:
		return "DELETING_ITEM"
	}
	return "UNKNOWN"
}

// Event is a user gesture consumed by the machine.
type Event string

const (
	EvBeginAddBlock   Event = "begin_add_block"
	EvClickCanvas     Event = "click_canvas"
	EvClickOutputPort Event = "click_output_port"
	EvClickInputPort  Event = "click_input_port"
	EvPressOnBlock    Event = "press_on_block"
	EvRelease         Event = "release"
	EvDelete          Event = "delete_command"
	EvCancel          Event = "cancel"
	EvDeleteDone      Event = "delete_done"
)

var transitions = map[State]map[Event]State{
	Idle: {
		EvBeginAddBlock:   AddingBlock,
		EvClickOutputPort: AddingPath,
		EvPressOnBlock:    MovingItem,
		EvDelete:          DeletingItem,
	},
	AddingBlock: {
		EvClickCanvas: Idle,
		EvCancel:      Idle,
	},
	AddingPath: {
		EvClickInputPort: Idle,
		EvCancel:         Idle,
	},
	MovingItem: {
		EvRelease: Idle,
		EvCancel:  Idle,
	},
	DeletingItem: {
		EvDeleteDone: Idle,
	},
}

// PortRef names one port of one block.
type PortRef struct {
	BlockID string      `json:"block_id"`
	Port    models.Port `json:"port"`
}

// Machine tracks the gesture in progress on one canvas together with the
// data the gesture carries (pending block type, path origin, moved block).
type Machine struct {
	state State

	pendingType models.BlockType
	pathFrom    PortRef
	movingID    string

	// OnTransition, when set, observes every accepted transition.
	OnTransition func(from, to State, ev Event)
}

// NewMachine returns a machine in IDLE.
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Fire applies ev and reports whether the transition table accepted it.
func (m *Machine) Fire(ev Event) bool {
	to, ok := transitions[m.state][ev]
	if !ok {
		return false
	}
	from := m.state
	m.state = to
	if to == Idle {
		m.pendingType = ""
		m.pathFrom = PortRef{}
		m.movingID = ""
	}
	if m.OnTransition != nil {
		m.OnTransition(from, to, ev)
	}
	return true
}

// Gates queried by commands before they touch the model.

func (m *Machine) CanBeginAddBlock() bool { return m.state == Idle }
func (m *Machine) CanPlaceBlock() bool    { return m.state == AddingBlock }
func (m *Machine) CanStartPath() bool     { return m.state == Idle }
func (m *Machine) CanFinishPath() bool    { return m.state == AddingPath }
func (m *Machine) CanMove() bool          { return m.state == Idle }
func (m *Machine) CanDelete() bool        { return m.state == Idle }
func (m *Machine) CanEdit() bool          { return m.state == Idle }

// BeginAddBlock arms placement of a block of type t.
func (m *Machine) BeginAddBlock(t models.BlockType) bool {
	if !m.Fire(EvBeginAddBlock) {
		return false
	}
	m.pendingType = t
	return true
}

// PendingBlock returns the type armed by BeginAddBlock.
func (m *Machine) PendingBlock() (models.BlockType, bool) {
	return m.pendingType, m.state == AddingBlock
}

// ClickCanvas finishes placement and returns the type to place.
func (m *Machine) ClickCanvas() (models.BlockType, bool) {
	t := m.pendingType
	if !m.Fire(EvClickCanvas) {
		return "", false
	}
	return t, true
}

// ClickOutputPort starts a path at from. Only output ports start paths.
func (m *Machine) ClickOutputPort(from PortRef) bool {
	if !from.Port.IsOutput() {
		return false
	}
	if !m.Fire(EvClickOutputPort) {
		return false
	}
	m.pathFrom = from
	return true
}

// PathOrigin returns the port the pending path starts at.
func (m *Machine) PathOrigin() (PortRef, bool) {
	return m.pathFrom, m.state == AddingPath
}

// ClickInputPort finishes the pending path and returns its origin. An
// incompatible (non-input) port leaves the machine in ADDING_PATH.
func (m *Machine) ClickInputPort(to PortRef) (PortRef, bool) {
	if m.state != AddingPath || !to.Port.IsInput() {
		return PortRef{}, false
	}
	from := m.pathFrom
	m.Fire(EvClickInputPort)
	return from, true
}

// PressOnBlock starts moving a block.
func (m *Machine) PressOnBlock(blockID string) bool {
	if !m.Fire(EvPressOnBlock) {
		return false
	}
	m.movingID = blockID
	return true
}

// Moving returns the id of the block being dragged.
func (m *Machine) Moving() (string, bool) {
	return m.movingID, m.state == MovingItem
}

// Release drops the dragged block and returns its id.
func (m *Machine) Release() (string, bool) {
	id := m.movingID
	if !m.Fire(EvRelease) {
		return "", false
	}
	return id, true
}

// Delete runs the one-shot IDLE -> DELETING_ITEM -> IDLE sequence around fn.
// It reports false without calling fn when the gate is closed.
func (m *Machine) Delete(fn func() error) (bool, error) {
	if !m.Fire(EvDelete) {
		return false, nil
	}
	defer m.Fire(EvDeleteDone)
	if err := fn(); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel aborts the gesture in progress.
func (m *Machine) Cancel() bool {
	return m.Fire(EvCancel)
}

// Reset forces the machine back to IDLE.
func (m *Machine) Reset() {
	if m.state != Idle {
		from := m.state
		m.state = Idle
		m.pendingType = ""
		m.pathFrom = PortRef{}
		m.movingID = ""
		if m.OnTransition != nil {
			m.OnTransition(from, Idle, EvCancel)
		}
	}
}
