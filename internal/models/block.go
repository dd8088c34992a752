// Package models contains the plain data types of the flow-chart IDE:
// blocks, ports, paths, scopes, canvases and projects.
package models

// BlockType identifies the kind of a block on a canvas.
type BlockType string

const (
	BlockStart                 BlockType = "Start"
	BlockEnd                   BlockType = "End"
	BlockTimer                 BlockType = "Timer"
	BlockNetworks              BlockType = "Networks"
	BlockWhileTrue             BlockType = "While_true"
	BlockIf                    BlockType = "If"
	BlockWhile                 BlockType = "While"
	BlockSwitch                BlockType = "Switch"
	BlockForLoop               BlockType = "For_Loop"
	BlockButton                BlockType = "Button"
	BlockBlinkLED              BlockType = "Blink_LED"
	BlockToggleLED             BlockType = "Toggle_LED"
	BlockPWMLED                BlockType = "PWM_LED"
	BlockRGBLED                BlockType = "RGB_LED"
	BlockBasicOperations       BlockType = "Basic_operations"
	BlockExponentialOperations BlockType = "Exponential_operations"
	BlockRandomNumber          BlockType = "Random_number"
	BlockFunction              BlockType = "Function"
)

// BlockTypes lists every known block type in palette order.
var BlockTypes = []BlockType{
	BlockStart, BlockEnd, BlockTimer, BlockNetworks, BlockWhileTrue,
	BlockIf, BlockWhile, BlockSwitch, BlockForLoop, BlockButton,
	BlockBlinkLED, BlockToggleLED, BlockPWMLED, BlockRGBLED,
	BlockBasicOperations, BlockExponentialOperations, BlockRandomNumber,
	BlockFunction,
}

// Known reports whether t is one of BlockTypes.
func (t BlockType) Known() bool {
	for _, k := range BlockTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Branching reports whether the block splits control flow into out1/out2.
func (t BlockType) Branching() bool {
	switch t {
	case BlockIf, BlockWhile, BlockForLoop:
		return true
	}
	return false
}

// Port is a named attachment point on a block.
type Port string

const (
	PortIn   Port = "in"
	PortIn1  Port = "in1"
	PortOut  Port = "out"
	PortOut1 Port = "out1"
	PortOut2 Port = "out2"
)

// IsInput reports whether paths may end at p.
func (p Port) IsInput() bool {
	return p == PortIn || p == PortIn1
}

// IsOutput reports whether paths may start at p.
func (p Port) IsOutput() bool {
	return p == PortOut || p == PortOut1 || p == PortOut2
}

// Point is a grid position in canvas pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Block is a typed node placed on a canvas.
type Block struct {
	ID       string
	Type     BlockType
	CanvasID string
	X        int
	Y        int
	Width    int
	Height   int
	Params   Params

	// InConnections and OutConnections map a path id to the port it uses on this block.
	InConnections  map[string]Port
	OutConnections map[string]Port
}

// NewBlock creates a block with default parameters for its type.
func NewBlock(id string, t BlockType, canvasID string, x, y int) *Block {
	return &Block{
		ID:             id,
		Type:           t,
		CanvasID:       canvasID,
		X:              x,
		Y:              y,
		Params:         NewParams(t),
		InConnections:  make(map[string]Port),
		OutConnections: make(map[string]Port),
	}
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	out := *b
	if b.Params != nil {
		out.Params = b.Params.Clone()
	}
	out.InConnections = make(map[string]Port, len(b.InConnections))
	for k, v := range b.InConnections {
		out.InConnections[k] = v
	}
	out.OutConnections = make(map[string]Port, len(b.OutConnections))
	for k, v := range b.OutConnections {
		out.OutConnections[k] = v
	}
	return &out
}

// Position returns the top-left corner of the block.
func (b *Block) Position() Point {
	return Point{X: b.X, Y: b.Y}
}
