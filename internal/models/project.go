package models

import "time"

// MainCanvasID is the id and scope key of the main canvas.
const MainCanvasID = "main_canvas"

// ProjectVersion is written into project metadata.
const ProjectVersion = "1.0"

// CanvasRef distinguishes the main canvas from function canvases.
type CanvasRef string

const (
	RefCanvas   CanvasRef = "canvas"
	RefFunction CanvasRef = "function"
)

// Canvas is a drawing surface with its own blocks, paths and scope.
type Canvas struct {
	ID     string
	Name   string
	Ref    CanvasRef
	Index  int
	Blocks *OrderedMap[*Block]
	Paths  *OrderedMap[*Path]
	Scope  *Scope
}

// NewCanvas creates an empty canvas.
func NewCanvas(id, name string, ref CanvasRef, index int) *Canvas {
	return &Canvas{
		ID:     id,
		Name:   name,
		Ref:    ref,
		Index:  index,
		Blocks: NewOrderedMap[*Block](),
		Paths:  NewOrderedMap[*Path](),
		Scope:  NewScope(),
	}
}

// Clone returns a deep copy of the canvas.
func (c *Canvas) Clone() *Canvas {
	return &Canvas{
		ID:     c.ID,
		Name:   c.Name,
		Ref:    c.Ref,
		Index:  c.Index,
		Blocks: c.Blocks.Clone((*Block).Clone),
		Paths:  c.Paths.Clone((*Path).Clone),
		Scope:  c.Scope.Clone(),
	}
}

// IsFunction reports whether the canvas is a function body.
func (c *Canvas) IsFunction() bool {
	return c.Ref == RefFunction
}

// Metadata describes a project file.
type Metadata struct {
	Version  string `json:"version" msgpack:"version"`
	Name     string `json:"name" msgpack:"name"`
	Created  string `json:"created" msgpack:"created"`
	Modified string `json:"modified" msgpack:"modified"`
}

// Settings are the per-project target selection.
type Settings struct {
	RPIModel      string `json:"rpi_model" msgpack:"rpi_model"`
	RPIModelIndex int    `json:"rpi_model_index" msgpack:"rpi_model_index"`
}

// Project is the whole diagram: main canvas, function canvases and settings.
type Project struct {
	Metadata  Metadata
	Settings  Settings
	Main      *Canvas
	Functions *OrderedMap[*Canvas]
}

// NewProject creates an empty project with a main canvas.
func NewProject(name string) *Project {
	now := time.Now().Format(time.RFC3339)
	return &Project{
		Metadata: Metadata{Version: ProjectVersion, Name: name, Created: now, Modified: now},
		Settings: Settings{RPIModel: TargetModels[DefaultTargetIndex], RPIModelIndex: DefaultTargetIndex},
		Main:      NewCanvas(MainCanvasID, "Main", RefCanvas, 0),
		Functions: NewOrderedMap[*Canvas](),
	}
}

// Canvas looks up the main canvas or a function canvas by id.
func (p *Project) Canvas(id string) (*Canvas, bool) {
	if id == MainCanvasID || id == "" {
		return p.Main, true
	}
	return p.Functions.Get(id)
}

// Canvases returns the main canvas followed by function canvases.
func (p *Project) Canvases() []*Canvas {
	return append([]*Canvas{p.Main}, p.Functions.Values()...)
}

// FunctionByName finds the function canvas a Function block refers to.
func (p *Project) FunctionByName(name string) (*Canvas, bool) {
	for _, c := range p.Functions.Values() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FindBlock searches every canvas for a block id.
func (p *Project) FindBlock(id string) (*Block, *Canvas, bool) {
	for _, c := range p.Canvases() {
		if b, ok := c.Blocks.Get(id); ok {
			return b, c, true
		}
	}
	return nil, nil, false
}

// FindPath searches every canvas for a path id.
func (p *Project) FindPath(id string) (*Path, *Canvas, bool) {
	for _, c := range p.Canvases() {
		if path, ok := c.Paths.Get(id); ok {
			return path, c, true
		}
	}
	return nil, nil, false
}

// Pins returns every distinct PIN referenced by a device in any scope.
func (p *Project) Pins() []int {
	seen := make(map[int]bool)
	var pins []int
	for _, c := range p.Canvases() {
		for _, d := range c.Scope.Devices.Values() {
			if !seen[d.PIN] {
				seen[d.PIN] = true
				pins = append(pins, d.PIN)
			}
		}
	}
	return pins
}

// Clone returns a copy that shares nothing mutable with p.
func (p *Project) Clone() *Project {
	return &Project{
		Metadata:  p.Metadata,
		Settings:  p.Settings,
		Main:      p.Main.Clone(),
		Functions: p.Functions.Clone((*Canvas).Clone),
	}
}
