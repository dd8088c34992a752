package models

// FieldChanges maps an entity id to the names of its changed fields.
type FieldChanges map[string][]string

// BindingChange describes a modified variable or device.
type BindingChange struct {
	Old      map[string]any `json:"old"`
	New      map[string]any `json:"new"`
	Location string         `json:"location"` // "main_canvas" or "function_<fid>"
}

// ValueChange is an old/new pair for a scalar setting.
type ValueChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// CanvasChanges is the block and connection diff of one function canvas.
type CanvasChanges struct {
	BlocksAdded         []string     `json:"blocks_added"`
	BlocksRemoved       []string     `json:"blocks_removed"`
	BlocksModified      FieldChanges `json:"blocks_modified"`
	ConnectionsAdded    []string     `json:"connections_added"`
	ConnectionsRemoved  []string     `json:"connections_removed"`
	ConnectionsModified FieldChanges `json:"connections_modified"`
	Renamed             *ValueChange `json:"renamed,omitempty"`
}

// Empty reports whether nothing changed on the canvas.
func (c *CanvasChanges) Empty() bool {
	return len(c.BlocksAdded) == 0 && len(c.BlocksRemoved) == 0 && len(c.BlocksModified) == 0 &&
		len(c.ConnectionsAdded) == 0 && len(c.ConnectionsRemoved) == 0 && len(c.ConnectionsModified) == 0 &&
		c.Renamed == nil
}

// ProjectComparison is the structural diff between the in-memory project and
// its on-disk copy.
type ProjectComparison struct {
	MainBlocksAdded         []string     `json:"main_blocks_added"`
	MainBlocksRemoved       []string     `json:"main_blocks_removed"`
	MainBlocksModified      FieldChanges `json:"main_blocks_modified"`
	MainConnectionsAdded    []string     `json:"main_connections_added"`
	MainConnectionsRemoved  []string     `json:"main_connections_removed"`
	MainConnectionsModified FieldChanges `json:"main_connections_modified"`

	FunctionCanvasesAdded    []string                  `json:"function_canvases_added"`
	FunctionCanvasesRemoved  []string                  `json:"function_canvases_removed"`
	FunctionCanvasesModified map[string]*CanvasChanges `json:"function_canvases_modified"`

	VariablesAdded    []string                 `json:"variables_added"`
	VariablesRemoved  []string                 `json:"variables_removed"`
	VariablesModified map[string]BindingChange `json:"variables_modified"`
	VariablesChanged  bool                     `json:"variables_changed"`

	DevicesAdded    []string                 `json:"devices_added"`
	DevicesRemoved  []string                 `json:"devices_removed"`
	DevicesModified map[string]BindingChange `json:"devices_modified"`
	DevicesChanged  bool                     `json:"devices_changed"`

	SettingsModified map[string]ValueChange `json:"settings_modified"`

	HasChanges bool `json:"has_changes"`
}

// NewProjectComparison returns a comparison with every collection allocated.
func NewProjectComparison() *ProjectComparison {
	return &ProjectComparison{
		MainBlocksAdded:          []string{},
		MainBlocksRemoved:        []string{},
		MainBlocksModified:       FieldChanges{},
		MainConnectionsAdded:     []string{},
		MainConnectionsRemoved:   []string{},
		MainConnectionsModified:  FieldChanges{},
		FunctionCanvasesAdded:    []string{},
		FunctionCanvasesRemoved:  []string{},
		FunctionCanvasesModified: map[string]*CanvasChanges{},
		VariablesAdded:           []string{},
		VariablesRemoved:         []string{},
		VariablesModified:        map[string]BindingChange{},
		DevicesAdded:             []string{},
		DevicesRemoved:           []string{},
		DevicesModified:          map[string]BindingChange{},
		SettingsModified:         map[string]ValueChange{},
	}
}
