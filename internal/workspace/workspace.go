// Package workspace is the single owner of the open project. Every UI
// command goes through it: it checks the gates of the canvas and dialog
// machines, applies the command to the diagram editor, and hands compiled
// artifacts to the execution manager.
package workspace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Kotoad/APP-PyQt-sub000/internal/blockspec"
	"github.com/Kotoad/APP-PyQt-sub000/internal/canvas"
	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/diff"
	"github.com/Kotoad/APP-PyQt-sub000/internal/execution"
	"github.com/Kotoad/APP-PyQt-sub000/internal/i18n"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/persist"
	"github.com/Kotoad/APP-PyQt-sub000/internal/remote"
	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
)

// ErrGateClosed rejects a command the current interaction state forbids.
var ErrGateClosed = errors.New("gate_closed")

// DefaultProjectName names projects created without a name.
const DefaultProjectName = "Untitled"

// Runner starts and stops program runs.
type Runner interface {
	Start(req execution.Request) (*models.RunInfo, error)
	Stop() bool
	Subscribe() (<-chan models.RunEvent, func())
}

// Options wires a workspace. Store, Runner and ArtifactPath are required.
type Options struct {
	Store        storage.Store
	Runner       Runner
	Compiler     *compiler.Compiler
	Specs        *blockspec.Catalog
	Translations *i18n.Catalog
	ArtifactPath string
	SSHPort      int
}

// Workspace owns the open project. It is safe for concurrent use; commands
// are serialized in arrival order.
type Workspace struct {
	mu       sync.Mutex
	opts     Options
	editor   *diagram.Editor
	machines map[string]*canvas.Machine
	dialogs  *canvas.Dialogs
	settings models.AppSettings
	artifact *compiler.Artifact
}

// New creates a workspace with an empty project and the stored app settings.
func New(opts Options) (*Workspace, error) {
	if opts.Store == nil || opts.Runner == nil || opts.ArtifactPath == "" {
		return nil, fmt.Errorf("workspace: store, runner and artifact path are required")
	}
	if opts.Compiler == nil {
		opts.Compiler = compiler.New(nil)
	}
	if opts.Specs == nil {
		opts.Specs = blockspec.Default()
	}
	if opts.Translations == nil {
		opts.Translations = i18n.Default()
	}
	if opts.SSHPort == 0 {
		opts.SSHPort = 22
	}

	settings, err := opts.Store.LoadSettings()
	if err != nil && !errors.Is(err, storage.ErrMissingFile) {
		fmt.Printf("[Workspace] Warning: settings: %v, using defaults\n", err)
		settings = models.DefaultAppSettings()
	}

	w := &Workspace{
		opts:     opts,
		dialogs:  canvas.NewDialogs(),
		settings: settings,
	}
	p := models.NewProject(DefaultProjectName)
	w.applyTarget(p)
	if err := w.load(p); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workspace) load(p *models.Project) error {
	if w.editor == nil {
		e, err := diagram.NewEditor(p, w.opts.Specs)
		if err != nil {
			return err
		}
		w.editor = e
	} else if err := w.editor.Load(p); err != nil {
		return err
	}
	w.machines = make(map[string]*canvas.Machine)
	w.artifact = nil
	return nil
}

func (w *Workspace) applyTarget(p *models.Project) {
	p.Settings.RPIModelIndex = w.settings.RPIModelIndex
	p.Settings.RPIModel = w.settings.RPIModel
}

// machine returns the interaction machine of a canvas, creating it on
// first use.
func (w *Workspace) machine(canvasID string) (*canvas.Machine, error) {
	if canvasID == "" {
		canvasID = models.MainCanvasID
	}
	if _, ok := w.editor.Project().Canvas(canvasID); !ok {
		return nil, fmt.Errorf("%w: canvas %s", diagram.ErrNotFound, canvasID)
	}
	m, ok := w.machines[canvasID]
	if !ok {
		m = canvas.NewMachine()
		w.machines[canvasID] = m
	}
	return m, nil
}

// gate fails with ErrGateClosed while compiling or when open reports false.
func (w *Workspace) gate(canvasID string, open func(*canvas.Machine) bool) (*canvas.Machine, error) {
	if w.dialogs.Compiling() {
		return nil, fmt.Errorf("%w: compiling", ErrGateClosed)
	}
	m, err := w.machine(canvasID)
	if err != nil {
		return nil, err
	}
	if !open(m) {
		return nil, fmt.Errorf("%w: canvas %s is %s", ErrGateClosed, canvasID, m.State())
	}
	return m, nil
}

// editGate checks the model is editable: not compiling and every canvas idle.
func (w *Workspace) editGate() error {
	if w.dialogs.Compiling() {
		return fmt.Errorf("%w: compiling", ErrGateClosed)
	}
	for id, m := range w.machines {
		if !m.CanEdit() {
			return fmt.Errorf("%w: canvas %s is %s", ErrGateClosed, id, m.State())
		}
	}
	return nil
}

// Project returns a deep copy of the open project.
func (w *Workspace) Project() *models.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.editor.Project().Clone()
}

// Document returns the open project as a project file.
func (w *Workspace) Document() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return persist.Encode(w.editor.Project())
}

// CanvasState returns the interaction state of a canvas.
func (w *Workspace) CanvasState(canvasID string) (canvas.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.machine(canvasID)
	if err != nil {
		return canvas.Idle, err
	}
	return m.State(), nil
}

// Duplicates returns the binding names used more than once, keyed by scope.
func (w *Workspace) Duplicates() map[string][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string][]string)
	for _, c := range w.editor.Project().Canvases() {
		if names := w.editor.Duplicates(c.ID); len(names) > 0 {
			out[c.ID] = names
		}
	}
	return out
}

// NewProject replaces the open project with an empty one.
func (w *Workspace) NewProject(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dialogs.Compiling() {
		return fmt.Errorf("%w: compiling", ErrGateClosed)
	}
	if name == "" {
		name = DefaultProjectName
	}
	p := models.NewProject(name)
	w.applyTarget(p)
	fmt.Printf("[Workspace] New project %q\n", name)
	return w.load(p)
}

// OpenProject loads a saved project by name, falling back to its backup.
func (w *Workspace) OpenProject(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dialogs.Compiling() {
		return fmt.Errorf("%w: compiling", ErrGateClosed)
	}
	p, err := w.opts.Store.LoadProject(name)
	if err != nil {
		return err
	}
	if err := w.load(p); err != nil {
		return err
	}
	fmt.Printf("[Workspace] Opened project %q\n", p.Metadata.Name)
	return nil
}

// SaveProject writes the open project. A non-empty name renames it; the
// rename is kept only if the save succeeds.
func (w *Workspace) SaveProject(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.editor.Project()
	prev := p.Metadata.Name
	if name != "" {
		p.Metadata.Name = name
	}
	path, err := w.opts.Store.SaveProject(p)
	if err != nil {
		p.Metadata.Name = prev
		return "", err
	}
	return path, nil
}

// Diff compares the open project with its saved file. A project that was
// never saved compares against an empty one.
func (w *Workspace) Diff() (*models.ProjectComparison, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.editor.Project()
	saved, err := w.opts.Store.ReadProject(p.Metadata.Name)
	if err != nil && !errors.Is(err, storage.ErrMissingFile) {
		return nil, err
	}
	return diff.Projects(p, saved)
}

// RecentProjects lists saved projects, newest first.
func (w *Workspace) RecentProjects(limit int) ([]*models.ProjectInfo, error) {
	return w.opts.Store.ListProjects(limit)
}

// BeginAddBlock arms placement of a block on a canvas.
func (w *Workspace) BeginAddBlock(canvasID string, t models.BlockType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.opts.Specs.Get(t); !ok {
		return fmt.Errorf("%w: block type %q", diagram.ErrInvalidParam, t)
	}
	m, err := w.gate(canvasID, (*canvas.Machine).CanBeginAddBlock)
	if err != nil {
		return err
	}
	m.BeginAddBlock(t)
	return nil
}

// ClickCanvas places the armed block at the grid point nearest (x, y).
func (w *Workspace) ClickCanvas(canvasID string, x, y int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.gate(canvasID, (*canvas.Machine).CanPlaceBlock)
	if err != nil {
		return "", err
	}
	t, _ := m.ClickCanvas()
	return w.editor.AddBlock(canvasID, t, w.opts.Specs.Snap(x), w.opts.Specs.Snap(y), "")
}

// ClickOutputPort starts a path at an output port.
func (w *Workspace) ClickOutputPort(canvasID, blockID string, port models.Port) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.gate(canvasID, (*canvas.Machine).CanStartPath)
	if err != nil {
		return err
	}
	if err := w.onCanvas(canvasID, blockID); err != nil {
		return err
	}
	if !m.ClickOutputPort(canvas.PortRef{BlockID: blockID, Port: port}) {
		return fmt.Errorf("%w: %s is not an output port", diagram.ErrPort, port)
	}
	return nil
}

// ClickInputPort finishes the pending path at an input port and returns
// the new path id. A non-input port keeps the path pending.
func (w *Workspace) ClickInputPort(canvasID, blockID string, port models.Port) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.gate(canvasID, (*canvas.Machine).CanFinishPath)
	if err != nil {
		return "", err
	}
	from, ok := m.ClickInputPort(canvas.PortRef{BlockID: blockID, Port: port})
	if !ok {
		return "", fmt.Errorf("%w: %s is not an input port", diagram.ErrPort, port)
	}
	return w.editor.AddPath(from.BlockID, from.Port, blockID, port, nil)
}

// PressOnBlock starts dragging a block.
func (w *Workspace) PressOnBlock(canvasID, blockID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.gate(canvasID, (*canvas.Machine).CanMove)
	if err != nil {
		return err
	}
	if err := w.onCanvas(canvasID, blockID); err != nil {
		return err
	}
	m.PressOnBlock(blockID)
	return nil
}

// Drag moves the dragged block; incident paths follow.
func (w *Workspace) Drag(canvasID string, x, y int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.machine(canvasID)
	if err != nil {
		return err
	}
	id, ok := m.Moving()
	if !ok {
		return fmt.Errorf("%w: canvas %s is %s", ErrGateClosed, canvasID, m.State())
	}
	return w.editor.MoveBlock(id, w.opts.Specs.Snap(x), w.opts.Specs.Snap(y))
}

// Release drops the dragged block at (x, y).
func (w *Workspace) Release(canvasID string, x, y int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.machine(canvasID)
	if err != nil {
		return err
	}
	id, ok := m.Release()
	if !ok {
		return fmt.Errorf("%w: canvas %s is %s", ErrGateClosed, canvasID, m.State())
	}
	return w.editor.MoveBlock(id, w.opts.Specs.Snap(x), w.opts.Specs.Snap(y))
}

// Cancel aborts the gesture in progress and reports whether there was one.
func (w *Workspace) Cancel(canvasID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.machine(canvasID)
	if err != nil {
		return false, err
	}
	return m.Cancel(), nil
}

// DeleteItem removes a block or a path from a canvas.
func (w *Workspace) DeleteItem(canvasID, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, err := w.gate(canvasID, (*canvas.Machine).CanDelete)
	if err != nil {
		return err
	}
	_, err = m.Delete(func() error {
		c, _ := w.editor.Project().Canvas(canvasID)
		switch {
		case c.Blocks.Has(id):
			return w.editor.DeleteBlock(id)
		case c.Paths.Has(id):
			return w.editor.DeletePath(id)
		}
		return fmt.Errorf("%w: %s on canvas %s", diagram.ErrNotFound, id, canvasID)
	})
	return err
}

func (w *Workspace) onCanvas(canvasID, blockID string) error {
	_, c, err := w.editor.Block(blockID)
	if err != nil {
		return err
	}
	if canvasID == "" {
		canvasID = models.MainCanvasID
	}
	if c.ID != canvasID {
		return fmt.Errorf("%w: block %s is not on canvas %s", diagram.ErrNotFound, blockID, canvasID)
	}
	return nil
}

// SetParam writes one block parameter.
func (w *Workspace) SetParam(blockID, key string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, c, err := w.editor.Block(blockID)
	if err != nil {
		return err
	}
	if _, err := w.gate(c.ID, (*canvas.Machine).CanEdit); err != nil {
		return err
	}
	return w.editor.SetParam(blockID, key, value)
}

// AddVariable adds a variable to a scope.
func (w *Workspace) AddVariable(scopeID string, f diagram.VariableFields) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return "", err
	}
	return w.editor.AddVariable(scopeID, f)
}

// AddDevice adds a device to a scope.
func (w *Workspace) AddDevice(scopeID string, f diagram.DeviceFields) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return "", err
	}
	return w.editor.AddDevice(scopeID, f)
}

// RenameBinding renames a variable or device.
func (w *Workspace) RenameBinding(scopeID, id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	return w.editor.RenameBinding(scopeID, id, name)
}

// UpdateVariable replaces every field of a variable.
func (w *Workspace) UpdateVariable(scopeID, id string, f diagram.VariableFields) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	return w.editor.UpdateVariable(scopeID, id, f)
}

// UpdateDevice replaces every field of a device.
func (w *Workspace) UpdateDevice(scopeID, id string, f diagram.DeviceFields) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	return w.editor.UpdateDevice(scopeID, id, f)
}

// DeleteBinding removes a variable or device.
func (w *Workspace) DeleteBinding(scopeID, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	return w.editor.DeleteBinding(scopeID, id)
}

// AddFunctionCanvas creates a function canvas.
func (w *Workspace) AddFunctionCanvas(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return "", err
	}
	return w.editor.AddFunctionCanvas(name)
}

// RenameFunctionCanvas renames a function and its call sites.
func (w *Workspace) RenameFunctionCanvas(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	return w.editor.RenameFunctionCanvas(id, name)
}

// DeleteFunctionCanvas removes a function canvas and its machine.
func (w *Workspace) DeleteFunctionCanvas(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editGate(); err != nil {
		return err
	}
	if err := w.editor.DeleteFunctionCanvas(id); err != nil {
		return err
	}
	delete(w.machines, id)
	return nil
}

// OpenDialog shows a dialog; raised reports it was already open.
func (w *Workspace) OpenDialog(d canvas.Dialog) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !d.Valid() {
		return false, fmt.Errorf("%w: dialog %q", diagram.ErrInvalidParam, d)
	}
	if d == canvas.DialogCompiling {
		return false, fmt.Errorf("%w: %s is opened by Compile", diagram.ErrInvalidParam, d)
	}
	return w.dialogs.Open(d), nil
}

// CloseDialog hides a dialog and reports whether it was open.
func (w *Workspace) CloseDialog(d canvas.Dialog) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dialogs.Close(d)
}

// Dialogs lists the open dialogs, back to front.
func (w *Workspace) Dialogs() []canvas.Dialog {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dialogs.List()
}

// Compile writes the artifact for the open project. On failure the
// previous artifact is left in place.
func (w *Workspace) Compile() (*compiler.Artifact, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compileLocked()
}

func (w *Workspace) compileLocked() (*compiler.Artifact, error) {
	w.dialogs.Open(canvas.DialogCompiling)
	defer w.dialogs.Close(canvas.DialogCompiling)

	a, err := w.opts.Compiler.Build(w.editor.Project(), w.opts.ArtifactPath)
	if err != nil {
		return nil, err
	}
	w.artifact = a
	return a, nil
}

// Artifact returns the last successful compilation.
func (w *Workspace) Artifact() (*compiler.Artifact, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.artifact, w.artifact != nil
}

// Run compiles the open project and starts it on the configured board.
func (w *Workspace) Run() (*models.RunInfo, error) {
	w.mu.Lock()
	a, err := w.compileLocked()
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	req := execution.Request{
		Artifact: w.opts.ArtifactPath,
		Target: remote.Target{
			Host:     w.settings.RPIHost,
			Port:     w.opts.SSHPort,
			User:     w.settings.RPIUser,
			Password: w.settings.RPIPassword,
		},
		TargetIndex: a.Target,
		Pins:        a.Pins,
	}
	w.mu.Unlock()

	return w.opts.Runner.Start(req)
}

// Stop stops the active run.
func (w *Workspace) Stop() bool {
	return w.opts.Runner.Stop()
}

// Events subscribes to run events.
func (w *Workspace) Events() (<-chan models.RunEvent, func()) {
	return w.opts.Runner.Subscribe()
}

// Autosave snapshots the open project. Only the clone is taken under the
// lock; encoding and writing happen outside it.
func (w *Workspace) Autosave() (*storage.Snapshot, error) {
	w.mu.Lock()
	clone := w.editor.Project().Clone()
	w.mu.Unlock()
	return w.opts.Store.SaveAutosave(clone)
}

// Snapshot returns the open project in a snapshot envelope without
// writing it anywhere.
func (w *Workspace) Snapshot() (*storage.Snapshot, error) {
	w.mu.Lock()
	clone := w.editor.Project().Clone()
	w.mu.Unlock()
	return storage.NewSnapshot(clone)
}

// RecoverAutosave replaces the open project with the latest snapshot.
func (w *Workspace) RecoverAutosave() (*storage.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dialogs.Compiling() {
		return nil, fmt.Errorf("%w: compiling", ErrGateClosed)
	}
	p, snap, err := w.opts.Store.LoadAutosave()
	if err != nil {
		return nil, err
	}
	if err := w.load(p); err != nil {
		return nil, err
	}
	fmt.Printf("[Workspace] Recovered autosave %s of %q\n", snap.ID[:8], snap.ProjectName)
	return snap, nil
}

// AppSettings returns the current app settings.
func (w *Workspace) AppSettings() models.AppSettings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// UpdateAppSettings normalizes, stores and applies new settings. The
// selected board also becomes the open project's target.
func (w *Workspace) UpdateAppSettings(s models.AppSettings) (models.AppSettings, error) {
	s.Normalize()
	if !w.opts.Translations.Has(s.Language) {
		s.Language = i18n.DefaultLanguage
	}
	if err := w.opts.Store.SaveSettings(s); err != nil {
		return w.AppSettings(), err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings = s
	w.applyTarget(w.editor.Project())
	return s, nil
}

// Translate returns key in the configured language.
func (w *Workspace) Translate(key string, args ...any) string {
	w.mu.Lock()
	lang := w.settings.Language
	w.mu.Unlock()
	return w.opts.Translations.T(lang, key, args...)
}

// Languages lists the available UI languages.
func (w *Workspace) Languages() ([]i18n.Language, error) {
	return w.opts.Translations.Languages()
}
