package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/canvas"
	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/execution"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/persist"
	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
	"github.com/Kotoad/APP-PyQt-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainCanvas = models.MainCanvasID

type fixture struct {
	ws       *Workspace
	store    *storage.LocalStore
	mock     *testutil.MockBackend
	manager  *execution.Manager
	artifact string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "projects"), filepath.Join(dir, "backup"))
	require.NoError(t, err)
	mock := testutil.NewMockBackend()
	manager := execution.NewManager(mock, mock, nil)
	artifact := filepath.Join(dir, "build", compiler.DefaultArtifact)
	ws, err := New(Options{Store: store, Runner: manager, ArtifactPath: artifact})
	require.NoError(t, err)
	return &fixture{ws: ws, store: store, mock: mock, manager: manager, artifact: artifact}
}

// place adds a block through the canvas gestures.
func (f *fixture) place(t *testing.T, canvasID string, typ models.BlockType, x, y int) string {
	t.Helper()
	require.NoError(t, f.ws.BeginAddBlock(canvasID, typ))
	id, err := f.ws.ClickCanvas(canvasID, x, y)
	require.NoError(t, err)
	return id
}

func (f *fixture) connect(t *testing.T, canvasID, from string, fromPort models.Port, to string, toPort models.Port) string {
	t.Helper()
	require.NoError(t, f.ws.ClickOutputPort(canvasID, from, fromPort))
	id, err := f.ws.ClickInputPort(canvasID, to, toPort)
	require.NoError(t, err)
	return id
}

// blink builds Start -> Blink(LED1) -> End on the main canvas.
func (f *fixture) blink(t *testing.T) (start, blink, end string) {
	t.Helper()
	_, err := f.ws.AddDevice(mainCanvas, diagram.DeviceFields{Name: "LED1", Type: models.DeviceOutput, PIN: 17})
	require.NoError(t, err)
	start = f.place(t, mainCanvas, models.BlockStart, 0, 0)
	blink = f.place(t, mainCanvas, models.BlockBlinkLED, 200, 0)
	end = f.place(t, mainCanvas, models.BlockEnd, 400, 0)
	require.NoError(t, f.ws.SetParam(blink, models.KeyValue1Name, "LED1"))
	require.NoError(t, f.ws.SetParam(blink, models.KeySleepTime, 500))
	f.connect(t, mainCanvas, start, models.PortOut, blink, models.PortIn)
	f.connect(t, mainCanvas, blink, models.PortOut, end, models.PortIn)
	return start, blink, end
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t)
	p := f.ws.Project()
	assert.Equal(t, DefaultProjectName, p.Metadata.Name)
	assert.Equal(t, models.DefaultTargetIndex, p.Settings.RPIModelIndex)
	assert.Equal(t, "en", f.ws.AppSettings().Language)

	_, err := New(Options{})
	assert.Error(t, err)
}

func TestPlaceBlockSnapsToGrid(t *testing.T) {
	f := newFixture(t)
	id := f.place(t, mainCanvas, models.BlockTimer, 112, 38)
	b, ok := f.ws.Project().Main.Blocks.Get(id)
	require.True(t, ok)
	assert.Equal(t, 100, b.X)
	assert.Equal(t, 50, b.Y)

	state, err := f.ws.CanvasState(mainCanvas)
	require.NoError(t, err)
	assert.Equal(t, canvas.Idle, state)
}

func TestGatesRejectConflictingGestures(t *testing.T) {
	f := newFixture(t)
	timer := f.place(t, mainCanvas, models.BlockTimer, 0, 0)

	require.NoError(t, f.ws.BeginAddBlock(mainCanvas, models.BlockEnd))
	assert.ErrorIs(t, f.ws.PressOnBlock(mainCanvas, timer), ErrGateClosed)
	assert.ErrorIs(t, f.ws.DeleteItem(mainCanvas, timer), ErrGateClosed)
	assert.ErrorIs(t, f.ws.SetParam(timer, models.KeySleepTime, 100), ErrGateClosed)
	_, err := f.ws.AddVariable(mainCanvas, diagram.VariableFields{Name: "x"})
	assert.ErrorIs(t, err, ErrGateClosed)

	cancelled, err := f.ws.Cancel(mainCanvas)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.NoError(t, f.ws.SetParam(timer, models.KeySleepTime, 100))

	_, err = f.ws.ClickCanvas(mainCanvas, 0, 0)
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Error(t, f.ws.BeginAddBlock(mainCanvas, "Teleport"))
}

func TestCanvasesHaveIndependentMachines(t *testing.T) {
	f := newFixture(t)
	fid, err := f.ws.AddFunctionCanvas("F")
	require.NoError(t, err)

	require.NoError(t, f.ws.BeginAddBlock(mainCanvas, models.BlockTimer))
	require.NoError(t, f.ws.BeginAddBlock(fid, models.BlockStart))
	id, err := f.ws.ClickCanvas(fid, 0, 0)
	require.NoError(t, err)
	fc, ok := f.ws.Project().Functions.Get(fid)
	require.True(t, ok)
	assert.True(t, fc.Blocks.Has(id))

	state, err := f.ws.CanvasState(mainCanvas)
	require.NoError(t, err)
	assert.Equal(t, canvas.AddingBlock, state)

	_, err = f.ws.CanvasState("missing")
	assert.ErrorIs(t, err, diagram.ErrNotFound)
}

func TestPathGestures(t *testing.T) {
	f := newFixture(t)
	start := f.place(t, mainCanvas, models.BlockStart, 0, 0)
	end := f.place(t, mainCanvas, models.BlockEnd, 200, 100)

	// An input port cannot start a path.
	assert.ErrorIs(t, f.ws.ClickOutputPort(mainCanvas, end, models.PortIn), diagram.ErrPort)

	require.NoError(t, f.ws.ClickOutputPort(mainCanvas, start, models.PortOut))
	// An output port cannot finish one; the path stays pending.
	_, err := f.ws.ClickInputPort(mainCanvas, end, models.PortOut)
	assert.ErrorIs(t, err, diagram.ErrPort)
	state, _ := f.ws.CanvasState(mainCanvas)
	assert.Equal(t, canvas.AddingPath, state)

	pid, err := f.ws.ClickInputPort(mainCanvas, end, models.PortIn)
	require.NoError(t, err)
	p := f.ws.Project()
	path, ok := p.Main.Paths.Get(pid)
	require.True(t, ok)
	assert.Equal(t, start, path.From)
	assert.Equal(t, end, path.To)
}

func TestDragAndRelease(t *testing.T) {
	f := newFixture(t)
	start := f.place(t, mainCanvas, models.BlockStart, 0, 0)
	end := f.place(t, mainCanvas, models.BlockEnd, 200, 0)
	pid := f.connect(t, mainCanvas, start, models.PortOut, end, models.PortIn)

	assert.ErrorIs(t, f.ws.Drag(mainCanvas, 10, 10), ErrGateClosed)
	require.NoError(t, f.ws.PressOnBlock(mainCanvas, end))
	require.NoError(t, f.ws.Drag(mainCanvas, 260, 40))
	require.NoError(t, f.ws.Release(mainCanvas, 310, 110))

	p := f.ws.Project()
	b, _ := p.Main.Blocks.Get(end)
	assert.Equal(t, 300, b.X)
	assert.Equal(t, 100, b.Y)
	path, _ := p.Main.Paths.Get(pid)
	last := path.Waypoints[len(path.Waypoints)-1]
	assert.Equal(t, models.Point{X: 300, Y: 125}, last)

	assert.ErrorIs(t, f.ws.Release(mainCanvas, 0, 0), ErrGateClosed)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	start, blink, _ := f.blink(t)
	b, ok := f.ws.Project().Main.Blocks.Get(blink)
	require.True(t, ok)
	var pid string
	for id := range b.InConnections {
		pid = id
	}

	require.NoError(t, f.ws.DeleteItem(mainCanvas, pid))
	assert.False(t, f.ws.Project().Main.Paths.Has(pid))

	require.NoError(t, f.ws.DeleteItem(mainCanvas, blink))
	p := f.ws.Project()
	assert.False(t, p.Main.Blocks.Has(blink))
	assert.Equal(t, 0, p.Main.Paths.Len())
	sb, _ := p.Main.Blocks.Get(start)
	assert.Empty(t, sb.OutConnections)

	assert.ErrorIs(t, f.ws.DeleteItem(mainCanvas, "nope"), diagram.ErrNotFound)
	state, _ := f.ws.CanvasState(mainCanvas)
	assert.Equal(t, canvas.Idle, state)
}

func TestSaveOpenAndDiff(t *testing.T) {
	f := newFixture(t)

	// Never saved: everything is new.
	_, blink, _ := f.blink(t)
	cmp, err := f.ws.Diff()
	require.NoError(t, err)
	assert.True(t, cmp.HasChanges)
	assert.Contains(t, cmp.MainBlocksAdded, blink)

	path, err := f.ws.SaveProject("blinky")
	require.NoError(t, err)
	assert.FileExists(t, path)
	cmp, err = f.ws.Diff()
	require.NoError(t, err)
	assert.False(t, cmp.HasChanges)

	require.NoError(t, f.ws.SetParam(blink, models.KeySleepTime, 250))
	cmp, err = f.ws.Diff()
	require.NoError(t, err)
	assert.True(t, cmp.HasChanges)
	assert.Contains(t, cmp.MainBlocksModified, blink)

	require.NoError(t, f.ws.NewProject(""))
	assert.Equal(t, 0, f.ws.Project().Main.Blocks.Len())

	require.NoError(t, f.ws.OpenProject("blinky"))
	p := f.ws.Project()
	assert.Equal(t, "blinky", p.Metadata.Name)
	assert.Equal(t, 3, p.Main.Blocks.Len())

	recent, err := f.ws.RecentProjects(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "blinky", recent[0].Name)

	assert.ErrorIs(t, f.ws.OpenProject("missing"), storage.ErrMissingFile)
}

func TestSaveProjectRejectedNameKeepsName(t *testing.T) {
	f := newFixture(t)
	_, err := f.ws.SaveProject("blinky")
	require.NoError(t, err)

	for _, bad := range []string{"   ", ".project"} {
		_, err := f.ws.SaveProject(bad)
		require.Error(t, err, bad)
		assert.Equal(t, "blinky", f.ws.Project().Metadata.Name, bad)
	}

	path, err := f.ws.SaveProject("")
	require.NoError(t, err)
	assert.Equal(t, "blinky.project", filepath.Base(path))
}

func TestBindingsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	a, err := f.ws.AddVariable(mainCanvas, diagram.VariableFields{Name: "x", Type: models.VarInt, Value: "1"})
	require.NoError(t, err)
	b, err := f.ws.AddDevice(mainCanvas, diagram.DeviceFields{Name: "LED", PIN: 17})
	require.NoError(t, err)

	require.NoError(t, f.ws.RenameBinding(mainCanvas, b, "x"))
	dups := f.ws.Duplicates()
	assert.Equal(t, []string{"x"}, dups[mainCanvas])

	_, err = f.ws.Compile()
	assert.ErrorIs(t, err, compiler.ErrNameCollision)

	require.NoError(t, f.ws.UpdateDevice(mainCanvas, b, diagram.DeviceFields{Name: "LED", Type: models.DeviceOutput, PIN: 18}))
	require.NoError(t, f.ws.UpdateVariable(mainCanvas, a, diagram.VariableFields{Name: "y", Type: models.VarInt, Value: "2"}))
	assert.Empty(t, f.ws.Duplicates())

	require.NoError(t, f.ws.DeleteBinding(mainCanvas, a))
	assert.Equal(t, 0, f.ws.Project().Main.Scope.Variables.Len())
}

func TestFunctionCanvases(t *testing.T) {
	f := newFixture(t)
	id, err := f.ws.AddFunctionCanvas("F")
	require.NoError(t, err)
	require.NoError(t, f.ws.RenameFunctionCanvas(id, "G"))
	fc, ok := f.ws.Project().FunctionByName("G")
	require.True(t, ok)
	assert.Equal(t, id, fc.ID)

	require.NoError(t, f.ws.BeginAddBlock(id, models.BlockStart))
	assert.ErrorIs(t, f.ws.DeleteFunctionCanvas(id), ErrGateClosed)
	_, err = f.ws.Cancel(id)
	require.NoError(t, err)
	require.NoError(t, f.ws.DeleteFunctionCanvas(id))
	assert.Equal(t, 0, f.ws.Project().Functions.Len())
}

func TestDialogs(t *testing.T) {
	f := newFixture(t)
	raised, err := f.ws.OpenDialog(canvas.DialogSettings)
	require.NoError(t, err)
	assert.False(t, raised)
	_, err = f.ws.OpenDialog(canvas.DialogHelp)
	require.NoError(t, err)
	raised, err = f.ws.OpenDialog(canvas.DialogSettings)
	require.NoError(t, err)
	assert.True(t, raised)
	assert.Equal(t, []canvas.Dialog{canvas.DialogHelp, canvas.DialogSettings}, f.ws.Dialogs())

	_, err = f.ws.OpenDialog(canvas.DialogCompiling)
	assert.ErrorIs(t, err, diagram.ErrInvalidParam)
	_, err = f.ws.OpenDialog("NOPE")
	assert.ErrorIs(t, err, diagram.ErrInvalidParam)

	assert.True(t, f.ws.CloseDialog(canvas.DialogSettings))
	assert.False(t, f.ws.CloseDialog(canvas.DialogSettings))
}

func TestCompileKeepsPreviousArtifactOnFailure(t *testing.T) {
	f := newFixture(t)
	f.blink(t)
	a, err := f.ws.Compile()
	require.NoError(t, err)
	first, err := os.ReadFile(f.artifact)
	require.NoError(t, err)
	assert.Equal(t, a.Source, first)

	_, err = f.ws.AddDevice(mainCanvas, diagram.DeviceFields{Name: "LED1", PIN: 18})
	require.NoError(t, err)
	_, err = f.ws.Compile()
	assert.ErrorIs(t, err, compiler.ErrNameCollision)

	after, err := os.ReadFile(f.artifact)
	require.NoError(t, err)
	assert.Equal(t, first, after)
	kept, ok := f.ws.Artifact()
	require.True(t, ok)
	assert.Equal(t, a, kept)
	assert.Empty(t, f.ws.Dialogs())
}

func TestRunStreamsEvents(t *testing.T) {
	f := newFixture(t)
	f.blink(t)
	_, err := f.ws.UpdateAppSettings(models.AppSettings{RPIModelIndex: 6, RPIHost: "pi.local", RPIUser: "pi", RPIPassword: "pw"})
	require.NoError(t, err)
	f.mock.Program = testutil.Script{
		Chunks: []string{"blinking\n", `__REPORT__{"variables":{},"devices":{"LED1":{"state":0}}}` + "\n"},
	}

	events, unsubscribe := f.ws.Events()
	defer unsubscribe()
	info, err := f.ws.Run()
	require.NoError(t, err)
	assert.Equal(t, "pi.local", info.Host)

	var got []models.RunEvent
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			got = append(got, ev)
			done = ev.Type == models.RunEventCompleted
		case <-timeout:
			t.Fatal("run did not complete")
		}
	}
	assert.True(t, got[len(got)-1].OK)

	uploaded, ok := f.mock.Uploaded("/home/pi/File.py")
	require.True(t, ok)
	assert.True(t, strings.Contains(string(uploaded), "for _ in range(2):"))
	require.True(t, f.manager.Wait(info.ID, 5*time.Second))
	assert.False(t, f.ws.Stop())
}

func TestRunFailsWithoutCompiling(t *testing.T) {
	f := newFixture(t)
	_, err := f.ws.AddVariable(mainCanvas, diagram.VariableFields{Name: "a"})
	require.NoError(t, err)
	_, err = f.ws.AddVariable(mainCanvas, diagram.VariableFields{Name: "a"})
	require.NoError(t, err)
	_, err = f.ws.Run()
	assert.ErrorIs(t, err, compiler.ErrNameCollision)
	assert.Empty(t, f.manager.Runs())
}

func TestAutosaveAndRecover(t *testing.T) {
	f := newFixture(t)
	f.blink(t)
	snap, err := f.ws.Autosave()
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectName, snap.ProjectName)

	require.NoError(t, f.ws.NewProject("other"))
	recovered, err := f.ws.RecoverAutosave()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, recovered.ID)
	assert.Equal(t, 3, f.ws.Project().Main.Blocks.Len())

	exported, err := f.ws.Snapshot()
	require.NoError(t, err)
	p, err := persist.Decode(exported.Document)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Main.Blocks.Len())
}

func TestAppSettingsAndTranslate(t *testing.T) {
	f := newFixture(t)
	s, err := f.ws.UpdateAppSettings(models.AppSettings{RPIModelIndex: 0, Language: "cs"})
	require.NoError(t, err)
	assert.Equal(t, models.TargetModels[0], s.RPIModel)
	assert.Equal(t, 0, f.ws.Project().Settings.RPIModelIndex)
	assert.Equal(t, "Uložit", f.ws.Translate("main_GUI.menu.save"))

	loaded, err := f.store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "cs", loaded.Language)

	s, err = f.ws.UpdateAppSettings(models.AppSettings{RPIModelIndex: 42, Language: "xx"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTargetIndex, s.RPIModelIndex)
	assert.Equal(t, "en", s.Language)

	langs, err := f.ws.Languages()
	require.NoError(t, err)
	assert.Len(t, langs, 2)
}
