// Package compiler turns a project diagram into a Python program for the
// selected board. The walk starts at the Start block of the main canvas;
// each function canvas becomes a Python function.
package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

var (
	// ErrNameCollision aborts compilation when a scope has duplicate names.
	ErrNameCollision = diagram.ErrNameCollision
	// ErrCompile reports a project that cannot be compiled at all.
	ErrCompile = errors.New("compile_error")
)

// DefaultArtifact is the file name of the compiled program.
const DefaultArtifact = "File.py"

const indentUnit = "    "

// Artifact is the result of one compilation.
type Artifact struct {
	Source   []byte
	Dialect  string
	Target   int
	Pins     []int
	Warnings []string
}

// Compiler compiles projects with dialects from a registry.
type Compiler struct {
	registry *Registry
}

// New creates a compiler. A nil registry selects the global one.
func New(r *Registry) *Compiler {
	if r == nil {
		r = GetGlobalRegistry()
	}
	return &Compiler{registry: r}
}

// Compile renders p for the target model selected in its settings.
func (c *Compiler) Compile(p *models.Project) (*Artifact, error) {
	if p == nil || p.Main == nil {
		return nil, fmt.Errorf("%w: no project", ErrCompile)
	}
	if err := diagram.CheckNames(p); err != nil {
		return nil, err
	}
	d, err := c.registry.FindDialect(p.Settings.RPIModelIndex)
	if err != nil {
		return nil, err
	}

	pr := &program{
		p:     p,
		d:     d,
		w:     &writer{},
		usage: scanUsage(p),
		funcs: make(map[string]*function),
	}
	if err := pr.bind(); err != nil {
		return nil, err
	}
	pr.writePrelude()
	pr.writeFunctions()
	pr.writeMain()

	return &Artifact{
		Source:   []byte(pr.w.String()),
		Dialect:  d.Name(),
		Target:   p.Settings.RPIModelIndex,
		Pins:     p.Pins(),
		Warnings: pr.warnings,
	}, nil
}

// Build compiles p and writes the program to path. A failed compilation
// leaves any previous file at path untouched.
func (c *Compiler) Build(p *models.Project, path string) (*Artifact, error) {
	a, err := c.Compile(p)
	if err != nil {
		fmt.Printf("[Compiler] Compilation failed: %v\n", err)
		return nil, err
	}
	if err := WriteArtifact(path, a.Source); err != nil {
		return nil, err
	}
	fmt.Printf("[Compiler] Wrote %s (%d bytes, %s, %d warnings)\n", path, len(a.Source), a.Dialect, len(a.Warnings))
	return a, nil
}

// WriteArtifact replaces path with src through a temp file and rename.
func WriteArtifact(path string, src []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing artifact: %w", err)
	}
	return nil
}

type writer struct {
	buf   strings.Builder
	count int
}

func tabs(depth int) string {
	return strings.Repeat(indentUnit, depth)
}

func (w *writer) line(depth int, format string, args ...any) {
	w.buf.WriteString(tabs(depth))
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
	w.count++
}

// lines writes pre-rendered lines; an empty string is a blank line.
func (w *writer) lines(depth int, ls []string) {
	for _, l := range ls {
		if l == "" {
			w.blank()
			continue
		}
		w.line(depth, "%s", l)
	}
}

func (w *writer) blank() {
	w.buf.WriteByte('\n')
}

func (w *writer) String() string {
	return w.buf.String()
}

type function struct {
	canvas *models.Canvas
	ident  string
	names  *names
}

type program struct {
	p        *models.Project
	d        Dialect
	w        *writer
	usage    Usage
	main     *names
	funcs    map[string]*function
	order    []*function
	warnings []string
}

func (pr *program) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("[Compiler] Warning: %s\n", msg)
	pr.warnings = append(pr.warnings, msg)
}

func scanUsage(p *models.Project) Usage {
	var u Usage
	for _, c := range p.Canvases() {
		for _, b := range c.Blocks.Values() {
			switch b.Type {
			case models.BlockTimer, models.BlockBlinkLED, models.BlockButton:
				u.Time = true
			case models.BlockRandomNumber:
				u.Random = true
			case models.BlockPWMLED, models.BlockRGBLED:
				u.PWM = true
			case models.BlockNetworks:
				u.Network = true
				u.Time = true
			}
		}
	}
	return u
}

func (pr *program) bind() error {
	// Function names are module globals: no binding may shadow them.
	reserved := make(map[string]string)
	for _, c := range pr.p.Functions.Values() {
		ident := FunctionIdentifier(c.Name)
		if owner, ok := reserved[ident]; ok {
			return fmt.Errorf("%w: %s and function %q both become %s", ErrNameCollision, owner, c.Name, ident)
		}
		reserved[ident] = fmt.Sprintf("function %q", c.Name)
	}

	pr.main = newNames(nil)
	if err := pr.main.bind(pr.p.Main.Scope, models.MainCanvasID, reserved); err != nil {
		return err
	}

	// Function bodies reach main devices by their global identifier, so a
	// parameter of the same name would hide the pin.
	inner := make(map[string]string, len(reserved)+len(pr.main.devs))
	for id, owner := range reserved {
		inner[id] = owner
	}
	for name, id := range pr.main.devs {
		inner[id] = fmt.Sprintf("main device %q", name)
	}

	for _, c := range pr.p.Functions.Values() {
		n := newNames(pr.main)
		if err := n.bind(c.Scope, c.Name, inner); err != nil {
			return err
		}
		f := &function{canvas: c, ident: FunctionIdentifier(c.Name), names: n}
		pr.funcs[c.Name] = f
		pr.order = append(pr.order, f)
	}
	return nil
}

func (pr *program) writePrelude() {
	w := pr.w
	w.line(0, "# Project: %s", pr.p.Metadata.Name)
	w.line(0, "# Target: %s", models.TargetName(pr.p.Settings.RPIModelIndex))
	w.lines(0, pr.d.Imports(pr.usage))
	w.blank()
	if setup := pr.d.Setup(pr.usage); len(setup) > 0 {
		w.lines(0, setup)
		w.blank()
	}

	devices := pr.p.Main.Scope.Devices.Values()
	for _, d := range devices {
		id, ok := pr.main.devs[d.Name]
		if !ok {
			continue
		}
		w.line(0, "%s = %s", id, pr.d.DeviceValue(d))
		w.lines(0, pr.d.DeviceSetup(id, d))
	}
	for _, f := range pr.order {
		for _, d := range f.canvas.Scope.Devices.Values() {
			w.lines(0, pr.d.DeviceSetup(pr.d.DeviceValue(d), d))
		}
	}
	if len(devices) > 0 {
		w.blank()
	}

	vars := pr.p.Main.Scope.Variables.Values()
	for _, v := range vars {
		if id, ok := pr.main.vars[v.Name]; ok {
			w.line(0, "%s = %s", id, initialValue(v))
		}
	}
	if len(vars) > 0 {
		w.blank()
	}
}

func (pr *program) writeFunctions() {
	for _, f := range pr.order {
		var params, results []string
		for _, v := range f.canvas.Scope.Variables.Values() {
			id, ok := f.names.vars[v.Name]
			if !ok {
				continue
			}
			params = append(params, fmt.Sprintf("%s=%s", id, initialValue(v)))
			results = append(results, fmt.Sprintf("%s: %s", pyQuote(v.Name), id))
		}
		for _, d := range f.canvas.Scope.Devices.Values() {
			if id, ok := f.names.devs[d.Name]; ok {
				params = append(params, fmt.Sprintf("%s=%s", id, pr.d.DeviceValue(d)))
			}
		}

		pr.w.line(0, "def %s(%s):", f.ident, strings.Join(params, ", "))
		e := pr.emitter(f.canvas, f.names)
		if start := e.start(); start != nil {
			e.walk(e.next(start, models.PortOut), 1, nil)
		} else {
			pr.warn("function %q has no Start block", f.canvas.Name)
		}
		pr.w.line(1, "return {%s}", strings.Join(results, ", "))
		pr.w.blank()
		pr.w.blank()
	}
}

func (pr *program) writeMain() {
	w := pr.w
	w.line(0, "try:")
	e := pr.emitter(pr.p.Main, pr.main)
	if start := e.start(); start != nil {
		e.body(e.next(start, models.PortOut), 1, nil)
	} else {
		pr.warn("main canvas has no Start block")
		w.line(1, "pass")
	}

	w.line(0, "finally:")
	w.line(1, "__report = {\"variables\": {}, \"devices\": {}}")
	var outputs []string
	for _, v := range pr.p.Main.Scope.Variables.Values() {
		if id, ok := pr.main.vars[v.Name]; ok {
			w.line(1, "__report[\"variables\"][%s] = {\"value\": %s}", pyQuote(v.Name), id)
		}
	}
	for _, d := range pr.p.Main.Scope.Devices.Values() {
		id, ok := pr.main.devs[d.Name]
		if !ok {
			continue
		}
		w.line(1, "__report[\"devices\"][%s] = {\"state\": int(%s)}", pyQuote(d.Name), pr.d.Read(id))
		if !d.Type.IsInput() {
			outputs = append(outputs, id)
		}
	}
	w.line(1, "%s", pr.d.Report("json.dumps(__report)"))
	w.lines(1, pr.d.Cleanup(pr.usage, outputs))
}
