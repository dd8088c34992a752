// Package diagram is the command surface over a project: blocks, paths,
// bindings and function canvases. Every command validates first and leaves
// the project untouched when it fails.
package diagram

import (
	"fmt"

	"github.com/Kotoad/APP-PyQt-sub000/internal/blockspec"
	"github.com/Kotoad/APP-PyQt-sub000/internal/catalog"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// Editor owns a project and keeps its id catalog and name indexes in sync.
// It is not safe for concurrent use.
type Editor struct {
	project *models.Project
	specs   *blockspec.Catalog
	ids     *catalog.Catalog

	// owner maps block and path ids to the id of their canvas.
	owner map[string]string
	names map[string]*nameIndex
}

// NewEditor wraps p. A nil specs uses the embedded block catalog.
func NewEditor(p *models.Project, specs *blockspec.Catalog) (*Editor, error) {
	if specs == nil {
		specs = blockspec.Default()
	}
	e := &Editor{specs: specs}
	if err := e.Load(p); err != nil {
		return nil, err
	}
	return e, nil
}

// Load replaces the edited project. The catalog is rebuilt from p; when p
// contains a duplicate id the editor keeps its previous project.
func (e *Editor) Load(p *models.Project) error {
	ids := catalog.New()
	owner := make(map[string]string)
	names := make(map[string]*nameIndex)

	if err := ids.Register(models.MainCanvasID, catalog.KindCanvas); err != nil {
		return err
	}
	for _, c := range p.Canvases() {
		if c.IsFunction() {
			if err := ids.Register(c.ID, catalog.KindFunction); err != nil {
				return err
			}
		}
		for _, b := range c.Blocks.Values() {
			if err := ids.Register(b.ID, string(b.Type)); err != nil {
				return err
			}
			owner[b.ID] = c.ID
		}
		for _, path := range c.Paths.Values() {
			if err := ids.Register(path.ID, catalog.KindPath); err != nil {
				return err
			}
			owner[path.ID] = c.ID
		}
		for _, v := range c.Scope.Variables.Values() {
			if err := ids.Register(v.ID, catalog.KindVariable); err != nil {
				return err
			}
		}
		for _, d := range c.Scope.Devices.Values() {
			if err := ids.Register(d.ID, catalog.KindDevice); err != nil {
				return err
			}
		}
		names[c.ID] = indexScope(c.Scope)
	}

	e.project = p
	e.ids = ids
	e.owner = owner
	e.names = names
	return nil
}

// Project returns the edited project.
func (e *Editor) Project() *models.Project {
	return e.project
}

// Specs returns the block geometry catalog.
func (e *Editor) Specs() *blockspec.Catalog {
	return e.specs
}

// Catalog returns the id registry.
func (e *Editor) Catalog() *catalog.Catalog {
	return e.ids
}

func (e *Editor) canvas(id string) (*models.Canvas, error) {
	c, ok := e.project.Canvas(id)
	if !ok {
		return nil, fmt.Errorf("%w: canvas %s", ErrNotFound, id)
	}
	return c, nil
}

// Block looks up a block in O(1) through the owner index.
func (e *Editor) Block(id string) (*models.Block, *models.Canvas, error) {
	cid, ok := e.owner[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: block %s", ErrNotFound, id)
	}
	c, err := e.canvas(cid)
	if err != nil {
		return nil, nil, err
	}
	b, ok := c.Blocks.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: block %s", ErrNotFound, id)
	}
	return b, c, nil
}

// Path looks up a path in O(1) through the owner index.
func (e *Editor) Path(id string) (*models.Path, *models.Canvas, error) {
	cid, ok := e.owner[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: path %s", ErrNotFound, id)
	}
	c, err := e.canvas(cid)
	if err != nil {
		return nil, nil, err
	}
	p, ok := c.Paths.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: path %s", ErrNotFound, id)
	}
	return p, c, nil
}

// AddBlock places a block with default parameters and returns its id. For
// Function blocks a non-empty name binds the call to that function canvas.
func (e *Editor) AddBlock(canvasID string, t models.BlockType, x, y int, name string) (string, error) {
	c, err := e.canvas(canvasID)
	if err != nil {
		return "", err
	}
	spec, ok := e.specs.Get(t)
	if !ok {
		return "", fmt.Errorf("%w: block type %q", ErrInvalidParam, t)
	}
	if !e.specs.Aligned(x) || !e.specs.Aligned(y) {
		return "", fmt.Errorf("%w: (%d, %d)", ErrOffGrid, x, y)
	}
	if t == models.BlockStart {
		for _, b := range c.Blocks.Values() {
			if b.Type == models.BlockStart {
				return "", ErrStartExists
			}
		}
	}

	id, err := e.ids.Allocate(string(t))
	if err != nil {
		return "", err
	}
	b := models.NewBlock(id, t, c.ID, x, y)
	b.Width = spec.Width
	b.Height = spec.Height
	if t == models.BlockFunction && name != "" {
		_ = b.Params.Set(models.KeyName, name)
	}
	c.Blocks.Set(id, b)
	e.owner[id] = c.ID
	return id, nil
}

// SetParam writes one parameter, clamping out-of-range values.
func (e *Editor) SetParam(blockID, key string, value any) error {
	b, _, err := e.Block(blockID)
	if err != nil {
		return err
	}
	params := b.Params.Clone()
	if err := params.Set(key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if fp, ok := params.(*models.FunctionParams); ok {
		if err := e.checkFunctionRefs(fp); err != nil {
			return err
		}
	}
	b.Params = params
	return nil
}

// checkFunctionRefs verifies ref names against the called function's scope.
// Calls to functions that do not exist yet are not checked.
func (e *Editor) checkFunctionRefs(fp *models.FunctionParams) error {
	fn, ok := e.project.FunctionByName(fp.Name)
	if !ok {
		return nil
	}
	for _, ref := range fp.InternalVars.Ref {
		if _, ok := fn.Scope.VariableByName(ref); !ok && ref != "" {
			return fmt.Errorf("%w: function %s has no variable %q", ErrInvalidParam, fp.Name, ref)
		}
	}
	for _, ref := range fp.InternalDevs.Ref {
		if _, ok := fn.Scope.DeviceByName(ref); !ok && ref != "" {
			return fmt.Errorf("%w: function %s has no device %q", ErrInvalidParam, fp.Name, ref)
		}
	}
	return nil
}

// MoveBlock repositions a block and re-routes every incident path.
func (e *Editor) MoveBlock(blockID string, x, y int) error {
	b, c, err := e.Block(blockID)
	if err != nil {
		return err
	}
	if !e.specs.Aligned(x) || !e.specs.Aligned(y) {
		return fmt.Errorf("%w: (%d, %d)", ErrOffGrid, x, y)
	}
	b.X, b.Y = x, y
	for _, pid := range incident(b) {
		if p, ok := c.Paths.Get(pid); ok {
			e.reroute(c, p)
		}
	}
	return nil
}

// DeleteBlock removes a block and every path touching it.
func (e *Editor) DeleteBlock(blockID string) error {
	b, c, err := e.Block(blockID)
	if err != nil {
		return err
	}
	for _, pid := range incident(b) {
		if p, ok := c.Paths.Get(pid); ok {
			e.removePath(c, p)
		}
	}
	c.Blocks.Delete(b.ID)
	e.ids.Unregister(b.ID)
	delete(e.owner, b.ID)
	return nil
}

func incident(b *models.Block) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range []map[string]models.Port{b.InConnections, b.OutConnections} {
		for pid := range m {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out
}

// AddPath connects an output port to an input port on the same canvas. A nil
// waypoints slice is routed automatically; a supplied one must start and end
// on the port centers and be an orthogonal grid polyline.
func (e *Editor) AddPath(from string, fromPort models.Port, to string, toPort models.Port, waypoints []models.Point) (string, error) {
	src, c, err := e.Block(from)
	if err != nil {
		return "", err
	}
	dst, dc, err := e.Block(to)
	if err != nil {
		return "", err
	}
	if c.ID != dc.ID {
		return "", fmt.Errorf("%w: %s and %s are on different canvases", ErrPort, from, to)
	}
	if !fromPort.IsOutput() || !e.specs.HasPort(src.Type, fromPort) {
		return "", fmt.Errorf("%w: %s has no output %q", ErrPort, src.Type, fromPort)
	}
	if !toPort.IsInput() || !e.specs.HasPort(dst.Type, toPort) {
		return "", fmt.Errorf("%w: %s has no input %q", ErrPort, dst.Type, toPort)
	}

	want := models.Endpoints{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	for _, p := range c.Paths.Values() {
		if p.Endpoints() == want {
			return "", fmt.Errorf("%w: %s.%s -> %s.%s", ErrPathExists, from, fromPort, to, toPort)
		}
	}
	for _, port := range src.OutConnections {
		if port == fromPort {
			return "", fmt.Errorf("%w: %s.%s", ErrPortInUse, from, fromPort)
		}
	}

	p1, _ := e.specs.PortCenter(src, fromPort)
	p2, _ := e.specs.PortCenter(dst, toPort)
	if waypoints == nil {
		waypoints = Route(p1, p2, e.specs.Grid)
	} else {
		if len(waypoints) == 0 || waypoints[0] != p1 || waypoints[len(waypoints)-1] != p2 ||
			!ValidPolyline(waypoints, e.specs.Grid) {
			return "", ErrBadWaypoints
		}
		waypoints = append([]models.Point(nil), waypoints...)
	}

	id := e.pathID(want)
	if err := e.ids.Register(id, catalog.KindPath); err != nil {
		return "", err
	}
	path := &models.Path{
		ID:        id,
		CanvasID:  c.ID,
		From:      from,
		FromPort:  fromPort,
		To:        to,
		ToPort:    toPort,
		Waypoints: waypoints,
	}
	c.Paths.Set(id, path)
	e.owner[id] = c.ID
	src.OutConnections[id] = fromPort
	dst.InConnections[id] = toPort
	return id, nil
}

// pathID derives "{from}-{to}", qualified by ports when that id is taken.
func (e *Editor) pathID(ep models.Endpoints) string {
	base := models.PathID(ep.From, ep.To)
	candidates := []string{
		base,
		base + "-" + string(ep.FromPort),
		base + "-" + string(ep.FromPort) + "-" + string(ep.ToPort),
	}
	for _, id := range candidates {
		if !e.ids.Has(id) {
			return id
		}
	}
	id, _ := e.ids.NewID(base, nil)
	return id
}

// DeletePath removes a path and clears both block-side references.
func (e *Editor) DeletePath(pathID string) error {
	p, c, err := e.Path(pathID)
	if err != nil {
		return err
	}
	e.removePath(c, p)
	return nil
}

func (e *Editor) removePath(c *models.Canvas, p *models.Path) {
	if b, ok := c.Blocks.Get(p.From); ok {
		delete(b.OutConnections, p.ID)
	}
	if b, ok := c.Blocks.Get(p.To); ok {
		delete(b.InConnections, p.ID)
	}
	c.Paths.Delete(p.ID)
	e.ids.Unregister(p.ID)
	delete(e.owner, p.ID)
}

func (e *Editor) reroute(c *models.Canvas, p *models.Path) {
	src, ok1 := c.Blocks.Get(p.From)
	dst, ok2 := c.Blocks.Get(p.To)
	if !ok1 || !ok2 {
		return
	}
	p1, ok1 := e.specs.PortCenter(src, p.FromPort)
	p2, ok2 := e.specs.PortCenter(dst, p.ToPort)
	if !ok1 || !ok2 {
		return
	}
	p.Waypoints = Route(p1, p2, e.specs.Grid)
}

// PortCenter returns the canvas position of a port on a block.
func (e *Editor) PortCenter(blockID string, port models.Port) (models.Point, error) {
	b, _, err := e.Block(blockID)
	if err != nil {
		return models.Point{}, err
	}
	pt, ok := e.specs.PortCenter(b, port)
	if !ok {
		return models.Point{}, fmt.Errorf("%w: %s has no port %q", ErrPort, b.Type, port)
	}
	return pt, nil
}

// Successor follows the path leaving port on block b and returns the block
// it enters together with the input port it enters through.
func Successor(c *models.Canvas, b *models.Block, port models.Port) (*models.Block, models.Port, bool) {
	for pid, pp := range b.OutConnections {
		if pp != port {
			continue
		}
		p, ok := c.Paths.Get(pid)
		if !ok {
			continue
		}
		next, ok := c.Blocks.Get(p.To)
		return next, p.ToPort, ok
	}
	return nil, "", false
}
