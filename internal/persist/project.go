// Package persist converts projects to and from their on-disk JSON form.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// ErrCorruptProject is returned when a project document cannot be decoded.
var ErrCorruptProject = errors.New("corrupt_project")

// Document keys.
const (
	keyMetadata         = "metadata"
	keySettings         = "settings"
	keyMainCanvas       = "main_canvas"
	keyCanvases         = "canvases"
	keyFunctions        = "functions"
	keyVariables        = "variables"
	keyDevices          = "devices"
	keyFunctionCanvases = "function_canvases"
	keyBlocks           = "blocks"
	keyPaths            = "paths"
)

// Encode serializes p.
func Encode(p *models.Project) ([]byte, error) {
	return Marshal(Tree(p))
}

// Tree builds the ordered plain-data tree of p. It holds only ids and
// primitive fields.
func Tree(p *models.Project) models.Record {
	canvases := models.Record{{Key: models.MainCanvasID, Value: canvasHeader(p.Main)}}
	functions := models.Record{}
	fnVars := models.Record{}
	fnDevs := models.Record{}
	for _, c := range p.Functions.Values() {
		canvases = append(canvases, models.Field{Key: c.ID, Value: canvasHeader(c)})
		functions = append(functions, models.Field{Key: c.ID, Value: canvasBody(c)})
		fnVars = append(fnVars, models.Field{Key: c.ID, Value: variablesRecord(c.Scope)})
		fnDevs = append(fnDevs, models.Field{Key: c.ID, Value: devicesRecord(c.Scope)})
	}

	return models.Record{
		{Key: keyMetadata, Value: models.Record{
			{Key: "version", Value: p.Metadata.Version},
			{Key: "name", Value: p.Metadata.Name},
			{Key: "created", Value: p.Metadata.Created},
			{Key: "modified", Value: p.Metadata.Modified},
		}},
		{Key: keySettings, Value: models.Record{
			{Key: "rpi_model", Value: p.Settings.RPIModel},
			{Key: "rpi_model_index", Value: p.Settings.RPIModelIndex},
		}},
		{Key: keyMainCanvas, Value: canvasBody(p.Main)},
		{Key: keyCanvases, Value: canvases},
		{Key: keyFunctions, Value: functions},
		{Key: keyVariables, Value: models.Record{
			{Key: models.MainCanvasID, Value: variablesRecord(p.Main.Scope)},
			{Key: keyFunctionCanvases, Value: fnVars},
		}},
		{Key: keyDevices, Value: models.Record{
			{Key: models.MainCanvasID, Value: devicesRecord(p.Main.Scope)},
			{Key: keyFunctionCanvases, Value: fnDevs},
		}},
	}
}

func canvasHeader(c *models.Canvas) models.Record {
	return models.Record{
		{Key: "id", Value: c.ID},
		{Key: "ref", Value: string(c.Ref)},
		{Key: "index", Value: c.Index},
		{Key: "name", Value: c.Name},
	}
}

func canvasBody(c *models.Canvas) models.Record {
	blocks := models.Record{}
	for _, b := range c.Blocks.Values() {
		blocks = append(blocks, models.Field{Key: b.ID, Value: BlockRecord(b)})
	}
	paths := models.Record{}
	for _, p := range c.Paths.Values() {
		paths = append(paths, models.Field{Key: p.ID, Value: PathRecord(p)})
	}
	return models.Record{{Key: keyBlocks, Value: blocks}, {Key: keyPaths, Value: paths}}
}

// BlockRecord flattens a block: geometry, every parameter of its type,
// then its connections.
func BlockRecord(b *models.Block) models.Record {
	rec := models.Record{
		{Key: "id", Value: b.ID},
		{Key: "type", Value: string(b.Type)},
		{Key: "x", Value: b.X},
		{Key: "y", Value: b.Y},
		{Key: "width", Value: b.Width},
		{Key: "height", Value: b.Height},
	}
	if b.Params != nil {
		for _, k := range b.Params.Keys() {
			v, _ := b.Params.Get(k)
			rec = append(rec, models.Field{Key: k, Value: v})
		}
	}
	rec = append(rec,
		models.Field{Key: "in_connections", Value: connections(b.InConnections)},
		models.Field{Key: "out_connections", Value: connections(b.OutConnections)},
	)
	return rec
}

func connections(m map[string]models.Port) models.Record {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rec := make(models.Record, 0, len(ids))
	for _, id := range ids {
		rec = append(rec, models.Field{Key: id, Value: string(m[id])})
	}
	return rec
}

// PathRecord flattens a path. Waypoints are [x, y] pairs.
func PathRecord(p *models.Path) models.Record {
	pts := make([][2]int, len(p.Waypoints))
	for i, w := range p.Waypoints {
		pts[i] = [2]int{w.X, w.Y}
	}
	return models.Record{
		{Key: "from", Value: p.From},
		{Key: "from_circle_type", Value: string(p.FromPort)},
		{Key: "to", Value: p.To},
		{Key: "to_circle_type", Value: string(p.ToPort)},
		{Key: "waypoints", Value: pts},
	}
}

func variablesRecord(s *models.Scope) models.Record {
	rec := models.Record{}
	for _, v := range s.Variables.Values() {
		rec = append(rec, models.Field{Key: v.ID, Value: models.Record{
			{Key: "name", Value: v.Name},
			{Key: "type", Value: string(v.Type)},
			{Key: "value", Value: v.Value},
		}})
	}
	return rec
}

func devicesRecord(s *models.Scope) models.Record {
	rec := models.Record{}
	for _, d := range s.Devices.Values() {
		rec = append(rec, models.Field{Key: d.ID, Value: models.Record{
			{Key: "name", Value: d.Name},
			{Key: "type", Value: string(d.Type)},
			{Key: "PIN", Value: d.PIN},
		}})
	}
	return rec
}

// Decode parses a project document. Missing keys at any level read as
// empty; malformed JSON or wrongly shaped sections fail with
// ErrCorruptProject and no project is returned.
func Decode(data []byte) (*models.Project, error) {
	tree, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptProject, err)
	}
	root, ok := tree.(models.Record)
	if !ok {
		return nil, fmt.Errorf("%w: document is not an object", ErrCorruptProject)
	}
	d := &decoder{}
	p := d.project(root)
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptProject, d.err)
	}
	return p, nil
}

// decoder keeps the first shape error so the walk can stay linear.
type decoder struct {
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) object(rec models.Record, key string) models.Record {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	r, ok := v.(models.Record)
	if !ok {
		d.fail("%s: expected object", key)
		return nil
	}
	return r
}

func (d *decoder) str(rec models.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	d.fail("%s: expected string", key)
	return ""
}

func (d *decoder) integer(rec models.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
	}
	d.fail("%s: expected integer", key)
	return 0
}

func (d *decoder) project(root models.Record) *models.Project {
	meta := d.object(root, keyMetadata)
	settings := d.object(root, keySettings)

	p := &models.Project{
		Metadata: models.Metadata{
			Version:  d.str(meta, "version"),
			Name:     d.str(meta, "name"),
			Created:  d.str(meta, "created"),
			Modified: d.str(meta, "modified"),
		},
		Settings: models.Settings{
			RPIModel:      d.str(settings, "rpi_model"),
			RPIModelIndex: d.integer(settings, "rpi_model_index"),
		},
		Main:      models.NewCanvas(models.MainCanvasID, "Main", models.RefCanvas, 0),
		Functions: models.NewOrderedMap[*models.Canvas](),
	}
	if p.Metadata.Version == "" {
		p.Metadata.Version = models.ProjectVersion
	}
	if _, ok := settings.Get("rpi_model_index"); !ok {
		p.Settings.RPIModelIndex = models.DefaultTargetIndex
	}
	if p.Settings.RPIModel == "" {
		p.Settings.RPIModel = models.TargetName(p.Settings.RPIModelIndex)
	}

	// Canvas headers come first so function canvases keep name and index.
	for _, f := range d.object(root, keyCanvases) {
		hdr, ok := f.Value.(models.Record)
		if !ok {
			d.fail("canvases.%s: expected object", f.Key)
			continue
		}
		if f.Key == models.MainCanvasID || models.CanvasRef(d.str(hdr, "ref")) == models.RefCanvas {
			if name := d.str(hdr, "name"); name != "" {
				p.Main.Name = name
			}
			continue
		}
		id := d.str(hdr, "id")
		if id == "" {
			id = f.Key
		}
		p.Functions.Set(id, models.NewCanvas(id, d.str(hdr, "name"), models.RefFunction, d.integer(hdr, "index")))
	}

	d.canvasBody(p.Main, d.object(root, keyMainCanvas))
	for _, f := range d.object(root, keyFunctions) {
		c := d.functionCanvas(p, f.Key)
		body, ok := f.Value.(models.Record)
		if !ok && f.Value != nil {
			d.fail("functions.%s: expected object", f.Key)
			continue
		}
		d.canvasBody(c, body)
	}

	vars := d.object(root, keyVariables)
	d.variables(p.Main.Scope, d.object(vars, models.MainCanvasID))
	for _, f := range d.object(vars, keyFunctionCanvases) {
		rec, _ := f.Value.(models.Record)
		d.variables(d.functionCanvas(p, f.Key).Scope, rec)
	}
	devs := d.object(root, keyDevices)
	d.devices(p.Main.Scope, d.object(devs, models.MainCanvasID))
	for _, f := range d.object(devs, keyFunctionCanvases) {
		rec, _ := f.Value.(models.Record)
		d.devices(d.functionCanvas(p, f.Key).Scope, rec)
	}
	return p
}

// functionCanvas returns the function canvas id, creating it when the
// document has a body or scope for a canvas it never declared.
func (d *decoder) functionCanvas(p *models.Project, id string) *models.Canvas {
	if c, ok := p.Functions.Get(id); ok {
		return c
	}
	c := models.NewCanvas(id, id, models.RefFunction, p.Functions.Len()+1)
	p.Functions.Set(id, c)
	return c
}

func (d *decoder) canvasBody(c *models.Canvas, body models.Record) {
	for _, f := range d.object(body, keyBlocks) {
		rec, ok := f.Value.(models.Record)
		if !ok {
			d.fail("block %s: expected object", f.Key)
			continue
		}
		c.Blocks.Set(f.Key, d.block(c.ID, f.Key, rec))
	}
	for _, f := range d.object(body, keyPaths) {
		rec, ok := f.Value.(models.Record)
		if !ok {
			d.fail("path %s: expected object", f.Key)
			continue
		}
		p := d.path(c.ID, f.Key, rec)
		src, ok1 := c.Blocks.Get(p.From)
		dst, ok2 := c.Blocks.Get(p.To)
		if !ok1 || !ok2 {
			fmt.Printf("[Persist] Dropping path %s: endpoint missing on %s\n", p.ID, c.ID)
			continue
		}
		c.Paths.Set(p.ID, p)
		src.OutConnections[p.ID] = p.FromPort
		dst.InConnections[p.ID] = p.ToPort
	}
}

func (d *decoder) block(canvasID, id string, rec models.Record) *models.Block {
	t := models.BlockType(d.str(rec, "type"))
	if t == "" {
		d.fail("block %s: missing type", id)
	}
	b := models.NewBlock(id, t, canvasID, d.integer(rec, "x"), d.integer(rec, "y"))
	b.Width = d.integer(rec, "width")
	b.Height = d.integer(rec, "height")
	for _, k := range b.Params.Keys() {
		v, ok := rec.Get(k)
		if !ok {
			continue
		}
		if err := b.Params.Set(k, v); err != nil {
			fmt.Printf("[Persist] Block %s: ignoring %s: %v\n", id, k, err)
		}
	}
	return b
}

func (d *decoder) path(canvasID, id string, rec models.Record) *models.Path {
	p := &models.Path{
		ID:       id,
		CanvasID: canvasID,
		From:     d.str(rec, "from"),
		FromPort: models.Port(d.str(rec, "from_circle_type")),
		To:       d.str(rec, "to"),
		ToPort:   models.Port(d.str(rec, "to_circle_type")),
	}
	// Older runtime records used from_circle/to_circle.
	if p.FromPort == "" {
		p.FromPort = models.Port(d.str(rec, "from_circle"))
	}
	if p.ToPort == "" {
		p.ToPort = models.Port(d.str(rec, "to_circle"))
	}
	raw, _ := rec.Get("waypoints")
	pts, ok := raw.([]any)
	if raw != nil && !ok {
		d.fail("path %s: waypoints must be an array", id)
	}
	for i, w := range pts {
		pt, ok := d.point(w)
		if !ok {
			d.fail("path %s: bad waypoint %d", id, i)
			break
		}
		p.Waypoints = append(p.Waypoints, pt)
	}
	return p
}

// point accepts [x, y] pairs and {"x":..,"y":..} objects.
func (d *decoder) point(v any) (models.Point, bool) {
	num := func(x any) (int, bool) {
		n, ok := x.(json.Number)
		if !ok {
			return 0, false
		}
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		return int(f), err == nil
	}
	switch t := v.(type) {
	case []any:
		if len(t) != 2 {
			return models.Point{}, false
		}
		x, ok1 := num(t[0])
		y, ok2 := num(t[1])
		return models.Point{X: x, Y: y}, ok1 && ok2
	case models.Record:
		xv, _ := t.Get("x")
		yv, _ := t.Get("y")
		x, ok1 := num(xv)
		y, ok2 := num(yv)
		return models.Point{X: x, Y: y}, ok1 && ok2
	}
	return models.Point{}, false
}

func (d *decoder) variables(s *models.Scope, rec models.Record) {
	for _, f := range rec {
		r, ok := f.Value.(models.Record)
		if !ok {
			d.fail("variable %s: expected object", f.Key)
			continue
		}
		t := models.VarType(d.str(r, "type"))
		if !t.Valid() {
			t = models.VarInt
		}
		s.Variables.Set(f.Key, &models.Variable{
			ID:    f.Key,
			Name:  d.str(r, "name"),
			Type:  t,
			Value: d.str(r, "value"),
		})
	}
}

func (d *decoder) devices(s *models.Scope, rec models.Record) {
	for _, f := range rec {
		r, ok := f.Value.(models.Record)
		if !ok {
			d.fail("device %s: expected object", f.Key)
			continue
		}
		t := models.DeviceType(d.str(r, "type"))
		if !t.Valid() {
			t = models.DeviceOutput
		}
		s.Devices.Set(f.Key, &models.Device{
			ID:   f.Key,
			Name: d.str(r, "name"),
			Type: t,
			PIN:  models.ClampPIN(d.integer(r, "PIN")),
		})
	}
}
