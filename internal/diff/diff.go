// Package diff compares the in-memory project with its on-disk copy.
// Both sides are compared in serialized form, so a key missing at any level
// reads as empty.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/persist"
)

// BlockFields are compared first and in this order for every block.
var BlockFields = []string{
	"value_1_name", "value_1_type", "value_2_name", "value_2_type",
	"operator", "switch_state", "sleep_time", "x", "y", "width", "height",
}

// PathFields are compared first and in this order for every path.
var PathFields = []string{"from", "from_circle_type", "to", "to_circle_type", "waypoints"}

// ConnectionsField is the synthetic field reported when a block's incident
// paths changed.
const ConnectionsField = "connections"

// Projects diffs current against the saved document. An empty saved
// document counts as an empty project.
func Projects(current *models.Project, saved []byte) (*models.ProjectComparison, error) {
	curData, err := persist.Encode(current)
	if err != nil {
		return nil, fmt.Errorf("encoding current project: %w", err)
	}
	var cur, old map[string]any
	if err := json.Unmarshal(curData, &cur); err != nil {
		return nil, fmt.Errorf("decoding current project: %w", err)
	}
	if len(saved) > 0 {
		if err := json.Unmarshal(saved, &old); err != nil {
			return nil, fmt.Errorf("%w: %v", persist.ErrCorruptProject, err)
		}
	}
	return Compare(cur, old), nil
}

// Compare diffs two decoded project documents.
func Compare(cur, old map[string]any) *models.ProjectComparison {
	r := models.NewProjectComparison()

	main := compareCanvas(obj(cur, "main_canvas"), obj(old, "main_canvas"))
	r.MainBlocksAdded = main.BlocksAdded
	r.MainBlocksRemoved = main.BlocksRemoved
	r.MainBlocksModified = main.BlocksModified
	r.MainConnectionsAdded = main.ConnectionsAdded
	r.MainConnectionsRemoved = main.ConnectionsRemoved
	r.MainConnectionsModified = main.ConnectionsModified

	compareFunctions(r, cur, old)

	r.VariablesAdded, r.VariablesRemoved, r.VariablesModified = compareBindings(obj(cur, "variables"), obj(old, "variables"))
	r.VariablesChanged = len(r.VariablesAdded) > 0 || len(r.VariablesRemoved) > 0 || len(r.VariablesModified) > 0
	r.DevicesAdded, r.DevicesRemoved, r.DevicesModified = compareBindings(obj(cur, "devices"), obj(old, "devices"))
	r.DevicesChanged = len(r.DevicesAdded) > 0 || len(r.DevicesRemoved) > 0 || len(r.DevicesModified) > 0

	cs, ss := obj(cur, "settings"), obj(old, "settings")
	for _, k := range unionKeys(cs, ss) {
		if !reflect.DeepEqual(cs[k], ss[k]) {
			r.SettingsModified[k] = models.ValueChange{Old: ss[k], New: cs[k]}
		}
	}

	r.HasChanges = len(r.MainBlocksAdded) > 0 || len(r.MainBlocksRemoved) > 0 || len(r.MainBlocksModified) > 0 ||
		len(r.MainConnectionsAdded) > 0 || len(r.MainConnectionsRemoved) > 0 || len(r.MainConnectionsModified) > 0 ||
		len(r.FunctionCanvasesAdded) > 0 || len(r.FunctionCanvasesRemoved) > 0 || len(r.FunctionCanvasesModified) > 0 ||
		r.VariablesChanged || r.DevicesChanged || len(r.SettingsModified) > 0
	return r
}

func compareFunctions(r *models.ProjectComparison, cur, old map[string]any) {
	curIDs := functionIDs(cur)
	oldIDs := functionIDs(old)
	curFns, oldFns := obj(cur, "functions"), obj(old, "functions")
	curHdr, oldHdr := obj(cur, "canvases"), obj(old, "canvases")

	for _, id := range sortedKeys(curIDs) {
		if !oldIDs[id] {
			r.FunctionCanvasesAdded = append(r.FunctionCanvasesAdded, id)
			continue
		}
		ch := compareCanvas(obj(curFns, id), obj(oldFns, id))
		curName, oldName := obj(curHdr, id)["name"], obj(oldHdr, id)["name"]
		if !reflect.DeepEqual(curName, oldName) {
			ch.Renamed = &models.ValueChange{Old: oldName, New: curName}
		}
		if !ch.Empty() {
			r.FunctionCanvasesModified[id] = ch
		}
	}
	for _, id := range sortedKeys(oldIDs) {
		if !curIDs[id] {
			r.FunctionCanvasesRemoved = append(r.FunctionCanvasesRemoved, id)
		}
	}
}

func functionIDs(doc map[string]any) map[string]bool {
	ids := make(map[string]bool)
	for id := range obj(doc, "functions") {
		ids[id] = true
	}
	for id, v := range obj(doc, "canvases") {
		hdr, _ := v.(map[string]any)
		if id == models.MainCanvasID || hdr["ref"] == string(models.RefCanvas) {
			continue
		}
		ids[id] = true
	}
	return ids
}

func compareCanvas(cur, old map[string]any) *models.CanvasChanges {
	ch := &models.CanvasChanges{
		BlocksAdded:         []string{},
		BlocksRemoved:       []string{},
		BlocksModified:      models.FieldChanges{},
		ConnectionsAdded:    []string{},
		ConnectionsRemoved:  []string{},
		ConnectionsModified: models.FieldChanges{},
	}
	curBlocks, oldBlocks := obj(cur, "blocks"), obj(old, "blocks")
	curPaths, oldPaths := obj(cur, "paths"), obj(old, "paths")

	for _, id := range sortedKeys(curPaths) {
		o, ok := oldPaths[id]
		if !ok {
			ch.ConnectionsAdded = append(ch.ConnectionsAdded, id)
			continue
		}
		if fields := changedFields(asMap(curPaths[id]), asMap(o), PathFields, nil); len(fields) > 0 {
			ch.ConnectionsModified[id] = fields
		}
	}
	for _, id := range sortedKeys(oldPaths) {
		if _, ok := curPaths[id]; !ok {
			ch.ConnectionsRemoved = append(ch.ConnectionsRemoved, id)
		}
	}

	skip := map[string]bool{"id": true, "in_connections": true, "out_connections": true}
	for _, id := range sortedKeys(curBlocks) {
		o, ok := oldBlocks[id]
		if !ok {
			ch.BlocksAdded = append(ch.BlocksAdded, id)
			continue
		}
		cb, ob := asMap(curBlocks[id]), asMap(o)
		fields := changedFields(cb, ob, BlockFields, skip)
		if connectionsChanged(cb, ob, ch.ConnectionsModified) {
			fields = append(fields, ConnectionsField)
		}
		if len(fields) > 0 {
			ch.BlocksModified[id] = fields
		}
	}
	for _, id := range sortedKeys(oldBlocks) {
		if _, ok := curBlocks[id]; !ok {
			ch.BlocksRemoved = append(ch.BlocksRemoved, id)
		}
	}
	return ch
}

// connectionsChanged compares the incident path ids of a block as sets,
// then the records of those paths.
func connectionsChanged(cur, old map[string]any, modifiedPaths models.FieldChanges) bool {
	curIDs := incident(cur)
	oldIDs := incident(old)
	if !reflect.DeepEqual(curIDs, oldIDs) {
		return true
	}
	for id := range curIDs {
		if _, ok := modifiedPaths[id]; ok {
			return true
		}
	}
	return false
}

func incident(block map[string]any) map[string]any {
	out := make(map[string]any)
	for _, key := range []string{"in_connections", "out_connections"} {
		for id, port := range obj(block, key) {
			out[key+"/"+id] = port
		}
	}
	return out
}

// changedFields lists differing keys: the preferred fields first, in
// order, then any other key alphabetically.
func changedFields(cur, old map[string]any, preferred []string, skip map[string]bool) []string {
	var out []string
	seen := make(map[string]bool, len(preferred))
	for _, k := range preferred {
		seen[k] = true
		if !reflect.DeepEqual(cur[k], old[k]) {
			out = append(out, k)
		}
	}
	for _, k := range unionKeys(cur, old) {
		if seen[k] || skip[k] {
			continue
		}
		if !reflect.DeepEqual(cur[k], old[k]) {
			out = append(out, k)
		}
	}
	return out
}

type binding struct {
	location string
	record   map[string]any
}

func bindingsByID(section map[string]any) map[string]binding {
	out := make(map[string]binding)
	for id, v := range obj(section, models.MainCanvasID) {
		out[id] = binding{location: models.MainCanvasID, record: asMap(v)}
	}
	for fid, fv := range obj(section, "function_canvases") {
		for id, v := range asMap(fv) {
			out[id] = binding{location: "function_" + fid, record: asMap(v)}
		}
	}
	return out
}

func compareBindings(cur, old map[string]any) ([]string, []string, map[string]models.BindingChange) {
	added, removed := []string{}, []string{}
	modified := make(map[string]models.BindingChange)
	c, o := bindingsByID(cur), bindingsByID(old)

	for _, id := range sortedKeys(c) {
		ob, ok := o[id]
		if !ok {
			added = append(added, id)
			continue
		}
		cb := c[id]
		if cb.location != ob.location || !reflect.DeepEqual(cb.record, ob.record) {
			modified[id] = models.BindingChange{Old: ob.record, New: cb.record, Location: cb.location}
		}
	}
	for _, id := range sortedKeys(o) {
		if _, ok := c[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed, modified
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	return asMap(m[key])
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionKeys(a, b map[string]any) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	return sortedKeys(set)
}
