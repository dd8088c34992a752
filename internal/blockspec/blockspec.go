// Package blockspec describes the size and port layout of every block type.
package blockspec

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed blocks.yaml
var defaultYAML []byte

// DefaultGrid is used when the document does not set a grid size.
const DefaultGrid = 25

// Spec is the geometry of one block type.
type Spec struct {
	Type     models.BlockType            `json:"type"`
	Category string                      `json:"category"`
	Color    string                      `json:"color"`
	Width    int                         `json:"width"`
	Height   int                         `json:"height"`
	Ports    map[models.Port]models.Point `json:"ports"`
}

// HasPort reports whether the block type exposes port.
func (s *Spec) HasPort(port models.Port) bool {
	_, ok := s.Ports[port]
	return ok
}

// PortNames returns the exposed ports in a stable order.
func (s *Spec) PortNames() []models.Port {
	out := make([]models.Port, 0, len(s.Ports))
	for p := range s.Ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type rawSpec struct {
	Category string           `yaml:"category"`
	Color    string           `yaml:"color"`
	Width    int              `yaml:"width"`
	Height   int              `yaml:"height"`
	Ports    map[string][]int `yaml:"ports"`
}

type rawDocument struct {
	Grid    int                `yaml:"grid"`
	Default rawSpec            `yaml:"default"`
	Blocks  map[string]rawSpec `yaml:"blocks"`
}

// Catalog maps block types to their geometry.
type Catalog struct {
	Grid  int
	specs map[models.BlockType]*Spec
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded blocks.yaml.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded blocks.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader reads a catalog from r.
func LoadReader(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a catalog from a YAML document. Every known block type ends
// up with a spec; types missing from the document use the default entry.
func Parse(data []byte) (*Catalog, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing block catalog: %w", err)
	}
	grid := doc.Grid
	if grid <= 0 {
		grid = DefaultGrid
	}

	c := &Catalog{Grid: grid, specs: make(map[models.BlockType]*Spec)}
	for name := range doc.Blocks {
		if !models.BlockType(name).Known() {
			return nil, fmt.Errorf("unknown block type %q", name)
		}
	}
	for _, t := range models.BlockTypes {
		raw, ok := doc.Blocks[string(t)]
		if !ok {
			raw = rawSpec{}
		}
		spec, err := buildSpec(t, raw, doc.Default, grid)
		if err != nil {
			return nil, err
		}
		c.specs[t] = spec
	}
	return c, nil
}

func buildSpec(t models.BlockType, raw, def rawSpec, grid int) (*Spec, error) {
	s := &Spec{
		Type:     t,
		Category: raw.Category,
		Color:    raw.Color,
		Width:    raw.Width,
		Height:   raw.Height,
		Ports:    make(map[models.Port]models.Point),
	}
	if s.Width == 0 {
		s.Width = def.Width
	}
	if s.Height == 0 {
		s.Height = def.Height
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("%s: width and height must be positive", t)
	}
	if s.Width%grid != 0 || s.Height%grid != 0 {
		return nil, fmt.Errorf("%s: size %dx%d is not a multiple of grid %d", t, s.Width, s.Height, grid)
	}

	ports := raw.Ports
	if len(ports) == 0 {
		ports = def.Ports
	}
	for name, xy := range ports {
		p := models.Port(name)
		if !p.IsInput() && !p.IsOutput() {
			return nil, fmt.Errorf("%s: unknown port %q", t, name)
		}
		if len(xy) != 2 {
			return nil, fmt.Errorf("%s: port %s needs [x, y]", t, name)
		}
		pt := models.Point{X: xy[0], Y: xy[1]}
		if pt.X%grid != 0 || pt.Y%grid != 0 {
			return nil, fmt.Errorf("%s: port %s is off grid", t, name)
		}
		if pt.X < 0 || pt.X > s.Width || pt.Y < 0 || pt.Y > s.Height {
			return nil, fmt.Errorf("%s: port %s lies outside the block", t, name)
		}
		s.Ports[p] = pt
	}
	return s, nil
}

// Get returns the spec for t.
func (c *Catalog) Get(t models.BlockType) (*Spec, bool) {
	s, ok := c.specs[t]
	return s, ok
}

// Specs returns every spec in palette order.
func (c *Catalog) Specs() []*Spec {
	out := make([]*Spec, 0, len(c.specs))
	for _, t := range models.BlockTypes {
		if s, ok := c.specs[t]; ok {
			out = append(out, s)
		}
	}
	return out
}

// HasPort reports whether blocks of type t expose port.
func (c *Catalog) HasPort(t models.BlockType, port models.Port) bool {
	s, ok := c.specs[t]
	return ok && s.HasPort(port)
}

// PortCenter returns the absolute canvas position of a port on b.
func (c *Catalog) PortCenter(b *models.Block, port models.Port) (models.Point, bool) {
	s, ok := c.specs[b.Type]
	if !ok {
		return models.Point{}, false
	}
	off, ok := s.Ports[port]
	if !ok {
		return models.Point{}, false
	}
	return models.Point{X: b.X + off.X, Y: b.Y + off.Y}, true
}

// Aligned reports whether v lies on the grid.
func (c *Catalog) Aligned(v int) bool {
	return v%c.Grid == 0
}

// Snap rounds v to the nearest grid line.
func (c *Catalog) Snap(v int) int {
	return Snap(v, c.Grid)
}

// Snap rounds v to the nearest multiple of grid.
func Snap(v, grid int) int {
	if grid <= 0 {
		return v
	}
	if v < 0 {
		return -Snap(-v, grid)
	}
	return (v + grid/2) / grid * grid
}
