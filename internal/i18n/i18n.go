// Package i18n serves UI strings from embedded JSON catalogs. Missing keys
// fall back to English, then to the key itself.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLanguage is the fallback catalog.
const DefaultLanguage = "en"

const nameKey = "main_GUI._metadata.language_name"

//go:embed translations/*.json
var embedded embed.FS

// Language describes one available catalog.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Catalog loads flattened translation tables on demand and keeps the most
// recently used ones.
type Catalog struct {
	files fs.FS
	dir   string
	cache *lru.Cache[string, map[string]string]
	mu    sync.Mutex
}

// New returns a catalog over the embedded translations.
func New() *Catalog {
	c, err := NewFromFS(embedded, "translations", 8)
	if err != nil {
		panic(err)
	}
	return c
}

// NewFromFS returns a catalog reading <dir>/<lang>.json from files.
func NewFromFS(files fs.FS, dir string, size int) (*Catalog, error) {
	cache, err := lru.New[string, map[string]string](size)
	if err != nil {
		return nil, err
	}
	return &Catalog{files: files, dir: dir, cache: cache}, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the shared catalog over the embedded translations.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New()
	})
	return defaultCatalog
}

func (c *Catalog) load(lang string) (map[string]string, error) {
	if table, ok := c.cache.Get(lang); ok {
		return table, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if table, ok := c.cache.Get(lang); ok {
		return table, nil
	}

	if lang == "" || strings.ContainsAny(lang, `/\.`) {
		return nil, fmt.Errorf("invalid language %q", lang)
	}
	data, err := fs.ReadFile(c.files, path.Join(c.dir, lang+".json"))
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", lang, err)
	}
	table := make(map[string]string)
	flatten("", tree, table)
	c.cache.Add(lang, table)
	return table, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Lookup returns the translation of key in lang without fallback.
func (c *Catalog) Lookup(lang, key string) (string, bool) {
	table, err := c.load(lang)
	if err != nil {
		return "", false
	}
	s, ok := table[key]
	return s, ok
}

// T translates key into lang. With args the translation is used as a
// format string.
func (c *Catalog) T(lang, key string, args ...any) string {
	s, ok := c.Lookup(lang, key)
	if !ok && lang != DefaultLanguage {
		s, ok = c.Lookup(DefaultLanguage, key)
	}
	if !ok {
		s = key
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

// Languages lists the available catalogs sorted by code.
func (c *Catalog) Languages() ([]Language, error) {
	entries, err := fs.ReadDir(c.files, c.dir)
	if err != nil {
		return nil, err
	}
	var langs []Language
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		code := strings.TrimSuffix(e.Name(), ".json")
		name, ok := c.Lookup(code, nameKey)
		if !ok {
			name = code
		}
		langs = append(langs, Language{Code: code, Name: name})
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Code < langs[j].Code })
	return langs, nil
}

// Has reports whether a catalog exists for lang.
func (c *Catalog) Has(lang string) bool {
	_, err := c.load(lang)
	return err == nil
}
