package preprocessing

import (
	"embed"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/estateml/estateml/pkg/errors"
)

//go:embed lookups/*.yaml
var lookupFS embed.FS

// LookupTable maps raw values to normalized group names. The YAML form lists
// the raw values under each group name.
type LookupTable struct {
	Name     string              `yaml:"-"`
	Version  string              `yaml:"version"`
	Fallback string              `yaml:"fallback"`
	Groups   map[string][]string `yaml:"groups"`

	index map[string]string
}

// ParseLookupTable parses a YAML lookup table. A raw value listed under two
// groups is an error.
func ParseLookupTable(name string, data []byte) (*LookupTable, error) {
	var t LookupTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(err, "parse lookup table %s", name)
	}
	t.Name = name
	if t.Fallback == "" {
		return nil, errors.NewValidationError(name+".fallback", "must not be empty", t.Fallback)
	}
	if len(t.Groups) == 0 {
		return nil, errors.NewValidationError(name+".groups", "must not be empty", len(t.Groups))
	}

	t.index = make(map[string]string)
	for group, members := range t.Groups {
		if group == "" {
			return nil, errors.NewValidationError(name+".groups", "group name must not be empty", group)
		}
		for _, raw := range members {
			if prev, dup := t.index[raw]; dup && prev != group {
				return nil, errors.NewValidationError(name+".groups", "value mapped to more than one group", raw)
			}
			t.index[raw] = group
		}
	}
	return &t, nil
}

// LoadLookupTable reads a lookup table from path.
func LoadLookupTable(name, path string) (*LookupTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read lookup table %s", path)
	}
	return ParseLookupTable(name, data)
}

// Lookup returns the group of raw.
func (t *LookupTable) Lookup(raw string) (string, bool) {
	g, ok := t.index[raw]
	return g, ok
}

// Normalize returns the group of raw, or the fallback when raw is unknown.
func (t *LookupTable) Normalize(raw string) string {
	return Normalize(raw, t.index, t.Fallback)
}

// Len returns the number of raw values.
func (t *LookupTable) Len() int { return len(t.index) }

// GroupNames returns the sorted group names, fallback excluded.
func (t *LookupTable) GroupNames() []string {
	names := make([]string, 0, len(t.Groups))
	for g := range t.Groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// Lookups are the tables used by the feature builder.
type Lookups struct {
	Procedures *LookupTable
	Districts  *LookupTable
}

// Versions maps table name to version. Artifacts record it.
func (l Lookups) Versions() map[string]string {
	return map[string]string{
		l.Procedures.Name: l.Procedures.Version,
		l.Districts.Name:  l.Districts.Version,
	}
}

var (
	defaultLookupsOnce sync.Once
	defaultLookups     Lookups
)

// DefaultLookups returns the embedded tables, parsed once.
func DefaultLookups() Lookups {
	defaultLookupsOnce.Do(func() {
		defaultLookups = Lookups{
			Procedures: mustEmbedded("procedures"),
			Districts:  mustEmbedded("districts"),
		}
	})
	return defaultLookups
}

func mustEmbedded(name string) *LookupTable {
	data, err := lookupFS.ReadFile("lookups/" + name + ".yaml")
	if err != nil {
		panic(err)
	}
	t, err := ParseLookupTable(name, data)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadLookups overrides the embedded tables with the given files. An empty
// path keeps the embedded table.
func LoadLookups(proceduresPath, districtsPath string) (Lookups, error) {
	l := DefaultLookups()
	var err error
	if proceduresPath != "" {
		if l.Procedures, err = LoadLookupTable("procedures", proceduresPath); err != nil {
			return Lookups{}, err
		}
	}
	if districtsPath != "" {
		if l.Districts, err = LoadLookupTable("districts", districtsPath); err != nil {
			return Lookups{}, err
		}
	}
	return l, nil
}
