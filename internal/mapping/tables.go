package mapping

import (
	"embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

//go:embed tables.yaml
var tablesFS embed.FS

// KindEntry declares how one source kind maps into the canonical model.
type KindEntry struct {
	CanonicalType domain.CanonicalType `yaml:"canonical_type"`
	Label         string               `yaml:"label"`
	Properties    map[string]string    `yaml:"properties"`
}

// Tables is the immutable lookup table compiled from tables.yaml. One
// instance is shared process-wide; it is never mutated after Parse.
type Tables struct {
	Authority         string               `yaml:"authority"`
	Kinds             map[string]KindEntry `yaml:"kinds"`
	RelationshipKinds map[string]string    `yaml:"relationship_kinds"`
}

var validCanonicalTypes = map[domain.CanonicalType]struct{}{
	domain.TypeAction:            {},
	domain.TypeActionPattern:     {},
	domain.TypeTool:              {},
	domain.TypeIdentity:          {},
	domain.TypeObservableObject:  {},
	domain.TypeObservablePattern: {},
	domain.TypeCollection:        {},
	domain.TypeAsset:             {},
	domain.TypeMarkingDefinition: {},
}

func Parse(raw []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("mapping tables: parse: %w", err)
	}
	if t.Authority == "" {
		return nil, fmt.Errorf("mapping tables: authority is required")
	}
	if len(t.Kinds) == 0 {
		return nil, fmt.Errorf("mapping tables: no kinds declared")
	}
	for kind, entry := range t.Kinds {
		if _, ok := validCanonicalTypes[entry.CanonicalType]; !ok {
			return nil, fmt.Errorf("mapping tables: kind %q has unknown canonical type %q", kind, entry.CanonicalType)
		}
		if entry.Label == "" {
			return nil, fmt.Errorf("mapping tables: kind %q has no label", kind)
		}
	}
	return &t, nil
}

// Labels returns the distinct graph labels declared by the kind table,
// sorted. Used for schema bootstrap.
func (t *Tables) Labels() []string {
	seen := make(map[string]struct{}, len(t.Kinds))
	out := make([]string, 0, len(t.Kinds))
	for _, entry := range t.Kinds {
		if _, ok := seen[entry.Label]; ok {
			continue
		}
		seen[entry.Label] = struct{}{}
		out = append(out, entry.Label)
	}
	sort.Strings(out)
	return out
}

var (
	builtinOnce   sync.Once
	builtinTables *Tables
	builtinErr    error
)

// Builtin returns the embedded tables. Panics only if the embedded file is
// malformed, which is a build defect, not a runtime condition.
func Builtin() *Tables {
	builtinOnce.Do(func() {
		raw, err := tablesFS.ReadFile("tables.yaml")
		if err != nil {
			builtinErr = err
			return
		}
		builtinTables, builtinErr = Parse(raw)
	})
	if builtinErr != nil {
		panic(fmt.Sprintf("mapping: embedded tables invalid: %v", builtinErr))
	}
	return builtinTables
}
