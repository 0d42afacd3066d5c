// Package ontology loads a pre-extracted class/property listing and answers
// membership queries. It exists to sanity-check that canonical labels and
// renamed properties still correspond to ontology terms; nothing in the
// pipeline depends on it at runtime.
package ontology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

type Class struct {
	Name    string `json:"name"`
	Parent  string `json:"parent,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type Property struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Range  string `json:"range,omitempty"`
}

type Ontology struct {
	classes    map[string]Class
	properties map[string]Property
}

type document struct {
	Classes    []Class    `json:"classes"`
	Properties []Property `json:"properties"`
}

func Load(path string) (*Ontology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ontology: read %q: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Ontology, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ontology: decode listing: %w", err)
	}

	o := &Ontology{
		classes:    make(map[string]Class, len(doc.Classes)),
		properties: make(map[string]Property, len(doc.Properties)),
	}
	for _, c := range doc.Classes {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("ontology: class with empty name")
		}
		o.classes[name] = c
	}
	for _, p := range doc.Properties {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("ontology: property with empty name")
		}
		o.properties[name] = p
	}
	return o, nil
}

func (o *Ontology) HasClass(name string) bool {
	_, ok := o.classes[name]
	return ok
}

func (o *Ontology) HasProperty(name string) bool {
	_, ok := o.properties[name]
	return ok
}

func (o *Ontology) Class(name string) (Class, bool) {
	c, ok := o.classes[name]
	return c, ok
}

func (o *Ontology) ClassCount() int    { return len(o.classes) }
func (o *Ontology) PropertyCount() int { return len(o.properties) }

// MissingClasses returns the given names that the ontology does not define,
// sorted.
func (o *Ontology) MissingClasses(names []string) []string {
	var missing []string
	for _, name := range names {
		if !o.HasClass(name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// MissingProperties returns the given names that the ontology does not
// define, sorted.
func (o *Ontology) MissingProperties(names []string) []string {
	var missing []string
	for _, name := range names {
		if !o.HasProperty(name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
