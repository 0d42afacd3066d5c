// Package mapping converts kind-tagged source records into canonical nodes
// and relationships using the declarative tables in tables.yaml. All mapping
// is pure: no I/O, no shared mutable state, safe to call concurrently.
package mapping

import (
	"fmt"
	"strings"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

// rawPrefix namespaces every original field carried through unmodified, so
// nothing from the source is lost even when it has no canonical mapping.
const rawPrefix = "src:"

type ErrorReason string

const (
	ReasonUnknownKind     ErrorReason = "unknown_kind"
	ReasonMalformedRecord ErrorReason = "malformed_record"
)

// MappingError marks a record the mapper could not convert. Non-fatal: the
// orchestrator logs it, counts it and moves on.
type MappingError struct {
	Reason   ErrorReason
	Kind     string
	RecordID string
	Detail   string
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("mapping: %s: kind=%q", e.Reason, e.Kind)
	if e.RecordID != "" {
		msg += fmt.Sprintf(" id=%q", e.RecordID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

type Mapper struct {
	tables *Tables
}

func New() *Mapper {
	return &Mapper{tables: Builtin()}
}

func NewWithTables(t *Tables) *Mapper {
	return &Mapper{tables: t}
}

// Labels lists the distinct graph labels the tables can produce.
func (m *Mapper) Labels() []string {
	return m.tables.Labels()
}

// MapNode converts one non-relationship record into a canonical Node.
func (m *Mapper) MapNode(rec domain.SourceRecord, sourceCatalog string) (*domain.Node, error) {
	kind := rec.Kind()
	entry, ok := m.tables.Kinds[kind]
	if !ok {
		return nil, &MappingError{Reason: ReasonUnknownKind, Kind: kind, RecordID: rec.ID()}
	}
	id := rec.ID()
	if id == "" {
		return nil, &MappingError{Reason: ReasonMalformedRecord, Kind: kind, Detail: "missing id"}
	}

	props := make(map[string]any, len(rec))
	for srcKey, canonicalKey := range entry.Properties {
		if v, present := rec[srcKey]; present {
			props[canonicalKey] = v
		}
	}
	for key, val := range rec {
		switch key {
		case "id", "type", "name", "description":
			continue
		}
		props[rawPrefix+key] = val
	}

	return &domain.Node{
		ID:            id,
		CanonicalType: entry.CanonicalType,
		SourceKind:    kind,
		Label:         entry.Label,
		Name:          rec.Str("name"),
		Description:   rec.Str("description"),
		ExternalID:    m.ExternalID(rec),
		SourceCatalog: sourceCatalog,
		Aliases:       collectAliases(rec),
		Platforms:     rec.StrList("x_mitre_platforms"),
		Properties:    props,
	}, nil
}

// MapRelationship converts one relationship record. Unlike node kinds, the
// relationship-kind table is total: unmapped kinds fall back to a generic
// label derived from the source kind.
func (m *Mapper) MapRelationship(rec domain.SourceRecord, sourceCatalog string) (*domain.Relationship, error) {
	id := rec.ID()
	kind := rec.Str("relationship_type")
	sourceRef := rec.Str("source_ref")
	targetRef := rec.Str("target_ref")
	if id == "" || kind == "" || sourceRef == "" || targetRef == "" {
		return nil, &MappingError{
			Reason:   ReasonMalformedRecord,
			Kind:     rec.Kind(),
			RecordID: id,
			Detail:   "relationship requires id, relationship_type, source_ref, target_ref",
		}
	}

	canonical, ok := m.tables.RelationshipKinds[kind]
	if !ok {
		canonical = genericRelationshipKind(kind)
	}

	props := make(map[string]any, len(rec))
	for key, val := range rec {
		switch key {
		case "id", "type", "source_ref", "target_ref", "relationship_type":
			continue
		}
		props[rawPrefix+key] = val
	}

	return &domain.Relationship{
		ID:            id,
		SourceRef:     sourceRef,
		TargetRef:     targetRef,
		Kind:          kind,
		CanonicalKind: canonical,
		SourceCatalog: sourceCatalog,
		Properties:    props,
	}, nil
}

// ExternalID scans the record's external references for the configured
// authority and returns its short identifier. Empty when absent; that only
// reduces exact-match capability later, it is not an error.
func (m *Mapper) ExternalID(rec domain.SourceRecord) string {
	for _, ref := range rec.ExternalReferences() {
		src, _ := ref["source_name"].(string)
		if src != m.tables.Authority {
			continue
		}
		if id, ok := ref["external_id"].(string); ok {
			return id
		}
	}
	return ""
}

func collectAliases(rec domain.SourceRecord) []string {
	aliases := rec.StrList("aliases")
	aliases = append(aliases, rec.StrList("x_mitre_aliases")...)
	return aliases
}

func genericRelationshipKind(kind string) string {
	s := strings.ToUpper(strings.TrimSpace(kind))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "RELATED_TO"
	}
	return s
}
