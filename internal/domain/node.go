package domain

// CanonicalType is the unified entity classification used internally
// regardless of which catalog a record came from.
type CanonicalType string

const (
	TypeAction            CanonicalType = "Action"
	TypeActionPattern     CanonicalType = "ActionPattern"
	TypeTool              CanonicalType = "Tool"
	TypeIdentity          CanonicalType = "Identity"
	TypeObservableObject  CanonicalType = "ObservableObject"
	TypeObservablePattern CanonicalType = "ObservablePattern"
	TypeCollection        CanonicalType = "Collection"
	TypeAsset             CanonicalType = "Asset"
	TypeMarkingDefinition CanonicalType = "MarkingDefinition"
)

// Catalog names. Anything else is a caller-chosen catalog identifier; these
// two are the defaults and CatalogCrossReference is reserved for derived
// relationships.
const (
	CatalogEnterprise     = "enterprise"
	CatalogICS            = "ics"
	CatalogCrossReference = "cross-reference"
)

// Node is a canonical entity produced by the mapper.
//
// ID is stable within its SourceCatalog. ExternalID is the short
// cross-catalog join key (e.g. "T1059") extracted from the record's external
// references; empty when the source authority did not assign one.
type Node struct {
	ID            string         `json:"id"`
	CanonicalType CanonicalType  `json:"canonical_type"`
	SourceKind    string         `json:"source_kind"`
	Label         string         `json:"label"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	ExternalID    string         `json:"external_id,omitempty"`
	SourceCatalog string         `json:"source_catalog"`
	Aliases       []string       `json:"aliases,omitempty"`
	Platforms     []string       `json:"platforms,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// Content is the textual payload published to downstream consumers for
// search indexing and embedding.
func (n *Node) Content() string {
	if n.Description != "" {
		return n.Description
	}
	return n.Name
}
