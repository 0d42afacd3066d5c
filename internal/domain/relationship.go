package domain

import "fmt"

// Relationship is a directed edge between two canonical nodes. Kind is the
// catalog's original label ("uses", "mitigates", ...); CanonicalKind is the
// unified label from the mapping table.
type Relationship struct {
	ID            string         `json:"id"`
	SourceRef     string         `json:"source_ref"`
	TargetRef     string         `json:"target_ref"`
	Kind          string         `json:"kind"`
	CanonicalKind string         `json:"canonical_kind"`
	SourceCatalog string         `json:"source_catalog"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// MatchType classifies how a cross-reference was derived.
type MatchType string

const (
	MatchExactID      MatchType = "exact-id"
	MatchExactName    MatchType = "exact-name"
	MatchAliasOverlap MatchType = "alias-overlap"
	MatchNameInAlias  MatchType = "name-in-alias"
	MatchFuzzy        MatchType = "fuzzy-similarity"
)

// CrossReference asserts that two nodes from different catalogs describe the
// same or a closely related real-world concept. Immutable once created.
type CrossReference struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	SourceName string    `json:"source_name,omitempty"`
	TargetName string    `json:"target_name,omitempty"`
	MatchType  MatchType `json:"match_type"`
	Confidence float64   `json:"confidence"`
	Basis      string    `json:"basis,omitempty"`
}

// Relationship renders the cross-reference as a persistable edge under the
// reserved cross-reference catalog.
func (x CrossReference) Relationship() Relationship {
	return Relationship{
		ID:            fmt.Sprintf("cross-ref--%s--%s", x.SourceID, x.TargetID),
		SourceRef:     x.SourceID,
		TargetRef:     x.TargetID,
		Kind:          "related-to",
		CanonicalKind: "RELATED_TO",
		SourceCatalog: CatalogCrossReference,
		Properties: map[string]any{
			"match_type": string(x.MatchType),
			"confidence": x.Confidence,
			"basis":      x.Basis,
		},
	}
}
