package domain

// PlatformIntersection reports set algebra over the platform tags attached
// to two catalogs' Action nodes. OverlapPercent is |∩| / |∪| × 100, with an
// empty union reported as 0.
type PlatformIntersection struct {
	CatalogA       string   `json:"catalog_a"`
	CatalogB       string   `json:"catalog_b"`
	Common         []string `json:"common_platforms"`
	AOnly          []string `json:"catalog_a_only"`
	BOnly          []string `json:"catalog_b_only"`
	OverlapPercent float64  `json:"overlap_percentage"`
}

// CrossReferenceAnalysis is the full output of one resolution pass over two
// mapped catalogs. Either every field is populated or the pass failed as a
// whole; callers never see a partial report.
type CrossReferenceAnalysis struct {
	ExactMatches          []CrossReference       `json:"exact_matches"`
	AliasMatches          []CrossReference       `json:"alias_matches"`
	FuzzyMatches          []CrossReference       `json:"fuzzy_matches"`
	PlatformIntersections []PlatformIntersection `json:"platform_intersections"`
	TacticMappings        []CrossReference       `json:"tactic_mappings"`
}

// CrossReferences flattens every match phase into the list of derived
// relationships to persist. Platform intersections are analytic only and
// contribute no edges.
func (a *CrossReferenceAnalysis) CrossReferences() []CrossReference {
	out := make([]CrossReference, 0,
		len(a.ExactMatches)+len(a.AliasMatches)+len(a.FuzzyMatches)+len(a.TacticMappings))
	out = append(out, a.ExactMatches...)
	out = append(out, a.AliasMatches...)
	out = append(out, a.FuzzyMatches...)
	out = append(out, a.TacticMappings...)
	return out
}
