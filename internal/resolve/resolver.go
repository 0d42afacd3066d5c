// Package resolve matches entities across two independently maintained
// catalogs: exact external-id joins, name and alias matching, and scored
// fuzzy similarity over names and descriptions.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

// Config carries the resolution thresholds. The defaults are empirically
// chosen; they are knobs, not invariants.
type Config struct {
	NameWeight        float64
	DescriptionWeight float64
	FuzzyThreshold    float64
	TacticThreshold   float64
	MaxFuzzyMatches   int
}

func DefaultConfig() Config {
	return Config{
		NameWeight:        0.6,
		DescriptionWeight: 0.4,
		FuzzyThreshold:    0.70,
		TacticThreshold:   0.50,
		MaxFuzzyMatches:   50,
	}
}

// Confidence assigned to non-exact match phases. Exact phases are always 1.0;
// fuzzy phases carry their own score.
const (
	aliasOverlapConfidence = 0.9
	nameInAliasConfidence  = 0.8
)

type Resolver struct {
	cfg Config
	log *logger.Logger
}

func New(log *logger.Logger, cfg Config) *Resolver {
	return &Resolver{cfg: cfg, log: log.With("component", "EntityResolver")}
}

// Resolve analyzes two mapped catalogs and produces the full cross-reference
// report. Any phase failure fails the whole resolution; the report is never
// partially populated.
func (r *Resolver) Resolve(catalogA, catalogB []*domain.Node) (*domain.CrossReferenceAnalysis, error) {
	if len(catalogA) == 0 || len(catalogB) == 0 {
		return nil, fmt.Errorf("resolve: both catalogs must be non-empty (a=%d b=%d)", len(catalogA), len(catalogB))
	}
	nameA, nameB := catalogA[0].SourceCatalog, catalogB[0].SourceCatalog
	if nameA == nameB {
		return nil, fmt.Errorf("resolve: catalogs must differ, both are %q", nameA)
	}

	exact := r.exactIDMatches(catalogA, catalogB)

	matched := make(map[string]struct{}, len(exact))
	for _, x := range exact {
		matched[pairKey(x.SourceID, x.TargetID)] = struct{}{}
	}

	nameMatches := r.exactNameMatches(catalogA, catalogB)
	aliasMatches := r.aliasMatches(catalogA, catalogB)
	fuzzy := r.fuzzyMatches(catalogA, catalogB, matched)
	tactics := r.tacticMappings(catalogA, catalogB)
	platforms := r.platformIntersections(nameA, nameB, catalogA, catalogB)

	analysis := &domain.CrossReferenceAnalysis{
		ExactMatches:          append(exact, nameMatches...),
		AliasMatches:          aliasMatches,
		FuzzyMatches:          fuzzy,
		PlatformIntersections: platforms,
		TacticMappings:        tactics,
	}

	r.log.Info("cross-catalog resolution complete",
		"catalog_a", nameA,
		"catalog_b", nameB,
		"exact_matches", len(analysis.ExactMatches),
		"alias_matches", len(analysis.AliasMatches),
		"fuzzy_matches", len(analysis.FuzzyMatches),
		"tactic_mappings", len(analysis.TacticMappings),
	)
	return analysis, nil
}

// exactIDMatches joins nodes of the same canonical type on external id. Ids
// that appear more than once on either side are ambiguous and left to the
// lower-confidence phases.
func (r *Resolver) exactIDMatches(catalogA, catalogB []*domain.Node) []domain.CrossReference {
	byKeyA := groupByTypeAndExternalID(catalogA)
	byKeyB := groupByTypeAndExternalID(catalogB)

	var out []domain.CrossReference
	for key, nodesA := range byKeyA {
		nodesB, ok := byKeyB[key]
		if !ok || len(nodesA) != 1 || len(nodesB) != 1 {
			continue
		}
		a, b := nodesA[0], nodesB[0]
		out = append(out, domain.CrossReference{
			SourceID:   a.ID,
			TargetID:   b.ID,
			SourceName: a.Name,
			TargetName: b.Name,
			MatchType:  domain.MatchExactID,
			Confidence: 1.0,
			Basis:      fmt.Sprintf("shared external id %s", a.ExternalID),
		})
	}
	sortRefs(out)
	return out
}

// exactNameMatches compares lower-cased names for actor- and tool-like
// nodes. Empty names never match.
func (r *Resolver) exactNameMatches(catalogA, catalogB []*domain.Node) []domain.CrossReference {
	byName := make(map[string]*domain.Node)
	for _, n := range catalogA {
		if !nameMatchable(n) {
			continue
		}
		if name := strings.ToLower(n.Name); name != "" {
			byName[nameKey(n.CanonicalType, name)] = n
		}
	}

	var out []domain.CrossReference
	for _, b := range catalogB {
		if !nameMatchable(b) {
			continue
		}
		name := strings.ToLower(b.Name)
		if name == "" {
			continue
		}
		a, ok := byName[nameKey(b.CanonicalType, name)]
		if !ok {
			continue
		}
		out = append(out, domain.CrossReference{
			SourceID:   a.ID,
			TargetID:   b.ID,
			SourceName: a.Name,
			TargetName: b.Name,
			MatchType:  domain.MatchExactName,
			Confidence: 1.0,
			Basis:      fmt.Sprintf("identical name %q", a.Name),
		})
	}
	sortRefs(out)
	return out
}

// aliasMatches finds alias-set overlap plus the asymmetric case where one
// catalog's primary name is another catalog's alias.
func (r *Resolver) aliasMatches(catalogA, catalogB []*domain.Node) []domain.CrossReference {
	var out []domain.CrossReference
	for _, a := range catalogA {
		if len(a.Aliases) == 0 && a.Name == "" {
			continue
		}
		aliasesA := lowerSet(a.Aliases)
		nameA := strings.ToLower(a.Name)

		for _, b := range catalogB {
			nameB := strings.ToLower(b.Name)
			if nameA != "" && nameA == nameB {
				// Exact-name phase already covers this pair.
				continue
			}
			aliasesB := lowerSet(b.Aliases)

			if shared := intersect(aliasesA, aliasesB); len(shared) > 0 {
				out = append(out, domain.CrossReference{
					SourceID:   a.ID,
					TargetID:   b.ID,
					SourceName: a.Name,
					TargetName: b.Name,
					MatchType:  domain.MatchAliasOverlap,
					Confidence: aliasOverlapConfidence,
					Basis:      "shared aliases: " + strings.Join(shared, ", "),
				})
				continue
			}

			if nameA != "" && aliasesB[nameA] {
				out = append(out, domain.CrossReference{
					SourceID:   a.ID,
					TargetID:   b.ID,
					SourceName: a.Name,
					TargetName: b.Name,
					MatchType:  domain.MatchNameInAlias,
					Confidence: nameInAliasConfidence,
					Basis:      fmt.Sprintf("name %q appears in aliases of %q", a.Name, b.Name),
				})
			} else if nameB != "" && aliasesA[nameB] {
				out = append(out, domain.CrossReference{
					SourceID:   a.ID,
					TargetID:   b.ID,
					SourceName: a.Name,
					TargetName: b.Name,
					MatchType:  domain.MatchNameInAlias,
					Confidence: nameInAliasConfidence,
					Basis:      fmt.Sprintf("name %q appears in aliases of %q", b.Name, a.Name),
				})
			}
		}
	}
	sortRefs(out)
	return out
}

// fuzzyMatches scores the full cross-product of Action nodes. Pairs already
// resolved by external id are skipped. Only scores strictly above the
// threshold are kept, sorted descending and truncated to MaxFuzzyMatches.
func (r *Resolver) fuzzyMatches(catalogA, catalogB []*domain.Node, matched map[string]struct{}) []domain.CrossReference {
	actionsA := ofType(catalogA, domain.TypeAction)
	actionsB := ofType(catalogB, domain.TypeAction)

	var out []domain.CrossReference
	for _, a := range actionsA {
		for _, b := range actionsB {
			if _, done := matched[pairKey(a.ID, b.ID)]; done {
				continue
			}
			if a.ExternalID != "" && a.ExternalID == b.ExternalID {
				continue
			}
			score := r.combinedScore(a, b)
			if score <= r.cfg.FuzzyThreshold {
				continue
			}
			out = append(out, domain.CrossReference{
				SourceID:   a.ID,
				TargetID:   b.ID,
				SourceName: a.Name,
				TargetName: b.Name,
				MatchType:  domain.MatchFuzzy,
				Confidence: score,
				Basis:      fmt.Sprintf("combined name/description similarity %.3f", score),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence == out[j].Confidence {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Confidence > out[j].Confidence
	})
	if r.cfg.MaxFuzzyMatches > 0 && len(out) > r.cfg.MaxFuzzyMatches {
		out = out[:r.cfg.MaxFuzzyMatches]
	}
	return out
}

// tacticMappings maps tactic-like nodes across catalogs. Tactics rarely
// carry stable external ids, so matching is exact-name first and combined
// similarity above the tactic threshold for the rest.
func (r *Resolver) tacticMappings(catalogA, catalogB []*domain.Node) []domain.CrossReference {
	tacticsA := ofType(catalogA, domain.TypeActionPattern)
	tacticsB := ofType(catalogB, domain.TypeActionPattern)

	var out []domain.CrossReference
	for _, a := range tacticsA {
		nameA := strings.ToLower(a.Name)
		for _, b := range tacticsB {
			nameB := strings.ToLower(b.Name)
			if nameA != "" && nameA == nameB {
				out = append(out, domain.CrossReference{
					SourceID:   a.ID,
					TargetID:   b.ID,
					SourceName: a.Name,
					TargetName: b.Name,
					MatchType:  domain.MatchExactName,
					Confidence: 1.0,
					Basis:      fmt.Sprintf("identical tactic name %q", a.Name),
				})
				continue
			}
			score := r.combinedScore(a, b)
			if score <= r.cfg.TacticThreshold {
				continue
			}
			out = append(out, domain.CrossReference{
				SourceID:   a.ID,
				TargetID:   b.ID,
				SourceName: a.Name,
				TargetName: b.Name,
				MatchType:  domain.MatchFuzzy,
				Confidence: score,
				Basis:      fmt.Sprintf("tactic similarity %.3f", score),
			})
		}
	}
	sortRefs(out)
	return out
}

// platformIntersections is pure set algebra over platform tags on Action
// nodes, no scoring. An empty union reports 0% rather than dividing by zero.
func (r *Resolver) platformIntersections(nameA, nameB string, catalogA, catalogB []*domain.Node) []domain.PlatformIntersection {
	platformsA := platformSet(catalogA)
	platformsB := platformSet(catalogB)

	common := intersect(platformsA, platformsB)
	aOnly := subtract(platformsA, platformsB)
	bOnly := subtract(platformsB, platformsA)

	unionSize := len(platformsA) + len(platformsB) - len(common)
	pct := 0.0
	if unionSize > 0 {
		pct = float64(len(common)) / float64(unionSize) * 100
	}

	return []domain.PlatformIntersection{{
		CatalogA:       nameA,
		CatalogB:       nameB,
		Common:         common,
		AOnly:          aOnly,
		BOnly:          bOnly,
		OverlapPercent: pct,
	}}
}

func (r *Resolver) combinedScore(a, b *domain.Node) float64 {
	nameScore := Ratio(a.Name, b.Name)
	descScore := Ratio(a.Description, b.Description)
	return r.cfg.NameWeight*nameScore + r.cfg.DescriptionWeight*descScore
}

func groupByTypeAndExternalID(nodes []*domain.Node) map[string][]*domain.Node {
	out := make(map[string][]*domain.Node)
	for _, n := range nodes {
		if n.ExternalID == "" {
			continue
		}
		key := string(n.CanonicalType) + "|" + n.ExternalID
		out[key] = append(out[key], n)
	}
	return out
}

func nameMatchable(n *domain.Node) bool {
	return n.CanonicalType == domain.TypeIdentity || n.CanonicalType == domain.TypeTool
}

func nameKey(t domain.CanonicalType, loweredName string) string {
	return string(t) + "|" + loweredName
}

func pairKey(aID, bID string) string { return aID + "|" + bID }

func ofType(nodes []*domain.Node, t domain.CanonicalType) []*domain.Node {
	var out []*domain.Node
	for _, n := range nodes {
		if n.CanonicalType == t {
			out = append(out, n)
		}
	}
	return out
}

func platformSet(nodes []*domain.Node) map[string]bool {
	out := make(map[string]bool)
	for _, n := range nodes {
		if n.CanonicalType != domain.TypeAction {
			continue
		}
		for _, p := range n.Platforms {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				out[p] = true
			}
		}
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = true
		}
	}
	return out
}

func intersect(a, b map[string]bool) []string {
	var out []string
	for v := range a {
		if b[v] {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func subtract(a, b map[string]bool) []string {
	var out []string
	for v := range a {
		if !b[v] {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func sortRefs(refs []domain.CrossReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].SourceID == refs[j].SourceID {
			return refs[i].TargetID < refs[j].TargetID
		}
		return refs[i].SourceID < refs[j].SourceID
	})
}
