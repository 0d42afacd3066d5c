// Package enrich tags mapped nodes with coarse categories derived from
// keyword rules. The tags feed the vector and search metadata so analysts
// can filter lookups by category.
package enrich

import (
	"sort"
	"strings"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

const CategoryProperty = "category"

type rule struct {
	category string
	keywords []string
}

// Classifier assigns at most one category per node; the first rule whose
// keyword appears in the name or description wins.
type Classifier struct {
	rules []rule
}

func NewClassifier() *Classifier {
	return &Classifier{
		rules: []rule{
			{category: "credential-access", keywords: []string{"credential", "password", "token theft", "keylog", "brute force"}},
			{category: "execution", keywords: []string{"execution", "command and scripting", "powershell", "script", "interpreter"}},
			{category: "persistence", keywords: []string{"persistence", "autostart", "boot or logon", "scheduled task", "registry run"}},
			{category: "exfiltration", keywords: []string{"exfiltration", "data transfer", "staged data"}},
			{category: "lateral-movement", keywords: []string{"lateral movement", "remote services", "pass the hash", "remote desktop"}},
			{category: "defense-evasion", keywords: []string{"evasion", "obfuscat", "masquerad", "disable or modify", "rootkit"}},
			{category: "discovery", keywords: []string{"discovery", "enumerat", "network scan", "reconnaissance"}},
			{category: "impact", keywords: []string{"impact", "destruction", "ransom", "wipe", "denial of service", "defacement"}},
			{category: "collection", keywords: []string{"collection", "screen capture", "audio capture", "clipboard"}},
			{category: "initial-access", keywords: []string{"phishing", "drive-by", "supply chain", "external remote", "valid accounts"}},
		},
	}
}

// Classify returns the category for an Action node, or "" when no rule
// matches or the node is not an Action.
func (c *Classifier) Classify(n *domain.Node) string {
	if n == nil || n.CanonicalType != domain.TypeAction {
		return ""
	}
	haystack := strings.ToLower(n.Name + " " + n.Description)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(haystack, kw) {
				return r.category
			}
		}
	}
	return ""
}

// Apply stores the category in the node's property bag; nodes with no match
// are left untouched.
func (c *Classifier) Apply(nodes []*domain.Node) int {
	tagged := 0
	for _, n := range nodes {
		category := c.Classify(n)
		if category == "" {
			continue
		}
		if n.Properties == nil {
			n.Properties = make(map[string]any)
		}
		n.Properties[CategoryProperty] = category
		tagged++
	}
	return tagged
}

// Categories lists every category the rule set can produce, sorted.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.category)
	}
	sort.Strings(out)
	return out
}
