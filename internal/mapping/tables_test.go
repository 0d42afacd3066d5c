package mapping

import "testing"

func TestBuiltinTablesParse(t *testing.T) {
	tables := Builtin()
	if tables.Authority != "mitre-attack" {
		t.Fatalf("authority: want=mitre-attack got=%s", tables.Authority)
	}
	if len(tables.Kinds) == 0 {
		t.Fatalf("no kinds loaded")
	}
	for kind, entry := range tables.Kinds {
		if entry.CanonicalType == "" {
			t.Fatalf("kind %q has no canonical type", kind)
		}
		if entry.Label == "" {
			t.Fatalf("kind %q has no label", kind)
		}
	}
}

func TestBuiltinLabelsDistinctAndSorted(t *testing.T) {
	labels := Builtin().Labels()
	if len(labels) == 0 {
		t.Fatalf("no labels")
	}
	seen := make(map[string]struct{}, len(labels))
	for i, l := range labels {
		if _, dup := seen[l]; dup {
			t.Fatalf("duplicate label %q", l)
		}
		seen[l] = struct{}{}
		if i > 0 && labels[i-1] > l {
			t.Fatalf("labels not sorted: %q before %q", labels[i-1], l)
		}
	}
}

func TestParseRejectsUnknownCanonicalType(t *testing.T) {
	raw := []byte(`
authority: mitre-attack
kinds:
  bogus:
    canonical_type: NotAType
    label: Bogus
`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected error for unknown canonical type")
	}
}
