package domain

// SourceRecord is one kind-tagged record exactly as found in a source
// catalog. It is never mutated; the mapper reads from it and builds a Node or
// Relationship.
type SourceRecord map[string]any

func (r SourceRecord) Kind() string { return r.Str("type") }
func (r SourceRecord) ID() string   { return r.Str("id") }

func (r SourceRecord) Str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r SourceRecord) StrList(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ExternalReferences returns the record's external_references entries, each
// an arbitrary mapping with source_name / external_id / url fields.
func (r SourceRecord) ExternalReferences() []map[string]any {
	raw, ok := r["external_references"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
