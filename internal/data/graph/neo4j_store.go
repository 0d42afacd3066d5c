package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/platform/neo4jdb"
)

// Labels and relationship kinds are interpolated into Cypher, so they are
// restricted to identifier characters. Everything else travels as parameters.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (Store, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		return nil, fmt.Errorf("graph: logger required")
	}
	return &neo4jStore{
		client: client,
		log:    log.With("service", "Neo4jGraphStore"),
	}, nil
}

func (s *neo4jStore) EnsureSchema(ctx context.Context, labels []string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, label := range labels {
		if !identifierRe.MatchString(label) {
			return fmt.Errorf("graph: invalid label %q", label)
		}
		stmt := fmt.Sprintf(
			`CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE`,
			toSnake(label), label,
		)
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.log.Warn("schema init failed (continuing)", "label", label, "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
	return nil
}

func (s *neo4jStore) UpsertNodes(ctx context.Context, label string, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if !identifierRe.MatchString(label) {
		return fmt.Errorf("graph: invalid label %q", label)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":              n.ID,
			"canonical_type":  string(n.CanonicalType),
			"source_kind":     n.SourceKind,
			"name":            n.Name,
			"description":     n.Description,
			"external_id":     n.ExternalID,
			"source_catalog":  n.SourceCatalog,
			"aliases":         n.Aliases,
			"platforms":       n.Platforms,
			"properties_json": encodeProps(n.Properties),
			"synced_at":       now,
		})
	}

	query := fmt.Sprintf(`
UNWIND $rows AS row
MERGE (n:%s {id: row.id})
SET n.canonical_type = row.canonical_type,
    n.source_kind = row.source_kind,
    n.name = row.name,
    n.description = row.description,
    n.external_id = row.external_id,
    n.source_catalog = row.source_catalog,
    n.aliases = row.aliases,
    n.platforms = row.platforms,
    n.properties_json = row.properties_json,
    n.synced_at = row.synced_at
`, label)

	return s.write(ctx, "upsert_nodes", query, map[string]any{"rows": rows})
}

func (s *neo4jStore) UpsertRelationships(ctx context.Context, kind string, rels []*domain.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	if !identifierRe.MatchString(kind) {
		return fmt.Errorf("graph: invalid relationship kind %q", kind)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		if r == nil || r.ID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":              r.ID,
			"source_ref":      r.SourceRef,
			"target_ref":      r.TargetRef,
			"kind":            r.Kind,
			"source_catalog":  r.SourceCatalog,
			"properties_json": encodeProps(r.Properties),
			"synced_at":       now,
		})
	}

	query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a {id: row.source_ref})
MATCH (b {id: row.target_ref})
MERGE (a)-[e:%s {id: row.id}]->(b)
SET e.kind = row.kind,
    e.source_catalog = row.source_catalog,
    e.properties_json = row.properties_json,
    e.synced_at = row.synced_at
`, kind)

	return s.write(ctx, "upsert_relationships", query, map[string]any{"rows": rows})
}

func (s *neo4jStore) LabelCounts(ctx context.Context) (map[string]int64, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n) UNWIND labels(n) AS label RETURN label, count(n) AS c`, nil)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int64)
		for res.Next(ctx) {
			rec := res.Record()
			label, _ := rec.Get("label")
			c, _ := rec.Get("c")
			name, ok := label.(string)
			if !ok {
				continue
			}
			count, ok := c.(int64)
			if !ok {
				continue
			}
			counts[name] = count
		}
		return counts, res.Err()
	})
	if err != nil {
		return nil, &TransientError{Op: "label_counts", Err: err}
	}
	return out.(map[string]int64), nil
}

func (s *neo4jStore) write(ctx context.Context, op, query string, params map[string]any) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		// Driver errors here are connectivity/leader/transaction issues;
		// data problems were validated before the query was built.
		return &TransientError{Op: op, Err: err}
	}
	return nil
}

func (s *neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func encodeProps(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return ""
	}
	return string(raw)
}

func toSnake(label string) string {
	out := make([]rune, 0, len(label)+4)
	for i, r := range label {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
