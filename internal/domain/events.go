package domain

import "time"

type EventType string

const (
	EventNodeUpserted         EventType = "node_upserted"
	EventRelationshipUpserted EventType = "relationship_upserted"
	EventCrossReferenceFound  EventType = "cross_reference_found"
)

// EntityEvent is the record published to the event stream after a batch
// commits. Delivery is at-least-once; consumers must tolerate duplicates.
type EntityEvent struct {
	EventType     EventType `json:"event_type"`
	EntityID      string    `json:"entity_id"`
	Label         string    `json:"label"`
	Content       string    `json:"content"`
	SourceCatalog string    `json:"source_catalog"`
	Timestamp     time.Time `json:"timestamp"`
}

func NodeEvent(n *Node) EntityEvent {
	return EntityEvent{
		EventType:     EventNodeUpserted,
		EntityID:      n.ID,
		Label:         n.Label,
		Content:       n.Content(),
		SourceCatalog: n.SourceCatalog,
		Timestamp:     time.Now().UTC(),
	}
}

func RelationshipEvent(r *Relationship) EntityEvent {
	typ := EventRelationshipUpserted
	if r.SourceCatalog == CatalogCrossReference {
		typ = EventCrossReferenceFound
	}
	return EntityEvent{
		EventType:     typ,
		EntityID:      r.ID,
		Label:         r.CanonicalKind,
		SourceCatalog: r.SourceCatalog,
		Timestamp:     time.Now().UTC(),
	}
}
