// Package analytics derives UI-ready metrics from the current artifact
// generation and memoizes them until the generation changes.
package analytics

import "graphrag-backend/internal/domain"

// Statistics is the corpus-wide summary served by /api/statistics.
type Statistics struct {
	Entities      EntityStats       `json:"entities"`
	Relationships RelationshipStats `json:"relationships"`
	Communities   CountStat         `json:"communities"`
	TextUnits     CountStat         `json:"text_units"`
	GraphDensity  float64           `json:"graph_density"`
	Message       string            `json:"message,omitempty"`
}

// EntityStats counts entities overall and per type.
type EntityStats struct {
	Total int            `json:"total"`
	Types map[string]int `json:"types"`
}

// RelationshipStats summarizes relationship weights.
type RelationshipStats struct {
	Total       int         `json:"total"`
	WeightStats WeightStats `json:"weight_stats"`
}

// WeightStats holds the weight distribution. Median is the lower median
// for even counts.
type WeightStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// CountStat is a bare total.
type CountStat struct {
	Total int `json:"total"`
}

// EntityTypeBreakdown is the histogram served by /api/entity-types.
type EntityTypeBreakdown struct {
	Types         []TypeCount `json:"types"`
	TotalEntities int         `json:"total_entities"`
	Message       string      `json:"message"`
}

// TypeCount is one histogram bucket. Percentage is rounded to two
// decimals.
type TypeCount struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TopRelationships is the ranking served by /api/relationships/top.
type TopRelationships struct {
	Relationships []RankedRelationship `json:"relationships"`
	Total         int                  `json:"total"`
	Message       string               `json:"message"`
}

// RankedRelationship decorates a relationship with its 1-based rank.
type RankedRelationship struct {
	Rank int `json:"rank"`
	domain.Relationship
}

// EntityAnalysis is the per-entity centrality view served by
// /api/graph/entity/{id}.
type EntityAnalysis struct {
	ID                   string            `json:"id"`
	Title                string            `json:"title"`
	EntityType           string            `json:"entity_type"`
	Description          string            `json:"description"`
	Degree               int               `json:"degree"`
	CentralityScore      int               `json:"centrality_score"`
	NormalizedCentrality float64           `json:"normalized_centrality"`
	SemanticDescription  string            `json:"semantic_description"`
	InfluenceFactors     []InfluenceFactor `json:"influence_factors"`
	Analysis             string            `json:"analysis"`
}

// InfluenceFactor names one neighboring entity and the tie to it.
type InfluenceFactor struct {
	Entity       string  `json:"related_entity"`
	Relationship string  `json:"description"`
	Weight       float64 `json:"weight"`
}

// EmptyStatistics is the zero-valued statistics body served before the
// first generation exists.
func EmptyStatistics(message string) *Statistics {
	return &Statistics{
		Entities: EntityStats{Types: map[string]int{}},
		Message:  message,
	}
}

// EmptyEntityTypes is the empty histogram body.
func EmptyEntityTypes(message string) *EntityTypeBreakdown {
	return &EntityTypeBreakdown{Types: []TypeCount{}, Message: message}
}

// EmptyTopRelationships is the empty ranking body.
func EmptyTopRelationships(message string) *TopRelationships {
	return &TopRelationships{Relationships: []RankedRelationship{}, Message: message}
}
