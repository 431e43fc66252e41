package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"graphrag-backend/internal/artifact"
)

// unknownType buckets entities whose type column is empty.
const unknownType = "unknown"

const influenceFactorLimit = 10

func computeStatistics(snap *artifact.Snapshot) *Statistics {
	entities := snap.Entities(0)
	relationships := snap.Relationships()

	types := make(map[string]int, 8)
	for _, e := range entities {
		types[typeKey(e.Type)]++
	}

	weights := make([]float64, 0, len(relationships))
	for _, r := range relationships {
		weights = append(weights, r.Weight)
	}

	return &Statistics{
		Entities:      EntityStats{Total: len(entities), Types: types},
		Relationships: RelationshipStats{Total: len(relationships), WeightStats: weightStats(weights)},
		Communities:   CountStat{Total: snap.CommunityCount()},
		TextUnits:     CountStat{Total: snap.TextUnitCount()},
		GraphDensity:  graphDensity(len(entities), len(relationships)),
	}
}

// graphDensity is 2R/(E(E-1)), clamped to [0,1] since parallel edges can
// push the raw ratio past a simple graph's maximum.
func graphDensity(entities, relationships int) float64 {
	if entities < 2 {
		return 0
	}
	d := 2 * float64(relationships) / (float64(entities) * float64(entities-1))
	return math.Min(d, 1)
}

// weightStats computes min/max/mean and the lower median.
func weightStats(weights []float64) WeightStats {
	if len(weights) == 0 {
		return WeightStats{}
	}
	sorted := make([]float64, len(weights))
	copy(sorted, weights)
	sort.Float64s(sorted)

	var sum float64
	for _, w := range sorted {
		sum += w
	}
	return WeightStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		Median: sorted[(len(sorted)-1)/2],
	}
}

func computeEntityTypes(snap *artifact.Snapshot) *EntityTypeBreakdown {
	entities := snap.Entities(0)

	counts := make(map[string]int, 8)
	for _, e := range entities {
		counts[typeKey(e.Type)]++
	}

	types := make([]TypeCount, 0, len(counts))
	for name, count := range counts {
		pct := 0.0
		if len(entities) > 0 {
			pct = round2(float64(count) * 100 / float64(len(entities)))
		}
		types = append(types, TypeCount{Type: name, Count: count, Percentage: pct})
	}
	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return types[i].Type < types[j].Type
	})

	return &EntityTypeBreakdown{
		Types:         types,
		TotalEntities: len(entities),
		Message:       fmt.Sprintf("%d entity types across %d entities", len(types), len(entities)),
	}
}

func computeTopRelationships(snap *artifact.Snapshot, limit int) *TopRelationships {
	relationships := snap.Relationships()
	sort.SliceStable(relationships, func(i, j int) bool {
		if relationships[i].Weight != relationships[j].Weight {
			return relationships[i].Weight > relationships[j].Weight
		}
		return relationships[i].Source < relationships[j].Source
	})

	if limit > len(relationships) {
		limit = len(relationships)
	}
	ranked := make([]RankedRelationship, 0, limit)
	for i := 0; i < limit; i++ {
		ranked = append(ranked, RankedRelationship{Rank: i + 1, Relationship: relationships[i]})
	}

	return &TopRelationships{
		Relationships: ranked,
		Total:         len(relationships),
		Message:       fmt.Sprintf("top %d of %d relationships by weight", len(ranked), len(relationships)),
	}
}

func computeEntityAnalysis(snap *artifact.Snapshot, id string) (*EntityAnalysis, bool) {
	entity, ok := snap.EntityByID(id)
	if !ok {
		return nil, false
	}

	normalized := 0.0
	if snap.MaxDegree() > 0 {
		normalized = float64(entity.Degree) / float64(snap.MaxDegree())
	}

	neighbors := snap.RelatedEntities(entity.ID)
	factors := make([]InfluenceFactor, 0, influenceFactorLimit)
	partners := make([]string, 0, 3)
	for i, n := range neighbors {
		if i >= influenceFactorLimit {
			break
		}
		factors = append(factors, InfluenceFactor{
			Entity:       n.Entity.Title,
			Relationship: n.Relationship.Description,
			Weight:       n.Relationship.Weight,
		})
		if len(partners) < 3 {
			partners = append(partners, n.Entity.Title)
		}
	}

	entityType := typeKey(entity.Type)
	semantic := fmt.Sprintf("%s is a %s entity with %d direct relationships in the knowledge graph.",
		entity.Title, strings.ToLower(entityType), entity.Degree)
	if entity.Description != "" {
		semantic = fmt.Sprintf("%s %s", semantic, entity.Description)
	}

	analysis := fmt.Sprintf(
		"%s holds %.0f%% of the maximum observed centrality (degree %d of %d).",
		entity.Title, normalized*100, entity.Degree, snap.MaxDegree())
	if len(partners) > 0 {
		analysis = fmt.Sprintf("%s Strongest connections: %s.", analysis, strings.Join(partners, ", "))
	}

	return &EntityAnalysis{
		ID:                   entity.ID,
		Title:                entity.Title,
		EntityType:           entityType,
		Description:          entity.Description,
		Degree:               entity.Degree,
		CentralityScore:      entity.Degree,
		NormalizedCentrality: normalized,
		SemanticDescription:  semantic,
		InfluenceFactors:     factors,
		Analysis:             analysis,
	}, true
}

func typeKey(t string) string {
	if strings.TrimSpace(t) == "" {
		return unknownType
	}
	return t
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
