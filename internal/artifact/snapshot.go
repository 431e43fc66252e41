package artifact

import (
	"sort"

	"graphrag-backend/internal/domain"
)

// Snapshot is one immutable generation of loaded artifacts. All slices and
// maps are built during load and never mutated afterwards, so a snapshot
// can be read from any number of goroutines without locking. Accessors
// that could tempt callers into mutation return copies.
type Snapshot struct {
	generation int64

	entities      []domain.Entity
	relationships []domain.Relationship
	communities   []domain.Community // sorted by rank descending
	textUnits     []domain.TextUnit

	entityByID    map[string]int
	entityByTitle map[string]int
	neighbors     map[string][]domain.Neighbor // entity id -> 1-hop
	embeddings    map[string][]float64         // entity id -> description embedding

	maxDegree int
}

// Generation returns the monotonically increasing generation number.
func (s *Snapshot) Generation() int64 {
	return s.generation
}

// Entities returns all entities with degree >= minDegree.
func (s *Snapshot) Entities(minDegree int) []domain.Entity {
	out := make([]domain.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if e.Degree >= minDegree {
			out = append(out, e)
		}
	}
	return out
}

// EntityCount returns the number of entities in this generation.
func (s *Snapshot) EntityCount() int {
	return len(s.entities)
}

// Relationships returns a copy of all relationships.
func (s *Snapshot) Relationships() []domain.Relationship {
	out := make([]domain.Relationship, len(s.relationships))
	copy(out, s.relationships)
	return out
}

// RelationshipCount returns the number of relationships in this generation.
func (s *Snapshot) RelationshipCount() int {
	return len(s.relationships)
}

// Communities returns communities with level <= maxLevel, ordered by rank
// descending. A negative maxLevel returns every level.
func (s *Snapshot) Communities(maxLevel int) []domain.Community {
	out := make([]domain.Community, 0, len(s.communities))
	for _, c := range s.communities {
		if maxLevel >= 0 && c.Level > maxLevel {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CommunityCount returns the number of community reports in this generation.
func (s *Snapshot) CommunityCount() int {
	return len(s.communities)
}

// TextUnits returns a copy of all text units.
func (s *Snapshot) TextUnits() []domain.TextUnit {
	out := make([]domain.TextUnit, len(s.textUnits))
	copy(out, s.textUnits)
	return out
}

// TextUnitCount returns the number of text units in this generation.
func (s *Snapshot) TextUnitCount() int {
	return len(s.textUnits)
}

// EntityByID looks an entity up by its artifact id.
func (s *Snapshot) EntityByID(id string) (domain.Entity, bool) {
	idx, ok := s.entityByID[id]
	if !ok {
		return domain.Entity{}, false
	}
	return s.entities[idx], true
}

// EntityByTitle looks an entity up by title. Duplicate titles resolve to
// the entity with the largest degree, then the smallest id.
func (s *Snapshot) EntityByTitle(title string) (domain.Entity, bool) {
	idx, ok := s.entityByTitle[title]
	if !ok {
		return domain.Entity{}, false
	}
	return s.entities[idx], true
}

// RelatedEntities returns the 1-hop neighborhood of an entity, strongest
// relationships first.
func (s *Snapshot) RelatedEntities(id string) []domain.Neighbor {
	src := s.neighbors[id]
	out := make([]domain.Neighbor, len(src))
	copy(out, src)
	return out
}

// EmbeddingFor returns the stored description embedding of an entity, or
// nil when the generation carries none.
func (s *Snapshot) EmbeddingFor(id string) []float64 {
	return s.embeddings[id]
}

// HasEmbeddings reports whether this generation carries description
// embeddings usable for semantic reranking.
func (s *Snapshot) HasEmbeddings() bool {
	return len(s.embeddings) > 0
}

// MaxDegree returns the largest entity degree in this generation.
func (s *Snapshot) MaxDegree() int {
	return s.maxDegree
}

// newSnapshot assembles the indexes and derived fields from loaded rows.
func newSnapshot(
	generation int64,
	entities []entityRow,
	relationships []relationshipRow,
	communities []communityRow,
	reports []reportRow,
	textUnits []textUnitRow,
	nodes []nodeRow,
) *Snapshot {
	snap := &Snapshot{
		generation:    generation,
		entityByID:    make(map[string]int, len(entities)),
		entityByTitle: make(map[string]int, len(entities)),
		neighbors:     make(map[string][]domain.Neighbor),
		embeddings:    make(map[string][]float64),
	}

	// The nodes table carries one row per entity per community level; an
	// entity's degree is the maximum across levels.
	nodeDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if d := clampCount(n.Degree); d > nodeDegree[n.Title] {
			nodeDegree[n.Title] = d
		}
	}

	snap.entities = make([]domain.Entity, 0, len(entities))
	for _, row := range entities {
		e := row.toDomain()
		if d := nodeDegree[e.Title]; d > e.Degree {
			e.Degree = d
		}
		idx := len(snap.entities)
		snap.entities = append(snap.entities, e)

		if e.ID != "" {
			snap.entityByID[e.ID] = idx
		}
		if len(row.DescriptionEmbedding) > 0 && e.ID != "" {
			snap.embeddings[e.ID] = row.DescriptionEmbedding
		}
		if prev, ok := snap.entityByTitle[e.Title]; ok {
			p := snap.entities[prev]
			if e.Degree > p.Degree || (e.Degree == p.Degree && e.ID < p.ID) {
				snap.entityByTitle[e.Title] = idx
			}
		} else {
			snap.entityByTitle[e.Title] = idx
		}
	}

	snap.relationships = make([]domain.Relationship, 0, len(relationships))
	for _, row := range relationships {
		snap.relationships = append(snap.relationships, row.toDomain())
	}

	// Adjacency feeds the degree fallback for generations whose nodes
	// table carries no degree column. Relationships with a dangling
	// endpoint stay in listings but contribute nothing here.
	adjacency := make(map[string]int, len(snap.entities))
	for _, r := range snap.relationships {
		se, sok := snap.entityByTitle[r.Source]
		te, tok := snap.entityByTitle[r.Target]
		if !sok || !tok {
			continue
		}
		adjacency[snap.entities[se].ID]++
		adjacency[snap.entities[te].ID]++
	}
	for i := range snap.entities {
		if snap.entities[i].Degree == 0 {
			snap.entities[i].Degree = adjacency[snap.entities[i].ID]
		}
		if snap.entities[i].Degree > snap.maxDegree {
			snap.maxDegree = snap.entities[i].Degree
		}
	}

	// Relationship endpoint degrees and neighbor lists are built from the
	// final entity degrees.
	for i := range snap.relationships {
		r := &snap.relationships[i]
		if r.SourceDegree == 0 {
			if e, ok := snap.EntityByTitle(r.Source); ok {
				r.SourceDegree = e.Degree
			}
		}
		if r.TargetDegree == 0 {
			if e, ok := snap.EntityByTitle(r.Target); ok {
				r.TargetDegree = e.Degree
			}
		}
	}
	for _, r := range snap.relationships {
		se, sok := snap.EntityByTitle(r.Source)
		te, tok := snap.EntityByTitle(r.Target)
		if !sok || !tok {
			continue
		}
		snap.neighbors[se.ID] = append(snap.neighbors[se.ID], domain.Neighbor{Entity: te, Relationship: r})
		if te.ID != se.ID {
			snap.neighbors[te.ID] = append(snap.neighbors[te.ID], domain.Neighbor{Entity: se, Relationship: r})
		}
	}
	for id := range snap.neighbors {
		hood := snap.neighbors[id]
		sort.SliceStable(hood, func(i, j int) bool {
			return hood[i].Relationship.Weight > hood[j].Relationship.Weight
		})
	}

	// Reports are the primary community source; the communities table
	// backfills levels for reports that predate the level column.
	titleLevel := make(map[string]int, len(communities))
	for _, c := range communities {
		titleLevel[c.Title] = clampCount(c.Level)
	}
	snap.communities = make([]domain.Community, 0, len(reports))
	for _, row := range reports {
		c := row.toDomain()
		if c.Level == 0 {
			if lvl, ok := titleLevel[c.Title]; ok {
				c.Level = lvl
			}
		}
		snap.communities = append(snap.communities, c)
	}
	sort.SliceStable(snap.communities, func(i, j int) bool {
		a, b := snap.communities[i], snap.communities[j]
		if a.Rank != b.Rank {
			return a.Rank > b.Rank
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Title < b.Title
	})

	snap.textUnits = make([]domain.TextUnit, 0, len(textUnits))
	for _, row := range textUnits {
		snap.textUnits = append(snap.textUnits, row.toDomain())
	}

	return snap
}
