// Package graph projects the current artifact generation into the bounded
// node-link shape the force-graph frontend renders.
package graph

import (
	"hash/fnv"
	"sort"

	"go.uber.org/zap"

	"graphrag-backend/internal/artifact"
)

const (
	// nodeLimit bounds the rendered subgraph so the browser layout stays
	// interactive on large generations.
	nodeLimit = 30

	groupCount = 5
	minVal     = 8
	maxVal     = 40
)

// Topology is the view served by /api/graph/topology.
type Topology struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
	Stats Stats  `json:"stats"`
}

// Node is one rendered entity. ID carries the entity title because links
// reference their endpoints by it.
type Node struct {
	ID    string `json:"id"`
	Group int    `json:"group"`
	Val   int    `json:"val"`
}

// Link is one rendered relationship between two displayed nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Stats summarizes the whole generation alongside what is displayed.
type Stats struct {
	TotalEntities      int  `json:"total_entities"`
	TotalRelationships int  `json:"total_relationships"`
	TotalCommunities   int  `json:"total_communities"`
	DisplayedNodes     int  `json:"displayed_nodes"`
	DisplayedLinks     int  `json:"displayed_links"`
	IsEmpty            bool `json:"isEmpty"`
}

// Projector builds topologies from the store's current snapshot.
type Projector struct {
	store  *artifact.Store
	logger *zap.Logger
}

// NewProjector creates a projector over the store.
func NewProjector(store *artifact.Store, logger *zap.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// Topology projects the current generation: the top entities by degree,
// the relationships running between them, and generation-wide counters.
// A missing generation or one without entities yields the empty shape
// with IsEmpty set; that is an answer, not an error.
func (p *Projector) Topology() *Topology {
	snap := p.store.Current()
	if snap == nil {
		return emptyTopology()
	}

	entities := snap.Entities(0)
	if len(entities) == 0 {
		t := emptyTopology()
		t.Stats.TotalRelationships = snap.RelationshipCount()
		t.Stats.TotalCommunities = snap.CommunityCount()
		return t
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Degree != entities[j].Degree {
			return entities[i].Degree > entities[j].Degree
		}
		return entities[i].ID < entities[j].ID
	})
	if len(entities) > nodeLimit {
		entities = entities[:nodeLimit]
	}

	nodes := make([]Node, 0, len(entities))
	displayed := make(map[string]bool, len(entities))
	for _, e := range entities {
		nodes = append(nodes, Node{
			ID:    e.Title,
			Group: typeGroup(e.Type),
			Val:   nodeVal(e.Degree),
		})
		displayed[e.Title] = true
	}

	links := make([]Link, 0, len(nodes))
	for _, r := range snap.Relationships() {
		if displayed[r.Source] && displayed[r.Target] {
			links = append(links, Link{Source: r.Source, Target: r.Target})
		}
	}

	p.logger.Debug("Topology projected",
		zap.Int64("generation", snap.Generation()),
		zap.Int("nodes", len(nodes)),
		zap.Int("links", len(links)),
	)

	return &Topology{
		Nodes: nodes,
		Links: links,
		Stats: Stats{
			TotalEntities:      snap.EntityCount(),
			TotalRelationships: snap.RelationshipCount(),
			TotalCommunities:   snap.CommunityCount(),
			DisplayedNodes:     len(nodes),
			DisplayedLinks:     len(links),
		},
	}
}

func emptyTopology() *Topology {
	return &Topology{
		Nodes: []Node{},
		Links: []Link{},
		Stats: Stats{IsEmpty: true},
	}
}

// typeGroup buckets an entity type into one of groupCount color groups.
// FNV-1a keeps the assignment stable across processes.
func typeGroup(entityType string) int {
	if entityType == "" {
		entityType = "unknown"
	}
	h := fnv.New32a()
	h.Write([]byte(entityType))
	return int(h.Sum32()%groupCount) + 1
}

// nodeVal scales degree into the renderer's size range.
func nodeVal(degree int) int {
	if degree < minVal {
		return minVal
	}
	if degree > maxVal {
		return maxVal
	}
	return degree
}
