// Package domain holds the read-model types served by the backend. They
// mirror the GraphRAG artifact rows after normalization: stable IDs,
// non-negative degrees, no NaN numerics, findings as structured objects.
package domain

// Entity is a node of the knowledge graph.
type Entity struct {
	ID              string `json:"id"`
	HumanReadableID string `json:"human_readable_id"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	Description     string `json:"description"`
	// Degree counts relationships touching this entity and doubles as a
	// centrality proxy for ranking.
	Degree int `json:"degree"`
}

// Relationship is a weighted edge between two entities, referenced by
// their titles as the indexer emits them.
type Relationship struct {
	ID              string  `json:"id"`
	HumanReadableID string  `json:"human_readable_id"`
	Source          string  `json:"source"`
	Target          string  `json:"target"`
	Description     string  `json:"description"`
	Weight          float64 `json:"weight"`
	SourceDegree    int     `json:"source_degree"`
	TargetDegree    int     `json:"target_degree"`
}

// Community is a cluster of entities with an LLM-generated report. Rank
// orders communities by importance; Rating is the report's own quality
// score and falls back to Rank when the artifact predates the column.
type Community struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Level           int       `json:"level"`
	Rank            float64   `json:"rank"`
	Rating          float64   `json:"rating"`
	Summary         string    `json:"summary"`
	FullContent     string    `json:"full_content,omitempty"`
	RankExplanation string    `json:"rank_explanation,omitempty"`
	Findings        []Finding `json:"findings"`
}

// Finding is one structured observation inside a community report.
type Finding struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation,omitempty"`
}

// TextUnit is a source-text chunk with links back to the entities
// extracted from it.
type TextUnit struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	NTokens   int      `json:"n_tokens"`
	EntityIDs []string `json:"entity_ids"`
}

// Neighbor pairs an adjacent entity with the relationship reaching it.
type Neighbor struct {
	Entity       Entity       `json:"entity"`
	Relationship Relationship `json:"relationship"`
}
