package search

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphrag-backend/internal/artifact"
)

// Fixture rows mirror the columns the artifact loader reads.

type entityFixture struct {
	ID                   string    `parquet:"id,optional"`
	HumanReadableID      int64     `parquet:"human_readable_id,optional"`
	Title                string    `parquet:"title,optional"`
	Type                 string    `parquet:"type,optional"`
	Description          string    `parquet:"description,optional"`
	Degree               int64     `parquet:"degree,optional"`
	DescriptionEmbedding []float64 `parquet:"description_embedding,list,optional"`
}

type relationshipFixture struct {
	ID          string  `parquet:"id,optional"`
	Source      string  `parquet:"source,optional"`
	Target      string  `parquet:"target,optional"`
	Description string  `parquet:"description,optional"`
	Weight      float64 `parquet:"weight,optional"`
}

type communityFixture struct {
	Title string `parquet:"title,optional"`
	Level int64  `parquet:"level,optional"`
}

type reportFixture struct {
	ID          string  `parquet:"id,optional"`
	Community   int64   `parquet:"community,optional"`
	Title       string  `parquet:"title,optional"`
	Level       int64   `parquet:"level,optional"`
	Rank        float64 `parquet:"rank,optional"`
	Summary     string  `parquet:"summary,optional"`
	FullContent string  `parquet:"full_content,optional"`
}

type textUnitFixture struct {
	ID        string   `parquet:"id,optional"`
	Text      string   `parquet:"text,optional"`
	NTokens   int64    `parquet:"n_tokens,optional"`
	EntityIDs []string `parquet:"entity_ids,list,optional"`
}

type nodeFixture struct {
	Title  string `parquet:"title,optional"`
	Degree int64  `parquet:"degree,optional"`
	Level  int64  `parquet:"level,optional"`
}

func writeRows[T any](t *testing.T, dir, name string, rows []T) {
	t.Helper()
	require.NoError(t, parquet.WriteFile[T](filepath.Join(dir, name), rows))
}

// writeSearchCorpus writes one complete generation: four entities with
// distinct degrees, four relationships, reports at levels 0 through 2 and
// three text units.
func writeSearchCorpus(t *testing.T, dir string) {
	t.Helper()

	writeRows(t, dir, artifact.EntitiesFile, []entityFixture{
		{ID: "e1", Title: "ALPHA CORP", Type: "ORGANIZATION", Description: "Industrial conglomerate"},
		{ID: "e2", Title: "BOB", Type: "PERSON", Description: "Chief engineer at Alpha Corp"},
		{ID: "e3", Title: "CAROL", Type: "PERSON", Description: "Research director"},
		{ID: "e4", Title: "DELTA LAB", Type: "ORGANIZATION", Description: "Research facility"},
	})

	writeRows(t, dir, artifact.NodesFile, []nodeFixture{
		{Title: "ALPHA CORP", Degree: 5, Level: 0},
		{Title: "BOB", Degree: 2, Level: 0},
		{Title: "CAROL", Degree: 1, Level: 0},
		{Title: "DELTA LAB", Degree: 4, Level: 0},
	})

	writeRows(t, dir, artifact.RelationshipsFile, []relationshipFixture{
		{ID: "r1", Source: "ALPHA CORP", Target: "BOB", Description: "employs", Weight: 4},
		{ID: "r2", Source: "ALPHA CORP", Target: "CAROL", Description: "employs", Weight: 3},
		{ID: "r3", Source: "ALPHA CORP", Target: "DELTA LAB", Description: "owns", Weight: 2},
		{ID: "r4", Source: "BOB", Target: "CAROL", Description: "collaborates with", Weight: 1},
	})

	writeRows(t, dir, artifact.CommunityReportsFile, []reportFixture{
		{ID: "c0", Community: 0, Title: "Community 0", Level: 0, Rank: 9.5,
			Summary: "Core industrial cluster", FullContent: "# Community 0\nDetails."},
		{ID: "c1", Community: 1, Title: "Community 1", Level: 1, Rank: 8.0,
			Summary: "Research staff"},
		{ID: "c2", Community: 2, Title: "Community 2", Level: 2, Rank: 7.0,
			Summary: "Facilities"},
	})

	writeRows(t, dir, artifact.CommunitiesFile, []communityFixture{
		{Title: "Community 0", Level: 0},
		{Title: "Community 1", Level: 1},
		{Title: "Community 2", Level: 2},
	})

	writeRows(t, dir, artifact.TextUnitsFile, []textUnitFixture{
		{ID: "t1", Text: "Alpha Corp acquired Delta Lab.", NTokens: 12, EntityIDs: []string{"e1", "e4"}},
		{ID: "t2", Text: "Bob works with Carol.", NTokens: 8, EntityIDs: []string{"e2", "e3"}},
		{ID: "t3", Text: "Quarterly financial note.", NTokens: 6, EntityIDs: []string{}},
	})
}

func newReadyStore(t *testing.T) *artifact.Store {
	t.Helper()
	dir := t.TempDir()
	writeSearchCorpus(t, dir)
	store := artifact.NewStore(dir, zap.NewNop(), nil)
	require.NotNil(t, store.Current())
	return store
}

func newEmptyStore(t *testing.T) *artifact.Store {
	t.Helper()
	return artifact.NewStore(t.TempDir(), zap.NewNop(), nil)
}
