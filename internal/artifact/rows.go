package artifact

import (
	"encoding/json"
	"math"
	"strconv"

	"graphrag-backend/internal/domain"
)

// Artifact files the indexer writes into the output directory. All six
// must be present before a generation is considered loadable.
const (
	EntitiesFile         = "create_final_entities.parquet"
	RelationshipsFile    = "create_final_relationships.parquet"
	CommunitiesFile      = "create_final_communities.parquet"
	CommunityReportsFile = "create_final_community_reports.parquet"
	TextUnitsFile        = "create_final_text_units.parquet"
	NodesFile            = "create_final_nodes.parquet"
)

// RequiredFiles lists every artifact a complete generation consists of.
var RequiredFiles = []string{
	EntitiesFile,
	RelationshipsFile,
	CommunitiesFile,
	CommunityReportsFile,
	TextUnitsFile,
	NodesFile,
}

// Row structs mirror the columns we read. Everything is optional: the
// indexer's schema has drifted across versions and absent columns must
// load as zero values, never fail the generation.

type entityRow struct {
	ID                   string    `parquet:"id,optional"`
	HumanReadableID      int64     `parquet:"human_readable_id,optional"`
	Title                string    `parquet:"title,optional"`
	Type                 string    `parquet:"type,optional"`
	Description          string    `parquet:"description,optional"`
	Degree               int64     `parquet:"degree,optional"`
	DescriptionEmbedding []float64 `parquet:"description_embedding,list,optional"`
}

type relationshipRow struct {
	ID              string  `parquet:"id,optional"`
	HumanReadableID int64   `parquet:"human_readable_id,optional"`
	Source          string  `parquet:"source,optional"`
	Target          string  `parquet:"target,optional"`
	Description     string  `parquet:"description,optional"`
	Weight          float64 `parquet:"weight,optional"`
	SourceDegree    int64   `parquet:"source_degree,optional"`
	TargetDegree    int64   `parquet:"target_degree,optional"`
}

type communityRow struct {
	Title string `parquet:"title,optional"`
	Level int64  `parquet:"level,optional"`
}

type reportRow struct {
	ID              string  `parquet:"id,optional"`
	Community       int64   `parquet:"community,optional"`
	Title           string  `parquet:"title,optional"`
	Level           int64   `parquet:"level,optional"`
	Rank            float64 `parquet:"rank,optional"`
	Rating          float64 `parquet:"rating,optional"`
	Summary         string  `parquet:"summary,optional"`
	FullContent     string  `parquet:"full_content,optional"`
	RankExplanation string  `parquet:"rank_explanation,optional"`
	// Findings arrive as a JSON-encoded array whose elements are either
	// bare strings or {summary, explanation} objects.
	Findings string `parquet:"findings,optional"`
}

type textUnitRow struct {
	ID        string   `parquet:"id,optional"`
	Text      string   `parquet:"text,optional"`
	NTokens   int64    `parquet:"n_tokens,optional"`
	EntityIDs []string `parquet:"entity_ids,list,optional"`
}

type nodeRow struct {
	Title  string `parquet:"title,optional"`
	Degree int64  `parquet:"degree,optional"`
	Level  int64  `parquet:"level,optional"`
}

// sanitizeFloat collapses NaN and infinities to zero so they never reach
// JSON encoding.
func sanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// clampCount converts a possibly negative or missing count column.
func clampCount(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

// humanID normalizes the numeric human_readable_id column to a string.
func humanID(n int64) string {
	return strconv.FormatInt(n, 10)
}

func (r entityRow) toDomain() domain.Entity {
	return domain.Entity{
		ID:              r.ID,
		HumanReadableID: humanID(r.HumanReadableID),
		Title:           r.Title,
		Type:            r.Type,
		Description:     r.Description,
		Degree:          clampCount(r.Degree),
	}
}

func (r relationshipRow) toDomain() domain.Relationship {
	return domain.Relationship{
		ID:              r.ID,
		HumanReadableID: humanID(r.HumanReadableID),
		Source:          r.Source,
		Target:          r.Target,
		Description:     r.Description,
		Weight:          sanitizeFloat(r.Weight),
		SourceDegree:    clampCount(r.SourceDegree),
		TargetDegree:    clampCount(r.TargetDegree),
	}
}

func (r reportRow) toDomain() domain.Community {
	id := r.ID
	if id == "" {
		id = strconv.FormatInt(r.Community, 10)
	}
	rating := sanitizeFloat(r.Rating)
	if rating == 0 {
		rating = sanitizeFloat(r.Rank)
	}
	return domain.Community{
		ID:              id,
		Title:           r.Title,
		Level:           clampCount(r.Level),
		Rank:            sanitizeFloat(r.Rank),
		Rating:          rating,
		Summary:         r.Summary,
		FullContent:     r.FullContent,
		RankExplanation: r.RankExplanation,
		Findings:        normalizeFindings(r.Findings),
	}
}

func (r textUnitRow) toDomain() domain.TextUnit {
	ids := r.EntityIDs
	if ids == nil {
		ids = []string{}
	}
	return domain.TextUnit{
		ID:        r.ID,
		Text:      r.Text,
		NTokens:   clampCount(r.NTokens),
		EntityIDs: ids,
	}
}

// normalizeFindings parses the findings column. Elements may be bare
// strings or {summary, explanation} objects; anything unparseable yields
// an empty list rather than an error, since findings are decorative.
func normalizeFindings(raw string) []domain.Finding {
	findings := []domain.Finding{}
	if raw == "" {
		return findings
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return findings
	}

	for _, el := range elements {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			if s != "" {
				findings = append(findings, domain.Finding{Summary: s})
			}
			continue
		}

		var obj struct {
			Summary     string `json:"summary"`
			Explanation string `json:"explanation"`
		}
		if err := json.Unmarshal(el, &obj); err == nil {
			if obj.Summary != "" || obj.Explanation != "" {
				findings = append(findings, domain.Finding(obj))
			}
		}
	}
	return findings
}
