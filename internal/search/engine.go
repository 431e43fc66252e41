package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"graphrag-backend/internal/artifact"
	"graphrag-backend/internal/domain"
)

// ChatModel is what the engine needs from the inference client.
type ChatModel interface {
	Chat(ctx context.Context, system, user string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	// candidateLimit bounds the lexical pre-selection for local search.
	candidateLimit = 20
	// winnerLimit bounds the entities whose context is packed for the model.
	winnerLimit = 8
	// textUnitLimit bounds the source excerpts packed for the model.
	textUnitLimit = 6

	defaultContextBudget = 24000
)

const globalSystemPrompt = `You are a helpful assistant answering questions about a document collection that has been summarized into community reports.

Answer the question using only the report excerpts below. Merge evidence from multiple reports into one coherent answer and do not state anything the reports do not support. If the reports do not contain the answer, say so plainly.

Target format: %s.

Report excerpts:

%s`

const localSystemPrompt = `You are a helpful assistant answering questions about a knowledge graph built from a document collection.

Answer the question using only the context below: entity descriptions, relationships between entities, and source text excerpts. Refer to entities by name and do not state anything the context does not support. If the context does not contain the answer, say so plainly.

Target format: %s.

Context:

%s`

// SnapshotEngine builds retrieval context from the current artifact
// snapshot and asks the inference server for one completion per search.
type SnapshotEngine struct {
	store  *artifact.Store
	model  ChatModel
	logger *zap.Logger
	budget int
}

// NewSnapshotEngine creates the engine. budget caps the packed context in
// bytes; values below 1 select the default.
func NewSnapshotEngine(store *artifact.Store, model ChatModel, budget int, logger *zap.Logger) *SnapshotEngine {
	if budget <= 0 {
		budget = defaultContextBudget
	}
	return &SnapshotEngine{
		store:  store,
		model:  model,
		logger: logger,
		budget: budget,
	}
}

// GlobalSearch answers from community reports: reports with level at or
// below the requested community level are packed rank-first into the
// context budget and summarized by one chat call.
func (e *SnapshotEngine) GlobalSearch(ctx context.Context, params Params) (*Result, error) {
	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	params = params.withDefaults()

	b := newContextBuilder(e.budget)
	used := 0
	for _, c := range snap.Communities(params.CommunityLevel) {
		body := c.FullContent
		if body == "" {
			body = c.Summary
		}
		if !b.add(fmt.Sprintf("## %s (rank %.1f)\n%s\n\n", c.Title, c.Rank, body)) {
			break
		}
		used++
	}

	system := fmt.Sprintf(globalSystemPrompt, params.ResponseType, b.String())
	answer, err := e.model.Chat(ctx, system, params.Query)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Global search served",
		zap.Int("reports_used", used),
		zap.Int("context_bytes", b.Len()),
	)
	return &Result{
		Response: answer,
		Context: map[string]any{
			"mode":            "global",
			"community_level": params.CommunityLevel,
			"reports_used":    used,
		},
	}, nil
}

// LocalSearch answers from the neighborhood of the entities most relevant
// to the query: their descriptions, 1-hop relationships and the text
// units that mention them, packed into the budget for one chat call.
func (e *SnapshotEngine) LocalSearch(ctx context.Context, params Params) (*Result, error) {
	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	params = params.withDefaults()

	winners := e.selectEntities(ctx, snap, params.Query)

	winnerIDs := make(map[string]bool, len(winners))
	names := make([]string, 0, len(winners))
	for _, ent := range winners {
		winnerIDs[ent.ID] = true
		names = append(names, ent.Title)
	}

	b := newContextBuilder(e.budget)
	b.add("### Entities\n")
	for _, ent := range winners {
		entityType := ent.Type
		if entityType == "" {
			entityType = "unknown"
		}
		if !b.add(fmt.Sprintf("- %s (%s, degree %d): %s\n", ent.Title, entityType, ent.Degree, ent.Description)) {
			break
		}
	}

	b.add("\n### Relationships\n")
	seen := make(map[string]bool)
relationships:
	for _, ent := range winners {
		for _, n := range snap.RelatedEntities(ent.ID) {
			r := n.Relationship
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			if !b.add(fmt.Sprintf("- %s -> %s (weight %.1f): %s\n", r.Source, r.Target, r.Weight, r.Description)) {
				break relationships
			}
		}
	}

	b.add("\n### Source excerpts\n")
	unitsUsed := 0
	for _, tu := range snap.TextUnits() {
		if unitsUsed >= textUnitLimit {
			break
		}
		if !mentionsAny(tu, winnerIDs) {
			continue
		}
		if !b.add(strings.TrimSpace(tu.Text) + "\n\n") {
			break
		}
		unitsUsed++
	}

	system := fmt.Sprintf(localSystemPrompt, params.ResponseType, b.String())
	answer, err := e.model.Chat(ctx, system, params.Query)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Local search served",
		zap.Strings("entities", names),
		zap.Int("text_units", unitsUsed),
		zap.Int("context_bytes", b.Len()),
	)
	return &Result{
		Response: answer,
		Context: map[string]any{
			"mode":       "local",
			"entities":   names,
			"text_units": unitsUsed,
		},
	}, nil
}

// selectEntities picks the entities most relevant to the query. A lexical
// score over titles and descriptions narrows the field; when the
// generation carries description embeddings the query is embedded once
// and the survivors are reranked by cosine similarity.
func (e *SnapshotEngine) selectEntities(ctx context.Context, snap *artifact.Snapshot, query string) []domain.Entity {
	terms := queryTerms(query)

	type scored struct {
		entity domain.Entity
		score  float64
	}

	var candidates []scored
	for _, ent := range snap.Entities(0) {
		if s := lexicalScore(ent, terms); s > 0 {
			candidates = append(candidates, scored{entity: ent, score: s})
		}
	}

	if len(candidates) == 0 {
		// No lexical hits: hand the model the best-connected entities so
		// it still sees the shape of the graph.
		entities := snap.Entities(0)
		sort.SliceStable(entities, func(i, j int) bool {
			if entities[i].Degree != entities[j].Degree {
				return entities[i].Degree > entities[j].Degree
			}
			return entities[i].ID < entities[j].ID
		})
		if len(entities) > winnerLimit {
			entities = entities[:winnerLimit]
		}
		return entities
	}

	rank := func() {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			if candidates[i].entity.Degree != candidates[j].entity.Degree {
				return candidates[i].entity.Degree > candidates[j].entity.Degree
			}
			return candidates[i].entity.ID < candidates[j].entity.ID
		})
	}

	rank()
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	if snap.HasEmbeddings() {
		if vec, err := e.model.Embed(ctx, query); err != nil {
			e.logger.Warn("Query embedding failed, keeping lexical ranking", zap.Error(err))
		} else {
			for i := range candidates {
				if emb := snap.EmbeddingFor(candidates[i].entity.ID); len(emb) > 0 {
					candidates[i].score = cosine(vec, emb)
				} else {
					candidates[i].score = -1
				}
			}
			rank()
		}
	}

	winners := make([]domain.Entity, 0, winnerLimit)
	for _, c := range candidates {
		winners = append(winners, c.entity)
		if len(winners) == winnerLimit {
			break
		}
	}
	return winners
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func lexicalScore(ent domain.Entity, terms []string) float64 {
	title := strings.ToLower(ent.Title)
	description := strings.ToLower(ent.Description)

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 3
		}
		if strings.Contains(description, term) {
			score++
		}
	}
	return score
}

func mentionsAny(tu domain.TextUnit, ids map[string]bool) bool {
	for _, id := range tu.EntityIDs {
		if ids[id] {
			return true
		}
	}
	return false
}

// cosine compares a freshly computed query vector against a stored
// description embedding. Dimension mismatch truncates to the shorter.
func cosine(q []float32, e []float64) float64 {
	n := len(q)
	if len(e) < n {
		n = len(e)
	}
	var dot, qq, ee float64
	for i := 0; i < n; i++ {
		dot += float64(q[i]) * e[i]
		qq += float64(q[i]) * float64(q[i])
		ee += e[i] * e[i]
	}
	if qq == 0 || ee == 0 {
		return 0
	}
	return dot / (math.Sqrt(qq) * math.Sqrt(ee))
}

// contextBuilder packs sections into a byte budget. add reports whether
// the piece fit; once one piece is refused the caller stops.
type contextBuilder struct {
	sb     strings.Builder
	budget int
}

func newContextBuilder(budget int) *contextBuilder {
	return &contextBuilder{budget: budget}
}

func (b *contextBuilder) add(s string) bool {
	if b.sb.Len()+len(s) > b.budget {
		return false
	}
	b.sb.WriteString(s)
	return true
}

func (b *contextBuilder) Len() int { return b.sb.Len() }

func (b *contextBuilder) String() string { return b.sb.String() }
