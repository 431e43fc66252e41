package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"graphrag-backend/internal/analytics"
	"graphrag-backend/internal/domain"
	"graphrag-backend/internal/search"
	"graphrag-backend/internal/uploads"
	"graphrag-backend/pkg/api"
	appErrors "graphrag-backend/pkg/errors"
)

// uploadBodyLimit caps the whole multipart request. It sits slightly
// above the per-file limit so oversized files are rejected by the size
// rule with a clear message instead of a truncated-body parse error.
const uploadBodyLimit = uploads.MaxUploadBytes + 64<<10

type serviceInfo struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	Message string              `json:"message"`
	File    domain.UploadedFile `json:"file"`
	Path    string              `json:"path"`
}

// searchRequest is the body of both search routes. A missing
// community_level selects the engine default; zero means root only.
type searchRequest struct {
	Query          string `json:"query"`
	CommunityLevel *int   `json:"community_level"`
	ResponseType   string `json:"response_type"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type communitiesResponse struct {
	Communities []domain.Community `json:"communities"`
	Total       int                `json:"total"`
	Message     string             `json:"message"`
}

func (d *Dependencies) uploadFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadBodyLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusBadRequest,
				fmt.Sprintf("file exceeds the %d MiB limit", uploads.MaxUploadBytes>>20),
				appErrors.ErrorTypeValidation)
			return
		}
		api.Error(w, http.StatusBadRequest,
			"multipart form with a file field is required",
			appErrors.ErrorTypeValidation)
		return
	}
	defer file.Close()

	stored, err := d.Files.Upload(header.Filename, file, header.Size)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, uploadResponse{
		Message: "file uploaded successfully",
		File:    stored,
		Path:    filepath.Join(d.Config.InputDir, stored.Name),
	})
}

func (d *Dependencies) listFilesHandler(w http.ResponseWriter, _ *http.Request) {
	files, err := d.Files.List()
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, files)
}

func (d *Dependencies) deleteFileHandler(w http.ResponseWriter, r *http.Request) {
	if err := d.Files.Delete(chi.URLParam(r, "fileID")); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, messageResponse{Message: "file deleted"})
}

func (d *Dependencies) startIndexingHandler(w http.ResponseWriter, _ *http.Request) {
	status, err := d.Indexing.Start()
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, status)
}

func (d *Dependencies) indexingStatusHandler(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, d.Indexing.Status())
}

func (d *Dependencies) globalSearchHandler(w http.ResponseWriter, r *http.Request) {
	d.serveSearch(w, r, d.Search.Global)
}

func (d *Dependencies) localSearchHandler(w http.ResponseWriter, r *http.Request) {
	d.serveSearch(w, r, d.Search.Local)
}

func (d *Dependencies) serveSearch(w http.ResponseWriter, r *http.Request, run func(context.Context, search.Params) (*search.Result, error)) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "request body must be a JSON object", appErrors.ErrorTypeValidation)
		return
	}

	params := search.Params{
		Query:          req.Query,
		CommunityLevel: -1,
		ResponseType:   req.ResponseType,
	}
	if req.CommunityLevel != nil {
		params.CommunityLevel = *req.CommunityLevel
	}

	result, err := run(r.Context(), params)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

func (d *Dependencies) searchSuggestionsHandler(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, suggestionsResponse{Suggestions: d.Search.Suggestions()})
}

func (d *Dependencies) listCommunitiesHandler(w http.ResponseWriter, _ *http.Request) {
	snap, err := d.Store.Snapshot()
	if err != nil {
		if appErrors.IsNotReady(err) {
			api.Success(w, http.StatusOK, communitiesResponse{
				Communities: []domain.Community{},
				Message:     appErrors.DetailOf(err),
			})
			return
		}
		api.HandleError(w, err)
		return
	}

	list := snap.Communities(-1)
	api.Success(w, http.StatusOK, communitiesResponse{
		Communities: list,
		Total:       len(list),
		Message:     fmt.Sprintf("loaded %d communities", len(list)),
	})
}

func (d *Dependencies) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Analytics.Statistics(r.Context())
	if err != nil {
		if appErrors.IsNotReady(err) {
			api.Success(w, http.StatusOK, analytics.EmptyStatistics(appErrors.DetailOf(err)))
			return
		}
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

func (d *Dependencies) entityTypesHandler(w http.ResponseWriter, r *http.Request) {
	types, err := d.Analytics.EntityTypes(r.Context())
	if err != nil {
		if appErrors.IsNotReady(err) {
			api.Success(w, http.StatusOK, analytics.EmptyEntityTypes(appErrors.DetailOf(err)))
			return
		}
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, types)
}

func (d *Dependencies) topRelationshipsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "limit must be an integer", appErrors.ErrorTypeValidation)
			return
		}
		limit = parsed
	}

	top, err := d.Analytics.TopRelationships(r.Context(), limit)
	if err != nil {
		if appErrors.IsNotReady(err) {
			api.Success(w, http.StatusOK, analytics.EmptyTopRelationships(appErrors.DetailOf(err)))
			return
		}
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, top)
}

func (d *Dependencies) graphTopologyHandler(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, d.Topology.Topology())
}

func (d *Dependencies) entityAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	analysis, err := d.Analytics.EntityAnalysis(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, analysis)
}
