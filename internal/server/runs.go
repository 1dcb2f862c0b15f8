package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/citation-alert-service/internal/database"
	"github.com/helixir/citation-alert-service/internal/domain"
	"github.com/helixir/citation-alert-service/internal/papersources"
	"github.com/helixir/citation-alert-service/internal/pipeline"
)

// maxRequestBodySize limits request body reads to 1 MB.
const maxRequestBodySize = 1 << 20

const dateLayout = "2006-01-02"

var validate = validator.New()

// triggerRunRequest is the body of POST /api/v1/runs. All fields are
// optional overrides; an empty body triggers a run with the configured
// defaults. ArticleTypes is a pointer so that an explicit empty list,
// which disables the type filter, stays distinguishable from absence.
type triggerRunRequest struct {
	DryRun       bool      `json:"dry_run"`
	StartDate    string    `json:"start_date" validate:"omitempty,datetime=2006-01-02,required_with=EndDate"`
	EndDate      string    `json:"end_date" validate:"omitempty,datetime=2006-01-02,required_with=StartDate"`
	ArticleTypes *[]string `json:"article_types"`
}

// runResponse is the JSON view of a run report.
type runResponse struct {
	RunID    string `json:"run_id"`
	Mode     string `json:"mode"`
	CycleKey string `json:"cycle_key"`
	DryRun   bool   `json:"dry_run"`
	Stage    string `json:"stage"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	PapersFetched      int `json:"papers_fetched"`
	PapersMeasured     int `json:"papers_measured"`
	PapersUncovered    int `json:"papers_uncovered"`
	PapersQualified    int `json:"papers_qualified"`
	PapersDeduplicated int `json:"papers_deduplicated"`
	PapersEnriched     int `json:"papers_enriched"`
	SummariesDegraded  int `json:"summaries_degraded"`

	Papers []runPaperResponse `json:"papers,omitempty"`
}

// runPaperResponse is the JSON view of one paper in a completed run.
type runPaperResponse struct {
	PMID            string   `json:"pmid"`
	DOI             string   `json:"doi,omitempty"`
	Title           string   `json:"title"`
	Journal         string   `json:"journal,omitempty"`
	MetricValue     int      `json:"metric_value"`
	Summary         string   `json:"summary"`
	SummaryDegraded bool     `json:"summary_degraded"`
	ImpactFactor    *float64 `json:"impact_factor"`
}

func toRunResponse(report *domain.RunReport) runResponse {
	resp := runResponse{
		RunID:              report.RunID.String(),
		Mode:               string(report.Mode),
		CycleKey:           report.CycleKey,
		DryRun:             report.DryRun,
		Stage:              string(report.Stage),
		Status:             string(report.Status),
		StartedAt:          report.StartedAt,
		PapersFetched:      report.PapersFetched,
		PapersMeasured:     report.PapersMeasured,
		PapersUncovered:    report.PapersUncovered,
		PapersQualified:    report.PapersQualified,
		PapersDeduplicated: report.PapersDeduplicated,
		PapersEnriched:     report.PapersEnriched,
		SummariesDegraded:  report.SummariesDegraded,
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	if !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		resp.FinishedAt = &finished
	}
	for _, paper := range report.Papers {
		resp.Papers = append(resp.Papers, runPaperResponse{
			PMID:            paper.Paper.PMID,
			DOI:             paper.Paper.DOI,
			Title:           paper.Paper.Title,
			Journal:         paper.Paper.Journal,
			MetricValue:     paper.Measurement.Value(),
			Summary:         paper.Summary,
			SummaryDegraded: paper.SummaryDegraded,
			ImpactFactor:    paper.ImpactFactor,
		})
	}
	return resp
}

// runRegistry tracks reports of runs triggered through the API, keyed by
// the run ID handed back from the trigger endpoint.
type runRegistry struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]*domain.RunReport
}

func newRunRegistry() *runRegistry {
	return &runRegistry{reports: make(map[uuid.UUID]*domain.RunReport)}
}

func (r *runRegistry) put(id uuid.UUID, report *domain.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[id] = report
}

func (r *runRegistry) get(id uuid.UUID) (*domain.RunReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[id]
	return report, ok
}

func (r *runRegistry) list() []*domain.RunReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reports := make([]*domain.RunReport, 0, len(r.reports))
	for _, report := range r.reports {
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	return reports
}

// triggerRun starts a pipeline run in the background and returns its ID.
// The run continues after the response; poll GET /api/v1/runs/{runID} for
// the outcome.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON in request body")
			return
		}
	}

	if err := validate.Struct(&req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field: "+validationErrs[0].Field())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	params, err := req.toRunParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The same advisory lock the CLI runner takes, so two trigger requests
	// (or a trigger racing a scheduled run) cannot interleave cycles.
	acquired, err := s.locker.AcquireAdvisoryLock(r.Context(), database.CycleLockKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to acquire cycle lock")
		return
	}
	if !acquired {
		writeError(w, http.StatusConflict, "another cycle is already running")
		return
	}

	runID := uuid.New()
	placeholder := &domain.RunReport{
		RunID:     runID,
		DryRun:    params.DryRun,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.runs.put(runID, placeholder)

	go func() {
		// The run outlives the triggering request.
		defer func() {
			if err := s.locker.ReleaseAdvisoryLock(context.Background(), database.CycleLockKey); err != nil {
				s.logger.Error().Err(err).Msg("failed to release cycle lock")
			}
		}()
		report := s.runner.Run(context.Background(), params)
		report.RunID = runID
		s.runs.put(runID, report)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": string(domain.RunStatusRunning),
	})
}

func (req *triggerRunRequest) toRunParams() (pipeline.RunParams, error) {
	params := pipeline.RunParams{DryRun: req.DryRun}

	if req.StartDate != "" {
		from, _ := time.Parse(dateLayout, req.StartDate)
		to, _ := time.Parse(dateLayout, req.EndDate)
		if to.Before(from) {
			return params, errors.New("end_date must not precede start_date")
		}
		params.Window = &papersources.SearchWindow{From: from, To: to}
	}

	if req.ArticleTypes != nil {
		params.ArticleTypes = *req.ArticleTypes
		params.ArticleTypesSet = true
	}

	return params, nil
}

// getRun returns the report for one run.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	report, ok := s.runs.get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(report))
}

// listRuns returns all runs triggered through this server, newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	reports := s.runs.list()
	responses := make([]runResponse, 0, len(reports))
	for _, report := range reports {
		responses = append(responses, toRunResponse(report))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  responses,
		"total": len(responses),
	})
}
