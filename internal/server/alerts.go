package server

import (
	"net/http"
	"regexp"
	"time"

	"github.com/helixir/citation-alert-service/internal/domain"
)

var cycleKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// alertResponse is the JSON view of one recorded alert.
type alertResponse struct {
	ID            string     `json:"id"`
	PMID          string     `json:"pmid"`
	CycleKey      string     `json:"cycle_key"`
	DOI           string     `json:"doi,omitempty"`
	Title         string     `json:"title"`
	Journal       string     `json:"journal,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	MetricMode    string     `json:"metric_mode"`
	MetricValue   int        `json:"metric_value"`
	NotifiedAt    time.Time  `json:"notified_at"`
}

func toAlertResponse(record *domain.AlertRecord) alertResponse {
	return alertResponse{
		ID:            record.ID.String(),
		PMID:          record.PMID,
		CycleKey:      record.CycleKey,
		DOI:           record.DOI,
		Title:         record.Title,
		Journal:       record.Journal,
		PublishedDate: record.PublishedDate,
		MetricMode:    string(record.MetricMode),
		MetricValue:   record.MetricValue,
		NotifiedAt:    record.NotifiedAt,
	}
}

// listAlerts returns the alerts recorded for one cycle.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	cycleKey := r.URL.Query().Get("cycle")
	if !cycleKeyPattern.MatchString(cycleKey) {
		writeError(w, http.StatusBadRequest, "cycle query parameter must be YYYY-MM")
		return
	}

	records, err := s.alerts.ListByCycle(r.Context(), cycleKey)
	if err != nil {
		s.logger.Error().Err(err).Str("cycle_key", cycleKey).Msg("failed to list alerts")
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	responses := make([]alertResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toAlertResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_key": cycleKey,
		"alerts":    responses,
		"total":     len(responses),
	})
}
