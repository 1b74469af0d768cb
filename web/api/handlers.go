package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/resultstore"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// SweepResponse is the API response for a recorded sweep
type SweepResponse struct {
	ID         string  `json:"id"`
	Plan       string  `json:"plan"`
	Workers    int     `json:"workers"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Total      int     `json:"total"`
	OK         int     `json:"ok"`
	Undefined  int     `json:"undefined"`
	Failed     int     `json:"failed"`
	Cancelled  bool    `json:"cancelled"`
}

// ResultResponse is the API response for one case. IgnitionDelay is null
// for undefined and failed cases.
type ResultResponse struct {
	Index         int                `json:"case"`
	MechanismID   string             `json:"mechanism_id"`
	Composition   string             `json:"composition"`
	Fractions     map[string]float64 `json:"fractions"`
	Temperature   float64            `json:"temperature"`
	Pressure      float64            `json:"pressure"`
	IgnitionDelay *float64           `json:"ignition_delay"`
	Status        string             `json:"status"`
	Error         string             `json:"error,omitempty"`
	Worker        int                `json:"worker"`
	ElapsedMS     float64            `json:"elapsed_ms"`
}

// LiveResponse describes the sweep currently streaming into the server
type LiveResponse struct {
	ID        string `json:"id"`
	Plan      string `json:"plan"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	OK        int    `json:"ok"`
	Undefined int    `json:"undefined"`
	Failed    int    `json:"failed"`
	ETA       string `json:"eta"`
	Stalled   bool   `json:"stalled"`
}

// SummaryResponse is the final tally of a sweep
type SummaryResponse struct {
	ID        string `json:"id"`
	Plan      string `json:"plan"`
	Total     int    `json:"total"`
	OK        int    `json:"ok"`
	Undefined int    `json:"undefined"`
	Failed    int    `json:"failed"`
	Cancelled bool   `json:"cancelled"`
	Elapsed   string `json:"elapsed"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Running bool             `json:"running"`
	Sweep   *LiveResponse    `json:"sweep,omitempty"`
	Last    *SummaryResponse `json:"last,omitempty"`
	Clients int              `json:"clients"`
}

func sweepToResponse(r *resultstore.SweepRecord) SweepResponse {
	resp := SweepResponse{
		ID:        r.ID,
		Plan:      r.Plan,
		Workers:   r.Workers,
		StartedAt: r.StartedAt.Format(time.RFC3339),
		Total:     r.Total,
		OK:        r.OK,
		Undefined: r.Undefined,
		Failed:    r.Failed,
		Cancelled: r.Cancelled,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func resultToResponse(r domain.SweepResult) ResultResponse {
	resp := ResultResponse{
		Index:       r.Case.Index,
		MechanismID: r.Case.MechanismID,
		Composition: r.Case.Composition.Label(),
		Fractions:   r.Case.Composition.X,
		Temperature: r.Case.Temperature,
		Pressure:    r.Case.Pressure,
		Status:      string(r.Status),
		Error:       r.Error,
		Worker:      r.Worker,
		ElapsedMS:   float64(r.Elapsed) / float64(time.Millisecond),
	}
	if r.Defined() && !math.IsNaN(r.IgnitionDelay) {
		d := r.IgnitionDelay
		resp.IgnitionDelay = &d
	}
	return resp
}

func infoToResponse(info sweep.Info) LiveResponse {
	return LiveResponse{ID: info.ID, Plan: info.Name, Total: info.Total}
}

func summaryToResponse(sum sweep.Summary) SummaryResponse {
	return SummaryResponse{
		ID:        sum.ID,
		Plan:      sum.Name,
		Total:     sum.Total,
		OK:        sum.OK,
		Undefined: sum.Undefined,
		Failed:    sum.Failed,
		Cancelled: sum.Cancelled,
		Elapsed:   sum.Elapsed().Round(time.Millisecond).String(),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		current, last := s.current, s.last
		s.mu.RUnlock()

		resp := StatusResponse{Running: current != nil, Clients: s.hub.Len()}
		if current != nil {
			now := time.Now()
			m := s.observer.GetMetrics()
			live := infoToResponse(*current)
			live.Completed = m.TotalCompleted
			live.OK = m.TotalOK
			live.Undefined = m.TotalUndefined
			live.Failed = m.TotalFailed
			live.ETA = s.observer.ETA(now).Round(time.Second).String()
			live.Stalled = s.observer.IsStalled(now)
			resp.Sweep = &live
		}
		if last != nil {
			sum := summaryToResponse(*last)
			resp.Last = &sum
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listSweepsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "no result database")
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		sweeps, err := s.store.ListSweeps(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]SweepResponse, 0, len(sweeps))
		for _, rec := range sweeps {
			resp = append(resp, sweepToResponse(rec))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) getSweepHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "no result database")
			return
		}

		rec, err := s.store.GetSweep(r.PathValue("id"))
		if errors.Is(err, resultstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sweep not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, sweepToResponse(rec))
	}
}

func (s *Server) listResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "no result database")
			return
		}

		id := r.PathValue("id")
		if _, err := s.store.GetSweep(id); err != nil {
			if errors.Is(err, resultstore.ErrNotFound) {
				writeError(w, http.StatusNotFound, "sweep not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		q := r.URL.Query()
		opts := resultstore.ListOptions{
			MechanismID: q.Get("mechanism"),
			Status:      domain.ResultStatus(q.Get("status")),
		}
		switch opts.Status {
		case "", domain.ResultOK, domain.ResultUndefined, domain.ResultFailed:
		default:
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}

		results, err := s.store.ListResults(id, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]ResultResponse, 0, len(results))
		for _, res := range results {
			resp = append(resp, resultToResponse(res))
		}
		writeJSON(w, resp)
	}
}
