package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"caseshare.org/internal/audit"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/service"
)

type createCaseRequest struct {
	OwningOrg string             `json:"owning_org"`
	Title     string             `json:"title" validate:"required"`
	Diagnosis string             `json:"diagnosis"`
	Priority  string             `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Patient   cases.Patient      `json:"patient"`
	Secret    bool               `json:"secret"`
}

func (a *API) CreateCase(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req createCaseRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	view, err := a.svc.CreateCase(r.Context(), act, service.CaseInput{
		OwningOrg: req.OwningOrg,
		Title:     req.Title,
		Diagnosis: req.Diagnosis,
		Priority:  cases.Priority(req.Priority),
		Patient:   req.Patient,
		Secret:    req.Secret,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) ListCases(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	q := r.URL.Query()
	f := cases.Filter{
		Status:   cases.CaseStatus(q.Get("status")),
		Priority: cases.Priority(q.Get("priority")),
		Query:    q.Get("q"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedFrom = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedTo = t
		}
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	page, err := a.svc.ListCases(r.Context(), act, f, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) GetCase(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	view, err := a.svc.GetCase(r.Context(), act, chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type updateCaseRequest struct {
	Title     *string        `json:"title"`
	Diagnosis *string        `json:"diagnosis"`
	Priority  *string        `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status    *string        `json:"status" validate:"omitempty,oneof=DRAFT OPEN IN_PROGRESS REVIEW COMPLETED CANCELLED"`
	Patient   *cases.Patient `json:"patient"`
}

func (a *API) UpdateCase(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req updateCaseRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	up := service.CaseUpdate{
		Title:     req.Title,
		Diagnosis: req.Diagnosis,
		Patient:   req.Patient,
	}
	if req.Priority != nil {
		p := cases.Priority(*req.Priority)
		up.Priority = &p
	}
	if req.Status != nil {
		st := cases.CaseStatus(*req.Status)
		up.Status = &st
	}
	view, err := a.svc.UpdateCase(r.Context(), act, chi.URLParam(r, "caseID"), up)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type planContentRequest struct {
	Content cases.PlanContent `json:"content" validate:"required"`
}

func (a *API) CreatePlanDraft(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req planContentRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	ref, err := a.svc.CreatePlanDraft(r.Context(), act, chi.URLParam(r, "caseID"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

type updateDraftRequest struct {
	ExpectedToken string            `json:"expected_token" validate:"required"`
	Content       cases.PlanContent `json:"content" validate:"required"`
}

func (a *API) UpdatePlanDraft(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	var req updateDraftRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	ref, err := a.svc.UpdatePlanDraft(r.Context(), act, chi.URLParam(r, "caseID"), version, req.ExpectedToken, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (a *API) ComparePlanVersions(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	from, errFrom := strconv.Atoi(r.URL.Query().Get("from"))
	to, errTo := strconv.Atoi(r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	diff, err := a.svc.ComparePlanVersions(r.Context(), act, chi.URLParam(r, "caseID"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (a *API) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	ref, err := a.svc.ApprovePlan(r.Context(), act, chi.URLParam(r, "caseID"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (a *API) PlanVersions(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	versions, err := a.svc.PlanVersions(r.Context(), act, chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

type setPolicyRequest struct {
	Scope string `json:"scope" validate:"required,oneof=BRANCH CROSS_BRANCH DEIDENTIFIED"`
}

func (a *API) SetSharePolicy(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	var req setPolicyRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	if err := a.svc.SetSharePolicy(r.Context(), act, chi.URLParam(r, "caseID"), cases.ShareScope(req.Scope)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportAudit streams matching audit events as CSV. Rows are written as
// pages arrive; the response is never buffered whole.
func (a *API) ExportAudit(w http.ResponseWriter, r *http.Request) {
	act, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Verb:       q.Get("verb"),
		ObjectType: q.Get("object_type"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)

	cw := csv.NewWriter(w)
	header := []string{"id", "timestamp", "actor_id", "verb", "object_type", "object_id", "org_context", "outcome"}
	headerWritten := false

	err := a.svc.ExportAudit(r.Context(), act, f, a.opts.ExportPageSize, func(e audit.Event) error {
		if !headerWritten {
			if err := cw.Write(header); err != nil {
				return err
			}
			headerWritten = true
		}
		return cw.Write([]string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.ActorID,
			e.Verb,
			e.ObjectType,
			e.ObjectID,
			e.OrgContext,
			string(e.Outcome),
		})
	})
	if err != nil {
		if !headerWritten {
			writeError(w, err)
		}
		return
	}
	if !headerWritten {
		_ = cw.Write(header)
	}
	cw.Flush()
}
