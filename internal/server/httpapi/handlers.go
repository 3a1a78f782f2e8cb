package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docflow/internal/common"
	"docflow/internal/httpx"
	"docflow/internal/server/models"
	"docflow/internal/server/services"
)

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, common.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, common.ErrStaleState):
		httpx.WriteError(w, http.StatusConflict, "stale_state", err.Error())
	case errors.Is(err, common.ErrConfiguration):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "configuration", err.Error())
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type documentResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	CurrentPhase string     `json:"current_phase"`
	CurrentStep  int        `json:"current_step"`
	IsPublic     bool       `json:"is_public"`
	AccessType   string     `json:"access_type"`
	Distribution []string   `json:"distribution,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toDocumentResponse(doc *models.Document) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		OwnerID:      doc.OwnerID,
		Title:        doc.Title,
		CurrentPhase: string(doc.CurrentPhase),
		CurrentStep:  doc.CurrentStep,
		IsPublic:     doc.IsPublic,
		AccessType:   string(doc.AccessType),
		Distribution: doc.Distribution,
		CompletedAt:  doc.CompletedAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

type taskResponse struct {
	ID           string     `json:"id"`
	Step         int        `json:"step"`
	Role         string     `json:"role"`
	AssigneeID   string     `json:"assignee_id"`
	SigningOrder int        `json:"signing_order"`
	Status       string     `json:"status"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
}

func toTaskResponses(tasks []*models.SigningTask) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{
			ID:           t.ID,
			Step:         t.Step,
			Role:         string(t.Role),
			AssigneeID:   t.AssigneeID,
			SigningOrder: t.SigningOrder,
			Status:       string(t.Status),
			DecidedAt:    t.DecidedAt,
			RejectReason: t.RejectReason,
		})
	}
	return out
}

type stampResponse struct {
	ID        string    `json:"id"`
	StampRef  string    `json:"stamp_ref"`
	PersonID  string    `json:"person_id"`
	Page      int       `json:"page"`
	Geometry  string    `json:"geometry"`
	CreatedAt time.Time `json:"created_at"`
}

func toStampResponses(placements []*models.StampPlacement) []stampResponse {
	out := make([]stampResponse, 0, len(placements))
	for _, p := range placements {
		out = append(out, stampResponse{
			ID:        p.ID,
			StampRef:  p.StampRef,
			PersonID:  p.PersonID,
			Page:      p.Page,
			Geometry:  string(p.Geometry),
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	doc, err := s.workflow.Create(r.Context(), PersonID(r.Context()), req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	doc, err := s.workflow.Get(r.Context(), documentID, PersonID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	tasks, err := s.workflow.Tasks(r.Context(), documentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	placements, err := s.stamps.List(r.Context(), documentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"document": toDocumentResponse(doc),
		"tasks":    toTaskResponses(tasks),
		"stamps":   toStampResponses(placements),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	if err := s.workflow.Delete(r.Context(), documentID, PersonID(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID   string `json:"task_id"`
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
		Payload  string `json:"payload"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	doc, err := s.workflow.SubmitDecision(
		r.Context(),
		chi.URLParam(r, "documentID"),
		req.TaskID,
		PersonID(r.Context()),
		services.Decision(req.Decision),
		req.Reason,
		[]byte(req.Payload),
	)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleAdvancePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetPhase string `json:"target_phase"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	doc, err := s.workflow.AdvancePhase(r.Context(), chi.URLParam(r, "documentID"), PersonID(r.Context()), models.Phase(req.TargetPhase))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleSetDistribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipients []string `json:"recipients"`
		AccessType string   `json:"access_type"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	doc, err := s.workflow.SetDistribution(r.Context(), chi.URLParam(r, "documentID"), PersonID(r.Context()), req.Recipients, models.AccessType(req.AccessType))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessType string `json:"access_type"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	doc, err := s.workflow.Complete(r.Context(), chi.URLParam(r, "documentID"), PersonID(r.Context()), models.AccessType(req.AccessType))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handlePlaceStamp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StampRef string `json:"stamp_ref"`
		Page     int    `json:"page"`
		Geometry string `json:"geometry"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	placement, err := s.stamps.Place(r.Context(), chi.URLParam(r, "documentID"), PersonID(r.Context()), req.StampRef, req.Page, []byte(req.Geometry))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toStampResponses([]*models.StampPlacement{placement})[0])
}

func (s *Server) handleRemoveStamp(w http.ResponseWriter, r *http.Request) {
	err := s.stamps.Remove(r.Context(), chi.URLParam(r, "documentID"), PersonID(r.Context()), chi.URLParam(r, "stampID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArtifactURL(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	doc, err := s.workflow.Get(r.Context(), documentID, PersonID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	url, err := s.access.ArtifactURL(r.Context(), doc, PersonID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

type signerResponse struct {
	ID            string    `json:"id"`
	PersonID      string    `json:"person_id"`
	RoleFamily    string    `json:"role_family"`
	PriorityOrder int       `json:"priority_order"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func toSignerResponse(signer *models.StandingSigner) signerResponse {
	return signerResponse{
		ID:            signer.ID,
		PersonID:      signer.PersonID,
		RoleFamily:    string(signer.RoleFamily),
		PriorityOrder: signer.PriorityOrder,
		IsActive:      signer.IsActive,
		CreatedAt:     signer.CreatedAt,
	}
}

func (s *Server) handleAppointSigner(w http.ResponseWriter, r *http.Request) {
	if !s.access.IsAdmin(PersonID(r.Context())) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "roster changes require an administrator")
		return
	}

	var req struct {
		PersonID      string `json:"person_id"`
		RoleFamily    string `json:"role_family"`
		PriorityOrder int    `json:"priority_order"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	signer, err := s.directory.Appoint(r.Context(), req.PersonID, models.RoleFamily(req.RoleFamily), req.PriorityOrder)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toSignerResponse(signer))
}

func (s *Server) handleListSigners(w http.ResponseWriter, r *http.Request) {
	signers, err := s.directory.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]signerResponse, 0, len(signers))
	for _, signer := range signers {
		out = append(out, toSignerResponse(signer))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeactivateSigner(w http.ResponseWriter, r *http.Request) {
	if !s.access.IsAdmin(PersonID(r.Context())) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "roster changes require an administrator")
		return
	}

	if err := s.directory.Deactivate(r.Context(), chi.URLParam(r, "signerID")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
