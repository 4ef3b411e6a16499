// Package http exposes the operation surface the operator UI drives. Handlers
// stay thin: decode, delegate to a service, encode. Business rules live in the
// service packages.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"steward/internal/audit"
	"steward/internal/dedupe"
	"steward/internal/oplock"
	"steward/internal/platform/middleware"
	"steward/internal/recon"
	"steward/internal/wipe"
	dErrors "steward/pkg/domain-errors"
)

type Handler struct {
	logger  *slog.Logger
	recon   *recon.Service
	dedupe  *dedupe.Service
	wipe    *wipe.Service
	auditor *audit.Service
	lock    *oplock.Lock

	jwtSecret    string
	passwordHash string
}

func New(
	logger *slog.Logger,
	reconSvc *recon.Service,
	dedupeSvc *dedupe.Service,
	wipeSvc *wipe.Service,
	auditor *audit.Service,
	lock *oplock.Lock,
	jwtSecret, passwordHash string,
) *Handler {
	return &Handler{
		logger:       logger,
		recon:        reconSvc,
		dedupe:       dedupeSvc,
		wipe:         wipeSvc,
		auditor:      auditor,
		lock:         lock,
		jwtSecret:    jwtSecret,
		passwordHash: passwordHash,
	}
}

// Register mounts all routes. Everything except login is admin-gated; this
// whole surface either reads diagnostic state or mutates production data.
func (h *Handler) Register(r chi.Router) {
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Metadata)
	r.Use(middleware.Logger(h.logger))

	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.jwtSecret, h.logger))

		r.Get("/recon/scan", h.handleScan)
		r.Post("/recon/repair", h.handleRepair)
		r.Post("/recon/repair-all", h.handleRepairAll)
		r.Post("/recon/purge", h.handlePurge)

		r.Get("/duplicates", h.handleDetect)
		r.Post("/duplicates/merge", h.handleMerge)
		r.Post("/duplicates/merge-all", h.handleMergeAll)

		r.Post("/wipe", h.handleWipe)

		r.Get("/audit", h.handleAuditList)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if req.Operator == "" || req.Password == "" {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "operator and password are required"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(r.Context(), "login rejected", "operator", req.Operator)
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}
	token, err := middleware.IssueAdminToken(h.jwtSecret, req.Operator, 8*time.Hour)
	if err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue token"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	items, err := h.recon.Scan(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	dtos := make([]inconsistencyDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, toInconsistencyDTO(item))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"inconsistencies": dtos,
		"count":           len(dtos),
	})
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	var dto inconsistencyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	item, err := fromInconsistencyDTO(dto)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.recon.Repair(r.Context(), item); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"repaired": true, "email": item.Email()})
}

func (h *Handler) handleRepairAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []inconsistencyDTO `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	items := make([]recon.Inconsistency, 0, len(req.Items))
	for _, dto := range req.Items {
		item, err := fromInconsistencyDTO(dto)
		if err != nil {
			WriteError(w, err)
			return
		}
		items = append(items, item)
	}

	release, err := h.lock.Acquire(r.Context(), "repair-all")
	if err != nil {
		WriteError(w, err)
		return
	}
	defer release()

	tally, err := h.recon.RepairAll(r.Context(), items)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tally)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	release, err := h.lock.Acquire(r.Context(), "purge")
	if err != nil {
		WriteError(w, err)
		return
	}
	defer release()

	report, err := h.recon.Purge(r.Context(), req.Email)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	groups, err := h.dedupe.Detect(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	type groupDTO struct {
		Type          string   `json:"type"`
		Label         string   `json:"label"`
		AutoRemovable bool     `json:"auto_removable"`
		MemberIDs     []string `json:"member_ids"`
		KeeperID      string   `json:"keeper_id,omitempty"`
		Reason        string   `json:"reason"`
	}
	dtos := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		dto := groupDTO{
			Type:          string(g.Type()),
			Label:         g.Label(),
			AutoRemovable: g.AutoRemovable(),
		}
		for _, rec := range g.Members() {
			dto.MemberIDs = append(dto.MemberIDs, rec.ID.String())
		}
		switch v := g.(type) {
		case dedupe.ExactGroup:
			dto.KeeperID = v.Keeper.String()
			dto.Reason = v.Reason
		case dedupe.SimilarGroup:
			dto.Reason = v.Reason
		}
		dtos = append(dtos, dto)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"groups": dtos, "count": len(dtos)})
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeepID    string   `json:"keep_id"`
		RemoveIDs []string `json:"remove_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	keepID, err := uuid.Parse(req.KeepID)
	if err != nil {
		WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid keep_id %q", req.KeepID))
		return
	}
	removeIDs := make([]uuid.UUID, 0, len(req.RemoveIDs))
	for _, raw := range req.RemoveIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid remove id %q", raw))
			return
		}
		removeIDs = append(removeIDs, id)
	}

	report, err := h.dedupe.Merge(r.Context(), keepID, removeIDs)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleMergeAll(w http.ResponseWriter, r *http.Request) {
	release, err := h.lock.Acquire(r.Context(), "merge-all")
	if err != nil {
		WriteError(w, err)
		return
	}
	defer release()

	// Progress is collected and returned with the final payload; the UI polls
	// Detect to watch convergence rather than streaming.
	var mu sync.Mutex
	type step struct {
		Percent int    `json:"percent"`
		Label   string `json:"label"`
	}
	var steps []step
	report, err := h.dedupe.MergeAllExact(r.Context(), func(percent int, label string) {
		mu.Lock()
		steps = append(steps, step{Percent: percent, Label: label})
		mu.Unlock()
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"report": report, "progress": steps})
}

func (h *Handler) handleWipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirmation string `json:"confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	release, err := h.lock.Acquire(r.Context(), "wipe")
	if err != nil {
		WriteError(w, err)
		return
	}
	defer release()

	report, err := h.wipe.DeleteAll(r.Context(), req.Confirmation)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := h.auditor.ListRecent(r.Context(), limit)
	if err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeReadFailure, "list audit entries"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
