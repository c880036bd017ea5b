// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/service"
	"go.uber.org/zap"
)

// Registrar commits tournament registrations.
type Registrar interface {
	Register(ctx context.Context, callerID string, req model.ParticipateRequest) (*model.Registration, error)
}

// Follower creates follow relationships.
type Follower interface {
	Follow(ctx context.Context, callerID string, req model.FollowRequest) (*model.FollowResult, error)
}

// NotificationLister pages through a user's notifications.
type NotificationLister interface {
	List(ctx context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Message: detail})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	// Clients send display fields alongside the ids; those are ignored.
	return json.NewDecoder(r.Body).Decode(dst)
}

// statusFor maps a service error to a status code and a short title.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrIdentityMismatch):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrTournamentNotFound):
		return http.StatusNotFound, "Tournament not found"
	case errors.Is(err, service.ErrWalletNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, service.ErrTournamentStarted):
		return http.StatusBadRequest, "Tournament already started"
	case errors.Is(err, service.ErrInsufficientSlots):
		return http.StatusBadRequest, "Insufficient slots"
	case errors.Is(err, service.ErrAlreadyRegistered):
		return http.StatusBadRequest, "Already registered"
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusBadRequest, "Insufficient balance"
	case errors.Is(err, service.ErrAlreadyFollowing):
		return http.StatusBadRequest, "Already following"
	case errors.Is(err, service.ErrSelfFollow):
		return http.StatusBadRequest, "Cannot follow yourself"
	default:
		var se *service.StepError
		if errors.As(err, &se) {
			return http.StatusInternalServerError, "Registration failed"
		}
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeServiceError renders err and logs anything that is not a rejection.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status, title := statusFor(err)
	detail := service.Detail(err)
	switch {
	case status >= 500:
		log.WithContext(r.Context()).Error(title, zap.Error(err))
		detail = "An unexpected error occurred, please try again"
	case errors.Is(err, service.ErrIdentityMismatch):
		detail = "User ID mismatch with authenticated user"
	}
	writeError(w, status, title, detail)
}

// ─── Tournaments ──────────────────────────────────────────────────────────────

// TournamentHandler serves tournament participation.
type TournamentHandler struct {
	svc Registrar
	log *logger.Logger
}

// NewTournamentHandler constructs a TournamentHandler.
func NewTournamentHandler(svc Registrar, log *logger.Logger) *TournamentHandler {
	return &TournamentHandler{svc: svc, log: log.Named("tournament")}
}

// Participate handles POST /api/participate
// Debits the entry fee, enrolls the team and returns the assigned slot.
func (h *TournamentHandler) Participate(w http.ResponseWriter, r *http.Request) {
	var req model.ParticipateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.Register(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SuccessResponse{
		Success: true,
		Message: "Successfully registered for tournament",
		Data:    reg,
	})
}

// ─── Social ───────────────────────────────────────────────────────────────────

// SocialHandler serves follow relationships.
type SocialHandler struct {
	svc Follower
	log *logger.Logger
}

// NewSocialHandler constructs a SocialHandler.
func NewSocialHandler(svc Follower, log *logger.Logger) *SocialHandler {
	return &SocialHandler{svc: svc, log: log.Named("social")}
}

// Follow handles POST /api/follow
func (h *SocialHandler) Follow(w http.ResponseWriter, r *http.Request) {
	var req model.FollowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.Follow(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SuccessResponse{
		Success: true,
		Message: "You are now following " + res.FollowingUsername,
		Data:    res,
	})
}

// ─── Notifications ────────────────────────────────────────────────────────────

// NotificationHandler serves notification history.
type NotificationHandler struct {
	svc NotificationLister
	log *logger.Logger
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(svc NotificationLister, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, log: log.Named("notifications")}
}

// List handles GET /api/notifications?limit=&offset=&unread_only=&type=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.NotificationFilter
	var err error

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "offset must be an integer")
			return
		}
	}
	if v := q.Get("unread_only"); v != "" {
		if f.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "unread_only must be a boolean")
			return
		}
	}
	f.Type = q.Get("type")

	page, err := h.svc.List(r.Context(), UserID(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Data: page})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /api/health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   "Glenn Backend API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
