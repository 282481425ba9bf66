package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/notify"
)

// SchedulerTokenHeader carries the shared secret for /notify/run-checkins.
const SchedulerTokenHeader = "X-Scheduler-Token"

type activityRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Focus     string `json:"focus"`
	NeedSlug  string `json:"need_slug"`
	NeedLabel string `json:"need_label"`
}

// Activity handles POST /notify/activity.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	err := h.deps.Checkins.RecordActivity(r.Context(), domain.Activity{
		UserID:    req.UserID,
		Email:     req.Email,
		Focus:     req.Focus,
		NeedSlug:  req.NeedSlug,
		NeedLabel: req.NeedLabel,
	})
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, notify.ErrMissingUserID), errors.Is(err, domain.ErrInvalidEmail):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.deps.Logger.Error("Failed to record activity", "user_id", req.UserID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// RunCheckins handles POST /notify/run-checkins for an external scheduler.
func (h *Handler) RunCheckins(w http.ResponseWriter, r *http.Request) {
	switch err := h.deps.Checkins.Authorize(r.Header.Get(SchedulerTokenHeader)); {
	case errors.Is(err, notify.ErrSchedulerNotConfigured):
		Error(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := h.deps.Checkins.RunCheckins(r.Context())
	if err != nil {
		h.deps.Logger.Error("Check-in run failed", "error", err)
		Error(w, http.StatusInternalServerError, "check-in run failed")
		return
	}
	JSON(w, http.StatusOK, res)
}
