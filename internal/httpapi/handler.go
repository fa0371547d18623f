package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aedgar777/maypole-functions/internal/auth"
	"github.com/aedgar777/maypole-functions/internal/deletion"
	"github.com/aedgar777/maypole-functions/internal/events"
	"github.com/aedgar777/maypole-functions/internal/verification"
)

const (
	// Trigger invocations batch-write across many documents and get the
	// longer budget; everything else finishes quickly.
	triggerTimeout = 30 * time.Second
	serviceTimeout = 8 * time.Second

	maxTriggerBodyBytes = 256 * 1024
)

// RegisterRoutes registers the trigger, callable and verification routes.
func RegisterRoutes(r chi.Router, svc *deletion.Service, checker *verification.Checker, verificationPayload string, logger *slog.Logger) {
	r.Route("/triggers", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Post("/auth-deleted", authDeleted(svc, logger))
		r.Post("/user-updated", userUpdated(svc, logger))
	})

	r.Post("/v1/cleanup", manualCleanup(svc, logger))

	r.Get("/verification", staticVerification(verificationPayload))
	r.Get("/v1/site-check", siteCheck(checker))
}

// authDeleted handles the auth-provider identity-removed event. Replays for
// an already-cleaned-up identity succeed with no effect.
func authDeleted(svc *deletion.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event events.AuthUserDeleted
		if err := decodeBody(w, r, &event); err != nil {
			writeError(w, CodeInvalidArgument, "invalid trigger payload")
			return
		}
		if event.UserID == "" {
			writeError(w, CodeInvalidArgument, "userId is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
		defer cancel()

		if err := svc.HandleAuthDeleted(ctx, event.UserID); err != nil {
			logRequestError(r.Context(), logger, "auth deletion cleanup failed", err, event.UserID)
			writeError(w, CodeInternal, "cleanup failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// userUpdated handles the user-document updated event carrying before/after
// snapshots. The deletion service applies the transition guard; anything but
// a fresh deletion request is a no-op.
func userUpdated(svc *deletion.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event events.UserDocumentUpdated
		if err := decodeBody(w, r, &event); err != nil {
			writeError(w, CodeInvalidArgument, "invalid trigger payload")
			return
		}
		if event.UserID == "" {
			event.UserID = event.After.UserID
		}
		if event.UserID == "" {
			writeError(w, CodeInvalidArgument, "userId is required")
			return
		}
		event.After.UserID = event.UserID

		ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
		defer cancel()

		if err := svc.HandleUserUpdated(ctx, event.Before, event.After); err != nil {
			logRequestError(r.Context(), logger, "requested deletion cleanup failed", err, event.UserID)
			writeError(w, CodeInternal, "cleanup failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// manualCleanup is the operator-facing callable: rewrites every message sent
// under a username to the tombstone label.
func manualCleanup(svc *deletion.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.UserFromContext(r.Context())
		if !ok || caller.UserID == "" {
			writeError(w, CodeUnauthenticated, "Must be authenticated to call this function")
			return
		}

		var body struct {
			Username string `json:"username"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, CodeInvalidArgument, "invalid request body")
			return
		}
		if strings.TrimSpace(body.Username) == "" {
			writeError(w, CodeInvalidArgument, "Username is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
		defer cancel()

		if err := svc.ManualCleanup(ctx, body.Username); err != nil {
			logRequestError(r.Context(), logger, "manual cleanup failed", err, caller.UserID)
			writeError(w, CodeInternal, fmt.Sprintf("Failed to update messages: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Successfully updated messages for %s", body.Username),
		})
	}
}

// staticVerification serves the fixed domain-verification payload.
func staticVerification(payload string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write([]byte(payload))
	}
}

// siteCheck fetches the production site and reports a diagnostic object. The
// response is 200 even when the site is down; the body says so.
func siteCheck(checker *verification.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		writeJSON(w, http.StatusOK, checker.Check(ctx))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxTriggerBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code, message string) {
	writeJSON(w, toStatusCode(code), ErrorResponse{Code: code, Message: message})
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	attrs := []any{
		slog.String("userId", userID),
		slog.Any("error", err),
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("requestId", reqID))
	}
	logger.Error(message, attrs...)
}
