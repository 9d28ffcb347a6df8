package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-keypool-service/internal/chat"
	"github.com/tinywideclouds/go-keypool-service/internal/pool"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// API holds the dependencies of the admin handlers.
type API struct {
	Pool   *pool.Service
	Chat   *chat.Handler
	Logger *slog.Logger
}

// ExhaustResponse is returned by ExhaustKeyHandler. Current is set only when
// the caller asked to advance and an active key remained.
type ExhaustResponse struct {
	Exhausted keypool.KeyRecord  `json:"exhausted"`
	Current   *keypool.KeyRecord `json:"current,omitempty"`
}

// ChatUpdateRequest is the webhook body. The operator comes from the token.
type ChatUpdateRequest struct {
	Text     string `json:"text"`
	Callback string `json:"callback"`
}

// ListKeysHandler returns the pool in rotation order.
func (a *API) ListKeysHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.Pool.List(r.Context())
	if err != nil {
		a.writeError(w, a.Logger, err)
		return
	}
	if p == nil {
		p = keypool.Pool{}
	}
	a.writeJSON(w, http.StatusOK, p)
}

// AddKeyHandler appends a new key.
func (a *API) AddKeyHandler(w http.ResponseWriter, r *http.Request) {
	var in pool.AddKeyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.Logger.Warn("Failed to unmarshal JSON body", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "Invalid JSON body format")
		return
	}

	logger := a.Logger.With("key", in.Name)
	rec, err := a.Pool.AddKey(r.Context(), in)
	if err != nil {
		a.writeError(w, logger, err)
		return
	}
	logger.Info("Key added")
	a.writeJSON(w, http.StatusCreated, rec)
}

// GetKeyHandler returns one key.
func (a *API) GetKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := a.Pool.Get(r.Context(), name)
	if err != nil {
		a.writeError(w, a.Logger.With("key", name), err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// DeleteKeyHandler removes one key.
func (a *API) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	logger := a.Logger.With("key", name)
	if err := a.Pool.Remove(r.Context(), name); err != nil {
		a.writeError(w, logger, err)
		return
	}
	logger.Info("Key removed")
	w.WriteHeader(http.StatusNoContent)
}

// ExhaustKeyHandler marks a key exhausted. With ?advance=true rotation then
// moves to the next active key after it.
func (a *API) ExhaustKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	logger := a.Logger.With("key", name)

	advance := false
	if raw := r.URL.Query().Get("advance"); raw != "" {
		var err error
		if advance, err = strconv.ParseBool(raw); err != nil {
			response.WriteJSONError(w, http.StatusBadRequest, "advance must be a boolean")
			return
		}
	}

	if !advance {
		rec, err := a.Pool.Exhaust(r.Context(), name)
		if err != nil {
			a.writeError(w, logger, err)
			return
		}
		logger.Info("Key marked exhausted")
		a.writeJSON(w, http.StatusOK, ExhaustResponse{Exhausted: rec})
		return
	}

	res, err := a.Pool.ExhaustAndAdvance(r.Context(), name)
	if err != nil {
		a.writeError(w, logger, err)
		return
	}
	if res.Next == nil {
		logger.Warn("No active keys left after exhaustion")
	} else {
		logger.Info("Key marked exhausted", "current", res.Next.Name)
	}
	a.writeJSON(w, http.StatusOK, ExhaustResponse{Exhausted: res.Exhausted, Current: res.Next})
}

// ActivateKeyHandler returns a key to rotation.
func (a *API) ActivateKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := a.Pool.Activate(r.Context(), name)
	if err != nil {
		a.writeError(w, a.Logger.With("key", name), err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// SelectKeyHandler makes a key current.
func (a *API) SelectKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := a.Pool.Select(r.Context(), name)
	if err != nil {
		a.writeError(w, a.Logger.With("key", name), err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// CurrentKeyHandler serves the current key.
func (a *API) CurrentKeyHandler(w http.ResponseWriter, r *http.Request) {
	rec, _, err := a.Pool.Current(r.Context())
	if err != nil {
		a.writeError(w, a.Logger, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// NextKeyHandler rotates to the next active key.
func (a *API) NextKeyHandler(w http.ResponseWriter, r *http.Request) {
	rec, _, err := a.Pool.Next(r.Context())
	if err != nil {
		a.writeError(w, a.Logger, err)
		return
	}
	a.Logger.Info("Rotated to next key", "key", rec.Name)
	a.writeJSON(w, http.StatusOK, rec)
}

// ResetHandler reactivates every key.
func (a *API) ResetHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.Pool.Reset(r.Context())
	if err != nil {
		a.writeError(w, a.Logger, err)
		return
	}
	a.Logger.Info("Key pool reset", "keys", len(p))
	if p == nil {
		p = keypool.Pool{}
	}
	a.writeJSON(w, http.StatusOK, p)
}

// StatsHandler summarizes the pool.
func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Pool.Stats(r.Context())
	if err != nil {
		a.writeError(w, a.Logger, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

// ChatUpdateHandler feeds one chat update from the authenticated operator to
// the conversational handler and returns its replies.
func (a *API) ChatUpdateHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok || operatorID == "" {
		response.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized: No operator ID in token")
		return
	}

	var req ChatUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.Logger.Warn("Failed to unmarshal chat update", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "Invalid JSON body format")
		return
	}
	if req.Text == "" && req.Callback == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "text or callback is required")
		return
	}

	resp := a.Chat.Handle(r.Context(), chat.Update{
		OperatorID: operatorID,
		Text:       req.Text,
		Callback:   req.Callback,
	})
	a.writeJSON(w, http.StatusOK, resp)
}

// writeError maps pool errors onto HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, keypool.ErrNotFound):
		logger.Warn("Key not found", "err", err)
		response.WriteJSONError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, keypool.ErrNoActiveKeys):
		logger.Warn("No active keys")
		response.WriteJSONError(w, http.StatusConflict, "No active keys")
	case errors.Is(err, keypool.ErrDuplicateName):
		response.WriteJSONError(w, http.StatusConflict, "Key name already exists")
	case errors.Is(err, keypool.ErrKeyExhausted):
		response.WriteJSONError(w, http.StatusConflict, "Key is exhausted")
	case errors.Is(err, pool.ErrInvalidInput):
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Key pool operation failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to persist key pool")
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Don't use WriteJSONError, the response may be half-written
		a.Logger.Error("Failed to marshal response to JSON", "err", err)
	}
}
