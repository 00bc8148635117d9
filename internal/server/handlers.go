package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/app"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// APIHandler serves the JSON API over the core facade. Every route expects an
// authenticated principal in the request context.
type APIHandler struct {
	app    *app.App
	mux    *http.ServeMux
	logger *log.Logger
}

// NewAPIHandler builds the JSON API handler.
func NewAPIHandler(core *app.App, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	h := &APIHandler{app: core, mux: http.NewServeMux(), logger: logger}
	for _, route := range h.Routes() {
		h.mux.HandleFunc(route, h.dispatch(route))
	}
	return h
}

// Routes returns the JSON API route table.
func (h *APIHandler) Routes() []string {
	return []string{
		"POST /api/providers/{provider}/link",
		"POST /api/providers/{provider}/import",
		"DELETE /api/providers/{provider}",
		"GET /api/playlists",
		"GET /api/playlists/{id}/tracks",
		"POST /api/playlists/{id}/export",
		"POST /api/playlists/{id}/shares",
		"DELETE /api/playlists/{id}/shares/{recipient}",
		"GET /api/shared",
		"GET /api/friends",
		"POST /api/friends",
		"DELETE /api/friends/{id}",
		"GET /api/users",
	}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// dispatch maps a route pattern to its implementation.
func (h *APIHandler) dispatch(route string) http.HandlerFunc {
	switch route {
	case "POST /api/providers/{provider}/link":
		return h.linkStart
	case "POST /api/providers/{provider}/import":
		return h.importProvider
	case "DELETE /api/providers/{provider}":
		return h.disconnect
	case "GET /api/playlists":
		return h.listPlaylists
	case "GET /api/playlists/{id}/tracks":
		return h.playlistTracks
	case "POST /api/playlists/{id}/export":
		return h.export
	case "POST /api/playlists/{id}/shares":
		return h.share
	case "DELETE /api/playlists/{id}/shares/{recipient}":
		return h.unshare
	case "GET /api/shared":
		return h.sharedToMe
	case "GET /api/friends":
		return h.listFriends
	case "POST /api/friends":
		return h.addFriend
	case "DELETE /api/friends/{id}":
		return h.removeFriend
	case "GET /api/users":
		return h.searchUsers
	default:
		return func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}
	}
}

func (h *APIHandler) linkStart(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseOrigin(r.PathValue("provider"))
	if err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	url, err := h.app.LinkStart(r.Context(), PrincipalFrom(r.Context()), provider)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"authorize_url": url})
}

func (h *APIHandler) importProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseOrigin(r.PathValue("provider"))
	if err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if err := h.app.ImportAsync(r.Context(), PrincipalFrom(r.Context()), provider); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, err := h.app.Import(r.Context(), PrincipalFrom(r.Context()), provider)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseOrigin(r.PathValue("provider"))
	if err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	if err := h.app.Disconnect(r.Context(), PrincipalFrom(r.Context()), provider); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) listPlaylists(w http.ResponseWriter, r *http.Request) {
	var origin models.Origin
	if raw := r.URL.Query().Get("origin"); raw != "" {
		parsed, err := models.ParseOrigin(raw)
		if err != nil {
			h.writeError(w, shared.ErrInvalidInput)
			return
		}
		origin = parsed
	}

	if r.URL.Query().Get("tracks") == "true" {
		playlists, err := h.app.ListPlaylistsWithTracks(r.Context(), PrincipalFrom(r.Context()), origin)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, playlists)
		return
	}

	playlists, err := h.app.ListPlaylists(r.Context(), PrincipalFrom(r.Context()), origin)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, playlists)
}

func (h *APIHandler) playlistTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	tracks, err := h.app.PlaylistTracks(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tracks)
}

func (h *APIHandler) export(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}
	provider, err := models.ParseOrigin(body.Provider)
	if err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	result, err := h.app.Export(r.Context(), PrincipalFrom(r.Context()), id, provider)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) share(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		RecipientID int64 `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	if err := h.app.Share(r.Context(), PrincipalFrom(r.Context()), id, body.RecipientID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) unshare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	recipient, err := pathID(r, "recipient")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.app.Unshare(r.Context(), PrincipalFrom(r.Context()), id, recipient); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) sharedToMe(w http.ResponseWriter, r *http.Request) {
	shares, err := h.app.SharedToMe(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, shares)
}

func (h *APIHandler) listFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.app.ListFriends(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, friends)
}

func (h *APIHandler) addFriend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, shared.ErrInvalidInput)
		return
	}

	if err := h.app.AddFriend(r.Context(), PrincipalFrom(r.Context()), body.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) removeFriend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.app.RemoveFriend(r.Context(), PrincipalFrom(r.Context()), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.SearchUsers(r.Context(), PrincipalFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// HealthHandler reports liveness. Registered before the auth middleware so
// probes need no token.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrInvalidInput
	}
	return id, nil
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

// writeError maps the error taxonomy to HTTP statuses.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrStateExpired):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrTrackNotFound),
		errors.Is(err, shared.ErrNotInPlaylist), errors.Is(err, shared.ErrNotLinked):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrTokenExpired), errors.Is(err, shared.ErrNoRefreshToken),
		errors.Is(err, shared.ErrRefreshFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, shared.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
