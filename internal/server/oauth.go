package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/app"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// CallbackHandler finishes provider link flows. The client receives the
// provider redirect, then posts the code and state here under its own bearer
// token so the credential lands on the right account.
type CallbackHandler struct {
	app    *app.App
	logger *log.Logger
}

// NewCallbackHandler builds the link completion handler.
func NewCallbackHandler(core *app.App, logger *log.Logger) *CallbackHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CallbackHandler{app: core, logger: logger}
}

// Routes returns the callback route.
func (h *CallbackHandler) Routes() []string {
	return []string{"POST /api/providers/{provider}/callback"}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseOrigin(r.PathValue("provider"))
	if err != nil {
		http.Error(w, "unknown provider", http.StatusBadRequest)
		return
	}

	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	principal := PrincipalFrom(r.Context())
	if err := h.app.LinkComplete(r.Context(), principal, provider, body.Code, body.State); err != nil {
		h.logger.Warn("link completion failed", "provider", provider, "user_id", principal.UserID, "error", err)
		http.Error(w, "link completion failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"provider": string(provider), "status": "linked"})
}

// RedirectPage serves the landing page providers redirect browsers to. It has
// no session of its own; it renders the code and state so the client can
// finish the link via the callback endpoint.
func RedirectPage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")

		if code == "" {
			errParam := r.URL.Query().Get("error")
			http.Error(w, fmt.Sprintf("authorization failed: %s", errParam), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authorization Received</title></head>
<body>
	<h1>Authorization received</h1>
	<p>Return to the app to finish linking your account.</p>
	<div id="result" data-code=%q data-state=%q></div>
</body>
</html>
`, code, state)
	})
}
