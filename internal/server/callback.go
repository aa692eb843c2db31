package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Resolver is the slice of the auth coordinator the callback handler needs.
type Resolver interface {
	HandleCallback(ctx context.Context, state, code, errParam string) error
}

// CallbackHandler resolves authorization redirects against pending handshake
// rows. Unlike a one-shot flow bound to a single state token, the handler
// serves any number of concurrent handshakes: the state parameter identifies
// which one each redirect belongs to.
type CallbackHandler struct {
	resolver Resolver
	logger   *log.Logger
}

// NewCallbackHandler creates a callback handler backed by the given resolver.
func NewCallbackHandler(resolver Resolver, logger *log.Logger) *CallbackHandler {
	return &CallbackHandler{resolver: resolver, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback"}
}

// ServeHTTP handles one authorization redirect.
//
// The response is for the human in the browser; the CLI process learns the
// outcome by polling the database, never from this response.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")
	errParam := query.Get("error")

	if state == "" {
		http.Error(w, "Missing state parameter", http.StatusBadRequest)
		return
	}

	err := h.resolver.HandleCallback(r.Context(), state, code, errParam)

	switch {
	case err == nil:
		renderPage(w, http.StatusOK, "Authorization Successful",
			"You can close this window and return to the terminal.")
	case errors.Is(err, shared.ErrAuthDenied):
		renderPage(w, http.StatusOK, "Authorization Declined",
			"Access was not granted. You can close this window.")
	case errors.Is(err, shared.ErrUnknownState):
		http.Error(w, "Unknown or already processed authorization request", http.StatusBadRequest)
	case errors.Is(err, shared.ErrAuthTimeout):
		http.Error(w, "Authorization request expired, start over from the terminal", http.StatusGone)
	case errors.Is(err, shared.ErrInvalidInput):
		http.Error(w, "Malformed authorization redirect", http.StatusBadRequest)
	default:
		h.logger.Error("callback processing failed", "state", state, "error", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
	}
}

func renderPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`, title, title, detail)
}
