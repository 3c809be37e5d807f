package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/credential"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the web UI drives. The UI serves a single
// local user, so one session controller backs every request.
type Deps struct {
	Session     *session.Controller
	Prompts     *prompts.Library
	History     *history.Store
	Credentials credential.Store
	Config      *config.Config
	Logger      *slog.Logger
}

// NewServer creates and configures the HTTP server for the screenflow web UI.
func NewServer(d Deps, version, bind string, port int) (*http.Server, error) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := newHandlers(d, NewRenderer(templateSub, version, logger))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(h.routes(staticSub)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// routes registers every UI and JSON endpoint using Go 1.22+ pattern syntax.
func (h *Handlers) routes(staticSub fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	// Compose / view
	mux.HandleFunc("GET /{$}", h.HandleSession)
	mux.HandleFunc("POST /images", h.HandleUpload)
	mux.HandleFunc("GET /images/{id}", h.HandleDraftImage)
	mux.HandleFunc("POST /images/{id}/remove", h.HandleRemoveImage)
	mux.HandleFunc("POST /images/{id}/move", h.HandleMoveImage)
	mux.HandleFunc("POST /draft", h.HandleDraft)
	mux.HandleFunc("POST /draft/template", h.HandleTemplate)
	mux.HandleFunc("POST /analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /new", h.HandleNew)
	mux.HandleFunc("POST /navigate", h.HandleNavigate)

	// History
	mux.HandleFunc("GET /history", h.HandleHistory)
	mux.HandleFunc("POST /view/{index}", h.HandleView)
	mux.HandleFunc("POST /history/clear", h.HandleClear)
	mux.HandleFunc("DELETE /history/{id}", h.HandleDelete)
	mux.HandleFunc("POST /history/{id}/delete", h.HandleDelete)
	mux.HandleFunc("GET /history/{id}/images/{n}", h.HandleArchivedImage)

	// Prompt library
	mux.HandleFunc("GET /prompts", h.HandlePrompts)
	mux.HandleFunc("POST /prompts", h.HandleSavePrompt)
	mux.HandleFunc("POST /prompts/{id}/delete", h.HandleDeletePrompt)
	mux.HandleFunc("POST /prompts/preferred", h.HandleSetPreferred)
	mux.HandleFunc("POST /prompts/preferred/reset", h.HandleResetPreferred)

	// Settings
	mux.HandleFunc("GET /settings", h.HandleSettings)
	mux.HandleFunc("POST /settings/credential", h.HandleSaveCredential)

	// JSON API
	mux.HandleFunc("GET /api/state", h.HandleAPIState)
	mux.HandleFunc("GET /api/config", h.HandleAPIConfig)
	mux.HandleFunc("POST /api/config", h.HandleAPISaveConfig)

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return mux
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("screenflow UI running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
