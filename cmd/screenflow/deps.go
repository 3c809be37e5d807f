package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/credential"
	"github.com/hpungsan/screenflow/internal/db"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/inference"
	"github.com/hpungsan/screenflow/internal/kv"
	"github.com/hpungsan/screenflow/internal/mcp"
	"github.com/hpungsan/screenflow/internal/ops"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/session"
	"github.com/hpungsan/screenflow/internal/submission"
	"github.com/hpungsan/screenflow/internal/web"
)

// deps is everything a command needs, built once per process.
type deps struct {
	cfg       *config.Config
	baseDir   string
	log       *slog.Logger
	db        *sql.DB // nil with the file backend or after a storage failure
	history   *history.Store
	prompts   *prompts.Library
	creds     credential.Store
	builder   *submission.Builder
	transport inference.Transport
	env       ops.Env

	// storageDegraded is set when the configured backend could not be
	// opened and the stores run in memory.
	storageDegraded bool
}

// newLogger returns a text logger on w at the named level. Unknown levels
// fall back to info.
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openDeps opens the configured storage backend and wires the stores on top
// of it. The returned func closes the database, if any. A backend that cannot
// be opened is not fatal: the stores run in memory and report degraded.
func openDeps(ctx context.Context, baseDir string, cfg *config.Config, logger *slog.Logger) (*deps, func() error, error) {
	var (
		backend  kv.Store
		database *sql.DB
		closeFn  = func() error { return nil }
		storeErr error
	)
	if err := db.EnsureDirs(baseDir); err != nil {
		storeErr = err
	} else {
		switch cfg.Storage {
		case config.StorageFile:
			backend = kv.NewFileStore(filepath.Join(baseDir, "data"))
		default:
			database, storeErr = db.Init(baseDir)
			if storeErr == nil {
				backend = db.NewKV(database)
				closeFn = database.Close
			}
		}
	}
	if storeErr != nil {
		logger.Warn("storage unavailable; running in memory", "storage", cfg.Storage, "error", storeErr)
		backend = kv.NewMemoryStore()
	}

	transport, err := inference.New(cfg, logger)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	d := newDeps(ctx, cfg, baseDir, logger, backend, credential.NewFileStore(baseDir, logger), transport)
	d.db = database
	if storeErr != nil {
		d.storageDegraded = true
		d.history.MarkDegraded()
		d.prompts.MarkDegraded()
	}
	return d, closeFn, nil
}

// newDeps builds the domain stores over backend.
func newDeps(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger, backend kv.Store, creds credential.Store, transport inference.Transport) *deps {
	store := history.New(ctx, backend, logger)
	return &deps{
		cfg:       cfg,
		baseDir:   baseDir,
		log:       logger,
		history:   store,
		prompts:   prompts.New(ctx, backend, logger),
		creds:     creds,
		builder:   submission.NewBuilder(creds, store),
		transport: transport,
		env:       ops.Env{ExportsDir: ops.ExportsDir(baseDir)},
	}
}

func (d *deps) mcpDeps() mcp.Deps {
	return mcp.Deps{
		History:   d.history,
		Prompts:   d.prompts,
		Builder:   d.builder,
		Transport: d.transport,
		Config:    d.cfg,
		Env:       d.env,
		Logger:    d.log,
	}
}

func (d *deps) webDeps() web.Deps {
	ctrl := session.New(session.Deps{
		Prompts:   d.prompts,
		History:   d.history,
		Builder:   d.builder,
		Transport: d.transport,
		Logger:    d.log,
	})
	return web.Deps{
		Session:     ctrl,
		Prompts:     d.prompts,
		History:     d.history,
		Credentials: d.creds,
		Config:      d.cfg,
		Logger:      d.log,
	}
}
