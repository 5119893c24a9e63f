// Package app wires configuration into a ready session: database pool,
// schema introspector, execution engine, completion provider and history
// store.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/completion"
	"github.com/Misty-Star/Speak2SQL/internal/config"
	"github.com/Misty-Star/Speak2SQL/internal/database"
	"github.com/Misty-Star/Speak2SQL/internal/history"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/session"
	s3store "github.com/Misty-Star/Speak2SQL/internal/storage/s3"
)

type App struct {
	*session.Session

	DB       *sql.DB
	Engine   *query.Engine
	Provider completion.Provider
	Log      *history.Log
	Store    history.Store

	logger *slog.Logger
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	logger = observability.OrDiscard(logger)

	driverName, err := database.DriverName(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	dialect, err := schema.DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	provider, err := completion.New(completion.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init completion provider: %w", err)
	}
	translator, err := nl2sql.NewTranslator(provider, logger)
	if err != nil {
		return nil, err
	}
	store, err := HistoryStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	engine, err := query.NewEngine(db, query.WithTimeout(cfg.Database.QueryTimeout), query.WithLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	introspector, err := schema.NewIntrospector(db, dialect,
		schema.WithSampleRows(cfg.Schema.SampleRows),
		schema.WithLogger(logger),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log := history.New(cfg.History.MaxEntries)
	s, err := session.New(session.Config{
		Schema:     introspector,
		Translator: translator,
		Engine:     engine,
		History:    log,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		Session:  s,
		DB:       db,
		Engine:   engine,
		Provider: provider,
		Log:      log,
		Store:    store,
		logger:   logger,
	}
	if err := s.LoadHistory(ctx); err != nil && !errors.Is(err, history.ErrNotFound) {
		logger.WarnContext(ctx, "history not restored",
			slog.String("location", store.Location()),
			slog.Any("error", err),
		)
	}
	return a, nil
}

// HistoryStore selects the persistence backend named by the history config.
func HistoryStore(ctx context.Context, cfg config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case config.HistoryBackendS3:
		objects, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("init history object store: %w", err)
		}
		return history.ObjectStore{Objects: objects, Key: cfg.History.ObjectKey}, nil
	case config.HistoryBackendFile, "":
		return history.FileStore{Path: cfg.History.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.History.Backend)
	}
}

func (a *App) Ping(ctx context.Context) error {
	return a.Engine.Ping(ctx)
}

// PingModel sends a trivial prompt to the configured provider.
func (a *App) PingModel(ctx context.Context) (string, error) {
	return completion.Ping(ctx, a.Provider)
}

// Autosave writes the history every interval until ctx is done. A
// non-positive interval disables the loop.
func (a *App) Autosave(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.SaveHistory(ctx); err != nil {
				observability.IncrementHistorySaveFailures()
				a.logger.WarnContext(ctx, "periodic history save failed", slog.Any("error", err))
			}
		}
	}
}

// Close saves the history one last time and releases the pool.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	saveErr := a.SaveHistory(ctx)
	if saveErr != nil {
		a.logger.Warn("history save on close failed", slog.Any("error", saveErr))
	}
	return errors.Join(saveErr, a.DB.Close())
}
