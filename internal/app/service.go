// Package app assembles the connection registry, table cache, data browser
// and panel manager into the service that the IPC server and the CLI drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/willibrandon/dbpanel/internal/browser"
	"github.com/willibrandon/dbpanel/internal/config"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/export"
	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/willibrandon/dbpanel/internal/logger"
	"github.com/willibrandon/dbpanel/internal/metrics"
	"github.com/willibrandon/dbpanel/internal/notify"
	"github.com/willibrandon/dbpanel/internal/panel"
	"github.com/willibrandon/dbpanel/internal/registry"
	"github.com/willibrandon/dbpanel/internal/storage"
	"github.com/willibrandon/dbpanel/internal/storage/file"
	"github.com/willibrandon/dbpanel/internal/storage/sqlite"
	"github.com/willibrandon/dbpanel/internal/tablecache"
)

// Service is the core shared by every front end.
type Service struct {
	registry *registry.Registry
	cache    *tablecache.Cache
	browser  *browser.Browser
	panels   *panel.Manager
	notifier *notify.Notifier
	history  history.Store
	closer   io.Closer
}

// Option configures a Service.
type Option func(*Service)

// WithHistory sets the query history store. The default keeps history in
// memory.
func WithHistory(h history.Store) Option {
	return func(s *Service) {
		s.history = h
	}
}

// OpenStore opens the configured persistence backend. The returned closer
// may be nil.
func OpenStore(cfg config.StoreConfig) (storage.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return file.New(cfg.Path), nil, nil
	case config.BackendSQLite, "":
		sdb, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, &storage.PersistenceError{Op: "open", Key: cfg.Path, Err: err}
		}
		return sqlite.NewSettingsStore(sdb), sdb, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Open builds a Service from configuration using the pgx client.
func Open(ctx context.Context, cfg *config.Config) (*Service, error) {
	store, closer, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	var opts []Option
	if sdb, ok := closer.(*sqlite.DB); ok {
		opts = append(opts, WithHistory(sqlite.NewHistoryStore(sdb)))
	}

	svc, err := NewService(ctx, db.NewPgClient(), store, opts...)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	svc.closer = closer

	logger.Info("Service started", "store_backend", cfg.Store.Backend, "store_path", cfg.Store.Path)
	return svc, nil
}

// NewService wires the components over client and store and loads the
// saved connections.
func NewService(ctx context.Context, client db.Client, store storage.Store, opts ...Option) (*Service, error) {
	n := notify.New()
	cache := tablecache.New(n)
	reg := registry.New(client, store,
		registry.WithNotifier(n),
		registry.WithEvicter(cache),
	)
	if err := reg.Load(ctx); err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}

	s := &Service{
		registry: reg,
		cache:    cache,
		browser:  browser.New(client),
		panels:   panel.NewManager(),
		notifier: n,
		history:  history.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the store.
func (s *Service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Panels returns the panel manager.
func (s *Service) Panels() *panel.Manager {
	return s.panels
}

// Subscribe registers fn for refresh notifications from the registry and the
// table cache.
func (s *Service) Subscribe(fn func()) (unsubscribe func()) {
	return s.notifier.Subscribe(fn)
}

// Connections lists saved connections without passwords.
func (s *Service) Connections() []models.ConnectionSummary {
	conns := s.registry.List()
	out := make([]models.ConnectionSummary, len(conns))
	for i, c := range conns {
		out[i] = c.Summary()
	}
	return out
}

// Connection looks up a saved connection by id or name.
func (s *Service) Connection(ref string) (models.ConnectionSummary, error) {
	p, err := s.registry.Resolve(ref)
	if err != nil {
		return models.ConnectionSummary{}, err
	}
	return p.Summary(), nil
}

// TestConnection checks that params can connect without saving anything.
func (s *Service) TestConnection(ctx context.Context, params models.ConnectionParams) (err error) {
	defer metrics.Observe("connections.test", time.Now(), &err)
	return s.registry.Test(ctx, params)
}

// AddConnection saves a new connection after a successful connection check.
func (s *Service) AddConnection(ctx context.Context, in models.ConnectionInput) (_ models.ConnectionSummary, err error) {
	defer metrics.Observe("connections.add", time.Now(), &err)

	id, err := s.registry.Add(ctx, in)
	if err != nil {
		return models.ConnectionSummary{}, err
	}
	p, err := s.registry.Get(id)
	if err != nil {
		return models.ConnectionSummary{}, err
	}
	return p.Summary(), nil
}

// RemoveConnection deletes a connection by id or name. Unknown references
// are a no-op.
func (s *Service) RemoveConnection(ctx context.Context, ref string) (err error) {
	defer metrics.Observe("connections.remove", time.Now(), &err)

	p, err := s.registry.Resolve(ref)
	if errors.Is(err, registry.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, p.ID); err != nil {
		return err
	}
	s.clearHistory(ctx, p.ID)
	return nil
}

// DeleteConnectionByName deletes the connection with name, if any.
func (s *Service) DeleteConnectionByName(ctx context.Context, name string) (err error) {
	defer metrics.Observe("connections.remove", time.Now(), &err)

	p, findErr := s.registry.FindByName(name)
	if err := s.registry.DeleteByName(ctx, name); err != nil {
		return err
	}
	if findErr == nil {
		s.clearHistory(ctx, p.ID)
	}
	return nil
}

func (s *Service) clearHistory(ctx context.Context, id string) {
	if err := s.history.Clear(ctx, id); err != nil {
		logger.Warn("Failed to clear query history", "connection_id", id, "error", err)
	}
}

// Tables returns the tables of a connection, from cache when possible.
func (s *Service) Tables(ctx context.Context, ref string) (_ []models.TableDescriptor, err error) {
	defer metrics.Observe("tables.list", time.Now(), &err)

	p, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.cache.GetTables(ctx, p.ID, func(ctx context.Context) ([]models.TableDescriptor, error) {
		return s.browser.ListTables(ctx, p)
	})
}

// InvalidateTables drops the cached table list of a connection. It reports
// whether anything was cached.
func (s *Service) InvalidateTables(ref string) (bool, error) {
	p, err := s.registry.Resolve(ref)
	if err != nil {
		return false, err
	}
	return s.cache.Invalidate(p.ID), nil
}

// LoadTableData returns the first page of rows of schema.table.
func (s *Service) LoadTableData(ctx context.Context, ref, schema, table string) (_ *models.TableData, err error) {
	defer metrics.Observe("table.load", time.Now(), &err)

	p, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.browser.LoadTableData(ctx, p, schema, table)
}

// ExecuteQuery runs sql verbatim against a connection.
func (s *Service) ExecuteQuery(ctx context.Context, ref, sql string) (_ *models.QueryResult, err error) {
	defer metrics.Observe("query.execute", time.Now(), &err)

	p, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.browser.ExecuteQuery(ctx, p, sql)
	s.recordHistory(ctx, p.ID, sql, start, result, err)
	return result, err
}

func (s *Service) recordHistory(ctx context.Context, id, sql string, start time.Time, result *models.QueryResult, queryErr error) {
	entry := history.Entry{
		ConnectionID: id,
		SQL:          sql,
		ExecutedAt:   start,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if result != nil {
		entry.RowCount = result.RowCount
	}
	if queryErr != nil {
		// Connectivity failures are not recorded
		if !db.IsQuery(queryErr) {
			return
		}
		entry.Error = queryErr.Error()
	}
	if err := s.history.Add(ctx, entry); err != nil {
		logger.Warn("Failed to record query history", "connection_id", id, "error", err)
	}
}

// History returns recently executed statements of a connection, newest
// first. search filters by substring; limit <= 0 means the default.
func (s *Service) History(ctx context.Context, ref, search string, limit int) (_ []history.Entry, err error) {
	defer metrics.Observe("query.history", time.Now(), &err)

	p, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.history.Recent(ctx, p.ID, search, limit)
}

// ExportRows writes rows already held by the caller to path.
func (s *Service) ExportRows(path string, format export.Format, columns []string, rows [][]any) (_ *export.Result, err error) {
	defer metrics.Observe("export.write", time.Now(), &err)
	return export.WriteFile(path, format, columns, rows)
}

// ExportTable loads schema.table and writes the loaded page to path.
func (s *Service) ExportTable(ctx context.Context, ref, schema, table, path string, format export.Format) (*export.Result, error) {
	data, err := s.LoadTableData(ctx, ref, schema, table)
	if err != nil {
		return nil, err
	}
	return s.ExportRows(path, format, models.ColumnNames(data.Columns), data.Rows)
}
