// Package registry owns the saved connection profiles. It is the only writer
// of the persisted collection: every mutation rewrites the whole collection
// to the store and then fires a refresh notification.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/logger"
	"github.com/willibrandon/dbpanel/internal/metrics"
	"github.com/willibrandon/dbpanel/internal/notify"
	"github.com/willibrandon/dbpanel/internal/storage"
	"github.com/willibrandon/dbpanel/internal/validation"
)

// ConnectionsKey is the store key holding the serialized collection.
const ConnectionsKey = "connections"

var (
	// ErrNotFound indicates no profile has the requested id or name.
	ErrNotFound = errors.New("connection not found")
	// ErrDuplicateName indicates another profile already uses the name.
	ErrDuplicateName = errors.New("connection name already exists")
)

// Evicter drops derived per-connection state, such as cached tables, when a
// connection is removed.
type Evicter interface {
	Evict(connectionID string) bool
}

// Registry holds connection profiles in insertion order.
type Registry struct {
	client   db.Client
	store    storage.Store
	notifier *notify.Notifier
	evicter  Evicter
	newID    func() string

	// mu serializes mutations; each one persists the full collection
	// before publishing it.
	mu    sync.RWMutex
	conns []models.ConnectionProfile
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier shares n for refresh notifications.
func WithNotifier(n *notify.Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithEvicter sets the component cleared when a connection is removed.
func WithEvicter(e Evicter) Option {
	return func(r *Registry) { r.evicter = e }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// New creates an empty Registry. Call Load to read the persisted collection.
func New(client db.Client, store storage.Store, opts ...Option) *Registry {
	r := &Registry{
		client:   client,
		store:    store,
		notifier: notify.New(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory collection with the persisted one.
func (r *Registry) Load(ctx context.Context) error {
	data, err := r.store.Get(ctx, ConnectionsKey, []byte("[]"))
	if err != nil {
		return err
	}

	var conns []models.ConnectionProfile
	if err := json.Unmarshal(data, &conns); err != nil {
		return &storage.PersistenceError{Op: "get", Key: ConnectionsKey, Err: fmt.Errorf("decode connections: %w", err)}
	}

	plaintext := 0
	for _, c := range conns {
		if c.Password != "" {
			plaintext++
		}
	}
	if plaintext > 0 {
		logger.Warn("Saved connections store passwords in plaintext; prefer password_command",
			"connections", plaintext,
		)
	}

	r.mu.Lock()
	r.conns = conns
	r.mu.Unlock()

	metrics.Connections.Set(float64(len(conns)))
	logger.Info("Loaded saved connections", "count", len(conns))
	return nil
}

// List returns the profiles in insertion order.
func (r *Registry) List() []models.ConnectionProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.conns)
}

// Get returns the profile with id.
func (r *Registry) Get(id string) (models.ConnectionProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.conns[i], nil
	}
	return models.ConnectionProfile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// FindByName returns the profile named name (case-insensitive).
func (r *Registry) FindByName(name string) (models.ConnectionProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOfName(name); i >= 0 {
		return r.conns[i], nil
	}
	return models.ConnectionProfile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve looks ref up as an id first, then as a name.
func (r *Registry) Resolve(ref string) (models.ConnectionProfile, error) {
	if p, err := r.Get(ref); err == nil {
		return p, nil
	}
	return r.FindByName(ref)
}

// Test opens a session with params and closes it. Exactly one attempt is
// made; failures are *db.ConnectivityError.
func (r *Registry) Test(ctx context.Context, params models.ConnectionParams) error {
	if err := db.TestConnection(ctx, r.client, params); err != nil {
		logger.Info("Connection test failed", "target", params.String(), "error", err)
		return err
	}
	logger.Debug("Connection test succeeded", "target", params.String())
	return nil
}

// Add validates in, connects to the server and, only if that succeeds,
// appends a new profile, persists the collection and notifies subscribers.
func (r *Registry) Add(ctx context.Context, in models.ConnectionInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ApplyDefaults()
	if err := validation.Struct(in); err != nil {
		return "", err
	}

	if _, err := r.FindByName(in.Name); err == nil {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, in.Name)
	}

	if err := r.Test(ctx, in.ConnectionParams); err != nil {
		return "", err
	}

	r.mu.Lock()
	// Another Add may have claimed the name while the connection check was running.
	if r.indexOfName(in.Name) >= 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, in.Name)
	}

	profile := models.ConnectionProfile{
		ID:               r.newID(),
		Name:             in.Name,
		ConnectionParams: in.ConnectionParams,
	}
	next := append(slices.Clone(r.conns), profile)
	if err := r.persist(ctx, next); err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.conns = next
	count := len(next)
	r.mu.Unlock()

	metrics.Connections.Set(float64(count))
	logger.Info("Connection added", "id", profile.ID, "name", profile.Name, "target", profile.Params().String())
	r.notifier.Notify()
	return profile.ID, nil
}

// Remove deletes the profile with id, drops its cached tables, persists and
// notifies. An unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		logger.Debug("Remove of unknown connection ignored", "id", id)
		return nil
	}

	removed := r.conns[i]
	next := slices.Delete(slices.Clone(r.conns), i, i+1)
	if err := r.persist(ctx, next); err != nil {
		r.mu.Unlock()
		return err
	}
	r.conns = next
	count := len(next)
	r.mu.Unlock()

	if r.evicter != nil {
		r.evicter.Evict(id)
	}
	metrics.Connections.Set(float64(count))
	logger.Info("Connection removed", "id", id, "name", removed.Name)
	r.notifier.Notify()
	return nil
}

// Saved returns the saved profiles. It is the name-keyed view of List.
func (r *Registry) Saved() []models.ConnectionProfile {
	return r.List()
}

// Save adds a profile. It is the name-keyed view of Add: names are unique, so
// saving an existing name fails with ErrDuplicateName instead of overwriting.
func (r *Registry) Save(ctx context.Context, in models.ConnectionInput) (string, error) {
	return r.Add(ctx, in)
}

// DeleteByName removes the profile named name. An unknown name is a no-op.
func (r *Registry) DeleteByName(ctx context.Context, name string) error {
	p, err := r.FindByName(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return r.Remove(ctx, p.ID)
}

// Subscribe registers fn for refresh notifications.
func (r *Registry) Subscribe(fn func()) (unsubscribe func()) {
	return r.notifier.Subscribe(fn)
}

// persist writes conns to the store. Must be called with mu held.
func (r *Registry) persist(ctx context.Context, conns []models.ConnectionProfile) error {
	out := make([]models.ConnectionProfile, len(conns))
	for i, c := range conns {
		if c.PasswordCommand != "" {
			c.Password = ""
		}
		out[i] = c
	}

	data, err := json.Marshal(out)
	if err != nil {
		return &storage.PersistenceError{Op: "set", Key: ConnectionsKey, Err: err}
	}
	if err := r.store.Set(ctx, ConnectionsKey, data); err != nil {
		logger.Error("Failed to persist connections", "error", err)
		var pe *storage.PersistenceError
		if errors.As(err, &pe) {
			return err
		}
		return &storage.PersistenceError{Op: "set", Key: ConnectionsKey, Err: err}
	}
	return nil
}

func (r *Registry) indexOf(id string) int {
	return slices.IndexFunc(r.conns, func(c models.ConnectionProfile) bool { return c.ID == id })
}

func (r *Registry) indexOfName(name string) int {
	name = strings.TrimSpace(name)
	return slices.IndexFunc(r.conns, func(c models.ConnectionProfile) bool { return strings.EqualFold(c.Name, name) })
}
