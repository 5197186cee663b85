// Package tenant routes an office key to that office's database pool.
//
// The registry is built once at startup from the static office list. Every
// office gets exactly one Handle for the life of the process. An office whose
// initial connect fails keeps its Handle, but every query on it fails with
// apperr.ErrDatabaseUnavailable; there is no reconnect.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"golang.org/x/sync/errgroup"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Descriptor is the connection description of one office database.
type Descriptor struct {
	Key      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
}

// ConnString renders d as a postgres URL.
func (d Descriptor) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(d.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connector opens the pool for one office.
type Connector func(ctx context.Context, d Descriptor) (DB, error)

// PgxConnector opens a pgxpool and pings it.
func PgxConnector(ctx context.Context, d Descriptor) (DB, error) {
	cfg, err := pgxpool.ParseConfig(d.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Registry owns one Handle per office key.
type Registry struct {
	handles map[string]*Handle
	keys    []string
	logger  *logrus.Logger
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	connectTimeout time.Duration
	onConnect      func(key string, connected bool)
}

// WithConnectTimeout bounds each office's initial connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *registryOptions) {
		o.connectTimeout = d
	}
}

// WithConnectHook is called once per office after its initial connect attempt.
func WithConnectHook(fn func(key string, connected bool)) Option {
	return func(o *registryOptions) {
		o.onConnect = fn
	}
}

// NewRegistry connects every office concurrently and returns once all
// attempts have finished. Connect failures are logged and recorded on the
// office's Handle; only an invalid descriptor list is returned as an error.
func NewRegistry(ctx context.Context, descriptors []Descriptor, connect Connector, logger *logrus.Logger, opts ...Option) (*Registry, error) {
	o := registryOptions{connectTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		handles: make(map[string]*Handle, len(descriptors)),
		keys:    make([]string, 0, len(descriptors)),
		logger:  logger,
	}

	for _, d := range descriptors {
		if d.Key == "" {
			return nil, fmt.Errorf("tenant: office key must not be empty")
		}
		if _, dup := r.handles[d.Key]; dup {
			return nil, fmt.Errorf("tenant: duplicate office key %q", d.Key)
		}
		r.handles[d.Key] = &Handle{key: d.Key}
		r.keys = append(r.keys, d.Key)
	}

	var g errgroup.Group
	for _, d := range descriptors {
		d := d
		h := r.handles[d.Key]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
			defer cancel()

			db, err := connect(cctx, d)
			h.set(db, err)

			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"office": d.Key,
					"host":   d.Host,
				}).Error("Database connection failed")
			} else {
				logger.WithField("office", d.Key).Info("Connected to office database")
			}
			if o.onConnect != nil {
				o.onConnect(d.Key, err == nil)
			}
			return nil // a failed office never aborts startup
		})
	}
	_ = g.Wait()

	return r, nil
}

// Get returns the Handle for key, or apperr.ErrUnknownTenant.
func (r *Registry) Get(key string) (*Handle, error) {
	h, ok := r.handles[key]
	if !ok {
		return nil, apperr.Newf(apperr.CodeUnknownTenant, "invalid office selection %q", key)
	}
	return h, nil
}

// Keys returns the office keys in configuration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// OfficeStatus is the connection state of one office.
type OfficeStatus struct {
	Office    string `json:"office"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Status reports the connection state of every office.
func (r *Registry) Status() []OfficeStatus {
	out := make([]OfficeStatus, 0, len(r.keys))
	for _, k := range r.keys {
		h := r.handles[k]
		s := OfficeStatus{Office: k, Connected: h.Connected()}
		if err := h.ConnectErr(); err != nil {
			s.Error = err.Error()
		}
		out = append(out, s)
	}
	return out
}

// Close closes every connected pool.
func (r *Registry) Close() {
	for _, k := range r.keys {
		r.handles[k].close()
	}
}

// Handle is the pool of one office. It is safe for concurrent use.
type Handle struct {
	key string

	mu         sync.RWMutex
	db         DB
	connectErr error
}

// Key returns the office key.
func (h *Handle) Key() string {
	return h.key
}

// Connected reports whether the initial connect succeeded.
func (h *Handle) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.db != nil
}

// ConnectErr returns the initial connect error, if any.
func (h *Handle) ConnectErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectErr
}

// Query runs sql on the office pool. Query failures are classified as
// apperr.ErrDatabaseUnavailable.
func (h *Handle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db, err := h.pool()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, h.unavailable(err)
	}
	return rows, nil
}

// QueryRow runs sql on the office pool. Scan errors other than
// pgx.ErrNoRows are classified as apperr.ErrDatabaseUnavailable.
func (h *Handle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db, err := h.pool()
	if err != nil {
		return errRow{err: err}
	}
	return &classifiedRow{row: db.QueryRow(ctx, sql, args...), h: h}
}

// Ping checks the office pool.
func (h *Handle) Ping(ctx context.Context) error {
	db, err := h.pool()
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		return h.unavailable(err)
	}
	return nil
}

// Unavailable wraps a driver error as apperr.ErrDatabaseUnavailable for this
// office. Repositories use it for errors surfaced while iterating rows.
func (h *Handle) Unavailable(err error) error {
	return h.unavailable(err)
}

func (h *Handle) pool() (DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil {
		return nil, apperr.Wrap(apperr.CodeDatabaseUnavailable, h.connectErr,
			fmt.Sprintf("database pool is not available for office %s", h.key))
	}
	return h.db, nil
}

func (h *Handle) unavailable(err error) error {
	return apperr.Wrap(apperr.CodeDatabaseUnavailable, err,
		fmt.Sprintf("query failed for office %s", h.key))
}

func (h *Handle) set(db DB, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.connectErr = err
		return
	}
	if db == nil {
		h.connectErr = fmt.Errorf("connector returned no pool")
		return
	}
	h.db = db
}

func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		h.db.Close()
		h.db = nil
		h.connectErr = fmt.Errorf("registry closed")
	}
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error {
	return r.err
}

type classifiedRow struct {
	row pgx.Row
	h   *Handle
}

func (r *classifiedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return r.h.unavailable(err)
}
