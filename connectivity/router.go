// Package connectivity provides a small service router that dispatches
// operator calls either locally (in-memory function call) or remotely
// (HTTP POST) based on a SQLite routes table.
//
// domdrop registers its pipeline operations as local handlers; a deployment
// that splits the admin surface from the worker can point individual
// operations at a remote worker by updating one SQL row — no rebuild.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	svc.RegisterConnectivity(router)
//
//	// Caller doesn't know or care whether this is local or remote:
//	resp, err := router.Call(ctx, "auctions_get_processing_stats", payload)
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Both local Go functions and remote HTTP clients implement this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// HandlerMiddleware wraps a Handler with cross-cutting behaviour
// (timeouts, retries, logging).
type HandlerMiddleware func(Handler) Handler

// TransportFactory creates a Handler for a given remote endpoint. The
// returned close function is called when the route is removed or replaced
// during reload; it may be nil if no cleanup is needed.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// route is an internal representation of a row in the routes table.
type route struct {
	ServiceName string
	Strategy    string
	Endpoint    string
	Config      json.RawMessage
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls based on SQLite configuration.
// Thread-safe: reads use RLock, reloads use full Lock.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routeSnap     map[string]route
	factories     map[string]TransportFactory
	middleware    []HandlerMiddleware
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware appends middleware applied to every dispatched call,
// outermost first.
func WithMiddleware(mw ...HandlerMiddleware) Option {
	return func(r *Router) { r.middleware = append(r.middleware, mw...) }
}

// New creates a Router with no routes. Register transports and local
// handlers, then (optionally) Reload from a routes table.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routeSnap:     make(map[string]route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-memory handler for a service.
// If the routes table says strategy="local" for this service (or has no row
// at all), Call dispatches here with zero network overhead.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a transport protocol, e.g. "http".
// The factory is called during Reload when a route uses this protocol.
func (r *Router) RegisterTransport(protocol string, f TransportFactory) {
	r.mu.Lock()
	r.factories[protocol] = f
	r.mu.Unlock()
}

// Services returns the names of all registered local handlers.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.localHandlers))
	for name := range r.localHandlers {
		names = append(names, name)
	}
	return names
}

// Call dispatches a service call. The resolution order is:
//  1. Noop route — silently succeeds (feature flag / service disabled).
//  2. Explicit remote route (from SQLite).
//  3. Local handler — if strategy is "local" or no remote route exists.
//  4. Error — service not routable.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	snap, hasRoute := r.routeSnap[service]
	mw := r.middleware
	r.mu.RUnlock()

	if hasRoute && snap.Strategy == "noop" {
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	}

	var h Handler
	switch {
	case hasRemote:
		r.logger.DebugContext(ctx, "routing remote",
			"service", service, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		h = entry.handler
	case localH != nil:
		r.logger.DebugContext(ctx, "routing local", "service", service)
		h = localH
	default:
		return nil, &ErrServiceNotFound{Service: service}
	}

	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h(ctx, payload)
}

// EnsureTable creates the routes table if it doesn't exist.
func EnsureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS routes (
			service_name TEXT PRIMARY KEY,
			strategy     TEXT NOT NULL DEFAULT 'local',
			endpoint     TEXT,
			config       TEXT
		)`)
	return err
}

// Reload reads the routes table and rebuilds the remote handler map.
// Routes with strategy "local" or "noop" do not create remote handlers.
// Only routes whose (strategy, endpoint, config) changed are rebuilt,
// preserving existing connections for unchanged routes.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	newRoutes := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfgStr string
		if err := rows.Scan(&rt.ServiceName, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		newRoutes[rt.ServiceName] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))

	for name, rt := range newRoutes {
		switch rt.Strategy {
		case "local", "noop":
			continue
		default:
			if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
				if existing, exists := r.remoteEntries[name]; exists {
					newEntries[name] = existing
					continue
				}
			}

			factory, ok := r.factories[rt.Strategy]
			if !ok {
				r.logger.Warn("no transport factory for strategy",
					"service", name, "strategy", rt.Strategy)
				continue
			}

			h, closeFn, err := factory(rt.Endpoint, rt.Config)
			if err != nil {
				r.logger.Error("factory failed",
					"service", name, "strategy", rt.Strategy,
					"endpoint", rt.Endpoint, "error", err)
				continue
			}
			newEntries[name] = remoteEntry{handler: h, close: closeFn}
			r.logger.Info("route built",
				"service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		}
	}

	// Close entries that were removed or whose config changed.
	for name, old := range r.remoteEntries {
		if old.close == nil {
			continue
		}
		if _, stillExists := newEntries[name]; !stillExists {
			old.close()
			continue
		}
		oldSnap := r.routeSnap[name]
		newRt := newRoutes[name]
		if oldSnap.fingerprint() != newRt.fingerprint() {
			old.close()
		}
	}

	r.remoteEntries = newEntries
	r.routeSnap = newRoutes
	return nil
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]route)
	return nil
}
