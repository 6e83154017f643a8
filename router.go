package gocommand

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// System defaults applied when neither dispatch, route, nor router
// configuration sets a value.
const (
	// DefaultTimeout bounds a dispatch including the consistency wait.
	DefaultTimeout = 5 * time.Second

	// DefaultRetryAttempts bounds optimistic concurrency retries.
	DefaultRetryAttempts = 10
)

// Route binds one command kind to its handler, aggregate, identity rule,
// lifespan, and per-command defaults.
type Route struct {
	// Command is a prototype value of the command kind; its type keys the
	// routing table.
	Command any

	// Aggregate is the aggregate kind the command executes against.
	Aggregate AggregateType

	// Handler executes the command. Set exactly one of Handler and
	// ReplyHandler.
	Handler HandlerFunc

	// ReplyHandler executes the command and returns a domain reply,
	// surfaced via ReturnExecutionResult.
	ReplyHandler ReplyHandlerFunc

	// Identity overrides the aggregate-level identity rule for this
	// command.
	Identity IdentityConfig

	// Lifespan overrides the router default lifespan.
	Lifespan Lifespan

	// Consistency, Returning, Timeout, and RetryAttempts override the
	// router defaults. Zero values inherit; use NoTimeout and NoRetry
	// for explicit "unbounded" and "no retries".
	Consistency   Consistency
	Returning     Returning
	Timeout       time.Duration
	RetryAttempts int

	// SnapshotEvery persists a state snapshot each time the version
	// advances by this many events. Zero disables snapshotting.
	SnapshotEvery int64
}

// RouterConfig sets router-wide defaults and the user middleware chain.
type RouterConfig struct {
	// Consistency, Returning, Timeout, RetryAttempts, and Lifespan are
	// the router defaults, overridable per route and per dispatch.
	Consistency   Consistency
	Returning     Returning
	Timeout       time.Duration
	RetryAttempts int
	Lifespan      Lifespan

	// Middleware are user middleware, run before the built-in identity
	// extraction and consistency guarantee in declared order.
	Middleware []Middleware

	// Naming derives command and event type names. Default: PlainNaming.
	Naming NamingStrategy
}

// Router is the immutable table binding command kinds to dispatch
// configuration. Build it at configuration time; dispatch is a single
// table lookup.
type Router struct {
	config RouterConfig

	mu         sync.Mutex
	routes     map[reflect.Type]*routeEntry
	identities map[string]IdentityConfig
}

type routeEntry struct {
	commandType   reflect.Type
	commandName   string
	aggregate     AggregateType
	handler       ReplyHandlerFunc
	identity      IdentityConfig
	lifespan      Lifespan
	consistency   Consistency
	returning     Returning
	timeout       time.Duration
	retryAttempts int
	snapshotEvery int64
}

// NewRouter creates a router with the given configuration.
func NewRouter(config RouterConfig) *Router {
	if config.Naming == nil {
		config.Naming = PlainNaming
	}
	return &Router{
		config:     config,
		routes:     make(map[reflect.Type]*routeEntry),
		identities: make(map[string]IdentityConfig),
	}
}

// Identify sets the identity rule for every command routed to the named
// aggregate. A per-route Identity wins over it. Registering an aggregate
// twice fails.
func (r *Router) Identify(aggregateName string, identity IdentityConfig) error {
	if aggregateName == "" {
		return fmt.Errorf("gocommand: identify requires an aggregate name")
	}
	if identity.By == nil {
		return fmt.Errorf("gocommand: identify %q requires an identity rule", aggregateName)
	}
	if err := identity.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[aggregateName]; ok {
		return fmt.Errorf("gocommand: aggregate %q already identified", aggregateName)
	}
	r.identities[aggregateName] = identity
	return nil
}

// Register adds a route. A command kind can be registered at most once per
// router; the route is validated at registration time.
func (r *Router) Register(route Route) error {
	if route.Command == nil {
		return fmt.Errorf("gocommand: route requires a command prototype")
	}
	t := typeOf(route.Command)
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("gocommand: command must be a struct, got %T", route.Command)
	}
	if err := route.Aggregate.validate(); err != nil {
		return err
	}

	var handler ReplyHandlerFunc
	switch {
	case route.Handler != nil && route.ReplyHandler != nil:
		return fmt.Errorf("gocommand: route for %s sets both Handler and ReplyHandler", t.Name())
	case route.Handler != nil:
		h := route.Handler
		handler = func(state any, command any) ([]any, any, error) {
			events, err := h(state, command)
			return events, nil, err
		}
	case route.ReplyHandler != nil:
		handler = route.ReplyHandler
	default:
		return fmt.Errorf("gocommand: route for %s has no handler", t.Name())
	}

	if err := route.Identity.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[t]; ok {
		return fmt.Errorf("gocommand: command %s already registered", t.Name())
	}
	r.routes[t] = &routeEntry{
		commandType:   t,
		commandName:   r.config.Naming.TypeName(t),
		aggregate:     route.Aggregate,
		handler:       handler,
		identity:      route.Identity,
		lifespan:      route.Lifespan,
		consistency:   route.Consistency,
		returning:     route.Returning,
		timeout:       route.Timeout,
		retryAttempts: route.RetryAttempts,
		snapshotEvery: route.SnapshotEvery,
	}
	return nil
}

// route looks up the entry for a command value.
func (r *Router) route(command any) (*routeEntry, bool) {
	t := typeOf(command)
	if t == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.routes[t]
	return e, ok
}

// identityFor resolves the effective identity config for a route:
// per-command first, then the aggregate-level identify directive.
func (r *Router) identityFor(e *routeEntry) (IdentityConfig, bool) {
	if e.identity.By != nil {
		return e.identity, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.identities[e.aggregate.Name]
	if !ok {
		return e.identity, false
	}
	// A route-level prefix may still accompany an aggregate-level rule.
	if !e.identity.isZero() {
		merged := cfg
		if e.identity.Prefix != "" {
			merged.Prefix, merged.PrefixFunc = e.identity.Prefix, nil
		}
		if e.identity.PrefixFunc != nil {
			merged.Prefix, merged.PrefixFunc = "", e.identity.PrefixFunc
		}
		return merged, true
	}
	return cfg, true
}

// validateRoutes checks that every registered command can resolve an
// identity rule. Called by NewApp.
func (r *Router) validateRoutes() error {
	r.mu.Lock()
	entries := make([]*routeEntry, 0, len(r.routes))
	for _, e := range r.routes {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if cfg, _ := r.identityFor(e); cfg.By == nil {
			return fmt.Errorf("gocommand: command %s has no identity rule; set Route.Identity or Router.Identify(%q, ...)",
				e.commandType.Name(), e.aggregate.Name)
		}
	}
	return nil
}
