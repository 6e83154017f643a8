package gocommand

import (
	"testing"
	"time"
)

func TestRouter_DuplicateRegistration(t *testing.T) {
	router := NewRouter(RouterConfig{})
	route := Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
		Identity:  IdentityConfig{By: ByField("Number")},
	}
	if err := router.Register(route); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := router.Register(route); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRouter_RequiresHandler(t *testing.T) {
	router := NewRouter(RouterConfig{})
	err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
	})
	if err == nil {
		t.Fatal("expected registration without handler to fail")
	}
}

func TestRouter_RejectsBothHandlers(t *testing.T) {
	router := NewRouter(RouterConfig{})
	err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
		ReplyHandler: NewReplyHandler(func(state BankAccount, cmd OpenAccount) ([]any, any, error) {
			return nil, nil, nil
		}),
	})
	if err == nil {
		t.Fatal("expected registration with both handler kinds to fail")
	}
}

func TestRouter_RequiresAggregate(t *testing.T) {
	router := NewRouter(RouterConfig{})
	err := router.Register(Route{
		Command: OpenAccount{},
		Handler: NewHandler(openAccountHandler),
	})
	if err == nil {
		t.Fatal("expected registration without aggregate to fail")
	}
}

func TestRouter_RejectsNonStructCommand(t *testing.T) {
	router := NewRouter(RouterConfig{})
	err := router.Register(Route{
		Command:   "not a struct",
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
	})
	if err == nil {
		t.Fatal("expected non-struct command to fail")
	}
}

func TestRouter_IdentifyTwiceFails(t *testing.T) {
	router := NewRouter(RouterConfig{})
	cfg := IdentityConfig{By: ByField("Number")}
	if err := router.Identify("BankAccount", cfg); err != nil {
		t.Fatalf("first identify: %v", err)
	}
	if err := router.Identify("BankAccount", cfg); err == nil {
		t.Fatal("expected second identify to fail")
	}
}

func TestRouter_IdentifyRequiresRule(t *testing.T) {
	if err := NewRouter(RouterConfig{}).Identify("BankAccount", IdentityConfig{}); err == nil {
		t.Fatal("expected identify without rule to fail")
	}
}

func TestRouter_PrefixExclusive(t *testing.T) {
	router := NewRouter(RouterConfig{})
	err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
		Identity: IdentityConfig{
			By:         ByField("Number"),
			Prefix:     "a-",
			PrefixFunc: func() string { return "b-" },
		},
	})
	if err == nil {
		t.Fatal("expected prefix and prefix func together to fail")
	}
}

func TestRouter_PerCommandIdentityWins(t *testing.T) {
	router := NewRouter(RouterConfig{})
	if err := router.Identify("BankAccount", IdentityConfig{
		By:     ByField("Number"),
		Prefix: "aggregate-",
	}); err != nil {
		t.Fatalf("identify: %v", err)
	}
	if err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
		Identity: IdentityConfig{
			By:     ByFunc(func(command any) string { return "fixed" }),
			Prefix: "command-",
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	entry, ok := router.route(OpenAccount{})
	if !ok {
		t.Fatal("route not found")
	}
	cfg, _ := router.identityFor(entry)
	_, _, streamID, err := cfg.resolve(OpenAccount{Number: "ACC1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if streamID != "command-fixed" {
		t.Errorf("expected per-command identity to win, got %s", streamID)
	}
}

func TestRouter_DefaultsPrecedence(t *testing.T) {
	router := NewRouter(RouterConfig{
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		Returning:     ReturnAggregateVersion,
	})
	if err := router.Identify("BankAccount", IdentityConfig{By: ByField("Number")}); err != nil {
		t.Fatalf("identify: %v", err)
	}
	if err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
		Timeout:   2 * time.Second,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	app := newBankApp(t, router, nil)

	entry, _ := router.route(OpenAccount{})

	// Route timeout beats router default.
	p := app.buildPayload(OpenAccount{}, entry, DispatchConfig{})
	if p.Timeout != 2*time.Second {
		t.Errorf("expected route timeout 2s, got %v", p.Timeout)
	}
	if p.RetryAttempts != 3 {
		t.Errorf("expected router retry attempts 3, got %d", p.RetryAttempts)
	}
	if p.Returning != ReturnAggregateVersion {
		t.Errorf("expected router returning, got %v", p.Returning)
	}

	// Dispatch config beats both.
	p = app.buildPayload(OpenAccount{}, entry, DispatchConfig{
		Timeout:       time.Second,
		RetryAttempts: NoRetry,
		Returning:     ReturnNone,
	})
	if p.Timeout != time.Second {
		t.Errorf("expected dispatch timeout 1s, got %v", p.Timeout)
	}
	if p.RetryAttempts != 0 {
		t.Errorf("expected NoRetry to resolve to 0 attempts, got %d", p.RetryAttempts)
	}
	if p.Returning != ReturnNone {
		t.Errorf("expected explicit ReturnNone, got %v", p.Returning)
	}

	// NoTimeout disables the deadline.
	p = app.buildPayload(OpenAccount{}, entry, DispatchConfig{Timeout: NoTimeout})
	if p.Timeout != 0 {
		t.Errorf("expected unbounded timeout, got %v", p.Timeout)
	}
	if _, bounded := p.remaining(); bounded {
		t.Error("expected no deadline with NoTimeout")
	}
}

func TestNewApp_MissingIdentityFailsConfiguration(t *testing.T) {
	router := NewRouter(RouterConfig{})
	if err := router.Register(Route{
		Command:   OpenAccount{},
		Aggregate: bankAggregate(),
		Handler:   NewHandler(openAccountHandler),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := NewApp(AppConfig{
		Router:     router,
		EventStore: newTestStore(),
	})
	if err == nil {
		t.Fatal("expected missing identity rule to fail configuration")
	}
}

func TestNewApp_RequiresEventStore(t *testing.T) {
	if _, err := NewApp(AppConfig{Router: newBankRouter(t)}); err == nil {
		t.Fatal("expected missing event store to fail")
	}
}
