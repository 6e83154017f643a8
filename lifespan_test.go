package gocommand

import (
	"context"
	"testing"
	"time"
)

func TestLifespan_Decisions(t *testing.T) {
	if d := Stop(); d.kind != decisionStop {
		t.Error("Stop decision kind mismatch")
	}
	if d := Hibernate(); d.kind != decisionHibernate {
		t.Error("Hibernate decision kind mismatch")
	}
	if d := Timeout(time.Second); d.kind != decisionTimeout || d.timeout != time.Second {
		t.Error("Timeout decision mismatch")
	}
	if d := Infinity(); d.kind != decisionInfinity {
		t.Error("Infinity decision kind mismatch")
	}
}

func TestLifespan_StopImmediatelyRemovesInstance(t *testing.T) {
	router := newBankRouter(t, func(r *Route) { r.Lifespan = StopImmediately })
	app := newBankApp(t, router, nil)
	ctx := context.Background()

	if _, err := app.Dispatch(ctx, OpenAccount{Number: "ACC1", Initial: 1}); err != nil {
		t.Fatalf("open: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := app.registry.Whereis("BankAccount/bank-account-ACC1"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected instance removed after stop")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A fresh dispatch spawns and rehydrates a new instance.
	state, err := app.DispatchWith(ctx, Deposit{Number: "ACC1", Amount: 2}, DispatchConfig{
		Returning: ReturnAggregateState,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := state.(BankAccount).Balance; got != 3 {
		t.Errorf("expected balance 3, got %d", got)
	}
}

func TestLifespan_InactivityTimeout(t *testing.T) {
	router := newBankRouter(t, func(r *Route) {
		r.Lifespan = StopAfterInactivity(30 * time.Millisecond)
	})
	app := newBankApp(t, router, nil)
	ctx := context.Background()

	if _, err := app.Dispatch(ctx, OpenAccount{Number: "ACC1", Initial: 1}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := app.registry.Whereis("BankAccount/bank-account-ACC1"); !ok {
		t.Fatal("expected instance alive right after dispatch")
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := app.registry.Whereis("BankAccount/bank-account-ACC1"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected instance to expire after inactivity")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLifespan_KeepAliveKeepsInstance(t *testing.T) {
	app := newBankApp(t, newBankRouter(t), nil)
	ctx := context.Background()

	if _, err := app.Dispatch(ctx, OpenAccount{Number: "ACC1", Initial: 1}); err != nil {
		t.Fatalf("open: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := app.registry.Whereis("BankAccount/bank-account-ACC1"); !ok {
		t.Fatal("expected keep-alive instance to stay registered")
	}
}

func TestLifespan_HibernateSnapshotsState(t *testing.T) {
	store := newTestStore()
	router := newBankRouter(t, func(r *Route) {
		r.Lifespan = hibernateAlways{}
		r.SnapshotEvery = 100
	})
	app := newBankApp(t, router, store)
	ctx := context.Background()

	if _, err := app.Dispatch(ctx, OpenAccount{Number: "ACC1", Initial: 5}); err != nil {
		t.Fatalf("open: %v", err)
	}

	snap, err := store.LoadSnapshot(ctx, "bank-account-ACC1")
	if err != nil {
		t.Fatalf("expected hibernate to persist a snapshot, got %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("expected snapshot at version 1, got %d", snap.Version)
	}
}

type hibernateAlways struct{}

func (hibernateAlways) AfterCommand(any) Decision { return Hibernate() }
func (hibernateAlways) AfterEvent(any) Decision   { return Hibernate() }
func (hibernateAlways) AfterError(error) Decision { return Hibernate() }
