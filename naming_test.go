package gocommand

import (
	"reflect"
	"testing"
)

func TestNaming(t *testing.T) {
	typ := reflect.TypeOf(AccountOpened{})

	tests := []struct {
		strategy NamingStrategy
		want     string
	}{
		{PlainNaming, "AccountOpened"},
		{KebabNaming, "account.opened"},
		{SnakeNaming, "account_opened"},
	}
	for _, tt := range tests {
		if got := tt.strategy.TypeName(typ); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestTypeOf_DereferencesPointers(t *testing.T) {
	if typeOf(&AccountOpened{}) != typeOf(AccountOpened{}) {
		t.Error("expected pointer and value to share a routing type")
	}
}
