package gocommand

import (
	"reflect"
	"strings"
	"unicode"
)

// NamingStrategy derives command and event type names from Go types.
type NamingStrategy interface {
	TypeName(t reflect.Type) string
}

// PlainNaming uses the bare Go type name.
// Example: AccountOpened → "AccountOpened"
var PlainNaming NamingStrategy = plainNaming{}

// KebabNaming converts PascalCase to dot-separated lowercase.
// Example: AccountOpened → "account.opened"
var KebabNaming NamingStrategy = kebabNaming{}

// SnakeNaming converts PascalCase to underscore-separated lowercase.
// Example: AccountOpened → "account_opened"
var SnakeNaming NamingStrategy = snakeNaming{}

type plainNaming struct{}

func (plainNaming) TypeName(t reflect.Type) string {
	return t.Name()
}

type kebabNaming struct{}

func (kebabNaming) TypeName(t reflect.Type) string {
	return splitPascalCase(t.Name(), ".")
}

type snakeNaming struct{}

func (snakeNaming) TypeName(t reflect.Type) string {
	return splitPascalCase(t.Name(), "_")
}

// splitPascalCase splits a PascalCase string into lowercase words joined by sep.
func splitPascalCase(s string, sep string) string {
	if s == "" {
		return ""
	}

	var words []string
	var current strings.Builder

	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		words = append(words, strings.ToLower(current.String()))
	}

	return strings.Join(words, sep)
}

// typeOf returns the dereferenced reflect type of v.
func typeOf(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
