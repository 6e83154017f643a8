package gocommand

import (
	"fmt"
	"reflect"
)

// IdentityFunc extracts the raw aggregate identity from a command.
// The identity must be a non-empty string.
type IdentityFunc func(command any) (string, error)

// IdentityConfig describes how to derive a stream ID from a command:
// an identity rule plus an optional prefix.
type IdentityConfig struct {
	// By extracts the raw identity. Build with ByField or ByFunc.
	By IdentityFunc

	// Prefix is prepended literally to the raw identity.
	Prefix string

	// PrefixFunc is evaluated per dispatch to produce the prefix.
	// Set at most one of Prefix and PrefixFunc.
	PrefixFunc func() string
}

func (c IdentityConfig) isZero() bool {
	return c.By == nil && c.Prefix == "" && c.PrefixFunc == nil
}

func (c IdentityConfig) validate() error {
	if c.Prefix != "" && c.PrefixFunc != nil {
		return fmt.Errorf("gocommand: identity prefix and prefix func are mutually exclusive")
	}
	return nil
}

func (c IdentityConfig) prefix() string {
	if c.PrefixFunc != nil {
		return c.PrefixFunc()
	}
	return c.Prefix
}

// resolve applies the identity rule and prefix to a command, yielding the
// raw identity, the prefix, and the stream ID.
func (c IdentityConfig) resolve(command any) (identity, prefix, streamID string, err error) {
	if c.By == nil {
		return "", "", "", ErrInvalidAggregateIdentity
	}
	identity, err = c.By(command)
	if err != nil {
		return "", "", "", err
	}
	if identity == "" {
		return "", "", "", ErrInvalidAggregateIdentity
	}
	prefix = c.prefix()
	return identity, prefix, prefix + identity, nil
}

// ByField extracts the identity from a named struct field. The field must
// hold a non-empty string or a fmt.Stringer.
func ByField(name string) IdentityFunc {
	return func(command any) (string, error) {
		v := reflect.ValueOf(command)
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return "", ErrInvalidAggregateIdentity
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return "", ErrInvalidAggregateIdentity
		}
		f := v.FieldByName(name)
		if !f.IsValid() {
			return "", ErrInvalidAggregateIdentity
		}
		switch {
		case f.Kind() == reflect.String:
			return f.String(), nil
		case f.CanInterface():
			if s, ok := f.Interface().(fmt.Stringer); ok {
				return s.String(), nil
			}
		}
		return "", ErrInvalidAggregateIdentity
	}
}

// ByFunc extracts the identity with a caller-supplied function.
func ByFunc(fn func(command any) string) IdentityFunc {
	return func(command any) (string, error) {
		id := fn(command)
		if id == "" {
			return "", ErrInvalidAggregateIdentity
		}
		return id, nil
	}
}
