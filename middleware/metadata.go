package middleware

import (
	"reflect"

	"github.com/fxsml/gocommand"
)

// Metadata stamps fixed entries onto every dispatch's metadata, merging
// under existing keys (caller-provided entries win).
func Metadata(entries map[string]any) gocommand.Middleware {
	return metadata{entries: entries}
}

type metadata struct {
	entries map[string]any
}

func (m metadata) BeforeDispatch(p *gocommand.Pipeline) {
	if len(m.entries) == 0 {
		return
	}
	if p.Payload.Metadata == nil {
		p.Payload.Metadata = make(map[string]any, len(m.entries))
	}
	for k, v := range m.entries {
		if _, ok := p.Payload.Metadata[k]; !ok {
			p.Payload.Metadata[k] = v
		}
	}
}

func (metadata) AfterDispatch(*gocommand.Pipeline) {}
func (metadata) AfterFailure(*gocommand.Pipeline)  {}

// typeName reports the dereferenced type name of v.
func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
