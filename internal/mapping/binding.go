// Package mapping translates between list rows and the domain entities.
// Each entity declares one binding table that both directions read.
package mapping

import (
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/normalize"
)

// Kind is the wire shape of a bound field.
type Kind string

// Field kinds.
const (
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindDate    Kind = "date"
	KindPerson  Kind = "person"
	KindPeople  Kind = "people"
	KindChoices Kind = "choices"
	KindBool    Kind = "bool"
)

// Binding ties one domain field of E to one wire field.
type Binding[E any] struct {
	Field    string // domain (JSON) name
	Wire     string // wire base name; person kinds write <Wire>Id
	Kind     Kind
	ReadOnly bool

	write func(e *E, r domain.Record)
	read  func(e *E, r domain.Record)
}

// WriteName is the wire field a write targets.
func (b Binding[E]) WriteName() string {
	if b.Kind == KindPerson || b.Kind == KindPeople {
		return b.Wire + "Id"
	}
	return b.Wire
}

// Text binds a string field. Text is always written, blank included, so a
// write built from an entity replaces the stored value: an update that
// leaves the field empty clears it.
func Text[E any](field, wire string, at func(*E) *string) Binding[E] {
	return Binding[E]{
		Field: field, Wire: wire, Kind: KindText,
		write: func(e *E, r domain.Record) { r[wire] = *at(e) },
		read: func(e *E, r domain.Record) {
			if s, ok := normalize.ToText(r[wire]); ok {
				*at(e) = s
			}
		},
	}
}

// Number binds an optional number. Invalid numbers are omitted.
func Number[E any](field, wire string, at func(*E) *normalize.Number) Binding[E] {
	return Binding[E]{
		Field: field, Wire: wire, Kind: KindNumber,
		write: func(e *E, r domain.Record) {
			if n := *at(e); n.Valid {
				r[wire] = n.Value
			}
		},
		read: func(e *E, r domain.Record) { *at(e) = normalize.NumberOf(r[wire]) },
	}
}

// Date binds an optional date written as ISO-8601. Invalid dates are omitted.
func Date[E any](field, wire string, at func(*E) *normalize.Date) Binding[E] {
	return Binding[E]{
		Field: field, Wire: wire, Kind: KindDate,
		write: func(e *E, r domain.Record) {
			if d := *at(e); d.Valid {
				r[wire] = d.String()
			}
		},
		read: func(e *E, r domain.Record) { *at(e) = normalize.DateOf(r[wire]) },
	}
}

// Person binds a single-person field. Only the first resolved identifier
// is written.
func Person[E any](field, wire string, at func(*E) *normalize.People) Binding[E] {
	return personBinding(field, wire, KindPerson, at)
}

// People binds a multi-person field.
func People[E any](field, wire string, at func(*E) *normalize.People) Binding[E] {
	return personBinding(field, wire, KindPeople, at)
}

func personBinding[E any](field, wire string, kind Kind, at func(*E) *normalize.People) Binding[E] {
	multi := kind == KindPeople
	return Binding[E]{
		Field: field, Wire: wire, Kind: kind,
		write: func(e *E, r domain.Record) {
			if v, ok := normalize.OutboundPersonValue(*at(e), multi); ok {
				r[wire+"Id"] = v
			}
		},
		read: func(e *E, r domain.Record) {
			people := normalize.PeopleFrom(r[wire])
			if len(people) == 0 {
				people = normalize.PeopleFrom(r[wire+"Id"])
			}
			*at(e) = people
		},
	}
}

// Choices binds a multi-choice field. Empty selections are omitted.
func Choices[E any](field, wire string, at func(*E) *normalize.Choices) Binding[E] {
	return Binding[E]{
		Field: field, Wire: wire, Kind: KindChoices,
		write: func(e *E, r domain.Record) {
			if c := *at(e); len(c) > 0 {
				r[wire] = append([]string(nil), c...)
			}
		},
		read: func(e *E, r domain.Record) { *at(e) = normalize.ToChoices(r[wire]) },
	}
}

// Bool binds a yes/no field. Like Text it is always written; an unset
// field writes false.
func Bool[E any](field, wire string, at func(*E) *bool) Binding[E] {
	return Binding[E]{
		Field: field, Wire: wire, Kind: KindBool,
		write: func(e *E, r domain.Record) { r[wire] = *at(e) },
		read: func(e *E, r domain.Record) {
			if v, ok := normalize.ToBool(r[wire]); ok {
				*at(e) = v
			}
		},
	}
}

// readOnly marks a binding as store-managed.
func readOnly[E any](b Binding[E]) Binding[E] {
	b.ReadOnly = true
	return b
}

// Table is the declared field mapping of one entity.
type Table[E any] []Binding[E]

// ToWire writes every writable binding of e into a new record.
func (t Table[E]) ToWire(e *E) domain.Record {
	r := make(domain.Record, len(t))
	t.writeInto(e, r)
	return r
}

func (t Table[E]) writeInto(e *E, r domain.Record) {
	for _, b := range t {
		if !b.ReadOnly {
			b.write(e, r)
		}
	}
}

// FromWire fills e from r.
func (t Table[E]) FromWire(r domain.Record, e *E) {
	for _, b := range t {
		b.read(e, r)
	}
}

// Lookup returns the binding for a domain field name.
func (t Table[E]) Lookup(field string) (Binding[E], bool) {
	for _, b := range t {
		if b.Field == field {
			return b, true
		}
	}
	return Binding[E]{}, false
}

// ReadOptions returns the select and expand lists that fetch every bound
// field, with person fields expanded.
func (t Table[E]) ReadOptions() domain.ReadOptions {
	opts := domain.ReadOptions{Select: []string{"Id"}}
	for _, b := range t {
		switch b.Kind {
		case KindPerson, KindPeople:
			opts.Select = append(opts.Select, b.Wire+"/Id", b.Wire+"/Title", b.Wire+"/EMail", b.Wire+"/Name", b.Wire+"Id")
			opts.Expand = append(opts.Expand, b.Wire)
		default:
			opts.Select = append(opts.Select, b.Wire)
		}
	}
	return opts
}

// mergeOptions concatenates read options, dropping duplicates.
func mergeOptions(parts ...domain.ReadOptions) domain.ReadOptions {
	var out domain.ReadOptions
	seen := map[string]bool{}
	for _, p := range parts {
		for _, s := range p.Select {
			if !seen["s:"+s] {
				seen["s:"+s] = true
				out.Select = append(out.Select, s)
			}
		}
		for _, x := range p.Expand {
			if !seen["e:"+x] {
				seen["e:"+x] = true
				out.Expand = append(out.Expand, x)
			}
		}
	}
	return out
}
