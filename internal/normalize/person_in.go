package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
)

var displayKeys = []string{"Title", "title", "DisplayName", "displayName", "text", "Text", "name", "Name", "FullName"}

// wireValue is the tagged variant every inbound person value is parsed into.
type wireValue interface{ wireValue() }

type (
	unknownValue struct{ raw any }
	numberValue  struct{ id int }
	stringValue  struct{ s string }
	objectValue  struct{ m map[string]any }
	arrayValue   struct{ items []any }
)

func (unknownValue) wireValue() {}
func (numberValue) wireValue()  {}
func (stringValue) wireValue()  {}
func (objectValue) wireValue()  {}
func (arrayValue) wireValue()   {}

func classify(v any) wireValue {
	switch x := v.(type) {
	case int, int64, float64:
		if id := domain.PositiveInt(x); id > 0 {
			return numberValue{id: id}
		}
	case json.Number:
		if id := domain.PositiveInt(string(x)); id > 0 {
			return numberValue{id: id}
		}
	case string:
		return stringValue{s: x}
	case map[string]any:
		if results, ok := x["results"].([]any); ok {
			return arrayValue{items: results}
		}
		return objectValue{m: x}
	case domain.Record:
		return classify(map[string]any(x))
	case []any:
		return arrayValue{items: x}
	case domain.PersonValue:
		if x.Multi {
			return arrayValue{items: x.IDs}
		}
		return classify(x.Wire())
	case domain.PersonRef:
		return objectValue{m: refToMap(x)}
	case *domain.PersonRef:
		if x != nil {
			return classify(*x)
		}
	case People:
		return classify([]domain.PersonRef(x))
	case []domain.PersonRef:
		items := make([]any, len(x))
		for i, p := range x {
			items[i] = p
		}
		return arrayValue{items: items}
	}
	return unknownValue{raw: v}
}

// InboundPerson converts a wire person value to a PersonRef or []PersonRef.
// Multiplicity follows the input. When nothing can be extracted the raw
// value is returned unchanged.
func InboundPerson(v any) any {
	switch x := classify(v).(type) {
	case unknownValue:
		return x.raw
	case numberValue:
		return fromID(x.id)
	case stringValue:
		return inboundString(x.s, v)
	case objectValue:
		p := personFromObject(x.m)
		if p.IsZero() {
			return v
		}
		return p
	case arrayValue:
		people := make([]domain.PersonRef, 0, len(x.items))
		for _, item := range x.items {
			switch p := InboundPerson(item).(type) {
			case domain.PersonRef:
				people = append(people, p)
			case []domain.PersonRef:
				people = append(people, p...)
			}
		}
		if len(people) == 0 && len(x.items) > 0 {
			return v
		}
		return people
	}
	return v
}

// PeopleFrom flattens any inbound person value into a list. Values that
// carry no person yield nil.
func PeopleFrom(v any) []domain.PersonRef {
	switch p := InboundPerson(v).(type) {
	case domain.PersonRef:
		return []domain.PersonRef{p}
	case []domain.PersonRef:
		if len(p) == 0 {
			return nil
		}
		return p
	}
	return nil
}

func inboundString(s string, raw any) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return raw
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			if _, isString := parsed.(string); !isString {
				return InboundPerson(parsed)
			}
		}
	}

	parts := splitPeople(trimmed)
	people := make([]domain.PersonRef, 0, len(parts))
	for _, part := range parts {
		if p := personFromString(part); !p.IsZero() {
			people = append(people, p)
		}
	}
	switch len(people) {
	case 0:
		return raw
	case 1:
		if len(parts) == 1 {
			return people[0]
		}
	}
	return people
}

// personFromString reads "12", "12|a@x", "i:0#.f|membership|a@x" or "a@x".
func personFromString(s string) domain.PersonRef {
	s = strings.TrimSpace(s)
	if id := domain.PositiveInt(s); id > 0 {
		return fromID(id)
	}
	var p domain.PersonRef
	if strings.Contains(s, "|") {
		segments := strings.Split(s, "|")
		p.ID = domain.PositiveInt(segments[0])
		p.Email = emailFromLogin(s)
		if p.ID == 0 && p.Email == "" {
			return domain.PersonRef{}
		}
	} else if strings.Contains(s, "@") {
		p.Email = s
	} else {
		return domain.PersonRef{}
	}
	return crossFill(p)
}

func personFromObject(m map[string]any) domain.PersonRef {
	var p domain.PersonRef
	for _, key := range idKeys {
		if id := domain.PositiveInt(m[key]); id > 0 {
			p.ID = id
			break
		}
	}
	p.Email = firstString(m, emailKeys)
	p.LoginName = firstString(m, loginKeys)
	p.DisplayName = firstString(m, displayKeys)
	return crossFill(p)
}

func crossFill(p domain.PersonRef) domain.PersonRef {
	if p.LoginName == "" && p.Email != "" {
		p.LoginName = p.Email
	}
	if p.Email == "" && strings.Contains(p.LoginName, "@") {
		p.Email = emailFromLogin(p.LoginName)
	}
	if p.DisplayName == "" && p.Email != "" {
		p.DisplayName = strings.SplitN(p.Email, "@", 2)[0]
	}
	return p
}

func fromID(id int) domain.PersonRef {
	return domain.PersonRef{ID: id, DisplayName: fmt.Sprintf("User %d", id)}
}

func refToMap(p domain.PersonRef) map[string]any {
	m := make(map[string]any, 4)
	if p.ID > 0 {
		m["id"] = p.ID
	}
	if p.Email != "" {
		m["email"] = p.Email
	}
	if p.LoginName != "" {
		m["loginName"] = p.LoginName
	}
	if p.DisplayName != "" {
		m["displayName"] = p.DisplayName
	}
	return m
}
