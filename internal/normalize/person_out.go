// Package normalize converts field values between the domain model and the
// list store's wire shapes. Every function is total: malformed input
// degrades to "omitted" instead of failing.
package normalize

import (
	"sort"
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
)

var (
	idKeys    = []string{"id", "Id", "ID", "userId", "UserId"}
	emailKeys = []string{"email", "Email", "EMail", "mail"}
	loginKeys = []string{"loginName", "LoginName", "UserName", "userName", "Login", "login", "Key"}
)

// PersonIdentifiers turns any person-shaped value into store identifiers,
// in input order. An identifier is either a positive int id or an email
// string that the store must still resolve.
func PersonIdentifiers(v any) []any {
	var out []any
	collectIdentifiers(v, &out)
	return out
}

// OutboundPersonValue shapes a declared person field for a write. The
// identifiers are marked so the client resolves their emails; a single
// field keeps only the first. The bool is false when nothing resolved and
// the field must be left out of the write.
func OutboundPersonValue(v any, multi bool) (domain.PersonValue, bool) {
	ids := PersonIdentifiers(v)
	if len(ids) == 0 {
		return domain.PersonValue{}, false
	}
	if !multi {
		ids = ids[:1]
	}
	return domain.PersonValue{IDs: ids, Multi: multi}, true
}

func collectIdentifiers(v any, out *[]any) {
	switch x := v.(type) {
	case nil:
	case int, int64, float64:
		if id := domain.PositiveInt(x); id > 0 {
			*out = append(*out, id)
		}
	case string:
		for _, part := range splitPeople(x) {
			if id := identifierFromString(part); id != nil {
				*out = append(*out, id)
			}
		}
	case domain.PersonRef:
		if id := identifierFromRef(x); id != nil {
			*out = append(*out, id)
		}
	case *domain.PersonRef:
		if x != nil {
			collectIdentifiers(*x, out)
		}
	case People:
		for _, p := range x {
			collectIdentifiers(p, out)
		}
	case []domain.PersonRef:
		for _, p := range x {
			collectIdentifiers(p, out)
		}
	case []any:
		for _, item := range x {
			collectIdentifiers(item, out)
		}
	case []string:
		for _, item := range x {
			collectIdentifiers(item, out)
		}
	case []int:
		for _, item := range x {
			collectIdentifiers(item, out)
		}
	case map[string]any:
		if results, ok := x["results"].([]any); ok {
			collectIdentifiers(results, out)
			return
		}
		if id := identifierFromObject(x); id != nil {
			*out = append(*out, id)
		}
	case domain.Record:
		collectIdentifiers(map[string]any(x), out)
	case domain.PersonValue:
		collectIdentifiers(x.IDs, out)
	}
}

// splitPeople splits "12|a@x; 7|b@x" style lists into parts.
func splitPeople(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return parts
}

func identifierFromString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if id := domain.PositiveInt(s); id > 0 {
		return id
	}
	if strings.Contains(s, "|") {
		segments := strings.Split(s, "|")
		if id := domain.PositiveInt(segments[0]); id > 0 {
			return id
		}
		if email := emailFromLogin(s); email != "" {
			return email
		}
		return nil
	}
	if strings.Contains(s, "@") {
		return s
	}
	return nil
}

func identifierFromRef(p domain.PersonRef) any {
	if p.ID > 0 {
		return p.ID
	}
	if p.Email != "" {
		return strings.TrimSpace(p.Email)
	}
	if email := emailFromLogin(p.LoginName); email != "" {
		return email
	}
	if strings.Contains(p.DisplayName, "@") {
		return strings.TrimSpace(p.DisplayName)
	}
	return nil
}

func identifierFromObject(m map[string]any) any {
	// Numeric ids outrank everything else.
	for _, key := range idKeys {
		switch n := m[key].(type) {
		case int, int64, float64:
			if id := domain.PositiveInt(n); id > 0 {
				return id
			}
		}
	}
	for _, key := range idKeys {
		if s, ok := m[key].(string); ok {
			if id := domain.PositiveInt(s); id > 0 {
				return id
			}
		}
	}
	if email := firstString(m, emailKeys); email != "" {
		return email
	}
	if email := emailFromLogin(firstString(m, loginKeys)); email != "" {
		return email
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.Contains(s, "@") {
			if email := emailFromLogin(s); email != "" {
				return email
			}
		}
	}
	return nil
}

// emailFromLogin strips a login-provider prefix such as
// "i:0#.f|membership|" and returns the email portion, if any.
func emailFromLogin(login string) string {
	login = strings.TrimSpace(login)
	if login == "" {
		return ""
	}
	if i := strings.LastIndex(login, "|"); i >= 0 {
		login = login[i+1:]
	}
	if strings.Contains(login, "@") {
		return strings.TrimSpace(login)
	}
	return ""
}

func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}
