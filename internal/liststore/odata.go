package liststore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var odataOperators = map[string]string{
	"eq":  "==",
	"ne":  "!=",
	"gt":  ">",
	"ge":  ">=",
	"lt":  "<",
	"le":  "<=",
	"and": "&&",
	"or":  "||",
	"not": "!",
}

var errNotOData = errors.New("not an OData filter")

// toCEL accepts the OData subset the REST API understands, such as
// "RaidId eq 'a' and Likelihood ge 3", and rewrites it as CEL over item.
// Anything that does not tokenize as OData is taken to be CEL already.
func toCEL(filter string) (string, error) {
	out, err := translateOData(filter)
	if errors.Is(err, errNotOData) {
		return filter, nil
	}
	return out, err
}

func translateOData(filter string) (string, error) {
	var b strings.Builder
	rs := []rune(filter)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			b.WriteRune(r)
			i++
		case r == '\'':
			var lit strings.Builder
			i++
			closed := false
			for i < len(rs) {
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						lit.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				lit.WriteRune(rs[i])
				i++
			}
			if !closed {
				return "", fmt.Errorf("unterminated string in %q", filter)
			}
			b.WriteString(strconv.Quote(lit.String()))
			b.WriteByte(' ')
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i++
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			num := string(rs[start:i])
			if !strings.Contains(num, ".") {
				num += ".0"
			}
			b.WriteString(num)
			b.WriteByte(' ')
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_' || rs[i] == '/') {
				i++
			}
			word := string(rs[start:i])
			if i < len(rs) && (rs[i] == '.' || rs[i] == '[') {
				return "", errNotOData
			}
			lower := strings.ToLower(word)
			switch {
			case odataOperators[lower] != "":
				b.WriteString(odataOperators[lower])
			case lower == "true" || lower == "false" || lower == "null":
				b.WriteString(lower)
			default:
				if i < len(rs) && rs[i] == '(' {
					return "", fmt.Errorf("unsupported filter function %s", word)
				}
				b.WriteString(fieldPath(word))
			}
			b.WriteByte(' ')
		default:
			return "", errNotOData
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// fieldPath maps Owner/EMail to item["Owner"]["EMail"].
func fieldPath(word string) string {
	var b strings.Builder
	b.WriteString("item")
	for _, part := range strings.Split(word, "/") {
		b.WriteString("[")
		b.WriteString(strconv.Quote(part))
		b.WriteString("]")
	}
	return b.String()
}
