package liststore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/heron/internal/domain"
)

// filter compiles a query filter into a row predicate. Programs are
// cached by expression text.
func (s *Store) filter(expr string) (func(domain.Record) bool, error) {
	s.mu.RLock()
	prg, ok := s.programs[expr]
	s.mu.RUnlock()

	if !ok {
		source, err := toCEL(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidArgument, expr, err)
		}
		ast, issues := s.env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidArgument, expr, issues.Err())
		}
		if out := ast.OutputType(); out != cel.BoolType && out != cel.DynType {
			return nil, fmt.Errorf("%w: filter %q must return bool, got %s", domain.ErrInvalidArgument, expr, out)
		}
		prg, err = s.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidArgument, expr, err)
		}

		s.mu.Lock()
		s.programs[expr] = prg
		s.mu.Unlock()
	}

	return func(r domain.Record) bool {
		out, _, err := prg.Eval(map[string]any{"item": map[string]any(r)})
		if err != nil {
			// Missing fields do not match.
			return false
		}
		b, ok := out.(types.Bool)
		return ok && bool(b)
	}, nil
}

type sortKey struct {
	field string
	desc  bool
}

func parseOrderBy(orderBy string) ([]sortKey, error) {
	var keys []sortKey
	for _, part := range strings.Split(orderBy, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1:
			keys = append(keys, sortKey{field: fields[0]})
		case 2:
			switch strings.ToLower(fields[1]) {
			case "asc":
				keys = append(keys, sortKey{field: fields[0]})
			case "desc":
				keys = append(keys, sortKey{field: fields[0], desc: true})
			default:
				return nil, fmt.Errorf("%w: order by %q", domain.ErrInvalidArgument, part)
			}
		default:
			return nil, fmt.Errorf("%w: order by %q", domain.ErrInvalidArgument, part)
		}
	}
	return keys, nil
}

// sortRecords orders rows by keys. Ties fall back to Id, in the direction
// of the last key.
func sortRecords(records []domain.Record, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	tie := sortKey{field: "Id", desc: keys[len(keys)-1].desc}
	keys = append(keys, tie)
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(records[i][k.field], records[j][k.field])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// shape applies the select projection and fills expanded person fields.
func (s *Site) shape(ctx context.Context, records []domain.Record, selected, expand []string) ([]domain.Record, error) {
	if len(expand) > 0 {
		users, err := s.users(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			for _, field := range expand {
				if v, ok := expandPerson(r[field+"Id"], users); ok {
					r[field] = v
				}
			}
		}
	}

	if len(selected) == 0 {
		return records, nil
	}
	keep := map[string]bool{"Id": true}
	for _, sel := range selected {
		head, _, _ := strings.Cut(strings.TrimSpace(sel), "/")
		keep[head] = true
	}
	for _, r := range records {
		for k := range r {
			if !keep[k] {
				delete(r, k)
			}
		}
	}
	return records, nil
}

func expandPerson(v any, users map[int]siteUser) (any, bool) {
	lookup := func(id int) map[string]any {
		if u, ok := users[id]; ok {
			return u.expanded()
		}
		return map[string]any{"Id": id}
	}

	switch ids := v.(type) {
	case []any:
		results := make([]any, 0, len(ids))
		for _, raw := range ids {
			if id := domain.PositiveInt(raw); id > 0 {
				results = append(results, lookup(id))
			}
		}
		return map[string]any{"results": results}, true
	case map[string]any:
		return expandPerson(ids["results"], users)
	}
	if id := domain.PositiveInt(v); id > 0 {
		return lookup(id), true
	}
	return nil, false
}
