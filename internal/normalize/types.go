package normalize

import (
	"encoding/json"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
)

// People is a multi-valued person field. It decodes any wire shape and
// never fails on malformed input.
type People []domain.PersonRef

// UnmarshalJSON accepts objects, arrays, results wrappers and encoded strings.
func (p *People) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = nil
		return nil
	}
	*p = PeopleFrom(raw)
	return nil
}

// First returns the first person, or the zero ref.
func (p People) First() domain.PersonRef {
	if len(p) == 0 {
		return domain.PersonRef{}
	}
	return p[0]
}

// IDs returns the positive ids in order.
func (p People) IDs() []int {
	ids := make([]int, 0, len(p))
	for _, ref := range p {
		if ref.ID > 0 {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// Number is an optional numeric field.
type Number struct {
	Value float64
	Valid bool
}

// NumberOf coerces v; invalid input yields an invalid Number.
func NumberOf(v any) Number {
	f, ok := ToNumber(v)
	return Number{Value: f, Valid: ok}
}

// MarshalJSON writes null for an invalid number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts numbers, numeric strings and booleans.
func (n *Number) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*n = Number{}
		return nil
	}
	*n = NumberOf(raw)
	return nil
}

// Date is an optional date field.
type Date struct {
	Time  time.Time
	Valid bool
}

// DateOf coerces v; invalid input yields an invalid Date.
func DateOf(v any) Date {
	t, ok := ParseDate(v)
	if !ok {
		return Date{}
	}
	return Date{Time: t.UTC(), Valid: true}
}

// String returns the ISO form, or "" when invalid.
func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.UTC().Format(ISOLayout)
}

// MarshalJSON writes null for an invalid date.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts ISO strings and epoch milliseconds.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*d = Date{}
		return nil
	}
	*d = DateOf(raw)
	return nil
}

// Choices is a multi-choice field.
type Choices []string

// UnmarshalJSON accepts arrays, results wrappers and delimited strings.
func (c *Choices) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = nil
		return nil
	}
	*c = ToChoices(raw)
	return nil
}
