// Package domain defines the core interfaces and types for Heron.
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CollectionRef names a logical collection of records, independent of
// the physical site that stores it.
type CollectionRef string

// Well-known logical collections.
const (
	CollectionRAID               CollectionRef = "RAID Log"
	CollectionRCA                CollectionRef = "RCA Register"
	CollectionLessons            CollectionRef = "Lessons Learned"
	CollectionBestPractices      CollectionRef = "Best Practices"
	CollectionReusableComponents CollectionRef = "Reusable Components"
	CollectionEmailTriggers      CollectionRef = "Email Triggers"
)

// DefaultSharedCollections live on the organization root rather than on
// the current workspace.
func DefaultSharedCollections() []CollectionRef {
	return []CollectionRef{
		CollectionLessons,
		CollectionBestPractices,
		CollectionReusableComponents,
		CollectionEmailTriggers,
	}
}

// String returns the collection name.
func (r CollectionRef) String() string { return string(r) }

// Record is one row of a list as seen on the wire.
type Record map[string]any

// ID returns the store-assigned row id, or 0 when the record carries none.
func (r Record) ID() int {
	for _, key := range []string{"Id", "ID", "id"} {
		if id := PositiveInt(r[key]); id > 0 {
			return id
		}
	}
	return 0
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a trimmed string, or "" when absent.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// PositiveInt coerces numbers and numeric strings to a positive int.
// Anything else yields 0.
func PositiveInt(v any) int {
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case int64:
		if n > 0 {
			return int(n)
		}
	case float64:
		if n > 0 && n == float64(int(n)) {
			return int(n)
		}
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// PersonRef is the canonical in-memory reference to a person.
// ID is the store's authoritative identifier and is preferred for writes.
// It is always numeric: a wire id of "5" decodes to 5 and encodes to JSON
// as the number 5, never the string "5".
type PersonRef struct {
	ID          int    `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	LoginName   string `json:"loginName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// IsZero reports whether no identifying field is set.
func (p PersonRef) IsZero() bool {
	return p.ID == 0 && p.Email == "" && p.LoginName == "" && p.DisplayName == ""
}

// PersonValue marks a declared person field of an outbound record. IDs
// holds site user ids and emails; the client resolves the emails on the
// target site before the write. Fields without this marker are sent as
// they are, whatever their name.
type PersonValue struct {
	IDs   []any
	Multi bool
}

// Wire returns the value as written: the id list for a multi-person field,
// otherwise the first id.
func (p PersonValue) Wire() any {
	if p.Multi {
		return p.IDs
	}
	if len(p.IDs) == 0 {
		return nil
	}
	return p.IDs[0]
}

// MarshalJSON encodes the wire value.
func (p PersonValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Wire())
}

// Query describes a single paged read of a collection.
type Query struct {
	Select  []string
	Expand  []string
	Filter  string
	OrderBy string
	Top     int
}

// MaxPageSize is the largest page a single FetchAll may request.
const MaxPageSize = 5000

// ReadOptions shapes the record returned after a write or version read.
type ReadOptions struct {
	Select []string
	Expand []string
}

// IsZero reports whether no shape was requested.
func (o ReadOptions) IsZero() bool {
	return len(o.Select) == 0 && len(o.Expand) == 0
}

// Confidence labels how a created item's identifier was obtained.
type Confidence string

const (
	// ConfidenceConfirmed means the store returned or confirmed the id.
	ConfidenceConfirmed Confidence = "confirmed"

	// ConfidenceProbed means the id came from a most-recently-created
	// probe and may belong to a concurrent writer's row.
	ConfidenceProbed Confidence = "probed"
)

// Result reports the outcome of a write.
type Result struct {
	Success    bool       `json:"success"`
	ItemID     int        `json:"itemId,omitempty"`
	Item       Record     `json:"item,omitempty"`
	Error      string     `json:"error,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
