package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
)

func TestPersonIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"Number", 12, []any{12}},
		{"FloatNumber", float64(9), []any{9}},
		{"NumericString", " 42 ", []any{42}},
		{"Email", "alice@example.com", []any{"alice@example.com"}},
		{"LoginPrefix", "i:0#.f|membership|alice@example.com", []any{"alice@example.com"}},
		{"Composite", "12|alice@example.com; 7|bob@example.com", []any{12, 7}},
		{"CompositeComma", "3|c@example.com, d@example.com", []any{3, "d@example.com"}},
		{"ObjectIdBeatsEmail", map[string]any{"Email": "e@example.com", "Id": float64(4)}, []any{4}},
		{"ObjectStringId", map[string]any{"userId": "15"}, []any{15}},
		{"ObjectEmail", map[string]any{"EMail": "f@example.com"}, []any{"f@example.com"}},
		{"ObjectLogin", map[string]any{"LoginName": "i:0#.f|membership|g@example.com"}, []any{"g@example.com"}},
		{"ObjectAnyText", map[string]any{"Note": "h@example.com"}, []any{"h@example.com"}},
		{"ResultsWrapper", map[string]any{"results": []any{float64(1), "x"}}, []any{1}},
		{"ArrayDropsEmpty", []any{"", "nobody", 8, map[string]any{}}, []any{8}},
		{"PersonRef", domain.PersonRef{ID: 5, Email: "p@example.com"}, []any{5}},
		{"PersonRefEmailOnly", domain.PersonRef{Email: "q@example.com"}, []any{"q@example.com"}},
		{"Nil", nil, nil},
		{"Zero", 0, nil},
		{"Garbage", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PersonIdentifiers(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PersonIdentifiers(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutboundPersonValue(t *testing.T) {
	t.Run("Single", func(t *testing.T) {
		v, ok := OutboundPersonValue("12|a@example.com; 7|b@example.com", false)
		if !ok || v.Multi || !reflect.DeepEqual(v.IDs, []any{12}) || v.Wire() != 12 {
			t.Errorf("expected first identifier 12, got %#v (%v)", v, ok)
		}
	})

	t.Run("Multi", func(t *testing.T) {
		v, ok := OutboundPersonValue(People{{ID: 1}, {Email: "b@example.com"}}, true)
		if !ok || !reflect.DeepEqual(v.Wire(), []any{1, "b@example.com"}) {
			t.Errorf("expected [1 b@example.com], got %#v", v)
		}
	})

	t.Run("OmittedWhenUnresolved", func(t *testing.T) {
		if v, ok := OutboundPersonValue([]any{}, true); ok {
			t.Errorf("expected omission, got %v", v)
		}
		if v, ok := OutboundPersonValue("   ", false); ok {
			t.Errorf("expected omission, got %v", v)
		}
	})

	t.Run("MarshalsAsWireValue", func(t *testing.T) {
		single, _ := OutboundPersonValue(5, false)
		multi, _ := OutboundPersonValue([]any{5, "c@example.com"}, true)
		out, err := json.Marshal(map[string]any{"OwnerId": single, "ReviewersId": multi})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != `{"OwnerId":5,"ReviewersId":[5,"c@example.com"]}` {
			t.Errorf("unexpected encoding %s", out)
		}
	})

	t.Run("IdentifiersOfMarkedValue", func(t *testing.T) {
		v := domain.PersonValue{IDs: []any{3, "d@example.com"}, Multi: true}
		if got := PersonIdentifiers(v); !reflect.DeepEqual(got, []any{3, "d@example.com"}) {
			t.Errorf("expected the marked identifiers, got %#v", got)
		}
	})
}

func TestInboundPerson(t *testing.T) {
	t.Run("ResultsWrapper", func(t *testing.T) {
		in := map[string]any{"results": []any{
			map[string]any{"Id": float64(5), "Title": "Carol", "Email": "carol@example.com"},
		}}
		want := []domain.PersonRef{{ID: 5, DisplayName: "Carol", Email: "carol@example.com", LoginName: "carol@example.com"}}
		if got := InboundPerson(in); !reflect.DeepEqual(got, want) {
			t.Errorf("got %#v, want %#v", got, want)
		}
	})

	t.Run("BareNumber", func(t *testing.T) {
		want := domain.PersonRef{ID: 7, DisplayName: "User 7"}
		if got := InboundPerson(float64(7)); got != want {
			t.Errorf("got %#v, want %#v", got, want)
		}
		if got := InboundPerson("7"); got != want {
			t.Errorf("numeric string: got %#v, want %#v", got, want)
		}
	})

	t.Run("IDEncodesAsJSONNumber", func(t *testing.T) {
		out, err := json.Marshal(InboundPerson("5"))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != `{"id":5,"displayName":"User 5"}` {
			t.Errorf("unexpected encoding %s", out)
		}
	})

	t.Run("JSONString", func(t *testing.T) {
		got := InboundPerson(`[{"Id":2,"Title":"Dan"}]`)
		want := []domain.PersonRef{{ID: 2, DisplayName: "Dan"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %#v, want %#v", got, want)
		}
	})

	t.Run("BrokenJSONFallsBack", func(t *testing.T) {
		got := InboundPerson("{not json")
		if got != "{not json" {
			t.Errorf("expected raw value, got %#v", got)
		}
	})

	t.Run("LoginCrossFill", func(t *testing.T) {
		got, ok := InboundPerson(map[string]any{"LoginName": "i:0#.f|membership|erin@example.com"}).(domain.PersonRef)
		if !ok {
			t.Fatal("expected a PersonRef")
		}
		if got.Email != "erin@example.com" || got.DisplayName != "erin" {
			t.Errorf("unexpected cross-fill: %#v", got)
		}
	})

	t.Run("CompositeString", func(t *testing.T) {
		got := InboundPerson("12|alice@example.com; 7|bob@example.com")
		people, ok := got.([]domain.PersonRef)
		if !ok || len(people) != 2 || people[0].ID != 12 || people[1].Email != "bob@example.com" {
			t.Errorf("unexpected composite parse: %#v", got)
		}
	})

	t.Run("RawWhenNothingExtracted", func(t *testing.T) {
		for _, in := range []any{"hello", true, map[string]any{"Foo": "bar"}} {
			if got := InboundPerson(in); !reflect.DeepEqual(got, in) {
				t.Errorf("expected raw %#v back, got %#v", in, got)
			}
		}
	})
}

func TestPersonIDRoundTrip(t *testing.T) {
	for _, id := range []int{1, 5, 42, 1009, 987654} {
		wire, ok := OutboundPersonValue(domain.PersonRef{ID: id, DisplayName: "someone"}, false)
		if !ok {
			t.Fatalf("id %d omitted", id)
		}
		back, ok := InboundPerson(wire).(domain.PersonRef)
		if !ok || back.ID != id {
			t.Errorf("round trip of %d gave %#v", id, back)
		}

		multi, _ := OutboundPersonValue(People{{ID: id}}, true)
		people := PeopleFrom(multi)
		if len(people) != 1 || people[0].ID != id {
			t.Errorf("multi round trip of %d gave %#v", id, people)
		}
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{3.5, 3.5, true},
		{7, 7, true},
		{"  12.25 ", 12.25, true},
		{true, 1, true},
		{false, 0, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ToNumber(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestToDate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		ref := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
		cases := map[string]any{
			"Time":        ref,
			"ISO":         "2024-03-09T14:30:00Z",
			"ISOOffset":   "2024-03-09T16:30:00+02:00",
			"EpochMillis": float64(ref.UnixMilli()),
		}
		for name, in := range cases {
			got, ok := ToDate(in)
			if !ok || got != "2024-03-09T14:30:00.000Z" {
				t.Errorf("%s: got %q, %v", name, got, ok)
			}
		}
	})

	t.Run("DateOnly", func(t *testing.T) {
		got, ok := ToDate("2024-12-31")
		if !ok || got != "2024-12-31T00:00:00.000Z" {
			t.Errorf("got %q, %v", got, ok)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, in := range []any{"", "  ", "not a date", 0, -5.0, time.Time{}, nil, true} {
			if got, ok := ToDate(in); ok {
				t.Errorf("ToDate(%#v) = %q, expected omission", in, got)
			}
		}
	})
}

func TestToChoices(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"Array", []any{"A", " B ", ""}, []string{"A", "B"}},
		{"Results", map[string]any{"results": []any{"X", "Y"}}, []string{"X", "Y"}},
		{"HashDelimited", ";#One;#Two;#", []string{"One", "Two"}},
		{"SemicolonDelimited", "One; Two", []string{"One", "Two"}},
		{"Empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToChoices(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	in := domain.Record{
		"Id":                     float64(3),
		"Title":                  "Risk",
		"Author":                 map[string]any{"Id": float64(1)},
		"Modified":               "2024-01-01T00:00:00Z",
		"__metadata":             map[string]any{"type": "SP.Data"},
		"odata.etag":             `"4"`,
		"_ModerationStatus_":     0,
		"Owner":                  map[string]any{"Id": float64(9), "Title": "Pat"},
		"Reviewer":               map[string]any{"Id": float64(2)},
		"ReviewerId":             11,
		"Tags":                   map[string]any{"results": []any{"a", "b"}},
		"Empty":                  nil,
		"Context":                map[string]any{"Note": "kept"},
		"OData__UIVersionString": "1.0",
	}

	got := Sanitize(in)
	want := domain.Record{
		"Title":      "Risk",
		"OwnerId":    9,
		"ReviewerId": 11,
		"Tags":       []any{"a", "b"},
		"Context":    map[string]any{"Note": "kept"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sanitize = %#v\nwant %#v", got, want)
	}

	t.Run("Idempotent", func(t *testing.T) {
		if again := Sanitize(got); !reflect.DeepEqual(again, got) {
			t.Errorf("second pass changed the record: %#v", again)
		}
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		if _, ok := in["Id"]; !ok {
			t.Error("input record was modified")
		}
	})
}

func TestLenientTypes(t *testing.T) {
	var item struct {
		Owners  People  `json:"owners"`
		Score   Number  `json:"score"`
		Due     Date    `json:"due"`
		Labels  Choices `json:"labels"`
		Missing Number  `json:"missing"`
	}
	payload := `{
		"owners": {"results": [{"Id": 4, "Title": "Ann"}]},
		"score": "7.5",
		"due": "garbage",
		"labels": ";#Red;#Blue;#",
		"missing": ""
	}`
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(item.Owners) != 1 || item.Owners.First().ID != 4 {
		t.Errorf("unexpected owners %#v", item.Owners)
	}
	if !item.Score.Valid || item.Score.Value != 7.5 {
		t.Errorf("unexpected score %#v", item.Score)
	}
	if item.Due.Valid {
		t.Errorf("expected invalid date, got %v", item.Due)
	}
	if !reflect.DeepEqual([]string(item.Labels), []string{"Red", "Blue"}) {
		t.Errorf("unexpected labels %#v", item.Labels)
	}
	if item.Missing.Valid {
		t.Error("blank number should be invalid")
	}

	out, err := json.Marshal(item.Due)
	if err != nil || string(out) != "null" {
		t.Errorf("invalid date should marshal to null, got %s", out)
	}
}
