package mapping

import (
	"strings"
	"unicode"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/normalize"
)

// Standard RCA action types.
const (
	RCACorrection = "Correction"
	RCACorrective = "Corrective Action"
	RCAPreventive = "Preventive Action"
)

// StandardRCAActions are read even when ActionTypes does not list them.
var StandardRCAActions = []string{RCACorrection, RCACorrective, RCAPreventive}

// RCAItem is one root-cause analysis entry.
type RCAItem struct {
	ID                  int               `json:"id,omitempty"`
	Title               string            `json:"title"`
	ProblemStatement    string            `json:"problemStatement"`
	Category            string            `json:"category"`
	Severity            string            `json:"severity"`
	Status              string            `json:"status"`
	Project             string            `json:"project"`
	DateIdentified      normalize.Date    `json:"dateIdentified"`
	ByWhom              normalize.People  `json:"byWhom"`
	Owner               normalize.People  `json:"owner"`
	RootCause           string            `json:"rootCause"`
	ContributingFactors normalize.Choices `json:"contributingFactors"`
	WhyAnalysis         string            `json:"whyAnalysis"`
	CostImpact          normalize.Number  `json:"costImpact"`
	ClosedDate          normalize.Date    `json:"closedDate"`
	Actions             []RCAAction       `json:"actions"`
	Created             normalize.Date    `json:"created"`
	Modified            normalize.Date    `json:"modified"`
}

// RCAAction is one of the parallel action groups of an RCA row.
type RCAAction struct {
	ActionType     string           `json:"actionType"`
	Plan           string           `json:"plan"`
	Responsibility normalize.People `json:"responsibility"`
	TargetDate     normalize.Date   `json:"targetDate"`
	CompletionDate normalize.Date   `json:"completionDate"`
	Status         string           `json:"status"`
}

// RCATable holds the plain RCA fields.
var RCATable = Table[RCAItem]{
	Text("title", "Title", func(e *RCAItem) *string { return &e.Title }),
	Text("problemStatement", "ProblemStatement", func(e *RCAItem) *string { return &e.ProblemStatement }),
	Text("category", "Category", func(e *RCAItem) *string { return &e.Category }),
	Text("severity", "Severity", func(e *RCAItem) *string { return &e.Severity }),
	Text("status", "Status", func(e *RCAItem) *string { return &e.Status }),
	Text("project", "Project", func(e *RCAItem) *string { return &e.Project }),
	Date("dateIdentified", "DateIdentified", func(e *RCAItem) *normalize.Date { return &e.DateIdentified }),
	People("byWhom", "ByWhom", func(e *RCAItem) *normalize.People { return &e.ByWhom }),
	Person("owner", "Owner", func(e *RCAItem) *normalize.People { return &e.Owner }),
	Text("rootCause", "RootCause", func(e *RCAItem) *string { return &e.RootCause }),
	Choices("contributingFactors", "ContributingFactors", func(e *RCAItem) *normalize.Choices { return &e.ContributingFactors }),
	Text("whyAnalysis", "WhyAnalysis", func(e *RCAItem) *string { return &e.WhyAnalysis }),
	Number("costImpact", "CostImpact", func(e *RCAItem) *normalize.Number { return &e.CostImpact }),
	Date("closedDate", "ClosedDate", func(e *RCAItem) *normalize.Date { return &e.ClosedDate }),
	readOnly(Date("created", "Created", func(e *RCAItem) *normalize.Date { return &e.Created })),
	readOnly(Date("modified", "Modified", func(e *RCAItem) *normalize.Date { return &e.Modified })),
}

// ActionSuffix derives the wire suffix of an action group.
func ActionSuffix(actionType string) string {
	lower := strings.ToLower(actionType)
	switch {
	case strings.Contains(lower, "correction"):
		return "Correction"
	case strings.Contains(lower, "corrective"):
		return "Corrective"
	case strings.Contains(lower, "preventive"):
		return "Preventive"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, actionType)
}

// RCAActionTable returns the bindings of the action group for one suffix.
func RCAActionTable(suffix string) Table[RCAAction] {
	return Table[RCAAction]{
		Text("plan", "ActionPlan"+suffix, func(a *RCAAction) *string { return &a.Plan }),
		People("responsibility", "Responsibility"+suffix, func(a *RCAAction) *normalize.People { return &a.Responsibility }),
		Date("targetDate", "TargetDate"+suffix, func(a *RCAAction) *normalize.Date { return &a.TargetDate }),
		Date("completionDate", "CompletionDate"+suffix, func(a *RCAAction) *normalize.Date { return &a.CompletionDate }),
		Text("status", "ActionStatus"+suffix, func(a *RCAAction) *string { return &a.Status }),
	}
}

const rcaActionTypesField = "ActionTypes"

// RCAReadOptions fetches the plain fields and the standard action groups.
func RCAReadOptions() domain.ReadOptions {
	parts := []domain.ReadOptions{RCATable.ReadOptions(), {Select: []string{rcaActionTypesField}}}
	for _, t := range StandardRCAActions {
		parts = append(parts, RCAActionTable(ActionSuffix(t)).ReadOptions())
	}
	return mergeOptions(parts...)
}

// RCAToWire maps an RCA item to a row. Each action is written to its
// suffixed group and the action types are listed in ActionTypes.
func RCAToWire(item RCAItem) domain.Record {
	r := RCATable.ToWire(&item)
	var types []string
	seen := map[string]bool{}
	for i := range item.Actions {
		a := &item.Actions[i]
		suffix := ActionSuffix(a.ActionType)
		if suffix == "" || seen[suffix] {
			continue
		}
		seen[suffix] = true
		types = append(types, a.ActionType)
		RCAActionTable(suffix).writeInto(a, r)
	}
	if len(types) > 0 {
		r[rcaActionTypesField] = types
	}
	return r
}

// RCAFromWire maps a row to an RCA item. Action groups are read for the
// types listed in ActionTypes and for any standard type with data.
func RCAFromWire(r domain.Record) RCAItem {
	var item RCAItem
	RCATable.FromWire(r, &item)
	item.ID = r.ID()

	listed := normalize.ToChoices(r[rcaActionTypesField])
	candidates := append(append([]string(nil), listed...), StandardRCAActions...)
	seen := map[string]bool{}
	for i, actionType := range candidates {
		suffix := ActionSuffix(actionType)
		if suffix == "" || seen[suffix] {
			continue
		}
		seen[suffix] = true

		a := RCAAction{ActionType: actionType}
		RCAActionTable(suffix).FromWire(r, &a)
		isListed := i < len(listed)
		if !isListed && a.Plan == "" && len(a.Responsibility) == 0 && !a.TargetDate.Valid && a.Status == "" {
			continue
		}
		item.Actions = append(item.Actions, a)
	}
	return item
}
