package mapping

import (
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/normalize"
)

// RAID item types.
const (
	RAIDRisk        = "Risk"
	RAIDAssumption  = "Assumption"
	RAIDIssue       = "Issue"
	RAIDDependency  = "Dependency"
	RAIDOpportunity = "Opportunity"
	RAIDConstraint  = "Constraint"
)

// Risk action types.
const (
	ActionMitigation  = "Mitigation"
	ActionContingency = "Contingency"
)

// RAIDItem is one logical RAID log entry. A risk may be stored as several
// rows that share RaidID, one per action type.
type RAIDItem struct {
	ID          int               `json:"id,omitempty"`
	RaidID      string            `json:"raidId"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Priority    string            `json:"priority"`
	Impact      string            `json:"impact"`
	Likelihood  normalize.Number  `json:"likelihood"`
	Score       normalize.Number  `json:"score"`
	Status      string            `json:"status"`
	Project     string            `json:"project"`
	Owner       normalize.People  `json:"owner"`
	RaisedBy    normalize.People  `json:"raisedBy"`
	DateRaised  normalize.Date    `json:"dateRaised"`
	DueDate     normalize.Date    `json:"dueDate"`
	Tags        normalize.Choices `json:"tags"`
	Escalated   bool              `json:"escalated"`
	Actions     []RAIDAction      `json:"actions"`
	Created     normalize.Date    `json:"created"`
	Modified    normalize.Date    `json:"modified"`
}

// RAIDAction is the action-specific part of one RAID row.
type RAIDAction struct {
	ItemID         int              `json:"itemId,omitempty"`
	ActionType     string           `json:"actionType"`
	Plan           string           `json:"plan"`
	Responsibility normalize.People `json:"responsibility"`
	TargetDate     normalize.Date   `json:"targetDate"`
	CompletionDate normalize.Date   `json:"completionDate"`
	Status         string           `json:"status"`
}

// RAIDTable holds the fields every row of a group repeats.
var RAIDTable = Table[RAIDItem]{
	Text("raidId", "RaidId", func(e *RAIDItem) *string { return &e.RaidID }),
	Text("type", "RaidType", func(e *RAIDItem) *string { return &e.Type }),
	Text("title", "Title", func(e *RAIDItem) *string { return &e.Title }),
	Text("description", "Description", func(e *RAIDItem) *string { return &e.Description }),
	Text("category", "Category", func(e *RAIDItem) *string { return &e.Category }),
	Text("priority", "Priority", func(e *RAIDItem) *string { return &e.Priority }),
	Text("impact", "Impact", func(e *RAIDItem) *string { return &e.Impact }),
	Number("likelihood", "Likelihood", func(e *RAIDItem) *normalize.Number { return &e.Likelihood }),
	Number("score", "RiskScore", func(e *RAIDItem) *normalize.Number { return &e.Score }),
	Text("status", "Status", func(e *RAIDItem) *string { return &e.Status }),
	Text("project", "Project", func(e *RAIDItem) *string { return &e.Project }),
	Person("owner", "Owner", func(e *RAIDItem) *normalize.People { return &e.Owner }),
	Person("raisedBy", "RaisedBy", func(e *RAIDItem) *normalize.People { return &e.RaisedBy }),
	Date("dateRaised", "DateRaised", func(e *RAIDItem) *normalize.Date { return &e.DateRaised }),
	Date("dueDate", "DueDate", func(e *RAIDItem) *normalize.Date { return &e.DueDate }),
	Choices("tags", "Tags", func(e *RAIDItem) *normalize.Choices { return &e.Tags }),
	Bool("escalated", "Escalated", func(e *RAIDItem) *bool { return &e.Escalated }),
	readOnly(Date("created", "Created", func(e *RAIDItem) *normalize.Date { return &e.Created })),
	readOnly(Date("modified", "Modified", func(e *RAIDItem) *normalize.Date { return &e.Modified })),
}

// RAIDActionTable holds the fields that differ per row of a group.
var RAIDActionTable = Table[RAIDAction]{
	Text("actionType", "ActionType", func(a *RAIDAction) *string { return &a.ActionType }),
	Text("plan", "ActionPlan", func(a *RAIDAction) *string { return &a.Plan }),
	People("responsibility", "Responsibility", func(a *RAIDAction) *normalize.People { return &a.Responsibility }),
	Date("targetDate", "TargetDate", func(a *RAIDAction) *normalize.Date { return &a.TargetDate }),
	Date("completionDate", "CompletionDate", func(a *RAIDAction) *normalize.Date { return &a.CompletionDate }),
	Text("status", "ActionStatus", func(a *RAIDAction) *string { return &a.Status }),
}

// RAIDReadOptions fetches every bound RAID field.
func RAIDReadOptions() domain.ReadOptions {
	return mergeOptions(RAIDTable.ReadOptions(), RAIDActionTable.ReadOptions())
}

// IsRisk reports whether the item is a risk.
func (r RAIDItem) IsRisk() bool {
	return strings.EqualFold(strings.TrimSpace(r.Type), RAIDRisk)
}

// RowIDs returns the ids of the rows backing the item.
func (r RAIDItem) RowIDs() []int {
	var ids []int
	for _, a := range r.Actions {
		if a.ItemID > 0 {
			ids = append(ids, a.ItemID)
		}
	}
	if len(ids) == 0 && r.ID > 0 {
		ids = append(ids, r.ID)
	}
	return ids
}

func actionKey(actionType string) string {
	return strings.ToLower(strings.TrimSpace(actionType))
}

// distinctActions keeps the first action of each type, in order.
func distinctActions(actions []RAIDAction) []RAIDAction {
	seen := map[string]bool{}
	out := make([]RAIDAction, 0, len(actions))
	for _, a := range actions {
		key := actionKey(a.ActionType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// RAIDRows fans an item out into one row per distinct action type. Every
// row carries the same RaidId and common fields. An item without actions
// is a single row.
func RAIDRows(item RAIDItem) []domain.Record {
	common := RAIDTable.ToWire(&item)
	actions := distinctActions(item.Actions)
	if len(actions) == 0 {
		return []domain.Record{common}
	}

	rows := make([]domain.Record, 0, len(actions))
	for i := range actions {
		row := common.Clone()
		RAIDActionTable.writeInto(&actions[i], row)
		rows = append(rows, row)
	}
	return rows
}

// RAIDFromRow maps a single row, including its action part.
func RAIDFromRow(r domain.Record) RAIDItem {
	var item RAIDItem
	RAIDTable.FromWire(r, &item)
	item.ID = r.ID()
	if action, ok := actionFromRow(r); ok {
		item.Actions = []RAIDAction{action}
	}
	return item
}

func actionFromRow(r domain.Record) (RAIDAction, bool) {
	var a RAIDAction
	RAIDActionTable.FromWire(r, &a)
	a.ItemID = r.ID()
	if a.ActionType == "" && a.Plan == "" && len(a.Responsibility) == 0 && !a.TargetDate.Valid {
		return RAIDAction{}, false
	}
	return a, true
}

// GroupRAID folds rows sharing a RaidId into one item, in order of first
// appearance. Common fields come from the first row; each distinct action
// type found contributes one action. Rows without a RaidId stand alone.
func GroupRAID(records []domain.Record) []RAIDItem {
	var items []RAIDItem
	index := map[string]int{}

	for _, r := range records {
		key := strings.TrimSpace(r.String("RaidId"))
		pos, grouped := index[key]
		if key == "" || !grouped {
			items = append(items, RAIDFromRow(r))
			if key != "" {
				index[key] = len(items) - 1
			}
			continue
		}

		action, ok := actionFromRow(r)
		if !ok {
			continue
		}
		item := &items[pos]
		dup := false
		for _, existing := range item.Actions {
			if actionKey(existing.ActionType) == actionKey(action.ActionType) {
				dup = true
				break
			}
		}
		if !dup {
			item.Actions = append(item.Actions, action)
		}
	}
	return items
}

// RowUpdate is one in-place row write.
type RowUpdate struct {
	ID     int
	Fields domain.Record
}

// RiskPlan is the set of writes that reconciles a stored group with an
// updated item.
type RiskPlan struct {
	Updates []RowUpdate
	Creates []domain.Record
	Deletes []int
}

// Empty reports whether the plan has no writes.
func (p RiskPlan) Empty() bool {
	return len(p.Updates) == 0 && len(p.Creates) == 0 && len(p.Deletes) == 0
}

// PlanRiskUpdate decides, per action type, whether to update the matching
// stored row, create a missing one, or delete a row whose type is gone.
// Extra stored rows of a type that is kept are deleted.
func PlanRiskUpdate(existing []domain.Record, updated RAIDItem) RiskPlan {
	byType := map[string]int{}
	var plan RiskPlan
	for _, r := range existing {
		key := actionKey(r.String("ActionType"))
		if _, dup := byType[key]; dup {
			plan.Deletes = append(plan.Deletes, r.ID())
			continue
		}
		byType[key] = r.ID()
	}

	wanted := map[string]bool{}
	for _, row := range RAIDRows(updated) {
		key := actionKey(row.String("ActionType"))
		wanted[key] = true
		if id, ok := byType[key]; ok && id > 0 {
			plan.Updates = append(plan.Updates, RowUpdate{ID: id, Fields: row})
			continue
		}
		plan.Creates = append(plan.Creates, row)
	}

	for _, r := range existing {
		key := actionKey(r.String("ActionType"))
		if !wanted[key] && byType[key] == r.ID() {
			plan.Deletes = append(plan.Deletes, r.ID())
		}
	}
	return plan
}
