package mapping

import (
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/normalize"
)

// KnowledgeItem is a lesson learned, best practice or reusable component.
// All three collections share one shape.
type KnowledgeItem struct {
	ID             int               `json:"id,omitempty"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
	Category       string            `json:"category"`
	Project        string            `json:"project"`
	Tags           normalize.Choices `json:"tags"`
	Recommendation string            `json:"recommendation"`
	Link           string            `json:"link"`
	Status         string            `json:"status"`
	Rating         normalize.Number  `json:"rating"`
	SubmittedBy    normalize.People  `json:"submittedBy"`
	Contributors   normalize.People  `json:"contributors"`
	DateSubmitted  normalize.Date    `json:"dateSubmitted"`
	SourceRCAID    normalize.Number  `json:"sourceRcaId"`
	Created        normalize.Date    `json:"created"`
	Modified       normalize.Date    `json:"modified"`
}

// KnowledgeTable is the field mapping shared by the knowledge collections.
var KnowledgeTable = Table[KnowledgeItem]{
	Text("title", "Title", func(e *KnowledgeItem) *string { return &e.Title }),
	Text("summary", "Summary", func(e *KnowledgeItem) *string { return &e.Summary }),
	Text("category", "Category", func(e *KnowledgeItem) *string { return &e.Category }),
	Text("project", "Project", func(e *KnowledgeItem) *string { return &e.Project }),
	Choices("tags", "Tags", func(e *KnowledgeItem) *normalize.Choices { return &e.Tags }),
	Text("recommendation", "Recommendation", func(e *KnowledgeItem) *string { return &e.Recommendation }),
	Text("link", "Link", func(e *KnowledgeItem) *string { return &e.Link }),
	Text("status", "Status", func(e *KnowledgeItem) *string { return &e.Status }),
	Number("rating", "Rating", func(e *KnowledgeItem) *normalize.Number { return &e.Rating }),
	Person("submittedBy", "SubmittedBy", func(e *KnowledgeItem) *normalize.People { return &e.SubmittedBy }),
	People("contributors", "Contributors", func(e *KnowledgeItem) *normalize.People { return &e.Contributors }),
	Date("dateSubmitted", "DateSubmitted", func(e *KnowledgeItem) *normalize.Date { return &e.DateSubmitted }),
	Number("sourceRcaId", "SourceRCAId", func(e *KnowledgeItem) *normalize.Number { return &e.SourceRCAID }),
	readOnly(Date("created", "Created", func(e *KnowledgeItem) *normalize.Date { return &e.Created })),
	readOnly(Date("modified", "Modified", func(e *KnowledgeItem) *normalize.Date { return &e.Modified })),
}

// KnowledgeToWire maps a knowledge item to a row.
func KnowledgeToWire(item KnowledgeItem) domain.Record {
	return KnowledgeTable.ToWire(&item)
}

// KnowledgeFromWire maps a row to a knowledge item.
func KnowledgeFromWire(r domain.Record) KnowledgeItem {
	var item KnowledgeItem
	KnowledgeTable.FromWire(r, &item)
	item.ID = r.ID()
	return item
}
