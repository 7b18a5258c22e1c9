package domain

import "context"

// EndpointHandle is an authenticated client bound to one physical site URL.
// Constructing a handle must not perform I/O.
type EndpointHandle interface {
	// URL returns the site URL the handle is bound to.
	URL() string

	// Items runs a single paged query against a list.
	Items(ctx context.Context, list CollectionRef, q Query) ([]Record, error)

	// Item reads one row by id.
	Item(ctx context.Context, list CollectionRef, id int, opts ReadOptions) (Record, error)

	// AddItem creates a row and returns whatever the store echoed back,
	// which may lack an identifier.
	AddItem(ctx context.Context, list CollectionRef, fields Record) (Record, error)

	// UpdateItem merges fields into an existing row.
	UpdateItem(ctx context.Context, list CollectionRef, id int, fields Record) error

	// DeleteItem removes a row.
	DeleteItem(ctx context.Context, list CollectionRef, id int) error

	// Versions returns the stored revisions of a row, newest first.
	Versions(ctx context.Context, list CollectionRef, id int, opts ReadOptions) ([]Record, error)

	// EnsureUser resolves a login or email to a site user.
	EnsureUser(ctx context.Context, login string) (PersonRef, error)
}

// CallerContext is the opaque capability a session is built from.
type CallerContext interface {
	// WorkspaceURL returns the site of the current workspace.
	WorkspaceURL() string

	// RootURL returns the organization root site.
	RootURL() string

	// CurrentUser returns the authenticated user.
	CurrentUser() PersonRef

	// NewHandle mints a lazily-connected handle for a site URL.
	NewHandle(url string) (EndpointHandle, error)
}
