// Package session builds the per-workspace caller contexts, list clients
// and repositories the API serves from.
package session

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/liststore"
	"github.com/opensource-finance/heron/internal/router"
	"github.com/opensource-finance/heron/internal/transport/rest"
)

// HandleFactory mints a handle for a site URL on behalf of user.
type HandleFactory func(siteURL string, user domain.PersonRef) (domain.EndpointHandle, error)

// RESTHandles returns a factory of REST handles authenticated with the
// configured store token.
func RESTHandles(cfg domain.StoreConfig) HandleFactory {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	return func(siteURL string, _ domain.PersonRef) (domain.EndpointHandle, error) {
		if _, err := url.ParseRequestURI(siteURL); err != nil {
			return nil, fmt.Errorf("%w: invalid site url %q", domain.ErrInvalidArgument, siteURL)
		}
		return rest.New(siteURL, rest.WithHTTPClient(client), rest.WithToken(cfg.Token)), nil
	}
}

// StoreHandles returns a factory of embedded store sites.
func StoreHandles(store *liststore.Store) HandleFactory {
	return func(siteURL string, user domain.PersonRef) (domain.EndpointHandle, error) {
		return store.Site(siteURL, user), nil
	}
}

// Caller is the CallerContext of one workspace.
type Caller struct {
	workspace string
	root      string
	user      domain.PersonRef
	handles   HandleFactory
}

// NewCaller builds a caller for workspace. An empty root is derived from
// the workspace's scheme and host.
func NewCaller(workspace, root string, user domain.PersonRef, handles HandleFactory) (*Caller, error) {
	workspace = router.NormalizeURL(workspace)
	if workspace == "" || handles == nil {
		return nil, domain.ErrContextRequired
	}
	if root = router.NormalizeURL(root); root == "" {
		u, err := url.Parse(workspace)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: cannot derive root site from %q", domain.ErrInvalidArgument, workspace)
		}
		root = u.Scheme + "://" + u.Host
	}
	return &Caller{workspace: workspace, root: root, user: user, handles: handles}, nil
}

func (c *Caller) WorkspaceURL() string          { return c.workspace }
func (c *Caller) RootURL() string               { return c.root }
func (c *Caller) CurrentUser() domain.PersonRef { return c.user }

// NewHandle mints a handle for siteURL. No I/O happens here.
func (c *Caller) NewHandle(siteURL string) (domain.EndpointHandle, error) {
	return c.handles(strings.TrimSpace(siteURL), c.user)
}
