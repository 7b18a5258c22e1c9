// Package router decides which site serves a logical collection and keeps
// one endpoint handle per site for the lifetime of a session.
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/opensource-finance/heron/internal/domain"
)

// Router resolves collections to site URLs and caches handles.
// A Router belongs to exactly one session.
type Router struct {
	shared map[string]struct{}

	mu      sync.Mutex
	handles map[string]domain.EndpointHandle
}

// New creates a router. An empty shared list selects the defaults.
func New(shared []domain.CollectionRef) *Router {
	if len(shared) == 0 {
		shared = domain.DefaultSharedCollections()
	}
	set := make(map[string]struct{}, len(shared))
	for _, ref := range shared {
		set[collectionKey(ref)] = struct{}{}
	}
	return &Router{
		shared:  set,
		handles: make(map[string]domain.EndpointHandle),
	}
}

// IsShared reports whether ref is hosted on the organization root.
func (r *Router) IsShared(ref domain.CollectionRef) bool {
	_, ok := r.shared[collectionKey(ref)]
	return ok
}

// ResolveEndpoint returns the site URL that serves ref for the caller.
func (r *Router) ResolveEndpoint(ref domain.CollectionRef, cc domain.CallerContext) (string, error) {
	if cc == nil {
		return "", domain.ErrContextRequired
	}
	if strings.TrimSpace(string(ref)) == "" {
		return "", fmt.Errorf("%w: collection ref is required", domain.ErrInvalidArgument)
	}

	url := cc.WorkspaceURL()
	if r.IsShared(ref) {
		url = cc.RootURL()
	}
	url = NormalizeURL(url)
	if url == "" {
		return "", fmt.Errorf("%w: caller context has no site url for %q", domain.ErrContextRequired, ref)
	}
	return url, nil
}

// Handle returns the cached handle for url or mints and caches a new one.
func (r *Router) Handle(url string, cc domain.CallerContext) (domain.EndpointHandle, error) {
	if cc == nil {
		return nil, domain.ErrContextRequired
	}
	key := strings.ToLower(NormalizeURL(url))
	if key == "" {
		return nil, fmt.Errorf("%w: endpoint url is required", domain.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h, nil
	}

	h, err := cc.NewHandle(NormalizeURL(url))
	if err != nil {
		return nil, fmt.Errorf("failed to create handle for %s: %w", url, err)
	}
	r.handles[key] = h
	return h, nil
}

// Route resolves ref and returns its handle in one step.
func (r *Router) Route(ref domain.CollectionRef, cc domain.CallerContext) (domain.EndpointHandle, error) {
	url, err := r.ResolveEndpoint(ref, cc)
	if err != nil {
		return nil, err
	}
	return r.Handle(url, cc)
}

// Size returns the number of cached handles.
func (r *Router) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// NormalizeURL trims whitespace and trailing slashes.
func NormalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

func collectionKey(ref domain.CollectionRef) string {
	return strings.ToLower(strings.TrimSpace(string(ref)))
}
