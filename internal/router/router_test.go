package router

import (
	"errors"
	"testing"

	"github.com/opensource-finance/heron/internal/domain"
)

type stubHandle struct {
	domain.EndpointHandle
	url string
}

func (h *stubHandle) URL() string { return h.url }

type stubCaller struct {
	workspace string
	root      string
	minted    int
}

func (c *stubCaller) WorkspaceURL() string          { return c.workspace }
func (c *stubCaller) RootURL() string               { return c.root }
func (c *stubCaller) CurrentUser() domain.PersonRef { return domain.PersonRef{Email: "me@example.com"} }
func (c *stubCaller) NewHandle(url string) (domain.EndpointHandle, error) {
	c.minted++
	return &stubHandle{url: url}, nil
}

func TestResolveEndpoint(t *testing.T) {
	r := New(nil)
	cc := &stubCaller{workspace: "https://tenant.example.com/sites/alpha/", root: "https://tenant.example.com"}

	t.Run("WorkspaceCollection", func(t *testing.T) {
		url, err := r.ResolveEndpoint(domain.CollectionRAID, cc)
		if err != nil {
			t.Fatalf("ResolveEndpoint failed: %v", err)
		}
		if url != "https://tenant.example.com/sites/alpha" {
			t.Errorf("unexpected url %q", url)
		}
	})

	t.Run("SharedCollection", func(t *testing.T) {
		url, err := r.ResolveEndpoint(domain.CollectionLessons, cc)
		if err != nil {
			t.Fatalf("ResolveEndpoint failed: %v", err)
		}
		if url != "https://tenant.example.com" {
			t.Errorf("unexpected url %q", url)
		}
	})

	t.Run("SharedMatchIgnoresCase", func(t *testing.T) {
		if !r.IsShared("best practices") {
			t.Error("expected case-insensitive shared match")
		}
	})

	t.Run("Stable", func(t *testing.T) {
		a, _ := r.ResolveEndpoint(domain.CollectionRCA, cc)
		b, _ := r.ResolveEndpoint(domain.CollectionRCA, cc)
		if a != b {
			t.Errorf("expected stable mapping, got %q and %q", a, b)
		}
	})

	t.Run("RequiresContext", func(t *testing.T) {
		_, err := r.ResolveEndpoint(domain.CollectionRAID, nil)
		if !errors.Is(err, domain.ErrContextRequired) {
			t.Errorf("expected ErrContextRequired, got %v", err)
		}
	})

	t.Run("RequiresRef", func(t *testing.T) {
		_, err := r.ResolveEndpoint(" ", cc)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("CustomSharedSet", func(t *testing.T) {
		custom := New([]domain.CollectionRef{domain.CollectionRAID})
		url, _ := custom.ResolveEndpoint(domain.CollectionRAID, cc)
		if url != "https://tenant.example.com" {
			t.Errorf("expected root url for custom shared ref, got %q", url)
		}
	})
}

func TestHandle(t *testing.T) {
	cc := &stubCaller{workspace: "https://a.example.com/sites/w", root: "https://a.example.com"}

	t.Run("CachedPerURL", func(t *testing.T) {
		r := New(nil)
		h1, err := r.Handle("https://a.example.com/sites/w", cc)
		if err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
		h2, _ := r.Handle("https://a.example.com/sites/w/", cc)
		if h1 != h2 {
			t.Error("expected the same handle for the same url")
		}
		if cc.minted != 1 {
			t.Errorf("expected 1 handle minted, got %d", cc.minted)
		}

		_, _ = r.Handle("https://a.example.com", cc)
		if r.Size() != 2 {
			t.Errorf("expected 2 cached handles, got %d", r.Size())
		}
	})

	t.Run("NotSharedAcrossRouters", func(t *testing.T) {
		r1, r2 := New(nil), New(nil)
		h1, _ := r1.Handle("https://a.example.com", cc)
		h2, _ := r2.Handle("https://a.example.com", cc)
		if h1 == h2 {
			t.Error("expected distinct handles for distinct sessions")
		}
	})

	t.Run("Route", func(t *testing.T) {
		r := New(nil)
		h, err := r.Route(domain.CollectionEmailTriggers, cc)
		if err != nil {
			t.Fatalf("Route failed: %v", err)
		}
		if h.URL() != "https://a.example.com" {
			t.Errorf("unexpected handle url %q", h.URL())
		}
	})

	t.Run("RequiresContext", func(t *testing.T) {
		_, err := New(nil).Handle("https://a.example.com", nil)
		if !errors.Is(err, domain.ErrContextRequired) {
			t.Errorf("expected ErrContextRequired, got %v", err)
		}
	})
}
