package session

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/listclient"
	"github.com/opensource-finance/heron/internal/metrics"
	"github.com/opensource-finance/heron/internal/repository"
	"github.com/opensource-finance/heron/internal/retry"
	"github.com/opensource-finance/heron/internal/router"
)

// Session is everything one workspace needs: its caller, its client and
// one repository per entity type.
type Session struct {
	Caller *Caller
	Client *listclient.Client
	RAID   *repository.RAIDRepository
	RCA    *repository.RCARepository

	knowledge map[string]*repository.KnowledgeRepository
}

// Workspace returns the workspace URL of the session.
func (s *Session) Workspace() string { return s.Caller.WorkspaceURL() }

// Knowledge returns the repository of a knowledge kind.
func (s *Session) Knowledge(kind string) (*repository.KnowledgeRepository, error) {
	repo, ok := s.knowledge[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown knowledge kind %q", domain.ErrInvalidArgument, kind)
	}
	return repo, nil
}

// Option configures a Pool.
type Option func(*Pool)

// WithMirror shares collection snapshots through c.
func WithMirror(c domain.Cache) Option {
	return func(p *Pool) { p.mirror = c }
}

// WithEventBus publishes item events from every session.
func WithEventBus(b domain.EventBus) Option {
	return func(p *Pool) { p.events = b }
}

// WithMetrics records client and cache metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithCacheDuration sets the snapshot freshness window.
func WithCacheDuration(d time.Duration) Option {
	return func(p *Pool) { p.duration = d }
}

// OnSession registers fn to run once for every new session.
func OnSession(fn func(*Session)) Option {
	return func(p *Pool) { p.hooks = append(p.hooks, fn) }
}

// Pool keeps one Session per workspace, created on first use.
type Pool struct {
	cfg      domain.ClientConfig
	handles  HandleFactory
	mirror   domain.Cache
	events   domain.EventBus
	metrics  *metrics.Metrics
	duration time.Duration
	hooks    []func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool creates a pool. cfg supplies the user, root site and client
// tuning shared by every session.
func NewPool(cfg domain.ClientConfig, handles HandleFactory, opts ...Option) (*Pool, error) {
	if handles == nil {
		return nil, domain.ErrContextRequired
	}
	p := &Pool{
		cfg:      cfg,
		handles:  handles,
		duration: repository.DefaultCacheDuration,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Default returns the session of the configured workspace.
func (p *Pool) Default() (*Session, error) {
	return p.Get(p.cfg.WorkspaceURL)
}

// Get returns the session of workspace, creating it if needed.
func (p *Pool) Get(workspace string) (*Session, error) {
	key := strings.ToLower(router.NormalizeURL(workspace))
	if key == "" {
		return nil, domain.ErrContextRequired
	}

	p.mu.Lock()
	s, ok := p.sessions[key]
	if !ok {
		var err error
		s, err = p.open(workspace)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.sessions[key] = s
	}
	p.mu.Unlock()

	if !ok {
		slog.Info("session opened", "workspace", s.Workspace())
		for _, hook := range p.hooks {
			hook(s)
		}
	}
	return s, nil
}

// Workspaces lists the workspaces with an open session.
func (p *Pool) Workspaces() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s.Workspace())
	}
	sort.Strings(out)
	return out
}

func (p *Pool) open(workspace string) (*Session, error) {
	user := domain.PersonRef{Email: p.cfg.UserEmail, DisplayName: p.cfg.UserName}
	caller, err := NewCaller(workspace, p.cfg.RootURL, user, p.handles)
	if err != nil {
		return nil, err
	}

	client, err := listclient.New(caller,
		listclient.WithRouter(router.New(p.cfg.SharedCollections)),
		listclient.WithRetry(p.retryOptions()...),
		listclient.WithMetrics(p.metrics),
		listclient.WithBatchSize(p.cfg.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	repoOpts := []repository.Option{
		repository.WithCacheDuration(p.duration),
		repository.WithMetrics(p.metrics),
	}
	if p.mirror != nil {
		repoOpts = append(repoOpts, repository.WithMirror(p.mirror))
	}
	if p.events != nil {
		repoOpts = append(repoOpts, repository.WithEventBus(p.events))
	}

	s := &Session{Caller: caller, Client: client, knowledge: make(map[string]*repository.KnowledgeRepository)}
	if s.RAID, err = repository.NewRAID(client, repoOpts...); err != nil {
		return nil, err
	}
	if s.RCA, err = repository.NewRCA(client, repoOpts...); err != nil {
		return nil, err
	}
	for kind, ref := range repository.KnowledgeKinds {
		repo, err := repository.NewKnowledge(client, ref, repoOpts...)
		if err != nil {
			return nil, err
		}
		s.knowledge[kind] = repo
	}
	return s, nil
}

func (p *Pool) retryOptions() []retry.Option {
	var opts []retry.Option
	if p.cfg.MaxAttempts > 0 {
		opts = append(opts, retry.WithMaxAttempts(p.cfg.MaxAttempts))
	}
	if p.cfg.BaseDelay > 0 {
		opts = append(opts, retry.WithBaseDelay(p.cfg.BaseDelay))
	}
	if p.cfg.RetryTransientOnly {
		opts = append(opts, retry.WithClassifier(retry.TransientOnly))
	}
	return opts
}
