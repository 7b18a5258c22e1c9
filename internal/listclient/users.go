package listclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/retry"
)

type userCache struct {
	mu sync.Mutex
	id int
}

// CurrentUserID resolves the caller's site user id once per session.
func (c *Client) CurrentUserID(ctx context.Context) (int, error) {
	c.user.mu.Lock()
	defer c.user.mu.Unlock()
	if c.user.id > 0 {
		return c.user.id, nil
	}

	me := c.cc.CurrentUser()
	if me.ID > 0 {
		c.user.id = me.ID
		return me.ID, nil
	}
	login := me.Email
	if login == "" {
		login = me.LoginName
	}
	if login == "" {
		return 0, fmt.Errorf("%w: caller has no email or login", domain.ErrInvalidArgument)
	}

	h := c.pinned
	if h == nil {
		var err error
		h, err = c.router.Handle(c.cc.WorkspaceURL(), c.cc)
		if err != nil {
			return 0, err
		}
	}
	ref, err := retry.Do(ctx, func(ctx context.Context) (domain.PersonRef, error) {
		return h.EnsureUser(ctx, login)
	}, c.retryOptions()...)
	if err != nil {
		return 0, remoteError("ensureuser", "", err)
	}
	if ref.ID <= 0 {
		return 0, fmt.Errorf("%w: site user for %s has no id", domain.ErrRemoteOperation, login)
	}
	c.user.id = ref.ID
	return ref.ID, nil
}

// resolvePeople rewrites the declared person fields of a payload, those
// carrying a domain.PersonValue, into site user ids. Emails are resolved
// through the handle; a field that resolves to nothing is removed. Other
// fields are left alone even when their name ends in "Id".
func (c *Client) resolvePeople(ctx context.Context, h domain.EndpointHandle, fields domain.Record) {
	for name, value := range fields {
		person, ok := value.(domain.PersonValue)
		if !ok {
			continue
		}

		resolved := make([]any, 0, len(person.IDs))
		for _, id := range person.IDs {
			email, ok := id.(string)
			if !ok {
				resolved = append(resolved, id)
				continue
			}
			user, err := retry.Do(ctx, func(ctx context.Context) (domain.PersonRef, error) {
				return h.EnsureUser(ctx, email)
			}, c.retryOptions()...)
			if err != nil || user.ID <= 0 {
				warn(domain.NormalizationWarning{Field: name, Reason: "user could not be resolved", Value: email}, err)
				continue
			}
			resolved = append(resolved, user.ID)
		}

		switch {
		case len(resolved) == 0:
			warn(domain.NormalizationWarning{Field: name, Reason: "no identifiers", Value: person.IDs}, nil)
			delete(fields, name)
		case person.Multi:
			fields[name] = resolved
		default:
			fields[name] = resolved[0]
		}
	}
}

func warn(w domain.NormalizationWarning, err error) {
	slog.Warn("normalization warning", "field", w.Field, "reason", w.Reason, "value", w.Value, "error", err)
}
