package liststore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
)

const claimsPrefix = "i:0#.f|membership|"

type siteUser struct {
	id    int
	email string
	title string
}

func (u siteUser) ref() domain.PersonRef {
	return domain.PersonRef{ID: u.id, Email: u.email, LoginName: claimsPrefix + u.email, DisplayName: u.title}
}

// expanded is the shape an expanded person field takes on the wire.
func (u siteUser) expanded() map[string]any {
	return map[string]any{"Id": u.id, "Title": u.title, "EMail": u.email, "Name": claimsPrefix + u.email}
}

// loginEmail strips a claims prefix and lower-cases what is left.
func loginEmail(login string) string {
	login = strings.TrimSpace(login)
	if i := strings.LastIndex(login, "|"); i >= 0 {
		login = login[i+1:]
	}
	return strings.ToLower(login)
}

// EnsureUser returns the site user for a login or email, registering it
// on first use.
func (s *Site) EnsureUser(ctx context.Context, login string) (domain.PersonRef, error) {
	email := loginEmail(login)
	if !strings.Contains(email, "@") {
		return domain.PersonRef{}, fmt.Errorf("%w: %q is not a user login", domain.ErrNotFound, login)
	}

	var user siteUser
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.store.rebind(`SELECT id, email, title FROM site_users WHERE site = ? AND email = ?`), s.key, email).
			Scan(&user.id, &user.email, &user.title)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx, s.store.rebind(`SELECT MAX(id) FROM site_users WHERE site = ?`), s.key).Scan(&last); err != nil {
			return err
		}
		user = siteUser{id: int(last.Int64) + 1, email: email, title: strings.SplitN(email, "@", 2)[0]}
		_, err = tx.ExecContext(ctx, s.store.rebind(`INSERT INTO site_users (site, id, email, title) VALUES (?, ?, ?, ?)`),
			s.key, user.id, user.email, user.title)
		return err
	})
	if err != nil {
		return domain.PersonRef{}, err
	}
	return user.ref(), nil
}

func (s *Site) users(ctx context.Context) (map[int]siteUser, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.rebind(`SELECT id, email, title FROM site_users WHERE site = ?`), s.key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make(map[int]siteUser)
	for rows.Next() {
		var u siteUser
		if err := rows.Scan(&u.id, &u.email, &u.title); err != nil {
			return nil, err
		}
		users[u.id] = u
	}
	return users, rows.Err()
}

// actorID resolves the user writes are attributed to. Zero means anonymous.
func (s *Site) actorID(ctx context.Context) (int, error) {
	if s.actor.ID > 0 {
		return s.actor.ID, nil
	}
	login := s.actor.Email
	if login == "" {
		login = s.actor.LoginName
	}
	if login == "" {
		return 0, nil
	}
	ref, err := s.EnsureUser(ctx, login)
	if err != nil {
		return 0, err
	}
	return ref.ID, nil
}
