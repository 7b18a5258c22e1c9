package liststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/heron/internal/domain"
)

// Site is the handle for one site of the store.
type Site struct {
	store *Store
	url   string
	key   string
	actor domain.PersonRef
}

var _ domain.EndpointHandle = (*Site)(nil)

// Fields the store manages itself. Writes to them are ignored.
var managedFields = map[string]bool{
	"Id": true, "ID": true, "id": true,
	"Created": true, "Modified": true,
	"AuthorId": true, "EditorId": true, "Author": true, "Editor": true,
	"VersionLabel": true, "VersionId": true,
}

type storedItem struct {
	id       int
	fields   string
	authorID int
	editorID int
	created  string
	modified string
	version  int
}

func (it storedItem) record() (domain.Record, error) {
	r := domain.Record{}
	if err := json.Unmarshal([]byte(it.fields), &r); err != nil {
		return nil, fmt.Errorf("item %d: corrupt fields: %w", it.id, err)
	}
	r["Id"] = it.id
	r["Created"] = it.created
	r["Modified"] = it.modified
	r["VersionLabel"] = versionLabel(it.version)
	if it.authorID > 0 {
		r["AuthorId"] = it.authorID
	}
	if it.editorID > 0 {
		r["EditorId"] = it.editorID
	}
	return r, nil
}

func versionLabel(v int) string {
	return fmt.Sprintf("%d.0", v)
}

// URL returns the site URL.
func (s *Site) URL() string { return s.url }

const selectItem = `SELECT id, fields, author_id, editor_id, created, modified, version FROM list_items`

func scanItem(sc interface{ Scan(...any) error }) (storedItem, error) {
	var it storedItem
	err := sc.Scan(&it.id, &it.fields, &it.authorID, &it.editorID, &it.created, &it.modified, &it.version)
	return it, err
}

// Items runs a query against a list. Filtering, ordering and the page
// limit are applied after the rows are loaded.
func (s *Site) Items(ctx context.Context, list domain.CollectionRef, q domain.Query) ([]domain.Record, error) {
	var match func(domain.Record) bool
	if strings.TrimSpace(q.Filter) != "" {
		m, err := s.store.filter(q.Filter)
		if err != nil {
			return nil, err
		}
		match = m
	}
	keys, err := parseOrderBy(q.OrderBy)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, s.store.rebind(selectItem+` WHERE site = ? AND list = ? ORDER BY id`), s.key, string(list))
	if err != nil {
		return nil, err
	}
	var items []storedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(items))
	for _, it := range items {
		r, err := it.record()
		if err != nil {
			return nil, err
		}
		if match != nil && !match(r) {
			continue
		}
		records = append(records, r)
	}

	sortRecords(records, keys)
	if q.Top > 0 && len(records) > q.Top {
		records = records[:q.Top]
	}
	return s.shape(ctx, records, q.Select, q.Expand)
}

// Item reads one row.
func (s *Site) Item(ctx context.Context, list domain.CollectionRef, id int, opts domain.ReadOptions) (domain.Record, error) {
	it, err := scanItem(s.store.db.QueryRowContext(ctx, s.store.rebind(selectItem+` WHERE site = ? AND list = ? AND id = ?`), s.key, string(list), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s item %d", domain.ErrNotFound, list, id)
	}
	if err != nil {
		return nil, err
	}
	r, err := it.record()
	if err != nil {
		return nil, err
	}
	out, err := s.shape(ctx, []domain.Record{r}, opts.Select, opts.Expand)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func storable(fields domain.Record) domain.Record {
	out := make(domain.Record, len(fields))
	for k, v := range fields {
		if managedFields[k] || strings.HasPrefix(k, "odata.") || k == "__metadata" {
			continue
		}
		out[k] = v
	}
	return out
}

// AddItem creates a row and echoes it back with its id.
func (s *Site) AddItem(ctx context.Context, list domain.CollectionRef, fields domain.Record) (domain.Record, error) {
	actor, err := s.actorID(ctx)
	if err != nil {
		return nil, err
	}
	data := storable(fields)
	for k, v := range data {
		if v == nil {
			delete(data, k)
		}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	now := s.store.timestamp()
	var it storedItem
	err = s.store.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.store.nextID(ctx, tx, s.key, list)
		if err != nil {
			return err
		}
		it = storedItem{id: id, fields: string(payload), authorID: actor, editorID: actor, created: now, modified: now, version: 1}
		if _, err := tx.ExecContext(ctx, s.store.rebind(`
			INSERT INTO list_items (site, list, id, fields, author_id, editor_id, created, modified, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), s.key, string(list), it.id, it.fields, it.authorID, it.editorID, it.created, it.modified, it.version); err != nil {
			return err
		}
		return s.snapshot(ctx, tx, list, it)
	})
	if err != nil {
		return nil, err
	}
	return it.record()
}

// UpdateItem merges fields into a row. A nil value clears the field.
func (s *Site) UpdateItem(ctx context.Context, list domain.CollectionRef, id int, fields domain.Record) error {
	actor, err := s.actorID(ctx)
	if err != nil {
		return err
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		it, err := scanItem(tx.QueryRowContext(ctx, s.store.rebind(selectItem+` WHERE site = ? AND list = ? AND id = ?`), s.key, string(list), id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s item %d", domain.ErrNotFound, list, id)
		}
		if err != nil {
			return err
		}

		current := domain.Record{}
		if err := json.Unmarshal([]byte(it.fields), &current); err != nil {
			return fmt.Errorf("item %d: corrupt fields: %w", id, err)
		}
		for k, v := range storable(fields) {
			if v == nil {
				delete(current, k)
				continue
			}
			current[k] = v
		}
		payload, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}

		it.fields = string(payload)
		it.version++
		it.modified = s.store.timestamp()
		if actor > 0 {
			it.editorID = actor
		}
		if _, err := tx.ExecContext(ctx, s.store.rebind(`
			UPDATE list_items SET fields = ?, editor_id = ?, modified = ?, version = ?
			WHERE site = ? AND list = ? AND id = ?
		`), it.fields, it.editorID, it.modified, it.version, s.key, string(list), id); err != nil {
			return err
		}
		return s.snapshot(ctx, tx, list, it)
	})
}

// DeleteItem removes a row and its history.
func (s *Site) DeleteItem(ctx context.Context, list domain.CollectionRef, id int) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.store.rebind(`DELETE FROM list_items WHERE site = ? AND list = ? AND id = ?`), s.key, string(list), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s item %d", domain.ErrNotFound, list, id)
		}
		_, err = tx.ExecContext(ctx, s.store.rebind(`DELETE FROM list_item_versions WHERE site = ? AND list = ? AND id = ?`), s.key, string(list), id)
		return err
	})
}

func (s *Site) snapshot(ctx context.Context, tx *sql.Tx, list domain.CollectionRef, it storedItem) error {
	_, err := tx.ExecContext(ctx, s.store.rebind(`
		INSERT INTO list_item_versions (site, list, id, version, fields, editor_id, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), s.key, string(list), it.id, it.version, it.fields, it.editorID, it.modified)
	return err
}

// Versions returns every stored revision of a row, newest first.
func (s *Site) Versions(ctx context.Context, list domain.CollectionRef, id int, opts domain.ReadOptions) ([]domain.Record, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.rebind(`
		SELECT version, fields, editor_id, modified FROM list_item_versions
		WHERE site = ? AND list = ? AND id = ?
		ORDER BY version DESC
	`), s.key, string(list), id)
	if err != nil {
		return nil, err
	}
	var versions []storedItem
	for rows.Next() {
		it := storedItem{id: id}
		if err := rows.Scan(&it.version, &it.fields, &it.editorID, &it.modified); err != nil {
			rows.Close()
			return nil, err
		}
		versions = append(versions, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s item %d", domain.ErrNotFound, list, id)
	}

	records := make([]domain.Record, 0, len(versions))
	for _, it := range versions {
		r, err := it.record()
		if err != nil {
			return nil, err
		}
		delete(r, "Created")
		r["VersionId"] = it.version * 512
		records = append(records, r)
	}

	selected := opts.Select
	if len(selected) > 0 {
		selected = append(append([]string(nil), selected...), "VersionLabel", "VersionId", "Modified", "EditorId")
	}
	return s.shape(ctx, records, selected, opts.Expand)
}
