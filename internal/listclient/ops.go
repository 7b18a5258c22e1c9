package listclient

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/normalize"
	"github.com/opensource-finance/heron/internal/retry"
	"go.opentelemetry.io/otel/attribute"
)

var errUnidentified = errors.New("created item could not be identified")

var itemRefPattern = regexp.MustCompile(`(?i)items\((\d+)\)`)

// FetchAll runs one paged query. Top defaults to and is capped at
// domain.MaxPageSize. Failures after retries come back as
// *domain.RemoteOperationError.
func (c *Client) FetchAll(ctx context.Context, ref domain.CollectionRef, q domain.Query) ([]domain.Record, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	if q.Top <= 0 || q.Top > domain.MaxPageSize {
		q.Top = domain.MaxPageSize
	}

	h, err := c.handle(ref)
	if err != nil {
		return nil, err
	}

	ctx, op := c.begin(ctx, "fetch", ref, attribute.Int("top", q.Top))
	rows, err := retry.Do(ctx, func(ctx context.Context) ([]domain.Record, error) {
		return h.Items(ctx, ref, q)
	}, c.retryOptions()...)
	op.end(err)
	if err != nil {
		return nil, remoteError("fetch", ref, err)
	}
	if rows == nil {
		rows = []domain.Record{}
	}
	return rows, nil
}

// Create writes a new row and resolves its identifier. A row whose id
// cannot be established is reported as failed even if it was stored.
// The returned error is set only for invalid arguments and a missing
// caller context, both reported before any I/O.
func (c *Client) Create(ctx context.Context, ref domain.CollectionRef, item domain.Record, opts domain.ReadOptions) (domain.Result, error) {
	if err := checkRef(ref); err != nil {
		return domain.Result{}, err
	}
	if err := checkItem(item); err != nil {
		return domain.Result{}, err
	}

	h, err := c.handle(ref)
	if err != nil {
		return domain.Result{}, err
	}

	ctx, op := c.begin(ctx, "create", ref)
	result, err := c.create(ctx, h, ref, item, opts)
	op.end(err)
	if err != nil {
		return domain.Failed(remoteError("create", ref, err)), nil
	}
	return result, nil
}

func (c *Client) create(ctx context.Context, h domain.EndpointHandle, ref domain.CollectionRef, item domain.Record, opts domain.ReadOptions) (domain.Result, error) {
	fields := c.prepare(ctx, h, item)

	created, err := retry.Do(ctx, func(ctx context.Context) (domain.Record, error) {
		return h.AddItem(ctx, ref, fields)
	}, c.retryOptions()...)
	if err != nil {
		return domain.Result{}, err
	}

	id, confidence, row := c.identify(ctx, h, ref, created)
	if id == 0 {
		return domain.Result{}, errUnidentified
	}

	result := domain.Result{Success: true, ItemID: id, Confidence: confidence, Item: row}
	if result.Item == nil {
		result.Item = created.Clone()
		result.Item["Id"] = id
	}
	if !opts.IsZero() {
		if shaped, err := c.read(ctx, h, ref, id, opts); err == nil {
			result.Item = shaped
		} else {
			slog.Warn("re-read after create failed", "collection", ref, "id", id, "error", err)
		}
	}
	return result, nil
}

// identify resolves a created row's id: from the response, then from an
// item reference confirmed by a read, then by probing the newest row.
func (c *Client) identify(ctx context.Context, h domain.EndpointHandle, ref domain.CollectionRef, created domain.Record) (int, domain.Confidence, domain.Record) {
	if id := created.ID(); id > 0 {
		return id, domain.ConfidenceConfirmed, nil
	}

	if id := ItemRefID(created); id > 0 {
		row, err := c.read(ctx, h, ref, id, domain.ReadOptions{})
		if err == nil && row.ID() == id {
			return id, domain.ConfidenceConfirmed, row
		}
		slog.Warn("could not confirm created item reference", "collection", ref, "id", id, "error", err)
	}

	rows, err := retry.Do(ctx, func(ctx context.Context) ([]domain.Record, error) {
		return h.Items(ctx, ref, domain.Query{OrderBy: "Created desc", Top: 1})
	}, c.retryOptions()...)
	if err != nil || len(rows) == 0 || rows[0].ID() == 0 {
		slog.Warn("newest-item probe found nothing", "collection", ref, "error", err)
		return 0, "", nil
	}
	slog.Warn("created item identified by newest-item probe", "collection", ref, "id", rows[0].ID())
	return rows[0].ID(), domain.ConfidenceProbed, rows[0]
}

// ItemRefID extracts the row id from an item reference such as
// ".../items(42)" in odata.id, odata.editLink or __metadata.uri.
func ItemRefID(r domain.Record) int {
	candidates := []any{r["odata.id"], r["odata.editLink"]}
	if meta, ok := r["__metadata"].(map[string]any); ok {
		candidates = append(candidates, meta["uri"], meta["id"])
	}
	for _, v := range candidates {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if m := itemRefPattern.FindStringSubmatch(s); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil && id > 0 {
				return id
			}
		}
	}
	return 0
}

// Update merges item into row id. The returned error is set only for
// invalid arguments and a missing caller context.
func (c *Client) Update(ctx context.Context, ref domain.CollectionRef, id int, item domain.Record, opts domain.ReadOptions) (domain.Result, error) {
	if err := checkRef(ref); err != nil {
		return domain.Result{}, err
	}
	if err := checkID(id); err != nil {
		return domain.Result{}, err
	}
	if err := checkItem(item); err != nil {
		return domain.Result{}, err
	}

	h, err := c.handle(ref)
	if err != nil {
		return domain.Result{}, err
	}

	ctx, op := c.begin(ctx, "update", ref, attribute.Int("id", id))
	fields := c.prepare(ctx, h, item)
	err = retry.Run(ctx, func(ctx context.Context) error {
		return h.UpdateItem(ctx, ref, id, fields)
	}, c.retryOptions()...)
	op.end(err)
	if err != nil {
		res := domain.Failed(remoteError("update", ref, err))
		res.ItemID = id
		return res, nil
	}

	result := domain.Result{Success: true, ItemID: id, Confidence: domain.ConfidenceConfirmed}
	if !opts.IsZero() {
		if shaped, err := c.read(ctx, h, ref, id, opts); err == nil {
			result.Item = shaped
		} else {
			slog.Warn("re-read after update failed", "collection", ref, "id", id, "error", err)
		}
	}
	return result, nil
}

// Delete removes row id. The returned error is set only for invalid
// arguments and a missing caller context.
func (c *Client) Delete(ctx context.Context, ref domain.CollectionRef, id int) (domain.Result, error) {
	if err := checkRef(ref); err != nil {
		return domain.Result{}, err
	}
	if err := checkID(id); err != nil {
		return domain.Result{}, err
	}

	h, err := c.handle(ref)
	if err != nil {
		return domain.Result{}, err
	}

	ctx, op := c.begin(ctx, "delete", ref, attribute.Int("id", id))
	err = retry.Run(ctx, func(ctx context.Context) error {
		return h.DeleteItem(ctx, ref, id)
	}, c.retryOptions()...)
	op.end(err)
	if err != nil {
		res := domain.Failed(remoteError("delete", ref, err))
		res.ItemID = id
		return res, nil
	}
	return domain.Result{Success: true, ItemID: id}, nil
}

// VersionHistory returns the revisions of row id. Remote failures yield an
// empty slice; a missing caller context is returned as an error.
func (c *Client) VersionHistory(ctx context.Context, ref domain.CollectionRef, id int, opts domain.ReadOptions) ([]domain.Record, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}

	h, err := c.handle(ref)
	if err != nil {
		return nil, err
	}

	ctx, op := c.begin(ctx, "versions", ref, attribute.Int("id", id))
	versions, err := retry.Do(ctx, func(ctx context.Context) ([]domain.Record, error) {
		return h.Versions(ctx, ref, id, opts)
	}, c.retryOptions()...)
	op.end(err)
	if err != nil {
		slog.Warn("version history unavailable", "collection", ref, "id", id, "error", err)
		return []domain.Record{}, nil
	}
	if versions == nil {
		versions = []domain.Record{}
	}
	return versions, nil
}

func (c *Client) read(ctx context.Context, h domain.EndpointHandle, ref domain.CollectionRef, id int, opts domain.ReadOptions) (domain.Record, error) {
	return retry.Do(ctx, func(ctx context.Context) (domain.Record, error) {
		return h.Item(ctx, ref, id, opts)
	}, c.retryOptions()...)
}

// prepare sanitizes a payload and resolves person identifiers.
func (c *Client) prepare(ctx context.Context, h domain.EndpointHandle, item domain.Record) domain.Record {
	fields := normalize.Sanitize(item)
	c.resolvePeople(ctx, h, fields)
	return fields
}
