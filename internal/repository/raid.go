package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/listclient"
	"github.com/opensource-finance/heron/internal/mapping"
	"github.com/opensource-finance/heron/internal/normalize"
)

// RAIDRepository serves the RAID log. An item is a group of rows sharing
// a RaidId, one row per action type.
type RAIDRepository struct {
	*collection
}

// NewRAID returns the RAID repository of a session.
func NewRAID(client *listclient.Client, opts ...Option) (*RAIDRepository, error) {
	base, err := newCollection(client, domain.CollectionRAID, "RAID", mapping.RAIDReadOptions(), opts)
	if err != nil {
		return nil, err
	}
	return &RAIDRepository{collection: base}, nil
}

// List returns every RAID item, rows folded into their groups.
func (r *RAIDRepository) List(ctx context.Context, useCache bool) ([]mapping.RAIDItem, error) {
	rows, err := r.records(ctx, useCache)
	if err != nil {
		return nil, err
	}
	items := mapping.GroupRAID(rows)
	if items == nil {
		items = []mapping.RAIDItem{}
	}
	return items, nil
}

// Get reads one item by RaidId. A numeric key also matches the row id of
// an item stored without a RaidId.
func (r *RAIDRepository) Get(ctx context.Context, key string) (mapping.RAIDItem, error) {
	rows, err := r.group(ctx, key)
	if err != nil {
		return mapping.RAIDItem{}, err
	}
	if len(rows) == 0 {
		return mapping.RAIDItem{}, fmt.Errorf("%w: raid item %q", domain.ErrNotFound, key)
	}
	return mapping.GroupRAID(rows)[0], nil
}

func (r *RAIDRepository) group(ctx context.Context, key string) ([]domain.Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: raid id is required", domain.ErrInvalidArgument)
	}
	rows, err := r.query(ctx, textFilter("RaidId", key))
	if err != nil || len(rows) > 0 {
		return rows, err
	}
	if id := domain.PositiveInt(key); id > 0 {
		return r.query(ctx, idFilter(id))
	}
	return nil, nil
}

// Create writes one row per distinct action type. A missing RaidId is
// generated. If any row fails, the rows already written are removed.
func (r *RAIDRepository) Create(ctx context.Context, item mapping.RAIDItem) (Outcome[mapping.RAIDItem], error) {
	if strings.TrimSpace(item.Title) == "" {
		return Outcome[mapping.RAIDItem]{}, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(item.RaidID) == "" {
		item.RaidID = uuid.NewString()
	}

	results, err := r.client.SaveBatch(ctx, r.ref, mapping.RAIDRows(item), 0)
	if err != nil {
		return Outcome[mapping.RAIDItem]{}, err
	}

	confidence := domain.ConfidenceConfirmed
	var written []int
	var failures []string
	for _, res := range results {
		if !res.Success {
			failures = append(failures, res.Error)
			continue
		}
		written = append(written, res.ItemID)
		if res.Confidence == domain.ConfidenceProbed {
			confidence = domain.ConfidenceProbed
		}
	}
	if len(failures) > 0 {
		r.rollback(ctx, written)
		return failed[mapping.RAIDItem](strings.Join(failures, "; ")), nil
	}

	item.ID = written[0]
	saved := r.reload(ctx, item)
	r.changed(ctx, ActionCreated, saved.RaidID, saved.Title, raidRecipients(saved), saved)
	return Outcome[mapping.RAIDItem]{Success: true, Item: saved, Confidence: confidence}, nil
}

func (r *RAIDRepository) rollback(ctx context.Context, ids []int) {
	for _, id := range ids {
		res, err := r.client.Delete(ctx, r.ref, id)
		if err == nil && !res.Success {
			err = errors.New(res.Error)
		}
		if err != nil {
			slog.Error("orphan RAID row left after failed create",
				"id", id,
				"error", err,
			)
		}
	}
	if len(ids) > 0 {
		r.memo.Invalidate(ctx)
	}
}

// reload reads the stored group back, falling back to item.
func (r *RAIDRepository) reload(ctx context.Context, item mapping.RAIDItem) mapping.RAIDItem {
	rows, err := r.group(ctx, item.RaidID)
	if err != nil || len(rows) == 0 {
		slog.Warn("re-read of RAID group failed", "raid_id", item.RaidID, "error", err)
		return item
	}
	return mapping.GroupRAID(rows)[0]
}

// Update reconciles the stored rows of the group with item: rows of kept
// action types are updated in place, missing ones created and dropped
// ones deleted.
func (r *RAIDRepository) Update(ctx context.Context, item mapping.RAIDItem) (Outcome[mapping.RAIDItem], error) {
	key := strings.TrimSpace(item.RaidID)
	if key == "" && item.ID > 0 {
		key = strconv.Itoa(item.ID)
	}
	existing, err := r.group(ctx, key)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return Outcome[mapping.RAIDItem]{}, err
	}
	if err != nil {
		return failed[mapping.RAIDItem](err.Error()), nil
	}
	if len(existing) == 0 {
		return Outcome[mapping.RAIDItem]{}, fmt.Errorf("%w: raid item %q", domain.ErrNotFound, key)
	}

	if item.RaidID = existing[0].String("RaidId"); item.RaidID == "" {
		item.RaidID = uuid.NewString()
	}
	plan := mapping.PlanRiskUpdate(existing, item)

	var failures []string
	record := func(res domain.Result, err error) {
		switch {
		case err != nil:
			failures = append(failures, err.Error())
		case !res.Success:
			failures = append(failures, res.Error)
		}
	}
	for _, u := range plan.Updates {
		record(r.client.Update(ctx, r.ref, u.ID, u.Fields, domain.ReadOptions{}))
	}
	for _, row := range plan.Creates {
		record(r.client.Create(ctx, r.ref, row, domain.ReadOptions{}))
	}
	for _, id := range plan.Deletes {
		record(r.client.Delete(ctx, r.ref, id))
	}

	if len(failures) > 0 {
		r.memo.Invalidate(ctx)
		return failed[mapping.RAIDItem](strings.Join(failures, "; ")), nil
	}

	saved := r.reload(ctx, item)
	r.changed(ctx, ActionUpdated, saved.RaidID, saved.Title, raidRecipients(saved), saved)
	return Outcome[mapping.RAIDItem]{Success: true, Item: saved, Confidence: domain.ConfidenceConfirmed}, nil
}

// Delete removes every row of the group.
func (r *RAIDRepository) Delete(ctx context.Context, key string) (Outcome[mapping.RAIDItem], error) {
	rows, err := r.group(ctx, key)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return Outcome[mapping.RAIDItem]{}, err
	}
	if err != nil {
		return failed[mapping.RAIDItem](err.Error()), nil
	}
	if len(rows) == 0 {
		return Outcome[mapping.RAIDItem]{}, fmt.Errorf("%w: raid item %q", domain.ErrNotFound, key)
	}

	item := mapping.GroupRAID(rows)[0]
	var failures []string
	for _, row := range rows {
		res, err := r.client.Delete(ctx, r.ref, row.ID())
		if err != nil {
			failures = append(failures, err.Error())
		} else if !res.Success {
			failures = append(failures, res.Error)
		}
	}
	if len(failures) > 0 {
		r.memo.Invalidate(ctx)
		return failed[mapping.RAIDItem](strings.Join(failures, "; ")), nil
	}

	r.changed(ctx, ActionDeleted, item.RaidID, item.Title, raidRecipients(item), item)
	return Outcome[mapping.RAIDItem]{Success: true, Item: item, Confidence: domain.ConfidenceConfirmed}, nil
}

// History returns the versions of one row of a group.
func (r *RAIDRepository) History(ctx context.Context, id int) ([]Revision[mapping.RAIDItem], error) {
	versions, err := r.client.VersionHistory(ctx, r.ref, id, r.read)
	if err != nil {
		return nil, err
	}
	out := make([]Revision[mapping.RAIDItem], 0, len(versions))
	for _, v := range versions {
		out = append(out, revision(v, mapping.RAIDFromRow(v)))
	}
	return out, nil
}

func raidRecipients(item mapping.RAIDItem) []domain.PersonRef {
	groups := []normalize.People{item.Owner}
	for _, a := range item.Actions {
		groups = append(groups, a.Responsibility)
	}
	return recipients(groups...)
}
