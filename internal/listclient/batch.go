package listclient

import (
	"context"

	"github.com/opensource-finance/heron/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SaveBatch creates items with at most batchSize writes in flight. Every
// item gets a result in input order; one failure does not stop the rest.
// A batchSize <= 0 uses the client default. A missing caller context
// fails the whole batch before any write.
func (c *Client) SaveBatch(ctx context.Context, ref domain.CollectionRef, items []domain.Record, batchSize int) ([]domain.Result, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	if _, err := c.handle(ref); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = c.batchSize
	}

	results := make([]domain.Result, len(items))
	var g errgroup.Group
	g.SetLimit(batchSize)
	for i, item := range items {
		g.Go(func() error {
			res, err := c.Create(ctx, ref, item, domain.ReadOptions{})
			if err != nil {
				res = domain.Failed(err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
