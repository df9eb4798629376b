package http

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DoAll sends independent requests concurrently, at most limit at a time
// (no limit when limit <= 0). Responses are returned in input order. The first
// error cancels the requests still in flight and is returned.
func DoAll(ctx context.Context, c Client, method string, reqs []*Request, limit int) ([]*Response, error) {
	out := make([]*Response, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		g.Go(func() error {
			resp, err := c.Do(gctx, method, req)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
