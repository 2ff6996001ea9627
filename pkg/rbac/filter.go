package rbac

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FilterReadable returns the candidates the current actor may read, in input order.
// Denial is an expected outcome here and only drops the candidate; any other error
// aborts the whole filter.
func FilterReadable[T any](ctx context.Context, ev *Evaluator, orgID, itemtypeID int64, candidates []T, idOf func(T) int64) ([]T, error) {
	if len(candidates) == 0 {
		return []T{}, nil
	}

	allowed := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ev.filterConcurrency)

	for i, c := range candidates {
		i, id := i, idOf(c)
		g.Go(func() error {
			err := ev.MayRead(gctx, orgID, itemtypeID, &id)
			switch {
			case err == nil:
				allowed[i] = true
			case IsAccessDenied(err):
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(candidates))
	for i, c := range candidates {
		if allowed[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

// FilterReadableIDs is FilterReadable over bare item ids
func (e *Evaluator) FilterReadableIDs(ctx context.Context, orgID, itemtypeID int64, itemIDs []int64) ([]int64, error) {
	return FilterReadable(ctx, e, orgID, itemtypeID, itemIDs, func(id int64) int64 { return id })
}
