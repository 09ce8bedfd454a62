package mapretry

import "context"

// MapRetry applies fn to every item and retries each failure exactly once,
// with no delay, after all items have had their first attempt. Failed items
// are retried last-failed first. It returns one result per item: first the
// items that succeeded immediately, in input order, then the outcome of
// each retry.
//
// MapRetry suits small in-memory batches where a single quick second
// chance is enough. Use an Engine for retry budgets, delays or ordering.
func MapRetry[In, Out any](ctx context.Context, items []In, fn Func[In, Out]) []Result[In, Out] {
	const name Name = "map-retry"

	results := make([]Result[In, Out], 0, len(items))
	failed := make([]int, 0)

	for i, item := range items {
		out, err := invoke(ctx, name, fn, duplicate(item))
		if err != nil {
			failed = append(failed, i)
			continue
		}
		results = append(results, Result[In, Out]{Input: item, Value: out, Index: i, Attempts: 1})
	}

	for j := len(failed) - 1; j >= 0; j-- {
		i := failed[j]
		out, err := invoke(ctx, name, fn, duplicate(items[i]))
		results = append(results, Result[In, Out]{
			Input:    items[i],
			Value:    out,
			Err:      err,
			Index:    i,
			Attempts: 2,
		})
	}
	return results
}
