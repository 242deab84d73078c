// Package resilience protects the pipeline from collaborators outside the
// process: Retry backs off and retries transient failures, such as fetching
// a remote source, and Breaker stops calling one that keeps failing, such as
// an unreachable status store.
//
//	path, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() (string, error) {
//	    return fetch(ctx, url)
//	})
//
// AppErrors are retried only when marked retryable.
package resilience
