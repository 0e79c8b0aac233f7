// Package resilience groups the fault-tolerance building blocks of the client core.
//
// The package supports:
//   - Circuit breakers for the remote store, push gateway, alert webhooks and database
//   - Retry policies with exponential backoff and jitter
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.RemoteStoreConfig())
//	resp, err := circuitbreaker.Call(cb, func() (*remote.Response, error) {
//	    return doRequest(ctx)
//	})
//
//	policy := retry.DefaultPolicy()
//	err := retry.Do(ctx, policy, isTransient, func(ctx context.Context) error {
//	    return performOperation(ctx)
//	})
package resilience
