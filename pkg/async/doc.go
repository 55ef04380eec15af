// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection. Panics and failures
// are logged through the request logger carried by the context.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 10*time.Second, "invitation delivery", func(ctx context.Context) error {
//		return notifier.DeliverInvitation(ctx, invitation)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "bulk import", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return importRow(ctx, row)
//	})
//
// Batch: Concurrent batch processing with one result per item
//
//	errs := async.Batch(ctx, users, 4, "bulk user create", 10*time.Second, createUser)
//	for _, i := range async.Failed(errs) {
//		// errs[i] is the failure of users[i]
//	}
//
// # Use Cases
//
// Tenant user bulk operations (partial success reporting) and invitation
// delivery.
//
// # Related Packages
//
//   - pkg/tenants: Uses Batch for bulk operations and SafeGo for delivery
package async
