// Package runtime provides the node execution runtime for the Trestle plugin.
//
// The runtime turns a batch of input items into an ordered list of per-item
// results. A node supplies an ItemFunc that handles one item; the BatchExecutor
// drives it over the batch and applies the failure policy.
//
// # Key Components
//
// ExecuteContext: The host collaborator. It exposes the input items, per-item
// parameter resolution and the continue-on-fail flag.
//
// EmbeddedNode: The interface all nodes implement so a host runtime can process
// a single item through Process.
//
// BatchExecutor: Runs an ItemFunc for every item, either sequentially (the
// default) or on a bounded WorkerPool. Results are always slotted by the
// original item index, never by completion order.
//
// # Failure Policy
//
// Item failures are caught at the item boundary:
//
//   - continue-on-fail: the item contributes an error ItemResult and the batch
//     carries on, so len(results) == len(items).
//   - otherwise: the first failing item aborts the batch. Unstarted items are
//     cancelled, completed results are discarded and a *ProcessingError carrying
//     the item index is returned.
//
// # Example Usage
//
//	executor := runtime.NewBatchExecutor(runtime.DefaultBatchConfig())
//	results, err := executor.Run(ctx, node, ec.InputItems(), ec.ContinueOnFail(),
//	    func(ctx context.Context, index int, item runtime.Item) (interface{}, error) {
//	        return callRemote(ctx, item)
//	    })
package runtime
