package domstyle

import "context"

// Node is an opaque handle to an element, owned by the Tree that returned
// it. Handles are only valid for the Tree that produced them.
type Node any

// Tree is the narrow capability the Reconciler needs: find nodes and write
// inline style properties. Implementations must not add, remove or reorder
// nodes as a side effect of either call.
type Tree interface {
	QueryAll(ctx context.Context, sel Selector) ([]Node, error)
	SetStyle(ctx context.Context, n Node, props Properties) error
}

// Watchable trees deliver a notification after structural changes
// (children inserted or removed anywhere under the mount point). Bursts may
// collapse into a single notification. The channel closes when ctx ends.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// HoverBinder trees can switch a node between two property sets on pointer
// enter and leave. BindHover must be safe to call on every pass for the same
// node; only the latest base and hover sets are kept.
type HoverBinder interface {
	BindHover(ctx context.Context, n Node, base, hover Properties) error
	Hovered(ctx context.Context, n Node) bool
}
