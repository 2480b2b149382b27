package runtime

import "context"

// Lifecycle lets plugins open and release resources with the host. Initialize
// runs once after the plugin's Config has been prepared; Shutdown runs in
// reverse registration order when the host stops.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
