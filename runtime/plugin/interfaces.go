package plugin

import (
	"github.com/appsemble/apprunner/runtime"
	"github.com/appsemble/apprunner/runtime/actions"
)

// Lifecycle plugins hold resources between host start and stop. If
// Initialize fails the host does not start.
type Lifecycle = runtime.Lifecycle

// Requester performs the HTTP requests of request, email and notify actions.
// Error statuses are returned as responses; only transport failures are
// errors.
type Requester = actions.Requester

// Storage is the key/value store behind the storage.* actions. Get reports
// whether the key exists; a stored nil is a value.
type Storage = actions.Storage

type (
	Request  = actions.Request
	Response = actions.Response
)
