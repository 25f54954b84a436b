package client

import (
	"context"

	"github.com/dmitrijs2005/casekeeper/internal/client/models"
)

// Pinger reports whether the server is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Transport delivers operations to the server.
type Transport interface {
	Pinger
	Send(ctx context.Context, op models.Operation) error
}
