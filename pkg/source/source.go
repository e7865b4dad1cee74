// Package source supplies observation bundles to a camera agent,
// either synthesized from a demo scenario or ingested from NATS.
package source

import (
	"context"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Source yields one observation bundle per camera tick. Next blocks
// until a bundle is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (messages.ObservationBundle, error)
}
