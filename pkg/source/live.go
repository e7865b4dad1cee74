package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Live feeds a camera agent from externally published observation
// bundles on obs.<camera_id>.
type Live struct {
	cameraID string
	sub      *nats.Subscription
	msgs     chan *nats.Msg
}

// NewLive subscribes to the camera's observation subject.
func NewLive(nc *nats.Conn, cameraID string) (*Live, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe("obs."+cameraID, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribing to observations for %s: %w", cameraID, err)
	}
	return &Live{cameraID: cameraID, sub: sub, msgs: msgs}, nil
}

// Next blocks for the next published bundle. Payloads that do not parse
// return an error; the caller logs and moves on to the next tick.
func (l *Live) Next(ctx context.Context) (messages.ObservationBundle, error) {
	select {
	case <-ctx.Done():
		return messages.ObservationBundle{}, ctx.Err()
	case msg, ok := <-l.msgs:
		if !ok {
			return messages.ObservationBundle{}, fmt.Errorf("observation feed for %s closed", l.cameraID)
		}
		var b messages.ObservationBundle
		if err := json.Unmarshal(msg.Data, &b); err != nil {
			return messages.ObservationBundle{}, fmt.Errorf("unparseable observation bundle: %w", err)
		}
		return b, nil
	}
}

// Close unsubscribes from the observation feed.
func (l *Live) Close() error {
	return l.sub.Unsubscribe()
}
