package hardware

import (
	"context"
	"errors"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/connection"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Reconnection results recorded in metrics.
const (
	reconnectAttempt   = "attempt"
	reconnectRecovered = "recovered"
	reconnectFailed    = "failed"
)

// AttemptReconnection reconnects a device, waiting the backoff delay before
// each of at most maxAttempts connection attempts. A zero maxAttempts uses
// the orchestrator default. Only one reconnection runs per device; a second
// call while one is running returns ErrReconnectInProgress.
//
// Progress is published as reconnecting, reconnected and reconnectFailed
// events. Exhausting the attempts is terminal: the device stays
// disconnected until it is connected again explicitly.
func (o *Orchestrator) AttemptReconnection(ctx context.Context, id string, maxAttempts int) (connection.Result, error) {
	en, err := o.lookup(id)
	if err != nil {
		return connection.Result{}, err
	}
	if !en.reconnecting.CompareAndSwap(false, true) {
		return connection.Result{}, ErrReconnectInProgress
	}
	defer en.reconnecting.Store(false)

	if maxAttempts <= 0 {
		maxAttempts = o.maxAttempts
	}

	rc := connection.NewReconnector(o.sched, o.backoff)
	rc.OnAttempt(func(attempt int, delay time.Duration) {
		o.metrics.CountReconnect(id, reconnectAttempt)
		o.publish(id, model.EventReconnecting, model.Payload{
			"deviceType":  string(en.sim.Type()),
			"attempt":     attempt,
			"maxAttempts": maxAttempts,
			"delay":       delay.String(),
		})
		o.debugLog("reconnecting device", "device", id, "attempt", attempt, "delay", delay)
	})

	res, err := rc.Attempt(ctx, en.sim.Connect, maxAttempts)
	switch {
	case err == nil:
		o.metrics.CountReconnect(id, reconnectRecovered)
		o.publish(id, model.EventReconnected, model.Payload{
			"deviceType": string(en.sim.Type()),
			"attempts":   res.Attempts,
		})
		o.infoLog("device reconnected", "device", id, "attempts", res.Attempts)
	case errors.Is(err, connection.ErrReconnectExhausted):
		o.metrics.CountReconnect(id, reconnectFailed)
		msg := ""
		if res.LastErr != nil {
			msg = res.LastErr.Error()
		}
		o.publish(id, model.EventReconnectFailed, model.Payload{
			"deviceType": string(en.sim.Type()),
			"attempts":   res.Attempts,
			"error":      msg,
		})
		o.errorLog("device reconnection failed", "device", id, "attempts", res.Attempts, "error", res.LastErr)
	}
	return res, err
}

// publish appends an orchestrator event about device id.
func (o *Orchestrator) publish(id string, name model.EventName, payload model.Payload) {
	o.hist.Append(model.NewEvent(model.Orchestrator, id, name, payload, o.sched.Now()))
}
