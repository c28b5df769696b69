package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Consumer reacts to events from the bus. Both internal/watch.Service and internal/binding.Service satisfy this via
// thin adapter methods, since their DispatchEdit/DispatchDelete signatures differ by event payload.
type Consumer interface {
	HandleEvent(ctx context.Context, event Event) error
}

// Dispatcher fans an Event out to every registered Consumer. Each consumer runs the event in its own goroutine,
// independently of the others: one consumer's failure or slowness never blocks or cancels another's handling of the
// same event, matching the requirement that consumer handlers run concurrently and independently per event.
type Dispatcher struct {
	mu        sync.RWMutex
	consumers []Consumer
	log       zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: logger}
}

// Subscribe registers consumer to receive every future event. Safe to call concurrently with dispatch: the consumer
// list is guarded by mu, and an event already being dispatched goes only to the consumers registered when it started.
func (d *Dispatcher) Subscribe(consumer Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumers = append(d.consumers, consumer)
}

// dispatch runs every registered consumer's HandleEvent concurrently, logging (never propagating) any error: the
// listener loop that calls this must keep running regardless of how a consumer's handler fares.
func (d *Dispatcher) dispatch(ctx context.Context, event Event) {
	d.mu.RLock()
	consumers := make([]Consumer, len(d.consumers))
	copy(consumers, d.consumers)
	d.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(consumers))
	for _, c := range consumers {
		go func(c Consumer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error().Interface("panic", r).Msg("event bus consumer panicked")
				}
			}()
			if err := c.HandleEvent(ctx, event); err != nil {
				d.log.Warn().Err(err).Msg("event bus consumer failed to handle event")
			}
		}(c)
	}
	wg.Wait()
}
