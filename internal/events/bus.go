// Package events fans scanner events out to in-process subscribers.
package events

import (
	"sync"

	"go.uber.org/zap"

	"barcode-service/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// Bus manages event distribution. Publish never blocks: events are dropped
// when the queue or a subscriber is full.
type Bus struct {
	subscribers map[model.EventType][]chan model.ScannerEvent
	events      chan model.ScannerEvent
	mutex       sync.RWMutex
	closed      bool
	done        chan struct{}
	logger      *zap.Logger
}

// NewBus creates a new event bus with the given queue size
func NewBus(queueSize int, logger *zap.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Bus{
		subscribers: make(map[model.EventType][]chan model.ScannerEvent),
		events:      make(chan model.ScannerEvent, queueSize),
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start distributes events until Stop is called
func (b *Bus) Start() {
	defer close(b.done)
	for event := range b.events {
		b.distribute(event)
	}
}

// Stop closes the queue and every subscriber channel once queued events are delivered
func (b *Bus) Stop() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	close(b.events)
	b.mutex.Unlock()

	<-b.done

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for eventType, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub)
		}
		delete(b.subscribers, eventType)
	}
}

// Publish queues an event
func (b *Bus) Publish(event model.ScannerEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("scanner", event.Scanner),
		)
	}
}

// Subscribe returns a channel receiving events of one type, or AllEvents
func (b *Bus) Subscribe(eventType model.EventType) <-chan model.ScannerEvent {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subscriber := make(chan model.ScannerEvent, 100)
	if b.closed {
		close(subscriber)
		return subscriber
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
	return subscriber
}

// Unsubscribe removes and closes a subscriber channel
func (b *Bus) Unsubscribe(eventType model.EventType, sub <-chan model.ScannerEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.subscribers[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			close(candidate)
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) distribute(event model.ScannerEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	b.deliver(b.subscribers[event.EventType], event)
	b.deliver(b.subscribers[AllEvents], event)
}

func (b *Bus) deliver(subscribers []chan model.ScannerEvent, event model.ScannerEvent) {
	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			b.logger.Debug("Subscriber is slow, skipping event",
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}
