package events

import (
	"sync"
	"time"
)

// EventType represents the type of event emitted by the core.
type EventType string

const (
	EventDownloadStarted   EventType = "download.started"
	EventDownloadProgress  EventType = "download.progress"
	EventDownloadCompleted EventType = "download.completed"
	EventValidateStarted   EventType = "validate.started"
	EventValidateCompleted EventType = "validate.completed"
	EventExtractStarted    EventType = "extract.started"
	EventExtractCompleted  EventType = "extract.completed"
	EventStageStarted      EventType = "stage.started"
	EventStageCompleted    EventType = "stage.completed"
	EventCommitStarted     EventType = "commit.started"
	EventCommitCompleted   EventType = "commit.completed"
	EventRollbackStarted   EventType = "rollback.started"
	EventRollbackCompleted EventType = "rollback.completed"
	EventGCStarted         EventType = "gc.started"
	EventGCCompleted       EventType = "gc.completed"
	EventVerifyStarted     EventType = "verify.started"
	EventDiscrepancyFound  EventType = "verify.discrepancy"
	EventHealAttempted     EventType = "verify.heal"
	EventVerifyCompleted   EventType = "verify.completed"
	EventOperationFailed   EventType = "operation.failed"
)

// Stage identifies which pipeline stage a progress event describes.
type Stage string

const (
	StageDownload  Stage = "download"
	StageValidate  Stage = "validate"
	StageExtract   Stage = "extract"
	StageStage     Stage = "stage"
	StageCommit    Stage = "commit"
	StageRollback  Stage = "rollback"
	StageGC        Stage = "gc"
	StageVerify    Stage = "verify"
)

// Progress carries the fields spec.md §6 requires of progress events.
type Progress struct {
	OperationID string
	Stage       Stage
	Current     uint64
	Total       uint64
	Speed       *float64       // bytes/second, nil when not applicable
	ETA         *time.Duration // nil when not estimable
}

// Event represents a single occurrence the core wants to surface to a caller.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Package   string // name@version, empty when not package-scoped
	Progress  *Progress
	Metadata  map[string]string
}

// Subscriber is a bounded channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. Publish never
// blocks the caller past the broker's own internal buffer (§6: "a typed,
// bounded channel owned by the caller") and slow subscribers drop events
// rather than stall producers, matching the pipeline's non-blocking
// suspension-point model (§5).
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop rather than stall the pipeline
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
