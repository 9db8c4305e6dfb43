package scraper

import (
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Reporter receives advisory notifications from the crawl worker.
type Reporter interface {
	OnProgress(progress models.Progress)
	OnStatus(message string)
}

// NopReporter discards every notification.
type NopReporter struct{}

func (NopReporter) OnProgress(models.Progress) {}

func (NopReporter) OnStatus(string) {}

// EventKind distinguishes progress from status events.
type EventKind int

const (
	EventStatus EventKind = iota
	EventProgress
)

// Event is one notification passed from the worker to the presentation side.
type Event struct {
	Kind     EventKind
	Message  string
	Progress models.Progress
	At       time.Time
}

// ChannelReporter forwards notifications over a channel that the presentation
// side drains on its own schedule. Events arrive in emission order. Sends block
// when the buffer is full, so the consumer must keep draining until Close.
type ChannelReporter struct {
	events chan Event

	mu     sync.RWMutex
	closed bool
}

// NewChannelReporter creates a reporter with the given buffer size.
func NewChannelReporter(buffer int) *ChannelReporter {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelReporter{events: make(chan Event, buffer)}
}

// Events returns the receive side of the notification stream.
func (r *ChannelReporter) Events() <-chan Event {
	return r.events
}

func (r *ChannelReporter) OnProgress(progress models.Progress) {
	r.send(Event{Kind: EventProgress, Progress: progress, At: time.Now()})
}

func (r *ChannelReporter) OnStatus(message string) {
	r.send(Event{Kind: EventStatus, Message: message, At: time.Now()})
}

// Close ends the stream. Notifications after Close are dropped.
func (r *ChannelReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

func (r *ChannelReporter) send(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.events <- ev
}
