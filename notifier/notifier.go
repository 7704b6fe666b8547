// Package notifier delivers structured failure events to chat and
// ticket-email sinks. Delivery is best-effort and fire-and-forget: an
// engine never blocks on, or fails because of, a notification.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/clusterkeeper/ilm/infrastructure/redaction"
)

// Level is the severity of a notification event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one structured failure/verification notification.
type Event struct {
	Tenant  string
	Family  string // rollover, retention, allocation, forcemerge, backup, accounting
	Subject string // index/alias/job name the event concerns
	Message string
	Level   Level
}

// Route names both destinations explicitly. Routing is never inferred
// from argument order: callers always set Teams and Jira by key, and each
// transport decides whether its destination is configured.
type Route struct {
	Teams string // ms-teams webhook/channel identifier, "" = not configured
	Jira  string // ticket-email address/project key, "" = not configured
}

// Sink is the notifier's public surface. Engines hold a Sink, never a
// concrete transport.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// Transport delivers one rendered event to one destination. Chat and
// ticket implementations satisfy this.
type Transport interface {
	Send(ctx context.Context, route Route, event Event) error
}

// maxInFlight bounds the best-effort fire-and-forget goroutines per
// process so a notification storm cannot exhaust resources.
const maxInFlight = 32

// Service routes events to zero or more configured transports, keyed by
// Route, and never blocks the calling engine.
type Service struct {
	route      Route
	transports []Transport
	sem        chan struct{}
	onError    func(error)

	wg sync.WaitGroup
}

// NewService builds a notifier Service for one tenant/family's configured
// route and transports.
func NewService(route Route, transports []Transport, onError func(error)) *Service {
	return &Service{
		route:      route,
		transports: transports,
		sem:        make(chan struct{}, maxInFlight),
		onError:    onError,
	}
}

// Notify dispatches event to every configured transport in its own
// goroutine. It never returns an error and never blocks the caller: when
// all maxInFlight slots are taken, the event is dropped for that
// transport and reported through onError instead of stalling the engine.
// The message is scrubbed of credentials once here, before any transport
// sees it.
func (s *Service) Notify(ctx context.Context, event Event) {
	event.Message = redaction.String(event.Message)
	for _, t := range s.transports {
		t := t
		select {
		case s.sem <- struct{}{}:
		default:
			if s.onError != nil {
				s.onError(fmt.Errorf("notifier: dropped %s/%s event %q: %d notifications already in flight", event.Tenant, event.Family, event.Subject, maxInFlight))
			}
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			if err := t.Send(ctx, s.route, event); err != nil && s.onError != nil {
				s.onError(err)
			}
		}()
	}
}

// Wait blocks until every in-flight notification has completed. Intended
// for tests and graceful shutdown, not the engine hot path.
func (s *Service) Wait() {
	s.wg.Wait()
}

var _ Sink = (*Service)(nil)

// NoopSink discards every event; used where notification is disabled
// (--notification False) or no transport is configured.
type NoopSink struct{}

func (NoopSink) Notify(context.Context, Event) {}

var _ Sink = NoopSink{}
