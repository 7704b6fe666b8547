package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu    sync.Mutex
	sent  []Event
	fail  bool
}

func (r *recordingTransport) Send(ctx context.Context, route Route, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, event)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func TestService_Notify_DispatchesToAllTransports(t *testing.T) {
	chat := &recordingTransport{}
	ticket := &recordingTransport{}
	svc := NewService(Route{Teams: "team", Jira: "jira@example.com"}, []Transport{chat, ticket}, nil)

	svc.Notify(context.Background(), Event{Tenant: "acme", Family: "rollover", Subject: "logs", Message: "failed"})
	svc.Wait()

	require.Len(t, chat.sent, 1)
	require.Len(t, ticket.sent, 1)
	require.Equal(t, "acme", chat.sent[0].Tenant)
}

func TestService_Notify_NeverBlocksOnTransportError(t *testing.T) {
	var errCount int32
	failing := &recordingTransport{fail: true}
	svc := NewService(Route{Teams: "team"}, []Transport{failing}, func(err error) {
		atomic.AddInt32(&errCount, 1)
	})

	svc.Notify(context.Background(), Event{Tenant: "acme", Family: "backup", Subject: "repo1", Message: "x"})
	svc.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&errCount))
}

type blockingTransport struct {
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, route Route, event Event) error {
	<-b.release
	return nil
}

func TestService_Notify_DropsInsteadOfBlockingWhenSaturated(t *testing.T) {
	blocking := &blockingTransport{release: make(chan struct{})}
	var drops int32
	svc := NewService(Route{Teams: "team"}, []Transport{blocking}, func(err error) {
		atomic.AddInt32(&drops, 1)
	})

	for i := 0; i < maxInFlight; i++ {
		svc.Notify(context.Background(), Event{Tenant: "acme", Family: "retention", Subject: "fill"})
	}
	// Every slot is held by a transport still sending; this call must
	// return immediately and report a drop rather than stall the engine.
	svc.Notify(context.Background(), Event{Tenant: "acme", Family: "retention", Subject: "overflow"})
	require.EqualValues(t, 1, atomic.LoadInt32(&drops))

	close(blocking.release)
	svc.Wait()
}

func TestNoopSink_DiscardsEvents(t *testing.T) {
	var sink Sink = NoopSink{}
	sink.Notify(context.Background(), Event{Tenant: "acme"})
}
