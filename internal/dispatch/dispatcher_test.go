package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"xcbot/internal/messenger"
	"xcbot/internal/model"
	"xcbot/internal/storage"
)

type sentMsg struct {
	Recipient string
	Text      string
}

// flakySender fails a configured number of times per recipient before
// succeeding, or always fails when the count is negative.
type flakySender struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	sent      []sentMsg
	attempts  map[string]int
}

func newFlakySender() *flakySender {
	return &flakySender{
		failures:  map[string]int{},
		permanent: map[string]bool{},
		attempts:  map[string]int{},
	}
}

func (f *flakySender) Send(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[recipient]++
	n := f.failures[recipient]
	if n != 0 {
		if n > 0 {
			f.failures[recipient] = n - 1
		}
		return &messenger.DeliveryError{Permanent: f.permanent[recipient], Status: 500}
	}
	f.sent = append(f.sent, sentMsg{Recipient: recipient, Text: text})
	return nil
}

func (f *flakySender) Kind() model.MessengerKind { return model.KindThreema }

func (f *flakySender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Recipient)
	}
	sort.Strings(out)
	return out
}

func (f *flakySender) attemptCount(recipient string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[recipient]
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func subscribe(t *testing.T, s *storage.SQLite, username, pilot string) {
	t.Helper()
	ctx := context.Background()
	u, err := s.FindOrCreateUser(ctx, username, model.KindThreema)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	if _, err := s.AddSubscription(ctx, u.ID, pilot); err != nil {
		t.Fatalf("subscribe %s to %s: %v", username, pilot, err)
	}
}

func newTestDispatcher(store *storage.SQLite, sender messenger.Messenger) *Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(store, sender, log)
	d.SetBackoff(time.Millisecond)
	return d
}

var testFlight = model.Flight{
	ID:      "https://example.org/flights/detail:alice/f1",
	Pilot:   "alice",
	Summary: "28.04. [102.53 km :: FAI triangle] Alice A.",
	URL:     "https://example.org/flights/detail:alice/f1",
}

func TestDispatchReachesAllSubscribers(t *testing.T) {
	store := newTestStore(t)
	subscribe(t, store, "BOBBOB01", "alice")
	subscribe(t, store, "CAROL001", "alice")
	subscribe(t, store, "DAVEDAVE", "other-pilot")

	sender := newFlakySender()
	d := newTestDispatcher(store, sender)

	d.Dispatch(context.Background(), testFlight)

	want := []string{"BOBBOB01", "CAROL001"}
	if diff := cmp.Diff(want, sender.recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	store := newTestStore(t)
	subscribe(t, store, "BOBBOB01", "alice")

	sender := newFlakySender()
	sender.failures["BOBBOB01"] = 2 // fail twice, succeed on the third attempt

	d := newTestDispatcher(store, sender)
	d.Dispatch(context.Background(), testFlight)

	if got := sender.attemptCount("BOBBOB01"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if diff := cmp.Diff([]string{"BOBBOB01"}, sender.recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchDropsRecipientAfterExhaustedRetries(t *testing.T) {
	store := newTestStore(t)
	subscribe(t, store, "BOBBOB01", "alice")
	subscribe(t, store, "CAROL001", "alice")

	sender := newFlakySender()
	sender.failures["BOBBOB01"] = -1 // never succeeds

	d := newTestDispatcher(store, sender)
	d.Dispatch(context.Background(), testFlight)

	if got := sender.attemptCount("BOBBOB01"); got != 3 {
		t.Errorf("failing recipient attempts = %d, want 3", got)
	}
	// The healthy recipient is still delivered to.
	if diff := cmp.Diff([]string{"CAROL001"}, sender.recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchDoesNotRetryPermanentFailures(t *testing.T) {
	store := newTestStore(t)
	subscribe(t, store, "BOBBOB01", "alice")

	sender := newFlakySender()
	sender.failures["BOBBOB01"] = -1
	sender.permanent["BOBBOB01"] = true

	d := newTestDispatcher(store, sender)
	d.Dispatch(context.Background(), testFlight)

	if got := sender.attemptCount("BOBBOB01"); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent failure)", got)
	}
}

func TestDispatchAllPreservesFlightOrder(t *testing.T) {
	store := newTestStore(t)
	subscribe(t, store, "BOBBOB01", "alice")

	sender := newFlakySender()
	d := newTestDispatcher(store, sender)

	flights := []model.Flight{
		{ID: "f1", Pilot: "alice", Summary: "first"},
		{ID: "f2", Pilot: "alice", Summary: "second"},
		{ID: "f3", Pilot: "alice", Summary: "third"},
	}
	d.DispatchAll(context.Background(), flights)
	d.Wait()

	sender.mu.Lock()
	texts := make([]string, len(sender.sent))
	for i, m := range sender.sent {
		texts[i] = m.Text
	}
	sender.mu.Unlock()

	if len(texts) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(texts))
	}
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(texts[i], want) {
			t.Errorf("message %d = %q, want it to contain %q", i, texts[i], want)
		}
	}
}

func TestFormatNotification(t *testing.T) {
	got := FormatNotification(testFlight)
	for _, want := range []string{"alice", testFlight.Summary, testFlight.URL} {
		if !strings.Contains(got, want) {
			t.Errorf("notification %q missing %q", got, want)
		}
	}
}
