package ledger

import (
	"errors"
	"testing"
	"time"
)

type deleteCall struct {
	chatID    int64
	messageID int64
}

type fakeDeleter struct {
	calls []deleteCall
	fail  map[int64]bool
}

func (f *fakeDeleter) DeleteMessage(chatID, messageID int64) error {
	f.calls = append(f.calls, deleteCall{chatID, messageID})
	if f.fail[messageID] {
		return errors.New("message to delete not found")
	}
	return nil
}

var epoch = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestPurgeForUserDeletesOnlyOwner(t *testing.T) {
	d := &fakeDeleter{}
	l := New(d)

	l.Track(1, -100, 10, epoch)
	l.Track(2, -100, 11, epoch)
	l.Track(1, -100, 12, epoch)

	n := l.PurgeForUser(1)
	if n != 2 {
		t.Fatalf("expected 2 entries purged, got %d", n)
	}

	if len(d.calls) != 2 || d.calls[0].messageID != 10 || d.calls[1].messageID != 12 {
		t.Errorf("unexpected delete calls: %+v", d.calls)
	}

	if len(l.ForUser(1)) != 0 {
		t.Error("user 1 should have no tracked messages")
	}

	if got := l.ForUser(2); len(got) != 1 || got[0].MessageID != 11 {
		t.Errorf("user 2 entries should be untouched, got %+v", got)
	}
}

func TestPurgeForUserContinuesAfterFailure(t *testing.T) {
	d := &fakeDeleter{fail: map[int64]bool{10: true}}
	l := New(d)

	l.Track(1, -100, 10, epoch)
	l.Track(1, -100, 11, epoch)
	l.Track(1, -100, 12, epoch)

	n := l.PurgeForUser(1)

	if len(d.calls) != 3 {
		t.Fatalf("expected 3 delete attempts, got %d", len(d.calls))
	}

	if n != 3 {
		t.Errorf("expected 3 entries removed, got %d", n)
	}

	if l.Len() != 0 {
		t.Errorf("expected empty ledger, got %d entries", l.Len())
	}
}

func TestPurgeForUnknownUser(t *testing.T) {
	d := &fakeDeleter{}
	l := New(d)
	l.Track(1, -100, 10, epoch)

	if n := l.PurgeForUser(99); n != 0 {
		t.Errorf("expected 0 purged, got %d", n)
	}

	if len(d.calls) != 0 {
		t.Errorf("expected no delete calls, got %d", len(d.calls))
	}
}

func TestSweepExpired(t *testing.T) {
	d := &fakeDeleter{}
	l := New(d)

	retention := time.Hour
	now := epoch.Add(3 * time.Hour)

	l.Track(1, -100, 10, now.Add(-2*time.Hour))
	l.Track(2, -100, 11, now.Add(-retention))
	l.Track(3, -100, 12, now.Add(-time.Minute))

	n := l.SweepExpired(now, retention)
	if n != 1 {
		t.Fatalf("expected 1 entry swept, got %d", n)
	}

	if len(d.calls) != 0 {
		t.Error("sweep must not delete messages on the platform")
	}

	if len(l.ForUser(1)) != 0 {
		t.Error("old entry should be swept")
	}

	if len(l.ForUser(2)) != 1 {
		t.Error("entry exactly at the retention age should be kept")
	}

	if len(l.ForUser(3)) != 1 {
		t.Error("young entry should be kept")
	}
}

func TestSweepKeepsOrder(t *testing.T) {
	l := New(&fakeDeleter{})
	now := epoch

	l.Track(1, -100, 1, now)
	l.Track(1, -100, 2, now.Add(-2*time.Hour))
	l.Track(1, -100, 3, now)

	l.SweepExpired(now, time.Hour)

	got := l.ForUser(1)
	if len(got) != 2 || got[0].MessageID != 1 || got[1].MessageID != 3 {
		t.Errorf("expected messages [1 3] in order, got %+v", got)
	}
}
