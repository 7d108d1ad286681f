package verifier

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bowerhall/gatekeeper/internal/audit"
	"github.com/bowerhall/gatekeeper/internal/challenge"
)

const testChat = int64(-1001)

type sentMessage struct {
	chatID int64
	id     int64
	text   string
}

type fakePlatform struct {
	mu       sync.Mutex
	nextID   int64
	sent     []sentMessage
	deleted  []int64
	bans     []int64
	unbans   []int64
	admins   map[int64]struct{}
	adminErr error
	sendErr  error
	banErr   error
	delErr   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{nextID: 1000, admins: map[int64]struct{}{}}
}

func (f *fakePlatform) SendMessage(chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, id: f.nextID, text: text})
	return f.nextID, nil
}

func (f *fakePlatform) DeleteMessage(chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.delErr
}

func (f *fakePlatform) BanMember(chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans = append(f.bans, userID)
	return f.banErr
}

func (f *fakePlatform) UnbanMember(chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbans = append(f.unbans, userID)
	return nil
}

func (f *fakePlatform) ListAdmins(chatID int64) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	return f.admins, nil
}

// fixedGenerator hands out the queued challenges in order.
type fixedGenerator struct {
	queue []challenge.Challenge
}

func (g *fixedGenerator) NewChallenge() challenge.Challenge {
	c := g.queue[0]
	if len(g.queue) > 1 {
		g.queue = g.queue[1:]
	}
	return c
}

type recordingAudit struct {
	records []audit.Record
}

func (r *recordingAudit) Record(rec audit.Record) {
	r.records = append(r.records, rec)
}

type harness struct {
	orch     *Orchestrator
	platform *fakePlatform
	audit    *recordingAudit
	now      time.Time
}

func newHarness(t *testing.T, challenges ...challenge.Challenge) *harness {
	t.Helper()

	if len(challenges) == 0 {
		challenges = []challenge.Challenge{{A: 7, B: 15, Answer: 22}}
	}

	h := &harness{
		platform: newFakePlatform(),
		audit:    &recordingAudit{},
		now:      time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}

	h.orch = New(h.platform, Options{
		MaxJoinDelay: 5 * time.Minute,
		Retention:    time.Hour,
		Generator:    &fixedGenerator{queue: challenges},
		Audit:        h.audit,
		Now:          func() time.Time { return h.now },
	})

	return h
}

func (h *harness) join(userID int64) {
	h.orch.Handle(MemberJoined{
		Users:     []Principal{{ID: userID, Name: "Alice"}},
		ChatID:    testChat,
		Timestamp: h.now,
		Actor:     Principal{ID: userID, Name: "Alice"},
	})
}

func (h *harness) say(userID, messageID int64, text string) {
	h.orch.Handle(TextMessage{
		User:      Principal{ID: userID, Name: "Alice"},
		ChatID:    testChat,
		MessageID: messageID,
		Text:      text,
		Timestamp: h.now,
	})
}

func TestJoinStartsChallenge(t *testing.T) {
	h := newHarness(t)
	h.join(42)

	if h.orch.State(42) != StateChallenged {
		t.Fatalf("expected challenged state, got %s", h.orch.State(42))
	}

	if len(h.platform.sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(h.platform.sent))
	}

	if !strings.Contains(h.platform.sent[0].text, "7+15") {
		t.Errorf("welcome should contain the puzzle, got %q", h.platform.sent[0].text)
	}

	tracked := h.orch.Tracked(42)
	if len(tracked) != 1 || tracked[0].MessageID != h.platform.sent[0].id {
		t.Errorf("welcome message should be tracked, got %+v", tracked)
	}
}

func TestCorrectAnswerPasses(t *testing.T) {
	h := newHarness(t)
	h.join(42)
	h.say(42, 500, "22")

	if h.orch.State(42) != StateUntracked {
		t.Fatal("user should be untracked after passing")
	}

	if len(h.platform.bans) != 0 {
		t.Errorf("expected no bans, got %v", h.platform.bans)
	}

	if len(h.platform.sent) != 2 {
		t.Fatalf("expected welcome and pass messages, got %d", len(h.platform.sent))
	}

	if len(h.orch.Tracked(42)) != 0 {
		t.Error("ledger should be empty for the user after passing")
	}

	// welcome, answer and pass notice are all deleted
	if len(h.platform.deleted) != 3 {
		t.Errorf("expected 3 deletions, got %v", h.platform.deleted)
	}

	if len(h.audit.records) != 1 || h.audit.records[0].Outcome != audit.OutcomePassed {
		t.Errorf("expected one passed audit record, got %+v", h.audit.records)
	}
}

func TestPaddedAnswerPasses(t *testing.T) {
	h := newHarness(t)
	h.join(42)
	h.say(42, 500, " 22\n")

	if h.orch.State(42) != StateUntracked {
		t.Fatal("user should be untracked after passing")
	}
	if len(h.platform.bans) != 0 {
		t.Errorf("expected no bans, got %v", h.platform.bans)
	}
}

func TestWrongAnswersKick(t *testing.T) {
	for _, reply := range []string{"21", "abc", "twenty-two", "", "22.5", "99999999999999999999999"} {
		t.Run(reply, func(t *testing.T) {
			h := newHarness(t)
			h.join(42)
			h.say(42, 500, reply)

			if h.orch.State(42) != StateUntracked {
				t.Fatal("user should be untracked after a wrong answer")
			}

			if len(h.platform.bans) != 1 || h.platform.bans[0] != 42 {
				t.Errorf("expected exactly one ban of user 42, got %v", h.platform.bans)
			}

			if len(h.orch.Tracked(42)) != 0 {
				t.Error("ledger should be empty for the user after kick")
			}

			if h.audit.records[0].Outcome != audit.OutcomeKicked {
				t.Errorf("expected kicked outcome, got %s", h.audit.records[0].Outcome)
			}
		})
	}
}

func TestBanFailureStillResolves(t *testing.T) {
	h := newHarness(t)
	h.platform.banErr = errors.New("not enough rights")
	h.join(42)
	h.say(42, 500, "1")

	if h.orch.State(42) != StateUntracked {
		t.Fatal("session should resolve even when the ban fails")
	}

	if len(h.platform.sent) != 2 {
		t.Errorf("kick notice should still be sent, got %d messages", len(h.platform.sent))
	}

	if len(h.platform.unbans) != 0 {
		t.Error("no unban should follow a failed ban")
	}
}

func TestUnbanAfterKick(t *testing.T) {
	h := newHarness(t)
	h.orch.unbanAfterKick = true
	h.join(42)
	h.say(42, 500, "0")

	if len(h.platform.unbans) != 1 || h.platform.unbans[0] != 42 {
		t.Errorf("expected user to be unbanned after kick, got %v", h.platform.unbans)
	}
}

func TestLeaveAbandonsSilently(t *testing.T) {
	h := newHarness(t)
	h.join(42)

	h.orch.Handle(MemberLeft{User: Principal{ID: 42}, ChatID: testChat})

	if h.orch.State(42) != StateUntracked {
		t.Fatal("session should be removed on leave")
	}

	if len(h.platform.sent) != 1 {
		t.Errorf("no message should be sent on leave, got %d total", len(h.platform.sent))
	}

	if len(h.orch.Tracked(42)) != 0 {
		t.Error("ledger should be purged on leave")
	}

	if len(h.audit.records) != 1 || h.audit.records[0].Outcome != audit.OutcomeAbandoned {
		t.Errorf("expected abandoned audit record, got %+v", h.audit.records)
	}
}

func TestLeaveWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.orch.Handle(MemberLeft{User: Principal{ID: 42}, ChatID: testChat})

	if len(h.platform.deleted) != 0 || len(h.audit.records) != 0 {
		t.Error("leave of an untracked user should do nothing")
	}
}

func TestRejoinReplacesChallenge(t *testing.T) {
	h := newHarness(t,
		challenge.Challenge{A: 2, B: 3, Answer: 5},
		challenge.Challenge{A: 4, B: 4, Answer: 8},
	)

	h.join(42)
	h.join(42)

	if got := h.orch.Stats().Sessions; got != 1 {
		t.Fatalf("expected 1 session after re-join, got %d", got)
	}

	// both welcomes stay tracked under the same user
	if got := len(h.orch.Tracked(42)); got != 2 {
		t.Errorf("expected 2 tracked messages, got %d", got)
	}

	h.say(42, 500, "5")

	if len(h.platform.bans) != 1 {
		t.Fatal("the previous challenge's answer should no longer be accepted")
	}
}

func TestRejoinAcceptsNewestAnswer(t *testing.T) {
	h := newHarness(t,
		challenge.Challenge{A: 2, B: 3, Answer: 5},
		challenge.Challenge{A: 4, B: 4, Answer: 8},
	)

	h.join(42)
	h.join(42)
	h.say(42, 500, "8")

	if len(h.platform.bans) != 0 {
		t.Error("newest answer should pass")
	}

	if len(h.orch.Tracked(42)) != 0 {
		t.Error("messages of the replaced session should be purged with the new one")
	}
}

func TestTextFromUntrackedIgnored(t *testing.T) {
	h := newHarness(t)
	h.say(7, 500, "hello")

	if len(h.platform.sent) != 0 || len(h.platform.bans) != 0 {
		t.Error("untracked user messages should be ignored")
	}

	if h.orch.Stats().Tracked != 0 {
		t.Error("nothing should be tracked for untracked users")
	}
}

func TestTextFromOtherChatIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(42)

	h.orch.Handle(TextMessage{User: Principal{ID: 42}, ChatID: 555, MessageID: 9, Text: "1", Timestamp: h.now})

	if h.orch.State(42) != StateChallenged {
		t.Error("a message in another chat should not resolve the challenge")
	}
}

func TestAdminJoinSkipped(t *testing.T) {
	h := newHarness(t)
	h.platform.admins[42] = struct{}{}
	h.join(42)

	if h.orch.State(42) != StateUntracked {
		t.Error("admins should not be challenged")
	}

	if len(h.platform.sent) != 0 {
		t.Error("no challenge should be sent for admins")
	}
}

func TestMembersAddedByAdminSkipped(t *testing.T) {
	h := newHarness(t)
	h.platform.admins[1] = struct{}{}

	h.orch.Handle(MemberJoined{
		Users:     []Principal{{ID: 42}, {ID: 43}},
		ChatID:    testChat,
		Timestamp: h.now,
		Actor:     Principal{ID: 1},
	})

	if h.orch.Stats().Sessions != 0 {
		t.Error("members added by an admin should not be challenged")
	}
}

func TestBatchJoinChallengesEachMember(t *testing.T) {
	h := newHarness(t)

	h.orch.Handle(MemberJoined{
		Users:     []Principal{{ID: 42}, {ID: 43, IsBot: true}, {ID: 44}},
		ChatID:    testChat,
		Timestamp: h.now,
		Actor:     Principal{ID: 42},
		MessageID: 77,
	})

	if h.orch.State(42) != StateChallenged || h.orch.State(44) != StateChallenged {
		t.Error("human members should be challenged")
	}

	if h.orch.State(43) != StateUntracked {
		t.Error("bot accounts should not be challenged")
	}

	// join notice is tracked once, under the first challenged member
	if got := len(h.orch.Tracked(42)); got != 2 {
		t.Errorf("expected welcome and join notice tracked for 42, got %d", got)
	}
	if got := len(h.orch.Tracked(44)); got != 1 {
		t.Errorf("expected only the welcome tracked for 44, got %d", got)
	}
}

func TestStaleJoinSkipped(t *testing.T) {
	h := newHarness(t)

	h.orch.Handle(MemberJoined{
		Users:     []Principal{{ID: 42}},
		ChatID:    testChat,
		Timestamp: h.now.Add(-6 * time.Minute),
		Actor:     Principal{ID: 42},
	})

	if h.orch.State(42) != StateUntracked {
		t.Error("stale join should not be challenged")
	}
}

func TestListAdminsFailureStillChallenges(t *testing.T) {
	h := newHarness(t)
	h.platform.adminErr = errors.New("timeout")
	h.join(42)

	if h.orch.State(42) != StateChallenged {
		t.Error("join should be challenged when the admin list is unavailable")
	}
}

func TestSendFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.platform.sendErr = errors.New("flood wait")
	h.join(42)

	if h.orch.State(42) != StateChallenged {
		t.Error("session should exist even if the welcome could not be sent")
	}

	if len(h.orch.Tracked(42)) != 0 {
		t.Error("unsent welcome must not be tracked")
	}
}

func TestDeleteFailuresDoNotBlockResolution(t *testing.T) {
	h := newHarness(t)
	h.platform.delErr = errors.New("message can't be deleted")
	h.join(42)
	h.say(42, 500, "22")

	if h.orch.Stats().Tracked != 0 {
		t.Error("entries should be dropped even when deletions fail")
	}
}

func TestResolutionSweepsOrphans(t *testing.T) {
	h := newHarness(t)

	h.join(1)
	h.now = h.now.Add(2 * time.Hour)
	h.join(2)
	h.say(2, 500, "22")

	if got := len(h.orch.Tracked(1)); got != 0 {
		t.Errorf("orphaned entries of user 1 should be swept on resolution, got %d", got)
	}

	if h.orch.State(1) != StateChallenged {
		t.Error("sweeping must not resolve the session itself")
	}
}

func TestSweep(t *testing.T) {
	h := newHarness(t)
	h.join(1)

	if n := h.orch.Sweep(); n != 0 {
		t.Errorf("nothing should be swept yet, got %d", n)
	}

	h.now = h.now.Add(61 * time.Minute)

	if n := h.orch.Sweep(); n != 1 {
		t.Errorf("expected 1 entry swept, got %d", n)
	}

	if len(h.platform.deleted) != 0 {
		t.Error("sweep must not delete on the platform")
	}
}

func TestDefaultsApplied(t *testing.T) {
	o := New(newFakePlatform(), Options{})

	if o.retention != DefaultRetention {
		t.Errorf("expected default retention, got %s", o.retention)
	}

	o.Handle(MemberJoined{Users: []Principal{{ID: 1, Name: "Bob"}}, ChatID: testChat, Timestamp: time.Now(), Actor: Principal{ID: 1}})

	if o.State(1) != StateChallenged {
		t.Error("default options should still challenge a fresh join")
	}
}
