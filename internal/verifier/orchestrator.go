package verifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/gatekeeper/internal/admission"
	"github.com/bowerhall/gatekeeper/internal/audit"
	"github.com/bowerhall/gatekeeper/internal/challenge"
	"github.com/bowerhall/gatekeeper/internal/ledger"
	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/session"
)

const DefaultRetention = time.Hour

type State int

const (
	StateUntracked State = iota
	StateChallenged
)

func (s State) String() string {
	if s == StateChallenged {
		return "challenged"
	}
	return "untracked"
}

// Generator produces a new puzzle per admitted join.
type Generator interface {
	NewChallenge() challenge.Challenge
}

type Options struct {
	MaxJoinDelay   time.Duration
	Retention      time.Duration
	UnbanAfterKick bool
	Generator      Generator
	Texts          Texts
	Audit          audit.Recorder
	Now            func() time.Time
}

type Stats struct {
	Sessions int
	Tracked  int
}

// Orchestrator drives each member through join, challenge and resolution.
// One mutex guards the registry and ledger for the whole of every transition,
// platform calls included.
type Orchestrator struct {
	mu       sync.Mutex
	platform Platform
	filter   *admission.Filter
	sessions *session.Registry
	ledger   *ledger.Ledger

	gen            Generator
	texts          Texts
	audit          audit.Recorder
	retention      time.Duration
	unbanAfterKick bool
	now            func() time.Time
}

func New(platform Platform, opts Options) *Orchestrator {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Generator == nil {
		opts.Generator = challenge.NewGenerator(nil)
	}
	if opts.Texts == nil {
		opts.Texts = plainTexts{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	filter := admission.New(opts.MaxJoinDelay)
	filter.Now = opts.Now

	return &Orchestrator{
		platform:       platform,
		filter:         filter,
		sessions:       session.NewRegistry(),
		ledger:         ledger.New(platform),
		gen:            opts.Generator,
		texts:          opts.Texts,
		audit:          opts.Audit,
		retention:      opts.Retention,
		unbanAfterKick: opts.UnbanAfterKick,
		now:            opts.Now,
	}
}

// Handle applies one platform event. It never returns an error: platform
// failures are logged and the transition still completes.
func (o *Orchestrator) Handle(ev Event) {
	switch e := ev.(type) {
	case MemberJoined:
		o.handleJoin(e)
	case MemberLeft:
		o.handleLeave(e)
	case TextMessage:
		o.handleText(e)
	default:
		logger.Warn("unknown event type", "event", ev)
	}
}

func (o *Orchestrator) handleJoin(e MemberJoined) {
	o.mu.Lock()
	defer o.mu.Unlock()

	admins, err := o.platform.ListAdmins(e.ChatID)
	if err != nil {
		logger.Error("list admins failed", "chat", e.ChatID, "error", err)
		admins = nil
	}

	if o.filter.TrustedActor(e.Actor.ID, admins) {
		logger.Info("join skipped", "chat", e.ChatID, "actor", e.Actor.ID, "reason", "added by admin", "members", len(e.Users))
		return
	}

	joinNoticeTracked := false
	for _, u := range e.Users {
		v := o.filter.Check(admission.Principal{ID: u.ID, IsBot: u.IsBot}, e.ChatID, e.Timestamp, admins)
		if !v.Challenge {
			logger.Info("join skipped", "chat", e.ChatID, "user", u.ID, "name", u.Name, "reason", v.Reason)
			continue
		}

		o.startChallenge(u, e.ChatID)

		if e.MessageID != 0 && !joinNoticeTracked {
			o.ledger.Track(u.ID, e.ChatID, e.MessageID, e.Timestamp)
			joinNoticeTracked = true
		}
	}
}

func (o *Orchestrator) startChallenge(u Principal, chatID int64) {
	c := o.gen.NewChallenge()
	now := o.now()

	prev, replaced := o.sessions.Start(session.Session{
		UserID:    u.ID,
		ChatID:    chatID,
		Name:      u.Name,
		A:         c.A,
		B:         c.B,
		Expected:  c.Answer,
		StartedAt: now,
	})
	if replaced {
		logger.Info("session replaced", "user", u.ID, "chat", chatID, "previous", prev.ID)
	}

	s, _ := o.sessions.TryGet(u.ID)
	logger.Info("challenge started", "session", s.ID, "user", u.ID, "name", u.Name, "chat", chatID)
	logger.Debug("challenge puzzle", "session", s.ID, "a", c.A, "b", c.B)

	msgID, err := o.platform.SendMessage(chatID, o.texts.Welcome(u.Name, c.A, c.B))
	if err != nil {
		logger.Error("send challenge failed", "session", s.ID, "chat", chatID, "error", err)
		return
	}
	o.ledger.Track(u.ID, chatID, msgID, now)
}

func (o *Orchestrator) handleLeave(e MemberLeft) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions.TryGet(e.User.ID)
	if !ok {
		logger.Debug("member left without pending challenge", "user", e.User.ID, "chat", e.ChatID)
		return
	}

	logger.Info("challenge abandoned", "session", s.ID, "user", s.UserID, "chat", s.ChatID)
	o.resolve(s, audit.OutcomeAbandoned)
}

func (o *Orchestrator) handleText(e TextMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions.TryGet(e.User.ID)
	if !ok || s.ChatID != e.ChatID {
		logger.Debug("message ignored", "user", e.User.ID, "chat", e.ChatID)
		return
	}

	o.ledger.Track(s.UserID, e.ChatID, e.MessageID, e.Timestamp)

	puzzle := challenge.Challenge{A: s.A, B: s.B, Answer: s.Expected}
	if puzzle.Correct(e.Text) {
		o.pass(s)
		return
	}

	o.kick(s)
}

func (o *Orchestrator) pass(s *session.Session) {
	logger.Info("challenge passed", "session", s.ID, "user", s.UserID, "chat", s.ChatID)

	o.send(s, o.texts.Passed(s.Name))
	o.resolve(s, audit.OutcomePassed)
}

func (o *Orchestrator) kick(s *session.Session) {
	if err := o.platform.BanMember(s.ChatID, s.UserID); err != nil {
		logger.Error("ban failed", "session", s.ID, "user", s.UserID, "chat", s.ChatID, "error", err)
	} else if o.unbanAfterKick {
		if err := o.platform.UnbanMember(s.ChatID, s.UserID); err != nil {
			logger.Error("unban failed", "session", s.ID, "user", s.UserID, "chat", s.ChatID, "error", err)
		}
	}

	logger.Info("member kicked", "session", s.ID, "user", s.UserID, "chat", s.ChatID)

	o.send(s, o.texts.Kicked(s.Name))
	o.resolve(s, audit.OutcomeKicked)
}

// send posts text to the session's chat and tracks it for cleanup.
func (o *Orchestrator) send(s *session.Session, text string) {
	msgID, err := o.platform.SendMessage(s.ChatID, text)
	if err != nil {
		logger.Error("send failed", "session", s.ID, "chat", s.ChatID, "error", err)
		return
	}
	o.ledger.Track(s.UserID, s.ChatID, msgID, o.now())
}

func (o *Orchestrator) resolve(s *session.Session, outcome audit.Outcome) {
	now := o.now()

	o.sessions.Resolve(s.UserID)
	purged := o.ledger.PurgeForUser(s.UserID)
	swept := o.ledger.SweepExpired(now, o.retention)

	logger.Debug("session resolved", "session", s.ID, "outcome", outcome, "purged", purged, "swept", swept)

	o.audit.Record(audit.Record{
		SessionID:  s.ID,
		UserID:     s.UserID,
		ChatID:     s.ChatID,
		Outcome:    outcome,
		StartedAt:  s.StartedAt,
		ResolvedAt: now,
	})
}

// Sweep drops tracked messages older than the retention window.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := o.ledger.SweepExpired(o.now(), o.retention)
	if n > 0 {
		logger.Info("orphaned messages swept", "count", n)
	}
	return n
}

func (o *Orchestrator) State(userID int64) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.sessions.TryGet(userID); ok {
		return StateChallenged
	}
	return StateUntracked
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Stats{Sessions: o.sessions.Len(), Tracked: o.ledger.Len()}
}

// Tracked returns the ledger entries held for userID.
func (o *Orchestrator) Tracked(userID int64) []ledger.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.ledger.ForUser(userID)
}

type plainTexts struct{}

func (plainTexts) Welcome(name string, a, b int) string {
	return fmt.Sprintf("Welcome %s!\nPlease solve this: %d+%d", name, a, b)
}

func (plainTexts) Passed(name string) string { return "Thanks " + name + ", you are verified." }

func (plainTexts) Kicked(name string) string { return name + " was removed." }
