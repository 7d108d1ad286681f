package admission

import "time"

const DefaultMaxDelay = 5 * time.Minute

// Principal is the subset of a chat member the filter looks at.
type Principal struct {
	ID    int64
	IsBot bool
}

// Verdict is the filter's decision with a short reason for logs.
type Verdict struct {
	Challenge bool
	Reason    string
}

type Filter struct {
	MaxDelay time.Duration
	Now      func() time.Time
}

func New(maxDelay time.Duration) *Filter {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Filter{MaxDelay: maxDelay, Now: time.Now}
}

// TrustedActor reports whether a join batch triggered by actor skips
// verification entirely.
func (f *Filter) TrustedActor(actor int64, admins map[int64]struct{}) bool {
	_, ok := admins[actor]
	return ok
}

// Check decides whether user must solve a challenge after joining chatID at
// joinedAt. A delay exactly equal to MaxDelay still counts as fresh.
func (f *Filter) Check(user Principal, chatID int64, joinedAt time.Time, admins map[int64]struct{}) Verdict {
	if _, ok := admins[user.ID]; ok {
		return Verdict{Reason: "admin"}
	}

	if user.IsBot {
		return Verdict{Reason: "bot account"}
	}

	if delay := f.now().Sub(joinedAt); delay > f.MaxDelay {
		return Verdict{Reason: "stale join notification"}
	}

	return Verdict{Challenge: true, Reason: "new member"}
}

func (f *Filter) ShouldChallenge(user Principal, chatID int64, joinedAt time.Time, admins map[int64]struct{}) bool {
	return f.Check(user, chatID, joinedAt, admins).Challenge
}

func (f *Filter) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
