package service

import "time"

// FollowUpLadder is the wait before each follow-up attempt, indexed by the
// number of attempts already sent.
var FollowUpLadder = [...]time.Duration{
	10 * time.Minute,
	time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
	7 * 24 * time.Hour,
}

// MaxAttempts is the ladder length. Reaching it ends the campaign as unresponsive.
const MaxAttempts = len(FollowUpLadder)

// Interval returns the wait for attempt index i. ok is false once the ladder
// is exhausted.
func Interval(i int) (d time.Duration, ok bool) {
	if i < 0 || i >= MaxAttempts {
		return 0, false
	}
	return FollowUpLadder[i], true
}
