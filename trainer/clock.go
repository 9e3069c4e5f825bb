package trainer

import "time"

// Clock tracks when pulls and pushes are due. Due checks are pure queries;
// the loop moves the timers explicitly through the Mark methods. The send
// timer advances after every push attempt, success or failure, so a flaky
// hub cannot trigger a push storm; the pull timer advances after every pull
// attempt whether or not a new submission existed.
type Clock struct {
	checkUpdateInterval time.Duration
	sendInterval        time.Duration
	now                 func() time.Time

	lastPull time.Time
	lastSend time.Time
	pushed   bool
}

func NewClock(checkUpdateInterval, sendInterval time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}

	return &Clock{
		checkUpdateInterval: checkUpdateInterval,
		sendInterval:        sendInterval,
		now:                 now,
	}
}

// Arm starts the send timer at training start so the first push happens a
// full interval in. The pull timer stays unarmed: the first pull check is
// due immediately.
func (c *Clock) Arm() {
	if c.lastSend.IsZero() {
		c.lastSend = c.now()
	}
}

// Restore rewinds the timers to persisted instants so a restarted miner
// resumes its cadence instead of pushing right away.
func (c *Clock) Restore(lastPull, lastSend time.Time, pushed bool) {
	c.lastPull = lastPull
	c.lastSend = lastSend
	c.pushed = pushed
}

func (c *Clock) PullDue() bool {
	return c.now().Sub(c.lastPull) >= c.checkUpdateInterval
}

func (c *Clock) PushDue() bool {
	return c.now().Sub(c.lastSend) >= c.sendInterval
}

// Staleness is the time since the last push attempt, zero if none has ever
// been made.
func (c *Clock) Staleness() time.Duration {
	if !c.pushed {
		return 0
	}

	return c.now().Sub(c.lastSend)
}

func (c *Clock) MarkPullAttempt() {
	c.lastPull = c.now()
}

func (c *Clock) MarkPushAttempt() {
	c.lastSend = c.now()
	c.pushed = true
}

func (c *Clock) Pushed() bool {
	return c.pushed
}

func (c *Clock) LastPull() time.Time {
	return c.lastPull
}

func (c *Clock) LastSend() time.Time {
	return c.lastSend
}
