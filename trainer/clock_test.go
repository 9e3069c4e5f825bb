package trainer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/swarmml/swarmtrain/trainer"
)

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time { return f.t }

func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestPullDueBoundary(t *testing.T) {
	t.Parallel()

	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := trainer.NewClock(300*time.Second, 300*time.Second, fn.now)
	c.MarkPullAttempt()

	fn.advance(299 * time.Second)
	assert.False(t, c.PullDue(), "299s elapsed must not be due")

	fn.advance(2 * time.Second)
	assert.True(t, c.PullDue(), "301s elapsed must be due")
}

func TestPushDueIsMonotonicUntilAttempt(t *testing.T) {
	t.Parallel()

	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := trainer.NewClock(300*time.Second, 30*time.Second, fn.now)
	c.Arm()

	assert.False(t, c.PushDue())

	fn.advance(30 * time.Second)
	assert.True(t, c.PushDue())

	// Once due, stays due until an attempt moves the timer.
	fn.advance(100 * time.Second)
	assert.True(t, c.PushDue())

	c.MarkPushAttempt()
	assert.False(t, c.PushDue(), "immediately after an attempt nothing is due")
}

func TestStalenessZeroBeforeFirstPush(t *testing.T) {
	t.Parallel()

	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := trainer.NewClock(300*time.Second, 30*time.Second, fn.now)
	c.Arm()

	fn.advance(time.Hour)
	assert.Zero(t, c.Staleness())

	c.MarkPushAttempt()
	fn.advance(42 * time.Second)
	assert.Equal(t, 42*time.Second, c.Staleness())
}

func TestArmDoesNotClobberRestoredState(t *testing.T) {
	t.Parallel()

	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := trainer.NewClock(300*time.Second, 300*time.Second, fn.now)

	lastSend := time.Unix(900, 0)
	c.Restore(time.Unix(800, 0), lastSend, true)
	c.Arm()

	assert.Equal(t, lastSend, c.LastSend())
	assert.Equal(t, 100*time.Second, c.Staleness())
}

func TestPullDueImmediatelyOnFreshClock(t *testing.T) {
	t.Parallel()

	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := trainer.NewClock(300*time.Second, 300*time.Second, fn.now)
	c.Arm()

	assert.True(t, c.PullDue(), "an unarmed pull timer is due at once")
}
