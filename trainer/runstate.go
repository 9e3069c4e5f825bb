package trainer

import (
	"context"
	"errors"
	"time"
)

var ErrNoRunState = errors.New("no persisted run state")

// RunState is the miner's durable progress marker. Restoring it after a
// restart keeps the pull/push cadence instead of firing both immediately.
type RunState struct {
	RunID       string    `json:"run_id"`
	StepCounter int       `json:"step_counter"`
	LastPull    time.Time `json:"last_pull"`
	LastSend    time.Time `json:"last_send"`
	Pushed      bool      `json:"pushed"`
	ModelHash   string    `json:"model_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunStateStore persists run state across process restarts. Load returns
// ErrNoRunState for a fresh miner.
type RunStateStore interface {
	Load(ctx context.Context) (RunState, error)
	Save(ctx context.Context, state RunState) error
}
