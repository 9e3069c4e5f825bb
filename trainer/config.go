package trainer

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "SWARMTRAIN_"

// Version is the code version reported alongside run metrics, so the
// aggregation side can audit which loop produced a submission.
const Version = "v0.3.0"

var (
	ErrBadInterval = errors.New("intervals must be positive")
	ErrBadEpochs   = errors.New("epochs must be positive")
	ErrBadNSteps   = errors.New("n_steps must be positive")
)

type Config struct {
	LearningRate        float64       `env:"LEARNING_RATE"         envDefault:"5e-5"`
	CheckUpdateInterval time.Duration `env:"CHECK_UPDATE_INTERVAL" envDefault:"300s"`
	// SendInterval zero means the policy default: 300s remote, 30s local.
	SendInterval  time.Duration `env:"SEND_INTERVAL"  envDefault:"0"`
	NSteps        int           `env:"N_STEPS"        envDefault:"500"`
	Epochs        int           `env:"EPOCHS"         envDefault:"3"`
	Device        string        `env:"DEVICE"         envDefault:"cpu"`
	Optimizer     string        `env:"OPTIMIZER"      envDefault:"sgd"`
	Strategy      Strategy      `env:"STRATEGY"       envDefault:"weight_delta"`
	Sync          Sync          `env:"SYNC"           envDefault:"remote"`
	ClipThreshold float64       `env:"CLIP_THRESHOLD" envDefault:"0"`
	LogInterval   int           `env:"LOG_INTERVAL"   envDefault:"500"`
	ModelRepoRef  string        `env:"MODEL_REPO"     envDefault:""`
	// SaveModel publishes a full weight snapshot at every epoch boundary.
	SaveModel bool `env:"SAVE_MODEL" envDefault:"false"`
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse trainer environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("trainer configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return errors.New("learning_rate must be positive")
	}
	if c.CheckUpdateInterval <= 0 || c.SendInterval < 0 {
		return ErrBadInterval
	}
	if c.Epochs <= 0 {
		return ErrBadEpochs
	}
	if c.NSteps <= 0 {
		return ErrBadNSteps
	}
	if c.LogInterval <= 0 {
		return errors.New("log_interval must be positive")
	}
	switch c.Optimizer {
	case "sgd", "adamw":
	default:
		return fmt.Errorf("unknown optimizer %q", c.Optimizer)
	}

	return c.Policy().Validate()
}

func (c Config) Policy() Policy {
	return Policy{Strategy: c.Strategy, Sync: c.Sync}
}

// EffectiveSendInterval resolves the zero value to the policy default.
func (c Config) EffectiveSendInterval() time.Duration {
	if c.SendInterval > 0 {
		return c.SendInterval
	}

	return c.Policy().DefaultSendInterval()
}
