package trainer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmml/swarmtrain/artifact"
	"github.com/swarmml/swarmtrain/trainer"
)

func TestPolicyGrid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc          string
		policy        trainer.Policy
		stepEachBatch bool
		pullEachStep  bool
		artifactName  string
		sendInterval  time.Duration
	}{
		{
			desc:          "full gradient remote",
			policy:        trainer.Policy{Strategy: trainer.FullGradient, Sync: trainer.RemoteSync},
			stepEachBatch: true,
			pullEachStep:  false,
			artifactName:  artifact.Gradients,
			sendInterval:  300 * time.Second,
		},
		{
			desc:          "full gradient local",
			policy:        trainer.Policy{Strategy: trainer.FullGradient, Sync: trainer.LocalOnly},
			stepEachBatch: false,
			pullEachStep:  false,
			artifactName:  artifact.Gradients,
			sendInterval:  30 * time.Second,
		},
		{
			desc:          "weight delta remote",
			policy:        trainer.Policy{Strategy: trainer.WeightDelta, Sync: trainer.RemoteSync},
			stepEachBatch: true,
			pullEachStep:  true,
			artifactName:  artifact.WeightDiff,
			sendInterval:  300 * time.Second,
		},
		{
			desc:          "weight delta local",
			policy:        trainer.Policy{Strategy: trainer.WeightDelta, Sync: trainer.LocalOnly},
			stepEachBatch: true,
			pullEachStep:  true,
			artifactName:  artifact.WeightDiff,
			sendInterval:  30 * time.Second,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			require.NoError(t, tc.policy.Validate())
			assert.Equal(t, tc.stepEachBatch, tc.policy.StepEachBatch())
			assert.Equal(t, tc.pullEachStep, tc.policy.PullEachStep())
			assert.Equal(t, tc.artifactName, tc.policy.ArtifactName())
			assert.Equal(t, tc.sendInterval, tc.policy.DefaultSendInterval())
		})
	}
}

func TestPolicyValidateRejectsUnknown(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, trainer.Policy{Strategy: "momentum", Sync: trainer.RemoteSync}.Validate(), trainer.ErrInvalidPolicy)
	assert.ErrorIs(t, trainer.Policy{Strategy: trainer.FullGradient, Sync: "p2p"}.Validate(), trainer.ErrInvalidPolicy)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := trainer.Config{
		LearningRate:        5e-5,
		CheckUpdateInterval: 300 * time.Second,
		NSteps:              500,
		Epochs:              3,
		Optimizer:           "sgd",
		Strategy:            trainer.WeightDelta,
		Sync:                trainer.RemoteSync,
		LogInterval:         500,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		desc   string
		mutate func(*trainer.Config)
		want   error
	}{
		{"zero epochs", func(c *trainer.Config) { c.Epochs = 0 }, trainer.ErrBadEpochs},
		{"zero n_steps", func(c *trainer.Config) { c.NSteps = 0 }, trainer.ErrBadNSteps},
		{"zero check interval", func(c *trainer.Config) { c.CheckUpdateInterval = 0 }, trainer.ErrBadInterval},
		{"negative send interval", func(c *trainer.Config) { c.SendInterval = -time.Second }, trainer.ErrBadInterval},
		{"bad policy", func(c *trainer.Config) { c.Strategy = "ensemble" }, trainer.ErrInvalidPolicy},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}

func TestEffectiveSendInterval(t *testing.T) {
	t.Parallel()

	cfg := trainer.Config{Strategy: trainer.FullGradient, Sync: trainer.LocalOnly}
	assert.Equal(t, 30*time.Second, cfg.EffectiveSendInterval())

	cfg.SendInterval = 45 * time.Second
	assert.Equal(t, 45*time.Second, cfg.EffectiveSendInterval())

	cfg = trainer.Config{Strategy: trainer.FullGradient, Sync: trainer.RemoteSync}
	assert.Equal(t, 300*time.Second, cfg.EffectiveSendInterval())
}
