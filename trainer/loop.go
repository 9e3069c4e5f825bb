package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/swarmml/swarmtrain/artifact"
	"github.com/swarmml/swarmtrain/dataset"
	"github.com/swarmml/swarmtrain/hub"
	"github.com/swarmml/swarmtrain/identity"
	"github.com/swarmml/swarmtrain/model"
	"github.com/swarmml/swarmtrain/optim"
)

var ErrNothingToPublish = errors.New("nothing accumulated to publish")

// Loop is the staleness-aware training loop: it interleaves local
// optimization steps with pulls of the externally averaged model and pushes
// of locally computed artifacts. Everything runs on the calling goroutine;
// pulls, pushes and evaluation block step progress, and the module and
// optimizer are owned exclusively by the loop.
type Loop struct {
	cfg    Config
	policy Policy

	module    model.Module
	optimizer optim.Optimizer
	loader    dataset.Loader
	gateway   hub.Gateway
	baseline  *model.Tracker
	acc       *Accumulator
	clock     *Clock
	sink      Sink
	wallet    identity.Wallet
	logger    *slog.Logger

	testLoader dataset.Loader
	usage      UsageSampler
	store      RunStateStore
	runID      string

	stepCounter int
}

func NewLoop(cfg Config, m model.Module, loader dataset.Loader, gateway hub.Gateway, wallet identity.Wallet, sink Sink, logger *slog.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, errors.New("wallet identity is required")
	}

	opt, err := buildOptimizer(cfg)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:       cfg,
		policy:    cfg.Policy(),
		module:    m,
		optimizer: opt,
		loader:    loader,
		gateway:   gateway,
		baseline:  model.NewTracker(),
		acc:       NewAccumulator(cfg.ClipThreshold),
		clock:     NewClock(cfg.CheckUpdateInterval, cfg.EffectiveSendInterval(), nil),
		sink:      sink,
		wallet:    wallet,
		logger:    logger,
		runID:     "miner_" + wallet.Hotkey(),
	}

	return l, nil
}

// WithNow overrides the loop's time source.
func (l *Loop) WithNow(now func() time.Time) *Loop {
	l.clock = NewClock(l.cfg.CheckUpdateInterval, l.cfg.EffectiveSendInterval(), now)

	return l
}

// WithTestLoader enables evaluation checkpoints at the n_steps cadence.
func (l *Loop) WithTestLoader(loader dataset.Loader) *Loop {
	l.testLoader = loader

	return l
}

// WithUsage enables the resource metric series.
func (l *Loop) WithUsage(sampler UsageSampler) *Loop {
	l.usage = sampler

	return l
}

// WithRunState persists progress so a restarted miner resumes its cadence.
func (l *Loop) WithRunState(store RunStateStore) *Loop {
	l.store = store

	return l
}

// Run drives the whole training session. Recoverable conditions (push and
// pull failures) are logged and absorbed; anything else aborts the run.
// Cancellation is honored at epoch boundaries only: a running epoch always
// completes.
func (l *Loop) Run(ctx context.Context) error {
	l.restore(ctx)
	l.clock.Arm()
	l.logRunParams()
	l.baseline.Rebase(l.module.Parameters())
	l.module.TrainMode()

	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := l.runEpoch(ctx, epoch); err != nil {
			return err
		}
		if l.cfg.SaveModel {
			l.saveSnapshot(ctx, epoch)
		}
		l.persist(ctx)
	}

	return nil
}

// saveSnapshot publishes a full weight snapshot. Failures are recoverable
// like any other push: the next epoch produces a fresh snapshot anyway.
func (l *Loop) saveSnapshot(ctx context.Context, epoch int) {
	if _, err := artifact.Save(l.module.Parameters().State(), l.gateway.StagingDir(), artifact.AveragedModel); err != nil {
		l.logger.Warn("staging model snapshot failed", slog.Int("epoch", epoch), slog.Any("error", err))

		return
	}
	if err := l.gateway.Push(ctx, artifact.AveragedModel); err != nil {
		l.logger.Warn("pushing model snapshot failed", slog.Int("epoch", epoch), slog.Any("error", err))

		return
	}

	l.logger.Info("model snapshot published",
		slog.Int("epoch", epoch),
		slog.String("model_hash", model.Hash(l.module.Parameters())))
}

func (l *Loop) runEpoch(ctx context.Context, epoch int) error {
	l.logger.Info("starting epoch", slog.Int("epoch", epoch))

	// Loss and example counters are an epoch-scoped window in every
	// policy; only the step counter persists across epochs.
	var totalLoss float64
	var totalExamples int

	if !l.policy.PullEachStep() {
		l.maybePull(ctx)
	}

	l.loader.Reset()
	for {
		batch, ok := l.loader.Next()
		if !ok {
			return nil
		}

		if l.policy.PullEachStep() {
			l.maybePull(ctx)
		}

		res, err := l.module.ForwardBackward(batch)
		if err != nil {
			return fmt.Errorf("training step %d: %w", l.stepCounter, err)
		}

		totalLoss += res.Loss * float64(res.Examples)
		totalExamples += res.Examples

		if l.policy.Strategy == FullGradient {
			if err := l.acc.Add(res.Gradients); err != nil {
				return fmt.Errorf("training step %d: %w", l.stepCounter, err)
			}
		}
		if l.policy.StepEachBatch() {
			if err := l.optimizer.Step(l.module.Parameters(), res.Gradients); err != nil {
				return fmt.Errorf("optimizer step %d: %w", l.stepCounter, err)
			}
		}

		if (l.stepCounter+1)%l.cfg.NSteps == 0 {
			if err := l.checkpoint(totalLoss, totalExamples); err != nil {
				return err
			}
		}

		if l.stepCounter%l.cfg.LogInterval == 0 {
			l.emitStepMetrics(res.Loss)
		}

		l.stepCounter++

		if l.clock.PushDue() {
			l.logWindow(epoch, totalLoss, totalExamples)
			l.dispatchPush(ctx)
		}
	}
}

// checkpoint runs at the n_steps cadence: the full-gradient local policy
// injects the accumulated gradient as one optimizer step, and evaluation
// runs when a held-out loader is configured.
func (l *Loop) checkpoint(totalLoss float64, totalExamples int) error {
	if !l.policy.StepEachBatch() && !l.acc.Empty() {
		if err := l.optimizer.Step(l.module.Parameters(), l.acc.Gradients()); err != nil {
			return fmt.Errorf("injecting accumulated gradient: %w", err)
		}
		l.acc.Reset()
	}

	if l.testLoader == nil {
		return nil
	}

	// Evaluation is auxiliary: a checkpoint that cannot run is logged
	// and skipped, never fatal to training.
	testLoss, testAccuracy, err := Evaluate(l.module, l.testLoader)
	if err != nil {
		l.logger.Warn("evaluation checkpoint skipped",
			slog.Int("step", l.stepCounter),
			slog.Any("error", err))

		return nil
	}

	args := []any{
		slog.Int("step", l.stepCounter),
		slog.Float64("test_loss", testLoss),
		slog.Float64("test_accuracy", testAccuracy),
	}
	if totalExamples > 0 {
		args = append(args, slog.Float64("train_loss", totalLoss/float64(totalExamples)))
	}
	l.logger.Info("evaluation checkpoint", args...)

	return nil
}

// maybePull checks the hub for a newer averaged model and swaps it in. All
// failures here are recoverable: log, skip this interval, retry at the next
// due instant. The pull timer advances after every attempt regardless of
// whether a new submission existed.
func (l *Loop) maybePull(ctx context.Context) {
	if !l.clock.PullDue() {
		return
	}
	defer l.clock.MarkPullAttempt()

	has, err := l.gateway.HasNewSubmission(ctx, l.cfg.ModelRepoRef)
	if err != nil {
		l.logger.Warn("submission poll failed", slog.Any("error", err))

		return
	}
	if !has {
		return
	}

	l.logger.Info("averaged model updated on hub, pulling latest model")
	if err := l.gateway.PullLatest(ctx); err != nil {
		l.logger.Warn("model pull failed", slog.Any("error", err))

		return
	}
	if err := l.gateway.LoadInto(ctx, l.module); err != nil {
		l.logger.Warn("loading pulled model failed", slog.Any("error", err))

		return
	}

	// The swapped model gets a fresh optimizer: momentum and moment
	// estimates from the previous weights are discarded, not carried over.
	opt, err := buildOptimizer(l.cfg)
	if err != nil {
		l.logger.Warn("optimizer reinitialization failed", slog.Any("error", err))

		return
	}
	l.optimizer = opt
	l.baseline.Rebase(l.module.Parameters())

	l.logger.Info("continuing training with pulled model",
		slog.String("model_hash", model.Hash(l.module.Parameters())),
		slog.Int("baseline_version", l.baseline.Version()))
}

// dispatchPush is the single point where publish failures are absorbed.
// The send timer advances on success and failure alike.
func (l *Loop) dispatchPush(ctx context.Context) {
	staleness := l.clock.Staleness()
	err := l.publish(ctx)
	l.clock.MarkPushAttempt()
	l.persist(ctx)

	if err != nil {
		l.logger.Warn("sending artifact failed", slog.Any("error", err))

		return
	}

	l.sink.Observe(MetricStaleness, staleness.Seconds(), l.stepCounter)
	if l.usage != nil {
		l.sink.Observe(MetricNetworkBandwidth, l.usage.NetworkBandwidth(), l.stepCounter)
	}
}

func (l *Loop) publish(ctx context.Context) error {
	var state model.State
	switch l.policy.Strategy {
	case FullGradient:
		if l.acc.Empty() {
			return ErrNothingToPublish
		}
		state = l.acc.Snapshot()
	case WeightDelta:
		diff, err := l.baseline.Delta(l.module.Parameters())
		if err != nil {
			return fmt.Errorf("computing weight delta: %w", err)
		}
		state = diff
	}

	name := l.policy.ArtifactName()
	path, err := artifact.Save(state, l.gateway.StagingDir(), name)
	if err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}
	if err := l.gateway.Push(ctx, name); err != nil {
		return err
	}

	size, _ := artifact.Size(path)
	l.logger.Info("artifact sent",
		slog.String("artifact", name),
		slog.Int64("bytes", size),
		slog.String("model_hash", model.Hash(l.module.Parameters())))

	return nil
}

func (l *Loop) logWindow(epoch int, totalLoss float64, totalExamples int) {
	// No examples in this window: nothing meaningful to report, and the
	// average would divide by zero.
	if totalExamples == 0 {
		return
	}

	averageLoss := totalLoss / float64(totalExamples)
	args := []any{
		slog.Int("epoch", epoch),
		slog.Int("examples", totalExamples),
		slog.Float64("loss", averageLoss),
	}
	if l.policy.Sync == RemoteSync {
		args = append(args, slog.Float64("perplexity", math.Exp(averageLoss)))
	}
	l.logger.Info("window summary", args...)
}

func (l *Loop) emitStepMetrics(loss float64) {
	l.sink.Observe(MetricTrainLoss, loss, l.stepCounter)
	if l.usage != nil {
		l.sink.Observe(MetricMemoryUsage, l.usage.MemoryUsage(), l.stepCounter)
		l.sink.Observe(MetricGPUUsage, l.usage.GPUUtilization(), l.stepCounter)
	}
}

func (l *Loop) logRunParams() {
	l.sink.Param("run_id", l.runID)
	l.sink.Param("device", l.cfg.Device)
	l.sink.Param("code_version", Version)
	l.sink.Param("learning_rate", strconv.FormatFloat(l.cfg.LearningRate, 'g', -1, 64))
	l.sink.Param("send_interval", l.cfg.EffectiveSendInterval().String())
	l.sink.Param("check_update_interval", l.cfg.CheckUpdateInterval.String())
	l.sink.Param("strategy", string(l.policy.Strategy))
	l.sink.Param("sync", string(l.policy.Sync))
}

func (l *Loop) restore(ctx context.Context) {
	if l.store == nil {
		return
	}

	state, err := l.store.Load(ctx)
	if errors.Is(err, ErrNoRunState) {
		return
	}
	if err != nil {
		l.logger.Warn("loading run state failed", slog.Any("error", err))

		return
	}

	l.stepCounter = state.StepCounter
	l.clock.Restore(state.LastPull, state.LastSend, state.Pushed)
	l.logger.Info("resumed run state",
		slog.String("run_id", state.RunID),
		slog.Int("step", state.StepCounter))
}

func (l *Loop) persist(ctx context.Context) {
	if l.store == nil {
		return
	}

	state := RunState{
		RunID:       l.runID,
		StepCounter: l.stepCounter,
		LastPull:    l.clock.LastPull(),
		LastSend:    l.clock.LastSend(),
		Pushed:      l.clock.Pushed(),
		ModelHash:   model.Hash(l.module.Parameters()),
		UpdatedAt:   time.Now(),
	}
	if err := l.store.Save(ctx, state); err != nil {
		l.logger.Warn("persisting run state failed", slog.Any("error", err))
	}
}

func buildOptimizer(cfg Config) (optim.Optimizer, error) {
	switch cfg.Optimizer {
	case "adamw":
		return optim.NewAdamW(cfg.LearningRate)
	default:
		return optim.NewSGD(cfg.LearningRate)
	}
}
