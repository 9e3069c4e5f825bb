package hub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/swarmml/swarmtrain/artifact"
	"github.com/swarmml/swarmtrain/model"
)

const (
	modelArtifactType = "application/vnd.swarmtrain.model.v1"
	modelMediaType    = "application/vnd.swarmtrain.tensors.v1+gob"
	latestTag         = "latest"
)

// RegistryConfig describes the OCI registries the miner talks to: one
// repository holding the averaged consensus model, one per-miner repository
// receiving its submissions.
type RegistryConfig struct {
	ModelRepo  string
	SubmitRepo string
	Username   string
	Password   string
	PlainHTTP  bool
}

// Registry is an OCI registry gateway. The averaged model is an artifact
// manifest tagged `latest`; a new submission is detected by comparing the
// remote manifest digest against the digest seen at the previous pull.
type Registry struct {
	cfg        RegistryConfig
	stagingDir string
	lastDigest string
	watcher    *Watcher
	logger     *slog.Logger
}

var _ Gateway = (*Registry)(nil)

func NewRegistry(cfg RegistryConfig, stagingDir string, logger *slog.Logger) (*Registry, error) {
	if cfg.ModelRepo == "" {
		return nil, fmt.Errorf("%w: model repository is required", ErrBadArtifactRef)
	}
	if cfg.SubmitRepo == "" {
		return nil, fmt.Errorf("%w: submit repository is required", ErrBadArtifactRef)
	}
	if err := os.MkdirAll(stagingDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &Registry{
		cfg:        cfg,
		stagingDir: stagingDir,
		logger:     logger,
	}, nil
}

// WithWatcher short-circuits submission polling through an MQTT
// announcement flag, so the hot path needs no registry round-trip.
func (r *Registry) WithWatcher(w *Watcher) *Registry {
	r.watcher = w

	return r
}

func (r *Registry) StagingDir() string {
	return r.stagingDir
}

func (r *Registry) HasNewSubmission(ctx context.Context, ref string) (bool, error) {
	if r.watcher != nil {
		return r.watcher.ConsumeAnnouncement(), nil
	}

	if ref == "" {
		ref = r.cfg.ModelRepo
	}
	repo, err := r.repository(ref)
	if err != nil {
		return false, err
	}

	desc, err := repo.Resolve(ctx, latestTag)
	if err != nil {
		return false, fmt.Errorf("%w: resolving %s: %w", ErrPullFailed, ref, err)
	}

	return desc.Digest.String() != r.lastDigest, nil
}

func (r *Registry) PullLatest(ctx context.Context) error {
	repo, err := r.repository(r.cfg.ModelRepo)
	if err != nil {
		return err
	}

	store, err := file.New(r.stagingDir)
	if err != nil {
		return fmt.Errorf("%w: opening staging store: %w", ErrPullFailed, err)
	}
	defer store.Close()

	desc, err := oras.Copy(ctx, repo, latestTag, store, latestTag, oras.DefaultCopyOptions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}
	r.lastDigest = desc.Digest.String()

	r.logger.Info("pulled averaged model",
		slog.String("repo", r.cfg.ModelRepo),
		slog.String("digest", r.lastDigest))

	return nil
}

func (r *Registry) LoadInto(_ context.Context, m model.Module) error {
	state, err := artifact.Load(r.stagedPath(artifact.AveragedModel))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPullFailed, err)
	}

	return m.LoadState(state)
}

func (r *Registry) Push(ctx context.Context, name string) error {
	if _, err := os.Stat(r.stagedPath(name)); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingStaged, name)
	}

	repo, err := r.repository(r.cfg.SubmitRepo)
	if err != nil {
		return err
	}

	store, err := file.New(r.stagingDir)
	if err != nil {
		return fmt.Errorf("%w: opening staging store: %w", ErrPushFailed, err)
	}
	defer store.Close()

	layer, err := store.Add(ctx, name, modelMediaType, "")
	if err != nil {
		return fmt.Errorf("%w: staging %s: %w", ErrPushFailed, name, err)
	}

	manifest, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, modelArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
	})
	if err != nil {
		return fmt.Errorf("%w: packing %s: %w", ErrPushFailed, name, err)
	}
	if err := store.Tag(ctx, manifest, latestTag); err != nil {
		return fmt.Errorf("%w: tagging %s: %w", ErrPushFailed, name, err)
	}

	if _, err := oras.Copy(ctx, store, latestTag, repo, latestTag, oras.DefaultCopyOptions); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}

	r.logger.Info("artifact pushed",
		slog.String("artifact", name),
		slog.String("repo", r.cfg.SubmitRepo),
		slog.String("digest", manifest.Digest.String()))

	return nil
}

func (r *Registry) stagedPath(name string) string {
	return filepath.Join(r.stagingDir, name)
}

func (r *Registry) repository(ref string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadArtifactRef, ref, err)
	}
	repo.PlainHTTP = r.cfg.PlainHTTP

	if r.cfg.Username != "" {
		repo.Client = &auth.Client{
			Client: retry.DefaultClient,
			Cache:  auth.NewCache(),
			Credential: auth.StaticCredential(repo.Reference.Registry, auth.Credential{
				Username: r.cfg.Username,
				Password: r.cfg.Password,
			}),
		}
	}

	return repo, nil
}
