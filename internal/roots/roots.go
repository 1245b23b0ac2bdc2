// Package roots resolves sync units to the root path the backend is asked about.
package roots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/singleflight"

	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/tracking"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Exported constants.
const (
	// ClientRootVar in the storage root is replaced by the backend client root.
	ClientRootVar = "$CLIENT_ROOT"
	// RecursiveSuffix is appended to tree roots.
	RecursiveSuffix   = "/..."
	FolderPermissions = 0o755
)

// Config describes where entity trees live.
type Config struct {
	// StorageRoot prefixes every rendered template and relative published-file path.
	StorageRoot string
	// Templates maps template name to pattern.
	Templates map[string]string
	// Mapping maps entity type to template name.
	Mapping map[string]string
	// CreateFolders materializes the rendered folder and records it as the entity's path.
	CreateFolders bool
}

// DefaultMapping is the standard entity type to template name mapping.
func DefaultMapping() map[string]string {
	return map[string]string{
		entity.DefaultEnvAssetType: "env_asset_root",
		entity.TypeAsset:           "asset_root",
		entity.TypeSequence:        "sequence_root",
		entity.TypeShot:            "shot_root",
	}
}

// DefaultTemplates returns the standard folder layout under the storage root.
func DefaultTemplates() map[string]string {
	return map[string]string{
		"asset_root":     "{Project}/assets/{Asset}",
		"env_asset_root": "{Project}/environments/{CustomEntity01}",
		"sequence_root":  "{Project}/sequences/{Sequence}",
		"shot_root":      "{Project}/sequences/{Sequence}/{Shot}",
	}
}

// ResolvedRoot is the outcome for one unit. Exactly one of Path and Err is set.
type ResolvedRoot struct {
	Ref       entity.Ref
	Context   *tracking.Context
	AssetName string
	Path      string
	Err       error
}

// Resolver resolves roots. It is safe for concurrent use.
type Resolver struct {
	tracker tracking.Tracker
	cfg     Config
	logger  *slog.Logger

	mu          sync.RWMutex
	clientRoot  string
	group       singleflight.Group
	materialize mapset.Set[string]
}

// New validates cfg and creates a Resolver.
func New(tracker tracking.Tracker, cfg Config, logger *slog.Logger) (*Resolver, error) {
	if cfg.Mapping == nil {
		cfg.Mapping = DefaultMapping()
	}

	for entityType, name := range cfg.Mapping {
		if _, ok := cfg.Templates[name]; !ok {
			return nil, fmt.Errorf("entity type %s maps to undefined template %q", entityType, name)
		}
	}

	return &Resolver{
		tracker:     tracker,
		cfg:         cfg,
		logger:      logger,
		materialize: mapset.NewSet[string](),
	}, nil
}

// SetClientRoot records the backend client root used for ClientRootVar.
func (r *Resolver) SetClientRoot(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clientRoot = root
}

func (r *Resolver) storageRoot() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return strings.ReplaceAll(r.cfg.StorageRoot, ClientRootVar, r.clientRoot)
}

// Resolve never returns an error directly; failures are recorded on the result.
func (r *Resolver) Resolve(ctx context.Context, ref entity.Ref) ResolvedRoot {
	result := ResolvedRoot{Ref: ref, AssetName: ref.Code}

	if ref.ExactFile {
		return r.resolveExact(ref, result)
	}

	if ref.Code == "" {
		rec, err := r.tracker.FindOne(ctx, ref.Type, []tracking.Filter{tracking.Is("id", ref.ID)}, []string{"code"})
		if err != nil {
			return r.fail(result, err)
		}

		ref.Code = rec.String("code")
		result.Ref = ref
		result.AssetName = ref.Code
	}

	tctx, err := r.tracker.ContextFromEntity(ctx, ref.Type, ref.ID)
	if err != nil {
		return r.fail(result, err)
	}

	result.Context = tctx
	if tctx.Entity.Name != "" {
		result.AssetName = tctx.Entity.Name
	}

	tmpl, err := r.template(ref.Type)
	if err != nil {
		return r.fail(result, err)
	}

	if r.cfg.CreateFolders {
		err = r.materializeOnce(ctx, ref, tmpl, tctx)
		if err != nil {
			return r.fail(result, err)
		}
	}

	paths, err := r.tracker.PathsFromEntity(ctx, ref.Type, ref.ID)
	if err != nil {
		return r.fail(result, err)
	}

	switch len(paths) {
	case 0:
		return r.fail(result, syncerrors.ErrNoRoot)
	case 1:
		result.Path = toSlash(paths[0]) + RecursiveSuffix
		return result
	default:
		return r.fail(result, fmt.Errorf("%w: %s", syncerrors.ErrAmbiguousRoot, strings.Join(paths, ", ")))
	}
}

// ResolveAll resolves units in order.
func (r *Resolver) ResolveAll(ctx context.Context, refs []entity.Ref) []ResolvedRoot {
	out := make([]ResolvedRoot, 0, len(refs))
	for _, ref := range refs {
		out = append(out, r.Resolve(ctx, ref))
	}

	return out
}

func (r *Resolver) resolveExact(ref entity.Ref, result ResolvedRoot) ResolvedRoot {
	if ref.PathCache == "" {
		return r.fail(result, syncerrors.ErrNoRoot)
	}

	p := ref.PathCache
	if !filepath.IsAbs(p) && !path.IsAbs(toSlash(p)) {
		p = filepath.Join(r.storageRoot(), p)
	}

	result.Path = toSlash(p)

	return result
}

func (r *Resolver) template(entityType string) (Template, error) {
	name, ok := r.cfg.Mapping[entityType]
	if !ok {
		return Template{}, fmt.Errorf("%w for entity type %s", syncerrors.ErrNoTemplate, entityType)
	}

	return Template{Name: name, Pattern: r.cfg.Templates[name]}, nil
}

// materializeOnce creates the entity's folder and records it, at most once per
// entity for the resolver's lifetime. Concurrent callers for one entity share a call.
func (r *Resolver) materializeOnce(ctx context.Context, ref entity.Ref, tmpl Template, tctx *tracking.Context) error {
	key := ref.Key()
	if r.materialize.Contains(key) {
		return nil
	}

	_, err, _ := r.group.Do(key, func() (any, error) {
		if r.materialize.Contains(key) {
			return nil, nil
		}

		rel, err := tmpl.Apply(tctx.Fields)
		if err != nil {
			return nil, err
		}

		dir := filepath.Join(r.storageRoot(), filepath.FromSlash(rel))

		err = os.MkdirAll(dir, FolderPermissions)
		if err != nil {
			return nil, fmt.Errorf("create folder %s: %w", dir, err)
		}

		err = r.tracker.RegisterPath(ctx, ref.Type, ref.ID, dir)
		if err != nil {
			return nil, err //nolint:wrapcheck // tracker errors name the entity
		}

		r.materialize.Add(key)
		r.logger.Debug("materialized folder", "entity", ref.String(), "path", dir)

		return nil, nil
	})

	return err //nolint:wrapcheck // wrapped in ResolutionError by Resolve
}

func (r *Resolver) fail(result ResolvedRoot, err error) ResolvedRoot {
	var resolution *syncerrors.ResolutionError
	if !errors.As(err, &resolution) {
		err = &syncerrors.ResolutionError{EntityType: result.Ref.Type, EntityID: result.Ref.ID, Err: err}
	}

	if result.AssetName == "" {
		result.AssetName = result.Ref.String()
	}

	result.Err = err
	r.logger.Warn("root resolution failed", "entity", result.Ref.String(), "error", err)

	return result
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
