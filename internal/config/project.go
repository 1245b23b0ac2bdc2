package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/syncengine"
)

// Exported constants.
const (
	EnvPrefix         = "DEPOTSYNC"
	ProjectConfigName = "depot-sync"
)

// TemplateDef is one named root-path template.
type TemplateDef struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

// MappingDef maps an entity type to a template name. Mappings are a list rather
// than a map so entity type names keep their case.
type MappingDef struct {
	EntityType string `mapstructure:"entity_type"`
	Template   string `mapstructure:"template"`
}

// Project is the per-project configuration file.
type Project struct {
	// Path is the file that was read, or empty when defaults were used.
	Path string `mapstructure:"-"`

	StorageRoot        string        `mapstructure:"storage_root"`
	CreateFolders      bool          `mapstructure:"create_folders"`
	Templates          []TemplateDef `mapstructure:"templates"`
	Mappings           []MappingDef  `mapstructure:"mappings"`
	ParentField        string        `mapstructure:"parent_field"`
	EnvAssetType       string        `mapstructure:"env_asset_type"`
	ExpandLinkedAssets bool          `mapstructure:"expand_linked_assets"`
	TaskStatuses       []string      `mapstructure:"task_statuses"`
	LargeFileThreshold int64         `mapstructure:"large_file_threshold"`
	WorkerCap          int           `mapstructure:"worker_cap"`
	ProgressBatch      int           `mapstructure:"progress_batch"`
}

// LoadProject reads the project file. An empty path searches the working
// directory and ~/.config/depot-sync, and falls back to defaults when nothing is
// found. Every scalar key can be overridden with DEPOTSYNC_<KEY>.
func LoadProject(path string) (*Project, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ProjectConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil { //nolint:noinlineerr // Optional search path
			v.AddConfigPath(filepath.Join(home, ".config", ProjectConfigName))
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	project := &Project{}

	err = v.Unmarshal(project)
	if err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", v.ConfigFileUsed(), err)
	}

	project.Path = v.ConfigFileUsed()

	err = project.Validate()
	if err != nil {
		return nil, err
	}

	return project, nil
}

func setDefaults(v *viper.Viper) {
	templates := make([]TemplateDef, 0, len(roots.DefaultTemplates()))
	for _, name := range slices.Sorted(maps.Keys(roots.DefaultTemplates())) {
		templates = append(templates, TemplateDef{Name: name, Pattern: roots.DefaultTemplates()[name]})
	}

	mappings := make([]MappingDef, 0, len(roots.DefaultMapping()))
	for _, entityType := range slices.Sorted(maps.Keys(roots.DefaultMapping())) {
		mappings = append(mappings, MappingDef{EntityType: entityType, Template: roots.DefaultMapping()[entityType]})
	}

	v.SetDefault("storage_root", roots.ClientRootVar)
	v.SetDefault("create_folders", true)
	v.SetDefault("templates", templates)
	v.SetDefault("mappings", mappings)
	v.SetDefault("parent_field", entity.DefaultParentField)
	v.SetDefault("env_asset_type", entity.DefaultEnvAssetType)
	v.SetDefault("expand_linked_assets", true)
	v.SetDefault("task_statuses", entity.DefaultTaskStatuses)
	v.SetDefault("large_file_threshold", syncengine.DefaultLargeFileThreshold)
	v.SetDefault("worker_cap", syncengine.DefaultWorkerCap)
	v.SetDefault("progress_batch", syncengine.DefaultProgressBatch)
}

// Validate checks that every mapping names a defined template.
func (p *Project) Validate() error {
	defined := make(map[string]bool, len(p.Templates))
	for _, tmpl := range p.Templates {
		if tmpl.Name == "" || tmpl.Pattern == "" {
			return fmt.Errorf("template needs a name and a pattern: %+v", tmpl) //nolint:err113 // Config error
		}

		defined[tmpl.Name] = true
	}

	for _, m := range p.Mappings {
		if !defined[m.Template] {
			return fmt.Errorf("mapping %s -> %s: template not defined", m.EntityType, m.Template) //nolint:err113 // Config error
		}
	}

	if p.WorkerCap <= 0 {
		return fmt.Errorf("worker_cap must be positive: %d", p.WorkerCap) //nolint:err113 // Config error
	}

	return nil
}

// RootsConfig converts the project to root resolver settings.
func (p *Project) RootsConfig() roots.Config {
	cfg := roots.Config{
		StorageRoot:   p.StorageRoot,
		Templates:     make(map[string]string, len(p.Templates)),
		Mapping:       make(map[string]string, len(p.Mappings)),
		CreateFolders: p.CreateFolders,
	}

	for _, tmpl := range p.Templates {
		cfg.Templates[tmpl.Name] = tmpl.Pattern
	}

	for _, m := range p.Mappings {
		cfg.Mapping[m.EntityType] = m.Template
	}

	return cfg
}

// EntityOptions converts the project to entity resolver settings.
func (p *Project) EntityOptions(cfg *Config) entity.Options {
	return entity.Options{
		ParentField:        p.ParentField,
		EnvAssetType:       p.EnvAssetType,
		ExpandLinkedAssets: p.ExpandLinkedAssets,
		User:               cfg.UserLink(),
		Project:            cfg.ProjectLink(),
		TaskStatuses:       p.TaskStatuses,
	}
}

// EngineOptions converts the project and flags to engine settings.
func (p *Project) EngineOptions(cfg *Config, facetKeys []string) syncengine.Options {
	workers := cfg.Workers
	if workers == 0 {
		workers = syncengine.Workers(p.WorkerCap)
	}

	return syncengine.Options{
		Workers:            workers,
		ProgressBatch:      p.ProgressBatch,
		LargeFileThreshold: p.LargeFileThreshold,
		FacetKeys:          facetKeys,
		BackendTimeout:     cfg.BackendTimeout,
	}
}
