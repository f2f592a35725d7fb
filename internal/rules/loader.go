package rules

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
)

// RulePack is one YAML file of tenant causal rules. A pack without a tenant
// id contributes additional system-wide rules.
type RulePack struct {
	TenantID *uint      `yaml:"tenant_id"`
	Rules    []PackRule `yaml:"rules" validate:"required,min=1,dive"`
}

// PackRule is the YAML shape of a single causal rule.
type PackRule struct {
	Name                   string        `yaml:"name" validate:"required,max=100"`
	NameAr                 string        `yaml:"name_ar" validate:"max=100"`
	Description            string        `yaml:"description"`
	Triggers               []PackTrigger `yaml:"triggers" validate:"required,min=1,dive"`
	AssetTypes             []string      `yaml:"asset_types"`
	RootCause              string        `yaml:"root_cause" validate:"required,max=100"`
	ConfidenceBoost        float64       `yaml:"confidence_boost" validate:"gte=0,lte=1"`
	RecommendedActions     []PackAction  `yaml:"recommended_actions" validate:"dive"`
	EstimatedDowntimeHours float64       `yaml:"estimated_downtime_hours" validate:"gte=0"`
	Priority               int           `yaml:"priority"`
	Enabled                *bool         `yaml:"enabled"`
}

type PackTrigger struct {
	Metric    string  `yaml:"metric" validate:"required"`
	Condition string  `yaml:"condition"`
	Threshold float64 `yaml:"threshold"`
}

type PackAction struct {
	Priority int    `yaml:"priority"`
	Action   string `yaml:"action" validate:"required"`
	ActionAr string `yaml:"action_ar"`
	Category string `yaml:"category"`
}

// Loader reads rule-pack files and upserts them into the rule table.
type Loader struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewLoader(db *gorm.DB) *Loader {
	return &Loader{db: db, validate: validator.New()}
}

// LoadDir loads every .yaml/.yml pack in dir. A missing directory is not an
// error; a malformed pack is, so bad configuration fails startup loudly.
func (l *Loader) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading rule pack directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		n, err := l.LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading rule pack %s: %w", path, err)
		}
		loaded += n
	}
	if loaded > 0 {
		log.Printf("Loaded %d causal rules from packs in %s", loaded, dir)
	}
	return nil
}

// LoadFile parses, validates, and upserts one pack. Returns the number of
// rules applied.
func (l *Loader) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var pack RulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return 0, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := l.validate.Struct(&pack); err != nil {
		return 0, fmt.Errorf("invalid rule pack: %w", err)
	}

	for _, pr := range pack.Rules {
		if err := l.upsertRule(pack.TenantID, pr); err != nil {
			return 0, fmt.Errorf("rule %q: %w", pr.Name, err)
		}
	}
	return len(pack.Rules), nil
}

// upsertRule matches pack rules to rows by (tenant, name). Pack rules never
// touch the seeded system rules even when names collide.
func (l *Loader) upsertRule(tenantID *uint, pr PackRule) error {
	rule := packRuleToModel(tenantID, pr)

	q := l.db.Where("name = ? AND is_system = ?", rule.Name, false)
	if tenantID == nil {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id = ?", *tenantID)
	}

	var existing database.RCARule
	err := q.First(&existing).Error
	if err == nil {
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
		return l.db.Save(&rule).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return l.db.Create(&rule).Error
}

func packRuleToModel(tenantID *uint, pr PackRule) database.RCARule {
	triggers := make(database.TriggerList, 0, len(pr.Triggers))
	for _, t := range pr.Triggers {
		triggers = append(triggers, database.RuleTrigger{
			Metric:    t.Metric,
			Condition: t.Condition,
			Threshold: t.Threshold,
		})
	}

	actions := make(database.ActionList, 0, len(pr.RecommendedActions))
	for _, a := range pr.RecommendedActions {
		actions = append(actions, database.RecommendedAction{
			Priority: a.Priority,
			Action:   a.Action,
			ActionAr: a.ActionAr,
			Category: a.Category,
			Source:   "pack",
		})
	}

	boost := pr.ConfidenceBoost
	if boost == 0 {
		boost = 0.5
	}
	downtime := pr.EstimatedDowntimeHours
	if downtime == 0 {
		downtime = 4
	}
	priority := pr.Priority
	if priority == 0 {
		priority = 100
	}
	enabled := true
	if pr.Enabled != nil {
		enabled = *pr.Enabled
	}

	return database.RCARule{
		TenantID:               tenantID,
		Name:                   pr.Name,
		NameAr:                 pr.NameAr,
		Description:            pr.Description,
		Triggers:               triggers,
		AssetTypes:             database.StringList(pr.AssetTypes),
		RootCauseCategory:      pr.RootCause,
		ConfidenceBoost:        boost,
		RecommendedActions:     actions,
		EstimatedDowntimeHours: downtime,
		Enabled:                enabled,
		IsSystem:               false,
		Priority:               priority,
	}
}
