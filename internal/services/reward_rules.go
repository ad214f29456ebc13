package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/greenloop/recircle-backend/internal/types"
)

// Duration wraps time.Duration so YAML overrides can use the human
// form ("45s", "10m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// RewardRules is the tunable half of reward calculation. Operations can
// override the defaults with a YAML file (REWARD_RULES_PATH) without a
// redeploy.
type RewardRules struct {
	BasePoints map[types.Material]int `yaml:"base_points"`

	DailyCap      int `yaml:"daily_cap"`
	PointDailyCap int `yaml:"point_daily_cap"`

	SameMaterialLimit  int      `yaml:"same_material_limit"`
	SameMaterialWindow Duration `yaml:"same_material_window"`
	MinActionGap       Duration `yaml:"min_action_gap"`
	MinSamePointGap    Duration `yaml:"min_same_point_gap"`

	StreakStep          float64 `yaml:"streak_step"`
	MaxStreakMultiplier float64 `yaml:"max_streak_multiplier"`
}

func DefaultRewardRules() RewardRules {
	return RewardRules{
		BasePoints: map[types.Material]int{
			types.MaterialGlass:     10,
			types.MaterialMetal:     7,
			types.MaterialPlastic:   5,
			types.MaterialCardboard: 4,
			types.MaterialPaper:     3,
		},
		DailyCap:            100,
		PointDailyCap:       40,
		SameMaterialLimit:   3,
		SameMaterialWindow:  Duration(10 * time.Minute),
		MinActionGap:        Duration(30 * time.Second),
		MinSamePointGap:     Duration(120 * time.Second),
		StreakStep:          0.05,
		MaxStreakMultiplier: 2.0,
	}
}

// LoadRewardRules reads overrides from path on top of the defaults. An
// empty path returns the defaults unchanged.
func LoadRewardRules(path string) (RewardRules, error) {
	rules := DefaultRewardRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read reward rules: %w", err)
	}
	var overrides RewardRules
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return rules, fmt.Errorf("parse reward rules: %w", err)
	}
	for m, pts := range overrides.BasePoints {
		if !m.Valid() {
			return rules, fmt.Errorf("reward rules: unknown material %q", m)
		}
		rules.BasePoints[m] = pts
	}
	if overrides.DailyCap > 0 {
		rules.DailyCap = overrides.DailyCap
	}
	if overrides.PointDailyCap > 0 {
		rules.PointDailyCap = overrides.PointDailyCap
	}
	if overrides.SameMaterialLimit > 0 {
		rules.SameMaterialLimit = overrides.SameMaterialLimit
	}
	if overrides.SameMaterialWindow > 0 {
		rules.SameMaterialWindow = overrides.SameMaterialWindow
	}
	if overrides.MinActionGap > 0 {
		rules.MinActionGap = overrides.MinActionGap
	}
	if overrides.MinSamePointGap > 0 {
		rules.MinSamePointGap = overrides.MinSamePointGap
	}
	if overrides.StreakStep > 0 {
		rules.StreakStep = overrides.StreakStep
	}
	if overrides.MaxStreakMultiplier > 0 {
		rules.MaxStreakMultiplier = overrides.MaxStreakMultiplier
	}
	return rules, nil
}
