package forge

import (
	"fmt"
)

// UpgradeEffectKind names what an upgrade changes.
type UpgradeEffectKind string

const (
	// UpgradeCapacity raises the capacity of Resource (the primary currency by default).
	UpgradeCapacity UpgradeEffectKind = "capacity"
	// UpgradeClickAmount raises how much primary currency a conjure or auto earn yields.
	UpgradeClickAmount UpgradeEffectKind = "click_amount"
	// UpgradeAutoInterval changes the auto-progression interval by Delta milliseconds.
	UpgradeAutoInterval UpgradeEffectKind = "auto_interval"
	// UpgradeDropChance changes the material drop chance by Delta percent.
	UpgradeDropChance UpgradeEffectKind = "drop_chance"
)

// UpgradeEffect is the change one purchase makes. Limit bounds the result:
// a floor for negative deltas, a ceiling for positive ones, 0 for none.
type UpgradeEffect struct {
	Kind     UpgradeEffectKind `json:"kind" yaml:"kind"`
	Resource string            `json:"resource,omitempty" yaml:"resource,omitempty"`
	Delta    int64             `json:"delta" yaml:"delta"`
	Limit    int64             `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// UpgradeConfig is the data definition of a repeatable purchase.
type UpgradeConfig struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Cost         Cost          `json:"cost,omitempty" yaml:"cost,omitempty"`
	RequiresFlag string        `json:"requires_flag,omitempty" yaml:"requires_flag,omitempty"`
	Effect       UpgradeEffect `json:"effect" yaml:"effect"`
	// MaxLevel caps the number of purchases, 0 for unlimited.
	MaxLevel int `json:"max_level,omitempty" yaml:"max_level,omitempty"`
}

func (u *UpgradeConfig) validate() []error {
	if u.ID == "" {
		return []error{fmt.Errorf("%w: upgrade without an id", ErrInvalidGameData)}
	}
	var problems []error
	switch u.Effect.Kind {
	case UpgradeCapacity, UpgradeClickAmount, UpgradeAutoInterval, UpgradeDropChance:
	default:
		problems = append(problems, fmt.Errorf("%w: upgrade %q has unknown effect kind %q", ErrInvalidGameData, u.ID, u.Effect.Kind))
	}
	if u.Effect.Delta == 0 {
		problems = append(problems, fmt.Errorf("%w: upgrade %q changes nothing", ErrInvalidGameData, u.ID))
	}
	if u.MaxLevel < 0 {
		problems = append(problems, fmt.Errorf("%w: upgrade %q has a negative max level", ErrInvalidGameData, u.ID))
	}
	return problems
}

// UpgradeOutcome describes a successful purchase.
type UpgradeOutcome struct {
	UpgradeID string            `json:"upgrade_id"`
	Level     int               `json:"level"`
	Spent     Cost              `json:"spent,omitempty"`
	Kind      UpgradeEffectKind `json:"kind"`
	// Value is the new value of whatever the effect changed.
	Value int64 `json:"value"`
}

// step applies the effect to current. It returns false when the result would
// cross the limit or drop below zero.
func (e UpgradeEffect) step(current, limit int64) (int64, bool) {
	next := current + e.Delta
	switch {
	case next < 0:
		return current, false
	case e.Delta < 0 && limit > 0 && next < limit:
		return current, false
	case e.Delta > 0 && limit > 0 && next > limit:
		return current, false
	}
	return next, true
}
