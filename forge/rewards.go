package forge

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RewardKind is the tag of a RewardEffect.
type RewardKind string

const (
	RewardSetFlag      RewardKind = "flag"
	RewardUnlockTab    RewardKind = "tab"
	RewardUnlockRecipe RewardKind = "recipe"
)

// RewardEffect is a decoded reward: set a flag, unlock a tab or unlock a
// recipe id. Data may spell it "flag:name" or {"type": "flag", "target": "name"}.
type RewardEffect struct {
	Kind   RewardKind `json:"type"`
	Target string     `json:"target"`
}

func SetFlag(name string) RewardEffect    { return RewardEffect{Kind: RewardSetFlag, Target: name} }
func UnlockTab(name string) RewardEffect  { return RewardEffect{Kind: RewardUnlockTab, Target: name} }
func UnlockRecipe(id string) RewardEffect { return RewardEffect{Kind: RewardUnlockRecipe, Target: id} }

// ParseRewardEffect decodes the "kind:target" spelling.
func ParseRewardEffect(s string) (RewardEffect, error) {
	kind, target, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return RewardEffect{}, fmt.Errorf("%w: reward effect %q is not kind:target", ErrInvalidGameData, s)
	}
	effect := RewardEffect{Kind: RewardKind(strings.TrimSpace(kind)), Target: strings.TrimSpace(target)}
	if err := effect.validate(); err != nil {
		return RewardEffect{}, err
	}
	return effect, nil
}

func (e RewardEffect) String() string {
	return string(e.Kind) + ":" + e.Target
}

func (e RewardEffect) validate() error {
	switch e.Kind {
	case RewardSetFlag, RewardUnlockTab, RewardUnlockRecipe:
	default:
		return fmt.Errorf("%w: unknown reward effect kind %q", ErrInvalidGameData, e.Kind)
	}
	if e.Target == "" {
		return fmt.Errorf("%w: reward effect %q has no target", ErrInvalidGameData, e.Kind)
	}
	return nil
}

func (e RewardEffect) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *RewardEffect) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseRewardEffect(s)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}

	var obj struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	parsed := RewardEffect{Kind: RewardKind(obj.Type), Target: obj.Target}
	if err := parsed.validate(); err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e RewardEffect) MarshalYAML() (any, error) {
	return e.String(), nil
}

func (e *RewardEffect) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseRewardEffect(value.Value)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}

	var obj struct {
		Type   string `yaml:"type"`
		Target string `yaml:"target"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	parsed := RewardEffect{Kind: RewardKind(obj.Type), Target: obj.Target}
	if err := parsed.validate(); err != nil {
		return err
	}
	*e = parsed
	return nil
}
