package forge

import (
	"fmt"
)

// QuestStageComplete is the implicit terminal stage of every quest line.
const QuestStageComplete = "complete"

// QuestRequirement is the turn-in of a stage: count units of resource.
type QuestRequirement struct {
	Resource string `json:"resource" yaml:"resource"`
	Count    uint64 `json:"count" yaml:"count"`
}

// QuestRewards is granted when a stage is turned in.
type QuestRewards struct {
	Resources Cost           `json:"resources,omitempty" yaml:"resources,omitempty"`
	Flags     []string       `json:"flags,omitempty" yaml:"flags,omitempty"`
	Nodes     []string       `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Effects   []RewardEffect `json:"effects,omitempty" yaml:"effects,omitempty"`
}

type QuestStageConfig struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Requires    QuestRequirement `json:"requires" yaml:"requires"`
	Rewards     *QuestRewards    `json:"rewards,omitempty" yaml:"rewards,omitempty"`
}

// QuestLineConfig is the data definition of one strictly sequential quest line.
type QuestLineConfig struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Stages      []*QuestStageConfig `json:"stages" yaml:"stages"`
}

func (q *QuestLineConfig) validate() []error {
	var problems []error
	if q.ID == "" {
		return []error{fmt.Errorf("%w: quest line without an id", ErrInvalidGameData)}
	}
	if len(q.Stages) == 0 {
		problems = append(problems, fmt.Errorf("%w: quest line %q has no stages", ErrInvalidGameData, q.ID))
	}
	seen := make(map[string]struct{}, len(q.Stages))
	for i, stage := range q.Stages {
		if stage == nil || stage.ID == "" {
			problems = append(problems, fmt.Errorf("%w: quest line %q stage %d has no id", ErrInvalidGameData, q.ID, i))
			continue
		}
		if stage.ID == QuestStageComplete {
			problems = append(problems, fmt.Errorf("%w: quest line %q uses the reserved stage id %q", ErrInvalidGameData, q.ID, QuestStageComplete))
		}
		if _, dup := seen[stage.ID]; dup {
			problems = append(problems, fmt.Errorf("%w: quest line %q repeats stage %q", ErrInvalidGameData, q.ID, stage.ID))
		}
		seen[stage.ID] = struct{}{}
		if stage.Requires.Resource == "" && stage.Requires.Count > 0 {
			problems = append(problems, fmt.Errorf("%w: quest line %q stage %q requires a count of no resource", ErrInvalidGameData, q.ID, stage.ID))
		}
	}
	return problems
}

// RewardSink receives the non-resource rewards of a quest stage.
type RewardSink interface {
	// ApplyEffect performs effect, returning false if it was already in place.
	ApplyEffect(effect RewardEffect) bool
	// GrantNode unlocks a node without charging its cost.
	GrantNode(nodeID string) error
}

// QuestLine is the state machine of one quest line. It only ever moves
// forward, one stage per turn-in.
type QuestLine struct {
	config *QuestLineConfig
	stage  int
}

// NewQuestLine starts config at its first stage.
func NewQuestLine(config *QuestLineConfig) *QuestLine {
	return &QuestLine{config: config}
}

// ID returns the quest line id.
func (q *QuestLine) ID() string {
	return q.config.ID
}

// Config returns the quest line definition.
func (q *QuestLine) Config() *QuestLineConfig {
	return q.config
}

// Stage returns the active stage id, QuestStageComplete once finished.
func (q *QuestLine) Stage() string {
	if active := q.active(); active != nil {
		return active.ID
	}
	return QuestStageComplete
}

// ActiveStage returns the active stage definition, nil once complete.
func (q *QuestLine) ActiveStage() *QuestStageConfig {
	return q.active()
}

// IsComplete reports whether the line reached its terminal stage.
func (q *QuestLine) IsComplete() bool {
	return q.active() == nil
}

// Restore moves the line to a saved stage id. It returns false, leaving the
// line at its first stage, if the id is not part of the line.
func (q *QuestLine) Restore(stageID string) bool {
	if stageID == QuestStageComplete {
		q.stage = len(q.config.Stages)
		return true
	}
	for i, stage := range q.config.Stages {
		if stage != nil && stage.ID == stageID {
			q.stage = i
			return true
		}
	}
	q.stage = 0
	return false
}

// Shortfall reports what the active stage still needs. It is empty when the
// turn-in is affordable or the line is complete.
func (q *QuestLine) Shortfall(ledger *ResourceLedger) []Shortfall {
	active := q.active()
	if active == nil {
		return nil
	}
	return ledger.Shortfall(active.requirementCost())
}

// TryAdvance turns in the active stage if the ledger covers it: spends the
// requirement, grants the rewards and moves to the next stage. It returns
// false without mutating anything when the requirement is not met or the line
// is complete. sink may be nil, in which case only resource rewards apply.
func (q *QuestLine) TryAdvance(ledger *ResourceLedger, sink RewardSink) bool {
	_, ok := q.advance(ledger, sink)
	return ok
}

// QuestTurnIn describes one successful stage turn-in.
type QuestTurnIn struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Spent   Cost           `json:"spent,omitempty"`
	Granted Cost           `json:"granted,omitempty"`
	Effects []RewardEffect `json:"effects,omitempty"`
	Nodes   []string       `json:"nodes,omitempty"`
	// Skipped holds reward nodes that could not be granted, with the reason.
	Skipped map[string]string `json:"skipped,omitempty"`
}

func (q *QuestLine) advance(ledger *ResourceLedger, sink RewardSink) (*QuestTurnIn, bool) {
	active := q.active()
	if active == nil {
		return nil, false
	}

	cost := active.requirementCost()
	if err := ledger.Spend(cost); err != nil {
		return nil, false
	}

	turnIn := &QuestTurnIn{From: active.ID, Spent: cost}
	if rewards := active.Rewards; rewards != nil {
		for _, entry := range rewards.Resources {
			if added := ledger.Grant(entry.Resource, entry.Amount); added > 0 {
				turnIn.Granted = append(turnIn.Granted, ResourceAmount{Resource: entry.Resource, Amount: added})
			}
		}
		if sink != nil {
			for _, flag := range rewards.Flags {
				if sink.ApplyEffect(SetFlag(flag)) {
					turnIn.Effects = append(turnIn.Effects, SetFlag(flag))
				}
			}
			for _, effect := range rewards.Effects {
				if sink.ApplyEffect(effect) {
					turnIn.Effects = append(turnIn.Effects, effect)
				}
			}
			for _, nodeID := range rewards.Nodes {
				if err := sink.GrantNode(nodeID); err != nil {
					if IsInformational(err) {
						continue
					}
					if turnIn.Skipped == nil {
						turnIn.Skipped = make(map[string]string)
					}
					turnIn.Skipped[nodeID] = err.Error()
					continue
				}
				turnIn.Nodes = append(turnIn.Nodes, nodeID)
			}
		}
	}

	q.stage++
	turnIn.To = q.Stage()
	return turnIn, true
}

func (q *QuestLine) active() *QuestStageConfig {
	for q.stage < len(q.config.Stages) {
		if stage := q.config.Stages[q.stage]; stage != nil {
			return stage
		}
		q.stage++
	}
	return nil
}

func (s *QuestStageConfig) requirementCost() Cost {
	if s.Requires.Resource == "" || s.Requires.Count == 0 {
		return nil
	}
	return Cost{{Resource: s.Requires.Resource, Amount: s.Requires.Count}}
}
