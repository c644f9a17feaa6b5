package forge

import (
	"fmt"
	"slices"
)

// NodePosition is layout data for the node graph view. The engine never reads it.
type NodePosition struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// UnlockNode is one gate-able piece of content.
type UnlockNode struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category      string         `json:"category,omitempty" yaml:"category,omitempty"`
	Cost          Cost           `json:"cost,omitempty" yaml:"cost,omitempty"`
	Prerequisites []string       `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	Rewards       []RewardEffect `json:"rewards,omitempty" yaml:"rewards,omitempty"`
	Position      *NodePosition  `json:"position,omitempty" yaml:"position,omitempty"`
	StartUnlocked bool           `json:"start_unlocked,omitempty" yaml:"start_unlocked,omitempty"`
}

// UnlockTree holds the immutable node definitions.
type UnlockTree struct {
	nodes []*UnlockNode
	byID  map[string]*UnlockNode
}

// NewUnlockTree indexes nodes. Nodes without an id and repeated ids are
// dropped and reported. Unknown prerequisites and cycles are reported but the
// nodes are kept; such nodes simply never become unlockable.
func NewUnlockTree(nodes []*UnlockNode) (*UnlockTree, []error) {
	tree := &UnlockTree{byID: make(map[string]*UnlockNode)}
	var problems []error

	for _, node := range nodes {
		if node == nil || node.ID == "" {
			problems = append(problems, fmt.Errorf("%w: unlock node without an id", ErrInvalidGameData))
			continue
		}
		if existing, ok := tree.byID[node.ID]; ok {
			if existing.Category != node.Category {
				problems = append(problems, fmt.Errorf("%w: node %q appears in categories %q and %q", ErrInvalidGameData, node.ID, existing.Category, node.Category))
			} else {
				problems = append(problems, fmt.Errorf("%w: duplicate node %q", ErrInvalidGameData, node.ID))
			}
			continue
		}
		copied := *node
		copied.Cost = node.Cost.merged()
		tree.nodes = append(tree.nodes, &copied)
		tree.byID[copied.ID] = &copied
	}

	for _, node := range tree.nodes {
		for _, pre := range node.Prerequisites {
			if pre == node.ID {
				problems = append(problems, fmt.Errorf("%w: node %q requires itself", ErrInvalidGameData, node.ID))
				continue
			}
			if _, ok := tree.byID[pre]; !ok {
				problems = append(problems, fmt.Errorf("%w: node %q requires unknown node %q", ErrInvalidGameData, node.ID, pre))
			}
		}
	}

	if _, cyclic := tree.TopologicalOrder(); len(cyclic) > 0 {
		problems = append(problems, fmt.Errorf("%w: prerequisite cycle among nodes %v", ErrInvalidGameData, cyclic))
	}

	return tree, problems
}

// Node looks up a node definition.
func (t *UnlockTree) Node(id string) (*UnlockNode, bool) {
	if t == nil {
		return nil, false
	}
	node, ok := t.byID[id]
	return node, ok
}

// Nodes returns node definitions in declaration order. The slice is a copy;
// the nodes are shared by every session and must not be modified.
func (t *UnlockTree) Nodes() []*UnlockNode {
	if t == nil {
		return nil
	}
	return slices.Clone(t.nodes)
}

// Len returns the number of nodes.
func (t *UnlockTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// TopologicalOrder returns nodes ordered so every node follows its known
// prerequisites, ties kept in declaration order. Ids that sit on or behind a
// prerequisite cycle are returned separately.
func (t *UnlockTree) TopologicalOrder() (ordered []*UnlockNode, cyclic []string) {
	pending := make(map[string]int, t.Len())
	dependents := make(map[string][]string, t.Len())
	for _, node := range t.Nodes() {
		count := 0
		for _, pre := range node.Prerequisites {
			if _, ok := t.byID[pre]; ok {
				count++
				dependents[pre] = append(dependents[pre], node.ID)
			}
		}
		pending[node.ID] = count
	}

	var queue []string
	for _, node := range t.Nodes() {
		if pending[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, t.byID[id])
		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) < t.Len() {
		for _, node := range t.Nodes() {
			if pending[node.ID] > 0 {
				cyclic = append(cyclic, node.ID)
			}
		}
	}
	return ordered, cyclic
}

func (t *UnlockTree) ids() []string {
	ids := make([]string, 0, t.Len())
	for _, node := range t.Nodes() {
		ids = append(ids, node.ID)
	}
	return ids
}

// NodeState is the display state of a node.
type NodeState string

const (
	NodeLocked     NodeState = "locked"
	NodeUnlockable NodeState = "unlockable"
	NodeUnlocked   NodeState = "unlocked"
)

// UnlockOutcome describes a successful unlock.
type UnlockOutcome struct {
	NodeID string `json:"node_id"`
	// Spent is the cost actually debited; empty for granted nodes.
	Spent   Cost           `json:"spent,omitempty"`
	Effects []RewardEffect `json:"effects,omitempty"`
	// Changed lists the effects that were not already in place.
	Changed []RewardEffect `json:"changed,omitempty"`
}

// NodeView is the read model the UI renders a node from.
type NodeView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category,omitempty"`
	State       NodeState     `json:"state"`
	Affordable  bool          `json:"affordable"`
	Cost        Cost          `json:"cost,omitempty"`
	Missing     []string      `json:"missing,omitempty"`
	Shortfall   []Shortfall   `json:"shortfall,omitempty"`
	Position    *NodePosition `json:"position,omitempty"`
}

// UnlockGraph is the per-session unlocked set over an UnlockTree. The set only
// grows. Ids the current tree does not know, for example from an older save,
// are kept so they survive a round trip.
type UnlockGraph struct {
	tree     *UnlockTree
	unlocked orderedSet
}

// NewUnlockGraph creates an empty unlocked set over tree.
func NewUnlockGraph(tree *UnlockTree) *UnlockGraph {
	return &UnlockGraph{tree: tree, unlocked: newOrderedSet()}
}

// Restore adds previously unlocked ids without charging or applying rewards.
func (g *UnlockGraph) Restore(ids []string) {
	for _, id := range ids {
		g.unlocked.add(id)
	}
}

// Tree returns the node definitions.
func (g *UnlockGraph) Tree() *UnlockTree {
	return g.tree
}

// IsUnlocked reports whether id is in the unlocked set.
func (g *UnlockGraph) IsUnlocked(id string) bool {
	return g.unlocked.has(id)
}

// Unlocked returns the unlocked ids in unlock order.
func (g *UnlockGraph) Unlocked() []string {
	return g.unlocked.list()
}

// CanUnlock reports whether id is known, still locked and has every direct
// prerequisite unlocked. Affordability is not considered.
func (g *UnlockGraph) CanUnlock(id string) bool {
	node, ok := g.tree.Node(id)
	if !ok || g.IsUnlocked(id) {
		return false
	}
	return len(g.missing(node)) == 0
}

// MissingPrerequisites lists the direct prerequisites of id not yet unlocked.
func (g *UnlockGraph) MissingPrerequisites(id string) []string {
	node, ok := g.tree.Node(id)
	if !ok {
		return nil
	}
	return g.missing(node)
}

// State returns the display state of id. Unknown ids are locked.
func (g *UnlockGraph) State(id string) NodeState {
	switch {
	case g.IsUnlocked(id):
		return NodeUnlocked
	case g.CanUnlock(id):
		return NodeUnlockable
	default:
		return NodeLocked
	}
}

// Unlock charges the cost of id and applies its rewards. Checks run in order:
// unknown node, already unlocked, missing prerequisites (all of them), then
// affordability. On any error neither the ledger, the set nor caps change.
func (g *UnlockGraph) Unlock(id string, ledger *ResourceLedger, caps *Capabilities) (*UnlockOutcome, error) {
	node, err := g.check(id)
	if err != nil {
		return nil, err
	}

	// Check if the cost is covered, Spend refuses without mutating otherwise
	if err := ledger.Spend(node.Cost); err != nil {
		return nil, err
	}

	outcome := g.commit(node, caps)
	outcome.Spent = node.Cost
	return outcome, nil
}

// Grant unlocks id without charging its cost. Prerequisites still apply so
// the unlocked set stays closed.
func (g *UnlockGraph) Grant(id string, caps *Capabilities) (*UnlockOutcome, error) {
	node, err := g.check(id)
	if err != nil {
		return nil, err
	}
	return g.commit(node, caps), nil
}

// Views builds the UI read model for every node in declaration order.
func (g *UnlockGraph) Views(ledger *ResourceLedger) []NodeView {
	views := make([]NodeView, 0, g.tree.Len())
	for _, node := range g.tree.Nodes() {
		view := NodeView{
			ID:          node.ID,
			Name:        node.Name,
			Description: node.Description,
			Category:    node.Category,
			State:       g.State(node.ID),
			Cost:        node.Cost,
			Position:    node.Position,
		}
		if view.State != NodeUnlocked {
			view.Missing = g.missing(node)
			view.Shortfall = ledger.Shortfall(node.Cost)
			view.Affordable = len(view.Shortfall) == 0
		}
		views = append(views, view)
	}
	return views
}

func (g *UnlockGraph) check(id string) (*UnlockNode, error) {
	node, ok := g.tree.Node(id)
	if !ok {
		return nil, &NotFoundError{Kind: NotFoundNode, ID: id, Suggestions: suggest(id, g.tree.ids())}
	}

	if g.IsUnlocked(id) {
		return nil, ErrAlreadyUnlocked
	}

	if missing := g.missing(node); len(missing) > 0 {
		return nil, &PrerequisitesMissingError{NodeID: id, Missing: missing}
	}

	return node, nil
}

func (g *UnlockGraph) commit(node *UnlockNode, caps *Capabilities) *UnlockOutcome {
	g.unlocked.add(node.ID)

	outcome := &UnlockOutcome{NodeID: node.ID, Effects: node.Rewards}
	if caps == nil {
		return outcome
	}
	for _, effect := range node.Rewards {
		if caps.Apply(effect) {
			outcome.Changed = append(outcome.Changed, effect)
		}
	}
	return outcome
}

func (g *UnlockGraph) missing(node *UnlockNode) []string {
	var missing []string
	for _, pre := range node.Prerequisites {
		if !g.IsUnlocked(pre) {
			missing = append(missing, pre)
		}
	}
	return missing
}
