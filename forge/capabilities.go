package forge

// Capabilities holds the write-once flags, unlocked tabs and unlocked recipe
// ids of a session. Nothing is ever revoked.
type Capabilities struct {
	flags   orderedSet
	tabs    orderedSet
	recipes orderedSet
}

// NewCapabilities creates an empty capability set.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		flags:   newOrderedSet(),
		tabs:    newOrderedSet(),
		recipes: newOrderedSet(),
	}
}

// SetFlag turns name on. It returns false if the flag was already set.
func (c *Capabilities) SetFlag(name string) bool { return c.flags.add(name) }

// HasFlag reports whether name is set. The empty flag is always set.
func (c *Capabilities) HasFlag(name string) bool { return name == "" || c.flags.has(name) }

func (c *Capabilities) UnlockTab(name string) bool  { return c.tabs.add(name) }
func (c *Capabilities) HasTab(name string) bool     { return c.tabs.has(name) }
func (c *Capabilities) UnlockRecipe(id string) bool { return c.recipes.add(id) }
func (c *Capabilities) HasRecipe(id string) bool    { return c.recipes.has(id) }
func (c *Capabilities) Flags() []string             { return c.flags.list() }
func (c *Capabilities) Tabs() []string              { return c.tabs.list() }
func (c *Capabilities) Recipes() []string           { return c.recipes.list() }

// Apply performs a reward effect. Re-applying an effect is a no-op and
// returns false.
func (c *Capabilities) Apply(effect RewardEffect) bool {
	switch effect.Kind {
	case RewardSetFlag:
		return c.SetFlag(effect.Target)
	case RewardUnlockTab:
		return c.UnlockTab(effect.Target)
	case RewardUnlockRecipe:
		return c.UnlockRecipe(effect.Target)
	default:
		return false
	}
}

type orderedSet struct {
	index map[string]struct{}
	order []string
}

func newOrderedSet() orderedSet {
	return orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *orderedSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderedSet) list() []string {
	return append([]string(nil), s.order...)
}
