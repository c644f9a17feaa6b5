package forge

// SessionView is the read model of a whole session, built for UIs and the
// state RPC.
type SessionView struct {
	SaveID     string         `json:"save_id,omitempty"`
	Player     PlayerInfo     `json:"player"`
	Resources  []ResourceView `json:"resources"`
	Flags      []string       `json:"flags,omitempty"`
	Tabs       []string       `json:"tabs,omitempty"`
	Recipes    []string       `json:"recipes,omitempty"`
	Categories []CategoryView `json:"categories,omitempty"`
	Nodes      []NodeView     `json:"nodes,omitempty"`
	Quests     []QuestView    `json:"quests,omitempty"`
	Upgrades   []UpgradeView  `json:"upgrades,omitempty"`
	Auto       AutoView       `json:"auto"`
	Progress   ProgressStats  `json:"progress"`

	ClickAmount       uint64 `json:"click_amount"`
	DropChancePercent int    `json:"drop_chance_percent"`
}

type ResourceView struct {
	ID       string  `json:"id"`
	Count    uint64  `json:"count"`
	Capacity *uint64 `json:"capacity,omitempty"`
}

type CategoryView struct {
	Name     string     `json:"name"`
	Unlocked bool       `json:"unlocked"`
	Items    []ItemView `json:"items,omitempty"`
}

type ItemView struct {
	Name      string      `json:"name"`
	Cost      Cost        `json:"cost,omitempty"`
	Learned   bool        `json:"learned"`
	Craftable bool        `json:"craftable"`
	Shortfall []Shortfall `json:"shortfall,omitempty"`
}

type QuestView struct {
	LineID    string            `json:"line_id"`
	Name      string            `json:"name,omitempty"`
	Stage     string            `json:"stage"`
	StageName string            `json:"stage_name,omitempty"`
	Requires  *QuestRequirement `json:"requires,omitempty"`
	Shortfall []Shortfall       `json:"shortfall,omitempty"`
	Complete  bool              `json:"complete"`
}

type UpgradeView struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Level      int    `json:"level"`
	Cost       Cost   `json:"cost,omitempty"`
	Available  bool   `json:"available"`
	Affordable bool   `json:"affordable"`
	Maxed      bool   `json:"maxed"`
}

type AutoView struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"interval_ms"`
	TimerMs    int64 `json:"timer_ms"`
}

// View builds the read model of the session. It does not mutate anything.
func (c *Controller) View() *SessionView {
	view := &SessionView{
		SaveID:            c.saveID,
		Player:            c.player,
		Flags:             c.caps.Flags(),
		Tabs:              c.caps.Tabs(),
		Recipes:           c.caps.Recipes(),
		Nodes:             c.graph.Views(c.ledger),
		Progress:          c.Progress(),
		ClickAmount:       c.clickAmount,
		DropChancePercent: c.dropChance,
		Auto: AutoView{
			Enabled:    c.caps.HasFlag(c.data.Economy.AutoFlag),
			IntervalMs: c.autoInterval.Milliseconds(),
			TimerMs:    c.autoTimer.Milliseconds(),
		},
	}

	for id, count := range c.ledger.Entries() {
		resource := ResourceView{ID: id, Count: count}
		if capacity, ok := c.ledger.Capacity(id); ok {
			resource.Capacity = &capacity
		}
		view.Resources = append(view.Resources, resource)
	}

	for _, category := range c.data.Catalog.Categories() {
		categoryView := CategoryView{Name: category.Name, Unlocked: c.caps.HasFlag(category.RequiresFlag)}
		for _, item := range category.Items {
			itemView := ItemView{
				Name:      item.Name,
				Cost:      item.Cost,
				Learned:   !item.Locked || c.caps.HasRecipe(item.Name),
				Shortfall: c.ledger.Shortfall(item.Cost),
			}
			itemView.Craftable = categoryView.Unlocked && itemView.Learned && len(itemView.Shortfall) == 0
			categoryView.Items = append(categoryView.Items, itemView)
		}
		view.Categories = append(view.Categories, categoryView)
	}

	for _, config := range c.data.QuestLines() {
		line := c.quests[config.ID]
		questView := QuestView{
			LineID:   config.ID,
			Name:     config.Name,
			Stage:    line.Stage(),
			Complete: line.IsComplete(),
		}
		if stage := line.ActiveStage(); stage != nil {
			requires := stage.Requires
			questView.StageName = stage.Name
			questView.Requires = &requires
			questView.Shortfall = line.Shortfall(c.ledger)
		}
		view.Quests = append(view.Quests, questView)
	}

	for _, upgrade := range c.data.Upgrades() {
		level := c.upgrades[upgrade.ID]
		_, _, planErr := c.planUpgrade(upgrade)
		view.Upgrades = append(view.Upgrades, UpgradeView{
			ID:         upgrade.ID,
			Name:       upgrade.Name,
			Level:      level,
			Cost:       upgrade.Cost,
			Available:  c.caps.HasFlag(upgrade.RequiresFlag),
			Affordable: c.ledger.CanAfford(upgrade.Cost),
			Maxed:      (upgrade.MaxLevel > 0 && level >= upgrade.MaxLevel) || planErr != nil,
		})
	}

	return view
}
