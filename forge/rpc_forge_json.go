package forge

// RPC ids registered by NakamaForge.Register.
const (
	RpcIdState        = "visforge_state"
	RpcIdConjure      = "visforge_conjure"
	RpcIdCraft        = "visforge_craft"
	RpcIdUnlock       = "visforge_unlock"
	RpcIdQuestAdvance = "visforge_quest_advance"
	RpcIdUpgrade      = "visforge_upgrade"
	RpcIdTick         = "visforge_tick"
)

type ConjureRequest struct {
	Count int `json:"count,omitempty"`
}

type ConjureResponse struct {
	Results []ConjureResult `json:"results"`
	State   *SessionView    `json:"state"`
}

type CraftRequest struct {
	Category string `json:"category"`
	Item     string `json:"item"`
}

type UnlockRequest struct {
	NodeId string `json:"node_id"`
}

type UnlockResponse struct {
	Outcome *UnlockOutcome `json:"outcome"`
	State   *SessionView   `json:"state"`
}

type QuestAdvanceRequest struct {
	LineId string `json:"line_id"`
}

type QuestAdvanceResponse struct {
	Progress *QuestProgress `json:"progress"`
	State    *SessionView   `json:"state"`
}

type UpgradeRequest struct {
	UpgradeId string `json:"upgrade_id"`
}

type UpgradeResponse struct {
	Outcome *UpgradeOutcome `json:"outcome"`
	State   *SessionView    `json:"state"`
}

type TickRequest struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

type TickResponse struct {
	AutoEarns int          `json:"auto_earns"`
	State     *SessionView `json:"state"`
}
