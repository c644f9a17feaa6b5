package forge

import (
	"context"
	"strconv"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Event names emitted by the Controller.
const (
	EventConjured         = "conjured"
	EventMaterialDropped  = "material_dropped"
	EventAutoEarned       = "auto_earned"
	EventItemCrafted      = "item_crafted"
	EventNodeUnlocked     = "node_unlocked"
	EventQuestAdvanced    = "quest_advanced"
	EventUpgradePurchased = "upgrade_purchased"
)

type PublisherEvent struct {
	Name      string            `json:"name,omitempty"`
	Id        string            `json:"id,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Value     string            `json:"value,omitempty"`

	// SourceId is the id of the node, item, quest line or upgrade the event is about.
	SourceId string `json:"-"`
}

// Amount parses Value as a count, 0 if it is not one.
func (e *PublisherEvent) Amount() uint64 {
	n, err := strconv.ParseUint(e.Value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// The Publisher describes a target that wishes to receive analytics-style
// events generated by a Controller. Events are buffered by the Controller and
// handed over by the host once the action that produced them completed.
//
// Publisher implementations must safely handle concurrent calls and handle
// errors internally; callers will not retry.
type Publisher interface {
	// Send is called when there are one or more events generated. nk is nil
	// outside a Nakama runtime.
	Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent)
}

// Publish hands events to every publisher.
func Publish(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent, publishers ...Publisher) {
	if len(events) == 0 {
		return
	}
	for _, publisher := range publishers {
		if publisher != nil {
			publisher.Send(ctx, logger, nk, userID, events)
		}
	}
}
