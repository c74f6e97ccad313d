package engine

import (
	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
)

// State is a reported on/off state.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateChange is a notification that an entity (group or device) reported new state.
type StateChange struct {
	Entity      string // friendly name of the group or device
	Description string // free-text description of the entity, may carry "lightlynx-groups"
	State       State  // empty when the update carries no state
	Action      string // raw button action, empty when none
}

// Subscription is a registered notification listener.
type Subscription interface {
	Unsubscribe()
}

// Gateway is what the engine needs from the hosting gateway's registry.
type Gateway interface {
	// Groups enumerates all groups with their member endpoints' scene metadata.
	Groups() []catalog.GroupDescriptor
	// GroupByID looks up a single group.
	GroupByID(id int) (catalog.GroupDescriptor, bool)
	// GroupState returns the last reported state of a group.
	GroupState(name string) (State, bool)
	// BaseTopic is the command namespace prefix.
	BaseTopic() string

	OnStateChange(handler func(StateChange)) Subscription
	OnScenesChanged(handler func()) Subscription
	OnMembersChanged(handler func()) Subscription
}

// CommandSink dispatches an encoded command. Delivery is fire-and-forget.
type CommandSink interface {
	Publish(topic string, payload []byte)
}
