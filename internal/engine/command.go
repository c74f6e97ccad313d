package engine

import "time"

// Command is the JSON payload sent to a group's set topic.
type Command struct {
	SceneRecall *int     `json:"scene_recall,omitempty"`
	State       State    `json:"state,omitempty"`
	Transition  *float64 `json:"transition,omitempty"`
}

// RecallScene recalls a scene immediately.
func RecallScene(sceneID int) Command {
	return Command{SceneRecall: &sceneID}
}

// RecallSceneWithTransition recalls a scene fading over transition.
func RecallSceneWithTransition(sceneID int, transition time.Duration) Command {
	seconds := transition.Seconds()
	return Command{SceneRecall: &sceneID, Transition: &seconds}
}

// SetState switches the group on or off without a transition.
func SetState(state State) Command {
	return Command{State: state}
}

// TurnOff switches the group off fading over transition.
func TurnOff(transition time.Duration) Command {
	seconds := transition.Seconds()
	return Command{State: StateOff, Transition: &seconds}
}

// Topic returns the set topic of a group.
func Topic(baseTopic, group string) string {
	return baseTopic + "/" + group + "/set"
}
