package definition

import "time"

// File is a parsed definitions file.
type File struct {
	// Start lists selectors to transition to once the file is applied, in
	// order.
	Start []string `yaml:"start"`

	Machines []Machine `yaml:"machines"`
}

// Machine declares one machine. An empty ID or "__main__" is the main machine.
type Machine struct {
	ID     string   `yaml:"id"`
	States []State  `yaml:"states"`
	Change []Action `yaml:"change,omitempty"`
}

// State declares one state and its actions.
type State struct {
	ID    string   `yaml:"id"`
	Enter []Action `yaml:"enter,omitempty"`
	Exit  []Action `yaml:"exit,omitempty"`
	Loop  []Action `yaml:"loop,omitempty"`
}

// Action does exactly one of Log, Publish, Goto or Sleep.
type Action struct {
	// After skips the action until the state has been current this long.
	// Only meaningful in loop actions.
	After time.Duration `yaml:"after,omitempty"`

	Log     string         `yaml:"log,omitempty"`
	Publish *PublishAction `yaml:"publish,omitempty"`
	Goto    string         `yaml:"goto,omitempty"`
	Sleep   time.Duration  `yaml:"sleep,omitempty"`
}

// PublishAction sends an MQTT message.
type PublishAction struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos,omitempty"`
	Retain  bool   `yaml:"retain,omitempty"`
}

// kind names the single thing an action does, or "" if it does not do
// exactly one.
func (a Action) kind() string {
	var kinds []string
	if a.Log != "" {
		kinds = append(kinds, "log")
	}
	if a.Publish != nil {
		kinds = append(kinds, "publish")
	}
	if a.Goto != "" {
		kinds = append(kinds, "goto")
	}
	if a.Sleep != 0 {
		kinds = append(kinds, "sleep")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}
