package mqtt

import "strings"

// DefaultTopicPrefix roots every statesd topic.
const DefaultTopicPrefix = "states"

// Topics builds statesd topic names under a common prefix:
//
//	{prefix}/machine/{machine}/state       retained current state
//	{prefix}/machine/{machine}/transition  one event per transition
//	{prefix}/command/{machine}/set         inbound set-state requests
//	{prefix}/system/status                 online/offline with LWT
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix, or DefaultTopicPrefix when
// prefix is empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	return t.Prefix + "/" + strings.Join(parts, "/")
}

// MachineState returns the retained state topic of machine.
func (t Topics) MachineState(machine string) string {
	return t.join("machine", machine, "state")
}

// MachineTransition returns the transition event topic of machine.
func (t Topics) MachineTransition(machine string) string {
	return t.join("machine", machine, "transition")
}

// MachineCommand returns the set-state command topic of machine.
func (t Topics) MachineCommand(machine string) string {
	return t.join("command", machine, "set")
}

// AllMachineCommands matches the command topic of every machine.
func (t Topics) AllMachineCommands() string {
	return t.MachineCommand("+")
}

// AllMachineStates matches the state topic of every machine.
func (t Topics) AllMachineStates() string {
	return t.MachineState("+")
}

// SystemStatus returns the daemon status topic.
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}

// ParseCommandTopic extracts the machine id from a command topic.
func (t Topics) ParseCommandTopic(topic string) (machine string, ok bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok {
		return "", false
	}
	machine, ok = strings.CutSuffix(rest, "/set")
	if !ok || machine == "" || strings.Contains(machine, "/") {
		return "", false
	}
	return machine, true
}
