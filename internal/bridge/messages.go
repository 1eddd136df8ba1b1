package bridge

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hovavo/pxt-states/internal/states"
)

// StateMessage is the retained payload on a machine's state topic.
type StateMessage struct {
	Machine   string `json:"machine"`
	State     string `json:"state"`
	Previous  string `json:"previous"`
	ChangedAt string `json:"changed_at"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// CommandMessage is the JSON form of a set-state command.
type CommandMessage struct {
	State string `json:"state"`
}

// ErrEmptyCommand is returned for a command that names no state.
var ErrEmptyCommand = errors.New("command names no state")

func stateMessage(t states.Transition) StateMessage {
	return StateMessage{
		Machine:   t.Machine.String(),
		State:     t.To.String(),
		Previous:  t.From.String(),
		ChangedAt: t.At.UTC().Format(time.RFC3339Nano),
		ElapsedMS: t.Elapsed.Milliseconds(),
	}
}

// parseCommand accepts {"state": "x"} or a bare state name.
func parseCommand(payload []byte) (string, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var cmd CommandMessage
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			return "", err
		}
		text = cmd.State
	} else {
		text = strings.Trim(text, `"`)
	}

	if states.NewID(text) == "" {
		return "", ErrEmptyCommand
	}
	return text, nil
}
