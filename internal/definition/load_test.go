package definition

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExample(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "idle_done.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(f.Start) != 1 || f.Start[0] != "Idle" {
		t.Errorf("Start = %v", f.Start)
	}
	if len(f.Machines) != 2 {
		t.Fatalf("Machines = %d, want 2", len(f.Machines))
	}

	idle := f.Machines[0].States[0]
	if idle.Loop[0].After != 30*time.Millisecond || idle.Loop[0].Goto != "Done" {
		t.Errorf("idle loop = %+v", idle.Loop[0])
	}
	if p := idle.Exit[0].Publish; p == nil || p.Topic != "display/text" || p.Payload != "Bye!" {
		t.Errorf("idle exit = %+v", idle.Exit[0])
	}
	if f.Machines[0].States[1].Enter[0].Sleep != 5*time.Millisecond {
		t.Errorf("done enter = %+v", f.Machines[0].States[1].Enter[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if len(f.Machines) != 0 || len(f.Start) != 0 {
		t.Errorf("Parse(nil) = %+v, want empty", f)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "unknown key",
			yaml:    "machines: [{id: a, states: [{id: s, enter: [{lgo: x}]}]}]",
			wantErr: nil,
		},
		{
			name:    "two kinds in one action",
			yaml:    "machines: [{states: [{id: s, enter: [{log: x, goto: y}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "empty action",
			yaml:    "machines: [{states: [{id: s, enter: [{}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "after outside loop",
			yaml:    "machines: [{states: [{id: s, enter: [{after: 1s, log: x}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "publish without topic",
			yaml:    "machines: [{states: [{id: s, exit: [{publish: {payload: x}}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "publish bad qos",
			yaml:    "machines: [{states: [{id: s, exit: [{publish: {topic: t, qos: 3}}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "negative sleep",
			yaml:    "machines: [{states: [{id: s, enter: [{sleep: -1s}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "goto without state",
			yaml:    "machines: [{states: [{id: s, loop: [{goto: 'pump.'}]}]}]",
			wantErr: ErrInvalidAction,
		},
		{
			name:    "empty state id",
			yaml:    "machines: [{states: [{id: '  '}]}]",
			wantErr: ErrInvalidDefinition,
		},
		{
			name:    "reserved state id",
			yaml:    "machines: [{states: [{id: __NONE__}]}]",
			wantErr: ErrInvalidDefinition,
		},
		{
			name:    "duplicate state",
			yaml:    "machines: [{states: [{id: On}, {id: ' on '}]}]",
			wantErr: ErrDuplicateState,
		},
		{
			name:    "duplicate machine",
			yaml:    "machines: [{id: ''}, {id: __main__}]",
			wantErr: ErrDuplicateMachine,
		},
		{
			name:    "empty start",
			yaml:    "start: ['']",
			wantErr: ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestActionKind(t *testing.T) {
	tests := []struct {
		a    Action
		want string
	}{
		{Action{Log: "x"}, "log"},
		{Action{Publish: &PublishAction{Topic: "t"}}, "publish"},
		{Action{Goto: "a"}, "goto"},
		{Action{Sleep: time.Second}, "sleep"},
		{Action{After: time.Second, Goto: "a"}, "goto"},
		{Action{}, ""},
		{Action{Log: "x", Sleep: time.Second}, ""},
	}
	for _, tt := range tests {
		if got := tt.a.kind(); got != tt.want {
			t.Errorf("kind(%+v) = %q, want %q", tt.a, got, tt.want)
		}
	}
}
