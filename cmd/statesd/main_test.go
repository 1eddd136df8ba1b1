package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hovavo/pxt-states/internal/api"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// TestRunServe_InvalidConfig verifies runServe fails with a missing config file.
func TestRunServe_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runServe(ctx, "/nonexistent/path/statesd.yaml"); err == nil {
		t.Fatal("runServe() should fail with invalid config path")
	}
}

// TestRunServe_InvalidDefinitions verifies a bad definitions file stops
// startup before anything is connected.
func TestRunServe_InvalidDefinitions(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "machines.yaml", "machines:\n  - id: x\n    states:\n      - id: __none__\n")
	cfg := writeFile(t, dir, "statesd.yaml", `
runtime:
  definitions_file: `+defs+`
history:
  enabled: false
api:
  enabled: false
`)

	err := runServe(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "loading definitions") {
		t.Fatalf("runServe() error = %v, want a definitions error", err)
	}
}

// TestRunServe_CleanShutdown starts the daemon with history on an isolated
// database and the API disabled, then cancels it.
func TestRunServe_CleanShutdown(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "machines.yaml", `
start: ["Idle"]
machines:
  - id: ""
    states:
      - id: Idle
        loop: [{after: 10ms, goto: Done}]
      - id: Done
`)
	cfg := writeFile(t, dir, "statesd.yaml", `
runtime:
  definitions_file: `+defs+`
database:
  path: `+filepath.Join(dir, "states.db")+`
api:
  enabled: false
logging:
  level: error
`)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServe() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(dir, "states.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runDemo(ctx, &out, 50*time.Millisecond); err != nil {
		t.Fatalf("runDemo() error = %v", err)
	}
	want := strings.Join([]string{
		"State: idle",
		"State changed:",
		"- Current state: idle",
		"- Previous state: __none__",
		`- Current state is "Idle": true`,
		`- Previous state was "Idle": false`,
		"Idle state exit:",
		"- Next state: done",
		`- Next state is "Idle": false`,
		"State: done",
		"State changed:",
		"- Current state: done",
		"- Previous state: idle",
		`- Current state is "Idle": false`,
		`- Previous state was "Idle": true`,
	}, "\n") + "\n"
	if got := out.String(); got != want {
		t.Errorf("demo output = %q, want %q", got, want)
	}
}

func TestRunDemoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runDemo(ctx, &bytes.Buffer{}, time.Hour); err != context.Canceled {
		t.Errorf("runDemo() error = %v, want context.Canceled", err)
	}
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", `
start: ["light.off"]
machines:
  - id: light
    states:
      - id: "off"
      - id: "on"
`)
	bad := writeFile(t, dir, "bad.yaml", "machines: [{id: a}, {id: A}]\n")

	var out bytes.Buffer
	if err := runValidate(&out, good); err != nil {
		t.Fatalf("runValidate(good) error = %v", err)
	}
	if !strings.Contains(out.String(), "light: 2 state(s)") {
		t.Errorf("output = %q", out.String())
	}

	if err := runValidate(&bytes.Buffer{}, bad); err == nil {
		t.Error("runValidate(bad) should fail on duplicate machines")
	}

	out.Reset()
	if err := runValidate(&out, ""); err != nil || !strings.Contains(out.String(), "no definitions") {
		t.Errorf("runValidate(\"\") = %v, output %q", err, out.String())
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "statesd.yaml", "security:\n  jwt:\n    secret: "+testSecret+"\n")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", cfg, "--subject", "panel", "--ttl", "1m"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token command error = %v", err)
	}

	claims, err := api.ParseToken(testSecret, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "panel" {
		t.Errorf("subject = %q, want panel", claims.Subject)
	}
}

func TestTokenCommandWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "statesd.yaml", "logging:\n  level: error\n")

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", cfg})
	if err := cmd.Execute(); err == nil {
		t.Error("token command should fail without a secret")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("STATES_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("STATES_CONFIG", "/etc/statesd.yaml")
	if got := getConfigPath(); got != "/etc/statesd.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}
