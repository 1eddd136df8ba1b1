package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hovavo/pxt-states/internal/infrastructure/mqtt"
	"github.com/hovavo/pxt-states/internal/states"
)

const defaultCommandQueue = 64

// MQTTClient is the subset of *mqtt.Client used by the bridge.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	// Client is the connected MQTT client.
	Client MQTTClient

	// Registry is the engine commands are applied to.
	Registry *states.Registry

	// Topics builds topic names. Zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS for publishes and the command subscription.
	QoS byte

	// QueueSize bounds pending commands. Defaults to 64.
	QueueSize int

	// Logger is optional.
	Logger Logger
}

type command struct {
	machine string
	state   string
}

// Metrics counts bridge activity.
type Metrics struct {
	Published        uint64 `json:"published"`
	PublishFailures  uint64 `json:"publish_failures"`
	CommandsApplied  uint64 `json:"commands_applied"`
	CommandsRejected uint64 `json:"commands_rejected"`
}

// Bridge relays transitions to MQTT and applies MQTT commands to machines.
type Bridge struct {
	client   MQTTClient
	registry *states.Registry
	topics   mqtt.Topics
	qos      byte
	logger   Logger

	commands chan command
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	published        atomic.Uint64
	publishFailures  atomic.Uint64
	commandsApplied  atomic.Uint64
	commandsRejected atomic.Uint64
}

// New creates a bridge. Call Start to subscribe to commands.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.QoS > 2 {
		return nil, mqtt.ErrInvalidQoS
	}
	topics := opts.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultCommandQueue
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:   opts.Client,
		registry: opts.Registry,
		topics:   topics,
		qos:      opts.QoS,
		logger:   opts.Logger,
		commands: make(chan command, size),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start subscribes to command topics, starts the command worker and
// publishes the current state of every machine.
func (b *Bridge) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.runCommands()

	topic := b.topics.AllMachineCommands()
	if err := b.client.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.PublishAll(ctx)
	return nil
}

// Stop unsubscribes and waits for the command worker. Queued commands that
// have not started are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.client.Unsubscribe(b.topics.AllMachineCommands()); err != nil {
			b.logDebug("unsubscribe on stop failed", "error", err)
		}
		b.cancel()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Name implements telemetry.Sink.
func (b *Bridge) Name() string {
	return "mqtt"
}

// Record implements telemetry.Sink by publishing the retained state and the
// transition event.
func (b *Bridge) Record(_ context.Context, t states.Transition) error {
	machine := t.Machine.String()

	state, err := json.Marshal(stateMessage(t))
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	if err := b.publish(b.topics.MachineState(machine), state, true); err != nil {
		return err
	}

	event, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling transition: %w", err)
	}
	return b.publish(b.topics.MachineTransition(machine), event, false)
}

// Reconnected republishes every machine's retained state. Hook it to the MQTT
// client's connect callback so a restarted broker gets current states back.
// It does nothing once the bridge is stopped.
func (b *Bridge) Reconnected() {
	if b.ctx.Err() != nil {
		return
	}
	b.logDebug("republishing machine states after reconnect")
	b.PublishAll(b.ctx)
}

// PublishAll publishes the retained state of every machine. It runs on
// Start and from Reconnected.
func (b *Bridge) PublishAll(ctx context.Context) {
	for _, m := range b.registry.Machines() {
		if ctx.Err() != nil {
			return
		}
		snap := m.Snapshot()
		msg := StateMessage{
			Machine:   snap.ID.String(),
			State:     snap.Current.String(),
			Previous:  snap.Previous.String(),
			ElapsedMS: snap.RunningTime.Milliseconds(),
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := b.publish(b.topics.MachineState(msg.Machine), payload, true); err != nil {
			b.logWarn("publishing machine state failed", "machine", msg.Machine, "error", err)
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) error {
	if err := b.client.Publish(topic, payload, b.qos, retained); err != nil {
		b.publishFailures.Add(1)
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	b.published.Add(1)
	return nil
}

// handleCommand runs on the MQTT client's callback goroutine. It only
// validates and enqueues.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	machine, ok := b.topics.ParseCommandTopic(topic)
	if !ok {
		b.commandsRejected.Add(1)
		return fmt.Errorf("unexpected command topic %q", topic)
	}
	state, err := parseCommand(payload)
	if err != nil {
		b.commandsRejected.Add(1)
		return fmt.Errorf("parsing command for %s: %w", machine, err)
	}

	select {
	case <-b.ctx.Done():
		return nil
	case b.commands <- command{machine: machine, state: state}:
		b.logDebug("command queued", "machine", machine, "state", state)
		return nil
	default:
		b.commandsRejected.Add(1)
		return fmt.Errorf("command queue full, dropping %s.%s", machine, state)
	}
}

func (b *Bridge) runCommands() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case cmd := <-b.commands:
			b.registry.Resolve(cmd.machine).SetState(b.ctx, cmd.state)
			b.commandsApplied.Add(1)
			b.logInfo("command applied", "machine", cmd.machine, "state", cmd.state)
		}
	}
}

// GetMetrics returns bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Published:        b.published.Load(),
		PublishFailures:  b.publishFailures.Load(),
		CommandsApplied:  b.commandsApplied.Load(),
		CommandsRejected: b.commandsRejected.Load(),
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}
