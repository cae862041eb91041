//go:build !no_mqtt

// Package mqtt bridges oven status into Home Assistant over MQTT using the
// autodiscovery convention: retained per-oven state topics, a bridge
// availability topic, and a non-retained event topic for finished timers.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"tovala-go-home/internal/coordinator"
	"tovala-go-home/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge connects the status coordinators to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	reg    *coordinator.Registry
	bus    *coordinator.EventBus
	store  store.Store
	prefix string
	logger *slog.Logger
	unsub  func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(reg *coordinator.Registry, bus *coordinator.EventBus, st store.Store, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		reg:    reg,
		bus:    bus,
		store:  st,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("tovala-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.bus.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventStatusUpdate:
		if data, ok := event.Data.(coordinator.StatusData); ok {
			b.publishState(data.OvenID, data.Snapshot, true)
		}
	case coordinator.EventTimerFinished:
		if data, ok := event.Data.(coordinator.StatusData); ok {
			b.publishTimerFinished(data)
		}
	case coordinator.EventUpdateFailed:
		if data, ok := event.Data.(coordinator.FailureData); ok {
			b.publishFailure(data)
		}
	case coordinator.EventOvenDiscovered:
		if data, ok := event.Data.(coordinator.DiscoveryData); ok {
			b.publishOvenDiscovery(b.ovenFor(data.OvenID))
		}
	}
}

// publishState publishes the merged snapshot to the oven's retained state
// topic. Consumers read last_update_success to grey out stale values.
func (b *Bridge) publishState(ovenID string, snap coordinator.Snapshot, ok bool) {
	if ovenID == "" {
		return
	}
	payload := make(map[string]any, len(snap.Data)+2)
	for k, v := range snap.Data {
		payload[k] = v
	}
	payload["last_update_success"] = ok
	payload["updated_at"] = snap.UpdatedAt.Format(time.RFC3339)

	topic := b.prefix + "/" + ovenTopicName(b.ovenFor(ovenID))
	b.publish(topic, mustJSON(payload), true)
}

func (b *Bridge) publishFailure(data coordinator.FailureData) {
	entry, ok := b.reg.Get(data.Account)
	if !ok {
		return
	}
	// Republish the last known snapshot with the success flag cleared so
	// sensors keep their value but report unavailable-ish state.
	snap, _ := entry.Coordinator.Last()
	b.publishState(data.OvenID, snap, false)
}

func (b *Bridge) publishTimerFinished(data coordinator.StatusData) {
	topic := b.prefix + "/" + ovenTopicName(b.ovenFor(data.OvenID)) + "/event"
	payload := map[string]any{
		"event":    "timer_finished",
		"account":  data.Account,
		"oven_id":  data.OvenID,
		"snapshot": data.Snapshot.Data,
	}
	// Events are moments, not state: never retained.
	b.publish(topic, mustJSON(payload), false)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

// publishAllDiscovery announces every actively polled oven and retracts
// entities for stored ovens no account polls anymore.
func (b *Bridge) publishAllDiscovery() {
	ovens, err := b.store.ListOvens()
	if err != nil {
		b.logger.Error("list ovens for discovery", "err", err)
		ovens = nil
	}

	seen := make(map[string]bool, len(ovens))
	for _, oven := range ovens {
		seen[oven.ID] = true
		if _, active := b.reg.ByOven(oven.ID); active {
			b.publishOvenDiscovery(oven)
		} else {
			for _, msg := range buildRemoveDiscovery(oven) {
				b.publish(msg.Topic, msg.Payload, true)
			}
		}
	}

	// Ovens configured directly (no discovery record) still get announced.
	for _, entry := range b.reg.List() {
		if id := entry.Coordinator.OvenID(); id != "" && !seen[id] {
			b.publishOvenDiscovery(b.ovenFor(id))
		}
	}
}

func (b *Bridge) publishOvenDiscovery(oven *store.Oven) {
	for _, msg := range buildDiscovery(oven, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.subscribeRefresh(oven)
	b.logger.Info("published HA discovery", "oven", oven.ID, "name", ovenDisplayName(oven))
}

// subscribeRefresh lets HA force an immediate poll by publishing anything to
// the oven's refresh topic. The request goes through the poller so update
// cycles stay serialized.
func (b *Bridge) subscribeRefresh(oven *store.Oven) {
	topic := b.prefix + "/" + ovenTopicName(oven) + "/refresh"
	ovenID := oven.ID
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, _ pahomqtt.Message) {
		if entry, ok := b.reg.ByOven(ovenID); ok && entry.Poller != nil {
			entry.Poller.Kick()
		}
	})
}

// ovenFor resolves the stored oven record, falling back to a bare record so
// topic naming still works before discovery has persisted anything.
func (b *Bridge) ovenFor(ovenID string) *store.Oven {
	oven, err := b.store.GetOven(ovenID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("load oven record", "oven", ovenID, "err", err)
		}
		return &store.Oven{ID: ovenID}
	}
	return oven
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
