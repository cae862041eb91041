//go:build no_mqtt

package main

import (
	"log/slog"

	"tovala-go-home/internal/coordinator"
	"tovala-go-home/internal/store"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *coordinator.Registry, _ *coordinator.EventBus, _ store.Store, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
