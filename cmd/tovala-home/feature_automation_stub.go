//go:build no_automation

package main

import (
	"log/slog"

	"tovala-go-home/internal/coordinator"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *coordinator.Registry, _ *coordinator.EventBus, _ *Config, _ *slog.Logger) *autoStopper {
	return &autoStopper{}
}
