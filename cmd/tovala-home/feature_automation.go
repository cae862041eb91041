//go:build !no_automation

package main

import (
	"log/slog"

	"tovala-go-home/internal/automation"
	"tovala-go-home/internal/coordinator"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(reg *coordinator.Registry, bus *coordinator.EventBus, cfg *Config, logger *slog.Logger) *autoStopper {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}
	}

	engine := automation.NewEngine(reg, bus, scriptMgr, logger, automation.TelegramConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatIDs:  cfg.Telegram.ChatIDs,
	})
	engine.Start()
	return &autoStopper{engine: engine}
}
