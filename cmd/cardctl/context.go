package main

import (
	"context"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"voicecard/internal/app"
	"voicecard/internal/config"
	"voicecard/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

// ensureApp opens the store once per invocation.
func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		_ = godotenv.Load()

		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			c.appErr = err
			return
		}

		level := "warn"
		if strings.EqualFold(cfg.LogLevel, "debug") {
			level = "debug"
		}
		logger := logging.New(logging.Options{Level: level, Production: cfg.IsProduction()})

		c.app, c.appErr = app.New(ctx, cfg, logger, app.Options{CLI: true})
	})
	return c.app, c.appErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
