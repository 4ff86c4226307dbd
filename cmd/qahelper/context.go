package main

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cjhyy/interview-QA-help/internal/app"
	"github.com/cjhyy/interview-QA-help/internal/config"
	"github.com/cjhyy/interview-QA-help/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     config.Config
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() config.Config {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config = config.Load(path)
	})
	return c.config
}

// withApp builds the application for one command and closes it afterwards,
// which also waits for any pipeline run the command started.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.Application) error) (err error) {
	cfg := c.ensureConfig()
	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(application)
}

// wantTable reports whether output goes to a terminal and JSON was not forced.
func (c *commandContext) wantTable(cmd *cobra.Command) bool {
	if c.jsonFlag != nil && *c.jsonFlag {
		return false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
