// Copyright © 2024 The ELPS authors

package cmd

import (
	"io"
	"os"

	"github.com/luthersystems/scriptdap/debugger"
	"github.com/sirupsen/logrus"
)

// Option configures an exported command factory (RunCommand, DebugCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	output  io.Writer
	logger  *logrus.Logger
	version debugger.Version
	exit    func(code int)
}

// WithOutput sets where script messages are printed. The default is
// os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(c *cmdConfig) { c.output = w }
}

// WithLogger injects the logger handed to the interpreter and the debug
// adapter. The default is the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *cmdConfig) { c.logger = l }
}

// WithVersion sets the version the debug adapter reports to clients.
func WithVersion(v debugger.Version) Option {
	return func(c *cmdConfig) { c.version = v }
}

// WithExit replaces os.Exit, which commands call with the script's exit
// code.
func WithExit(fn func(code int)) Option {
	return func(c *cmdConfig) { c.exit = fn }
}

func newCmdConfig(opts []Option) *cmdConfig {
	c := &cmdConfig{
		output:  os.Stderr,
		logger:  logrus.StandardLogger(),
		version: Version,
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version is the version reported by default.
var Version = debugger.Version{Major: 0, Minor: 1, Patch: 0, Full: "0.1.0"}

// exitCode maps a script result to a process exit code.
func exitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
