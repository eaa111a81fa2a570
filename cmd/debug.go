// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/luthersystems/scriptdap/debugger"
	"github.com/luthersystems/scriptdap/debugger/transport"
	"github.com/luthersystems/scriptdap/script"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uber-go/tally"
	"go.opentelemetry.io/otel"
)

// DebugCommand returns the debug command, which runs a script under the DAP
// debug adapter.
func DebugCommand(opts ...Option) *cobra.Command {
	cfg := newCmdConfig(opts)
	cmd := &cobra.Command{
		Use:   "debug [flags] file",
		Short: "Run a script under the DAP debugger",
		Long: `Start a Debug Adapter Protocol server and run a script once a client has
attached and finished configuring breakpoints.

Transport modes:
  --pipe PATH  Listen on a Unix domain socket at PATH
  --stdio      Use stdin/stdout (for editors that launch the adapter as a
               child process)
  --port N     Listen on TCP port N (default: 4711)

--dap-log FILE copies all protocol traffic to FILE.
--metrics logs the adapter's request and stop counters every second.
--trace logs one span per protocol request.

The command returns once the client disconnects, with the script's exit
code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runDebug(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			cfg.exit(code)
			return nil
		},
	}
	cmd.Flags().Int("port", 4711, "TCP port to listen on")
	cmd.Flags().String("pipe", "", "Unix domain socket path to listen on")
	cmd.Flags().Bool("stdio", false, "Use stdin/stdout for DAP communication")
	cmd.Flags().String("dap-log", "", "File receiving a copy of all DAP traffic")
	_ = viper.BindPFlag("debug.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("debug.pipe", cmd.Flags().Lookup("pipe"))
	_ = viper.BindPFlag("debug.stdio", cmd.Flags().Lookup("stdio"))
	cmd.Flags().Bool("metrics", false, "Log adapter metrics")
	cmd.Flags().Bool("trace", false, "Log a span for every DAP request")
	_ = viper.BindPFlag("debug.dap_log", cmd.Flags().Lookup("dap-log"))
	_ = viper.BindPFlag("debug.metrics", cmd.Flags().Lookup("metrics"))
	_ = viper.BindPFlag("debug.trace", cmd.Flags().Lookup("trace"))
	return cmd
}

func debugConnection() transport.Connection {
	switch {
	case viper.GetString("debug.pipe") != "":
		return transport.NewPipe(viper.GetString("debug.pipe"))
	case viper.GetBool("debug.stdio"):
		return transport.NewStdio(os.Stdin, os.Stdout)
	default:
		addr := net.JoinHostPort("localhost", strconv.Itoa(viper.GetInt("debug.port")))
		return transport.NewTCP(addr)
	}
}

func runDebug(ctx context.Context, cfg *cmdConfig, file string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	handshakeCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	scopeOpts := tally.ScopeOptions{
		Prefix: "scriptdap",
		Tags:   map[string]string{"service": "scriptdap"},
	}
	if viper.GetBool("debug.metrics") {
		scopeOpts.Reporter = newLogReporter(cfg.logger)
	}
	scope, closer := tally.NewRootScope(scopeOpts, time.Second)
	defer closer.Close() //nolint:errcheck // best-effort cleanup

	if viper.GetBool("debug.trace") {
		tp := newTracerProvider(cfg.logger)
		otel.SetTracerProvider(tp)
		defer tp.Shutdown(context.Background()) //nolint:errcheck // best-effort cleanup
	}

	adapterOpts := []debugger.Option{
		debugger.WithLogger(cfg.logger),
		debugger.WithMetrics(scope),
		debugger.WithVersion(cfg.version),
	}
	if path := viper.GetString("debug.dap_log"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return 0, fmt.Errorf("open DAP log: %w", err)
		}
		defer f.Close() //nolint:errcheck // best-effort cleanup
		adapterOpts = append(adapterOpts, debugger.WithTrafficLog(f))
	}

	adapter, err := debugger.New(handshakeCtx, debugConnection(), adapterOpts...)
	if err != nil {
		if errors.Is(err, debugger.ErrDisconnected) {
			return 0, nil
		}
		return 0, err
	}
	defer adapter.Close() //nolint:errcheck // best-effort cleanup

	in := script.New(
		script.WithHooks(adapter),
		script.WithOutput(cfg.output),
		script.WithLogger(cfg.logger),
	)
	runErr := in.RunFile(file)
	var serr *script.Error
	if runErr != nil && !errors.As(runErr, &serr) && !errors.Is(runErr, script.ErrFailed) {
		fmt.Fprintln(cfg.output, runErr)
	}
	code := exitCode(runErr)
	adapter.ReportExitCode(code)
	return code, nil
}
