// Copyright © 2018 The ELPS authors

package cmd

import (
	"errors"
	"fmt"

	"github.com/luthersystems/scriptdap/script"
	"github.com/spf13/cobra"
)

// RunCommand returns the run command, which evaluates script files in order
// and stops at the first fatal error.
func RunCommand(opts ...Option) *cobra.Command {
	cfg := newCmdConfig(opts)
	var excludes []string
	cmd := &cobra.Command{
		Use:   "run file...",
		Short: "Run script files",
		Long: `Run one or more script files. Each file gets its own top level scope.
An argument of the form dir/... runs every script file under dir.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			files, err := expandArgs(args)
			if err != nil {
				fmt.Fprintln(cfg.output, err)
				cfg.exit(1)
				return
			}
			files = filterExcludes(files, excludes)
			for _, path := range files {
				in := script.New(
					script.WithOutput(cfg.output),
					script.WithLogger(cfg.logger),
				)
				if err = in.RunFile(path); err != nil {
					var serr *script.Error
					if !errors.As(err, &serr) && !errors.Is(err, script.ErrFailed) {
						// Fatal script errors were already reported by the
						// interpreter.
						fmt.Fprintln(cfg.output, err)
					}
					break
				}
			}
			cfg.exit(exitCode(err))
		},
	}
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil,
		"Skip files whose path or path components match a glob pattern")
	return cmd
}
