package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/mcp"
	"github.com/jward/pytrail/internal/runtime"
	"github.com/jward/pytrail/internal/server"
	"github.com/jward/pytrail/internal/store"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the symbol graph over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.NewServer(pytrail.NewQueryBuilder(s), server.WithLogger(a.logger))
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config server.addr)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the symbol graph to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return mcp.NewServer(pytrail.NewQueryBuilder(s), a.logger).Run(cmd.Context())
		},
	}
}

func (a *app) scriptCmd() *cobra.Command {
	var noDB bool
	cmd := &cobra.Command{
		Use:   "script <file.risor> [args...]",
		Short: "Run a Risor script against the symbol graph",
		Long:  "Runs a Risor script with the tree-sitter host functions and, unless --no-db is set, the symbol graph queries. Remaining arguments are exposed to the script as the args list.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving script path %q: %w", args[0], err)
			}

			var s *store.Store
			if !noDB {
				s, err = a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()
			}
			rt := runtime.New(s, runtime.WithScriptsDir(filepath.Dir(path)), runtime.WithLogger(a.logger))

			scriptArgs := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				scriptArgs = append(scriptArgs, arg)
			}
			return rt.RunFile(cmd.Context(), filepath.Base(path), map[string]any{"args": scriptArgs})
		},
	}
	cmd.Flags().BoolVar(&noDB, "no-db", false, "run without opening the database")
	return cmd
}
