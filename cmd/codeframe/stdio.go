package main

import (
	"github.com/spf13/cobra"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants read generation status and codeframe hierarchies.
Configuration is loaded from environment variables and .env file. Logs go to
stderr so stdout carries only protocol messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	client, slogger, err := newClient(cfg, "stdio", codeframe.WithoutWorker(), codeframe.WithSkipProviderValidation())
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	mcpServer := mcp.NewServer(client.Generations, client.Hierarchy, version, slogger)
	return mcpServer.ServeStdio()
}
