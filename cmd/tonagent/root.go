package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/DenzelPenzel/ton-agent/internal/config"
)

const rootLong = `tonagent exposes a single TON wallet to LLM tool calling.

The serve command starts the HTTP API and the invocation workers. The
remaining commands build the same agent once, run a single operation and exit.
The configuration path defaults to $TON_AGENT_CONFIG or configs/tonagent.json.`

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tonagent",
		Short:         "TON wallet agent for LLM tool calling",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the JSON configuration file")

	load := func() (*config.Config, error) {
		path := configPath
		if path == "" {
			path = config.PathFromEnv()
		}
		return config.Load(path)
	}

	cmd.AddCommand(
		newServeCmd(load),
		newActionsCmd(load),
		newWalletCmd(load),
		newInvokeCmd(load),
	)
	return cmd
}

type configLoader func() (*config.Config, error)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
