package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/llm"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// withApp loads configuration, builds the agent and hands it to fn.
func withApp(ctx context.Context, load configLoader, fn func(*app) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := buildApp(ctx, cfg, runtimeDeps{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newActionsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "Print the tool descriptors for the configured wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), load, func(a *app) error {
				actions, err := a.agent.GetActions(cmd.Context())
				if err != nil {
					return err
				}
				if skipped := a.agent.Skipped(); len(skipped) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped providers: %s\n", strings.Join(skipped, ", "))
				}
				return printJSON(cmd.OutOrStdout(), llm.Tools(actions))
			})
		},
	}
}

type walletSummary struct {
	Provider string `json:"provider"`
	Address  string `json:"address"`
	Network  string `json:"network"`
	Balance  string `json:"balance_nanotons"`
	Deployed bool   `json:"deployed"`
}

func newWalletCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the wallet address, network, balance and deployment state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), load, func(a *app) error {
				balance, err := a.wallet.Balance(cmd.Context())
				if err != nil {
					return err
				}
				deployed, err := a.wallet.IsDeployed(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), walletSummary{
					Provider: a.wallet.Name(),
					Address:  a.wallet.Address(),
					Network:  a.wallet.Network().String(),
					Balance:  balance.String(),
					Deployed: deployed,
				})
			})
		},
	}
}

func newInvokeCmd(load configLoader) *cobra.Command {
	var rawArgs string

	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Run one action synchronously and print its output",
		Example: `  tonagent invoke get_wallet_details
  tonagent invoke transfer_ton --args '{"to":"EQ...","amount":"0.5"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := invokeArguments(rawArgs)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), load, func(a *app) error {
				out, err := a.agent.Invoke(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "action arguments as a JSON object")
	return cmd
}

func invokeArguments(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if !json.Valid([]byte(raw)) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "--args is not valid JSON", xerrors.WithMetadata("field", "args"))
	}
	return json.RawMessage(raw), nil
}
