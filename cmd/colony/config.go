package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/colony-launcher/colony/internal/config"
	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify colony configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long:  `Display every configuration setting with its effective value, defaults included.`,
		Example: `  colony config list
  colony config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			settings := config.Load().All()

			if out.JSON {
				return out.PrintJSON(settings)
			}

			data, err := yaml.Marshal(settings)
			if err != nil {
				return clierrors.ConfigFailed("render config", err)
			}

			out.Print("%s", data)

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  colony config get helper.port`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]
			value := config.Load().Get(key)

			if out.JSON {
				return out.PrintJSON(map[string]interface{}{key: value})
			}

			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to the given value and persist it to config.yaml.
Integers and booleans are stored typed.`,
		Example: `  colony config set terminal.renderer screen
  colony config set helper.port 20400`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, raw := args[0], args[1]

			if err := config.Load().Set(key, typedValue(raw)); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, raw)

			return nil
		},
	}
}

func typedValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}

	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}

	return raw
}
