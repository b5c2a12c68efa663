// Helmsman CLI — инструмент командной строки для управления
// deployment updates, maintenance mode и executions через HTTP API.
//
// Использование:
//
//	helmsman [--api-url URL] [--token TOKEN] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	update       Deployment updates
//	maintenance  Maintenance mode
//	deployment   Deployments
//	execution    Executions
package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/shaiso/Helmsman/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		apiURL      string
		token       string
		requestedBy string
		jsonOutput  bool
	)

	rootCmd := &cobra.Command{
		Use:           "helmsman",
		Short:         "Helmsman CLI — deployment update control plane",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("HELMSMAN_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("HELMSMAN_TOKEN"), "API bearer token")
	rootCmd.PersistentFlags().StringVar(&requestedBy, "as", currentUser(), "Name recorded as the requester of maintenance actions")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, token, requestedBy) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewUpdateCmd(clientFn, outputFn),
		cli.NewMaintenanceCmd(clientFn, outputFn),
		cli.NewDeploymentCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "cli"
}
