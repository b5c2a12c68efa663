package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var maintenanceHeaders = []string{"STATUS", "REQUESTED_BY", "REQUESTED_AT", "REMAINING"}

func printMaintenance(out *Output, s *MaintenanceResponse) {
	out.Print(
		maintenanceHeaders,
		[][]string{{s.Status, s.RequestedBy, s.ActivationRequestedAt, strconv.Itoa(s.RemainingExecutions)}},
		s,
	)
}

// NewMaintenanceCmd создаёт группу команд для maintenance mode.
func NewMaintenanceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Manage maintenance mode",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show maintenance mode state",
			RunE: func(cmd *cobra.Command, args []string) error {
				state, err := clientFn().GetMaintenance()
				if err != nil {
					return err
				}
				printMaintenance(outputFn(), state)
				return nil
			},
		},
		newMaintenanceActionCmd("activate", "Stop new executions from starting", clientFn, outputFn),
		newMaintenanceActionCmd("deactivate", "Allow executions to start again", clientFn, outputFn),
	)

	return cmd
}

func newMaintenanceActionCmd(action, short string, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			state, changed, err := clientFn().MaintenanceAction(action)
			if err != nil {
				return err
			}

			if changed {
				out.Success(fmt.Sprintf("Maintenance mode is %s", state.Status))
			} else {
				out.Success(fmt.Sprintf("Maintenance mode already %s", state.Status))
			}
			printMaintenance(out, state)
			return nil
		},
	}
}
