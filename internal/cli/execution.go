package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Start and inspect workflow executions",
	}

	cmd.AddCommand(
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		req    StartExecutionRequest
		params []string
	)

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Start a deployment or system workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			parsed, err := ParseParams(params)
			if err != nil {
				return err
			}
			req.WorkflowID = args[0]
			req.Parameters = parsed

			h, err := clientFn().StartExecution(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution started: %s", h.ExecutionID))
			out.Print(
				[]string{"EXECUTION_ID", "QUEUE", "SENT"},
				[][]string{{h.ExecutionID, h.Queue, h.SentAt}},
				h,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DeploymentID, "deployment", "", "Deployment ID")
	cmd.Flags().StringVar(&req.ExecutionID, "execution-id", "", "Execution ID (generated if empty)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Workflow parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&req.BypassMaintenance, "bypass-maintenance", false, "Start even if maintenance mode is active (system workflows only)")
	cmd.Flags().BoolVar(&req.System, "system", false, "Start a system workflow")
	cmd.Flags().StringVar(&req.TaskMapping, "task-mapping", "", "Task executed by the worker (system workflows)")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"ID", "WORKFLOW", "DEPLOYMENT", "STATUS", "SYSTEM", "CREATED", "ENDED", "ERROR"},
				[][]string{{e.ID, e.WorkflowID, e.DeploymentID, e.Status, strconv.FormatBool(e.IsSystem), e.CreatedAt, e.EndedAt, e.Error}},
				e,
			)
			return nil
		},
	}
}
