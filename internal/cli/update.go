package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var updateHeaders = []string{"ID", "DEPLOYMENT", "BLUEPRINT", "STATE", "STEPS", "EXECUTIONS", "CREATED"}

func updateRow(u UpdateResponse) []string {
	return []string{
		u.ID,
		u.DeploymentID,
		u.BlueprintID,
		u.State,
		strconv.Itoa(len(u.Steps)),
		strconv.Itoa(len(u.ExecutionIDs)),
		u.CreatedAt,
	}
}

// printUpdate выводит update и его шаги.
func printUpdate(out *Output, u *UpdateResponse) {
	if out.jsonMode {
		out.JSON(u)
		return
	}

	out.Table(updateHeaders, [][]string{updateRow(*u)})
	if u.Error != "" {
		out.Error(u.Error)
	}
	if u.RollbackIncomplete {
		out.Error("rollback incomplete, deployment topology needs manual repair")
	}
	if len(u.Steps) > 0 {
		rows := make([][]string, len(u.Steps))
		for i, s := range u.Steps {
			rows[i] = []string{strconv.Itoa(s.Index), s.Operation, s.EntityType, s.EntityID}
		}
		fmt.Fprintln(out.w)
		out.Table([]string{"#", "OPERATION", "ENTITY_TYPE", "ENTITY_ID"}, rows)
	}
	if len(u.ExecutionIDs) > 0 {
		fmt.Fprintln(out.w)
		fmt.Fprintln(out.w, "Executions: "+strings.Join(u.ExecutionIDs, ", "))
	}
}

// NewUpdateCmd создаёт группу команд для управления deployment updates.
func NewUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "update",
		Aliases: []string{"updates"},
		Short:   "Manage deployment updates",
	}

	cmd.AddCommand(
		newUpdateListCmd(clientFn, outputFn),
		newUpdateStageCmd(clientFn, outputFn),
		newUpdateShowCmd(clientFn, outputFn),
		newUpdateAddStepCmd(clientFn, outputFn),
		newUpdateActionCmd("commit", "Commit a staged update and run its workflows", (*Client).CommitUpdate, clientFn, outputFn),
		newUpdateActionCmd("finalize", "Finalize an update once its workflows have finished", (*Client).FinalizeUpdate, clientFn, outputFn),
		newUpdateActionCmd("discard", "Discard a staged update", (*Client).DiscardUpdate, clientFn, outputFn),
	)

	return cmd
}

func newUpdateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListUpdatesOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployment updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := clientFn().ListUpdates(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(updates))
			for i, u := range updates {
				rows[i] = updateRow(u)
			}

			outputFn().Print(updateHeaders, rows, updates)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DeploymentID, "deployment", "", "Filter by deployment ID")
	cmd.Flags().StringVar(&opts.State, "state", "", "Filter by state (staged, updating, committed, failed, discarded)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of updates")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of updates to skip")
	cmd.Flags().BoolVar(&opts.Descending, "desc", false, "Newest first")

	return cmd
}

func newUpdateStageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var blueprintFile string

	cmd := &cobra.Command{
		Use:   "stage DEPLOYMENT_ID",
		Short: "Stage an update from a blueprint file (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			blueprint, err := LoadDocument(blueprintFile)
			if err != nil {
				return err
			}

			u, err := clientFn().StageUpdate(args[0], blueprint)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Update staged: %s", u.ID))
			printUpdate(out, u)
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintFile, "file", "f", "", "Path to blueprint file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newUpdateShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show update details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := clientFn().GetUpdate(args[0])
			if err != nil {
				return err
			}

			printUpdate(outputFn(), u)
			return nil
		},
	}
}

func newUpdateAddStepCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req AddStepRequest

	cmd := &cobra.Command{
		Use:   "add-step ID",
		Short: "Append a step to a staged update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			step, err := clientFn().AddStep(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step %d added", step.Index))
			out.Print(
				[]string{"#", "OPERATION", "ENTITY_TYPE", "ENTITY_ID"},
				[][]string{{strconv.Itoa(step.Index), step.Operation, step.EntityType, step.EntityID}},
				step,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Operation, "operation", "", "add, remove or modify (required)")
	cmd.Flags().StringVar(&req.EntityType, "entity-type", "", "node, relationship, property, output, workflow or operation (required)")
	cmd.Flags().StringVar(&req.EntityID, "entity-id", "", "Entity ID, e.g. web or web->db (required)")
	cmd.MarkFlagRequired("operation")
	cmd.MarkFlagRequired("entity-type")
	cmd.MarkFlagRequired("entity-id")

	return cmd
}

func newUpdateActionCmd(
	use, short string,
	action func(*Client, string) (*UpdateResponse, error),
	clientFn func() *Client,
	outputFn func() *Output,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			u, err := action(clientFn(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Update %s is %s", u.ID, u.State))
			printUpdate(out, u)
			return nil
		},
	}
}
