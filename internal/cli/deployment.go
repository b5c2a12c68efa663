package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func printDeployment(out *Output, d *DeploymentResponse) {
	nodes, _ := d.Topology["nodes"].([]any)
	out.Print(
		[]string{"ID", "BLUEPRINT", "NODES", "WORKFLOWS", "UPDATED"},
		[][]string{{d.ID, d.BlueprintID, strconv.Itoa(len(nodes)), strconv.Itoa(len(d.Workflows)), d.UpdatedAt}},
		d,
	)
}

// NewDeploymentCmd создаёт группу команд для deployments.
func NewDeploymentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Inspect and register deployments",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show ID",
			Short: "Show deployment topology summary",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := clientFn().GetDeployment(args[0])
				if err != nil {
					return err
				}
				printDeployment(outputFn(), d)
				return nil
			},
		},
		newDeploymentPutCmd(clientFn, outputFn),
	)

	return cmd
}

func newDeploymentPutCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put ID",
		Short: "Register or replace a deployment from a file (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			doc, err := LoadDocument(file)
			if err != nil {
				return err
			}

			d, err := clientFn().PutDeployment(args[0], doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Deployment stored: %s", d.ID))
			printDeployment(out, d)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to deployment file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}
