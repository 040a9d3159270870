package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowlofstew/nimbus.io/internal/cli/prompt"
)

var disconnectForce bool

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <node>",
	Short: "Force a node down for maintenance",
	Long: `Tear down the gateway's connection to a named node, the same
state a real transport failure leaves it in: writes hand the node's
segment off to backups, reads fall back to K-of-N. Destructive enough
to prompt for confirmation unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node := args[0]

		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("disconnect node %q", node), disconnectForce)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}

		return postNodeAction(node, "disconnect")
	},
}

func init() {
	disconnectCmd.Flags().BoolVarP(&disconnectForce, "force", "f", false, "skip the confirmation prompt")
	RootCmd.AddCommand(disconnectCmd)
}
