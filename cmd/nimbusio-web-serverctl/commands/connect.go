package commands

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <node>",
	Short: "Dial a disconnected node",
	Long: `Ask the gateway to (re)dial a named node, for recovery after the
node has been repaired. A ResilientClient does not retry on its own
once it has failed, so a node stays down until the process restarts or
an operator reconnects it with this command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postNodeAction(args[0], "connect")
	},
}

func postNodeAction(node, action string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/admin/nodes/%s/%s", Flags.ServerURL, node, action)

	resp, err := client.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("failed to reach gateway at %s: %w", Flags.ServerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway rejected %s of %q: status %d", action, node, resp.StatusCode)
	}

	fmt.Printf("%s: %s ok\n", node, action)
	return nil
}

func init() {
	RootCmd.AddCommand(connectCmd)
}
