package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cluster connectivity and in-flight request counts",
	Long: `Show the gateway's per-node connectivity, erasure-coding geometry
(N/K/H), and in-flight archive/retrieve counts, fetched from the
gateway's /health endpoint.`,
	RunE: runStatus,
}

// healthStats mirrors pkg/gateway.Application.Stats's JSON shape.
type healthStats struct {
	ArchivesInFlight  int64           `json:"ArchivesInFlight"`
	RetrievesInFlight int64           `json:"RetrievesInFlight"`
	ConnectedNodes    int             `json:"ConnectedNodes"`
	N                 int             `json:"N"`
	K                 int             `json:"K"`
	H                 int             `json:"H"`
	Nodes             map[string]bool `json:"Nodes"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(Flags.ServerURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to reach gateway at %s: %w", Flags.ServerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var stats healthStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if Flags.Output == "json" {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	printSummary(stats)
	printNodes(stats.Nodes)
	return nil
}

func printSummary(stats healthStats) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.Append([]string{"N / K / H", fmt.Sprintf("%d / %d / %d", stats.N, stats.K, stats.H)})
	table.Append([]string{"connected nodes", fmt.Sprintf("%d / %d", stats.ConnectedNodes, stats.N)})
	table.Append([]string{"archives in flight", fmt.Sprintf("%d", stats.ArchivesInFlight)})
	table.Append([]string{"retrieves in flight", fmt.Sprintf("%d", stats.RetrievesInFlight)})
	table.Render()
}

func printNodes(nodes map[string]bool) {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NODE", "CONNECTED"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, name := range names {
		connected := "no"
		if nodes[name] {
			connected = "yes"
		}
		table.Append([]string{name, connected})
	}
	table.Render()
}
