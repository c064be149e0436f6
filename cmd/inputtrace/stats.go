package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckdorsey/inputtrace/internal/client"
)

var statsFlags struct {
	apiURL string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event totals from the receiver",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsFlags.apiURL, "api-url", getEnv("INPUTTRACE_API_URL", "http://127.0.0.1:8000"), "receiver URL")
}

func runStats(cmd *cobra.Command, args []string) error {
	c := client.NewClient(statsFlags.apiURL)
	resp, err := c.GetStats()
	if err != nil {
		return err
	}

	fmt.Printf("Total events: %d\n", resp.Total)
	if len(resp.ByKind) > 0 {
		fmt.Println()
		fmt.Printf("%-14s  %s\n", "KIND", "COUNT")
		for _, kc := range resp.ByKind {
			fmt.Printf("%-14s  %d\n", kc.Kind, kc.Count)
		}
	}

	return nil
}
