package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zuckdorsey/inputtrace/internal/client"
)

var eventsFlags struct {
	apiURL string
	limit  int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent events from the receiver",
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsFlags.apiURL, "api-url", getEnv("INPUTTRACE_API_URL", "http://127.0.0.1:8000"), "receiver URL")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", 50, "maximum number of events to list")
}

func runEvents(cmd *cobra.Command, args []string) error {
	c := client.NewClient(eventsFlags.apiURL)
	resp, err := c.GetEvents(eventsFlags.limit)
	if err != nil {
		return err
	}

	if len(resp.Events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	fmt.Printf("%-25s  %-12s  %-30s  %s\n", "TIME", "KIND", "WINDOW", "DETAIL")
	for _, e := range resp.Events {
		detail := e.Key
		if detail == "" && e.Button != "" {
			detail = fmt.Sprintf("%s @ %d,%d", e.Button, e.X, e.Y)
		}
		if detail == "" && (e.DeltaX != 0 || e.DeltaY != 0) {
			detail = fmt.Sprintf("scroll %d,%d", e.DeltaX, e.DeltaY)
		}
		fmt.Printf("%-25s  %-12s  %-30s  %s\n", e.TSISO, e.Kind, truncate(e.Window, 30), detail)
	}

	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
