// linnixctl — CLI client for linnixd's stream endpoints and rule files.
package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodewatch/linnixd/internal/rules"
)

var version = "0.1.0"

func main() {
	var addr string

	rootCmd := &cobra.Command{
		Use:     "linnixctl",
		Short:   "CLI client for linnixd's stream endpoints and rule files",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:9400", "linnixd stream server address")

	tailEventsCmd := &cobra.Command{
		Use:   "tail-events",
		Short: "Tail the recent-event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailStream(addr + "/stream/events")
		},
	}

	tailAlertsCmd := &cobra.Command{
		Use:   "tail-alerts",
		Short: "Tail the alert stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailStream(addr + "/stream/alerts")
		},
	}

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Rule file operations",
	}
	rulesValidateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a rule file's syntax and detector parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRules(args[0])
		},
	}
	rulesCmd.AddCommand(rulesValidateCmd)

	rootCmd.AddCommand(tailEventsCmd, tailAlertsCmd, rulesCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func tailStream(url string) error {
	// No client timeout: the response body is read as a live stream until
	// the connection closes or the process is killed.
	client := &http.Client{}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("linnixctl: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linnixctl: %s returned %s", url, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

func validateRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("linnixctl: read %s: %w", path, err)
	}

	cfgs, err := rules.ParseRules(string(data), path)
	if err != nil {
		return fmt.Errorf("linnixctl: %s is invalid: %w", path, err)
	}

	fmt.Printf("%s: %d rule(s) valid\n", path, len(cfgs))
	for _, cfg := range cfgs {
		fmt.Printf("  - %s (severity=%s cooldown=%ds)\n", cfg.Name, cfg.Severity, cfg.Cooldown)
	}
	return nil
}
