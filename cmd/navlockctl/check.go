package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/navlock/internal/navlock/domain"
)

func newCheckCmd() *cobra.Command {
	var dbPath string
	var resourceType string

	cmd := &cobra.Command{
		Use:   "check URL...",
		Short: "Evaluate URLs against the rules installed in a rules db",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			for _, u := range args {
				d := engine.Decide(u, domain.ResourceType(resourceType))
				if _, err := fmt.Fprintln(out, formatDecision(u, d)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the rules db")
	cmd.Flags().StringVar(&resourceType, "resource-type", string(domain.ResourceMainFrame), "Request resource type")

	return cmd
}

func formatDecision(url string, d domain.Decision) string {
	if !d.Matched {
		return fmt.Sprintf("none %s", url)
	}
	if d.Action == domain.ActionRedirect {
		return fmt.Sprintf("%s rule=%d to=%s %s", d.Action, d.RuleID, d.RedirectURL, url)
	}
	return fmt.Sprintf("%s rule=%d %s", d.Action, d.RuleID, url)
}
