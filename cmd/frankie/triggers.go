package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Trigger registration commands",
}

var triggersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted trigger registrations",
	RunE:  runTriggersList,
}

var triggersResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all trigger registrations",
	Long:  `Delete every persisted registration. The server re-creates its recurring triggers on the next start; use this to recover from duplicated or stale registrations.`,
	RunE:  runTriggersReset,
}

func init() {
	triggersCmd.AddCommand(triggersListCmd, triggersResetCmd)
	rootCmd.AddCommand(triggersCmd)
}

func runTriggersList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.ListTriggers()
	if err != nil {
		return fmt.Errorf("failed to list triggers: %w", err)
	}

	if len(recs) == 0 {
		fmt.Println("No triggers registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPURPOSE\tSCHEDULE\tCREATED")
	fmt.Fprintln(w, "----\t-------\t--------\t-------")

	for _, rec := range recs {
		schedule := "every " + rec.Every.String()
		if rec.Every == 0 {
			schedule = "once at " + rec.FireAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Name, rec.Purpose, schedule, rec.Created.Format("2006-01-02 15:04"))
	}

	w.Flush()
	return nil
}

func runTriggersReset(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	deleted, err := s.DeleteAllTriggers()
	if err != nil {
		return fmt.Errorf("failed to delete triggers: %w", err)
	}

	fmt.Printf("Deleted %d trigger registrations\n", deleted)
	return nil
}
