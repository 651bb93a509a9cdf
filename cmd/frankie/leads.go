package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/autofranco/frankie/internal/lead"
	"github.com/autofranco/frankie/internal/store"
)

var (
	leadsListStatus string
	leadAddEmail    string
	leadAddName     string
	leadAddCompany  string
	leadAddPosition string
	leadAddDept     string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Lead management commands",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE:  runLeadsList,
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <row>",
	Short: "Show lead details",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsShow,
}

var leadsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a lead row",
	RunE:  runLeadsAdd,
}

var leadsStatusCmd = &cobra.Command{
	Use:   "status <row> <status>",
	Short: "Edit a lead's status",
	Long:  `Edit the Status cell of one row. Setting a Running row to Done stops its remaining emails; clearing an Error row re-arms it for the next sweep.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runLeadsStatus,
}

func init() {
	leadsListCmd.Flags().StringVar(&leadsListStatus, "status", "", "Filter by status (Processing, Running, Done, Error)")

	leadsAddCmd.Flags().StringVar(&leadAddEmail, "email", "", "Lead email address")
	leadsAddCmd.Flags().StringVar(&leadAddName, "first-name", "", "Lead first name")
	leadsAddCmd.Flags().StringVar(&leadAddCompany, "company", "", "Lead company")
	leadsAddCmd.Flags().StringVar(&leadAddPosition, "position", "", "Lead position")
	leadsAddCmd.Flags().StringVar(&leadAddDept, "department", "", "Lead department (optional)")

	leadsCmd.AddCommand(leadsListCmd, leadsShowCmd, leadsAddCmd, leadsStatusCmd)
	rootCmd.AddCommand(leadsCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

func parseRow(arg string) (uint64, error) {
	row, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || row == 0 {
		return 0, fmt.Errorf("invalid row %q", arg)
	}
	return row, nil
}

func runLeadsList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var leads []*lead.Lead
	if leadsListStatus != "" {
		leads, err = s.ListByStatus(lead.Status(leadsListStatus))
	} else {
		leads, err = s.List()
	}
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}

	if len(leads) == 0 {
		fmt.Println("No leads")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tEMAIL\tCOMPANY\tSTATUS\tSENT\tINFO")
	fmt.Fprintln(w, "---\t-----\t-------\t------\t----\t----")

	for _, l := range leads {
		sent := 0
		for _, slot := range l.Slots {
			if slot.Sent {
				sent++
			}
		}
		status := string(l.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%s\n",
			l.Row, l.Email, l.Company, status, sent, lead.SlotCount, l.Info)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d leads\n", len(leads))

	return nil
}

func runLeadsShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	row, err := parseRow(args[0])
	if err != nil {
		return err
	}

	l, err := s.Get(row)
	if err != nil {
		return fmt.Errorf("failed to get lead: %w", err)
	}
	if l == nil {
		return fmt.Errorf("lead not found: row %d", row)
	}

	fmt.Printf("Lead: row %d\n\n", l.Row)
	fmt.Printf("Email:      %s\n", l.Email)
	fmt.Printf("Name:       %s\n", l.FirstName)
	fmt.Printf("Company:    %s\n", l.Company)
	fmt.Printf("Position:   %s\n", l.Position)
	if l.Department != "" {
		fmt.Printf("Department: %s\n", l.Department)
	}
	status := string(l.Status)
	if status == "" {
		status = "-"
	}
	fmt.Printf("Status:     %s\n", status)
	if l.Info != "" {
		fmt.Printf("Info:       %s\n", l.Info)
	}
	if l.BounceStatus != "" {
		fmt.Printf("Bounce:     %s\n", l.BounceStatus)
	}
	fmt.Printf("Created:    %s\n", l.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:    %s\n", l.UpdatedAt.Format(time.RFC3339))

	if l.Profile != "" {
		fmt.Printf("\nProfile:\n  %s\n", strings.ReplaceAll(l.Profile, "\n", "\n  "))
	}

	for i, slot := range l.Slots {
		if slot.Subject == "" && slot.Body == "" {
			continue
		}
		state := "pending"
		if slot.Sent {
			state = "sent"
			if slot.SentAt != nil {
				state = "sent " + slot.SentAt.Format(time.RFC3339)
			}
		}
		fmt.Printf("\nEmail %d (%s, due %s)\n", i+1, state, slot.DueAt.Format("01/02 15:04"))
		fmt.Printf("  Subject: %s\n", slot.Subject)
	}

	return nil
}

func runLeadsAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	l := &lead.Lead{
		Email:      leadAddEmail,
		FirstName:  leadAddName,
		Company:    leadAddCompany,
		Position:   leadAddPosition,
		Department: leadAddDept,
	}

	res := lead.Validate(l)
	if err := s.Create(l); err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	fmt.Printf("Created row %d\n", l.Row)
	if !res.Valid {
		fmt.Println("Warning: the row is incomplete and will be skipped by the sweep:")
		for _, msg := range res.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}

	return nil
}

func runLeadsStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	row, err := parseRow(args[0])
	if err != nil {
		return err
	}

	core, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.engine.HandleStatusEdit(row, args[1]); err != nil {
		return fmt.Errorf("failed to edit status: %w", err)
	}

	fmt.Printf("Row %d status set to %q\n", row, args[1])
	return nil
}
