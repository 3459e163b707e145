package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentops/memvault/internal/audit"
)

func init() {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tamper-evident audit log",
	}

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read verified audit entries across active and rotated files",
		Run:   runAuditRead,
	}
	readCmd.Flags().String("action", "", "Filter by exact action")
	readCmd.Flags().String("user", "", "Filter by exact user id")
	readCmd.Flags().String("resource", "", "Filter by resource substring")
	readCmd.Flags().String("since", "", "Only entries at or after this RFC3339 time")
	readCmd.Flags().String("until", "", "Only entries at or before this RFC3339 time")

	auditCmd.AddCommand(readCmd)
	RootCmd.AddCommand(auditCmd)
}

func runAuditRead(cmd *cobra.Command, args []string) {
	action, _ := cmd.Flags().GetString("action")
	user, _ := cmd.Flags().GetString("user")
	resource, _ := cmd.Flags().GetString("resource")
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")

	filter := audit.Filter{Action: action, UserID: user, Resource: resource}
	if sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			exitErr("parse since", err)
		}
		filter.Since = t
	}
	if untilStr != "" {
		t, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			exitErr("parse until", err)
		}
		filter.Until = t
	}

	_, auditor, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	entries, report, err := auditor.ReadEntries(filter)
	if err != nil {
		exitErr("audit read", err)
	}

	b, _ := json.Marshal(map[string]interface{}{
		"entries": entries,
		"report":  report,
	})
	fmt.Println(string(b))
}
