package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	gdprCmd := &cobra.Command{
		Use:   "gdpr",
		Short: "Manage data-subject requests",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a data-subject request",
		Run:   runGDPRCreate,
	}
	createCmd.Flags().StringP("subject", "s", "", "Data subject id (required)")
	createCmd.Flags().StringP("type", "t", "", "Request type: access, erasure, portability, rectification (required)")
	createCmd.MarkFlagRequired("subject")
	createCmd.MarkFlagRequired("type")

	processCmd := &cobra.Command{
		Use:   "process <request-id>",
		Short: "Process a pending request to a terminal state",
		Args:  cobra.ExactArgs(1),
		Run:   runGDPRProcess,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked requests",
		Run:   runGDPRList,
	}

	gdprCmd.AddCommand(createCmd, processCmd, listCmd)
	RootCmd.AddCommand(gdprCmd)
}

func runGDPRCreate(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetString("subject")
	reqType, _ := cmd.Flags().GetString("type")

	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	req, err := eng.CreateGDPRRequest(subject, reqType)
	if err != nil {
		exitErr("gdpr create", err)
	}

	b, _ := json.Marshal(req)
	fmt.Println(string(b))
}

func runGDPRProcess(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	req, err := eng.ProcessGDPRRequest(cmd.Context(), args[0])
	if err != nil {
		exitErr("gdpr process", err)
	}

	b, _ := json.Marshal(req)
	fmt.Println(string(b))
}

func runGDPRList(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	b, _ := json.Marshal(eng.GDPRRequests())
	fmt.Println(string(b))
}
