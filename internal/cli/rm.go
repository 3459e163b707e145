package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a record from both tiers",
		Long:  "Delete a record. Attempts both tiers; a missing id is a safe no-op.",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	deleted, err := eng.Delete(cmd.Context(), args[0])
	if err != nil {
		exitErr("rm", err)
	}

	b, _ := json.Marshal(map[string]interface{}{"id": args[0], "deleted": deleted})
	fmt.Println(string(b))
}
