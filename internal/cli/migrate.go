package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate <id>",
		Short: "Move a record from the hot tier to cold storage",
		Args:  cobra.ExactArgs(1),
		Run:   runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	if err := eng.MigrateToCold(cmd.Context(), args[0]); err != nil {
		exitErr("migrate", err)
	}

	b, _ := json.Marshal(map[string]interface{}{"id": args[0], "migrated": true})
	fmt.Println(string(b))
}
