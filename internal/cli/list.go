package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records across both tiers",
		Run:   runList,
	}

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	entries, err := eng.ListEntries(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	b, _ := json.Marshal(entries)
	fmt.Println(string(b))
}
