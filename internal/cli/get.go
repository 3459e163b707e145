package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a record by id",
		Long:  "Retrieve a record. Reads the hot tier first; a cold hit is promoted into hot.",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	entry, err := eng.Retrieve(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if entry == nil {
		exitErr("get", fmt.Errorf("not found: %s", args[0]))
	}

	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}
