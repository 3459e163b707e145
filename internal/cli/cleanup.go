package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Resync the hot cache and expire terminal GDPR requests",
		Run:   runCleanup,
	}

	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	if err := eng.Cleanup(cmd.Context()); err != nil {
		exitErr("cleanup", err)
	}
	fmt.Println(`{"cleanup":"ok"}`)
}
