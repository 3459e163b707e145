package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentops/memvault/internal/logging"
	"github.com/agentops/memvault/internal/redact"
)

func init() {
	cmd := &cobra.Command{
		Use:   "redact [content]",
		Short: "Redact content without storing it",
		Long:  "Run the redaction rules over content from an arg or stdin. With --summary, classify risk without modifying the text.",
		Run:   runRedact,
	}

	cmd.Flags().Bool("summary", false, "Non-destructive risk summary instead of redacted output")

	RootCmd.AddCommand(cmd)
}

func runRedact(cmd *cobra.Command, args []string) {
	summary, _ := cmd.Flags().GetBool("summary")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if content == "" {
		exitErr("redact", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	log, err := logging.New("warn")
	if err != nil {
		exitErr("logger", err)
	}
	eng := redact.NewEngine(log)

	var out interface{}
	if summary {
		out = eng.Summary(content)
	} else {
		out = eng.Redact(content)
	}

	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}
