package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentops/memvault/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a record",
		Long:  "Store a record. Content can be a positional arg or piped via stdin. Sensitive substrings are redacted before storage.",
		Run:   runPut,
	}

	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("meta", "", "JSON metadata")
	cmd.Flags().String("tier", "", "Storage tier override: hot or cold")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	tagsStr, _ := cmd.Flags().GetString("tags")
	metaStr, _ := cmd.Flags().GetString("meta")
	tier, _ := cmd.Flags().GetString("tier")

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
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	meta := map[string]interface{}{}
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("parse meta", err)
		}
	}
	if tier != "" {
		meta["storage_tier"] = tier
	}

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	eng, _, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	entry, err := eng.Store(cmd.Context(), engine.StoreParams{
		Content:  strings.TrimSpace(content),
		Metadata: meta,
		Tags:     tags,
	})
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}
