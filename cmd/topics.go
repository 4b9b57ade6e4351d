package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topic keywords accepted by --topic",
	// The taxonomy is compiled in; no config or store is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		renderTopics(cmd.OutOrStdout())
	},
}

func renderTopics(w io.Writer) {
	for _, cat := range taxonomy.Categories() {
		fmt.Fprintln(w, headerStyle.Render(string(cat)))
		fmt.Fprintf(w, "  %s\n", strings.Join(taxonomy.KeywordsIn(cat), ", "))
	}
}
