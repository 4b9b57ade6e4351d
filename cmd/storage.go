package cmd

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
)

var flagPruneOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old articles from the store",
	Long: `Delete stored articles and their chunks older than the retention period.

Uses the retention value from config (default: 90d) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		retention := cfg.RetentionDuration()
		if flagPruneOlderThan != "" {
			d, err := config.ParseDuration(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			retention = d
		}

		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		deleted, err := repo.Prune(cmd.Context(), retention)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		out := cmd.OutOrStdout()
		if deleted == 0 {
			fmt.Fprintln(out, "Nothing to prune.")
		} else {
			fmt.Fprintf(out, "Pruned %d article(s) older than %s.\n", deleted, formatDuration(retention))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		st, err := repo.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Store: %s (%s)\n", cfg.Database.Driver, redactDSN(cfg.DatabaseDSN()))
		fmt.Fprintf(out, "Articles: %d\n", st.Articles)
		fmt.Fprintf(out, "Chunks: %d\n", st.Chunks)

		names := make([]string, 0, len(st.Sources))
		for name := range st.Sources {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			a, b := st.Sources[names[i]], st.Sources[names[j]]
			if a != b {
				return a > b
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(out, "  %-28s %d\n", name, st.Sources[name])
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
