package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/swhefti/ai-news-intelligence-hub/internal/ai"
	"github.com/swhefti/ai-news-intelligence-hub/internal/briefing"
	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
	"github.com/swhefti/ai-news-intelligence-hub/internal/selection"
	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

const maxTitleRunes = 60

var (
	flagDays   int
	flagTopics []string
	flagMode   string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Show the chunks selected as context for a time window",
	Example: `  newshub select --days 7
  newshub select --days 3 --topic OpenAI --topic "AI Safety"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := requestFromFlags(cmd)

		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		res, err := selection.New(repo, selection.WithLogger(logger)).Select(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("selecting: %w", err)
		}
		renderSelection(cmd.OutOrStdout(), res, time.Now())
		return nil
	},
}

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Generate an AI briefing from the selected context",
	Example: `  newshub brief --days 7 --mode detailed
  newshub brief --days 1 --topic "AI Regulation"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := requestFromFlags(cmd)

		repo, err := openStore()
		if err != nil {
			return err
		}
		defer repo.Close()

		var model ai.Generator
		if cfg.AIEnabled() {
			model, err = ai.New(cfg.AI, cfg.AIKey())
			if err != nil {
				return err
			}
			if c, ok := model.(io.Closer); ok {
				defer c.Close()
			}
		}

		sel := selection.New(repo, selection.WithLogger(logger))
		b, err := briefing.New(sel, model, briefing.WithLogger(logger)).Brief(cmd.Context(), req)
		if errors.Is(err, ai.ErrNotConfigured) {
			return fmt.Errorf("%w: add an ai section to the config and set %s", err, config.EnvAIKey)
		}
		if err != nil {
			return err
		}
		renderBriefing(cmd.OutOrStdout(), b)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{selectCmd, briefCmd} {
		c.Flags().IntVar(&flagDays, "days", selection.DefaultWindowDays, "time window in days (1, 2, 3, 5, 7, 14 or 30)")
		c.Flags().StringArrayVar(&flagTopics, "topic", nil, "restrict to a taxonomy keyword (repeatable)")
		c.Flags().StringVar(&flagMode, "mode", string(selection.ModeConcise), "briefing length: concise or detailed")
	}
}

// requestFromFlags builds a request, taking window and mode from the config
// when the flags were not given.
func requestFromFlags(cmd *cobra.Command) selection.Request {
	days, mode := flagDays, flagMode
	if !cmd.Flags().Changed("days") && cfg.Selection.DefaultWindowDays > 0 {
		days = cfg.Selection.DefaultWindowDays
	}
	if !cmd.Flags().Changed("mode") && cfg.Selection.DefaultMode != "" {
		mode = cfg.Selection.DefaultMode
	}
	return selection.Request{
		WindowDays: days,
		Topics:     flagTopics,
		Mode:       selection.ParseMode(mode),
	}
}

func describeScope(days int, topics []string) string {
	scope := "all topics"
	if len(topics) > 0 {
		scope = strings.Join(topics, ", ")
	}
	return fmt.Sprintf("Last %d day(s), %s", days, scope)
}

func renderSelection(w io.Writer, res *selection.Result, now time.Time) {
	fmt.Fprintln(w, headerStyle.Render(describeScope(res.WindowDays, res.Topics)))
	if res.Empty() {
		fmt.Fprintln(w, dimStyle.Render(res.Placeholder))
		return
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d chunk(s) from %d matched article(s), budget %d",
		len(res.Chunks), res.MatchedArticles, res.Budget)))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("#", "SOURCE", "CATEGORY", "AGE", "TITLE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	for i, c := range res.Chunks {
		t.Row(
			strconv.Itoa(i+1),
			c.SourceName,
			string(taxonomy.CategoryOf(c.Keywords)),
			formatAge(now.Sub(c.PublishedAt)),
			truncate(c.ArticleTitle, maxTitleRunes),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func renderBriefing(w io.Writer, b *briefing.Briefing) {
	fmt.Fprintln(w, accentStyle.Render(b.Greeting))
	fmt.Fprintln(w, headerStyle.Render(describeScope(b.WindowDays, b.Topics)))
	if b.Empty {
		fmt.Fprintln(w, dimStyle.Render(b.Text))
		return
	}
	fmt.Fprintln(w, briefingStyle.Width(80).Render(b.Text))

	if len(b.TrendingKeywords) > 0 {
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Trending:"), strings.Join(b.TrendingKeywords, ", "))
	}
	if b.ActiveSources != "" {
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Most active:"), b.ActiveSources)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("Sources (%d of %d matched article(s)):", len(b.Sources), b.MatchedArticles)))
	for i, s := range b.Sources {
		fmt.Fprintf(w, "  [%d] %s %s\n      %s\n",
			i+1, s.Title, sourceStyle.Render("("+s.Name+")"), dimStyle.Render(s.URL))
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", max(0, int(d.Minutes())))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
