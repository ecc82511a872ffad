package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragreader/internal/cache"
	"ragreader/internal/tui"
)

func newRootCmd() *cobra.Command {
	var flags appFlags
	root := &cobra.Command{
		Use:   "rag",
		Short: "Ask questions about a PDF or text document",
		Long: `rag splits a document into paragraphs, embeds them once through an
OpenAI-compatible server (a local Ollama by default) and answers questions
from the most similar passages.

Embeddings are cached under <cache_root>/embeddings, so later runs on the
same file make no embedding calls for its passages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/rag/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newIndexCmd(&flags),
		newSearchCmd(&flags),
		newAskCmd(&flags),
		newTUICmd(&flags),
	)
	return root
}

func newIndexCmd(flags *appFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Embed a document and store its embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := a.load(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			record := cache.NewFileStore(a.cfg.CacheRoot).Path(doc.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d passages (%s)\n", doc.ID, len(doc.Passages), record)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard any cached embeddings and embed again")
	return cmd
}

func newSearchCmd(flags *appFlags) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <file> <query...>",
		Short: "Print the passages most similar to a query",
		Example: `  rag search book.pdf "what is a closure"
  rag search --top-k 10 notes.txt error handling`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateTopK(topK); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), *flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := a.load(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			results, err := a.svc.AnswerContext(cmd.Context(), doc.ID, strings.Join(args[1:], " "), topK)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No passages found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\t#\tPASSAGE")
			for _, r := range results {
				fmt.Fprintf(w, "%.4f\t%d\t%s\n", r.Score, r.Index, truncate(r.Text, 120))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of passages to return (default from config)")
	return cmd
}

func newAskCmd(flags *appFlags) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask <file> <question...>",
		Short: "Answer a question from the document's most relevant passages",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateTopK(topK); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), *flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := a.load(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			ans, err := a.svc.Answer(cmd.Context(), doc.ID, strings.Join(args[1:], " "), topK)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Answer:\n%s\n\nSources:\n", ans.Text)
			for _, p := range ans.Passages {
				fmt.Fprintf(out, "  [%d] (%.3f) %s\n", p.Index, p.Score, truncate(p.Text, 100))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of passages given to the model (default from config)")
	return cmd
}

func newTUICmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui <file>",
		Short: "Interactive reading assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := a.load(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			summary, err := a.svc.Summary(doc.ID)
			if err != nil {
				return err
			}
			m := tui.New(a.svc, tui.Options{
				DocID:   doc.ID,
				Title:   "Reading Assistant: " + doc.ID,
				Summary: summary,
				TopK:    a.cfg.TopK,
				Chat:    a.cfg.Chat.Enabled,
			})
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

func validateTopK(k int) error {
	if k < 0 {
		return fmt.Errorf("--top-k must not be negative, got %d", k)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
