package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rag-query-rewriter/internal/adapters/worker"
	"github.com/kirillkom/rag-query-rewriter/internal/bootstrap"
	"github.com/kirillkom/rag-query-rewriter/internal/config"
	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/core/rewrite"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/textnorm"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rewrite",
		Short:         "Query rewriting, fan-out retrieval and fusion from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newQueryCmd(), newPlanCmd())
	return root
}

type queryFlags struct {
	context    string
	remote     bool
	jsonOutput bool
	maxQueries int
	mmrTopK    int
	mmrLambda  float64
}

func newQueryCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run the full pipeline for one query and print the selected documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "cli", cfg.LogLevel)

			var rewriter ports.QueryRewriter
			if flags.remote {
				broker, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Logger: logger})
				if err != nil {
					return err
				}
				defer broker.Close()
				rewriter = worker.NewClient(broker)
			} else {
				app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "cli", Logger: logger})
				if err != nil {
					return err
				}
				defer app.Close()
				rewriter = app.Rewriter
			}

			req := domain.RewriteRequest{Query: strings.Join(args, " "), Context: flags.context}
			override := flags.override(cmd)
			var (
				result *domain.RewriteResult
				err    error
			)
			if override != nil {
				result, err = rewriter.RewriteWithOptions(cmd.Context(), req, *override)
			} else {
				result, err = rewriter.Rewrite(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.context, "context", "", "conversation brief, e.g. entity=gpt-5")
	cmd.Flags().BoolVar(&flags.remote, "remote", false, "send the request to a worker over NATS")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the full result as JSON")
	cmd.Flags().IntVar(&flags.maxQueries, "max-queries", 0, "override max_queries")
	cmd.Flags().IntVar(&flags.mmrTopK, "mmr-topk", 0, "override mmr_topk")
	cmd.Flags().Float64Var(&flags.mmrLambda, "mmr-lambda", 0, "override mmr_lambda")
	return cmd
}

// override returns nil unless an option flag was set explicitly.
func (f queryFlags) override(cmd *cobra.Command) *domain.OptionsOverride {
	var ov domain.OptionsOverride
	changed := false
	if cmd.Flags().Changed("max-queries") {
		ov.MaxQueries = &f.maxQueries
		changed = true
	}
	if cmd.Flags().Changed("mmr-topk") {
		ov.MMRTopK = &f.mmrTopK
		changed = true
	}
	if cmd.Flags().Changed("mmr-lambda") {
		ov.MMRLambda = &f.mmrLambda
		changed = true
	}
	if !changed {
		return nil
	}
	return &ov
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <text>",
		Short: "Show the normalized query and the strategies the router would enable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			opts, err := cfg.PipelineOptions()
			if err != nil {
				return err
			}
			normalizer := textnorm.New(textnorm.Options{
				CaseFold:      cfg.NormalizerCaseFold,
				PunctTrim:     cfg.NormalizerPunctTrim,
				DateNormalize: cfg.NormalizerDateNormalize,
			}, time.Now)
			normalized := normalizer.Normalize(strings.Join(args, " "))
			plan := rewrite.NewRouter(opts.Router).Decide(normalized, opts.Enable)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "normalized: %s\n", normalized)
			enabled := make([]string, 0, 5)
			for _, s := range plan.Enabled() {
				enabled = append(enabled, string(s))
			}
			if len(enabled) == 0 {
				enabled = append(enabled, "none")
			}
			fmt.Fprintf(out, "strategies: %s\n", strings.Join(enabled, ", "))
			return nil
		},
	}
}

func printResult(w io.Writer, result *domain.RewriteResult) {
	fmt.Fprintf(w, "normalized: %s\n", result.Normalized)
	if result.Resolved != result.Normalized {
		fmt.Fprintf(w, "resolved:   %s\n", result.Resolved)
	}
	fmt.Fprintln(w, "candidates:")
	for _, c := range result.Candidates {
		fmt.Fprintf(w, "  [%s] %s\n", c.Source, c.Text)
	}
	fmt.Fprintln(w, "results:")
	for i, doc := range result.Final {
		fmt.Fprintf(w, "  %d. %s (%.4f) %s\n", i+1, doc.ID, doc.FusedScore, doc.Text)
	}
	if len(result.Metrics.Fallbacks) > 0 {
		fmt.Fprintf(w, "fallbacks: %s\n", strings.Join(result.Metrics.Fallbacks, ", "))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
