package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/facturaIA/invoice-integrity-service/internal/ai"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/services"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <invoice.json>",
		Short: "Check the arithmetic of an invoice",
		Long: `Run every applicable arithmetic consistency test against an invoice.

Exits non-zero when any test fails.

Examples:
  invoicectl validate invoice.json
  invoicectl validate invoice.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInvoice(args[0])
			if err != nil {
				return err
			}
			validator, err := services.LoadValidator(opts.cfg.Validation.RulesFile, opts.cfg.Validation.Tolerance, opts.logger)
			if err != nil {
				return err
			}

			report := validator.Validate(inv)
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printValidation(out, report)
			}

			if report.TestsFailed > 0 {
				return errChecksFailed
			}
			return nil
		},
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var corpusPath string
	var failOnDuplicate bool

	cmd := &cobra.Command{
		Use:   "analyze <invoice.json>",
		Short: "Look for duplicates of an invoice in a corpus",
		Long: `Compare an invoice against a corpus of earlier invoices and report the
duplicate confidence and recommended action.

The corpus is a JSON file (one invoice or an array) or a directory of them.

Examples:
  invoicectl analyze new.json --corpus history/
  invoicectl analyze new.json --corpus history.json --fail-on-duplicate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInvoice(args[0])
			if err != nil {
				return err
			}
			corpus, err := loadCorpus(corpusPath)
			if err != nil {
				return err
			}

			result, err := analyzeAgainst(cmd, opts, inv, corpus)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				printAnalysis(out, result)
			}

			if failOnDuplicate && result.IsDuplicate {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusPath, "corpus", "", "invoice JSON file or directory to compare against")
	cmd.Flags().BoolVar(&failOnDuplicate, "fail-on-duplicate", false, "exit non-zero when a duplicate is found")
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var explain bool
	var corpusPath string

	cmd := &cobra.Command{
		Use:   "report <invoice.json>",
		Short: "Print the fixed-width validation report",
		Long: `Print the plain text validation report for an invoice.

With --explain a narrative summary is appended, written by the configured AI
provider or by the built-in fallback. Pass --corpus to include duplicate
findings in it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInvoice(args[0])
			if err != nil {
				return err
			}
			validator, err := services.LoadValidator(opts.cfg.Validation.RulesFile, opts.cfg.Validation.Tolerance, opts.logger)
			if err != nil {
				return err
			}

			report := validator.Validate(inv)
			out := cmd.OutOrStdout()
			if err := services.RenderTextReport(out, report); err != nil {
				return err
			}
			if !explain {
				return nil
			}

			var analysis *models.DuplicateAnalysisResult
			if corpusPath != "" {
				corpus, err := loadCorpus(corpusPath)
				if err != nil {
					return err
				}
				if analysis, err = analyzeAgainst(cmd, opts, inv, corpus); err != nil {
					return err
				}
			}

			provider, err := ai.NewProvider(opts.cfg.AI)
			if err != nil {
				return err
			}
			explanation := ai.NewExplainer(provider, opts.cfg.AI.Timeout, opts.logger).Explain(cmd.Context(), report, analysis)
			fmt.Fprintf(out, "\nSummary (%s):\n%s\n", explanation.Source, explanation.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "append a narrative summary")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus for the duplicate part of the summary")
	return cmd
}

func analyzeAgainst(cmd *cobra.Command, opts *rootOptions, inv *models.InvoiceRecord, corpus []models.InvoiceRecord) (*models.DuplicateAnalysisResult, error) {
	retriever := duplication.NewMemoryRetriever(corpus, opts.cfg.Duplication.Weights)
	detector, err := duplication.NewDetector(opts.cfg.Duplication, retriever, duplication.WithLogger(opts.logger))
	if err != nil {
		return nil, err
	}
	return detector.AnalyzeForDuplicates(cmd.Context(), inv)
}

func printValidation(w io.Writer, report *models.ValidationReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %s\n\n", bold("Invoice"), report.InvoiceNumber)
	for _, r := range report.Results {
		if r.Passed {
			fmt.Fprintf(w, "  %s %s\n", green("✓"), r.TestName)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", red("✗"), r.TestName)
		for _, msg := range strings.Split(r.Message, "; ") {
			fmt.Fprintf(w, "      %s\n", msg)
		}
	}
	for _, s := range report.NotApplicable {
		fmt.Fprintf(w, "  %s %s (missing %s)\n", yellow("-"), s.TestName, strings.Join(s.MissingFields, ", "))
	}

	fmt.Fprintln(w)
	switch {
	case report.TestsRun == 0:
		fmt.Fprintln(w, yellow("No applicable tests"))
	case report.OverallPassed:
		fmt.Fprintf(w, "%s %d/%d tests passed\n", green("PASSED"), report.TestsPassed, report.TestsRun)
	default:
		fmt.Fprintf(w, "%s %d/%d tests failed\n", red("FAILED"), report.TestsFailed, report.TestsRun)
	}
}

func printAnalysis(w io.Writer, result *models.DuplicateAnalysisResult) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	action := string(result.RecommendedAction)
	switch result.RecommendedAction {
	case models.ActionHighConfidenceDuplicate:
		action = red(action)
	case models.ActionLikelyDuplicate, models.ActionPossibleDuplicate, models.ActionIndeterminate:
		action = yellow(action)
	case models.ActionApproveAsUnique:
		action = green(action)
	}

	fmt.Fprintf(w, "%s %s\n", cyan("Invoice"), result.InvoiceNumber)
	fmt.Fprintf(w, "  Action:     %s\n", action)
	if conf, ok := result.ConfidenceScore(); ok {
		fmt.Fprintf(w, "  Confidence: %.2f\n", conf)
	} else {
		fmt.Fprintf(w, "  Status:     %s (%s)\n", result.Status, result.Error)
	}
	fmt.Fprintf(w, "  Compared:   %d candidates\n", result.CandidatesCompared)

	for _, m := range result.Matches {
		fmt.Fprintf(w, "\n  %s vs %s (%.2f)\n", m.MatchType, m.OriginalInvoiceNumber, m.Confidence)
		for _, e := range m.Evidence {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
	if result.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", result.Summary)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
