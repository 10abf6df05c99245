package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-import/internal/cli"
	"github.com/insightdelivered/statement-import/internal/importer"
	"github.com/insightdelivered/statement-import/internal/reconcile"
	"github.com/insightdelivered/statement-import/internal/writer"
)

type importOptions struct {
	account    string
	newAccount string
	commit     bool
	output     string
	bank       string
	categories []string
	findAI     bool
	header     bool
}

func newImportCommand(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import one or more bank statements",
		Long: `Parse bank statements and report what would be imported.

Examples:
  # Preview a new account from a Bancolombia export
  statement-import import extracto_enero.csv

  # Append to an existing account, skipping transactions already stored
  statement-import import --account ahorros-bancolombia --commit febrero.csv

  # Start a new account and ask the model to explain a balance gap
  statement-import import --new-account nequi --commit --find-missing nequi.pdf

  # Write the normalized transactions to CSV
  statement-import import --output enero_normalizado.csv enero.xlsx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.commit && opts.account == "" && opts.newAccount == "" {
				return fmt.Errorf("--commit needs --account or --new-account")
			}
			if opts.account != "" && opts.newAccount != "" {
				return fmt.Errorf("--account and --new-account are mutually exclusive")
			}
			if opts.output != "" && len(args) > 1 {
				return fmt.Errorf("--output works with a single input file")
			}
			return runImport(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.account, "account", "", "existing account ID to append to (enables duplicate detection)")
	f.StringVar(&opts.newAccount, "new-account", "", "ID for a new account created from this statement")
	f.BoolVar(&opts.commit, "commit", false, "store the imported transactions")
	f.StringVarP(&opts.output, "output", "o", "", "write normalized transactions to this CSV file")
	f.StringVar(&opts.bank, "bank", "", "force a parser: bancolombia, davivienda, bbva, bogota, nequi, debitcredit, ofx, generic")
	f.StringSliceVar(&opts.categories, "categories", nil, "categories for AI categorization, comma separated")
	f.BoolVar(&opts.findAI, "find-missing", false, "ask the model for transactions that explain a balance gap")
	f.BoolVar(&opts.header, "header", true, "include account metadata rows in the CSV output")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, opts importOptions, files []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	bar := cli.NewProgress(cmd.ErrOrStderr(), len(files), "Importing statements")

	var failed int
	for _, path := range files {
		if err := importFile(cmd, p, opts, path); err != nil {
			failed++
			fmt.Fprintln(out, cli.Error(fmt.Sprintf("%s: %v", filepath.Base(path), err)))
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
	}
	return nil
}

func importFile(cmd *cobra.Command, p *pipeline, opts importOptions, path string) error {
	ctx := cmd.Context()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	res, err := p.orchestrator.Import(ctx, importer.Upload{
		Filename:        path,
		Data:            data,
		TargetAccountID: opts.account,
		Categories:      opts.categories,
		Bank:            opts.bank,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, path, res)

	if s := res.Reconciliation; s != nil && s.State() == reconcile.StateAwaitingMethod {
		if err := reconcileSession(cmd, p, opts, s); err != nil {
			return err
		}
	}

	if opts.output != "" {
		w := &writer.CSVWriter{IncludeHeader: opts.header}
		if len(res.Categorizations) > 0 {
			w.Categories = make([]string, len(res.Categorizations))
			for i, c := range res.Categorizations {
				w.Categories[i] = c.Category
			}
		}
		if err := w.WriteToFile(opts.output, res.Account, res.Transactions); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
		fmt.Fprintln(out, cli.Field("Output", opts.output))
	}

	if opts.commit {
		accountID := opts.account
		if accountID == "" {
			accountID = opts.newAccount
		}
		if err := p.store.AppendTransactions(ctx, accountID, res.Transactions); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.Success(fmt.Sprintf("stored %d transaction(s) in %s", len(res.Transactions), accountID)))
	}
	return nil
}

func printSummary(out io.Writer, path string, res *importer.Result) {
	fmt.Fprintln(out, cli.TitleStyle.Render(filepath.Base(path)))
	fmt.Fprintln(out, cli.Field("Bank", res.Account.BankName))
	fmt.Fprintln(out, cli.Field("Account", res.Account.SuggestedName))
	fmt.Fprintln(out, cli.Field("Source", res.Source))
	fmt.Fprintln(out, cli.Field("Confidence", fmt.Sprintf("%.0f%%", res.Confidence*100)))
	fmt.Fprintln(out, cli.Field("Transactions", fmt.Sprintf("%d", len(res.Transactions))))
	if res.SkippedRows > 0 {
		fmt.Fprintln(out, cli.Warning(fmt.Sprintf("%d row(s) could not be read", res.SkippedRows)))
	}
	if len(res.Duplicates) > 0 {
		fmt.Fprintln(out, cli.Field("Duplicates skipped",
			fmt.Sprintf("%d (%.0f%%)", len(res.Duplicates), res.DuplicatePercentage)))
	}
	if res.Account.ReportedBalance != nil {
		fmt.Fprintln(out, cli.Field("Reported balance", res.Account.ReportedBalance.StringFixed(2)))
	}
	if res.Calculated != "" {
		fmt.Fprintln(out, cli.Field("Calculated balance", res.Calculated))
	}
	for _, s := range res.Suggestions {
		fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("  suggestion: %s account (%.0f%%): %s", s.Type, s.Confidence*100, s.Reason)))
	}
	if len(res.Duplicates) > 0 && len(res.Transactions) == 0 {
		fmt.Fprintln(out, cli.Warning("every transaction is already on the account; this statement looks imported"))
	}
}

// reconcileSession handles a balance gap without prompting. The model's
// suggestions are listed for review, never committed; otherwise the gap is
// accepted as is.
func reconcileSession(cmd *cobra.Command, p *pipeline, opts importOptions, s *reconcile.Session) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.Warning(fmt.Sprintf("balance differs from the bank by %s", s.Difference.StringFixed(2))))

	if !opts.findAI || !p.aiEnabled {
		return s.Override()
	}
	suggestions, err := s.FindWithAI(cmd.Context())
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Fprintln(out, cli.SubtleStyle.Render("  the model found no likely missing transactions"))
		return nil
	}

	var b strings.Builder
	for i, sg := range suggestions {
		fmt.Fprintf(&b, "%d. %s  %-30s %14s  (%.0f%%) %s\n",
			i+1, sg.Date.Format("2006-01-02"), sg.Description, sg.Amount.StringFixed(2), sg.Confidence*100, sg.Reasoning)
	}
	fmt.Fprintln(out, cli.BoxStyle.Render(strings.TrimRight(b.String(), "\n")))

	v := reconcile.ValidateSuggestions(suggestions, s.Difference, p.engine.Config().ValidityTolerance)
	fmt.Fprintln(out, cli.Field("If all are added", fmt.Sprintf("%.1f%% of the gap explained, %s remaining", v.Accuracy, v.Remaining.StringFixed(2))))
	return nil
}
