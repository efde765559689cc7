package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/tabloop/internal/cli"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about a CSV table",
	Long: `Loads a CSV table and runs one loop over it.

Use "-" as the CSV path to read the table from standard input.`,
	Example: `  tabloop ask --csv sales.csv "Which region sold the most?"
  cat sales.csv | tabloop ask --csv - --trace "Total sales?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		csvPath, _ := cmd.Flags().GetString("csv")
		catalogPath, _ := cmd.Flags().GetString("catalog")
		steps, _ := cmd.Flags().GetStringSlice("steps")
		columns, _ := cmd.Flags().GetStringSlice("columns")
		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		showTrace, _ := cmd.Flags().GetBool("trace")
		jsonOut, _ := cmd.Flags().GetBool("json")

		t, err := readTable(cmd.InOrStdin(), csvPath)
		if err != nil {
			return err
		}
		catalog, err := readCatalog(catalogPath)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		rt, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.Engine.Ask(ctx, domain.Request{
			Question:       args[0],
			Table:          t,
			ReferenceSteps: steps,
			Catalog:        catalog,
			Schema:         domain.SchemaHint{SelectedColumns: columns},
			MaxIterations:  maxIter,
		})
		if err != nil {
			return err
		}
		if ctx.Signal() != nil {
			logger.Warn("Interrupted", "signal", ctx.Signal())
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		r, err := cli.NewRenderer(out, isTerminal(out))
		if err != nil {
			return err
		}
		if showTrace {
			r.Trace(res)
		}
		return r.Result(res)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("csv", "", "Path to the CSV table, or - for stdin")
	askCmd.Flags().String("catalog", "", "YAML file describing reference operators")
	askCmd.Flags().StringSlice("steps", nil, "Reference operator names, in order")
	askCmd.Flags().StringSlice("columns", nil, "Columns relevant to the question")
	askCmd.Flags().Int("max-iterations", 0, "Round budget (0 uses the configured default)")
	askCmd.Flags().Bool("trace", false, "Print one line per round before the answer")
	askCmd.Flags().Bool("json", false, "Print the full result as JSON")
	_ = askCmd.MarkFlagRequired("csv")
}

func readTable(stdin io.Reader, path string) (*table.Table, error) {
	if path == "-" {
		return table.FromCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()
	return table.FromCSV(f)
}

func readCatalog(path string) (domain.Catalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return domain.DecodeCatalog(raw)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
