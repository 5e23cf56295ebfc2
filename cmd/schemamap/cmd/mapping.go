package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/schemamap/internal/cli"
	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a mapping set into a template document",
	Args:  cobra.NoArgs,
	RunE:  runCompile,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template document against a data record",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Recover the mapping set from a template document",
	Args:  cobra.NoArgs,
	RunE:  runParse,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <expression>",
	Short: "Evaluate a condition chain against a data record",
	Long: `Evaluate a condition chain against a data record and print true or false.

The expression is either a full rule (IF (...) THEN [...] ELSE [NULL]) or just
its condition chain, for example: 'review_count > 5 AND brand contains Acme'.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(compileCmd, renderCmd, parseCmd, evaluateCmd)

	compileCmd.Flags().StringP("mapping", "m", "", "mapping file, YAML or JSON (- for stdin)")
	compileCmd.Flags().StringP("skeleton", "s", "", "template skeleton JSON file")
	compileCmd.Flags().String("out", "", "write the document to this file instead of stdout")
	compileCmd.Flags().Bool("strict", false, "fail when any rule is skipped")
	_ = compileCmd.MarkFlagRequired("mapping")

	renderCmd.Flags().StringP("document", "d", "", "template document (- for stdin)")
	renderCmd.Flags().StringP("record", "r", "", "data record JSON file")
	renderCmd.Flags().String("out", "", "write the document to this file instead of stdout")
	renderCmd.Flags().Bool("report", false, "print removed subtrees to stderr")
	_ = renderCmd.MarkFlagRequired("document")

	parseCmd.Flags().StringP("document", "d", "", "template document (- for stdin)")
	_ = parseCmd.MarkFlagRequired("document")

	evaluateCmd.Flags().StringP("record", "r", "", "data record JSON file")
}

// localEngine loads configuration for the offline commands.
func localEngine(cmd *cobra.Command) (*rules.Engine, cli.OutputFormat, error) {
	format, err := output()
	if err != nil {
		return nil, "", err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if _, err := newLogger(cfg); err != nil {
		return nil, "", err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, "", err
	}
	return engine, format, nil
}

func writeDocument(cmd *cobra.Command, doc *document.Object, format cli.OutputFormat) error {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		return cli.PrintDocument(cmd.OutOrStdout(), doc, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := cli.PrintDocument(f, doc, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runCompile(cmd *cobra.Command, args []string) error {
	engine, format, err := localEngine(cmd)
	if err != nil {
		return err
	}
	mappingPath, _ := cmd.Flags().GetString("mapping")
	skeletonPath, _ := cmd.Flags().GetString("skeleton")
	strict, _ := cmd.Flags().GetBool("strict")

	mf, err := cli.LoadMappingSet(mappingPath)
	if err != nil {
		return err
	}
	var skeleton *document.Object
	if skeletonPath != "" {
		if skeleton, err = cli.LoadDocument(skeletonPath); err != nil {
			return err
		}
	}

	compiled, err := engine.Compile(mf.Rules, skeleton)
	if err != nil {
		return err
	}
	if len(compiled.Skipped) > 0 {
		if err := cli.PrintSkipped(cmd.ErrOrStderr(), compiled.Skipped, cli.FormatTable); err != nil {
			return err
		}
		if strict {
			return fmt.Errorf("%d of %d rules skipped", len(compiled.Skipped), len(mf.Rules))
		}
	}
	return writeDocument(cmd, compiled.Document, format)
}

func runRender(cmd *cobra.Command, args []string) error {
	engine, format, err := localEngine(cmd)
	if err != nil {
		return err
	}
	docPath, _ := cmd.Flags().GetString("document")
	recordPath, _ := cmd.Flags().GetString("record")
	showReport, _ := cmd.Flags().GetBool("report")

	doc, err := cli.LoadDocument(docPath)
	if err != nil {
		return err
	}
	record, err := cli.LoadRecord(recordPath)
	if err != nil {
		return err
	}

	out, report := engine.Render(doc, record)
	if showReport && report.Partial() {
		if err := cli.PrintRemovals(cmd.ErrOrStderr(), report, cli.FormatTable); err != nil {
			return err
		}
	}
	return writeDocument(cmd, out, format)
}

func runParse(cmd *cobra.Command, args []string) error {
	engine, format, err := localEngine(cmd)
	if err != nil {
		return err
	}
	docPath, _ := cmd.Flags().GetString("document")

	doc, err := cli.LoadDocument(docPath)
	if err != nil {
		return err
	}
	set, report, err := engine.ParseDetailed(doc)
	if err != nil {
		return err
	}
	for _, m := range report.Malformed {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped malformed rule at %s: %v\n", m.Path, m.Err)
	}
	return cli.PrintMappingSet(cmd.OutOrStdout(), set, format)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := output()
	if err != nil {
		return err
	}
	recordPath, _ := cmd.Flags().GetString("record")

	conds, err := parseChain(args[0])
	if err != nil {
		return err
	}
	record, err := cli.LoadRecord(recordPath)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), rules.EvaluateChain(conds, record), format)
}

// parseChain accepts a full rule expression or a bare condition chain.
func parseChain(s string) ([]types.Condition, error) {
	s = strings.TrimSpace(s)
	isRule := len(s) > 2 && strings.EqualFold(s[:2], "IF") && strings.HasPrefix(strings.TrimLeft(s[2:], " \t"), "(")
	if !isRule {
		s = "IF (" + s + ") THEN [result] ELSE [NULL]"
	}
	expr, err := rules.ParseExpression(s)
	if err != nil {
		return nil, err
	}
	return expr.Conditions, nil
}

func printResult(w io.Writer, result bool, format cli.OutputFormat) error {
	switch format {
	case cli.FormatJSON:
		_, err := fmt.Fprintf(w, "{\"result\": %t}\n", result)
		return err
	case cli.FormatYAML:
		_, err := fmt.Fprintf(w, "result: %t\n", result)
		return err
	default:
		_, err := fmt.Fprintln(w, strconv.FormatBool(result))
		return err
	}
}
