package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/solatis/schemamap/internal/core/db"
	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (expected table, json or yaml)", s)
	}
}

// PrintDocument writes a document. Tables are not meaningful for documents,
// so table format falls back to JSON.
func PrintDocument(w io.Writer, doc *document.Object, format OutputFormat) error {
	if format == FormatYAML {
		return printYAML(w, documentNode(doc))
	}
	data, err := document.Encode(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// PrintMappingSet writes a mapping set.
func PrintMappingSet(w io.Writer, set types.MappingSet, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, set)
	case FormatYAML:
		return printYAML(w, MappingFile{Rules: set})
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("ID", "Kind", "Source", "Target", "Conditions")
		for _, r := range set {
			table.Append(strconv.Itoa(r.ID), string(r.Kind), r.Source, r.Target, describeChain(r.Conditions))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintSkipped writes compile skips; nothing is written when there are none.
func PrintSkipped(w io.Writer, skipped []rules.CompileSkip, format OutputFormat) error {
	if len(skipped) == 0 {
		return nil
	}
	switch format {
	case FormatJSON, FormatYAML:
		rows := make([]map[string]any, len(skipped))
		for i, s := range skipped {
			rows[i] = map[string]any{"rule_id": s.RuleID, "reason": s.Reason, "error": errText(s.Err)}
		}
		if format == FormatJSON {
			return printJSON(w, map[string]any{"skipped": rows})
		}
		return printYAML(w, map[string]any{"skipped": rows})
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Rule", "Reason", "Error")
		for _, s := range skipped {
			table.Append(strconv.Itoa(s.RuleID), s.Reason, errText(s.Err))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintRemovals writes the removals of a render report.
func PrintRemovals(w io.Writer, report rules.RenderReport, format OutputFormat) error {
	if !report.Partial() {
		return nil
	}
	switch format {
	case FormatJSON, FormatYAML:
		rows := make([]map[string]any, len(report.Removed))
		for i, r := range report.Removed {
			rows[i] = map[string]any{"path": r.Path, "reason": r.Reason, "error": errText(r.Err)}
		}
		if format == FormatJSON {
			return printJSON(w, map[string]any{"removed": rows})
		}
		return printYAML(w, map[string]any{"removed": rows})
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Path", "Reason", "Error")
		for _, r := range report.Removed {
			table.Append(r.Path, r.Reason, errText(r.Err))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintMigrations writes migration status.
func PrintMigrations(w io.Writer, statuses []db.MigrationStatus, format OutputFormat) error {
	type row struct {
		ID          string `json:"id" yaml:"id"`
		Applied     bool   `json:"applied" yaml:"applied"`
		AppliedAt   string `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
		ExecutionMs int64  `json:"execution_ms" yaml:"execution_ms"`
	}
	rows := make([]row, len(statuses))
	for i, s := range statuses {
		rows[i] = row{ID: s.ID, Applied: s.Applied, ExecutionMs: s.ExecutionMs}
		if s.AppliedAt != nil {
			rows[i].AppliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
	}

	switch format {
	case FormatJSON:
		return printJSON(w, map[string]any{"migrations": rows})
	case FormatYAML:
		return printYAML(w, map[string]any{"migrations": rows})
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Migration", "Applied", "Applied At", "Duration")
		for _, r := range rows {
			table.Append(r.ID, strconv.FormatBool(r.Applied), r.AppliedAt, fmt.Sprintf("%dms", r.ExecutionMs))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// describeChain renders a chain as its expression text for table cells.
func describeChain(conds []types.Condition) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		s := c.Field + " " + string(c.Operator)
		if c.Operator != types.OpIsEmpty {
			s += " " + c.Value
		}
		if c.Join != types.JoinTerminal {
			s += " " + string(c.Join)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

// documentNode converts a document into a YAML node tree in property order.
func documentNode(v any) *yaml.Node {
	switch t := v.(type) {
	case *document.Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if t == nil {
			return n
		}
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, documentNode(child))
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, elem := range t {
			n.Content = append(n.Content, documentNode(elem))
		}
		return n
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}
	case json.Number:
		return numberNode(t.String())
	case float64:
		return numberNode(strconv.FormatFloat(t, 'f', -1, 64))
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}
	default:
		n := &yaml.Node{}
		if err := n.Encode(t); err != nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(t)}
		}
		return n
	}
}

func numberNode(s string) *yaml.Node {
	tag := "!!float"
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		tag = "!!int"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: s}
}
