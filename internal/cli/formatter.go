// =============================================================================
// CLI OUTPUT FORMATTER - TABLE, JSON, YAML OUTPUT SUPPORT
// =============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat parses an output format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return OutputTable, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", s)
	}
}

// Formatter handles output formatting for CLI commands.
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a new formatter with the specified format.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format, writer: os.Stdout}
}

func (f *Formatter) formatJSON(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) formatYAML(data any) error {
	encoder := yaml.NewEncoder(f.writer)
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

// Table creates a new table writer.
func (f *Formatter) Table() *TableWriter {
	return &TableWriter{tw: tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)}
}

// TableWriter wraps tabwriter for convenient table output.
type TableWriter struct {
	tw      *tabwriter.Writer
	headers []string
}

func (t *TableWriter) SetHeaders(headers ...string) { t.headers = headers }

func (t *TableWriter) WriteHeaders() {
	if len(t.headers) == 0 {
		return
	}
	upper := make([]string, len(t.headers))
	for i, h := range t.headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(t.tw, strings.Join(upper, "\t"))
}

func (t *TableWriter) WriteRow(values ...any) {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(t.tw, strings.Join(strs, "\t"))
}

func (t *TableWriter) Flush() error { return t.tw.Flush() }

// FormatTopics outputs a list of topics.
func (f *Formatter) FormatTopics(topics []string) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(topics)
	case OutputYAML:
		return f.formatYAML(topics)
	}
	table := f.Table()
	table.SetHeaders("NAME")
	table.WriteHeaders()
	for _, topic := range topics {
		table.WriteRow(topic)
	}
	return table.Flush()
}

// FormatTransactions outputs the list-transactions admin view.
func (f *Formatter) FormatTransactions(entries []TransactionEntry) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(entries)
	case OutputYAML:
		return f.formatYAML(entries)
	}
	table := f.Table()
	table.SetHeaders("TRANSACTIONAL ID", "STATE")
	table.WriteHeaders()
	for _, e := range entries {
		table.WriteRow(e.TransactionalID, e.State)
	}
	return table.Flush()
}

// FormatTransactionDetail outputs a single transaction's full metadata.
func (f *Formatter) FormatTransactionDetail(txn *TransactionDetail) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(txn)
	case OutputYAML:
		return f.formatYAML(txn)
	}
	fmt.Fprintf(f.writer, "Transactional ID: %s\n", txn.TransactionalID)
	fmt.Fprintf(f.writer, "Transaction ID:   %s\n", txn.TransactionID)
	fmt.Fprintf(f.writer, "Producer ID:      %d\n", txn.ProducerID)
	fmt.Fprintf(f.writer, "Epoch:            %d\n", txn.Epoch)
	fmt.Fprintf(f.writer, "State:            %s\n", txn.State)
	fmt.Fprintf(f.writer, "Started:          %s\n", txn.StartTime.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintln(f.writer)
	fmt.Fprintln(f.writer, "PARTICIPANT PARTITIONS:")
	table := f.Table()
	table.SetHeaders("TOPIC", "PARTITIONS")
	table.WriteHeaders()
	for topic, partitions := range txn.Partitions {
		strs := make([]string, len(partitions))
		for i, p := range partitions {
			strs[i] = fmt.Sprint(p)
		}
		table.WriteRow(topic, strings.Join(strs, ","))
	}
	return table.Flush()
}

// FormatHealth outputs health status.
func (f *Formatter) FormatHealth(health *HealthResponse) error {
	switch f.format {
	case OutputJSON:
		return f.formatJSON(health)
	case OutputYAML:
		return f.formatYAML(health)
	}
	fmt.Fprintf(f.writer, "Status: %s\n", health.Status)
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}
