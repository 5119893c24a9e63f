package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/session"
	"github.com/Misty-Star/Speak2SQL/internal/sqltext"
)

const maxCellWidth = 60

type printer struct {
	out     io.Writer
	sql     *color.Color
	ok      *color.Color
	warn    *color.Color
	heading *color.Color
	dim     *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:     out,
		sql:     color.New(color.FgCyan),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		heading: color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *printer) SQL(stmt string) {
	_, _ = p.sql.Fprintln(p.out, stmt)
}

func (p *printer) Success(format string, args ...any) {
	_, _ = p.ok.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) Affected(kind sqltext.Kind, n int64) {
	p.Success("%s ok, %s %s affected", kind, humanize.Comma(n), plural(int(n), "row", "rows"))
}

func (p *printer) Warning(message string) {
	if message == "" {
		return
	}
	_, _ = p.warn.Fprintf(p.out, "warning: %s\n", message)
}

func (p *printer) JSON(payload any) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// Rows renders a result set as an aligned text table followed by a row count.
func (p *printer) Rows(rs query.RowSet) {
	if len(rs.Columns) == 0 {
		p.printf("(no columns)\n")
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = cellString(value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	_, _ = p.dim.Fprintf(p.out, "(%s %s)\n", humanize.Comma(int64(rs.Len())), plural(rs.Len(), "row", "rows"))
}

func (p *printer) Plan(plan nl2sql.MutationDescriptor) {
	p.printf("%s %s\n", p.heading.Sprint("Operation:"), plan.Kind)
	if plan.AffectedTable != "" {
		p.printf("%s %s\n", p.heading.Sprint("Table:"), plan.AffectedTable)
	}
	if plan.Description != "" {
		p.printf("%s %s\n", p.heading.Sprint("Description:"), plan.Description)
	}
	p.printf("%s\n", p.heading.Sprint("SQL:"))
	p.SQL("  " + plan.SQL)
	if plan.RollbackSQL != "" {
		p.printf("%s\n", p.heading.Sprint("Rollback:"))
		p.SQL("  " + plan.RollbackSQL)
	} else {
		_, _ = p.warn.Fprintln(p.out, "No rollback statement; this change cannot be reverted.")
	}
}

func (p *printer) Execution(exec session.Execution) {
	p.SQL(exec.SQL)
	if exec.Rows != nil {
		p.Rows(*exec.Rows)
	} else {
		p.Affected(exec.Kind, exec.AffectedRows)
	}
	p.Warning(exec.Warning)
}

func (p *printer) History(view session.HistoryView) {
	if len(view.Operations) == 0 {
		p.printf("No operations recorded yet\n")
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, " \t#\tWHEN\tTYPE\tROWS\tREQUEST")
	for i, op := range view.Operations {
		marker := " "
		if i == view.Cursor {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			marker,
			i,
			humanize.Time(op.Timestamp),
			op.Kind,
			humanize.Comma(op.AffectedRows),
			truncate(op.NaturalQuery, maxCellWidth),
		)
	}
	_ = tw.Flush()
	_, _ = p.dim.Fprintf(p.out, "cursor %d, undo %s, redo %s\n", view.Cursor, yesNo(view.CanUndo), yesNo(view.CanRedo))
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return truncate(string(v), maxCellWidth)
	default:
		return truncate(strings.ReplaceAll(fmt.Sprint(v), "\n", " "), maxCellWidth)
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
