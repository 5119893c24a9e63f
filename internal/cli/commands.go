package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/query"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/session"
)

func newQueryCommand(st *state) *cobra.Command {
	var (
		export  string
		asJSON  bool
		sqlOnly bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question with a generated SELECT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			question := joinArgs(args)
			if sqlOnly {
				result, err := backend.Translate(cmd.Context(), question)
				if err != nil {
					return err
				}
				st.printer.SQL(result.SQL)
				return nil
			}
			return st.runQuery(cmd.Context(), backend, question, export, asJSON)
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "also write the result set to this Parquet file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&sqlOnly, "sql-only", false, "print the generated SQL without running it")
	return cmd
}

func (s *state) runQuery(ctx context.Context, backend Backend, question, export string, asJSON bool) error {
	result, err := backend.Query(ctx, question)
	if err != nil {
		return err
	}
	if export != "" {
		if err := exportParquet(export, result.Rows); err != nil {
			return err
		}
	}
	if asJSON {
		return s.printer.JSON(result)
	}
	s.printer.SQL(result.SQL)
	s.printer.Rows(result.Rows)
	if export != "" {
		s.printer.Success("exported to %s", export)
	}
	s.printer.Warning(result.Warning)
	return nil
}

func exportParquet(path string, rows query.RowSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := query.WriteParquet(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write parquet export: %w", err)
	}
	return f.Close()
}

func newModifyCommand(st *state) *cobra.Command {
	var (
		table string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "modify <request>",
		Short: "Plan and apply a data or schema change",
		Long: `modify asks the model for the statement that carries out the request and
the statement that would undo it, shows both, and applies the change after
confirmation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			return st.runModify(cmd.Context(), backend, joinArgs(args), table, yes)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "table the request is about")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without asking for confirmation")
	return cmd
}

func (s *state) runModify(ctx context.Context, backend Backend, request, table string, yes bool) error {
	confirm := func(plan nl2sql.MutationDescriptor) bool {
		s.printer.Plan(plan)
		if yes {
			return true
		}
		return s.confirm("Apply this change? [y/N] ")
	}
	result, err := backend.Modify(ctx, request, table, confirm)
	if errors.Is(err, session.ErrCancelled) {
		_, _ = s.printer.warn.Fprintln(s.printer.out, "Cancelled; nothing was changed.")
		return nil
	}
	if err != nil {
		return err
	}
	s.printer.Affected(result.Plan.Kind, result.AffectedRows)
	if result.Preview != nil {
		s.printer.Rows(*result.Preview)
	}
	s.printer.Warning(result.Warning)
	return nil
}

// confirm reads a yes/no answer from stdin. Anything but y or yes declines.
func (s *state) confirm(prompt string) bool {
	if s.prompt != nil {
		return s.prompt(prompt)
	}
	s.printer.printf("%s", prompt)
	if s.stdin == nil {
		s.stdin = bufio.NewReader(s.opts.Stdin)
	}
	line, err := s.stdin.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return isYes(line)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func newBatchCommand(st *state) *cobra.Command {
	var (
		statements  []string
		description string
	)
	cmd := &cobra.Command{
		Use:   "batch -e <sql> [-e <sql>...]",
		Short: "Run several statements in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(statements) == 0 {
				return errors.New("at least one -e statement is required")
			}
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			result, err := backend.ExecuteBatch(cmd.Context(), description, statements)
			if err != nil {
				return err
			}
			for _, outcome := range result.Outcomes {
				st.printer.SQL(outcome.SQL)
				if outcome.Rows != nil {
					st.printer.Rows(*outcome.Rows)
					continue
				}
				st.printer.Affected(outcome.Kind, outcome.AffectedRows)
			}
			st.printer.Warning(result.Warning)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&statements, "execute", "e", nil, "statement to run; repeat for more")
	cmd.Flags().StringVar(&description, "description", "batch", "text recorded as the request in history")
	return cmd
}

func newHistoryCommand(st *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			view := backend.History()
			if asJSON {
				return st.printer.JSON(view)
			}
			st.printer.History(view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the history as JSON")
	return cmd
}

func newReplayCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <index>",
		Short: "Run a recorded statement again and record the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.runAtIndex(cmd.Context(), args[0], Backend.Replay)
		},
	}
}

func newRevertCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <index>",
		Short: "Run the rollback statement of a recorded change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.runAtIndex(cmd.Context(), args[0], Backend.Revert)
		},
	}
}

func (s *state) runAtIndex(ctx context.Context, raw string, run func(Backend, context.Context, int) (session.Execution, error)) error {
	index, err := parseIndex(raw)
	if err != nil {
		return err
	}
	backend, err := s.connect(ctx)
	if err != nil {
		return err
	}
	exec, err := run(backend, ctx, index)
	if err != nil {
		return err
	}
	s.printer.Execution(exec)
	return nil
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid history index %q", raw)
	}
	return index, nil
}

func newSchemaCommand(st *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the tables the model sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			return st.printSchema(cmd.Context(), backend, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema context sent to the model")
	return cmd
}

func (s *state) printSchema(ctx context.Context, backend Backend, asJSON bool) error {
	snapshot, err := backend.Schema(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		payload, err := snapshot.PromptContext()
		if err != nil {
			return err
		}
		s.printer.printf("%s\n", payload)
		return nil
	}
	s.printer.printf("%s", schema.Describe(snapshot))
	return nil
}

func newPingCommand(st *state) *cobra.Command {
	var skipModel bool
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database and model connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := backend.Ping(cmd.Context()); err != nil {
				return err
			}
			st.printer.Success("database ok")
			if skipModel {
				return nil
			}
			reply, err := backend.PingModel(cmd.Context())
			if err != nil {
				return err
			}
			st.printer.Success("model ok: %s", truncate(reply, maxCellWidth))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipModel, "skip-model", false, "only check the database")
	return cmd
}
