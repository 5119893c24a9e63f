// Package cli implements the speak2sql command line: one-shot commands for
// questions, modifications and history, plus an interactive shell.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Misty-Star/Speak2SQL/internal/app"
	"github.com/Misty-Star/Speak2SQL/internal/config"
	"github.com/Misty-Star/Speak2SQL/internal/nl2sql"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
	"github.com/Misty-Star/Speak2SQL/internal/schema"
	"github.com/Misty-Star/Speak2SQL/internal/session"
)

// Backend is everything the commands need from a connected session.
type Backend interface {
	Schema(ctx context.Context) (schema.Snapshot, error)
	RefreshSchema(ctx context.Context) (schema.Snapshot, error)
	Translate(ctx context.Context, natural string) (nl2sql.Result, error)
	Query(ctx context.Context, natural string) (session.QueryResult, error)
	Modify(ctx context.Context, natural, currentTable string, confirm func(nl2sql.MutationDescriptor) bool) (session.ModifyResult, error)
	ExecuteBatch(ctx context.Context, natural string, statements []string) (session.BatchResult, error)
	History() session.HistoryView
	Undo() (session.Undone, error)
	Redo(ctx context.Context) (session.Execution, error)
	Replay(ctx context.Context, index int) (session.Execution, error)
	Revert(ctx context.Context, index int) (session.Execution, error)
	Ping(ctx context.Context) error
	PingModel(ctx context.Context) (string, error)
	Close() error
}

type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, error)

type Options struct {
	Lookup       config.LookupFunc
	Open         Opener
	ReadPassword func(prompt string) (string, error)
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

func (o Options) withDefaults() Options {
	if o.Lookup == nil {
		o.Lookup = os.LookupEnv
	}
	if o.Open == nil {
		o.Open = func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, error) {
			return app.Open(ctx, cfg, logger)
		}
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
	if o.ReadPassword == nil {
		o.ReadPassword = terminalPassword(o.Stderr)
	}
	return o
}

func terminalPassword(w io.Writer) func(prompt string) (string, error) {
	return func(prompt string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("password prompt requires a terminal")
		}
		_, _ = fmt.Fprint(w, prompt)
		raw, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// Run executes one command line and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	opts = opts.withDefaults()
	root, st := newRootCommand(opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := st.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(opts.Stderr, "error: %v\n", err)
		if category := session.Classify(err); category != session.StageInternal {
			_, _ = fmt.Fprintf(opts.Stderr, "  (%s error)\n", category)
		}
		return 1
	}
	return 0
}

type globalFlags struct {
	configFile     string
	driver         string
	dsn            string
	host           string
	port           int
	user           string
	database       string
	passwordPrompt bool
	provider       string
	model          string
	historyFile    string
	noColor        bool
	verbose        bool
}

// state is shared by every subcommand of one invocation.
type state struct {
	opts    Options
	flags   globalFlags
	root    *cobra.Command
	backend Backend
	printer *printer
	stdin   *bufio.Reader
	prompt  func(string) bool
}

func newRootCommand(opts Options) (*cobra.Command, *state) {
	st := &state{opts: opts, printer: newPrinter(opts.Stdout)}

	root := &cobra.Command{
		Use:   "speak2sql",
		Short: "Query and modify SQL databases in natural language",
		Long: `speak2sql translates natural-language requests into SQL with a language
model, runs them against MySQL, PostgreSQL, SQLite or DuckDB, and keeps an
undoable history of every operation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if st.flags.noColor {
				color.NoColor = true
			}
		},
	}
	st.root = root

	pf := root.PersistentFlags()
	pf.StringVar(&st.flags.configFile, "config", "", "TOML or YAML config file")
	pf.StringVar(&st.flags.driver, "driver", "", "database driver: mysql, postgres, sqlite or duckdb")
	pf.StringVar(&st.flags.dsn, "dsn", "", "full database DSN, overrides the discrete connection flags")
	pf.StringVar(&st.flags.host, "host", "", "database host")
	pf.IntVar(&st.flags.port, "port", 0, "database port")
	pf.StringVarP(&st.flags.user, "user", "u", "", "database user")
	pf.StringVarP(&st.flags.database, "database", "d", "", "database name or file")
	pf.BoolVarP(&st.flags.passwordPrompt, "password-prompt", "p", false, "prompt for the database password")
	pf.StringVar(&st.flags.provider, "provider", "", "model provider: openai, anthropic or ollama")
	pf.StringVar(&st.flags.model, "model", "", "model name")
	pf.StringVar(&st.flags.historyFile, "history-file", "", "operation history file")
	pf.BoolVar(&st.flags.noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&st.flags.verbose, "verbose", "v", false, "log pipeline details to stderr")

	root.AddCommand(
		newQueryCommand(st),
		newModifyCommand(st),
		newBatchCommand(st),
		newHistoryCommand(st),
		newReplayCommand(st),
		newRevertCommand(st),
		newSchemaCommand(st),
		newPingCommand(st),
		newShellCommand(st),
	)
	return root, st
}

// lookup layers explicitly set flags over the environment.
func (s *state) lookup() (config.LookupFunc, error) {
	overrides := map[string]string{}
	set := func(flag, key, value string) {
		if s.root.PersistentFlags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("config", "SPEAK2SQL_CONFIG_FILE", s.flags.configFile)
	set("driver", "SPEAK2SQL_DB_DRIVER", s.flags.driver)
	set("dsn", "SPEAK2SQL_DB_DSN", s.flags.dsn)
	set("host", "SPEAK2SQL_DB_HOST", s.flags.host)
	set("port", "SPEAK2SQL_DB_PORT", strconv.Itoa(s.flags.port))
	set("user", "SPEAK2SQL_DB_USER", s.flags.user)
	set("database", "SPEAK2SQL_DB_NAME", s.flags.database)
	set("provider", "SPEAK2SQL_AI_PROVIDER", s.flags.provider)
	set("model", "SPEAK2SQL_AI_MODEL", s.flags.model)
	set("history-file", "SPEAK2SQL_HISTORY_PATH", s.flags.historyFile)
	if s.flags.verbose {
		overrides["SPEAK2SQL_LOG_LEVEL"] = "debug"
	}
	if s.flags.passwordPrompt {
		password, err := s.opts.ReadPassword("Database password: ")
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		overrides["SPEAK2SQL_DB_PASSWORD"] = password
	}

	base := s.opts.Lookup
	return func(key string) (string, bool) {
		if value, ok := overrides[key]; ok {
			return value, true
		}
		return base(key)
	}, nil
}

// connect opens the backend on first use.
func (s *state) connect(ctx context.Context) (Backend, error) {
	if s.backend != nil {
		return s.backend, nil
	}
	lookup, err := s.lookup()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load("speak2sql", lookup)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var logger *slog.Logger
	if s.flags.verbose {
		logger = observability.NewLogger(cfg, s.opts.Stderr)
	}
	backend, err := s.opts.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.backend = backend
	return backend, nil
}

func (s *state) close() error {
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
