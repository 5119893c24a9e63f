package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
)

const shellPrompt = "speak2sql> "

func newShellCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Long: `shell keeps one session open. Plain lines are answered as questions;
lines starting with ':' are commands. Type :help for the list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := st.connect(cmd.Context())
			if err != nil {
				return err
			}
			rl, err := readline.NewFromConfig(&readline.Config{
				Prompt:          shellPrompt,
				HistoryFile:     shellHistoryFile(),
				AutoComplete:    shellCompleter(),
				InterruptPrompt: "^C",
				EOFPrompt:       ":quit",
			})
			if err != nil {
				return fmt.Errorf("start line editor: %w", err)
			}
			defer func() { _ = rl.Close() }()

			st.prompt = func(prompt string) bool {
				rl.SetPrompt(prompt)
				defer rl.SetPrompt(shellPrompt)
				line, err := rl.Readline()
				return err == nil && isYes(line)
			}
			sh := &shell{state: st, backend: backend}
			return sh.loop(cmd.Context(), rl.Readline)
		},
	}
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".speak2sql_history")
}

func shellCompleter() readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, c := range shellCommands {
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}

var shellCommands = []struct {
	name string
	help string
}{
	{":modify", ":modify <request>    plan a change and apply it after confirmation"},
	{":table", ":table [name]        set or clear the table requests refer to"},
	{":undo", ":undo                move the history cursor back one entry"},
	{":redo", ":redo                move forward and run the entry again"},
	{":history", ":history             list recorded operations"},
	{":replay", ":replay <index>      run a recorded statement again"},
	{":revert", ":revert <index>      run the rollback of a recorded change"},
	{":schema", ":schema              describe the database"},
	{":refresh", ":refresh             read the schema again"},
	{":help", ":help                show this list"},
	{":quit", ":quit                leave the shell"},
}

type shell struct {
	state   *state
	backend Backend
	table   string
}

var errQuit = errors.New("quit")

// loop reads lines until EOF or :quit. Command errors are printed and the
// session continues.
func (sh *shell) loop(ctx context.Context, readLine func() (string, error)) error {
	p := sh.state.printer
	p.printf("Connected. Ask a question, or type :help.\n")
	for {
		line, err := readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sh.execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			_, _ = p.warn.Fprintf(p.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (sh *shell) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	st, p := sh.state, sh.state.printer
	if !strings.HasPrefix(line, ":") {
		return st.runQuery(ctx, sh.backend, line, "", false)
	}

	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch strings.ToLower(name) {
	case ":quit", ":exit", ":q":
		return errQuit
	case ":help":
		for _, c := range shellCommands {
			p.printf("  %s\n", c.help)
		}
		return nil
	case ":modify":
		if args == "" {
			return errors.New("usage: :modify <request>")
		}
		return st.runModify(ctx, sh.backend, args, sh.table, false)
	case ":table":
		sh.table = args
		if args == "" {
			p.printf("current table cleared\n")
		} else {
			p.printf("current table: %s\n", args)
		}
		return nil
	case ":undo":
		op, err := sh.backend.Undo()
		if err != nil {
			return err
		}
		p.printf("cursor moved back past: %s\n", op.SQL)
		if op.Kind.IsMutation() {
			p.Warning("the database is unchanged; use :revert to roll the change back")
		}
		return nil
	case ":redo":
		exec, err := sh.backend.Redo(ctx)
		if err != nil {
			return err
		}
		p.Execution(exec)
		return nil
	case ":history":
		p.History(sh.backend.History())
		return nil
	case ":replay":
		return st.runAtIndex(ctx, args, Backend.Replay)
	case ":revert":
		return st.runAtIndex(ctx, args, Backend.Revert)
	case ":schema":
		return st.printSchema(ctx, sh.backend, false)
	case ":refresh":
		snapshot, err := sh.backend.RefreshSchema(ctx)
		if err != nil {
			return err
		}
		p.Success("schema refreshed, %d tables", snapshot.TableCount())
		return nil
	default:
		return fmt.Errorf("unknown command %s (type :help)", name)
	}
}
