// Package shell implements the interactive debug shell: a thin REPL over
// the queue store for developers to inspect program state at runtime
// (spec §1, "a thin interactive debug shell").
package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	prompt "github.com/joeycumines/go-prompt"
	istrings "github.com/joeycumines/go-prompt/strings"

	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/queue"
)

// Shell is a small command dispatcher over a queue.Store, intended for
// developer debugging rather than end-user operation.
type Shell struct {
	store queue.Store
	log   logging.Logger
}

// New builds a Shell over store.
func New(store queue.Store, log logging.Logger) *Shell {
	if log == nil {
		log = logging.Discard()
	}
	return &Shell{store: store, log: log}
}

var helpText = strings.TrimSpace(`
Available commands:
  status                    show pending/in-progress counts and pending ratio
  get <id>                  show a job row by id
  jobs <name> <state> [n]   list up to n job ids for name/state (default 10)
  purge                     remove all COMPLETED rows
  help                      show this text
  exit                      leave the shell
`)

func commands() []prompt.Suggest {
	return []prompt.Suggest{
		{Text: "status", Description: "queue status"},
		{Text: "get", Description: "get a job row by id"},
		{Text: "jobs", Description: "list job ids by name/state"},
		{Text: "purge", Description: "purge completed rows"},
		{Text: "help", Description: "show help"},
		{Text: "exit", Description: "leave the shell"},
	}
}

// Run starts the REPL on the current terminal, blocking until the user
// types "exit" or sends an interrupt.
func (s *Shell) Run(ctx context.Context) {
	fmt.Println("gemforge debug shell — type `help` for commands")

	completer := func(d prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
		word := d.GetWordBeforeCursor()
		endChar := d.CurrentRuneIndex()
		startChar := endChar - istrings.RuneCountInString(word)
		return prompt.FilterHasPrefix(commands(), word, true), startChar, endChar
	}

	p := prompt.New(
		func(line string) { s.dispatch(ctx, line) },
		prompt.WithPrefix("gemforge> "),
		prompt.WithCompleter(completer),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && strings.TrimSpace(in) == "exit"
		}),
	)
	p.Run()
}

func (s *Shell) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "help":
		fmt.Println(helpText)
	case "status":
		s.cmdStatus(ctx)
	case "get":
		s.cmdGet(ctx, fields[1:])
	case "jobs":
		s.cmdJobs(ctx, fields[1:])
	case "purge":
		s.cmdPurge(ctx)
	case "exit":
	default:
		fmt.Printf("unknown command %q; type `help`\n", fields[0])
	}
}

func (s *Shell) cmdStatus(ctx context.Context) {
	status, err := s.store.Status(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("pending=%d in_progress=%d pending_ratio=%.3f\n", status.Pending, status.InProgress, status.PendingRatio)
}

func (s *Shell) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <id>")
		return
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Println("invalid id:", err)
		return
	}
	row, err := s.store.Get(ctx, id)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%+v\n", *row)
}

func (s *Shell) cmdJobs(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: jobs <name> <state> [limit]")
		return
	}
	name := args[0]
	state, ok := parseState(args[1])
	if !ok {
		fmt.Println("state must be one of pending|in_progress|completed|failed")
		return
	}
	limit := 10
	if len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			limit = n
		}
	}
	ids, err := s.store.JobsByNameAndState(ctx, name, state, limit)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func (s *Shell) cmdPurge(ctx context.Context) {
	if err := s.store.PurgeCompleted(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("purged completed rows")
}

func parseState(s string) (queue.State, bool) {
	switch s {
	case "pending":
		return queue.Pending, true
	case "in_progress":
		return queue.InProgress, true
	case "completed":
		return queue.Completed, true
	case "failed":
		return queue.Failed, true
	default:
		return 0, false
	}
}
