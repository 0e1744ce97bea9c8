package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/Strob0t/AgentForge/internal/adapter/postgres"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
)

// runAdmin dispatches admin subcommands (migrate, validate-team, events, snapshot).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "validate-team":
		return runAdminValidateTeam(args[1:])
	case "events":
		return runAdminEvents(args[1:])
	case "snapshot":
		return runAdminSnapshot(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentforge admin <command> [options]

Commands:
  migrate          Apply pending database migrations and print the schema version
  validate-team    Parse and validate a team file
  events           Print the audit log of a task
  snapshot         Print the final state of a finished task
  help             Show this help message

events and snapshot print tables on a terminal and JSON when piped.

Examples:
  agentforge admin migrate
  agentforge admin validate-team --file team.yaml
  agentforge admin events --task 6f1c... --type tool_result --type handoff
  agentforge admin snapshot --task 6f1c...
`)
}

func loadAdminPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("DATABASE_URL is not set")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema at version %d\n", version)
	return nil
}

func runAdminValidateTeam(args []string) error {
	fs := flag.NewFlagSet("validate-team", flag.ContinueOnError)
	file := fs.String("file", "", "team YAML file (defaults to the configured team.file)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *file
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Team.File
	}
	if path == "" {
		return errors.New("--file is required")
	}

	tm, err := team.LoadFromFile(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TEAM\t%s\n", tm.Name)
	_, _ = fmt.Fprintf(w, "INITIAL\t%s\n", tm.Initial())
	_, _ = fmt.Fprintf(w, "AFTER_WORK\t%s\n", tm.Behavior())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "FROM\tTO\tPRIORITY\tCONDITION")
	for _, name := range tm.AgentNames() {
		for _, r := range tm.RulesFrom(name) {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.FromAgent, r.ToAgent, r.EffectivePriority(), r.Condition)
		}
	}
	return w.Flush()
}

type typeList []event.Type

func (l *typeList) String() string { return fmt.Sprint(*l) }

func (l *typeList) Set(v string) error {
	t := event.Type(v)
	if !t.IsValid() {
		return fmt.Errorf("unknown event type %q", v)
	}
	*l = append(*l, t)
	return nil
}

func runAdminEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	taskID := fs.String("task", "", "task ID (required)")
	after := fs.Uint64("after", 0, "only events with a higher sequence number")
	limit := fs.Int("limit", 0, "maximum number of events")
	var types typeList
	fs.Var(&types, "type", "event type filter (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return errors.New("--task is required")
	}

	ctx := context.Background()
	pool, err := loadAdminPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	events, err := postgres.NewEventStore(pool).LoadByTask(ctx, *taskID, eventstore.Filter{
		Types:    types,
		AfterSeq: *after,
		Limit:    *limit,
	})
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if !stdoutIsTerminal() {
		return writeNDJSON(events)
	}
	if len(events) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tROUND\tTYPE\tAGENT\tAT\tPAYLOAD")
	for i := range events {
		ev := &events[i]
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			ev.Seq, ev.Round, ev.Type, ev.AgentName, ev.CreatedAt.Format("15:04:05.000"), ev.Payload)
	}
	return w.Flush()
}

func runAdminSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	taskID := fs.String("task", "", "task ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return errors.New("--task is required")
	}

	ctx := context.Background()
	pool, err := loadAdminPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := postgres.NewWorkspace(pool).LoadSnapshot(ctx, *taskID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !stdoutIsTerminal() {
		return json.NewEncoder(os.Stdout).Encode(st)
	}

	fmt.Printf("Task %s: %s after %d rounds (active agent %s)\n", st.TaskID, st.Status, st.RoundCount, st.ActiveAgent)
	if st.Reason != "" {
		fmt.Printf("Reason: %s\n", st.Reason)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nSTEP\tAGENT\tCALLS\tRESULTS\tTEXT")
	for i := range st.History {
		s := &st.History[i]
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
			i, s.AgentName, len(s.ToolCalls()), len(s.ToolResults()), truncate(s.Text(), 80))
	}
	for _, t := range st.Plan {
		_, _ = fmt.Fprintf(w, "plan %s\t%s\t\t\t%s\n", t.ID, t.Status, t.Description)
	}
	return w.Flush()
}

// stdoutIsTerminal selects tables for people and JSON for pipes.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // G115: file descriptors fit in int
}

func writeNDJSON[T any](items []T) error {
	enc := json.NewEncoder(os.Stdout)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
