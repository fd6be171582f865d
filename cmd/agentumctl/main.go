// Package main is agentumctl, a CLI driver that exercises the runner
// facade directly without going through the HTTP surface: useful for
// local debugging and scripted runs against the same SQLite store and
// session filesystem the server uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/common/stringutil"
	"github.com/extractumio/agentum/internal/hub"
	"github.com/extractumio/agentum/internal/lifecycle"
	"github.com/extractumio/agentum/internal/runner"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	facade, err := runner.NewFacade(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize runner facade: %v\n", err)
		os.Exit(1)
	}
	defer facade.Close()

	ctx := context.Background()
	if err := facade.Startup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "startup reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd(ctx, facade, os.Args[2:])
	case "resume":
		resumeCmd(ctx, facade, os.Args[2:])
	case "cancel":
		cancelCmd(ctx, facade, os.Args[2:])
	case "status":
		statusCmd(ctx, facade, os.Args[2:])
	case "list":
		listCmd(ctx, facade, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `agentumctl - drive the agentum session runner directly

Usage:
  agentumctl run -user <id> -task <text> [-model <name>]
  agentumctl resume -user <id> -session <id> -task <text>
  agentumctl cancel -user <id> -session <id>
  agentumctl status -user <id> -session <id>
  agentumctl list -user <id>`)
}

func runCmd(ctx context.Context, f *runner.Facade, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	task := fs.String("task", "", "task text")
	model := fs.String("model", "", "model override")
	_ = fs.Parse(args)

	if *task == "" {
		fmt.Fprintln(os.Stderr, "-task is required")
		os.Exit(1)
	}

	row, h, err := f.Run(ctx, lifecycle.RunParams{UserID: *user, Task: *task, Model: *model})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session %s started (user %s)\n", row.ID, row.UserID)
	streamToStdout(h)
}

func resumeCmd(ctx context.Context, f *runner.Facade, args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	session := fs.String("session", "", "session id")
	task := fs.String("task", "", "new task text")
	_ = fs.Parse(args)

	if *session == "" || *task == "" {
		fmt.Fprintln(os.Stderr, "-session and -task are required")
		os.Exit(1)
	}

	row, h, err := f.Resume(ctx, *session, *user, *task)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resume failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session %s resumed\n", row.ID)
	streamToStdout(h)
}

func cancelCmd(ctx context.Context, f *runner.Facade, args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	session := fs.String("session", "", "session id")
	_ = fs.Parse(args)

	if err := f.Cancel(ctx, *session, *user); err != nil {
		fmt.Fprintf(os.Stderr, "cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("cancel requested")
}

func statusCmd(ctx context.Context, f *runner.Facade, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	session := fs.String("session", "", "session id")
	_ = fs.Parse(args)

	row, err := f.Store.GetSession(ctx, *session, *user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
		os.Exit(1)
	}
	enc, _ := json.MarshalIndent(row, "", "  ")
	fmt.Println(string(enc))
}

func listCmd(ctx context.Context, f *runner.Facade, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	_ = fs.Parse(args)

	sessions, total, err := f.Store.ListSessions(ctx, *user, 50, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d session(s):\n", total)
	for _, s := range sessions {
		fmt.Printf("  %s  %-10s  %s\n", s.ID, s.Status, stringutil.TruncateStringWithEllipsis(s.Task, 60))
	}
}

// streamToStdout prints every event on h until a terminal one arrives, so
// a foreground run/resume invocation behaves like a blocking call and the
// operator sees progress as it happens rather than just the final result.
func streamToStdout(h *hub.Hub) {
	sub := h.Subscribe(0)
	defer sub.Close()

	for ev := range sub.Events {
		enc, _ := json.Marshal(ev.Payload)
		fmt.Printf("[%s] %s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Kind, enc)
		if ev.Terminal() {
			return
		}
	}
}
