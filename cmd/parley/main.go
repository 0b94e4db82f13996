package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"parley/internal/app"
	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/gateway"
	"parley/internal/logging"
	"parley/internal/store"
)

const usageText = `parley is a terminal chat client for a parley gateway.

Usage:
  parley <command> [flags]

Commands:
  ui        run the terminal UI
  sessions  list sessions
  history   dump a session's parsed transcript as JSON
  send      send a message to a session
  help      show help

Flags:
  -h, --help   show help

Examples:
  parley ui
  parley sessions
  parley history main --limit 50
  parley send main "hello there"
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	case "ui":
		exitOnErr("ui", runUI(args[1:]))
	case "sessions":
		exitOnErr("sessions", runSessions(args[1:]))
	case "history":
		exitOnErr("history", runHistory(args[1:]))
	case "send":
		exitOnErr("send", runSend(args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func newClient() (*gateway.Client, config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, config.Settings{}, err
	}
	client, err := gateway.New(settings.GatewayBaseURL())
	if err != nil {
		return nil, config.Settings{}, err
	}
	return client, settings, nil
}

func runUI(args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, settings, err := newClient()
	if err != nil {
		return err
	}

	log := logging.New(os.Stderr, logging.ParseLevel(settings.LogLevel()))
	storePath, err := config.LocalStorePath()
	if err != nil {
		return err
	}
	repo, err := store.Open(storePath)
	if err != nil {
		// The UI still works without local recents/drafts.
		log.Warn("local store unavailable", logging.F("err", err))
		repo = nil
	}
	return app.Run(client, repo, settings, log)
}

func runSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sessions, err := chat.ListSessions(ctx, client)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "KEY\tTITLE\tUPDATED")
	for _, session := range sessions {
		updated := "-"
		if !session.UpdatedAt.IsZero() {
			updated = session.UpdatedAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", session.Key, session.Title, updated)
	}
	return writer.Flush()
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 0, "number of messages to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("history requires a session key")
	}
	sessionKey := fs.Arg(0)

	client, settings, err := newClient()
	if err != nil {
		return err
	}
	if *limit <= 0 {
		*limit = settings.HistoryLimit()
	}

	engine := chat.NewStore()
	guard := chat.NewSessionGuard(engine)
	guard.Activate(sessionKey)
	reconciler := chat.NewReconciler(engine, client, *limit, logging.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := reconciler.LoadHistory(ctx, sessionKey); err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(engine.Messages())
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("send requires a session key and a message")
	}
	sessionKey := fs.Arg(0)
	text := strings.Join(fs.Args()[1:], " ")

	client, _, err := newClient()
	if err != nil {
		return err
	}

	engine := chat.NewStore()
	guard := chat.NewSessionGuard(engine)
	guard.Activate(sessionKey)
	sender := chat.NewSender(engine, client, chat.DefaultAttachmentLimits(), logging.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runID, err := sender.Send(ctx, sessionKey, text, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, runID)
	return nil
}

func exitOnErr(label string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}
