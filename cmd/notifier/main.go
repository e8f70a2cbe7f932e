package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhle/review-notifier/internal/config"
)

const usage = `review-notifier forwards GitLab review comments and pipeline
results to Telegram or Feishu.

Usage:
  notifier [-config path] [-env path] <command> [flags]

Commands:
  run           poll on a schedule and serve the ops API
  check         run a single cycle and exit
  status        show connection, last check and unread count
  reset-unread  zero the unread counter
  test-sink     verify sink credentials and send a test message
  set-secret    store a secret in the system keyring
  discover      list member projects related to the identity
`

type command func(ctx context.Context, globals globalFlags, args []string) error

var commands = map[string]command{
	"run":          runCmd,
	"check":        checkCmd,
	"status":       statusCmd,
	"reset-unread": resetUnreadCmd,
	"test-sink":    testSinkCmd,
	"set-secret":   setSecretCmd,
	"discover":     discoverCmd,
}

type globalFlags struct {
	configPath string
	envPath    string
}

func main() {
	var g globalFlags
	flag.StringVar(&g.configPath, "config", "", "Path to configuration file (default ~/.config/review-notifier/config.yaml)")
	flag.StringVar(&g.envPath, "env", ".env", "Path to an optional .env file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if g.configPath == "" {
		g.configPath = config.DefaultConfigPath()
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, g, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
