package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/config"
	"github.com/nhle/review-notifier/internal/credential"
	"github.com/nhle/review-notifier/internal/discover"
	"github.com/nhle/review-notifier/internal/server"
	"github.com/nhle/review-notifier/internal/status"
	nsync "github.com/nhle/review-notifier/internal/sync"
	"github.com/nhle/review-notifier/internal/theme"
)

func (a *app) newPoller() (*nsync.Poller, error) {
	s, err := newSink(a.settings)
	if err != nil {
		return nil, err
	}
	return nsync.New(nsync.Deps{
		Settings: a.settings,
		Store:    a.store,
		Platform: a.platform,
		Sink:     s,
		Logger:   a.logger,
	}), nil
}

func runCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	if ok, reason := a.settings.Ready(); !ok {
		a.logger.Warn("Configuration incomplete, cycles will be skipped", zap.String("reason", reason))
	}

	poller, err := a.newPoller()
	if err != nil {
		return err
	}

	a.logger.Info("Starting review notifier",
		zap.String("gitlab", a.platform.BaseURL()),
		zap.String("sink", a.settings.Sink.Kind),
		zap.Strings("projects", a.settings.MonitoredProjects),
	)

	poller.Start(ctx)
	defer poller.Stop()

	if !a.settings.Server.Enabled {
		<-ctx.Done()
		a.logger.Info("Shutdown signal received")
		return nil
	}

	srv := server.New(a.settings, poller, a.store, a.logger.Named("http"))
	httpServer := server.NewHTTPServer(a.settings.Server, srv.Router())
	return server.ServeAndWait(ctx, a.logger, httpServer, a.settings.Server.ShutdownTimeout)
}

func checkCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	poller, err := a.newPoller()
	if err != nil {
		return err
	}

	res, err := poller.RunCycle(ctx)
	if errors.Is(err, nsync.ErrCycleInProgress) {
		return fmt.Errorf("%w: the daemon or another check is polling, try again shortly", err)
	}
	switch {
	case res.Skipped:
		fmt.Printf("Skipped: %s\n", res.Reason)
	case !res.Available:
		fmt.Printf("GitLab unavailable: %s\n", res.Reason)
	default:
		if res.Seeded {
			fmt.Println("First run: watermarks set to now, older activity is not replayed")
		}
		if r := res.Comments; r != nil {
			fmt.Printf("Comments:  %d relevant MRs, %d new, %d sent, %d failed\n",
				r.Relevant, r.Candidates, r.Notified, r.Failed)
		}
		if r := res.Pipelines; r != nil {
			fmt.Printf("Pipelines: %d relevant, %d changed, %d sent, %d failed\n",
				r.Relevant, r.Candidates, r.Notified, r.Failed)
		}
	}
	return err
}

func statusCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	keepUnread := fs.Bool("keep-unread", false, "Do not reset the unread counter")
	checkConn := fs.Bool("check", false, "Verify the GitLab token")
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := status.Collect(ctx, a.settings, a.store, status.DefaultRecentLimit)
	if err != nil {
		return err
	}
	fmt.Println(status.Render(snap, time.Now()))

	if *checkConn {
		user, err := a.platform.CurrentUser(ctx)
		if err != nil {
			fmt.Println(theme.StateStyle(false).Render("GitLab connection failed: " + err.Error()))
		} else {
			fmt.Println(theme.StateStyle(true).Render(fmt.Sprintf("GitLab connected as %s (@%s)", user.DisplayName(), user.Username)))
		}
	}

	if !*keepUnread && snap.Unread > 0 {
		if err := a.store.ResetUnread(ctx); err != nil {
			return fmt.Errorf("reset unread counter: %w", err)
		}
	}
	return nil
}

func resetUnreadCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("reset-unread", flag.ExitOnError)
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ResetUnread(ctx); err != nil {
		return fmt.Errorf("reset unread counter: %w", err)
	}
	fmt.Println("Unread counter reset")
	return nil
}

func testSinkCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("test-sink", flag.ExitOnError)
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newSink(a.settings)
	if err != nil {
		return err
	}
	if err := s.Test(ctx); err != nil {
		return fmt.Errorf("%s test failed: %w", s.Name(), err)
	}
	fmt.Printf("%s: test message sent\n", s.Name())
	return nil
}

func setSecretCmd(_ context.Context, _ globalFlags, args []string) error {
	fs := flag.NewFlagSet("set-secret", flag.ExitOnError)
	value := fs.String("value", "", "Secret value (read from stdin when empty)")
	del := fs.Bool("delete", false, "Remove the secret instead")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: notifier set-secret [flags] <%s>\n", strings.Join(credential.Keys, "|"))
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() != 1 || !credential.IsKnownKey(fs.Arg(0)) {
		fs.Usage()
		return errors.New("a known secret key is required")
	}
	key := fs.Arg(0)

	if *del {
		if err := credential.Delete(key); err != nil {
			return err
		}
		fmt.Printf("Removed %s from the keyring\n", key)
		return nil
	}

	secret := *value
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Enter %s: ", key)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		return errors.New("empty secret")
	}

	if err := credential.Set(key, secret); err != nil {
		return err
	}
	fmt.Printf("Stored %s in the keyring\n", key)
	return nil
}

func discoverCmd(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	write := fs.Bool("write", false, "Save related projects to monitored_projects")
	_ = fs.Parse(args)

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	d := discover.New(a.platform, a.settings.Identity, a.settings.BatchSize, a.logger.Named("discover"))
	cands, err := d.Discover(ctx, a.settings.MonitoredProjects)
	if err != nil {
		return err
	}

	for _, c := range cands {
		mark := " "
		switch {
		case c.Monitored:
			mark = "*"
		case c.Related:
			mark = "+"
		}
		line := fmt.Sprintf("%s %-8s %s", mark, c.ID(), c.Project.PathWithNamespace)
		if c.Related {
			line += theme.HelpStyle.Render("  (" + c.Reason + ")")
		}
		fmt.Println(line)
	}

	ids := discover.RelatedIDs(cands, a.settings.MonitoredProjects)
	fmt.Printf("\nmonitored_projects: [%s]\n", strings.Join(ids, ", "))

	if *write {
		if err := config.SaveMonitoredProjects(g.configPath, ids); err != nil {
			return err
		}
		fmt.Printf("Saved %d projects to %s\n", len(ids), g.configPath)
	}
	return nil
}
