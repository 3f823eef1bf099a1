// attemptctl takes a timed test against a running portald from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mind-engage/examportal/pkg/attempt"
	"github.com/mind-engage/examportal/pkg/attempt/httpclient"
)

func main() {
	app := &cli.App{
		Name:  "attemptctl",
		Usage: "take a timed test from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", EnvVars: []string{"PORTAL_URL"}, Usage: "portal base URL"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, EnvVars: []string{"PORTAL_USER"}},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, EnvVars: []string{"PORTAL_PASSWORD"}},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second, Usage: "per-request timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:      "take",
				Usage:     "start or resume an attempt and answer interactively",
				ArgsUsage: "<test-id>",
				Action:    take,
			},
			{
				Name:      "result",
				Usage:     "print the graded result of a submitted attempt",
				ArgsUsage: "<test-id>",
				Action:    result,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func login(c *cli.Context) (*httpclient.Client, string, error) {
	testID := c.Args().First()
	if testID == "" {
		return nil, "", cli.Exit("test id required", 2)
	}
	client := httpclient.New(httpclient.Config{BaseURL: c.String("url"), Timeout: c.Duration("timeout")})
	if _, err := client.Login(c.Context, c.String("user"), c.String("password")); err != nil {
		return nil, "", fmt.Errorf("login: %w", err)
	}
	return client, testID, nil
}

func take(c *cli.Context) error {
	client, testID, err := login(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := c.App.Writer
	logger := log.New(c.App.ErrWriter, "", log.LstdFlags)
	s, err := attempt.Start(ctx, client, testID, attempt.Options{
		Logger: logger,
		OnTick: func(remaining int) {
			// only the last minutes are loud enough to interrupt the prompt
			if remaining > 0 && remaining%60 == 0 && attempt.UrgencyOf(remaining) == attempt.Critical {
				fmt.Fprintf(out, "\n** %s left **\n", attempt.FormatRemaining(remaining))
			}
		},
		OnSubmitted: func(tr attempt.Trigger) {
			if tr == attempt.Timeout {
				fmt.Fprintln(out, "\ntime is up, your answers were submitted")
			}
		},
		OnSubmitError: func(err error) {
			fmt.Fprintf(out, "\nsubmit failed: %v\n", err)
		},
		OnSaveError: func(rec attempt.AnswerRecord, err error) {
			fmt.Fprintf(out, "\nsaving %s failed: %v\n", rec.Key(), err)
		},
	})
	if errors.Is(err, attempt.ErrAlreadySubmitted) {
		fmt.Fprintln(out, "this test is already submitted")
		return printResult(ctx, out, client, testID)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	con := &console{s: s, out: out}
	if err := con.run(ctx, os.Stdin); err != nil {
		return err
	}
	if s.State() == attempt.Submitted {
		return printResult(ctx, out, client, testID)
	}
	return nil
}

func result(c *cli.Context) error {
	client, testID, err := login(c)
	if err != nil {
		return err
	}
	return printResult(c.Context, c.App.Writer, client, testID)
}

func printResult(ctx context.Context, out io.Writer, svc attempt.Service, testID string) error {
	res, err := svc.FetchResult(ctx, testID)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	writeResult(out, res)
	return nil
}
