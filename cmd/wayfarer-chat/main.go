// README: Terminal client; talks to the orchestrator in-process, one line per turn.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"wayfarer/internal/app"
	"wayfarer/internal/config"
	"wayfarer/internal/infra"
	"wayfarer/internal/modules/dialogue"
)

// Options is interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config  string `short:"f" long:"config" description:"config YAML path"`
	Session string `short:"s" long:"session" default:"cli" description:"session id to continue"`
	Online  bool   `long:"online" description:"use the configured Redis/Postgres instead of in-memory state"`
	JSON    bool   `long:"json" description:"print full replies as JSON"`
	Verbose bool   `short:"v" long:"verbose" description:"log to stderr"`
	Args    struct {
		Message []string `positional-arg-name:"message" description:"single message to send; omit for interactive mode"`
	} `positional-args:"yes"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if opts.Verbose {
		if logger, err = infra.NewLogger(false, cfg.Log.Level); err != nil {
			return err
		}
	}
	a, err := app.New(ctx, cfg, logger, app.Options{Offline: !opts.Online})
	if err != nil {
		return err
	}
	defer a.Close()

	say := func(text string) error {
		reply, err := a.Orchestrator.Handle(ctx, opts.Session, text)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			return nil
		}
		return printReply(out, reply, opts.JSON)
	}

	if len(opts.Args.Message) > 0 {
		return say(strings.Join(opts.Args.Message, " "))
	}

	fmt.Fprintln(out, "Where would you like to go? (ctrl-d to quit, /reset to start over)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/reset":
			if err := a.Orchestrator.Reset(ctx, opts.Session); err != nil {
				return err
			}
			fmt.Fprintln(out, "Starting over.")
			continue
		}
		if err := say(line); err != nil {
			return err
		}
	}
}

func printReply(out io.Writer, r *dialogue.Reply, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintln(out, r.Text)
	if r.Degraded {
		fmt.Fprintln(out, "  (degraded)")
	}
	return nil
}
