package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/user"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/natefinch/lumberjack.v2"

	"monks.co/syncd/config"
	"monks.co/syncd/db"
	"monks.co/syncd/model"
	"monks.co/syncd/objectstore"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatal(err)
	}
}

func run() error {
	if whoami, err := user.Current(); err != nil {
		return fmt.Errorf("getting user: %w", err)
	} else if whoami.Username != "root" {
		return fmt.Errorf("must be root, not '%s'", whoami.Username)
	}

	ctx := NewSigctx()

	configArg := flag.String("config", "", "config file path; searches the usual locations by default")
	datasetArg := flag.String("dataset", "", "restrict to one source dataset; all by default")
	strictArg := flag.Bool("strict", false, "stop the whole run at the first failed pair")
	dryrunArg := flag.Bool("dryrun", false, "plan and report without transferring or committing")
	forceFullArg := flag.Bool("force-full", false, "ignore the destination checkpoint and plan a full transfer (requires -dataset)")
	flag.Parse()

	conf, err := config.Load(*configArg)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if conf.Run.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   conf.Run.LogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}

	if *forceFullArg && *datasetArg == "" {
		return fmt.Errorf("-force-full is an operator override; it requires -dataset")
	}

	var store *objectstore.Client
	if conf.Bucket.Name != "" {
		store, err = objectstore.New(ctx, conf)
		if err != nil {
			return fmt.Errorf("building object store client: %w", err)
		}
	}

	args := flag.Args()
	if len(args) < 1 {
		return fmt.Errorf("usage: syncd [flags] <plan|run|history>")
	}
	cmd := args[0]

	var history *db.DB
	if !*dryrunArg {
		history, err = db.Open(conf.Run.HistoryDB)
		if err != nil {
			return fmt.Errorf("opening history db: %w", err)
		}
		defer history.Close()
	}

	s := New(conf, store, history, *strictArg, *dryrunArg, *forceFullArg)

	switch cmd {
	case "plan":
		return s.PrintPlans(ctx, *datasetArg)
	case "run":
		return s.Run(ctx, *datasetArg)
	case "history":
		if *datasetArg == "" {
			return fmt.Errorf("history requires -dataset")
		}
		return printHistory(ctx, history, model.DatasetName(*datasetArg))
	default:
		return fmt.Errorf("unsupported cmd '%s'", cmd)
	}
}

func printHistory(ctx context.Context, history *db.DB, dataset model.DatasetName) error {
	if history == nil {
		return fmt.Errorf("history is unavailable in dryrun mode")
	}
	transfers, err := history.History(ctx, dataset, 50)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		fmt.Printf("no recorded transfers for '%s'\n", dataset)
		return nil
	}
	for _, t := range transfers {
		fmt.Printf("%s  %-11s %-12s %s → %s  %s  %s\n",
			t.StartedAt.Format("2006-01-02 15:04:05"),
			t.Outcome, t.Kind, orDash(t.Base), orDash(t.Target),
			humanize.Bytes(uint64(t.Bytes)), t.Destination)
		if t.Outcome == "failed" && t.Log != "" {
			for _, line := range strings.Split(strings.TrimRight(t.Log, "\n"), "\n") {
				fmt.Printf("    | %s\n", line)
			}
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
