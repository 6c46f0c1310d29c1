package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/semmidev/sitekeep/internal/app"
	"github.com/semmidev/sitekeep/internal/config"
)

const usage = `Usage: sitekeep [-config path] <command>

Commands:
  serve          run the scheduler and HTTP API (default)
  run            perform one backup now and wait for it
  list           list backup sets in the destination
  verify <name>  check a backup set against its manifest
  next           print the next scheduled backup time
`

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd := flag.Arg(0); cmd {
	case "", "serve":
		return application.Run(ctx)

	case "run":
		job, err := application.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%d files, %d skipped)\n", job.Status, job.WorkDir, job.Archived, job.Skipped)
		return nil

	case "list":
		sets, err := application.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tSIZE\tMANIFEST")
		for _, s := range sets {
			fmt.Fprintf(w, "%s\t%s\t%.2f MB\t%t\n", s.Name, s.CreatedAt.Format(time.DateTime), float64(s.Size)/(1024*1024), s.Manifest)
		}
		return w.Flush()

	case "verify":
		name := flag.Arg(1)
		if name == "" {
			return fmt.Errorf("verify requires a backup set name")
		}
		res, err := application.Verify(ctx, name)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("%s failed verification: %s", name, res.Detail)
		}
		fmt.Printf("%s OK\n", name)
		return nil

	case "next":
		next, ok, err := application.NextRun()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("scheduled backups are disabled")
			return nil
		}
		fmt.Println(next.Format(time.RFC3339))
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
