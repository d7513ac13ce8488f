package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"

	"github.com/kingkw1/stratum/internal/cli"
	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/migration"
)

const runTimeout = 120 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", cli.DefaultConfigPath, "path to the stratum yaml config")
	to := fs.Uint64("to", 0, "target version, 0 means all (up) or everything (down)")
	steps := fs.Int("steps", 0, "limit the run to at most n migrations")
	name := fs.String("name", "", "name for the new migration")
	_ = fs.Parse(os.Args[2:])

	if err := run(cmd, *configPath, migration.Version(*to), *steps, *name); err != nil {
		fmt.Println(aurora.Red(fmt.Sprintf("stratum: %s", err)))
		os.Exit(1)
	}
}

func run(cmd, configPath string, target migration.Version, steps int, name string) error {
	if cmd == "init" {
		return initConfig(configPath)
	}

	app, closer, err := cli.NewFromYaml(configPath)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closer(); closeErr != nil {
			log.Println(closeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	action := cli.ActionConfig{Target: target, Steps: steps}

	switch cmd {
	case "up":
		applied, upErr := app.Up(ctx, action)
		if upErr != nil {
			return upErr
		}

		if len(applied) == 0 {
			fmt.Println(aurora.Green("stratum: nothing to migrate"))
		}

		return nil
	case "down":
		reverted, downErr := app.Down(ctx, action)
		if downErr != nil {
			return downErr
		}

		if len(reverted) == 0 {
			fmt.Println(aurora.Green("stratum: nothing to roll back"))
		}

		return nil
	case "status":
		st, statusErr := app.Status(ctx)
		if statusErr != nil {
			return statusErr
		}

		printStatus(st.Applied, st.Pending)
		return nil
	case "create":
		if name == "" {
			return errors.New("-name is required")
		}

		m, createErr := app.CreateMigration(name)
		if createErr != nil {
			return createErr
		}

		fmt.Println(aurora.Green(fmt.Sprintf("stratum: created migration %s", m.Key())))
		return nil
	default:
		usage()
		return errors.Errorf("unknown command [%s]", cmd)
	}
}

func initConfig(configPath string) error {
	if cli.FileExists(configPath) {
		return errors.Errorf("config file %s already exists", configPath)
	}

	if err := cli.InitCfg(configPath); err != nil {
		return err
	}

	fmt.Println(aurora.Green(fmt.Sprintf("stratum: created %s", configPath)))
	return nil
}

func printStatus(applied []database.Record, pending []string) {
	if len(applied) == 0 {
		fmt.Println(aurora.Yellow("no migrations applied"))
	}

	for _, rec := range applied {
		fmt.Println(aurora.Green(fmt.Sprintf(
			"applied  %s at %s", rec.Version, rec.AppliedAt.Format(time.RFC3339),
		)))
	}

	if len(pending) == 0 {
		fmt.Println(aurora.Green("nothing pending"))
		return
	}

	for _, key := range pending {
		fmt.Println(aurora.Yellow(fmt.Sprintf("pending  %s", key)))
	}
}

func usage() {
	fmt.Println(`usage: migrate <command> [flags]

commands:
  up       apply pending migrations           [-to VERSION] [-steps N]
  down     revert applied migrations          [-to VERSION] [-steps N]
  status   list applied and pending versions
  create   scaffold a new migration pair      -name NAME
  init     write a stub stratum.yaml

flags:
  -config PATH   config file (default ./stratum.yaml)`)
}
