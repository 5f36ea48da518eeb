package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-inventory/pkg/config"
	"github.com/angelmondragon/storefront-inventory/pkg/db"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// source is the migration set db commands run: the embedded files unless
// -dir points elsewhere.
func (o options) source() fs.FS {
	if o.dir == "" {
		return migrate.Embedded()
	}
	return os.DirFS(o.dir)
}

// workDir is where create and validate operate on disk.
func (o options) workDir() string {
	if o.dir == "" {
		return migrate.DefaultDir
	}
	return o.dir
}

var dbCommands = map[string]func(ctx context.Context, m *migrate.Migrator, opts options) error{
	"up":     func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Up(ctx) },
	"down":   func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Down(ctx) },
	"redo":   func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Redo(ctx) },
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Status(ctx) },
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		target, err := parseVersion(opts.version)
		if err != nil {
			return err
		}
		return m.To(ctx, target)
	},
}

func parseVersion(v string) (int64, error) {
	if v == "" {
		return 0, fmt.Errorf("missing -version for version command")
	}
	target, err := strconv.ParseInt(v, 10, 64)
	if err != nil || target < 0 {
		return 0, fmt.Errorf("invalid -version %q (expected YYYYMMDDHHMMSS)", v)
	}
	return target, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (db commands default to the embedded set, create/validate to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(context.Background(), logg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, opts options) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.Create(opts.workDir(), opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.Validate(os.DirFS(opts.workDir())); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	m, err := migrate.New(sqlDB, opts.source(), logg)
	if err != nil {
		return err
	}

	if err := command(ctx, m, opts); err != nil {
		return err
	}
	logg.Info(ctx, "migrate finished")
	return nil
}
