// Command gemforge runs the text-formatting job queue: a scheduler that
// enqueues configured jobs, a self-balancing pool of worker subprocesses
// that claim and run them, and a handful of inspection subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mireiodev/gemforge/internal/config"
	"github.com/mireiodev/gemforge/internal/formatterplugins"
	"github.com/mireiodev/gemforge/internal/jobrunner"
	"github.com/mireiodev/gemforge/internal/jobs"
	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/metrics"
	"github.com/mireiodev/gemforge/internal/pipeline"
	"github.com/mireiodev/gemforge/internal/pluginregistry"
	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/mireiodev/gemforge/internal/scheduler"
	"github.com/mireiodev/gemforge/internal/shell"
	"github.com/mireiodev/gemforge/internal/workerpool"
)

var (
	envPath     string
	pluginDir   string
	shellEnable bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gemforge:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gemforge",
		Short: "Markdown-to-Gemtext formatting pipeline and job queue",
	}
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "path to the .env process configuration file")
	root.PersistentFlags().StringVar(&pluginDir, "plugin-dir", "", "directory of external .so formatter plugins (optional)")
	root.PersistentFlags().BoolVar(&shellEnable, "shell", false, "attach an interactive debug shell on stdin/stdout")

	runPooler := &cobra.Command{
		Use:   "run-pooler",
		Short: "Run the self-balancing worker pool until interrupted",
		RunE:  runPoolerCmd,
	}

	runConfig := &cobra.Command{
		Use:   "run-config <path>",
		Short: "Hydrate a TOML job configuration and enqueue its jobs, then run to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigCmd,
	}

	root.AddCommand(
		runPooler,
		runConfig,
		newListFormattersCmd(),
		newFormatterInfoCmd(),
		newInternalWorkerCmd(),
	)
	return root
}

// registry wires the ambient dependencies shared by every pooler-side
// subcommand: the pooler itself never decodes or runs a job, only the
// spawned internal-worker subprocesses do, so it needs no jobrunner.Registry.
type registry struct {
	env   config.Env
	log   logging.Logger
	db    *sqlx.DB
	store queue.Store
}

func buildRegistry() (*registry, error) {
	env, err := config.LoadEnv(envPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, env.LogLevel)

	db, err := sqlx.Connect("postgres", env.DBURL)
	if err != nil {
		return nil, fmt.Errorf("gemforge: connect db: %w", err)
	}
	store := queue.NewPostgresStore(db)

	return &registry{env: env, log: log, db: db, store: store}, nil
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPoolerCmd(cmd *cobra.Command, _ []string) error {
	reg, err := buildRegistry()
	if err != nil {
		return err
	}
	defer reg.db.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("gemforge: resolve executable: %w", err)
	}
	spawner := workerpool.ExecSpawner{ExecutablePath: exe, DSN: reg.env.DBURL, ExtraArgs: pluginDirArgs()}
	pool := workerpool.New(reg.env.MinimumWorkersPerPool, reg.env.MaxWorkersPerPool, reg.env.TickRate, spawner, reg.store, reg.log)
	pool.Metrics = metrics.NewBasicProvider()

	ctx, cancel := interruptContext()
	defer cancel()

	if shellEnable {
		go shell.New(reg.store, reg.log).Run(ctx)
	}

	return pool.Start(ctx)
}

// pluginDirArgs forwards the root --plugin-dir flag to spawned
// internal-worker subprocesses via ExecSpawner.ExtraArgs, so a worker
// actually running a job loads the same external formatter plugins the
// diagnostic commands (list-formatters, formatter-info) already do.
func pluginDirArgs() []string {
	if pluginDir == "" {
		return nil
	}
	return []string{"--plugin-dir", pluginDir}
}

func runConfigCmd(cmd *cobra.Command, args []string) error {
	reg, err := buildRegistry()
	if err != nil {
		return err
	}
	defer reg.db.Close()

	doc, err := config.ParseFile(args[0])
	if err != nil {
		return err
	}

	sched, err := scheduler.New(doc.SchedulerMode, doc.Jobs, reg.store, reg.env.TickRate, reg.log)
	if err != nil {
		return err
	}
	runner := scheduler.NewRunner(sched, reg.env.TickRate, scheduler.DefaultGCInterval, reg.store, reg.log)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("gemforge: resolve executable: %w", err)
	}
	spawner := workerpool.ExecSpawner{ExecutablePath: exe, DSN: reg.env.DBURL, ExtraArgs: pluginDirArgs()}
	pool := workerpool.New(reg.env.MinimumWorkersPerPool, reg.env.MaxWorkersPerPool, reg.env.TickRate, spawner, reg.store, reg.log)
	pool.Metrics = metrics.NewBasicProvider()

	ctx, cancel := interruptContext()
	defer cancel()

	if shellEnable {
		go shell.New(reg.store, reg.log).Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Start(ctx) }()

	if err := runner.Run(ctx); err != nil {
		cancel()
		return err
	}
	pool.Stop()
	return <-errCh
}

func newListFormattersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-formatters",
		Short: "List every registered formatter plugin name, grouped by kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			plug := pluginregistry.New()
			formatterplugins.RegisterBuiltins(plug)
			if pluginDir != "" {
				if err := formatterplugins.LoadExternal(pluginDir, plug, logging.Discard()); err != nil {
					fmt.Fprintln(os.Stderr, "warning: external plugin load failed:", err)
				}
			}
			fmt.Println("line:")
			for _, n := range plug.LineNames() {
				fmt.Println(" ", n)
			}
			fmt.Println("multiline:")
			for _, n := range plug.MultilineNames() {
				fmt.Println(" ", n)
			}
			fmt.Println("preprocessor:")
			for _, n := range plug.PreprocessorNames() {
				fmt.Println(" ", n)
			}
			return nil
		},
	}
}

func newFormatterInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formatter-info <name>",
		Short: "Show the description and valid content types for a registered formatter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plug := pluginregistry.New()
			formatterplugins.RegisterBuiltins(plug)
			if pluginDir != "" {
				if err := formatterplugins.LoadExternal(pluginDir, plug, logging.Discard()); err != nil {
					fmt.Fprintln(os.Stderr, "warning: external plugin load failed:", err)
				}
			}
			name := args[0]
			if f, ok := plug.Line(name); ok {
				printInfo("line", f.Name(), f.Description(), f.ValidTypes())
				return nil
			}
			if f, ok := plug.Multiline(name); ok {
				printInfo("multiline", f.Name(), f.Description(), f.ValidTypes())
				return nil
			}
			if f, ok := plug.Preprocessor(name); ok {
				printInfo("preprocessor", f.Name(), f.Description(), f.ValidTypes())
				return nil
			}
			return fmt.Errorf("gemforge: no formatter registered as %q", name)
		},
	}
}

func printInfo(kind, name, description string, validTypes []string) {
	fmt.Printf("name: %s\nkind: %s\ndescription: %s\nvalid_types: %v\n", name, kind, description, validTypes)
}

func newInternalWorkerCmd() *cobra.Command {
	var id, dsn, workerPluginDir string
	cmd := &cobra.Command{
		Use:    "internal-worker",
		Short:  "Run one worker loop over stdin/stdout (spawned by run-pooler, not for direct use)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInternalWorker(id, dsn, workerPluginDir)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "worker id")
	cmd.Flags().StringVar(&dsn, "db", "", "database connection string")
	cmd.Flags().StringVar(&workerPluginDir, "plugin-dir", "", "directory of external .so formatter plugins (optional)")
	return cmd
}

func runInternalWorker(idStr, dsn, workerPluginDir string) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("gemforge: invalid worker id %q: %w", idStr, err)
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return fmt.Errorf("gemforge: worker %s: connect db: %w", idStr, err)
	}
	defer db.Close()
	store := queue.NewPostgresStore(db)

	log := logging.New(os.Stderr, "info")
	plug := pluginregistry.New()
	formatterplugins.RegisterBuiltins(plug)
	if workerPluginDir != "" {
		if err := formatterplugins.LoadExternal(workerPluginDir, plug, log); err != nil {
			log.Warn("external plugin load failed", "dir", workerPluginDir, "error", err)
		}
	}
	pipe := pipeline.New(plug, log)
	runs := jobrunner.NewRegistry()
	jobs.Register(runs, pipe, plug, log)

	loop := workerpool.NewWorkerLoop(id, store, runs, os.Stdin, os.Stdout, log)

	ctx, cancel := interruptContext()
	defer cancel()

	return loop.Run(ctx)
}
