// cmd/snaptrack/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"snaptrack/internal/config"
	"snaptrack/internal/diff"
	"snaptrack/internal/engine"
	snaperr "snaptrack/internal/errors"
	"snaptrack/internal/history"
	"snaptrack/internal/hooks"
	"snaptrack/internal/lockfile"
	"snaptrack/internal/logging"
	"snaptrack/internal/template"
	"snaptrack/internal/version"
	"snaptrack/internal/watch"
)

var rootCmd = &cobra.Command{
	Use:   "snaptrack",
	Short: "Non-intrusive version snapshots for text files",
	Long: `Snaptrack keeps incremental, semver-stamped snapshots of designated text
files without ever writing into the files themselves. A single committed
lock manifest ties snapshot versions to your version-control checkouts.`,
	SilenceUsage: true,
}

// env bundles the per-invocation components, built once per command.
type env struct {
	ctx    *config.ProjectContext
	store  *history.Store
	engine *engine.Engine
	log    *logging.Logger
}

func newEnv() (*env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	ctx, err := config.Discover(cwd)
	if err != nil {
		return nil, fmt.Errorf("discovering project root: %w", err)
	}

	logger, err := logging.NewLogger(ctx.Settings.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	store, err := history.NewStore(ctx, logger.Logger)
	if err != nil {
		return nil, err
	}

	manifest := lockfile.New(ctx)
	return &env{
		ctx:    ctx,
		store:  store,
		engine: engine.New(ctx, store, manifest, logger.Logger),
		log:    logger,
	}, nil
}

func (e *env) rel(arg string) (string, error) {
	return e.ctx.Rel(arg)
}

func bumpFromFlags(cmd *cobra.Command) version.Bump {
	major, _ := cmd.Flags().GetBool("major")
	patch, _ := cmd.Flags().GetBool("patch")
	switch {
	case major:
		return version.BumpMajor
	case patch:
		return version.BumpPatch
	default:
		return version.BumpMinor
	}
}

func init() {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var initCmd = &cobra.Command{
		Use:   "init [file]",
		Short: "Create a new file from a template and start tracking it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			target := args[0]
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("file %s already exists; use 'snaptrack track' for existing files", target)
			}

			name, _ := cmd.Flags().GetString("template")
			if name == "" {
				name = template.DefaultFor(filepath.Ext(target))
			}

			resolver := template.NewResolver(e.ctx)
			body, err := resolver.Resolve(name)
			if err != nil {
				available := resolver.Available()
				names := make([]string, 0, len(available))
				for n := range available {
					names = append(names, n)
				}
				sort.Strings(names)
				return fmt.Errorf("%w (available: %v)", err, names)
			}

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}
			if err := os.WriteFile(target, body, 0644); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}

			rel, err := e.rel(target)
			if err != nil {
				return err
			}
			snap, err := e.engine.Track(rel)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s at version %s (template: %s)\n", green("Created"), rel, snap.Version, name)
			fmt.Println(dim("Note: versions are tracked in " + config.HistoryDirName + "/ (non-intrusive)"))
			return nil
		},
	}
	initCmd.Flags().StringP("template", "t", "", "Template name; see 'snaptrack template list'")

	var trackCmd = &cobra.Command{
		Use:   "track [file]",
		Short: "Start tracking an existing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			rel, err := e.rel(args[0])
			if err != nil {
				return err
			}

			snap, err := e.engine.Track(rel)
			if err != nil {
				if snaperr.IsKind(err, snaperr.KindAlreadyTracked) {
					fmt.Printf("%s %s\n", yellow("Already tracking"), rel)
					return nil
				}
				return err
			}

			fmt.Printf("%s %s at version %s\n", green("Started tracking"), rel, snap.Version)
			return nil
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save [file]",
		Short: "Save a new snapshot of a tracked file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			rel, err := e.rel(args[0])
			if err != nil {
				return err
			}

			message, _ := cmd.Flags().GetString("message")
			snap, created, err := e.engine.Save(rel, bumpFromFlags(cmd), message)
			if err != nil {
				return err
			}

			if !created {
				fmt.Printf("%s no changes since version %s\n", yellow("Skipped:"), snap.Version)
				return nil
			}
			fmt.Printf("%s %s: %s\n", green("Saved "+snap.Version), rel, snap.Message)
			return nil
		},
	}
	saveCmd.Flags().StringP("message", "m", "", "Snapshot message")
	saveCmd.Flags().Bool("major", false, "Bump the major version")
	saveCmd.Flags().Bool("minor", false, "Bump the minor version (default)")
	saveCmd.Flags().Bool("patch", false, "Bump the patch version")

	var listCmd = &cobra.Command{
		Use:   "list [file]",
		Short: "Show history for a file, or list all tracked files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				rel, err := e.rel(args[0])
				if err != nil {
					return err
				}
				active, err := e.store.Active(rel)
				if err != nil {
					return err
				}

				fmt.Printf("History: %s\n", rel)
				for snap, err := range e.store.List(rel) {
					if err != nil {
						return err
					}
					marker := "  "
					line := fmt.Sprintf("%s%-10s %s  %s", marker, snap.Version,
						snap.CreatedAt.Local().Format("2006-01-02 15:04:05"), snap.Message)
					if active != nil && snap.Version == active.Version {
						line = green("* " + line[2:])
					}
					fmt.Println(line)
				}
				return nil
			}

			paths := e.store.TrackedPaths()
			if len(paths) == 0 {
				fmt.Println(yellow("No tracked files found."))
				return nil
			}

			fmt.Println("All tracked files:")
			for _, rel := range paths {
				active, err := e.store.Active(rel)
				if err != nil {
					return err
				}
				ver := "-"
				if active != nil {
					ver = active.Version
				}
				state := green("active")
				if _, err := os.Stat(e.ctx.Abs(rel)); os.IsNotExist(err) {
					state = red("missing")
				}
				fmt.Printf("  %-8s %-40s %s\n", state, rel, cyan(ver))
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [file] [version]",
		Short: "Show changes between the working file and a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			rel, err := e.rel(args[0])
			if err != nil {
				return err
			}

			_, oldContent, err := e.store.Get(rel, args[1])
			if err != nil {
				return err
			}
			newContent, err := os.ReadFile(e.ctx.Abs(rel))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}

			out := diff.NewEngine(3).Unified(oldContent, newContent, "v"+args[1], "current")
			if out == "" {
				fmt.Println("No differences.")
				return nil
			}
			printColoredDiff(out)
			return nil
		},
	}

	var checkoutCmd = &cobra.Command{
		Use:   "checkout [file] [version]",
		Short: "Restore a specific version (overwrites the working file)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			rel, err := e.rel(args[0])
			if err != nil {
				return err
			}

			snap, err := e.engine.Checkout(rel, args[1])
			if err != nil {
				return err
			}

			fmt.Printf("%s %s to %s\n", yellow("Restored"), snap.Version, rel)
			return nil
		},
	}

	var lockCmd = &cobra.Command{
		Use:   "lock",
		Short: "Record current versions into the lock manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			report, err := e.engine.Lock(force)
			if err != nil {
				return err
			}

			for _, rel := range report.Skipped {
				fmt.Printf("%s %s has uncommitted changes; not locked (use --force to override)\n",
					yellow("Warning:"), rel)
			}
			fmt.Printf("%s %d file(s) recorded in %s\n",
				green("Locked:"), len(report.Locked), config.LockManifestName)
			return nil
		},
	}
	lockCmd.Flags().Bool("force", false, "Lock drifted files at their active snapshot")

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Restore file versions from the lock manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			report, err := e.engine.Sync()
			if err != nil {
				return err
			}

			for _, rel := range report.Restored {
				fmt.Printf("  %s %s\n", green("synced"), rel)
			}
			for _, failure := range report.Failed {
				fmt.Printf("  %s %s: %v\n", red("failed"), failure.Path, failure.Err)
			}
			fmt.Printf("Sync complete: %d restored, %d failed\n",
				len(report.Restored), len(report.Failed))
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d path(s) failed to sync", len(report.Failed))
			}
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show drift between working tree, history and lock manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			report, err := e.engine.Status()
			if err != nil {
				return err
			}
			if len(report) == 0 {
				fmt.Println(yellow("No tracked files."))
				return nil
			}

			fmt.Printf("%-40s %-10s %-10s %s\n", "FILE", "ACTIVE", "LOCK", "STATUS")
			for _, st := range report {
				if st.Err != nil {
					fmt.Printf("%-40s %-10s %-10s %s\n", st.Path, "-", "-", red(st.Err.Error()))
					continue
				}

				active, lock := st.ActiveVersion, st.LockVersion
				if active == "" {
					active = "-"
				}
				if lock == "" {
					lock = "-"
				}

				var stateStr string
				switch st.State {
				case engine.StateInSync:
					stateStr = green("in-sync")
				case engine.StateWorkingTreeDrift:
					stateStr = yellow("modified")
				case engine.StateLockDrift:
					stateStr = yellow("lock-drift")
				case engine.StateMissing:
					stateStr = red("missing")
				default:
					stateStr = cyan("untracked")
				}
				fmt.Printf("%-40s %-10s %-10s %s\n", st.Path, active, lock, stateStr)
			}
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch tracked files and report drift as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			tracked := e.store.TrackedPaths()
			if len(tracked) == 0 {
				fmt.Println(yellow("No tracked files to watch."))
				return nil
			}

			w, err := watch.New(e.ctx, e.engine, tracked, e.log.Logger, func(st engine.PathStatus) {
				fmt.Printf("%s %s -> %s\n", cyan("change"), st.Path, st.State)
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Watching %d tracked file(s); press Ctrl-C to stop.\n", len(tracked))
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	var hooksCmd = &cobra.Command{
		Use:   "hooks",
		Short: "Manage git hooks for automatic locking",
	}

	var hooksInstallCmd = &cobra.Command{
		Use:   "install",
		Short: "Install a git pre-commit hook that runs 'snaptrack lock'",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			path, err := hooks.InstallPreCommit(e.ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", green("Hook installed:"), path)
			return nil
		},
	}

	var templateCmd = &cobra.Command{
		Use:   "template",
		Short: "Manage file templates",
	}

	var templateListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all available templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}

			available := template.NewResolver(e.ctx).Available()
			names := make([]string, 0, len(available))
			for name := range available {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("Available templates:")
			for _, name := range names {
				source := "custom"
				if _, ok := template.Builtins[name]; ok {
					source = "built-in"
				}
				fmt.Printf("  %-20s %s\n", cyan(name), dim(source))
			}
			return nil
		},
	}

	var templateAddCmd = &cobra.Command{
		Use:   "add [file]",
		Short: "Register a file as a global custom template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dest, err := template.Register(args[0], name)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", green("Template registered:"), dest)
			return nil
		},
	}
	templateAddCmd.Flags().String("name", "", "Template name (default: source file name)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(hooksCmd)
	rootCmd.AddCommand(templateCmd)

	hooksCmd.AddCommand(hooksInstallCmd)
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateAddCmd)
}

func printColoredDiff(out string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	start := 0
	for start <= len(out) {
		end := start
		for end < len(out) && out[end] != '\n' {
			end++
		}
		line := out[start:end]
		switch {
		case len(line) >= 2 && (line[:2] == "@@" || line[:2] == "--" || line[:2] == "++"):
			header.Println(line)
		case len(line) >= 1 && line[0] == '+':
			added.Println(line)
		case len(line) >= 1 && line[0] == '-':
			removed.Println(line)
		default:
			fmt.Println(line)
		}
		start = end + 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
