// ABOUTME: Subcommands of the grimoire CLI: get, set, del, info
// ABOUTME: get/set/del run a real initialization pass over a string namespace for the named module

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/grimoire/internal/codec"
	"github.com/2389/grimoire/internal/config"
	"github.com/2389/grimoire/internal/interner"
	"github.com/2389/grimoire/internal/kvs"
	"github.com/2389/grimoire/internal/sqldb"
)

var (
	getCmd = &cobra.Command{
		Use:   "get <module> <key>",
		Short: "Read a value from a module's namespace",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}

	setCmd = &cobra.Command{
		Use:   "set <module> <key> <value>",
		Short: "Write a value into a module's namespace",
		Args:  cobra.ExactArgs(3),
		RunE:  runSet,
	}

	delCmd = &cobra.Command{
		Use:   "del <module> <key>",
		Short: "Delete a value from a module's namespace",
		Args:  cobra.ExactArgs(2),
		RunE:  runDel,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "List all persisted namespaces",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	showMetrics bool
)

func init() {
	infoCmd.Flags().BoolVar(&showMetrics, "metrics", false, "dump store metrics in Prometheus format")
}

// openStack opens the database and interner from config.
func openStack(ctx context.Context) (*config.Config, *sqldb.DB, *interner.Interner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	setupLogging(cfg)

	db, err := sqldb.Open(cfg.Database.Path, cfg.Database.TransientPath)
	if err != nil {
		return nil, nil, nil, err
	}

	in, err := interner.Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return cfg, db, in, nil
}

// openStore runs the initialization pass with a single string
// namespace declared for module, exactly as a host module would.
func openStore(ctx context.Context, module string) (*kvs.Store[string, string], *sqldb.DB, error) {
	cfg, db, in, err := openStack(ctx)
	if err != nil {
		return nil, nil, err
	}

	mode := kvs.Persistent
	if transient {
		mode = kvs.Transient
	}

	reg := kvs.NewRegistry(db, in)
	store, err := kvs.NewStore(reg, module, codec.String(), codec.NewJSON[string]("text", 1), kvs.Options{
		Mode:          mode,
		CacheCapacity: cfg.Cache.Capacity,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := reg.Init(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initializing kvs: %w", err)
	}
	return store, db, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, db, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	value, ok, err := store.Get(ctx, args[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not found in %q", args[1], args[0])
	}
	fmt.Println(value)
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, db, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	return store.Set(ctx, args[1], args[2])
}

func runDel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, db, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	return store.Remove(ctx, args[1])
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, db, in, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// Read-only: migrate the metadata tables but skip the full init
	// pass so nothing gets dropped.
	if err := kvs.Migrate(ctx, db); err != nil {
		return err
	}

	reg := kvs.NewRegistry(db, in)
	namespaces, err := reg.Namespaces(ctx)
	if err != nil {
		return err
	}

	if len(namespaces) == 0 {
		fmt.Println("no namespaces")
		if showMetrics {
			metrics.WritePrometheus(os.Stdout, false)
		}
		return nil
	}

	header := color.New(color.Bold)
	transientTag := color.New(color.FgYellow).Sprint("transient")
	persistentTag := color.New(color.FgCyan).Sprint("persistent")

	header.Printf("%-32s %-10s %-12s %s\n", "MODULE", "AREA", "KEY SCHEMA", "TABLE")
	for _, ns := range namespaces {
		tag := persistentTag
		if ns.Transient {
			tag = transientTag
		}
		fmt.Printf("%-32s %-10s %-12s %s\n",
			ns.ModulePath, tag,
			fmt.Sprintf("%s v%d", ns.KeySchema, ns.KeyVersion),
			ns.TableName,
		)
	}

	if showMetrics {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, false)
	}
	return nil
}
