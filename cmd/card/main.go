// card is a local business-card store with duplicate detection, versioned
// history, and encrypted cross-device transfer.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iim0663418/cardstore"
	"github.com/iim0663418/cardstore/internal/config"
	"github.com/iim0663418/cardstore/internal/dedup"
	"github.com/iim0663418/cardstore/internal/lockfile"
	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/storage/memory"
	"github.com/iim0663418/cardstore/internal/storage/sqlite"
	"github.com/iim0663418/cardstore/internal/transfer"
	"github.com/iim0663418/cardstore/internal/version"
)

var (
	dbPath     string
	jsonOutput bool
	noDB       bool

	store     storage.Storage
	versions  *version.Manager
	detector  *dedup.Detector
	transfers *transfer.Manager

	storeLock *lockfile.Lock
	opLog     *lumberjack.Logger
)

// mutatingCommands require the store-directory lock so concurrent invocations
// serialize instead of interleaving store writes
var mutatingCommands = map[string]bool{
	"create":  true,
	"delete":  true,
	"import":  true,
	"cleanup": true,
}

var rootCmd = &cobra.Command{
	Use:   "card",
	Short: "card - Local business-card store",
	Long: `A local business-card store with content-fingerprint duplicate detection,
tamper-evident version history, and password-encrypted transfer packages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Priority: flags > viper (config file + env vars) > defaults
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if !cmd.Flags().Changed("no-db") {
			noDB = config.GetBool("no-db")
		}
		if !cmd.Flags().Changed("db") && dbPath == "" {
			dbPath = config.GetString("store.path")
		}

		// Commands that never touch the store
		switch cmd.Name() {
		case "init", "help", "version", "pair", "completion":
			return nil
		}

		if err := openStore(); err != nil {
			return err
		}

		if mutatingCommands[cmd.Name()] && !noDB {
			lock, err := lockStore(filepath.Dir(store.Path()))
			if err != nil {
				return err
			}
			storeLock = lock
		}

		setupOpLog()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if storeLock != nil {
			_ = storeLock.Release()
			storeLock = nil
		}
		if store != nil {
			_ = store.Close()
		}
		if opLog != nil {
			_ = opLog.Close()
		}
	},
}

// lockStore acquires the store lock. A lock file left behind by a dead
// process is cleared and acquisition retried; a lock held by a running
// process is reported with its PID.
func lockStore(storeDir string) (*lockfile.Lock, error) {
	lock, err := lockfile.Acquire(storeDir)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, lockfile.ErrLocked) {
		return nil, fmt.Errorf("cannot lock store: %w", err)
	}

	if lockfile.IsStale(storeDir) {
		if clearErr := lockfile.Clear(storeDir); clearErr == nil {
			if lock, retryErr := lockfile.Acquire(storeDir); retryErr == nil {
				return lock, nil
			}
		}
	}

	if pid, ok := lockfile.HolderPID(storeDir); ok {
		return nil, fmt.Errorf("store is locked by process %d: %w", pid, lockfile.ErrLocked)
	}
	return nil, fmt.Errorf("cannot lock store: %w", err)
}

func openStore() error {
	if noDB {
		store = memory.New()
	} else {
		if dbPath == "" {
			dbPath = cardstore.FindStorePath()
		}
		if dbPath == "" {
			return fmt.Errorf("no card store found (run 'card init' or set --db)")
		}
		s, err := sqlite.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		store = s
	}

	versions = version.NewManager(store, config.GetInt("history.cap"))
	detector = dedup.NewDetector(store, versions)
	transfers = transfer.NewManager(store, versions, config.GetInt("crypto.kdf-iterations"))
	return nil
}

// setupOpLog opens the rotating operation log next to the database.
// Command output stays on stdout/stderr; the log records mutations.
func setupOpLog() {
	if noDB || store == nil {
		return
	}
	opLog = &lumberjack.Logger{
		Filename:   filepath.Join(filepath.Dir(store.Path()), "card.log"),
		MaxSize:    config.GetInt("log.max-size-mb"),
		MaxBackups: config.GetInt("log.max-backups"),
		MaxAge:     config.GetInt("log.max-age-days"),
		Compress:   true,
	}
}

func logOp(format string, args ...interface{}) {
	if opLog == nil {
		return
	}
	_, _ = fmt.Fprintf(opLog, format+"\n", args...)
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to card database")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noDB, "no-db", false, "Use an in-memory store (nothing is persisted)")
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
