// Package main is the CortexVault command line client. It enrolls devices
// with a recovery phrase, keeps journal entries locally and backs them up
// to the vault server.
package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atinyakov/cortexvault/internal/client/app"
	"github.com/atinyakov/cortexvault/internal/config"
	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/securestore"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// credentialsFile is the secure store file inside the data directory.
const credentialsFile = "credentials.db"

type runner interface {
	Enroll(ctx context.Context) error
	Recover(ctx context.Context, saltB64 string) error
	Unlock(ctx context.Context) error
	Challenge(ctx context.Context) error
	Backup(ctx context.Context) error
	Restore(ctx context.Context) error
	Status(ctx context.Context, remote bool) error
	DeleteBackup(ctx context.Context, confirmed bool) error
	Reset(ctx context.Context, confirmed bool) error
	Shell(ctx context.Context) error
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ServerURL string
	DataDir   string
	CAFile    string
	LogLevel  string
}

// opener builds the runner for one invocation. The returned func releases
// its resources.
type opener func(flags globalFlags) (runner, func(), error)

func openApp(flags globalFlags) (runner, func(), error) {
	log := logger.New()
	if err := log.Init(flags.LogLevel); err != nil {
		return nil, nil, err
	}

	store, err := securestore.OpenBolt(filepath.Join(flags.DataDir, credentialsFile))
	if err != nil {
		return nil, nil, err
	}

	a := app.New(app.Config{
		ServerURL: flags.ServerURL,
		DataDir:   flags.DataDir,
		CAFile:    flags.CAFile,
		Getenv:    os.Getenv,
	}, store, os.Stdin, os.Stdout, log.Log)

	return a, func() {
		_ = store.Close()
		_ = log.Log.Sync()
	}, nil
}

func buildRootCmd(open opener, out io.Writer) *cobra.Command {
	defaults := config.ClientDefaults(os.Getenv)
	flags := globalFlags{}

	var (
		r       runner
		release func()
	)

	rootCmd := &cobra.Command{
		Use:           "cortex",
		Short:         "encrypted journal with recovery phrase backup",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: "Keep an encrypted journal and back it up to a CortexVault server.\n\n" +
			"The recovery phrase is read from a prompt, or from the environment:\n" +
			"  " + app.PhraseEnv + "='<phrase>' cortex backup",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			r, release, err = open(flags)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if release != nil {
				release()
			}
		},
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ServerURL, "server", defaults.ServerURL, "vault server base URL")
	pf.StringVar(&flags.DataDir, "data-dir", defaults.DataDir, "directory for credentials and local entries")
	pf.StringVar(&flags.CAFile, "ca", "", "PEM CA certificate to verify the server with")
	pf.StringVar(&flags.LogLevel, "log-level", "error", "log level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "enroll",
		Short: "Create a recovery phrase for this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Enroll(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Check the recovery phrase and unlock the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Unlock(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "challenge",
		Short: "Answer two random words and the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Challenge(cmd.Context())
		},
	})

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Set up this device from an existing recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, _ := cmd.Flags().GetString("salt")
			return r.Recover(cmd.Context(), salt)
		},
	}
	recoverCmd.Flags().String("salt", "", "recovery salt printed at enrollment (empty for legacy accounts)")
	rootCmd.AddCommand(recoverCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Encrypt and upload the local entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Backup(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Download the backup and merge it into the local entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Restore(cmd.Context())
		},
	})

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the device and vault state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			return r.Status(cmd.Context(), remote)
		},
	}
	statusCmd.Flags().Bool("remote", false, "also query the remote backup")
	rootCmd.AddCommand(statusCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete-backup",
		Short: "Delete the remote backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return r.DeleteBackup(cmd.Context(), yes)
		},
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(deleteCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the master key, credentials and local entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return r.Reset(cmd.Context(), yes)
		},
	}
	resetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Manage entries interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.Shell(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cortex %s (built %s)\n", cmp.Or(version, "dev"), cmp.Or(buildDate, "N/A"))
		},
	})

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd(openApp, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
