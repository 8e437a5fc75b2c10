// Package app implements the commands of the vault client on top of the
// account manager, the local entry store and the sync pipeline.
package app

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/client/account"
	"github.com/atinyakov/cortexvault/internal/client/storage"
	"github.com/atinyakov/cortexvault/internal/envelope"
	"github.com/atinyakov/cortexvault/internal/kdf"
	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/securestore"
	"github.com/atinyakov/cortexvault/internal/transport"
	"github.com/atinyakov/cortexvault/internal/vaultsync"
)

// PhraseEnv lets scripts pass the recovery phrase without a prompt.
const PhraseEnv = "CORTEX_RECOVERY_PHRASE"

// ErrAborted is returned when the user declines a destructive command.
var ErrAborted = errors.New("aborted")

// Config holds what the commands need beyond the secure store.
type Config struct {
	ServerURL string
	DataDir   string
	// CAFile is an optional PEM CA the server certificate is checked against.
	CAFile string
	// Deriver overrides the key deriver, used by tests for cheap params.
	Deriver *kdf.Deriver
	// Getenv reads the environment. Defaults to returning "" for all keys.
	Getenv func(string) string
}

// App runs client commands for one device.
type App struct {
	cfg   Config
	env   *envelope.Service
	acct  *account.Manager
	local *storage.LocalStorage
	scan  *bufio.Scanner
	out   io.Writer
	log   *zap.Logger
}

// New wires an App over store. Input is read line by line from in.
func New(cfg Config, store securestore.Store, in io.Reader, out io.Writer, log *zap.Logger) *App {
	log = logger.OrNop(log)
	if cfg.Getenv == nil {
		cfg.Getenv = func(string) string { return "" }
	}
	env := envelope.New(store, log)
	opts := []account.Option{account.WithLogger(log)}
	if cfg.Deriver != nil {
		opts = append(opts, account.WithDeriver(cfg.Deriver))
	}
	return &App{
		cfg:   cfg,
		env:   env,
		acct:  account.New(store, env, opts...),
		local: storage.New(filepath.Join(cfg.DataDir, storage.FileName), env),
		scan:  bufio.NewScanner(in),
		out:   out,
		log:   log,
	}
}

// Enroll creates a new recovery phrase for this device and prints it once.
func (a *App) Enroll(ctx context.Context) error {
	p, salt, keys, err := a.acct.Enroll()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Your recovery phrase. Write it down, it is shown only once:")
	fmt.Fprintf(a.out, "\n    %s\n\n", p.String())
	fmt.Fprintf(a.out, "Recovery salt (needed to recover on another device): %s\n", base64.StdEncoding.EncodeToString(salt))
	fmt.Fprintf(a.out, "Account: %s…\n", keys.AccountID[:8])
	return nil
}

// Recover enrolls this device with an existing phrase. saltB64 is the
// recovery salt printed at enrollment; empty means a legacy account.
func (a *App) Recover(ctx context.Context, saltB64 string) error {
	var salt []byte
	if saltB64 != "" {
		var err error
		salt, err = base64.StdEncoding.DecodeString(strings.TrimSpace(saltB64))
		if err != nil {
			return fmt.Errorf("invalid recovery salt: %w", err)
		}
	}
	text, err := a.readPhrase()
	if err != nil {
		return err
	}
	keys, err := a.acct.Recover(text, salt)
	if err != nil {
		return err
	}
	if err := a.local.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Device recovered for account %s…\n", keys.AccountID[:8])
	return nil
}

// Unlock verifies the phrase against this device's credentials.
func (a *App) Unlock(ctx context.Context) error {
	keys, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Unlocked account %s…\n", keys.AccountID[:8])
	return nil
}

// Challenge asks for two random words and the PIN.
func (a *App) Challenge(ctx context.Context) error {
	if !a.acct.Enrolled() {
		return account.ErrNotEnrolled
	}
	pos, err := a.acct.Credentials().SelectChallengePositions()
	if err != nil {
		return err
	}
	w1 := a.prompt(fmt.Sprintf("Word #%d: ", pos[0]+1))
	w2 := a.prompt(fmt.Sprintf("Word #%d: ", pos[1]+1))
	pin := a.prompt("PIN: ")
	if !a.acct.Credentials().VerifyChallenge(pos[0], w1, pos[1], w2, pin) {
		return account.ErrWrongPhrase
	}
	fmt.Fprintln(a.out, "Challenge passed.")
	return nil
}

// Backup seals the local entries and uploads them.
func (a *App) Backup(ctx context.Context) error {
	keys, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	if err := a.local.Load(); err != nil {
		return err
	}
	p, err := a.pipeline(keys)
	if err != nil {
		return err
	}
	entries, insights := a.local.Snapshot()
	if err := p.Backup(ctx, entries, insights); err != nil {
		return userError(err)
	}
	fmt.Fprintf(a.out, "Backed up %d entries.\n", len(a.local.List()))
	return nil
}

// Restore downloads the backup and merges it into the local entries.
func (a *App) Restore(ctx context.Context) error {
	keys, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	if err := a.local.Load(); err != nil {
		return err
	}
	p, err := a.pipeline(keys)
	if err != nil {
		return err
	}
	snap, err := p.Restore(ctx)
	if err != nil {
		return userError(err)
	}
	stats := a.local.Merge(snap.Entries, snap.Insights)
	if err := a.local.Save(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Restored backup from %s (%s): %d added, %d updated, %d kept local.\n",
		snap.ExportedAt.Format(time.RFC3339), snap.Platform, stats.Added, stats.Updated, stats.Skipped)
	return nil
}

// Status prints the local state, and the remote backup when remote is set.
func (a *App) Status(ctx context.Context, remote bool) error {
	enrolled := a.acct.Enrolled()
	fmt.Fprintf(a.out, "Enrolled: %t\n", enrolled)
	if enrolled {
		if err := a.env.Initialize(ctx); err != nil {
			return err
		}
		if err := a.local.Load(); err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		fmt.Fprintf(a.out, "Vault: %s\n", a.env.State())
		fmt.Fprintf(a.out, "Entries: %d\n", len(a.local.List()))
	}
	if !remote || !enrolled {
		return nil
	}

	keys, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	p, err := a.pipeline(keys)
	if err != nil {
		return err
	}
	if info := p.BackupInfo(ctx); info != nil && info.Exists {
		fmt.Fprintf(a.out, "Remote backup: %s\n", info.LastModified.Format(time.RFC3339))
	} else {
		fmt.Fprintln(a.out, "Remote backup: none")
	}
	return nil
}

// DeleteBackup removes the remote backup.
func (a *App) DeleteBackup(ctx context.Context, confirmed bool) error {
	if !confirmed && !a.confirm("Delete the remote backup?") {
		return ErrAborted
	}
	keys, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	p, err := a.pipeline(keys)
	if err != nil {
		return err
	}
	if !p.DeleteBackup(ctx) {
		return errors.New("could not delete the remote backup")
	}
	fmt.Fprintln(a.out, "Remote backup deleted.")
	return nil
}

// Reset wipes the master key, credentials and local entries.
func (a *App) Reset(ctx context.Context, confirmed bool) error {
	if !confirmed && !a.confirm("Erase all local data of this device?") {
		return ErrAborted
	}
	if err := errors.Join(a.acct.Reset(), a.local.Clear()); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Device reset.")
	return nil
}

// Shell runs the interactive loop over the local entries.
func (a *App) Shell(ctx context.Context) error {
	if !a.acct.Enrolled() {
		return account.ErrNotEnrolled
	}
	if err := a.env.Initialize(ctx); err != nil {
		return err
	}
	if err := a.local.Load(); err != nil {
		return err
	}

	for {
		fmt.Fprint(a.out, "cortex> ")
		if !a.scan.Scan() {
			return nil
		}
		args := strings.Fields(a.scan.Text())
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Fprintln(a.out, "Available commands: help, add, list, get <id>, delete <id>, edit <id>, backup, restore, exit")
		case "add":
			e := storage.PromptForEntry(a.scan, a.out)
			a.local.Add(e)
			a.save()
		case "list":
			for _, e := range a.local.List() {
				fmt.Fprintf(a.out, "%s  %s  %s\n", e.ID, e.UpdatedAt.Format(time.DateOnly), e.Title)
			}
		case "get":
			if len(args) < 2 {
				fmt.Fprintln(a.out, "Usage: get <id>")
				continue
			}
			e := a.local.Get(args[1])
			if e == nil {
				fmt.Fprintln(a.out, "Entry not found")
				continue
			}
			b, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintln(a.out, string(b))
		case "delete":
			if len(args) < 2 {
				fmt.Fprintln(a.out, "Usage: delete <id>")
				continue
			}
			if a.local.Delete(args[1]) {
				a.save()
				fmt.Fprintln(a.out, "Entry deleted")
			} else {
				fmt.Fprintln(a.out, "Entry not found")
			}
		case "edit":
			if len(args) < 2 {
				fmt.Fprintln(a.out, "Usage: edit <id>")
				continue
			}
			title, content, tags := storage.PromptEditEntry(a.scan, a.out)
			if a.local.Edit(args[1], title, content, tags) {
				a.save()
				fmt.Fprintln(a.out, "Entry updated")
			} else {
				fmt.Fprintln(a.out, "Entry not found")
			}
		case "backup":
			if err := a.Backup(ctx); err != nil {
				fmt.Fprintln(a.out, err)
			}
		case "restore":
			if err := a.Restore(ctx); err != nil {
				fmt.Fprintln(a.out, err)
			}
		case "exit":
			fmt.Fprintln(a.out, "Bye")
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func (a *App) save() {
	if err := a.local.Save(); err != nil {
		fmt.Fprintf(a.out, "Failed to save: %v\n", err)
	}
}

func (a *App) unlock(ctx context.Context) (models.DerivedKeys, error) {
	text, err := a.readPhrase()
	if err != nil {
		return models.DerivedKeys{}, err
	}
	return a.acct.Unlock(ctx, text)
}

func (a *App) pipeline(keys models.DerivedKeys) (*vaultsync.Pipeline, error) {
	var opts []transport.Option
	if a.cfg.CAFile != "" {
		opts = append(opts, transport.WithRootCA(a.cfg.CAFile))
	}
	t, err := transport.New(a.cfg.ServerURL, keys.AccountID, keys.AuthToken, opts...)
	if err != nil {
		return nil, err
	}
	return vaultsync.New(t, a.env, a.log), nil
}

func (a *App) readPhrase() (string, error) {
	if v := strings.TrimSpace(a.cfg.Getenv(PhraseEnv)); v != "" {
		return v, nil
	}
	text := a.prompt("Recovery phrase: ")
	if text == "" {
		return "", errors.New("no recovery phrase given")
	}
	return text, nil
}

func (a *App) prompt(label string) string {
	fmt.Fprint(a.out, label)
	if !a.scan.Scan() {
		return ""
	}
	return strings.TrimSpace(a.scan.Text())
}

func (a *App) confirm(question string) bool {
	switch strings.ToLower(a.prompt(question + " [y/N] ")) {
	case "y", "yes":
		return true
	}
	return false
}

// userError keeps err matchable while showing the friendly message.
func userError(err error) error {
	return fmt.Errorf("%s: %w", vaultsync.UserMessage(err), err)
}
