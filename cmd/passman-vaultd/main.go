// Command passman-vaultd is the process entrypoint: it opens the
// local credential vault, starts the cross-process file watcher, and
// wires up the policy engine and proxy pipeline. How a caller actually
// reaches the vault's operations — stdio JSON-RPC, a GUI's IPC
// bridge, or direct library embedding — is left to whatever wraps
// this process; this binary's own job ends at having a ready,
// watched, policy-checked Vault sitting behind the returned Pipeline.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/passman/vault/internal/policy"
	"github.com/passman/vault/internal/proxy"
	"github.com/passman/vault/internal/vault"
)

const version = "0.1.0"

var log = logrus.WithField(trace.Component, "vaultd")

func main() {
	var (
		vaultPath  = flag.String("vault-path", "", "path to the vault file (default: $HOME/.passman/vault.json)")
		auditPath  = flag.String("audit-path", "", "path to the audit log (default: $HOME/.passman/audit.jsonl)")
		debug      = flag.Bool("debug", false, "enable debug logging")
		showVer    = flag.Bool("version", false, "print version and exit")
		autoUnlock = flag.Bool("auto-unlock", false, "unlock the vault at startup using $PASSMAN_VAULT_PASSWORD")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("passman-vaultd %s\n", version)
		return
	}

	initLogger(*debug)

	v := openVault(*vaultPath, *auditPath)
	if *autoUnlock {
		unlockFromEnv(v)
	}

	watcher, err := vault.Watch(v)
	if err != nil {
		log.WithError(err).Fatal("failed to start vault watcher")
	}
	defer watcher.Stop()

	engine := policy.NewEngine()
	_ = proxy.NewPipeline(v, engine)

	log.WithField("vault_path", v.VaultPath()).Info("passman-vaultd ready")

	waitForShutdown()
	v.Lock()
	log.Info("passman-vaultd shut down")
}

// initLogger mirrors the teacher's "daemon" logging purpose: a
// timestamped text formatter on stderr, level raised by --debug.
func initLogger(debug bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func openVault(vaultPath, auditPath string) *vault.Vault {
	if vaultPath == "" {
		vaultPath = vault.DefaultVaultPath()
	}
	if auditPath == "" {
		auditPath = vault.DefaultAuditPath()
	}
	return vault.New(vaultPath, auditPath)
}

// unlockFromEnv supports running the daemon unattended (a systemd
// unit, a container) by reading the master password from the
// environment rather than requiring an interactive prompt.
func unlockFromEnv(v *vault.Vault) {
	password := os.Getenv("PASSMAN_VAULT_PASSWORD")
	if password == "" {
		log.Warn("-auto-unlock set but PASSMAN_VAULT_PASSWORD is empty; vault stays locked")
		return
	}
	if !v.Exists() {
		log.Warn("-auto-unlock set but no vault file exists yet; run vault creation first")
		return
	}
	if _, err := v.Unlock(password); err != nil {
		log.WithError(err).Fatal("failed to unlock vault at startup")
	}
	log.Info("vault unlocked at startup")
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
