package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autobot/fleet/pkg/api"
	"github.com/autobot/fleet/pkg/broadcast"
	"github.com/autobot/fleet/pkg/cache"
	"github.com/autobot/fleet/pkg/config"
	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/orchestrator"
	"github.com/autobot/fleet/pkg/playbook"
	"github.com/autobot/fleet/pkg/registry"
	"github.com/autobot/fleet/pkg/scheduler"
	"github.com/autobot/fleet/pkg/sshexec"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/vault"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet - control plane for the autobot node fleet",
	Long: `Fleet manages a heterogeneous cluster of worker nodes: it registers
nodes and their roles, pulls source code from the code-source node into a
local cache, distributes role-specific subtrees to targets over rsync,
executes syncs on cron schedules, stores encrypted node credentials with
single-use access tokens, and supervises Ansible playbook runs.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Fleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(credentialCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the fleet control plane",
	Long: `Run the control plane: REST API, schedule executor, credential
vault, and playbook runner. Configuration comes from the environment
(ENCRYPTION_KEY is required).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()

		key, err := cfg.DecodeEncryptionKey()
		if err != nil {
			return err
		}
		v, err := vault.New(store, key)
		if err != nil {
			return fmt.Errorf("failed to initialize vault: %v", err)
		}

		reg := registry.New(store)
		runner := sshexec.NewRunner(cfg.SSHKeyPath, int64(cfg.MaxConcurrentSSH), v.SSHPassword)

		codeCache := cache.New(cfg.CacheRoot, cfg.SSHKeyPath, store, runner)
		codeCache.OnDrift(func(head string) {
			if marked, err := reg.MarkOutdated(head); err == nil && marked > 0 {
				log.Info(fmt.Sprintf("marked %d node(s) outdated for head %s", marked, head))
			}
			reg.RefreshMetrics()
		})

		orch := orchestrator.New(reg, codeCache, runner, cfg.SSHKeyPath)
		sched := scheduler.New(store, orch)
		playbooks := playbook.NewRunner(cfg.AnsibleDir, cfg.InventoryPath, store)
		broadcaster := broadcast.New()

		stopCh := make(chan struct{})
		v.StartTokenJanitor(stopCh)
		sched.Start()
		reg.RefreshMetrics()

		apiServer := api.NewServer(reg, v, store, orch, playbooks, broadcaster)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(cfg.ListenAddr); err != nil {
				errCh <- fmt.Errorf("api server error: %v", err)
			}
		}()

		log.Info("control plane running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			log.Error(err.Error())
		}

		close(stopCh)
		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down api server: %v", err)
		}
		return nil
	},
}
