package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ksofianos/cadre/internal/agent"
	"github.com/ksofianos/cadre/internal/config"
	"github.com/ksofianos/cadre/internal/events"
	"github.com/ksofianos/cadre/internal/llm"
	"github.com/ksofianos/cadre/internal/memory"
	"github.com/ksofianos/cadre/internal/orchestrator"
	"github.com/ksofianos/cadre/internal/scheduler"
	"github.com/ksofianos/cadre/internal/store"
	"github.com/ksofianos/cadre/internal/vault"
	"github.com/ksofianos/cadre/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("cadre %s\n", version)
	case "serve":
		err = runServe()
	case "run":
		err = runTask(os.Args[2:])
	case "backup":
		err = runBackup(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	case "vault":
		err = runVault(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: cadre <command>

Commands:
  serve      Start the orchestration service
  run        Execute a task from the command line
  backup     Archive the data directory to a .tar.zst file
  restore    Restore a backup archive into the data directory
  vault      Manage encrypted secrets
  version    Print version
`)
}

// buildAgents constructs the configured agents and registers them with
// the orchestrator.
func buildAgents(cfg *config.Config, orch *orchestrator.Orchestrator) error {
	var provider llm.Provider
	if cfg.Provider.APIKey != "" {
		p, err := llm.New(cfg.Provider)
		if err != nil {
			return fmt.Errorf("init provider: %w", err)
		}
		provider = p
	} else {
		slog.Warn("no provider api key set, agents run with canned reasoning")
	}

	var mem memory.Backend
	if cfg.Defaults.MemoryEnabled {
		m, err := memory.NewVector(cfg.Memory, nil)
		if err != nil {
			return fmt.Errorf("init memory: %w", err)
		}
		mem = m
	}

	for name, def := range cfg.Agents {
		a, err := agent.FromDefinition(name, def, cfg.Defaults, provider, mem)
		if err != nil {
			return err
		}
		orch.AddAgent(a)
	}
	return nil
}

// resolveSecrets replaces a vault:<name> provider key reference with the
// decrypted secret value.
func resolveSecrets(cfg *config.Config, v *vault.Vault, db *store.Store) error {
	name, ok := strings.CutPrefix(cfg.Provider.APIKey, "vault:")
	if !ok {
		return nil
	}
	if v == nil {
		return fmt.Errorf("provider api key references vault secret %q but no vault passphrase is set", name)
	}
	value, err := v.Reveal(db, name)
	if err != nil {
		return fmt.Errorf("resolve provider api key: %w", err)
	}
	cfg.Provider.APIKey = string(value)
	return nil
}

// syncAgentRoster mirrors the configured agents into the store for
// inspection via the API.
func syncAgentRoster(cfg *config.Config, db *store.Store) error {
	rows := make([]store.AgentRow, 0, len(cfg.Agents))
	for name, def := range cfg.Agents {
		memEnabled := cfg.Defaults.MemoryEnabled
		if def.Memory != nil {
			memEnabled = *def.Memory
		}
		rows = append(rows, store.AgentRow{
			Name:          name,
			Role:          def.Role,
			Goal:          def.Goal,
			Model:         def.Model,
			Tools:         def.Tools,
			MemoryEnabled: memEnabled,
		})
	}
	return db.SyncAgents(rows)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting cadre", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	bus, err := events.NewBus(cfg.Events)
	if err != nil {
		return fmt.Errorf("init events: %w", err)
	}
	defer bus.Close()
	slog.Info("event bus started", "port", bus.Port())

	ev, err := events.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init events client: %w", err)
	}
	defer ev.Close()

	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
	}
	if err := resolveSecrets(cfg, v, db); err != nil {
		return err
	}

	orch := orchestrator.New(db, ev)
	if err := buildAgents(cfg, orch); err != nil {
		return fmt.Errorf("build agents: %w", err)
	}
	slog.Info("agents registered", "count", len(orch.AgentNames()))

	if err := syncAgentRoster(cfg, db); err != nil {
		slog.Warn("agent roster sync failed", "error", err)
	}

	sched := scheduler.New(db, orch, ev, cfg.Scheduler, cfg.Defaults)
	go sched.Start(ctx)

	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, orch, v, cfg.Web, cfg.Defaults, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

func runTask(args []string) error {
	mode := string(orchestrator.ModeSequential)
	var agentNames []string
	var timeoutSec int

	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-mode":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -mode")
			}
			i++
			mode = args[i]
		case "-agents":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -agents")
			}
			i++
			agentNames = strings.Split(args[i], ",")
		case "-timeout":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -timeout")
			}
			i++
			if _, err := fmt.Sscanf(args[i], "%d", &timeoutSec); err != nil {
				return fmt.Errorf("invalid -timeout value: %s", args[i])
			}
		default:
			rest = append(rest, args[i])
		}
	}

	if len(rest) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: cadre run [-mode sequential|parallel|conditional] [-agents a,b] [-timeout seconds] <task description>\n")
		return fmt.Errorf("missing task description")
	}
	description := strings.Join(rest, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if strings.HasPrefix(cfg.Provider.APIKey, "vault:") {
		db, err := store.New(cfg.Store)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		var v *vault.Vault
		if cfg.Vault.Passphrase != "" {
			v = vault.New(cfg.Vault.Passphrase)
		}
		err = resolveSecrets(cfg, v, db)
		db.Close()
		if err != nil {
			return err
		}
	}

	orch := orchestrator.New(nil, nil)
	if err := buildAgents(cfg, orch); err != nil {
		return fmt.Errorf("build agents: %w", err)
	}

	if len(agentNames) == 0 {
		agentNames = orch.AgentNames()
	}
	if len(agentNames) == 0 {
		return fmt.Errorf("no agents configured")
	}

	agents := make([]orchestrator.Executor, 0, len(agentNames))
	for _, name := range agentNames {
		ex, ok := orch.Agent(name)
		if !ok {
			return fmt.Errorf("agent not configured: %s", name)
		}
		agents = append(agents, ex)
	}

	timeout := cfg.Defaults.TaskTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}

	env := orch.ExecuteTask(context.Background(), &orchestrator.Task{
		Description: description,
		Agents:      agents,
		Mode:        orchestrator.Mode(mode),
		Timeout:     timeout,
	})

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !env.Success {
		return fmt.Errorf("task failed: %s", env.Error)
	}
	return nil
}
