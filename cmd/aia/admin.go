package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/aiarch/aia/internal/adapter/postgres"
	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/service"
)

// runAdmin dispatches admin subcommands. All of them work on the Postgres
// store named in the config.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp(os.Stderr)
		return nil
	}

	switch args[0] {
	case "migrate-version":
		return runAdminMigrateVersion(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "list-agents":
		return runAdminListAgents(args[1:])
	case "balances":
		return runAdminBalances(args[1:])
	case "seed-dkg":
		return runAdminSeedDKG(args[1:])
	default:
		printAdminHelp(os.Stderr)
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: aia admin <command> [options]

Commands:
  migrate-version  Print the applied schema version
  rollback         Roll back schema migrations
  list-agents      List registered agents
  balances         List token balances, pools included
  seed-dkg         Register knowledge graph nodes from a YAML file
  help             Show this help message

Examples:
  aia admin rollback --steps 1
  aia admin seed-dkg --file graph.yaml
`)
}

type adminDeps struct {
	store *postgres.Store
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Driver != "postgres" {
		return nil, nil, errors.New("admin commands need store.driver=postgres")
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return &adminDeps{store: postgres.NewStore(pool)}, pool.Close, nil
}

func runAdminMigrateVersion(args []string) error {
	fs := flag.NewFlagSet("migrate-version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s), now at version %d\n", *steps, v)
	return nil
}

func runAdminListAgents(args []string) error {
	fs := flag.NewFlagSet("list-agents", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	agents, err := deps.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tRANK\tSKILLS\tSPRINTS")
	for i := range agents {
		a := &agents[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			a.ID, a.Name, a.Status, a.Rank, len(a.Capabilities), len(a.PerformanceHistory))
	}
	return w.Flush()
}

func runAdminBalances(args []string) error {
	fs := flag.NewFlagSet("balances", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	balances, err := deps.store.ListBalances(ctx)
	if err != nil {
		return fmt.Errorf("list balances: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "OWNER\tUTILITY\tGOVERNANCE\tSTAKED\t")
	for i := range balances {
		b := &balances[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", b.Owner, b.Utility, b.Governance, b.Staked)
	}
	return w.Flush()
}

func runAdminSeedDKG(args []string) error {
	fs := flag.NewFlagSet("seed-dkg", flag.ContinueOnError)
	file := fs.String("file", "", "YAML file holding a list of nodes (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	nodes, err := readNodes(*file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewKnowledgeService(deps.store, nil)
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	added, skipped := 0, 0
	for _, n := range nodes {
		if _, err := svc.Node(ctx, n.ID); err == nil {
			skipped++
			continue
		}
		if _, err := svc.RegisterNode(ctx, n); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		added++
	}
	fmt.Fprintf(os.Stderr, "Registered %d node(s), %d already present\n", added, skipped)
	return nil
}

// readNodes parses a YAML node list. Nodes must be listed after every node
// their edges point at.
func readNodes(path string) ([]knowledge.Node, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var nodes []knowledge.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return nodes, nil
}
