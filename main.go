// ABOUTME: Entry point for the dealflow MCP server and CLI
// ABOUTME: Routes to MCP server or CLI commands based on arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/dealflow/cli"
	"github.com/harperreed/dealflow/config"
	"github.com/harperreed/dealflow/db"
	"github.com/harperreed/dealflow/logger"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/dealflow/dealflow.db)")
	configPath := flag.String("config", "", "Config file (default: ~/.config/dealflow/config.yaml)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("dealflow version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *initOnly {
		log.Printf("Database initialized at %s", cfg.DBPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, database, cfg, zlog)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "mcp":
		if err := cli.MCPCommand(ctx, app, version); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	case "update":
		if err := cli.UpdateCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "gate":
		if err := cli.GateCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "score":
		if err := cli.ScoreCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "chat":
		if err := cli.ChatCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "dashboard":
		if err := cli.DashboardCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "graph":
		if err := cli.GraphCommand(ctx, app, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "opp":
		if len(commandArgs) == 0 {
			fmt.Println("Error: opp requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		oppCommand := commandArgs[0]
		oppArgs := commandArgs[1:]

		switch oppCommand {
		case "add":
			err = cli.AddOpportunityCommand(ctx, app, oppArgs)
		case "list":
			err = cli.ListOpportunitiesCommand(ctx, app, oppArgs)
		case "show":
			err = cli.ShowOpportunityCommand(ctx, app, oppArgs)
		case "delete":
			err = cli.DeleteOpportunityCommand(ctx, app, oppArgs)
		default:
			fmt.Printf("Unknown opp command: %s\n\n", oppCommand)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`dealflow v%s - conversational opportunity updates with stage gates

USAGE:
  dealflow [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/dealflow/dealflow.db)
  --config <path>        Config file, YAML or JSON (default: ~/.config/dealflow/config.yaml)
  --init                 Initialize database and exit

COMMANDS:
  mcp                    Start MCP server for Claude Desktop
  update                 Turn a rep's message into CRM updates
  chat                   Interactive conversation with history
  gate                   Check a stage transition without writing
  score                  Rank prospects against target criteria
  dashboard              Pipeline overview with blocked and stale deals
  graph                  Stage gate graph as Graphviz DOT
  opp                    Opportunity management commands

UPDATE:
  dealflow update [flags] <text>   Text may also be piped on stdin
    --dry-run                        Plan the update without writing
    --json                           Print the raw result as JSON

CHAT:
  dealflow chat [--dry-run]        Follow-up answers resolve against earlier turns

GRAPH:
  dealflow graph [flags]
    --output <file>                  Output file (default: stdout)
    --counts                         Annotate stages with counts (default: true)

GATE:
  dealflow gate [flags] [opportunity]
    --to <stage>                     Target stage (required)
    --from <stage>                   Current stage when no opportunity is given
    --set <field=value>              Assume a field value (repeatable)

SCORE:
  dealflow score --file <path>     YAML or JSON candidates (and optional criteria)
    --limit <n>                      Only show the top N
    --breakdown                      Show per-factor points

OPPORTUNITY COMMANDS:
  dealflow opp add                 Add an opportunity
    --name <name>                    Opportunity name (required)
    --account <account>              Account name
    --stage <stage>                  Initial stage
    --set <field=value>              Initial field value (repeatable)

  dealflow opp list                List opportunities
    --query <text>                   Search by name or account
    --stage <stage>                  Filter by stage
    --limit <n>                      Max results (default: 50)

  dealflow opp show <id|name>      Show fields and change history
  dealflow opp delete <id|name>    Delete an opportunity

ENVIRONMENT:
  ANTHROPIC_API_KEY / GEMINI_API_KEY   LLM credentials (also read from .env)
  DEALFLOW_LLM_PROVIDER                anthropic or gemini
  DEALFLOW_LLM_MODEL                   Model override
  DEALFLOW_LLM_RPS                     Max LLM calls per second
  DEALFLOW_DB_PATH                     Database path
  DEALFLOW_LOG_MODE                    production, development or quiet

EXAMPLES:
  # Start MCP server for Claude Desktop
  dealflow mcp

  # Log a call
  dealflow update "Acme Renewal: budget confirmed at 120k, send proposal Friday"

  # What does Acme still need before Proposal?
  dealflow gate --to Proposal "Acme Renewal"

`, version)
}
