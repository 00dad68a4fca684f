// =============================================================================
// alterflow 主入口
// =============================================================================
// 命令行入口点：摄入知识库文档、发起审议运行
//
// 使用方法:
//
//	alterflow ask "How do we scale the database?"    # 发起一次审议
//	alterflow ask --retrieval "..."                  # 启用知识库检索
//	alterflow ingest --id runbook docs/runbook.md    # 摄入文档
//	alterflow version                                # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow"
	"github.com/BaSui01/alterflow/config"
	"github.com/BaSui01/alterflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🗣️ ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	useRetrieval := fs.Bool("retrieval", false, "Augment prompts with knowledge base context")
	showTranscript := fs.Bool("transcript", false, "Print the full per-phase transcript")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: alterflow ask [options] <question>")
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	app := buildApp(*configPath)
	defer app.Close(context.Background())

	// Ctrl-C 中止运行，部分 Transcript 照常打印
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcript, err := app.Ask(ctx, question, *useRetrieval)
	if err != nil {
		app.Logger.Warn("run ended early",
			zap.String("error_code", string(types.GetErrorCode(err))),
			zap.Error(err))
	}
	if transcript == nil {
		os.Exit(1)
	}

	printTranscript(transcript, *showTranscript)
	if err != nil {
		os.Exit(1)
	}
}

func printTranscript(t *types.Transcript, full bool) {
	fmt.Printf("Run %s  state=%s urgency=%s teams=%d\n",
		t.RunID, t.State, t.Urgency, len(t.AssignedTeams))
	if t.Incomplete {
		fmt.Println("(incomplete: the run was cut short, partial results below)")
	}

	for _, record := range t.Phases {
		fmt.Printf("\n[%s] %d/%d succeeded (%.1fs)\n",
			record.Phase, record.SuccessCount(), len(record.Contributions),
			record.Duration.Seconds())
		for _, c := range record.Contributions {
			switch c.Status {
			case types.ContributionOK:
				if full {
					fmt.Printf("  %s (%s):\n    %s\n", c.AlterName, c.Team,
						strings.ReplaceAll(c.Output, "\n", "\n    "))
				} else {
					fmt.Printf("  %s (%s): ok\n", c.AlterName, c.Team)
				}
			default:
				fmt.Printf("  %s (%s): %s [%s]\n", c.AlterName, c.Team, c.Status, c.ErrorCode)
			}
		}
	}

	if t.FinalDecision != "" {
		fmt.Printf("\n=== Decision ===\n%s\n", t.FinalDecision)
	} else if t.SynthesisFailed {
		fmt.Println("\n(decision synthesis failed, see transcript above)")
	}
}

// =============================================================================
// 📥 ingest 命令
// =============================================================================

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	docID := fs.String("id", "", "Document ID (defaults to the file name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: alterflow ingest [options] <file>...")
		os.Exit(1)
	}

	app := buildApp(*configPath)
	defer app.Close(context.Background())
	ctx := context.Background()

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			os.Exit(1)
		}

		id := *docID
		if id == "" || fs.NArg() > 1 {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		chunks, err := app.Ingest(ctx, id, string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to ingest %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %s as %q (%d chunks)\n", path, id, chunks)
	}
}

// =============================================================================
// 🔧 装配
// =============================================================================

func buildApp(configPath string) *alterflow.App {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := alterflow.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start alterflow: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("alterflow ready",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))
	return app
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("alterflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`alterflow - multi-alter deliberation orchestrator

Usage:
  alterflow <command> [options]

Commands:
  ask       Run a deliberation for a question
  ingest    Ingest documents into the knowledge base
  version   Show version information
  help      Show this help message

Options for 'ask':
  --config <path>   Path to configuration file (YAML)
  --retrieval       Augment prompts with knowledge base context
  --transcript      Print full per-alter outputs, not just statuses

Options for 'ingest':
  --config <path>   Path to configuration file (YAML)
  --id <id>         Document ID (defaults to the file name)

Examples:
  alterflow ask "How do we scale the database?"
  alterflow ask --retrieval --transcript "How do we handle the outage?"
  alterflow ingest --id runbook docs/runbook.md
  alterflow version`)
}
