package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"auto_xhs_publisher/config"
	"auto_xhs_publisher/generator"
	"auto_xhs_publisher/logger"
	"auto_xhs_publisher/media"
	"auto_xhs_publisher/pipeline"
	"auto_xhs_publisher/publisher"
	"auto_xhs_publisher/runlog"
	"auto_xhs_publisher/scheduler"
	"auto_xhs_publisher/search"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional, env vars apply on top)")
	mode := flag.String("mode", "", "content mode: general | paper_analysis | zhihu")
	interval := flag.Int("interval", 0, "interval in hours between runs")
	dailyAt := flag.String("at", "", "daily run time (e.g. 10:30), overrides interval")
	runNow := flag.Bool("run-now", false, "run immediately on start")
	once := flag.Bool("once", false, "execute a single run and exit")
	mockLLM := flag.Bool("mock-llm", false, "use the built-in mock model, no external LLM calls")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// CLI 参数优先于环境变量和配置文件。
	if *mode != "" {
		cfg.Schedule.Mode = *mode
	}
	if *interval > 0 {
		cfg.Schedule.IntervalHours = *interval
	}
	if *dailyAt != "" {
		cfg.Schedule.DailyAt = *dailyAt
	}
	if *runNow {
		cfg.Schedule.RunOnStart = true
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *mockLLM {
		// 本地调试时不需要真实密钥。
		cfg.LLM.APIKey = "mock"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	orch, err := buildPipeline(cfg, log, *mockLLM)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *once {
		log.Info("single run requested", "mode", cfg.Schedule.Mode, "domain", cfg.Schedule.Domain)
		res, err := orch.Run(context.Background(), cfg.Schedule.Mode, cfg.Schedule.Domain)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(res.Run.ID)
		return
	}

	sched, err := scheduler.New(cfg.Schedule, runnerAdapter{orch}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sched.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	sched.Stop()
	log.Info("scheduler stopped")
}

// runnerAdapter narrows the orchestrator to the scheduler's Runner.
type runnerAdapter struct {
	orch *pipeline.Orchestrator
}

func (r runnerAdapter) Run(ctx context.Context, mode, domain string) error {
	_, err := r.orch.Run(ctx, mode, domain)
	return err
}

func buildPipeline(cfg *config.Config, log *logger.Logger, mockLLM bool) (*pipeline.Orchestrator, error) {
	var llm generator.LLMClient
	if mockLLM {
		llm = generator.MockLLM{}
	} else {
		client, err := generator.NewOpenAILLM(cfg.LLM)
		if err != nil {
			return nil, err
		}
		llm = client
	}

	searchClient, err := search.NewHTTPClient(cfg.Search, nil)
	if err != nil {
		return nil, err
	}

	composer, err := generator.NewComposer(llm, log.With("component", "composer"), cfg.Retry.MaxAttempts)
	if err != nil {
		return nil, err
	}

	summarizer, err := generator.NewSummarizer(llm, log.With("component", "summarizer"))
	if err != nil {
		return nil, err
	}

	validator := media.NewValidator(nil, log.With("component", "validator"))
	selector, err := media.NewSelector(searchClient, validator, cfg.Media.Workers, log.With("component", "selector"))
	if err != nil {
		return nil, err
	}

	mcp, err := publisher.NewMCPClient(cfg.Publish.MCPURL, &http.Client{Timeout: cfg.Publish.Timeout()}, log.With("component", "mcp"))
	if err != nil {
		return nil, err
	}
	pub, err := publisher.New(mcp, log.With("component", "publisher"))
	if err != nil {
		return nil, err
	}

	archive, err := runlog.New(cfg.RunLog)
	if err != nil {
		return nil, err
	}

	return pipeline.NewOrchestrator(
		searchClient, summarizer, composer, selector, pub, archive,
		cfg.Retry, cfg.Media, log.With("component", "orchestrator"),
	)
}
