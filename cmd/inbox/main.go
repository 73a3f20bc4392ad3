package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/mattjoyce/inbox/internal/api"
	"github.com/mattjoyce/inbox/internal/config"
	"github.com/mattjoyce/inbox/internal/doctor"
	"github.com/mattjoyce/inbox/internal/log"
	"github.com/mattjoyce/inbox/internal/message"
	"github.com/mattjoyce/inbox/internal/metrics"
	"github.com/mattjoyce/inbox/internal/storage"
	"github.com/mattjoyce/inbox/internal/tui/watch"
	"github.com/mattjoyce/inbox/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultAPIURL = "http://127.0.0.1:8080"

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve", "start":
		return runServe(args)
	case "check", "doctor":
		return runCheck(args)
	case "sign":
		return runSign(args, os.Stdin)
	case "stats":
		return runStats(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `inbox - signed webhook message ingestion service

Usage:
  inbox <command> [flags]

Commands:
  serve     Run the HTTP service in the foreground (alias: start)
  check     Validate configuration without starting (alias: doctor)
  sign      Print the signature of a body for the X-Signature header
  stats     Print corpus statistics from a running service
  watch     Live terminal dashboard for a running service
  version   Show version information
  help      Show this help message

Configuration is read from --config, $INBOX_CONFIG, ./inbox.yaml or
/etc/inbox/config.yaml, in that order. WEBHOOK_SECRET and INBOX_* variables
override the file; a .env in the working directory is loaded first.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.Name)
	logger := log.WithComponent("main")
	logger.Info("inbox starting",
		"version", version,
		"config", cfg.SourcePath,
		"config_hash", cfg.SourceHash,
		"store", cfg.Store.Driver,
	)

	maxBody, err := cfg.MaxBodyBytes()
	if err != nil {
		logger.Error("invalid max body size", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()
	logger.Info("store opened", "driver", cfg.Store.Driver)

	reg := metrics.New(webhook.Results...)
	ingest := webhook.NewService(store, []byte(cfg.Webhook.Secret), reg, log.WithComponent("webhook"))
	server := api.New(
		api.Config{
			Listen:          cfg.HTTP.Listen,
			SignatureHeader: cfg.Webhook.SignatureHeader,
			MaxBodySize:     maxBody,
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
		},
		ingest,
		message.NewQueryService(store, cfg.Query.DefaultLimit, cfg.Query.MaxLimit),
		message.NewStatsService(store),
		store,
		reg,
		log.WithComponent("api"),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("inbox running (press Ctrl+C to stop)", "listen", cfg.HTTP.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		// Wait for in-flight requests to drain before closing the store.
		<-errCh
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
		return 1
	}

	logger.Info("inbox stopped")
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Read(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		if cfg.SourcePath != "" {
			fmt.Printf("Config: %s (blake3 %s)\n", cfg.SourcePath, shortenCommit(cfg.SourceHash))
		} else {
			fmt.Println("Config: defaults and environment only")
		}
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

// runSign prints the lowercase hex HMAC-SHA256 of a body, read from --file or
// stdin, so deliveries can be crafted with curl.
func runSign(args []string, stdin io.Reader) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret (or WEBHOOK_SECRET)")
	file := fs.String("file", "", "Body file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: secret required. Use --secret or WEBHOOK_SECRET.")
		return 1
	}

	var (
		body []byte
		err  error
	)
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = io.ReadAll(stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}

	fmt.Println(webhook.Sign(body, []byte(*secret)))
	return 0
}

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	apiURL := fs.String("api-url", envOr("INBOX_API_URL", defaultAPIURL), "Service base URL")
	jsonOut := fs.Bool("json", false, "Output raw JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := api.NewClient(*apiURL, 0).Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch stats: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render stats JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	renderStats(os.Stdout, st)
	return 0
}

func renderStats(w io.Writer, st api.StatsResponse) {
	first, last := "-", "-"
	if st.FirstMessageTS != nil {
		first = *st.FirstMessageTS
	}
	if st.LastMessageTS != nil {
		last = *st.LastMessageTS
	}
	fmt.Fprintf(w, "Messages: %d\nSenders:  %d\nFirst:    %s\nLast:     %s\n\n",
		st.TotalMessages, st.SendersCount, first, last)

	if len(st.MessagesPerSender) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"From", "Count"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, s := range st.MessagesPerSender {
		table.Append([]string{s.From, strconv.Itoa(s.Count)})
	}
	table.Render()
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", envOr("INBOX_API_URL", defaultAPIURL), "Service base URL")
	interval := fs.Duration("interval", 2*time.Second, "Poll interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(api.NewClient(*apiURL, 0), *interval)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: inbox version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("inbox %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
