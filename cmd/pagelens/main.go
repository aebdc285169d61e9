// Package main provides the PageLens command line application. It runs the
// same capability orchestration the browser surface uses — summarize,
// translate, explain, and page chat with graceful degradation — against an
// OpenAI-compatible API, reading page text from a file or stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pagelens/pagelens/pkg/capability/openai"
	appconfig "github.com/pagelens/pagelens/pkg/config"
	"github.com/pagelens/pagelens/pkg/extract"
	"github.com/pagelens/pagelens/pkg/logging"
	"github.com/pagelens/pagelens/pkg/markdown"
	"github.com/pagelens/pagelens/pkg/notes"
	"github.com/pagelens/pagelens/pkg/orchestrator"
	"github.com/pagelens/pagelens/pkg/storage"
)

const version = "0.1.0"

// Config holds the application configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	ConfigPath  string
	StoreDriver string
	Input       string
	URL         string
	Lang        string
	SummaryType string
	Length      string
	Source      string
	Term        string
	HTML        bool
	Markdown    bool
	SaveNote    bool
	ShowVersion bool
}

func main() {
	config, command := parseFlags()

	if config.ShowVersion {
		fmt.Printf("PageLens v%s\n", version)
		return
	}
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, config, command); err != nil {
		cancel()
		log.Fatalf("Application error: %v", err)
	}
}

// parseFlags parses command line flags and returns the configuration plus
// the requested command.
func parseFlags() (*Config, string) {
	config := &Config{}

	flag.StringVar(&config.APIKey, "api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key (or set OPENAI_API_KEY env var)")
	flag.StringVar(&config.BaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI API base URL (or set OPENAI_BASE_URL env var)")
	flag.StringVar(&config.Model, "model", openai.DefaultModel, "Model to use for all capabilities")
	flag.StringVar(&config.ConfigPath, "config", "", "Path to a YAML configuration file (optional)")
	flag.StringVar(&config.StoreDriver, "store", "file", "Persistence backend: file or sqlite")
	flag.StringVar(&config.Input, "input", "-", "Input file (default: stdin)")
	flag.StringVar(&config.URL, "url", "", "Page URL, used as the persistence key for summaries and chat history")
	flag.StringVar(&config.Lang, "lang", "", "Output language (default from configuration)")
	flag.StringVar(&config.SummaryType, "type", "", "Summary style: tldr, key-points, teaser, headline")
	flag.StringVar(&config.Length, "length", "", "Summary length: short, medium, long")
	flag.StringVar(&config.Source, "source", "", "Source language for translate (default: detected)")
	flag.StringVar(&config.Term, "term", "", "Term to explain (explain command)")
	flag.BoolVar(&config.HTML, "html", false, "Treat input as HTML and extract readable text first")
	flag.BoolVar(&config.Markdown, "markdown", false, "Render output as HTML from Markdown")
	flag.BoolVar(&config.SaveNote, "save", false, "Save the result as a note")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "PageLens - page intelligence from the command line\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pagelens [options] <command>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  summarize   Summarize the input text\n")
		fmt.Fprintf(os.Stderr, "  translate   Translate the input text\n")
		fmt.Fprintf(os.Stderr, "  explain     Explain a term (-term) in the context of the input\n")
		fmt.Fprintf(os.Stderr, "  detect      Detect the input's language\n")
		fmt.Fprintf(os.Stderr, "  chat        Interactive chat about the input page\n")
		fmt.Fprintf(os.Stderr, "  notes       List saved notes\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pagelens -input article.html -html summarize\n")
		fmt.Fprintf(os.Stderr, "  pagelens -input article.txt -lang fr translate\n")
		fmt.Fprintf(os.Stderr, "  pagelens -input article.txt -term \"quantum tunnelling\" explain\n")
		fmt.Fprintf(os.Stderr, "  pagelens -input article.txt -url https://example.com/a chat\n")
	}

	flag.Parse()
	return config, flag.Arg(0)
}

func run(ctx context.Context, config *Config, command string) error {
	cfg, err := appconfig.Load(config.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("cli")
	if err != nil {
		logger = logging.Discard("cli")
	}
	defer logger.Close()

	kv, err := openStore(config.StoreDriver)
	if err != nil {
		return err
	}
	defer kv.Close()

	// An explicit -lang becomes the sticky preference; otherwise the last
	// saved preference overrides the config default.
	settings := storage.NewSettings(kv)
	if config.Lang != "" {
		cfg.DefaultOutputLanguage = config.Lang
		if err := settings.Set(ctx, "output_language", config.Lang); err != nil {
			logger.Warnf("saving language preference failed: %v", err)
		}
	} else if saved, ok, err := settings.Get(ctx, "output_language"); err == nil && ok {
		cfg.DefaultOutputLanguage = saved
	}

	host, err := openai.NewHost(config.APIKey,
		openai.WithModel(config.Model),
		openai.WithBaseURL(config.BaseURL),
		openai.WithTokenQuota(cfg.ChatTokenQuota),
		openai.WithLogger(logging.Discard("openai")),
	)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(host,
		orchestrator.WithConfig(cfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithSummaryCache(storage.NewSummaryCache(kv)),
		orchestrator.WithChatHistoryStore(storage.NewChatHistoryStore(kv)),
	)
	if err != nil {
		return err
	}
	defer orch.DestroyAll()

	noteManager := notes.NewManager(kv)

	if command == "notes" {
		return listNotes(ctx, noteManager)
	}

	text, err := readInput(config)
	if err != nil {
		return err
	}

	switch command {
	case "summarize":
		out, err := orch.SummarizePage(ctx, config.URL, text, orchestrator.SummarizeOptions{
			Type:        config.SummaryType,
			Lang:        config.Lang,
			Length:      config.Length,
			UserGesture: true,
			OnChunk:     progressPrinter(),
		})
		if err != nil {
			return err
		}
		finishOutput(config, out)
		if config.SaveNote && out != "" {
			return saveNote(ctx, noteManager, config, notes.KindSummary, out, text)
		}
		return nil

	case "translate":
		out, err := orch.Translate(ctx, text, orchestrator.TranslateOptions{
			SourceLang:  config.Source,
			TargetLang:  cfg.DefaultOutputLanguage,
			UserGesture: true,
			OnChunk:     progressPrinter(),
		})
		if err != nil {
			return err
		}
		finishOutput(config, out)
		if config.SaveNote && out != "" {
			return saveNote(ctx, noteManager, config, notes.KindTranslation, out, text)
		}
		return nil

	case "explain":
		if config.Term == "" {
			return fmt.Errorf("explain requires -term")
		}
		out, err := orch.Explain(ctx, config.Term, orchestrator.ExplainOptions{
			Context:     text,
			Lang:        config.Lang,
			UserGesture: true,
			OnChunk:     progressPrinter(),
		})
		if err != nil {
			return err
		}
		finishOutput(config, out)
		if config.SaveNote && out != "" {
			return saveNote(ctx, noteManager, config, notes.KindExplanation, out, config.Term)
		}
		return nil

	case "detect":
		code, err := orch.DetectLanguage(ctx, text, true)
		if err != nil {
			return fmt.Errorf("language detection failed: %w", err)
		}
		fmt.Println(code)
		return nil

	case "chat":
		return runChat(ctx, orch, config, text)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runChat drives an interactive conversation about the input page.
func runChat(ctx context.Context, orch *orchestrator.Orchestrator, config *Config, text string) error {
	ok, err := orch.CreateChatSession(ctx, orchestrator.ChatSessionOptions{
		PageURL:     config.URL,
		PageText:    text,
		Lang:        config.Lang,
		UserGesture: true,
	})
	if err != nil || !ok {
		return fmt.Errorf("chat is unavailable: %v", err)
	}
	defer orch.ClearChatSession(context.Background())

	if history := orch.ChatHistory(); len(history) > 0 {
		fmt.Printf("Resuming conversation (%d earlier messages).\n", len(history))
	}
	fmt.Println("Ask about the page. Ctrl-D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		_, err := orch.AskChatQuestion(ctx, question, orchestrator.AskOptions{
			OnChunk: progressPrinter(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n%v\n", err)
			continue
		}
		fmt.Println()

		if usage := orch.ChatTokenUsage(); usage != nil {
			fmt.Printf("[context: %d/%d tokens, %.0f%%]\n", usage.Usage, usage.Quota, usage.Percentage)
		}
	}
}

// progressPrinter prints the tail of each accumulated snapshot, so streamed
// output appears incrementally regardless of increment semantics.
func progressPrinter() func(string) {
	var printed int
	return func(accumulated string) {
		if len(accumulated) < printed {
			// The snapshot shrank (degraded replacement); start over.
			fmt.Println()
			printed = 0
		}
		fmt.Print(accumulated[printed:])
		printed = len(accumulated)
	}
}

func finishOutput(config *Config, out string) {
	fmt.Println()
	if config.Markdown && out != "" {
		fmt.Println(markdown.Render(out))
	}
}

func saveNote(ctx context.Context, m *notes.Manager, config *Config, kind notes.Kind, text, snippet string) error {
	note, err := m.Add(ctx, kind, text, snippet, config.URL, "", config.Lang)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved note %s\n", note.ID)
	return nil
}

func listNotes(ctx context.Context, m *notes.Manager) error {
	list, err := m.List(ctx, notes.ListOptions{})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No saved notes.")
		return nil
	}
	for _, n := range list {
		snippet, _ := extract.TruncateWords(n.Text, 12)
		fmt.Printf("%s  [%s]  %s\n    %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Kind, n.SourceURL, snippet)
	}
	return nil
}

// readInput loads the operation input from the configured file or stdin,
// optionally extracting readable text from HTML.
func readInput(config *Config) (string, error) {
	var raw []byte
	var err error
	if config.Input == "-" || config.Input == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(config.Input)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	text := string(raw)
	if config.HTML {
		text, err = extract.ReadableText(text)
		if err != nil {
			return "", fmt.Errorf("extracting readable text: %w", err)
		}
	}
	return strings.TrimSpace(text), nil
}

// openStore selects the persistence backend.
func openStore(driver string) (storage.KV, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".pagelens")

	switch driver {
	case "file":
		return storage.NewFileStore(filepath.Join(dir, "store.json"))
	case "sqlite":
		return storage.NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown store driver %q (use file or sqlite)", driver)
	}
}
