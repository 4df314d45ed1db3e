package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/term"

	"github.com/pgdial/pgdial/pkg/client"
	"github.com/pgdial/pgdial/pkg/config"
	"github.com/pgdial/pgdial/pkg/observability"
	"github.com/pgdial/pgdial/pkg/pool"
)

//go:embed README.md
var readmeMarkdown string

var bannerLines = []string{
	`                         __    _               __ `,
	`    ____    ____ _  ____/ /   (_)   ____ _    / / `,
	`   / __ \  / __ '/ / __  /   / /   / __ '/   / /  `,
	`  / /_/ / / /_/ / / /_/ /   / /   / /_/ /   / /   `,
	` / .___/  \__, /  \__,_/   /_/    \__,_/   /_/    `,
	`/_/      /____/                                   `,
}

func printBanner() {
	// Gradient from teal to purple
	teal, _ := colorful.Hex("#00CED1")
	purple, _ := colorful.Hex("#9B30FF")
	bgColor := lipgloss.Color("#1a1a2e")

	maxWidth := len(bannerLines[0])

	var lines []string
	for _, line := range bannerLines {
		var result strings.Builder
		for i, r := range line {
			t := float64(i) / float64(maxWidth-1)
			c := teal.BlendLuv(purple, t)
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(c.Hex())).
				Background(bgColor).
				Bold(true)
			result.WriteString(style.Render(string(r)))
		}
		lines = append(lines, result.String())
	}

	box := lipgloss.NewStyle().
		Background(bgColor).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Println(box)
	fmt.Println()
}

var (
	// Styles for usage output
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00CED1"))

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9B30FF")).
			Bold(true)

	exampleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))
)

func printUsage() {
	fmt.Println(titleStyle.Render("Usage:"))
	fmt.Println("  pgdial " + flagStyle.Render("-config <file>") + " [flags]")
	fmt.Println("  pgdial " + flagStyle.Render("-host <host> -user <user>") + " [flags]")
	fmt.Println()

	fmt.Println(titleStyle.Render("Options:"))
	flag.VisitAll(func(f *flag.Flag) {
		fmt.Printf("  %s\n", flagStyle.Render("-"+f.Name))
		fmt.Printf("      %s\n", descStyle.Render(f.Usage))
	})
	fmt.Println()

	fmt.Println(titleStyle.Render("Examples:"))
	fmt.Println(exampleStyle.Render("  pgdial -config pgdial.json"))
	fmt.Println(exampleStyle.Render("  pgdial -host localhost -user app -database orders"))
	fmt.Println(exampleStyle.Render(`  pgdial -config pgdial.json -c "SELECT version()"`))
	fmt.Println()

	fmt.Println(descStyle.Render("Run 'pgdial -help' for full documentation."))
	fmt.Println()
}

func printFullDocs() {
	// Get terminal width, default to 80 if not a terminal
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Fallback to raw markdown
		fmt.Println(readmeMarkdown)
		return
	}

	out, err := renderer.Render(readmeMarkdown)
	if err != nil {
		fmt.Println(readmeMarkdown)
		return
	}

	fmt.Print(out)
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(username string) (string, error) {
	fmt.Printf("Password for %s: ", username)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func main() {
	configPath := flag.String("config", "", "path to pgdial.json config file")
	host := flag.String("host", "", "server host (alternative to -config)")
	port := flag.Uint("port", client.DefaultPort, "server port")
	database := flag.String("database", "", "database name")
	user := flag.String("user", "", "username; the password is prompted unless PGDIAL_PASSWORD is set")
	command := flag.String("c", "", "run a single statement and exit")
	useExtended := flag.Bool("extended", false, "use the extended query protocol for statements")
	jsonLogs := flag.Bool("json", false, "output logs in JSON format")
	verbose := flag.Bool("v", false, "enable debug logging")
	metrics := flag.Bool("metrics", false, "register Prometheus metrics on the default registry")
	showHelp := flag.Bool("help", false, "show full documentation")
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printFullDocs()
		os.Exit(0)
	}

	if *configPath == "" && *host == "" {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()

	clientCfg, poolSize, err := buildConfig(ctx, *configPath, *host, uint16(*port), *database, *user, logger)
	if err != nil {
		logger.Error("configuration failed", "error", err)
		os.Exit(1)
	}
	clientCfg.Logger = logger
	if *metrics {
		clientCfg.Metrics = observability.DefaultMetrics()
	}

	p, err := pool.New(clientCfg, poolSize)
	if err != nil {
		logger.Error("failed to create pool", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	repl := &repl{pool: p, extended: *useExtended, log: logger}

	if *command != "" {
		if err := repl.runOne(ctx, *command); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			os.Exit(1)
		}
		return
	}

	printBanner()
	repl.loop(ctx)
}

// buildConfig resolves the client configuration from a config file or from
// the direct flags, prompting for the password when nothing else provides
// one.
func buildConfig(ctx context.Context, configPath, host string, port uint16, database, user string, logger *slog.Logger) (client.Config, int, error) {
	if configPath != "" {
		cfg, err := config.ReadConfigFile(configPath)
		if err != nil {
			return client.Config{}, 0, fmt.Errorf("read config: %w", err)
		}
		secrets, err := config.NewSecretCacheFromEnv(ctx)
		if err != nil {
			return client.Config{}, 0, fmt.Errorf("create secrets cache: %w", err)
		}
		if err := cfg.Validate(ctx, secrets); err != nil {
			return client.Config{}, 0, fmt.Errorf("validate config: %w", err)
		}
		logger.Info("config validated", "path", configPath)
		clientCfg, err := cfg.ClientConfig(ctx, secrets)
		if err != nil {
			return client.Config{}, 0, err
		}
		return clientCfg, cfg.EffectivePoolSize(), nil
	}

	if user == "" {
		return client.Config{}, 0, fmt.Errorf("-user is required without -config")
	}
	password, ok := os.LookupEnv("PGDIAL_PASSWORD")
	if !ok {
		var err error
		password, err = promptPassword(user)
		if err != nil {
			return client.Config{}, 0, err
		}
	}

	clientCfg := client.NewConfig(host, port).
		WithDatabase(database).
		WithCredentials(user, password)
	return clientCfg, config.DefaultPoolSize, nil
}
