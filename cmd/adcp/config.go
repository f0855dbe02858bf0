package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jbgalet/adcp/pkg/alias"
)

const (
	defaultNeo4jURI = "bolt://localhost:7687"
	defaultMaxDepth = 20
	defaultOptions  = "+deny"
)

type Config struct {
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Lang          string
	MaxDepth      int
	Workdir       string
	NoPrompt      bool
	Quick         bool
	Verbose       int
	RedisAddr     string
	HistoryPath   string

	// View options parsed from the +opt/-opt bag, e.g. "deny".
	ViewOptions map[string]bool

	// Args holds the subcommand and its positional arguments.
	Args []string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	uri := envOrDefault("NEO4J_URI", defaultNeo4jURI)
	user := os.Getenv("NEO4J_USER")
	password := os.Getenv("NEO4J_PASSWORD")
	database := os.Getenv("NEO4J_DATABASE")
	lang := envOrDefault("ADCP_LANG", alias.DefaultLang)
	workdir := os.Getenv("ADCP_WORKDIR")
	redisAddr := os.Getenv("ADCP_REDIS_ADDR")
	historyPath := envOrDefault("ADCP_HISTORY_PATH", filepath.Join(cwd, "adcp.db"))

	maxDepth := defaultMaxDepth
	if v := os.Getenv("ADCP_MAXDEPTH"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ADCP_MAXDEPTH: %w", err)
		}
		maxDepth = parsed
	}

	flagSet := flag.NewFlagSet("adcp", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagURI := flagSet.String("neo4j", uri, "neo4j connection URI")
	flagUser := flagSet.String("user", user, "neo4j username")
	flagPassword := flagSet.String("password", password, "neo4j password")
	flagDatabase := flagSet.String("database", database, "neo4j database name")
	flagLang := flagSet.String("lang", lang, "shortcut language")
	flagMaxDepth := flagSet.Int("maxdepth", maxDepth, "maximum length for control paths")
	flagWorkdir := flagSet.String("workdir", workdir, "root of the ADCP dump directory")
	flagOptions := flagSet.String("o", defaultOptions, "view options (+deny/-deny)")
	flagNoPrompt := flagSet.Bool("noprompt", false, "disable interactive prompts (useful for batches)")
	flagQuick := flagSet.Bool("quick", false, "one shortest path per pair instead of all simple paths")
	flagVerbose := flagSet.Int("v", 0, "verbosity (0-3)")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for the report cache (empty disables it)")
	flagHistory := flagSet.String("history", historyPath, "path to the run-history database")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		Neo4jURI:      strings.TrimSpace(*flagURI),
		Neo4jUser:     *flagUser,
		Neo4jPassword: *flagPassword,
		Neo4jDatabase: *flagDatabase,
		Lang:          strings.ToLower(strings.TrimSpace(*flagLang)),
		MaxDepth:      *flagMaxDepth,
		Workdir:       resolvePath(*flagWorkdir, cwd),
		NoPrompt:      *flagNoPrompt,
		Quick:         *flagQuick,
		Verbose:       *flagVerbose,
		RedisAddr:     strings.TrimSpace(*flagRedis),
		HistoryPath:   resolvePath(*flagHistory, cwd),
		Args:          flagSet.Args(),
	}

	if config.Neo4jURI == "" {
		return Config{}, errors.New("neo4j URI cannot be empty")
	}
	if config.MaxDepth < 1 {
		return Config{}, fmt.Errorf("maxdepth must be at least 1, got %d", config.MaxDepth)
	}

	if _, ok := alias.Shortcuts[config.Lang]; !ok {
		// Matches the resolver's own fallback; warned here once at startup.
		log.Printf("unknown language %q, using %s (supported: %s)",
			config.Lang, alias.DefaultLang, strings.Join(alias.Langs(), ", "))
		config.Lang = alias.DefaultLang
	}

	config.ViewOptions, err = parseViewOptions(*flagOptions)
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// parseViewOptions parses the "+deny,-foo" option bag.
func parseViewOptions(raw string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, opt := range strings.Split(raw, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if opt[0] != '+' && opt[0] != '-' {
			return nil, fmt.Errorf("invalid option %q: must start with + or -", opt)
		}
		if len(opt) == 1 {
			return nil, fmt.Errorf("invalid option %q: missing name", opt)
		}
		out[opt[1:]] = opt[0] == '+'
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
