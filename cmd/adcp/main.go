package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/redis/go-redis/v9"

	"github.com/jbgalet/adcp/pkg/alias"
	"github.com/jbgalet/adcp/pkg/cache"
	"github.com/jbgalet/adcp/pkg/channel/neo4j"
	"github.com/jbgalet/adcp/pkg/deny"
	"github.com/jbgalet/adcp/pkg/discover"
	"github.com/jbgalet/adcp/pkg/export"
	"github.com/jbgalet/adcp/pkg/graph"
	"github.com/jbgalet/adcp/pkg/history"
	"github.com/jbgalet/adcp/pkg/mcp"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func okf(format string, a ...any) {
	fmt.Println(okStyle.Render("[+] " + fmt.Sprintf(format, a...)))
}

func warnf(format string, a ...any) {
	fmt.Println(warnStyle.Render("[!] " + fmt.Sprintf(format, a...)))
}

func failf(format string, a ...any) {
	fmt.Println(failStyle.Render("[x] " + fmt.Sprintf(format, a...)))
}

const usage = `Usage: adcp [flags] <command> [args]

Commands:
  graph <selector> <to|from> <outfile>   rooted control-graph expansion
  paths <source> <target> <outfile>      control paths between two selectors
  search <needle>                        find objects whose name contains needle
  aliases                                list selector shortcuts for the language
  full [outdir]                          batch expansion over the built-in selector table
  history [limit]                        show recent discovery runs
  mcp                                    serve the Model Context Protocol on stdio

Run 'adcp -h' for flags.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := LoadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		failf("%v", err)
		return 1
	}

	setupLogging(cfg.Verbose)

	if len(cfg.Args) == 0 {
		fmt.Print(usage)
		return 1
	}
	cmd, rest := cfg.Args[0], cfg.Args[1:]

	// MCP talks protocol frames over stdout; keep it clean.
	quiet := cmd == "mcp"
	if !quiet {
		fmt.Println("===== ADCP =====")
	}

	if cmd == "aliases" {
		return cmdAliases(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, quiet)
	if err != nil {
		failf("%v", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "graph":
		if len(rest) != 3 {
			failf("usage: adcp graph <selector> <to|from> <outfile>")
			return 1
		}
		return a.cmdGraph(ctx, rest[0], discover.Direction(rest[1]), rest[2])
	case "paths":
		if len(rest) != 3 {
			failf("usage: adcp paths <source> <target> <outfile>")
			return 1
		}
		return a.cmdPaths(ctx, rest[0], rest[1], rest[2])
	case "search":
		if len(rest) != 1 {
			failf("usage: adcp search <needle>")
			return 1
		}
		return a.cmdSearch(ctx, rest[0])
	case "full":
		outdir := "out"
		if len(rest) > 0 {
			outdir = rest[0]
		}
		return a.cmdFull(ctx, outdir)
	case "history":
		limit := 0
		if len(rest) > 0 {
			fmt.Sscanf(rest[0], "%d", &limit)
		}
		return a.cmdHistory(ctx, limit)
	case "mcp":
		return a.cmdMCP()
	default:
		failf("unknown command %q", cmd)
		fmt.Print(usage)
		return 1
	}
}

func setupLogging(verbose int) {
	switch {
	case verbose <= 0:
		log.SetOutput(io.Discard)
	case verbose >= 3:
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	case verbose == 2:
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
}

// app holds the connected pieces shared by the subcommands.
type app struct {
	cfg       Config
	ch        *neo4j.Channel
	resolver  *alias.Resolver
	engine    *discover.Engine
	denyRules []deny.Rule
	cache     *cache.ReportCache
	redis     *redis.Client
}

func newApp(ctx context.Context, cfg Config, quiet bool) (*app, error) {
	ch, err := neo4j.Open(ctx, neo4j.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return nil, err
	}

	resolver, err := alias.NewResolver(ctx, ch, cfg.Lang)
	if err != nil {
		ch.Close(ctx)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		ch:       ch,
		resolver: resolver,
		engine:   discover.New(ch, resolver),
	}

	if !quiet {
		okf("Neo4j: %s", cfg.Neo4jURI)
		okf("Language: %s", resolver.Lang())
		okf("Max Depth: %d", cfg.MaxDepth)
	}

	if deny.ValidWorkdir(cfg.Workdir) {
		rules, err := deny.LoadRules(cfg.Workdir)
		if err != nil {
			warnf("failed to load deny ACE rules: %v", err)
		} else {
			a.denyRules = rules
			if !quiet {
				okf("Dump Path: %s (%d deny rules)", cfg.Workdir, len(rules))
			}
		}
	} else if !quiet {
		warnf("Dump Path invalid (%s)", cfg.Workdir)
		warnf("Deny ACE will not be processed")
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.cache = cache.New(a.redis, cache.DefaultTTL)
	}

	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.ch.Close(ctx)
	if a.redis != nil {
		a.redis.Close()
	}
}

// resolveRoot expands a selector and picks one entity, prompting when it is
// ambiguous and prompts are allowed.
func (a *app) resolveRoot(ctx context.Context, selector string) (string, error) {
	matches, err := a.resolver.ExpandSelector(ctx, selector)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("node not found (%s)", selector)
	case 1:
		return matches[0], nil
	}
	if a.cfg.NoPrompt {
		return "", fmt.Errorf("multiple items for %q and prompt disabled", selector)
	}
	return pickEntity(selector, matches)
}

func (a *app) cmdGraph(ctx context.Context, selector string, dir discover.Direction, outPath string) int {
	root, err := a.resolveRoot(ctx, selector)
	if err != nil {
		failf("%v", err)
		return 1
	}
	okf("Building control graph for %s", root)

	opts := discover.DefaultOptions()
	opts.MaxDepth = a.cfg.MaxDepth

	res, err := a.engine.Expand(ctx, root, dir, opts)
	if err != nil {
		failf("Expansion failed: %v", err)
		return 1
	}
	if res.Status == discover.StatusCancelled {
		warnf("Interrupted, writing the graph collected so far")
	}
	okf("Build time: %s", res.Duration.Round(time.Millisecond))

	a.applyDeny(res.Graph, root)

	if res.Graph.Order() == 0 {
		warnf("Empty graph")
	}
	if err := a.writeGraph(outPath, res.Graph); err != nil {
		failf("%v", err)
		return 1
	}
	okf("Control graph written to %s", outPath)

	a.recordRun(ctx, history.Run{
		Source:    root,
		Target:    string(dir),
		MaxDepth:  opts.MaxDepth,
		Status:    string(res.Status),
		Paths:     res.Paths,
		Entities:  res.Graph.Order(),
		Edges:     res.Graph.Size(),
		StartedAt: time.Now().Add(-res.Duration),
		Duration:  res.Duration,
	})
	return 0
}

func (a *app) cmdPaths(ctx context.Context, source, target, outPath string) int {
	opts := discover.DefaultOptions()
	opts.MaxDepth = a.cfg.MaxDepth
	opts.QuickMode = a.cfg.Quick

	key := cache.Key(source, target, opts, cache.View{
		ShowDenied: a.cfg.ViewOptions["deny"],
		DenyRules:  deny.Fingerprint(a.denyRules),
	})
	if a.cache != nil {
		if doc, ok := a.cache.Get(ctx, key); ok {
			okf("Report served from cache")
			if err := writeDocument(outPath, doc); err != nil {
				failf("%v", err)
				return 1
			}
			okf("Control paths written to %s", outPath)
			return 0
		}
	}

	res, err := a.engine.Discover(ctx, source, target, opts)
	if err != nil {
		failf("Discovery failed: %v", err)
		return 1
	}
	for _, w := range res.Warnings {
		warnf("%s", w)
	}
	if res.Status == discover.StatusCancelled {
		warnf("Interrupted, writing the paths collected so far")
	}
	okf("%d paths, %d entities, %d edges in %s",
		res.Paths, res.Graph.Order(), res.Graph.Size(), res.Duration.Round(time.Millisecond))

	canonicalTarget := a.resolver.Resolve(target)
	a.applyDeny(res.Graph, canonicalTarget)

	doc := export.Build(res.Graph, export.Options{ShowDenied: a.cfg.ViewOptions["deny"]})
	if a.cache != nil && res.Status == discover.StatusComplete {
		a.cache.Set(ctx, key, doc)
	}
	if err := writeDocument(outPath, doc); err != nil {
		failf("%v", err)
		return 1
	}
	okf("Control paths written to %s", outPath)

	a.recordRun(ctx, history.Run{
		Source:    source,
		Target:    target,
		MaxDepth:  opts.MaxDepth,
		Quick:     opts.QuickMode,
		Status:    string(res.Status),
		Paths:     res.Paths,
		Entities:  res.Graph.Order(),
		Edges:     res.Graph.Size(),
		Warnings:  len(res.Warnings),
		StartedAt: time.Now().Add(-res.Duration),
		Duration:  res.Duration,
	})
	return 0
}

func (a *app) cmdSearch(ctx context.Context, needle string) int {
	matches, err := a.resolver.Search(ctx, needle)
	if err != nil {
		failf("Search failed: %v", err)
		return 1
	}
	okf("Results for %s", needle)
	for _, m := range matches {
		labels := ""
		if len(m.Labels) > 0 {
			labels = m.Labels[0]
		}
		fmt.Printf("%-10s\t%s\n", labels, m.Name)
	}
	if len(matches) == 0 {
		warnf("No matches")
	}
	return 0
}

func cmdAliases(cfg Config) int {
	table := alias.Shortcuts[cfg.Lang]
	shortcuts := make([]string, 0, len(table))
	for s := range table {
		shortcuts = append(shortcuts, s)
	}
	sort.Strings(shortcuts)
	for _, s := range shortcuts {
		fmt.Printf("%s\t%s\n", s, table[s])
	}
	return 0
}

// fullTable drives the batch command: the well-known privileged selectors
// expanded towards their controllers, the broad population selectors away
// from them.
var fullTable = []struct {
	key string
	dir discover.Direction
}{
	{"adm_dom", discover.DirectionTo},
	{"adm_sch", discover.DirectionTo},
	{"adm_ent", discover.DirectionTo},
	{"adms", discover.DirectionTo},
	{"adm", discover.DirectionTo},

	{"dc", discover.DirectionTo},
	{"rodc", discover.DirectionTo},
	{"cdc", discover.DirectionTo},
	{"erodc", discover.DirectionTo},

	{"accop", discover.DirectionTo},
	{"srvop", discover.DirectionTo},
	{"backop", discover.DirectionTo},
	{"printop", discover.DirectionTo},
	{"cryptop", discover.DirectionTo},
	{"netop", discover.DirectionTo},
	{"axxop", discover.DirectionTo},

	{"dom_usr", discover.DirectionFrom},
	{"dom_cmp", discover.DirectionFrom},
	{"dom_gue", discover.DirectionFrom},
	{"usr", discover.DirectionFrom},
	{"guests", discover.DirectionFrom},
	{"guest", discover.DirectionFrom},
	{"prew2k", discover.DirectionFrom},
	{"waac", discover.DirectionFrom},

	{"certpub", discover.DirectionTo},
	{"gpoco", discover.DirectionTo},
	{"incftb", discover.DirectionTo},
	{"krbtgt", discover.DirectionTo},
}

func (a *app) cmdFull(ctx context.Context, outdir string) int {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		failf("%v", err)
		return 1
	}

	rc := 0
	for _, entry := range fullTable {
		if ctx.Err() != nil {
			warnf("Interrupted")
			return 1
		}
		outPath := filepath.Join(outdir, fmt.Sprintf("%s_%s_short.json", entry.key, entry.dir))
		if a.cmdGraph(ctx, entry.key, entry.dir, outPath) != 0 {
			rc = 1
		}
	}
	return rc
}

func (a *app) cmdHistory(ctx context.Context, limit int) int {
	st, err := history.NewStore(a.cfg.HistoryPath)
	if err != nil {
		failf("History unavailable: %v", err)
		return 1
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		failf("%v", err)
		return 1
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  %s -> %s  depth=%d paths=%d entities=%d edges=%d  %s\n",
			r.StartedAt.Format(time.RFC3339), r.Status, r.Source, r.Target,
			r.MaxDepth, r.Paths, r.Entities, r.Edges, r.Duration.Round(time.Millisecond))
	}
	if len(runs) == 0 {
		warnf("No recorded runs")
	}
	return 0
}

func (a *app) cmdMCP() int {
	if err := mcp.NewServer(a.engine, a.resolver).Serve(); err != nil {
		log.Printf("mcp server stopped: %v", err)
		return 1
	}
	return 0
}

// applyDeny marks denied edges and unreachable entities. Skipped when no
// rules are loaded or the anchor entity is not in the graph.
func (a *app) applyDeny(g *graph.Graph, target string) {
	if len(a.denyRules) == 0 {
		return
	}
	if _, ok := g.Nodes[target]; !ok {
		return
	}
	denied, noLinks := deny.Apply(g, a.denyRules, target)
	if denied > 0 {
		okf("Deny ACE: %d edges denied, %d entities unlinked", denied, noLinks)
	}
}

func (a *app) writeGraph(path string, g *graph.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.Write(f, g, export.Options{ShowDenied: a.cfg.ViewOptions["deny"]})
}

func writeDocument(path string, doc *export.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(doc)
}

// recordRun appends a row to the run history. History is best-effort: a
// missing or locked database never fails the run itself.
func (a *app) recordRun(ctx context.Context, run history.Run) {
	st, err := history.NewStore(a.cfg.HistoryPath)
	if err != nil {
		log.Printf("history unavailable: %v", err)
		return
	}
	defer st.Close()

	if err := st.RecordRun(ctx, run); err != nil {
		log.Printf("failed to record run: %v", err)
	}
}
