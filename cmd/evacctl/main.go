// Command evacctl plans routes against a local graph file or a running
// evacroute API, imports city graphs and watches live events.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"evacroute/internal/api"
	"evacroute/internal/auth"
	"evacroute/internal/buildinfo"
	"evacroute/internal/config"
	"evacroute/internal/graph"
	"evacroute/internal/model"
	"evacroute/internal/opt"
	"evacroute/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOpts struct {
	server string
	token  string
	city   string
	asJSON bool
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}

	root := &cobra.Command{
		Use:           "evacctl",
		Short:         "Evacuation routing client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("EVAC_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("EVAC_TOKEN"), "bearer token")
	root.PersistentFlags().StringVar(&g.city, "city", "", "city (defaults to the graph file's city or the token's city)")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print raw JSON")

	root.AddCommand(newRouteCmd(g))
	root.AddCommand(newEvacuateCmd(g))
	root.AddCommand(newImportCmd(g))
	root.AddCommand(newWatchCmd(g))
	root.AddCommand(newTokenCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// searchFlags holds the per-request option flags shared by route and evacuate.
type searchFlags struct {
	riskWeight, timeWeight, diversity float64
	numPaths, timeoutMs, maxZones     int
}

func (f *searchFlags) register(cmd *cobra.Command) {
	d := opt.DefaultSearchConfig()
	cmd.Flags().Float64Var(&f.riskWeight, "risk-weight", d.RiskWeight, "risk weight")
	cmd.Flags().Float64Var(&f.timeWeight, "time-weight", d.TimeWeight, "time weight")
	cmd.Flags().Float64Var(&f.diversity, "diversity", d.DiversityFactor, "diversity factor in [0,1]")
	cmd.Flags().IntVarP(&f.numPaths, "paths", "k", d.NumPaths, "number of routes")
	cmd.Flags().IntVar(&f.timeoutMs, "timeout-ms", int(d.Timeout/time.Millisecond), "search timeout in ms")
	cmd.Flags().IntVar(&f.maxZones, "max-safe-zones", d.MaxSafeZones, "safe zones searched by evacuate (0 = all)")
}

// options returns only the flags the user set, so the server keeps its
// per-city defaults for the rest.
func (f *searchFlags) options(cmd *cobra.Command) model.SearchOptions {
	var o model.SearchOptions
	fl := cmd.Flags()
	if fl.Changed("risk-weight") {
		o.RiskWeight = &f.riskWeight
	}
	if fl.Changed("time-weight") {
		o.TimeWeight = &f.timeWeight
	}
	if fl.Changed("diversity") {
		o.DiversityFactor = &f.diversity
	}
	if fl.Changed("paths") {
		o.NumPaths = &f.numPaths
	}
	if fl.Changed("timeout-ms") {
		o.TimeoutMs = &f.timeoutMs
	}
	if fl.Changed("max-safe-zones") {
		o.MaxSafeZones = &f.maxZones
	}
	return o
}

// localConfig starts from the configured defaults and applies every flag
// the user set.
func (f *searchFlags) localConfig(cmd *cobra.Command) (opt.SearchConfig, error) {
	base, err := config.Load("")
	if err != nil {
		return opt.SearchConfig{}, err
	}
	cfg := base.Search
	o := f.options(cmd)
	if o.RiskWeight != nil {
		cfg.RiskWeight = *o.RiskWeight
	}
	if o.TimeWeight != nil {
		cfg.TimeWeight = *o.TimeWeight
	}
	if o.DiversityFactor != nil {
		cfg.DiversityFactor = *o.DiversityFactor
	}
	if o.NumPaths != nil {
		cfg.NumPaths = *o.NumPaths
	}
	if o.TimeoutMs != nil {
		cfg.Timeout = time.Duration(*o.TimeoutMs) * time.Millisecond
	}
	if o.MaxSafeZones != nil {
		cfg.MaxSafeZones = *o.MaxSafeZones
	}
	return cfg, cfg.Validate()
}

func readDocument(path string) (graph.Document, error) {
	var doc graph.Document
	f, err := os.Open(path)
	if err != nil {
		return doc, err
	}
	defer func() { _ = f.Close() }()
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

func newRouteCmd(g *globalOpts) *cobra.Command {
	var from, to, graphFile string
	var sf searchFlags
	cmd := &cobra.Command{
		Use:   "route --from <node> --to <node>",
		Short: "Compute diverse risk-aware routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				return fmt.Errorf("--from and --to are required")
			}
			ctx := cmd.Context()
			if graphFile != "" {
				doc, gr, err := loadLocal(graphFile)
				if err != nil {
					return err
				}
				cfg, err := sf.localConfig(cmd)
				if err != nil {
					return err
				}
				p, err := opt.NewPlanner().Routes(ctx, gr, doc.City, from, to, cfg)
				if err != nil {
					return err
				}
				return printPlan(cmd.OutOrStdout(), api.ToModelPlan(p, "routes", 0), g.asJSON)
			}
			req := model.RouteRequest{City: g.city, Source: model.Endpoint{NodeID: from}, Target: model.Endpoint{NodeID: to}, Options: sf.options(cmd)}
			var plan model.Plan
			if err := newClient(g).do(ctx, "POST", "/v1/routes", req, &plan); err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), plan, g.asJSON)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source node id")
	cmd.Flags().StringVar(&to, "to", "", "target node id")
	cmd.Flags().StringVar(&graphFile, "graph", "", "plan locally against this graph JSON file")
	sf.register(cmd)
	return cmd
}

func newEvacuateCmd(g *globalOpts) *cobra.Command {
	var from, graphFile string
	var sf searchFlags
	cmd := &cobra.Command{
		Use:   "evacuate --from <node>",
		Short: "Route to the best reachable safe zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(from) == "" {
				return fmt.Errorf("--from is required")
			}
			ctx := cmd.Context()
			if graphFile != "" {
				doc, gr, err := loadLocal(graphFile)
				if err != nil {
					return err
				}
				cfg, err := sf.localConfig(cmd)
				if err != nil {
					return err
				}
				p, err := opt.NewPlanner().Evacuate(ctx, gr, doc.City, from, cfg)
				if err != nil {
					return err
				}
				return printPlan(cmd.OutOrStdout(), api.ToModelPlan(p, "evacuate", 0), g.asJSON)
			}
			req := model.EvacuateRequest{City: g.city, Source: model.Endpoint{NodeID: from}, Options: sf.options(cmd)}
			var plan model.Plan
			if err := newClient(g).do(ctx, "POST", "/v1/evacuate", req, &plan); err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), plan, g.asJSON)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source node id")
	cmd.Flags().StringVar(&graphFile, "graph", "", "plan locally against this graph JSON file")
	sf.register(cmd)
	return cmd
}

func loadLocal(path string) (graph.Document, *graph.Graph, error) {
	doc, err := readDocument(path)
	if err != nil {
		return doc, nil, err
	}
	gr, err := graph.FromDocument(doc)
	return doc, gr, err
}

func printPlan(w io.Writer, p model.Plan, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	head := fmt.Sprintf("%s -> %s", p.SourceID, p.TargetID)
	if p.ID != "" {
		head = "plan " + p.ID + " " + head
	}
	if p.GraphVersion > 0 {
		head += fmt.Sprintf(" (graph v%d)", p.GraphVersion)
	}
	_, _ = fmt.Fprintln(w, head)
	for _, r := range p.Routes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0fm\t%.1fmin\trisk=%.2f\tcritical=%d\n",
			r.ID, strings.Join(r.Path, " -> "), r.Distance, r.Time, r.RiskLevel, r.CriticalSegments)
	}
	return nil
}

func newImportCmd(g *globalOpts) *cobra.Command {
	var fromNeo4j bool
	var sqlitePath, databaseURL string
	cmd := &cobra.Command{
		Use:   "import [graph.json]",
		Short: "Import a city graph from a file or Neo4j into a store or the API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var doc graph.Document
			switch {
			case fromNeo4j:
				if g.city == "" {
					return fmt.Errorf("--city is required with --from-neo4j")
				}
				cfg, err := config.Load("")
				if err != nil {
					return err
				}
				n := cfg.Storage.Neo4j
				if n.URI == "" {
					return fmt.Errorf("NEO4J_URI is not configured")
				}
				src, err := store.NewNeo4jSource(n.URI, n.User, n.Password, n.Database)
				if err != nil {
					return err
				}
				defer func() { _ = src.Close(context.Background()) }()
				if doc, err = src.LoadCity(ctx, g.city); err != nil {
					return err
				}
			case len(args) == 1:
				var err error
				if doc, err = readDocument(args[0]); err != nil {
					return err
				}
				if g.city != "" {
					doc.City = g.city
				}
			default:
				return fmt.Errorf("a graph file or --from-neo4j is required")
			}
			if _, err := graph.FromDocument(doc); err != nil {
				return err
			}

			var st store.Store
			switch {
			case databaseURL != "":
				sp, err := store.NewPostgres(databaseURL)
				if err != nil {
					return err
				}
				st = sp
			case sqlitePath != "":
				sl, err := store.NewSQLite(sqlitePath)
				if err != nil {
					return err
				}
				st = sl
			}
			if st != nil {
				defer func() { _ = st.Close() }()
				v, err := st.SaveGraph(ctx, doc)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s version=%d nodes=%d edges=%d\n", doc.City, v, len(doc.Nodes), len(doc.Edges))
				return nil
			}
			var info model.GraphInfo
			if err := newClient(g).do(ctx, "POST", "/v1/graphs", doc, &info); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s version=%d nodes=%d edges=%d\n", info.City, info.Version, info.Nodes, info.Edges)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromNeo4j, "from-neo4j", false, "read the city from the configured Neo4j database")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "write directly to this SQLite store")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "write directly to this Postgres store")
	return cmd
}

func newWatchCmd(g *globalOpts) *cobra.Command {
	var events []string
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live city events over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx, g, events, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&events, "events", nil, "event types to receive (default all)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}

func newTokenCmd(g *globalOpts) *cobra.Command {
	var secret, role, subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or AUTH_HMAC_SECRET is required")
			}
			if g.city == "" {
				return fmt.Errorf("--city is required (use %q for all cities)", auth.AnyCity)
			}
			tok, err := auth.NewVerifier("hmac", secret).Issue(auth.Principal{City: g.city, Role: role, Subject: subject}, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_HMAC_SECRET"), "HMAC signing secret")
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "role claim: viewer|planner|admin")
	cmd.Flags().StringVar(&subject, "subject", "", "subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := buildinfo.Info()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "evacctl %s commit=%s go=%s\n", info["version"], info["commit"], info["goVersion"])
			return nil
		},
	}
}
