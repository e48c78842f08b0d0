package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/internal/cli"
	"github.com/pthm/hyperbatch/pgstore"
	"github.com/pthm/hyperbatch/workpackage"
)

var (
	renderDB      string
	renderViewer  int64
	renderAdmin   bool
	renderLocale  string
	renderRepeat  int
	renderMetrics bool
)

var renderCmd = &cobra.Command{
	Use:   "render <id>...",
	Short: "Render work packages as HAL documents",
	Long: `Render a batch of work packages for a viewer and print the documents as a
JSON array in request order. IDs may be given as separate arguments or
comma separated.`,
	Example: `  # Render three work packages for user 7
  hyperbatch render 1 2 3 --viewer 7

  # Render twice to see cache hits
  hyperbatch render 1,2,3 --viewer 7 --repeat 2 --metrics`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return cli.GeneralError("parsing ids", err)
		}

		dsn, err := resolveDSN(renderDB)
		if err != nil {
			return err
		}

		viewer := hyperbatch.Viewer{
			ID:     hyperbatch.ID(cfg.Render.Viewer),
			Admin:  resolveBool(renderAdmin, cfg.Render.Admin),
			Locale: resolveString(renderLocale, cfg.Render.Locale),
		}
		if cmd.Flags().Changed("viewer") {
			viewer.ID = hyperbatch.ID(renderViewer)
		}

		return runRender(cmd.Context(), dsn, ids, viewer, os.Stdout)
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderDB, "db", "", "database URL")
	f.Int64Var(&renderViewer, "viewer", 0, "user ID to render for (0 is anonymous)")
	f.BoolVar(&renderAdmin, "admin", false, "render as an administrator")
	f.StringVar(&renderLocale, "locale", "", "locale of rendered titles")
	f.IntVar(&renderRepeat, "repeat", 1, "render the batch this many times")
	f.BoolVar(&renderMetrics, "metrics", false, "print projection metrics to stderr")
}

// parseIDs reads IDs from arguments, each of which may hold a comma
// separated list.
func parseIDs(args []string) ([]hyperbatch.ID, error) {
	var ids []hyperbatch.ID
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid id %q", part)
			}
			ids = append(ids, hyperbatch.ID(n))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return ids, nil
}

// newProjector wires the work package registry to PostgreSQL.
func newProjector(db *sql.DB, reg prometheus.Registerer, logger *slog.Logger) (*hyperbatch.Projector, error) {
	schemaReg, err := workpackage.NewRegistry(workpackage.WithAPIBase(cfg.Render.APIBase))
	if err != nil {
		return nil, cli.RegistryError("building registry", err)
	}

	metrics, err := hyperbatch.NewMetrics(reg)
	if err != nil {
		return nil, cli.GeneralError("registering metrics", err)
	}

	opts := []hyperbatch.Option{
		hyperbatch.WithLogger(logger),
		hyperbatch.WithMetrics(metrics),
		hyperbatch.WithSettings(cfg.Settings),
		hyperbatch.WithAPIBase(cfg.Render.APIBase),
		hyperbatch.WithConcurrency(cfg.Render.Concurrency),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, hyperbatch.WithCache(hyperbatch.NewCache(hyperbatch.WithTTL(cfg.CacheTTL()))))
	}

	store := pgstore.New(db)
	return hyperbatch.NewProjector(schemaReg, hyperbatch.Stores{
		Visibility:   hyperbatch.NewChecker(db, hyperbatch.WithCheckerLogger(logger)),
		Graph:        store,
		Entities:     store,
		Associations: store,
		Watchers:     store,
		Actions:      store,
	}, opts...), nil
}

func runRender(ctx context.Context, dsn string, ids []hyperbatch.ID, viewer hyperbatch.Viewer, out io.Writer) error {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger := slog.Default()
	promReg := prometheus.NewRegistry()
	proj, err := newProjector(db, promReg, logger)
	if err != nil {
		return err
	}

	var docs map[hyperbatch.ID]*hyperbatch.Document
	for i := 0; i < max(renderRepeat, 1); i++ {
		start := time.Now()
		docs, err = proj.Project(ctx, ids, viewer)
		if err != nil {
			if hyperbatch.IsStoreUnavailableErr(err) {
				return cli.DBConnectError("rendering", err)
			}
			return cli.GeneralError("rendering", err)
		}
		logger.Debug("rendered batch", "iteration", i+1, "size", len(ids), "duration", time.Since(start))
	}

	if err := writeDocuments(out, ids, docs); err != nil {
		return cli.GeneralError("writing documents", err)
	}

	if renderMetrics {
		return writeMetrics(os.Stderr, promReg)
	}
	return nil
}

// writeDocuments prints docs as an indented JSON array in the order of ids.
func writeDocuments(w io.Writer, ids []hyperbatch.ID, docs map[hyperbatch.ID]*hyperbatch.Document) error {
	list := make([]*hyperbatch.Document, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		if doc == nil {
			doc = hyperbatch.NewDocument()
		}
		list = append(list, doc)
	}

	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// writeMetrics prints the gathered families in the text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return cli.GeneralError("gathering metrics", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return cli.GeneralError("writing metrics", err)
		}
	}
	return nil
}
