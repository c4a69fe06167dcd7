package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"flood-sensor-map/pkg/api"
	"flood-sensor-map/pkg/catalog"
	"flood-sensor-map/pkg/config"
	"flood-sensor-map/pkg/docs"
	"flood-sensor-map/pkg/fixtures"
	"flood-sensor-map/pkg/fixtures/drivers"
	"flood-sensor-map/pkg/geo"
	"flood-sensor-map/pkg/livemap"
	"flood-sensor-map/pkg/logger"
	"flood-sensor-map/pkg/mapview"
	"flood-sensor-map/pkg/qrshare"
	"flood-sensor-map/pkg/railway"
	"flood-sensor-map/pkg/sensors"
	"flood-sensor-map/pkg/shell"
)

//go:embed public_html
var content embed.FS

var CompileVersion = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Printf("flood-sensor-map version %s\n", CompileVersion)
		return
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	handler, cleanup, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Domain != "" {
		return serveWithDomain(ctx, cfg.Domain, handler, log)
	}
	return serveHTTP(ctx, fmt.Sprintf(":%d", cfg.Port), handler, log)
}

// build wires fixtures, repositories and handlers. cleanup releases what
// build opened, in reverse order.
func build(ctx context.Context, cfg config.Config, log zerolog.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loadLog := logger.NewLoadLog(log)
	closers = append(closers, loadLog.Close)

	store, closeStore, err := openStore(ctx, cfg.Data, loadLog)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	sensorRepo := sensors.NewRepository(store, log)
	cameras := catalog.NewCameraDirectory(store, log)
	lines := railway.NewRepository(store, log)
	types := catalog.NewTypeCatalog(nil)

	mapOpts := mapview.Options{
		CloseZoom:   cfg.Map.CloseZoom,
		Padding:     geo.Uniform(cfg.Map.Padding),
		SettleDelay: cfg.Map.SettleDelay,
		IconURL:     cfg.Map.IconURL,
	}.WithDefaults()

	// Warm the caches so the first visitor does not pay for the load and
	// fixture problems show up in the startup log.
	log.Info().
		Int("sensors", len(sensorRepo.ListAll(ctx))).
		Int("cameras", len(cameras.All(ctx))).
		Int("lines", len(lines.Lines(ctx))).
		Str("source", cfg.Data.Source).
		Msg("fixtures ready")

	page, err := newPage(content, cfg, sensorRepo)
	if err != nil {
		return fail(err)
	}

	live := livemap.NewHandler(ctx, shell.Deps{
		Sensors: sensorRepo,
		Cameras: cameras,
		Types:   types,
		Map:     mapOpts,
		Log:     log,
	}, lines, livemap.Config{TileURL: cfg.Map.TileURL, InitialPadding: cfg.Map.InitialPadding}, log)

	cache := api.NewResponseCache(cfg.Cache.TTL)
	closers = append(closers, cache.Close)
	limiter := api.NewRateLimiter(cfg.API.QRCooldown)
	closers = append(closers, limiter.Close)
	apiHandler := api.NewHandler(api.Deps{
		Sensors:   sensorRepo,
		Cameras:   cameras,
		Types:     types,
		Lines:     lines,
		Map:       mapOpts,
		PublicURL: cfg.PublicURL,
		QR:        qrshare.DefaultOptions(),
	}, cache, limiter, log)

	publicFS, err := fs.Sub(content, "public_html")
	if err != nil {
		return fail(fmt.Errorf("static fs: %w", err))
	}
	return withServerHeader(routes(page, live, apiHandler, publicFS)), cleanup, nil
}

// openStore picks the fixture source. The returned func releases it.
func openStore(ctx context.Context, cfg config.Data, loadLog *logger.LoadLog) (fixtures.Store, func(), error) {
	noop := func() {}
	switch cfg.Source {
	case config.SourceDir:
		return fixtures.NewJSONStore(os.DirFS(cfg.Dir), cfg.Dir, loadLog), noop, nil
	case config.SourceSQLite, config.SourcePgx, config.SourceGenji:
		drivers.Ready()
		openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		store, err := fixtures.OpenSQL(openCtx, cfg.Source, cfg.DSN, loadLog)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s fixtures: %w", cfg.Source, err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		data, err := fs.Sub(content, "public_html/data")
		if err != nil {
			return nil, nil, fmt.Errorf("embedded fixtures: %w", err)
		}
		return fixtures.NewJSONStore(data, "embedded", loadLog), noop, nil
	}
}

// pageData feeds public_html/index.html.
type pageData struct {
	Title   string
	Credit  string
	Version string
	// Bounds of every sensor, so the map starts on the network before the
	// live session connects.
	Bounds  template.JS
	Padding int
	TileURL string
}

type page struct {
	tmpl *template.Template
	cfg  config.Config
	list shell.SensorLister
}

func newPage(fsys fs.FS, cfg config.Config, list shell.SensorLister) (*page, error) {
	tmpl, err := template.ParseFS(fsys, "public_html/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &page{tmpl: tmpl, cfg: cfg, list: list}, nil
}

func (p *page) render(ctx context.Context, w io.Writer) error {
	version := CompileVersion
	if version == "dev" {
		version = "latest"
	}
	data := pageData{
		Title:   docs.Title,
		Credit:  docs.Credit,
		Version: version,
		Bounds:  "null",
		Padding: p.cfg.Map.InitialPadding,
		TileURL: p.cfg.Map.TileURL,
	}
	if b, ok := geo.BoundsOf(sensors.Locations(p.list.ListAll(ctx))); ok {
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		data.Bounds = template.JS(raw)
	}
	return p.tmpl.Execute(w, data)
}
