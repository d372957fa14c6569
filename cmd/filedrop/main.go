package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filedrop/internal/config"
	"filedrop/internal/database"
	"filedrop/internal/database/migration"
	handlers "filedrop/internal/http/handler"
	"filedrop/internal/http/middleware"
	"filedrop/internal/lifespan"
	"filedrop/internal/naming"
	"filedrop/internal/nsfw"
	"filedrop/internal/otel"
	"filedrop/internal/repository/postgres"
	"filedrop/internal/scan"
	"filedrop/internal/service"
	"filedrop/internal/sniff"
	"filedrop/internal/storage"
	"filedrop/internal/token"
)

type app struct {
	cfg   *config.AppConfig
	db    *sql.DB
	store *storage.DiskStore
	codec *naming.Codec

	entries     *postgres.EntryPostgres
	links       *postgres.ShortLinkPostgres
	linkBuilder *service.LinkBuilder
	ingest      service.IngestService
	retrieve    service.RetrieveService
	shorten     service.ShortenService
	mod         service.ModerationService
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migration.EnsureMigrated(ctx, db, time.Local, cfg.Database.Host); err != nil {
		db.Close()
		return nil, err
	}

	store := storage.NewDiskStore(cfg.Store.Root, cfg.Store.Quarantine)
	codec := naming.NewCodec(naming.DefaultAlphabet, 1)
	policy := lifespan.NewPolicy(cfg.Limits.MinExpirationDays, cfg.Limits.MaxExpirationDays, cfg.Limits.MaxContentLength)
	issuer := token.NewIssuer()
	links := service.NewLinkBuilder(cfg.BaseURL, codec, cfg.NSFW.Threshold)

	blocklist, err := service.LoadBlocklist(cfg.Upload.BlocklistFile)
	if err != nil {
		db.Close()
		return nil, err
	}

	var detector nsfw.Detector
	if cfg.NSFW.Endpoint != "" {
		detector = nsfw.NewHTTPDetector(cfg.NSFW.Endpoint)
	}

	entries := postgres.NewEntryPostgres(db)
	linkRepo := postgres.NewShortLinkPostgres(db)

	opts := service.IngestOptions{
		MaxContentLength: cfg.Limits.MaxContentLength,
		MaxExtLength:     cfg.Limits.MaxExtLength,
		SecretBytes:      cfg.Limits.SecretBytes,
		MimeDenylist:     cfg.Upload.MimeDenylist,
	}

	a := &app{
		cfg:         cfg,
		db:          db,
		store:       store,
		codec:       codec,
		entries:     entries,
		links:       linkRepo,
		linkBuilder: links,
		ingest:      service.NewIngestService(entries, store, sniff.Detect, issuer, policy, opts, detector, blocklist),
		retrieve:    service.NewRetrieveService(entries, linkRepo, store, codec, policy),
		shorten:     service.NewShortenService(linkRepo, links, cfg.Limits.MaxURLLength),
		mod:         service.NewModerationService(entries, store),
	}
	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	shutdown, err := otel.Init(ctx, time.Local)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	srv := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(a.cfg.Limits.MaxContentLength) + 1024*1024,
	})

	srv.Use(middleware.RequestID())
	srv.Use(middleware.Logger())
	srv.Use(otelfiber.Middleware())

	prom, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	srv.Use(prom.Handler())
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(srv, handlers.Deps{
		DB:             a.db,
		Ingest:         a.ingest,
		Retrieve:       a.retrieve,
		Shorten:        a.shorten,
		Links:          a.linkBuilder,
		Store:          a.store,
		XAccelRedirect: a.cfg.Store.XAccelRedirect,
	})

	return srv.Listen(":" + a.cfg.Port)
}

func (a *app) prune(ctx context.Context) error {
	n, err := a.mod.PruneExpired(ctx)
	if err != nil {
		return err
	}
	log.Printf("pruned %d expired entries", n)
	return nil
}

func (a *app) vscan(ctx context.Context) error {
	if a.cfg.Scan.ClamdAddr == "" {
		log.Println("VSCAN_CLAMD_ADDR not set, nothing to do")
		return nil
	}
	backend := scan.NewClamdBackend(a.cfg.Scan.ClamdAddr)
	if err := backend.Ping(); err != nil {
		return err
	}

	var staleBefore *time.Time
	if days := a.cfg.Scan.IntervalDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		staleBefore = &cutoff
	}

	pipeline := scan.NewPipeline(a.entries, a.store, backend, a.codec, a.cfg.Scan.Allowlist)
	n, err := pipeline.Run(ctx, staleBefore)
	if err != nil {
		return err
	}
	log.Printf("scanned %d entries", n)
	return nil
}

// ban removes content permanently, by numeric entry id or by uploader
// address.
func (a *app) ban(ctx context.Context, target string) error {
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		if err := a.mod.BanEntry(ctx, id); err != nil {
			return err
		}
		log.Printf("banned entry %d", id)
		return nil
	}
	n, err := a.mod.BanAddress(ctx, target)
	if err != nil {
		return err
	}
	log.Printf("banned %d entries uploaded from %s", n, target)
	return nil
}

func main() {
	ctx := context.Background()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	a, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.db.Close()

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "prune":
		err = a.prune(ctx)
	case "vscan":
		err = a.vscan(ctx)
	case "ban":
		if len(os.Args) < 3 {
			log.Fatal("usage: filedrop ban <entry-id|addr>")
		}
		err = a.ban(ctx, os.Args[2])
	default:
		log.Fatalf("unknown command %q (expected serve, prune, vscan or ban)", cmd)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}
