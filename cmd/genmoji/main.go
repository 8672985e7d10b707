package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genmoji/internal/catalog"
	"genmoji/internal/devserver"
	"genmoji/internal/gallery"
	"genmoji/internal/gateway"
	"genmoji/internal/genjob"
	"genmoji/internal/infra"
	"genmoji/internal/locale"
)

func main() {
	_ = godotenv.Load()

	var (
		mock     = flag.Bool("mock", false, "run against an in-process fake service")
		prompt   = flag.String("prompt", "", "generate a genmoji from this prompt and watch it")
		category = flag.String("category", "", "filter the gallery by category")
		model    = flag.String("model", "", "filter the gallery by model")
		color    = flag.String("color", "", "filter the gallery by color")
		search   = flag.String("q", "", "free-text gallery search")
		sortKey  = flag.String("sort", "newest", "gallery sort: newest|popular")
		pages    = flag.Int("pages", 1, "number of gallery pages to fetch")
	)
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := cfg.BaseURL
	if *mock {
		shutdown, addr, err := startMock(&logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start mock service")
		}
		defer shutdown()
		baseURL = "http://" + addr
	}

	browseClient, genClient := newClients(cfg, baseURL, &logger)

	if *prompt != "" {
		if err := generate(ctx, genClient, cfg, &logger, *prompt); err != nil {
			logger.Fatal().Err(err).Msg("generation failed")
		}
		return
	}

	filters := map[gallery.Dimension]string{
		gallery.DimCategory: *category,
		gallery.DimModel:    *model,
		gallery.DimColor:    *color,
	}
	if err := browse(ctx, browseClient, cfg, &logger, filters, *search, catalog.SortKey(*sortKey), *pages); err != nil {
		logger.Fatal().Err(err).Msg("gallery fetch failed")
	}
}

// newClients builds the two transport clients. Catalog reads run under the
// short interactive ceiling; generation submits and polls tolerate the
// longer one.
func newClients(cfg *infra.Config, baseURL string, logger *infra.Logger) (browseClient, genClient *catalog.Client) {
	loc := locale.Normalize(cfg.Locale)
	catalogGW := gateway.New(gateway.Options{
		BaseURL: baseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.CatalogTimeout,
		Logger:  logger,
	})
	generateGW := gateway.New(gateway.Options{
		BaseURL: baseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.GenerateTimeout,
		Logger:  logger,
	})
	return catalog.NewClient(catalogGW, loc), catalog.NewClient(generateGW, loc)
}

// startMock runs the devserver on a loopback port.
func startMock(logger *infra.Logger) (func(), string, error) {
	app, err := devserver.NewApp(devserver.Options{Logger: logger})
	if err != nil {
		return nil, "", err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	server := &http.Server{Handler: app.Router()}
	go func() { _ = server.Serve(ln) }()
	return func() { _ = server.Close() }, ln.Addr().String(), nil
}

// generate submits the prompt and renders job transitions from an observer
// subscription until the job is terminal.
func generate(ctx context.Context, client *catalog.Client, cfg *infra.Config, logger *infra.Logger, prompt string) error {
	controller := genjob.NewController(client, genjob.Options{
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	done := make(chan genjob.Snapshot, 1)
	unsubscribe := controller.Subscribe(func(s genjob.Snapshot) {
		switch s.State {
		case genjob.StateSubmitting:
			fmt.Printf("submitting %q...\n", s.Prompt)
		case genjob.StateInProgress:
			fmt.Printf("in progress: %d%%\n", s.Progress)
		}
		if s.State.Terminal() {
			select {
			case done <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := controller.Submit(ctx, prompt, catalog.GenerateOptions{}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		controller.Cancel()
		return ctx.Err()
	case snap := <-done:
		switch snap.State {
		case genjob.StateSucceeded:
			fmt.Printf("done: %s (%s)\n", snap.Result.Slug, snap.Result.ImageURL)
			return nil
		case genjob.StateFailed:
			retry := "retryable"
			if snap.Err.Class == genjob.Permanent {
				retry = "permanent"
			}
			return fmt.Errorf("%s failure: %s", retry, snap.Err.Message)
		default:
			return fmt.Errorf("job cancelled")
		}
	}
}

// browse loads facets, applies the requested filters and prints the
// accumulated gallery pages.
func browse(ctx context.Context, client *catalog.Client, cfg *infra.Config, logger *infra.Logger, filters map[gallery.Dimension]string, search string, sort catalog.SortKey, pages int) error {
	engine := gallery.NewEngine(client, gallery.Options{PageSize: cfg.PageSize, Logger: logger})
	resolver := gallery.NewResolver(client, engine, gallery.ResolverOptions{TTL: cfg.FacetTTL, Logger: logger})

	if _, err := resolver.LoadFacets(ctx); err != nil {
		logger.Warn().Err(err).Msg("facets unavailable, filters validate lazily")
	}

	loaded := false
	for dim, value := range filters {
		if value == "" {
			continue
		}
		if err := resolver.SetFilter(ctx, dim, value); err != nil {
			return err
		}
		loaded = true
	}
	if search != "" {
		if err := resolver.SetSearch(ctx, search); err != nil {
			return err
		}
		loaded = true
	}
	if sort != "" && sort != catalog.SortNewest {
		if err := resolver.SetSort(ctx, sort, ""); err != nil {
			return err
		}
		loaded = true
	}
	if !loaded {
		if err := engine.LoadFirstPage(ctx, resolver.Filters()); err != nil {
			return err
		}
	}

	for i := 1; i < pages; i++ {
		fetched, err := engine.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !fetched {
			break
		}
	}

	view := engine.Snapshot()
	for _, item := range view.Items {
		fmt.Printf("%-40s %-16s %-6s likes=%-4d %s\n", item.Slug, item.Category, item.Model, item.LikesCount, item.Prompt)
	}
	fmt.Printf("%d items, has_more=%v\n", len(view.Items), view.HasMore)
	return nil
}
