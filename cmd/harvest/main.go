// Command harvest runs a harvest from the command line, for one collection or
// every collection in a catalog folder, and writes the records as a GeoJSON
// FeatureCollection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/config"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/nggdpp/ndc-harvester/internal/pipeline"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

func main() {
	var (
		configPath   = flag.String("config", config.DefaultConfigFile, "path to the XML configuration")
		wafURL       = flag.String("waf", "", "Web Accessible Folder listing to harvest")
		fileURLs     = flag.String("file", "", "comma separated source file URLs to harvest")
		itemID       = flag.String("item", "", "catalog collection item id to harvest")
		folderID     = flag.String("folder", "", "catalog folder id; harvests every collection item in it")
		collectionID = flag.String("collection-id", "", "collection id injected into every record")
		title        = flag.String("title", "", "collection title injected into every record")
		outPath      = flag.String("out", "-", "GeoJSON output file, - for stdout")
		reportPath   = flag.String("report", "", "write the processing report as JSON to this file")
		persist      = flag.Bool("store", false, "save batches to the configured record store")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.Advanced.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := fetch.NewClient(cfg.FetchOptions())
	harvester := pipeline.New(pipeline.Config{
		Fetcher:          fetcher,
		Registry:         normalizer.NewRegistry(cfg.NormalizerOptions()),
		Logger:           log,
		ListingExtension: cfg.Harvest.ListingExtension,
		AcceptableTypes:  cfg.AcceptableContentTypes(),
	})

	cat := catalog.NewClient(fetcher, cfg.Harvest.CatalogURL, log)
	var sources []pipeline.Source
	if *folderID != "" {
		sources, err = folderSources(ctx, harvester, cat, *folderID)
	} else {
		var src pipeline.Source
		src, err = buildSource(ctx, harvester, cat, *itemID, *wafURL, *fileURLs, *collectionID, *title)
		sources = []pipeline.Source{src}
	}
	if err != nil {
		log.Error("nothing to harvest", "error", err)
		flag.Usage()
		os.Exit(2)
	}

	var store storage.RecordStore
	if *persist {
		if err := cfg.EnsureDirectories(); err != nil {
			log.Error("failed to create directories", "error", err)
			os.Exit(1)
		}
		if store, err = storage.Open(ctx, cfg.StoreOptions(), log); err != nil {
			log.Error("failed to open record store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	start := time.Now()
	reports := make([]*models.HarvestReport, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		collID := src.Collection.ID
		reports = append(reports, harvester.HarvestCollection(ctx, src, func(done, total int, b *models.Batch) {
			log.Info("file harvested", "collection", collID, "done", done, "total", total, "source", b.Meta.SourceURL, "records", len(b.Records), "failed", b.Meta.Failed())
			if store != nil {
				if err := store.SaveBatch(ctx, collID, b); err != nil {
					log.Warn("batch not stored", "source", b.Meta.SourceURL, "error", err)
				}
			}
		}))
	}

	var (
		records                               []*models.Record
		files, failed, recordCount, noticeCnt int
	)
	for _, report := range reports {
		for _, b := range report.Batches {
			records = append(records, b.Records...)
		}
		files += report.FileCount
		failed += report.FailedFiles
		recordCount += report.RecordCount
		noticeCnt += report.NoticeCount
	}
	if err := writeJSON(*outPath, spatial.ToFeatureCollection(records)); err != nil {
		log.Error("failed to write features", "error", err)
		os.Exit(1)
	}
	if *reportPath != "" {
		var out interface{} = reports
		if len(reports) == 1 {
			out = reports[0]
		}
		if err := writeJSON(*reportPath, out); err != nil {
			log.Error("failed to write report", "error", err)
			os.Exit(1)
		}
	}

	log.Info("harvest complete",
		"collections", len(reports),
		"files", files,
		"failed", failed,
		"records", recordCount,
		"notices", noticeCnt,
		"elapsed", time.Since(start),
	)
	if files > 0 && failed == files {
		os.Exit(1)
	}
}

// folderSources lists the collection items of a catalog folder and builds one
// source per item.
func folderSources(ctx context.Context, h *pipeline.Harvester, cat *catalog.Client, folderID string) ([]pipeline.Source, error) {
	items, err := cat.Items(ctx, catalog.Query{FolderID: folderID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog folder %s has no items", folderID)
	}
	now := time.Now().UTC()
	sources := make([]pipeline.Source, 0, len(items))
	for i := range items {
		sources = append(sources, h.SourceFromItem(&items[i], now))
	}
	return sources, nil
}

func buildSource(ctx context.Context, h *pipeline.Harvester, cat *catalog.Client, itemID, wafURL, fileURLs, collectionID, title string) (pipeline.Source, error) {
	if itemID != "" {
		item, err := cat.Item(ctx, itemID)
		if err != nil {
			return pipeline.Source{}, err
		}
		src := h.SourceFromItem(item, time.Now().UTC())
		if wafURL != "" {
			src.WAFURLs = append(src.WAFURLs, wafURL)
		}
		return src, nil
	}
	if wafURL == "" && fileURLs == "" {
		return pipeline.Source{}, errors.New("one of -folder, -item, -waf or -file is required")
	}
	if collectionID == "" {
		collectionID = "local"
	}
	src := pipeline.Source{
		Collection: &models.CollectionMeta{ID: collectionID, Title: title, Cached: time.Now().UTC()},
	}
	if wafURL != "" {
		src.WAFURLs = []string{wafURL}
	}
	for _, u := range strings.Split(fileURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			src.Files = append(src.Files, jobs.DescriptorForURL(u))
		}
	}
	return src, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
