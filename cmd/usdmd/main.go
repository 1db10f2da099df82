// Command usdmd serves the semantic protocol editing API: draft
// accumulation, diff preview, gated publish, and the audit change log.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"usdmcore/internal/blob"
	"usdmcore/internal/config"
	"usdmcore/internal/semantic"
	"usdmcore/internal/server"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("usdmd: %v", err)
	}
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("usdmd: open object store: %v", err)
	}

	svcCfg := semantic.Config{Store: store, Metrics: metricsRecorder(cfg.Metrics)}
	timeout := time.Duration(cfg.Validators.TimeoutSeconds) * time.Second
	if len(cfg.Validators.Schema) > 0 {
		svcCfg.Schema = &semantic.ExecValidator{ValidatorName: "schema", Argv: cfg.Validators.Schema, Timeout: timeout}
	}
	if len(cfg.Validators.Domain) > 0 {
		svcCfg.DomainModel = &semantic.ExecValidator{ValidatorName: "domain", Argv: cfg.Validators.Domain, Timeout: timeout}
	}
	svc, err := semantic.NewService(svcCfg)
	if err != nil {
		log.Fatalf("usdmd: %v", err)
	}

	var opts []server.Option
	if fsStore, ok := store.(*blob.Filesystem); ok && cfg.WatchLive {
		watcher, err := semantic.NewDocumentWatcher()
		if err != nil {
			log.Fatalf("usdmd: %v", err)
		}
		defer func() { _ = watcher.Close() }()
		watchLiveDocuments(ctx, fsStore, watcher)
		opts = append(opts, server.WithWatcher(watcher))
	}

	srv := server.New(svc, opts...)
	log.Printf("usdmd: object driver %s, listening on %s", store.Driver(), cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, srv.Handler()); err != nil {
		log.Fatalf("usdmd: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	// env wins so deployments can override the file
	if os.Getenv("USDMCORE_OBJECT_DRIVER") != "" {
		return blob.Open(ctx)
	}
	if cfg.ObjectDriver == string(blob.DriverFilesystem) && cfg.ObjectRoot != "" {
		return blob.NewFilesystem(cfg.ObjectRoot)
	}
	return blob.OpenDriver(ctx, blob.Driver(cfg.ObjectDriver))
}

func metricsRecorder(kind string) semantic.MetricsRecorder {
	switch kind {
	case "expvar":
		return semantic.NewExpvarMetricsRecorder("")
	case "none":
		return semantic.NoopMetricsRecorder{}
	default:
		return semantic.NewPrometheusMetricsRecorder(nil)
	}
}

// watchLiveDocuments registers every existing live document with the
// watcher. Documents created later are still safe; the revision gate does
// not depend on the watcher.
func watchLiveDocuments(ctx context.Context, fsStore *blob.Filesystem, watcher *semantic.DocumentWatcher) {
	infos, err := fsStore.List(ctx, "output/")
	if err != nil {
		log.Printf("usdmd: list live documents: %v", err)
		return
	}
	for _, info := range infos {
		parts := strings.Split(info.Key, "/")
		if len(parts) != 3 || parts[2] != "protocol_usdm.json" {
			continue
		}
		path, err := fsStore.Path(info.Key)
		if err != nil {
			continue
		}
		if err := watcher.Watch(parts[1], path); err != nil {
			log.Printf("usdmd: watch %s: %v", path, err)
		}
	}
}
