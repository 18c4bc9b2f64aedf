// workers/catalog_sync_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"duel-arena-system/services"
)

// CatalogSyncWorker keeps the in-memory problem catalog fresh against the
// judge's merged problem list. The catalog changes rarely (new contests land
// a few times a week), so a long interval is plenty.
type CatalogSyncWorker struct {
	judge    *services.JudgeClient
	catalog  *services.ProblemCatalog
	interval time.Duration
}

func NewCatalogSyncWorker(judge *services.JudgeClient, catalog *services.ProblemCatalog, interval time.Duration) *CatalogSyncWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &CatalogSyncWorker{
		judge:    judge,
		catalog:  catalog,
		interval: interval,
	}
}

func (w *CatalogSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Catalog Sync Worker (judge merged-problems → catalog)…")
	go w.run(ctx)
}

func (w *CatalogSyncWorker) run(ctx context.Context) {
	// Initial fill so the first tournament start does not pay the fetch.
	if err := w.syncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial catalog sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncOnce(ctx); err != nil {
				log.Printf("❌ Catalog sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Catalog Sync Worker stopped")
			return
		}
	}
}

func (w *CatalogSyncWorker) syncOnce(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	problems, err := w.judge.FetchProblemCatalog(fetchCtx)
	if err != nil {
		return err
	}
	// Never clobber a working catalog with an empty payload.
	if len(problems) == 0 {
		log.Println("[SYNC] ⚠️ judge returned empty catalog, keeping previous")
		return nil
	}
	w.catalog.Replace(problems)
	log.Printf("[SYNC] ✅ catalog refreshed: %d problems", len(problems))
	return nil
}
