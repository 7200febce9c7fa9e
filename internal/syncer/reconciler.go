package syncer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"searchlight/api/internal/source"
	"searchlight/api/internal/store"
)

// indexStore is the write surface the reconciler needs from the index.
type indexStore interface {
	Upsert(ctx context.Context, doc store.Document) error
	SoftDelete(ctx context.Context, id string) error
}

// corpusFetcher retrieves the full source corpus.
type corpusFetcher interface {
	FetchAll(ctx context.Context) ([]source.Document, error)
}

// mirror receives the same writes as the index so an external engine
// stays in step. Optional.
type mirror interface {
	Healthy() bool
	Upsert(doc store.Document) error
	Delete(id string) error
}

// CycleResult summarizes one reconciliation cycle.
type CycleResult struct {
	Synced     int       `json:"synced"`
	Deleted    int       `json:"deleted"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Reconciler converges the index toward the source corpus. Deletion is
// explicit: only documents the source marks deleted are tombstoned.
// A document absent from the fetched corpus is left untouched, so a
// truncated or partial source response can never wipe the index.
type Reconciler struct {
	fetcher corpusFetcher
	index   indexStore
	mirror  mirror
}

// NewReconciler creates a reconciler. mirror may be nil.
func NewReconciler(fetcher corpusFetcher, index indexStore, mirror mirror) *Reconciler {
	return &Reconciler{fetcher: fetcher, index: index, mirror: mirror}
}

// Run executes one cycle: fetch the whole corpus, then apply it document
// by document. A fetch failure aborts the cycle; a per-document write
// failure is logged and counted but does not stop the remaining writes,
// so one poisoned record cannot stall convergence of the rest.
func (r *Reconciler) Run(ctx context.Context) (CycleResult, error) {
	result := CycleResult{StartedAt: time.Now().UTC()}

	docs, err := r.fetcher.FetchAll(ctx)
	if err != nil {
		result.FinishedAt = time.Now().UTC()
		return result, fmt.Errorf("fetch corpus: %w", err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = time.Now().UTC()
			return result, err
		}

		if doc.IsDeleted {
			if err := r.index.SoftDelete(ctx, doc.ID); err != nil {
				log.Printf("syncer: delete %s: %v", doc.ID, err)
				result.Failed++
				continue
			}
			r.mirrorDelete(doc.ID)
			result.Deleted++
			continue
		}

		row := toIndexDocument(doc)
		if err := r.index.Upsert(ctx, row); err != nil {
			log.Printf("syncer: upsert %s: %v", doc.ID, err)
			result.Failed++
			continue
		}
		r.mirrorUpsert(row)
		result.Synced++
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

func (r *Reconciler) mirrorUpsert(doc store.Document) {
	if r.mirror == nil || !r.mirror.Healthy() {
		return
	}
	if err := r.mirror.Upsert(doc); err != nil {
		log.Printf("syncer: mirror upsert %s: %v", doc.ID, err)
	}
}

func (r *Reconciler) mirrorDelete(id string) {
	if r.mirror == nil || !r.mirror.Healthy() {
		return
	}
	if err := r.mirror.Delete(id); err != nil {
		log.Printf("syncer: mirror delete %s: %v", id, err)
	}
}

func toIndexDocument(doc source.Document) store.Document {
	return store.Document{
		ID:             doc.ID,
		Title:          doc.Title,
		Description:    doc.Description,
		Category:       doc.Category,
		Tags:           strings.Join(doc.Tags, ", "),
		DepartmentID:   doc.DepartmentID,
		DepartmentName: doc.DepartmentName,
		IsDeleted:      false,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
