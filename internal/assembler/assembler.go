// Package assembler merges provenance into normalized records and closes out
// the batch they belong to.
package assembler

import (
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
)

// DateIndexedField records when a record was assembled.
const DateIndexedField = "ndc_date_file_indexed"

// Assembler stamps records with source, collection and indexing metadata.
type Assembler struct {
	now func() time.Time
}

// New returns an Assembler using the wall clock in UTC.
func New() *Assembler {
	return &Assembler{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns an Assembler that reads time from now.
func WithClock(now func() time.Time) *Assembler {
	return &Assembler{now: now}
}

// Assemble builds the finished batch. Each record is copied and receives
// the descriptor's fields, the collection's fields and the indexing time, in
// that order, overwriting record fields of the same name. A batch whose meta
// carries a fatal error is emitted without records.
func (a *Assembler) Assemble(desc models.SourceDescriptor, coll *models.CollectionMeta, meta *models.ProcessingMeta, records []*models.Record) *models.Batch {
	if meta == nil {
		meta = models.NewProcessingMeta(desc, a.now())
	}
	batch := &models.Batch{Source: desc, Meta: meta, Collection: coll, Records: []*models.Record{}}
	if meta.Failed() {
		a.finalize(batch)
		return batch
	}

	injected := desc.InjectedFields()
	injected.Merge(coll.InjectedFields())
	indexed := models.Time(a.now())

	for _, rec := range records {
		out := rec.Clone()
		out.Fields.Merge(injected)
		out.Fields.Set(DateIndexedField, indexed)
		batch.Records = append(batch.Records, out)
	}
	a.finalize(batch)
	return batch
}

// finalize sets the accepted count, the property-name manifest in first-seen
// order, the count of records without geometry and the completion time.
func (a *Assembler) finalize(b *models.Batch) {
	seen := make(map[string]bool)
	names := make([]string, 0)
	missing := 0
	for _, rec := range b.Records {
		for _, k := range rec.Fields.Keys() {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
		if !rec.HasGeometry() {
			missing++
		}
	}
	b.Meta.AcceptedRecordCount = len(b.Records)
	if len(b.Records) > 0 {
		b.Meta.PropertyNames = names
	}
	b.Meta.ProcessingErrorsNumber = missing
	done := a.now()
	b.Meta.CompletedAt = &done
}
