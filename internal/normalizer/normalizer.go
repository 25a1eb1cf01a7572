// Package normalizer converts fetched source files into record precursors.
// Every normalizer is total: problems are reported through the returned
// ProcessingMeta rather than as Go errors.
package normalizer

import (
	"context"
	"errors"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
)

var (
	// ErrNoNormalizer is returned when no registered normalizer accepts an input.
	ErrNoNormalizer = errors.New("no suitable normalizer found")
	// ErrContainerNotFound means an XML record set lacks a trailing list container.
	ErrContainerNotFound = errors.New("record container not found")
	// ErrUnsupportedMetadata means a metadata document uses an unknown standard.
	ErrUnsupportedMetadata = errors.New("unsupported metadata standard")
)

// Input is one fetched source file.
type Input struct {
	Source       models.SourceDescriptor
	Data         []byte
	ContentType  string
	DownloadedAt time.Time
}

// Result is the output of normalizing one source file. Records is empty
// whenever Meta carries a fatal error.
type Result struct {
	Meta    *models.ProcessingMeta
	Records []*models.Record
}

// Normalizer defines the interface for format specific normalizers.
type Normalizer interface {
	// Name returns the unique name of the normalizer.
	Name() string
	// CanNormalize returns true if this normalizer can handle the input.
	CanNormalize(in *Input) bool
	// Normalize converts the input. It never returns a nil Result.
	Normalize(ctx context.Context, in *Input) *Result
}

// Options configures the normalizers built by NewRegistry.
type Options struct {
	// CommaAllowed lists tabular columns whose cells may contain commas.
	CommaAllowed []string
	// DateColumns lists tabular columns that receive date repair.
	DateColumns []string
}

// DefaultOptions returns the column lists used by the harvester.
func DefaultOptions() Options {
	return Options{
		CommaAllowed: []string{
			"title",
			"alternatetitle",
			"abstract",
			"datatype",
			"supplementalinformation",
			"coordinates",
			"alternategeometry",
		},
		DateColumns: []string{"date", "datasetreferencedate"},
	}
}

func newMeta(in *Input, name string) *models.ProcessingMeta {
	downloaded := in.DownloadedAt
	if downloaded.IsZero() {
		downloaded = time.Now().UTC()
	}
	meta := models.NewProcessingMeta(in.Source, downloaded)
	meta.Normalizer = name
	return meta
}

func failed(meta *models.ProcessingMeta, kind models.ErrorKind, message string, cause error) *Result {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	meta.AddError(kind, message, detail)
	meta.AcceptedRecordCount = 0
	return &Result{Meta: meta, Records: []*models.Record{}}
}
