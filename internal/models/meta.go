package models

import (
	"fmt"
	"time"
)

// ErrorKind classifies batch-level errors.
type ErrorKind string

const (
	ErrorKindFetch        ErrorKind = "fetch"
	ErrorKindStructural   ErrorKind = "structural"
	ErrorKindEncoding     ErrorKind = "encoding"
	ErrorKindLine         ErrorKind = "line"
	ErrorKindDateCoercion ErrorKind = "date_coercion"
	ErrorKindUnsupported  ErrorKind = "unsupported"
)

// Fatal reports whether an error of this kind aborts its batch.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrorKindFetch, ErrorKindStructural, ErrorKindEncoding, ErrorKindUnsupported:
		return true
	}
	return false
}

// ProcessingError is one structured entry of a batch's error list.
type ProcessingError struct {
	Kind    ErrorKind `json:"kind" msgpack:"kind" bson:"kind"`
	Message string    `json:"message" msgpack:"message" bson:"message"`
	Detail  string    `json:"detail,omitempty" msgpack:"detail,omitempty" bson:"detail,omitempty"`
}

func (e ProcessingError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
}

// ProcessingMeta describes the normalization of one source file.
type ProcessingMeta struct {
	SourceURL              string            `json:"source_url" msgpack:"source_url" bson:"source_url"`
	SourceName             string            `json:"source_name,omitempty" msgpack:"source_name,omitempty" bson:"source_name,omitempty"`
	Normalizer             string            `json:"normalizer,omitempty" msgpack:"normalizer,omitempty" bson:"normalizer,omitempty"`
	DownloadedAt           time.Time         `json:"downloaded_at" msgpack:"downloaded_at" bson:"downloaded_at"`
	DetectedDelimiter      string            `json:"detected_delimiter,omitempty" msgpack:"detected_delimiter,omitempty" bson:"detected_delimiter,omitempty"`
	DetectedEncoding       string            `json:"detected_encoding,omitempty" msgpack:"detected_encoding,omitempty" bson:"detected_encoding,omitempty"`
	ContainerPath          []string          `json:"container_path,omitempty" msgpack:"container_path,omitempty" bson:"container_path,omitempty"`
	AcceptedRecordCount    int               `json:"accepted_record_count" msgpack:"accepted_record_count" bson:"accepted_record_count"`
	AcceptedColumns        []string          `json:"accepted_columns,omitempty" msgpack:"accepted_columns,omitempty" bson:"accepted_columns,omitempty"`
	PropertyNames          []string          `json:"property_names,omitempty" msgpack:"property_names,omitempty" bson:"property_names,omitempty"`
	ProcessingErrorsNumber int               `json:"processing_errors_number" msgpack:"processing_errors_number" bson:"processing_errors_number"`
	ErrorList              []ProcessingError `json:"error_list" msgpack:"error_list" bson:"error_list"`
	ErrorLines             []string          `json:"error_lines,omitempty" msgpack:"error_lines,omitempty" bson:"error_lines,omitempty"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty" msgpack:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// NewProcessingMeta starts the meta for a source file.
func NewProcessingMeta(desc SourceDescriptor, downloadedAt time.Time) *ProcessingMeta {
	return &ProcessingMeta{
		SourceURL:    desc.URL,
		SourceName:   desc.Name,
		DownloadedAt: downloadedAt,
		ErrorList:    []ProcessingError{},
	}
}

// AddError appends a structured error.
func (m *ProcessingMeta) AddError(kind ErrorKind, message, detail string) {
	m.ErrorList = append(m.ErrorList, ProcessingError{Kind: kind, Message: message, Detail: detail})
}

// Failed reports whether a batch-aborting error was recorded.
func (m *ProcessingMeta) Failed() bool {
	for _, e := range m.ErrorList {
		if e.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Batch is the output of normalizing one source file.
type Batch struct {
	Source     SourceDescriptor `json:"source"`
	Meta       *ProcessingMeta  `json:"processing_metadata"`
	Collection *CollectionMeta  `json:"collection,omitempty"`
	Records    []*Record        `json:"-"`
}

// FailedBatch builds an empty batch carrying one fatal error.
func FailedBatch(desc SourceDescriptor, meta *ProcessingMeta, kind ErrorKind, message string, cause error) *Batch {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	meta.AddError(kind, message, detail)
	meta.AcceptedRecordCount = 0
	return &Batch{Source: desc, Meta: meta, Records: []*Record{}}
}

// NoticeCount totals the notices across all records.
func (b *Batch) NoticeCount() int {
	n := 0
	for _, r := range b.Records {
		n += len(r.Notices)
	}
	return n
}
