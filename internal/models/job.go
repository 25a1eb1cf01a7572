package models

import "time"

// JobStatus represents the status of a harvest job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// HarvestJob tracks one asynchronous harvest run.
type HarvestJob struct {
	ID               string    `json:"id"`
	CollectionID     string    `json:"collectionId"`
	Status           JobStatus `json:"status"`
	Progress         float64   `json:"progress"` // 0-100
	FilesTotal       int       `json:"filesTotal"`
	FilesDone        int       `json:"filesDone"`
	FailedFiles      int       `json:"failedFiles"`
	RecordCount      int       `json:"recordCount"`
	NoticeCount      int       `json:"noticeCount"`
	ProcessingTimeMs int64     `json:"processingTimeMs,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	Errors           []string  `json:"errors,omitempty"`
}

// NewHarvestJob creates a job in pending status.
func NewHarvestJob(id, collectionID string) *HarvestJob {
	return &HarvestJob{
		ID:           id,
		CollectionID: collectionID,
		Status:       JobStatusPending,
		StartedAt:    time.Now(),
		Errors:       make([]string, 0),
	}
}

// HarvestReport summarizes a harvest across all of a collection's files.
type HarvestReport struct {
	Collection  *CollectionMeta   `json:"collection"`
	Files       []*ProcessingMeta `json:"files"`
	FileCount   int               `json:"file_count"`
	FailedFiles int               `json:"failed_files"`
	RecordCount int               `json:"record_count"`
	NoticeCount int               `json:"notice_count"`
	Batches     []*Batch          `json:"-"`
}

// Add folds a finished batch into the report.
func (r *HarvestReport) Add(b *Batch) {
	r.Batches = append(r.Batches, b)
	r.Files = append(r.Files, b.Meta)
	r.FileCount++
	if b.Meta.Failed() {
		r.FailedFiles++
	}
	r.RecordCount += len(b.Records)
	r.NoticeCount += b.NoticeCount()
}
