// Package archive keeps a copy of every committed run in object storage:
// the raw staging snapshot it was computed from, its audit rows and its
// summary, under runs/<run_id>/.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

const (
	runsPrefix = "runs"

	StagingObject  = "staging.json"
	RejectedObject = "rejected.ndjson"
	SummaryObject  = "summary.json"

	jsonContentType   = "application/json"
	ndjsonContentType = "application/x-ndjson"
)

// Archiver implements pipeline.Archiver on a StorageService.
type Archiver struct {
	storage StorageService
	bucket  string
}

var _ pipeline.Archiver = (*Archiver)(nil)

// New creates an Archiver writing into bucket.
func New(storage StorageService, bucket string) *Archiver {
	return &Archiver{storage: storage, bucket: bucket}
}

// RunPath returns the object name of file within the archive of a run.
func RunPath(runID, file string) string {
	return path.Join(runsPrefix, runID, file)
}

// RunIDFromPath extracts the run ID from an object name or prefix under
// runs/, e.g. "runs/<id>" or "runs/<id>/summary.json".
func RunIDFromPath(object string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.Trim(object, "/"), runsPrefix+"/")
	if !ok {
		return "", false
	}
	runID, _, _ := strings.Cut(rest, "/")
	return runID, runID != ""
}

// stagingSnapshot is the archived form of domain.Staging. Rows go through
// pipeline.EncodeRaw so that non-finite amounts survive.
type stagingSnapshot struct {
	Customers []json.RawMessage `json:"customers"`
	Balance   []json.RawMessage `json:"customer_balance"`
	Orders    []json.RawMessage `json:"customer_orders"`
}

// ArchiveRun uploads the staging snapshot, the audit rows and the summary
// of a committed run. The summary is written last and marks the archive complete.
func (a *Archiver) ArchiveRun(ctx context.Context, staging *domain.Staging, batch *domain.Batch, summary *domain.Summary) error {
	if batch == nil || summary == nil {
		return fmt.Errorf("ArchiveRun: batch and summary are required")
	}
	log := logger.FromContext(ctx)

	snapshot, err := encodeStaging(staging)
	if err != nil {
		return fmt.Errorf("ArchiveRun: encoding staging: %w", err)
	}
	rejected, err := encodeRejected(batch.Rejected)
	if err != nil {
		return fmt.Errorf("ArchiveRun: encoding rejected records: %w", err)
	}
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("ArchiveRun: encoding summary: %w", err)
	}

	objects := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{StagingObject, snapshot, jsonContentType},
		{RejectedObject, rejected, ndjsonContentType},
		{SummaryObject, summaryJSON, jsonContentType},
	}

	for _, obj := range objects {
		name := RunPath(batch.RunID, obj.name)
		if err := a.storage.Upload(ctx, a.bucket, name, obj.data, obj.contentType); err != nil {
			return fmt.Errorf("ArchiveRun: uploading %s: %w", name, err)
		}
	}

	log.Info().
		Str("run_id", batch.RunID).
		Str("uri", ObjectURI(a.bucket, RunPath(batch.RunID, ""))).
		Msg("run archived")
	return nil
}

// FetchSummary reads back the archived summary of a run.
func (a *Archiver) FetchSummary(ctx context.Context, runID string) (*domain.Summary, error) {
	data, err := a.storage.Download(ctx, a.bucket, RunPath(runID, SummaryObject))
	if err != nil {
		return nil, fmt.Errorf("FetchSummary: %w", err)
	}

	var summary domain.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("FetchSummary: decoding summary: %w", err)
	}
	return &summary, nil
}

// FetchRejected reads back the archived audit rows of a run.
func (a *Archiver) FetchRejected(ctx context.Context, runID string) ([]domain.RejectedRecord, error) {
	data, err := a.storage.Download(ctx, a.bucket, RunPath(runID, RejectedObject))
	if err != nil {
		return nil, fmt.Errorf("FetchRejected: %w", err)
	}

	var out []domain.RejectedRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec domain.RejectedRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("FetchRejected: decoding line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func encodeStaging(staging *domain.Staging) ([]byte, error) {
	snap := stagingSnapshot{
		Customers: []json.RawMessage{},
		Balance:   []json.RawMessage{},
		Orders:    []json.RawMessage{},
	}
	if staging != nil {
		for _, r := range staging.Customers {
			snap.Customers = append(snap.Customers, pipeline.EncodeRaw(r))
		}
		for _, r := range staging.Balance {
			snap.Balance = append(snap.Balance, pipeline.EncodeRaw(r))
		}
		for _, r := range staging.Orders {
			snap.Orders = append(snap.Orders, pipeline.EncodeRaw(r))
		}
	}
	return json.Marshal(snap)
}

func encodeRejected(records []domain.RejectedRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
