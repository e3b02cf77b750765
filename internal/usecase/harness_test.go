//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"docbatch/internal/domain/model"
	"docbatch/internal/infra/security"
	"docbatch/internal/usecase"
)

const testUser = "user-1"

type harness struct {
	store     *memStore
	jobs      *memJobRepo
	files     *memFileRepo
	records   *memRecordRepo
	outputs   *memOutputRepo
	objects   *memObjectStore
	extractor *fakeExtractor
	locker    *fakeLocker
	ledger    usecase.UsageLedger
	batch     usecase.BatchUseCase
	merge     usecase.MergeUseCase
	links     usecase.DownloadLinkIssuer
	tempDir   string
}

type harnessOpt func(*usecase.BatchOptions)

func withSweepLimit(n int) harnessOpt {
	return func(o *usecase.BatchOptions) { o.MaxFilesPerSweep = n }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	logger := newTestLogger()
	s := newMemStore()
	h := &harness{
		store:     s,
		jobs:      &memJobRepo{s},
		files:     &memFileRepo{s},
		records:   &memRecordRepo{s},
		outputs:   &memOutputRepo{s},
		objects:   newMemObjectStore(),
		extractor: newFakeExtractor(),
		locker:    newFakeLocker(),
		tempDir:   t.TempDir(),
	}
	bo := usecase.BatchOptions{MaxFilesPerJob: 10, MaxFilesPerSweep: 10, SweepLockTTL: time.Minute, Policy: model.PagePolicyActual}
	for _, o := range opts {
		o(&bo)
	}
	h.ledger = usecase.NewUsageLedger(&memAccountRepo{s}, &memChargeRepo{s}, s, 1, logger)
	processor := usecase.NewFileProcessor(h.files, h.records, h.objects, h.extractor, s, bo.Policy, logger)
	h.batch = usecase.NewBatchUseCase(h.jobs, h.files, h.objects, fakeValidator{}, h.locker, processor, h.ledger, s, bo, logger)
	h.links = usecase.NewDownloadLinkIssuer(h.outputs, security.NewTokenService(), 24*time.Hour, logger)
	h.merge = usecase.NewMergeUseCase(h.jobs, h.files, h.records, h.outputs, h.links, s, h.tempDir, logger)
	return h
}

// readyJob creates a job for testUser and uploads every file, leaving it ready.
// pages maps each filename to the page count the extractor reports.
func (h *harness) readyJob(t *testing.T, merge bool, format string, names []string, pages map[string]int) string {
	t.Helper()
	ctx := context.Background()
	in := usecase.CreateJobInput{Name: "Quarterly reports", Description: "Q1-Q3", MergeOutput: merge, MergeFormat: format}
	for _, n := range names {
		in.Files = append(in.Files, usecase.NewJobFile{Filename: n, EstimatedPages: 1})
		if p, ok := pages[n]; ok {
			conf := make([]float64, p)
			for i := range conf {
				conf[i] = 0.95
			}
			h.extractor.results[n] = &model.ExtractionResult{Text: "content of " + n, PageCount: p, PageConfidence: conf}
		}
	}
	view, err := h.batch.CreateJob(ctx, testUser, in)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	var ups []usecase.UploadFile
	for _, n := range names {
		ups = append(ups, usecase.UploadFile{Filename: n, ContentType: "application/pdf", Data: []byte("%PDF-1.7 " + n)})
	}
	res, err := h.batch.Upload(ctx, testUser, view.Job.ID, ups)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Status != model.JobStatusReady {
		t.Fatalf("expected job to be ready after uploading every file, got %s", res.Status)
	}
	return view.Job.ID
}

func (h *harness) fileStatuses(t *testing.T, jobID string) map[string]*model.BatchFile {
	t.Helper()
	files, err := h.files.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	out := map[string]*model.BatchFile{}
	for _, f := range files {
		out[f.Filename] = f
	}
	return out
}
