//go:build !integration

package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
	"docbatch/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// memStore is an in-memory record store. WithTx snapshots every table and
// restores it when fn fails, so rollback behaves like the real database.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]model.BatchJob
	files    map[string]model.BatchFile
	records  map[string]model.ProcessingRecord
	outputs  map[string]model.BatchOutput
	accounts map[string]model.UserAccount
	charges  map[string]model.UsageCharge // by idempotency key

	debits int
	// failFileUpdate makes the next n file updates fail, for internal-error paths.
	failFileUpdate int
	// onFileUpdate, when set, runs before a file update and may veto it.
	onFileUpdate func(ctx context.Context, file *model.BatchFile) error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[string]model.BatchJob{},
		files:    map[string]model.BatchFile{},
		records:  map[string]model.ProcessingRecord{},
		outputs:  map[string]model.BatchOutput{},
		accounts: map[string]model.UserAccount{},
		charges:  map[string]model.UsageCharge{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ repository.TransactionManager = (*memStore)(nil)

func (s *memStore) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	jobs, files, records := cloneMap(s.jobs), cloneMap(s.files), cloneMap(s.records)
	outputs, accounts, charges := cloneMap(s.outputs), cloneMap(s.accounts), cloneMap(s.charges)
	debits := s.debits
	s.mu.Unlock()

	if err := fn(ctx, "mem-tx"); err != nil {
		s.mu.Lock()
		s.jobs, s.files, s.records = jobs, files, records
		s.outputs, s.accounts, s.charges = outputs, accounts, charges
		s.debits = debits
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) setBalance(userID string, credits int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = model.UserAccount{ID: userID, CreditBalance: credits}
}

func (s *memStore) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[userID].CreditBalance
}

func (s *memStore) job(id string) model.BatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// snapshot renders every table deterministically, to compare states byte for byte.
func (s *memStore) snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []string
	for _, f := range s.files {
		lines = append(lines, fmt.Sprintf("file %s %s %d %v %v", f.ID, f.Status, f.ActualPages, deref(f.RecordID), deref(f.ChargeID)))
	}
	for _, r := range s.records {
		lines = append(lines, fmt.Sprintf("record %s %s %d", r.ID, r.SourceFilename, r.PageCount))
	}
	for _, a := range s.accounts {
		lines = append(lines, fmt.Sprintf("account %s %d %d", a.ID, a.CreditBalance, a.PagesUsed))
	}
	for _, c := range s.charges {
		lines = append(lines, fmt.Sprintf("charge %s %d", c.IdempotencyKey, c.Pages))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

// --- jobs ---

type memJobRepo struct{ s *memStore }

var _ repository.BatchJobRepository = (*memJobRepo)(nil)

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.BatchJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}

func (r *memJobRepo) UpdateIfStatus(ctx context.Context, tx repository.Tx, job *model.BatchJob, expected ...model.JobStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, e := range expected {
		if cur.Status == e {
			r.s.jobs[job.ID] = *job
			return nil
		}
	}
	return domain.ErrStatusConflict
}

func (r *memJobRepo) ListStale(ctx context.Context, tx repository.Tx, status model.JobStatus, before time.Time, limit int) ([]*model.BatchJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.BatchJob
	for _, j := range r.s.jobs {
		if j.Status == status && j.UpdatedAt.Before(before) {
			cp := j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- files ---

type memFileRepo struct{ s *memStore }

var _ repository.BatchFileRepository = (*memFileRepo)(nil)

func (r *memFileRepo) CreateMany(ctx context.Context, tx repository.Tx, files []*model.BatchFile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range files {
		r.s.files[f.ID] = *f
	}
	return nil
}

func (r *memFileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *memFileRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.BatchFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.BatchFile
	for _, f := range r.s.files {
		if f.JobID == jobID {
			cp := f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

func (r *memFileRepo) UpdateIfStatus(ctx context.Context, tx repository.Tx, file *model.BatchFile, expected ...model.FileStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failFileUpdate > 0 {
		r.s.failFileUpdate--
		return domain.ErrOperationFailed
	}
	if r.s.onFileUpdate != nil {
		if err := r.s.onFileUpdate(ctx, file); err != nil {
			return err
		}
	}
	cur, ok := r.s.files[file.ID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, e := range expected {
		if cur.Status == e {
			r.s.files[file.ID] = *file
			return nil
		}
	}
	return domain.ErrStatusConflict
}

func (r *memFileRepo) MarkCharged(ctx context.Context, tx repository.Tx, fileIDs []string, chargeID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range fileIDs {
		f, ok := r.s.files[id]
		if ok && f.ChargeID == nil {
			c := chargeID
			f.ChargeID = &c
			r.s.files[id] = f
		}
	}
	return nil
}

// --- records ---

type memRecordRepo struct{ s *memStore }

var _ repository.ProcessingRecordRepository = (*memRecordRepo)(nil)

func (r *memRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ProcessingRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.records[rec.ID] = *rec
	return nil
}

func (r *memRecordRepo) FindByIDs(ctx context.Context, tx repository.Tx, ids []string) (map[string]*model.ProcessingRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]*model.ProcessingRecord{}
	for _, id := range ids {
		if rec, ok := r.s.records[id]; ok {
			cp := rec
			out[id] = &cp
		}
	}
	return out, nil
}

// --- outputs ---

type memOutputRepo struct{ s *memStore }

var _ repository.BatchOutputRepository = (*memOutputRepo)(nil)

func (r *memOutputRepo) Save(ctx context.Context, tx repository.Tx, out *model.BatchOutput) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outputs[out.ID] = *out
	return nil
}

func (r *memOutputRepo) Consume(ctx context.Context, tx repository.Tx, id, tokenHash string, now time.Time) (*model.BatchOutput, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.outputs[id]
	if !ok || o.TokenHash != tokenHash || !o.Usable(now) {
		return nil, domain.ErrNotFound
	}
	t := now
	o.ConsumedAt = &t
	r.s.outputs[id] = o
	return &o, nil
}

func (r *memOutputRepo) ListExpired(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.BatchOutput, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.BatchOutput
	for _, o := range r.s.outputs {
		if o.PurgedAt == nil && o.ExpiresAt.Before(before) {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memOutputRepo) MarkPurged(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.outputs[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.PurgedAt = &at
	r.s.outputs[id] = o
	return nil
}

func (r *memOutputRepo) expire(id string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o := r.s.outputs[id]
	o.ExpiresAt = time.Now().Add(-time.Minute)
	r.s.outputs[id] = o
}

// --- ledger ---

type memAccountRepo struct{ s *memStore }

var _ repository.AccountRepository = (*memAccountRepo)(nil)

func (r *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.UserAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *memAccountRepo) Debit(ctx context.Context, tx repository.Tx, userID string, credits int64, pages int) (*model.UserAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[userID]
	if !ok || a.CreditBalance < credits {
		return nil, domain.ErrInsufficientCredits
	}
	a.CreditBalance -= credits
	a.PagesUsed += int64(pages)
	r.s.accounts[userID] = a
	r.s.debits++
	return &a, nil
}

type memChargeRepo struct{ s *memStore }

var _ repository.UsageChargeRepository = (*memChargeRepo)(nil)

func (r *memChargeRepo) Insert(ctx context.Context, tx repository.Tx, c *model.UsageCharge) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.charges[c.IdempotencyKey]; ok {
		return false, nil
	}
	r.s.charges[c.IdempotencyKey] = *c
	return true, nil
}

func (r *memChargeRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) (*model.UsageCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.charges[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// --- adapters ---

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ adapter.ObjectStore = (*memObjectStore)(nil)

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}}
}

func (m *memObjectStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	b, err := m.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (m *memObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// fakeExtractor answers per filename. Unknown files extract one page of text.
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]*model.ExtractionResult
	errs    map[string]error
	calls   int
	// hook runs before each extraction; tests use it to cancel or panic.
	hook func(ctx context.Context, in adapter.ExtractionInput)
}

var _ adapter.Extractor = (*fakeExtractor)(nil)

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{results: map[string]*model.ExtractionResult{}, errs: map[string]error{}}
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(ctx context.Context, in adapter.ExtractionInput) (*model.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	res, ok := f.results[in.Filename]
	err := f.errs[in.Filename]
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !ok {
		return &model.ExtractionResult{Text: "text of " + in.Filename, PageCount: 1, PageConfidence: []float64{0.9}}, nil
	}
	cp := *res
	return &cp, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeValidator accepts anything starting with the PDF magic and echoes the page estimate it was seeded with.
type fakeValidator struct{}

func (fakeValidator) Validate(ctx context.Context, filename, contentType string, data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, fmt.Errorf("%w: not a PDF document", domain.ErrUploadRejected)
	}
	return 0, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

var _ adapter.Locker = (*fakeLocker)(nil)

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	tok := fmt.Sprintf("tok-%d", len(l.held)+1)
	l.held[key] = tok
	return tok, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("not the holder")
	}
	delete(l.held, key)
	return nil
}
