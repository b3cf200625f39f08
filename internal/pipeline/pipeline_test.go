package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"jobtracker/internal/classifier"
	"jobtracker/internal/enrich"
	"jobtracker/internal/filter"
	"jobtracker/internal/mailbox"
	"jobtracker/internal/model"
	"jobtracker/internal/task"
)

type fakeMailbox struct {
	msgs    map[string]*mailbox.Message
	order   []string
	listErr error
	queries []string
}

func (f *fakeMailbox) ListMessageIDs(_ context.Context, query, _ string) (mailbox.Page, error) {
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return mailbox.Page{}, f.listErr
	}
	return mailbox.Page{IDs: f.order}, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string, _ mailbox.Format) (*mailbox.Message, error) {
	m, ok := f.msgs[id]
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	c := *m
	return &c, nil
}

type labelByMessage map[string]classifier.Result

func (l labelByMessage) Classify(_ context.Context, _ string, id string) classifier.Result {
	if r, ok := l[id]; ok {
		return r
	}
	return classifier.Err("no scripted label")
}

type fakeEnricher struct {
	mu      sync.Mutex
	company string
	title   string
	// byText overrides company for an exact input text
	byText  map[string]string
	enrichd []string
}

func (f *fakeEnricher) ExtractCompanyAndTitle(_ context.Context, text string) (string, string) {
	if c, ok := f.byText[text]; ok {
		return c, f.title
	}
	return f.company, f.title
}

func (f *fakeEnricher) Enrich(_ context.Context, company, _ string) enrich.Posting {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrichd = append(f.enrichd, company)
	return enrich.Posting{URL: "https://jobs.example/1", Summary: "sum"}
}

type memEmails struct {
	batches [][]model.EmailRecord
	err     error
}

func (m *memEmails) InsertBatch(_ context.Context, recs []model.EmailRecord) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.batches = append(m.batches, recs)
	return len(recs), nil
}

var received = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func message(id, thread, subject, from string, internal int64) *mailbox.Message {
	return &mailbox.Message{
		ID: id, ThreadID: thread, Subject: subject, From: from,
		Date: received, InternalDate: internal, Body: "body of " + id,
	}
}

func newFixture() *fakeMailbox {
	return &fakeMailbox{
		order: []string{"m1", "m2", "m3", "m4"},
		msgs: map[string]*mailbox.Message{
			"m1": message("m1", "t1", "Thank you for applying to Acme", "Acme Talent <no-reply@acme.com>", 300),
			"m2": message("m2", "t2", "Your application was received", "jobs@globex.com", 200),
			"m3": message("m3", "t3", "Weekly newsletter", "news@example.com", 100),
			"m4": message("m4", "t4", "Thank you for your application", "careers@initech.com", 50),
		},
	}
}

func newTestScanner(mb *fakeMailbox, store task.Store, cls Classifier, enr Enricher, emails EmailStore, doEnrich bool) *Scanner {
	rules := &filter.Set{
		Base: filter.Document{
			{Field: filter.FieldSubject, How: filter.HowInclude, Logic: filter.LogicAny, Terms: []string{"thank you for", "application was received"}},
		},
	}
	return NewScanner(store, StaticOpener{Provider: mb}, rules, cls, enr, emails, nil,
		ScannerConfig{Concurrency: 3, Enrich: doEnrich}, zap.NewNop())
}

func TestScannerStoresClassifiedMessages(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	tk, _ := store.Create(ctx, 42, task.TypeScan)

	mb := newFixture()
	cls := labelByMessage{
		"m1": classifier.Ok(classifier.LabelConfirmation, classifier.SourceModel),
		"m2": classifier.Ok(classifier.LabelFalsePositive, classifier.SourceCache),
		// m4 has no scripted label and is stored as unknown
	}
	enr := &fakeEnricher{company: enrich.Unknown, title: "Engineer"}
	emails := &memEmails{}
	start := time.Unix(1700000000, 0)

	s := newTestScanner(mb, store, cls, enr, emails, true)
	if err := s.Run(ctx, tk.ID, 42, &start); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(emails.batches) != 1 {
		t.Fatalf("InsertBatch calls = %d, want 1", len(emails.batches))
	}
	type row struct{ ID, Company, Status, Title, URL string }
	var got []row
	for _, r := range emails.batches[0] {
		got = append(got, row{r.MessageID, r.CompanyName, r.ApplicationStatus, r.JobTitle, r.PostingURL})
	}
	want := []row{
		{"m1", "acme", "Application confirmation", "Engineer", "https://jobs.example/1"},
		{"m4", "initech", "unknown", "Engineer", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored records mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"acme"}, enr.enrichd); diff != "" {
		t.Errorf("enriched companies mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(mb.queries[0], "after:1700000000") {
		t.Errorf("query = %q, want after bound", mb.queries[0])
	}

	final, _ := store.Get(ctx, tk.ID, 42, task.TypeScan)
	if final.Status != task.StatusFinished {
		t.Fatalf("status = %s, want finished", final.Status)
	}
	if final.ProcessedCount != 4 || final.TotalCount != 4 {
		t.Errorf("progress = %d/%d, want 4/4", final.ProcessedCount, final.TotalCount)
	}
	var res task.ScanResult
	if err := json.Unmarshal(final.Result, &res); err != nil {
		t.Fatal(err)
	}
	wantRes := task.ScanResult{Total: 4, Processed: 4, Inserted: 2, Skipped: 2}
	if diff := cmp.Diff(wantRes, res); diff != "" {
		t.Errorf("scan result mismatch (-want +got):\n%s", diff)
	}
}

func TestScannerAutomatedSenderFallsBackToSubject(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	tk, _ := store.Create(ctx, 7, task.TypeScan)

	mb := &fakeMailbox{
		order: []string{"a1", "a2"},
		msgs: map[string]*mailbox.Message{
			"a1": message("a1", "t1", "Thank you for applying to Globex", "SmartRecruiters <noreply@smartrecruiters.com>", 20),
			"a2": message("a2", "t2", "Thank you for your interest", "careers@initech.com", 10),
		},
	}
	cls := labelByMessage{
		"a1": classifier.Ok(classifier.LabelConfirmation, classifier.SourceModel),
		"a2": classifier.Ok(classifier.LabelConfirmation, classifier.SourceModel),
	}
	enr := &fakeEnricher{
		company: enrich.Unknown,
		title:   enrich.Unknown,
		byText: map[string]string{
			"Thank you for applying to Globex": "Globex",
			"Thank you for your interest":      "Wrong",
		},
	}
	emails := &memEmails{}

	s := newTestScanner(mb, store, cls, enr, emails, false)
	if err := s.Run(ctx, tk.ID, 7, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := map[string]string{}
	for _, r := range emails.batches[0] {
		got[r.MessageID] = r.CompanyName
	}
	// a2 is a personal sender: no subject retry, the sender domain wins
	want := map[string]string{"a1": "Globex", "a2": "initech"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("companies mismatch (-want +got):\n%s", diff)
	}
}

type memCompanies struct{ names []string }

func (m *memCompanies) Upsert(_ context.Context, name, _ string) error {
	m.names = append(m.names, name)
	return nil
}

func TestScannerIngestForwardedMessage(t *testing.T) {
	// subjects below do not match the local rules; forwarded mail bypasses them
	tests := []struct {
		name        string
		label       classifier.Result
		insertErr   error
		wantStored  []string
		wantCompany []string
		wantErr     bool
	}{
		{"application", classifier.Ok(classifier.LabelInterview, classifier.SourceModel), nil, []string{"Interview invitation"}, []string{"acme"}, false},
		{"false positive", classifier.Ok(classifier.LabelFalsePositive, classifier.SourceModel), nil, nil, nil, false},
		{"classifier down", classifier.Err("timeout"), nil, []string{"unknown"}, []string{"acme"}, false},
		{"store down", classifier.Ok(classifier.LabelInterview, classifier.SourceModel), errors.New("db down"), nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emails := &memEmails{err: tt.insertErr}
			companies := &memCompanies{}
			s := NewScanner(task.NewMemoryStore(), StaticOpener{}, &filter.Set{}, labelByMessage{"ses-1": tt.label},
				&fakeEnricher{company: enrich.Unknown, title: "Engineer"}, emails, companies, ScannerConfig{}, zap.NewNop())

			msg := message("ses-1", "t1", "Next steps", "Acme Talent <talent@acme.com>", 0)
			err := s.Ingest(context.Background(), 5, msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ingest() error = %v, wantErr %v", err, tt.wantErr)
			}

			var stored []string
			for _, b := range emails.batches {
				for _, r := range b {
					if r.UserID != 5 || r.MessageID != "ses-1" {
						t.Errorf("record = %+v", r)
					}
					stored = append(stored, r.ApplicationStatus)
				}
			}
			if diff := cmp.Diff(tt.wantStored, stored); diff != "" {
				t.Errorf("stored statuses mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCompany, companies.names); diff != "" {
				t.Errorf("upserted companies mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScannerListingFailureFailsTask(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	tk, _ := store.Create(ctx, 1, task.TypeScan)

	mb := newFixture()
	mb.listErr = errors.New("invalid_grant: token expired")
	emails := &memEmails{}

	s := newTestScanner(mb, store, labelByMessage{}, nil, emails, false)
	if err := s.Run(ctx, tk.ID, 1, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	final, _ := store.Get(ctx, tk.ID, 1, task.TypeScan)
	if final.Status != task.StatusFailed || !strings.Contains(final.Error, "token expired") {
		t.Errorf("task = %s %q, want failed with listing error", final.Status, final.Error)
	}
	if len(emails.batches) != 0 {
		t.Error("records stored after listing failure")
	}
}

func TestScannerPersistenceFailureFailsTask(t *testing.T) {
	ctx := context.Background()
	store := task.NewMemoryStore()
	tk, _ := store.Create(ctx, 1, task.TypeScan)

	cls := labelByMessage{"m1": classifier.Ok(classifier.LabelRejection, classifier.SourceModel)}
	emails := &memEmails{err: errors.New("connection reset")}

	s := newTestScanner(newFixture(), store, cls, nil, emails, false)
	_ = s.Run(ctx, tk.ID, 1, nil)

	final, _ := store.Get(ctx, tk.ID, 1, task.TypeScan)
	if final.Status != task.StatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
}

func TestScannerUsesLastFinishedScanAsBound(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1710000000, 0)
	store := task.NewMemoryStore().WithClock(func() time.Time { return clock })

	prev, _ := store.Create(ctx, 5, task.TypeScan)
	_, _ = task.Start(ctx, store, prev.ID)
	_, _ = task.Finish(ctx, store, prev.ID, task.ScanResult{})

	tk, _ := store.Create(ctx, 5, task.TypeScan)
	mb := &fakeMailbox{msgs: map[string]*mailbox.Message{}}
	s := newTestScanner(mb, store, labelByMessage{}, nil, &memEmails{}, false)
	if err := s.Run(ctx, tk.ID, 5, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(mb.queries[0], "after:1710000000") {
		t.Errorf("query = %q, want after:1710000000", mb.queries[0])
	}
}

type stubPostingScraper struct {
	posting enrich.Posting
	err     error
}

func (s stubPostingScraper) ScrapeAndSummarize(context.Context, string) (enrich.Posting, error) {
	return s.posting, s.err
}

func TestScraperRun(t *testing.T) {
	ctx := context.Background()

	t.Run("finished", func(t *testing.T) {
		store := task.NewMemoryStore()
		tk, _ := store.Create(ctx, 3, task.TypeScrape)
		p := enrich.Posting{URL: "https://x", RawDescription: "raw", Summary: "s"}
		if err := NewScraper(store, stubPostingScraper{posting: p}, zap.NewNop()).Run(ctx, tk.ID, "https://x"); err != nil {
			t.Fatal(err)
		}
		got, _ := store.Get(ctx, tk.ID, 3, task.TypeScrape)
		var decoded map[string]string
		_ = json.Unmarshal(got.Result, &decoded)
		want := map[string]string{"url": "https://x", "raw_description": "raw", "summary": "s"}
		if got.Status != task.StatusFinished {
			t.Errorf("status = %s", got.Status)
		}
		if diff := cmp.Diff(want, decoded); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failed", func(t *testing.T) {
		store := task.NewMemoryStore()
		tk, _ := store.Create(ctx, 3, task.TypeScrape)
		err := NewScraper(store, stubPostingScraper{err: errors.New("status 404")}, zap.NewNop()).Run(ctx, tk.ID, "https://x")
		if err != nil {
			t.Fatal(err)
		}
		got, _ := store.Get(ctx, tk.ID, 3, task.TypeScrape)
		if got.Status != task.StatusFailed || got.Error != "status 404" {
			t.Errorf("task = %s %q", got.Status, got.Error)
		}
	})
}
