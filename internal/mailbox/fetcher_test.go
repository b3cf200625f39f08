package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakeProvider struct {
	pages    map[string]Page
	messages map[string]*Message
	queries  []string
}

func (f *fakeProvider) ListMessageIDs(_ context.Context, query, pageToken string) (Page, error) {
	f.queries = append(f.queries, query)
	page, ok := f.pages[pageToken]
	if !ok {
		return Page{}, errors.New("unexpected page token " + pageToken)
	}
	return page, nil
}

func (f *fakeProvider) GetMessage(_ context.Context, id string, _ Format) (*Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func TestDedupThreadsKeepsNewest(t *testing.T) {
	in := []Meta{
		{ID: "a", ThreadID: "T1", InternalDate: 100},
		{ID: "b", ThreadID: "T1", InternalDate: 200},
		{ID: "c", ThreadID: "T1", InternalDate: 150},
	}
	want := []Meta{{ID: "b", ThreadID: "T1", InternalDate: 200}}
	if diff := cmp.Diff(want, DedupThreads(in)); diff != "" {
		t.Errorf("DedupThreads() mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupThreadsIsIdempotent(t *testing.T) {
	in := []Meta{
		{ID: "a", ThreadID: "T1", InternalDate: 100},
		{ID: "b", ThreadID: "T2", InternalDate: 300},
		{ID: "c", ThreadID: "T1", InternalDate: 250},
		{ID: "d", ThreadID: "T3", InternalDate: 10},
		{ID: "e", ThreadID: "T2", InternalDate: 300},
		{ID: "f", InternalDate: 5},
		{ID: "g", InternalDate: 6},
	}
	once := DedupThreads(in)
	want := []Meta{
		{ID: "c", ThreadID: "T1", InternalDate: 250},
		{ID: "b", ThreadID: "T2", InternalDate: 300},
		{ID: "d", ThreadID: "T3", InternalDate: 10},
		{ID: "f", InternalDate: 5},
		{ID: "g", InternalDate: 6},
	}
	if diff := cmp.Diff(want, once); diff != "" {
		t.Errorf("DedupThreads() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(once, DedupThreads(once)); diff != "" {
		t.Errorf("DedupThreads() not idempotent (-first +second):\n%s", diff)
	}
}

func TestListCandidateIDsFollowsPagesAndDedups(t *testing.T) {
	p := &fakeProvider{
		pages: map[string]Page{
			"":   {IDs: []string{"m1", "m2"}, NextPageToken: "p2"},
			"p2": {IDs: []string{"m3", "missing"}, NextPageToken: "p3"},
			"p3": {IDs: []string{"m4"}},
		},
		messages: map[string]*Message{
			"m1": {ID: "m1", ThreadID: "T1", InternalDate: 100},
			"m2": {ID: "m2", ThreadID: "T2", InternalDate: 120},
			"m3": {ID: "m3", ThreadID: "T1", InternalDate: 200},
			"m4": {ID: "m4", ThreadID: "T1", InternalDate: 150},
		},
	}

	after := time.Unix(1700000000, 0)
	got, err := NewFetcher(p, zap.NewNop()).ListCandidateIDs(context.Background(), `subject:"applied"`, &after)
	if err != nil {
		t.Fatalf("ListCandidateIDs() error = %v", err)
	}
	if diff := cmp.Diff([]string{"m3", "m2"}, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	wantQuery := `subject:"applied" after:1700000000`
	for _, q := range p.queries {
		if q != wantQuery {
			t.Errorf("query = %q, want %q", q, wantQuery)
		}
	}
	if len(p.queries) != 3 {
		t.Errorf("listed %d pages, want 3", len(p.queries))
	}
}

func TestListCandidateIDsListingFailure(t *testing.T) {
	p := &fakeProvider{pages: map[string]Page{}}
	if _, err := NewFetcher(p, zap.NewNop()).ListCandidateIDs(context.Background(), "q", nil); err == nil {
		t.Error("ListCandidateIDs() error = nil, want listing error")
	}
}

func TestWithAfter(t *testing.T) {
	ts := time.Unix(1234, 0)
	tests := []struct {
		query string
		after *time.Time
		want  string
	}{
		{"q", nil, "q"},
		{"q", &ts, "q after:1234"},
		{"", &ts, "after:1234"},
	}
	for _, tt := range tests {
		if got := WithAfter(tt.query, tt.after); got != tt.want {
			t.Errorf("WithAfter(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestFetchMessageNormalizes(t *testing.T) {
	p := &fakeProvider{messages: map[string]*Message{
		"m1": {
			ID:           "m1",
			From:         "Acme\r\n <jobs@acme.com>",
			Subject:      "Thanks\tfor applying",
			InternalDate: 1700000000000,
			Payload: &Part{MimeType: "multipart/alternative", Parts: []*Part{
				{MimeType: "text/html", Body: []byte("<p>html</p>")},
				{MimeType: "text/plain; charset=utf-8", Body: []byte("plain body\n")},
			}},
		},
	}}

	m, err := NewFetcher(p, zap.NewNop()).FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FetchMessage() error = %v", err)
	}
	if m.From != "Acme <jobs@acme.com>" || m.Subject != "Thanksfor applying" {
		t.Errorf("headers not cleaned: from=%q subject=%q", m.From, m.Subject)
	}
	if m.Body != "plain body" {
		t.Errorf("Body = %q, want plain body", m.Body)
	}
	if !m.Date.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Date = %v, want internal date", m.Date)
	}
	if got := m.Content(); got != "Thanksfor applying\nplain body" {
		t.Errorf("Content() = %q", got)
	}
}

func TestFetchMessageNotFound(t *testing.T) {
	p := &fakeProvider{messages: map[string]*Message{}}
	_, err := NewFetcher(p, zap.NewNop()).FetchMessage(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchMessage() error = %v, want ErrNotFound", err)
	}
}
