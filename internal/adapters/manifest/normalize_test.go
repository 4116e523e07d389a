package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mikey/eposter/internal/core"
)

func mustDecode(t *testing.T, s string) interface{} {
	t.Helper()
	doc, err := decodeDocument([]byte(s))
	if err != nil {
		t.Fatalf("decodeDocument() error = %v", err)
	}
	return doc
}

func ids(records []core.PosterRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.ID+"="+r.SourceURL)
	}
	return out
}

func TestNormalizeListShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "status envelope",
			doc:  `{"status":true,"message":"ok","data":[{"PosterId":12,"eposter_file":"http://h/12.png"}]}`,
			want: []string{"12=http://h/12.png"},
		},
		{
			name: "data list with legacy fields",
			doc:  `{"data":[{"id":"7","file":"http://h/7.jpg"}]}`,
			want: []string{"7=http://h/7.jpg"},
		},
		{
			name: "eposters list",
			doc:  `{"eposters":[{"id":3,"file":"http://h/3.jpg"},"junk"]}`,
			want: []string{"3=http://h/3.jpg"},
		},
		{
			name: "bare list",
			doc:  `[{"PosterId":1,"id":99,"eposter_file":"http://h/a.png","file":"http://h/b.png"}]`,
			want: []string{"1=http://h/a.png"},
		},
		{
			name: "missing fields are kept for the cache to report",
			doc:  `[{"title":"no id"}]`,
			want: []string{"="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Normalize(mustDecode(t, tt.doc), "1")
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(m.Records)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
			if m.DisplayMinutes != DefaultDisplayMinutes {
				t.Errorf("DisplayMinutes = %d, want %d", m.DisplayMinutes, DefaultDisplayMinutes)
			}
		})
	}
}

const screensDoc = `{
  "fetched_at": "03-02-2025-10:20:30",
  "screens": [
    {"screen_number": 1, "minutes_per_record": 2, "records": [
      {"PosterId": 10, "eposter_file": "http://h/10.png", "title": "Ten",
       "start_date_time": "03-02-2025 09:00:00", "end_date_time": "03-02-2025 09:30:00"},
      {"PosterId": 11, "eposter_file": "http://h/11.png"}
    ]},
    {"screen_number": "2", "records": [
      {"PosterId": 20, "eposter_file": "http://h/20.png",
       "start_date_time": "03-02-2025 09:00:00", "end_date_time": "03-02-2025 09:30:00"}
    ]}
  ],
  "booking_slot": [
    {"paper_details": {"PosterId": 30, "eposter_file": "http://h/30.png"}},
    {"paper_details": null},
    {"paper_details": {}}
  ]
}`

func TestNormalizeScreensDocument(t *testing.T) {
	m, err := Normalize(mustDecode(t, screensDoc), "1")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	start := time.Date(2025, 2, 3, 9, 0, 0, 0, time.Local)
	want := []core.PosterRecord{
		{ID: "10", SourceURL: "http://h/10.png", Title: "Ten", StartAt: start, EndAt: start.Add(30 * time.Minute), Origin: OriginScreen},
		{ID: "30", SourceURL: "http://h/30.png", Origin: OriginBooking},
	}
	if diff := cmp.Diff(want, m.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if m.DisplayMinutes != 2 {
		t.Errorf("DisplayMinutes = %d, want 2", m.DisplayMinutes)
	}
	wantFetched := time.Date(2025, 2, 3, 10, 20, 30, 0, time.Local)
	if !m.FetchedAt.Equal(wantFetched) {
		t.Errorf("FetchedAt = %v, want %v", m.FetchedAt, wantFetched)
	}
}

func TestNormalizeScreensDocumentOtherDevice(t *testing.T) {
	m, err := Normalize(mustDecode(t, screensDoc), "2")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"20=http://h/20.png", "30=http://h/30.png"}, ids(m.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if m.DisplayMinutes != DefaultDisplayMinutes {
		t.Errorf("DisplayMinutes = %d, want default", m.DisplayMinutes)
	}
}

func TestNormalizeScreensDocumentUnknownDevice(t *testing.T) {
	m, err := Normalize(mustDecode(t, screensDoc), "9")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"30=http://h/30.png"}, ids(m.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeNestedScreensDocument(t *testing.T) {
	doc := `{"status":true,"data":{"screens":[{"screen_number":"A","records":[
		{"id":"x","file":"http://h/x.png","start_date_time":"01-01-2025 00:00:00","end_date_time":"01-01-2025 01:00:00"}]}]}}`
	m, err := Normalize(mustDecode(t, doc), "A")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"x=http://h/x.png"}, ids(m.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeRejectsUnknownDocuments(t *testing.T) {
	for _, doc := range []string{`"hello"`, `42`, `{"status":false,"message":"bad key"}`} {
		if _, err := Normalize(mustDecode(t, doc), "1"); !errors.Is(err, errUnrecognized) {
			t.Errorf("Normalize(%s) error = %v, want errUnrecognized", doc, err)
		}
	}
}

func TestStamp(t *testing.T) {
	doc := map[string]interface{}{}
	now := time.Date(2025, 12, 31, 23, 59, 58, 0, time.Local)
	stamp(doc, now)

	want := map[string]interface{}{
		"fetched_at":   "31-12-2025-23:59:58",
		"fetched_date": "31-12-2025",
		"fetched_time": "23:59:58",
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("stamp mismatch (-want +got):\n%s", diff)
	}
}
