package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/stagelog/internal/model"
)

// mockSSRFGuard はURL検証結果を差し替え、テストサーバーへ接続できるクライアントを返す。
type mockSSRFGuard struct {
	validateErr error
	client      *http.Client
}

func (m *mockSSRFGuard) ValidateURL(string) error { return m.validateErr }

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	if m.client != nil {
		return m.client
	}
	return &http.Client{Timeout: timeout}
}

const venueFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Grand Theatre - What's On</title>
  <link>https://venue.example.com/</link>
  <item>
    <title>Hamilton</title>
    <description><![CDATA[<p><img src="/img/hamilton.jpg"> The musical</p>]]></description>
  </item>
  <item>
    <title>Cats</title>
    <enclosure url="https://cdn.example.com/cats.png" length="1" type="image/png"/>
  </item>
  <item>
    <title>Existing Show</title>
    <enclosure url="https://cdn.example.com/existing.png" length="1" type="image/png"/>
  </item>
  <item>
    <title>No Photo</title>
    <description>text only</description>
  </item>
  <item>
    <title>   </title>
    <enclosure url="https://cdn.example.com/blank.png" length="1" type="image/png"/>
  </item>
</channel>
</rss>`

func TestImportFeed_SubmitsPendingShows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, venueFeed)
	}))
	defer srv.Close()

	env := newTestEnv()
	env.shows.shows["existing"] = &model.Show{ID: "existing", Title: "Existing Show", ApprovalStatus: model.ApprovalApproved}

	im := NewImporter(env.svc, &mockSSRFGuard{}, 5*time.Second, 1<<20)
	result, err := im.ImportFeed(context.Background(), srv.URL, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Submitted != 2 || result.Duplicates != 1 || result.Skipped != 2 {
		t.Errorf("result = %+v, want {2 1 2}", *result)
	}

	byTitle := map[string]*model.Show{}
	for _, s := range env.shows.shows {
		byTitle[s.Title] = s
	}
	if got := byTitle["Hamilton"]; got == nil || got.PhotoURL != "https://venue.example.com/img/hamilton.jpg" {
		t.Errorf("Hamilton = %+v, want photo resolved against channel link", got)
	}
	if got := byTitle["Cats"]; got == nil || got.ApprovalStatus != model.ApprovalPending || got.CreatedBy != "admin-1" {
		t.Errorf("Cats = %+v, want pending by admin-1", got)
	}
	if len(env.notifier.sent) != 0 {
		t.Errorf("import should not notify, got %+v", env.notifier.sent)
	}
}

func TestImportFeed_Failures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		guard    *mockSSRFGuard
		maxSize  int64
		wantCode string
	}{
		{
			name:     "SSRFブロック",
			guard:    &mockSSRFGuard{validateErr: errors.New("blocked IP address")},
			maxSize:  1 << 20,
			wantCode: model.ErrCodeSSRFBlocked,
		},
		{
			name: "非200応答",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			guard:    &mockSSRFGuard{},
			maxSize:  1 << 20,
			wantCode: model.ErrCodeImportFailed,
		},
		{
			name: "フィードでない",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html><body>not a feed</body></html>")
			},
			guard:    &mockSSRFGuard{},
			maxSize:  1 << 20,
			wantCode: model.ErrCodeImportFailed,
		},
		{
			name: "サイズ超過",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, venueFeed)
			},
			guard:    &mockSSRFGuard{},
			maxSize:  64,
			wantCode: model.ErrCodeImportFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("blocked URL should not be fetched")
				}
			}
			srv := httptest.NewServer(handler)
			defer srv.Close()

			env := newTestEnv()
			im := NewImporter(env.svc, tt.guard, time.Second, tt.maxSize)
			_, err := im.ImportFeed(context.Background(), srv.URL, "admin-1")
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestFirstImageSrc(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"空", "", ""},
		{"画像なし", "<p>hello</p>", ""},
		{"最初の画像", `<p><img alt="a" src="a.jpg"><img src="b.jpg"></p>`, "a.jpg"},
		{"自己終了タグ", `<img src="c.png"/>`, "c.png"},
		{"srcなし", `<img alt="x"><img SRC="d.gif">`, "d.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstImageSrc(tt.in); got != tt.want {
				t.Errorf("firstImageSrc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	if got := resolveURL("https://venue.example.com/whats-on/", "../img/a.jpg"); got != "https://venue.example.com/img/a.jpg" {
		t.Errorf("relative = %q", got)
	}
	if got := resolveURL("https://venue.example.com/", "https://cdn.example.com/a.jpg"); !strings.HasPrefix(got, "https://cdn.example.com") {
		t.Errorf("absolute = %q", got)
	}
}
