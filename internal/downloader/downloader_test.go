package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/vidscribe/internal/config"
	"fknsrs.biz/p/vidscribe/internal/ctxhttpclient"
	"fknsrs.biz/p/vidscribe/internal/ptr"
	"fknsrs.biz/p/vidscribe/models"
)

func TestMatchCredential(t *testing.T) {
	creds := []models.PlatformCredential{
		{ID: 1, PlatformURL: "a.com"},
		{ID: 2, PlatformURL: "video.example.org"},
		{ID: 3, PlatformURL: "example.org"},
		{ID: 4, PlatformURL: "EXAMPLE.ORG"},
		{ID: 5, PlatformURL: ""},
	}

	for _, tc := range []struct {
		url string
		id  int
	}{
		{"https://sub.a.com/watch?v=1", 1},
		{"https://a.com/x", 1},
		{"https://video.example.org/v/1", 2},
		{"https://www.example.org/v/1", 3},
		{"https://b.net/v/1", 0},
		{"not a url at all", 0},
	} {
		t.Run(tc.url, func(t *testing.T) {
			a := assert.New(t)

			c := MatchCredential(creds, tc.url)
			if tc.id == 0 {
				a.Nil(c)
				return
			}

			if a.NotNil(c) {
				a.Equal(tc.id, c.ID)
			}
		})
	}
}

func TestParseInfo(t *testing.T) {
	for _, tc := range []struct {
		name  string
		in    string
		out   *Result
		isErr bool
	}{
		{
			"full",
			`{"title":"T","description":"D","duration":62.6,"thumbnail":"https://i/1.jpg","channel":"C","uploader":"U"}`,
			&Result{Title: "T", Description: "D", DurationSeconds: ptr.Int(63), ThumbnailURL: "https://i/1.jpg", ChannelName: "C"},
			false,
		},
		{
			"uploader fallback",
			`{"title":"T","uploader":"U"}`,
			&Result{Title: "T", ChannelName: "U"},
			false,
		},
		{
			"last line wins",
			"[info] something\n" + `{"title":"T","duration":5}`,
			&Result{Title: "T", DurationSeconds: ptr.Int(5)},
			false,
		},
		{"garbage", "nope", nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			res, err := ParseInfo([]byte(tc.in))
			if tc.isErr {
				a.Error(err)
				return
			}

			a.NoError(err)
			a.Equal(tc.out, res)
		})
	}
}

func TestFindMediaFile(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()

	_, err := FindMediaFile(dir)
	a.ErrorIs(err, ErrNoMediaFile)

	a.NoError(os.WriteFile(filepath.Join(dir, "audio.wav"), nil, 0644))
	a.NoError(os.WriteFile(filepath.Join(dir, "video.mp4.part"), nil, 0644))

	_, err = FindMediaFile(dir)
	a.ErrorIs(err, ErrNoMediaFile)

	a.NoError(os.WriteFile(filepath.Join(dir, "video.webm"), nil, 0644))

	name, err := FindMediaFile(dir)
	a.NoError(err)
	a.Equal("video.webm", name)
}

func fakeFetch(seen *FetchArgs, info string) FetchFunc {
	return func(ctx context.Context, args FetchArgs) (string, error) {
		*seen = args
		p := strings.Replace(args.OutputTemplate, "%(ext)s", "mp4", 1)
		if err := os.WriteFile(p, []byte("media"), 0644); err != nil {
			return "", err
		}
		return info, nil
	}
}

func TestDownload(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	cfg := config.Config{ApplicationDataPath: dir}

	a.NoError(os.MkdirAll(filepath.Join(dir, "cookies", "1"), 0755))
	a.NoError(os.WriteFile(filepath.Join(dir, "cookies", "1", "cookies.txt"), []byte("# cookies"), 0644))

	var seen FetchArgs
	d := Downloader{
		Config: cfg,
		Credentials: func(ctx context.Context) ([]models.PlatformCredential, error) {
			return []models.PlatformCredential{
				{ID: 1, PlatformURL: "a.com", AuthType: models.AuthTypeCookies, CookiesPath: ptr.String("cookies/1/cookies.txt")},
				{ID: 2, PlatformURL: "b.com", AuthType: models.AuthTypeLogin, Username: "me", Password: "pw"},
			}, nil
		},
		Fetch: fakeFetch(&seen, `{"title":"Hello","thumbnail":"https://i/t.jpg","duration":10,"uploader":"Up"}`),
	}

	res, err := d.Download(context.Background(), 4, "https://sub.a.com/v/1")
	a.NoError(err)
	a.Equal(&Result{
		Title:           "Hello",
		DurationSeconds: ptr.Int(10),
		ThumbnailURL:    "https://i/t.jpg",
		ChannelName:     "Up",
		Path:            "videos/4/video.mp4",
	}, res)
	a.Equal(filepath.Join(dir, "cookies", "1", "cookies.txt"), seen.CookiesPath)
	a.Equal(filepath.Join(dir, "videos", "4", "video.%(ext)s"), seen.OutputTemplate)
	a.Equal("", seen.Username)

	_, err = d.Download(context.Background(), 5, "https://www.b.com/v/1")
	a.NoError(err)
	a.Equal("", seen.CookiesPath)
	a.Equal("me", seen.Username)
	a.Equal("pw", seen.Password)
}

func TestDownloadSkipsMissingCookieFile(t *testing.T) {
	a := assert.New(t)

	var seen FetchArgs
	d := Downloader{
		Config: config.Config{ApplicationDataPath: t.TempDir()},
		Credentials: func(ctx context.Context) ([]models.PlatformCredential, error) {
			return []models.PlatformCredential{
				{ID: 1, PlatformURL: "a.com", AuthType: models.AuthTypeCookies, CookiesPath: ptr.String("cookies/1/cookies.txt")},
			}, nil
		},
		Fetch: fakeFetch(&seen, `{"title":"x","thumbnail":"y"}`),
	}

	_, err := d.Download(context.Background(), 1, "https://a.com/v")
	a.NoError(err)
	a.Equal("", seen.CookiesPath)
}

func TestDownloadPropagatesErrors(t *testing.T) {
	a := assert.New(t)

	d := Downloader{
		Config: config.Config{ApplicationDataPath: t.TempDir()},
		Fetch: func(ctx context.Context, args FetchArgs) (string, error) {
			return "", fmt.Errorf("ERROR: Unsupported URL")
		},
	}

	_, err := d.Download(context.Background(), 1, "https://a.com/v")
	a.ErrorContains(err, "Unsupported URL")
}

func TestDownloadFallsBackToOpenGraph(t *testing.T) {
	a := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("content-type", "text/html")
		io.WriteString(rw, `<html><head>
<meta property="og:title" content="From OG">
<meta property="og:image" content="https://img/og.jpg">
<meta property="og:description" content="OG description">
</head></html>`)
	}))
	defer srv.Close()

	var seen FetchArgs
	d := Downloader{
		Config: config.Config{ApplicationDataPath: t.TempDir()},
		Fetch:  fakeFetch(&seen, `{"duration":3}`),
	}

	ctx := ctxhttpclient.WithHTTPClient(context.Background(), srv.Client())

	res, err := d.Download(ctx, 2, srv.URL+"/v/2")
	a.NoError(err)
	a.Equal("From OG", res.Title)
	a.Equal("https://img/og.jpg", res.ThumbnailURL)
	a.Equal("OG description", res.Description)
}
