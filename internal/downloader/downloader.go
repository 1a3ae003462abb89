// Package downloader fetches source videos with yt-dlp.
package downloader

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/lrstanley/go-ytdlp"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/config"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/toollimit"
	"fknsrs.biz/p/vidscribe/models"
)

const Format = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

var (
	ErrNoMediaFile = fmt.Errorf("download finished but no media file was found")
)

type Result struct {
	Title           string
	Description     string
	DurationSeconds *int
	ThumbnailURL    string
	ChannelName     string
	// Path is relative to the data path.
	Path string
}

// FetchArgs is everything one yt-dlp run needs.
type FetchArgs struct {
	URL            string
	OutputTemplate string
	CookiesPath    string
	Username       string
	Password       string
}

// FetchFunc runs the download and returns the info JSON yt-dlp printed.
type FetchFunc func(ctx context.Context, args FetchArgs) (string, error)

type CredentialsFunc func(ctx context.Context) ([]models.PlatformCredential, error)

type Downloader struct {
	Config      config.Config
	Credentials CredentialsFunc
	Limits      *toollimit.Limits
	// Fetch defaults to running yt-dlp.
	Fetch FetchFunc
}

func (d *Downloader) Download(ctx context.Context, videoID int, rawURL string) (*Result, error) {
	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"video.id":  videoID,
		"video.url": rawURL,
	})

	id := strconv.Itoa(videoID)

	if err := os.MkdirAll(d.Config.DataFile("videos", id), 0755); err != nil {
		return nil, fmt.Errorf("downloader.Downloader.Download: %w", err)
	}

	args := FetchArgs{
		URL:            rawURL,
		OutputTemplate: d.Config.DataFile("videos", id, "video.%(ext)s"),
	}

	if d.Credentials != nil {
		credentials, err := d.Credentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("downloader.Downloader.Download: could not load credentials: %w", err)
		}

		if c := MatchCredential(credentials, rawURL); c != nil {
			l = l.WithFields(logrus.Fields{"credential.id": c.ID, "credential.auth_type": c.AuthType})

			switch c.AuthType {
			case models.AuthTypeCookies:
				if c.CookiesPath != nil {
					p := d.Config.ResolveDataFile(*c.CookiesPath)
					if _, err := os.Stat(p); err == nil {
						args.CookiesPath = p
					} else {
						l.Warn("credential cookie file is missing; downloading without it")
					}
				}
			case models.AuthTypeLogin:
				if c.Username != "" {
					args.Username = c.Username
					args.Password = c.Password
				}
			}
		}
	}

	fetch := d.Fetch
	if fetch == nil {
		fetch = d.runYTDLP
	}

	l.Info("starting download")

	var info string
	if err := d.Limits.Do(ctx, toollimit.Download, func() error {
		s, err := fetch(ctx, args)
		if err != nil {
			return err
		}
		info = s
		return nil
	}); err != nil {
		return nil, fmt.Errorf("downloader.Downloader.Download: %w", err)
	}

	res, err := ParseInfo([]byte(info))
	if err != nil {
		return nil, fmt.Errorf("downloader.Downloader.Download: %w", err)
	}

	if res.Title == "" || res.ThumbnailURL == "" {
		if err := fillFromOpenGraph(ctx, rawURL, res); err != nil {
			l.WithError(err).Warn("could not read opengraph metadata")
		}
	}

	name, err := FindMediaFile(d.Config.DataFile("videos", id))
	if err != nil {
		return nil, fmt.Errorf("downloader.Downloader.Download: %w", err)
	}

	res.Path = d.Config.RelativeDataFile("videos", id, name)

	l.WithField("video.path", res.Path).Info("finished download")

	return res, nil
}

func (d *Downloader) runYTDLP(ctx context.Context, args FetchArgs) (string, error) {
	cmd := ytdlp.New().
		Format(Format).
		MergeOutputFormat("mp4").
		Output(args.OutputTemplate).
		NoPlaylist().
		DumpJSON().
		NoSimulate()

	if d.Config.YTDLPBinary != "" {
		cmd = cmd.SetExecutable(d.Config.YTDLPBinary)
	}
	if args.CookiesPath != "" {
		cmd = cmd.Cookies(args.CookiesPath)
	}
	if args.Username != "" {
		cmd = cmd.Username(args.Username).Password(args.Password)
	}

	res, err := cmd.Run(ctx, args.URL)
	if err != nil {
		if res != nil {
			return "", fmt.Errorf("downloader.runYTDLP: %w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return "", fmt.Errorf("downloader.runYTDLP: %w", err)
	}

	return res.Stdout, nil
}

// ParseInfo reads the fields we keep out of yt-dlp's info JSON. Only the
// last line is considered, as yt-dlp prints one object per line.
func ParseInfo(d []byte) (*Result, error) {
	s := strings.TrimSpace(string(d))
	if i := strings.LastIndex(s, "\n"); i != -1 {
		s = s[i+1:]
	}

	c, err := gabs.ParseJSON([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("downloader.ParseInfo: %w", err)
	}

	str := func(path string) string {
		v, _ := c.Path(path).Data().(string)
		return v
	}

	res := Result{
		Title:        str("title"),
		Description:  plainText(str("description")),
		ThumbnailURL: str("thumbnail"),
		ChannelName:  str("channel"),
	}

	if res.ChannelName == "" {
		res.ChannelName = str("uploader")
	}

	if f, ok := c.Path("duration").Data().(float64); ok {
		n := int(math.Round(f))
		res.DurationSeconds = &n
	}

	return &res, nil
}

// MatchCredential picks the credential whose platform fragment appears in
// the URL's host name. The longest fragment wins; on a tie the earlier
// credential in creds wins.
func MatchCredential(creds []models.PlatformCredential, rawURL string) *models.PlatformCredential {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil
	}

	var best *models.PlatformCredential
	for i := range creds {
		fragment := strings.ToLower(strings.TrimSpace(creds[i].PlatformURL))
		if fragment == "" || !strings.Contains(host, fragment) {
			continue
		}

		if best == nil || len(fragment) > len(strings.TrimSpace(best.PlatformURL)) {
			best = &creds[i]
		}
	}

	return best
}

// FindMediaFile returns the name of the downloaded media in dir.
func FindMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("downloader.FindMediaFile: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "video.") {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}

		return name, nil
	}

	return "", fmt.Errorf("downloader.FindMediaFile: %s: %w", dir, ErrNoMediaFile)
}
