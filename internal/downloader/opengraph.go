package downloader

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"fknsrs.biz/p/vidscribe/internal/ctxhttpclient"
)

// fillFromOpenGraph fills in blank metadata from the page's og: tags.
func fillFromOpenGraph(ctx context.Context, pageURL string, res *Result) error {
	hres, err := ctxhttpclient.Get(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("downloader.fillFromOpenGraph: %w", err)
	}
	defer hres.Body.Close()

	doc, err := goquery.NewDocumentFromReader(hres.Body)
	if err != nil {
		return fmt.Errorf("downloader.fillFromOpenGraph: %w", err)
	}

	meta := func(property string) string {
		return doc.Find(`meta[property="` + property + `"]`).AttrOr("content", "")
	}

	if res.Title == "" {
		res.Title = meta("og:title")
	}
	if res.Title == "" {
		res.Title = doc.Find("title").First().Text()
	}
	if res.ThumbnailURL == "" {
		res.ThumbnailURL = meta("og:image")
	}
	if res.Description == "" {
		res.Description = plainText(meta("og:description"))
	}

	return nil
}
