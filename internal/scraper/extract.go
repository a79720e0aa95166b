package scraper

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/apod-api/internal/apod"
)

// DefaultExtractorVersion is the page layout used when none is configured
const DefaultExtractorVersion = "v1"

// Page holds the fields pulled out of one APOD page
type Page struct {
	Title         string
	Description   string
	Image         string
	FullSizeImage string
	Authors       []apod.Author
}

// Extractor maps a parsed APOD page onto a Page.
// Implementations must not fail on layout mismatches; missing elements leave fields empty.
type Extractor interface {
	Version() string
	Extract(doc *goquery.Document, page *url.URL) Page
}

var extractors = map[string]Extractor{
	DefaultExtractorVersion: LayoutV1{},
}

// Lookup returns the extractor registered for version
func Lookup(version string) (Extractor, error) {
	ext, ok := extractors[version]
	if !ok {
		return nil, fmt.Errorf("unknown extractor version %q (known: %s)", version, strings.Join(Versions(), ", "))
	}
	return ext, nil
}

// Versions lists the registered extractor versions
func Versions() []string {
	versions := make([]string, 0, len(extractors))
	for v := range extractors {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Selectors for the classic APOD layout. These paths are the contract with apod.nasa.gov.
const (
	v1DescriptionSelector = "body > p:nth-of-type(1)"
	v1CreditsSelector     = "center:nth-of-type(2)"
	v1ImageParagraph      = "center:nth-of-type(1) p:nth-of-type(2)"
)

var newlineStripper = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// LayoutV1 extracts fields from the page layout APOD has used since the 1990s:
//
//	<center> h1, <p> archive link, <p> date <br> <a href=full><img src=thumb></a> </center>
//	<center> <b>title</b> ... credit anchors </center>
//	<p> explanation </p>
type LayoutV1 struct{}

// Version implements Extractor
func (LayoutV1) Version() string { return "v1" }

// Extract implements Extractor
func (LayoutV1) Extract(doc *goquery.Document, page *url.URL) Page {
	var p Page

	desc := doc.Find(v1DescriptionSelector).First().Text()
	p.Description = strings.TrimSpace(newlineStripper.Replace(desc))

	credits := doc.Find(v1CreditsSelector).First()
	p.Title = strings.TrimSpace(credits.Find("b").First().Text())

	p.Authors = make([]apod.Author, 0)
	credits.Find("a").Each(func(i int, a *goquery.Selection) {
		p.Authors = append(p.Authors, apod.Author{
			Name:    strings.TrimSpace(a.Text()),
			Website: resolveURL(page, a.AttrOr("href", "")),
		})
	})

	// The second element child of the date paragraph is the full-size link
	// wrapping the thumbnail. Video days put an iframe there instead.
	anchor := doc.Find(v1ImageParagraph).First().Children().Eq(1)
	if anchor.Is("a") {
		p.FullSizeImage = resolveURL(page, anchor.AttrOr("href", ""))

		if img := anchor.Children().First(); img.Is("img") {
			p.Image = resolveURL(page, img.AttrOr("src", ""))
		}
	}

	return p
}

// resolveURL resolves ref against the page URL. Empty or unparseable refs yield "".
func resolveURL(page *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if page == nil {
		return u.String()
	}
	return page.ResolveReference(u).String()
}
