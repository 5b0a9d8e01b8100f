package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gocolly/colly/v2"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

const (
	pdfOCRTimeout = 60 * time.Second // OCR runs are slow
	pdfOCRMaxDocs = 5
)

// PDFOCR discovers flyer PDFs for an area and hands them to an external OCR
// service that returns structured offers. Fourth in the hierarchy; disabled
// unless an OCR endpoint is configured.
type PDFOCR struct {
	ocrEndpoint string
	crawlBase   string
	client      *resty.Client
}

// NewPDFOCR constructs the provider. An empty ocrEndpoint leaves it
// unavailable. crawlBase overrides the flyer site for tests.
func NewPDFOCR(ocrEndpoint, crawlBase string) *PDFOCR {
	if crawlBase == "" {
		crawlBase = flyerWebBase
	}
	return &PDFOCR{
		ocrEndpoint: ocrEndpoint,
		crawlBase:   crawlBase,
		client:      resty.New().SetTimeout(pdfOCRTimeout),
	}
}

func (p *PDFOCR) ID() string      { return IDPDFOCR }
func (p *PDFOCR) Available() bool { return p.ocrEndpoint != "" }

// ocrResult is the OCR service's response for one document.
type ocrResult struct {
	StoreName string `json:"store_name"`
	Offers    []struct {
		ProductName string  `json:"product_name"`
		Brand       string  `json:"brand"`
		Category    string  `json:"category"`
		Price       float64 `json:"price"`
		Unit        string  `json:"unit"`
		ValidFrom   string  `json:"valid_from"`
		ValidTo     string  `json:"valid_to"`
	} `json:"offers"`
}

// Fetch crawls the area's flyer listing for PDF links and runs each through
// the OCR service.
func (p *PDFOCR) Fetch(ctx context.Context, area model.Area) (model.ResultSet, error) {
	if p.ocrEndpoint == "" {
		return model.ResultSet{}, NotSupported(IDPDFOCR, area)
	}

	pdfURLs, err := p.discoverPDFs(ctx, area)
	if err != nil {
		return model.ResultSet{}, err
	}
	if len(pdfURLs) == 0 {
		return model.ResultSet{}, NotSupported(IDPDFOCR, area)
	}

	var set model.ResultSet
	for i, pdfURL := range pdfURLs {
		if i >= pdfOCRMaxDocs {
			break
		}
		result, err := p.extract(ctx, pdfURL)
		if err != nil {
			continue // one bad document does not void the rest
		}
		if result.StoreName == "" {
			continue
		}
		set.Stores = append(set.Stores, model.StoreCandidate{
			Name:       result.StoreName,
			Chain:      ExtractChain(result.StoreName),
			PostalCode: area,
			FlyerURL:   pdfURL,
			Source:     IDPDFOCR,
		})
		for _, o := range result.Offers {
			if o.ProductName == "" {
				continue
			}
			set.Offers = append(set.Offers, model.OfferCandidate{
				StoreName:   result.StoreName,
				ProductName: o.ProductName,
				Brand:       o.Brand,
				Category:    o.Category,
				Price:       o.Price,
				Unit:        o.Unit,
				StartDate:   ParseDate(o.ValidFrom),
				EndDate:     ParseDate(o.ValidTo),
				PostalCode:  area,
				Source:      IDPDFOCR,
			})
		}
	}
	return set, nil
}

func (p *PDFOCR) discoverPDFs(ctx context.Context, area model.Area) ([]string, error) {
	c := colly.NewCollector(
		colly.UserAgent(flippUserAgent),
		colly.StdlibContext(ctx),
	)

	var urls []string
	seen := make(map[string]bool)
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") || seen[href] {
			return
		}
		seen[href] = true
		urls = append(urls, href)
	})

	url := fmt.Sprintf("%s/en-ca/%s/flyers/groceries", p.crawlBase, strings.ToLower(area.String()))
	if err := c.Visit(url); err != nil {
		return nil, Transient(fmt.Errorf("discover flyers: %w", err))
	}
	c.Wait()
	return urls, nil
}

// extract asks the OCR service to process one flyer PDF by URL.
func (p *PDFOCR) extract(ctx context.Context, pdfURL string) (ocrResult, error) {
	var out ocrResult
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"document_url": pdfURL}).
		SetResult(&out).
		Post(p.ocrEndpoint)
	if err != nil {
		return ocrResult{}, Transient(fmt.Errorf("ocr %s: %w", pdfURL, err))
	}
	if err := classifyHTTPStatus(resp.StatusCode()); err != nil {
		return ocrResult{}, err
	}
	return out, nil
}
