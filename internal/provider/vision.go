package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

const visionTimeout = 90 * time.Second

// Vision is the last-resort provider. It points a vision model at the
// rendered flyer page for an area and asks for structured output. Disabled
// unless an inference endpoint is configured.
type Vision struct {
	endpoint  string
	modelName string
	pageBase  string
	client    *resty.Client
}

// NewVision constructs the provider. An empty endpoint leaves it unavailable.
func NewVision(endpoint, apiKey, modelName, pageBase string) *Vision {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	if pageBase == "" {
		pageBase = flyerWebBase
	}
	client := resty.New().SetTimeout(visionTimeout)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Vision{endpoint: endpoint, modelName: modelName, pageBase: pageBase, client: client}
}

func (v *Vision) ID() string      { return IDVision }
func (v *Vision) Available() bool { return v.endpoint != "" }

type visionRequest struct {
	Model      string `json:"model"`
	PageURL    string `json:"page_url"`
	PostalCode string `json:"postal_code"`
	Schema     string `json:"schema"`
}

type visionResponse struct {
	Stores []struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"stores"`
	Offers []struct {
		StoreName   string  `json:"store_name"`
		ProductName string  `json:"product_name"`
		Price       float64 `json:"price"`
		Unit        string  `json:"unit"`
	} `json:"offers"`
}

func (v *Vision) Fetch(ctx context.Context, area model.Area) (model.ResultSet, error) {
	if v.endpoint == "" {
		return model.ResultSet{}, NotSupported(IDVision, area)
	}

	req := visionRequest{
		Model:      v.modelName,
		PageURL:    fmt.Sprintf("%s/en-ca/flyers/groceries?postal_code=%s", v.pageBase, area),
		PostalCode: area.String(),
		Schema:     "grocery_flyer_v1",
	}
	var out visionResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(v.endpoint)
	if err != nil {
		return model.ResultSet{}, Transient(fmt.Errorf("vision extract: %w", err))
	}
	if err := classifyHTTPStatus(resp.StatusCode()); err != nil {
		return model.ResultSet{}, err
	}

	var set model.ResultSet
	for _, s := range out.Stores {
		if s.Name == "" || !LooksLikeGrocery(s.Name) {
			continue
		}
		set.Stores = append(set.Stores, model.StoreCandidate{
			Name:       s.Name,
			Chain:      ExtractChain(s.Name),
			Address:    s.Address,
			PostalCode: area,
			Source:     IDVision,
		})
	}
	for _, o := range out.Offers {
		if o.ProductName == "" {
			continue
		}
		set.Offers = append(set.Offers, model.OfferCandidate{
			StoreName:   o.StoreName,
			ProductName: o.ProductName,
			Price:       o.Price,
			Unit:        o.Unit,
			PostalCode:  area,
			Source:      IDVision,
		})
	}
	if set.Empty() {
		return model.ResultSet{}, NotSupported(IDVision, area)
	}
	return set, nil
}
