// Package merchant implements catalog.API on the Google Content API v2.1.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	content "google.golang.org/api/content/v2.1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Client struct {
	merchantID uint64
	opts       []option.ClientOption
	logger     *logger.Logger

	mu  sync.RWMutex
	svc *content.APIService
}

// New connects with the service account in credentialsFile. Extra options
// are appended, so tests can point the client at a local endpoint.
func New(ctx context.Context, merchantID uint64, credentialsFile string, logger *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts,
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(content.ContentScope),
		)
	}
	opts = append(opts, extra...)

	c := &Client{merchantID: merchantID, opts: opts, logger: logger}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Authenticate rebuilds the service, which reloads credentials and drops any
// cached token.
func (c *Client) Authenticate(ctx context.Context) error {
	svc, err := content.NewService(ctx, c.opts...)
	if err != nil {
		return fmt.Errorf("failed to create content service: %w", err)
	}
	c.mu.Lock()
	c.svc = svc
	c.mu.Unlock()
	c.logger.Debug("Content API service ready for merchant %d", c.merchantID)
	return nil
}

func (c *Client) service() *content.APIService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svc
}

// SubmitBatch inserts products with one custombatch call. Local channel items
// that were accepted also get their store inventory set.
func (c *Client) SubmitBatch(ctx context.Context, channel models.Channel, payloads []catalog.Payload) ([]catalog.Result, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	if len(payloads) > catalog.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum %d", len(payloads), catalog.MaxBatchSize)
	}

	req := &content.ProductsCustomBatchRequest{}
	for i, p := range payloads {
		req.Entries = append(req.Entries, &content.ProductsCustomBatchRequestEntry{
			BatchId:    int64(i),
			MerchantId: c.merchantID,
			Method:     "insert",
			Product:    toProduct(p),
		})
	}

	resp, err := c.service().Products.Custombatch(req).Context(ctx).Do()
	if err != nil {
		return nil, remoteError(err)
	}

	results := make([]catalog.Result, len(payloads))
	for i := range results {
		results[i] = catalog.Result{Class: catalog.Retryable, Message: "no entry in batch response"}
	}
	for _, entry := range resp.Entries {
		i := int(entry.BatchId)
		if i < 0 || i >= len(payloads) {
			continue
		}
		if entry.Errors != nil {
			results[i] = entryFailure(entry.Errors)
			continue
		}
		externalID := payloads[i].ID
		if entry.Product != nil && entry.Product.Id != "" {
			externalID = entry.Product.Id
		}
		results[i] = catalog.Result{Class: catalog.Success, Code: http.StatusOK, ExternalID: externalID}
	}

	if channel == models.ChannelLocal {
		c.setLocalInventory(ctx, payloads, results)
	}
	return results, nil
}

func (c *Client) setLocalInventory(ctx context.Context, payloads []catalog.Payload, results []catalog.Result) {
	req := &content.LocalinventoryCustomBatchRequest{}
	for i, p := range payloads {
		if !results[i].OK() || p.StoreCode == "" || p.Quantity == nil {
			continue
		}
		req.Entries = append(req.Entries, &content.LocalinventoryCustomBatchRequestEntry{
			BatchId:    int64(i),
			MerchantId: c.merchantID,
			Method:     "insert",
			ProductId:  results[i].ExternalID,
			LocalInventory: &content.LocalInventory{
				StoreCode:    p.StoreCode,
				Quantity:     *p.Quantity,
				Availability: string(p.Availability),
				// Zero stock must still be sent.
				ForceSendFields: []string{"Quantity"},
			},
		})
	}
	if len(req.Entries) == 0 {
		return
	}

	resp, err := c.service().Localinventory.Custombatch(req).Context(ctx).Do()
	if err != nil {
		failed := catalog.ResultFromError(remoteError(err))
		for _, e := range req.Entries {
			results[e.BatchId] = failed
		}
		return
	}
	for _, entry := range resp.Entries {
		i := int(entry.BatchId)
		if i < 0 || i >= len(results) || entry.Errors == nil {
			continue
		}
		failed := entryFailure(entry.Errors)
		failed.Message = "local inventory: " + failed.Message
		results[i] = failed
	}
}

// DeleteItem removes a product. A product that is already gone counts as
// deleted.
func (c *Client) DeleteItem(ctx context.Context, channel models.Channel, externalID string) catalog.Result {
	err := c.service().Products.Delete(c.merchantID, externalID).Context(ctx).Do()
	if err == nil {
		return catalog.Result{Class: catalog.Success, Code: http.StatusNoContent, ExternalID: externalID}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		c.logger.Debug("Product %s already absent from %s", externalID, channel)
		return catalog.Result{Class: catalog.Success, Code: gerr.Code, ExternalID: externalID}
	}
	return catalog.ResultFromError(remoteError(err))
}

func toProduct(p catalog.Payload) *content.Product {
	return &content.Product{
		Id:              p.ID,
		OfferId:         p.OfferID,
		Title:           p.Title,
		Description:     p.Description,
		Link:            p.Link,
		ImageLink:       p.ImageLink,
		Price:           &content.Price{Value: p.Price.Value, Currency: p.Price.Currency},
		Availability:    string(p.Availability),
		Condition:       p.Condition,
		Channel:         string(p.Channel),
		ContentLanguage: p.ContentLanguage,
		TargetCountry:   p.TargetCountry,
	}
}

func remoteError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &catalog.RemoteError{StatusCode: gerr.Code, Message: gerr.Message}
	}
	return err
}

func entryFailure(errs *content.Errors) catalog.Result {
	code := int(errs.Code)
	if code == 0 {
		code = http.StatusBadRequest
	}
	msg := errs.Message
	if len(errs.Errors) > 0 {
		var parts []string
		for _, e := range errs.Errors {
			parts = append(parts, e.Reason+": "+e.Message)
		}
		msg = strings.Join(parts, "; ")
	}
	return catalog.Failed(code, msg)
}
