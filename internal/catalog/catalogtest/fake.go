// Package catalogtest provides a scripted catalog.API for tests.
package catalogtest

import (
	"context"
	"sync"

	"catalogsync/internal/catalog"
	"catalogsync/internal/models"
)

// Fake answers every call with success unless a scripted result is queued for
// the item. Queued results are consumed one per attempt.
type Fake struct {
	mu sync.Mutex

	items     map[string][]catalog.Result
	deletes   map[string][]catalog.Result
	batchErrs []error
	authErr   error

	Submitted  map[models.Channel][]catalog.Payload
	BatchCalls int
	Deleted    []string
	AuthCalls  int
}

func New() *Fake {
	return &Fake{
		items:     make(map[string][]catalog.Result),
		deletes:   make(map[string][]catalog.Result),
		Submitted: make(map[models.Channel][]catalog.Payload),
	}
}

// FailItem queues results for the next submissions of sku.
func (f *Fake) FailItem(sku string, results ...catalog.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[sku] = append(f.items[sku], results...)
}

// FailDelete queues results for the next deletions of externalID.
func (f *Fake) FailDelete(externalID string, results ...catalog.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[externalID] = append(f.deletes[externalID], results...)
}

// FailBatch makes the next whole batch calls return errs in order.
func (f *Fake) FailBatch(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchErrs = append(f.batchErrs, errs...)
}

func (f *Fake) FailAuth(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authErr = err
}

func (f *Fake) SubmitBatch(ctx context.Context, channel models.Channel, payloads []catalog.Payload) ([]catalog.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.BatchCalls++
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		f.batchErrs = f.batchErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	results := make([]catalog.Result, len(payloads))
	for i, p := range payloads {
		if queued := f.items[p.SKU]; len(queued) > 0 {
			f.items[p.SKU] = queued[1:]
			if !queued[0].OK() {
				results[i] = queued[0]
				continue
			}
		}
		f.Submitted[channel] = append(f.Submitted[channel], p)
		results[i] = catalog.Result{Class: catalog.Success, Code: 200, ExternalID: p.ID}
	}
	return results, nil
}

func (f *Fake) DeleteItem(ctx context.Context, channel models.Channel, externalID string) catalog.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if queued := f.deletes[externalID]; len(queued) > 0 {
		f.deletes[externalID] = queued[1:]
		if !queued[0].OK() {
			return queued[0]
		}
	}
	f.Deleted = append(f.Deleted, externalID)
	return catalog.Result{Class: catalog.Success, Code: 204, ExternalID: externalID}
}

func (f *Fake) Authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCalls++
	return f.authErr
}

// Sent returns the SKUs accepted on channel, in order.
func (f *Fake) Sent(channel models.Channel) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var skus []string
	for _, p := range f.Submitted[channel] {
		skus = append(skus, p.SKU)
	}
	return skus
}

// SentCount counts accepted payloads across channels.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ps := range f.Submitted {
		n += len(ps)
	}
	return n
}
