// Package catalog defines the contract between the sync engine and the remote
// product catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"catalogsync/internal/models"
)

// MaxBatchSize is the largest number of entries the remote API accepts in one
// batch call.
const MaxBatchSize = 1000

// API is the remote catalog capability used by the engine.
type API interface {
	// SubmitBatch inserts or replaces every payload and returns one result per
	// payload, in order. A non-nil error means the call as a whole failed.
	SubmitBatch(ctx context.Context, channel models.Channel, payloads []Payload) ([]Result, error)
	DeleteItem(ctx context.Context, channel models.Channel, externalID string) Result
	// Authenticate refreshes credentials.
	Authenticate(ctx context.Context) error
}

// Payload is the channel-specific representation of one product.
type Payload struct {
	ProductID       int64                      `json:"-"`
	SKU             string                     `json:"-"`
	ID              string                     `json:"id"`
	OfferID         string                     `json:"offerId"`
	Title           string                     `json:"title"`
	Description     string                     `json:"description"`
	Link            string                     `json:"link"`
	ImageLink       string                     `json:"imageLink"`
	Price           Price                      `json:"price"`
	Availability    models.ProductAvailability `json:"availability"`
	Condition       string                     `json:"condition"`
	Channel         models.Channel             `json:"channel"`
	ContentLanguage string                     `json:"contentLanguage"`
	TargetCountry   string                     `json:"targetCountry"`
	// Local channel only.
	StoreCode string `json:"storeCode,omitempty"`
	Quantity  *int64 `json:"quantity,omitempty"`
}

type Price struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (p Payload) Key() models.Key {
	return models.Key{ProductID: p.ProductID, SKU: p.SKU}
}

// Class is the outcome category of a remote call.
type Class int

const (
	Success Class = iota
	Retryable
	NonRetryable
	AuthExpired
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case NonRetryable:
		return "non_retryable"
	case AuthExpired:
		return "auth_expired"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Result is the outcome of one item in a remote call.
type Result struct {
	ExternalID string
	Class      Class
	Code       int
	Message    string
}

func (r Result) OK() bool {
	return r.Class == Success
}

func (r Result) Error() string {
	if r.Code != 0 {
		return fmt.Sprintf("%s (%d): %s", r.Class, r.Code, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Class, r.Message)
}

// Classify maps a remote status code to an outcome class. Code 0 stands for
// a transport failure with no response.
func Classify(code int) Class {
	switch {
	case code >= 200 && code < 300:
		return Success
	case code == http.StatusUnauthorized:
		return AuthExpired
	case code == 0,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= 500:
		return Retryable
	default:
		return NonRetryable
	}
}

// RemoteError carries the status code of a failed remote call.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote catalog error %d: %s", e.StatusCode, e.Message)
}

// Failed builds a failure result classified from code.
func Failed(code int, message string) Result {
	class := Classify(code)
	if class == Success {
		class = NonRetryable
	}
	return Result{Class: class, Code: code, Message: message}
}

// ResultFromError classifies a whole-call error.
func ResultFromError(err error) Result {
	var re *RemoteError
	if errors.As(err, &re) {
		return Failed(re.StatusCode, re.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Class: Retryable, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return Result{Class: NonRetryable, Message: err.Error()}
	}
	return Result{Class: Retryable, Message: err.Error()}
}
