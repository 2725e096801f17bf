// Package validation turns source products into remote catalog payloads.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/inventory"
	"catalogsync/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	maxTitleLength       = 150
	maxDescriptionLength = 5000
)

// Reason codes for rejected products.
const (
	ReasonMissingField = "missing_field"
	ReasonNonPositive  = "non_positive"
	ReasonInvalid      = "invalid"
)

// Warning codes for products that are still sent.
const (
	WarningMissingImage = "missing_image"
	WarningMissingStock = "missing_stock"
)

// InvalidProduct explains why a product cannot be sent.
type InvalidProduct struct {
	Reason  string
	Field   string
	Message string
}

func (ip *InvalidProduct) Error() string {
	return fmt.Sprintf("invalid %s: %s", ip.Field, ip.Message)
}

// Result holds exactly one of Payload or Invalid.
type Result struct {
	Payload  *catalog.Payload
	Invalid  *InvalidProduct
	Warnings []string
}

func (r Result) Valid() bool {
	return r.Payload != nil
}

func (r Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w == code {
			return true
		}
	}
	return false
}

type Settings struct {
	ContentLanguage  string
	TargetCountry    string
	Currency         string
	StoreBaseURL     string
	PlaceholderImage string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ContentLanguage:  cfg.ContentLanguage,
		TargetCountry:    cfg.TargetCountry,
		Currency:         cfg.Currency,
		StoreBaseURL:     cfg.StoreBaseURL,
		PlaceholderImage: cfg.PlaceholderImage,
	}
}

type Validator struct {
	settings Settings
	validate *validator.Validate
}

func New(settings Settings) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{settings: settings, validate: v}
}

// required is the validated view of a product.
type required struct {
	SKU   string   `json:"sku" validate:"required"`
	Title string   `json:"title" validate:"required"`
	Price *float64 `json:"price" validate:"required,gt=0"`
}

// Build maps one classified product to its channel payload. level is only
// read for the local channel.
func (v *Validator) Build(p models.Product, channel models.Channel, level *inventory.Level) Result {
	if invalid := v.check(p); invalid != nil {
		return Result{Invalid: invalid}
	}

	var res Result
	image := ""
	if len(p.Images) > 0 {
		image = p.Images[0]
	} else {
		image = v.settings.PlaceholderImage
		res.Warnings = append(res.Warnings, WarningMissingImage)
	}

	payload := &catalog.Payload{
		ProductID:       p.ID,
		SKU:             p.SKU,
		ID:              RemoteID(channel, v.settings.ContentLanguage, v.settings.TargetCountry, p.SKU),
		OfferID:         p.SKU,
		Title:           truncate(p.Title, maxTitleLength),
		Description:     truncate(p.Description, maxDescriptionLength),
		Link:            v.link(p),
		ImageLink:       image,
		Price:           catalog.Price{Value: p.Price.Round(2).StringFixed(2), Currency: v.settings.Currency},
		Availability:    availability(p.StockStatus),
		Condition:       "new",
		Channel:         channel,
		ContentLanguage: v.settings.ContentLanguage,
		TargetCountry:   v.settings.TargetCountry,
	}

	if channel == models.ChannelLocal {
		lvl := inventory.Level{}
		if level != nil {
			lvl = *level
		}
		if level == nil || lvl.Missing {
			res.Warnings = append(res.Warnings, WarningMissingStock)
		}
		qty := lvl.Quantity
		payload.StoreCode = lvl.StoreCode
		payload.Quantity = &qty
		if qty > 0 {
			payload.Availability = models.AvailabilityInStock
		} else {
			payload.Availability = models.AvailabilityOutOfStock
		}
	}

	res.Payload = payload
	return res
}

func (v *Validator) check(p models.Product) *InvalidProduct {
	in := required{SKU: strings.TrimSpace(p.SKU), Title: strings.TrimSpace(p.Title)}
	if p.Price != nil {
		// Checked at the precision it is sent with.
		f := p.Price.Round(2).InexactFloat64()
		in.Price = &f
	}

	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &InvalidProduct{Reason: ReasonInvalid, Field: "_", Message: err.Error()}
	}
	fe := ve[0]
	return &InvalidProduct{
		Reason:  reasonForTag(fe.Tag()),
		Field:   fe.Field(),
		Message: messageForTag(fe.Tag(), fe.Param()),
	}
}

func reasonForTag(tag string) string {
	switch tag {
	case "required":
		return ReasonMissingField
	case "gt":
		return ReasonNonPositive
	default:
		return ReasonInvalid
	}
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "field is required"
	case "gt":
		return "must be greater than " + param
	default:
		return "invalid value"
	}
}

// RemoteID builds the catalog id, channel:language:country:sku.
func RemoteID(channel models.Channel, language, country, sku string) string {
	return fmt.Sprintf("%s:%s:%s:%s", channel, language, country, sku)
}

func (v *Validator) link(p models.Product) string {
	slug := p.Slug
	if slug == "" {
		slug = p.SKU
	}
	return fmt.Sprintf("%s/producto/%s/", v.settings.StoreBaseURL, slug)
}

func availability(status models.StockStatus) models.ProductAvailability {
	switch status {
	case models.StockStatusInStock:
		return models.AvailabilityInStock
	case models.StockStatusOnBackorder:
		return models.AvailabilityBackorder
	default:
		return models.AvailabilityOutOfStock
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
