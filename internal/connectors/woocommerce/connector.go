// Package woocommerce reads published products straight from a WooCommerce
// database.
package woocommerce

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// hiddenTerm is the product_visibility term WooCommerce uses for products
// excluded from the public catalog.
const hiddenTerm = "exclude-from-catalog"

type WooCommerceConnector struct {
	db       *gorm.DB
	logger   *logger.Logger
	prefix   string
	pageSize int
}

type Options struct {
	TablePrefix string
	PageSize    int
}

// Open connects to the store database with the driver its URL scheme names.
// Nothing is migrated; the schema belongs to WooCommerce.
func Open(databaseURL string, opts Options, log *logger.Logger) (*WooCommerceConnector, error) {
	dialector, err := database.Dialector(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	return New(db, opts, log), nil
}

func New(db *gorm.DB, opts Options, log *logger.Logger) *WooCommerceConnector {
	if opts.PageSize < 1 {
		opts.PageSize = 500
	}
	if opts.TablePrefix == "" {
		opts.TablePrefix = "wp_"
	}
	return &WooCommerceConnector{
		db:       db,
		logger:   log,
		prefix:   opts.TablePrefix,
		pageSize: opts.PageSize,
	}
}

func (wc *WooCommerceConnector) Ping(ctx context.Context) error {
	sqlDB, err := wc.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (wc *WooCommerceConnector) Close() error {
	sqlDB, err := wc.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Products streams every published product to yield in id order, one page
// at a time. Returning an error from yield stops the scan.
func (wc *WooCommerceConnector) Products(ctx context.Context, yield func(models.Product) error) error {
	query := wc.productQuery()
	var lastID int64
	pages := 0

	for {
		n, maxID, err := wc.page(ctx, query, lastID, yield)
		if err != nil {
			return err
		}
		pages++
		if n < wc.pageSize {
			wc.logger.Debug("Read %d product pages from store database", pages)
			return nil
		}
		lastID = maxID
	}
}

func (wc *WooCommerceConnector) page(ctx context.Context, query string, afterID int64, yield func(models.Product) error) (int, int64, error) {
	rows, err := wc.db.WithContext(ctx).Raw(query, afterID, wc.pageSize).Rows()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	n := 0
	maxID := afterID
	for rows.Next() {
		var (
			r      productRow
			hidden int
		)
		if err := rows.Scan(&r.id, &r.title, &r.content, &r.slug, &r.modified,
			&r.sku, &r.price, &r.stock, &r.status, &r.image, &hidden); err != nil {
			return 0, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		r.hidden = hidden == 1
		n++
		if r.id > maxID {
			maxID = r.id
		}
		if err := yield(r.toProduct()); err != nil {
			return 0, 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to read products: %w", err)
	}
	return n, maxID, nil
}

func (wc *WooCommerceConnector) productQuery() string {
	p := wc.prefix
	return `
	SELECT
		p.ID,
		p.post_title,
		COALESCE(p.post_content, ''),
		COALESCE(p.post_name, ''),
		p.post_modified,
		COALESCE(sku_meta.meta_value, ''),
		price_meta.meta_value,
		COALESCE(stock_meta.meta_value, '0'),
		COALESCE(status_meta.meta_value, 'instock'),
		COALESCE(image_meta.meta_value, ''),
		CASE WHEN EXISTS (
			SELECT 1
			FROM ` + p + `term_relationships tr
			JOIN ` + p + `term_taxonomy tt ON tr.term_taxonomy_id = tt.term_taxonomy_id
			JOIN ` + p + `terms t ON tt.term_id = t.term_id
			WHERE tr.object_id = p.ID
			  AND tt.taxonomy = 'product_visibility'
			  AND t.slug = '` + hiddenTerm + `'
		) THEN 1 ELSE 0 END
	FROM ` + p + `posts p
	LEFT JOIN ` + p + `postmeta sku_meta ON (p.ID = sku_meta.post_id AND sku_meta.meta_key = '_sku')
	LEFT JOIN ` + p + `postmeta price_meta ON (p.ID = price_meta.post_id AND price_meta.meta_key = '_price')
	LEFT JOIN ` + p + `postmeta stock_meta ON (p.ID = stock_meta.post_id AND stock_meta.meta_key = '_stock_quantity')
	LEFT JOIN ` + p + `postmeta status_meta ON (p.ID = status_meta.post_id AND status_meta.meta_key = '_stock_status')
	LEFT JOIN ` + p + `postmeta image_meta ON (p.ID = image_meta.post_id AND image_meta.meta_key = '_product_image_url')
	WHERE p.post_type = 'product'
	  AND p.post_status = 'publish'
	  AND p.ID > ?
	ORDER BY p.ID
	LIMIT ?`
}

type productRow struct {
	id       int64
	title    string
	content  string
	slug     string
	modified time.Time
	sku      string
	price    sql.NullString
	stock    string
	status   string
	image    string
	hidden   bool
}

func (r productRow) toProduct() models.Product {
	p := models.Product{
		ID:            r.id,
		SKU:           strings.TrimSpace(r.sku),
		Title:         strings.TrimSpace(r.title),
		Description:   r.content,
		Slug:          r.slug,
		StockQuantity: parseStock(r.stock),
		StockStatus:   models.StockStatus(strings.TrimSpace(r.status)),
		LocalOnly:     r.hidden,
		ModifiedAt:    r.modified,
	}
	if r.price.Valid {
		if d, err := decimal.NewFromString(strings.TrimSpace(r.price.String)); err == nil {
			p.Price = &d
		}
	}
	if img := strings.TrimSpace(r.image); img != "" {
		p.Images = []string{img}
	}
	return p
}

func parseStock(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(f)
}
