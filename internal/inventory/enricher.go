package inventory

// Level is the stock a local product is published with.
type Level struct {
	StoreCode string
	Quantity  int64
	// Missing is set when the feed had no row for the product. Quantity is
	// then zero.
	Missing bool
}

type Enricher struct {
	index     *Index
	storeCode string
}

func NewEnricher(index *Index, storeCode string) *Enricher {
	return &Enricher{index: index, storeCode: storeCode}
}

// Enrich never drops a product: absent stock means zero.
func (e *Enricher) Enrich(sku string) Level {
	qty, ok := e.index.Lookup(e.storeCode, sku)
	return Level{StoreCode: e.storeCode, Quantity: qty, Missing: !ok}
}
