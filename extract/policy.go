package extract

// AttrRule locates an attribute value: the first matching element's
// attribute is taken.
type AttrRule struct {
	Selector string
	Attr     string
}

// Policy is the site-specific extraction configuration: ordered fallback
// selector chains per field, tried until one produces a non-empty result.
// Markup differences between layouts live here, not in the extractor.
type Policy struct {
	// ContainerSelector locates the product container. Its absence is the
	// single hard precondition: no container, no record.
	ContainerSelector string

	Title         []string
	PriceCurrent  []string
	PriceOriginal []string
	Description   []string

	CategoryLabels   string
	OutOfStockMarker string
	SpecTable        string
	SpecBlock        string

	Images []AttrRule
	Rating []AttrRule

	// KnownBrands is the vocabulary used to split the brand token out of
	// the category labels. Matching is case-insensitive.
	KnownBrands []string

	Currency string
}

// DefaultPolicy returns the WooCommerce selector set for laptop.lk.
func DefaultPolicy() Policy {
	return Policy{
		ContainerSelector: `div[id^="product-"]`,
		Title: []string{
			"h1.product_title.entry-title",
			"h1.product_title",
		},
		PriceCurrent: []string{
			"p.price ins .amount",
			"span.electro-price ins .amount",
			"p.price > .amount",
			"span.electro-price > .amount",
			"p.price bdi",
		},
		PriceOriginal: []string{
			"p.price del .amount",
			"span.electro-price del .amount",
		},
		Description: []string{
			"div#tab-description",
			"div.woocommerce-tabs",
			"div.woocommerce-product-details__short-description",
		},
		CategoryLabels:   "span.posted_in a",
		OutOfStockMarker: "p.stock.out-of-stock",
		SpecTable:        "table.shop_attributes",
		SpecBlock:        "div#tab-specification",
		Images: []AttrRule{
			{Selector: "div.woocommerce-product-gallery__image a", Attr: "href"},
			{Selector: "figure.woocommerce-product-gallery__wrapper img", Attr: "src"},
		},
		Rating: []AttrRule{
			{Selector: "div.star-rating", Attr: "title"},
		},
		KnownBrands: []string{
			"hp", "dell", "apple", "lenovo", "asus", "msi", "acer", "samsung",
		},
		Currency: "LKR",
	}
}
