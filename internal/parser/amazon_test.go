package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPageHTML = `<!DOCTYPE html>
<html>
<body>
	<div class="s-main-slot">
		<div data-component-type="s-search-result" data-asin="B0ABCDEF12">
			<h2><a class="a-link-normal" href="/Laptop-PC-15-inch/dp/B0ABCDEF12/ref=sr_1_1?keywords=laptop"><span>Laptop PC 15 inch</span></a></h2>
			<span class="a-price"><span class="a-offscreen">$499.99</span></span>
		</div>
		<div data-component-type="s-search-result" data-asin="">
			<h2><a href="/some/ad"><span>Empty ASIN block</span></a></h2>
		</div>
		<div data-component-type="s-search-result" data-asin="B0SPONSOR1">
			<span class="puis-sponsored-label-text">Sponsored</span>
			<h2><a href="/sspa/click?url=%2Fdp%2FB0SPONSOR1"><span>Sponsored Laptop</span></a></h2>
		</div>
		<div data-component-type="s-search-result" data-asin="b0lower001">
			<h2><a href="/dp/B0LOWER001"><span>Lowercase ASIN</span></a></h2>
		</div>
		<div data-component-type="s-search-result" data-asin="widget-1">
			<h2><a href="/gp/help/customer/display.html"><span>Need help?</span></a></h2>
		</div>
		<div data-component-type="s-search-result" data-asin="PARENT">
			<h2><a href="/Desk-Lamp/dp/B0LINKED01/ref=sr_1_5"><span>Desk Lamp</span></a></h2>
		</div>
	</div>
	<span class="s-pagination-strip">
		<a class="s-pagination-item s-pagination-next" href="/s?k=laptop&amp;page=2">Next</a>
	</span>
</body>
</html>`

const productPageHTML = `<!DOCTYPE html>
<html>
<body>
	<div id="wayfinding-breadcrumbs_feature_div">
		<ul>
			<li><span class="a-list-item"><a href="/electronics">Electronics</a></span></li>
			<li><span class="a-list-item"><a href="/laptops">Laptops</a></span></li>
		</ul>
	</div>
	<span id="productTitle">   Wireless Mouse, 2.4G Silent   </span>
	<a id="bylineInfo" href="/stores/Logi">Visit the Logi Store</a>
	<div id="averageCustomerReviews">
		<span id="acrPopover" title="4.6 out of 5 stars"><span class="a-icon-alt">4.6 out of 5 stars</span></span>
		<span id="acrCustomerReviewText">12,345 ratings</span>
	</div>
	<div id="corePriceDisplay_desktop_feature_div">
		<span class="a-price"><span class="a-offscreen">$1,299.99</span></span>
	</div>
	<div id="availability"><span>
		In Stock
	</span></div>
	<div id="feature-bullets">
		<ul>
			<li><span class="a-list-item">Silent clicks</span></li>
			<li class="aok-hidden"><span class="a-list-item">hidden</span></li>
			<li><span class="a-list-item">  18 month   battery life </span></li>
		</ul>
	</div>
	<div id="altImages"><ul>
		<li><img src="https://m.media-amazon.com/images/I/abc._AC_US40_.jpg"></li>
		<li><img src="https://m.media-amazon.com/images/G/transparent-pixel.gif"></li>
	</ul></div>
	<div id="detailBullets_feature_div">
		<ul>
			<li>Product Dimensions : 10.5 x 6 x 3.8 cm; 85 Grams</li>
			<li>Item Weight : 85 grams</li>
		</ul>
	</div>
</body>
</html>`

func TestParseSearchResults(t *testing.T) {
	p := NewAmazonParser("https://www.amazon.com")

	results, err := p.ParseSearchResults(searchPageHTML)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "B0ABCDEF12", results[0].ASIN)
	assert.Equal(t, "Laptop PC 15 inch", results[0].Title)
	assert.Equal(t, "https://www.amazon.com/dp/B0ABCDEF12", results[0].URL)
	assert.Equal(t, "$499.99", results[0].Price)
	assert.False(t, results[0].Sponsored)

	assert.Equal(t, "B0SPONSOR1", results[1].ASIN)
	assert.True(t, results[1].Sponsored)

	assert.Equal(t, "B0LOWER001", results[2].ASIN)
	assert.Equal(t, "https://www.amazon.com/dp/B0LOWER001", results[2].URL)

	// widget-1 has no product link and is dropped; PARENT is rescued by its link.
	assert.Equal(t, "B0LINKED01", results[3].ASIN)
	assert.Equal(t, "https://www.amazon.com/dp/B0LINKED01", results[3].URL)
	for _, r := range results {
		assert.True(t, ValidASIN(r.ASIN), r.ASIN)
	}
}

func TestNextPageURL(t *testing.T) {
	p := NewAmazonParser("https://www.amazon.com/")

	assert.Equal(t, "https://www.amazon.com/s?k=laptop&page=2", p.NextPageURL(searchPageHTML))

	disabled := `<span class="s-pagination-item s-pagination-next s-pagination-disabled">Next</span>`
	assert.Empty(t, p.NextPageURL(disabled))

	assert.Empty(t, p.NextPageURL(`<div>no pagination</div>`))
}

func TestParseProductPage(t *testing.T) {
	p := NewAmazonParser("https://www.amazon.com")

	product, err := p.ParseProductPage(productPageHTML, "B0MOUSE001")
	require.NoError(t, err)

	assert.Equal(t, "B0MOUSE001", product.ASIN)
	assert.Equal(t, "https://www.amazon.com/dp/B0MOUSE001", product.URL)
	assert.Equal(t, "Wireless Mouse, 2.4G Silent", product.Title)
	assert.Equal(t, "Logi", product.Brand)
	assert.Equal(t, "Laptops", product.Category)
	assert.Equal(t, "In Stock", product.Availability)
	assert.Equal(t, []string{"Silent clicks", "18 month battery life"}, product.Features)
	assert.Equal(t, []string{"https://m.media-amazon.com/images/I/abc._AC_SL1500_.jpg"}, product.Images)

	require.NotNil(t, product.Price)
	assert.InDelta(t, 1299.99, product.Price.Amount, 0.001)
	assert.Equal(t, "USD", product.Price.Currency)

	require.NotNil(t, product.Rating)
	assert.InDelta(t, 4.6, *product.Rating, 0.001)
	require.NotNil(t, product.ReviewCount)
	assert.Equal(t, 12345, *product.ReviewCount)

	require.NotNil(t, product.Dimensions)
	assert.Equal(t, 10.5, product.Dimensions.Length)
	assert.Equal(t, 6.0, product.Dimensions.Width)
	assert.Equal(t, 3.8, product.Dimensions.Height)
	assert.Equal(t, "cm", product.Dimensions.Unit)

	require.NotNil(t, product.Weight)
	assert.Equal(t, 85.0, product.Weight.Value)
	assert.Equal(t, "g", product.Weight.Unit)
}

func TestParseProductPageWithoutOptionalFields(t *testing.T) {
	p := NewAmazonParser("https://www.amazon.de")

	product, err := p.ParseProductPage(`<html><body><span id="productTitle">Nur Titel</span></body></html>`, "B0TITLE001")
	require.NoError(t, err)

	assert.Equal(t, "Nur Titel", product.Title)
	assert.Nil(t, product.Price)
	assert.Nil(t, product.Rating)
	assert.Nil(t, product.ReviewCount)
	assert.Nil(t, product.Dimensions)
	assert.Nil(t, product.Weight)
	assert.Empty(t, product.Validate())
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		html     string
		amount   float64
		currency string
		hasError bool
	}{
		{
			name:     "US offscreen price",
			baseURL:  "https://www.amazon.com",
			html:     `<span class="a-price"><span class="a-offscreen">$29.99</span></span>`,
			amount:   29.99,
			currency: "USD",
		},
		{
			name:     "German price with euro sign",
			baseURL:  "https://www.amazon.de",
			html:     `<span class="a-price"><span class="a-offscreen">1.299,00 €</span></span>`,
			amount:   1299.00,
			currency: "EUR",
		},
		{
			name:     "Whole and fraction spans",
			baseURL:  "https://www.amazon.de",
			html:     `<span class="a-price-whole">19,</span><span class="a-price-fraction">95</span>`,
			amount:   19.95,
			currency: "EUR",
		},
		{
			name:     "No price",
			baseURL:  "https://www.amazon.com",
			html:     `<div>Currently unavailable.</div>`,
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := NewAmazonParser(tt.baseURL).ExtractPrice(tt.html)

			if tt.hasError {
				assert.Error(t, err)
				assert.Nil(t, price)
				return
			}

			require.NoError(t, err)
			assert.InDelta(t, tt.amount, price.Amount, 0.001)
			assert.Equal(t, tt.currency, price.Currency)
		})
	}
}

func TestExtractDimensionsAndWeight(t *testing.T) {
	p := NewAmazonParser("https://www.amazon.com")

	html := `<div id="productDetails_techSpec_section_1">
		<table><tr><th>Package Dimensions</th><td>12 x 8 x 2 inches</td></tr>
		<tr><th>Item Weight</th><td>1.5 pounds</td></tr></table>
	</div>`

	dim, err := p.ExtractDimensions(html)
	require.NoError(t, err)
	assert.Equal(t, "inch", dim.Unit)
	assert.Equal(t, 12.0, dim.Length)

	weight, err := p.ExtractWeight(html)
	require.NoError(t, err)
	assert.Equal(t, 1.5, weight.Value)
	assert.Equal(t, "lb", weight.Unit)

	_, err = p.ExtractDimensions(`<div id="feature-bullets">Color: Blue</div>`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions not found")
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"29.99", 29.99},
		{"1,299.99", 1299.99},
		{"1.299,99", 1299.99},
		{"12,99", 12.99},
		{"1,299", 1299},
		{"1.234.567", 1234567},
		{"19.", 19},
		{"abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParseAmount(tt.input), 0.0001)
		})
	}
}
