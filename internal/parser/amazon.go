package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/amazon-pipeline/internal/models"
)

type AmazonParser struct {
	baseURL           string
	currency          string
	dimensionPatterns []*regexp.Regexp
	weightPatterns    []*regexp.Regexp
	numberPattern     *regexp.Regexp
}

func NewAmazonParser(baseURL string) *AmazonParser {
	return &AmazonParser{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: CurrencyFor(baseURL),
		dimensionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:product|package|item)?\s*dimensions.*?:?\s*(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*(cm|mm|inches|inch|in)\b`),
			regexp.MustCompile(`(?i)(?:produkt)?abmessungen.*?:?\s*(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*(cm|mm|m)\b`),
			regexp.MustCompile(`(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*x\s*(\d+(?:[,.]\d+)?)\s*(cm|mm|inches|inch|zoll)\b`),
		},
		weightPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)item\s*weight.*?:?\s*(\d+(?:[,.]\d+)?)\s*(kilograms|kg|grams|g|pounds|pound|lbs|lb|ounces|ounce|oz)\b`),
			regexp.MustCompile(`(?i)(?:artikel)?gewicht.*?:?\s*(\d+(?:[,.]\d+)?)\s*(kilogramm|kg|gramm|g|mg)\b`),
			regexp.MustCompile(`(?i)weight.*?:?\s*(\d+(?:[,.]\d+)?)\s*(kilograms|kg|grams|g|pounds|lbs|lb|ounces|oz)\b`),
		},
		numberPattern: regexp.MustCompile(`\d[\d.,]*`),
	}
}

func (p *AmazonParser) ParseSearchResults(html string) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult
	doc.Find(`div[data-component-type="s-search-result"]`).Each(func(i int, s *goquery.Selection) {
		asin := strings.ToUpper(strings.TrimSpace(s.AttrOr("data-asin", "")))
		if asin == "" {
			return
		}

		title := strings.TrimSpace(s.Find("h2").First().Text())

		href := s.Find("h2 a").First().AttrOr("href", "")
		if href == "" {
			href = s.Find(`a[href*="/dp/"]`).First().AttrOr("href", "")
		}

		url := CanonicalProductURL(p.baseURL, asin)
		if linked, ok := ExtractASIN(href); ok && linked != asin {
			// Variation tiles link to a child ASIN; the link wins.
			url = CanonicalProductURL(p.baseURL, linked)
			asin = linked
		}
		if !ValidASIN(asin) {
			// Widgets and placeholders carry data-asin values that are not
			// product ids.
			return
		}

		sponsored := s.Find(".puis-sponsored-label-text, .s-sponsored-label-text").Length() > 0 ||
			strings.Contains(href, "/sspa/click")

		results = append(results, SearchResult{
			ASIN:      asin,
			Title:     title,
			URL:       url,
			Price:     strings.TrimSpace(s.Find(".a-price .a-offscreen").First().Text()),
			Sponsored: sponsored,
		})
	})

	return results, nil
}

func (p *AmazonParser) NextPageURL(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	next := doc.Find(".s-pagination-next").First()
	if next.Length() == 0 || next.HasClass("s-pagination-disabled") {
		return ""
	}
	if disabled, _ := next.Attr("aria-disabled"); disabled == "true" {
		return ""
	}

	return absoluteURL(p.baseURL, next.AttrOr("href", ""))
}

func (p *AmazonParser) ParseProductPage(html string, asin string) (*models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	product := models.NewProduct(asin, CanonicalProductURL(p.baseURL, asin))

	product.Title = p.extractTitle(doc)
	product.Brand = p.extractBrand(doc)
	product.Category = p.extractCategory(doc)
	product.Availability = p.extractAvailability(doc)
	product.Features = p.extractFeatures(doc)
	product.Images = p.extractImages(doc)
	product.Rating = p.extractRating(doc)
	product.ReviewCount = p.extractReviewCount(doc)

	if price, err := p.priceFromDoc(doc); err == nil {
		product.Price = price
	}

	details := p.extractProductDetails(doc)
	if dimensions, err := p.dimensionsFromText(details); err == nil {
		product.Dimensions = dimensions
	}
	if weight, err := p.weightFromText(details); err == nil {
		product.Weight = weight
	}

	return product, nil
}

func (p *AmazonParser) ExtractDimensions(html string) (*models.Dimension, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return p.dimensionsFromText(p.extractProductDetails(doc))
}

func (p *AmazonParser) ExtractWeight(html string) (*models.Weight, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return p.weightFromText(p.extractProductDetails(doc))
}

func (p *AmazonParser) ExtractPrice(html string) (*models.Price, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return p.priceFromDoc(doc)
}

func (p *AmazonParser) dimensionsFromText(text string) (*models.Dimension, error) {
	for _, pattern := range p.dimensionPatterns {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) < 5 {
			continue
		}

		dim := &models.Dimension{
			Length: p.parseFloat(matches[1]),
			Width:  p.parseFloat(matches[2]),
			Height: p.parseFloat(matches[3]),
			Unit:   p.normalizeUnit(matches[4]),
		}
		if dim.IsValid() {
			return dim, nil
		}
	}

	return nil, fmt.Errorf("dimensions not found")
}

func (p *AmazonParser) weightFromText(text string) (*models.Weight, error) {
	for _, pattern := range p.weightPatterns {
		matches := pattern.FindStringSubmatch(text)
		if len(matches) < 3 {
			continue
		}

		weight := &models.Weight{
			Value: p.parseFloat(matches[1]),
			Unit:  p.normalizeWeightUnit(matches[2]),
		}
		if weight.IsValid() {
			return weight, nil
		}
	}

	return nil, fmt.Errorf("weight not found")
}

func (p *AmazonParser) priceFromDoc(doc *goquery.Document) (*models.Price, error) {
	priceSelectors := []string{
		"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
		"#corePrice_feature_div .a-price .a-offscreen",
		"#corePrice_desktop .a-price .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		"#price_inside_buybox",
		"span.a-price.apexPriceToPay .a-offscreen",
		".a-price .a-offscreen",
	}

	for _, selector := range priceSelectors {
		priceText := strings.TrimSpace(doc.Find(selector).First().Text())
		if priceText == "" {
			continue
		}
		if price := p.parsePrice(priceText); price != nil {
			return price, nil
		}
	}

	// Older layouts split the price into whole and fraction spans.
	whole := strings.TrimSpace(doc.Find(".a-price-whole").First().Text())
	if whole != "" {
		fraction := strings.TrimSpace(doc.Find(".a-price-fraction").First().Text())
		whole = strings.TrimRight(whole, ".,")
		text := whole
		if fraction != "" {
			text = whole + "." + fraction
		}
		if price := p.parsePrice(text); price != nil {
			return price, nil
		}
	}

	return nil, fmt.Errorf("price not found")
}

func (p *AmazonParser) extractTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("#productTitle").Text())
}

func (p *AmazonParser) extractBrand(doc *goquery.Document) string {
	brand := strings.TrimSpace(doc.Find("#bylineInfo").First().Text())
	for _, prefix := range []string{"Brand: ", "Marke: ", "Visit the ", "Besuchen Sie den "} {
		brand = strings.TrimPrefix(brand, prefix)
	}
	brand = strings.TrimSuffix(brand, " Store")
	brand = strings.TrimSuffix(brand, "-Store")
	return strings.TrimSpace(brand)
}

func (p *AmazonParser) extractCategory(doc *goquery.Document) string {
	breadcrumb := doc.Find("#wayfinding-breadcrumbs_feature_div .a-list-item a").Last().Text()
	if strings.TrimSpace(breadcrumb) == "" {
		breadcrumb = doc.Find("#wayfinding-breadcrumbs_feature_div .a-list-item").Last().Text()
	}
	return strings.TrimSpace(breadcrumb)
}

func (p *AmazonParser) extractAvailability(doc *goquery.Document) string {
	text := doc.Find("#availability").First().Text()
	return strings.Join(strings.Fields(text), " ")
}

func (p *AmazonParser) extractFeatures(doc *goquery.Document) []string {
	var features []string
	doc.Find("#feature-bullets ul li").Each(func(i int, s *goquery.Selection) {
		if s.HasClass("aok-hidden") {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			features = append(features, text)
		}
	})
	return features
}

func (p *AmazonParser) extractRating(doc *goquery.Document) *float64 {
	candidates := []string{
		doc.Find("#acrPopover").AttrOr("title", ""),
		doc.Find("#averageCustomerReviews .a-icon-alt").First().Text(),
		doc.Find(`[data-hook="rating-out-of-text"]`).First().Text(),
	}

	for _, text := range candidates {
		match := p.numberPattern.FindString(text)
		if match == "" {
			continue
		}
		rating := p.parseFloat(match)
		if rating > 0 && rating <= 5 {
			return &rating
		}
	}
	return nil
}

func (p *AmazonParser) extractReviewCount(doc *goquery.Document) *int {
	text := doc.Find("#acrCustomerReviewText").First().Text()
	if text == "" {
		text = doc.Find(`[data-hook="total-review-count"]`).First().Text()
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return nil
	}

	count, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &count
}

func (p *AmazonParser) extractImages(doc *goquery.Document) []string {
	var images []string

	doc.Find("#altImages ul li img").Each(func(i int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists || strings.Contains(src, "transparent-pixel") {
			return
		}
		images = append(images, strings.Replace(src, "_AC_US40_", "_AC_SL1500_", 1))
	})

	if len(images) == 0 {
		main := doc.Find("#landingImage").First()
		if src := main.AttrOr("data-old-hires", ""); src != "" {
			images = append(images, src)
		} else if src := main.AttrOr("src", ""); src != "" {
			images = append(images, src)
		}
	}

	return images
}

func (p *AmazonParser) extractProductDetails(doc *goquery.Document) string {
	selectors := []string{
		"#feature-bullets",
		"#productDetails_techSpec_section_1",
		"#productDetails_detailBullets_sections1",
		"#detailBullets_feature_div",
		"#prodDetails",
		".detail-bullet-list",
	}

	var details strings.Builder
	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			details.WriteString(strings.Join(strings.Fields(s.Text()), " "))
			details.WriteString(" ")
		})
	}

	return details.String()
}

func (p *AmazonParser) parseFloat(s string) float64 {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", -1)
	val, _ := strconv.ParseFloat(s, 64)
	return val
}

func (p *AmazonParser) parsePrice(s string) *models.Price {
	match := p.numberPattern.FindString(s)
	if match == "" {
		return nil
	}

	amount := ParseAmount(match)
	if amount <= 0 {
		return nil
	}

	return &models.Price{
		Amount:   amount,
		Currency: p.currencyFromText(s),
	}
}

func (p *AmazonParser) currencyFromText(s string) string {
	switch {
	case strings.Contains(s, "€"):
		return "EUR"
	case strings.Contains(s, "£"):
		return "GBP"
	case strings.Contains(s, "¥"):
		return "JPY"
	case strings.Contains(s, "₹"):
		return "INR"
	case strings.Contains(s, "CDN$"), strings.Contains(s, "C$"):
		return "CAD"
	case strings.Contains(s, "$"):
		return "USD"
	default:
		return p.currency
	}
}

// ParseAmount reads a price number written in either US ("1,299.99") or
// continental ("1.299,99") notation.
func ParseAmount(s string) float64 {
	s = strings.TrimRight(strings.TrimSpace(s), ".,")
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return val
}

func (p *AmazonParser) normalizeUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	switch unit {
	case "cm", "centimeter", "zentimeter":
		return "cm"
	case "mm", "millimeter":
		return "mm"
	case "m", "meter":
		return "m"
	case "in", "inch", "inches", "zoll", "\"":
		return "inch"
	default:
		return unit
	}
}

func (p *AmazonParser) normalizeWeightUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	switch unit {
	case "kg", "kilogramm", "kilograms", "kilo":
		return "kg"
	case "g", "gramm", "gram", "grams":
		return "g"
	case "mg", "milligramm":
		return "mg"
	case "lb", "lbs", "pound", "pounds":
		return "lb"
	case "oz", "ounce", "ounces":
		return "oz"
	default:
		return unit
	}
}
