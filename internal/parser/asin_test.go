package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractASIN(t *testing.T) {
	tests := []struct {
		name string
		url  string
		asin string
		ok   bool
	}{
		{"dp with slug", "https://www.amazon.com/Logitech-Wireless-Mouse/dp/B003NR57BY/ref=sr_1_3", "B003NR57BY", true},
		{"short dp", "https://www.amazon.de/dp/B0ABCDEF12", "B0ABCDEF12", true},
		{"gp product", "https://www.amazon.com/gp/product/B0ABCDEF12?th=1", "B0ABCDEF12", true},
		{"lowercase", "https://www.amazon.com/dp/b0abcdef12", "B0ABCDEF12", true},
		{"trailing space", "  https://www.amazon.com/dp/B0ABCDEF12  ", "B0ABCDEF12", true},
		{"search page", "https://www.amazon.com/s?k=laptop", "", false},
		{"too short", "https://www.amazon.com/dp/B0ABC", "", false},
		{"too long", "https://www.amazon.com/dp/B0ABCDEF1234", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asin, ok := ExtractASIN(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.asin, asin)
		})
	}
}

func TestValidASIN(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"B0ABCDEF12", true},
		{"0123456789", true},
		{"b0abcdef12", false},
		{"WIDGET-1", false},
		{"B0ABCDEF1", false},
		{"B0ABCDEF123", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidASIN(tt.in), tt.in)
	}
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://www.amazon.com/s?k=laptop+pc", SearchURL("https://www.amazon.com/", "laptop pc", 1))
	assert.Equal(t, "https://www.amazon.com/s?k=wireless+mouse&page=3", SearchURL("https://www.amazon.com", "wireless mouse", 3))
}

func TestCurrencyFor(t *testing.T) {
	assert.Equal(t, "USD", CurrencyFor("https://www.amazon.com"))
	assert.Equal(t, "EUR", CurrencyFor("https://www.amazon.de"))
	assert.Equal(t, "GBP", CurrencyFor("https://www.amazon.co.uk"))
	assert.Equal(t, "USD", CurrencyFor("::not a url"))
}

func TestIsBotCheck(t *testing.T) {
	assert.True(t, IsBotCheck(`<html><head><title>Robot Check</title></head></html>`))
	assert.True(t, IsBotCheck(`<form action="/errors/validateCaptcha"><input id="captchacharacters"></form>`))
	assert.True(t, IsBotCheck(`<p>Klicke auf die Schaltfläche unten, um mit dem Einkaufen fortzufahren</p>`))
	assert.False(t, IsBotCheck(`<span id="productTitle">Mouse</span>`))
}
