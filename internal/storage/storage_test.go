package storage

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-pipeline/internal/models"
)

func newMemStore() (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewStoreWithFs(fs, "/data"), fs
}

func TestArtifactDir(t *testing.T) {
	now := time.Date(2026, 3, 7, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "/data/20260307_090501", ArtifactDir("/data", now))
}

func TestRunDir(t *testing.T) {
	store, fs := newMemStore()
	dir, err := store.RunDir(time.Date(2026, 3, 7, 9, 5, 1, 0, time.UTC))
	require.NoError(t, err)

	ok, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestURLFileRoundTrip(t *testing.T) {
	store, fs := newMemStore()
	in := &models.URLFile{
		RunID:       "0f1e2d3c-4b5a-6978-8695-a4b3c2d1e0f9",
		GeneratedAt: time.Now().UTC(),
		SearchTerms: []string{"laptop pc"},
		TargetLinks: 1,
		Links: []models.ProductLink{
			{SearchTerm: "laptop pc", ASIN: "B0LAPTOP01", URL: "https://www.amazon.com/dp/B0LAPTOP01", Rank: 1, Page: 1},
		},
	}

	path, err := store.SaveURLFile("/data/run", in)
	require.NoError(t, err)
	assert.Equal(t, "/data/run/urls_0f1e2d3c.json", path)

	tmp, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, tmp, "temp file must be renamed away")

	out, err := store.LoadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, in.RunID, out.RunID)
	assert.Equal(t, in.URLs(), out.URLs())
}

func TestLoadURLFile(t *testing.T) {
	store, fs := newMemStore()
	write := func(name, body string) string {
		path := "/in/" + name
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
		return path
	}

	t.Run("plain array", func(t *testing.T) {
		path := write("example_url.json", `[
			"https://www.amazon.com/dp/B0MOUSE001",
			"  ",
			"https://www.amazon.com/dp/B0MOUSE002"
		]`)
		f, err := store.LoadURLFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://www.amazon.com/dp/B0MOUSE001",
			"https://www.amazon.com/dp/B0MOUSE002",
		}, f.URLs())
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := store.LoadURLFile(write("empty.json", `[]`))
		assert.ErrorIs(t, err, ErrEmptyURLFile)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := store.LoadURLFile(write("blank.json", "\n"))
		assert.ErrorIs(t, err, ErrEmptyURLFile)
	})

	t.Run("document without links", func(t *testing.T) {
		_, err := store.LoadURLFile(write("nolinks.json", `{"run_id":"x","links":[]}`))
		assert.ErrorIs(t, err, ErrEmptyURLFile)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := store.LoadURLFile(write("bad.json", `{"links": [`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrEmptyURLFile)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.LoadURLFile("/in/nope.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope.json")
	})
}

func TestSaveProductCSV(t *testing.T) {
	store, fs := newMemStore()
	rating := 4.5
	reviews := 120
	products := []*models.Product{
		{
			ASIN: "B0MOUSE001", URL: "https://www.amazon.com/dp/B0MOUSE001", Title: "Mouse, wireless",
			Price: &models.Price{Amount: 19.9, Currency: "USD"}, Rating: &rating, ReviewCount: &reviews,
			ScrapedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{ASIN: "B0MOUSE002", Title: "Plain"},
	}

	path, err := store.SaveProductCSV("/out", "abcdef123456", products)
	require.NoError(t, err)
	assert.Equal(t, "/out/products_abcdef12.csv", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "Mouse, wireless", rows[1][2])
	assert.Equal(t, "19.90", rows[1][5])
	assert.Equal(t, "4.5", rows[1][7])
	assert.Equal(t, "120", rows[1][8])
	assert.Equal(t, "2026-01-02T03:04:05Z", rows[1][10])
	assert.Equal(t, "", rows[2][5])
}

func TestSaveProductFile(t *testing.T) {
	store, fs := newMemStore()
	path, err := store.SaveProductFile("/out", &models.ProductFile{RunID: "r1", ScrapedCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "/out/products_r1.json", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scraped_count": 1`)
}
