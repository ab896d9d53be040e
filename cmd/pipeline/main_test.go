package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/maltedev/amazon-pipeline/internal/config"
	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/fetcher"
	"github.com/maltedev/amazon-pipeline/internal/fetcher/fetchertest"
	"github.com/maltedev/amazon-pipeline/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, &cli{}, args...)
}

func executeWith(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdWith(c)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	path := writeConfig(t, `
scraper:
  fetch_mode: static
database:
  password: hunter2
`)

	out, err := execute(t, "--config", path, "--log-format", "text", "config")
	require.NoError(t, err)

	var dumped config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &dumped))
	assert.Equal(t, "static", dumped.Scraper.FetchMode)
	assert.Equal(t, "********", dumped.Database.Password)
	assert.NotContains(t, out, "hunter2")
}

func TestURLsCommand_RequiresTerm(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	_, err := execute(t, "--config", path, "urls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"term"`)
}

func TestRelayCommand_Disabled(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	_, err := execute(t, "--config", path, "relay")
	assert.ErrorIs(t, err, errRelayDisabled)
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "scraper:\n  fetch_mode: curl\n")

	_, err := execute(t, "--config", path, "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch_mode")
}

func TestHeadlessFlagOverridesConfig(t *testing.T) {
	path := writeConfig(t, "browser:\n  headless: true\n")
	c := &cli{cfgFile: path}
	require.NoError(t, c.init())

	cmd := newURLsCmd(c)
	require.NoError(t, cmd.ParseFlags([]string{"--headless=false"}))
	assert.False(t, c.headless(cmd, false))

	untouched := newURLsCmd(c)
	require.NoError(t, untouched.ParseFlags(nil))
	assert.True(t, c.headless(untouched, false))
}

func TestConsumeCommand_RedisDisabled(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	_, err := execute(t, "--config", path, "consume")
	assert.ErrorIs(t, err, errRedisDisabled)
}

func TestPrintURLArtifact(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	printURLArtifact(cmd, &models.URLArtifact{URLFilePath: "data/20260504_103000/urls_1a2b3c4d.json"})
	assert.Equal(t, "URLs saved to: data/20260504_103000/urls_1a2b3c4d.json\n", out.String())
}

func TestPrintProductArtifact(t *testing.T) {
	tests := []struct {
		name     string
		artifact *models.ProductArtifact
		want     string
	}{
		{
			name: "json only",
			artifact: &models.ProductArtifact{
				ProductFilePath: "data/20260504_103000/products_1a2b3c4d.json",
				ScrapedCount:    7,
				FailedCount:     2,
			},
			want: "Products saved to: data/20260504_103000/products_1a2b3c4d.json\n" +
				"Success: 7\n",
		},
		{
			name: "with csv",
			artifact: &models.ProductArtifact{
				ProductFilePath: "data/20260504_103000/products_1a2b3c4d.json",
				CSVFilePath:     "data/20260504_103000/products_1a2b3c4d.csv",
			},
			want: "Products saved to: data/20260504_103000/products_1a2b3c4d.json\n" +
				"CSV saved to: data/20260504_103000/products_1a2b3c4d.csv\n" +
				"Success: 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetOut(&out)

			printProductArtifact(cmd, tt.artifact)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

const searchLamp = "https://www.amazon.com/s?k=desk+lamp"

// offlineCLI returns a cli whose commands fetch from site and write artifacts
// under a temp dir.
func offlineCLI(t *testing.T, site *fetchertest.Site) (*cli, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, `
scraper:
  limiter: simple
  rate_limit_min: 0s
  rate_limit_max: 0s
artifacts:
  dir: `+dir+`
logging:
  level: error
`)
	c := &cli{fetchers: func(bool) (fetcher.Fetcher, error) { return site, nil }}
	return c, path, dir
}

var (
	urlsLine     = regexp.MustCompile(`(?m)^URLs saved to: (\S+)$`)
	productsLine = regexp.MustCompile(`(?m)^Products saved to: (\S+)$`)
)

func TestURLsCommand_PrintsURLFile(t *testing.T) {
	site := fetchertest.NewSite().
		Handle(searchLamp, fetchertest.SearchPage("",
			fetchertest.Result{ASIN: "B0LAMP0001", Title: "Lamp One"},
			fetchertest.Result{ASIN: "B0LAMP0002", Title: "Lamp Two"},
		))
	c, path, dir := offlineCLI(t, site)

	out, err := executeWith(t, c, "--config", path, "urls", "-t", "desk lamp", "-n", "5")
	require.NoError(t, err)

	m := urlsLine.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	assert.True(t, strings.HasPrefix(m[1], dir), m[1])
	assert.FileExists(t, m[1])

	data, err := os.ReadFile(m[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://www.amazon.com/dp/B0LAMP0001")
	assert.Contains(t, string(data), "https://www.amazon.com/dp/B0LAMP0002")
}

func TestRunCommand_PrintsBothArtifacts(t *testing.T) {
	site := fetchertest.NewSite().
		Handle(searchLamp, fetchertest.SearchPage("",
			fetchertest.Result{ASIN: "B0LAMP0001", Title: "Lamp One"},
			fetchertest.Result{ASIN: "B0LAMP0002", Title: "Lamp Two"},
		)).
		Handle("https://www.amazon.com/dp/B0LAMP0001", fetchertest.ProductPage("Lamp One", "$15.99")).
		Handle("https://www.amazon.com/dp/B0LAMP0002", fetchertest.BotCheckPage())
	c, path, _ := offlineCLI(t, site)

	out, err := executeWith(t, c, "--config", path, "run", "-t", "desk lamp", "-n", "5")
	require.NoError(t, err)

	urls := urlsLine.FindStringSubmatch(out)
	require.Len(t, urls, 2, out)
	products := productsLine.FindStringSubmatch(out)
	require.Len(t, products, 2, out)
	assert.FileExists(t, urls[1])
	assert.FileExists(t, products[1])
	assert.Contains(t, out, "Success: 1\n")
	assert.NotContains(t, out, "CSV saved to")
}

func TestRunCommand_NoURLsFound(t *testing.T) {
	site := fetchertest.NewSite().Handle(searchLamp, fetchertest.SearchPage(""))
	c, path, _ := offlineCLI(t, site)

	out, err := executeWith(t, c, "--config", path, "run", "-t", "desk lamp")
	require.NoError(t, err)

	assert.Regexp(t, urlsLine, out)
	assert.NotContains(t, out, "Products saved to")
	assert.NotContains(t, out, "Success:")
}

func TestSelectPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.NewWithPool(nil)
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	assert.IsType(t, &events.OutboxPublisher{}, selectPublisher(db, rdb, "", logger))
	assert.IsType(t, &events.RedisPublisher{}, selectPublisher(nil, rdb, "", logger))
	assert.IsType(t, events.NopPublisher{}, selectPublisher(db, nil, "", logger))
	assert.IsType(t, events.NopPublisher{}, selectPublisher(nil, nil, "", logger))
}
