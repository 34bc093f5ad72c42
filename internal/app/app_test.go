// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/question-sync/internal/app"
	"github.com/JakeFAU/question-sync/internal/config"
	collyfetcher "github.com/JakeFAU/question-sync/internal/fetcher/colly"
	"github.com/JakeFAU/question-sync/internal/question"
)

func memoryConfig(baseURL string) config.Config {
	return config.Config{
		Source:  config.SourceConfig{BaseURL: baseURL},
		Fetcher: config.FetcherConfig{Mode: config.FetcherStatic, NavigationTimeout: 5 * time.Second, UserAgent: "question-sync-test"},
		DB:      config.DBConfig{Driver: config.DriverMemory},
		Notion:  config.NotionConfig{MaxConcurrent: 3},
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), memoryConfig(""), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Store())
	require.False(t, a.Publisher().Enabled())
	require.NoError(t, a.Store().Ping(context.Background()))
	require.Equal(t, config.DriverMemory, a.Config().DB.Driver)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig("")
	cfg.DB.Driver = "sqlite"
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown db driver")
}

func TestNewEnablesPublisherWithCredentials(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig("")
	cfg.Notion.Token = "secret"
	cfg.Notion.DatabaseID = "db-1"
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.True(t, a.Publisher().Enabled())
}

func TestNewFetcherStatic(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), memoryConfig(""), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	f, err := a.NewFetcher()
	require.NoError(t, err)
	defer f.Close()
	require.IsType(t, &collyfetcher.Fetcher{}, f)
}

func TestNewFetcherUnknownMode(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig("")
	cfg.Fetcher.Mode = "lynx"
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.NewFetcher()
	require.ErrorContains(t, err, "unknown fetcher mode")
}

func TestStartOpsDisabled(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), memoryConfig(""), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	stop := a.StartOps(context.Background())
	stop()
}

// TestLiveRunAgainstStaticSite drives a live run end to end over HTTP into the memory store.
func TestLiveRunAgainstStaticSite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/question/")
		if id == "2" {
			_, _ = w.Write([]byte("<html><body><p>Not here</p></body></html>"))
			return
		}
		_, _ = fmt.Fprintf(w, `<html><body>
<h2 class="ut08sa0">Question %s</h2>
<div class="wmde-markdown"><p>Body %s</p>
<h3>추가 학습 자료</h3><ul><li><a href="https://ref.example/%s">Ref</a></li></ul></div>
</body></html>`, id, id, id)
	}))
	defer srv.Close()

	a, err := app.New(context.Background(), memoryConfig(srv.URL+"/question"), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	fetcher, err := a.NewFetcher()
	require.NoError(t, err)
	report, err := a.Orchestrator(fetcher).RunLive(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, 2, report.Stored)
	require.Equal(t, 1, report.NotFound)
	require.Equal(t, 2, report.PublishSkipped)

	records, err := a.Store().FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].ID)
	require.Equal(t, "Question 1", records[0].Title)
	require.Equal(t, []question.Link{{Text: "Ref", URL: "https://ref.example/1"}}, records[0].AdditionalLinks)
	require.Equal(t, 3, records[1].ID)

	count, err := a.Store().Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
