// Package prober batch-probes a list of URLs through one shared pool-backed
// client, recording outcomes to the database.
package prober

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"egress-client/pkg/client"
	"egress-client/pkg/database"
	"egress-client/pkg/models"
)

// ProbeURLs runs the URLs through a fixed-size worker pool. A nil db skips
// recording. Individual probe failures are logged, not returned.
func ProbeURLs(ctx context.Context, db *database.DB, c *client.Client, urls []string, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan string, len(urls))
	results := make(chan models.RequestLog, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, db, c, &wg, jobs, results)
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed int
	for r := range results {
		if r.ErrorMsg != "" {
			failed++
		}
		slog.Debug("URL probed", "url", r.URL, "status", r.StatusCode, "error", r.ErrorMsg)
	}

	slog.Info("probe run finished", "urls", len(urls), "failed", failed)
	return nil
}

func worker(ctx context.Context, db *database.DB, c *client.Client, wg *sync.WaitGroup, jobs <-chan string, results chan<- models.RequestLog) {
	defer wg.Done()
	for u := range jobs {
		record, err := probeURL(ctx, db, c, u)
		if err != nil {
			slog.Error("Error recording probe", "url", u, "error", err)
		}
		results <- record
	}
}

func probeURL(ctx context.Context, db *database.DB, c *client.Client, u string) (models.RequestLog, error) {
	start := time.Now()
	record := models.RequestLog{
		ID:     uuid.New().String(),
		Method: http.MethodGet,
		URL:    u,
	}

	res, err := c.Do(ctx, http.MethodGet, u, nil)
	record.DurationMs = time.Since(start).Milliseconds()
	record.Proxy = c.CurrentProxy()
	if err != nil {
		record.ErrorMsg = err.Error()
	} else {
		record.StatusCode = res.Response.StatusCode
		record.Attempts = res.Attempts
	}

	if db != nil {
		if err := db.InsertRequestLog(ctx, &record); err != nil {
			return record, fmt.Errorf("failed to record probe result: %w", err)
		}
	}

	return record, nil
}

// ReadURLFile loads one URL per line, skipping blanks and # comments.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}

	return urls, nil
}
