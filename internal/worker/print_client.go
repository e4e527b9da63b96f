package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const elecIDPrintPath = "internal/elec-id/print"

// fetchInternalPrintData pulls render payload JSON from the internal print
// endpoint. Only the worker may call it, authenticated by header secret.
func fetchInternalPrintData(ctx context.Context, internalAPIBaseURL string, resourcePath string, id uint, secret string, correlationID string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("internal api secret missing")
	}

	internalAPIBaseURL = strings.TrimRight(strings.TrimSpace(internalAPIBaseURL), "/")
	if internalAPIBaseURL == "" {
		return nil, fmt.Errorf("internal api base url missing")
	}

	targetURL := fmt.Sprintf("%s/v1/%s/%d", internalAPIBaseURL, strings.TrimPrefix(resourcePath, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build internal request: %w", err)
	}
	req.Header.Set("X-Internal-Secret", secret)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request internal print data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, fmt.Errorf("internal print data status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read internal print data: %w", err)
	}

	return data, nil
}

// buildPrintDataBootstrapScript builds the script that injects
// window.__PRINT_DATA__ into the page. JSON.parse plus Go's Quote keeps
// the embedding safe.
func buildPrintDataBootstrapScript(data []byte) string {
	quoted := strconv.Quote(string(data))
	return fmt.Sprintf(`() => { window.__PRINT_DATA__ = JSON.parse(%s); }`, quoted)
}
