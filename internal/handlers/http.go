package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResultLen       = 200
)

// HTTP выполняет HTTP-запрос по параметрам job.
//
// Параметры:
//   - method (string): HTTP-метод. Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout (string | number): "10s" или секунды. Default: 30s
//
// Результат: "HTTP <code>: <начало тела>". Код >= 400 — ошибка.
func HTTP(ctx context.Context, params map[string]any) (string, error) {
	method := strings.ToUpper(getString(params, "method", http.MethodGet))
	url := getString(params, "url", "")
	if url == "" {
		return "", fmt.Errorf("%w: url is required", ErrHTTPRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, getDuration(params, "timeout", defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := params["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	setHeaders(req, params)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	result := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), maxResultLen))
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %s", ErrHTTPRequest, result)
	}
	return result, nil
}

// setHeaders устанавливает заголовки из параметров.
func setHeaders(req *http.Request, params map[string]any) {
	switch h := params["headers"].(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}
