package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp formats understood by HTTPAdapter.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// HTTPAdapter calls a JSON API and extracts a series with gjson paths.
//
// Body and header values are text/template strings. Besides TemplateVars they
// can use {{.WindowSeconds}}, {{.Start}}, {{.End}}, {{.Step}},
// {{.StartRFC3339}} and {{.EndRFC3339}}.
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://metrics.example.com/query",
//	    Method:        "POST",
//	    Headers:       map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    Body:          `{"metric": "cpu", "window": "{{.WindowSeconds}}s"}`,
//	    ValuePath:     "data.#.value",
//	    TimestampPath: "data.#.ts",
//	}
type HTTPAdapter struct {
	URL     string
	Method  string // GET when empty
	Headers map[string]string
	Body    string

	// ValuePath and TimestampPath must select arrays of equal length.
	ValuePath     string
	TimestampPath string
	// TimestampFormat is rfc3339 (default), unix or unix_milli.
	TimestampFormat string

	StepSeconds  int
	TemplateVars map[string]string
	HTTPClient   *http.Client
}

func (h *HTTPAdapter) Name() string { return "http" }

// Validate checks the static configuration.
func (h *HTTPAdapter) Validate() error {
	if h.URL == "" {
		return fmt.Errorf("http adapter: url is required")
	}
	if h.ValuePath == "" || h.TimestampPath == "" {
		return fmt.Errorf("http adapter: valuePath and timestampPath are required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampUnix, TimestampUnixMilli:
		return nil
	default:
		return fmt.Errorf("http adapter: invalid timestampFormat %q (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

// Collect calls the endpoint for the last windowSeconds.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.Validate(); err != nil {
		return &DataFrame{}, err
	}

	step := stepOrDefault(h.StepSeconds)
	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-time.Duration(windowSeconds) * time.Second)

	vars := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           end.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    end.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := render(h.Body, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := render(value, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := defaultClient(h.HTTPClient).Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, snippet)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}
	return h.extract(payload)
}

func (h *HTTPAdapter) extract(payload []byte) (*DataFrame, error) {
	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return &DataFrame{}, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	stamps := gjson.GetBytes(payload, h.TimestampPath)
	if !stamps.Exists() {
		return &DataFrame{}, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	vals, tss := values.Array(), stamps.Array()
	if len(vals) != len(tss) {
		return &DataFrame{}, fmt.Errorf("value count (%d) != timestamp count (%d)", len(vals), len(tss))
	}

	rows := make([]Row, 0, len(vals))
	for i := range vals {
		if vals[i].Type != gjson.Number && vals[i].Type != gjson.String {
			return &DataFrame{}, fmt.Errorf("value[%d]: not a number: %s", i, vals[i].Raw)
		}
		ts, err := h.parseTimestamp(tss[i])
		if err != nil {
			return &DataFrame{}, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		rows = append(rows, Row{"ts": ts, "value": vals[i].Float()})
	}
	return sortedFrame(rows), nil
}

func (h *HTTPAdapter) parseTimestamp(v gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, v.String())
	case TimestampUnix:
		return time.Unix(int64(v.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(v.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func render(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
