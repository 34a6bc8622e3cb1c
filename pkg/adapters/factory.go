package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/HatiCode/spikewatch/pkg/tls"
)

// New builds an adapter from a kind and a flat string configuration, as read
// from flags or a stream file.
//
// Supported kinds and their keys:
//   - "prometheus", "victoriametrics": query (required), url
//   - "http": url, valuePath, timestampPath (required), method, body,
//     timestampFormat, headers and templateVars (JSON objects)
//   - "replay": path (required), a YAML recording
//
// The network adapters also accept tlsCaFile, tlsCertFile and tlsKeyFile.
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case string(FlavourPrometheus), string(FlavourVictoriaMetrics):
		return newPrometheus(Flavour(kind), config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	case "replay":
		path := config["path"]
		if path == "" {
			return nil, fmt.Errorf("replay adapter requires 'path' config")
		}
		return LoadReplay(path, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, http, or replay)", kind)
	}
}

func newPrometheus(flavour Flavour, config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", flavour)
	}

	url := config["url"]
	if url == "" {
		url = flavour.DefaultURL()
	}

	client, err := httpClient(config)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", flavour, err)
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		Flavour:     flavour,
		HTTPClient:  client,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
	}

	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	client, err := httpClient(config)
	if err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	a.HTTPClient = client

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// httpClient returns a TLS client when any tls* key is set, nil otherwise.
func httpClient(config map[string]string) (*http.Client, error) {
	c := tls.Config{
		CertFile: config["tlsCertFile"],
		KeyFile:  config["tlsKeyFile"],
		CAFile:   config["tlsCaFile"],
	}
	if c.Empty() {
		return nil, nil
	}
	return tls.HTTPClient(c, 10*time.Second)
}
