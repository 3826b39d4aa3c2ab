package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowscript/flowscript/engine/node"
)

type httpRequestNode struct {
	client *http.Client
}

func (httpRequestNode) Metadata() node.Metadata {
	return node.Metadata{
		Name:        "httpRequest",
		Description: "Performs an HTTP request and exposes the response as edge data",
		Type:        node.TypeAction,
		AIHints: map[string]any{
			"purpose": "external I/O",
			"config":  "url, method, headers, body, timeout",
		},
		ExpectedEdges: []string{"success", "error"},
	}
}

func (n httpRequestNode) Execute(ctx context.Context, ec *node.ExecutionContext) (node.Edges, error) {
	url := ec.ConfigString("url", "")
	method := strings.ToUpper(ec.ConfigString("method", "GET"))

	var body io.Reader
	if raw, ok := ec.Config["body"]; ok && raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := ec.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	client := n.client
	if client == nil {
		client = http.DefaultClient
	}
	if timeout := parseDuration(ec.Config["timeout"]); timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		// Network failures route to the error edge; the workflow decides
		return node.Edges{node.Simple("error", map[string]any{
			"error": err.Error(),
			"url":   url,
		})}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return node.Edges{node.Simple("error", map[string]any{
			"error": err.Error(),
			"url":   url,
		})}, nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	data := map[string]any{
		"status":     resp.StatusCode,
		"body":       parsed,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if resp.StatusCode >= 400 {
		data["error"] = resp.Status
		return node.Edges{node.Simple("error", data)}, nil
	}
	return node.Edges{node.Simple("success", data)}, nil
}
