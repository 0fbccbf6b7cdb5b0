package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/scene"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// ConsoleClient is the interface CLI commands use to drive a running tower
// server.
type ConsoleClient interface {
	Session(ctx context.Context) (*model.Session, error)
	Submit(ctx context.Context, form model.TransactionForm) (*model.Session, error)
	SetTab(ctx context.Context, tab model.Tab) (*model.Session, error)
	SetFraudOnly(ctx context.Context, on bool) (*model.Session, error)
	ReloadGraph(ctx context.Context) (*model.Session, error)
	GraphView(ctx context.Context) (*model.View, error)
	Scene(ctx context.Context) (*scene.Frame, error)
	Search(ctx context.Context, query string) (*model.Session, error)
	Click(ctx context.Context, id string) (*model.Session, error)
	Zoom(ctx context.Context, direction int) (*camera.Pose, error)
	Follow(ctx context.Context, topics []string, emit func(stream.Message) bool) error
	Health(ctx context.Context) (string, error)
	Close() error
}

var _ ConsoleClient = (*HTTPClient)(nil)

func (c *HTTPClient) session(ctx context.Context, method, path string, body any) (*model.Session, error) {
	var s model.Session
	if err := c.doJSON(ctx, method, path, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Session(ctx context.Context) (*model.Session, error) {
	return c.session(ctx, http.MethodGet, "/v1/session", nil)
}

func (c *HTTPClient) Submit(ctx context.Context, form model.TransactionForm) (*model.Session, error) {
	return c.session(ctx, http.MethodPost, "/v1/transactions", form)
}

func (c *HTTPClient) SetTab(ctx context.Context, tab model.Tab) (*model.Session, error) {
	return c.session(ctx, http.MethodPut, "/v1/tab", map[string]string{"tab": string(tab)})
}

func (c *HTTPClient) SetFraudOnly(ctx context.Context, on bool) (*model.Session, error) {
	return c.session(ctx, http.MethodPut, "/v1/graph/filter", map[string]bool{"fraud_only": on})
}

func (c *HTTPClient) ReloadGraph(ctx context.Context) (*model.Session, error) {
	return c.session(ctx, http.MethodPost, "/v1/graph/reload", nil)
}

func (c *HTTPClient) GraphView(ctx context.Context) (*model.View, error) {
	var v model.View
	if err := c.doJSON(ctx, http.MethodGet, "/v1/graph/view", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) Scene(ctx context.Context) (*scene.Frame, error) {
	var f scene.Frame
	if err := c.doJSON(ctx, http.MethodGet, "/v1/scene", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *HTTPClient) Search(ctx context.Context, query string) (*model.Session, error) {
	return c.session(ctx, http.MethodPost, "/v1/search", map[string]string{"query": query})
}

func (c *HTTPClient) Click(ctx context.Context, id string) (*model.Session, error) {
	return c.session(ctx, http.MethodPost, "/v1/scene/click", map[string]string{"id": id})
}

func (c *HTTPClient) Zoom(ctx context.Context, direction int) (*camera.Pose, error) {
	var p camera.Pose
	if err := c.doJSON(ctx, http.MethodPost, "/v1/camera/zoom", map[string]int{"direction": direction}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Follow reads the server's event stream, calling emit with the topic as
// Stage, until ctx ends, the server closes the stream or emit returns false.
// An empty topics list follows everything.
func (c *HTTPClient) Follow(ctx context.Context, topics []string, emit func(stream.Message) bool) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?" + url.Values{"topics": {strings.Join(topics, ",")}}.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the request timeout.
	resp, err := (&http.Client{Transport: c.httpClient.Transport}).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("HTTP GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	err = ParseSSE(resp.Body, emit)
	if errors.Is(err, errStopped) || ctx.Err() != nil {
		return nil
	}
	return err
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
