package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/tower/internal/model"
)

// Upstream service paths.
const (
	TransactionsPath = "/api/transactions"
	GraphPath        = "/api/graph"
)

// transportError classifies a failed exchange for the console.
func transportError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &model.TransportError{Op: op, StatusCode: apiErr.StatusCode, Err: apiErr}
	}
	return &model.TransportError{Op: op, Err: err}
}

// SubmitTransaction posts a transaction. The reply body is parsed only when
// the service declares it as JSON; any other reply yields an empty
// response, which callers treat as "no id, no score, no verdict".
func (c *HTTPClient) SubmitTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	resp, body, err := c.do(ctx, http.MethodPost, TransactionsPath, req)
	if err != nil {
		return nil, transportError("submit transaction", err)
	}
	out := &model.TransactionResponse{}
	if !isJSON(resp.Header.Get("Content-Type")) || len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	var f model.Fields
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, &model.MalformedResponseError{Op: "submit transaction", Reason: "invalid JSON reply", Err: err}
	}
	return model.DecodeTransactionResponse(f), nil
}

// FetchGraph returns the raw graph snapshot payload. It satisfies
// graph.Source.
func (c *HTTPClient) FetchGraph(ctx context.Context) ([]byte, error) {
	_, body, err := c.do(ctx, http.MethodGet, GraphPath, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError("fetch graph", err)
	}
	return body, nil
}
