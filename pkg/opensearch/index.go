package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
)

// Index stores JSON documents under one index name and answers
// multi-field text queries with matching document ids.
type Index struct {
	client *opensearch.Client
	name   string
	fields []string
}

// NewIndex binds name on client. fields are searched by Search, with optional
// "^n" boosts, e.g. "title^3".
func NewIndex(client *opensearch.Client, name string, fields ...string) *Index {
	return &Index{client: client, name: name, fields: fields}
}

// Ensure creates the index when it does not exist yet.
func (i *Index) Ensure(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Join(ErrIndexFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return errors.Join(ErrIndexFailed, fmt.Errorf("exists: %s", res.Status()))
	}

	res, err = i.client.Indices.Create(i.name, i.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return errors.Join(ErrIndexFailed, err)
	}
	defer res.Body.Close()
	// another instance may have won the race
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return errors.Join(ErrIndexFailed, responseError(res.StatusCode, res.Body))
	}
	return nil
}

// Put creates or replaces the document with id.
func (i *Index) Put(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Join(ErrIndexFailed, err)
	}

	res, err := i.client.Index(
		i.name,
		bytes.NewReader(body),
		i.client.Index.WithDocumentID(id),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.Join(ErrIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Join(ErrIndexFailed, responseError(res.StatusCode, res.Body))
	}
	return nil
}

// Search returns ids of the best matching documents, most relevant first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	body, err := json.Marshal(searchQuery(query, i.fields, limit))
	if err != nil {
		return nil, errors.Join(ErrSearchFailed, err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errors.Join(ErrSearchFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Join(ErrSearchFailed, responseError(res.StatusCode, res.Body))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Join(ErrSearchFailed, err)
	}
	ids := make([]string, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func searchQuery(q string, fields []string, limit int) map[string]any {
	mm := map[string]any{
		"query":     q,
		"fuzziness": "AUTO",
	}
	if len(fields) > 0 {
		mm["fields"] = fields
	}
	return map[string]any{
		"size":    limit,
		"_source": false,
		"query":   map[string]any{"multi_match": mm},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func responseError(status int, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 512))
	return fmt.Errorf("status %d: %s", status, bytes.TrimSpace(b))
}
