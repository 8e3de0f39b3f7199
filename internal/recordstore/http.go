package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nsafonov/proofdesk/internal/common"
	"github.com/sethvargo/go-retry"
)

const apiVersion = "2022-06-28"

// HTTPStore talks to the hosted document database over its REST API.
// Collections are database ids, refs are page ids.
//
// Reads (Retrieve/Query) run under a bounded fibonacci backoff because they
// are safe to repeat; writes are issued exactly once so a retried create can
// never mint a duplicate record.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPStore(baseURL, token string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": collection},
		"properties": encodeFields(fields),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/pages", body, &resp); err != nil {
		return "", fmt.Errorf("store create: %w", err)
	}
	return resp.ID, nil
}

func (s *HTTPStore) Update(ctx context.Context, ref string, fields Fields) error {
	body := map[string]any{"properties": encodeFields(fields)}
	if err := s.do(ctx, http.MethodPatch, "/pages/"+ref, body, nil); err != nil {
		return fmt.Errorf("store update: %w", err)
	}
	return nil
}

func (s *HTTPStore) Retrieve(ctx context.Context, ref string) (Fields, error) {
	var resp struct {
		ID         string                     `json:"id"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	err := s.doRetry(ctx, http.MethodGet, "/pages/"+ref, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("store retrieve: %w", err)
	}
	return decodeFields(resp.Properties), nil
}

func (s *HTTPStore) Query(ctx context.Context, collection string, filter *Filter) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		body := map[string]any{}
		if filter != nil {
			body["filter"] = encodeFilter(filter)
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp struct {
			Results []struct {
				ID         string                     `json:"id"`
				Properties map[string]json.RawMessage `json:"properties"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		err := s.doRetry(ctx, http.MethodPost, "/databases/"+collection+"/query", body, &resp)
		if err != nil {
			return nil, fmt.Errorf("store query: %w", err)
		}

		for _, r := range resp.Results {
			pages = append(pages, Page{Ref: r.ID, Fields: decodeFields(r.Properties)})
		}
		if !resp.HasMore {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

func (s *HTTPStore) EnsureFields(ctx context.Context, collection string, defs []FieldDef) error {
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := s.doRetry(ctx, http.MethodGet, "/databases/"+collection, nil, &schema); err != nil {
		return fmt.Errorf("store schema retrieve: %w", err)
	}

	missing := map[string]any{}
	for _, d := range defs {
		if _, ok := schema.Properties[d.Name]; ok {
			continue
		}
		missing[d.Name] = map[string]any{kindTypeName(d.Kind): map[string]any{}}
	}
	if len(missing) == 0 {
		return nil
	}

	body := map[string]any{"properties": missing}
	if err := s.do(ctx, http.MethodPatch, "/databases/"+collection, body, nil); err != nil {
		return fmt.Errorf("store schema update: %w", err)
	}
	return nil
}

// doRetry is do under a bounded backoff, for idempotent reads only.
func (s *HTTPStore) doRetry(ctx context.Context, method, path string, body, out any) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.do(ctx, method, path, body, out)
		if err != nil && !isPermanent(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrorNotFound
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &apiError{status: resp.StatusCode, body: string(data)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("store api status %d: %s", e.status, e.body)
}

// isPermanent reports whether retrying cannot help: not-found and all 4xx
// responses short of 429.
func isPermanent(err error) bool {
	if errors.Is(err, common.ErrorNotFound) {
		return true
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status >= 400 && ae.status < 500 && ae.status != http.StatusTooManyRequests
	}
	return false
}

// --- field/property codecs ---

func kindTypeName(k Kind) string {
	switch k {
	case KindTitle:
		return "title"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindSelect:
		return "select"
	case KindRelation:
		return "relation"
	case KindCheckbox:
		return "checkbox"
	default:
		return "rich_text"
	}
}

func encodeFields(fields Fields) map[string]any {
	props := make(map[string]any, len(fields))
	for name, v := range fields {
		props[name] = encodeValue(v)
	}
	return props
}

func encodeValue(v Value) map[string]any {
	switch v.Kind {
	case KindTitle:
		return map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": v.Str}}}}
	case KindText:
		return map[string]any{"rich_text": []any{map[string]any{"text": map[string]any{"content": v.Str}}}}
	case KindNumber:
		return map[string]any{"number": v.Num}
	case KindDate:
		return map[string]any{"date": map[string]any{"start": v.Time.Format(time.RFC3339)}}
	case KindSelect:
		return map[string]any{"select": map[string]any{"name": v.Str}}
	case KindRelation:
		rel := make([]any, 0, len(v.Refs))
		for _, r := range v.Refs {
			rel = append(rel, map[string]any{"id": r})
		}
		return map[string]any{"relation": rel}
	case KindCheckbox:
		return map[string]any{"checkbox": v.Bool}
	}
	return map[string]any{}
}

func encodeFilter(f *Filter) map[string]any {
	switch f.Equals.Kind {
	case KindTitle:
		return map[string]any{"property": f.Field, "title": map[string]any{"equals": f.Equals.Str}}
	case KindNumber:
		return map[string]any{"property": f.Field, "number": map[string]any{"equals": f.Equals.Num}}
	case KindSelect:
		return map[string]any{"property": f.Field, "select": map[string]any{"equals": f.Equals.Str}}
	case KindCheckbox:
		return map[string]any{"property": f.Field, "checkbox": map[string]any{"equals": f.Equals.Bool}}
	default:
		return map[string]any{"property": f.Field, "rich_text": map[string]any{"equals": f.Equals.Str}}
	}
}

func decodeFields(props map[string]json.RawMessage) Fields {
	fields := make(Fields, len(props))
	for name, raw := range props {
		if v, ok := decodeValue(raw); ok {
			fields[name] = v
		}
	}
	return fields
}

type richSpan struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

func spansToString(spans []richSpan) string {
	var out string
	for _, s := range spans {
		if s.PlainText != "" {
			out += s.PlainText
		} else {
			out += s.Text.Content
		}
	}
	return out
}

func decodeValue(raw json.RawMessage) (Value, bool) {
	var prop struct {
		Type     string     `json:"type"`
		Title    []richSpan `json:"title"`
		RichText []richSpan `json:"rich_text"`
		Number   *float64   `json:"number"`
		Checkbox *bool      `json:"checkbox"`
		Select   *struct {
			Name string `json:"name"`
		} `json:"select"`
		Date *struct {
			Start string `json:"start"`
		} `json:"date"`
		Relation []struct {
			ID string `json:"id"`
		} `json:"relation"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil {
		return Value{}, false
	}

	switch prop.Type {
	case "title":
		return Title(spansToString(prop.Title)), true
	case "rich_text":
		return Text(spansToString(prop.RichText)), true
	case "number":
		if prop.Number == nil {
			return Value{}, false
		}
		return Number(*prop.Number), true
	case "select":
		if prop.Select == nil {
			return Value{}, false
		}
		return Select(prop.Select.Name), true
	case "date":
		if prop.Date == nil {
			return Value{}, false
		}
		t, err := time.Parse(time.RFC3339, prop.Date.Start)
		if err != nil {
			return Value{}, false
		}
		return Date(t), true
	case "relation":
		refs := make([]string, 0, len(prop.Relation))
		for _, r := range prop.Relation {
			refs = append(refs, r.ID)
		}
		return Relation(refs...), true
	case "checkbox":
		if prop.Checkbox == nil {
			return Value{}, false
		}
		return Checkbox(*prop.Checkbox), true
	}
	return Value{}, false
}
