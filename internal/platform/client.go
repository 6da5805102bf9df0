package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBody = 4 << 20

// apiClient performs platform calls and turns every failure into an *Error.
type apiClient struct {
	platform string
	http     *http.Client
}

func newAPIClient(platform string, client *http.Client) apiClient {
	if client == nil {
		client = http.DefaultClient
	}
	return apiClient{platform: platform, http: client}
}

// do sends req and decodes a 2xx JSON body into out when out is non-nil.
func (c apiClient) do(req *http.Request, out interface{}) (http.Header, error) {
	header, body, err := c.raw(req)
	if err != nil {
		return nil, err
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &Error{Platform: c.platform, Code: CodeUnknown,
				Message: fmt.Sprintf("decode response: %v", err), Err: err}
		}
	}
	return header, nil
}

// raw sends req and returns the body of a 2xx response.
func (c apiClient) raw(req *http.Request) (http.Header, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, Classify(c.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, nil, Classify(c.platform, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, FromResponse(c.platform, resp.StatusCode, body)
	}
	return resp.Header, body, nil
}

func (c apiClient) getJSON(ctx context.Context, rawURL, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	setBearer(req, bearer)

	_, err = c.do(req, out)
	return err
}

func (c apiClient) postJSON(ctx context.Context, rawURL, bearer string, in, out interface{}) (http.Header, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	setBearer(req, bearer)

	return c.do(req, out)
}

func (c apiClient) postForm(ctx context.Context, rawURL, bearer string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setBearer(req, bearer)

	_, err = c.do(req, out)
	return err
}

func setBearer(req *http.Request, bearer string) {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func withQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
