package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// HTTPAdapter proxies requests to a generic HTTP API. GET and HEAD map
// to the read class; every other method is write. The upstream base URL
// lives in config, auth material in credentials; neither is ever echoed
// back to the caller.
type HTTPAdapter struct {
	limits Limits
}

// NewHTTPAdapter creates an HTTP API adapter with the given limits.
func NewHTTPAdapter(limits Limits) *HTTPAdapter {
	return &HTTPAdapter{limits: limits.withDefaults()}
}

var _ Adapter = (*HTTPAdapter)(nil)

func (a *HTTPAdapter) ValidateConfig(config map[string]any) error {
	baseURL, err := stringField(config, "base_url")
	if err != nil {
		return err
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErr("base_url must be an absolute http(s) URL")
	}
	return nil
}

func (a *HTTPAdapter) Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*Result, error) {
	method := strings.ToUpper(op.Method)
	if err := checkMethodClass(method, op.Class); err != nil {
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected, err)
	}

	client := resty.New().
		SetBaseURL(optStringField(config, "base_url")).
		SetTimeout(a.limits.Timeout).
		SetRedirectPolicy(resty.NoRedirectPolicy())

	req := client.R().SetContext(ctx)

	// Credentials: either a bearer-style header or basic auth.
	if token := optStringField(credentials, "auth_token"); token != "" {
		header := optStringField(credentials, "auth_header")
		if header == "" {
			header = "Authorization"
			token = "Bearer " + token
		}
		req.SetHeader(header, token)
	} else if user := optStringField(credentials, "user"); user != "" {
		req.SetBasicAuth(user, optStringField(credentials, "password"))
	}

	if len(op.Values) > 0 {
		req.SetQueryParamsFromValues(op.Values)
	}
	if len(op.Body) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody([]byte(op.Body))
	}

	resp, err := req.Execute(method, op.Path)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	body := resp.Body()
	if int64(len(body)) > a.limits.MaxResponseBytes {
		return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
			fmt.Errorf("response exceeds %d bytes", a.limits.MaxResponseBytes))
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		// The status code is safe to expose; the upstream body may
		// leak endpoint details and is not.
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected,
			fmt.Errorf("upstream returned %d", resp.StatusCode()))
	}

	result := &Result{StatusCode: resp.StatusCode()}
	if json.Valid(body) {
		result.Body = body
	} else {
		result.Content = body
	}
	return result, nil
}

func checkMethodClass(method string, class models.OpClass) error {
	var want models.OpClass
	switch method {
	case http.MethodGet, http.MethodHead:
		want = models.OpRead
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		want = models.OpWrite
	default:
		return fmt.Errorf("unsupported method %q", method)
	}
	if want != class {
		return fmt.Errorf("method %s does not match declared class %s", method, class)
	}
	return nil
}
