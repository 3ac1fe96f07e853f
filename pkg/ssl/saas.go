package ssl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// saasProvisioner drives a third-party custom-hostname SSL API. Free tiers
// cap the number of hostnames per account (around 100), which the API
// reports as a 4xx with a quota message; that case maps to ErrHostnameLimit
// so callers can surface it distinctly.
type saasProvisioner struct {
	apiURL   string
	apiToken string
	client   *http.Client
	// Outbound throttle. The provider rate-limits aggressively, and a
	// burst of verify calls must not get the whole account blocked.
	throttle *rate.Limiter
}

func NewSaaS(apiURL, apiToken string, timeout time.Duration) Provisioner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &saasProvisioner{
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
		throttle: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

func (p *saasProvisioner) Name() string { return "saas" }

type hostnameRequest struct {
	Hostname string `json:"hostname"`
	SSL      struct {
		Method string `json:"method"`
		Type   string `json:"type"`
	} `json:"ssl"`
}

type hostnameResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID  string `json:"id"`
		SSL struct {
			Status string `json:"status"`
		} `json:"ssl"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *saasProvisioner) Provision(ctx context.Context, domainName string) (string, model.SslStatus, error) {
	body := hostnameRequest{Hostname: domainName}
	body.SSL.Method = "http"
	body.SSL.Type = "dv"

	var out hostnameResponse
	status, err := p.do(ctx, http.MethodPost, "/custom_hostnames", body, &out)
	if err != nil {
		return "", model.SslStatusFailed, err
	}

	if !out.Success {
		for _, e := range out.Errors {
			if isLimitError(e.Code, e.Message) {
				return "", model.SslStatusFailed, ErrHostnameLimit
			}
		}
		return "", model.SslStatusFailed, fmt.Errorf("ssl provider rejected hostname %s (http %d)", domainName, status)
	}

	return out.Result.ID, mapProviderStatus(out.Result.SSL.Status), nil
}

func (p *saasProvisioner) Status(ctx context.Context, domainName, certificateID string) (model.SslStatus, error) {
	if certificateID == "" {
		return model.SslStatusNone, nil
	}

	var out hostnameResponse
	path := "/custom_hostnames/" + url.PathEscape(certificateID)
	if _, err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return model.SslStatusPending, err
	}
	if !out.Success {
		return model.SslStatusFailed, fmt.Errorf("ssl provider could not report status for %s", domainName)
	}
	return mapProviderStatus(out.Result.SSL.Status), nil
}

func (p *saasProvisioner) Deprovision(ctx context.Context, domainName string) error {
	// Hostname records are addressed by id; look it up by hostname first.
	var out struct {
		Success bool `json:"success"`
		Result  []struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	path := "/custom_hostnames?hostname=" + url.QueryEscape(domainName)
	if _, err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	for _, r := range out.Result {
		if _, err := p.do(ctx, http.MethodDelete, "/custom_hostnames/"+url.PathEscape(r.ID), nil, &struct{}{}); err != nil {
			return err
		}
	}
	return nil
}

func (p *saasProvisioner) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return 0, err
	}

	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.apiURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logrus.Debugf("ssl provider returned undecodable body for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, nil
}

func isLimitError(code int, message string) bool {
	if code == 1414 { // provider's "hostname quota exceeded" code
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "limit") && strings.Contains(msg, "hostname")
}

func mapProviderStatus(s string) model.SslStatus {
	switch strings.ToLower(s) {
	case "active":
		return model.SslStatusActive
	case "pending", "pending_validation", "pending_issuance", "pending_deployment", "initializing":
		return model.SslStatusPending
	case "":
		return model.SslStatusPending
	default:
		return model.SslStatusFailed
	}
}
