// Package token mints short-lived session credentials from the backend.
// The backend is the trust boundary: it holds the long-lived provider key,
// the agent only ever sees single-use ephemeral secrets.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
)

type Client struct {
	url string
	hc  *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		hc:  &http.Client{Timeout: timeout},
	}
}

type mintRequest struct {
	Voice string `json:"voice,omitempty"`
}

type mintResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// Mint performs one POST to the token endpoint. No retry here; retry policy
// belongs to the caller, and the credential is valid for one negotiation.
func (c *Client) Mint(ctx context.Context, voice string) (domain.Credential, error) {
	body, err := json.Marshal(mintRequest{Voice: voice})
	if err != nil {
		return domain.Credential{}, core.Fault(core.FaultAuth, "encode token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Credential{}, core.Fault(core.FaultAuth, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.Credential{}, core.Fault(core.FaultAuth, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Credential{}, core.Fault(core.FaultAuth, "read token response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Credential{}, core.Fault(core.FaultAuth,
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(raw)), nil)
	}

	var mr mintResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return domain.Credential{}, core.Fault(core.FaultAuth, "malformed token response", err)
	}
	if mr.ClientSecret.Value == "" {
		return domain.Credential{}, core.Fault(core.FaultAuth, "token response missing client_secret", nil)
	}

	log.Info().Str("module", "adapters.token").Msg("minted ephemeral credential")
	return domain.Credential{Value: mr.ClientSecret.Value}, nil
}
