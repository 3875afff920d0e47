// Package sdp exchanges session descriptions with the remote negotiation
// endpoint. Posting the offer is the one irreversible step of session
// establishment: the credential is consumed whether or not an answer comes
// back.
package sdp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
)

const contentTypeSDP = "application/sdp"

type Client struct {
	baseURL string
	model   string
	hc      *http.Client
}

func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		hc:      &http.Client{Timeout: timeout},
	}
}

// Exchange posts the local offer and returns the remote answer. Any non-2xx
// is fatal for this attempt; the caller decides whether to restart the whole
// session from a fresh credential.
func (c *Client) Exchange(ctx context.Context, offerSDP string, cred domain.Credential) (string, error) {
	endpoint := c.baseURL
	if c.model != "" {
		endpoint = fmt.Sprintf("%s?model=%s", c.baseURL, url.QueryEscape(c.model))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", core.Fault(core.FaultNegotiation, "build negotiation request", err)
	}
	req.Header.Set("Content-Type", contentTypeSDP)
	req.Header.Set("Authorization", "Bearer "+cred.Value)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", core.Fault(core.FaultNegotiation, "negotiation endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.Fault(core.FaultNegotiation, "read negotiation response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Body is free-form error text meant for the user.
		return "", core.Fault(core.FaultNegotiation,
			fmt.Sprintf("negotiation endpoint returned %d: %s", resp.StatusCode, string(raw)), nil)
	}
	if len(raw) == 0 {
		return "", core.Fault(core.FaultNegotiation, "empty answer from negotiation endpoint", nil)
	}

	log.Info().Str("module", "adapters.sdp").Str("model", c.model).Msg("answer received")
	return string(raw), nil
}
