package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"time"

	"consultly/pkg/domain"
)

// ErrJoinNotAllowed rejects a token request outside the join window.
var ErrJoinNotAllowed = errors.New("session cannot be joined at this time")

// Provider mints a call token for a (channel, participant) pair. The real
// implementation delegates to the external call vendor.
type Provider interface {
	IssueToken(ctx context.Context, channelID string, uid uint32) (string, error)
}

// Issuer gates call-token requests on the access rules and delegates minting
// to the provider.
type Issuer struct {
	provider Provider
	now      func() time.Time
}

// NewIssuer constructs the issuer. now defaults to time.Now.
func NewIssuer(provider Provider, now func() time.Time) *Issuer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Issuer{provider: provider, now: now}
}

// IssueCallToken returns a token for the booking's call channel once the
// join (or rejoin) window is open for the participant. The rejoin flag is
// derived from the same instant as the grant so the two never disagree.
func (i *Issuer) IssueCallToken(ctx context.Context, b domain.Booking, userID string) (token string, rejoin bool, err error) {
	if !b.Participant(userID) {
		return "", false, ErrJoinNotAllowed
	}
	now := i.now()
	rejoin = WithinRejoinGrace(b, now)
	if !CanJoin(b, now) && !rejoin {
		return "", false, ErrJoinNotAllowed
	}
	token, err = i.provider.IssueToken(ctx, b.ID, NumericUID(userID))
	if err != nil {
		return "", false, fmt.Errorf("issue call token: %w", err)
	}
	return token, rejoin, nil
}

// NumericUID derives the provider's numeric participant identifier
// deterministically from the opaque user id. Never zero: vendors reserve it.
func NumericUID(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	uid := h.Sum32()
	if uid == 0 {
		return 1
	}
	return uid
}

// HTTPProvider calls the vendor's token endpoint. Best-effort with a bounded
// timeout and no retry.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider constructs the provider.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type tokenRequest struct {
	ChannelID string `json:"channelId"`
	UID       uint32 `json:"uid"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken requests a token from the vendor.
func (p *HTTPProvider) IssueToken(ctx context.Context, channelID string, uid uint32) (string, error) {
	body, err := json.Marshal(tokenRequest{ChannelID: channelID, UID: uid})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/tokens", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("call provider returned %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return "", err
	}
	if tr.Token == "" {
		return "", errors.New("call provider returned empty token")
	}
	return tr.Token, nil
}
