package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/service"
)

// Client implements Ledger over the server's HTTP API using a scorer or
// admin capability token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

var kindByName = map[string]apperr.Kind{
	"auth":       apperr.KindAuth,
	"permission": apperr.KindPermission,
	"lifecycle":  apperr.KindLifecycle,
	"validation": apperr.KindValidation,
	"duplicate":  apperr.KindDuplicate,
	"not_found":  apperr.KindNotFound,
	"storage":    apperr.KindStorage,
}

func (c *Client) SubmitScore(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "encode request")
	}

	url := fmt.Sprintf("%s/api/events/%s/scores", c.baseURL, in.EventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures are retryable by the next drain cycle.
		return nil, apperr.Wrap(apperr.KindStorage, err, "submit score")
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "decode response")
	}
	if !env.Success {
		kind, ok := kindByName[env.Kind]
		if !ok {
			kind = apperr.KindStorage
		}
		return nil, apperr.New(kind, "%s", env.Error)
	}

	var result service.SubmitResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "decode result")
	}
	return &result, nil
}

func (c *Client) FetchTeams(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Team, error) {
	url := fmt.Sprintf("%s/api/events/%s/teams", c.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "fetch teams")
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "decode response")
	}
	if !env.Success {
		kind, ok := kindByName[env.Kind]
		if !ok {
			kind = apperr.KindStorage
		}
		return nil, apperr.New(kind, "%s", env.Error)
	}

	var teams []scoreboard.Team
	if err := json.Unmarshal(env.Data, &teams); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "decode teams")
	}
	return teams, nil
}
