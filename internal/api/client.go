// Package api is the remote-call boundary of the client core. Every
// synchronizer consumes the Caller interface; Client is the HTTP
// implementation against the Esportapp REST backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/config"
	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

// Caller is the asynchronous operation set the core depends on. Implementations
// must return either a nil error, a *RemoteError, or an error wrapping
// ErrNetwork.
type Caller interface {
	ListGames(ctx context.Context) ([]types.Game, error)
	AddGame(ctx context.Context, g types.Game) (types.Game, error)
	RemoveGame(ctx context.Context, id string) error

	ListMatches(ctx context.Context) ([]types.Match, error)
	RespondMatch(ctx context.Context, id string, accept bool) (types.Match, error)

	ListConversations(ctx context.Context) ([]types.Conversation, error)
	ListMessages(ctx context.Context, peerID string) ([]types.Message, error)
	SendMessage(ctx context.Context, peerID, content string) (types.Message, error)

	UnreadCount(ctx context.Context) (int, error)
	Suggest(ctx context.Context, q string) (types.Suggestions, error)
}

type Client struct {
	http *resty.Client
	user string
}

var _ Caller = (*Client)(nil)

// NewClient builds a Caller against baseURL authenticated as the given
// session. The session is explicit; the client holds no ambient state.
func NewClient(baseURL string, sess config.Session, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(sess.Token).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, user: sess.UserID}
}

type apiError struct {
	Error string `json:"error"`
}

// classify turns a resty result into the error taxonomy. Transport errors
// wrap ErrNetwork; completed non-2xx responses become RemoteError with a
// kind derived from the status code.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	var kind RemoteKind
	switch resp.StatusCode() {
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusGone:
		kind = KindAlreadyResolved
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = KindValidation
	default:
		kind = KindServer
	}

	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)

	logger.Log.Debug("remote call rejected",
		zap.Int("status", resp.StatusCode()),
		zap.String("kind", string(kind)))

	return &RemoteError{Kind: kind, Status: resp.StatusCode(), Message: body.Error}
}

func (c *Client) ListGames(ctx context.Context) ([]types.Game, error) {
	var out []types.Game
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/profile/games")
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddGame(ctx context.Context, g types.Game) (types.Game, error) {
	var out types.Game
	resp, err := c.http.R().SetContext(ctx).SetBody(g).SetResult(&out).Post("/profile/games")
	if err := classify(resp, err); err != nil {
		return types.Game{}, err
	}
	return out, nil
}

func (c *Client) RemoveGame(ctx context.Context, id string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/profile/games/" + id)
	return classify(resp, err)
}

func (c *Client) ListMatches(ctx context.Context) ([]types.Match, error) {
	var out []types.Match
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/matches")
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RespondMatch(ctx context.Context, id string, accept bool) (types.Match, error) {
	var out types.Match
	body := struct {
		Accept bool `json:"accept"`
	}{Accept: accept}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/matches/" + id + "/respond")
	if err := classify(resp, err); err != nil {
		return types.Match{}, err
	}
	return out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var out []types.Conversation
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/conversations")
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, peerID string) ([]types.Message, error) {
	var out []types.Message
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/conversations/" + peerID + "/messages")
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, peerID, content string) (types.Message, error) {
	var out types.Message
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/conversations/" + peerID + "/messages")
	if err := classify(resp, err); err != nil {
		return types.Message{}, err
	}
	return out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/notifications/unread")
	if err := classify(resp, err); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Suggest(ctx context.Context, q string) (types.Suggestions, error) {
	var out types.Suggestions
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("q", q).SetResult(&out).Get("/search/suggestions")
	if err := classify(resp, err); err != nil {
		return types.Suggestions{}, err
	}
	return out, nil
}
