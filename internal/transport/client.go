package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const apiVersion = "2010-04-01"

// Config configures the provider client
type Config struct {
	AccountSID    string
	AuthToken     string
	APIBaseURL    string
	LookupBaseURL string
	RateLimit     float64 // requests per second, 0 means unlimited
	Timeout       time.Duration
}

// SendRequest is an outbound message
type SendRequest struct {
	To             string
	From           string
	Body           string
	MediaURL       string
	StatusCallback string
}

// MessageInfo is the provider's view of a message
type MessageInfo struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Media is a downloaded media item
type Media struct {
	Data        []byte
	ContentType string
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type mediaList struct {
	MediaList []struct {
		SID         string `json:"sid"`
		ContentType string `json:"content_type"`
	} `json:"media_list"`
}

type lookupResult struct {
	PhoneNumber string `json:"phone_number"`
}

// Client talks to the SMS provider. It is safe for concurrent use.
type Client struct {
	api        *resty.Client
	lookup     *resty.Client
	accountSID string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a provider client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	newResty := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(cfg.Timeout).
			SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
			SetHeader("Accept", "application/json")
	}

	return &Client{
		api:        newResty(cfg.APIBaseURL),
		lookup:     newResty(cfg.LookupBaseURL),
		accountSID: cfg.AccountSID,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

func (c *Client) messagesPath() string {
	return fmt.Sprintf("/%s/Accounts/%s/Messages.json", apiVersion, c.accountSID)
}

func (c *Client) messagePath(sid string) string {
	return fmt.Sprintf("/%s/Accounts/%s/Messages/%s.json", apiVersion, c.accountSID, sid)
}

func (c *Client) mediaPath(sid, mediaSID string) string {
	if mediaSID == "" {
		return fmt.Sprintf("/%s/Accounts/%s/Messages/%s/Media.json", apiVersion, c.accountSID, sid)
	}
	return fmt.Sprintf("/%s/Accounts/%s/Messages/%s/Media/%s.json", apiVersion, c.accountSID, sid, mediaSID)
}

// do waits for the rate limiter and executes the request, translating
// failures into *Error.
func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var apiErr apiError
	resp, err := req.SetContext(ctx).SetError(&apiErr).Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Err: err}
	}
	if resp.IsError() {
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		return resp, &Error{Code: apiErr.Code, Status: resp.StatusCode(), Message: apiErr.Message}
	}
	return resp, nil
}

// Send submits an outbound message
func (c *Client) Send(ctx context.Context, req SendRequest) (MessageInfo, error) {
	form := map[string]string{
		"To":   req.To,
		"From": req.From,
		"Body": req.Body,
	}
	if req.MediaURL != "" {
		form["MediaUrl"] = req.MediaURL
	}
	if req.StatusCallback != "" {
		form["StatusCallback"] = req.StatusCallback
	}

	var info MessageInfo
	if _, err := c.do(ctx, c.api.R().SetFormData(form).SetResult(&info), resty.MethodPost, c.messagesPath()); err != nil {
		c.logger.Warn("provider send failed", zap.String("to", req.To), zap.Error(err))
		return MessageInfo{}, err
	}

	c.logger.Debug("provider accepted message", zap.String("sid", info.SID), zap.String("status", info.Status))
	return info, nil
}

// LookupStatus fetches the current delivery status of a message
func (c *Client) LookupStatus(ctx context.Context, sid string) (string, error) {
	var info MessageInfo
	if _, err := c.do(ctx, c.api.R().SetResult(&info), resty.MethodGet, c.messagePath(sid)); err != nil {
		return "", err
	}
	return info.Status, nil
}

// Redact clears the message body and deletes its media at the provider.
// It returns false when the provider cannot redact yet or no longer has
// the message.
func (c *Client) Redact(ctx context.Context, sid string) (bool, error) {
	_, err := c.do(ctx, c.api.R().SetFormData(map[string]string{"Body": ""}), resty.MethodPost, c.messagePath(sid))
	if err != nil {
		if hasCode(err, CodeNotInTerminalState) || hasCode(err, CodeNotFound) {
			c.logger.Info("message not redactable", zap.String("sid", sid), zap.Error(err))
			return false, nil
		}
		return false, err
	}

	var list mediaList
	if _, err := c.do(ctx, c.api.R().SetResult(&list), resty.MethodGet, c.mediaPath(sid, "")); err != nil {
		return false, err
	}
	for _, media := range list.MediaList {
		if _, err := c.do(ctx, c.api.R(), resty.MethodDelete, c.mediaPath(sid, media.SID)); err != nil {
			if IsNotFound(err) {
				continue
			}
			return false, err
		}
	}

	return true, nil
}

// NormalizeNumber asks the provider for the canonical form of a phone number
func (c *Client) NormalizeNumber(ctx context.Context, raw string) (string, error) {
	var result lookupResult
	path := "/v1/PhoneNumbers/" + url.PathEscape(raw)
	resp, err := c.do(ctx, c.lookup.R().SetResult(&result), resty.MethodGet, path)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && (te.Code == CodeNotFound || resp != nil && resp.StatusCode() == http.StatusNotFound) {
			return "", ErrNumberNotFound
		}
		return "", err
	}
	return result.PhoneNumber, nil
}

// FetchMedia downloads an inbound media item
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) (Media, error) {
	resp, err := c.do(ctx, c.api.R(), resty.MethodGet, mediaURL)
	if err != nil {
		return Media{}, err
	}
	return Media{
		Data:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}
