package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "whisperq/internal/errors"

	"github.com/sirupsen/logrus"
)

const (
	whispersEndpoint = "/whispers"
	maxErrorBodySize = 4096
)

// Client delivers whispers to Twitch users.
type Client interface {
	SendWhisper(ctx context.Context, toUserID, text string) error
}

type sendWhisperRequest struct {
	Message string `json:"message"`
}

// HelixClient sends whispers through the Helix "Send Whisper" endpoint.
type HelixClient struct {
	baseURL     string
	clientID    string
	accessToken string
	fromUserID  string
	client      *http.Client
	logger      *logrus.Logger
}

func NewHelixClient(baseURL, clientID, accessToken, fromUserID string, httpClient *http.Client) *HelixClient {
	return NewHelixClientWithLogger(baseURL, clientID, accessToken, fromUserID, httpClient, nil)
}

func NewHelixClientWithLogger(baseURL, clientID, accessToken, fromUserID string, httpClient *http.Client, logger *logrus.Logger) *HelixClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HelixClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		clientID:    clientID,
		accessToken: accessToken,
		fromUserID:  fromUserID,
		client:      httpClient,
		logger:      logger,
	}
}

// SendWhisper posts text to toUserID. Helix answers 204 on success; any other
// status is returned as an *apperrors.AppError.
func (c *HelixClient) SendWhisper(ctx context.Context, toUserID, text string) error {
	if toUserID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "recipient user ID is required")
	}
	if text == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "whisper text is required")
	}

	jsonData, err := json.Marshal(sendWhisperRequest{Message: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := url.Values{}
	query.Set("from_user_id", c.fromUserID)
	query.Set("to_user_id", toUserID)
	endpoint := c.baseURL + whispersEndpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.WrapRetryable(err, apperrors.ErrCodeTimeout, "whisper request cancelled")
		}
		return apperrors.WrapRetryable(err, apperrors.ErrCodeTwitchAPI, "failed to send whisper request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	c.logger.WithFields(logrus.Fields{
		"endpoint":    whispersEndpoint,
		"status_code": resp.StatusCode,
		"ratelimit":   resp.Header.Get("Ratelimit-Remaining"),
	}).Debug("Helix whisper request rejected")

	return apperrors.NewAPIError(whispersEndpoint, resp.StatusCode, strings.TrimSpace(string(body)))
}
