package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

const (
	twitterMediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	twitterCreateTweetURL = "https://api.twitter.com/2/tweets"

	tweetMaxChars = 25000
)

// Twitter publishes via the v2 create-tweet endpoint, with the chart
// attached through the v1.1 media upload API. Requests are signed with
// OAuth 1.0a user context.
type Twitter struct {
	log logx.Logger
}

func NewTwitter(log logx.Logger) *Twitter {
	return &Twitter{log: log}
}

func (t *Twitter) Name() string { return "twitter" }

func (t *Twitter) Configured(creds gateway.Credentials) bool {
	return creds.Twitter.Complete()
}

func (t *Twitter) Publish(ctx context.Context, creds gateway.Credentials, text string, art Artifact) (string, error) {
	if !creds.Twitter.Complete() {
		return "", gateway.Reject("twitter", "incomplete credentials")
	}
	client := t.signedClient(ctx, creds.Twitter)

	var mediaID string
	if art.ChartPath != "" {
		id, err := t.uploadMedia(ctx, client, art.ChartPath)
		if err != nil {
			// A post without its chart is still worth publishing.
			t.log.Warn("twitter media upload failed; posting without chart", logx.Err(err))
		} else {
			mediaID = id
		}
	}

	if len([]rune(text)) > tweetMaxChars {
		text = string([]rune(text)[:tweetMaxChars])
	}

	body := map[string]any{"text": text}
	if mediaID != "" {
		body["media"] = map[string]any{"media_ids": []string{mediaID}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterCreateTweetURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", gateway.Unavailable("twitter", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("twitter", resp); err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", gateway.Unavailable("twitter", fmt.Errorf("decode create response: %w", err))
	}
	if out.Data.ID == "" {
		return "", gateway.Unavailable("twitter", fmt.Errorf("create response missing tweet id"))
	}
	return out.Data.ID, nil
}

func (t *Twitter) signedClient(ctx context.Context, c gateway.TwitterCredentials) *http.Client {
	cfg := oauth1.NewConfig(c.ConsumerKey, c.ConsumerSecret)
	token := oauth1.NewToken(c.AccessToken, c.AccessSecret)
	client := cfg.Client(ctx, token)
	client.Timeout = 30 * time.Second
	return client
}

func (t *Twitter) uploadMedia(ctx context.Context, client *http.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "chart.png")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterMediaUploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload: status %d", resp.StatusCode)
	}

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("media upload: response missing media id")
	}
	return out.MediaIDString, nil
}

// classifyStatus converts HTTP statuses into the gateway error taxonomy:
// auth and policy failures are rejections, 429 and 5xx stay retryable.
func classifyStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return gateway.Reject(provider, "status %d: %s", resp.StatusCode, string(snippet))
	default:
		return gateway.Unavailable(provider, fmt.Errorf("status %d", resp.StatusCode))
	}
}
