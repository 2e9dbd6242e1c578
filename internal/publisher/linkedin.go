package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

const (
	linkedinAssetsURL   = "https://api.linkedin.com/v2/assets?action=registerUpload"
	linkedinUGCPostsURL = "https://api.linkedin.com/v2/ugcPosts"
)

// LinkedIn publishes UGC posts with an optional image asset, authenticated
// with a member access token.
type LinkedIn struct {
	client *http.Client
	log    logx.Logger
}

func NewLinkedIn(log logx.Logger) *LinkedIn {
	return &LinkedIn{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (l *LinkedIn) Name() string { return "linkedin" }

func (l *LinkedIn) Configured(creds gateway.Credentials) bool {
	return creds.LinkedIn.Complete()
}

func (l *LinkedIn) Publish(ctx context.Context, creds gateway.Credentials, text string, art Artifact) (string, error) {
	if !creds.LinkedIn.Complete() {
		return "", gateway.Reject("linkedin", "incomplete credentials")
	}
	c := creds.LinkedIn

	var assetURN string
	if art.ChartPath != "" {
		urn, err := l.uploadImage(ctx, c, art.ChartPath)
		if err != nil {
			l.log.Warn("linkedin image upload failed; posting without chart", logx.Err(err))
		} else {
			assetURN = urn
		}
	}

	content := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}
	if assetURN != "" {
		content["shareMediaCategory"] = "IMAGE"
		content["media"] = []map[string]any{{
			"status": "READY",
			"media":  assetURN,
			"title":  map[string]any{"text": art.StoryTitle},
		}}
	}

	body := map[string]any{
		"author":         c.PersonURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": content,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinUGCPostsURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	l.setHeaders(req, c.AccessToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", gateway.Unavailable("linkedin", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("linkedin", resp); err != nil {
		return "", err
	}

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var out struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err == nil {
			postID = out.ID
		}
	}
	if postID == "" {
		return "", gateway.Unavailable("linkedin", fmt.Errorf("response missing post id"))
	}
	return postID, nil
}

func (l *LinkedIn) uploadImage(ctx context.Context, c gateway.LinkedInCredentials, path string) (string, error) {
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   c.PersonURN,
			"serviceRelationships": []map[string]any{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}
	payload, err := json.Marshal(register)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinAssetsURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	l.setHeaders(req, c.AccessToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("register upload: status %d", resp.StatusCode)
	}

	var out struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	var uploadURL string
	for _, m := range out.Value.UploadMechanism {
		if m.UploadURL != "" {
			uploadURL = m.UploadURL
			break
		}
	}
	if uploadURL == "" || out.Value.Asset == "" {
		return "", fmt.Errorf("register upload: incomplete response")
	}

	img, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	up, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(img))
	if err != nil {
		return "", err
	}
	up.Header.Set("Authorization", "Bearer "+c.AccessToken)
	up.Header.Set("Content-Type", "image/png")

	upResp, err := l.client.Do(up)
	if err != nil {
		return "", err
	}
	defer upResp.Body.Close()
	if upResp.StatusCode < 200 || upResp.StatusCode >= 300 {
		return "", fmt.Errorf("asset upload: status %d", upResp.StatusCode)
	}
	return out.Value.Asset, nil
}

func (l *LinkedIn) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}
