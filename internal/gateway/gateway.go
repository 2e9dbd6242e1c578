// Package gateway is the single doorway to external providers: the LLM used
// for selection and synthesis, the research endpoint, and publishing APIs.
// Every outbound call goes through the shared rate limit and the bounded
// retry policy; callers never talk to provider SDKs directly.
package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/config"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
)

// Credentials is the resolved per-cycle credential set: user-supplied values
// where present, process defaults otherwise.
type Credentials struct {
	LLMAPIKey      string
	ResearchAPIKey string

	Twitter  TwitterCredentials
	LinkedIn LinkedInCredentials
	Telegram TelegramCredentials
}

type TwitterCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (c TwitterCredentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

type LinkedInCredentials struct {
	AccessToken string
	PersonURN   string
}

func (c LinkedInCredentials) Complete() bool {
	return c.AccessToken != "" && c.PersonURN != ""
}

type TelegramCredentials struct {
	BotToken string
	ChatID   int64
}

func (c TelegramCredentials) Complete() bool {
	return c.BotToken != "" && c.ChatID != 0
}

// Resolve merges per-user credentials over the process defaults. Fields the
// user left empty fall back to defaults one field at a time.
func Resolve(u *store.User, def config.CredentialsConfig) Credentials {
	c := Credentials{
		LLMAPIKey:      def.LLMAPIKey,
		ResearchAPIKey: def.ResearchAPIKey,
		Twitter: TwitterCredentials{
			ConsumerKey:    def.Twitter.ConsumerKey,
			ConsumerSecret: def.Twitter.ConsumerSecret,
			AccessToken:    def.Twitter.AccessToken,
			AccessSecret:   def.Twitter.AccessSecret,
		},
		LinkedIn: LinkedInCredentials{
			AccessToken: def.LinkedIn.AccessToken,
			PersonURN:   def.LinkedIn.PersonURN,
		},
		Telegram: TelegramCredentials{
			BotToken: def.Telegram.BotToken,
			ChatID:   def.Telegram.ChatID,
		},
	}
	if u == nil {
		return c
	}
	if u.LLMAPIKey != "" {
		c.LLMAPIKey = u.LLMAPIKey
	}
	if u.ResearchAPIKey != "" {
		c.ResearchAPIKey = u.ResearchAPIKey
	}
	if u.TwitterConsumerKey != "" {
		c.Twitter.ConsumerKey = u.TwitterConsumerKey
	}
	if u.TwitterConsumerSecret != "" {
		c.Twitter.ConsumerSecret = u.TwitterConsumerSecret
	}
	if u.TwitterAccessToken != "" {
		c.Twitter.AccessToken = u.TwitterAccessToken
	}
	if u.TwitterAccessSecret != "" {
		c.Twitter.AccessSecret = u.TwitterAccessSecret
	}
	if u.LinkedInAccessToken != "" {
		c.LinkedIn.AccessToken = u.LinkedInAccessToken
	}
	if u.LinkedInPersonURN != "" {
		c.LinkedIn.PersonURN = u.LinkedInPersonURN
	}
	if u.TelegramBotToken != "" {
		c.Telegram.BotToken = u.TelegramBotToken
	}
	if u.TelegramChatID != 0 {
		c.Telegram.ChatID = u.TelegramChatID
	}
	return c
}

// Limiter gates all outbound provider calls process-wide.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter builds a limiter allowing perSec calls per second with a small
// burst. perSec <= 0 disables limiting.
func NewLimiter(perSec int) *Limiter {
	if perSec <= 0 {
		return &Limiter{}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// Wait blocks until a call slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return ctx.Err()
	}
	return l.rl.Wait(ctx)
}

// PolicyFromConfig converts the config retry block to a Policy, applying
// defaults for omitted fields.
func PolicyFromConfig(rc config.RetryConfig) Policy {
	p := DefaultPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	p.BaseDelay = config.DurationOr(rc.BaseDelay, p.BaseDelay)
	p.MaxDelay = config.DurationOr(rc.MaxDelay, p.MaxDelay)
	if rc.Jitter > 0 {
		p.Jitter = rc.Jitter
	}
	p.Budget = config.DurationOr(rc.Budget, p.Budget)
	return p
}

// callTimeout bounds a single provider attempt inside the retry budget.
const callTimeout = 90 * time.Second
