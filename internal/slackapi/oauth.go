package slackapi

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/model"
)

// UserScopes are requested as user_scope so that oauth.v2.access returns a
// user token under authed_user. Messages are then posted as the user.
var UserScopes = []string{
	"chat:write",
	"channels:read",
	"channels:history",
	"chat:write.public",
	"users:read",
}

// Endpoint is Slack's OAuth v2 endpoint pair. Only AuthURL is used through
// x/oauth2; the exchange goes through slack-go because the user token lives
// in authed_user, which oauth2.Token does not model.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://slack.com/oauth/v2/authorize",
	TokenURL:  "https://slack.com/api/oauth.v2.access",
	AuthStyle: oauth2.AuthStyleInParams,
}

// OAuth runs the Slack "Sign in" authorization code flow:
//
//  1. AuthURL sends the browser to Slack with our client id and scopes
//  2. Slack redirects back with ?code=...
//  3. Exchange trades the code for a user token (server side, with the
//     client secret) and looks up the user's display name
type OAuth struct {
	config *oauth2.Config
	client *Client
}

// NewOAuth creates the OAuth flow. client supplies the HTTP client used for
// both the exchange and the users.info lookup.
func NewOAuth(clientID, clientSecret, redirectURL string, client *Client) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     Endpoint,
		},
		client: client,
	}
}

// AuthURL returns the Slack authorize URL carrying state.
func (o *OAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("user_scope", strings.Join(UserScopes, ",")),
	)
}

// Exchange trades an authorization code for the user's identity and token.
// The returned user has no internal ID yet; the session store assigns it.
func (o *OAuth) Exchange(ctx context.Context, code string) (*model.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "Missing code")
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, o.client.httpClient,
		o.config.ClientID, o.config.ClientSecret, code, o.config.RedirectURL,
	)
	if err := o.client.observe(ctx, "oauth.v2.access", err); err != nil {
		return nil, err
	}

	token := resp.AuthedUser.AccessToken
	if token == "" {
		// the app was installed with bot scopes only
		return nil, apperror.Remote("oauth.v2.access", "missing_user_token")
	}

	user := &model.User{
		SlackID:     resp.AuthedUser.ID,
		TeamID:      resp.Team.ID,
		Team:        resp.Team.Name,
		AccessToken: token,
	}

	info, err := o.client.api(token).GetUserInfoContext(ctx, user.SlackID)
	if err := o.client.observe(ctx, "users.info", err); err != nil {
		return nil, err
	}
	user.Name = displayName(info)
	user.Email = info.Profile.Email

	return user, nil
}

func displayName(u *slack.User) string {
	switch {
	case u.RealName != "":
		return u.RealName
	case u.Profile.RealName != "":
		return u.Profile.RealName
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	}
	return u.Name
}
