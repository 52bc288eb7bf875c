// Package vcs creates GitHub repositories for exported projects and pushes
// their file trees. Repository metadata lives on the deployment record; this
// package only talks to the VCS.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v35/github"
	"golang.org/x/oauth2"
)

var (
	// ErrRepoExists is returned when the repository name is already taken
	// under the configured owner.
	ErrRepoExists = errors.New("repository name already exists")
	// ErrUnauthorized is returned when the token is rejected by GitHub.
	ErrUnauthorized = errors.New("github authentication failed")
)

// Client wraps an authenticated GitHub API client.
type Client struct {
	gh    *github.Client
	owner string
	token string
}

// Repository describes a repository created by the client.
type Repository struct {
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	CloneURL string `json:"clone_url"`
	HTMLURL  string `json:"html_url"`
}

// New builds a client from a personal access token. owner may be a user or an
// organization; apiServer overrides the API base URL for GitHub Enterprise and
// is usually empty.
func New(token, owner, apiServer string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	gh := github.NewClient(tc)
	if apiServer != "" {
		u, err := url.Parse(apiServer)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, owner: owner, token: token}, nil
}

// CreateRepository creates a repository under the configured owner and
// returns its clone data. A taken name surfaces as ErrRepoExists so callers
// can report the conflict instead of deploying into a stranger's repo.
func (c *Client) CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error) {
	repo := &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(private),
	}
	created, resp, err := c.gh.Repositories.Create(ctx, c.owner, repo)
	if err != nil && c.owner != "" && resp != nil && resp.StatusCode == http.StatusNotFound {
		// The org endpoint 404s when owner is a plain user account.
		created, _, err = c.gh.Repositories.Create(ctx, "", repo)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &Repository{
		Name:     created.GetName(),
		Owner:    created.GetOwner().GetLogin(),
		CloneURL: created.GetCloneURL(),
		HTMLURL:  created.GetHTMLURL(),
	}, nil
}

func classify(err error) error {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}
	switch ghErr.Response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, ghErr.Message)
	case http.StatusUnprocessableEntity:
		for _, e := range ghErr.Errors {
			if strings.Contains(e.Message, "already exists") {
				return ErrRepoExists
			}
		}
	}
	return err
}
