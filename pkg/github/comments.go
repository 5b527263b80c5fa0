package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v55/github"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cdk-drift-report/pkg/config"
)

const perPage = 100

// Comment is an issue comment on a pull request
type Comment struct {
	ID   int64
	Body string
}

// Client publishes reports as pull request comments
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
	log   logrus.FieldLogger
}

// NewClient creates a client for the configured owner/name repository.
// An API URL other than api.github.com is treated as a GitHub Enterprise server.
func NewClient(cfg config.GitHub, httpClient *http.Client, log logrus.FieldLogger) (*Client, error) {
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, errors.Errorf("invalid GitHub repository %q, expected owner/name", cfg.Repository)
	}

	client := gh.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" && !isPublicAPI(cfg.APIURL) {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.APIURL, cfg.APIURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid GitHub API URL %q", cfg.APIURL)
		}
	}

	return &Client{
		gh:    client,
		owner: owner,
		repo:  repo,
		log:   log,
	}, nil
}

func isPublicAPI(apiURL string) bool {
	u, err := url.Parse(apiURL)
	return err == nil && u.Host == "api.github.com"
}

// FindComment returns the first comment on the pull request whose body
// starts with marker, or nil if there is none.
func (c *Client) FindComment(ctx context.Context, pr int, marker string) (*Comment, error) {
	opt := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, pr, opt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list comments of pull request %d", pr)
		}
		for _, comment := range comments {
			if strings.HasPrefix(comment.GetBody(), marker) {
				return &Comment{ID: comment.GetID(), Body: comment.GetBody()}, nil
			}
		}
		if resp.NextPage == 0 {
			return nil, nil
		}
		opt.Page = resp.NextPage
	}
}

// Upsert replaces the report comment carrying marker, or creates it
func (c *Client) Upsert(ctx context.Context, pr int, marker, body string) error {
	existing, err := c.FindComment(ctx, pr, marker)
	if err != nil {
		return err
	}

	comment := &gh.IssueComment{Body: gh.String(body)}
	if existing == nil {
		c.log.WithField("pr", pr).Info("Creating report comment")
		_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, pr, comment)
		return errors.Wrap(err, "failed to create comment")
	}

	if existing.Body == body {
		c.log.WithField("comment", existing.ID).Info("Report comment is up to date")
		return nil
	}
	c.log.WithField("comment", existing.ID).Info("Updating report comment")
	_, _, err = c.gh.Issues.EditComment(ctx, c.owner, c.repo, existing.ID, comment)
	return errors.Wrapf(err, "failed to update comment %d", existing.ID)
}

// Delete removes the report comment carrying marker, if any
func (c *Client) Delete(ctx context.Context, pr int, marker string) error {
	existing, err := c.FindComment(ctx, pr, marker)
	if err != nil || existing == nil {
		return err
	}

	c.log.WithField("comment", existing.ID).Info("Deleting report comment")
	_, err = c.gh.Issues.DeleteComment(ctx, c.owner, c.repo, existing.ID)
	return errors.Wrapf(err, "failed to delete comment %d", existing.ID)
}
