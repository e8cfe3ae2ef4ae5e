package usi

import (
	"context"
	"encoding/json"
	"fmt"

	"usirest/client"
)

// Team is a USI team, the owning group of submissions. It wraps an AAP
// domain's name and description.
type Team struct {
	c *client.Client

	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Links       client.Links `json:"_links,omitempty"`
}

func decodeTeam(c *client.Client, raw json.RawMessage) (*Team, error) {
	var t Team
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	t.c = c
	return &t, nil
}

func (t *Team) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Description)
}

// Submissions lists the team's submissions, optionally filtered by status.
func (t *Team) Submissions(ctx context.Context, status string) ([]*Submission, error) {
	href, ok := t.Links.Href("submissions")
	if !ok {
		return nil, &client.MissingLinkError{Rel: "submissions"}
	}
	doc, err := t.c.GetDocument(ctx, href)
	if err != nil {
		return nil, err
	}
	var subs []*Submission
	err = t.c.EachEmbedded(ctx, doc, "submissions", func(raw json.RawMessage) error {
		s, err := decodeSubmission(t.c, raw)
		if err != nil {
			return err
		}
		if status != "" {
			got, err := s.Status(ctx)
			if err != nil {
				return err
			}
			if got != status {
				return nil
			}
		}
		subs = append(subs, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// CreateSubmission creates an empty draft submission in this team. The
// fresh resource is reloaded so it carries the full link set of a stored
// submission (a just-created one differs from a fetched one).
func (t *Team) CreateSubmission(ctx context.Context) (*Submission, error) {
	href, ok := t.Links.Href("submissions:create")
	if !ok {
		return nil, &client.MissingLinkError{Rel: "submissions:create"}
	}
	var s Submission
	if err := t.c.Post(ctx, href, struct{}{}, &s); err != nil {
		return nil, err
	}
	s.attach(t.c)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateTeam creates a new USI team. The current token does not carry the
// new team's domain: generate a new one to see it in listings.
func CreateTeam(ctx context.Context, c *client.Client, description, centreName string) (*Team, error) {
	body := map[string]string{
		"description": description,
		"centreName":  centreName,
	}
	var t Team
	if err := c.Post(ctx, c.RootURL("api", "user", "teams"), body, &t); err != nil {
		return nil, err
	}
	t.c = c
	c.Log().Warn("generate a new token to see the newly created team")
	return &t, nil
}

// UserTeams lists the caller's teams through the direct user/teams
// collection (the same data Root.Teams reaches via the discovery link).
func UserTeams(ctx context.Context, c *client.Client) ([]*Team, error) {
	doc, err := c.GetDocument(ctx, c.RootURL("api", "user", "teams"))
	if err != nil {
		return nil, err
	}
	var teams []*Team
	err = c.EachEmbedded(ctx, doc, "teams", func(raw json.RawMessage) error {
		t, err := decodeTeam(c, raw)
		if err != nil {
			return err
		}
		teams = append(teams, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return teams, nil
}
