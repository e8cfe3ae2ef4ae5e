// Package usi binds the Unified Submissions Interface for BioSamples: teams,
// submissions, samples, and their validation results. Navigation follows the
// hypermedia links the server returns rather than assembling URLs, except
// where the API leaves no link to follow.
package usi

import (
	"context"
	"encoding/json"
	"fmt"

	"usirest/client"
)

// Root is the USI API entry point. It exposes discovery links to the
// authenticated user's teams and submissions.
type Root struct {
	c   *client.Client
	doc *client.Document
}

// Attach fetches the API root and returns it as the navigation entry point.
func Attach(ctx context.Context, c *client.Client) (*Root, error) {
	doc, err := c.GetDocument(ctx, c.RootURL("api")+"/")
	if err != nil {
		return nil, err
	}
	return &Root{c: c, doc: doc}, nil
}

func (r *Root) String() string {
	return fmt.Sprintf("Biosample API root at %s", r.c.RootURL("api")+"/")
}

// Teams lists the teams the user belongs to, following the userTeams
// relation across all pages.
func (r *Root) Teams(ctx context.Context) ([]*Team, error) {
	doc, err := r.c.Follow(ctx, r.doc, "userTeams")
	if err != nil {
		return nil, err
	}
	var teams []*Team
	err = r.c.EachEmbedded(ctx, doc, "teams", func(raw json.RawMessage) error {
		t, err := decodeTeam(r.c, raw)
		if err != nil {
			return err
		}
		teams = append(teams, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		r.c.Log().Warn("user has no teams yet")
	}
	return teams, nil
}

// TeamByName finds a team by name. Pages are only fetched until the team is
// seen.
func (r *Root) TeamByName(ctx context.Context, name string) (*Team, error) {
	doc, err := r.c.Follow(ctx, r.doc, "userTeams")
	if err != nil {
		return nil, err
	}
	var found *Team
	err = r.c.EachEmbedded(ctx, doc, "teams", func(raw json.RawMessage) error {
		t, err := decodeTeam(r.c, raw)
		if err != nil {
			return err
		}
		if t.Name == name {
			found = t
			return client.ErrStopIteration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &NotFoundError{Kind: "team", Name: name}
	}
	return found, nil
}

// SubmissionFilter restricts Submissions listings. Empty fields match
// everything. Filtering happens client-side against decoded attributes.
type SubmissionFilter struct {
	Status string
	Team   string
}

func (f SubmissionFilter) matches(ctx context.Context, s *Submission) (bool, error) {
	if f.Team != "" && s.Team.Name() != f.Team {
		return false, nil
	}
	if f.Status != "" {
		status, err := s.Status(ctx)
		if err != nil {
			return false, err
		}
		if status != f.Status {
			return false, nil
		}
	}
	return true, nil
}

// Submissions lists the user's submissions, optionally filtered by status
// and owning team.
func (r *Root) Submissions(ctx context.Context, f SubmissionFilter) ([]*Submission, error) {
	doc, err := r.c.Follow(ctx, r.doc, "userSubmissions")
	if err != nil {
		return nil, err
	}
	var subs []*Submission
	err = r.c.EachEmbedded(ctx, doc, "submissions", func(raw json.RawMessage) error {
		s, err := decodeSubmission(r.c, raw)
		if err != nil {
			return err
		}
		ok, err := f.matches(ctx, s)
		if err != nil {
			return err
		}
		if ok {
			subs = append(subs, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// SubmissionByName fetches one submission directly by name. This is the one
// place a URL is assembled instead of followed: the root document has no
// per-submission link.
func (r *Root) SubmissionByName(ctx context.Context, name string) (*Submission, error) {
	url := client.NormalizeURL(r.c.RootURL("api", "submissions", name))
	var s Submission
	if err := r.c.Get(ctx, url, &s); err != nil {
		if client.IsNotFound(err) {
			return nil, &NotFoundError{Kind: "submission", Name: name}
		}
		return nil, err
	}
	s.attach(r.c)
	return &s, nil
}
