package usi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"usirest/client"
)

// Attribute is one value of a sample attribute, optionally with units and
// ontology terms.
type Attribute struct {
	Value string `json:"value"`
	Units string `json:"units,omitempty"`
	Terms []Term `json:"terms,omitempty"`
}

// Term points at an ontology entry backing an attribute value.
type Term struct {
	URL string `json:"url"`
}

// Relationship links a sample to another sample, by alias within a team or
// by accession.
type Relationship struct {
	Alias              string `json:"alias,omitempty"`
	Accession          string `json:"accession,omitempty"`
	RelationshipNature string `json:"relationshipNature,omitempty"`
	Team               string `json:"team,omitempty"`
}

// Sample is a USI sample document plus its server-side metadata. The same
// struct is used as upload payload: server-owned fields are omitted when
// empty.
type Sample struct {
	c    *client.Client
	name string

	Alias               string                 `json:"alias,omitempty"`
	Team                TeamName               `json:"team,omitempty"`
	Title               string                 `json:"title,omitempty"`
	Description         string                 `json:"description,omitempty"`
	Attributes          map[string][]Attribute `json:"attributes,omitempty"`
	SampleRelationships []Relationship         `json:"sampleRelationships,omitempty"`
	TaxonID             int64                  `json:"taxonId,omitempty"`
	Taxon               string                 `json:"taxon,omitempty"`
	ReleaseDate         string                 `json:"releaseDate,omitempty"`
	Accession           string                 `json:"accession,omitempty"`
	CreatedDate         string                 `json:"createdDate,omitempty"`
	LastModifiedDate    string                 `json:"lastModifiedDate,omitempty"`
	CreatedBy           string                 `json:"createdBy,omitempty"`
	LastModifiedBy      string                 `json:"lastModifiedBy,omitempty"`
	Links               client.Links           `json:"_links,omitempty"`
}

func decodeSample(c *client.Client, raw json.RawMessage) (*Sample, error) {
	var smp Sample
	if err := json.Unmarshal(raw, &smp); err != nil {
		return nil, err
	}
	smp.attach(c)
	return &smp, nil
}

func (s *Sample) attach(c *client.Client) {
	s.c = c
	if href, ok := s.Links.Href("self"); ok {
		s.name = lastSegment(href)
	}
}

func lastSegment(href string) string {
	for i := len(href) - 1; i >= 0; i-- {
		if href[i] == '/' {
			return href[i+1:]
		}
	}
	return href
}

func (s *Sample) String() string {
	if s.Accession != "" {
		return fmt.Sprintf("%s (%s)", s.Accession, s.Title)
	}
	return fmt.Sprintf("%s (%s)", s.Alias, s.Title)
}

// withDefaults fills attributes the server requires but callers usually
// leave out: today's date as releaseDate and the owning team on
// relationships that lack one.
func (s Sample) withDefaults(team string) Sample {
	if s.ReleaseDate == "" {
		s.ReleaseDate = time.Now().Format("2006-01-02")
	}
	if len(s.SampleRelationships) > 0 {
		rels := make([]Relationship, len(s.SampleRelationships))
		copy(rels, s.SampleRelationships)
		for i := range rels {
			if rels[i].Team == "" {
				rels[i].Team = team
			}
		}
		s.SampleRelationships = rels
	}
	return s
}

// Reload re-fetches the sample through its self link.
func (s *Sample) Reload(ctx context.Context) error {
	href, ok := s.Links.Href("self")
	if !ok {
		return &client.MissingLinkError{Rel: "self"}
	}
	var fresh Sample
	if err := s.c.Get(ctx, href, &fresh); err != nil {
		return err
	}
	c := s.c
	*s = fresh
	s.attach(c)
	return nil
}

// Patch updates the sample document in place and reloads it. The same
// releaseDate and relationship fixups as CreateSample apply.
func (s *Sample) Patch(ctx context.Context, data Sample) error {
	href, ok := s.Links.Href("self")
	if !ok {
		return &client.MissingLinkError{Rel: "self"}
	}
	data = data.withDefaults(s.Team.Name())
	s.c.Log().WithField("sample", s.name).Info("patching sample")
	if err := s.c.Patch(ctx, href, data, nil); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// Delete removes the sample from its submission.
func (s *Sample) Delete(ctx context.Context) error {
	href, ok := s.Links.Href("self:delete")
	if !ok {
		return &client.MissingLinkError{Rel: "self:delete"}
	}
	s.c.Log().WithField("sample", s.name).Info("removing sample from submission")
	return s.c.Delete(ctx, href)
}

// ValidationResult fetches the validation outcome for this sample by
// following its validationResult link.
func (s *Sample) ValidationResult(ctx context.Context) (*ValidationResult, error) {
	href, ok := s.Links.Href("validationResult")
	if !ok {
		return nil, &client.MissingLinkError{Rel: "validationResult"}
	}
	var vr ValidationResult
	if err := s.c.Get(ctx, href, &vr); err != nil {
		return nil, err
	}
	return &vr, nil
}

// HasErrors reports whether the sample's validation found errors, ignoring
// the given authors.
func (s *Sample) HasErrors(ctx context.Context, ignore ...string) (bool, error) {
	vr, err := s.ValidationResult(ctx)
	if err != nil {
		return false, err
	}
	has := vr.HasErrors(ignore...)
	if has {
		s.c.Log().WithField("sample", s.name).Error("sample has validation errors")
	}
	return has, nil
}
