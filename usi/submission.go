package usi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"usirest/client"

	"github.com/sirupsen/logrus"
)

// Submission statuses reported by USI.
const (
	StatusDraft     = "Draft"
	StatusSubmitted = "Submitted"
	StatusCompleted = "Completed"
)

// Validation statuses reported per sample.
const (
	ValidationPending  = "Pending"
	ValidationComplete = "Complete"
)

// TeamName decodes the "team" attribute, which the server returns either as
// a bare name or as a full team object depending on the endpoint.
type TeamName string

func (t *TeamName) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = TeamName(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("team: %w", err)
	}
	*t = TeamName(obj.Name)
	return nil
}

func (t TeamName) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// Name returns the plain team name.
func (t TeamName) Name() string { return string(t) }

// StatusRef decodes a status attribute, which appears either as a bare
// string or as an object with a "status" field.
type StatusRef string

func (s *StatusRef) UnmarshalJSON(b []byte) error {
	var plain string
	if err := json.Unmarshal(b, &plain); err == nil {
		*s = StatusRef(plain)
		return nil
	}
	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = StatusRef(obj.Status)
	return nil
}

// Submission is a mutable draft container of samples owned by a team.
type Submission struct {
	c    *client.Client
	name string

	ID               string         `json:"id,omitempty"`
	Team             TeamName       `json:"team,omitempty"`
	CreatedDate      string         `json:"createdDate,omitempty"`
	LastModifiedDate string         `json:"lastModifiedDate,omitempty"`
	CreatedBy        string         `json:"createdBy,omitempty"`
	LastModifiedBy   string         `json:"lastModifiedBy,omitempty"`
	SubmissionDate   string         `json:"submissionDate,omitempty"`
	SubmissionStatus StatusRef      `json:"submissionStatus,omitempty"`
	Submitter        map[string]any `json:"submitter,omitempty"`
	Links            client.Links   `json:"_links,omitempty"`
}

func decodeSubmission(c *client.Client, raw json.RawMessage) (*Submission, error) {
	var s Submission
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.attach(c)
	return &s, nil
}

// attach binds the client and derives the submission name from the self
// link (the API has no plain name attribute).
func (s *Submission) attach(c *client.Client) {
	s.c = c
	if href, ok := s.Links.Href("self"); ok {
		parts := strings.Split(strings.TrimRight(href, "/"), "/")
		s.name = parts[len(parts)-1]
	} else if s.ID != "" {
		s.name = s.ID
	}
}

// Name is the submission identifier, taken from the self link.
func (s *Submission) Name() string { return s.name }

func (s *Submission) String() string {
	if s.name == "" {
		return "submission not yet initialized"
	}
	return fmt.Sprintf("%s %s %s %s", s.name, s.Team.Name(), s.LastModifiedDate, string(s.SubmissionStatus))
}

func (s *Submission) log() logrus.FieldLogger {
	return s.c.Log().WithField("submission", s.name)
}

// Status returns the submission status. Some endpoints omit the attribute:
// in that case the separate submissionStatus link is followed and the
// result cached on the submission.
func (s *Submission) Status(ctx context.Context) (string, error) {
	if s.SubmissionStatus != "" {
		return string(s.SubmissionStatus), nil
	}
	if err := s.RefreshStatus(ctx); err != nil {
		return "", err
	}
	return string(s.SubmissionStatus), nil
}

// RefreshStatus re-reads the status from the submissionStatus link.
func (s *Submission) RefreshStatus(ctx context.Context) error {
	href, ok := s.Links.Href("submissionStatus")
	if !ok {
		return &client.MissingLinkError{Rel: "submissionStatus"}
	}
	var status struct {
		Status string       `json:"status"`
		Links  client.Links `json:"_links"`
	}
	if err := s.c.Get(ctx, href, &status); err != nil {
		return err
	}
	s.SubmissionStatus = StatusRef(status.Status)
	return nil
}

// Reload re-fetches the submission through its self link and refreshes the
// status.
func (s *Submission) Reload(ctx context.Context) error {
	href, ok := s.Links.Href("self")
	if !ok {
		return &client.MissingLinkError{Rel: "self"}
	}
	s.log().Debug("reloading submission")
	var fresh Submission
	if err := s.c.Get(ctx, href, &fresh); err != nil {
		return err
	}
	c := s.c
	*s = fresh
	s.attach(c)
	return s.RefreshStatus(ctx)
}

// Delete removes the submission draft from USI.
func (s *Submission) Delete(ctx context.Context) error {
	href, ok := s.Links.Href("self:delete")
	if !ok {
		return &client.MissingLinkError{Rel: "self:delete"}
	}
	s.log().Info("removing submission")
	return s.c.Delete(ctx, href)
}

// CreateSample adds a sample document to the submission. A missing release
// date defaults to today and relationships without a team get the owning
// team stamped in before upload.
func (s *Submission) CreateSample(ctx context.Context, sample Sample) (*Sample, error) {
	sample = sample.withDefaults(s.Team.Name())
	if _, ok := s.Links.Href("contents"); !ok {
		// A just-listed submission may carry a reduced link set.
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
	}
	contents, err := s.c.Follow(ctx, &client.Document{Links: s.Links}, "contents")
	if err != nil {
		return nil, err
	}
	href, ok := contents.Links.Href("samples:create")
	if !ok {
		return nil, &client.MissingLinkError{Rel: "samples:create"}
	}
	var created Sample
	if err := s.c.Post(ctx, href, sample, &created); err != nil {
		return nil, err
	}
	created.attach(s.c)
	return &created, nil
}

// SampleFilter restricts Samples listings. Filtering is evaluated
// client-side against each sample's validation outcome.
type SampleFilter struct {
	// ValidationStatus keeps only samples whose validation status matches
	// (for example Pending or Complete).
	ValidationStatus string
	// HasErrors, when set, keeps only samples whose error state matches.
	HasErrors *bool
	// Ignore lists validation authors whose errors do not count.
	Ignore []string
}

// Samples lists the submission's samples. The samples collection has no
// link relation of its own, so its URL is assembled from the self link.
func (s *Submission) Samples(ctx context.Context, f SampleFilter) ([]*Sample, error) {
	href, ok := s.Links.Href("self")
	if !ok {
		return nil, &client.MissingLinkError{Rel: "self"}
	}
	doc, err := s.c.GetDocument(ctx, href+"/contents/samples")
	if err != nil {
		return nil, err
	}
	if len(doc.Embedded) == 0 {
		s.log().Warn("submission has no samples yet")
		return nil, nil
	}
	var samples []*Sample
	err = s.c.EachEmbedded(ctx, doc, "samples", func(raw json.RawMessage) error {
		smp, err := decodeSample(s.c, raw)
		if err != nil {
			return err
		}
		if f.ValidationStatus != "" || f.HasErrors != nil {
			vr, err := smp.ValidationResult(ctx)
			if err != nil {
				return err
			}
			if f.ValidationStatus != "" && vr.ValidationStatus != f.ValidationStatus {
				return nil
			}
			if f.HasErrors != nil && vr.HasErrors(f.Ignore...) != *f.HasErrors {
				return nil
			}
		}
		samples = append(samples, smp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// ValidationResults lists the per-sample validation outcomes of the
// submission.
func (s *Submission) ValidationResults(ctx context.Context) ([]*ValidationResult, error) {
	if _, ok := s.Links.Href("validationResults"); !ok {
		s.log().Debug("reloading submission for validationResults link")
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
	}
	doc, err := s.c.Follow(ctx, &client.Document{Links: s.Links}, "validationResults")
	if err != nil {
		return nil, err
	}
	var results []*ValidationResult
	err = s.c.EachEmbedded(ctx, doc, "validationResults", func(raw json.RawMessage) error {
		var vr ValidationResult
		if err := json.Unmarshal(raw, &vr); err != nil {
			return err
		}
		results = append(results, &vr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StatusCounts tallies the validation statuses of all samples.
func (s *Submission) StatusCounts(ctx context.Context) (map[string]int, error) {
	results, err := s.ValidationResults(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, vr := range results {
		counts[vr.ValidationStatus]++
	}
	return counts, nil
}

// ErrorCounts returns how many samples have validation errors, ignoring
// errors from the given authors. It refuses with a NotReadyError while any
// sample's validation is still pending.
func (s *Submission) ErrorCounts(ctx context.Context, ignore []string) (withErrors, total int, err error) {
	counts, err := s.StatusCounts(ctx)
	if err != nil {
		return 0, 0, err
	}
	if counts[ValidationPending] > 0 {
		return 0, 0, &NotReadyError{Reason: "errors can be checked after validation is completed", Counts: counts}
	}
	results, err := s.ValidationResults(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, vr := range results {
		if vr.HasErrors(ignore...) {
			withErrors++
		}
	}
	return withErrors, len(results), nil
}

// Ready reports whether the server is willing to accept a status change,
// i.e. whether availableSubmissionStatuses advertises any target status.
func (s *Submission) Ready(ctx context.Context) (bool, error) {
	url := client.NormalizeURL(s.c.RootURL("api", "submissions", s.name, "availableSubmissionStatuses"))
	doc, err := s.c.GetDocument(ctx, url)
	if err != nil {
		return false, err
	}
	_, ok := doc.Embedded["statusDescriptions"]
	return ok, nil
}

// Finalize marks the submission as Submitted so USI forwards it to
// BioSamples. It refuses locally, before any mutating request, unless every
// sample's validation is Complete and free of non-ignored errors.
func (s *Submission) Finalize(ctx context.Context, ignore []string) error {
	ready, err := s.Ready(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return &NotReadyError{Reason: "submission not ready for finalization"}
	}
	withErrors, total, err := s.ErrorCounts(ctx, ignore)
	if err != nil {
		return err
	}
	if withErrors > 0 {
		return &ValidationFailedError{WithErrors: withErrors, Total: total}
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	statusDoc, err := s.c.Follow(ctx, &client.Document{Links: s.Links}, "submissionStatus")
	if err != nil {
		return err
	}
	href, ok := statusDoc.Links.Href("submissionStatus")
	if !ok {
		return &client.MissingLinkError{Rel: "submissionStatus"}
	}
	s.log().Info("finalizing submission")
	if err := s.c.Put(ctx, href, map[string]string{"status": StatusSubmitted}, nil); err != nil {
		return err
	}
	return s.RefreshStatus(ctx)
}
