package usi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"usirest/auth"
	"usirest/client"
)

func testAuth(t *testing.T, ttl time.Duration) *auth.Auth {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Name:     "Tester",
		Nickname: "tester",
		Domains:  []string{"subs.test-team-1"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	a, err := auth.New(token)
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	return a
}

type fakeSample struct {
	Alias       string
	Title       string
	ReleaseDate string
	// validation outcome served for this sample
	Status   string
	Outcomes map[string]string
	Errors   map[string][]string
}

type fakeSubmission struct {
	Name    string
	Team    string
	Status  string
	Ready   bool
	Samples []*fakeSample
	// OmitStatus drops the submissionStatus attribute from resource and
	// listing JSON, forcing clients onto the status link.
	OmitStatus bool
}

// fakeUSI is an in-process stand-in for the USI API, serving the HAL
// shapes the real server produces.
type fakeUSI struct {
	t        *testing.T
	srv      *httptest.Server
	teams    []string
	subs     map[string]*fakeSubmission
	subOrder []string
	pageSize int

	statusPuts      atomic.Int32
	deletes         atomic.Int32
	receivedSamples []map[string]any
}

func newFakeUSI(t *testing.T) (*fakeUSI, *client.Client) {
	t.Helper()
	f := &fakeUSI{t: t, subs: map[string]*fakeSubmission{}, pageSize: 1}
	r := chi.NewRouter()
	r.Get("/api/", f.root)
	r.Get("/api/user/teams", f.userTeams)
	r.Get("/api/user/submissions", f.userSubmissions)
	r.Post("/api/user/teams", f.createTeam)
	r.Get("/api/teams/{team}/submissions", f.teamSubmissions)
	r.Post("/api/teams/{team}/submissions", f.createSubmission)
	r.Get("/api/submissions/{name}", f.submission)
	r.Delete("/api/submissions/{name}", f.deleteSubmission)
	r.Get("/api/submissions/{name}/submissionStatus", f.submissionStatus)
	r.Put("/api/submissions/{name}/submissionStatus", f.putSubmissionStatus)
	r.Get("/api/submissions/{name}/availableSubmissionStatuses", f.availableStatuses)
	r.Get("/api/submissions/{name}/contents", f.contents)
	r.Get("/api/submissions/{name}/contents/samples", f.samples)
	r.Post("/api/submissions/{name}/contents/samples", f.createSample)
	r.Get("/api/submissions/{name}/validationResults", f.validationResults)
	r.Get("/api/samples/{alias}", f.sample)
	r.Patch("/api/samples/{alias}", f.patchSample)
	r.Delete("/api/samples/{alias}", f.deleteSample)
	r.Get("/api/samples/{alias}/validationResult", f.sampleValidation)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)

	c := client.New(testAuth(t, time.Hour))
	c.HTTPClient = f.srv.Client()
	c.Endpoints = client.Endpoints{AAP: f.srv.URL, Root: f.srv.URL}
	return f, c
}

func (f *fakeUSI) addSubmission(s *fakeSubmission) {
	f.subs[s.Name] = s
	f.subOrder = append(f.subOrder, s.Name)
}

func (f *fakeUSI) url(parts ...string) string {
	u := f.srv.URL
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func link(href string) map[string]string { return map[string]string{"href": href} }

func (f *fakeUSI) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"_links": map[string]any{
			"self":            link(f.url("api") + "/"),
			"userTeams":       link(f.url("api", "user", "teams")),
			"userSubmissions": link(f.url("api", "user", "submissions")),
		},
	})
}

// page slices items into pageSize chunks and wraps them as a HAL page.
func (f *fakeUSI) page(r *http.Request, baseURL, section string, items []any) map[string]any {
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	total := len(items)
	pages := (total + f.pageSize - 1) / f.pageSize
	if pages == 0 {
		pages = 1
	}
	start := n * f.pageSize
	end := start + f.pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	links := map[string]any{"self": link(fmt.Sprintf("%s?page=%d", baseURL, n))}
	if n < pages-1 {
		links["next"] = link(fmt.Sprintf("%s?page=%d", baseURL, n+1))
	}
	doc := map[string]any{
		"_links": links,
		"page":   map[string]int{"size": f.pageSize, "totalElements": total, "totalPages": pages, "number": n},
	}
	if total > 0 {
		doc["_embedded"] = map[string]any{section: items[start:end]}
	}
	return doc
}

func (f *fakeUSI) teamJSON(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "team " + name,
		"_links": map[string]any{
			"self":               link(f.url("api", "teams", name)),
			"submissions":        link(f.url("api", "teams", name, "submissions")),
			"submissions:create": link(f.url("api", "teams", name, "submissions")),
		},
	}
}

func (f *fakeUSI) subJSON(s *fakeSubmission) map[string]any {
	doc := map[string]any{
		"team":             s.Team,
		"createdBy":        "tester",
		"lastModifiedDate": "2020-01-10T11:12:13.000+0000",
		"_links": map[string]any{
			"self":              link(f.url("api", "submissions", s.Name) + "{?projection}"),
			"self:delete":       link(f.url("api", "submissions", s.Name)),
			"submissionStatus":  link(f.url("api", "submissions", s.Name, "submissionStatus")),
			"contents":          link(f.url("api", "submissions", s.Name, "contents")),
			"validationResults": link(f.url("api", "submissions", s.Name, "validationResults")),
		},
	}
	if !s.OmitStatus {
		doc["submissionStatus"] = s.Status
	}
	return doc
}

func (f *fakeUSI) sampleJSON(s *fakeSample) map[string]any {
	return map[string]any{
		"alias":       s.Alias,
		"title":       s.Title,
		"releaseDate": s.ReleaseDate,
		"_links": map[string]any{
			"self":             link(f.url("api", "samples", s.Alias)),
			"self:delete":      link(f.url("api", "samples", s.Alias)),
			"validationResult": link(f.url("api", "samples", s.Alias, "validationResult") + "{?projection}"),
		},
	}
}

func (f *fakeUSI) vrJSON(s *fakeSample) map[string]any {
	return map[string]any{
		"validationStatus":                 s.Status,
		"overallValidationOutcomeByAuthor": s.Outcomes,
		"errorMessages":                    s.Errors,
	}
}

func (f *fakeUSI) userTeams(w http.ResponseWriter, r *http.Request) {
	var items []any
	for _, name := range f.teams {
		items = append(items, f.teamJSON(name))
	}
	writeJSON(w, http.StatusOK, f.page(r, f.url("api", "user", "teams"), "teams", items))
}

func (f *fakeUSI) createTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
		CentreName  string `json:"centreName"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	name := "subs.team-" + uuid.NewString()[:8]
	f.teams = append(f.teams, name)
	writeJSON(w, http.StatusCreated, f.teamJSON(name))
}

func (f *fakeUSI) userSubmissions(w http.ResponseWriter, r *http.Request) {
	var items []any
	for _, name := range f.subOrder {
		items = append(items, f.subJSON(f.subs[name]))
	}
	writeJSON(w, http.StatusOK, f.page(r, f.url("api", "user", "submissions"), "submissions", items))
}

func (f *fakeUSI) teamSubmissions(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")
	var items []any
	for _, name := range f.subOrder {
		if f.subs[name].Team == team {
			items = append(items, f.subJSON(f.subs[name]))
		}
	}
	writeJSON(w, http.StatusOK, f.page(r, f.url("api", "teams", team, "submissions"), "submissions", items))
}

func (f *fakeUSI) createSubmission(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")
	s := &fakeSubmission{Name: uuid.NewString(), Team: team, Status: StatusDraft}
	f.addSubmission(s)
	// A freshly created submission carries a reduced link set.
	writeJSON(w, http.StatusCreated, map[string]any{
		"team": team,
		"_links": map[string]any{
			"self":             link(f.url("api", "submissions", s.Name)),
			"submissionStatus": link(f.url("api", "submissions", s.Name, "submissionStatus")),
		},
	})
}

func (f *fakeUSI) lookup(w http.ResponseWriter, r *http.Request) *fakeSubmission {
	s, ok := f.subs[chi.URLParam(r, "name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "submission not found"})
		return nil
	}
	return s
}

func (f *fakeUSI) submission(w http.ResponseWriter, r *http.Request) {
	if s := f.lookup(w, r); s != nil {
		writeJSON(w, http.StatusOK, f.subJSON(s))
	}
}

func (f *fakeUSI) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	if s := f.lookup(w, r); s != nil {
		f.deletes.Add(1)
		delete(f.subs, s.Name)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeUSI) submissionStatus(w http.ResponseWriter, r *http.Request) {
	if s := f.lookup(w, r); s != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": s.Status,
			"_links": map[string]any{
				"self":             link(f.url("api", "submissions", s.Name, "submissionStatus")),
				"submissionStatus": link(f.url("api", "submissions", s.Name, "submissionStatus")),
			},
		})
	}
}

func (f *fakeUSI) putSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	f.statusPuts.Add(1)
	s.Status = body.Status
	writeJSON(w, http.StatusOK, map[string]any{"status": s.Status})
}

func (f *fakeUSI) availableStatuses(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	doc := map[string]any{
		"_links": map[string]any{"self": link(f.url("api", "submissions", s.Name, "availableSubmissionStatuses"))},
	}
	if s.Ready {
		doc["_embedded"] = map[string]any{
			"statusDescriptions": []map[string]string{{"statusName": StatusSubmitted}},
		}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *fakeUSI) contents(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_links": map[string]any{
			"self":           link(f.url("api", "submissions", s.Name, "contents")),
			"samples":        link(f.url("api", "submissions", s.Name, "contents", "samples")),
			"samples:create": link(f.url("api", "submissions", s.Name, "contents", "samples")),
		},
	})
}

func (f *fakeUSI) samples(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	var items []any
	for _, smp := range s.Samples {
		items = append(items, f.sampleJSON(smp))
	}
	writeJSON(w, http.StatusOK, f.page(r, f.url("api", "submissions", s.Name, "contents", "samples"), "samples", items))
}

func (f *fakeUSI) createSample(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.receivedSamples = append(f.receivedSamples, body)
	alias, _ := body["alias"].(string)
	title, _ := body["title"].(string)
	release, _ := body["releaseDate"].(string)
	smp := &fakeSample{Alias: alias, Title: title, ReleaseDate: release, Status: ValidationPending}
	s.Samples = append(s.Samples, smp)
	writeJSON(w, http.StatusCreated, f.sampleJSON(smp))
}

func (f *fakeUSI) validationResults(w http.ResponseWriter, r *http.Request) {
	s := f.lookup(w, r)
	if s == nil {
		return
	}
	var items []any
	for _, smp := range s.Samples {
		items = append(items, f.vrJSON(smp))
	}
	writeJSON(w, http.StatusOK, f.page(r, f.url("api", "submissions", s.Name, "validationResults"), "validationResults", items))
}

func (f *fakeUSI) findSample(alias string) *fakeSample {
	for _, s := range f.subs {
		for _, smp := range s.Samples {
			if smp.Alias == alias {
				return smp
			}
		}
	}
	return nil
}

func (f *fakeUSI) sample(w http.ResponseWriter, r *http.Request) {
	smp := f.findSample(chi.URLParam(r, "alias"))
	if smp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "sample not found"})
		return
	}
	writeJSON(w, http.StatusOK, f.sampleJSON(smp))
}

func (f *fakeUSI) patchSample(w http.ResponseWriter, r *http.Request) {
	smp := f.findSample(chi.URLParam(r, "alias"))
	if smp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "sample not found"})
		return
	}
	var body struct {
		Title       string `json:"title"`
		ReleaseDate string `json:"releaseDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if body.Title != "" {
		smp.Title = body.Title
	}
	if body.ReleaseDate != "" {
		smp.ReleaseDate = body.ReleaseDate
	}
	writeJSON(w, http.StatusOK, f.sampleJSON(smp))
}

func (f *fakeUSI) deleteSample(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	for _, s := range f.subs {
		for i, smp := range s.Samples {
			if smp.Alias == alias {
				s.Samples = append(s.Samples[:i], s.Samples[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "sample not found"})
}

func (f *fakeUSI) sampleValidation(w http.ResponseWriter, r *http.Request) {
	smp := f.findSample(chi.URLParam(r, "alias"))
	if smp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "sample not found"})
		return
	}
	writeJSON(w, http.StatusOK, f.vrJSON(smp))
}
