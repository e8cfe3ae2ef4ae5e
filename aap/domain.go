package aap

import (
	"context"
	"fmt"
	"strings"

	"usirest/client"
)

// Domain is an AAP group. USI teams are views over domains.
type Domain struct {
	DomainName      string        `json:"domainName"`
	DomainDesc      string        `json:"domainDesc"`
	DomainReference string        `json:"domainReference"`
	Links           []client.Link `json:"links,omitempty"`
}

func (d *Domain) String() string {
	if d.DomainReference == "" {
		return "domain not yet initialized"
	}
	ref := d.DomainReference
	if parts := strings.Split(ref, "-"); len(parts) > 1 {
		ref = parts[1]
	}
	return fmt.Sprintf("%s %s %s", ref, d.DomainName, d.DomainDesc)
}

// Domains lists the domains the caller belongs to. The AAP endpoint
// returns a plain JSON array, not a HAL collection.
func Domains(ctx context.Context, c *client.Client) ([]*Domain, error) {
	var domains []*Domain
	if err := c.Get(ctx, c.AAPURL("my", "domains"), &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// DomainByName finds a domain by name.
func DomainByName(ctx context.Context, c *client.Client, name string) (*Domain, error) {
	domains, err := Domains(ctx, c)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		if d.DomainName == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("domain %q not found", name)
}

// Users resolves the members of the domain through its user link.
func (d *Domain) Users(ctx context.Context, c *client.Client) ([]*User, error) {
	var href string
	for _, link := range d.Links {
		if strings.Contains(link.Href, "user") {
			href = link.Href
			break
		}
	}
	if href == "" {
		return nil, &client.MissingLinkError{Rel: "user"}
	}
	var users []*User
	if err := c.Get(ctx, href, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AddUserToTeam adds a user to a domain, returning the updated domain.
func AddUserToTeam(ctx context.Context, c *client.Client, userID, domainID string) (*Domain, error) {
	url := c.AAPURL("domains", domainID, userID, "user")
	var d Domain
	if err := c.Put(ctx, url, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateProfile attaches a profile of key/value attributes to the domain.
func (d *Domain) CreateProfile(ctx context.Context, c *client.Client, attributes map[string]string) (*Domain, error) {
	if attributes == nil {
		attributes = map[string]string{}
	}
	body := map[string]any{
		"domain": map[string]string{
			"domainReference": d.DomainReference,
		},
		"attributes": attributes,
	}
	var out Domain
	if err := c.Post(ctx, c.AAPURL("profiles"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
