// Package aap binds EBI's Authentication, Authorisation and Profile
// service: user records and the domains (groups) they belong to.
package aap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"usirest/client"
)

// User is an AAP identity record.
type User struct {
	UserName      string        `json:"userName"`
	Email         string        `json:"email"`
	UserReference string        `json:"userReference"`
	FullName      string        `json:"fullName,omitempty"`
	Links         []client.Link `json:"links,omitempty"`
}

// Me fetches the caller's own user record, looked up by the token's
// nickname claim.
func Me(ctx context.Context, c *client.Client) (*User, error) {
	nickname := c.Auth.Claims.Nickname
	var u User
	if err := c.Get(ctx, c.AAPURL("users", nickname), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// MyID returns the caller's AAP user reference.
func MyID(ctx context.Context, c *client.Client) (string, error) {
	u, err := Me(ctx, c)
	if err != nil {
		return "", err
	}
	return u.UserReference, nil
}

// UserByID fetches a user record by AAP reference.
func UserByID(ctx context.Context, c *client.Client, userID string) (*User, error) {
	var u User
	if err := c.Get(ctx, c.AAPURL("users", userID), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// NewUser is the payload for CreateUser.
type NewUser struct {
	UserName        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPwd"`
	Email           string `json:"email"`
	FullName        string `json:"name"`
	Organisation    string `json:"organisation"`
}

// CreateUser registers a new AAP account and returns its user reference.
// No session is needed; registration is the one unauthenticated call.
func CreateUser(ctx context.Context, hc *http.Client, aapURL string, nu NewUser) (string, error) {
	if nu.Password != nu.ConfirmPassword {
		return "", errors.New("passwords do not match")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	body, err := json.Marshal(nu)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, aapURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create user: status=%d body=%s", resp.StatusCode, string(data))
	}
	return string(bytes.TrimSpace(data)), nil
}
