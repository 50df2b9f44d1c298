package commands

import (
	"fmt"

	"tracklight/internal/cli"
	"tracklight/internal/client"
)

// newClient builds an API client from the resolved profile.
func newClient() (*client.Client, error) {
	p, err := cli.GetProfile(profile, baseURL, username, password)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return client.NewClient(p.BaseURL, p.Username, p.Password), nil
}
