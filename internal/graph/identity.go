// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/bcem/leadtracker/internal/textnorm"
)

// UserInfo represents a mailbox user.
type UserInfo struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Identity looks up the mailbox owner.
type Identity struct {
	client *Client
}

// NewIdentity creates an identity lookup.
func NewIdentity(c *Client) *Identity {
	return &Identity{client: c}
}

// User returns the directory entry of mailbox.
func (i *Identity) User(ctx context.Context, mailbox string) (*UserInfo, error) {
	params := url.Values{}
	params.Set("$select", "id,mail,displayName,userPrincipalName")

	var u UserInfo
	if err := i.client.Get(ctx, fmt.Sprintf("/users/%s?%s", url.PathEscape(mailbox), params.Encode()), &u); err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", mailbox, err)
	}
	return &u, nil
}

// OwnDomains returns the domains of mailbox's mail address and UPN merged
// with overrides, lower-cased and de-duplicated. When overrides is non-empty
// and the lookup fails, the overrides are returned with the error logged.
func (i *Identity) OwnDomains(ctx context.Context, mailbox string, overrides []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(d string) {
		d = textnorm.Lower(d)
		if d == "" {
			return
		}
		if _, dup := seen[d]; dup {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, d := range overrides {
		add(d)
	}

	u, err := i.User(ctx, mailbox)
	if err != nil {
		if len(out) > 0 {
			slog.Warn("own-domain lookup failed, using configured domains", "mailbox", mailbox, "error", err)
			return out, nil
		}
		return nil, err
	}
	add(textnorm.Domain(u.Mail))
	add(textnorm.Domain(u.UserPrincipalName))

	slog.Info("own domains resolved", "mailbox", mailbox, "domains", out)
	return out, nil
}
