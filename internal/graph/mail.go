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
	"time"

	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/senders"
)

// MailSourceConfig holds the settings for a Graph mail source.
type MailSourceConfig struct {
	Client *Client
	// Mailbox is the user id or UPN whose folder is read.
	Mailbox string
	// Folder defaults to "inbox".
	Folder string
	// Senders drops own-domain and automated senders from history.
	Senders *senders.Filter
	// PageSize defaults to 50.
	PageSize int
	// PageDelay spaces page requests to stay under throttling limits.
	PageDelay time.Duration
}

// MailSource lists mailbox messages as communication events.
type MailSource struct {
	client    *Client
	mailbox   string
	folder    string
	senders   *senders.Filter
	pageSize  int
	pageDelay time.Duration
}

// NewMailSource creates a Graph mail source.
func NewMailSource(cfg MailSourceConfig) *MailSource {
	folder := cfg.Folder
	if folder == "" {
		folder = "inbox"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	filter := cfg.Senders
	if filter == nil {
		filter = senders.NewFilter(nil, nil)
	}
	return &MailSource{
		client:    cfg.Client,
		mailbox:   cfg.Mailbox,
		folder:    folder,
		senders:   filter,
		pageSize:  pageSize,
		pageDelay: cfg.PageDelay,
	}
}

// FetchEvents returns every message received at or after since, newest
// first.
func (m *MailSource) FetchEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error) {
	return m.list(ctx, since, nil)
}

// FetchHistoricalEvents returns messages received at or after since from
// external senders, newest first.
func (m *MailSource) FetchHistoricalEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error) {
	return m.list(ctx, since, func(ev models.CommunicationEvent) bool {
		return m.senders.External(ev.SenderAddress)
	})
}

func (m *MailSource) list(ctx context.Context, since time.Time, keep func(models.CommunicationEvent) bool) ([]models.CommunicationEvent, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "id,subject,from,body,receivedDateTime,conversationId")
	params.Set("$top", fmt.Sprintf("%d", m.pageSize))

	listURL := fmt.Sprintf("/users/%s/mailFolders/%s/messages?%s",
		url.PathEscape(m.mailbox), url.PathEscape(m.folder), params.Encode())

	var out []models.CommunicationEvent
	pageCount := 0
	for nextURL := listURL; nextURL != ""; {
		if pageCount > 0 && m.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.pageDelay):
			}
		}

		var page messagesPage
		if err := m.client.Get(ctx, nextURL, &page); err != nil {
			return nil, fmt.Errorf("fetch messages page %d: %w", pageCount, err)
		}
		pageCount++

		for _, ev := range eventsFromPage(&page) {
			if keep == nil || keep(ev) {
				out = append(out, ev)
			}
		}
		nextURL = page.NextLink
	}

	slog.Debug("listed mailbox messages",
		"mailbox", m.mailbox,
		"since", since,
		"pages", pageCount,
		"messages", len(out),
	)
	return out, nil
}
