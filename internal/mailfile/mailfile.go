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

// Package mailfile reads a directory of .eml files as a mail source, for
// offline replays of a mailbox export.
package mailfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"github.com/bcem/leadtracker/internal/htmltext"
	"github.com/bcem/leadtracker/internal/models"
	"github.com/bcem/leadtracker/internal/senders"
)

func init() {
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Parse reads one RFC 5322 message. The event id is the Message-Id; the
// thread id is the first References id, else In-Reply-To, else the
// Message-Id itself.
func Parse(r io.Reader) (models.CommunicationEvent, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return models.CommunicationEvent{}, fmt.Errorf("create mail reader: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	ev := models.CommunicationEvent{
		EventID: strings.TrimSpace(h.Get("Message-Id")),
		Subject: decodeWords(h.Get("Subject")),
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		ev.SenderAddress = strings.ToLower(from[0].Address)
		ev.SenderDisplayName = from[0].Name
	}
	if date, err := h.Date(); err == nil {
		ev.ReceivedAt = date.UTC()
	}

	ev.ThreadID = ev.EventID
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		ev.ThreadID = refs[0]
	} else if irt := strings.TrimSpace(h.Get("In-Reply-To")); irt != "" {
		ev.ThreadID = irt
	}

	var text, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.CommunicationEvent{}, fmt.Errorf("read part: %w", err)
		}
		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := ih.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return models.CommunicationEvent{}, fmt.Errorf("read body: %w", err)
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && text == "":
			text = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	switch {
	case strings.TrimSpace(text) != "":
		ev.BodyText = strings.TrimSpace(text)
	case htmlBody != "":
		ev.BodyText = htmltext.ToText(htmlBody)
	}
	if strings.TrimSpace(ev.Subject) == "" {
		ev.Subject = "No Subject"
	}
	return ev, nil
}

func decodeWords(s string) string {
	dec := mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// Source serves the .eml files under a directory as both the recent event
// window and the historical window.
type Source struct {
	dir     string
	senders *senders.Filter
}

// NewSource creates a directory mail source. A nil filter keeps every
// sender in history.
func NewSource(dir string, filter *senders.Filter) *Source {
	if filter == nil {
		filter = senders.NewFilter(nil, []string{})
	}
	return &Source{dir: dir, senders: filter}
}

// FetchEvents returns the messages received at or after since, newest first.
func (s *Source) FetchEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error) {
	return s.load(ctx, since, nil)
}

// FetchHistoricalEvents returns external messages received at or after
// since, newest first.
func (s *Source) FetchHistoricalEvents(ctx context.Context, since time.Time) ([]models.CommunicationEvent, error) {
	return s.load(ctx, since, func(ev models.CommunicationEvent) bool {
		return s.senders.External(ev.SenderAddress)
	})
}

func (s *Source) load(ctx context.Context, since time.Time, keep func(models.CommunicationEvent) bool) ([]models.CommunicationEvent, error) {
	var out []models.CommunicationEvent
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".eml") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		ev, err := Parse(bytes.NewReader(raw))
		if err != nil {
			slog.Warn("skipping unparseable message", "path", path, "error", err)
			return nil
		}
		if err := ev.Validate(); err != nil {
			slog.Warn("skipping message without id or date", "path", path, "error", err)
			return nil
		}
		if ev.ReceivedAt.Before(since) {
			return nil
		}
		if keep != nil && !keep(ev) {
			return nil
		}
		out = append(out, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}
