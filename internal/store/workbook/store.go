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

// Package workbook stores opportunities and interactions in an Excel
// workbook on OneDrive or SharePoint through the Graph workbook API. New
// rows are inserted at the top of each table so the newest record is
// always first.
package workbook

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bcem/leadtracker/internal/graph"
	"github.com/bcem/leadtracker/internal/models"
)

// Default sheet and table names.
const (
	DefaultOpportunitiesSheet = "OpportunitiesMaster"
	DefaultOpportunitiesTable = "OpportunitiesTable"
	DefaultInteractionsSheet  = "InteractionLog"
	DefaultInteractionsTable  = "InteractionsTable"
)

// Opportunity sheet columns.
const (
	colID = iota
	colContactName
	colCompany
	colEmail
	colOwner
	colTitle
	colStatus
	colFirstMention
	colThread
	colSummary
	opportunityColumns
)

// Config holds the settings for a workbook store.
type Config struct {
	Client *graph.Client
	// ShareLink is the sharing URL of the workbook.
	ShareLink string

	OpportunitiesSheet string
	OpportunitiesTable string
	InteractionsSheet  string
	InteractionsTable  string
}

// Store reads the opportunity sheet and appends rows to both tables.
type Store struct {
	client    *graph.Client
	shareLink string
	oppSheet  string
	oppTable  string
	intSheet  string
	intTable  string

	mu       sync.Mutex
	itemPath string
}

// NewStore creates a workbook store. The share link is resolved lazily on
// first use.
func NewStore(cfg Config) *Store {
	return &Store{
		client:    cfg.Client,
		shareLink: cfg.ShareLink,
		oppSheet:  orDefault(cfg.OpportunitiesSheet, DefaultOpportunitiesSheet),
		oppTable:  orDefault(cfg.OpportunitiesTable, DefaultOpportunitiesTable),
		intSheet:  orDefault(cfg.InteractionsSheet, DefaultInteractionsSheet),
		intTable:  orDefault(cfg.InteractionsTable, DefaultInteractionsTable),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// ShareID encodes a sharing URL as a Graph share id.
func ShareID(link string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(link))
}

type driveItem struct {
	ID              string `json:"id"`
	ParentReference struct {
		DriveID string `json:"driveId"`
	} `json:"parentReference"`
}

// item returns the drive item path of the workbook, resolving the share
// link once.
func (s *Store) item(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.itemPath != "" {
		return s.itemPath, nil
	}

	var it driveItem
	if err := s.client.Get(ctx, "/shares/"+ShareID(s.shareLink)+"/driveItem", &it); err != nil {
		return "", fmt.Errorf("resolve workbook share link: %w", err)
	}
	if it.ID == "" || it.ParentReference.DriveID == "" {
		return "", fmt.Errorf("resolve workbook share link: drive item has no id")
	}
	s.itemPath = fmt.Sprintf("/drives/%s/items/%s", url.PathEscape(it.ParentReference.DriveID), url.PathEscape(it.ID))
	slog.Info("workbook resolved", "item", s.itemPath)
	return s.itemPath, nil
}

type rangeValues struct {
	Values [][]any `json:"values"`
}

// ListOpportunities reads the opportunity sheet, skipping the header, and
// returns the records oldest first. Rows without an id are skipped.
func (s *Store) ListOpportunities(ctx context.Context) ([]models.OpportunityRecord, error) {
	item, err := s.item(ctx)
	if err != nil {
		return nil, err
	}

	var rv rangeValues
	path := fmt.Sprintf("%s/workbook/worksheets('%s')/usedRange(valuesOnly=true)", item, url.PathEscape(s.oppSheet))
	if err := s.client.Get(ctx, path, &rv); err != nil {
		return nil, fmt.Errorf("read opportunity sheet: %w", err)
	}
	if len(rv.Values) <= 1 {
		return nil, nil
	}

	rows := rv.Values[1:]
	out := make([]models.OpportunityRecord, 0, len(rows))
	// Sheet rows are newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		rec := models.OpportunityRecord{
			OpportunityID:  cell(row, colID),
			ContactName:    cell(row, colContactName),
			ContactCompany: cell(row, colCompany),
			ContactEmail:   cell(row, colEmail),
			Title:          cell(row, colTitle),
			Status:         cell(row, colStatus),
			FirstMentionAt: cellTime(row, colFirstMention),
			ThreadID:       cell(row, colThread),
			Summary:        cell(row, colSummary),
		}
		if rec.OpportunityID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Append inserts opps and interactions at the top of their tables, one
// request per table, newest row first. The opportunity table is written
// first so interactions never point at a missing row. When the second
// request fails the opportunity rows stay, and since the cycle does not
// commit state a retry writes them again.
func (s *Store) Append(ctx context.Context, opps []models.OpportunityRecord, interactions []models.InteractionRecord) error {
	if len(opps) == 0 && len(interactions) == 0 {
		return nil
	}
	item, err := s.item(ctx)
	if err != nil {
		return err
	}

	oppRows := make([][]any, 0, len(opps))
	for i := len(opps) - 1; i >= 0; i-- {
		oppRows = append(oppRows, opportunityRow(opps[i]))
	}
	if err := s.insertRows(ctx, item, s.oppSheet, s.oppTable, oppRows); err != nil {
		return err
	}

	intRows := make([][]any, 0, len(interactions))
	for i := len(interactions) - 1; i >= 0; i-- {
		intRows = append(intRows, interactionRow(interactions[i]))
	}
	return s.insertRows(ctx, item, s.intSheet, s.intTable, intRows)
}

type rowsAdd struct {
	Index  int     `json:"index"`
	Values [][]any `json:"values"`
}

func (s *Store) insertRows(ctx context.Context, item, sheet, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	path := fmt.Sprintf("%s/workbook/worksheets('%s')/tables('%s')/rows/add",
		item, url.PathEscape(sheet), url.PathEscape(table))
	if err := s.client.Do(ctx, http.MethodPost, path, rowsAdd{Index: 0, Values: rows}, nil, http.StatusCreated); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	slog.Info("inserted workbook rows", "table", table, "rows", len(rows))
	return nil
}

// Ping checks that the workbook can be resolved.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.item(ctx)
	return err
}

func opportunityRow(o models.OpportunityRecord) []any {
	row := make([]any, opportunityColumns)
	row[colID] = o.OpportunityID
	row[colContactName] = o.ContactName
	row[colCompany] = o.ContactCompany
	row[colEmail] = o.ContactEmail
	row[colOwner] = ""
	row[colTitle] = o.Title
	row[colStatus] = o.Status
	row[colFirstMention] = o.FirstMentionAt.UTC().Format(time.RFC3339)
	row[colThread] = o.ThreadID
	row[colSummary] = o.Summary
	return row
}

func interactionRow(i models.InteractionRecord) []any {
	return []any{
		i.OpportunityID,
		i.OccurredAt.UTC().Format(time.RFC3339),
		i.Kind,
		i.Channel,
		i.ActorDisplayName,
		i.Summary,
		i.ActionItem,
		i.Note,
	}
}

func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// excelEpoch is day zero of Excel's 1900 date system as used by serial
// numbers after February 1900.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// cellTime parses an RFC 3339 string, a plain date, or an Excel serial
// date. Unparseable cells give the zero time.
func cellTime(row []any, i int) time.Time {
	if i >= len(row) {
		return time.Time{}
	}
	switch v := row[i].(type) {
	case float64:
		days := math.Floor(v)
		frac := v - days
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * float64(24*time.Hour))).Round(time.Second)
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
