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

// Package senders classifies email senders: addresses on the mailbox
// owner's own domains, and automated senders that never carry business
// correspondence.
package senders

import (
	"strings"

	"github.com/bcem/leadtracker/internal/textnorm"
)

// DefaultAutomated are local-part fragments of automated senders.
var DefaultAutomated = []string{"noreply", "no-reply", "donotreply", "mailer-daemon", "postmaster"}

// Filter recognises own-domain and automated senders.
type Filter struct {
	ownDomains []string
	automated  []string
}

// NewFilter creates a sender filter. Domains match exactly or as a parent
// of the sender's domain. A nil automated list uses DefaultAutomated.
func NewFilter(ownDomains, automated []string) *Filter {
	f := &Filter{}
	for _, d := range ownDomains {
		d = strings.Trim(textnorm.Lower(d), " @.")
		if d != "" {
			f.ownDomains = append(f.ownDomains, d)
		}
	}
	if automated == nil {
		automated = DefaultAutomated
	}
	for _, a := range automated {
		if a = textnorm.Lower(a); a != "" {
			f.automated = append(f.automated, a)
		}
	}
	return f
}

// OwnDomains returns the normalised own domains.
func (f *Filter) OwnDomains() []string {
	return append([]string(nil), f.ownDomains...)
}

// IsOwn reports whether address belongs to one of the own domains.
func (f *Filter) IsOwn(address string) bool {
	domain := textnorm.Domain(textnorm.Lower(address))
	if domain == "" {
		return false
	}
	for _, d := range f.ownDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// IsAutomated reports whether address looks like an automated sender.
func (f *Filter) IsAutomated(address string) bool {
	addr := textnorm.Lower(address)
	for _, a := range f.automated {
		if strings.Contains(addr, a) {
			return true
		}
	}
	return false
}

// External reports whether address is neither own nor automated. Only
// external messages are useful as history.
func (f *Filter) External(address string) bool {
	return !f.IsOwn(address) && !f.IsAutomated(address)
}
