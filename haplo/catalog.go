// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

import (
	"sort"
	"strings"
)

// Catalog is a sorted list of distinct location names.
type Catalog []string

// NewCatalog trims, deduplicates and sorts values. Blank values are
// dropped. If prefixes is not empty, a value is kept only if it starts
// with one of the prefixes, and the first such prefix is removed.
func NewCatalog(values []string, prefixes []string) Catalog {
	have := map[string]bool{}
	var cat Catalog
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(prefixes) > 0 {
			found := false
			for _, prefix := range prefixes {
				if strings.HasPrefix(v, prefix) {
					v = strings.TrimPrefix(v, prefix)
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if v == "" || have[v] {
			continue
		}
		have[v] = true
		cat = append(cat, v)
	}
	sort.Strings(cat)
	return cat
}

// Contains reports whether loc is in the catalog.
func (cat Catalog) Contains(loc string) bool {
	i := sort.SearchStrings(cat, loc)
	return i < len(cat) && cat[i] == loc
}
