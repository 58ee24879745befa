// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

// Entry is a labelled sequence from a FASTA or tabular haplotype file.
type Entry struct {
	Label    string
	Sequence string
}

// Store maps haplotype IDs to sequences. When two entries resolve to
// the same ID, the later one wins.
type Store struct {
	seqs     map[ID]string
	replaced int
}

func NewStore() *Store {
	return &Store{seqs: map[ID]string{}}
}

// BuildStore loads entries into a new Store. Labels with no
// recognizable haplotype ID are skipped and returned.
func BuildStore(entries []Entry) (*Store, []string) {
	store := NewStore()
	var bad []string
	for _, ent := range entries {
		id, err := ParseID(ent.Label)
		if err != nil {
			bad = append(bad, ent.Label)
			continue
		}
		store.Put(id, ent.Sequence)
	}
	return store, bad
}

// Put sets the sequence for id, replacing any earlier one.
func (store *Store) Put(id ID, seq string) {
	if _, ok := store.seqs[id]; ok {
		store.replaced++
	}
	store.seqs[id] = seq
}

func (store *Store) Get(id ID) (string, bool) {
	seq, ok := store.seqs[id]
	return seq, ok
}

func (store *Store) Len() int {
	return len(store.seqs)
}

// Replaced returns the number of Put calls that overwrote an existing
// sequence.
func (store *Store) Replaced() int {
	return store.replaced
}
