// Package merge folds provider output into a canonical, deduplicated
// candidate set.
//
// Fold is a pure function: the orchestrator calls it after every provider
// attempt, so it must be idempotent (folding the same candidates twice adds
// nothing) and incremental folding must match one big batch fold at the end.
package merge

import (
	"reflect"
	"sort"
	"strings"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// Fold merges newCandidates into existing and returns the combined set.
// Inputs are not mutated.
//
// Stores are identified by (normalized name, normalized address); the record
// from the highest-priority source (lowest SourceRank) wins, keeping its
// provenance plus the distinct sources whose duplicates it superseded.
//
// Offers are identified by (store, normalized product name, overlapping
// validity window); the most recently scraped record with a non-expired
// window wins.
func Fold(existing, newCandidates model.ResultSet) model.ResultSet {
	out := model.ResultSet{
		Stores: foldStores(existing.Stores, newCandidates.Stores),
		Offers: foldOffers(existing.Offers, newCandidates.Offers),
	}
	return out
}

func foldStores(existing, incoming []model.StoreCandidate) []model.StoreCandidate {
	byKey := make(map[string]model.StoreCandidate, len(existing)+len(incoming))
	var order []string

	consider := func(c model.StoreCandidate) {
		key := normalize(c.Name) + "\x00" + normalize(c.Address)
		cur, ok := byKey[key]
		if !ok {
			byKey[key] = c
			order = append(order, key)
			return
		}
		if identicalStore(cur, c) {
			return // same record folded again — idempotence
		}
		// Supersession is tracked per source: a record the winner has
		// already absorbed a duplicate from changes nothing on a re-fold.
		if c.SourceRank < cur.SourceRank {
			c.SupersededSources = absorb(c.SupersededSources, cur.SupersededSources, cur.Source)
			c.Superseded = len(c.SupersededSources)
			byKey[key] = c
		} else {
			cur.SupersededSources = absorb(cur.SupersededSources, c.SupersededSources, c.Source)
			cur.Superseded = len(cur.SupersededSources)
			byKey[key] = cur
		}
	}

	for _, c := range existing {
		consider(c)
	}
	for _, c := range incoming {
		consider(c)
	}

	out := make([]model.StoreCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceRank != out[j].SourceRank {
			return out[i].SourceRank < out[j].SourceRank
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func foldOffers(existing, incoming []model.OfferCandidate) []model.OfferCandidate {
	kept := make([]model.OfferCandidate, 0, len(existing)+len(incoming))
	kept = append(kept, existing...)

	for _, c := range incoming {
		replaced := false
		duplicate := false
		for i := range kept {
			if !sameOfferIdentity(kept[i], c) {
				continue
			}
			if identicalOffer(kept[i], c) {
				duplicate = true
				break
			}
			if offerWins(c, kept[i]) {
				c.SupersededSources = absorb(c.SupersededSources, kept[i].SupersededSources, kept[i].Source)
				c.Superseded = len(c.SupersededSources)
				kept[i] = c
			} else {
				kept[i].SupersededSources = absorb(kept[i].SupersededSources, c.SupersededSources, c.Source)
				kept[i].Superseded = len(kept[i].SupersededSources)
			}
			replaced = true
			break
		}
		if !replaced && !duplicate {
			kept = append(kept, c)
		}
	}
	return kept
}

// sameOfferIdentity applies the dedup key: same store, same normalized
// product name, overlapping validity window.
func sameOfferIdentity(a, b model.OfferCandidate) bool {
	return normalize(a.StoreName) == normalize(b.StoreName) &&
		normalize(a.ProductName) == normalize(b.ProductName) &&
		a.WindowOverlaps(b)
}

// offerWins decides a collision: the most recently sourced record with a
// valid (non-expired) window wins. Expiry is judged relative to the newer
// record's scrape time so the outcome does not drift with wall-clock time.
func offerWins(challenger, incumbent model.OfferCandidate) bool {
	ref := challenger.ScrapedAt
	if incumbent.ScrapedAt.After(ref) {
		ref = incumbent.ScrapedAt
	}
	challengerValid := !challenger.Expired(ref)
	incumbentValid := !incumbent.Expired(ref)
	if challengerValid != incumbentValid {
		return challengerValid
	}
	return !challenger.ScrapedAt.Before(incumbent.ScrapedAt)
}

// absorb returns base extended with the loser's supersession history plus
// the loser's own source, skipping sources already counted. It never mutates
// base in place, since base may alias a caller's slice.
func absorb(base, loserHistory []string, loserSource string) []string {
	out := base
	copied := false
	add := func(src string) {
		if src == "" {
			return
		}
		for _, s := range out {
			if s == src {
				return
			}
		}
		if !copied {
			out = append(make([]string, 0, len(out)+1), out...)
			copied = true
		}
		out = append(out, src)
	}
	for _, src := range loserHistory {
		add(src)
	}
	add(loserSource)
	return out
}

func identicalStore(a, b model.StoreCandidate) bool {
	a.Superseded, b.Superseded = 0, 0
	a.SupersededSources, b.SupersededSources = nil, nil
	return reflect.DeepEqual(a, b)
}

func identicalOffer(a, b model.OfferCandidate) bool {
	a.Superseded, b.Superseded = 0, 0
	a.SupersededSources, b.SupersededSources = nil, nil
	return reflect.DeepEqual(a, b)
}

// normalize collapses free-text for comparison: lowercase, single spaces.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
