// Package dedup classifies new transaction candidates against a read-only
// snapshot of existing records. Classification is pure: no side effects,
// no mutation of the snapshot.
package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/tech1ee/finuts/internal/model"
)

// Decision thresholds. Same-day exact-amount matches at or above
// exactThreshold are exact duplicates; anything inside the date window
// with exact amount and at least probableThreshold similarity is probable.
const (
	exactThreshold    = 0.90
	probableThreshold = 0.60
)

// dateWindowDays absorbs timezone skew between bank exports.
const dateWindowDays = 1

// Detector compares candidates against an existing-transaction snapshot.
type Detector struct {
	byAmount map[int64][]model.ImportedTransaction
}

// NewDetector indexes the snapshot for amount-first lookup.
func NewDetector(existing []model.ImportedTransaction) *Detector {
	byAmount := make(map[int64][]model.ImportedTransaction, len(existing))
	for _, txn := range existing {
		byAmount[txn.Amount] = append(byAmount[txn.Amount], txn)
	}
	return &Detector{byAmount: byAmount}
}

// Classify produces the duplicate verdict for one candidate.
func (d *Detector) Classify(candidate model.ImportedTransaction) model.DuplicateStatus {
	candidateDesc := NormalizeDescription(candidate.Description)

	var best model.DuplicateStatus

	for _, existing := range d.byAmount[candidate.Amount] {
		dayDelta := daysBetween(existing.Date, candidate.Date)
		if dayDelta > dateWindowDays {
			continue
		}

		similarity := Similarity(candidateDesc, NormalizeDescription(existing.Description))
		sameDay := dayDelta == 0

		// Identical descriptions are exact regardless of the day skew:
		// similarity 1.0 always reports as an exact duplicate.
		switch {
		case similarity == 1.0, sameDay && similarity >= exactThreshold:
			reason := "same date, amount and description"
			if !sameDay {
				reason = "same amount and description within one day"
			}
			return model.DuplicateStatus{
				Kind:       model.DuplicateExact,
				MatchID:    existing.ID,
				Similarity: similarity,
				Reason:     reason,
			}
		case similarity >= probableThreshold:
			if best.Kind == model.DuplicateNone || similarity > best.Similarity {
				reason := fmt.Sprintf("same amount on the same date, %d%% similar description", int(similarity*100))
				if !sameDay {
					reason = fmt.Sprintf("same amount within one day, %d%% similar description", int(similarity*100))
				}
				best = model.DuplicateStatus{
					Kind:       model.DuplicateProbable,
					MatchID:    existing.ID,
					Similarity: similarity,
					Reason:     reason,
				}
			}
		case sameDay && similarity > 0:
			// Exact amount and date with only partial description overlap
			// still warrants a probable flag.
			if best.Kind == model.DuplicateNone {
				best = model.DuplicateStatus{
					Kind:       model.DuplicateProbable,
					MatchID:    existing.ID,
					Similarity: similarity,
					Reason:     "same amount and date, partially overlapping description",
				}
			}
		}
	}

	return best
}

func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	delta := int(ad.Sub(bd).Hours() / 24)
	if delta < 0 {
		delta = -delta
	}
	return delta
}

// NormalizeDescription lowercases, collapses whitespace, and strips
// punctuation so cosmetic differences between exports do not defeat
// matching.
func NormalizeDescription(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'а' && r <= 'я', r == 'ё':
			return r
		case r == ' ':
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity is the Dice coefficient over word tokens of two normalized
// descriptions: 1.0 for identical token sets, 0.0 for disjoint ones.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	shared := 0
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if !setB[t] {
			setB[t] = true
			if setA[t] {
				shared++
			}
		}
	}

	return 2.0 * float64(shared) / float64(len(setA)+len(setB))
}
