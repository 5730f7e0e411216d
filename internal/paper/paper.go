// Package paper selects the question set for one exam attempt.
package paper

import (
	"math/rand"

	"github.com/proctorly/proctorly-backend/internal/model"
)

// Build draws the configured number of questions per category from the
// bank, uniformly without replacement, concatenated in the fixed
// category order. A category with fewer questions than requested
// contributes all it has; this is not an error. With shuffle, the full
// concatenation gets a Fisher–Yates permutation, otherwise the
// category grouping is preserved.
//
// The returned paper holds deep copies: later edits to the bank cannot
// reach into an in-progress exam.
func Build(bank []model.Question, counts map[model.Category]int, shuffle bool, rng *rand.Rand) []model.Question {
	byCategory := make(map[model.Category][]model.Question, len(model.Categories))
	for _, q := range bank {
		byCategory[q.Category] = append(byCategory[q.Category], q)
	}

	var selected []model.Question
	for _, cat := range model.Categories {
		selected = append(selected, pick(byCategory[cat], counts[cat], rng)...)
	}

	if shuffle {
		rng.Shuffle(len(selected), func(i, j int) {
			selected[i], selected[j] = selected[j], selected[i]
		})
	}

	out := make([]model.Question, len(selected))
	for i, q := range selected {
		out[i] = q.Clone()
	}
	return out
}

// Reconstruct rebuilds a paper from saved question ids, in the saved
// order, resolving against the current bank. Ids that no longer exist
// are silently dropped, so the paper may shrink on resume.
func Reconstruct(bank []model.Question, ids []string) []model.Question {
	byID := make(map[string]model.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}

	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q.Clone())
		}
	}
	return out
}

// pick draws count items uniformly without replacement.
func pick(pool []model.Question, count int, rng *rand.Rand) []model.Question {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	if count > len(pool) {
		count = len(pool)
	}

	idx := rng.Perm(len(pool))[:count]
	chosen := make([]model.Question, 0, count)
	for _, i := range idx {
		chosen = append(chosen, pool[i])
	}
	return chosen
}
