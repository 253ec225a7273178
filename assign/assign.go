// Package assign splits a roster into small groups so that every group
// holds at least one newcomer and no newcomer is left alone.
//
// The algorithm is a greedy pass, not an optimizer:
//  1. Drop students already placed in manual groups
//  2. Shuffle newcomers and returners independently
//  3. Seed one group per newcomer
//  4. Fill groups in order from the front of the returner list
//  5. Spread leftover returners round-robin over groups that still have room
//  6. Pull out groups left with a single newcomer (strays)
//  7. Put each stray into the currently smallest group
package assign

import (
	"errors"
	"math/rand/v2"
	"sort"

	"groupdraw-server-go/models"
)

// ErrInvalidGroupSize is returned when the target group size is below 1.
var ErrInvalidGroupSize = errors.New("group size must be at least 1")

// MaxSeed is the largest seed Assign picks on its own. Seeds stay within
// 53 bits so they survive a round trip through a JSON number in a
// JavaScript client.
const MaxSeed = 1<<53 - 1

// Result is the outcome of one draw.
type Result struct {
	Groups []models.Group `json:"grupos"`
	// Unassigned lists returners that no group could take: either there
	// were no newcomers at all, or every group was already full.
	Unassigned []string `json:"nao_alocados"`
	// Seed reproduces this draw when passed back through WithSeed.
	// Zero when the caller supplied its own generator.
	Seed uint64 `json:"seed"`
}

// Option configures a single Assign call.
type Option func(*options)

type options struct {
	rng      *rand.Rand
	seed     uint64
	seeded   bool
	overflow bool
}

// WithSeed makes the draw reproducible: the same seed and roster always
// give the same groups.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithRand draws from the given generator instead of a fresh one.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rng = r
	}
}

// WithOverflow lets leftover returners go past the group size, spread
// round-robin, instead of being reported as unassigned.
func WithOverflow() Option {
	return func(o *options) {
		o.overflow = true
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng != nil {
		o.seed = 0
		return o
	}
	if !o.seeded {
		o.seed = rand.Uint64N(MaxSeed + 1)
	}
	o.rng = rand.New(rand.NewPCG(o.seed, o.seed))
	return o
}

// Assign partitions students into groups of up to groupSize members.
// Members of manual are never reassigned. An empty roster gives an
// empty result.
func Assign(students []models.Student, groupSize int, manual []models.Group, opts ...Option) (*Result, error) {
	if groupSize < 1 {
		return nil, ErrInvalidGroupSize
	}
	o := newOptions(opts)

	taken := make(map[string]struct{})
	for _, group := range manual {
		for _, name := range group {
			taken[name] = struct{}{}
		}
	}

	var newcomers, returners []string
	for _, s := range students {
		if _, ok := taken[s.Name]; ok {
			continue
		}
		switch s.Cohort {
		case models.Newcomer:
			newcomers = append(newcomers, s.Name)
		case models.Returner:
			returners = append(returners, s.Name)
		}
	}

	o.rng.Shuffle(len(newcomers), func(i, j int) {
		newcomers[i], newcomers[j] = newcomers[j], newcomers[i]
	})
	o.rng.Shuffle(len(returners), func(i, j int) {
		returners[i], returners[j] = returners[j], returners[i]
	})

	groups, leftover := seedGroups(newcomers, returners, groupSize)
	unassigned := distribute(groups, leftover, groupSize, o.overflow)

	return &Result{
		Groups:     repair(groups),
		Unassigned: unassigned,
		Seed:       o.seed,
	}, nil
}

// seedGroups opens one group per newcomer and fills each in turn from
// the front of returners. It returns the returners left over.
func seedGroups(newcomers, returners []string, groupSize int) ([]models.Group, []string) {
	groups := make([]models.Group, len(newcomers))
	next := 0
	for i, newcomer := range newcomers {
		group := models.Group{newcomer}
		for len(group) < groupSize && next < len(returners) {
			group = append(group, returners[next])
			next++
		}
		groups[i] = group
	}
	return groups, returners[next:]
}

// distribute hands out leftover returners round-robin, skipping full
// groups unless overflow is set. It returns whoever could not be placed.
func distribute(groups []models.Group, leftover []string, groupSize int, overflow bool) []string {
	if len(groups) == 0 {
		return append([]string{}, leftover...)
	}

	idx := 0
	for len(leftover) > 0 {
		placed := false
		for tries := 0; tries < len(groups); tries++ {
			target := idx
			idx = (idx + 1) % len(groups)
			if overflow || len(groups[target]) < groupSize {
				groups[target] = append(groups[target], leftover[0])
				leftover = leftover[1:]
				placed = true
				break
			}
		}
		if !placed {
			break
		}
	}
	return append([]string{}, leftover...)
}

// repair moves every lone member into the smallest remaining group.
// Only a newcomer can be alone: returners always join a seeded group.
func repair(groups []models.Group) []models.Group {
	final := make([]models.Group, 0, len(groups))
	var strays []string
	for _, group := range groups {
		if len(group) == 1 {
			strays = append(strays, group[0])
			continue
		}
		final = append(final, group)
	}

	for _, stray := range strays {
		sort.SliceStable(final, func(i, j int) bool {
			return len(final[i]) < len(final[j])
		})
		if len(final) == 0 {
			// nothing to join; keep the student rather than drop them
			final = append(final, models.Group{stray})
			continue
		}
		final[0] = append(final[0], stray)
	}
	return final
}
