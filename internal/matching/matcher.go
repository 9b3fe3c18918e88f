package matching

import (
	"context"
	"math"
	"sort"

	"clubsync/pkg/config"
	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

// MemberDirectory is the slice of the directory API the matcher needs.
type MemberDirectory interface {
	SearchMembers(ctx context.Context, query string, includeFormer bool) ([]model.Member, error)
}

// Weights for the combined score. Token overlap dominates because external
// records frequently reorder names ("Smith, John") while keeping the same
// tokens; whole-string distance catches typos the token set misses.
const (
	tokenWeight    = 0.6
	distanceWeight = 0.4
)

// Matcher scores directory members against the raw identity on an external
// record. It holds no state between calls; candidate lists are ephemeral.
type Matcher struct {
	directory MemberDirectory
	cfg       *config.Config
}

func NewMatcher(directory MemberDirectory, cfg *config.Config) *Matcher {
	return &Matcher{
		directory: directory,
		cfg:       cfg,
	}
}

// FindMatches returns scored candidates ordered best-first. The second return
// value is a failure reason (empty on a usable result): the directory being
// unreachable is reported as a reason, not an error, so callers leave the
// record unresolved instead of aborting a whole import.
func (m *Matcher) FindMatches(ctx context.Context, rawName, rawEmail string) ([]model.MatchCandidate, string, error) {
	members, err := m.directory.SearchMembers(ctx, "", false)
	if err != nil {
		m.cfg.Log.Warn("Member directory unavailable during matching", "error", err)
		return nil, model.FailureDirectoryUnavailable, nil
	}
	if len(members) == 0 {
		return nil, model.FailureNoMatch, nil
	}

	emailKey := sanitizer.NormalizeEmail(rawEmail)

	// Exact email match is authoritative: one candidate, full score.
	if emailKey != "" {
		for _, member := range members {
			if sanitizer.NormalizeEmail(member.Email) == emailKey {
				return []model.MatchCandidate{{
					MemberEmail: member.Email,
					DisplayName: member.Name,
					Score:       100,
				}}, "", nil
			}
		}
	}

	candidates := m.fuzzyCandidates(rawName, members)
	if len(candidates) == 0 {
		return nil, model.FailureNoMatch, nil
	}

	return candidates, "", nil
}

func (m *Matcher) fuzzyCandidates(rawName string, members []model.Member) []model.MatchCandidate {
	recordName := sanitizer.NormalizeName(rawName)
	recordTokens := sanitizer.NameTokens(rawName)
	if recordName == "" {
		return nil
	}

	candidates := make([]model.MatchCandidate, 0)
	for _, member := range members {
		score := scoreNames(recordName, recordTokens, member.Name)
		if score < m.cfg.MatchMinScore {
			continue
		}
		candidates = append(candidates, model.MatchCandidate{
			MemberEmail: member.Email,
			DisplayName: member.Name,
			Score:       score,
		})
	}

	// Deterministic order: score descending, then email ascending so equal
	// scores always present the same way.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].MemberEmail < candidates[j].MemberEmail
	})

	if len(candidates) > m.cfg.MatchMaxCandidates {
		candidates = candidates[:m.cfg.MatchMaxCandidates]
	}

	return candidates
}

// scoreNames combines token-set overlap with whole-string edit distance,
// scaled to [0,100].
func scoreNames(recordName string, recordTokens []string, memberRawName string) int {
	memberName := sanitizer.NormalizeName(memberRawName)
	if memberName == "" {
		return 0
	}

	if recordName == memberName {
		return 100
	}

	memberTokens := sanitizer.NameTokens(memberRawName)

	// "Smith, John" and "John Smith" are the same name: identical tokens in
	// any order count as an exact match.
	if sameTokens(recordTokens, memberTokens) {
		return 100
	}

	tokenScore := tokenOverlap(recordTokens, memberTokens)
	distScore := similarity(recordName, memberName)

	combined := tokenWeight*tokenScore + distanceWeight*distScore
	return int(math.Round(combined * 100))
}

func sameTokens(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}

	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)

	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// tokenOverlap is the Dice coefficient of the two token sets.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, token := range a {
		set[token] = true
	}

	common := 0
	for _, token := range b {
		if set[token] {
			common++
			set[token] = false
		}
	}

	return 2 * float64(common) / float64(len(a)+len(b))
}
