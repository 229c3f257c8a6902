// Package tally turns raw per-unit result documents into domain tallies.
package tally

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Feed document keys.
const (
	keyLastUpdate = "hg"
	keyUnit       = "cdabr"
	keyCounted    = "pst"
	keyCandidates = "cand"
	keyName       = "nm"
	keyVotes      = "vap"
	keyPercent    = "pvap"
)

var (
	titleCaser = cases.Title(language.BrazilianPortuguese)

	// Feed decimals are plain digits with an optional comma fraction.
	localeDecimal = regexp.MustCompile(`^[0-9]+(,[0-9]+)?$`)
)

// Extract parses one unit's result document. Any missing or unparsable field
// fails the whole document with domain.ErrMalformedResult.
func Extract(doc json.RawMessage) (domain.UnitTally, error) {
	if !gjson.ValidBytes(doc) {
		return domain.UnitTally{}, malformed("document is not valid JSON")
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return domain.UnitTally{}, malformed("document is not an object")
	}

	lastUpdate, err := requireString(root, keyLastUpdate)
	if err != nil {
		return domain.UnitTally{}, err
	}
	unit, err := requireString(root, keyUnit)
	if err != nil {
		return domain.UnitTally{}, err
	}
	counted, err := requirePercent(root, keyCounted)
	if err != nil {
		return domain.UnitTally{}, err
	}

	cands := root.Get(keyCandidates)
	if !cands.IsArray() {
		return domain.UnitTally{}, malformed("missing %q array", keyCandidates)
	}

	tally := domain.UnitTally{
		Unit:           domain.UnitCode(strings.ToUpper(strings.TrimSpace(unit))),
		LastUpdate:     lastUpdate,
		CountedPercent: counted,
	}

	var candErr error
	cands.ForEach(func(idx, cand gjson.Result) bool {
		c, err := extractCandidate(cand)
		if err != nil {
			candErr = fmt.Errorf("candidate %d: %w", idx.Int(), err)
			return false
		}
		tally.Candidates = append(tally.Candidates, c)
		return true
	})
	if candErr != nil {
		return domain.UnitTally{}, candErr
	}

	return tally, nil
}

func extractCandidate(cand gjson.Result) (domain.CandidateTally, error) {
	if !cand.IsObject() {
		return domain.CandidateTally{}, malformed("candidate is not an object")
	}
	name, err := requireString(cand, keyName)
	if err != nil {
		return domain.CandidateTally{}, err
	}
	votes, err := requireVotes(cand, keyVotes)
	if err != nil {
		return domain.CandidateTally{}, err
	}
	pct, err := requirePercent(cand, keyPercent)
	if err != nil {
		return domain.CandidateTally{}, err
	}

	return domain.CandidateTally{
		Name:         TitleName(name),
		Votes:        votes,
		SharePercent: pct,
	}, nil
}

// TitleName normalizes a feed name such as "JAIR BOLSONARO" to "Jair Bolsonaro".
func TitleName(name string) string {
	return titleCaser.String(strings.Join(strings.Fields(name), " "))
}

// ParseLocaleDecimal parses a feed decimal such as "97,52". The feed never
// uses thousands separators, signs, exponents or a dot as decimal mark.
func ParseLocaleDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !localeDecimal.MatchString(s) {
		return 0, fmt.Errorf("invalid decimal %q", s)
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid decimal %q", s)
	}
	return v, nil
}

func requireString(r gjson.Result, key string) (string, error) {
	v := r.Get(key)
	if !v.Exists() || v.Type != gjson.String {
		return "", malformed("missing %q", key)
	}
	if strings.TrimSpace(v.Str) == "" {
		return "", malformed("empty %q", key)
	}
	return v.Str, nil
}

func requirePercent(r gjson.Result, key string) (float64, error) {
	raw, err := requireString(r, key)
	if err != nil {
		return 0, err
	}
	pct, err := ParseLocaleDecimal(raw)
	if err != nil {
		return 0, malformed("%q is not a decimal: %q", key, raw)
	}
	if pct < 0 || pct > 100 {
		return 0, malformed("%q out of range: %v", key, pct)
	}
	return pct, nil
}

func requireVotes(r gjson.Result, key string) (int64, error) {
	raw, err := requireString(r, key)
	if err != nil {
		return 0, err
	}
	votes, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, malformed("%q is not an integer: %q", key, raw)
	}
	if votes < 0 {
		return 0, malformed("%q is negative: %d", key, votes)
	}
	return votes, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedResult, fmt.Sprintf(format, args...))
}
