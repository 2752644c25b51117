// Package prompt assembles the final generation prompt sent to a
// provider from a Segment's raw prompt text, its character roster, scene
// and prop metadata, and any director intent (spec §4.6 step 2).
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Character is one entry in a segment's asset.characters list.
type Character struct {
	ID    string
	Name  string
	Scene string
}

// Asset groups the scene/props/characters metadata attached to a Segment.
type Asset struct {
	Scene      string
	Props      []string
	Characters []Character
}

// Segment is the minimal view this package needs; callers project their
// richer domain type down to this shape.
type Segment struct {
	PromptText     string
	Asset          *Asset
	DirectorIntent string
}

var (
	quotedSpanPattern = regexp.MustCompile(`("[^"]*"|“[^”]*”)`)
	idTokenPattern    = regexp.MustCompile(`(@[a-zA-Z0-9_]+)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Build assembles the final prompt exactly per spec §4.6 step 2: inject
// character ids, append scene/props, append director intent, enforce
// spacing around @id tokens, then collapse whitespace.
func Build(seg Segment) string {
	var characters []Character
	if seg.Asset != nil {
		characters = seg.Asset.Characters
	}

	final := injectCharacterIDs(strings.TrimSpace(seg.PromptText), characters)

	var assetInfo []string
	if seg.Asset != nil {
		if seg.Asset.Scene != "" {
			assetInfo = append(assetInfo, fmt.Sprintf("Scene: %s", seg.Asset.Scene))
		}
		if len(seg.Asset.Props) > 0 {
			assetInfo = append(assetInfo, fmt.Sprintf("Props: %s", strings.Join(seg.Asset.Props, ", ")))
		}
	}
	if len(assetInfo) > 0 {
		final += fmt.Sprintf(" [%s]", strings.Join(assetInfo, " | "))
	}

	if seg.DirectorIntent != "" {
		final += fmt.Sprintf(" (Director Note: %s)", seg.DirectorIntent)
	}

	final = idTokenPattern.ReplaceAllString(final, " $1 ")
	final = whitespacePattern.ReplaceAllString(final, " ")
	return strings.TrimSpace(final)
}

// injectCharacterIDs rewrites character name occurrences to their @id
// form, longest name first so one name can't shadow a longer name sharing
// its prefix. Text inside ASCII or CJK quotes is never touched.
//
// Strict mode activates when the text already uses bracketed "[Name]"
// for any known character; in that mode only bracketed occurrences are
// replaced and bare names are left alone. Otherwise both bracketed and
// bare occurrences are replaced (legacy mode).
func injectCharacterIDs(text string, characters []Character) string {
	if len(characters) == 0 {
		return text
	}

	sorted := make([]Character, len(characters))
	copy(sorted, characters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})

	strictMode := false
	for _, c := range sorted {
		if strings.Contains(text, "["+c.Name+"]") {
			strictMode = true
			break
		}
	}

	for _, c := range sorted {
		if c.ID == "" {
			continue
		}
		replacement := c.ID + " "
		escaped := regexp.QuoteMeta(c.Name)

		var pattern *regexp.Regexp
		if strictMode {
			pattern = regexp.MustCompile(`("[^"]*"|“[^”]*”)|(\[` + escaped + `\])`)
		} else {
			pattern = regexp.MustCompile(`("[^"]*"|“[^”]*”)|(\[` + escaped + `\])|(` + escaped + `)`)
		}

		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			if quotedSpanPattern.MatchString(match) && quotedSpanPattern.FindString(match) == match {
				return match // quoted span: leave untouched
			}
			return replacement
		})
	}

	return text
}
