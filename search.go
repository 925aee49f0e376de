package strata

import (
	"context"
	"fmt"
	"strings"
)

// SearchOptions adjusts TextSearch behavior.
type SearchOptions struct {
	CaseSensitive bool
}

// likePattern translates a glob pattern (* and ? wildcards) into a LIKE
// predicate, anchored loosely on both sides so the pattern matches anywhere
// in the text. Every pattern translates: LIKE metacharacters are escaped,
// and the empty pattern degrades to the maximally permissive predicate,
// leaving precision entirely to the caller-side filter.
func likePattern(glob string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('%')
	return b.String()
}

// lineMatches reports whether one line matches the glob pattern, by the
// same rules the backend predicate approximates.
func lineMatches(line, glob string, caseSensitive bool) bool {
	if !caseSensitive {
		line = strings.ToLower(line)
		glob = strings.ToLower(glob)
	}
	return globMatch(line, glob)
}

// globMatch is substring glob matching: the pattern may match anywhere in
// the line, with * matching any run and ? matching one character.
func globMatch(s, pattern string) bool {
	if pattern == "" {
		return true
	}
	for i := 0; i <= len(s); i++ {
		if globHere(s[i:], pattern) {
			return true
		}
	}
	return false
}

func globHere(s, pattern string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := 0; i <= len(s); i++ {
				if globHere(s[i:], pattern[1:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s, pattern = s[1:], pattern[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s, pattern = s[1:], pattern[1:]
		}
	}
	return true
}

// TextSearch finds documents in a container whose body text matches the
// glob pattern and returns, per document name, the matching lines. The
// backend predicate narrows candidates with LIKE against the latest
// revisions' text values; exact line-level matching and case handling are
// finalized here on the fetched values.
func (s *Store) TextSearch(ctx context.Context, pattern, container string, opts SearchOptions) (map[string][]string, error) {
	containerID, err := s.containerID(ctx, s.db, container)
	if err != nil {
		return nil, err
	}
	textKindID, err := s.names.resolveOne(ctx, s.db, SectionText)
	if err != nil {
		return nil, err
	}

	op := "ILIKE"
	if opts.CaseSensitive {
		op = "LIKE"
	}
	query := fmt.Sprintf(`
		SELECT n.name, v.value
		FROM strata_revisions r
		JOIN strata_names n ON n.id = r.name_id
		JOIN strata_values_text v ON v.revision_id = r.id
		JOIN strata_fields f ON f.id = v.field_id
		WHERE r.namespace = $1 AND r.container_id = $2 AND r.version >= 1
		  AND f.kind_id = $3
		  AND v.value %s $4
		ORDER BY n.name`, op)

	rows, err := s.db.QueryContext(ctx, query, nsLatest, containerID, textKindID, likePattern(pattern))
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		for _, line := range strings.Split(value, "\n") {
			if lineMatches(line, pattern, opts.CaseSensitive) {
				out[name] = append(out[name], line)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
