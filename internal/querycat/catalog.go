// Package querycat loads named, parameterized SQL fragments from text resources. A catalog file is a sequence of
// directive lines and SQL text:
//
//	-- :name get_page
//	SELECT page_id, title, latest_revision FROM pages
//	WHERE guild_id = $1 AND lower(title) = lower($2)
//
//	-- :with_content
//	, c.body
//
// A "-- :name <identifier>" directive opens a named fragment; everything until the next directive belongs to it. A
// "-- :<clause>" directive (no identifier beyond the clause name) opens a composable clause instead, which a caller
// can splice into a query via Query's variadic clause names. This mirrors the Jinja-templated optional-block SQL the
// system this module replaces used, without requiring a templating engine.
package querycat

import (
	"bufio"
	"fmt"
	"io/fs"
	"strings"
)

const (
	namePrefix   = "-- :name "
	clausePrefix = "-- :"
)

// Catalog holds the named fragments and clauses parsed from one or more source files.
type Catalog struct {
	fragments map[string]fragment
}

type fragment struct {
	body    string
	clauses map[string]string
}

// Load parses every file matching pattern within fsys into a Catalog. It fails if any "-- :name" fragment is empty,
// if a fragment name is defined twice, or if a clause directive appears outside of a fragment.
func Load(fsys fs.FS, pattern string) (*Catalog, error) {
	paths, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob catalog files %q: %w", pattern, err)
	}

	cat := &Catalog{fragments: make(map[string]fragment)}
	for _, path := range paths {
		if err := cat.loadFile(fsys, path); err != nil {
			return nil, fmt.Errorf("load catalog file %q: %w", path, err)
		}
	}
	return cat, nil
}

func (c *Catalog) loadFile(fsys fs.FS, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var (
		curName    string
		curClause  string
		curLines   []string
		frags      = map[string]fragment{}
		clauseText = map[string]string{}
	)

	flush := func() {
		text := strings.TrimRight(strings.Join(curLines, "\n"), "\n")
		if curClause != "" {
			clauseText[curClause] = text
		} else if curName != "" {
			frags[curName] = fragment{body: text}
		}
		curLines = nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, namePrefix):
			flush()
			curName = strings.TrimSpace(strings.TrimPrefix(line, namePrefix))
			curClause = ""
		case strings.HasPrefix(line, clausePrefix):
			if curName == "" && len(frags) == 0 {
				return fmt.Errorf("clause %q appears before any fragment", strings.TrimSpace(strings.TrimPrefix(line, clausePrefix)))
			}
			flush()
			curClause = strings.TrimSpace(strings.TrimPrefix(line, clausePrefix))
			curName = ""
		default:
			if curName != "" || curClause != "" {
				curLines = append(curLines, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	flush()

	for name, frag := range frags {
		if strings.TrimSpace(frag.body) == "" {
			return fmt.Errorf("fragment %q has no body", name)
		}
		if _, exists := c.fragments[name]; exists {
			return fmt.Errorf("fragment %q defined twice", name)
		}
		frag.clauses = clauseText
		c.fragments[name] = frag
	}
	return nil
}

// Query returns the SQL text for the named fragment with the given clauses spliced in, in the order named. Query
// fails if name is unknown or any clause name is unknown for that fragment's file.
func (c *Catalog) Query(name string, clauses ...string) (string, error) {
	frag, ok := c.fragments[name]
	if !ok {
		return "", fmt.Errorf("querycat: unknown query %q", name)
	}

	sql := frag.body
	for _, clauseName := range clauses {
		text, ok := frag.clauses[clauseName]
		if !ok {
			return "", fmt.Errorf("querycat: unknown clause %q for query %q", clauseName, name)
		}
		sql += "\n" + text
	}
	return sql, nil
}

// MustQuery is like Query but panics on error. Intended for call sites building a fixed query at init time from a
// catalog that was already validated by Load.
func (c *Catalog) MustQuery(name string, clauses ...string) string {
	sql, err := c.Query(name, clauses...)
	if err != nil {
		panic(err)
	}
	return sql
}
