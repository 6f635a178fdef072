// Package sqlcheck classifies SQL text before it reaches the analytics
// database: statement kinds, the read-only guard used for agent generated
// SQL, statement splitting and best effort table extraction.
package sqlcheck

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"vitess.io/vitess/go/vt/sqlparser"
)

// Kind is the broad category of a statement.
type Kind int

// Set of statement kinds.
const (
	KindUnknown Kind = iota
	KindSelect
	KindShow
	KindDescribe
	KindExplain
	KindPragma
	KindMutation
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindSelect:   "select",
	KindShow:     "show",
	KindDescribe: "describe",
	KindExplain:  "explain",
	KindPragma:   "pragma",
	KindMutation: "mutation",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Set of errors returned by the guards in this package.
var (
	ErrEmpty       = errors.New("empty statement")
	ErrNotReadOnly = errors.New("statement is not read-only")
)

// =============================================================================

var fenceRE = regexp2.MustCompile("^\\s*```[a-zA-Z]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```\\s*$", regexp2.Singleline)

// Split breaks a script into statements on semicolons outside string
// literals, quoted identifiers, dollar quoted bodies and comments. Block
// comments nest the way DuckDB nests them. Statements holding only
// comments are dropped.
func Split(script string) []string {
	var stmts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" && stripComments(s) != "" {
			stmts = append(stmts, s)
		}
	}

	start := 0
	for i := 0; i < len(script); {
		switch c := script[i]; {
		case c == ';':
			add(script[start:i])
			i++
			start = i

		case c == '\'':
			i = skipQuoted(script, i, '\'', isEscapeString(script, i))

		case c == '"':
			i = skipQuoted(script, i, '"', false)

		case strings.HasPrefix(script[i:], "--"):
			i = skipLine(script, i)

		case strings.HasPrefix(script[i:], "/*"):
			i = skipBlock(script, i)

		case c == '$':
			i = skipDollar(script, i)

		default:
			i++
		}
	}
	add(script[start:])

	return stmts
}

// StripFences removes a surrounding markdown code fence, as models often
// wrap the SQL they produce in one.
func StripFences(s string) string {
	m, err := fenceRE.FindStringMatch(s)
	if err != nil || m == nil {
		return strings.TrimSpace(s)
	}

	return strings.TrimSpace(m.GroupByNumber(1).String())
}

// Classify returns the kind of the first statement in sql.
func Classify(sql string) Kind {
	word := firstKeyword(sql)

	switch word {
	case "":
		return KindUnknown
	case "SELECT", "WITH", "FROM", "VALUES", "TABLE":
		return KindSelect
	case "SHOW":
		return KindShow
	case "DESCRIBE", "DESC", "SUMMARIZE":
		return KindDescribe
	case "EXPLAIN":
		return KindExplain
	case "PRAGMA":
		return KindPragma
	case "COPY", "ATTACH", "DETACH", "INSTALL", "LOAD", "CHECKPOINT", "VACUUM", "EXPORT", "IMPORT", "CALL":
		return KindMutation
	}

	switch sqlparser.Preview(stripComments(sql)) {
	case sqlparser.StmtSelect:
		return KindSelect
	case sqlparser.StmtShow:
		return KindShow
	case sqlparser.StmtExplain:
		return KindDescribe
	case sqlparser.StmtInsert, sqlparser.StmtReplace, sqlparser.StmtUpdate, sqlparser.StmtDelete,
		sqlparser.StmtDDL, sqlparser.StmtSet, sqlparser.StmtUse, sqlparser.StmtPriv,
		sqlparser.StmtBegin, sqlparser.StmtCommit, sqlparser.StmtRollback:
		return KindMutation
	}

	return KindUnknown
}

// IsExploratory reports whether the statement only inspects the schema,
// such as SHOW TABLES or DESCRIBE orders.
func IsExploratory(sql string) bool {
	switch Classify(sql) {
	case KindShow, KindDescribe:
		return true
	}

	return false
}

// ReadOnly returns nil when every statement in sql only reads. EXPLAIN is
// judged by the statement it explains, since EXPLAIN ANALYZE runs it, and
// only the catalog PRAGMAs are accepted.
func ReadOnly(sql string) error {
	stmts := Split(sql)
	if len(stmts) == 0 {
		return ErrEmpty
	}

	for _, stmt := range stmts {
		if err := readOnly(stmt); err != nil {
			return err
		}
	}

	return nil
}

var readPragmas = map[string]bool{
	"TABLE_INFO":           true,
	"SHOW":                 true,
	"SHOW_TABLES":          true,
	"SHOW_TABLES_EXPANDED": true,
	"SHOW_DATABASES":       true,
	"DATABASE_LIST":        true,
	"DATABASE_SIZE":        true,
	"STORAGE_INFO":         true,
	"FUNCTIONS":            true,
	"COLLATIONS":           true,
	"VERSION":              true,
	"PLATFORM":             true,
}

func readOnly(stmt string) error {
	switch k := Classify(stmt); k {
	case KindSelect, KindShow, KindDescribe:
		return nil

	case KindExplain:
		rest := afterKeyword(stmt)
		if w := firstKeyword(rest); w == "ANALYZE" || w == "ANALYSE" {
			rest = afterKeyword(rest)
		}
		if firstKeyword(rest) == "" {
			return fmt.Errorf("explain without a statement: %w", ErrNotReadOnly)
		}
		return readOnly(rest)

	case KindPragma:
		name := firstKeyword(afterKeyword(stmt))
		if !readPragmas[name] {
			return fmt.Errorf("pragma %q: %w", strings.ToLower(name), ErrNotReadOnly)
		}
		return nil

	default:
		return fmt.Errorf("%s statement %q: %w", k, firstKeyword(stmt), ErrNotReadOnly)
	}
}

// Tables returns the table names referenced by sql, sorted and without
// common table expressions. The parser speaks the MySQL dialect, so DuckDB
// specific syntax such as :: casts returns an error.
func Tables(sql string) ([]string, error) {
	stmt, err := sqlparser.NewTestParser().Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	ctes := make(map[string]bool)
	found := make(map[string]bool)

	err = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.CommonTableExpr:
			ctes[strings.ToLower(n.ID.String())] = true

		case *sqlparser.AliasedTableExpr:
			if name := sqlparser.GetTableName(n.Expr).String(); name != "" {
				found[strings.ToLower(name)] = true
			}
		}
		return true, nil
	}, stmt)
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	tables := make([]string, 0, len(found))
	for name := range found {
		if !ctes[name] {
			tables = append(tables, name)
		}
	}
	slices.Sort(tables)

	return tables, nil
}

// =============================================================================

// stripComments removes leading whitespace, -- line comments and /* */
// block comments.
func stripComments(sql string) string {
	s := strings.TrimSpace(sql)

	for {
		switch {
		case strings.HasPrefix(s, "--"):
			s = strings.TrimSpace(s[skipLine(s, 0):])

		case strings.HasPrefix(s, "/*"):
			s = strings.TrimSpace(s[skipBlock(s, 0):])

		default:
			return s
		}
	}
}

func firstKeyword(sql string) string {
	s, end := keyword(sql)
	return strings.ToUpper(s[:end])
}

// afterKeyword returns sql with its leading comments and first keyword
// removed.
func afterKeyword(sql string) string {
	s, end := keyword(sql)
	return s[end:]
}

// keyword returns sql without leading comments and the end of its first word.
func keyword(sql string) (string, int) {
	s := strings.TrimLeft(stripComments(sql), "( \t\r\n")

	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if end < 0 {
		end = len(s)
	}

	return s, end
}

// =============================================================================

// skipQuoted returns the index just past the literal opening at i. A doubled
// quote stays inside the literal, as does a backslash escape when backslash
// is set. An unterminated literal runs to the end of s.
func skipQuoted(s string, i int, quote byte, backslash bool) int {
	for j := i + 1; j < len(s); j++ {
		switch {
		case backslash && s[j] == '\\':
			j++

		case s[j] == quote:
			if j+1 < len(s) && s[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}

	return len(s)
}

// isEscapeString reports whether the quote at i opens an E'...' literal.
func isEscapeString(s string, i int) bool {
	if i == 0 || (s[i-1] != 'e' && s[i-1] != 'E') {
		return false
	}

	return i == 1 || !isIdent(s[i-2])
}

func skipLine(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}

	return len(s)
}

func skipBlock(s string, i int) int {
	depth := 0
	for j := i; j < len(s); {
		switch {
		case strings.HasPrefix(s[j:], "/*"):
			depth++
			j += 2

		case strings.HasPrefix(s[j:], "*/"):
			depth--
			j += 2
			if depth == 0 {
				return j
			}

		default:
			j++
		}
	}

	return len(s)
}

// skipDollar returns the index just past a $tag$ ... $tag$ body opening at
// i, or i+1 when the dollar sign is a parameter such as $1.
func skipDollar(s string, i int) int {
	if i > 0 && isIdent(s[i-1]) {
		return i + 1
	}

	j := i + 1
	for j < len(s) && isIdent(s[j]) {
		j++
	}
	if j >= len(s) || s[j] != '$' || (j > i+1 && s[i+1] >= '0' && s[i+1] <= '9') {
		return i + 1
	}

	tag := s[i : j+1]
	if k := strings.Index(s[j+1:], tag); k >= 0 {
		return j + 1 + k + len(tag)
	}

	return len(s)
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
