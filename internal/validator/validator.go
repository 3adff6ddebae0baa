// Package validator performs static, schema-aware analysis of ad-hoc SQL.
// It is a pragmatic lexical layer, not a parser: each heuristic is a pure
// function over the raw statement plus the schema context, so false positives
// and negatives stay auditable and the heuristics can later be replaced by a
// real tokenizer without changing the external contract.
//
// Known limitation: pattern matching both under- and over-accepts exotic SQL
// (keywords inside string literals, dialect-specific quoting). Validation is
// advisory; it never blocks execution.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/schema"
)

// allowedLeadingKeywords is the fixed allow-list a statement must begin with.
var allowedLeadingKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "WITH", "CREATE", "ALTER",
}

var (
	tableRefRegex     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	qualifiedRefRegex = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
	deleteNoTarget    = regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	updateTarget      = regexp.MustCompile(`(?i)\bUPDATE\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	whereRegex        = regexp.MustCompile(`(?i)\bWHERE\b`)
	selectStarRegex   = regexp.MustCompile(`(?i)\bSELECT\s+\*`)
	joinRegex         = regexp.MustCompile(`(?i)\bJOIN\b`)
	onClauseRegex     = regexp.MustCompile(`(?i)\bON\b`)
	crossJoinRegex    = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
	equalityPredRegex = regexp.MustCompile(`(?i)\b(?:WHERE|AND)\s+(?:([a-zA-Z_][a-zA-Z0-9_]*)\.)?([a-zA-Z_][a-zA-Z0-9_]*)\s*=`)
)

// injectionPatterns are checked in order; the first match produces the single
// injection warning for the statement.
var injectionPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i);\s*DROP\s+TABLE`), "stacked DROP TABLE statement"},
	{regexp.MustCompile(`(?i)\bUNION\s+(?:ALL\s+)?SELECT\b`), "UNION SELECT"},
	{regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`), "always-true OR condition"},
	{regexp.MustCompile(`(?i)\bOR\s+'[^']*'\s*=\s*'[^']*'`), "always-true OR condition"},
	{regexp.MustCompile(`(?i)\bxp_cmdshell\b`), "shell execution procedure"},
	{regexp.MustCompile(`(?i)\bsp_executesql\b`), "dynamic SQL execution procedure"},
	{regexp.MustCompile(`(?i)\bEXEC\s*\(`), "EXEC invocation"},
}

// Validator runs the analysis passes. It is stateless and safe for
// concurrent use; construct one per process and inject it where needed.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs five independent passes over the statement and accumulates
// their findings. Passes never short-circuit each other. IsValid is true iff
// no pass reported an error; warnings and index suggestions never affect
// validity.
func (v *Validator) Validate(sql, dialect string, sc *model.SchemaContext) *model.ValidationResult {
	res := &model.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	checkSyntax(sql, res)
	checkSchemaConformance(sql, sc, res)
	checkSecurity(sql, res)
	checkDestructive(sql, res)
	checkPerformance(sql, sc, res)

	res.IsValid = len(res.Errors) == 0
	return res
}

// checkSyntax performs lexical sanity checks: non-empty, balanced parens (by
// raw character count), a single statement, and an allow-listed leading
// keyword.
func checkSyntax(sql string, res *model.ValidationResult) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		res.Errors = append(res.Errors, "query is empty")
		return
	}

	if open, closed := strings.Count(trimmed, "("), strings.Count(trimmed, ")"); open != closed {
		res.Errors = append(res.Errors,
			fmt.Sprintf("mismatched parentheses: %d opening, %d closing", open, closed))
	}

	switch n := strings.Count(trimmed, ";"); {
	case n > 1:
		res.Errors = append(res.Errors, "multiple statements are not allowed")
	case n == 1 && strings.HasSuffix(trimmed, ";"):
		res.Warnings = append(res.Warnings, "trailing semicolon is unnecessary")
	case n == 1:
		res.Errors = append(res.Errors, "multiple statements are not allowed")
	}

	upper := strings.ToUpper(trimmed)
	for _, kw := range allowedLeadingKeywords {
		if strings.HasPrefix(upper, kw) {
			return
		}
	}
	res.Errors = append(res.Errors,
		"statement must begin with one of: "+strings.Join(allowedLeadingKeywords, ", "))
}

// checkSchemaConformance verifies referenced tables exist in the schema and
// flags unconfirmed table.column references. Unknown tables are errors;
// unconfirmed qualified references are only warnings because aliases produce
// false positives.
func checkSchemaConformance(sql string, sc *model.SchemaContext, res *model.ValidationResult) {
	if sc == nil || len(sc.Tables) == 0 {
		return
	}

	tables := map[string]*model.SchemaTable{}
	for i := range sc.Tables {
		tables[strings.ToLower(sc.Tables[i].Name)] = &sc.Tables[i]
	}

	seen := map[string]bool{}
	for _, m := range tableRefRegex.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		if _, ok := tables[lower]; !ok {
			res.Errors = append(res.Errors,
				fmt.Sprintf("table %q does not exist in the connected database", name))
		}
	}

	for _, m := range qualifiedRefRegex.FindAllStringSubmatch(sql, -1) {
		tableName, columnName := m[1], m[2]
		table, ok := tables[strings.ToLower(tableName)]
		if !ok {
			// Probably an alias; already covered by the table pass if not.
			continue
		}
		if !hasColumnFold(table, columnName) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("column %q not found on table %q (may be an alias)", columnName, tableName))
		}
	}
}

// checkSecurity flags common injection patterns and hidden-logic comment
// markers. The injection sub-check short-circuits on its first match so the
// statement gets at most one injection warning.
func checkSecurity(sql string, res *model.ValidationResult) {
	for _, p := range injectionPatterns {
		if p.re.MatchString(sql) {
			res.Warnings = append(res.Warnings,
				"possible SQL injection pattern: "+p.desc)
			break
		}
	}

	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") {
		res.Warnings = append(res.Warnings,
			"comment markers found; review for hidden logic")
	}
}

// checkDestructive warns about statements that affect all rows or drop
// objects. These are warnings, never errors: the tenant owns the database.
func checkDestructive(sql string, res *model.ValidationResult) {
	hasWhere := whereRegex.MatchString(sql)

	if m := deleteNoTarget.FindStringSubmatch(sql); m != nil && !hasWhere {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("DELETE without WHERE will remove all rows from %q", m[1]))
	}
	if m := updateTarget.FindStringSubmatch(sql); m != nil && !hasWhere {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("UPDATE without WHERE will modify all rows in %q", m[1]))
	}

	upper := strings.ToUpper(sql)
	if strings.Contains(upper, "DROP ") {
		res.Warnings = append(res.Warnings, "DROP is destructive and cannot be undone")
	}
	if strings.Contains(upper, "TRUNCATE ") {
		res.Warnings = append(res.Warnings, "TRUNCATE removes all rows and cannot be undone")
	}
}

// checkPerformance flags SELECT *, possible cartesian products, and equality
// predicates on unindexed columns, for which it synthesizes CREATE INDEX
// suggestions named deterministically from table and column.
func checkPerformance(sql string, sc *model.SchemaContext, res *model.ValidationResult) {
	if selectStarRegex.MatchString(sql) {
		res.Warnings = append(res.Warnings,
			"SELECT * returns all columns; prefer an explicit column list")
	}

	if loc := joinRegex.FindStringIndex(sql); loc != nil {
		if !onClauseRegex.MatchString(sql[loc[1]:]) {
			res.Warnings = append(res.Warnings,
				"JOIN without ON clause may produce a cartesian product")
		}
	}
	if crossJoinRegex.MatchString(sql) {
		res.Warnings = append(res.Warnings,
			"CROSS JOIN multiplies row counts; confirm this is intentional")
	}

	if sc == nil {
		return
	}
	suggested := map[string]bool{}
	for _, m := range equalityPredRegex.FindAllStringSubmatch(sql, -1) {
		qualifier, column := m[1], m[2]
		table := resolvePredicateTable(sc, qualifier, column)
		if table == nil {
			continue
		}
		if columnIsIndexed(table, column) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s(%s);",
			schema.IndexName(table.Name, column), table.Name, column)
		if !suggested[stmt] {
			suggested[stmt] = true
			res.SuggestedIndexes = append(res.SuggestedIndexes, stmt)
		}
	}
}

// resolvePredicateTable finds the table an equality predicate refers to:
// the qualifier when present, otherwise the first schema table that has the
// column.
func resolvePredicateTable(sc *model.SchemaContext, qualifier, column string) *model.SchemaTable {
	if qualifier != "" {
		for i := range sc.Tables {
			if strings.EqualFold(sc.Tables[i].Name, qualifier) && hasColumnFold(&sc.Tables[i], column) {
				return &sc.Tables[i]
			}
		}
		return nil
	}
	for i := range sc.Tables {
		if hasColumnFold(&sc.Tables[i], column) {
			return &sc.Tables[i]
		}
	}
	return nil
}

// columnIsIndexed reports whether the column is covered by an index or is
// part of the primary key (which every engine indexes implicitly).
func columnIsIndexed(table *model.SchemaTable, column string) bool {
	if table.HasIndexOn(column) {
		return true
	}
	for _, pk := range table.PrimaryKey {
		if strings.EqualFold(pk, column) {
			return true
		}
	}
	return false
}

func hasColumnFold(table *model.SchemaTable, column string) bool {
	for i := range table.Columns {
		if strings.EqualFold(table.Columns[i].Name, column) {
			return true
		}
	}
	return false
}
