package postgres

import "strings"

// forbiddenKeywords is the write/DDL blacklist of spec §4.4 step 3. The
// gate still defaults to a whitelist posture where it can (schemas,
// required SELECT); the keyword list exists because Postgres has no single
// "this statement mutates state" syntax marker to whitelist against.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"TRUNCATE": true, "ALTER": true, "CREATE": true, "GRANT": true,
	"REVOKE": true, "COPY": true, "CALL": true, "DO": true,
	"VACUUM": true, "ANALYZE": true, "LOCK": true,
}

// SafetyViolation describes why the gate rejected a candidate query.
type SafetyViolation struct {
	Reason string
}

func (v SafetyViolation) Error() string { return v.Reason }

// SafetyGate enforces spec §4.4 step 3 against one candidate SQL string:
// single statement, no write/DDL keyword outside a literal, only allowed
// schemas referenced, and a mandatory SELECT. It is pure and side-effect
// free so it can be exercised directly in tests without a database.
type SafetyGate struct {
	AllowedSchemas map[string]bool
}

// NewSafetyGate builds a gate whose schema allow-list defaults to every
// non-system schema in the tenant's snapshot (spec §4.4: "default
// allow-list = all non-system schemas of the tenant DB").
func NewSafetyGate(snapshot *SchemaSnapshot) *SafetyGate {
	allowed := make(map[string]bool)
	for _, t := range snapshot.Tables {
		allowed[strings.ToLower(t.Schema)] = true
	}
	return &SafetyGate{AllowedSchemas: allowed}
}

// Check runs every hard-reject rule against sql and returns the first
// violation found, or nil if the statement passes.
func (g *SafetyGate) Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return SafetyViolation{"empty statement"}
	}

	tokens := tokenize(trimmed)

	if err := g.checkSingleStatement(tokens); err != nil {
		return err
	}
	if err := g.checkNoForbiddenKeywords(tokens); err != nil {
		return err
	}
	if err := g.checkHasSelect(tokens); err != nil {
		return err
	}
	if err := g.checkAllowedSchemas(tokens); err != nil {
		return err
	}
	return nil
}

// checkSingleStatement rejects a second statement separator (a semicolon
// outside a literal) that isn't just a single trailing terminator.
func (g *SafetyGate) checkSingleStatement(tokens []token) error {
	semicolons := 0
	for i, t := range tokens {
		if t.kind == tokenPunct && t.text == ";" {
			isTrailing := i == len(tokens)-1
			if !isTrailing {
				return SafetyViolation{"multiple statements: unexpected statement separator"}
			}
			semicolons++
		}
	}
	if semicolons > 1 {
		return SafetyViolation{"multiple statements: more than one terminator"}
	}
	return nil
}

func (g *SafetyGate) checkNoForbiddenKeywords(tokens []token) error {
	for _, t := range tokens {
		if t.kind != tokenWord {
			continue
		}
		if forbiddenKeywords[strings.ToUpper(t.text)] {
			return SafetyViolation{"disallowed statement keyword: " + strings.ToUpper(t.text)}
		}
	}
	return nil
}

func (g *SafetyGate) checkHasSelect(tokens []token) error {
	for _, t := range tokens {
		if t.kind == tokenWord && strings.EqualFold(t.text, "SELECT") {
			return nil
		}
	}
	return SafetyViolation{"no SELECT keyword found"}
}

// checkAllowedSchemas rejects any "schema.table" table reference whose
// schema isn't in the allow-list. It only inspects the qualified identifier
// immediately following a FROM or JOIN keyword, i.e. an actual table
// reference: a "word.word" pair appearing anywhere else in the statement
// (WHERE, SELECT list, ON, GROUP BY, ...) is overwhelmingly an
// alias-qualified column reference, not a schema, and flagging those would
// reject ordinary joins that alias their tables.
func (g *SafetyGate) checkAllowedSchemas(tokens []token) error {
	for i, t := range tokens {
		if t.kind != tokenWord {
			continue
		}
		upper := strings.ToUpper(t.text)
		if upper != "FROM" && upper != "JOIN" {
			continue
		}
		j := i + 1
		if j >= len(tokens) || tokens[j].kind != tokenWord {
			continue
		}
		if j+2 >= len(tokens) || tokens[j+1].kind != tokenOther || tokens[j+1].text != "." || tokens[j+2].kind != tokenWord {
			continue
		}
		schema := strings.ToLower(tokens[j].text)
		switch schema {
		case "pg_catalog", "information_schema", "pg_toast":
			return SafetyViolation{"forbidden schema referenced: " + schema}
		}
		if !g.AllowedSchemas[schema] {
			return SafetyViolation{"schema not in tenant allow-list: " + schema}
		}
	}
	return nil
}
