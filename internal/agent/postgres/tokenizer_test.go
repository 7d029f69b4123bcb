package postgres

import "testing"

func TestTokenizeSchemaQualifiedIdentifier(t *testing.T) {
	tokens := tokenize("SELECT * FROM public.employees")

	var words []string
	for _, tok := range tokens {
		if tok.kind == tokenWord || (tok.kind == tokenOther && tok.text == ".") {
			words = append(words, tok.text)
		}
	}

	want := []string{"SELECT", "FROM", "public", ".", "employees"}
	if len(words) != len(want) {
		t.Fatalf("tokenize() produced %v, want a word/dot sequence matching %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, words[i], want[i])
		}
	}
}

func TestTokenizeSingleQuotedStringWithEscape(t *testing.T) {
	tokens := tokenize(`SELECT 'it''s fine'`)

	var stringTokens []token
	for _, tok := range tokens {
		if tok.kind == tokenString {
			stringTokens = append(stringTokens, tok)
		}
	}

	if len(stringTokens) != 1 {
		t.Fatalf("tokenize() found %d string tokens, want 1", len(stringTokens))
	}
	if stringTokens[0].text != `'it''s fine'` {
		t.Errorf("string token = %q, want %q", stringTokens[0].text, `'it''s fine'`)
	}
}

func TestTokenizeDollarQuotedLiteralHidesKeywords(t *testing.T) {
	tokens := tokenize(`SELECT $tag$DROP TABLE users$tag$`)

	for _, tok := range tokens {
		if tok.kind == tokenWord && tok.text == "DROP" {
			t.Fatalf("tokenize() surfaced DROP as a word token; dollar-quoted literal was not recognized: %v", tokens)
		}
	}

	var found bool
	for _, tok := range tokens {
		if tok.kind == tokenString && tok.text == "$tag$DROP TABLE users$tag$" {
			found = true
		}
	}
	if !found {
		t.Errorf("tokenize() did not produce the dollar-quoted literal as a single string token: %v", tokens)
	}
}

func TestTokenizeLineCommentIsDropped(t *testing.T) {
	tokens := tokenize("SELECT 1 -- DROP everything\nFROM t")

	for _, tok := range tokens {
		if tok.kind == tokenWord && tok.text == "DROP" {
			t.Fatalf("tokenize() did not strip a line comment: %v", tokens)
		}
	}
}
