package search

import "testing"

func docs(texts ...string) []Document {
	out := make([]Document, len(texts))
	for i, t := range texts {
		out[i] = Document{ID: string(rune('a' + i)), Text: t}
	}
	return out
}

// ---------- Options + defaultConfig ----------
func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minRunes != 3 || def.stopwords != nil || def.maxDocs != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinRunes(10)(&cfg)
	if cfg.minRunes != 10 {
		t.Fatalf("WithMinRunes failed: %d", cfg.minRunes)
	}
	WithMinRunes(-5)(&cfg) // no-op
	if cfg.minRunes != 10 {
		t.Fatalf("negative minRunes should be ignored")
	}

	WithStopwords([]string{"  The ", "", "AN"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords missing 'the': %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["an"]; !ok {
		t.Fatalf("WithStopwords missing 'an': %#v", cfg.stopwords)
	}

	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	WithMaxDocs(2)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed: %d", cfg.maxDocs)
	}
	WithMaxDocs(0)(&cfg) // no-op
	if cfg.maxDocs != 2 {
		t.Fatalf("non-positive maxDocs should be ignored")
	}
}

// ---------- NewIndex + buildIndex filters ----------
func TestBuildIndex_FiltersAndMaxDocs(t *testing.T) {
	in := docs(
		"",
		" \t \r  ",
		"short",
		"The and a",
		"Keep This Paragraph",
		"Another paragraph here with words",
	)
	idx1 := NewIndex(in, WithMinRunes(6), WithStopwords([]string{"the", "and", "a"}))
	if idx1.Len() != 2 {
		t.Fatalf("expected 2 docs, got %d", idx1.Len())
	}

	idx2 := NewIndex(in, WithMinRunes(0), WithMaxDocs(1))
	if idx2.Len() != 1 {
		t.Fatalf("maxDocs cap failed, got %d", idx2.Len())
	}
}

func TestNewIndex_KeepsDocumentIDs(t *testing.T) {
	idx := NewIndex([]Document{
		{ID: "t-1", Text: "Login button does nothing"},
		{ID: "t-2", Text: "Dark mode request"},
	})
	out := idx.TopK("login button broken", 1)
	if len(out) != 1 || out[0].ID != "t-1" {
		t.Fatalf("expected t-1, got %+v", out)
	}
	if out[0].Score <= 0 || out[0].Score > 1 {
		t.Fatalf("score out of range: %v", out[0].Score)
	}
}

// ---------- TopK branches & tie-breakers ----------
func TestTopK_BranchesAndSorting(t *testing.T) {
	empty := &index{cfg: defaultConfig(), docs: nil}
	if res := empty.TopK("x", 3); res != nil {
		t.Fatalf("empty index should return nil")
	}

	idx := NewIndex(docs("alpha beta", "alpha beta gamma"), WithMinRunes(0))
	if out := idx.TopK("   ", 2); out != nil {
		t.Fatalf("blank query should return nil")
	}

	idxStop := NewIndex(docs("alpha beta gamma"), WithStopwords([]string{"alpha", "beta"}), WithMinRunes(0))
	if out := idxStop.TopK("alpha beta", 2); out != nil {
		t.Fatalf("query becoming empty should yield nil")
	}

	// ids: a="alpha beta", b="alpha beta gamma", c="beta alpha", d="delta epsilon"
	idx2 := NewIndex(docs(
		"alpha beta",
		"alpha beta gamma",
		"beta alpha",
		"delta epsilon",
	), WithMinRunes(0))

	got := idx2.TopK("alpha beta", 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 results (k default), got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" || got[2].ID != "b" {
		t.Fatalf("unexpected order: %#v", got)
	}
	for _, r := range got {
		if r.ID == "d" {
			t.Fatalf("zero-overlap document should be excluded")
		}
	}
}

func TestTopK_KGreaterThanLen_And_LenRunesTieBreak(t *testing.T) {
	idx := NewIndex(docs(
		"alpha beta!!",
		"alpha beta",
	), WithMinRunes(0))

	out := idx.TopK("alpha beta", 10)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Snippet != "alpha beta" || out[1].Snippet != "alpha beta!!" {
		t.Fatalf("lenRunes tie-break failed: %#v", out)
	}
	if out[0].Score != 1.0 || out[1].Score != 1.0 {
		t.Fatalf("expected scores 1.0, got %+v", out)
	}
}

func TestTopK_NoOverlap_ReturnsNil(t *testing.T) {
	idx := NewIndex(docs("delta epsilon", "zeta eta theta"), WithMinRunes(0))
	if out := idx.TopK("alpha", 5); out != nil {
		t.Fatalf("expected nil for no-overlap case, got %+v", out)
	}
}

func TestTopK_UnionNonPositive_ForcesContinue(t *testing.T) {
	idx := NewIndex(docs("alpha"), WithMinRunes(0))
	ii, ok := idx.(*index)
	if !ok || len(ii.docs) != 1 {
		t.Fatalf("setup failed: %#v", idx)
	}
	ii.docs[0].tLen = 0

	if out := ii.TopK("alpha", 5); out != nil {
		t.Fatalf("expected nil results due to union<=0 path, got %+v", out)
	}
}

// ---------- Helpers ----------
func TestHelpers_TokenizeOverlapWhitespace(t *testing.T) {
	toks := tokenize("Hello HELLO 123 world", nil)
	for _, w := range []string{"hello", "world", "123"} {
		if _, ok := toks[w]; !ok {
			t.Fatalf("tokenize missing %q: %#v", w, toks)
		}
	}

	stop := map[string]struct{}{"hello": {}}
	toks2 := tokenize("Hello world", stop)
	if _, ok := toks2["hello"]; ok {
		t.Fatalf("tokenize(stopwords) should have removed 'hello': %#v", toks2)
	}

	if toks3 := tokenize("$$$ !!!", nil); toks3 != nil {
		t.Fatalf("tokenize should return nil when no words")
	}

	if overlap(nil, toks) != 0 || overlap(toks, nil) != 0 {
		t.Fatalf("overlap with nil should be 0")
	}
	if overlap(map[string]struct{}{"a": {}, "b": {}, "c": {}}, map[string]struct{}{"a": {}}) != 1 {
		t.Fatalf("overlap count wrong")
	}

	if got := normalizeWhitespace("alpha\t beta\r  gamma"); got != "alpha beta gamma" {
		t.Fatalf("normalizeWhitespace failed: %q", got)
	}
}

func TestTokenize_CaseFoldingAndAlphaNum(t *testing.T) {
	toks := tokenize("STRASSE Straße abc123", nil)
	if _, ok := toks["abc123"]; !ok {
		t.Fatalf("expected alphanumeric token: %#v", toks)
	}
	if _, ok := toks["strasse"]; !ok {
		t.Fatalf("expected folded token 'strasse': %#v", toks)
	}
	if len(toks) != 2 {
		t.Fatalf("expected ß to fold to ss, got %#v", toks)
	}
}

func TestEnglishStopwords_AreFolded(t *testing.T) {
	idx := NewIndex(docs("the login is broken"), WithStopwords(EnglishStopwords))
	out := idx.TopK("THE LOGIN", 1)
	if len(out) != 1 {
		t.Fatalf("expected match, got %+v", out)
	}
	// "the" and "is" dropped: doc {login, broken}, query {login}
	if out[0].Score != 0.5 {
		t.Fatalf("expected 0.5, got %v", out[0].Score)
	}
}

func TestTopK_MinScoreFiltersBeforeCap(t *testing.T) {
	idx := NewIndex(
		[]Document{
			{ID: "weak1", Text: "login page colours look odd today"},
			{ID: "strong", Text: "login broken"},
			{ID: "weak2", Text: "login takes long sometimes here"},
		},
		WithMinScore(0.4),
	)
	out := idx.TopK("login broken safari", 2)
	if len(out) != 1 || out[0].ID != "strong" {
		t.Fatalf("expected only the strong match, got %+v", out)
	}

	cfg := defaultConfig()
	WithMinScore(-1)(&cfg)
	if cfg.minScore != 0 {
		t.Fatalf("negative min score should be ignored")
	}
}
