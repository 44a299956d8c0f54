package digest

import "testing"

func TestHashKnownValue(t *testing.T) {
	t.Parallel()

	got, err := NewSHA256().Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHashIgnoresWhitespaceLayout(t *testing.T) {
	t.Parallel()

	h := NewSHA256()
	a, _ := h.Hash([]byte("<dt>1 ：x</dt>\n<dt>2 ：y</dt>\n"))
	b, _ := h.Hash([]byte("  <dt>1 ：x</dt>\r\n\t<dt>2 ：y</dt>"))
	if a != b {
		t.Fatalf("expected equal digests, got %s vs %s", a, b)
	}
	c, _ := h.Hash([]byte("<dt>1 ：x</dt><dt>3 ：z</dt>"))
	if a == c {
		t.Fatal("expected different content to change the digest")
	}
}
