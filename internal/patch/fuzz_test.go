package patch

import (
	"testing"
)

func FuzzParsePairs(f *testing.F) {
	// Seed corpus
	f.Add(`class='visual' group='2'`)
	f.Add(`a:='x';b="y"`)
	f.Add(`cond='1':new='2'`)
	f.Add(`key='value with spaces, commas; and :colons'`)
	f.Add(`garbage`)
	f.Add(`k='unterminated`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, data string) {
		if len(data) > 4096 {
			data = data[:4096]
		}

		pairs := ParsePairs(testCtx(), data)

		seen := map[string]bool{}
		for _, p := range pairs {
			if p.Key == "" {
				t.Fatalf("empty key in %q", data)
			}
			for i := 0; i < len(p.Key); i++ {
				if !isIdentChar(p.Key[i]) {
					t.Fatalf("key %q contains non-identifier byte", p.Key)
				}
			}
			if seen[p.Key] {
				t.Fatalf("duplicate key %q survived deduplication", p.Key)
			}
			seen[p.Key] = true
		}
	})
}

func FuzzTopLevelColon(f *testing.F) {
	// Seed corpus
	f.Add(`cond='1':new='2'`)
	f.Add(`a:='x'`)
	f.Add(`key='a:b'`)
	f.Add(`:`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, data string) {
		idx := topLevelColon(data)
		if idx == -1 {
			return
		}
		if idx < 0 || idx >= len(data) || data[idx] != ':' {
			t.Fatalf("index %d does not point at a colon in %q", idx, data)
		}
		if idx+1 < len(data) && data[idx+1] == '=' {
			t.Fatalf("index %d points at an assignment glyph in %q", idx, data)
		}
	})
}
