package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int
		mask     []int
		wantIDs  []int
		wantMask []int
	}{
		{"short", []int{101, 7, 102}, []int{1, 1, 1}, []int{101, 7, 102, 9, 9}, []int{1, 1, 1, 0, 0}},
		{"exact", []int{1, 2, 3, 4, 5}, []int{1, 1, 1, 1, 1}, []int{1, 2, 3, 4, 5}, []int{1, 1, 1, 1, 1}},
		{"long", []int{1, 2, 3, 4, 5, 6, 7}, []int{1, 1, 1, 1, 1, 1, 1}, []int{1, 2, 3, 4, 5}, []int{1, 1, 1, 1, 1}},
		{"empty", nil, nil, []int{9, 9, 9, 9, 9}, []int{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, mask := Pad(tt.ids, tt.mask, 5, 9)
			if len(ids) != 5 || len(mask) != 5 {
				t.Fatalf("lengths: got %d/%d, want 5/5", len(ids), len(mask))
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] || mask[i] != tt.wantMask[i] {
					t.Fatalf("got %v %v, want %v %v", ids, mask, tt.wantIDs, tt.wantMask)
				}
			}
		})
	}
}

func TestPadDoesNotAliasInput(t *testing.T) {
	ids := []int{1, 2}
	out, _ := Pad(ids, []int{1, 1}, 4, 0)
	out[0] = 42
	if ids[0] != 1 {
		t.Fatal("Pad modified its input")
	}
}

func TestFromVocab(t *testing.T) {
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]", "good", "bad", "day", "##s"}
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(vocab, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	tk, err := FromVocab(path, true)
	if err != nil {
		t.Fatalf("FromVocab: %v", err)
	}

	ids, mask, err := tk.Encode("Good days")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{2, 5, 7, 8, 3}
	if len(ids) != len(want) {
		t.Fatalf("ids: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids: got %v, want %v", ids, want)
		}
	}
	if len(mask) != len(ids) {
		t.Errorf("mask length: got %d, want %d", len(mask), len(ids))
	}

	again, _, err := tk.Encode("Good days")
	if err != nil {
		t.Fatalf("Encode again: %v", err)
	}
	for i := range ids {
		if again[i] != ids[i] {
			t.Fatalf("not deterministic: %v vs %v", ids, again)
		}
	}
}
