package compression

import (
	"fmt"
	"testing"
)

func Test_sort(t *testing.T) {
	type testStruct struct {
		name string
		list []*constructNode
	}

	tests := []testStruct{}

	// 10! = 3628800 unique lists
	initialList := []*constructNode{
		{0, 1},
		{0, 2},
		{0, 3},
		{0, 4},
		{0, 5},
		{0, 6},
		{0, 7},
		{0, 8},
		{0, 9},
		{0, 10},
	}

	// create all possible permutations for the list
	allPermutations := permutate(initialList)

	// put all permutations into tests
	for idx, permutation := range allPermutations {
		tests = append(tests,
			testStruct{
				fmt.Sprintf("#%d", idx+1),
				permutation,
			})
	}

	h := Huffman{}

	// run tests
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {

			// sort permutation
			h.sort(tt.list)

			// resulting permutation must have ordered frequencies
			for idx, value := range tt.list {
				if idx > 0 && tt.list[idx-1].frequency > value.frequency {
					t.Errorf("idx: %d = %d, idx: %d = %d",
						idx-1,
						tt.list[idx-1].frequency,
						idx,
						value.frequency,
					)

				}
			}
		})
	}
}

func permutate(a []*constructNode) [][]*constructNode {
	var res [][]*constructNode
	calPermutation(a, &res, 0)
	return res
}
func calPermutation(arr []*constructNode, res *[][]*constructNode, k int) {
	for i := k; i < len(arr); i++ {
		swap(arr, i, k)
		calPermutation(arr, res, k+1)
		swap(arr, k, i)
	}
	if k == len(arr)-1 {
		r := make([]*constructNode, len(arr))
		copy(r, arr)
		*res = append(*res, r)
		return
	}
}
func swap(arr []*constructNode, i, k int) {
	arr[i], arr[k] = arr[k], arr[i]
}

func TestHuffman_Compress_Decompress(t *testing.T) {
	huffman, err := NewHuffman(DefaultFrequencyTable)
	if err != nil {
		t.Fatalf("NewHuffman: %v", err)
	}

	input := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0}
	compressed := make([]byte, len(input)*2+16)

	n, err := huffman.Compress(input, compressed)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	compressed = compressed[:n]

	decompressed := make([]byte, len(input)+16)
	m, err := huffman.Decompress(compressed, decompressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	decompressed = decompressed[:m]

	if string(decompressed) != string(input) {
		t.Errorf("round trip mismatch: got %v, want %v", decompressed, input)
	}
}

func TestNewHuffmanRejectsDuplicateFrequencies(t *testing.T) {
	var table [HuffmanMaxSymbols]uint32
	table[0] = 5
	table[1] = 5

	if _, err := NewHuffman(table); err == nil {
		t.Fatal("expected error for duplicate frequency table entries")
	}
}
