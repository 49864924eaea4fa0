package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7}, // no trimming
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
		wantOffset          int
	}{
		{0, 0, 1, 10, 0},
		{-4, -1, 1, 10, 0},
		{3, 20, 3, 20, 40},
		{2, 500, 2, 100, 100},
		{1, 100, 1, 100, 0},
	}
	for _, tc := range cases {
		p, l := ClampPage(tc.page, tc.limit, 10, 100)
		if p != tc.wantPage || l != tc.wantLimit {
			t.Fatalf("ClampPage(%d,%d) = %d,%d; want %d,%d", tc.page, tc.limit, p, l, tc.wantPage, tc.wantLimit)
		}
		if off := Offset(p, l); off != tc.wantOffset {
			t.Fatalf("Offset(%d,%d) = %d; want %d", p, l, off, tc.wantOffset)
		}
	}
	if Offset(0, 10) != 0 {
		t.Fatalf("Offset of page 0 must be 0")
	}
}
