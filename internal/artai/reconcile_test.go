package artai

import (
	"slices"
	"testing"
)

func TestNormalizeCategorySet(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{"nil", nil, []int64{}},
		{"no duplicates", []int64{3, 1, 2}, []int64{3, 1, 2}},
		{"duplicates keep first position", []int64{2, 1, 2, 1, 3}, []int64{2, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCategorySet(tt.in)
			if got == nil {
				t.Fatal("NormalizeCategorySet() returned nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("NormalizeCategorySet(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddCategory(t *testing.T) {
	tests := []struct {
		name    string
		current []int64
		add     int64
		want    []int64
	}{
		{"to empty", nil, 4, []int64{4}},
		{"new id", []int64{1, 2}, 3, []int64{1, 2, 3}},
		{"already assigned", []int64{1, 2}, 2, []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddCategory(tt.current, tt.add); !slices.Equal(got, tt.want) {
				t.Errorf("AddCategory(%v, %d) = %v, want %v", tt.current, tt.add, got, tt.want)
			}
		})
	}
}

func TestAddCategory_DoesNotAliasInput(t *testing.T) {
	current := make([]int64, 2, 8)
	current[0], current[1] = 1, 2
	AddCategory(current, 3)
	if got := current[:3][2]; got != 0 {
		t.Errorf("AddCategory wrote into the caller's backing array: %d", got)
	}
}

func TestRemoveCategory(t *testing.T) {
	tests := []struct {
		name    string
		current []int64
		remove  int64
		want    []int64
	}{
		{"assigned id", []int64{1, 2, 3}, 2, []int64{1, 3}},
		{"unassigned id", []int64{1, 3}, 2, []int64{1, 3}},
		{"duplicated id", []int64{2, 1, 2}, 2, []int64{1}},
		{"last id", []int64{5}, 5, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoveCategory(tt.current, tt.remove); !slices.Equal(got, tt.want) {
				t.Errorf("RemoveCategory(%v, %d) = %v, want %v", tt.current, tt.remove, got, tt.want)
			}
		})
	}
}

func TestAddThenRemove_RoundTrip(t *testing.T) {
	sets := [][]int64{{}, {1}, {1, 2, 3}, {9, 4, 7}}
	for _, a := range sets {
		for c := int64(1); c <= 10; c++ {
			if slices.Contains(a, c) {
				continue
			}
			got := RemoveCategory(AddCategory(a, c), c)
			if !slices.Equal(got, a) {
				t.Errorf("remove(add(%v, %d), %d) = %v, want %v", a, c, c, got, a)
			}
		}
	}
}

func TestSameCategorySet(t *testing.T) {
	tests := []struct {
		a, b []int64
		want bool
	}{
		{[]int64{1, 2}, []int64{2, 1}, true},
		{[]int64{1, 2, 2}, []int64{1, 2}, true},
		{nil, []int64{}, true},
		{[]int64{1}, []int64{1, 2}, false},
		{[]int64{1, 3}, []int64{1, 2}, false},
	}
	for _, tt := range tests {
		if got := SameCategorySet(tt.a, tt.b); got != tt.want {
			t.Errorf("SameCategorySet(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseCategoryCSV(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{in: "3, 5,8", want: []int64{3, 5, 8}},
		{in: " 5, 3,,5 ", want: []int64{5, 3}},
		{in: "", want: []int64{}},
		{in: "3,x", wantErr: true},
		{in: "0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCategoryCSV(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategoryCSV(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !slices.Equal(got, tt.want) {
			t.Errorf("ParseCategoryCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
