package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_NonOverlappingEdits(t *testing.T) {
	base := []byte("a\nb\nc\nd\ne\n")
	ours := []byte("A\nb\nc\nd\ne\n")
	theirs := []byte("a\nb\nc\nd\nE\n")

	res := Merge(base, ours, theirs, Options{})

	assert.False(t, res.Conflict)
	assert.Equal(t, "A\nb\nc\nd\nE\n", string(res.Content))
}

func TestMerge_IdenticalEditsTakenOnce(t *testing.T) {
	base := []byte("a\nb\nc\n")
	ours := []byte("a\nB\nc\nd\n")
	theirs := []byte("a\nB\nc\n")

	res := Merge(base, ours, theirs, Options{})

	assert.False(t, res.Conflict)
	assert.Equal(t, "a\nB\nc\nd\n", string(res.Content))
}

func TestMerge_OverlappingEditsConflict(t *testing.T) {
	base := []byte("a\nb\nc\n")
	ours := []byte("a\nB1\nc\n")
	theirs := []byte("a\nB2\nc\n")

	res := Merge(base, ours, theirs, Options{OursLabel: "mine", TheirsLabel: "origin"})

	assert.True(t, res.Conflict)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, "a\n<<<<<<< mine\nB1\n=======\nB2\n>>>>>>> origin\nc\n", string(res.Content))
	assert.True(t, HasConflictMarkers(res.Content))
}

func TestMerge_BothAddToEmptyBase(t *testing.T) {
	res := Merge(nil, []byte("x\n"), []byte("y\n"), Options{})

	assert.True(t, res.Conflict)
	assert.Equal(t, "<<<<<<< local\nx\n=======\ny\n>>>>>>> remote\n", string(res.Content))
}

func TestMerge_MissingTrailingNewline(t *testing.T) {
	res := Merge([]byte("a\nb"), []byte("a\nc"), []byte("a\nd"), Options{})

	assert.True(t, res.Conflict)
	assert.Equal(t, "a\n<<<<<<< local\nc\n=======\nd\n>>>>>>> remote\n", string(res.Content))
}

func TestMerge_OneSidedChange(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		ours   string
		theirs string
		want   string
	}{
		{name: "only ours changed", base: "a\n", ours: "a\nb\n", theirs: "a\n", want: "a\nb\n"},
		{name: "only theirs changed", base: "a\n", ours: "a\n", theirs: "z\n", want: "z\n"},
		{name: "both equal", base: "a\n", ours: "q\n", theirs: "q\n", want: "q\n"},
		{name: "all empty", base: "", ours: "", theirs: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge([]byte(tt.base), []byte(tt.ours), []byte(tt.theirs), Options{})
			assert.False(t, res.Conflict)
			assert.Equal(t, tt.want, string(res.Content))
		})
	}
}

func TestMerge_AdjacentEditsConflict(t *testing.T) {
	base := []byte("1\n2\n3\n4\n")
	ours := []byte("1\nTWO\n3\n4\n")
	theirs := []byte("1\n2\nTHREE\n4\n")

	res := Merge(base, ours, theirs, Options{})

	assert.True(t, res.Conflict)
	assert.Contains(t, string(res.Content), "1\n<<<<<<< local\nTWO\n3\n=======\n2\nTHREE\n>>>>>>> remote\n4\n")
}

func TestHasConflictMarkers(t *testing.T) {
	assert.False(t, HasConflictMarkers([]byte("* heading\nbody\n")))
	assert.True(t, HasConflictMarkers([]byte("<<<<<<< local\nx\n=======\ny\n>>>>>>> remote\n")))
}
