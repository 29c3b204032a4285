package lww

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMergeSequential_Scenario(t *testing.T) {
	pair := ArrayPair{
		SeqA: []uint32{1, 5, 3, 3},
		ValA: []uint32{10, 20, 30, 40},
		SeqB: []uint32{2, 5, 0, 3},
		ValB: []uint32{1, 15, 99, 40},
	}

	got, err := MergeSequential(pair)
	require.NoError(t, err)

	want := Merged{
		Seq: []uint32{2, 5, 3, 3},
		Val: []uint32{1, 20, 30, 40},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeSequential() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSequential_AllEqualReturnsA(t *testing.T) {
	pair := NewArrayPair(257)
	for i := 0; i < pair.Len(); i++ {
		pair.SeqA[i] = uint32(i % 7)
		pair.ValA[i] = uint32(i % 11)
	}
	copy(pair.SeqB, pair.SeqA)
	copy(pair.ValB, pair.ValA)

	got, err := MergeSequential(pair)
	require.NoError(t, err)
	require.Equal(t, pair.SeqA, got.Seq)
	require.Equal(t, pair.ValA, got.Val)
}

func TestMergeSequential_DoesNotMutateInput(t *testing.T) {
	pair := ArrayPair{
		SeqA: []uint32{1, 2},
		ValA: []uint32{3, 4},
		SeqB: []uint32{5, 0},
		ValB: []uint32{6, 7},
	}

	_, err := MergeSequential(pair)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, pair.SeqA)
	require.Equal(t, []uint32{3, 4}, pair.ValA)
	require.Equal(t, []uint32{5, 0}, pair.SeqB)
	require.Equal(t, []uint32{6, 7}, pair.ValB)
}

func TestArrayPair_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pair    ArrayPair
		wantErr error
	}{
		{
			name: "equal lengths",
			pair: NewArrayPair(3),
		},
		{
			name:    "empty",
			pair:    ArrayPair{},
			wantErr: ErrEmptyPair,
		},
		{
			name: "short value array",
			pair: ArrayPair{
				SeqA: []uint32{1, 2},
				ValA: []uint32{1},
				SeqB: []uint32{1, 2},
				ValB: []uint32{1, 2},
			},
			wantErr: ErrLengthMismatch,
		},
		{
			name: "short replica b",
			pair: ArrayPair{
				SeqA: []uint32{1, 2},
				ValA: []uint32{1, 2},
				SeqB: []uint32{1},
				ValB: []uint32{1},
			},
			wantErr: ErrLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pair.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSequential_MergeRejectsInvalidPair(t *testing.T) {
	_, err := Sequential{}.Merge(context.Background(), ArrayPair{SeqA: []uint32{1}})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func BenchmarkMergeSequential(b *testing.B) {
	pair := NewArrayPair(DefaultElements)
	for i := 0; i < pair.Len(); i++ {
		pair.SeqA[i] = uint32(i % 1001)
		pair.ValA[i] = uint32((i * 7) % 1001)
		pair.SeqB[i] = uint32((i * 13) % 1001)
		pair.ValB[i] = uint32((i * 17) % 1001)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := MergeSequential(pair); err != nil {
			b.Fatalf("merge failed: %v", err)
		}
	}
}
