package envelope_test

import (
	"testing"

	"github.com/MrWong99/wavescope/pkg/envelope"
)

func TestStrokes_OneBlockPerColumn(t *testing.T) {
	t.Parallel()
	mins := []float32{-0.1, -0.2, -0.3, -0.4}
	maxs := []float32{0.1, 0.2, 0.3, 0.4}

	strokes := envelope.Strokes(mins, maxs, 0, 4, 4)
	if len(strokes) != 4 {
		t.Fatalf("len(strokes) = %d, want 4", len(strokes))
	}
	for i, s := range strokes {
		if s.X != i {
			t.Fatalf("strokes[%d].X = %d, want %d", i, s.X, i)
		}
		if s.Min != mins[i] || s.Max != maxs[i] {
			t.Fatalf("strokes[%d] = (%v, %v), want (%v, %v)", i, s.Min, s.Max, mins[i], maxs[i])
		}
	}
}

func TestStrokes_MergesBlocksPerColumn(t *testing.T) {
	t.Parallel()
	mins := []float32{-0.1, -0.9, -0.2, -0.3, -0.8, -0.1, -0.4, -0.5}
	maxs := []float32{0.1, 0.9, 0.2, 0.3, 0.8, 0.1, 0.4, 0.5}

	strokes := envelope.Strokes(mins, maxs, 0, 8, 4)
	if len(strokes) != 4 {
		t.Fatalf("len(strokes) = %d, want 4", len(strokes))
	}
	if strokes[0].Min != -0.9 || strokes[0].Max != 0.9 {
		t.Fatalf("strokes[0] = (%v, %v), want merged (-0.9, 0.9)", strokes[0].Min, strokes[0].Max)
	}
	if strokes[2].Min != -0.8 || strokes[2].Max != 0.8 {
		t.Fatalf("strokes[2] = (%v, %v), want merged (-0.8, 0.8)", strokes[2].Min, strokes[2].Max)
	}
}

func TestStrokes_OmitsUncoveredColumns(t *testing.T) {
	t.Parallel()
	mins := make([]float32, 10)
	maxs := make([]float32, 10)

	// A window hanging past the last block covers only two of four columns.
	strokes := envelope.Strokes(mins, maxs, 8, 4, 4)
	if len(strokes) != 2 {
		t.Fatalf("len(strokes) = %d, want 2", len(strokes))
	}
	if strokes[1].X != 1 {
		t.Fatalf("strokes[1].X = %d, want 1", strokes[1].X)
	}
}

func TestStrokes_Degenerate(t *testing.T) {
	t.Parallel()
	mins := []float32{-0.5}
	maxs := []float32{0.5}

	if got := envelope.Strokes(mins, maxs, 0, 0, 4); got != nil {
		t.Fatalf("Strokes with empty window = %v, want nil", got)
	}
	if got := envelope.Strokes(mins, maxs, 0, 1, 0); got != nil {
		t.Fatalf("Strokes with zero width = %v, want nil", got)
	}
	if got := envelope.Strokes(mins, maxs, 5, 1, 4); got != nil {
		t.Fatalf("Strokes starting past the take = %v, want nil", got)
	}
}

func TestStrokes_MoreColumnsThanBlocks(t *testing.T) {
	t.Parallel()
	mins := []float32{-0.5, -0.25}
	maxs := []float32{0.5, 0.25}

	// Two blocks across four columns: each block spans two columns.
	strokes := envelope.Strokes(mins, maxs, 0, 2, 4)
	if len(strokes) != 4 {
		t.Fatalf("len(strokes) = %d, want 4", len(strokes))
	}
	if strokes[0].Min != -0.5 || strokes[1].Min != -0.5 {
		t.Fatalf("columns 0-1 = (%v, %v), want both from block 0", strokes[0].Min, strokes[1].Min)
	}
	if strokes[2].Min != -0.25 || strokes[3].Min != -0.25 {
		t.Fatalf("columns 2-3 = (%v, %v), want both from block 1", strokes[2].Min, strokes[3].Min)
	}
}

func TestViewStrokes(t *testing.T) {
	t.Parallel()

	// A 10 kHz source decimates by 2, so alternating samples produce
	// blocks with a visible spread.
	e := envelope.New(10000, 800, 200)
	e.Append(alternating(2000, 0.5))

	strokes := e.ViewStrokes()
	if len(strokes) == 0 || len(strokes) > 800 {
		t.Fatalf("len(strokes) = %d, want within (0, 800]", len(strokes))
	}
	for _, s := range strokes {
		if s.Min > s.Max {
			t.Fatalf("stroke %d: min %v exceeds max %v", s.X, s.Min, s.Max)
		}
	}
	if strokes[0].Max != 0.5 || strokes[0].Min != -0.5 {
		t.Fatalf("strokes[0] = (%v, %v), want (-0.5, 0.5)", strokes[0].Min, strokes[0].Max)
	}
}

func TestOverviewStrokes_CoversWholeTake(t *testing.T) {
	t.Parallel()
	e := envelope.New(10000, 800, 200)
	e.Append(alternating(2000, 0.5))
	e.SetZoom(10, -1) // the overview must ignore the zoomed window

	strokes := e.OverviewStrokes(50)
	if len(strokes) != 50 {
		t.Fatalf("len(strokes) = %d, want 50", len(strokes))
	}
	last := strokes[len(strokes)-1]
	if last.Min != -0.5 || last.Max != 0.5 {
		t.Fatalf("last stroke = (%v, %v), want (-0.5, 0.5)", last.Min, last.Max)
	}
}
