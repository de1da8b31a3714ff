package schedule

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	// понедельник
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
}

func TestGenerate_FullDay(t *testing.T) {
	slots := Generate(day(t), 9*60, 17*60)

	if len(slots) != 16 {
		t.Fatalf("slots = %d, want 16", len(slots))
	}
	if got := slots[0].Format("15:04"); got != "09:00" {
		t.Fatalf("first slot = %s, want 09:00", got)
	}
	if got := slots[len(slots)-1].Format("15:04"); got != "16:30" {
		t.Fatalf("last slot = %s, want 16:30", got)
	}
}

func TestGenerate_ClosedWindow(t *testing.T) {
	if slots := Generate(day(t), 17*60, 9*60); slots != nil {
		t.Fatalf("expected no slots for inverted window, got %d", len(slots))
	}
	if slots := Generate(day(t), 9*60, 9*60); slots != nil {
		t.Fatalf("expected no slots for empty window, got %d", len(slots))
	}
}

func TestFree_ExcludesBookedStarts(t *testing.T) {
	d := day(t)
	slots := Generate(d, 9*60, 17*60)

	busy := []Interval{
		{Start: d.Add(10 * time.Hour), End: d.Add(10*time.Hour + 30*time.Minute)},
	}

	free := Free(slots, busy)

	if len(free) != 15 {
		t.Fatalf("free slots = %d, want 15", len(free))
	}
	for _, s := range free {
		if s.Format("15:04") == "10:00" {
			t.Fatalf("slot 10:00 must be excluded")
		}
	}

	// слот, начинающийся ровно в момент окончания брони, доступен
	found := false
	for _, s := range free {
		if s.Format("15:04") == "10:30" {
			found = true
		}
	}
	if !found {
		t.Fatalf("slot 10:30 must remain available")
	}
}

func TestIntervalOverlap(t *testing.T) {
	d := day(t)
	a := Interval{Start: d.Add(10 * time.Hour), End: d.Add(11 * time.Hour)}

	tests := []struct {
		name string
		b    Interval
		want bool
	}{
		{
			name: "identical",
			b:    Interval{Start: a.Start, End: a.End},
			want: true,
		},
		{
			name: "partial overlap",
			b:    Interval{Start: d.Add(10*time.Hour + 30*time.Minute), End: d.Add(11*time.Hour + 30*time.Minute)},
			want: true,
		},
		{
			name: "contained",
			b:    Interval{Start: d.Add(10*time.Hour + 15*time.Minute), End: d.Add(10*time.Hour + 45*time.Minute)},
			want: true,
		},
		{
			name: "abutting after",
			b:    Interval{Start: a.End, End: a.End.Add(time.Hour)},
			want: false,
		},
		{
			name: "abutting before",
			b:    Interval{Start: a.Start.Add(-time.Hour), End: a.Start},
			want: false,
		},
		{
			name: "disjoint",
			b:    Interval{Start: d.Add(14 * time.Hour), End: d.Add(15 * time.Hour)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.overlaps(tt.b); got != tt.want {
				t.Fatalf("overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.b.overlaps(a); got != tt.want {
				t.Fatalf("overlaps (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}
