package pool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

func refs(prefix string, n int) []models.AudioRef {
	out := make([]models.AudioRef, n)
	for i := range out {
		out[i] = models.AudioRef{Path: fmt.Sprintf("%s%d", prefix, i+1), Accent: "sp", Natural: models.Natural}
	}
	return out
}

func paths(rs []models.AudioRef) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Path
	}
	return out
}

func TestShuffleDeterministic(t *testing.T) {
	a := New("a", refs("s", 20)...)
	b := New("b", refs("s", 20)...)

	a.Shuffle(rand.New(rand.NewPCG(1337, 0)))
	b.Shuffle(rand.New(rand.NewPCG(1337, 0)))

	if diff := cmp.Diff(paths(a.Items()), paths(b.Items())); diff != "" {
		t.Errorf("same seed produced different orders (-a +b):\n%s", diff)
	}

	c := New("c", refs("s", 20)...)
	c.Shuffle(rand.New(rand.NewPCG(7, 0)))
	if cmp.Equal(paths(a.Items()), paths(c.Items())) {
		t.Error("different seeds produced the same order")
	}
}

func TestTakeQuotaDisjoint(t *testing.T) {
	p := New("sp", refs("s", 5)...)

	first := p.TakeQuota(2)
	second := p.TakeQuota(2)
	rest := p.TakeQuota(10)

	if diff := cmp.Diff([]string{"s1", "s2"}, paths(first)); diff != "" {
		t.Errorf("first quota mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"s3", "s4"}, paths(second)); diff != "" {
		t.Errorf("second quota mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"s5"}, paths(rest)); diff != "" {
		t.Errorf("remainder mismatch:\n%s", diff)
	}
	if p.Len() != 0 {
		t.Errorf("pool should be empty, has %d", p.Len())
	}
	if got := p.TakeQuota(0); got != nil {
		t.Errorf("TakeQuota(0) = %v, want nil", got)
	}
}

func TestPopFront(t *testing.T) {
	p := New("sp", refs("s", 2)...)

	for _, want := range []string{"s1", "s2"} {
		got, err := p.PopFront()
		if err != nil {
			t.Fatalf("PopFront: %v", err)
		}
		if got.Path != want {
			t.Errorf("PopFront = %s, want %s", got.Path, want)
		}
	}

	_, err := p.PopFront()
	if !errors.Is(err, models.ErrExhaustedPool) {
		t.Errorf("expected ErrExhaustedPool, got %v", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	in := refs("s", 3)
	p := New("sp", in...)
	p.Swap(0, 2)

	if in[0].Path != "s1" {
		t.Errorf("caller slice modified: %s", in[0].Path)
	}
	if p.At(0).Path != "s3" {
		t.Errorf("At(0) = %s after swap, want s3", p.At(0).Path)
	}
}

func TestSplit(t *testing.T) {
	p := New("sp", refs("s", 4)...)
	mos := p.Split("sp/mos", 3)

	if mos.Name() != "sp/mos" || mos.Len() != 3 || p.Len() != 1 {
		t.Errorf("split sizes: mos=%d rest=%d", mos.Len(), p.Len())
	}
}
