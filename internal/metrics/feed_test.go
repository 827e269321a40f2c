package metrics

import "testing"

func TestSampleFeedEvictsOldest(t *testing.T) {
	f := NewSampleFeed(3)
	for i := int64(1); i <= 5; i++ {
		f.Push(FeedEntry{TotalUs: i})
	}
	got := f.Entries()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []int64{3, 4, 5} {
		if got[i].TotalUs != want {
			t.Fatalf("entry %d: expected %d, got %d", i, want, got[i].TotalUs)
		}
	}
}

func TestSampleFeedPartial(t *testing.T) {
	f := NewSampleFeed(500)
	f.Push(FeedEntry{Endpoint: "a"})
	f.Push(FeedEntry{Endpoint: "b"})
	got := f.Entries()
	if len(got) != 2 || got[0].Endpoint != "a" || got[1].Endpoint != "b" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if f.Capacity() != 500 {
		t.Fatalf("expected capacity 500, got %d", f.Capacity())
	}
}

func TestSampleFeedEntriesIsCopy(t *testing.T) {
	f := NewSampleFeed(2)
	f.Push(FeedEntry{Endpoint: "x"})
	got := f.Entries()
	got[0].Endpoint = "mutated"
	if f.Entries()[0].Endpoint != "x" {
		t.Fatal("Entries must not alias the internal buffer")
	}
}
