package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vaultsync"
)

var testNow = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

const (
	bioNote   = "---\ntags: [flashcards, biology]\n---\nCell::Basic unit of life\nThe ==nucleus== holds ==DNA==.\n"
	essayNote = "#review #writing\nSome essay.\n"
)

type env struct {
	dir    string
	svc    *Service
	syncer *vaultsync.Syncer
	mem    *testutil.MemPersistence
	clock  *clock.Fixed
	sink   *testutil.Sink
	events []Event
}

func newEnv(t *testing.T, active item.Kind) *env {
	t.Helper()
	dir, fs := testutil.TestVault(t)
	e := &env{
		dir:   dir,
		mem:   testutil.NewMemPersistence(),
		clock: clock.NewFixed(testNow),
		sink:  &testutil.Sink{},
	}
	algos := DefaultAlgorithmSettings()
	algos.Active = active
	svc, err := New(e.mem,
		WithFiles(fs),
		WithClock(e.clock),
		WithLogSink(e.sink),
		WithAlgorithms(algos),
		WithStoreOptions(store.WithTypeTags("review", "flashcards")),
		WithLogger(testutil.Logger()),
		WithPublisher(func(ev Event) { e.events = append(e.events, ev) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.svc = svc
	e.syncer = vaultsync.New(svc, fs, vaultsync.WithLogger(testutil.Logger()))
	return e
}

// seed writes the sample vault, syncs it and builds the queue.
func (e *env) seed(t *testing.T) {
	t.Helper()
	testutil.WriteNote(t, e.dir, "bio.md", bioNote)
	testutil.WriteNote(t, e.dir, "essay.md", essayNote)
	ctx := context.Background()
	if _, err := e.syncer.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := e.svc.BuildQueue(ctx); err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
}

func (e *env) hasEvent(typ string) bool {
	for _, ev := range e.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func TestReviewFlow(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)

	decks := e.svc.Decks()
	if len(decks) != 2 || decks[0].Name != "biology" || decks[0].New != 3 || decks[1].Name != "writing" || decks[1].New != 1 {
		t.Fatalf("decks = %+v", decks)
	}

	next, ok, err := e.svc.Next("biology")
	if err != nil || !ok {
		t.Fatalf("Next = %v, %v", ok, err)
	}
	if next.Prompt != "Cell" || next.Answer != "Basic unit of life" {
		t.Errorf("prompt = %q / %q", next.Prompt, next.Answer)
	}
	if next.Item.Path != "bio.md" || next.Item.Type != item.TypeCard || len(next.Options) != 4 {
		t.Errorf("next = %+v", next)
	}

	e.clock.Advance(4 * time.Second)
	out, err := e.svc.Review(context.Background(), next.Item.ID, "Good")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !out.Correct || out.NextReview <= testNow.UnixMilli() {
		t.Errorf("outcome = %+v", out)
	}

	rows := e.sink.Rows()
	if len(rows) != 1 || rows[0].DurationMs != 4000 || rows[0].Deck != "biology" || rows[0].ItemID != next.Item.ID {
		t.Errorf("revlog = %+v", rows)
	}
	if _, err := e.mem.Load(context.Background(), DefaultStateKey); err != nil {
		t.Errorf("state not persisted: %v", err)
	}
	if !e.hasEvent(EventQueueBuilt) || !e.hasEvent(EventItemReviewed) {
		t.Errorf("events = %+v", e.events)
	}
	if got := e.svc.Decks(); got[0].New != 2 {
		t.Errorf("biology after review = %+v", got[0])
	}
}

func TestClozeFacePrompt(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)

	ctx := context.Background()
	var prompts []string
	for range 3 {
		next, ok, err := e.svc.Next("biology")
		if err != nil || !ok {
			t.Fatalf("Next = %v, %v", ok, err)
		}
		prompts = append(prompts, next.Prompt)
		if _, err := e.svc.Review(ctx, next.Item.ID, "Easy"); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"Cell", "The [...] holds DNA.", "The nucleus holds [...]."}
	for i := range want {
		if prompts[i] != want[i] {
			t.Errorf("prompt %d = %q, want %q", i, prompts[i], want[i])
		}
	}
}

func TestLoadRestoresState(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)
	next, _, _ := e.svc.Next("writing")
	if _, err := e.svc.Review(context.Background(), next.Item.ID, "Again"); err != nil {
		t.Fatal(err)
	}
	before := e.svc.Status()

	_, fs := testutil.TestVault(t)
	algos := DefaultAlgorithmSettings()
	algos.Active = item.KindSM2
	reloaded, err := New(e.mem, WithFiles(fs), WithClock(e.clock), WithLogger(testutil.Logger()), WithAlgorithms(algos))
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if kind, _ := reloaded.Algorithm(); kind != item.KindFSRS {
		t.Errorf("algorithm = %q, want the saved fsrs", kind)
	}
	v, err := reloaded.Item(next.Item.ID)
	if err != nil || v.TimesReviewed != 1 || v.ErrorStreak != 1 {
		t.Errorf("item = %+v, %v", v, err)
	}
	after := reloaded.Status()
	if after.Repeat != before.Repeat || len(after.Decks) != len(before.Decks) {
		t.Errorf("status = %+v, want %+v", after, before)
	}
}

func TestLoadRejectsInconsistentState(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)
	ctx := context.Background()
	if err := e.svc.Save(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := e.mem.Load(ctx, DefaultStateKey)
	if err != nil {
		t.Fatal(err)
	}
	// bio.md still lists item 1, which the snapshot no longer holds.
	items := snap.Store.Items[:0]
	for _, it := range snap.Store.Items {
		if it.ID != 1 {
			items = append(items, it)
		}
	}
	snap.Store.Items = items
	if err := e.mem.Save(ctx, DefaultStateKey, snap); err != nil {
		t.Fatal(err)
	}

	_, fs := testutil.TestVault(t)
	reloaded, err := New(e.mem, WithFiles(fs), WithClock(e.clock), WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Load(ctx); !errors.Is(err, apperr.ErrConsistency) {
		t.Fatalf("err = %v, want ErrConsistency", err)
	}
	if _, err := reloaded.Item(0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("inconsistent state was loaded: %v", err)
	}
}

func TestPruneFailureRestoresStore(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)
	ctx := context.Background()
	if err := e.svc.RemoveDocument("essay.md"); err != nil {
		t.Fatal(err)
	}
	tomb, live := -1, -1
	for id := 0; id < 4; id++ {
		v, err := e.svc.Item(id)
		if err != nil {
			t.Fatal(err)
		}
		if v.Tracked {
			live = id
		} else {
			tomb = id
		}
	}
	if tomb < 0 || live < 0 {
		t.Fatalf("tomb = %d, live = %d", tomb, live)
	}

	// Point a live item at a stale generation of its own slot.
	it, _ := e.svc.store.Item(live)
	it.File.Gen += 5

	if _, err := e.svc.Prune(ctx); !errors.Is(err, apperr.ErrConsistency) {
		t.Fatalf("err = %v, want ErrConsistency", err)
	}
	if _, err := e.svc.Item(tomb); err != nil {
		t.Errorf("tombstone pruned despite the failure: %v", err)
	}
	if e.hasEvent(EventPruned) {
		t.Error("prune event published for a failed prune")
	}
	if e.svc.store.Busy() {
		t.Error("store still held")
	}
}

func TestLoadEmpty(t *testing.T) {
	e := newEnv(t, item.KindSM2)
	if err := e.svc.Load(context.Background()); err != nil {
		t.Errorf("Load on empty persistence: %v", err)
	}
}

func TestReviewErrors(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)
	ctx := context.Background()

	if _, err := e.svc.Review(ctx, 999, "Good"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
	next, _, _ := e.svc.Next("")
	if _, err := e.svc.Review(ctx, next.Item.ID, "Perfect"); !errors.Is(err, apperr.ErrInvalidOption) {
		t.Errorf("bad option: err = %v", err)
	}
	if _, err := e.svc.Preview(999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("preview: err = %v", err)
	}
}

func TestSwitchAlgorithm(t *testing.T) {
	e := newEnv(t, item.KindSM2)
	e.seed(t)
	ctx := context.Background()

	next, _, _ := e.svc.Next("writing")
	if _, err := e.svc.Review(ctx, next.Item.ID, "Good"); err != nil {
		t.Fatal(err)
	}

	out, err := e.svc.Switch(ctx, item.KindFSRS)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if out.Converted != 4 || out.BackupKey == "" {
		t.Errorf("outcome = %+v", out)
	}
	if kind, opts := e.svc.Algorithm(); kind != item.KindFSRS || len(opts) != 4 {
		t.Errorf("algorithm = %q %v", kind, opts)
	}
	v, _ := e.svc.Item(next.Item.ID)
	if v.Algorithm != item.KindFSRS || v.Data.FSRS == nil {
		t.Errorf("item = %+v", v)
	}
	if !e.hasEvent(EventAlgoSwitched) {
		t.Error("no switch event")
	}

	// The queue keeps working with the converted payloads.
	if n, ok, err := e.svc.Next("biology"); err != nil || !ok || len(n.Options) != 4 {
		t.Errorf("next after switch = %+v, %v, %v", n, ok, err)
	}
}

func TestSwitchSaveFailureRollsBack(t *testing.T) {
	e := newEnv(t, item.KindSM2)
	e.seed(t)
	ctx := context.Background()
	next, _, _ := e.svc.Next("writing")
	if _, err := e.svc.Review(ctx, next.Item.ID, "Good"); err != nil {
		t.Fatal(err)
	}
	statusBefore := e.svc.Status()

	e.mem.SaveErr = errors.New("disk full")
	e.mem.FailKey = DefaultStateKey
	if _, err := e.svc.Switch(ctx, item.KindFSRS); !errors.Is(err, e.mem.SaveErr) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if kind, _ := e.svc.Algorithm(); kind != item.KindSM2 {
		t.Errorf("algorithm = %q, want sm2", kind)
	}
	for id := 0; id < 4; id++ {
		v, err := e.svc.Item(id)
		if err != nil {
			t.Fatal(err)
		}
		if v.Algorithm != item.KindSM2 || v.Data.FSRS != nil {
			t.Errorf("item %d = %+v", id, v.Data)
		}
	}
	if e.hasEvent(EventAlgoSwitched) {
		t.Error("switch event published for a failed switch")
	}

	// A later save must not write converted payloads.
	e.mem.SaveErr = nil
	if err := e.svc.Save(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := e.mem.Load(ctx, DefaultStateKey)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Algorithm != item.KindSM2 {
		t.Errorf("saved algorithm = %q", snap.Algorithm)
	}
	if after := e.svc.Status(); after.Repeat != statusBefore.Repeat || len(after.Decks) != len(statusBefore.Decks) {
		t.Errorf("status = %+v, want %+v", after, statusBefore)
	}
}

func TestAmbiguousCardsLeaveDocumentUnchanged(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	doc := vaultsync.Document{
		Path:       "mixed.md",
		Tags:       []string{"#review", "#flashcards", "#chemistry"},
		Note:       true,
		Flashcards: true,
		Cards:      []store.CardSource{{LineNo: 3, Hash: "h1", Faces: 1}},
	}
	if err := e.svc.ApplyDocument(doc); err != nil {
		t.Fatal(err)
	}
	before, _ := e.svc.Item(0)

	// The note tag goes away, the deck changes and the card is edited and
	// moved in the same save.
	doc.Tags = []string{"#flashcards", "#physics"}
	doc.Note = false
	doc.Cards = []store.CardSource{{LineNo: 8, Hash: "h2", Faces: 1}}
	err := e.svc.ApplyDocument(doc)
	if !errors.Is(err, apperr.ErrAmbiguousCard) {
		t.Fatalf("err = %v, want ErrAmbiguousCard", err)
	}
	for id := 0; id < 2; id++ {
		v, err := e.svc.Item(id)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Tracked || v.Deck != "chemistry" {
			t.Errorf("item %d = tracked %v deck %q", id, v.Tracked, v.Deck)
		}
	}
	if after, _ := e.svc.Item(0); after.Type != before.Type {
		t.Errorf("note item changed: %+v", after)
	}
	if _, err := e.svc.Item(2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("item 2 created: %v", err)
	}
}

func TestLostCardTagEvicts(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)

	testutil.WriteNote(t, e.dir, "bio.md", "---\ntags: [biology]\n---\nCell::Basic unit of life\n")
	if _, err := e.syncer.SyncFile("bio.md"); err != nil {
		t.Fatal(err)
	}
	for _, d := range e.svc.Decks() {
		if d.Name == "biology" {
			t.Errorf("biology still queued: %+v", d)
		}
	}
	if paths := e.svc.TrackedPaths(); len(paths) != 1 || paths[0] != "essay.md" {
		t.Errorf("tracked = %v", paths)
	}
}

func TestMissingDocumentAtBuild(t *testing.T) {
	e := newEnv(t, item.KindFSRS)
	e.seed(t)
	ctx := context.Background()

	if err := os.Remove(filepath.Join(e.dir, "essay.md")); err != nil {
		t.Fatal(err)
	}
	rep, err := e.svc.BuildQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Missing != 1 || len(rep.Untracked) != 1 {
		t.Errorf("report = %+v", rep)
	}

	pr, err := e.svc.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pr.Items != 1 || pr.Files != 1 {
		t.Errorf("prune = %+v", pr)
	}
	if _, err := e.svc.Item(rep.Untracked[0]); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("pruned item still present: %v", err)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	e := newEnv(t, item.KindSM2)
	e.seed(t)
	ctx := context.Background()

	next, _, _ := e.svc.Next("writing")
	if _, err := e.svc.Review(ctx, next.Item.ID, "Good"); err != nil {
		t.Fatal(err)
	}
	tuples := e.svc.Schedule(true)
	if len(tuples) != 1 || tuples[0].ID != next.Item.ID {
		t.Fatalf("schedule = %+v", tuples)
	}

	moved := testNow.Add(72 * time.Hour).UnixMilli()
	tuples[0].Due = strconv.FormatInt(moved, 10)
	n, err := e.svc.ApplySchedule(ctx, tuples)
	if err != nil || n != 1 {
		t.Fatalf("ApplySchedule = %d, %v", n, err)
	}
	v, _ := e.svc.Item(next.Item.ID)
	if v.NextReview == nil || v.NextReview.UnixMilli() != moved {
		t.Errorf("next review = %v", v.NextReview)
	}
}
