package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"votecast/internal/broker"
	"votecast/internal/domain/poll"
	"votecast/internal/domain/vote"
	"votecast/internal/event"
	"votecast/internal/hub"
	"votecast/internal/relay"
)

// memStore backs both repositories with one coherent in-memory dataset.
type memStore struct {
	mu       sync.Mutex
	polls    map[int64]*poll.Poll
	opts     map[int64][]poll.Option
	counts   map[int64]int64 // option id -> votes
	order    []int64         // poll creation order
	nextPoll int64
	nextOpt  int64
	nextVote int64
}

func newMemStore() *memStore {
	return &memStore{
		polls:    make(map[int64]*poll.Poll),
		opts:     make(map[int64][]poll.Option),
		counts:   make(map[int64]int64),
		nextPoll: 1,
		nextOpt:  1,
		nextVote: 1,
	}
}

type pollStore struct{ s *memStore }

func (r pollStore) Create(ctx context.Context, p *poll.Poll, options []poll.Option) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextPoll
	s.nextPoll++
	p.CreatedAt = time.Now()
	copyPoll := *p
	s.polls[p.ID] = &copyPoll
	s.order = append(s.order, p.ID)

	cloned := make([]poll.Option, len(options))
	for i, opt := range options {
		opt.ID = s.nextOpt
		s.nextOpt++
		opt.PollID = p.ID
		cloned[i] = opt
	}
	s.opts[p.ID] = cloned
	return p.ID, nil
}

func (r pollStore) Snapshot(ctx context.Context, id int64) (*poll.Snapshot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(id)
}

func (s *memStore) snapshotLocked(id int64) (*poll.Snapshot, error) {
	p, ok := s.polls[id]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	snap := &poll.Snapshot{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
	for _, opt := range s.opts[id] {
		c := s.counts[opt.ID]
		snap.Options = append(snap.Options, poll.OptionTally{ID: opt.ID, Text: opt.Text, Votes: c})
		snap.TotalVotes += c
	}
	return snap, nil
}

func (r pollStore) List(ctx context.Context) ([]poll.Snapshot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]poll.Snapshot, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		snap, err := s.snapshotLocked(s.order[i])
		if err != nil {
			return nil, err
		}
		res = append(res, *snap)
	}
	return res, nil
}

func (r pollStore) Leaderboard(ctx context.Context, limit int) ([]poll.LeaderboardEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []poll.LeaderboardEntry
	for pollID, opts := range s.opts {
		for _, opt := range opts {
			entries = append(entries, poll.LeaderboardEntry{
				OptionID:  opt.ID,
				PollTitle: s.polls[pollID].Title,
				Text:      opt.Text,
				Votes:     s.counts[opt.ID],
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Votes != entries[j].Votes {
			return entries[i].Votes > entries[j].Votes
		}
		return entries[i].OptionID < entries[j].OptionID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

type voteStore struct{ s *memStore }

func (r voteStore) Create(ctx context.Context, v *vote.Vote) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.nextVote
	s.nextVote++
	v.CreatedAt = time.Now()
	s.counts[v.OptionID]++
	return nil
}

func (r voteStore) OptionInPoll(ctx context.Context, pollID, optionID int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range s.opts[pollID] {
		if opt.ID == optionID {
			return true, nil
		}
	}
	return false, nil
}

type testEnv struct {
	server  *httptest.Server
	store   *memStore
	hub     *hub.Hub
	cleanup func()
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()
	store := newMemStore()

	pollSvc := poll.NewService(pollStore{store})
	voteSvc := vote.NewService(voteStore{store})

	bus := broker.NewLog(16, logger)
	publisher := event.NewPublisher(bus, "poll-votes", logger)
	rooms := hub.New(16, logger)

	ctx, cancel := context.WithCancel(context.Background())
	consumer := relay.New(bus, "poll-votes", "polling-group", rooms, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx)
	}()

	server := httptest.NewServer(NewRouter(pollSvc, voteSvc, publisher, rooms, nil))
	return &testEnv{
		server: server,
		store:  store,
		hub:    rooms,
		cleanup: func() {
			server.Close()
			cancel()
			<-done
			_ = bus.Close()
		},
	}
}

func createPollViaAPI(t *testing.T, serverURL string, title string, options []string) int64 {
	t.Helper()
	data, _ := json.Marshal(createPollRequest{Title: title, Options: options})
	resp, err := http.Post(serverURL+"/api/v1/polls", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("create poll request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var payload map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode create poll: %v", err)
	}
	return payload["id"]
}

func getSnapshot(t *testing.T, serverURL string, pollID int64) poll.Snapshot {
	t.Helper()
	resp, err := http.Get(serverURL + "/api/v1/polls/" + itoa(pollID))
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 snapshot, got %d", resp.StatusCode)
	}
	var snap poll.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func castVote(t *testing.T, serverURL string, pollID, optionID int64) *http.Response {
	t.Helper()
	body, _ := json.Marshal(voteRequest{OptionID: optionID})
	resp, err := http.Post(serverURL+"/api/v1/polls/"+itoa(pollID)+"/vote", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("vote request: %v", err)
	}
	return resp
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func collectEvents(t *testing.T, ch <-chan hub.Event, n int) []hub.Event {
	t.Helper()
	out := make([]hub.Event, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func snapshotTotal(t *testing.T, data []byte) int64 {
	t.Helper()
	var payload struct {
		Poll *poll.Snapshot `json:"poll"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("broadcast payload: %v", err)
	}
	if payload.Poll == nil {
		t.Fatalf("broadcast payload has no snapshot")
	}
	return payload.Poll.TotalVotes
}

func TestCreatePollValidation(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	data, _ := json.Marshal(createPollRequest{Title: "No options"})
	resp, err := http.Post(env.server.URL+"/api/v1/polls", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty options, got %d", resp.StatusCode)
	}
}

func TestFreshPollHasZeroTallies(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	id := createPollViaAPI(t, env.server.URL, "Lunch", []string{"Pizza", "Sushi"})
	snap := getSnapshot(t, env.server.URL, id)

	if len(snap.Options) != 2 {
		t.Fatalf("zero-vote options must not be omitted, got %d", len(snap.Options))
	}
	for _, opt := range snap.Options {
		if opt.Votes != 0 {
			t.Fatalf("option %q starts at %d votes", opt.Text, opt.Votes)
		}
	}
	if snap.TotalVotes != 0 {
		t.Fatalf("fresh poll total = %d", snap.TotalVotes)
	}
}

func TestGetMissingPoll(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	resp, err := http.Get(env.server.URL + "/api/v1/polls/9999")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVoteFlowEndToEnd(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	id := createPollViaAPI(t, env.server.URL, "Lunch", []string{"Pizza", "Sushi"})
	snap := getSnapshot(t, env.server.URL, id)
	pizza, sushi := snap.Options[0].ID, snap.Options[1].ID

	// watcher joins the poll's room before any vote; lurker never joins
	watcherCh := env.hub.Register("watcher")
	env.hub.Join("watcher", id)
	lurkerCh := env.hub.Register("lurker")

	resp := castVote(t, env.server.URL, id, pizza)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 vote, got %d", resp.StatusCode)
	}

	snap = getSnapshot(t, env.server.URL, id)
	if snap.Options[0].Votes != 1 || snap.Options[1].Votes != 0 || snap.TotalVotes != 1 {
		t.Fatalf("after one vote: %+v", snap)
	}

	resp = castVote(t, env.server.URL, id, sushi)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 second vote, got %d", resp.StatusCode)
	}

	snap = getSnapshot(t, env.server.URL, id)
	if snap.Options[0].Votes != 1 || snap.Options[1].Votes != 1 || snap.TotalVotes != 2 {
		t.Fatalf("after two votes: %+v", snap)
	}

	// watcher gets each update twice (room + global), in vote order
	watcherEvents := collectEvents(t, watcherCh, 4)
	totals := make([]int64, 0, 4)
	for _, ev := range watcherEvents {
		if ev.Name != "vote-update" {
			t.Fatalf("unexpected event %q", ev.Name)
		}
		totals = append(totals, snapshotTotal(t, ev.Data))
	}
	want := []int64{1, 1, 2, 2}
	for i := range want {
		if totals[i] != want[i] {
			t.Fatalf("watcher totals = %v, want %v", totals, want)
		}
	}

	// lurker sees only the global copies
	lurkerEvents := collectEvents(t, lurkerCh, 2)
	if snapshotTotal(t, lurkerEvents[0].Data) != 1 || snapshotTotal(t, lurkerEvents[1].Data) != 2 {
		t.Fatalf("lurker missed or reordered global updates")
	}
	select {
	case ev := <-lurkerCh:
		t.Fatalf("lurker received extra event %q", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVoteForForeignOptionRejected(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	pollA := createPollViaAPI(t, env.server.URL, "Poll A", []string{"A1", "A2"})
	pollB := createPollViaAPI(t, env.server.URL, "Poll B", []string{"B1", "B2"})

	optionFromB := getSnapshot(t, env.server.URL, pollB).Options[0].ID
	resp := castVote(t, env.server.URL, pollA, optionFromB)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign option, got %d", resp.StatusCode)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != "invalid_option" {
		t.Fatalf("error code = %q", payload["error"])
	}

	// the rejected vote must not alter any tally
	if total := getSnapshot(t, env.server.URL, pollA).TotalVotes; total != 0 {
		t.Fatalf("poll A total = %d after rejected vote", total)
	}
	if total := getSnapshot(t, env.server.URL, pollB).TotalVotes; total != 0 {
		t.Fatalf("poll B total = %d after rejected vote", total)
	}
}

func TestListPollsNewestFirst(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	createPollViaAPI(t, env.server.URL, "Older", []string{"a"})
	createPollViaAPI(t, env.server.URL, "Newer", []string{"b"})

	resp, err := http.Get(env.server.URL + "/api/v1/polls")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()

	var snaps []poll.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Title != "Newer" || snaps[1].Title != "Older" {
		t.Fatalf("unexpected list order: %+v", snaps)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	id := createPollViaAPI(t, env.server.URL, "Lunch", []string{"Pizza", "Sushi"})
	snap := getSnapshot(t, env.server.URL, id)
	pizza, sushi := snap.Options[0].ID, snap.Options[1].ID

	for _, opt := range []int64{pizza, pizza, sushi} {
		resp := castVote(t, env.server.URL, id, opt)
		resp.Body.Close()
	}

	resp, err := http.Get(env.server.URL + "/api/v1/polls/leaderboard/top?limit=5")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	defer resp.Body.Close()

	var entries []poll.LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both options listed, got %d", len(entries))
	}
	if entries[0].OptionID != pizza || entries[0].Votes != 2 {
		t.Fatalf("leaderboard head = %+v", entries[0])
	}
	if entries[1].OptionID != sushi || entries[1].Votes != 1 {
		t.Fatalf("leaderboard tail = %+v", entries[1])
	}
}

func TestEventsStreamDeliversVoteUpdates(t *testing.T) {
	env := setupServer(t)
	defer env.cleanup()

	id := createPollViaAPI(t, env.server.URL, "Lunch", []string{"Pizza", "Sushi"})
	optionID := getSnapshot(t, env.server.URL, id).Options[0].ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/v1/events?poll="+itoa(id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	if name, _ := readFrame(); name != "connected" {
		t.Fatalf("first frame = %q, want connected", name)
	}

	voteResp := castVote(t, env.server.URL, id, optionID)
	voteResp.Body.Close()

	// both the room and the global copy arrive; each carries the snapshot
	for i := 0; i < 2; i++ {
		name, data := readFrame()
		if name != "vote-update" {
			t.Fatalf("frame %d = %q, want vote-update", i, name)
		}
		if snapshotTotal(t, []byte(data)) != 1 {
			t.Fatalf("stream snapshot total mismatch: %s", data)
		}
	}
}
