package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	externalrepo "github.com/foxseedlab/wwdcsync/external/repository"
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/repository"
)

const (
	videosURL   = "https://remote.test/videos.json"
	sessionsURL = "https://remote.test/sessions.json"
	liveURL     = "https://remote.test/live.json"
)

type mockRemoteClient struct {
	mu        sync.Mutex
	config    string
	configErr error
	bodies    map[string]string
	requests  []string
}

func (m *mockRemoteClient) FetchAppConfig(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "config")
	if m.configErr != nil {
		return nil, m.configErr
	}
	return []byte(m.config), nil
}

func (m *mockRemoteClient) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, url)
	body, ok := m.bodies[url]
	if !ok {
		return nil, errors.New("no route to host")
	}
	return []byte(body), nil
}

func (m *mockRemoteClient) FetchTranscript(_ context.Context, _, _ int) ([]byte, error) {
	return nil, errors.New("not used")
}

func (m *mockRemoteClient) resetRequests() {
	m.mu.Lock()
	m.requests = nil
	m.mu.Unlock()
}

type mockIndexer struct {
	starts [][]string
	ctxs   []context.Context
}

func (m *mockIndexer) Start(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	m.starts = append(m.starts, keys)
	m.ctxs = append(m.ctxs, ctx)
	return true
}

type fixture struct {
	cfg     *config.Config
	repo    repository.Repository
	client  *mockRemoteClient
	indexer *mockIndexer
	events  <-chan events.Event
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := externalrepo.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "wwdc.sqlite"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	cfg := &config.Config{TranscriptIndexingEnabled: true}
	client := &mockRemoteClient{
		config: configJSON(false, false, ""),
		bodies: map[string]string{
			videosURL:   catalogJSON("u1", "What's New in Swift"),
			sessionsURL: scheduleJSON,
		},
	}
	ix := &mockIndexer{}
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(64)
	t.Cleanup(cancel)
	return &fixture{
		cfg:     cfg,
		repo:    repo,
		client:  client,
		indexer: ix,
		events:  ch,
		orch:    NewOrchestrator(cfg, repo, client, ix, bus),
	}
}

func configJSON(wwdcWeek, ignoreCache bool, updatedAt string) string {
	b := func(v bool) string {
		if v {
			return "true"
		}
		return "false"
	}
	return `{"videosURL":"` + videosURL + `","sessionsURL":"` + sessionsURL + `","liveURL":"` + liveURL +
		`","videosUpdatedAt":"` + updatedAt + `","scheduleEnabled":true,"ignoreCache":` + b(ignoreCache) +
		`,"isWWDCWeek":` + b(wwdcWeek) + `}`
}

func catalogJSON(updated, swiftTitle string) string {
	return `{"updated":"` + updated + `","sessions":[
		{"id":402,"year":2016,"title":"` + swiftTitle + `","track":"Developer Tools","focus":["iOS","macOS"],"download_hd":"https://cdn.test/402_hd.mp4","duration":2400},
		{"id":101,"year":2015,"title":"Platforms State of the Union","duration":3600},
		{"id":10010,"year":2016,"title":"Retired tech talk","duration":0},
		{"id":10020,"year":2015,"title":"Apple TV Tech Talk","duration":0}
	]}`
}

const scheduleJSON = `{"response":{
	"tracks":[{"name":"Developer Tools","color":"#0088CC"}],
	"sessions":[
		{"id":402,"year":2016,"title":"What's New in Swift","track":"Developer Tools","type":"Session","room":"Presidio",
		 "start_time":"2016-06-14T10:00:00-07:00","end_time":"2016-06-14T11:00:00-07:00"},
		{"id":501,"year":2016,"title":"Recorded","track":"Developer Tools","type":"Video",
		 "start_time":"2016-06-15T10:00:00-07:00","end_time":"2016-06-15T10:40:00-07:00"}
	]}}`

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func kinds(evs []events.Event) []events.Kind {
	out := make([]events.Kind, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Kind)
	}
	return out
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func TestSync_FirstCycleStoresCatalogAndSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.orch.Sync(ctx)
	if !res.ConfigChanged {
		t.Fatal("expected config to be adopted on first cycle")
	}
	if len(res.ChangedKeys) != 3 {
		t.Fatalf("expected 3 changed keys, got %v", res.ChangedKeys)
	}
	if containsKey(res.ChangedKeys, "#2016-10010") {
		t.Fatal("expected retired 2016 tech talk to be skipped")
	}
	if !containsKey(res.ChangedKeys, "#2015-10020") {
		t.Fatal("expected 2015 tech talk to be kept")
	}

	cfg, err := f.repo.AppConfig(ctx)
	if err != nil || cfg == nil {
		t.Fatalf("expected stored config, got %v %v", cfg, err)
	}
	if cfg.VideosUpdatedAt != "" {
		t.Fatalf("expected remote config to be stored as fetched, got %q", cfg.VideosUpdatedAt)
	}
	state, err := f.repo.SyncState(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := repository.SyncState{CatalogStamp: "u1", LegacyCleanedUp: true}
	if state != want {
		t.Fatalf("expected sync state %+v, got %+v", want, state)
	}

	s, err := f.repo.Session(ctx, "#2016-402")
	if err != nil || s == nil {
		t.Fatalf("expected session, got %v %v", s, err)
	}
	if s.Focus != "iOS, macOS" {
		t.Fatalf("unexpected focus: %q", s.Focus)
	}

	sched, err := f.repo.ScheduledSession(ctx, "#2016-402")
	if err != nil || sched == nil {
		t.Fatalf("expected scheduled session, got %v %v", sched, err)
	}
	if sched.TrackName != "Developer Tools" {
		t.Fatalf("unexpected track reference: %q", sched.TrackName)
	}
	video, _ := f.repo.ScheduledSession(ctx, "#2016-501")
	if video == nil || !video.StartsAt.Equal(repository.FarFuture) {
		t.Fatalf("expected far future start for video slot, got %+v", video)
	}

	if len(f.indexer.starts) != 1 || len(f.indexer.starts[0]) != 3 {
		t.Fatalf("expected one indexing start with 3 keys, got %v", f.indexer.starts)
	}
	got := kinds(drain(f.events))
	if len(got) != 2 || got[0] != events.WWDCWeekEnded || got[1] != events.SessionsChanged {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestSync_UnchangedConfigSkipsCatalogAndSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Sync(ctx)
	drain(f.events)

	f.client.resetRequests()

	res := f.orch.Sync(ctx)
	if res.ConfigChanged {
		t.Fatal("expected config to be unchanged")
	}
	if len(f.client.requests) != 1 || f.client.requests[0] != "config" {
		t.Fatalf("expected only the config request, got %v", f.client.requests)
	}
	if got := drain(f.events); len(got) != 0 {
		t.Fatalf("expected no events, got %v", kinds(got))
	}
}

func TestSync_PreservesUserStateAndReportsOnlyRemoteChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Sync(ctx)

	favorite := repository.UserState{Favorite: true, Progress: 0.5, CurrentPosition: 1200}
	for _, key := range []string{"#2016-402", "#2015-101"} {
		err := f.repo.WithTx(ctx, func(tx repository.Tx) error {
			return tx.UpdateUserState(ctx, key, favorite)
		})
		if err != nil {
			t.Fatalf("failed to set user state: %v", err)
		}
	}

	f.client.config = configJSON(false, true, "u1")
	f.client.bodies[videosURL] = catalogJSON("u2", "What's New in Swift 3")
	res := f.orch.Sync(ctx)

	if !containsKey(res.ChangedKeys, "#2016-402") {
		t.Fatalf("expected retitled session to change, got %v", res.ChangedKeys)
	}
	if containsKey(res.ChangedKeys, "#2015-101") {
		t.Fatalf("expected unchanged session to be left out, got %v", res.ChangedKeys)
	}
	for _, key := range []string{"#2016-402", "#2015-101"} {
		s, err := f.repo.Session(ctx, key)
		if err != nil || s == nil {
			t.Fatalf("expected session %s, got %v %v", key, s, err)
		}
		if s.UserState != favorite {
			t.Fatalf("user state lost for %s: %+v", key, s.UserState)
		}
	}
	s, _ := f.repo.Session(ctx, "#2016-402")
	if s.Title != "What's New in Swift 3" {
		t.Fatalf("expected updated title, got %q", s.Title)
	}
}

func TestSync_FirstCycleLoadsCatalogWhenStampsMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.config = configJSON(false, false, "u1")

	for i := 0; i < 2; i++ {
		f.orch.Sync(ctx)
	}
	list, err := f.repo.Sessions(ctx, repository.SessionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 stored sessions, got %d", len(list))
	}
}

func TestSync_CatalogStampMatchSkipsProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Sync(ctx)
	drain(f.events)

	f.client.config = configJSON(true, false, "")
	f.client.resetRequests()
	res := f.orch.Sync(ctx)
	if !res.ConfigChanged {
		t.Fatal("expected config to be adopted")
	}
	if len(res.ChangedKeys) != 0 {
		t.Fatalf("expected no changed keys, got %v", res.ChangedKeys)
	}
	if !containsKey(f.client.requests, videosURL) {
		t.Fatalf("expected catalog to be fetched, got %v", f.client.requests)
	}
	evs := drain(f.events)
	last := evs[len(evs)-1]
	if last.Kind != events.SessionsChanged || len(last.Keys) != 0 {
		t.Fatalf("expected empty sessions changed event, got %+v", last)
	}
	state, _ := f.repo.SyncState(ctx)
	if state.CatalogPending {
		t.Fatal("expected catalog to be marked synced")
	}
}

func TestSync_CatalogFailureRetriedOnNextCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catalog := f.client.bodies[videosURL]
	delete(f.client.bodies, videosURL)

	f.orch.Sync(ctx)
	state, err := f.repo.SyncState(ctx)
	if err != nil || !state.CatalogPending {
		t.Fatalf("expected catalog to stay pending, got %+v %v", state, err)
	}
	if state.SchedulePending {
		t.Fatal("expected schedule to be marked synced")
	}

	f.client.bodies[videosURL] = catalog
	f.client.resetRequests()
	res := f.orch.Sync(ctx)
	if res.ConfigChanged {
		t.Fatal("expected config to be unchanged")
	}
	if len(res.ChangedKeys) != 3 {
		t.Fatalf("expected 3 changed keys after recovery, got %v", res.ChangedKeys)
	}
	if containsKey(f.client.requests, sessionsURL) {
		t.Fatalf("expected schedule not to be fetched again, got %v", f.client.requests)
	}

	f.client.resetRequests()
	f.orch.Sync(ctx)
	if len(f.client.requests) != 1 {
		t.Fatalf("expected only the config request once caught up, got %v", f.client.requests)
	}
}

func TestSync_WWDCWeekTransitionsFireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.config = configJSON(true, false, "")
	f.orch.Sync(ctx)
	if got := kinds(drain(f.events)); got[0] != events.WWDCWeekStarted {
		t.Fatalf("expected week started, got %v", got)
	}

	f.client.config = configJSON(true, true, "")
	f.orch.Sync(ctx)
	for _, k := range kinds(drain(f.events)) {
		if k == events.WWDCWeekStarted || k == events.WWDCWeekEnded {
			t.Fatalf("expected no week transition event, got %s", k)
		}
	}

	f.client.config = configJSON(false, true, "")
	f.orch.Sync(ctx)
	if got := kinds(drain(f.events)); got[0] != events.WWDCWeekEnded {
		t.Fatalf("expected week ended, got %v", got)
	}
}

func TestSync_ConfigFetchFailureKeepsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.configErr = errors.New("network is unreachable")

	res := f.orch.Sync(ctx)
	if res.ConfigChanged {
		t.Fatal("expected no config change on network failure")
	}
	if len(f.client.requests) != 1 {
		t.Fatalf("expected no follow-up requests, got %v", f.client.requests)
	}
	if cfg, _ := f.repo.AppConfig(ctx); cfg != nil {
		t.Fatalf("expected nothing stored, got %+v", cfg)
	}
}

func TestSync_CatalogFailureStillProcessesSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delete(f.client.bodies, videosURL)

	res := f.orch.Sync(ctx)
	if len(res.ChangedKeys) != 0 {
		t.Fatalf("expected no changed keys, got %v", res.ChangedKeys)
	}
	track, err := f.repo.Track(ctx, "Developer Tools")
	if err != nil || track == nil {
		t.Fatalf("expected track to be stored, got %v %v", track, err)
	}
}

func TestSync_LegacySessionsRemovedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := func(key string, id int) {
		t.Helper()
		err := f.repo.WithTx(ctx, func(tx repository.Tx) error {
			return tx.UpsertSession(ctx, repository.Session{Key: key, ID: id, Year: 2014})
		})
		if err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
	seed("#2014-10001", 10001)
	f.orch.Sync(ctx)
	if s, _ := f.repo.Session(ctx, "#2014-10001"); s != nil {
		t.Fatal("expected legacy session to be removed")
	}

	seed("#2014-10002", 10002)
	f.client.config = configJSON(true, false, "")
	if res := f.orch.Sync(ctx); !res.ConfigChanged {
		t.Fatal("expected config to be adopted")
	}
	if s, _ := f.repo.Session(ctx, "#2014-10002"); s == nil {
		t.Fatal("expected cleanup to run only once")
	}
}

func TestSync_TechTalkUserStateSurvivesCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Sync(ctx)

	state := repository.UserState{Favorite: true, Progress: 0.7}
	err := f.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.UpdateUserState(ctx, "#2015-10020", state)
	})
	if err != nil {
		t.Fatalf("failed to set user state: %v", err)
	}

	for _, cfg := range []string{configJSON(false, false, ""), configJSON(true, true, "u2")} {
		f.client.config = cfg
		res := f.orch.Sync(ctx)
		if containsKey(res.ChangedKeys, "#2015-10020") {
			t.Fatalf("expected tech talk to be unchanged, got %v", res.ChangedKeys)
		}
	}
	s, err := f.repo.Session(ctx, "#2015-10020")
	if err != nil || s == nil {
		t.Fatalf("expected tech talk session, got %v %v", s, err)
	}
	if s.UserState != state {
		t.Fatalf("expected user state %+v, got %+v", state, s.UserState)
	}
}

func TestSync_IndexingOutlivesCallerContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.orch.Sync(ctx)
	cancel()

	if len(f.indexer.ctxs) != 1 {
		t.Fatalf("expected one indexing start, got %d", len(f.indexer.ctxs))
	}
	if err := f.indexer.ctxs[0].Err(); err != nil {
		t.Fatalf("expected indexing context to survive the caller, got %v", err)
	}
}

func TestSync_IgnoredYearsNotIndexed(t *testing.T) {
	f := newFixture(t)
	f.cfg.TranscriptIgnoreYears = []int{2015}

	f.orch.Sync(context.Background())
	if len(f.indexer.starts) != 1 {
		t.Fatalf("expected one indexing start, got %v", f.indexer.starts)
	}
	keys := f.indexer.starts[0]
	if len(keys) != 1 || keys[0] != "#2016-402" {
		t.Fatalf("expected only 2016 keys, got %v", keys)
	}
}

func TestSync_IndexingDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.TranscriptIndexingEnabled = false
	f.cfg.TranscriptReloadYears = []int{2016}

	res := f.orch.Sync(context.Background())
	if res.IndexingStarted || res.ReloadStarted || len(f.indexer.starts) != 0 {
		t.Fatalf("expected no indexing, got %v", f.indexer.starts)
	}
}

func TestSync_ReloadYearsQueueMissingTranscripts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.Sync(ctx)
	f.client.config = configJSON(false, false, "u1")
	f.orch.Sync(ctx)
	f.indexer.starts = nil

	f.cfg.TranscriptReloadYears = []int{2015}
	res := f.orch.Sync(ctx)
	if !res.ReloadStarted {
		t.Fatal("expected reload to start")
	}
	keys := f.indexer.starts[0]
	if len(keys) != 2 || keys[0] != "#2015-101" || keys[1] != "#2015-10020" {
		t.Fatalf("unexpected reload keys: %v", keys)
	}
}

func TestLiveSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.bodies[liveURL] = `{"live_sessions":[{"id":1,"title":"Keynote","url":"https://cdn.test/keynote.m3u8"}],"special":[]}`

	if live, err := f.orch.LiveSessions(ctx); err != nil || live != nil {
		t.Fatalf("expected nil before a config is stored, got %v %v", live, err)
	}
	f.orch.Sync(ctx)
	live, err := f.orch.LiveSessions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 1 || live[0].StreamURL != "https://cdn.test/keynote.m3u8" {
		t.Fatalf("unexpected live sessions: %+v", live)
	}
}

func TestRefresh_RunsCycleInBackground(t *testing.T) {
	f := newFixture(t)
	f.orch.Refresh()
	f.orch.Wait()
	if cfg, _ := f.repo.AppConfig(context.Background()); cfg == nil {
		t.Fatal("expected background cycle to store the config")
	}
}
