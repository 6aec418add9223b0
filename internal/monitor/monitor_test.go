package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
	"github.com/DoyleJ11/lcu-draft-client/internal/extractor"
	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
)

const scenarioSession = `{
	"gameId": 0,
	"actions": [[{"type":"ban","championId":"266","isAllyAction":true,"completed":true}]],
	"myTeam": [{"championId":"103","team":1}],
	"theirTeam": [],
	"timer": {"phase":"BAN_PICK"}
}`

const laterSession = `{
	"actions": [[{"type":"ban","championId":"266","isAllyAction":true,"completed":true}]],
	"myTeam": [{"championId":"103","team":1}],
	"theirTeam": [{"championId":"11","team":2}],
	"timer": {"phase":"BAN_PICK"}
}`

type fakeTx struct {
	mu       sync.Mutex
	enqueued []draft.DraftData
	deleted  []string
	cleared  []string
	panicOn  int
	queued   chan draft.DraftData
}

func newFakeTx() *fakeTx {
	return &fakeTx{queued: make(chan draft.DraftData, 32)}
}

func (f *fakeTx) Enqueue(d draft.DraftData) error {
	f.mu.Lock()
	f.enqueued = append(f.enqueued, d)
	n := len(f.enqueued)
	f.mu.Unlock()
	if f.panicOn == n {
		panic("enqueue exploded")
	}
	f.queued <- d
	return nil
}

func (f *fakeTx) Delete(lobbyID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, lobbyID)
	return nil
}

func (f *fakeTx) ClearSuppression(lobbyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, lobbyID)
}

func (f *fakeTx) snapshot() (enqueued int, deleted, cleared []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued), append([]string{}, f.deleted...), append([]string{}, f.cleared...)
}

type fakeFetcher struct {
	raw   string
	err   error
	calls chan struct{}
}

func (f *fakeFetcher) ChampSelectSession(context.Context) (json.RawMessage, error) {
	if f.calls != nil {
		f.calls <- struct{}{}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.raw == "" {
		return nil, nil
	}
	return json.RawMessage(f.raw), nil
}

// gatedFetcher holds every call until its release channel is closed, then
// answers with the reply queued for that call. "" means no session.
type gatedFetcher struct {
	mu      sync.Mutex
	n       int
	replies []string
	release []chan struct{}
	started chan int
}

func newGatedFetcher(replies ...string) *gatedFetcher {
	f := &gatedFetcher{replies: replies, started: make(chan int, len(replies))}
	for range replies {
		f.release = append(f.release, make(chan struct{}))
	}
	return f
}

func (f *gatedFetcher) ChampSelectSession(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	i := f.n
	f.n++
	f.mu.Unlock()
	f.started <- i
	select {
	case <-f.release[i]:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.replies[i] == "" {
		return nil, nil
	}
	return json.RawMessage(f.replies[i]), nil
}

func (f *gatedFetcher) awaitCall(t *testing.T, want int) {
	t.Helper()
	select {
	case i := <-f.started:
		require.Equal(t, want, i)
	case <-time.After(time.Second):
		t.Fatalf("fetch %d not started", want)
	}
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recorder) ofType(t notify.Type) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.got {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type upperResolver struct{}

func (upperResolver) Annotate(_ context.Context, d draft.DraftData) draft.DraftData {
	out := d.Clone()
	for i, p := range out.Blue.Picks {
		if p == "103" {
			out.Blue.Picks[i] = "Ahri"
		}
	}
	return out
}

func startMonitor(t *testing.T, tx Transmitter, opts ...Option) *Monitor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := New("ws-1", tx, extractor.New(logger), logger, opts...)
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m
}

// status doubles as a barrier: it is answered after every earlier message.
func status(t *testing.T, m *Monitor) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := m.Status(ctx)
	require.NoError(t, err)
	return s
}

func recvDraft(t *testing.T, ch <-chan draft.DraftData, within time.Duration) draft.DraftData {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for enqueue")
	}
	return draft.DraftData{}
}

func lobby(id string) json.RawMessage {
	return json.RawMessage(`{"gameId":` + id + `}`)
}

func send(m *Monitor, msgs ...Msg) {
	for _, msg := range msgs {
		m.Inbox() <- msg
	}
}

func TestMonitor_ChampSelectScenarioQueuesOneDraft(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, "42", d.LobbyID)
	assert.Equal(t, "ws-1", d.WorkspaceID)
	assert.Equal(t, "BAN_PICK", d.Phase)
	assert.True(t, d.IsNewGame)
	assert.Equal(t, []string{"266"}, d.Blue.Bans)
	assert.Equal(t, []string{"103"}, d.Blue.Picks)
	assert.Empty(t, d.Red.Picks)
	assert.Empty(t, d.Red.Bans)
	assert.Equal(t, d.Hash(), d.DataHash)
	require.NoError(t, d.Validate())

	s := status(t, m)
	assert.Equal(t, MonitoringChampSelect.String(), s.State)
	assert.Equal(t, 1, s.Transmitted)
	n, _, _ := tx.snapshot()
	assert.Equal(t, 1, n)
}

func TestMonitor_IdleDiscardsSnapshots(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	for i := 0; i < 5; i++ {
		send(m, SessionUpdated{Raw: json.RawMessage(scenarioSession)})
	}
	send(m, PhaseChanged{Phase: PhaseLobby}, PhaseChanged{Phase: PhaseNone})

	s := status(t, m)
	assert.Equal(t, Idle.String(), s.State)
	assert.Equal(t, 5, s.Discarded)
	n, deleted, _ := tx.snapshot()
	assert.Zero(t, n)
	assert.Empty(t, deleted)
}

func TestMonitor_GameStartedDiscardsSnapshots(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
		PhaseChanged{Phase: PhaseInProgress},
		SessionUpdated{Raw: json.RawMessage(laterSession)},
	)

	s := status(t, m)
	assert.Equal(t, GameStarted.String(), s.State)
	assert.True(t, s.GameWentThrough)
	assert.Equal(t, 1, s.Discarded)
	n, _, _ := tx.snapshot()
	assert.Equal(t, 1, n)
}

func TestMonitor_CancellationDeletesExactlyOnce(t *testing.T) {
	cases := []struct {
		name     string
		terminal string
		reason   string
	}{
		{"dodge back to lobby", PhaseLobby, notify.ReasonDodge},
		{"champ select closed", PhaseNone, notify.ReasonCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := newFakeTx()
			rec := &recorder{}
			m := startMonitor(t, tx, WithPublisher(rec))

			send(m,
				LobbyUpdated{Raw: lobby("42")},
				PhaseChanged{Phase: PhaseChampSelect},
				SessionUpdated{Raw: json.RawMessage(scenarioSession)},
				PhaseChanged{Phase: tc.terminal},
				PhaseChanged{Phase: tc.terminal},
			)

			s := status(t, m)
			assert.Equal(t, Idle.String(), s.State)
			assert.Empty(t, s.LobbyID)
			assert.Equal(t, 1, s.Deletions)

			_, deleted, cleared := tx.snapshot()
			assert.Equal(t, []string{"42"}, deleted)
			assert.Equal(t, []string{"42"}, cleared)

			cancelled := rec.ofType(notify.ChampSelectCancelled)
			require.Len(t, cancelled, 1)
			assert.Equal(t, tc.reason, cancelled[0].Reason)
			assert.Equal(t, "42", cancelled[0].LobbyID)
		})
	}
}

func TestMonitor_CancellationWithoutDraftDoesNotDelete(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(`{"timer":{"phase":"PLANNING"}}`)},
		PhaseChanged{Phase: PhaseLobby},
	)

	s := status(t, m)
	assert.Equal(t, Idle.String(), s.State)
	assert.Equal(t, 1, s.Invalid)
	_, deleted, _ := tx.snapshot()
	assert.Empty(t, deleted)
}

func TestMonitor_GameCompletionNeverDeletes(t *testing.T) {
	tx := newFakeTx()
	rec := &recorder{}
	m := startMonitor(t, tx, WithPublisher(rec))

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
		PhaseChanged{Phase: PhaseInProgress},
		PhaseChanged{Phase: PhaseEndOfGame},
		PhaseChanged{Phase: PhaseNone},
		PhaseChanged{Phase: PhaseLobby},
	)

	s := status(t, m)
	assert.Equal(t, Idle.String(), s.State)
	assert.Zero(t, s.Deletions)
	_, deleted, cleared := tx.snapshot()
	assert.Empty(t, deleted)
	assert.Equal(t, []string{"42"}, cleared)

	assert.Len(t, rec.ofType(notify.GameStarted), 1)
	assert.Len(t, rec.ofType(notify.GameEnded), 1)
	assert.Empty(t, rec.ofType(notify.ChampSelectCancelled))
}

func TestMonitor_ChangeDetection(t *testing.T) {
	cases := []struct {
		name      string
		enabled   bool
		wantSends int
	}{
		{"enabled", true, 2},
		{"disabled", false, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := newFakeTx()
			m := startMonitor(t, tx, WithChangeDetection(tc.enabled))

			send(m,
				LobbyUpdated{Raw: lobby("42")},
				PhaseChanged{Phase: PhaseChampSelect},
				SessionUpdated{Raw: json.RawMessage(scenarioSession)},
				SessionUpdated{Raw: json.RawMessage(scenarioSession)},
				SessionUpdated{Raw: json.RawMessage(laterSession)},
			)

			s := status(t, m)
			n, _, _ := tx.snapshot()
			assert.Equal(t, tc.wantSends, n)
			assert.Equal(t, tc.wantSends, s.Transmitted)
		})
	}
}

func TestMonitor_IsNewGameOnlyOnFirstDraft(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
		SessionUpdated{Raw: json.RawMessage(laterSession)},
	)

	first := recvDraft(t, tx.queued, time.Second)
	second := recvDraft(t, tx.queued, time.Second)
	assert.True(t, first.IsNewGame)
	assert.False(t, second.IsNewGame)
	assert.Equal(t, []string{"11"}, second.Red.Picks)
}

func TestMonitor_RefetchOnEnteringChampSelect(t *testing.T) {
	tx := newFakeTx()
	fetcher := &fakeFetcher{raw: scenarioSession}
	m := startMonitor(t, tx, WithFetcher(fetcher))

	send(m, LobbyUpdated{Raw: lobby("7")}, PhaseChanged{Phase: PhaseChampSelect})

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, "7", d.LobbyID)
	assert.Equal(t, []string{"266"}, d.Blue.Bans)
}

func TestMonitor_LateRefetchDoesNotRollBackPushedSession(t *testing.T) {
	tx := newFakeTx()
	fetcher := newGatedFetcher(scenarioSession)
	m := startMonitor(t, tx, WithFetcher(fetcher))

	send(m, LobbyUpdated{Raw: lobby("42")}, PhaseChanged{Phase: PhaseChampSelect})
	fetcher.awaitCall(t, 0)

	send(m, SessionUpdated{Raw: json.RawMessage(laterSession)})
	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, []string{"11"}, d.Red.Picks)

	close(fetcher.release[0])
	require.Eventually(t, func() bool { return status(t, m).Discarded == 1 }, time.Second, 5*time.Millisecond)

	s := status(t, m)
	assert.Equal(t, d.DataHash, s.LastHash)
	n, _, _ := tx.snapshot()
	assert.Equal(t, 1, n)
}

func TestMonitor_RefetchFromEarlierChampSelectIsDropped(t *testing.T) {
	tx := newFakeTx()
	fetcher := newGatedFetcher(scenarioSession, "")
	m := startMonitor(t, tx, WithFetcher(fetcher))

	send(m, LobbyUpdated{Raw: lobby("1")}, PhaseChanged{Phase: PhaseChampSelect})
	fetcher.awaitCall(t, 0)

	send(m,
		PhaseChanged{Phase: PhaseLobby},
		LobbyUpdated{Raw: lobby("2")},
		PhaseChanged{Phase: PhaseChampSelect},
	)
	fetcher.awaitCall(t, 1)
	close(fetcher.release[1])

	close(fetcher.release[0])
	require.Eventually(t, func() bool { return status(t, m).Discarded == 1 }, time.Second, 5*time.Millisecond)

	s := status(t, m)
	assert.Equal(t, MonitoringChampSelect.String(), s.State)
	assert.Equal(t, "2", s.LobbyID)
	assert.Zero(t, s.Snapshots)
	n, _, _ := tx.snapshot()
	assert.Zero(t, n, "a session from lobby 1 must never be sent as lobby 2")
}

func TestMonitor_RefetchFailureIsHarmless(t *testing.T) {
	tx := newFakeTx()
	fetcher := &fakeFetcher{err: errors.New("client gone"), calls: make(chan struct{}, 1)}
	m := startMonitor(t, tx, WithFetcher(fetcher))

	send(m, PhaseChanged{Phase: PhaseChampSelect})
	select {
	case <-fetcher.calls:
	case <-time.After(time.Second):
		t.Fatalf("refetch not attempted")
	}
	assert.Equal(t, MonitoringChampSelect.String(), status(t, m).State)
}

func TestMonitor_LobbyIdFromSessionWhenUndiscovered(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	withGame := `{"gameId":555,"actions":[[{"type":"ban","championId":1,"isAllyAction":false,"completed":true}]]}`
	send(m, PhaseChanged{Phase: PhaseChampSelect}, SessionUpdated{Raw: json.RawMessage(withGame)})

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, "555", d.LobbyID)
	assert.Equal(t, []string{"1"}, d.Red.Bans)
}

func TestMonitor_NoLobbyIdMeansNoTransmission(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m, PhaseChanged{Phase: PhaseChampSelect}, SessionUpdated{Raw: json.RawMessage(scenarioSession)})

	s := status(t, m)
	assert.Equal(t, 1, s.Invalid)
	n, _, _ := tx.snapshot()
	assert.Zero(t, n)
}

func TestMonitor_LobbyDiscoveryOnlyWhileIdle(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		LobbyUpdated{Raw: lobby("99")},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, "42", d.LobbyID)
}

func TestMonitor_IgnoresUnusableSnapshots(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx)

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(`null`)},
		SessionUpdated{Raw: json.RawMessage(`{"actions":[]}`)},
		SessionUpdated{Raw: json.RawMessage(`{not json`)},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, "42", d.LobbyID)
	assert.Equal(t, 4, status(t, m).Snapshots)
}

func TestMonitor_SurvivesPanicInHandler(t *testing.T) {
	tx := newFakeTx()
	tx.panicOn = 1
	m := startMonitor(t, tx, WithChangeDetection(false))

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)

	recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, MonitoringChampSelect.String(), status(t, m).State)
}

func TestMonitor_ResolverRunsBeforeHashing(t *testing.T) {
	tx := newFakeTx()
	m := startMonitor(t, tx, WithResolver(upperResolver{}))

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)

	d := recvDraft(t, tx.queued, time.Second)
	assert.Equal(t, []string{"Ahri"}, d.Blue.Picks)
	assert.Equal(t, d.Hash(), d.DataHash)
}

func TestMonitor_ConnectionNotifications(t *testing.T) {
	rec := &recorder{}
	m := startMonitor(t, newFakeTx(), WithPublisher(rec))

	m.OnDisconnected(errors.New("socket closed"))
	assert.False(t, status(t, m).Connected)
	m.OnConnected()
	assert.True(t, status(t, m).Connected)

	lost := rec.ofType(notify.ConnectionLost)
	require.Len(t, lost, 1)
	assert.Equal(t, "socket closed", lost[0].Message)
	assert.Len(t, rec.ofType(notify.ConnectionRestored), 1)
}

func TestMonitor_StartedNotificationOncePerChampSelect(t *testing.T) {
	rec := &recorder{}
	m := startMonitor(t, newFakeTx(), WithPublisher(rec))

	send(m,
		LobbyUpdated{Raw: lobby("42")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
		SessionUpdated{Raw: json.RawMessage(laterSession)},
		PhaseChanged{Phase: PhaseLobby},
		LobbyUpdated{Raw: lobby("43")},
		PhaseChanged{Phase: PhaseChampSelect},
		SessionUpdated{Raw: json.RawMessage(scenarioSession)},
	)
	status(t, m)

	started := rec.ofType(notify.ChampSelectStarted)
	require.Len(t, started, 2)
	assert.Equal(t, "42", started[0].LobbyID)
	assert.Equal(t, "43", started[1].LobbyID)

	changes := rec.ofType(notify.StateChanged)
	require.Len(t, changes, 3)
	assert.Equal(t, "Idle", changes[0].From)
	assert.Equal(t, "MonitoringChampSelect", changes[0].To)
}

func TestMonitor_StopEndsLoop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := New("ws", newFakeTx(), extractor.New(logger), logger)
	m.Stop()
	m.Start(context.Background())
	m.Stop()
	m.Stop()

	_, err := m.Status(context.Background())
	assert.Error(t, err)
	m.OnPhase(PhaseChampSelect)
}
