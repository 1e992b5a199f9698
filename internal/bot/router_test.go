package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sitewatch/internal/monitor"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
	edits []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) lastSent(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("nothing edited")
	}
	return f.edits[len(f.edits)-1]
}

type fixture struct {
	router  *Router
	adapter *fakeAdapter
	store   storage.Store
	srvURL  string
}

func newFixture(t *testing.T, admins ...int64) *fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	mon := monitor.New(monitor.Config{ProbeTimeout: 2 * time.Second}, store, nil, logx.Nop())
	adapter := &fakeAdapter{}
	router := New(Config{AdminIDs: admins}, store, mon, adapter, logx.Nop())
	return &fixture{router: router, adapter: adapter, store: store, srvURL: srv.URL}
}

func (f *fixture) message(chatID int64, text string) {
	f.router.dispatch(context.Background(), transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ChatID:    chatID,
			FromID:    chatID,
			FromFirst: "Test",
			Text:      text,
		},
	})
}

func (f *fixture) callback(chatID int64, data string) {
	f.router.dispatch(context.Background(), transport.Update{
		Kind: transport.UpdateCallback,
		Callback: &transport.Callback{
			ID:        "cb1",
			FromID:    chatID,
			ChatID:    chatID,
			MessageID: 1,
			Data:      data,
		},
	})
}

func TestStartRegistersUserAndShowsMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.message(100, "/start")

	if got := f.adapter.lastSent(t); !strings.Contains(got, "Hi Test") {
		t.Fatalf("welcome = %q", got)
	}
	users, err := f.store.Users(context.Background())
	if err != nil || len(users) != 1 || users[0].ChatID != 100 {
		t.Fatalf("users = %+v, %v", users, err)
	}
	if users[0].Role != storage.RoleUser {
		t.Fatalf("role = %q, want user", users[0].Role)
	}
}

func TestAdminRoleAssigned(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 100)
	f.message(100, "/start")
	users, _ := f.store.Users(context.Background())
	if len(users) != 1 || users[0].Role != storage.RoleAdmin {
		t.Fatalf("users = %+v", users)
	}
}

func TestAddFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.message(100, "/add")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Send the URL") {
		t.Fatalf("prompt = %q", got)
	}

	f.message(100, "not-a-url")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "doesn't look like a URL") {
		t.Fatalf("rejection = %q", got)
	}

	f.message(100, f.srvURL)
	if got := f.adapter.lastSent(t); !strings.Contains(got, "send a short name") {
		t.Fatalf("name prompt = %q", got)
	}

	f.message(100, "My Site")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Saved") {
		t.Fatalf("confirmation = %q", got)
	}

	target, err := f.store.TargetByURL(ctx, f.srvURL)
	if err != nil {
		t.Fatalf("target not created: %v", err)
	}
	if target.Name != "My Site" {
		t.Fatalf("name = %q", target.Name)
	}
	// The add flow probes immediately.
	if target.Status != storage.StatusOnline {
		t.Fatalf("status after add = %q, want online", target.Status)
	}
}

func TestAddExistingURLSubscribes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.CreateTarget(ctx, f.srvURL, "Shared", 200); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	f.message(100, "/add "+f.srvURL)
	if got := f.adapter.lastSent(t); !strings.Contains(got, "You now watch") {
		t.Fatalf("subscribe reply = %q", got)
	}

	target, _ := f.store.TargetByURL(ctx, f.srvURL)
	if len(target.Subscribers) != 2 {
		t.Fatalf("subscribers = %v", target.Subscribers)
	}

	// Adding it again is a no-op with a friendly reply.
	f.message(100, "/add "+f.srvURL)
	if got := f.adapter.lastSent(t); !strings.Contains(got, "already watching") {
		t.Fatalf("repeat reply = %q", got)
	}
}

func TestCancelClearsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.message(100, "/add")
	f.message(100, "/cancel")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Cancelled") {
		t.Fatalf("cancel reply = %q", got)
	}
	// Free text after cancel must not be treated as a URL.
	f.message(100, "https://example.com")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "didn't get that") {
		t.Fatalf("post-cancel reply = %q", got)
	}
}

func TestListEmptyAndPopulated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.message(100, "/list")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "aren't watching any sites") {
		t.Fatalf("empty list = %q", got)
	}

	if _, err := f.store.CreateTarget(ctx, f.srvURL, "My Site", 100); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	f.message(100, "/list")
	got := f.adapter.lastSent(t)
	if !strings.Contains(got, "My Site") || !strings.Contains(got, f.srvURL) {
		t.Fatalf("list = %q", got)
	}
	// The site name links to the URL.
	if !strings.Contains(got, `<a href="`+f.srvURL+`">My Site</a>`) {
		t.Fatalf("list name is not a link: %q", got)
	}
}

func TestMenuLabelsRouteLikeCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.message(100, menuHelp)
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Commands") {
		t.Fatalf("help via menu label = %q", got)
	}
}

func TestCheckNowReportsResults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.store.CreateTarget(context.Background(), f.srvURL, "My Site", 100); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	f.message(100, "/check")
	got := f.adapter.lastSent(t)
	if !strings.Contains(got, "Check results") || !strings.Contains(got, "online") {
		t.Fatalf("check reply = %q", got)
	}
}

func TestDeleteFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	target, err := f.store.CreateTarget(ctx, f.srvURL, "Doomed", 100)
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	f.message(100, "/delete")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "stop watching") {
		t.Fatalf("pick prompt = %q", got)
	}

	f.callback(100, "tgt:del:"+formatID(target.ID))
	if got := f.adapter.lastEdit(t); !strings.Contains(got, "Stop watching") {
		t.Fatalf("confirm = %q", got)
	}

	f.callback(100, "tgt:delyes:"+formatID(target.ID))
	if got := f.adapter.lastEdit(t); !strings.Contains(got, "Removed") {
		t.Fatalf("removal = %q", got)
	}
	// Last subscriber gone, the target must be gone too.
	if _, err := f.store.TargetByID(ctx, target.ID); err == nil {
		t.Fatalf("target survived deletion")
	}
}

func TestDeleteKeepsTargetWithOtherSubscribers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	target, _ := f.store.CreateTarget(ctx, f.srvURL, "Shared", 100)
	if _, err := f.store.AddSubscriber(ctx, target.ID, 200); err != nil {
		t.Fatalf("AddSubscriber: %v", err)
	}

	f.callback(100, "tgt:delyes:"+formatID(target.ID))

	got, err := f.store.TargetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("target deleted despite remaining subscriber: %v", err)
	}
	if len(got.Subscribers) != 1 || got.Subscribers[0] != 200 {
		t.Fatalf("subscribers = %v", got.Subscribers)
	}
}

func TestEditRenameFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	target, _ := f.store.CreateTarget(ctx, f.srvURL, "Old Name", 100)

	f.callback(100, "tgt:ename:"+formatID(target.ID))
	if got := f.adapter.lastSent(t); !strings.Contains(got, "new name") {
		t.Fatalf("rename prompt = %q", got)
	}

	f.message(100, "New Name")
	got, _ := f.store.TargetByID(ctx, target.ID)
	if got.Name != "New Name" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestCallbackOwnershipEnforced(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	target, _ := f.store.CreateTarget(ctx, f.srvURL, "Private", 100)

	// Chat 999 never subscribed; its callback must not delete anything.
	f.callback(999, "tgt:delyes:"+formatID(target.ID))
	if _, err := f.store.TargetByID(ctx, target.ID); err != nil {
		t.Fatalf("foreign callback deleted the target: %v", err)
	}
}

func TestAdminCommandsGated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 42)

	f.message(100, "/stats")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "for admins") {
		t.Fatalf("non-admin stats = %q", got)
	}

	f.message(42, "/stats")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Bot stats") {
		t.Fatalf("admin stats = %q", got)
	}

	f.message(42, "/users")
	if got := f.adapter.lastSent(t); !strings.Contains(got, "Users") {
		t.Fatalf("admin users = %q", got)
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		cmd, arg string
	}{
		{"/start", "start", ""},
		{"/add https://example.com", "add", "https://example.com"},
		{"/list@sitewatch_bot", "list", ""},
		{"/ADD@Bot  spaced  ", "add", "spaced"},
	}
	for _, tc := range cases {
		cmd, arg := splitCommand(tc.in)
		if cmd != tc.cmd || arg != tc.arg {
			t.Fatalf("splitCommand(%q) = %q, %q; want %q, %q", tc.in, cmd, arg, tc.cmd, tc.arg)
		}
	}
}
