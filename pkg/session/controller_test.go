package session

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"photoshare/pkg/api"
	"photoshare/pkg/api/apitest"
	"photoshare/pkg/auth"
	"photoshare/pkg/models"
	"photoshare/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
)

// scenarioToken carries {"userId":"u1"}
const scenarioToken = "h.eyJ1c2VySWQiOiJ1MSJ9.s"

type fixture struct {
	srv    *apitest.Server
	tokens *store.FileStore
	mgr    *Manager
}

func newFixture(t *testing.T, photos ...models.Photo) *fixture {
	t.Helper()
	srv := apitest.NewServer(photos...)
	t.Cleanup(srv.Close)

	tokens, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(api.New(srv.URL, 5*time.Second), tokens, auth.UntrustedReader{}, log.New(io.Discard))
	return &fixture{srv: srv, tokens: tokens, mgr: mgr}
}

// open is one page load of clientID
func (f *fixture) open(clientID string) *Controller {
	c := f.mgr.Get(context.Background(), clientID)
	c.Initialize(context.Background())
	return c
}

func (f *fixture) loggedIn(t *testing.T, clientID string) *Controller {
	t.Helper()
	f.srv.AddUser("alice", "x")
	f.srv.SetToken("alice", scenarioToken)

	c := f.open(clientID)
	c.SetCredentials("alice", "x")
	if err := c.LogIn(context.Background()); err != nil {
		t.Fatalf("LogIn() error = %v", err)
	}
	return c
}

func samplePhotos() []models.Photo {
	return []models.Photo{
		{ID: "a", URL: "/a.jpg", User: models.PhotoUser{Username: "alice"}, Likes: 3},
		{ID: "b", URL: "/b.jpg", User: models.PhotoUser{Username: "bob"}, Likes: 9},
	}
}

func TestInitializeEmptyAPI(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")

	v := c.Snapshot()
	if v.Authenticated {
		t.Error("fresh client should be unauthenticated")
	}
	if v.Photos == nil || len(v.Photos) != 0 || v.TopPhotos == nil || len(v.TopPhotos) != 0 {
		t.Errorf("lists = %v / %v, want both empty", v.Photos, v.TopPhotos)
	}
	if f.srv.Requests("GET /photos") != 1 || f.srv.Requests("GET /top-photos") != 1 {
		t.Errorf("initial load requests = %d, %d", f.srv.Requests("GET /photos"), f.srv.Requests("GET /top-photos"))
	}

}

func TestInitializeReloadsListsEveryLoad(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")
	if len(c.Snapshot().Photos) != 0 {
		t.Fatal("expected an empty first load")
	}

	// another user uploads between two loads of this client
	other := f.loggedIn(t, "c2")
	other.SelectImage(&models.PendingUpload{Filename: "fresh.png", Data: []byte("png")})
	if err := other.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}

	c = f.open("c1")
	v := c.Snapshot()
	if len(v.Photos) != 1 || v.Photos[0].URL != "/uploads/fresh.png" {
		t.Errorf("Photos = %+v, want the other client's upload", v.Photos)
	}
	if len(v.TopPhotos) != 1 {
		t.Errorf("TopPhotos = %+v", v.TopPhotos)
	}
}

func TestInitializeRestoresTokenOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.tokens.Set(context.Background(), "c1", scenarioToken); err != nil {
		t.Fatal(err)
	}
	c := f.open("c1")
	if !c.Authenticated() {
		t.Fatal("stored token not restored")
	}

	// a later load does not resurrect a token dropped in memory
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	f.open("c1")
	if c.Authenticated() {
		t.Error("token re-read from storage on a later load")
	}
}

func TestInitializeStoresListsIndependently(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	f.srv.SetFail(apitest.TopPhotos, true)

	v := f.open("c1").Snapshot()
	if !reflect.DeepEqual(v.Photos, samplePhotos()) {
		t.Errorf("Photos = %+v, want them despite /top-photos failing", v.Photos)
	}
	if len(v.TopPhotos) != 0 {
		t.Errorf("TopPhotos = %+v, want empty", v.TopPhotos)
	}
}

func TestInitializeRecoversAfterFailedLoad(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	f.srv.SetFail(apitest.Reads, true)
	c := f.open("c1")
	if len(c.Snapshot().Photos) != 0 {
		t.Fatal("failed load produced photos")
	}

	f.srv.SetFail(apitest.Reads, false)
	f.open("c1")
	if len(c.Snapshot().Photos) != 2 {
		t.Errorf("Photos = %+v after the API recovered", c.Snapshot().Photos)
	}
}

func TestInitializeLoadsLists(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	v := f.open("c1").Snapshot()

	if !reflect.DeepEqual(v.Photos, samplePhotos()) {
		t.Errorf("Photos = %+v", v.Photos)
	}
	if len(v.TopPhotos) != 2 || v.TopPhotos[0].ID != "b" {
		t.Errorf("TopPhotos = %+v, want server ranking", v.TopPhotos)
	}
}

func TestInitializeReadFailureKeepsEmptyState(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	f.srv.SetFail(apitest.Reads, true)

	v := f.open("c1").Snapshot()
	if len(v.Photos) != 0 || len(v.TopPhotos) != 0 {
		t.Errorf("failed load produced lists %v / %v", v.Photos, v.TopPhotos)
	}
}

func TestLoginPersistsTokenAcrossLoads(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t, "c1")

	if !c.Authenticated() || c.Token() != scenarioToken {
		t.Fatalf("after login Authenticated = %v, token = %q", c.Authenticated(), c.Token())
	}
	stored, ok, err := f.tokens.Get(context.Background(), "c1")
	if err != nil || !ok || stored != scenarioToken {
		t.Fatalf("stored token = %q, %v, %v", stored, ok, err)
	}
	if v := c.Snapshot(); v.DraftUsername != "" {
		t.Errorf("drafts kept after login: %q", v.DraftUsername)
	}

	// a new app load for the same client starts authenticated
	f.mgr.Remove("c1")
	reloaded := f.open("c1")
	if reloaded == c {
		t.Fatal("Remove did not drop the controller")
	}
	if !reloaded.Snapshot().Authenticated {
		t.Error("reloaded client should start authenticated")
	}

	// other clients are unaffected
	if f.open("c2").Authenticated() {
		t.Error("c2 picked up c1's token")
	}
}

func TestLoginFailureSetsNoToken(t *testing.T) {
	f := newFixture(t)
	f.srv.AddUser("alice", "x")
	c := f.open("c1")
	c.SetCredentials("alice", "wrong")

	err := c.LogIn(context.Background())
	if api.StatusCode(err) != 401 {
		t.Fatalf("LogIn() error = %v, want 401", err)
	}
	if c.Authenticated() {
		t.Error("failed login authenticated the client")
	}
	if _, ok, _ := f.tokens.Get(context.Background(), "c1"); ok {
		t.Error("failed login stored a token")
	}
}

func TestSignUpDoesNotLogIn(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")
	c.SetCredentials("alice", "x")

	if err := c.SignUp(context.Background()); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if c.Authenticated() {
		t.Error("sign up logged the user in")
	}
	if got := c.ConsumeNotice(); got != NoticeSignedUp {
		t.Errorf("notice = %q, want %q", got, NoticeSignedUp)
	}
	if got := c.ConsumeNotice(); got != "" {
		t.Errorf("notice not cleared: %q", got)
	}

	// duplicate username is reported by the server
	if err := c.SignUp(context.Background()); api.StatusCode(err) != 409 {
		t.Errorf("duplicate SignUp() error = %v, want 409", err)
	}
}

func TestSignUpRequiresDrafts(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")
	before := f.srv.TotalRequests()

	if err := c.SignUp(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("SignUp() error = %v", err)
	}
	if f.srv.TotalRequests() != before {
		t.Error("SignUp with empty drafts called the API")
	}
	if c.ConsumeNotice() != NoticeMissingCredentials {
		t.Error("missing credentials notice not set")
	}
}

func TestLogOutAlwaysClears(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t, "c1")
	f.srv.SetFail(apitest.Reads, true) // network state is irrelevant
	before := f.srv.TotalRequests()

	c.LogOut(context.Background())

	if c.Authenticated() {
		t.Error("still authenticated after logout")
	}
	if _, ok, _ := f.tokens.Get(context.Background(), "c1"); ok {
		t.Error("token still stored after logout")
	}
	if f.srv.TotalRequests() != before {
		t.Error("logout contacted the server")
	}

	// logging out twice is fine
	c.LogOut(context.Background())
}

func TestUploadWithoutImage(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t, "c1")
	before := f.srv.TotalRequests()

	err := c.Upload(context.Background())
	if !errors.Is(err, ErrNoImageSelected) {
		t.Fatalf("Upload() error = %v, want ErrNoImageSelected", err)
	}
	if f.srv.TotalRequests() != before {
		t.Error("upload without image issued a request")
	}
	if got := c.ConsumeNotice(); got != NoticeSelectImage {
		t.Errorf("notice = %q, want %q", got, NoticeSelectImage)
	}

	// the notice is shown even when logged out
	c.LogOut(context.Background())
	if err := c.Upload(context.Background()); !errors.Is(err, ErrNoImageSelected) {
		t.Fatalf("Upload() logged out error = %v", err)
	}
	if c.ConsumeNotice() != NoticeSelectImage {
		t.Error("notice missing when logged out")
	}
}

func TestUploadRequiresLogin(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")
	c.SelectImage(&models.PendingUpload{Filename: "x.png", Data: []byte("x")})

	if err := c.Upload(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Upload() error = %v, want ErrNotAuthenticated", err)
	}
	if n := f.srv.Requests("POST /upload"); n != 0 {
		t.Errorf("upload requests = %d", n)
	}
}

func TestUploadAppendsAndRefreshes(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.loggedIn(t, "c1")
	c.SelectImage(&models.PendingUpload{Filename: "cat.png", ContentType: "image/png", Data: []byte("png")})

	changed, cancel := c.Subscribe()
	defer cancel()

	if err := c.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	uploads := f.srv.Uploads()
	if len(uploads) != 1 || uploads[0].UserID != "u1" || uploads[0].Authorization != "Bearer "+scenarioToken {
		t.Fatalf("uploads = %+v", uploads)
	}

	v := c.Snapshot()
	if len(v.Photos) != 3 || v.Photos[2].ID != "p1" {
		t.Errorf("Photos = %+v, want uploaded p1 last", v.Photos)
	}
	if v.SelectedImage != "" {
		t.Errorf("pending image kept after upload: %q", v.SelectedImage)
	}
	// page load + refresh after upload
	if n := f.srv.Requests("GET /top-photos"); n != 2 {
		t.Errorf("top-photos requests = %d, want 2", n)
	}

	select {
	case <-changed:
	default:
		t.Error("subscriber not signalled")
	}
}

func TestUploadAppendsBeforeRefresh(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.loggedIn(t, "c1")
	c.SelectImage(&models.PendingUpload{Filename: "cat.png", Data: []byte("png")})
	f.srv.SetFail(apitest.Reads, true)

	if err := c.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	v := c.Snapshot()
	if len(v.Photos) != 3 || v.Photos[2].ID != "p1" || v.Photos[2].URL != "/uploads/cat.png" {
		t.Errorf("Photos = %+v, want the returned photo appended", v.Photos)
	}
	if !reflect.DeepEqual(v.Photos[:2], samplePhotos()) {
		t.Errorf("existing photos changed: %+v", v.Photos[:2])
	}
}

func TestUploadFailureLeavesState(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.loggedIn(t, "c1")
	file := &models.PendingUpload{Filename: "cat.png", Data: []byte("png")}
	c.SelectImage(file)
	f.srv.SetFail(apitest.Upload, true)
	before := c.Snapshot()

	if err := c.Upload(context.Background()); api.StatusCode(err) != 500 {
		t.Fatalf("Upload() error = %v, want 500", err)
	}

	after := c.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("state changed after failed upload:\nbefore %+v\nafter  %+v", before, after)
	}
	if after.Notice != "" {
		t.Errorf("failed upload surfaced a notice %q", after.Notice)
	}
}

func TestLikeUsesServerCount(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.loggedIn(t, "c1")
	// the server knows about likes the client has not seen yet
	f.srv.SetLikes("a", 41)

	if err := c.Like(context.Background(), "a"); err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	bodies := f.srv.LikeBodies()
	if len(bodies) != 1 || bodies[0] != (models.LikeRequest{PhotoID: "a", UserID: "u1"}) {
		t.Fatalf("like bodies = %+v", bodies)
	}

	v := c.Snapshot()
	if v.Photos[0].ID != "a" || v.Photos[0].Likes != 42 {
		t.Errorf("photo a = %+v, want 42 likes from the server", v.Photos[0])
	}
	if v.TopPhotos[0].ID != "a" {
		t.Errorf("TopPhotos not refreshed: %+v", v.TopPhotos)
	}
}

func TestLikeReplacesRecordBeforeRefresh(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.loggedIn(t, "c1")
	f.srv.SetLikes("a", 41)
	f.srv.SetFail(apitest.Reads, true)

	if err := c.Like(context.Background(), "a"); err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	v := c.Snapshot()
	if v.Photos[0].ID != "a" || v.Photos[0].Likes != 42 {
		t.Errorf("photo a = %+v, want the returned record", v.Photos[0])
	}
	if v.Photos[1] != samplePhotos()[1] {
		t.Errorf("photo b changed: %+v", v.Photos[1])
	}
	// top photos wait for the refresh
	if v.TopPhotos[0].ID != "b" {
		t.Errorf("TopPhotos = %+v", v.TopPhotos)
	}
}

func TestLikeRequiresLoginAndID(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.open("c1")

	if err := c.Like(context.Background(), "a"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Like() logged out error = %v", err)
	}
	c = f.loggedIn(t, "c1")
	if err := c.Like(context.Background(), ""); !errors.Is(err, ErrMissingPhotoID) {
		t.Errorf("Like(\"\") error = %v", err)
	}
	if n := f.srv.Requests("POST /like"); n != 0 {
		t.Errorf("like requests = %d", n)
	}
}

func TestLikeWithUnreadableToken(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	f.srv.AddUser("alice", "x")
	f.srv.SetToken("alice", "opaque-token")
	c := f.open("c1")
	c.SetCredentials("alice", "x")
	if err := c.LogIn(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Like(context.Background(), "a"); !errors.Is(err, auth.ErrMalformedToken) {
		t.Errorf("Like() error = %v, want ErrMalformedToken", err)
	}
}

func TestRefreshIdempotent(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.open("c1")

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := c.Snapshot()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := c.Snapshot()

	if !reflect.DeepEqual(first.Photos, second.Photos) || !reflect.DeepEqual(first.TopPhotos, second.TopPhotos) {
		t.Errorf("refresh not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRefreshFailureKeepsLists(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.open("c1")
	before := c.Snapshot()

	f.srv.SetFail(apitest.Reads, true)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail")
	}
	if !reflect.DeepEqual(before.Photos, c.Snapshot().Photos) {
		t.Error("failed refresh changed the lists")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFixture(t, samplePhotos()...)
	c := f.open("c1")

	v := c.Snapshot()
	v.Photos[0].Likes = 1000
	if c.Snapshot().Photos[0].Likes == 1000 {
		t.Error("Snapshot shares memory with controller state")
	}
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	c := f.open("c1")
	ch, cancel := c.Subscribe()
	cancel()
	cancel()

	c.SetNotice("hello")
	select {
	case <-ch:
		t.Error("signal delivered after unsubscribe")
	default:
	}
}

func TestExpiredTokenLogsOut(t *testing.T) {
	const secret = "s3cret"
	f := newFixture(t, samplePhotos()...)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	f.srv.AddUser("alice", "x")
	f.srv.SetToken("alice", expired)

	c := NewController("c1", api.New(f.srv.URL, 5*time.Second), f.tokens, auth.NewReader(secret), log.New(io.Discard))
	c.SetCredentials("alice", "x")
	if err := c.LogIn(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Like(context.Background(), "a"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Like() error = %v, want ErrSessionExpired", err)
	}
	if c.Authenticated() {
		t.Error("still authenticated with an expired token")
	}
	if _, ok, _ := f.tokens.Get(context.Background(), "c1"); ok {
		t.Error("expired token kept in storage")
	}
	if got := c.ConsumeNotice(); got != NoticeSessionExpired {
		t.Errorf("notice = %q", got)
	}
	if n := f.srv.Requests("POST /like"); n != 0 {
		t.Errorf("like requests = %d", n)
	}

	// a page load drops a stored token that no longer verifies
	if err := f.tokens.Set(context.Background(), "c2", expired); err != nil {
		t.Fatal(err)
	}
	other := NewController("c2", api.New(f.srv.URL, 5*time.Second), f.tokens, auth.NewReader(secret), log.New(io.Discard))
	other.Initialize(context.Background())
	if other.Snapshot().Authenticated {
		t.Error("expired stored token restored as logged in")
	}
}
