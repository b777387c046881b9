package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testDeviceKey = "terminal-key"
)

var today = model.NewDay(2024, time.May, 1)

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(e notify.Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return true
}

func (l *eventLog) kinds() []notify.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kinds []notify.Kind
	for _, e := range l.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type testEnv struct {
	URL    string
	DB     *sql.DB
	events *eventLog
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	events := &eventLog{}
	engine := reservation.New(reservation.NewSQLStore(database), events, reservation.Config{
		Now: func() time.Time { return today.Time().Add(10 * time.Hour) },
	})

	router := NewRouter(Deps{DB: database, JWTSecret: testJWTSecret, Engine: engine, DeviceKey: testDeviceKey})
	server := httptest.NewServer(LoggingMiddleware(router))
	t.Cleanup(server.Close)

	return &testEnv{URL: server.URL, DB: database, events: events}
}

// tokenFor creates a user and returns a token for it.
func (env *testEnv) tokenFor(t *testing.T, username, role string, teams ...string) string {
	t.Helper()
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	user, err := store.CreateUser(ctx, env.DB, username, string(hash), role)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.SetUserTeams(ctx, env.DB, user.ID, teams); err != nil {
		t.Fatalf("SetUserTeams: %v", err)
	}
	user.Teams = teams
	token, err := auth.GenerateToken(testJWTSecret, user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call sends a JSON request and decodes the response into out, returning
// the status code.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return send(t, req, out)
}

func send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (env *testEnv) createItem(t *testing.T, token string, body map[string]any) model.Item {
	t.Helper()
	var item model.Item
	if code := call(t, "POST", env.URL+"/api/items", token, body, &item); code != http.StatusCreated {
		t.Fatalf("creating item: expected 201, got %d", code)
	}
	return item
}

func (env *testEnv) book(t *testing.T, token string, start, end model.Day, items ...uuid.UUID) (model.Reservation, int) {
	t.Helper()
	var res model.Reservation
	code := call(t, "POST", env.URL+"/api/reservations", token, map[string]any{
		"type":     model.ReservationTypePrivate,
		"name":     "Weekend trip",
		"contact":  "040 123 456",
		"start":    start,
		"end":      end,
		"item_ids": items,
	}, &res)
	return res, code
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.tokenFor(t, "admin", model.RoleAdmin)

	var errResp errorResponse
	code := call(t, "POST", env.URL+"/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"}, &errResp)
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", code)
	}

	code = call(t, "POST", env.URL+"/api/auth/login", "", map[string]string{"username": "admin"}, &errResp)
	if code != http.StatusBadRequest || errResp.Code != apperr.CodeInvalidArgument {
		t.Errorf("expected 400 INVALID_ARGUMENT for missing password, got %d %q", code, errResp.Code)
	}

	var login loginResponse
	code = call(t, "POST", env.URL+"/api/auth/login", "", map[string]string{"username": "admin", "password": "password"}, &login)
	if code != http.StatusOK || login.Token == "" {
		t.Fatalf("login failed: %d", code)
	}

	var me model.User
	if code := call(t, "GET", env.URL+"/api/auth/me", login.Token, nil, &me); code != http.StatusOK || me.Username != "admin" {
		t.Fatalf("expected own user, got %d %+v", code, me)
	}

	if code := call(t, "POST", env.URL+"/api/auth/logout", login.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", code)
	}
	if code := call(t, "GET", env.URL+"/api/auth/me", login.Token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", code)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.URL + "/api/items")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	env := setupTestServer(t)
	token := env.tokenFor(t, "leaver", model.RoleUser)

	user, _ := store.GetUserByUsername(context.Background(), env.DB, "leaver")
	store.DeleteUser(context.Background(), env.DB, user.ID)

	if code := call(t, "GET", env.URL+"/api/items", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user, got %d", code)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	userToken := env.tokenFor(t, "user1", model.RoleUser)
	managerToken := env.tokenFor(t, "manager1", model.RoleManager)

	if code := call(t, "POST", env.URL+"/api/items", userToken, map[string]any{"name": "Rope"}, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for user creating item, got %d", code)
	}
	if code := call(t, "GET", env.URL+"/api/users", userToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", code)
	}

	item := env.createItem(t, managerToken, map[string]any{"name": "Rope"})
	if code := call(t, "DELETE", env.URL+"/api/items/"+item.ID.String(), managerToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for manager deleting item, got %d", code)
	}
	if code := call(t, "POST", env.URL+"/api/reservations/auto-return", managerToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for manager triggering auto return, got %d", code)
	}
}

func TestUserTeams(t *testing.T) {
	env := setupTestServer(t)
	admin := env.tokenFor(t, "admin", model.RoleAdmin)

	var user model.User
	code := call(t, "POST", env.URL+"/api/users", admin, map[string]any{
		"username": "maja",
		"password": "long enough",
		"role":     model.RoleUser,
		"teams":    []string{"kayak", "alpine"},
	}, &user)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if len(user.Teams) != 2 || user.Teams[0] != "alpine" {
		t.Errorf("expected sorted teams, got %v", user.Teams)
	}

	var errResp errorResponse
	code = call(t, "POST", env.URL+"/api/users", admin, map[string]any{
		"username": "bad", "password": "long enough", "role": "owner",
	}, &errResp)
	if code != http.StatusBadRequest || errResp.Code != apperr.CodeInvalidArgument {
		t.Errorf("expected 400 for invalid role, got %d %+v", code, errResp)
	}

	url := env.URL + "/api/users/" + strconv.FormatInt(user.ID, 10)
	code = call(t, "PUT", url, admin, map[string]any{"role": model.RoleManager, "teams": []string{"kayak"}}, &user)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if user.Role != model.RoleManager || len(user.Teams) != 1 || user.Teams[0] != "kayak" {
		t.Errorf("unexpected user after update: %+v", user)
	}

	// Omitting teams leaves them alone.
	call(t, "PUT", url, admin, map[string]any{"role": model.RoleUser}, &user)
	if len(user.Teams) != 1 {
		t.Errorf("expected teams to be kept, got %v", user.Teams)
	}

	if code := call(t, "PUT", env.URL+"/api/users/999", admin, map[string]any{"role": model.RoleUser}, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", code)
	}
}

func TestBaysAndItemsFlow(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)

	var bay model.Bay
	if code := call(t, "POST", env.URL+"/api/bays", manager, map[string]any{"name": "Shelf A"}, &bay); code != http.StatusCreated {
		t.Fatalf("creating bay: expected 201, got %d", code)
	}

	var errResp errorResponse
	code := call(t, "POST", env.URL+"/api/items", manager, map[string]any{"name": "Helmet", "bay_id": uuid.New()}, &errResp)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown bay, got %d", code)
	}
	code = call(t, "POST", env.URL+"/api/items", manager, map[string]any{"name": "Helmet", "condition": "shiny"}, &errResp)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown condition, got %d", code)
	}

	item := env.createItem(t, manager, map[string]any{
		"name":           "Helmet",
		"bay_id":         bay.ID,
		"tags":           []string{"climbing"},
		"purchase_date":  model.NewDay(2023, time.March, 2),
		"change_comment": "initial stock",
	})
	if item.Condition != model.ConditionNew || item.BayID == nil || *item.BayID != bay.ID {
		t.Errorf("unexpected item: %+v", item)
	}

	url := env.URL + "/api/items/" + item.ID.String()
	var updated model.Item
	code = call(t, "PUT", url, manager, map[string]any{
		"name":           "Helmet M",
		"condition":      model.ConditionGood,
		"bay_id":         bay.ID,
		"tags":           []string{"climbing"},
		"purchase_date":  model.NewDay(2023, time.March, 2),
		"change_comment": "relabelled",
	}, &updated)
	if code != http.StatusOK || updated.Name != "Helmet M" || updated.Condition != model.ConditionGood {
		t.Fatalf("update failed: %d %+v", code, updated)
	}

	var history []model.ItemState
	if code := call(t, "GET", url+"/history", manager, nil, &history); code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", code)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(history))
	}
	latest := history[0]
	if latest.Comment == nil || *latest.Comment != "relabelled" {
		t.Errorf("expected newest record first, got %+v", latest)
	}
	if latest.Changes.Name == nil || latest.Changes.Condition == nil || latest.Changes.Tags != nil {
		t.Errorf("unexpected change set: %+v", latest.Changes)
	}
	if history[1].Changes.Name == nil || *history[1].Changes.Name.Next != "Helmet" {
		t.Errorf("expected creation record, got %+v", history[1].Changes)
	}

	var page []model.ItemState
	call(t, "GET", url+"/history?limit=1&offset=1", manager, nil, &page)
	if len(page) != 1 || page[0].ID != history[1].ID {
		t.Errorf("expected second record on second page, got %+v", page)
	}
	var oldest []model.ItemState
	call(t, "GET", url+"/history?order=asc", manager, nil, &oldest)
	if len(oldest) != 2 || oldest[0].ID != history[1].ID {
		t.Errorf("expected creation record first in ascending order, got %+v", oldest)
	}
	if code := call(t, "GET", url+"/history?order=sideways", manager, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown order, got %d", code)
	}
	if code := call(t, "GET", url+"/history?limit=-1", manager, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", code)
	}
	if code := call(t, "GET", env.URL+"/api/items/"+uuid.NewString()+"/history", manager, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for history of unknown item, got %d", code)
	}

	// Deleting the bay detaches the item.
	if code := call(t, "DELETE", env.URL+"/api/bays/"+bay.ID.String(), manager, nil, nil); code != http.StatusOK {
		t.Fatalf("deleting bay: expected 200, got %d", code)
	}
	var got model.Item
	call(t, "GET", url, manager, nil, &got)
	if got.BayID != nil {
		t.Errorf("expected item to lose its bay, got %v", got.BayID)
	}
}

func TestGoneItemsAreListedOnRequest(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)

	kept := env.createItem(t, manager, map[string]any{"name": "Kept"})
	lost := env.createItem(t, manager, map[string]any{"name": "Lost"})
	call(t, "PUT", env.URL+"/api/items/"+lost.ID.String(), manager, map[string]any{"name": "Lost", "condition": "gone"}, nil)

	var items []model.Item
	call(t, "GET", env.URL+"/api/items", manager, nil, &items)
	if len(items) != 1 || items[0].ID != kept.ID {
		t.Errorf("expected only the kept item, got %+v", items)
	}
	call(t, "GET", env.URL+"/api/items?all=true", manager, nil, &items)
	if len(items) != 2 {
		t.Errorf("expected both items with all=true, got %d", len(items))
	}
}

func TestReservationFlow(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	alice := env.tokenFor(t, "alice", model.RoleUser)
	bob := env.tokenFor(t, "bob", model.RoleUser)

	rope := env.createItem(t, manager, map[string]any{"name": "Rope"})
	tent := env.createItem(t, manager, map[string]any{"name": "Tent"})

	res, code := env.book(t, alice, today.AddDays(2), today.AddDays(4), rope.ID, tent.ID)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if res.State != model.ReservationReserved || len(res.Items) != 2 || res.Code == "" {
		t.Errorf("unexpected reservation: %+v", res)
	}

	var errResp errorResponse
	code = call(t, "POST", env.URL+"/api/reservations", bob, map[string]any{
		"type": "private", "name": "Clash", "start": today.AddDays(4), "end": today.AddDays(6), "item_ids": []uuid.UUID{tent.ID},
	}, &errResp)
	if code != http.StatusConflict || errResp.Code != apperr.CodeConflict {
		t.Fatalf("expected 409 CONFLICT, got %d %+v", code, errResp)
	}
	if len(errResp.ItemIDs) != 1 || errResp.ItemIDs[0] != tent.ID {
		t.Errorf("expected conflicting tent, got %v", errResp.ItemIDs)
	}

	code = call(t, "POST", env.URL+"/api/reservations/check", bob, map[string]any{
		"item_ids": []uuid.UUID{rope.ID}, "start": today.AddDays(5), "end": today.AddDays(6),
	}, nil)
	if code != http.StatusOK {
		t.Errorf("expected rope to be free later, got %d", code)
	}

	var reserved struct {
		ItemIDs []uuid.UUID `json:"item_ids"`
	}
	call(t, "GET", env.URL+"/api/reservations/items?start="+today.String()+"&end="+today.AddDays(2).String(), bob, nil, &reserved)
	if len(reserved.ItemIDs) != 2 {
		t.Errorf("expected both items reserved, got %v", reserved.ItemIDs)
	}

	// Bob cannot act on Alice's reservation; Alice can.
	url := env.URL + "/api/reservations/" + res.ID.String()
	take := map[string]any{"actions": []model.ItemAction{{ItemID: rope.ID, Action: model.ActionTake}}}
	if code := call(t, "POST", url+"/action", bob, take, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for stranger, got %d", code)
	}
	var after model.Reservation
	if code := call(t, "POST", url+"/action", alice, take, &after); code != http.StatusOK {
		t.Fatalf("take: expected 200, got %d", code)
	}
	if after.State != model.ReservationTaken {
		t.Errorf("expected taken, got %s", after.State)
	}

	var mine []model.Reservation
	call(t, "GET", env.URL+"/api/reservations", bob, nil, &mine)
	if len(mine) != 0 {
		t.Errorf("expected bob to see no reservations, got %d", len(mine))
	}
	call(t, "GET", env.URL+"/api/reservations?active=true", alice, nil, &mine)
	if len(mine) != 1 {
		t.Errorf("expected alice to see her reservation, got %d", len(mine))
	}

	if code := call(t, "DELETE", url, alice, nil, &errResp); code != http.StatusConflict || errResp.Action != "cancel" {
		t.Errorf("expected cancel of taken reservation to fail, got %d %+v", code, errResp)
	}
}

func TestActionErrorBody(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	rope := env.createItem(t, manager, map[string]any{"name": "Rope"})
	res, _ := env.book(t, manager, today, today.AddDays(1), rope.ID)

	stranger := uuid.New()
	var errResp errorResponse
	code := call(t, "POST", env.URL+"/api/reservations/"+res.ID.String()+"/action", manager, map[string]any{
		"actions": []model.ItemAction{{ItemID: stranger, Action: model.ActionTake}},
	}, &errResp)
	if code != http.StatusNotFound || errResp.Code != apperr.CodeNotFound {
		t.Fatalf("expected 404 NOT_FOUND, got %d %+v", code, errResp)
	}
	if len(errResp.ItemIDs) != 1 || errResp.ItemIDs[0] != stranger {
		t.Errorf("expected unknown item in body, got %v", errResp.ItemIDs)
	}

	code = call(t, "POST", env.URL+"/api/reservations/"+res.ID.String()+"/action", manager, map[string]any{"actions": []any{}}, &errResp)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", code)
	}
}

func TestProblemReportPublished(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	rope := env.createItem(t, manager, map[string]any{"name": "Rope"})
	res, _ := env.book(t, manager, today, today.AddDays(1), rope.ID)
	url := env.URL + "/api/reservations/" + res.ID.String() + "/action"

	call(t, "POST", url, manager, map[string]any{"actions": []model.ItemAction{{ItemID: rope.ID, Action: model.ActionTake}}}, nil)
	code := call(t, "POST", url, manager, map[string]any{"actions": []model.ItemAction{{ItemID: rope.ID, Action: model.ActionBroken}}}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	kinds := env.events.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindProblemReport {
		t.Errorf("expected one problem report, got %v", kinds)
	}
}

func TestMarkingItemGoneWithdrawsIt(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	rope := env.createItem(t, manager, map[string]any{"name": "Rope"})
	tent := env.createItem(t, manager, map[string]any{"name": "Tent"})

	future, _ := env.book(t, manager, today.AddDays(3), today.AddDays(5), rope.ID, tent.ID)
	current, _ := env.book(t, manager, today, today.AddDays(1), tent.ID)
	call(t, "POST", env.URL+"/api/reservations/"+current.ID.String()+"/action", manager,
		map[string]any{"actions": []model.ItemAction{{ItemID: tent.ID, Action: model.ActionTake}}}, nil)

	// The tent is out, so it cannot be written off.
	var errResp errorResponse
	code := call(t, "PUT", env.URL+"/api/items/"+tent.ID.String(), manager, map[string]any{"name": "Tent", "condition": "gone"}, &errResp)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for taken item, got %d", code)
	}
	var tentNow model.Item
	call(t, "GET", env.URL+"/api/items/"+tent.ID.String(), manager, nil, &tentNow)
	if tentNow.Condition == model.ConditionGone {
		t.Error("expected failed update to be rolled back")
	}

	code = call(t, "PUT", env.URL+"/api/items/"+rope.ID.String(), manager, map[string]any{"name": "Rope", "condition": "gone"}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	var got model.Reservation
	call(t, "GET", env.URL+"/api/reservations/"+future.ID.String(), manager, nil, &got)
	if len(got.Items) != 1 || got.Items[0].ItemID != tent.ID {
		t.Errorf("expected rope to be dropped, got %+v", got.Items)
	}
	kinds := env.events.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindItemRemoved {
		t.Errorf("expected one item_removed event, got %v", kinds)
	}

	// Gone items cannot be booked.
	if _, code := env.book(t, manager, today.AddDays(10), today.AddDays(11), rope.ID); code != http.StatusBadRequest {
		t.Errorf("expected 400 booking a gone item, got %d", code)
	}
}

func TestDeviceFlow(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	alice := env.tokenFor(t, "alice", model.RoleUser)

	var bay model.Bay
	call(t, "POST", env.URL+"/api/bays", manager, map[string]any{"name": "Cage 3"}, &bay)
	rope := env.createItem(t, manager, map[string]any{"name": "Rope", "bay_id": bay.ID})
	res, _ := env.book(t, alice, today, today.AddDays(2), rope.ID)

	deviceRequest := func(method, path, key, code string, body any) *http.Request {
		req, _ := authRequest(method, env.URL+path, "", body)
		req.Header.Set("X-Device-Key", key)
		req.Header.Set("X-Reservation-Code", code)
		return req
	}

	if code := send(t, deviceRequest("GET", "/api/device/reservation", "wrong", res.Code, nil), nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong key, got %d", code)
	}
	if code := send(t, deviceRequest("GET", "/api/device/reservation", testDeviceKey, "NOPE00", nil), nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", code)
	}

	var view deviceReservation
	if code := send(t, deviceRequest("GET", "/api/device/reservation", testDeviceKey, res.Code, nil), &view); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(view.Items) != 1 || view.Items[0].Bay == nil || view.Items[0].Bay.Name != "Cage 3" {
		t.Fatalf("expected item with its bay, got %+v", view.Items)
	}

	body := map[string]any{"actions": []model.ItemAction{{ItemID: rope.ID, Action: model.ActionTake}}}
	if code := send(t, deviceRequest("POST", "/api/device/reservation/action", testDeviceKey, res.Code, body), &view); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if view.Items[0].State != model.ItemTaken || view.Reservation.State != model.ReservationTaken {
		t.Errorf("expected item taken, got %+v", view.Items[0])
	}

	// Returned reservations drop out of the device view.
	body = map[string]any{"actions": []model.ItemAction{{ItemID: rope.ID, Action: model.ActionReturn}}}
	send(t, deviceRequest("POST", "/api/device/reservation/action", testDeviceKey, res.Code, body), nil)
	if code := send(t, deviceRequest("GET", "/api/device/reservation", testDeviceKey, res.Code, nil), nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for finished reservation, got %d", code)
	}
}

func TestDeviceAccessDisabledWithoutKey(t *testing.T) {
	database := db.NewTestDB(t)
	engine := reservation.New(reservation.NewSQLStore(database), &eventLog{}, reservation.Config{})
	server := httptest.NewServer(NewRouter(Deps{DB: database, JWTSecret: testJWTSecret, Engine: engine}))
	t.Cleanup(server.Close)

	req, _ := http.NewRequest("GET", server.URL+"/api/device/reservation", nil)
	req.Header.Set("X-Device-Key", "")
	if code := send(t, req, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 with devices disabled, got %d", code)
	}
}

func TestImageUpload(t *testing.T) {
	env := setupTestServer(t)
	manager := env.tokenFor(t, "manager", model.RoleManager)
	item := env.createItem(t, manager, map[string]any{"name": "Stove"})
	url := env.URL + "/api/items/" + item.ID.String()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(1, 1, color.RGBA{200, 10, 10, 255})
	png.Encode(&buf, img)

	req, _ := http.NewRequest("PUT", url+"/image", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Authorization", "Bearer "+manager)
	req.Header.Set("Content-Type", "image/png")
	var uploaded map[string]string
	if code := send(t, req, &uploaded); code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", code)
	}

	var got model.Item
	call(t, "GET", url, manager, nil, &got)
	if got.PictureID == nil || *got.PictureID != uploaded["picture_id"] {
		t.Errorf("expected picture id %q, got %v", uploaded["picture_id"], got.PictureID)
	}

	req, _ = http.NewRequest("GET", url+"/image", nil)
	req.Header.Set("Authorization", "Bearer "+manager)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("expected stored JPEG, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	var history []model.ItemState
	call(t, "GET", url+"/history", manager, nil, &history)
	if len(history) != 2 || history[0].Changes.PictureID == nil {
		t.Errorf("expected picture change in history, got %+v", history)
	}

	req, _ = http.NewRequest("PUT", url+"/image", bytes.NewReader([]byte("GIF89a....")))
	req.Header.Set("Authorization", "Bearer "+manager)
	if code := send(t, req, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for GIF, got %d", code)
	}
}

func TestAutoReturnTrigger(t *testing.T) {
	env := setupTestServer(t)
	admin := env.tokenFor(t, "admin", model.RoleAdmin)
	rope := env.createItem(t, admin, map[string]any{"name": "Rope"})
	res, code := env.book(t, admin, today.AddDays(-3), today.AddDays(-1), rope.ID)
	if code != http.StatusCreated {
		t.Fatalf("admin booking in the past: expected 201, got %d", code)
	}

	var out map[string]int
	if code := call(t, "POST", env.URL+"/api/reservations/auto-return", admin, nil, &out); code != http.StatusOK || out["returned"] != 1 {
		t.Fatalf("expected one reservation returned, got %d %v", code, out)
	}

	var got model.Reservation
	call(t, "GET", env.URL+"/api/reservations/"+res.ID.String(), admin, nil, &got)
	if got.State != model.ReservationReturned || got.Active {
		t.Errorf("expected returned inactive reservation, got %+v", got)
	}
}
