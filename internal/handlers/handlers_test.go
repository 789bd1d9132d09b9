package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"helpqueue/internal/gateway"
	"helpqueue/internal/models"
	"helpqueue/internal/queue"
	"helpqueue/internal/response"
	"helpqueue/internal/storage"
	"helpqueue/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	teacherID   uint = 1
	studentID   uint = 2
	partnerID   uint = 3
	assistantID uint = 4
	outsiderID  uint = 9
)

func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.Request.Header.Get("X-Test-UserID")
		if userIDStr == "" {
			userIDStr = c.Query("uid")
		}
		id, err := strconv.Atoi(userIDStr)
		if err != nil {
			id = int(outsiderID)
		}
		c.Set("userID", uint(id))
		c.Next()
	}
}

type fakeOracle struct {
	roles map[string]queue.Role
}

func (o *fakeOracle) Role(_ context.Context, subject, userID string) (queue.Role, error) {
	return o.roles[subject+"/"+userID], nil
}

type fakeSubjects struct {
	mu          sync.Mutex
	rights      map[uint]string
	all         []storage.SubjectSummary
	own         map[uint][]storage.SubjectSummary
	members     map[string][]storage.Member
	invalidated int
}

func (f *fakeSubjects) Create(_ context.Context, code, name string, _ uint) (models.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.all {
		if s.Code == code {
			return models.Subject{}, storage.ErrSubjectExists
		}
	}
	f.all = append(f.all, storage.SubjectSummary{Code: code, Name: name})
	return models.Subject{Code: code, Name: name}, nil
}

func (f *fakeSubjects) List(context.Context) ([]storage.SubjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.SubjectSummary(nil), f.all...), nil
}

func (f *fakeSubjects) SubjectsOf(_ context.Context, userID uint) ([]storage.SubjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.own[userID], nil
}

func (f *fakeSubjects) SetMembers(_ context.Context, code string, members []storage.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[code] = members
	return nil
}

func (f *fakeSubjects) Rights(_ context.Context, userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rights[userID], nil
}

func (f *fakeSubjects) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

func (f *fakeSubjects) Invalidate(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

type fakeBroadcasts struct {
	mu   sync.Mutex
	next uint
	list []models.Broadcast
}

func (f *fakeBroadcasts) List(context.Context, string) ([]models.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Broadcast(nil), f.list...), nil
}

func (f *fakeBroadcasts) Create(_ context.Context, _ string, authorID uint, title, content string) (models.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	b := models.Broadcast{AuthorID: authorID, Title: title, Content: content}
	b.ID = f.next
	f.list = append(f.list, b)
	return b, nil
}

func (f *fakeBroadcasts) Update(_ context.Context, _ string, id uint, title, content string) (models.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].Title, f.list[i].Content = title, content
			return f.list[i], nil
		}
	}
	return models.Broadcast{}, fmt.Errorf("%w: broadcast %d", queue.ErrNotFound, id)
}

func (f *fakeBroadcasts) Delete(_ context.Context, _ string, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.list {
		if f.list[i].ID == id {
			f.list = append(f.list[:i], f.list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: broadcast %d", queue.ErrNotFound, id)
}

type fakePositions struct {
	engine *queue.Engine
}

func (f *fakePositions) UserPositions(ctx context.Context, userID string) ([]storage.QueuePosition, error) {
	q, err := f.engine.Snapshot(ctx, "CS101")
	if err != nil {
		return nil, err
	}
	var out []storage.QueuePosition
	for _, g := range q.List {
		if g.HasUser(userID) {
			out = append(out, storage.QueuePosition{SubjectCode: q.Subject, GroupID: g.ID, Position: g.Position, Task: g.Task})
		}
	}
	return out, nil
}

type testServer struct {
	*httptest.Server
	store    *queue.MemoryStore
	engine   *queue.Engine
	subjects *fakeSubjects
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := queue.NewMemoryStore()
	store.Create("CS101")
	hub := ws.NewHub(16)
	engine := queue.New(queue.Options{Store: store, Publisher: hub, FlushGrace: time.Minute})
	t.Cleanup(engine.Close)

	key := func(subject string, id uint) string { return subject + "/" + gateway.UserKey(id) }
	oracle := &fakeOracle{roles: map[string]queue.Role{
		key("CS101", teacherID):   queue.RoleTeacher,
		key("CS101", assistantID): queue.RoleAssistant,
		key("CS101", studentID):   queue.RoleStudent,
		key("CS101", partnerID):   queue.RoleStudent,
		key("NOPE", teacherID):    queue.RoleTeacher,
	}}
	subjects := &fakeSubjects{
		rights:  map[uint]string{teacherID: models.RightsTeacher},
		all:     []storage.SubjectSummary{{Code: "CS101", Name: "Программирование"}, {Code: "MA201", Name: "Матанализ"}},
		own:     map[uint][]storage.SubjectSummary{studentID: {{Code: "CS101", Name: "Программирование"}}},
		members: map[string][]storage.Member{},
	}

	h := &Handler{
		Gateway: gateway.New(gateway.Options{
			Engine:        engine,
			Oracle:        oracle,
			Hub:           hub,
			Broadcasts:    &fakeBroadcasts{},
			RetryAttempts: 3,
		}),
		Subjects:  subjects,
		Positions: &fakePositions{engine: engine},
	}

	r := gin.New()
	RegisterRoutes(r, h, AuthMiddlewareTest())
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, engine: engine, subjects: subjects}
}

func (ts *testServer) do(t *testing.T, method, path string, user uint, body any) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-UserID", strconv.Itoa(int(user)))
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	return res.StatusCode, buf.Bytes()
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var e response.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &e))
	return e.Code
}

func readEvent(t *testing.T, conn *websocket.Conn) ws.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ws.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestQueueFlow(t *testing.T) {
	ts := setupTestServer(t)

	status, _ := ts.do(t, http.MethodPut, "/api/subjects/CS101/queue", teacherID, ActivateQueueRequest{Activate: true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, ts.subjects.invalidations())

	// зритель подключается до изменений
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/subjects/CS101/ws"
	headers := http.Header{}
	headers.Set("X-Test-UserID", strconv.Itoa(int(studentID)))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, headers)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, ws.Event{Subject: "CS101", Kind: queue.EventQueueChanged}, readEvent(t, conn))

	status, body := ts.do(t, http.MethodPost, "/api/subjects/CS101/queue", studentID, JoinQueueRequest{
		Users:   []uint{partnerID},
		Comment: "Вопрос по лабораторной 2",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var joined response.JoinResponse
	require.NoError(t, json.Unmarshal(body, &joined))
	assert.Equal(t, 1, joined.Position)
	assert.NotEmpty(t, joined.ID)
	assert.Equal(t, ws.Event{Subject: "CS101", Kind: queue.EventQueueChanged}, readEvent(t, conn))

	// напарник уже стоит в группе
	status, body = ts.do(t, http.MethodPost, "/api/subjects/CS101/queue", partnerID, JoinQueueRequest{})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_IN_QUEUE", errorCode(t, body))

	status, body = ts.do(t, http.MethodGet, "/api/subjects/CS101/queue", studentID, nil)
	require.Equal(t, http.StatusOK, status)
	var snapshot response.QueueResponse
	require.NoError(t, json.Unmarshal(body, &snapshot))
	assert.True(t, snapshot.Active)
	require.Len(t, snapshot.List, 1)
	assert.Equal(t, []string{"2", "3"}, snapshot.List[0].Users)
	assert.Equal(t, 1, snapshot.List[0].Task)

	status, _ = ts.do(t, http.MethodPost, "/api/subjects/CS101/queue/"+joined.ID+"/help", assistantID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, queue.EventQueueChanged, readEvent(t, conn).Kind)

	status, body = ts.do(t, http.MethodPost, "/api/subjects/CS101/queue/"+joined.ID+"/delay", teacherID, DelayRequest{Delay: 3})
	require.Equal(t, http.StatusOK, status)
	var delayed response.DelayResponse
	require.NoError(t, json.Unmarshal(body, &delayed))
	assert.Equal(t, 0, delayed.Applied, "единственная группа уже в конце")
	assert.Equal(t, queue.EventQueueChanged, readEvent(t, conn).Kind)

	status, body = ts.do(t, http.MethodGet, "/profile/queues", partnerID, nil)
	require.Equal(t, http.StatusOK, status)
	var positions []storage.QueuePosition
	require.NoError(t, json.Unmarshal(body, &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, joined.ID, positions[0].GroupID)

	// выход идемпотентен
	for i := 0; i < 2; i++ {
		status, _ = ts.do(t, http.MethodDelete, "/api/subjects/CS101/queue", studentID, nil)
		assert.Equal(t, http.StatusOK, status)
	}
	q, err := ts.store.Load(context.Background(), "CS101")
	require.NoError(t, err)
	require.Len(t, q.List, 1)
	assert.Equal(t, []string{"3"}, q.List[0].Users)
}

func TestErrorMapping(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   uint
		body   any
		status int
		code   string
	}{
		{"чужой предмет", http.MethodGet, "/api/subjects/CS101/queue", outsiderID, nil, http.StatusForbidden, "FORBIDDEN"},
		{"нет предмета", http.MethodGet, "/api/subjects/NOPE/queue", teacherID, nil, http.StatusNotFound, "NOT_FOUND"},
		{"очередь закрыта", http.MethodPost, "/api/subjects/CS101/queue", studentID, JoinQueueRequest{}, http.StatusConflict, "QUEUE_INACTIVE"},
		{"студент не открывает очередь", http.MethodPut, "/api/subjects/CS101/queue", studentID, ActivateQueueRequest{Activate: true}, http.StatusForbidden, "FORBIDDEN"},
		{"студент не берет группу", http.MethodPost, "/api/subjects/CS101/queue/g1/help", studentID, nil, http.StatusForbidden, "FORBIDDEN"},
		{"нет группы", http.MethodDelete, "/api/subjects/CS101/queue/missing", teacherID, nil, http.StatusNotFound, "NOT_FOUND"},
		{"нулевой сдвиг", http.MethodPost, "/api/subjects/CS101/queue/g1/delay", teacherID, DelayRequest{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"отрицательный сдвиг", http.MethodPost, "/api/subjects/CS101/queue/g1/delay", teacherID, DelayRequest{Delay: -2}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"отрицательное задание", http.MethodPost, "/api/subjects/CS101/queue", studentID, JoinQueueRequest{Task: -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestRespondErrorUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w.Body.Bytes()))
}

func TestQueueEventsSSE(t *testing.T) {
	ts := setupTestServer(t)
	status, _ := ts.do(t, http.MethodPut, "/api/subjects/CS101/queue", teacherID, ActivateQueueRequest{Activate: true})
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/subjects/CS101/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-UserID", strconv.Itoa(int(studentID)))
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(res.Body)
	next := func() (string, ws.Event) {
		var kind string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				kind = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				var ev ws.Event
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &ev))
				return kind, ev
			}
		}
		t.Fatal("поток событий закрыт")
		return "", ws.Event{}
	}

	kind, ev := next()
	assert.Equal(t, queue.EventQueueChanged, kind)
	assert.Equal(t, "CS101", ev.Subject)

	status, _ = ts.do(t, http.MethodPost, "/api/subjects/CS101/queue", studentID, JoinQueueRequest{Task: 2})
	require.Equal(t, http.StatusCreated, status)
	kind, ev = next()
	assert.Equal(t, queue.EventQueueChanged, kind)
	assert.Equal(t, ws.Event{Subject: "CS101", Kind: queue.EventQueueChanged}, ev)
}

func TestSubjects(t *testing.T) {
	ts := setupTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/subjects", teacherID, nil)
	require.Equal(t, http.StatusOK, status)
	var list []storage.SubjectSummary
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	status, body = ts.do(t, http.MethodGet, "/api/subjects", studentID, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "CS101", list[0].Code)

	status, body = ts.do(t, http.MethodPost, "/api/subjects", studentID, CreateSubjectRequest{Code: "PH101", Name: "Физика"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(t, body))

	status, _ = ts.do(t, http.MethodPost, "/api/subjects", teacherID, CreateSubjectRequest{Code: "PH101", Name: "Физика"})
	assert.Equal(t, http.StatusCreated, status)

	status, body = ts.do(t, http.MethodPost, "/api/subjects", teacherID, CreateSubjectRequest{Code: "PH101", Name: "Физика"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SUBJECT_EXISTS", errorCode(t, body))

	members := SetMembersRequest{Members: []storage.Member{{UserID: partnerID, Role: queue.RoleAssistant}}}
	status, _ = ts.do(t, http.MethodPut, "/api/subjects/CS101/users", studentID, members)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = ts.do(t, http.MethodPut, "/api/subjects/CS101/users", teacherID, members)
	assert.Equal(t, http.StatusOK, status)
	ts.subjects.mu.Lock()
	assert.Equal(t, members.Members, ts.subjects.members["CS101"])
	ts.subjects.mu.Unlock()
}

func TestBroadcasts(t *testing.T) {
	ts := setupTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/api/subjects/CS101/broadcasts", studentID, BroadcastRequest{Title: "x", Content: "y"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := ts.do(t, http.MethodPost, "/api/subjects/CS101/broadcasts", assistantID, BroadcastRequest{Title: ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	status, body = ts.do(t, http.MethodPost, "/api/subjects/CS101/broadcasts", assistantID, BroadcastRequest{Title: "Консультация", Content: "В 18:00"})
	require.Equal(t, http.StatusCreated, status)
	var created models.Broadcast
	require.NoError(t, json.Unmarshal(body, &created))
	bid := strconv.Itoa(int(created.ID))

	status, _ = ts.do(t, http.MethodPut, "/api/subjects/CS101/broadcasts/"+bid, teacherID, BroadcastRequest{Title: "Консультация", Content: "В 19:00"})
	assert.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodGet, "/api/subjects/CS101/broadcasts", studentID, nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.Broadcast
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "В 19:00", list[0].Content)

	status, body = ts.do(t, http.MethodDelete, "/api/subjects/CS101/broadcasts/abc", teacherID, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	status, _ = ts.do(t, http.MethodDelete, "/api/subjects/CS101/broadcasts/"+bid, teacherID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, body = ts.do(t, http.MethodDelete, "/api/subjects/CS101/broadcasts/"+bid, teacherID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}
