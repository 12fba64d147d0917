package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/studygroup/backend/database"
	"github.com/studygroup/backend/middleware"
	"github.com/studygroup/backend/models"
	"github.com/studygroup/backend/ratelimit"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB points the global connection at a fresh in-memory database
// and resets the message limiter
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{}, &models.RoomUser{}))

	database.DB = db
	SetMessageLimiter(ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow))
}

// newAPIRouter mirrors the route table the server mounts
func newAPIRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	auth := r.Group("/api/auth")
	auth.POST("/register", Register)
	auth.POST("/login", Login)

	api := r.Group("/api")
	api.Use(middleware.JWTAuth())
	api.POST("/rooms/create", CreateRoom)
	api.GET("/rooms", GetRooms)
	api.GET("/rooms/:id", GetRoom)
	api.DELETE("/rooms/:id", DeleteRoom)
	api.POST("/rooms/:id/join", JoinRoom)
	api.DELETE("/rooms/clear-all", ClearAllRooms)
	api.POST("/rooms/:id/message", CreateMessage)
	api.GET("/rooms/:id/messages", GetMessages)
	api.PUT("/rooms/:id/messages/:mid", UpdateMessage)
	api.DELETE("/rooms/:id/messages/:mid", DeleteMessage)

	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func registerUser(t *testing.T, r *gin.Engine, username string) (string, uint) {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"password123"}`, username, username)
	w := doJSON(t, r, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody(t, w)
	user := resp["user"].(map[string]interface{})
	return resp["token"].(string), uint(user["id"].(float64))
}

func createRoom(t *testing.T, r *gin.Engine, token, name string) uint {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/rooms/create", token, fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, w.Code)

	room := decodeBody(t, w)["room"].(map[string]interface{})
	return uint(room["id"].(float64))
}

func TestJoinRoom_SecondJoinIsIdempotent(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")

	tokenB, _ := registerUser(t, r, "bob")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenB, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Joined room successfully", decodeBody(t, w)["message"])

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenB, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Already joined", decodeBody(t, w)["message"])

	var participants int64
	database.DB.Model(&models.RoomUser{}).Where("room_id = ?", roomID).Count(&participants)
	require.EqualValues(t, 2, participants)
}

func TestGetMessages_NonParticipantRejectedUntilJoin(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Room X")

	tokenB, _ := registerUser(t, r, "bob")

	path := fmt.Sprintf("/api/rooms/%d/messages", roomID)
	w := doJSON(t, r, http.MethodGet, path, tokenB, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenB, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, path, tokenB, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoomScenario_RegisterCreateJoinPostList(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")

	tokenB, _ := registerUser(t, r, "bob")
	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenB, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/message", roomID), tokenB, `{"content":"hi"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// The creator reads the room and sees bob's message
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", roomID), tokenA, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)

	msg := messages[0].(map[string]interface{})
	require.Equal(t, "hi", msg["content"])
	require.Equal(t, "bob", msg["user"].(map[string]interface{})["username"])

	meta := body["pagination"].(map[string]interface{})
	require.EqualValues(t, 1, meta["totalMessages"])
}

func TestCreateRoom_DuplicateNameRejected(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	createRoom(t, r, tokenA, "Algebra")

	tokenB, _ := registerUser(t, r, "bob")
	w := doJSON(t, r, http.MethodPost, "/api/rooms/create", tokenB, `{"name":"Algebra"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Room name already taken", decodeBody(t, w)["error"])
}

// The unique constraint is the backstop when two creates race past the
// existence check; the driver must surface it as gorm.ErrDuplicatedKey
// for the handler's 400 mapping to hold.
func TestCreateRoom_UniqueConstraintTranslates(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, database.DB.Create(&models.Room{Name: "Algebra", CreatedBy: 1}).Error)
	err := database.DB.Create(&models.Room{Name: "Algebra", CreatedBy: 2}).Error
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestCreateMessage_RateLimited(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()
	SetMessageLimiter(ratelimit.New(1, time.Minute))

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")
	path := fmt.Sprintf("/api/rooms/%d/message", roomID)

	w := doJSON(t, r, http.MethodPost, path, tokenA, `{"content":"first"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, path, tokenA, `{"content":"second"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.GreaterOrEqual(t, decodeBody(t, w)["retry_after"].(float64), float64(1))

	// The rejected message was not persisted
	var count int64
	database.DB.Model(&models.Message{}).Where("room_id = ?", roomID).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestUpdateMessage_WithinWindow(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/message", roomID), tokenA, `{"content":"draft"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	msgID := uint(decodeBody(t, w)["data"].(map[string]interface{})["id"].(float64))

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/rooms/%d/messages/%d", roomID, msgID), tokenA, `{"content":"final"}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	require.Equal(t, "final", data["content"])
	require.NotNil(t, data["edited_at"])
}

func TestUpdateMessage_TooOldRejected(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, userA := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")

	// Backdate the message past the edit window
	msg := models.Message{
		Content:   "old news",
		RoomID:    roomID,
		UserID:    userA,
		CreatedAt: time.Now().Add(-6 * time.Minute),
	}
	require.NoError(t, database.DB.Create(&msg).Error)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/rooms/%d/messages/%d", roomID, msg.ID), tokenA, `{"content":"revised"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMessage_SenderOrCreatorOnly(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	roomID := createRoom(t, r, tokenA, "Algebra")

	tokenB, _ := registerUser(t, r, "bob")
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenB, "")
	tokenC, _ := registerUser(t, r, "carol")
	doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", roomID), tokenC, "")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/rooms/%d/message", roomID), tokenB, `{"content":"hi"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	msgID := uint(decodeBody(t, w)["data"].(map[string]interface{})["id"].(float64))

	path := fmt.Sprintf("/api/rooms/%d/messages/%d", roomID, msgID)

	// Another participant may not delete someone else's message
	w = doJSON(t, r, http.MethodDelete, path, tokenC, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// The room creator may
	w = doJSON(t, r, http.MethodDelete, path, tokenA, "")
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	database.DB.Model(&models.Message{}).Where("room_id = ?", roomID).Count(&count)
	require.EqualValues(t, 0, count)
}

func TestClearAllRooms_RequiresConfirmation(t *testing.T) {
	setupTestDB(t)
	r := newAPIRouter()

	tokenA, _ := registerUser(t, r, "alice")
	createRoom(t, r, tokenA, "Algebra")
	createRoom(t, r, tokenA, "Biology")

	w := doJSON(t, r, http.MethodDelete, "/api/rooms/clear-all", tokenA, `{"confirm":"yes"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/rooms/clear-all", tokenA, `{"confirm":"delete-all-rooms"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, decodeBody(t, w)["deleted_count"])

	var rooms int64
	database.DB.Model(&models.Room{}).Count(&rooms)
	require.EqualValues(t, 0, rooms)
}
