package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/catalog"
	"github.com/campushq/handbook/internal/handler"
	sqliteRepo "github.com/campushq/handbook/internal/repository/sqlite"
	"github.com/campushq/handbook/internal/service"
)

// testEnv wires a real in-memory database, the services, and a router with
// the production route layout. Handler tests go through HTTP end to end.
type testEnv struct {
	router  *chi.Mux
	authSvc *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	cat := catalog.New(
		[]catalog.CourseInfo{
			{Code: "COMP1511", Title: "Programming Fundamentals", UOC: 6},
			{Code: "COMP2521", Title: "Data Structures and Algorithms", UOC: 6},
		},
		[]catalog.ProgramInfo{
			{Code: "3778", Title: "Computer Science", Courses: []string{"COMP1511", "COMP2521"}},
		},
	)

	authSvc := service.NewAuthService(db, db, tokens, auth.NewPasswordServiceForTest(4), "", logger)
	userSvc := service.NewUserService(db, cat, logger)
	courseSvc := service.NewCourseService(db, cat, logger)

	authHandler := handler.NewAuthHandler(authSvc, logger)
	userHandler := handler.NewUserHandler(userSvc, logger)
	courseHandler := handler.NewCourseHandler(courseSvc, logger)

	requireAuth := auth.RequireAuth(tokens)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		r.Post("/requestCode", authHandler.HandleRequestCode)
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refreshToken", authHandler.HandleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/submitNickname", authHandler.HandleSubmitNickname)
		})
	})
	router.Route("/users", func(r chi.Router) {
		r.Get("/{username}/courseslist", userHandler.HandleListCourses)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", userHandler.HandleMe)
			r.Put("/profile", userHandler.HandleUpdateProfile)
			r.Post("/{username}/courseslist", userHandler.HandleAddCourses)
			r.Put("/{username}/courseslist", userHandler.HandleReplaceCourses)
			r.Delete("/{username}/courseslist", userHandler.HandleRemoveCourses)
		})
	})
	router.Route("/course", func(r chi.Router) {
		r.Get("/recommend", courseHandler.HandleRecommend)
		r.Get("/{code}", courseHandler.HandleInfo)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/comment", courseHandler.HandleCreateComment)
			r.Delete("/comment/{id}", courseHandler.HandleDeleteComment)
		})
	})
	router.Route("/program", func(r chi.Router) {
		r.Get("/{code}", courseHandler.HandleProgram)
		r.Get("/{code}/courses", courseHandler.HandleProgramCourses)
	})

	return &testEnv{router: router, authSvc: authSvc}
}

// do performs one request against the router. token is attached as a Bearer
// header when non-empty; body is JSON-encoded when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// register creates a user through the API and returns the token pair.
func (e *testEnv) register(t *testing.T, username string) *auth.TokenPair {
	t.Helper()

	// The handler never echoes the code; fetch it straight from the service.
	code, err := e.authSvc.RequestVerificationCode(context.Background(), username)
	require.NoError(t, err)

	rr := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username":         username,
		"password":         "GoodPass1",
		"verificationCode": code,
	})
	require.Equal(t, http.StatusCreated, rr.Code, "register response: %s", rr.Body.String())

	var pair auth.TokenPair
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&pair))
	return &pair
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("register and fetch own profile", func(t *testing.T) {
		pair := env.register(t, "z1234567@ad.unsw.edu.au")

		rr := env.do(t, http.MethodGet, "/users/", pair.AccessToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var profile map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&profile))
		assert.Equal(t, "z1234567@ad.unsw.edu.au", profile["username"])
		// Credentials never leave the server.
		assert.NotContains(t, rr.Body.String(), "passwordHash")
	})

	t.Run("register with malformed username", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
			"username":         "someone@gmail.com",
			"password":         "GoodPass1",
			"verificationCode": "123456",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		env.register(t, "z2222222@ad.unsw.edu.au")

		rr := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"username": "z2222222@ad.unsw.edu.au",
			"password": "WrongPass1",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthorized", decodeError(t, rr).Error)
	})

	t.Run("refresh rotates the token", func(t *testing.T) {
		pair := env.register(t, "z3333333@ad.unsw.edu.au")

		rr := env.do(t, http.MethodPost, "/auth/refreshToken", pair.RefreshToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var next auth.TokenPair
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&next))
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

		// The displaced token is dead.
		rr = env.do(t, http.MethodPost, "/auth/refreshToken", pair.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("refresh token rejected on protected routes", func(t *testing.T) {
		pair := env.register(t, "z4444444@ad.unsw.edu.au")

		// Kind mismatch: a refresh token is not an access token.
		rr := env.do(t, http.MethodGet, "/users/", pair.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("protected route without token", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/users/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("submit nickname", func(t *testing.T) {
		pair := env.register(t, "z5555555@ad.unsw.edu.au")

		rr := env.do(t, http.MethodPost, "/auth/submitNickname", pair.AccessToken,
			map[string]string{"nickName": "quokka"})
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(t, http.MethodGet, "/users/", pair.AccessToken, nil)
		assert.Contains(t, rr.Body.String(), "quokka")
	})
}

func TestCourseListEndpoints(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "z1234567@ad.unsw.edu.au")

	t.Run("add and list", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/users/z1234567@ad.unsw.edu.au/courseslist",
			pair.AccessToken, map[string][]string{"courses": {"comp1511", "COMP2521"}})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var body map[string][]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, []string{"COMP1511", "COMP2521"}, body["courses"])

		// The list is publicly readable.
		rr = env.do(t, http.MethodGet, "/users/z1234567@ad.unsw.edu.au/courseslist", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("cannot edit someone else's list", func(t *testing.T) {
		other := env.register(t, "z7654321@ad.unsw.edu.au")

		rr := env.do(t, http.MethodPost, "/users/z1234567@ad.unsw.edu.au/courseslist",
			other.AccessToken, map[string][]string{"courses": {"COMP1511"}})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("remove is a filter", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/users/z1234567@ad.unsw.edu.au/courseslist",
			pair.AccessToken, map[string][]string{"courses": {"COMP2521"}})
		require.Equal(t, http.StatusOK, rr.Code)

		var body map[string][]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, []string{"COMP1511"}, body["courses"])
	})
}

func TestCommentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	author := env.register(t, "z1111111@ad.unsw.edu.au")
	other := env.register(t, "z2222222@ad.unsw.edu.au")

	newComment := func(t *testing.T) string {
		rr := env.do(t, http.MethodPost, "/course/comment", author.AccessToken, map[string]any{
			"courseCode": "COMP1511",
			"text":       "great intro course",
			"difficulty": 2,
			"usefulness": 5,
			"workload":   3,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var comment map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&comment))
		id, _ := comment["id"].(string)
		require.NotEmpty(t, id)
		return id
	}

	t.Run("comment appears in course info", func(t *testing.T) {
		newComment(t)

		rr := env.do(t, http.MethodGet, "/course/COMP1511", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "great intro course")
	})

	t.Run("out-of-range rating", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/course/comment", author.AccessToken, map[string]any{
			"courseCode": "COMP1511",
			"text":       "x",
			"difficulty": 9,
			"usefulness": 5,
			"workload":   3,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("only the author may delete", func(t *testing.T) {
		id := newComment(t)

		rr := env.do(t, http.MethodDelete, "/course/comment/"+id, other.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = env.do(t, http.MethodDelete, "/course/comment/"+id, author.AccessToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("recommend ranks by usefulness then workload", func(t *testing.T) {
		post := func(course string, usefulness, workload int) {
			rr := env.do(t, http.MethodPost, "/course/comment", other.AccessToken, map[string]any{
				"courseCode": course,
				"text":       "rating",
				"difficulty": 3,
				"usefulness": usefulness,
				"workload":   workload,
			})
			require.Equal(t, http.StatusCreated, rr.Code)
		}
		post("MATH1081", 4, 1)
		post("MATH1131", 4, 2)

		rr := env.do(t, http.MethodGet, "/course/recommend", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Courses []struct {
				CourseCode string `json:"courseCode"`
			} `json:"courses"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.NotEmpty(t, body.Courses)

		// MATH1081 beats MATH1131: equal usefulness, lighter workload.
		positions := map[string]int{}
		for i, c := range body.Courses {
			positions[c.CourseCode] = i
		}
		assert.Less(t, positions["MATH1081"], positions["MATH1131"])
	})
}

func TestProgramEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("program info", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/program/3778", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Computer Science")
	})

	t.Run("program courses", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/program/3778/courses", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "COMP1511")
		assert.Contains(t, rr.Body.String(), "COMP2521")
	})

	t.Run("unknown program", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/program/9999", "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown course", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/course/%s", "COMP9999"), "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
