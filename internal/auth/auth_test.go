package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconattend/internal/apperr"
)

func testDirectory() *Directory {
	return NewDirectory(
		[]string{"faculty1@mru.edu.in", "Mentor@mru.edu.in"},
		[]string{"ekakshjeena@mru.edu.in"},
		"@mru.edu.in", "@mru.ac.in",
	)
}

func TestResolve(t *testing.T) {
	d := testDirectory()

	tests := []struct {
		name   string
		role   Role
		email  string
		wantID string
		err    error
	}{
		{"mentor", RoleMentor, "faculty1@mru.edu.in", "M_faculty1", nil},
		{"mentor case insensitive", RoleMentor, " MENTOR@mru.edu.in ", "M_mentor", nil},
		{"mentor not listed", RoleMentor, "someone@mru.edu.in", "", apperr.ErrUnauthorized},
		{"mentor wrong domain", RoleMentor, "faculty1@gmail.com", "", apperr.ErrUnauthorized},
		{"teacher", RoleTeacher, "ekakshjeena@mru.edu.in", "T_ekakshjeena", nil},
		{"teacher on mentor list only", RoleTeacher, "faculty1@mru.edu.in", "", apperr.ErrUnauthorized},
		{"student", RoleStudent, "stu1@mru.ac.in", "S_stu1", nil},
		{"student staff domain", RoleStudent, "stu1@mru.edu.in", "", apperr.ErrUnauthorized},
		{"empty", RoleStudent, "", "", apperr.ErrValidation},
		{"unknown role", Role("ADMIN"), "a@mru.edu.in", "", apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := d.Resolve(tc.role, tc.email)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, id.ID)
			assert.Equal(t, tc.role, id.Role)
		})
	}
}

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	tok, err := Issue(Identity{ID: "S_stu1", Role: RoleStudent, Email: "stu1@mru.ac.in", RollNo: "AIML01", Section: "AIML-1A"},
		"beaconattend", "secret", time.Hour, now)
	require.NoError(t, err)

	claims, err := Parse(tok.AccessToken, "secret", "beaconattend", nil)
	require.NoError(t, err)
	assert.Equal(t, "S_stu1", claims.UserID())
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, "AIML-1A", claims.Section)

	_, err = Parse(tok.AccessToken, "other", "beaconattend", nil)
	assert.Error(t, err)
	_, err = Parse(tok.AccessToken, "secret", "someone-else", nil)
	assert.Error(t, err)

	expired, err := Issue(Identity{ID: "S_x", Role: RoleStudent}, "beaconattend", "secret", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = Parse(expired.AccessToken, "secret", "beaconattend", nil)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", Authenticate("secret", "beaconattend", nil), RequireRole(RoleMentor))
	g.GET("/mentor", func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.UserID())
	})

	call := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mentor", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)

	student, _ := Issue(Identity{ID: "S_a", Role: RoleStudent}, "beaconattend", "secret", time.Hour, time.Now())
	assert.Equal(t, http.StatusForbidden, call("Bearer "+student.AccessToken).Code)

	mentor, _ := Issue(Identity{ID: "M_faculty1", Role: RoleMentor}, "beaconattend", "secret", time.Hour, time.Now())
	w := call("Bearer " + mentor.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "M_faculty1", w.Body.String())
}

func TestParseUsesInjectedClock(t *testing.T) {
	issued := time.Date(2025, 9, 1, 9, 15, 0, 0, time.UTC)
	tok, err := Issue(Identity{ID: "M_faculty1", Role: RoleMentor}, "beaconattend", "secret", time.Hour, issued)
	require.NoError(t, err)

	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	_, err = Parse(tok.AccessToken, "secret", "beaconattend", at(issued.Add(30*time.Minute)))
	assert.NoError(t, err)
	_, err = Parse(tok.AccessToken, "secret", "beaconattend", at(issued.Add(2*time.Hour)))
	assert.Error(t, err)
}
