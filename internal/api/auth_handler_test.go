package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"elecmate/internal/auth"
	"elecmate/internal/database"
)

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	svc, err := auth.NewAuthService(privatePEM, publicPEM, 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

// deadRedis returns a client whose every command fails fast. Login treats
// redis trouble as "no limit data" and stays available.
func deadRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newAuthRouter(t *testing.T, db *gorm.DB) (*gin.Engine, *auth.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestAuthService(t)
	h := NewAuthHandler(db, svc, deadRedis(t), nil, 10, 5, 15*time.Minute, "")

	r := gin.New()
	grp := r.Group("/v1/auth")
	grp.POST("/register", h.Register)
	grp.POST("/login", h.Login)
	return r, svc
}

func postAuth(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterElectricianDefaults(t *testing.T) {
	db := newTestDB(t)
	r, _ := newAuthRouter(t, db)

	rec := postAuth(t, r, "/v1/auth/register", gin.H{
		"username": "sparky",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	var user database.User
	if err := db.Where("username = ?", "sparky").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Role != database.RoleElectrician {
		t.Fatalf("role = %q, want electrician default", user.Role)
	}
	if user.PasswordHash == "hunter2hunter2" {
		t.Fatal("password stored in the clear")
	}
	if n := countRows(t, db, &database.Employer{}); n != 0 {
		t.Fatalf("employers = %d, want none for electricians", n)
	}
}

func TestRegisterEmployerCreatesCompanyRow(t *testing.T) {
	db := newTestDB(t)
	r, _ := newAuthRouter(t, db)

	// display_name is mandatory for employers.
	rec := postAuth(t, r, "/v1/auth/register", gin.H{
		"username": "boss",
		"password": "hunter2hunter2",
		"role":     "employer",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing display_name: status = %d, want 400", rec.Code)
	}

	rec = postAuth(t, r, "/v1/auth/register", gin.H{
		"username":     "boss",
		"password":     "hunter2hunter2",
		"role":         "employer",
		"display_name": "Voltbright Ltd",
		"location":     "Leeds",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	var employer database.Employer
	if err := db.First(&employer).Error; err != nil {
		t.Fatalf("load employer: %v", err)
	}
	if employer.DisplayName != "Voltbright Ltd" || employer.Location != "Leeds" {
		t.Fatalf("employer row = %+v", employer)
	}
}

func TestRegisterValidation(t *testing.T) {
	db := newTestDB(t)
	r, _ := newAuthRouter(t, db)

	cases := []gin.H{
		{"username": "ab", "password": "hunter2hunter2"},             // too short
		{"username": "sparky", "password": "short"},                  // weak password
		{"username": "sparky", "password": "hunter2hunter2", "role": "admin"}, // closed role set
	}
	for _, body := range cases {
		if rec := postAuth(t, r, "/v1/auth/register", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	r, _ := newAuthRouter(t, db)

	body := gin.H{"username": "sparky", "password": "hunter2hunter2"}
	if rec := postAuth(t, r, "/v1/auth/register", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", rec.Code)
	}
	if rec := postAuth(t, r, "/v1/auth/register", body); rec.Code != http.StatusConflict {
		t.Fatalf("second register status = %d, want 409", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	r, svc := newAuthRouter(t, db)

	if rec := postAuth(t, r, "/v1/auth/register", gin.H{
		"username": "sparky",
		"password": "hunter2hunter2",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	rec := postAuth(t, r, "/v1/auth/login", gin.H{
		"username": "sparky",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d; body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	claims, err := svc.ValidateToken(body["access_token"].(string))
	if err != nil {
		t.Fatalf("issued access token invalid: %v", err)
	}
	if claims.Role != database.RoleElectrician || claims.TokenType != "access" {
		t.Fatalf("claims = %+v", claims)
	}
	if body["token_type"] != "Bearer" {
		t.Fatalf("token_type = %v", body["token_type"])
	}

	// The refresh token travels in an http-only cookie.
	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, refreshTokenCookieName+"=") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("refresh cookie missing or not http-only: %q", cookie)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := newTestDB(t)
	r, _ := newAuthRouter(t, db)

	if rec := postAuth(t, r, "/v1/auth/register", gin.H{
		"username": "sparky",
		"password": "hunter2hunter2",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	rec := postAuth(t, r, "/v1/auth/login", gin.H{"username": "sparky", "password": "wrongwrongwrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}

	rec = postAuth(t, r, "/v1/auth/login", gin.H{"username": "ghost", "password": "hunter2hunter2"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d, want 401", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	db := newTestDB(t)
	gin.SetMode(gin.TestMode)
	svc := newTestAuthService(t)
	h := NewAuthHandler(db, svc, deadRedis(t), nil, 10, 5, 15*time.Minute, "")

	hash, err := svc.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := database.User{Username: "sparky", PasswordHash: hash, Role: database.RoleElectrician, MustChangePassword: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	r := gin.New()
	r.POST("/v1/auth/change-password", asUser(user.ID, user.Role), h.ChangePassword)

	// Confirmation mismatch.
	rec := postAuth(t, r, "/v1/auth/change-password", gin.H{
		"current_password": "hunter2hunter2",
		"new_password":     "newpassword123",
		"confirm_password": "different12345",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatch status = %d, want 400", rec.Code)
	}

	// Reusing the current password is rejected.
	rec = postAuth(t, r, "/v1/auth/change-password", gin.H{
		"current_password": "hunter2hunter2",
		"new_password":     "hunter2hunter2",
		"confirm_password": "hunter2hunter2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reuse status = %d, want 400", rec.Code)
	}

	// Wrong current password.
	rec = postAuth(t, r, "/v1/auth/change-password", gin.H{
		"current_password": "wrongwrongwrong",
		"new_password":     "newpassword123",
		"confirm_password": "newpassword123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current status = %d, want 401", rec.Code)
	}

	rec = postAuth(t, r, "/v1/auth/change-password", gin.H{
		"current_password": "hunter2hunter2",
		"new_password":     "newpassword123",
		"confirm_password": "newpassword123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change status = %d; body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["must_change_password"] != false {
		t.Fatal("must_change_password should clear after the change")
	}

	var reloaded database.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.MustChangePassword {
		t.Fatal("flag not cleared in the database")
	}
	if !svc.CheckPasswordHash("newpassword123", reloaded.PasswordHash) {
		t.Fatal("new password not stored")
	}
}
