package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"elecmate/internal/assessment"
	"elecmate/internal/database"
)

func seedBank(t *testing.T, db *gorm.DB, bank assessment.Bank) {
	t.Helper()
	raw, err := json.Marshal(bank.Questions)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	row := database.QuestionBank{
		Slug:          bank.Slug,
		Title:         bank.Title,
		PassThreshold: bank.PassThreshold,
		Questions:     datatypes.JSON(raw),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed bank: %v", err)
	}
}

func testBank() assessment.Bank {
	return assessment.Bank{
		Slug:          "wiring-regs",
		Title:         "Wiring Regulations",
		PassThreshold: 0.5,
		Questions: []assessment.Question{
			{
				ID:           "q1",
				Prompt:       "Which document certifies a new circuit?",
				Options:      []string{"EIC", "Minor works certificate"},
				CorrectIndex: 0,
				Explanation:  "New circuits need a full installation certificate.",
			},
			{
				ID:           "q2",
				Prompt:       "What is the UK nominal supply voltage?",
				Options:      []string{"240V", "230V"},
				CorrectIndex: 1,
			},
		},
	}
}

func newQuizRouter(t *testing.T) (*gin.Engine, *gorm.DB, *assessment.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	store := assessment.NewStore(time.Minute)
	h := NewQuizHandler(db, store, nil)

	r := gin.New()
	grp := r.Group("/v1/quiz")
	grp.GET("/banks", h.ListBanks)
	grp.GET("/banks/:slug", h.GetBank)
	grp.POST("/banks/:slug/attempts", h.BeginAttempt)
	grp.POST("/banks/:slug/attempts/:attemptID/answers", h.Answer)
	grp.GET("/banks/:slug/attempts/:attemptID/progress", h.Progress)
	grp.POST("/banks/:slug/attempts/:attemptID/submit", h.Submit)
	return r, db, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, jsonBody(t, body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListBanks(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodGet, "/v1/quiz/banks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	banks := decodeBody(t, rec)["banks"].([]any)
	if len(banks) != 1 {
		t.Fatalf("banks = %d, want 1", len(banks))
	}
	entry := banks[0].(map[string]any)
	if entry["slug"] != "wiring-regs" || entry["question_count"] != float64(2) {
		t.Fatalf("unexpected summary: %+v", entry)
	}
	if strings.Contains(rec.Body.String(), "correct_index") {
		t.Fatal("bank listing must not leak answers")
	}
}

func TestGetBankStripsAnswers(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodGet, "/v1/quiz/banks/wiring-regs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "correct_index") || strings.Contains(body, "explanation") {
		t.Fatalf("answers leaked into public bank payload: %s", body)
	}
	questions := decodeBody(t, rec)["questions"].([]any)
	if len(questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(questions))
	}
}

func TestGetBankNotFound(t *testing.T) {
	r, _, _ := newQuizRouter(t)
	if rec := doJSON(t, r, http.MethodGet, "/v1/quiz/banks/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBeginAttempt(t *testing.T) {
	r, db, store := newQuizRouter(t)
	seedBank(t, db, testBank())

	// Empty body defaults to the revisable policy.
	rec := doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["lock_policy"] != string(assessment.LockOnSubmit) {
		t.Fatalf("lock_policy = %v", body["lock_policy"])
	}
	if body["attempt_id"] == "" {
		t.Fatal("missing attempt_id")
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d attempts, want 1", store.Len())
	}

	// An unknown policy is rejected.
	rec = doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts",
		gin.H{"lock_policy": "eventually"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestQuizFullFlow(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts", nil)
	attemptID := decodeBody(t, rec)["attempt_id"].(string)
	base := "/v1/quiz/banks/wiring-regs/attempts/" + attemptID

	// Answer q1 wrong; no feedback under the revisable policy.
	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d; body %s", rec.Code, rec.Body.String())
	}
	if _, leaked := decodeBody(t, rec)["feedback"]; leaked {
		t.Fatal("revisable policy must withhold feedback until submit")
	}

	// Revise q1 to the right answer.
	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("revise status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, base+"/progress", nil)
	progress := decodeBody(t, rec)["progress"].(map[string]any)
	if progress["correct"] != float64(1) || progress["answered"] != float64(1) || progress["total"] != float64(2) {
		t.Fatalf("progress = %+v", progress)
	}

	// Submit with q2 unanswered: 1/2 meets the 0.5 threshold.
	rec = doJSON(t, r, http.MethodPost, base+"/submit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}
	result := decodeBody(t, rec)
	if result["passed"] != true {
		t.Fatalf("passed = %v, want true: %+v", result["passed"], result)
	}
	feedback := result["feedback"].(map[string]any)
	if len(feedback) != 2 {
		t.Fatalf("feedback entries = %d, want every question", len(feedback))
	}

	// The attempt is gone after submission.
	rec = doJSON(t, r, http.MethodPost, base+"/submit", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("resubmit status = %d, want 410", rec.Code)
	}
}

func TestQuizImmediateLock(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts",
		gin.H{"lock_policy": "immediate"})
	attemptID := decodeBody(t, rec)["attempt_id"].(string)
	base := "/v1/quiz/banks/wiring-regs/attempts/" + attemptID

	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d", rec.Code)
	}
	feedback := decodeBody(t, rec)["feedback"].(map[string]any)
	if feedback["correct"] != false || feedback["correct_index"] != float64(0) {
		t.Fatalf("feedback = %+v", feedback)
	}

	// The first selection is final.
	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 0})
	if rec.Code != http.StatusConflict {
		t.Fatalf("relock status = %d, want 409", rec.Code)
	}
}

func TestQuizAnswerValidation(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts", nil)
	attemptID := decodeBody(t, rec)["attempt_id"].(string)
	base := "/v1/quiz/banks/wiring-regs/attempts/" + attemptID

	// option_index is required even when zero, so a missing field is a 400.
	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing option status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "bogus", "option_index": 0})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown question status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range status = %d, want 400", rec.Code)
	}
}

func TestQuizAttemptInvalidatedByBankEdit(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	rec := doJSON(t, r, http.MethodPost, "/v1/quiz/banks/wiring-regs/attempts", nil)
	attemptID := decodeBody(t, rec)["attempt_id"].(string)
	base := "/v1/quiz/banks/wiring-regs/attempts/" + attemptID

	// Re-author the bank mid-attempt.
	edited := testBank()
	edited.Questions[0].Prompt = "Which certificate covers a brand new circuit?"
	raw, err := json.Marshal(edited.Questions)
	if err != nil {
		t.Fatalf("marshal edited questions: %v", err)
	}
	if err := db.Model(&database.QuestionBank{}).
		Where("slug = ?", "wiring-regs").
		Update("questions", datatypes.JSON(raw)).Error; err != nil {
		t.Fatalf("update bank: %v", err)
	}

	rec = doJSON(t, r, http.MethodPost, base+"/answers", gin.H{"question_id": "q1", "option_index": 0})
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410 after bank edit; body %s", rec.Code, rec.Body.String())
	}
}

func TestQuizUnknownAttempt(t *testing.T) {
	r, db, _ := newQuizRouter(t)
	seedBank(t, db, testBank())

	path := fmt.Sprintf("/v1/quiz/banks/wiring-regs/attempts/%s/progress", "no-such-attempt")
	if rec := doJSON(t, r, http.MethodGet, path, nil); rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
}
