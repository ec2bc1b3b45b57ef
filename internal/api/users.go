package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/app/ledger"
	"github.com/learnquest/learnquest/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// userID parses {userID}. It writes a 400 and returns false when invalid.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "user id must be a positive integer")
		return 0, false
	}
	return id, true
}

// listLimit reads ?limit=, falling back to the default when absent or out
// of range.
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > maxListLimit {
		return defaultListLimit
	}
	return n
}

// ─── Completions ────────────────────────────────────────────────────────────

type completionBody struct {
	ActivityRef string `json:"activity_ref"`
	TimeSpent   int    `json:"time_spent"`
	Score       int    `json:"score"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var body completionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
		return
	}

	res, err := s.deps.Completer.ProcessCompletion(r.Context(), domain.CompletionRequest{
		UserID:      uid,
		ActivityRef: body.ActivityRef,
		TimeSpent:   body.TimeSpent,
		Score:       body.Score,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := s.deps.DB.Completions(r.Context(), uid, listLimit(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.CompletionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completions": list})
}

// ─── Level & Wallet ─────────────────────────────────────────────────────────

func (s *Server) handleLevelTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": s.deps.Levels.Table()})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.DB.GetUser(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var xp int64
	if u != nil {
		xp = u.TotalExperience
	}
	info, err := s.deps.Levels.For(xp)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	wallet, err := ledger.Wallet(r.Context(), s.deps.DB, uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txs, err := ledger.History(r.Context(), s.deps.DB, uid, listLimit(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// ─── Streaks & Goals ────────────────────────────────────────────────────────

type streakView struct {
	domain.Streak
	State engagement.StreakState `json:"state"`
}

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	streaks, err := s.deps.DB.ListStreaks(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	now := s.now()
	out := make([]streakView, len(streaks))
	for i := range streaks {
		out[i] = streakView{Streak: streaks[i], State: s.deps.Streaks.State(&streaks[i], now)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"streaks": out})
}

type goalView struct {
	domain.Goal
	Progress float64 `json:"progress_pct"`
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	period := domain.GoalPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodDaily
	}
	goals, err := s.deps.Goals.Goals(r.Context(), s.deps.DB, uid, period, s.now())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]goalView, len(goals))
	for i, g := range goals {
		out[i] = goalView{Goal: g, Progress: g.ProgressPct()}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"period": period, "goals": out})
}

// ─── Badges & Notifications ─────────────────────────────────────────────────

func (s *Server) handleBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	badges, err := s.deps.DB.ListBadges(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if badges == nil {
		badges = []domain.Badge{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": badges})
}

type userBadgeView struct {
	domain.UserBadge
	Name   string        `json:"name"`
	Icon   string        `json:"icon"`
	Rarity domain.Rarity `json:"rarity"`
}

func (s *Server) handleUserBadges(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	earned, err := s.deps.DB.ListUserBadges(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	catalog, err := s.deps.DB.ListBadges(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	byID := make(map[string]domain.Badge, len(catalog))
	for _, b := range catalog {
		byID[b.ID] = b
	}

	out := make([]userBadgeView, len(earned))
	for i, ub := range earned {
		b := byID[ub.BadgeID]
		out[i] = userBadgeView{UserBadge: ub, Name: b.Name, Icon: b.Icon, Rarity: b.Rarity}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": out})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := s.deps.DB.ListNotifications(r.Context(), uid, listLimit(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": list})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "notification id must be an integer")
		return
	}
	found, err := s.deps.DB.MarkNotificationRead(r.Context(), uid, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}
