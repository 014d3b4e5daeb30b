package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AdvisorReport is a cached advisor-mode briefing.
type AdvisorReport struct {
	UserID           int64     `json:"-"`
	Headline         string    `json:"headline"`
	FullPicture      string    `json:"full_picture"`
	DoNotDo          string    `json:"do_not_do"`
	TotalOpportunity int64     `json:"total_opportunity"`
	Chips            []string  `json:"chips"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// CachedAdvisorReport returns the newest report younger than maxAge, or nil.
func (s *Store) CachedAdvisorReport(userID int64, maxAge time.Duration) (*AdvisorReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r AdvisorReport
	var chipsJSON string
	err := s.db.QueryRow(`
		SELECT user_id, headline, full_picture, do_not_do, total_opportunity, chips, generated_at
		FROM advisor_cache WHERE user_id = ?
		ORDER BY generated_at DESC LIMIT 1`, userID).
		Scan(&r.UserID, &r.Headline, &r.FullPicture, &r.DoNotDo, &r.TotalOpportunity, &chipsJSON, &r.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load advisor cache: %w", err)
	}
	if time.Since(r.GeneratedAt) > maxAge {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(chipsJSON), &r.Chips); err != nil {
		r.Chips = nil
	}
	return &r, nil
}

// SaveAdvisorReport caches a freshly generated report.
func (s *Store) SaveAdvisorReport(r AdvisorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Chips == nil {
		r.Chips = []string{}
	}
	chipsJSON, err := json.Marshal(r.Chips)
	if err != nil {
		return fmt.Errorf("failed to marshal advisor chips: %w", err)
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(`
		INSERT INTO advisor_cache (user_id, headline, full_picture, do_not_do, total_opportunity, chips, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Headline, r.FullPicture, r.DoNotDo, r.TotalOpportunity, string(chipsJSON), r.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save advisor report: %w", err)
	}
	return nil
}
