package store

import (
	"errors"
	"fmt"
	"time"
)

var ErrAlertNotFound = errors.New("alert not found")

// Alert is one monitor alert row. SurfacedAt and DismissedAt are nil until
// the alert has been shown to or dismissed by the user.
type Alert struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	AlertType    string     `json:"alert_type"`
	Message      string     `json:"message"`
	Ticker       string     `json:"ticker,omitempty"`
	DollarImpact float64    `json:"dollar_impact"`
	CreatedAt    time.Time  `json:"created_at"`
	SurfacedAt   *time.Time `json:"surfaced_at,omitempty"`
	DismissedAt  *time.Time `json:"dismissed_at,omitempty"`
}

// InsertAlert stores a fired alert and returns it with its id set.
func (s *Store) InsertAlert(a Alert) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO monitor_alerts (user_id, alert_type, message, ticker, dollar_impact, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AlertType, a.Message, nullString(a.Ticker), a.DollarImpact, a.CreatedAt)
	if err != nil {
		return Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

// PendingAlerts returns undismissed, unsurfaced alerts, newest first.
func (s *Store) PendingAlerts(userID int64) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, alert_type, message, COALESCE(ticker, ''),
		       COALESCE(dollar_impact, 0), created_at
		FROM monitor_alerts
		WHERE user_id = ? AND dismissed_at IS NULL AND surfaced_at IS NULL
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.AlertType, &a.Message,
			&a.Ticker, &a.DollarImpact, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkSurfaced records that an alert was shown to the user.
func (s *Store) MarkSurfaced(alertID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE monitor_alerts SET surfaced_at = CURRENT_TIMESTAMP WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert surfaced: %w", err)
	}
	return nil
}

// DismissAlert records the user dismissing an alert.
func (s *Store) DismissAlert(alertID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE monitor_alerts SET dismissed_at = CURRENT_TIMESTAMP WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
