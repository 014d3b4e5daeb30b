package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Account is one account row.
type Account struct {
	ID                        int64
	UserID                    int64
	AccountType               string
	Subtype                   string
	ProductName               string
	BalanceCAD                float64
	InterestRate              *float64
	ContributionRoomRemaining *float64
	ContributionDeadline      string
	IsActive                  bool
}

// Position is one holding row.
type Position struct {
	ID         int64
	AccountID  int64
	UserID     int64
	Ticker     string
	Name       string
	Shares     float64
	AvgCostCAD float64
	Currency   string
	AssetType  string
	CreatedAt  time.Time
}

// Transaction is one ledger row.
type Transaction struct {
	ID              int64
	AccountID       int64
	UserID          int64
	TransactionType string
	Ticker          string
	Shares          float64
	PriceCAD        float64
	TotalCAD        float64
	Notes           string
	ExecutedAt      time.Time
}

// Accounts returns every account for the user, inactive included: the
// unopened FHSA matters to the agents.
func (s *Store) Accounts(userID int64) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, account_type, COALESCE(subtype, ''), product_name,
		       balance_cad, interest_rate, contribution_room_remaining,
		       COALESCE(contribution_deadline, ''), is_active
		FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var rate, room sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountType, &a.Subtype, &a.ProductName,
			&a.BalanceCAD, &rate, &room, &a.ContributionDeadline, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if rate.Valid {
			a.InterestRate = &rate.Float64
		}
		if room.Valid {
			a.ContributionRoomRemaining = &room.Float64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Positions returns every position for the user across all accounts.
func (s *Store) Positions(userID int64) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, account_id, user_id, ticker, name, shares, avg_cost_cad,
		       currency, asset_type, created_at
		FROM positions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.AccountID, &p.UserID, &p.Ticker, &p.Name,
			&p.Shares, &p.AvgCostCAD, &p.Currency, &p.AssetType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertTransaction appends one ledger row and returns its id.
func (s *Store) InsertTransaction(t Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	executed := t.ExecutedAt
	if executed.IsZero() {
		executed = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO transactions (account_id, user_id, transaction_type, ticker,
		                          shares, price_cad, total_cad, notes, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.UserID, t.TransactionType, nullString(t.Ticker),
		t.Shares, t.PriceCAD, t.TotalCAD, nullString(t.Notes), executed)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// TransactionsByTicker returns the user's trades for one ticker in
// execution order, for the cost-basis overlay.
func (s *Store) TransactionsByTicker(userID int64, ticker string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, account_id, user_id, transaction_type, COALESCE(ticker, ''),
		       COALESCE(shares, 0), price_cad, total_cad, COALESCE(notes, ''), executed_at
		FROM transactions WHERE user_id = ? AND ticker = ? ORDER BY executed_at`, userID, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.UserID, &t.TransactionType, &t.Ticker,
			&t.Shares, &t.PriceCAD, &t.TotalCAD, &t.Notes, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApplyTrade mutates the stored position and cash balance for an executed
// trade, mirroring the simulation arithmetic the pre-check ran.
func (s *Store) ApplyTrade(userID, accountID int64, ticker string, shares, price float64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trade transaction: %w", err)
	}
	defer tx.Rollback()

	total := shares * price

	var posID int64
	var curShares, curAvg float64
	err = tx.QueryRow(`
		SELECT id, shares, avg_cost_cad FROM positions
		WHERE account_id = ? AND upper(ticker) = upper(?)`, accountID, ticker).
		Scan(&posID, &curShares, &curAvg)
	switch {
	case err == sql.ErrNoRows && action == "buy":
		if _, err := tx.Exec(`
			INSERT INTO positions (account_id, user_id, ticker, name, shares, avg_cost_cad)
			VALUES (?, ?, ?, ?, ?, ?)`,
			accountID, userID, ticker, ticker, shares, price); err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to load position for trade: %w", err)
	case action == "buy":
		newShares := curShares + shares
		newAvg := (curShares*curAvg + total) / newShares
		if _, err := tx.Exec(`UPDATE positions SET shares = ?, avg_cost_cad = ? WHERE id = ?`,
			newShares, newAvg, posID); err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}
	case action == "sell":
		remaining := curShares - shares
		if remaining > 0.0001 {
			if _, err := tx.Exec(`UPDATE positions SET shares = ? WHERE id = ?`,
				remaining, posID); err != nil {
				return fmt.Errorf("failed to update position: %w", err)
			}
		} else {
			if _, err := tx.Exec(`DELETE FROM positions WHERE id = ?`, posID); err != nil {
				return fmt.Errorf("failed to delete position: %w", err)
			}
		}
		total = -total // cash credited below
	default:
		return fmt.Errorf("unknown trade action %q", action)
	}

	if _, err := tx.Exec(`UPDATE accounts SET balance_cad = balance_cad - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		total, accountID); err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	return tx.Commit()
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
