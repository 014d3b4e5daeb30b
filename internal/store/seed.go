package store

import (
	"fmt"

	"go.uber.org/zap"

	"finsight/internal/logging"
)

type seedAccount struct {
	accountType string
	subtype     string
	productName string
	balanceCAD  float64
	rate        *float64
	room        *float64
	deadline    string
	active      bool
	positions   []seedPosition
}

type seedPosition struct {
	ticker    string
	name      string
	shares    float64
	avgCost   float64
	assetType string
}

func f(v float64) *float64 { return &v }

// demoAccounts is the demo investor: registered accounts with room left,
// a non-registered account holding both a gain (SHOP.TO) and a loss
// (CNQ.TO), margin debt, and an FHSA that was never opened.
var demoAccounts = []seedAccount{
	{
		accountType: "chequing",
		productName: "Cash Chequing",
		balanceCAD:  4200,
		rate:        f(0.0225),
		active:      true,
	},
	{
		accountType: "tfsa",
		subtype:     "managed",
		productName: "Managed TFSA",
		balanceCAD:  38250,
		room:        f(7000),
		active:      true,
	},
	{
		accountType: "rrsp",
		subtype:     "self_directed",
		productName: "Self-Directed RRSP",
		balanceCAD:  2500,
		room:        f(14500),
		deadline:    "2027-03-01",
		active:      true,
		positions: []seedPosition{
			{ticker: "XEQT.TO", name: "iShares Core Equity ETF Portfolio", shares: 620, avgCost: 28.4, assetType: "etf"},
		},
	},
	{
		accountType: "non_registered",
		subtype:     "self_directed",
		productName: "Self-Directed Non-Registered",
		balanceCAD:  1150,
		active:      true,
		positions: []seedPosition{
			{ticker: "SHOP.TO", name: "Shopify Inc.", shares: 40, avgCost: 92.5, assetType: "stock"},
			{ticker: "CNQ.TO", name: "Canadian Natural Resources", shares: 85, avgCost: 51.2, assetType: "stock"},
			{ticker: "VEQT.TO", name: "Vanguard All-Equity ETF Portfolio", shares: 55, avgCost: 39.75, assetType: "etf"},
		},
	},
	{
		accountType: "fhsa",
		productName: "First Home Savings Account",
		balanceCAD:  0,
		room:        f(8000),
		active:      false,
	},
	{
		accountType: "margin",
		productName: "Margin",
		balanceCAD:  -8000,
		rate:        f(0.062),
		active:      true,
	},
	{
		accountType: "crypto",
		productName: "Crypto",
		balanceCAD:  0,
		active:      true,
		positions: []seedPosition{
			{ticker: "BTC-CAD", name: "Bitcoin", shares: 0.015, avgCost: 117333.33, assetType: "crypto"},
			{ticker: "ETH-CAD", name: "Ethereum", shares: 0.27, avgCost: 4388.89, assetType: "crypto"},
		},
	},
}

// SeedDemo inserts the demo user with all accounts and positions if the
// users table is empty. Safe to call on every boot.
func (s *Store) SeedDemo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO users (email, display_name, tier) VALUES (?, ?, ?)`,
		"demo@finsight.local", "Demo Investor", "premium")
	if err != nil {
		return fmt.Errorf("failed to insert demo user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, acct := range demoAccounts {
		res, err := tx.Exec(`
			INSERT INTO accounts (user_id, account_type, subtype, product_name, balance_cad,
			                      interest_rate, contribution_room_remaining, contribution_deadline, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, acct.accountType, nullString(acct.subtype), acct.productName, acct.balanceCAD,
			nullFloat(acct.rate), nullFloat(acct.room), nullString(acct.deadline), acct.active)
		if err != nil {
			return fmt.Errorf("failed to insert %s account: %w", acct.accountType, err)
		}
		accountID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, pos := range acct.positions {
			if _, err := tx.Exec(`
				INSERT INTO positions (account_id, user_id, ticker, name, shares, avg_cost_cad, currency, asset_type)
				VALUES (?, ?, ?, ?, ?, ?, 'CAD', ?)`,
				accountID, userID, pos.ticker, pos.name, pos.shares, pos.avgCost, pos.assetType); err != nil {
				return fmt.Errorf("failed to insert %s position: %w", pos.ticker, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("seeded demo user",
		zap.Int64("user_id", userID), zap.Int("accounts", len(demoAccounts)))
	return nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
