// Package monitor watches the portfolio in the background and fires alerts
// on price moves, carrying costs, deadlines, and harvesting windows.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"finsight/internal/logging"
	"finsight/internal/snapshot"
	"finsight/internal/store"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultStartupDelay = 30 * time.Second
)

// SnapshotFunc builds the current portfolio snapshot.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// Monitor is the background watcher.
type Monitor struct {
	store        *store.Store
	build        SnapshotFunc
	cooldowns    CooldownStore
	broadcaster  *Broadcaster
	interval     time.Duration
	startupDelay time.Duration

	last *snapshot.Snapshot
	done chan struct{}
	stop chan struct{}
}

// New creates a Monitor. A nil cooldowns falls back to the in-memory store.
func New(st *store.Store, build SnapshotFunc, cooldowns CooldownStore, interval, startupDelay time.Duration) *Monitor {
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if startupDelay < 0 {
		startupDelay = DefaultStartupDelay
	}
	return &Monitor{
		store:        st,
		build:        build,
		cooldowns:    cooldowns,
		broadcaster:  NewBroadcaster(),
		interval:     interval,
		startupDelay: startupDelay,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Broadcaster exposes the alert fan-out for SSE subscribers.
func (m *Monitor) Broadcaster() *Broadcaster { return m.broadcaster }

// Start launches the loop. The first check waits out the startup delay so
// boot-time work settles first.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

// Stop signals the loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	log := logging.Get(logging.CategoryMonitor)

	select {
	case <-time.After(m.startupDelay):
	case <-m.stop:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Check(ctx, time.Now().UTC()); err != nil {
			log.Error("monitor check failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one evaluation pass: build a snapshot, compare against the
// previous one, persist and broadcast anything that fired.
func (m *Monitor) Check(ctx context.Context, now time.Time) error {
	snap, err := m.build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}

	alerts := m.evaluate(m.last, snap, now)
	for _, a := range alerts {
		stored, err := m.store.InsertAlert(a)
		if err != nil {
			logging.Get(logging.CategoryMonitor).Error("failed to persist alert",
				zap.String("type", a.AlertType), zap.Error(err))
			continue
		}
		m.broadcaster.publish(stored)
	}

	if len(alerts) > 0 {
		logging.Get(logging.CategoryMonitor).Info("alerts fired", zap.Int("count", len(alerts)))
	}
	m.last = &snap
	return nil
}

type tickerPosition struct {
	pos         snapshot.Position
	accountType string
}

func allPositions(snap snapshot.Snapshot) []tickerPosition {
	var out []tickerPosition
	for _, acct := range snap.Accounts {
		for _, pos := range acct.Positions {
			out = append(out, tickerPosition{pos: pos, accountType: acct.AccountType})
		}
	}
	return out
}

func positionMap(snap *snapshot.Snapshot) map[string]snapshot.Position {
	out := make(map[string]snapshot.Position)
	if snap == nil {
		return out
	}
	for _, acct := range snap.Accounts {
		for _, pos := range acct.Positions {
			out[pos.Ticker] = pos
		}
	}
	return out
}

// evaluate applies every trigger. Price-relative triggers need a previous
// snapshot and stay silent on the first pass.
func (m *Monitor) evaluate(prev *snapshot.Snapshot, cur snapshot.Snapshot, now time.Time) []store.Alert {
	var alerts []store.Alert
	add := func(alertType, ticker, message string, impact float64, window time.Duration) {
		key := cooldownKey(alertType, ticker)
		if !m.cooldowns.Ready(key, window, now) {
			return
		}
		alerts = append(alerts, store.Alert{
			UserID:       store.DemoUserID,
			AlertType:    alertType,
			Ticker:       ticker,
			Message:      message,
			DollarImpact: impact,
			CreatedAt:    now,
		})
		m.cooldowns.Arm(key, now)
	}

	positions := allPositions(cur)
	lastPositions := positionMap(prev)

	// Price moves since the previous pass.
	if prev != nil {
		for _, tp := range positions {
			pos := tp.pos
			lp, ok := lastPositions[pos.Ticker]
			if !ok || lp.CurrentPrice <= 0 {
				continue
			}
			changePct := (pos.CurrentPrice - lp.CurrentPrice) / lp.CurrentPrice * 100

			if changePct <= -5 {
				unrealized := pos.UnrealizedGainLossCAD
				label := "gain"
				if unrealized < 0 {
					label = "loss"
				}
				add("price_drop", pos.Ticker, fmt.Sprintf(
					"%s is down %.1f%% — your unrealized %s is now $%.0f. That changes the harvesting math.",
					pos.Ticker, math.Abs(changePct), label, math.Abs(unrealized)),
					math.Abs(unrealized), 4*time.Hour)
			} else if changePct >= 10 {
				add("price_gain", pos.Ticker, fmt.Sprintf(
					"%s is up %.1f%% — your unrealized gain is now $%.0f. Worth knowing before you make any moves.",
					pos.Ticker, changePct, pos.UnrealizedGainLossCAD),
					pos.UnrealizedGainLossCAD, 4*time.Hour)
			}
		}
	}

	// Margin carrying cost.
	if cur.Margin != nil && cur.Margin.AnnualCost > 500 {
		quarterly := math.Round(cur.Margin.AnnualCost / 4)
		add("margin_interest", "", fmt.Sprintf(
			"Your margin debt has now cost you $%.0f in interest this quarter. At $%.0f/year, that's eroding your returns.",
			quarterly, cur.Margin.AnnualCost), quarterly, 7*24*time.Hour)
	}

	// RRSP deadline within a week.
	for _, acct := range cur.Accounts {
		if acct.AccountType != "rrsp" || acct.ContributionDeadline == "" {
			continue
		}
		deadline, err := time.Parse("2006-01-02", acct.ContributionDeadline)
		if err != nil {
			continue
		}
		daysLeft := int(deadline.Sub(now.Truncate(24*time.Hour)).Hours() / 24)
		if daysLeft < 0 || daysLeft > 7 {
			continue
		}
		room := 0.0
		if acct.ContributionRoomRemaining != nil {
			room = *acct.ContributionRoomRemaining
		}
		dayWord := "days"
		if daysLeft == 1 {
			dayWord = "day"
		}
		msg := fmt.Sprintf("RRSP deadline is %d %s away.", daysLeft, dayWord)
		if room > 0 {
			msg = fmt.Sprintf(
				"RRSP deadline is %d %s away. You still have $%.0f in contribution room. Every dollar contributed saves you ~$0.43 in tax.",
				daysLeft, dayWord, room)
		}
		add("rrsp_deadline", "", msg, room, 24*time.Hour)
	}

	// FHSA never opened.
	if fhsa := cur.AccountByType("fhsa"); fhsa != nil && !fhsa.IsActive {
		room := 8000.0
		if fhsa.ContributionRoomRemaining != nil {
			room = *fhsa.ContributionRoomRemaining
		}
		add("fhsa", "", fmt.Sprintf(
			"You haven't opened your FHSA yet. You're leaving $%.0f in tax-free contribution room on the table — open it today to start accumulating room.",
			room), room, 7*24*time.Hour)
	}

	// Portfolio drawdown since the previous pass.
	if prev != nil && prev.TotalValueCAD > 0 {
		chg := (cur.TotalValueCAD - prev.TotalValueCAD) / prev.TotalValueCAD * 100
		if chg <= -3 {
			loss := prev.TotalValueCAD - cur.TotalValueCAD
			nLoss := 0
			for _, tp := range positions {
				if tp.pos.UnrealizedGainLossCAD < 0 {
					nLoss++
				}
			}
			plural := "s"
			if nLoss == 1 {
				plural = ""
			}
			add("portfolio_down", "", fmt.Sprintf(
				"Your portfolio is down %.1f%% since last check — $%.0f in unrealized losses across %d position%s.",
				math.Abs(chg), loss, nLoss, plural), loss, 24*time.Hour)
		}
	}

	// Newly opened harvesting windows: loss just crossed -$200.
	if prev != nil {
		for _, tp := range positions {
			pos := tp.pos
			if pos.UnrealizedGainLossCAD >= -200 {
				continue
			}
			lp, ok := lastPositions[pos.Ticker]
			if !ok || lp.UnrealizedGainLossCAD <= -200 {
				continue
			}
			add("tlh_window", pos.Ticker, fmt.Sprintf(
				"A new harvesting window just opened on %s — $%.0f loss you could use to offset gains.",
				pos.Ticker, math.Abs(pos.UnrealizedGainLossCAD)),
				math.Abs(pos.UnrealizedGainLossCAD), 24*time.Hour)
		}
	}

	return alerts
}
