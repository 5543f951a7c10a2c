package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/market"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier delivers operator alerts for engine events over the Telegram
// Bot API. Message bodies are derived from the engine's own event types;
// callers never hand it preformatted text. A Notifier built without
// credentials swallows every call.
type Notifier struct {
	chatID  string
	sendURL string // empty when disabled; overridden in tests
	client  *http.Client
}

// NewNotifier creates a Notifier. Alerts are delivered only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	n := &Notifier{
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if botToken != "" && chatID != "" {
		n.sendURL = fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, botToken)
	}
	return n
}

// Enabled reports whether alerts will actually be delivered.
func (n *Notifier) Enabled() bool { return n.sendURL != "" }

// NotifyFill reports one confirmed execution.
func (n *Notifier) NotifyFill(ctx context.Context, side market.Side, fill execution.Fill) error {
	return n.post(ctx,
		"<b>Fill</b>",
		fmt.Sprintf("Side: %s", side),
		fmt.Sprintf("Shares: %d @ %.2f", fill.Size, fill.Price),
		fmt.Sprintf("Order: <code>%s</code>", fill.OrderID),
	)
}

// NotifySessionCap reports that the session exposure cap has bound.
func (n *Notifier) NotifySessionCap(ctx context.Context, spentUSD, capUSD float64) error {
	return n.post(ctx,
		"<b>Session Cap Reached</b>",
		fmt.Sprintf("Spent: %.2f of %.2f USDC", spentUSD, capUSD),
		"Trading halted until restart.",
	)
}

// NotifyResolution reports one settled market.
func (n *Notifier) NotifyResolution(ctx context.Context, conditionID string, outcome resolution.Outcome, trades, wins int) error {
	return n.post(ctx,
		"<b>Market Resolved</b>",
		fmt.Sprintf("Market: <code>%s</code>", conditionID),
		fmt.Sprintf("Outcome: %s", outcome),
		fmt.Sprintf("Trades: %d (%d won)", trades, wins),
	)
}

// NotifyShutdown reports the end-of-session summary.
func (n *Notifier) NotifyShutdown(ctx context.Context, trades int, spentUSD, pnl float64) error {
	return n.post(ctx,
		"<b>Session Complete</b>",
		fmt.Sprintf("Trades: %d", trades),
		fmt.Sprintf("Spent: %.2f USDC", spentUSD),
		fmt.Sprintf("PnL: %+.2f USDC", pnl),
	)
}

// post joins the lines into one HTML message and form-posts it to the
// sendMessage endpoint. Disabled notifiers return nil without a request.
func (n *Notifier) post(ctx context.Context, lines ...string) error {
	if !n.Enabled() {
		return nil
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("parse_mode", "HTML")
	form.Set("text", strings.Join(lines, "\n"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sendURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiResp)
	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, apiResp.Description)
	}
	return nil
}
