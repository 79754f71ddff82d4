// Package moderation decides whether a display name may be shown to other
// clients. The check runs on the transport goroutine, before the request
// reaches the world loop, so a slow backend can only ever stall its own
// connection.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
)

type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type Checker interface {
	CheckName(ctx context.Context, name string) Result
}

// Heuristic is the local fallback: length bounds, character allowlist and a
// banned-substring list. It is also the only check when no remote backend
// is configured.
type Heuristic struct {
	MinLen           int
	MaxLen           int
	BannedSubstrings []string
}

func (h Heuristic) CheckName(_ context.Context, name string) Result {
	trimmed := strings.TrimSpace(name)
	n := len([]rune(trimmed))
	if n < h.MinLen {
		return Result{Reason: "name too short"}
	}
	if h.MaxLen > 0 && n > h.MaxLen {
		return Result{Reason: "name too long"}
	}
	for _, r := range trimmed {
		if !allowedRune(r) {
			return Result{Reason: fmt.Sprintf("character %q not allowed", r)}
		}
	}
	lower := strings.ToLower(trimmed)
	for _, banned := range h.BannedSubstrings {
		if banned != "" && strings.Contains(lower, strings.ToLower(banned)) {
			return Result{Reason: "name not allowed"}
		}
	}
	return Result{Accepted: true}
}

func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', '\'':
		return true
	}
	return false
}

// Remote POSTs {"name": ...} to a moderation endpoint and expects
// {"accepted": bool, "reason": string}. Any transport or decode failure
// falls back to the local heuristic rather than blocking the rename.
type Remote struct {
	URL      string
	Client   *http.Client
	Fallback Checker
}

func NewRemote(url string, fallback Checker) *Remote {
	return &Remote{
		URL:      url,
		Client:   &http.Client{Timeout: 3 * time.Second},
		Fallback: fallback,
	}
}

func (r *Remote) CheckName(ctx context.Context, name string) Result {
	body, _ := json.Marshal(map[string]string{"name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return r.fallback(ctx, name)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return r.fallback(ctx, name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return r.fallback(ctx, name)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return r.fallback(ctx, name)
	}
	return out
}

func (r *Remote) fallback(ctx context.Context, name string) Result {
	if r.Fallback != nil {
		return r.Fallback.CheckName(ctx, name)
	}
	return Result{Accepted: true}
}
