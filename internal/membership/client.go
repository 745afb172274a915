// Package membership talks to the upstream membership service to answer one
// question: may this member enter this gym right now.
package membership

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"gymgate/internal/types"
)

// AccessDecision is the upstream verdict for a single entry attempt.
type AccessDecision struct {
	Valid        bool   `json:"valid"`
	MembershipID string `json:"membership_id"`
	GymOpen      bool   `json:"gym_open"`
	Reason       string `json:"reason"`
}

// Validator answers entry-permission checks. The production implementation
// calls the membership service over HTTP; tests substitute a stub.
type Validator interface {
	ValidateAccess(ctx context.Context, memberID, gymID string) (*AccessDecision, error)
}

// HTTPValidator implements Validator against the membership service's
// POST /internal/v1/access-checks endpoint.
type HTTPValidator struct {
	configManager types.ConfigManager
	client        *http.Client
}

// NewHTTPValidator creates a Validator using the configured base URL and
// timeout.
func NewHTTPValidator(configManager types.ConfigManager) *HTTPValidator {
	cfg := configManager.GetMembershipConfig()
	return &HTTPValidator{
		configManager: configManager,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// ValidateAccess asks the membership service whether the member may enter.
// A denial is returned as a decision, not an error; errors mean the answer
// is unknown (network failure, upstream 5xx, malformed body) and the caller
// must fail closed.
func (v *HTTPValidator) ValidateAccess(ctx context.Context, memberID, gymID string) (*AccessDecision, error) {
	cfg := v.configManager.GetMembershipConfig()

	body, _ := sjson.Set("", "member_id", memberID)
	body, _ = sjson.Set(body, "gym_id", gymID)

	url := cfg.BaseURL + "/internal/v1/access-checks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("build access-check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("membership service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read access-check response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"status":    resp.StatusCode,
			"member_id": memberID,
			"gym_id":    gymID,
		}).Warn("Membership service returned non-200 for access check")
		return nil, fmt.Errorf("membership service returned status %d", resp.StatusCode)
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.Get("valid").Exists() {
		return nil, fmt.Errorf("membership service response missing valid field")
	}

	return &AccessDecision{
		Valid:        parsed.Get("valid").Bool(),
		MembershipID: parsed.Get("membership_id").String(),
		GymOpen:      parsed.Get("gym_open").Bool(),
		Reason:       parsed.Get("reason").String(),
	}, nil
}
