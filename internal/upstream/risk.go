package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

// SecurityScanner fetches contract risk flags from the token security
// sidecar.
type SecurityScanner struct {
	client *client
	logger *logrus.Logger
}

func NewSecurityScanner(cfg config.UpstreamServiceConfig, logger *logrus.Logger) *SecurityScanner {
	return &SecurityScanner{
		client: newClient(cfg),
		logger: logger,
	}
}

type tokenSecurityResponse struct {
	Code    int                          `json:"code"`
	Message string                       `json:"message"`
	Result  map[string]tokenSecurityInfo `json:"result"`
}

// tokenSecurityInfo mirrors the scanner's flag fields. Flags arrive as the
// strings "0" and "1"; an absent flag is the empty string and counts as
// unknown rather than safe or risky.
type tokenSecurityInfo struct {
	IsHoneypot           string `json:"is_honeypot"`
	IsMintable           string `json:"is_mintable"`
	IsProxy              string `json:"is_proxy"`
	IsOpenSource         string `json:"is_open_source"`
	IsBlacklisted        string `json:"is_blacklisted"`
	CanTakeBackOwnership string `json:"can_take_back_ownership"`
	OwnerChangeBalance   string `json:"owner_change_balance"`
	HiddenOwner          string `json:"hidden_owner"`
	SelfDestruct         string `json:"selfdestruct"`
	ExternalCall         string `json:"external_call"`
	TransferPausable     string `json:"transfer_pausable"`
	TradingCooldown      string `json:"trading_cooldown"`
	CannotSellAll        string `json:"cannot_sell_all"`
}

func (info tokenSecurityInfo) factors() []string {
	var factors []string
	add := func(flag, name string) {
		if flag == "1" {
			factors = append(factors, name)
		}
	}
	add(info.IsMintable, "mintable")
	add(info.IsProxy, "proxy_contract")
	add(info.IsBlacklisted, "blacklisted")
	add(info.CanTakeBackOwnership, "can_take_back_ownership")
	add(info.OwnerChangeBalance, "owner_change_balance")
	add(info.HiddenOwner, "hidden_owner")
	add(info.SelfDestruct, "selfdestruct")
	add(info.ExternalCall, "external_call")
	add(info.TransferPausable, "transfer_pausable")
	add(info.TradingCooldown, "trading_cooldown")
	add(info.CannotSellAll, "cannot_sell_all")
	if info.IsOpenSource == "0" {
		factors = append(factors, "not_open_source")
	}
	return factors
}

// GetTokenSecurity returns the scanner's view of a token. A token the
// scanner has never indexed yields (nil, false, nil): clean unknown tokens
// are a normal outcome, not a failure.
func (s *SecurityScanner) GetTokenSecurity(ctx context.Context, chainID int, tokenAddress string) (*models.RiskFacts, bool, error) {
	start := time.Now()
	path := fmt.Sprintf("/api/v1/token_security/%d?contract_address=%s", chainID, url.QueryEscape(strings.ToLower(tokenAddress)))

	var response tokenSecurityResponse
	err := s.client.get(ctx, path, &response)
	metrics.UpstreamRequestDuration.WithLabelValues("security").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("security", "error").Inc()
		return nil, false, err
	}

	if response.Code != 1 {
		metrics.UpstreamRequests.WithLabelValues("security", "error").Inc()
		return nil, false, fmt.Errorf("security scanner returned code %d: %s", response.Code, response.Message)
	}

	info, ok := lookupToken(response.Result, tokenAddress)
	if !ok {
		metrics.UpstreamRequests.WithLabelValues("security", "no_data").Inc()
		s.logger.WithFields(logrus.Fields{
			"chain_id": chainID,
			"token":    tokenAddress,
		}).Debug("Security scanner has no data for token")
		return nil, false, nil
	}

	metrics.UpstreamRequests.WithLabelValues("security", "success").Inc()
	return &models.RiskFacts{
		Factors:  info.factors(),
		Honeypot: info.IsHoneypot == "1",
	}, true, nil
}

// lookupToken finds the result entry for an address regardless of the case
// the scanner used in its map keys.
func lookupToken(result map[string]tokenSecurityInfo, tokenAddress string) (tokenSecurityInfo, bool) {
	if info, ok := result[strings.ToLower(tokenAddress)]; ok {
		return info, true
	}
	for key, info := range result {
		if strings.EqualFold(key, tokenAddress) {
			return info, true
		}
	}
	return tokenSecurityInfo{}, false
}
