package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

// LiquidityFeed fetches pooled liquidity snapshots from the DEX index
// sidecar.
type LiquidityFeed struct {
	client *client
	logger *logrus.Logger
}

func NewLiquidityFeed(cfg config.UpstreamServiceConfig, logger *logrus.Logger) *LiquidityFeed {
	return &LiquidityFeed{
		client: newClient(cfg),
		logger: logger,
	}
}

type liquidityResponse struct {
	Pairs []liquidityPair `json:"pairs"`
}

type liquidityPair struct {
	PairAddress        string          `json:"pair_address"`
	LiquidityUSD       decimal.Decimal `json:"liquidity_usd"`
	LiquidityChangePct float64         `json:"liquidity_change_pct"`
	Volume24h          decimal.Decimal `json:"volume_24h"`
}

// GetLiquiditySnapshot returns the deepest pool's snapshot for a token. A
// token with no indexed pairs yields (nil, false, nil). The feed reports
// change as a signed percentage; only a decline counts as a drop.
func (f *LiquidityFeed) GetLiquiditySnapshot(ctx context.Context, chainID int, tokenAddress string) (*models.LiquidityFacts, bool, error) {
	start := time.Now()
	path := fmt.Sprintf("/api/v1/liquidity/%d/%s", chainID, strings.ToLower(tokenAddress))

	var response liquidityResponse
	err := f.client.get(ctx, path, &response)
	metrics.UpstreamRequestDuration.WithLabelValues("liquidity").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("liquidity", "error").Inc()
		return nil, false, err
	}

	if len(response.Pairs) == 0 {
		metrics.UpstreamRequests.WithLabelValues("liquidity", "no_data").Inc()
		f.logger.WithFields(logrus.Fields{
			"chain_id": chainID,
			"token":    tokenAddress,
		}).Debug("Liquidity feed has no pairs for token")
		return nil, false, nil
	}

	deepest := response.Pairs[0]
	for _, pair := range response.Pairs[1:] {
		if pair.LiquidityUSD.GreaterThan(deepest.LiquidityUSD) {
			deepest = pair
		}
	}

	dropPct := 0.0
	if deepest.LiquidityChangePct < 0 {
		dropPct = -deepest.LiquidityChangePct
	}

	metrics.UpstreamRequests.WithLabelValues("liquidity", "success").Inc()
	return &models.LiquidityFacts{
		LiquidityUSD: deepest.LiquidityUSD,
		DropPct:      dropPct,
		Volume24hUSD: deepest.Volume24h,
	}, true, nil
}
