package api

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
)

type tierRequirement struct {
	Requirement string `json:"requirement"`
	Percentage  string `json:"percentage"`
	RateLimit   int    `json:"rateLimit"`
}

func (s *Server) percent(amount decimal.Decimal) string {
	supply := s.Tiers.Config().TotalSupply
	if !supply.IsPositive() {
		return "0.0000%"
	}
	return amount.Div(supply).Mul(decimal.NewFromInt(100)).StringFixed(4) + "%"
}

func rateLimitText(limit int) string {
	if limit == types.Unlimited {
		return "Unlimited"
	}
	return fmt.Sprintf("%d requests/hour", limit)
}

func (s *Server) tokenTier(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		middleware.WriteError(w, http.StatusBadRequest, types.CodeBadRequest, "Wallet address is required", "")
		return
	}
	cfg := s.Tiers.Config()
	if err := utils.ValidateAddressForChain(wallet, cfg.Chain); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, types.CodeBadRequest, err.Error(), "")
		return
	}

	check := s.Tiers.CheckWalletTier(r.Context(), wallet)

	var next any
	if check.NextTier != nil {
		next = map[string]any{
			"tier":         check.NextTier.Tier,
			"tokensNeeded": check.NextTier.TokensNeeded,
			"formatted":    utils.FormatTokens(check.NextTier.TokensNeeded),
		}
	}

	all := make(map[types.Tier]tierRequirement)
	for _, l := range s.Tiers.Levels() {
		if l.Tier == types.TierNone {
			continue
		}
		all[l.Tier] = tierRequirement{
			Requirement: utils.FormatTokens(l.Threshold),
			Percentage:  s.percent(l.Threshold),
			RateLimit:   l.RateLimit,
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"wallet":  check.Wallet,
		"token":   map[string]any{"symbol": cfg.Symbol, "mint": cfg.Mint, "chain": cfg.Chain},
		"balance": map[string]any{
			"tokens":     check.Balance,
			"formatted":  utils.FormatTokens(check.Balance),
			"percentage": check.Percentage.StringFixed(4) + "%",
		},
		"tier": check.Tier,
		"rateLimit": map[string]any{
			"limit": rateLimitText(check.RateLimit),
			"value": check.RateLimit,
		},
		"benefits": check.Benefits,
		"nextTier": next,
		"allTiers": all,
	})
}
