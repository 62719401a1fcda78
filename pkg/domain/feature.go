package domain

import (
	"fmt"
	"strings"
)

const (
	ActionRunAssessment   = "Run Assessment"
	ActionExecuteStrategy = "Execute Strategy"
)

// Feature is one card on a page: a titled risk type with its sample input.
type Feature struct {
	Title     string         `json:"title"`
	RiskType  RiskType       `json:"riskType"`
	Action    string         `json:"action"`
	InputData map[string]any `json:"inputData"`
}

func ParseRiskType(s string) (RiskType, error) {
	rt := RiskType(strings.ToLower(strings.TrimSpace(s)))
	switch rt {
	case RiskTrading, RiskLendingBorrowing, RiskProtocolSecurity, RiskLiquidityConcentration, RiskHedgeFund:
		return rt, nil
	}
	return "", fmt.Errorf("unknown risk type %q", s)
}

func AllRiskTypes() []RiskType {
	return []RiskType{RiskTrading, RiskLendingBorrowing, RiskProtocolSecurity, RiskLiquidityConcentration, RiskHedgeFund}
}

func DefaultCatalog() []Feature {
	return []Feature{
		{
			Title:    "Trading Risk Assessment",
			RiskType: RiskTrading,
			Action:   ActionRunAssessment,
			InputData: map[string]any{
				"token_symbol":    "ETH",
				"time_period":     "6 months",
				"more_parameters": "Analyze volatility during major network upgrades.",
			},
		},
		{
			Title:    "Lending and Borrowing Risk Assessment",
			RiskType: RiskLendingBorrowing,
			Action:   ActionRunAssessment,
			InputData: map[string]any{
				"borrowing_asset":          "ETH",
				"borrower_history_summary": "Excellent 5-year history, $500k in current loans, LTV ratio 60%.",
			},
		},
		{
			Title:    "Protocol Security Risk Assessment",
			RiskType: RiskProtocolSecurity,
			Action:   ActionRunAssessment,
			InputData: map[string]any{
				"protocol_name":             "DeFiSwap V3",
				"audit_summary":             "Needs re-audit. Last one was 1 year ago.",
				"on_chain_activity_summary": "Recent on-chain activity shows normal patterns. Code repository: https://github.com/defiswap/v3",
			},
		},
		{
			Title:    "Liquidity Concentration",
			RiskType: RiskLiquidityConcentration,
			Action:   ActionRunAssessment,
			InputData: map[string]any{
				"token_symbol":       "ABC",
				"number_of_wallets":  5,
				"large_trade_amount": "500000 USD",
			},
		},
		{
			Title:    "Hedge Fund Agent Execution",
			RiskType: RiskHedgeFund,
			Action:   ActionExecuteStrategy,
			InputData: map[string]any{
				"investment_thesis":          "The recent upgrade to the Layer 2 scaling solution will cause a massive liquidity migration to new DeFi primitives on that chain. We must capitalize on early yield opportunities.",
				"market_outlook":             "Highly bullish on ETH ecosystem, cautiously optimistic on Bitcoin. Bearish on old Layer 1 chains.",
				"initial_portfolio_holdings": "5 BTC, 20 ETH, 500 SOL, 100000 USDC",
			},
		},
	}
}

// FindFeature returns the catalogue card for rt.
func FindFeature(catalog []Feature, rt RiskType) (Feature, bool) {
	for _, f := range catalog {
		if f.RiskType == rt {
			return f, true
		}
	}
	return Feature{}, false
}

// ValidateInput checks that every value is a string or a number.
func ValidateInput(input map[string]any) error {
	if len(input) == 0 {
		return fmt.Errorf("input_data is empty")
	}
	for k, v := range input {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("input_data has an empty field name")
		}
		switch v.(type) {
		case string, float64, float32, int, int32, int64, uint, uint32, uint64:
		default:
			return fmt.Errorf("input_data field %q must be a string or number, got %T", k, v)
		}
	}
	return nil
}
