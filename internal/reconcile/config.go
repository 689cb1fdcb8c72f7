package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/alias"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/currency"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/money"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// NewConverter builds the currency converter described by cfg.
func NewConverter(cfg *config.MainConfig) (*currency.Converter, error) {
	return currency.NewConverter(currency.Options{
		RateTable:    cfg.Currency.RateTable,
		FallbackRate: cfg.Currency.FallbackRate,
		USDTokens:    cfg.Currency.USDTokens,
		Policy:       currency.Policy(cfg.Currency.Policy),
	})
}

// FromConfig builds a Reconciler for the named profile.
func FromConfig(cfg *config.MainConfig, profileName string, logger *slog.Logger) (*Reconciler, error) {
	profile, err := cfg.ProfileByName(profileName)
	if err != nil {
		return nil, err
	}

	conv, err := NewConverter(cfg)
	if err != nil {
		return nil, fmt.Errorf("currency: %w", err)
	}

	text, err := NewTransformer(cfg.TextRules)
	if err != nil {
		return nil, err
	}

	aliases := alias.NewTable(cfg.Aliases)
	if len(profile.AmountAliases) > 0 {
		aliases = aliases.With(types.FieldAmount, profile.AmountAliases)
	}

	required := make([]types.Field, 0, len(profile.Required))
	for _, f := range profile.Required {
		required = append(required, types.Field(f))
	}

	return New(Options{
		Aliases:                      aliases,
		LocalAmountAliases:           cfg.LocalAmountAliases,
		AllowMissingDate:             profile.AllowMissingDate,
		Required:                     required,
		ConvertWithoutCurrencyColumn: cfg.Currency.ConvertWithoutCurrencyColumn,
		LocalCurrency:                cfg.Currency.LocalCurrency,
		Cleaner:                      money.NewCleaner(cfg.NullSentinels),
		Converter:                    conv,
		Dates:                        NewDateParser(cfg.Input.DateLayouts),
		Text:                         text,
	}, logger)
}
