package tools

import (
	"context"
	"encoding/json"

	"quantb/internal/analysis/indicators"
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

func (r *Registry) technicalAnalysis(ctx context.Context, args json.RawMessage) *models.ToolResult {
	var a symbolArgs
	if f := decodeArgs(args, &a); f != nil {
		return failed(f)
	}
	sym := normalizeSymbol(a.Symbol)
	if sym == "" {
		return failure("", errSymbolRequired)
	}
	days := a.Days
	if days < 30 || days > 365 {
		days = r.cfg.CandleDays
	}

	candles, err := r.market.Candles(ctx, sym, days)
	if err != nil {
		return failure(sym, err)
	}

	snap, err := r.engine.Analyze(ctx, sym, candles)
	if err != nil {
		if apperrors.Is(err, indicators.ErrInsufficientData) {
			return failure(sym, apperrors.Wrapf(err, "only %d daily bars", len(candles)))
		}
		return failure(sym, err)
	}
	return success(models.ComponentTechnicalAnalysis, snap)
}
