package scraper

import (
	"context"
	"log/slog"
	"math"

	"github.com/reikki7/tokopedia-products-scraper/internal/models"
	"github.com/reikki7/tokopedia-products-scraper/internal/parser"
)

// VariantResolver enumerates the selectable variant combinations of the
// product currently loaded in the session and records the price and stock
// observed for each.
type VariantResolver struct {
	session Session
	parser  parser.Parser
	logger  *slog.Logger

	maxCombinations int
}

func NewVariantResolver(session Session, p parser.Parser, maxCombinations int) *VariantResolver {
	return &VariantResolver{
		session:         session,
		parser:          p,
		logger:          slog.Default().With("component", "variants"),
		maxCombinations: maxCombinations,
	}
}

// Resolve discovers dimensions and walks the combination space. Products
// without variants resolve to a single implicit combination read from the
// page as loaded. Combinations that are disabled, out of stock or still show
// a price range are skipped, never recorded.
//
// All dimensions but the last are driven exhaustively; the last dimension is
// probed after each base selection, because only then does the page reveal
// which of its options remain selectable.
func (r *VariantResolver) Resolve(ctx context.Context) (map[string][]string, []models.VariantCombination, error) {
	html, err := r.session.Snapshot()
	if err != nil {
		return nil, nil, err
	}

	dims := r.parser.ParseVariantDimensions(html)

	variants := make(map[string][]string, len(dims))
	for _, d := range dims {
		variants[d.Name] = d.Options
	}

	if len(dims) == 0 {
		combo, ok := r.readCombination(html, map[string]string{})
		if !ok {
			return variants, []models.VariantCombination{}, nil
		}
		return variants, []models.VariantCombination{combo}, nil
	}

	baseDims := dims[:len(dims)-1]
	probeDim := dims[len(dims)-1]

	combos := make([]models.VariantCombination, 0)

	for _, selection := range cartesian(baseDims) {
		if err := ctx.Err(); err != nil {
			return variants, combos, err
		}
		if len(combos) >= r.maxCombinations {
			break
		}

		if !r.applySelection(selection, baseDims) {
			continue
		}

		html, err := r.session.Snapshot()
		if err != nil {
			r.logger.Error("snapshot failed after base selection", "error", err)
			continue
		}

		available := r.parser.AvailableOptions(html, probeDim.Name)
		if len(available) == 0 {
			r.logger.Debug("no selectable options left", "dimension", probeDim.Name,
				"selection", selection)
			continue
		}

		for _, option := range available {
			if len(combos) >= r.maxCombinations {
				r.logger.Info("combination cap reached", "cap", r.maxCombinations)
				break
			}

			if err := r.session.SelectVariant(probeDim.Name, option); err != nil {
				r.logger.Debug("option could not be selected",
					"dimension", probeDim.Name, "option", option, "error", err)
				continue
			}

			html, err := r.session.Snapshot()
			if err != nil {
				continue
			}

			full := make(map[string]string, len(selection)+1)
			for k, v := range selection {
				full[k] = v
			}
			full[probeDim.Name] = option

			if combo, ok := r.readCombination(html, full); ok {
				combos = append(combos, combo)
			}
		}
	}

	return variants, combos, nil
}

// applySelection clicks one option per base dimension in display order.
func (r *VariantResolver) applySelection(selection map[string]string, baseDims []models.VariantDimension) bool {
	for _, dim := range baseDims {
		option := selection[dim.Name]
		if err := r.session.SelectVariant(dim.Name, option); err != nil {
			r.logger.Debug("base option could not be selected",
				"dimension", dim.Name, "option", option, "error", err)
			return false
		}
	}
	return true
}

// readCombination turns the current page state into a recorded combination.
// Returns false when the state does not describe one concrete purchasable
// selection.
func (r *VariantResolver) readCombination(html string, options map[string]string) (models.VariantCombination, bool) {
	state, err := r.parser.ParseVariantState(html)
	if err != nil {
		r.logger.Debug("variant state unreadable", "error", err)
		return models.VariantCombination{}, false
	}
	if state.PriceIsRange {
		return models.VariantCombination{}, false
	}
	if state.OutOfStock {
		r.logger.Debug("combination out of stock", "options", options)
		return models.VariantCombination{}, false
	}
	if state.FinalPrice <= 0 {
		return models.VariantCombination{}, false
	}

	// Prefer computing the discount from the price pair; the page badge is
	// the fallback when no struck-through original price is shown.
	discount := discountPercent(state.OriginalPrice, state.FinalPrice)
	if discount == 0 {
		discount = state.PageDiscount
	}

	return models.VariantCombination{
		VariantOptions:  options,
		FinalPrice:      state.FinalPrice,
		OriginalPrice:   state.OriginalPrice,
		Stock:           state.Stock,
		DiscountPercent: discount,
	}, true
}

// discountPercent computes the percentage off the original price, rounded to
// one decimal.
func discountPercent(original, final int) float64 {
	if original <= final || original == 0 {
		return 0
	}
	pct := (float64(original-final) / float64(original)) * 100
	return math.Round(pct*10) / 10
}

// cartesian enumerates every assignment over dims in dimension-major order.
// Zero dimensions yield one empty assignment, which drives the single-pass
// probe for one-dimensional products.
func cartesian(dims []models.VariantDimension) []map[string]string {
	selections := []map[string]string{{}}

	for _, dim := range dims {
		next := make([]map[string]string, 0, len(selections)*len(dim.Options))
		for _, base := range selections {
			for _, option := range dim.Options {
				selection := make(map[string]string, len(base)+1)
				for k, v := range base {
					selection[k] = v
				}
				selection[dim.Name] = option
				next = append(next, selection)
			}
		}
		selections = next
	}

	return selections
}
