package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/shared"
)

type openingLine struct {
	name     string
	unit     string
	category string
	date     time.Time
	qty      decimal.Decimal
	amount   decimal.Decimal
}

// ValidateOpeningRows checks every row and returns all failures at once.
func (s *Service) ValidateOpeningRows(rows []OpeningStockRow) []RowError {
	var rowErrs []RowError
	for i, row := range rows {
		if err := s.validate.Struct(row); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					rowErrs = append(rowErrs, RowError{Row: i, Field: fe.Field(), Message: "failed " + fe.Tag()})
				}
			} else {
				rowErrs = append(rowErrs, RowError{Row: i, Field: "row", Message: err.Error()})
			}
		}
		if shared.NormalizeName(row.Name) == "" && row.Name != "" {
			rowErrs = append(rowErrs, RowError{Row: i, Field: "Name", Message: "blank after trimming"})
		}
		if !row.Qty.IsPositive() {
			rowErrs = append(rowErrs, RowError{Row: i, Field: "Qty", Message: "must be positive"})
		}
		if row.UnitCost.IsNegative() {
			rowErrs = append(rowErrs, RowError{Row: i, Field: "UnitCost", Message: "must not be negative"})
		}
	}
	return rowErrs
}

// MergeOpeningRows folds rows naming the same material into one line with a
// quantity-weighted cost. The earliest date wins; first-seen order is kept.
func MergeOpeningRows(rows []OpeningStockRow) ([]openingLine, int) {
	var lines []*openingLine
	byName := map[string]*openingLine{}
	merged := 0
	for _, row := range rows {
		key := shared.NormalizeName(row.Name)
		date, _ := time.Parse("2006-01-02", row.Date)
		if l, ok := byName[key]; ok {
			l.qty = l.qty.Add(row.Qty)
			l.amount = l.amount.Add(row.Qty.Mul(row.UnitCost))
			if date.Before(l.date) {
				l.date = date
			}
			merged++
			continue
		}
		l := &openingLine{
			name:     shared.CollapseSpaces(row.Name),
			unit:     row.Unit,
			category: row.Category,
			date:     date,
			qty:      row.Qty,
			amount:   row.Qty.Mul(row.UnitCost),
		}
		byName[key] = l
		lines = append(lines, l)
	}
	out := make([]openingLine, len(lines))
	for i, l := range lines {
		out[i] = *l
	}
	return out, merged
}

// OpeningStockBulkUpsert validates the whole batch, merges duplicate
// materials, creates missing items and posts one opening IN per item. Any row
// error rejects the batch before anything is written. Resubmitting identical
// figures for a scope is a no-op; different figures fail with
// ErrOpeningConflict unless the input carries a new BatchID.
func (s *Service) OpeningStockBulkUpsert(ctx context.Context, input OpeningStockInput) (OpeningStockResult, error) {
	if input.CompanyID <= 0 {
		return OpeningStockResult{}, shared.ErrCompanyRequired
	}
	if len(input.Rows) == 0 {
		return OpeningStockResult{}, &BatchError{Rows: []RowError{{Row: -1, Field: "rows", Message: "batch is empty"}}}
	}
	if rowErrs := s.ValidateOpeningRows(input.Rows); len(rowErrs) > 0 {
		return OpeningStockResult{}, &BatchError{Rows: rowErrs}
	}
	lines, merged := MergeOpeningRows(input.Rows)
	result := OpeningStockResult{Merged: merged}
	var events []MovementEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = OpeningStockResult{Merged: merged}
		events = events[:0]
		for _, l := range lines {
			item, created, err := tx.UpsertItem(ctx, StockItem{
				CompanyID:      input.CompanyID,
				Name:           l.name,
				NormalizedName: shared.NormalizeName(l.name),
				Unit:           l.unit,
				Category:       l.category,
			})
			if err != nil {
				return fmt.Errorf("upsert item %q: %w", l.name, err)
			}
			if created {
				result.ItemsCreated++
			}
			cost := l.amount.DivRound(l.qty, avgCostPlaces)
			res, err := s.adjust(ctx, tx, AdjustInput{
				CompanyID:     input.CompanyID,
				StockItemID:   item.ID,
				Type:          MovementIn,
				Qty:           l.qty,
				UnitCost:      &cost,
				MovementDate:  l.date,
				ReferenceType: RefOpeningStock,
				ReferenceID:   input.Scope(),
				ProjectID:     input.ProjectID,
				Notes:         "Opening stock",
			}, false)
			if err != nil {
				return fmt.Errorf("opening stock %q: %w", l.name, err)
			}
			if res.Duplicate && !sameOpening(res.Movement, l.qty, cost) {
				return fmt.Errorf("%w: %q has %s posted under %s", ErrOpeningConflict, l.name, res.Movement.Qty.String(), input.Scope())
			}
			if res.Duplicate {
				result.Duplicates++
			} else {
				result.MovementsCreated++
			}
			events = append(events, eventFor(res))
		}
		return nil
	})
	if err != nil {
		return OpeningStockResult{}, err
	}
	s.Publish(events...)
	s.logger.Info("opening stock posted",
		slog.Int64("company_id", input.CompanyID),
		slog.String("scope", input.Scope()),
		slog.Int("movements", result.MovementsCreated),
		slog.Int("duplicates", result.Duplicates))
	return result, nil
}

func sameOpening(m Movement, qty, cost decimal.Decimal) bool {
	if !m.Qty.Equal(qty.Round(qtyPlaces)) {
		return false
	}
	return m.UnitCost != nil && m.UnitCost.Equal(cost)
}
