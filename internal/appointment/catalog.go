package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/hackgods/clinic-booking/internal/identity"
)

// AddTemplate adds a weekly availability window for a doctor. Windows may
// overlap; the resolver unions them.
func (s *Service) AddTemplate(ctx context.Context, actor identity.Actor, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	if err := authorizeDoctorScope(actor, t.DoctorID); err != nil {
		return nil, err
	}
	if !t.Day.Valid() {
		return nil, invalid("day must be Mon..Sun")
	}
	if err := t.Window().Validate(); err != nil {
		return nil, invalid("%v", err)
	}

	var created *AvailabilityTemplate
	err := s.store.WithTx(ctx, func(tx Repository) error {
		if _, err := tx.GetDoctor(ctx, t.DoctorID); err != nil {
			return err
		}
		var err error
		if created, err = tx.InsertTemplate(ctx, t); err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		return writeEvent(ctx, tx, EventTemplateAdded, aggregateDoctor, t.DoctorID, map[string]any{
			"template_id": created.ID,
			"day":         created.Day.String(),
			"start":       created.Start.String(),
			"end":         created.End.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID int64) ([]AvailabilityTemplate, error) {
	if _, err := s.store.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	templates, err := s.store.ListTemplates(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate removes a window. Existing bookings in it stay valid.
func (s *Service) DeleteTemplate(ctx context.Context, actor identity.Actor, doctorID, templateID int64) error {
	if err := authorizeDoctorScope(actor, doctorID); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx Repository) error {
		if err := tx.DeleteTemplate(ctx, doctorID, templateID); err != nil {
			return err
		}
		return writeEvent(ctx, tx, EventTemplateDeleted, aggregateDoctor, doctorID, map[string]any{
			"template_id": templateID,
		})
	})
}

func (s *Service) AddMedicine(ctx context.Context, actor identity.Actor, m Medicine) (*Medicine, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return nil, invalid("name is required")
	}
	if m.Quantity < 0 || m.Quantity > maxLineQuantity {
		return nil, invalid("quantity must be between 0 and %d", maxLineQuantity)
	}

	var created *Medicine
	err := s.store.WithTx(ctx, func(tx Repository) error {
		var err error
		if created, err = tx.InsertMedicine(ctx, m); err != nil {
			return err
		}
		return writeEvent(ctx, tx, EventMedicineAdded, aggregateMedicine, created.ID, map[string]any{
			"name":     created.Name,
			"quantity": created.Quantity,
			"unit":     created.Unit,
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RestockMedicine adds quantity units to a medicine's stock.
func (s *Service) RestockMedicine(ctx context.Context, actor identity.Actor, id int64, quantity int) (*Medicine, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if quantity <= 0 || quantity > maxLineQuantity {
		return nil, invalid("quantity must be between 1 and %d", maxLineQuantity)
	}

	var updated *Medicine
	err := s.store.WithTx(ctx, func(tx Repository) error {
		var err error
		if updated, err = tx.AdjustMedicine(ctx, id, quantity); err != nil {
			return err
		}
		return writeEvent(ctx, tx, EventMedicineRestocked, aggregateMedicine, id, map[string]any{
			"added":    quantity,
			"quantity": updated.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) ListMedicines(ctx context.Context, actor identity.Actor) ([]Medicine, error) {
	switch actor.(type) {
	case identity.Admin, identity.Doctor:
	default:
		return nil, forbidden("doctor or admin only")
	}
	meds, err := s.store.ListMedicines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	return meds, nil
}
