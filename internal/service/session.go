package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

func (s *Service) OpenSession(ctx context.Context, terminalID string, req domain.SessionOpenRequest) (domain.CashierSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashierSession{}, err
	}
	if terminalID == "" {
		return domain.CashierSession{}, invalidf("terminal id is required")
	}
	if err := validateStruct(req); err != nil {
		return domain.CashierSession{}, err
	}
	if err := checkMoneyScale("initial_balance", req.InitialBalance); err != nil {
		return domain.CashierSession{}, err
	}

	var session domain.CashierSession
	err = s.guard.Run(ctx, "open session", func(tx store.Tx) error {
		_, err := tx.FindOpenSessionForUpdate(ctx, terminalID)
		if err == nil {
			return fmt.Errorf("terminal %s: %w", terminalID, store.ErrSessionAlreadyOpen)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		session = domain.CashierSession{
			ID:             xid.New("ses"),
			TerminalID:     terminalID,
			OpenedBy:       actor.ID,
			StartTime:      s.now(),
			InitialBalance: req.InitialBalance,
			Status:         domain.SessionOpen,
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			if errors.Is(err, store.ErrSessionAlreadyOpen) {
				return fmt.Errorf("terminal %s: %w", terminalID, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.CashierSession{}, err
	}

	s.invalidateStatus(ctx, terminalID)
	s.audit(ctx, "session_open", "cashier_session", session.ID).
		Str("terminal_id", terminalID).
		Str("initial_balance", session.InitialBalance.String()).
		Msg("cashier session opened")
	return session, nil
}

// SessionStatus reports whether the terminal has an open shift and, if so,
// how much it has sold and how much cash the drawer should hold.
func (s *Service) SessionStatus(ctx context.Context, terminalID string) (domain.SessionStatusView, error) {
	if terminalID == "" {
		return domain.SessionStatusView{}, invalidf("terminal id is required")
	}

	if cached, ok, err := s.statusCache.Get(ctx, terminalID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.log.Warn().Err(err).Str("terminal_id", terminalID).Msg("status cache read failed")
	}

	view := domain.SessionStatusView{Status: domain.SessionClosed, TerminalID: terminalID}
	session, err := s.repo.GetOpenSession(ctx, terminalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.SessionStatusView{}, err
	default:
		totalSold, err := s.repo.SumCompletedSales(ctx, session.ID)
		if err != nil {
			return domain.SessionStatusView{}, err
		}
		expected := session.InitialBalance.Add(totalSold)
		startTime := session.StartTime
		initial := session.InitialBalance
		view = domain.SessionStatusView{
			Status:          domain.SessionOpen,
			TerminalID:      terminalID,
			SessionID:       session.ID,
			OpenedBy:        session.OpenedBy,
			StartTime:       &startTime,
			InitialBalance:  &initial,
			TotalSold:       &totalSold,
			ExpectedBalance: &expected,
		}
	}

	if err := s.statusCache.Set(ctx, terminalID, &view, s.statusTTL); err != nil {
		s.log.Warn().Err(err).Str("terminal_id", terminalID).Msg("status cache write failed")
	}
	return view, nil
}

func (s *Service) CloseSession(ctx context.Context, terminalID string, req domain.SessionCloseRequest) (domain.CashierSession, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.CashierSession{}, err
	}
	if terminalID == "" {
		return domain.CashierSession{}, invalidf("terminal id is required")
	}
	if err := validateStruct(req); err != nil {
		return domain.CashierSession{}, err
	}
	if err := checkMoneyScale("final_balance", req.FinalBalance); err != nil {
		return domain.CashierSession{}, err
	}

	var closed *domain.CashierSession
	err := s.guard.Run(ctx, "close session", func(tx store.Tx) error {
		open, err := tx.FindOpenSessionForUpdate(ctx, terminalID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("terminal %s: %w", terminalID, store.ErrNoOpenSession)
		}
		if err != nil {
			return err
		}
		closed, err = tx.CloseSession(ctx, open.ID, req.FinalBalance, s.now())
		return err
	})
	if err != nil {
		return domain.CashierSession{}, err
	}

	s.invalidateStatus(ctx, terminalID)
	s.audit(ctx, "session_close", "cashier_session", closed.ID).
		Str("terminal_id", terminalID).
		Str("final_balance", req.FinalBalance.String()).
		Msg("cashier session closed")
	return *closed, nil
}

// SessionHistory lists the sessions that started on the given calendar day,
// most recent first.
func (s *Service) SessionHistory(ctx context.Context, day time.Time) ([]domain.CashierSession, error) {
	from, to := s.dayBounds(day)
	return s.repo.ListSessionsStartedBetween(ctx, from, to)
}
