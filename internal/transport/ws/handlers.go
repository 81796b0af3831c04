package ws

import (
	"errors"
	"fmt"

	"nationsim.io/internal/protocol"
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
	"nationsim.io/internal/sim/registry"
)

// Handle executes one command against the registry. It never panics on bad
// input; every failure becomes a RESULT with a protocol error code.
func (s *Server) Handle(cmd protocol.CmdMsg) protocol.ResultMsg {
	data, err := s.dispatch(cmd)
	if err != nil {
		return errorResult(cmd.Ref, err)
	}
	return success(cmd.Ref, data)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func (s *Server) dispatch(cmd protocol.CmdMsg) (any, error) {
	switch cmd.Op {
	case protocol.OpCreateRoom:
		if cmd.Room == "" {
			return nil, badRequest("room required")
		}
		if err := s.reg.CreateRoom(cmd.Room); err != nil {
			return nil, err
		}
		return map[string]string{"room": cmd.Room}, nil

	case protocol.OpTeardownRoom:
		return nil, s.reg.TeardownRoom(cmd.Room)

	case protocol.OpSeedEconomy:
		if cmd.Country == "" {
			return nil, badRequest("country required")
		}
		var seed economy.Seed
		switch {
		case cmd.Seed != nil:
			seed = *cmd.Seed
		default:
			name := cmd.CatalogName
			if name == "" {
				name = cmd.Country
			}
			var ok bool
			seed, ok = s.catalog.Seed(name)
			if !ok {
				return nil, fmt.Errorf("%w: catalog country %q", registry.ErrCountryNotFound, name)
			}
		}
		return s.reg.SeedEconomy(cmd.Room, cmd.Country, seed)

	case protocol.OpUpdateParameter:
		if err := s.reg.UpdateParameter(cmd.Room, cmd.Country, economy.Parameter(cmd.Parameter), cmd.Value); err != nil {
			return nil, err
		}
		return s.reg.CountrySnapshot(cmd.Room, cmd.Country)

	case protocol.OpIssueBond:
		return s.reg.IssueBond(cmd.Room, cmd.Country, cmd.Amount)

	case protocol.OpFormTradeAgreement:
		if cmd.Trade == nil {
			return nil, badRequest("trade required")
		}
		return s.reg.FormTradeAgreement(cmd.Room, cards.TradeAgreement{
			Type:          cmd.Trade.Type,
			Product:       cmd.Trade.Product,
			Country:       cmd.Trade.Country,
			OriginCountry: cmd.Trade.OriginCountry,
			Value:         cmd.Trade.Value,
			AgreementID:   cmd.Trade.AgreementID,
		})

	case protocol.OpCancelAgreement:
		if cmd.AgreementID == "" {
			return nil, badRequest("agreement_id required")
		}
		return s.reg.CancelAgreement(cmd.Room, cmd.AgreementID)

	case protocol.OpFormBilateralAgreement:
		return s.reg.FormBilateralAgreement(cmd.Room, cmd.CardType, cmd.CountryA, cmd.CountryB)

	case protocol.OpDissolveBilateralAgreement:
		return s.reg.DissolveBilateralAgreement(cmd.Room, cmd.CardType, cmd.CountryA, cmd.CountryB)

	case protocol.OpTransferCard:
		return s.reg.TransferCard(cmd.Room, cmd.CardID, cmd.NewOwner)

	case protocol.OpCancelCard:
		return s.reg.CancelCard(cmd.Room, cmd.CardID)

	case protocol.OpQuery:
		return s.query(cmd)
	}
	return nil, badRequest("unknown op %q", cmd.Op)
}

func (s *Server) query(cmd protocol.CmdMsg) (any, error) {
	switch cmd.Query {
	case protocol.QueryCountry:
		return s.reg.CountrySnapshot(cmd.Room, cmd.Country)
	case protocol.QueryRoom:
		return s.reg.RoomSnapshot(cmd.Room)
	case protocol.QueryCards:
		return s.reg.Cards(cmd.Room)
	case protocol.QueryRanking:
		return s.reg.Ranking(cmd.Room)
	case protocol.QueryPoints:
		pts, err := s.reg.PlayerPoints(cmd.Room, cmd.Country)
		if err != nil {
			return nil, err
		}
		return map[string]int{"points": pts}, nil
	case protocol.QueryDebt:
		return s.reg.DebtSummary(cmd.Room, cmd.Country)
	}
	return nil, badRequest("unknown query %q", cmd.Query)
}

// codeFor maps domain errors onto protocol error codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		return protocol.ErrRoomNotFound
	case errors.Is(err, registry.ErrRoomExists):
		return protocol.ErrRoomExists
	case errors.Is(err, registry.ErrCountryNotFound),
		errors.Is(err, cards.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, registry.ErrCountryExists),
		errors.Is(err, cards.ErrNotActive):
		return protocol.ErrConflict
	case errors.Is(err, cards.ErrInvalidCard):
		return protocol.ErrInvalidTarget
	case errors.Is(err, errBadRequest),
		errors.Is(err, economy.ErrInvalidSeed),
		errors.Is(err, economy.ErrInvalidParameter),
		errors.Is(err, economy.ErrInvalidAmount),
		errors.Is(err, cards.ErrUnknownType):
		return protocol.ErrBadRequest
	}
	return protocol.ErrInternal
}

func errorResult(ref string, err error) protocol.ResultMsg {
	return failure(ref, codeFor(err), err.Error())
}

func failure(ref, code, msg string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              false,
		Code:            code,
		Message:         msg,
	}
}

func success(ref string, data any) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              true,
		Data:            data,
	}
}
