package protocol

import (
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	// Room to follow; ROOM_STATE pushes start right after WELCOME.
	Room    string `json:"room,omitempty"`
	Country string `json:"country,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	Room            string    `json:"room,omitempty"`
	Country         string    `json:"country,omitempty"`
	Params          SimParams `json:"params"`
	Catalog         []string  `json:"catalog,omitempty"`
}

type SimParams struct {
	TickPeriodMs  int     `json:"tick_period_ms"`
	TicksPerMonth int     `json:"ticks_per_month"`
	MaxBondAmount float64 `json:"max_bond_amount"`
}

// Command ops.
const (
	OpCreateRoom                 = "CREATE_ROOM"
	OpTeardownRoom               = "TEARDOWN_ROOM"
	OpSeedEconomy                = "SEED_ECONOMY"
	OpUpdateParameter            = "UPDATE_PARAMETER"
	OpIssueBond                  = "ISSUE_BOND"
	OpFormTradeAgreement         = "FORM_TRADE_AGREEMENT"
	OpCancelAgreement            = "CANCEL_AGREEMENT"
	OpFormBilateralAgreement     = "FORM_BILATERAL_AGREEMENT"
	OpDissolveBilateralAgreement = "DISSOLVE_BILATERAL_AGREEMENT"
	OpTransferCard               = "TRANSFER_CARD"
	OpCancelCard                 = "CANCEL_CARD"
	OpQuery                      = "QUERY"
	// SUBSCRIBE switches the session's ROOM_STATE feed to Room.
	OpSubscribe = "SUBSCRIBE"
)

// Query targets for OpQuery.
const (
	QueryCountry = "country"
	QueryRoom    = "room"
	QueryCards   = "cards"
	QueryRanking = "ranking"
	QueryPoints  = "points"
	QueryDebt    = "debt"
)

// CMD (client -> server). Only the fields relevant to Op are read.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	Op              string `json:"op"`
	Room            string `json:"room,omitempty"`
	Country         string `json:"country,omitempty"`

	// SEED_ECONOMY: an explicit seed, or the name of a catalog entry.
	Seed        *economy.Seed `json:"seed,omitempty"`
	CatalogName string        `json:"catalog_name,omitempty"`

	Parameter string  `json:"parameter,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Amount    float64 `json:"amount,omitempty"`

	Trade *TradeArgs `json:"trade,omitempty"`

	AgreementID string     `json:"agreement_id,omitempty"`
	CardType    cards.Type `json:"card_type,omitempty"`
	CountryA    string     `json:"country_a,omitempty"`
	CountryB    string     `json:"country_b,omitempty"`
	CardID      int64      `json:"card_id,omitempty"`
	NewOwner    string     `json:"new_owner,omitempty"`

	Query string `json:"query,omitempty"`
}

type TradeArgs struct {
	Type          cards.Type `json:"type"`
	Product       string     `json:"product"`
	Country       string     `json:"country"`
	OriginCountry string     `json:"origin_country"`
	Value         float64    `json:"value"`
	AgreementID   string     `json:"agreement_id,omitempty"`
}

// RESULT (server -> client), one per CMD.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Data            any    `json:"data,omitempty"`
}

// ROOM_STATE (server -> client), pushed after every room tick.
type RoomStateMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Room            string             `json:"room"`
	Tick            uint64             `json:"tick"`
	Countries       []*economy.Country `json:"countries"`
	Ranking         []cards.RankEntry  `json:"ranking"`
}
