package cards

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateCard_AssignsSequentialIDs(t *testing.T) {
	b := NewBook()
	for i := 1; i <= 3; i++ {
		c, err := b.CreateCard(NewCard{Type: TypeMilitaryAlliance, Owner: "A", Target: "B"}, testNow)
		if err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
		if c.ID != int64(i) || c.Points != 5 || c.Status != StatusActive {
			t.Fatalf("card %d = %+v", i, c)
		}
	}
	if b.Version() != 3 {
		t.Fatalf("version=%d want 3", b.Version())
	}
}

func TestCreateCard_Rejects(t *testing.T) {
	b := NewBook()
	if _, err := b.CreateCard(NewCard{Type: "bribe", Owner: "A", Target: "B"}, testNow); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown type err=%v", err)
	}
	if _, err := b.CreateCard(NewCard{Type: TypeExport, Owner: "", Target: "B"}, testNow); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("empty owner err=%v", err)
	}
	trade := Details{Trade: &TradeTerms{Product: "wheat"}}
	if _, err := b.CreateCard(NewCard{Type: TypePoliticalPact, Owner: "A", Target: "B", Details: trade}, testNow); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("trade terms on pact err=%v", err)
	}
	if b.Len() != 0 || b.Version() != 0 {
		t.Fatalf("rejected cards mutated book: len=%d version=%d", b.Len(), b.Version())
	}
}

func TestTradeAgreement_MirrorsAndCancels(t *testing.T) {
	b := NewBook()
	if _, err := b.CreateBilateralCards(TypeStrategicCooperation, "A", "C", "", testNow); err != nil {
		t.Fatalf("CreateBilateralCards: %v", err)
	}
	beforeA, beforeB, beforeC := b.PlayerPoints("A"), b.PlayerPoints("B"), b.PlayerPoints("C")

	got, err := b.CreateTradeAgreementCards(TradeAgreement{
		Type:          TypeTradeExport,
		Product:       "steel",
		OriginCountry: "A",
		Country:       "B",
		Value:         10,
	}, testNow)
	if err != nil {
		t.Fatalf("CreateTradeAgreementCards: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("cards=%d want 2", len(got))
	}
	exp, imp := got[0], got[1]
	if exp.Type != TypeTradeExport || exp.Owner != "A" || exp.Target != "B" || exp.Points != 2 {
		t.Fatalf("export card=%+v", exp)
	}
	if imp.Type != TypeTradeImport || imp.Owner != "B" || imp.Target != "A" || imp.Points != 1 {
		t.Fatalf("import card=%+v", imp)
	}
	if exp.SourceAgreementID == "" || exp.SourceAgreementID != imp.SourceAgreementID {
		t.Fatalf("agreement ids %q %q", exp.SourceAgreementID, imp.SourceAgreementID)
	}
	if !strings.HasPrefix(exp.SourceAgreementID, "agr_") {
		t.Fatalf("agreement id=%q", exp.SourceAgreementID)
	}
	if exp.Details.Trade == nil || exp.Details.Trade.Product != "steel" || exp.Value != 10 {
		t.Fatalf("details=%+v value=%v", exp.Details, exp.Value)
	}

	cancelled, err := b.CancelCardsByAgreement(exp.SourceAgreementID)
	if err != nil {
		t.Fatalf("CancelCardsByAgreement: %v", err)
	}
	if len(cancelled) != 2 {
		t.Fatalf("cancelled=%d want 2", len(cancelled))
	}
	for _, id := range []int64{exp.ID, imp.ID} {
		c, ok := b.Card(id)
		if !ok || c.Status != StatusCancelled {
			t.Fatalf("card %d = %+v", id, c)
		}
	}
	if b.PlayerPoints("A") != beforeA || b.PlayerPoints("B") != beforeB || b.PlayerPoints("C") != beforeC {
		t.Fatalf("points A=%d B=%d C=%d want %d %d %d",
			b.PlayerPoints("A"), b.PlayerPoints("B"), b.PlayerPoints("C"), beforeA, beforeB, beforeC)
	}
	if _, err := b.CancelCardsByAgreement(exp.SourceAgreementID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second cancel err=%v", err)
	}
}

func TestTradeAgreement_PointsBeforeCancel(t *testing.T) {
	b := NewBook()
	if _, err := b.CreateTradeAgreementCards(TradeAgreement{Type: TypeTradeExport, OriginCountry: "A", Country: "B", Value: 10}, testNow); err != nil {
		t.Fatalf("CreateTradeAgreementCards: %v", err)
	}
	if b.PlayerPoints("A") != 2 || b.PlayerPoints("B") != 1 {
		t.Fatalf("points A=%d B=%d", b.PlayerPoints("A"), b.PlayerPoints("B"))
	}
}

func TestTradeAgreement_Rejects(t *testing.T) {
	b := NewBook()
	cases := []TradeAgreement{
		{Type: "smuggling", OriginCountry: "A", Country: "B"},
		{Type: TypeMilitaryAlliance, OriginCountry: "A", Country: "B"},
		{Type: TypeExport, OriginCountry: "A", Country: "A"},
		{Type: TypeExport, OriginCountry: "", Country: "B"},
	}
	for i, tc := range cases {
		if _, err := b.CreateTradeAgreementCards(tc, testNow); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
	if b.Len() != 0 {
		t.Fatalf("book has %d cards", b.Len())
	}
}

func TestRemoveAgreementCards_SoftCancelsBothDirections(t *testing.T) {
	b := NewBook()
	if _, err := b.CreateBilateralCards(TypeMilitaryAlliance, "A", "B", "", testNow); err != nil {
		t.Fatalf("CreateBilateralCards: %v", err)
	}
	if _, err := b.CreateBilateralCards(TypePoliticalPact, "A", "B", "", testNow); err != nil {
		t.Fatalf("CreateBilateralCards: %v", err)
	}
	if b.PlayerPoints("A") != 8 || b.PlayerPoints("B") != 8 {
		t.Fatalf("points A=%d B=%d", b.PlayerPoints("A"), b.PlayerPoints("B"))
	}

	removed, err := b.RemoveAgreementCards(TypeMilitaryAlliance, "B", "A")
	if err != nil {
		t.Fatalf("RemoveAgreementCards: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed=%d want 2", len(removed))
	}
	if b.Len() != 4 {
		t.Fatalf("cards were deleted: len=%d", b.Len())
	}
	if b.PlayerPoints("A") != 3 || b.PlayerPoints("B") != 3 {
		t.Fatalf("points after dissolve A=%d B=%d", b.PlayerPoints("A"), b.PlayerPoints("B"))
	}
	if _, err := b.RemoveAgreementCards(TypeMilitaryAlliance, "A", "B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second dissolve err=%v", err)
	}
}

func TestTransferCard(t *testing.T) {
	b := NewBook()
	c, _ := b.CreateCard(NewCard{Type: TypeMediaControl, Owner: "A", Target: "B"}, testNow)

	got, err := b.TransferCard(c.ID, "C")
	if err != nil {
		t.Fatalf("TransferCard: %v", err)
	}
	if got.Owner != "C" || got.PreviousOwner != "A" || got.Status != StatusTransferred {
		t.Fatalf("transferred=%+v", got)
	}
	if b.PlayerPoints("C") != 3 || b.PlayerPoints("A") != 0 {
		t.Fatalf("points A=%d C=%d", b.PlayerPoints("A"), b.PlayerPoints("C"))
	}

	if _, err := b.TransferCard(c.ID, "D"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("transfer of transferred card err=%v", err)
	}
	if _, err := b.CancelCard(c.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("cancel of transferred card err=%v", err)
	}
	if _, err := b.TransferCard(99, "D"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown card err=%v", err)
	}
}

func TestCancelCard_IsTerminal(t *testing.T) {
	b := NewBook()
	c, _ := b.CreateCard(NewCard{Type: TypeExport, Owner: "A", Target: "B"}, testNow)
	if _, err := b.CancelCard(c.ID); err != nil {
		t.Fatalf("CancelCard: %v", err)
	}
	v := b.Version()
	if _, err := b.CancelCard(c.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second cancel err=%v", err)
	}
	if _, err := b.TransferCard(c.ID, "C"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("transfer after cancel err=%v", err)
	}
	if b.Version() != v {
		t.Fatalf("failed ops bumped version")
	}
	if b.PlayerPoints("A") != 0 {
		t.Fatalf("cancelled card still scores")
	}
}

func TestRanking_SortedWithInsertionTieBreak(t *testing.T) {
	b := NewBook()
	mk := func(typ Type, owner string) {
		t.Helper()
		if _, err := b.CreateCard(NewCard{Type: typ, Owner: owner, Target: "X"}, testNow); err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
	}
	mk(TypeImport, "low")
	mk(TypePoliticalPact, "b")
	mk(TypeMilitaryAlliance, "top")
	mk(TypeMediaControl, "a")
	mk(TypeImport, "low")

	r := b.Ranking()
	want := []struct {
		owner  string
		points int
	}{{"top", 5}, {"b", 3}, {"a", 3}, {"low", 2}}
	if len(r) != len(want) {
		t.Fatalf("ranking=%+v", r)
	}
	for i, w := range want {
		if r[i].Owner != w.owner || r[i].TotalPoints != w.points {
			t.Fatalf("rank %d = %+v want %s/%d", i, r[i], w.owner, w.points)
		}
	}
	if r[3].CardsByType[TypeImport] != 2 {
		t.Fatalf("cards by type=%v", r[3].CardsByType)
	}
}

func TestState_RoundTripKeepsCounter(t *testing.T) {
	b := NewBook()
	b.CreateTradeAgreementCards(TradeAgreement{Type: TypeExport, OriginCountry: "A", Country: "B", Product: "oil"}, testNow)
	b.CreateBilateralCards(TypeMilitaryAlliance, "A", "C", "", testNow)
	b.CancelCard(1)

	raw, err := json.Marshal(b.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	nb := FromState(st)
	if nb.Len() != 4 || nb.PlayerPoints("A") != b.PlayerPoints("A") {
		t.Fatalf("restored len=%d pointsA=%d", nb.Len(), nb.PlayerPoints("A"))
	}
	c, err := nb.CreateCard(NewCard{Type: TypeImport, Owner: "B", Target: "A"}, testNow)
	if err != nil || c.ID != 5 {
		t.Fatalf("next card id=%d err=%v", c.ID, err)
	}
	got, _ := nb.Card(2)
	if got.Details.Trade == nil || got.Details.Trade.Product != "oil" {
		t.Fatalf("details lost: %+v", got.Details)
	}
}

func TestCards_ReturnsCopies(t *testing.T) {
	b := NewBook()
	b.CreateTradeAgreementCards(TradeAgreement{Type: TypeExport, OriginCountry: "A", Country: "B", Product: "oil"}, testNow)
	list := b.Cards()
	list[0].Owner = "Z"
	list[0].Details.Trade.Product = "gold"
	c, _ := b.Card(1)
	if c.Owner != "A" || c.Details.Trade.Product != "oil" {
		t.Fatalf("book mutated through copy: %+v", c)
	}
}
