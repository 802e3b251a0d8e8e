package lifecycle

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/trading/coordination"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/pkg/models"
	"github.com/Aidin1998/pincex_spot/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type LifecycleSuite struct {
	suite.Suite
	db     *gorm.DB
	svc    *Service
	ctx    context.Context
	events []events.Event
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.ctx = context.Background()
	s.events = nil

	logger := zap.NewNop()
	bus := events.NewInMemoryEventBus(logger)
	bus.Subscribe(events.TopicAll, func(_ context.Context, e events.Event) { s.events = append(s.events, e) })

	s.svc = NewService(
		s.db,
		logger,
		bookkeeper.NewService(logger, s.db),
		repository.NewGormOrderRepository(s.db, logger),
		bus,
		coordination.NewSymbolLocks(),
		NewBasicOrderValidator(models.Symbols),
		PrecisionValidator{},
	)
}

func (s *LifecycleSuite) types() []string {
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func (s *LifecycleSuite) buy(userID uint64, price, amount string) (*models.Order, error) {
	return s.svc.CreateBuyOrder(s.ctx, CreateOrderParams{UserID: userID, Symbol: models.SymbolBTC, Price: dec(price), Amount: dec(amount)})
}

func (s *LifecycleSuite) sell(userID uint64, price, amount string) (*models.Order, error) {
	return s.svc.CreateSellOrder(s.ctx, CreateOrderParams{UserID: userID, Symbol: models.SymbolBTC, Price: dec(price), Amount: dec(amount)})
}

func (s *LifecycleSuite) TestCreateBuyOrderDebitsCost() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)

	order, err := s.buy(u.ID, "2", "2")
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, order.Status)
	s.Equal(models.SideBuy, order.Side)
	testutil.AssertDecimal(s.T(), "6", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)

	s.Equal([]string{events.TypeUserBalanceChanged, events.TypeOrderCreated}, s.types())
	bal := s.events[0].Payload.(events.BalanceEvent)
	testutil.AssertDecimal(s.T(), "6", bal.Balance)
}

func (s *LifecycleSuite) TestCreateBuyOrderInsufficientBalance() {
	u := testutil.SeedUser(s.T(), s.db, "3", nil)

	_, err := s.buy(u.ID, "2", "2")
	s.True(errors.Is(err, errors.ErrInsufficientBalance))
	testutil.AssertDecimal(s.T(), "3", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)

	var count int64
	s.Require().NoError(s.db.Model(&models.Order{}).Count(&count).Error)
	s.Zero(count)
	s.Empty(s.events)
}

func (s *LifecycleSuite) TestCreateSellOrderLocksAsset() {
	u := testutil.SeedUser(s.T(), s.db, "0", map[models.Symbol]string{models.SymbolBTC: "10"})

	_, err := s.sell(u.ID, "1.5", "2")
	s.Require().NoError(err)
	a := testutil.ReloadAsset(s.T(), s.db, u.ID, models.SymbolBTC)
	testutil.AssertDecimal(s.T(), "8", a.Amount)
	testutil.AssertDecimal(s.T(), "2", a.LockedAmount)
	s.Equal([]string{events.TypeOrderCreated}, s.types())

	_, err = s.sell(u.ID, "1.5", "8.1")
	s.True(errors.Is(err, errors.ErrInsufficientAsset))
	testutil.AssertDecimal(s.T(), "8", testutil.ReloadAsset(s.T(), s.db, u.ID, models.SymbolBTC).Amount)
}

func (s *LifecycleSuite) TestSellFractionalHoldingInSteps() {
	u := testutil.SeedUser(s.T(), s.db, "0", map[models.Symbol]string{models.SymbolBTC: "0.3"})

	_, err := s.sell(u.ID, "1", "0.1")
	s.Require().NoError(err)
	s.Equal("0.2", testutil.ReloadAsset(s.T(), s.db, u.ID, models.SymbolBTC).Amount.String())

	_, err = s.sell(u.ID, "1", "0.2")
	s.Require().NoError(err)
	a := testutil.ReloadAsset(s.T(), s.db, u.ID, models.SymbolBTC)
	s.True(a.Amount.IsZero(), a.Amount.String())
	testutil.AssertDecimal(s.T(), "0.3", a.LockedAmount)
}

func (s *LifecycleSuite) TestCreateOrderUnknownUser() {
	_, err := s.buy(999, "1", "1")
	s.True(errors.Is(err, errors.ErrNotFound), "%v", err)

	_, err = s.sell(999, "1", "1")
	s.True(errors.Is(err, errors.ErrNotFound), "%v", err)
	s.Empty(s.events)
}

func (s *LifecycleSuite) TestSubCentCostConserved() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)

	order, err := s.buy(u.ID, "0.0001", "0.00005")
	s.Require().NoError(err)
	testutil.AssertDecimal(s.T(), "9.999999995", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)

	_, err = s.svc.Cancel(s.ctx, u.ID, order.ID)
	s.Require().NoError(err)
	testutil.AssertDecimal(s.T(), "10", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)

	for i := 0; i < 3; i++ {
		order, err = s.buy(u.ID, "0.0001", "0.00005")
		s.Require().NoError(err)
		_, err = s.svc.Cancel(s.ctx, u.ID, order.ID)
		s.Require().NoError(err)
	}
	testutil.AssertDecimal(s.T(), "10", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)
}

func (s *LifecycleSuite) TestValidation() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)
	cases := []CreateOrderParams{
		{UserID: u.ID, Symbol: "DOGE", Side: models.SideBuy, Price: dec("1"), Amount: dec("1")},
		{UserID: u.ID, Symbol: models.SymbolBTC, Side: models.SideBuy, Price: dec("0"), Amount: dec("1")},
		{UserID: u.ID, Symbol: models.SymbolBTC, Side: models.SideBuy, Price: dec("1"), Amount: dec("-1")},
		{UserID: u.ID, Symbol: models.SymbolBTC, Side: models.SideBuy, Price: dec("1.00001"), Amount: dec("1")},
		{UserID: u.ID, Symbol: models.SymbolBTC, Side: "HOLD", Price: dec("1"), Amount: dec("1")},
	}
	for _, p := range cases {
		_, err := s.svc.Create(s.ctx, p)
		s.True(errors.Is(err, errors.ErrInvalidOrder), "%+v", p)
	}
	testutil.AssertDecimal(s.T(), "10", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)
}

func (s *LifecycleSuite) TestCancelBuyOrderRefundsOnce() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)
	order, err := s.buy(u.ID, "2", "2")
	s.Require().NoError(err)
	s.events = nil

	cancelled, err := s.svc.Cancel(s.ctx, u.ID, order.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)
	testutil.AssertDecimal(s.T(), "10", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)
	s.Equal([]string{events.TypeOrderCancelled, events.TypeUserBalanceChanged}, s.types())

	_, err = s.svc.Cancel(s.ctx, u.ID, order.ID)
	s.True(errors.Is(err, errors.ErrOrderNotOpen))
	testutil.AssertDecimal(s.T(), "10", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)
}

func (s *LifecycleSuite) TestCancelSellOrderUnlocks() {
	u := testutil.SeedUser(s.T(), s.db, "0", map[models.Symbol]string{models.SymbolBTC: "10"})
	order, err := s.sell(u.ID, "1.5", "2")
	s.Require().NoError(err)

	_, err = s.svc.CancelSellOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	a := testutil.ReloadAsset(s.T(), s.db, u.ID, models.SymbolBTC)
	testutil.AssertDecimal(s.T(), "10", a.Amount)
	testutil.AssertDecimal(s.T(), "0", a.LockedAmount)
}

func (s *LifecycleSuite) TestCancelChecksOwnershipAndSide() {
	owner := testutil.SeedUser(s.T(), s.db, "10", nil)
	other := testutil.SeedUser(s.T(), s.db, "10", nil)
	order, err := s.buy(owner.ID, "1", "1")
	s.Require().NoError(err)

	_, err = s.svc.Cancel(s.ctx, other.ID, order.ID)
	s.True(errors.Is(err, errors.ErrForbidden))

	_, err = s.svc.CancelSellOrder(s.ctx, order.ID)
	s.True(errors.Is(err, errors.ErrInvalidOrder))

	_, err = s.svc.Cancel(s.ctx, owner.ID, 9999)
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *LifecycleSuite) TestCancelAfterPartialFillRefundsRemainder() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)
	order, err := s.buy(u.ID, "2", "5")
	s.Require().NoError(err)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.svc.FillBuyOrder(s.ctx, tx, order.ID, dec("3"))
		return err
	})
	s.Require().NoError(err)

	_, err = s.svc.CancelBuyOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	// 2 remaining at price 2
	testutil.AssertDecimal(s.T(), "4", testutil.ReloadUser(s.T(), s.db, u.ID).Balance)
}

func (s *LifecycleSuite) TestFillSplitsWhenCounterIsSmaller() {
	u := testutil.SeedUser(s.T(), s.db, "0", map[models.Symbol]string{models.SymbolBTC: "10"})
	order, err := s.sell(u.ID, "1", "5")
	s.Require().NoError(err)

	var res FillResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.svc.FillSellOrder(s.ctx, tx, order.ID, dec("3"))
		return err
	})
	s.Require().NoError(err)

	s.Require().NotNil(res.Remainder)
	s.NotEqual(order.ID, res.Filled.ID)
	s.Equal(order.ID, res.Remainder.ID)

	fragment := testutil.ReloadOrder(s.T(), s.db, res.Filled.ID)
	s.Equal(models.StatusFilled, fragment.Status)
	s.Equal(models.SideSell, fragment.Side)
	s.Equal(u.ID, fragment.UserID)
	testutil.AssertDecimal(s.T(), "3", fragment.Amount)
	testutil.AssertDecimal(s.T(), "1", fragment.Price)

	original := testutil.ReloadOrder(s.T(), s.db, order.ID)
	s.Equal(models.StatusOpen, original.Status)
	testutil.AssertDecimal(s.T(), "2", original.Amount)
	testutil.AssertDecimal(s.T(), "2", res.Remainder.Amount)
}

func (s *LifecycleSuite) TestFillInPlaceWhenCounterCoversOrder() {
	u := testutil.SeedUser(s.T(), s.db, "100", nil)
	for _, counter := range []string{"5", "7"} {
		order, err := s.buy(u.ID, "1", "5")
		s.Require().NoError(err)

		var res FillResult
		err = s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.svc.FillBuyOrder(s.ctx, tx, order.ID, dec(counter))
			return err
		})
		s.Require().NoError(err)
		s.Nil(res.Remainder)
		s.Equal(order.ID, res.Filled.ID)

		reloaded := testutil.ReloadOrder(s.T(), s.db, order.ID)
		s.Equal(models.StatusFilled, reloaded.Status)
		testutil.AssertDecimal(s.T(), "5", reloaded.Amount)
	}

	var count int64
	s.Require().NoError(s.db.Model(&models.Order{}).Count(&count).Error)
	s.Equal(int64(2), count, "no fragments created")
}

func (s *LifecycleSuite) TestFillRejectsWrongSideAndClosedOrders() {
	u := testutil.SeedUser(s.T(), s.db, "10", nil)
	order, err := s.buy(u.ID, "1", "1")
	s.Require().NoError(err)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.svc.FillSellOrder(s.ctx, tx, order.ID, dec("1"))
		return err
	})
	s.True(errors.Is(err, errors.ErrInvalidOrder))

	_, err = s.svc.CancelBuyOrder(s.ctx, order.ID)
	s.Require().NoError(err)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.svc.FillBuyOrder(s.ctx, tx, order.ID, dec("1"))
		return err
	})
	s.True(errors.Is(err, errors.ErrOrderNotOpen))
}

func TestBasicOrderValidatorRestrictsSymbols(t *testing.T) {
	v := NewBasicOrderValidator([]models.Symbol{models.SymbolETH})
	err := v.ValidateOrder(context.Background(), CreateOrderParams{
		UserID: 1, Symbol: models.SymbolBTC, Side: models.SideBuy, Price: dec("1"), Amount: dec("1"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))
}
