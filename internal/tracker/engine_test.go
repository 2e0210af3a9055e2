package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mantrip/internal/attendance/models"
	"mantrip/internal/tracker"
	"mantrip/internal/tracker/metrics"
	"mantrip/internal/tracker/mocks"
)

// =============================================================================
// Reconciliation Engine Test Suite
// =============================================================================
// The store is mocked so each test controls exactly what the remote side
// answers and when.

type EngineSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockRemoteStore
	feed    *tracker.Feed
	metrics *metrics.Metrics
	engine  *tracker.Engine
	ctx     context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockRemoteStore(s.ctrl)
	s.feed = tracker.NewFeed(0)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ctx = context.Background()

	var err error
	s.engine, err = tracker.NewEngine(s.store,
		tracker.WithNotifier(s.feed),
		tracker.WithMetrics(s.metrics),
		tracker.WithTempIDs(func() string { return "1" }),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

// seed loads records into the engine through a mocked List.
func (s *EngineSuite) seed(records ...*models.Record) {
	s.store.EXPECT().List(gomock.Any()).Return(records, nil)
	s.Require().NoError(s.engine.Load(s.ctx))
	s.feed.Clear()
}

func serverRecord(id, person string, year int, attended bool) *models.Record {
	return &models.Record{ID: id, PersonName: person, Year: year, Attended: attended}
}

func (s *EngineSuite) lastNotification() tracker.Notification {
	recent := s.feed.Recent(1)
	s.Require().Len(recent, 1)
	return recent[0]
}

func countKey(records []*models.Record, person string, year int) int {
	n := 0
	for _, r := range records {
		if r.PersonName == person && r.Year == year {
			n++
		}
	}
	return n
}

func (s *EngineSuite) TestNewEngine() {
	s.Run("nil store returns error", func() {
		_, err := tracker.NewEngine(nil)
		s.Error(err)
		s.Contains(err.Error(), "remote store is required")
	})
}

func (s *EngineSuite) TestToggle_CreateSucceeds() {
	// Empty state: toggling an unrecorded cell creates it.
	s.store.EXPECT().
		Create(gomock.Any(), models.CreateRequest{Year: 2020, PersonName: "Jon", Attended: true}).
		DoAndReturn(func(context.Context, models.CreateRequest) (*models.Record, error) {
			records := s.engine.Records()
			s.Require().Len(records, 1)
			s.True(records[0].IsTemporary(), "optimistic record applied before the remote call")
			s.True(records[0].Attended)
			s.Equal(tracker.PhasePending, s.engine.Phase("Jon", 2020))
			return serverRecord("srv-1", "Jon", 2020, true), nil
		})

	rec, err := s.engine.Toggle(s.ctx, "Jon", 2020, false)
	s.Require().NoError(err)
	s.Equal("srv-1", rec.ID)

	records := s.engine.Records()
	s.Require().Len(records, 1)
	s.Equal("srv-1", records[0].ID)
	s.Equal("Jon", records[0].PersonName)
	s.Equal(2020, records[0].Year)
	s.True(records[0].Attended)
	s.Equal(tracker.PhaseCommitted, s.engine.Phase("Jon", 2020))
	s.Equal(tracker.LevelSuccess, s.lastNotification().Level)
	s.Equal("Added Jon's attendance for 2020", s.lastNotification().Message)
}

func (s *EngineSuite) TestToggle_CreateSurvivesReloadDuringCall() {
	s.store.EXPECT().List(gomock.Any()).Return([]*models.Record{}, nil)
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.CreateRequest) (*models.Record, error) {
			// The server has not committed the row when the reload lists.
			s.Require().NoError(s.engine.Load(s.ctx))
			s.Empty(s.engine.Records())
			return serverRecord("r1", "Jon", 2020, true), nil
		})

	_, err := s.engine.Toggle(s.ctx, "Jon", 2020, false)
	s.Require().NoError(err)

	records := s.engine.Records()
	s.Require().Len(records, 1)
	s.Equal("r1", records[0].ID)
	s.True(s.engine.Status("Jon", 2020))
}

func (s *EngineSuite) TestToggle_CreateAfterReloadReturnedTheRow() {
	s.store.EXPECT().List(gomock.Any()).Return([]*models.Record{
		serverRecord("r1", "Jon", 2020, true),
	}, nil)
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.CreateRequest) (*models.Record, error) {
			s.Require().NoError(s.engine.Load(s.ctx))
			return serverRecord("r1", "Jon", 2020, true), nil
		})

	_, err := s.engine.Toggle(s.ctx, "Jon", 2020, false)
	s.Require().NoError(err)
	s.Equal(1, countKey(s.engine.Records(), "Jon", 2020))
}

func (s *EngineSuite) TestToggle_CreateFails() {
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("network down"))

	_, err := s.engine.Toggle(s.ctx, "Jon", 2020, false)
	s.Require().Error(err)
	s.True(tracker.IsKind(err, tracker.KindRemoteCall))

	s.Empty(s.engine.Records())
	s.False(s.engine.Status("Jon", 2020))
	s.Equal(tracker.PhaseRolledBack, s.engine.Phase("Jon", 2020))
	s.Equal(tracker.LevelError, s.lastNotification().Level)
	s.Equal("Failed to update attendance", s.lastNotification().Message)
}

func (s *EngineSuite) TestToggle_UpdateSucceeds() {
	// An existing record keeps its id and takes the server value.
	s.seed(serverRecord("r1", "Kevin", 2015, false))

	s.store.EXPECT().Update(gomock.Any(), "r1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req models.UpdateRequest) (*models.Record, error) {
			s.Require().NotNil(req.Attended)
			s.True(*req.Attended)
			s.True(s.engine.Status("Kevin", 2015), "optimistic value visible during the call")
			return serverRecord("r1", "Kevin", 2015, true), nil
		})

	_, err := s.engine.Toggle(s.ctx, "Kevin", 2015, false)
	s.Require().NoError(err)

	records := s.engine.Records()
	s.Require().Len(records, 1)
	s.Equal("r1", records[0].ID)
	s.True(records[0].Attended)
	s.Equal("Updated Kevin's attendance for 2015", s.lastNotification().Message)
}

func (s *EngineSuite) TestToggle_UpdateFailsReverts() {
	// A failed update leaves the set exactly as before.
	before := serverRecord("r1", "Kevin", 2015, false)
	before.UpdatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	other := serverRecord("r2", "Pat", 2016, true)
	s.seed(before, other)
	snapshot := s.engine.Records()

	s.store.EXPECT().Update(gomock.Any(), "r1", gomock.Any()).Return(nil, errors.New("500"))

	_, err := s.engine.Toggle(s.ctx, "Kevin", 2015, false)
	s.Require().Error(err)
	s.True(tracker.IsKind(err, tracker.KindRemoteCall))

	s.Equal(snapshot, s.engine.Records())
	s.False(s.engine.Status("Kevin", 2015))
	s.Equal(tracker.LevelError, s.lastNotification().Level)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Toggles.WithLabelValues("rolled_back")))
}

func (s *EngineSuite) TestToggle_UpdateWithoutRecordIsFailure() {
	s.seed(serverRecord("r1", "Kevin", 2015, false))
	s.store.EXPECT().Update(gomock.Any(), "r1", gomock.Any()).Return(nil, nil)

	_, err := s.engine.Toggle(s.ctx, "Kevin", 2015, false)
	s.True(tracker.IsKind(err, tracker.KindRemoteCall))
	s.False(s.engine.Status("Kevin", 2015))
}

func (s *EngineSuite) TestToggle_TwiceRestoresOriginal() {
	s.seed(serverRecord("r1", "Roger", 2011, false))

	s.store.EXPECT().Update(gomock.Any(), "r1", gomock.Any()).
		DoAndReturn(func(_ context.Context, id string, req models.UpdateRequest) (*models.Record, error) {
			return serverRecord(id, "Roger", 2011, *req.Attended), nil
		}).Times(2)

	_, err := s.engine.Toggle(s.ctx, "Roger", 2011, s.engine.Status("Roger", 2011))
	s.Require().NoError(err)
	s.True(s.engine.Status("Roger", 2011))

	_, err = s.engine.Toggle(s.ctx, "Roger", 2011, s.engine.Status("Roger", 2011))
	s.Require().NoError(err)
	s.False(s.engine.Status("Roger", 2011))
	s.Len(s.engine.Records(), 1)
}

func (s *EngineSuite) TestToggle_SecondToggleWhilePendingIsRefused() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.CreateRequest) (*models.Record, error) {
			close(entered)
			<-release
			return serverRecord("srv-1", "Smalls", 2019, true), nil
		})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.engine.Toggle(s.ctx, "Smalls", 2019, false)
	}()
	<-entered

	_, err := s.engine.Toggle(s.ctx, "Smalls", 2019, true)
	s.Require().Error(err)
	s.True(tracker.IsKind(err, tracker.KindInFlight))
	s.Equal(tracker.LevelError, s.lastNotification().Level)

	close(release)
	wg.Wait()
	s.Require().NoError(firstErr)

	records := s.engine.Records()
	s.Require().Len(records, 1)
	s.Equal("srv-1", records[0].ID)
	s.True(records[0].Attended)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Toggles.WithLabelValues("in_flight")))
}

func (s *EngineSuite) TestToggle_DifferentKeysRunConcurrently() {
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.CreateRequest) (*models.Record, error) {
			return serverRecord("srv-"+req.PersonName, req.PersonName, req.Year, req.Attended), nil
		}).Times(5)

	var wg sync.WaitGroup
	for _, name := range tracker.DefaultRoster {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.Toggle(s.ctx, name, 2020, false)
			s.NoError(err)
		}()
	}
	wg.Wait()

	records := s.engine.Records()
	s.Len(records, 5)
	for _, name := range tracker.DefaultRoster {
		s.Equal(1, countKey(records, name, 2020), name)
		s.True(s.engine.Status(name, 2020))
	}
}

func (s *EngineSuite) TestToggle_NoDuplicateKeys() {
	s.seed(serverRecord("r1", "Jon", 2010, true))
	s.store.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string, req models.UpdateRequest) (*models.Record, error) {
			year := map[string]int{"r1": 2010, "srv-new": 2011}[id]
			return serverRecord(id, "Jon", year, *req.Attended), nil
		}).AnyTimes()
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.CreateRequest) (*models.Record, error) {
			return serverRecord("srv-new", req.PersonName, req.Year, req.Attended), nil
		}).AnyTimes()

	for range 4 {
		_, err := s.engine.Toggle(s.ctx, "Jon", 2010, s.engine.Status("Jon", 2010))
		s.Require().NoError(err)
		_, err = s.engine.Toggle(s.ctx, "Jon", 2011, s.engine.Status("Jon", 2011))
		s.Require().NoError(err)
	}

	records := s.engine.Records()
	s.Equal(1, countKey(records, "Jon", 2010))
	s.Equal(1, countKey(records, "Jon", 2011))
}

func (s *EngineSuite) TestLoad() {
	s.Run("replaces record set", func() {
		s.seed(serverRecord("r1", "Jon", 2010, true))
		s.store.EXPECT().List(gomock.Any()).Return([]*models.Record{
			serverRecord("r2", "Pat", 2012, false),
		}, nil)

		s.Require().NoError(s.engine.Load(s.ctx))
		records := s.engine.Records()
		s.Require().Len(records, 1)
		s.Equal("r2", records[0].ID)
		s.True(s.engine.LoadState().Loaded)
	})

	s.Run("failure keeps previous set", func() {
		s.seed(serverRecord("r1", "Jon", 2010, true))
		s.store.EXPECT().List(gomock.Any()).Return(nil, errors.New("unreachable"))

		err := s.engine.Load(s.ctx)
		s.Require().Error(err)
		s.True(tracker.IsKind(err, tracker.KindLoad))
		s.Require().Len(s.engine.Records(), 1)
		s.Equal("r1", s.engine.Records()[0].ID)
		s.Equal("Failed to load attendance data", s.lastNotification().Message)
		s.NotEmpty(s.engine.LoadState().LastError)
	})

	s.Run("duplicate keys from the store collapse", func() {
		s.store.EXPECT().List(gomock.Any()).Return([]*models.Record{
			serverRecord("a", "Jon", 2010, false),
			serverRecord("b", "Jon", 2010, true),
		}, nil)

		s.Require().NoError(s.engine.Load(s.ctx))
		s.Equal(1, countKey(s.engine.Records(), "Jon", 2010))
	})
}

func (s *EngineSuite) TestRecordsReturnsCopies() {
	s.seed(serverRecord("r1", "Jon", 2010, true))

	records := s.engine.Records()
	records[0].Attended = false

	s.True(s.engine.Status("Jon", 2010))
}

func (s *EngineSuite) TestStatusOfUnknownKeyIsFalse() {
	s.False(s.engine.Status("Nobody", 2010))
	s.Equal(tracker.PhaseIdle, s.engine.Phase("Nobody", 2010))
}
