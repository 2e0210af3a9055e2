package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"mantrip/internal/attendance/handler"
	"mantrip/internal/attendance/models"
	"mantrip/internal/attendance/service"
	"mantrip/internal/attendance/store/record"
	"mantrip/pkg/requestcontext"
)

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	svc, err := service.New(record.NewInMemory())
	s.Require().NoError(err)
	r := chi.NewRouter()
	r.Route("/api", handler.New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register)
	s.server = httptest.NewServer(r)

	s.client, err = New(s.server.URL + "/")
	s.Require().NoError(err)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestNew() {
	s.Run("empty base URL", func() {
		_, err := New("  ")
		s.Error(err)
	})

	s.Run("relative base URL", func() {
		_, err := New("attendance")
		s.Error(err)
	})
}

func (s *ClientSuite) TestRoundTrip() {
	ctx := context.Background()

	created, err := s.client.Create(ctx, models.CreateRequest{Year: 2020, PersonName: "Jon", Attended: true})
	s.Require().NoError(err)
	s.NotEmpty(created.ID)
	s.True(created.Attended)

	attended := false
	updated, err := s.client.Update(ctx, created.ID, models.UpdateRequest{Attended: &attended})
	s.Require().NoError(err)
	s.Equal(created.ID, updated.ID)
	s.False(updated.Attended)

	records, err := s.client.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(models.Key{PersonName: "Jon", Year: 2020}, records[0].Key())

	s.Require().NoError(s.client.Delete(ctx, created.ID))
	records, err = s.client.List(ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ClientSuite) TestRejectedCall() {
	ctx := context.Background()
	_, err := s.client.Create(ctx, models.CreateRequest{Year: 2020, PersonName: "Jon"})
	s.Require().NoError(err)

	_, err = s.client.Create(ctx, models.CreateRequest{Year: 2020, PersonName: "Jon"})
	s.Require().Error(err)

	var re *RemoteError
	s.Require().ErrorAs(err, &re)
	s.Equal(ErrorRejected, re.Category)
	s.Equal("conflict", re.Code)
	s.Equal(http.StatusConflict, re.StatusCode)
	s.False(IsRetryable(err))
}

func (s *ClientSuite) TestFailureCategories() {
	ctx := context.Background()

	s.Run("5xx without envelope is an outage", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()
		c, err := New(srv.URL)
		s.Require().NoError(err)

		_, err = c.List(ctx)
		s.Equal(ErrorOutage, CategoryOf(err))
		s.True(IsRetryable(err))
	})

	s.Run("success false with 200 is rejected", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"success":false,"error":"validation_error","error_description":"nope"}`)
		}))
		defer srv.Close()
		c, err := New(srv.URL)
		s.Require().NoError(err)

		_, err = c.List(ctx)
		s.Equal(ErrorRejected, CategoryOf(err))
		s.Contains(err.Error(), "nope")
	})

	s.Run("garbage body is bad data", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		}))
		defer srv.Close()
		c, err := New(srv.URL)
		s.Require().NoError(err)

		_, err = c.List(ctx)
		s.Equal(ErrorBadData, CategoryOf(err))
	})

	s.Run("slow resource times out", func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
		s.Require().NoError(err)

		_, err = c.List(ctx)
		s.Equal(ErrorTimeout, CategoryOf(err))
	})

	s.Run("unreachable resource is an outage", func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		c, err := New(addr)
		s.Require().NoError(err)

		_, err = c.List(ctx)
		s.Equal(ErrorOutage, CategoryOf(err))
	})
}

func (s *ClientSuite) TestSuccessWithoutRecordIsBadData() {
	ctx := context.Background()
	attended := true

	for _, body := range []string{
		`{"success":true}`,
		`{"success":true,"data":null}`,
		`{"success":true,"data":{"personName":"Jon","year":2020}}`,
	} {
		s.Run(body, func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()
			c, err := New(srv.URL)
			s.Require().NoError(err)

			created, err := c.Create(ctx, models.CreateRequest{Year: 2020, PersonName: "Jon"})
			s.Nil(created)
			s.Equal(ErrorBadData, CategoryOf(err))

			updated, err := c.Update(ctx, "r1", models.UpdateRequest{Attended: &attended})
			s.Nil(updated)
			s.Equal(ErrorBadData, CategoryOf(err))
		})
	}
}

func (s *ClientSuite) TestForwardsRequestID() {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()
	c, err := New(srv.URL)
	s.Require().NoError(err)

	_, err = c.List(requestcontext.WithRequestID(context.Background(), "req-42"))
	s.Require().NoError(err)
	s.Equal("req-42", <-seen)
}
