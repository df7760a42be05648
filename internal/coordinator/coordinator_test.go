package coordinator_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketdata/internal/coordinator"
	"marketdata/internal/credentials"
	"marketdata/internal/provider"
	"marketdata/internal/provider/cache"
	"marketdata/internal/provider/providermock"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/registry"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func bars(cat provider.Category, syms ...string) *provider.Result {
	r := provider.NewResult(cat)
	for _, s := range syms {
		switch cat {
		case provider.CorporateActions:
			r.Data[s] = provider.Payload{Actions: []provider.CorporateAction{{Type: provider.ActionDividend, Magnitude: decimal.RequireFromString("0.24")}}}
		case provider.MacroSeries:
			r.Data[s] = provider.Payload{Observations: []provider.Observation{{Value: decimal.NewFromInt(1)}}}
		case provider.Fundamentals:
			r.Data[s] = provider.Payload{Metrics: map[string]decimal.Decimal{provider.MetricPERatio: decimal.NewFromInt(20)}}
		default:
			r.Data[s] = provider.Payload{Bars: []provider.Bar{{Close: decimal.NewFromInt(100), Volume: 1}}}
		}
	}
	return r
}

// harness wires a coordinator the way catalog does, with mock adapters.
type harness struct {
	clock  *clock
	store  *credentials.Store
	cache  *cache.Cache
	coord  *coordinator.Coordinator
	yahoo  *providermock.MockAdapter
	fmp    *providermock.MockAdapter
	alpha  *providermock.MockAdapter
	limits *ratelimit.Set
}

type harnessOpts struct {
	creds    map[string]string
	timeout  time.Duration
	yahooRPM int
	noCache  bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		clock: &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		store: credentials.NewStore(o.creds),
		yahoo: providermock.NewMockAdapter(ctrl),
		fmp:   providermock.NewMockAdapter(ctrl),
		alpha: providermock.NewMockAdapter(ctrl),
	}
	descs := []provider.Descriptor{
		{
			Name:              "yahoo",
			Priorities:        map[provider.Category]int{provider.PriceSeries: 0, provider.CorporateActions: 0},
			RequestsPerMinute: o.yahooRPM,
			Adapters:          map[provider.Category]provider.Adapter{provider.PriceSeries: h.yahoo, provider.CorporateActions: h.yahoo},
		},
		{
			Name:               "fmp",
			Priorities:         map[provider.Category]int{provider.PriceSeries: 1, provider.Fundamentals: 0, provider.CorporateActions: 1},
			RequiresCredential: true,
			Adapters:           map[provider.Category]provider.Adapter{provider.PriceSeries: h.fmp, provider.Fundamentals: h.fmp, provider.CorporateActions: h.fmp},
		},
		{
			Name:               "alphavantage",
			Priorities:         map[provider.Category]int{provider.PriceSeries: 2, provider.Fundamentals: 1},
			RequiresCredential: true,
			Adapters:           map[provider.Category]provider.Adapter{provider.PriceSeries: h.alpha, provider.Fundamentals: h.alpha},
		},
	}
	reg, err := registry.New(credentials.NewValidator(h.store), descs)
	require.NoError(t, err)

	cacheOpts := []cache.Option{cache.WithClock(h.clock.Now), cache.WithLogger(quietLogger())}
	if o.noCache {
		cacheOpts = append(cacheOpts, cache.WithDisabled())
	}
	h.cache = cache.New(cacheOpts...)
	h.limits = ratelimit.NewSet(ratelimit.ModeFixedWindow, h.clock.Now, descs...)
	h.coord = coordinator.New(reg, h.cache, h.limits,
		coordinator.WithTimeout(o.timeout),
		coordinator.WithLogger(quietLogger()),
		coordinator.WithClock(h.clock.Now),
	)
	return h
}

var aapl = provider.Request{Symbols: []string{"AAPL"}}

func TestFetch_FallbackOrdering(t *testing.T) {
	t.Parallel()

	// Arrange: every provider enabled, yahoo and fmp fail.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k", "alphavantage": "k"}})
	gomock.InOrder(
		h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad gateway")),
		h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, provider.ErrEmptyResult),
		h.alpha.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil),
	)

	// Act
	res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert: provenance names the provider that answered.
	require.NoError(t, err)
	require.Equal(t, "alphavantage", res.Provider)
	require.Equal(t, provider.PriceSeries, res.Category)
	require.Equal(t, h.clock.Now(), res.FetchedAt)
	require.Contains(t, res.Data, "AAPL")
}

func TestFetch_CacheShortCircuit(t *testing.T) {
	t.Parallel()

	// Arrange: yahoo answers exactly once.
	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil).Times(1)

	// Act: the second, logically equal request is served from cache.
	first, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
	require.NoError(t, err)
	second, err := h.coord.FetchPrices(t.Context(), []string{" aapl "}, nil, nil, "")

	// Assert
	require.NoError(t, err)
	require.Equal(t, first.Provider, second.Provider)
	require.Equal(t, first.Data, second.Data)
	require.EqualValues(t, 1, h.cache.Stats().Hits)
}

func TestFetch_TTLExpiryRefetches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil).Times(2)

	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
	require.NoError(t, err)

	// Act: 24h price window passes.
	h.clock.Advance(24*time.Hour + time.Second)
	_, err = h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	require.NoError(t, err)
}

func TestFetch_CredentialGating(t *testing.T) {
	t.Parallel()

	// Arrange: no FMP key; yahoo fails and fmp must never be called.
	h := newHarness(t, harnessOpts{creds: map[string]string{"alphavantage": "k"}})
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))
	h.alpha.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	// Act
	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert: only enabled providers appear in the attempts.
	var failed *coordinator.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Attempts, 2)
	require.Equal(t, "yahoo", failed.Attempts[0].Provider)
	require.Equal(t, "alphavantage", failed.Attempts[1].Provider)
}

func TestScenario_YahooServesWithoutFMPKey(t *testing.T) {
	t.Parallel()

	// Arrange: FMP has no key; yahoo has the best price rank and needs none.
	h := newHarness(t, harnessOpts{})
	var asked []string
	h.yahoo.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.Request) (*provider.Result, error) {
			asked = req.Symbols
			return bars(provider.PriceSeries, "AAPL", "MSFT"), nil
		})
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)

	// Act
	res, err := h.coord.FetchPrices(t.Context(), []string{"aapl", "AAPL", "msft"}, nil, nil, "1d")

	// Assert: duplicates collapse before the adapter sees the request.
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT"}, asked)
	require.Len(t, res.Data, 2)
	require.Contains(t, res.Data, "AAPL")
	require.Contains(t, res.Data, "MSFT")
	require.Equal(t, "yahoo", res.Provider)
}

func TestFetch_CredentialReloadEnablesProvider(t *testing.T) {
	t.Parallel()

	// Arrange: FMP has the best fundamentals rank but no key.
	h := newHarness(t, harnessOpts{})

	// Act: fundamentals has no enabled provider at all.
	_, err := h.coord.FetchFundamentals(t.Context(), []string{"AAPL"})
	require.ErrorIs(t, err, coordinator.ErrNoProviderAvailable)

	// Act: configuring the key enables FMP without rebuilding anything.
	h.store.Reload(map[string]string{"fmp": "k"})
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.Fundamentals, "AAPL"), nil).Times(1)
	res, err := h.coord.FetchFundamentals(t.Context(), []string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, "fmp", res.Provider)
}

func hangUntilDeadline(ctx context.Context, _ provider.Request) (*provider.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestScenario_YahooTimeoutWithoutFMPKey(t *testing.T) {
	t.Parallel()

	// Arrange: no FMP key, yahoo hangs until its per-call deadline.
	h := newHarness(t, harnessOpts{timeout: 30 * time.Millisecond})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(hangUntilDeadline)
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)

	// Act
	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert: one attempt, yahoo, timed out.
	require.ErrorIs(t, err, coordinator.ErrAllProvidersFailed)
	var failed *coordinator.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Attempts, 1)
	require.Equal(t, "yahoo", failed.Attempts[0].Provider)
	require.Equal(t, coordinator.OutcomeTimeout, failed.Attempts[0].Outcome)
}

func TestFetch_TimeoutFallsBackToNextProvider(t *testing.T) {
	t.Parallel()

	// Arrange: with an FMP key, a hanging yahoo falls through to FMP.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k"}, timeout: 30 * time.Millisecond})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(hangUntilDeadline)
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil)

	// Act
	res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert
	require.NoError(t, err)
	require.Equal(t, "fmp", res.Provider)
}

func TestFetch_CallerMutationDoesNotReachCache(t *testing.T) {
	t.Parallel()

	// Arrange
	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil).Times(1)
	res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
	require.NoError(t, err)

	// Act: edit the returned bar, then fetch again from cache.
	res.Data["AAPL"].Bars[0].Close = decimal.NewFromInt(-1)
	again, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert
	require.NoError(t, err)
	require.Equal(t, "100", again.Data["AAPL"].Bars[0].Close.String())
	require.EqualValues(t, 1, h.cache.Stats().Hits)
}

func TestScenario_CorporateActionsTenDaysOldIsCacheHit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.CorporateActions, "MSFT"), nil).Times(1)

	_, err := h.coord.FetchCorporateActions(t.Context(), []string{"MSFT"}, nil, nil)
	require.NoError(t, err)

	// Act: ten days later, well inside the 30 day window.
	h.clock.Advance(10 * 24 * time.Hour)
	res, err := h.coord.FetchCorporateActions(t.Context(), []string{"MSFT"}, nil, nil)

	// Assert: no second adapter call.
	require.NoError(t, err)
	require.Equal(t, "yahoo", res.Provider)
}

func TestFetch_RateLimitSkip(t *testing.T) {
	t.Parallel()

	// Arrange: yahoo allows one call per minute, cache off so every fetch walks.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k"}, yahooRPM: 1, noCache: true})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil).Times(1)
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).Times(1)

	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
	require.NoError(t, err)

	// Act: yahoo is over quota and skipped without a call.
	_, err = h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert
	var failed *coordinator.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, coordinator.OutcomeRateLimited, failed.Attempts[0].Outcome)
	require.ErrorIs(t, failed.Attempts[0].Err, coordinator.ErrRateLimited)
	require.Equal(t, coordinator.OutcomeProviderError, failed.Attempts[1].Outcome)

	// Act: a new window restores yahoo.
	h.clock.Advance(time.Minute)
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL"), nil).Times(1)
	res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
	require.NoError(t, err)
	require.Equal(t, "yahoo", res.Provider)
}

func TestFetch_ExhaustionRecordsEveryAttempt(t *testing.T) {
	t.Parallel()

	// Arrange: three enabled providers, three different failures.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k", "alphavantage": "k"}, timeout: 20 * time.Millisecond})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, errors.New("malformed chart"))
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, provider.ErrUpstreamRateLimited)
	h.alpha.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ provider.Request) (*provider.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	// Act
	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	// Assert
	require.ErrorIs(t, err, coordinator.ErrAllProvidersFailed)
	var failed *coordinator.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, provider.PriceSeries, failed.Category)
	require.Len(t, failed.Attempts, 3)
	require.Equal(t, []coordinator.Outcome{
		coordinator.OutcomeProviderError,
		coordinator.OutcomeRateLimited,
		coordinator.OutcomeTimeout,
	}, []coordinator.Outcome{failed.Attempts[0].Outcome, failed.Attempts[1].Outcome, failed.Attempts[2].Outcome})
	require.Contains(t, err.Error(), "yahoo=provider_error")

	// Assert: nothing was cached.
	_, ok := h.cache.Lookup(t.Context(), provider.PriceSeries, aapl)
	require.False(t, ok)
}

func TestFetch_InvalidRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)

	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, provider.Request{Symbols: []string{" "}})
	require.ErrorIs(t, err, provider.ErrInvalidRequest)

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-48 * time.Hour)
	_, err = h.coord.FetchPrices(t.Context(), []string{"AAPL"}, &start, &end, "1d")
	require.ErrorIs(t, err, provider.ErrInvalidRequest)

	// Inverted within one day: both bounds snap to the same date.
	late := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	early := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	_, err = h.coord.FetchPrices(t.Context(), []string{"AAPL"}, &late, &early, "1d")
	require.ErrorIs(t, err, provider.ErrInvalidRequest)

	_, err = h.coord.Fetch(t.Context(), provider.Category("crypto"), aapl)
	require.ErrorIs(t, err, provider.ErrInvalidRequest)
}

func TestFetch_NoProviderAvailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	_, err := h.coord.FetchMacro(t.Context(), []string{"GDP"}, nil, nil)
	require.ErrorIs(t, err, coordinator.ErrNoProviderAvailable)
	require.NotErrorIs(t, err, coordinator.ErrAllProvidersFailed)
}

func TestFetch_CancellationStopsWalkWithoutCaching(t *testing.T) {
	t.Parallel()

	// Arrange: the caller gives up while yahoo is in flight.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k"}})
	ctx, cancel := context.WithCancel(t.Context())
	h.yahoo.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(callCtx context.Context, _ provider.Request) (*provider.Result, error) {
			cancel()
			<-callCtx.Done()
			return bars(provider.PriceSeries, "AAPL"), nil
		})
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)

	// Act
	_, err := h.coord.Fetch(ctx, provider.PriceSeries, aapl)

	// Assert: distinct from provider failures, nothing cached.
	require.ErrorIs(t, err, coordinator.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, coordinator.ErrAllProvidersFailed)

	// The walk goroutine may still be unwinding; give it a moment before
	// checking that nothing was stored.
	require.Never(t, func() bool {
		_, ok := h.cache.Lookup(t.Context(), provider.PriceSeries, aapl)
		return ok
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFetch_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := h.coord.Fetch(ctx, provider.PriceSeries, aapl)
	require.ErrorIs(t, err, coordinator.ErrCancelled)
}

func TestFetch_PartialResultAndUnrequestedSymbols(t *testing.T) {
	t.Parallel()

	// Arrange: yahoo answers for one requested symbol plus one nobody asked for.
	h := newHarness(t, harnessOpts{creds: map[string]string{"fmp": "k"}})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "AAPL", "TSLA"), nil).Times(1)
	h.fmp.EXPECT().Call(gomock.Any(), gomock.Any()).Times(0)
	req := provider.Request{Symbols: []string{"AAPL", "MSFT"}}

	// Act
	res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, req)

	// Assert: partial is success, extras dropped, and the partial result is cached.
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL"}, res.Symbols(req))
	require.NotContains(t, res.Data, "TSLA")
	cached, ok := h.cache.Lookup(t.Context(), provider.PriceSeries, req)
	require.True(t, ok)
	require.Len(t, cached.Data, 1)
}

func TestFetch_OnlyUnrequestedSymbolsIsFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	h.yahoo.EXPECT().Call(gomock.Any(), gomock.Any()).Return(bars(provider.PriceSeries, "TSLA"), nil)

	_, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)

	var failed *coordinator.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.ErrorIs(t, failed.Attempts[0].Err, provider.ErrEmptyResult)
}

func TestFetch_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	// Arrange: yahoo blocks until released and counts its calls.
	h := newHarness(t, harnessOpts{})
	release := make(chan struct{})
	var calls atomic.Int32
	h.yahoo.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, provider.Request) (*provider.Result, error) {
			calls.Add(1)
			<-release
			return bars(provider.PriceSeries, "AAPL"), nil
		}).
		AnyTimes()

	// Act
	var wg sync.WaitGroup
	results := make([]*provider.Result, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Assert
	require.EqualValues(t, 1, calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "yahoo", results[i].Provider)
	}
}

func TestFetch_FollowerRetriesWhenLeaderCancelled(t *testing.T) {
	t.Parallel()

	// Arrange: the first call hangs until its caller goes away; later calls succeed.
	h := newHarness(t, harnessOpts{})
	started := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32
	h.yahoo.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ provider.Request) (*provider.Result, error) {
			if calls.Add(1) == 1 {
				once.Do(func() { close(started) })
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return bars(provider.PriceSeries, "AAPL"), nil
		}).
		AnyTimes()

	leaderCtx, cancelLeader := context.WithCancel(t.Context())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := h.coord.Fetch(leaderCtx, provider.PriceSeries, aapl)
		leaderErr <- err
	}()
	<-started

	followerRes := make(chan *provider.Result, 1)
	followerErr := make(chan error, 1)
	go func() {
		res, err := h.coord.Fetch(t.Context(), provider.PriceSeries, aapl)
		followerRes <- res
		followerErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// Act
	cancelLeader()

	// Assert
	require.ErrorIs(t, <-leaderErr, coordinator.ErrCancelled)
	require.NoError(t, <-followerErr)
	require.Equal(t, "yahoo", (<-followerRes).Provider)
}

func TestAttempt_MarshalJSON(t *testing.T) {
	t.Parallel()

	a := coordinator.Attempt{Provider: "fmp", Category: provider.PriceSeries, Outcome: coordinator.OutcomeTimeout, Err: context.DeadlineExceeded, Duration: 5 * time.Second}
	b, err := a.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"provider":"fmp","category":"price_series","outcome":"timeout","error":"context deadline exceeded","duration_ms":5000}`, string(b))
}
