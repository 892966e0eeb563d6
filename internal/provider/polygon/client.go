package polygon

import (
	"context"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
)

// Bar is one aggregate bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Contract is one entry of an options chain snapshot.
type Contract struct {
	Ticker            string
	Type              string // "call" or "put"
	Strike            float64
	Expiration        time.Time // calendar date, midnight UTC
	LastPrice         float64
	Bid               float64
	Volume            float64
	OpenInterest      float64
	ImpliedVolatility float64
	UnderlyingPrice   float64
	LastTrade         time.Time
}

// API is the subset of the Polygon REST API used by the provider.
type API interface {
	LastTrade(ctx context.Context, ticker string) (float64, error)
	Aggregates(ctx context.Context, ticker string, multiplier int, timespan string, from, to time.Time) ([]Bar, error)
	// OptionContracts lists the chain of underlying expiring on expiration,
	// or on any date from expiration on when onOrAfter is set.
	OptionContracts(ctx context.Context, underlying string, expiration time.Time, onOrAfter bool) ([]Contract, error)
}

// client adapts the Polygon REST client to API.
type client struct {
	rc *polygonrest.Client
}

// NewClient creates an API backed by the Polygon REST client.
func NewClient(apiKey string) API {
	return &client{rc: polygonrest.New(apiKey)}
}

func (c *client) LastTrade(ctx context.Context, ticker string) (float64, error) {
	res, err := c.rc.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: ticker})
	if err != nil {
		return 0, err
	}
	return res.Results.Price, nil
}

func (c *client) Aggregates(ctx context.Context, ticker string, multiplier int, timespan string, from, to time.Time) ([]Bar, error) {
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: multiplier,
		Timespan:   models.Timespan(timespan),
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithOrder(models.Asc).WithAdjusted(true)

	var bars []Bar
	iter := c.rc.ListAggs(ctx, params)
	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, Bar{
			Time:   time.Time(agg.Timestamp),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

func (c *client) OptionContracts(ctx context.Context, underlying string, expiration time.Time, onOrAfter bool) ([]Contract, error) {
	cmp := models.EQ
	if onOrAfter {
		cmp = models.GTE
	}
	params := models.ListOptionsChainParams{
		UnderlyingAsset: underlying,
	}.WithExpirationDate(cmp, models.Date(expiration))

	var contracts []Contract
	iter := c.rc.ListOptionsChainSnapshot(ctx, params)
	for iter.Next() {
		s := iter.Item()
		contracts = append(contracts, Contract{
			Ticker:            s.Details.Ticker,
			Type:              s.Details.ContractType,
			Strike:            s.Details.StrikePrice,
			Expiration:        time.Time(s.Details.ExpirationDate),
			LastPrice:         s.LastTrade.Price,
			Bid:               s.LastQuote.Bid,
			Volume:            s.Day.Volume,
			OpenInterest:      s.OpenInterest,
			ImpliedVolatility: s.ImpliedVolatility,
			UnderlyingPrice:   s.UnderlyingAsset.Price,
			LastTrade:         time.Time(s.LastTrade.Timestamp),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return contracts, nil
}
