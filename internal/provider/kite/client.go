package kite

import (
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"options-analytics/internal/models"
)

// Quote is the part of a Kite quote the provider reads.
type Quote struct {
	LastPrice    float64
	Bid          float64
	Volume       float64
	OpenInterest float64
	LastTrade    time.Time
}

// Candle is one bar of Kite historical data.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// API is the subset of Kite Connect used by the provider.
type API interface {
	Quotes(instruments ...string) (map[string]Quote, error)
	Historical(token uint32, interval string, from, to time.Time) ([]Candle, error)
	Instruments() ([]models.Instrument, error)
}

// client adapts *kiteconnect.Client to API.
type client struct {
	kc *kiteconnect.Client
}

// NewClient creates an API backed by Kite Connect.
func NewClient(apiKey, accessToken string) API {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return &client{kc: kc}
}

func (c *client) Quotes(instruments ...string) (map[string]Quote, error) {
	quotes, err := c.kc.GetQuote(instruments...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Quote, len(quotes))
	for sym, q := range quotes {
		var bid float64
		if len(q.Depth.Buy) > 0 {
			bid = q.Depth.Buy[0].Price
		}
		out[sym] = Quote{
			LastPrice:    q.LastPrice,
			Bid:          bid,
			Volume:       float64(q.Volume),
			OpenInterest: float64(q.OI),
			LastTrade:    q.LastTradeTime.Time,
		}
	}
	return out, nil
}

func (c *client) Historical(token uint32, interval string, from, to time.Time) ([]Candle, error) {
	data, err := c.kc.GetHistoricalData(int(token), interval, from, to, false, false)
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, len(data))
	for i, d := range data {
		candles[i] = Candle{
			Time:   d.Date.Time,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: float64(d.Volume),
		}
	}
	return candles, nil
}

func (c *client) Instruments() ([]models.Instrument, error) {
	instruments, err := c.kc.GetInstruments()
	if err != nil {
		return nil, err
	}

	result := make([]models.Instrument, len(instruments))
	for i, inst := range instruments {
		result[i] = models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			Segment:   inst.Segment,
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		}
	}
	return result, nil
}
