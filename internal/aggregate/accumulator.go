// Package aggregate computes analytics summaries from event records.
//
// Everything here is pure: records are read, never modified, and the
// result depends only on the records added.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/model"
)

const (
	// TopN is the length of the top pages and top products lists.
	TopN = 10

	// RecentPurchases is the number of purchases kept for the realtime view.
	RecentPurchases = 5

	directSource  = "direct"
	unknownDevice = "unknown"
)

// Accumulator folds events into an AggregationResult one at a time so that
// callers can stream rows instead of materialising a whole window.
// Memory grows with the number of distinct keys, not events.
type Accumulator struct {
	total     int64
	byType    map[model.EventType]int64
	revenue   map[model.EventType]decimal.Decimal
	pages     *counter
	products  *counter
	sources   *counter
	devices   *counter
	hourly    [24]int64
	actors    map[string]struct{}
	purchases []*model.EventRecord
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		byType:   make(map[model.EventType]int64, len(model.AllEventTypes)),
		revenue:  make(map[model.EventType]decimal.Decimal, 2),
		pages:    newCounter(),
		products: newCounter(),
		sources:  newCounter(),
		devices:  newCounter(),
		actors:   make(map[string]struct{}),
	}
}

// Add folds one event into the accumulator.
func (a *Accumulator) Add(e *model.EventRecord) {
	if e == nil {
		return
	}

	a.total++
	a.byType[e.EventType]++

	if e.Value != nil {
		a.revenue[e.EventType] = a.revenue[e.EventType].Add(*e.Value)
	}

	if page, ok := propertyKey(e.Properties, "page"); ok {
		a.pages.inc(page)
	}
	if e.EventType == model.EventProductView {
		if product, ok := propertyKey(e.Properties, "product_id"); ok {
			a.products.inc(product)
		}
	}

	source := e.Source
	if source == "" {
		source = directSource
	}
	a.sources.inc(source)

	device := e.Device
	if device == "" {
		device = unknownDevice
	}
	a.devices.inc(device)

	hour := 0
	if !e.CreatedAt.IsZero() {
		hour = e.EventHour()
	}
	a.hourly[hour]++

	a.actors[e.Actor().Key()] = struct{}{}

	if e.EventType == model.EventPurchase {
		a.keepRecentPurchase(e)
	}
}

// keepRecentPurchase maintains the newest RecentPurchases purchases,
// sorted by CreatedAt descending. Equal timestamps keep arrival order.
func (a *Accumulator) keepRecentPurchase(e *model.EventRecord) {
	i := sort.Search(len(a.purchases), func(i int) bool {
		return a.purchases[i].CreatedAt.Before(e.CreatedAt)
	})
	if i >= RecentPurchases {
		return
	}
	a.purchases = append(a.purchases, nil)
	copy(a.purchases[i+1:], a.purchases[i:])
	a.purchases[i] = e
	if len(a.purchases) > RecentPurchases {
		a.purchases = a.purchases[:RecentPurchases]
	}
}

// Result returns the summary of everything added so far.
func (a *Accumulator) Result() *model.AggregationResult {
	result := &model.AggregationResult{
		TotalEvents:  a.total,
		EventsByType: make(map[model.EventType]int64, len(model.AllEventTypes)),
		Revenue:      a.revenue[model.EventPurchase],
		RevenueByType: map[model.EventType]decimal.Decimal{
			model.EventAddToCart: a.revenue[model.EventAddToCart],
			model.EventPurchase:  a.revenue[model.EventPurchase],
		},
		UniqueUsers:        int64(len(a.actors)),
		TopPages:           a.pages.top(TopN),
		TopProducts:        a.products.top(TopN),
		TrafficSources:     a.sources.top(0),
		DeviceBreakdown:    a.devices.top(0),
		HourlyDistribution: a.hourly,
	}
	for _, t := range model.AllEventTypes {
		result.EventsByType[t] = a.byType[t]
	}
	result.ConversionRate = conversionRate(a.byType[model.EventPurchase], a.byType[model.EventPageView])
	return result
}

// Realtime returns the realtime view of everything added so far.
// liveStreams comes from outside the event store.
func (a *Accumulator) Realtime(liveStreams int64) *model.RealtimeResult {
	recent := make([]*model.EventRecord, len(a.purchases))
	copy(recent, a.purchases)
	return &model.RealtimeResult{
		AggregationResult:  *a.Result(),
		ActiveUsers:        int64(len(a.actors)),
		CurrentLiveStreams: liveStreams,
		RecentPurchases:    recent,
	}
}

// conversionRate is purchases per page view in percent; 0 without page views.
func conversionRate(purchases, pageViews int64) float64 {
	if pageViews == 0 {
		return 0
	}
	return float64(purchases) / float64(pageViews) * 100
}

// propertyKey reads a grouping key from the property map.
func propertyKey(props model.Properties, name string) (string, bool) {
	v, ok := props[name]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	default:
		return fmt.Sprint(val), true
	}
}
